package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"yieldrouter/config"
	"yieldrouter/gateway/auth"
	gatewayconfig "yieldrouter/gateway/config"
	"yieldrouter/gateway/middleware"
	"yieldrouter/gateway/routes"
	"yieldrouter/observability/logging"
	telemetry "yieldrouter/observability/otel"
)

const envVar = "YIELD_ENV"

func main() {
	var cfgPath string
	var allowInsecureFlag bool
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to node configuration")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on loopback interfaces")
	flag.Parse()

	if err := run(cfgPath, allowInsecureFlag); err != nil {
		slog.Error("yieldd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfgPath string, allowInsecureFlag bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.SetupWithFile("yieldd", env, config.ResolvePath(cfgPath, cfg.LogFile))
	defer logCloser.Close()

	if err := config.Validate(cfg); err != nil {
		return err
	}
	cfg.DataDir = config.ResolvePath(cfgPath, cfg.DataDir)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("yieldd", env))
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	gwPath := config.ResolvePath(cfgPath, cfg.GatewayConfig)
	if _, err := os.Stat(gwPath); err != nil {
		logger.Warn("gateway config not found, using defaults", slog.String("path", gwPath))
		gwPath = ""
	}
	gwCfg, err := gatewayconfig.Load(gwPath)
	if err != nil {
		return fmt.Errorf("load gateway config: %w", err)
	}
	configDir := ""
	if gwPath != "" {
		configDir = filepath.Dir(gwPath)
	}

	n, err := openNode(cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	replay, closeReplay, err := buildReplayGuard(gwCfg.Idempotency, cfg.DataDir)
	if err != nil {
		return err
	}
	defer closeReplay()

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: gwCfg.Observability.ServiceName,
		Module:      "aggregator",
		LogRequests: gwCfg.Observability.LogRequests,
		Enabled:     gwCfg.Observability.Metrics || gwCfg.Observability.Tracing,
	}, logger)

	authenticator := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        gwCfg.Auth.Enabled,
		HMACSecret:     gwCfg.Auth.HMACSecret,
		Issuer:         gwCfg.Auth.Issuer,
		Audience:       gwCfg.Auth.Audience,
		ScopeClaim:     gwCfg.Auth.ScopeClaim,
		OptionalPaths:  gwCfg.Auth.OptionalPaths,
		AllowAnonymous: gwCfg.Auth.AllowAnonymous,
		ClockSkew:      gwCfg.Auth.ClockSkew,
	}, logger)

	router, err := routes.New(routes.Config{
		Engine:        n.engine,
		Authenticator: authenticator,
		RateLimiter:   middleware.NewRateLimiter(rateLimits(gwCfg.RateLimits), logger),
		Observability: obs,
		ReplayGuard:   replay,
		WriteScope:    gwCfg.Auth.WriteScope,
		Logger:        logger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   gwCfg.CORS.AllowedOrigins,
			AllowCredentials: gwCfg.CORS.AllowCredentials,
		},
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	handler := http.Handler(router)
	if gwCfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, "yieldd")
	}

	tlsConfig, err := buildTLSConfig(configDir, gwCfg.Security)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}
	allowInsecure := gwCfg.Security.AllowInsecure || allowInsecureFlag
	if tlsConfig == nil {
		if !allowInsecure {
			return fmt.Errorf("gateway TLS certificate and key are required; provide security.tlsCertFile/tlsKeyFile or start with --allow-insecure in dev")
		}
		if !strings.EqualFold(env, "dev") && !isLoopbackAddress(gwCfg.ListenAddress) {
			return fmt.Errorf("plaintext gateway mode is restricted to loopback listeners or dev environment")
		}
	}

	server := &http.Server{
		Addr:         gwCfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  gwCfg.ReadTimeout,
		WriteTimeout: gwCfg.WriteTimeout,
		IdleTimeout:  gwCfg.IdleTimeout,
		TLSConfig:    tlsConfig,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", gwCfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
			listener = tls.NewListener(listener, tlsConfig)
		}
		logger.Info("gateway listening", slog.String("listen", scheme+"://"+listener.Addr().String()))
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok && err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("yieldd stopped")
	return nil
}

func rateLimits(entries []gatewayconfig.RateLimitConfig) map[string]middleware.RateLimit {
	limits := make(map[string]middleware.RateLimit)
	for _, entry := range entries {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			continue
		}
		limits[id] = middleware.RateLimit{
			RequestsPerMinute: entry.RequestsPerMinute,
			RatePerSecond:     entry.RatePerSecond,
			Burst:             entry.Burst,
			DefaultTokens:     entry.DefaultTokens,
			Tokens:            entry.Tokens,
		}
	}
	if len(limits) == 0 {
		limits[routes.LimitReads] = middleware.RateLimit{RatePerSecond: 20, Burst: 100}
		limits[routes.LimitWrites] = middleware.RateLimit{RatePerSecond: 2, Burst: 20}
	}
	return limits
}

// buildReplayGuard returns nil when idempotency is disabled. A relative
// persistence path is placed under the data directory.
func buildReplayGuard(cfg gatewayconfig.IdempotencyConfig, dataDir string) (*auth.ReplayGuard, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return auth.NewReplayGuard(cfg.Window, cfg.Capacity, nil, nil), func() {}, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}
	store, err := auth.NewLevelDBPersistence(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open idempotency store: %w", err)
	}
	guard := auth.NewReplayGuard(cfg.Window, cfg.Capacity, nil, store)
	window := cfg.Window
	if window <= 0 {
		window = 10 * time.Minute
	}
	if err := guard.Hydrate(context.Background(), time.Now().Add(-window)); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return guard, func() { _ = store.Close() }, nil
}

func buildTLSConfig(baseDir string, sec gatewayconfig.SecurityConfig) (*tls.Config, error) {
	certPath := resolveTLSPath(baseDir, sec.TLSCertFile)
	keyPath := resolveTLSPath(baseDir, sec.TLSKeyFile)
	caPath := resolveTLSPath(baseDir, sec.TLSClientCAFile)
	if certPath == "" && keyPath == "" && caPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must both be provided when enabling TLS")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if caPath != "" {
		data, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("parse client CA file %s", caPath)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

func resolveTLSPath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
