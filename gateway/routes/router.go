package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"yieldrouter/gateway/auth"
	"yieldrouter/gateway/middleware"
)

// Rate limiter groups applied to the read and write halves of the API.
const (
	LimitReads  = "reads"
	LimitWrites = "writes"
)

type Config struct {
	Engine        Engine
	HealthHandler http.Handler
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	ReplayGuard   *auth.ReplayGuard
	CORS          middleware.CORSConfig
	WriteScope    string
	Logger        *slog.Logger
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("routes: engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	api := &aggregatorRoutes{engine: cfg.Engine, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	health := cfg.HealthHandler
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}
	r.Handle("/healthz", health)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(reads chi.Router) {
			if cfg.RateLimiter != nil {
				reads.Use(cfg.RateLimiter.Middleware(LimitReads))
			}
			if obs != nil {
				reads.Use(obs.Middleware("reads"))
			}
			api.mountReads(reads)
		})
		v1.Group(func(writes chi.Router) {
			if cfg.Authenticator != nil {
				if cfg.WriteScope != "" {
					writes.Use(cfg.Authenticator.Middleware(cfg.WriteScope))
				} else {
					writes.Use(cfg.Authenticator.Middleware())
				}
			}
			if cfg.RateLimiter != nil {
				writes.Use(cfg.RateLimiter.Middleware(LimitWrites))
			}
			if cfg.ReplayGuard != nil {
				writes.Use(cfg.ReplayGuard.Middleware(middleware.SubjectString))
			}
			if obs != nil {
				writes.Use(obs.Middleware("writes"))
			}
			api.mountWrites(writes)
		})
	})

	if obs != nil {
		metricsHandler := obs.MetricsHandler()
		r.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			refreshProtocolGauges(cfg.Engine)
			metricsHandler.ServeHTTP(w, req)
		}))
	}

	return r, nil
}
