package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =x,team=yield")
	require.Equal(t, map[string]string{"api-key": "abc", "team": "yield"}, headers)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-tenant=ops")

	cfg := ConfigFromEnv("yieldd", "dev")
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.True(t, cfg.Insecure)
	require.True(t, cfg.Traces)
	require.True(t, cfg.Metrics)
	require.Equal(t, "ops", cfg.Headers["x-tenant"])
}

func TestInitDisabledExporters(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := ConfigFromEnv("yieldd", "test")
	require.False(t, cfg.Traces)

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestConfigFromEnvResourceAndSampling(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "node=yieldd-1,region=eu")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	cfg := ConfigFromEnv("yieldd", "prod")
	require.Equal(t, map[string]string{"node": "yieldd-1", "region": "eu"}, cfg.Resource)
	require.Equal(t, 0.25, cfg.SampleRatio)

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "not-a-number")
	require.Equal(t, float64(1), ConfigFromEnv("yieldd", "prod").SampleRatio)
}

func TestBuildResourceCarriesComponent(t *testing.T) {
	res, err := buildResource(Config{ServiceName: "yieldd", Environment: "dev", Resource: map[string]string{"node": "n1"}})
	require.NoError(t, err)
	values := map[string]string{}
	for _, kv := range res.Attributes() {
		values[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "yieldd", values["service.name"])
	require.Equal(t, componentGateway, values[resourceKeyComponent])
	require.Equal(t, "n1", values["node"])
}

func TestSamplerRatio(t *testing.T) {
	require.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
