package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yieldd.log")
	logger, closer := SetupWithFile("yieldd", "test", path)
	t.Cleanup(func() { _ = closer.Close() })

	logger.Info("deposit routed", slog.Uint64("protocol", 2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	require.Contains(t, line, `"message":"deposit routed"`)
	require.Contains(t, line, `"severity":"INFO"`)
	require.Contains(t, line, `"service":"yieldd"`)
	require.Contains(t, line, `"env":"test"`)
	require.Contains(t, line, `"timestamp"`)
}

func TestSetupWithoutFile(t *testing.T) {
	logger, closer := SetupWithFile("yieldd", "", "  ")
	require.NotNil(t, logger)
	require.NoError(t, closer.Close())
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer abc").Value.String())
	require.Equal(t, "/v1/params", MaskField("path", "/v1/params").Value.String())
	require.Equal(t, "", MaskField("token", "").Value.String())
	require.True(t, strings.HasPrefix(MaskValue("secret"), "[REDACTED"))
	require.Contains(t, RedactionAllowlist(), "request_id")
}
