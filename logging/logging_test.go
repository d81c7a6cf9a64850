package logging

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/liveprice/config"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "liveprice.log")

	logger, sync, err := New(config.LogConfig{Level: "info", Format: "json", OutputFile: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("price fetched", "ticker", "AAPL")
	_ = sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"price fetched"`)
	assert.Contains(t, out, `"ticker":"AAPL"`)
	assert.NotContains(t, out, "hidden")
}

func TestNew_ConsoleFormat(t *testing.T) {
	logger, _, err := New(config.LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud", Format: "json"})
	assert.ErrorContains(t, err, "invalid log level")
}

func TestNew_WritesToStderr(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stderr
	os.Stderr = w
	t.Cleanup(func() { os.Stderr = orig })

	logger, sync, err := New(config.LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	logger.Error("price scrape failed", "ticker", "AAPL", "code", "ELEMENT_NOT_FOUND")
	_ = sync()
	require.NoError(t, w.Close())

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"price scrape failed"`)
	assert.Contains(t, string(data), `"code":"ELEMENT_NOT_FOUND"`)
}
