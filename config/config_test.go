package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the dotenv lookup at a file that does not exist.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("LIVEPRICE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3000", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, ModeManaged, cfg.Driver.Mode)
	assert.Equal(t, "http://127.0.0.1:4444", cfg.Driver.Endpoint)
	assert.Empty(t, cfg.Driver.Command)
	assert.True(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.NoSandbox)
	assert.True(t, cfg.Browser.DisableDevShm)
	assert.Equal(t, []string{"Image", "Font", "Media"}, cfg.Browser.BlockedResourceTypes)
	assert.Equal(t, "https://finance.yahoo.com/quote/{ticker}", cfg.Scraper.URLTemplate)
	assert.Equal(t, ".livePrice", cfg.Scraper.ContainerSelector())
	assert.Equal(t, "span", cfg.Scraper.PriceTag)
	assert.Equal(t, 30*time.Second, cfg.Scraper.Timeout)
	assert.Equal(t, 1, cfg.Pool.Size)
	assert.False(t, cfg.Auth.Enabled)
	assert.Zero(t, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("LIVEPRICE_PORT", "8081")
	t.Setenv("LIVEPRICE_DRIVER_MODE", "HTTP")
	t.Setenv("LIVEPRICE_DRIVER_COMMAND", "rod-manager -addr :4444")
	t.Setenv("LIVEPRICE_POOL_SIZE", "3")
	t.Setenv("LIVEPRICE_SCRAPE_TIMEOUT", "12s")
	t.Setenv("LIVEPRICE_AUTH_ENABLED", "true")
	t.Setenv("LIVEPRICE_API_KEYS", " k1, ,k2 ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, ModeHTTP, cfg.Driver.Mode)
	assert.Equal(t, []string{"rod-manager", "-addr", ":4444"}, cfg.Driver.Command)
	assert.Equal(t, 3, cfg.Pool.Size)
	assert.Equal(t, 12*time.Second, cfg.Scraper.Timeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)
}

func TestLoad_DotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "LIVEPRICE_PORT=9000\nLIVEPRICE_PRICE_CLASS=quotePrice\nLIVEPRICE_LOG_LEVEL=debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("LIVEPRICE_ENV_FILE", path)

	// The environment wins over the file.
	t.Setenv("LIVEPRICE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "quotePrice", cfg.Scraper.PriceClass)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown mode", "LIVEPRICE_DRIVER_MODE", "selenium"},
		{"zero pool", "LIVEPRICE_POOL_SIZE", "0"},
		{"template without placeholder", "LIVEPRICE_URL_TEMPLATE", "https://example.com/quote"},
		{"bad class", "LIVEPRICE_PRICE_CLASS", "live[Price"},
		{"bad tag", "LIVEPRICE_PRICE_TAG", "span["},
		{"zero timeout", "LIVEPRICE_SCRAPE_TIMEOUT", "0s"},
		{"auth without keys", "LIVEPRICE_AUTH_ENABLED", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList("a,b"))
	assert.Equal(t, []string{"a"}, splitList(" a , ,"))
}
