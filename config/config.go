package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/spf13/viper"
)

// Driver connection modes.
const (
	ModeManaged = "managed"
	ModeRemote  = "remote"
	ModeLaunch  = "launch"
	ModeHTTP    = "http"
)

// TickerPlaceholder is replaced by the ticker in Scraper.URLTemplate.
const TickerPlaceholder = "{ticker}"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Driver    DriverConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Pool      PoolConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 3000
	Mode string // "debug", "release", "test"; default: "release"

	// ShutdownTimeout bounds how long in-flight requests may drain.
	ShutdownTimeout time.Duration // default: 5s
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DriverConfig describes where browser sessions come from.
type DriverConfig struct {
	// Mode selects how sessions are established: managed, remote, launch or http.
	Mode string // default: "managed"

	// Endpoint is the driver endpoint for managed and remote modes.
	Endpoint string // default: "http://127.0.0.1:4444"

	// Command, when set, is spawned and supervised before connecting.
	Command []string

	// ReadyPattern is matched against the command's output lines.
	ReadyPattern string // default: "(?i)listening on"

	// StartupTimeout bounds how long the supervised command may take to be ready.
	StartupTimeout time.Duration // default: 30s

	// StopGrace is the wait between interrupt and kill on shutdown.
	StopGrace time.Duration // default: 5s
}

// BrowserConfig controls the capabilities requested for every browser.
type BrowserConfig struct {
	Headless      bool // default: true
	NoSandbox     bool // default: true
	DisableDevShm bool // default: true

	// BrowserBin overrides the Chromium binary path in launch mode.
	BrowserBin string

	// Stealth injects anti-detection JS into every session.
	Stealth bool // default: false

	// AcceptLanguage is sent as an extra header on every navigation.
	AcceptLanguage string // default: "en-US,en;q=0.9"

	// BlockedResourceTypes are failed before they hit the network.
	// Known names: Image, Stylesheet, Font, Media.
	BlockedResourceTypes []string // default: "Image,Font,Media"

	// BlockTrackers fails requests to known ad and analytics hosts.
	BlockTrackers bool // default: true
}

// ScraperConfig controls how a price is located on the quote page.
type ScraperConfig struct {
	// URLTemplate must contain TickerPlaceholder.
	URLTemplate string // default: "https://finance.yahoo.com/quote/{ticker}"

	// PriceClass is the marker class of the price container.
	PriceClass string // default: "livePrice"

	// PriceTag is the tag of the price text node inside the container.
	PriceTag string // default: "span"

	// Timeout bounds one navigation plus both lookups.
	Timeout time.Duration // default: 30s

	// ElementTimeout bounds how long the container lookup waits for late rendering.
	ElementTimeout time.Duration // default: 10s
}

// PoolConfig controls the session pool.
type PoolConfig struct {
	// Size is the number of sessions; 1 serializes every scrape on one session.
	Size int // default: 1

	// MaxUses retires a session after this many scrapes.
	MaxUses int // default: 200

	// MaxAge retires a session older than this.
	MaxAge time.Duration // default: 1h
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	APIKeys []string
}

// RateLimitConfig controls per-identity rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate; <= 0 disables limiting.
	RequestsPerSecond float64 // default: 0
	Burst             int     // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level      string // default: "info"
	Format     string // "json" or "console"; default: "json"
	OutputFile string // optional rotated log file
}

// Load reads configuration from an optional dotenv file and the environment,
// the environment taking precedence. A missing dotenv file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	envFile := os.Getenv("LIVEPRICE_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", envFile, err)
	}
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("LIVEPRICE_HOST"),
			Port:            v.GetInt("LIVEPRICE_PORT"),
			Mode:            v.GetString("LIVEPRICE_MODE"),
			ShutdownTimeout: v.GetDuration("LIVEPRICE_SHUTDOWN_TIMEOUT"),
		},
		Driver: DriverConfig{
			Mode:           strings.ToLower(v.GetString("LIVEPRICE_DRIVER_MODE")),
			Endpoint:       v.GetString("LIVEPRICE_DRIVER_ENDPOINT"),
			Command:        strings.Fields(v.GetString("LIVEPRICE_DRIVER_COMMAND")),
			ReadyPattern:   v.GetString("LIVEPRICE_DRIVER_READY_PATTERN"),
			StartupTimeout: v.GetDuration("LIVEPRICE_DRIVER_STARTUP_TIMEOUT"),
			StopGrace:      v.GetDuration("LIVEPRICE_DRIVER_STOP_GRACE"),
		},
		Browser: BrowserConfig{
			Headless:       v.GetBool("LIVEPRICE_HEADLESS"),
			NoSandbox:      v.GetBool("LIVEPRICE_NO_SANDBOX"),
			DisableDevShm:  v.GetBool("LIVEPRICE_DISABLE_DEV_SHM"),
			BrowserBin:     v.GetString("LIVEPRICE_BROWSER_BIN"),
			Stealth:        v.GetBool("LIVEPRICE_STEALTH"),
			AcceptLanguage: v.GetString("LIVEPRICE_ACCEPT_LANGUAGE"),

			BlockedResourceTypes: splitList(v.GetString("LIVEPRICE_BLOCK_RESOURCES")),
			BlockTrackers:        v.GetBool("LIVEPRICE_BLOCK_TRACKERS"),
		},
		Scraper: ScraperConfig{
			URLTemplate:    v.GetString("LIVEPRICE_URL_TEMPLATE"),
			PriceClass:     v.GetString("LIVEPRICE_PRICE_CLASS"),
			PriceTag:       v.GetString("LIVEPRICE_PRICE_TAG"),
			Timeout:        v.GetDuration("LIVEPRICE_SCRAPE_TIMEOUT"),
			ElementTimeout: v.GetDuration("LIVEPRICE_ELEMENT_TIMEOUT"),
		},
		Pool: PoolConfig{
			Size:    v.GetInt("LIVEPRICE_POOL_SIZE"),
			MaxUses: v.GetInt("LIVEPRICE_POOL_MAX_USES"),
			MaxAge:  v.GetDuration("LIVEPRICE_POOL_MAX_AGE"),
		},
		Auth: AuthConfig{
			Enabled: v.GetBool("LIVEPRICE_AUTH_ENABLED"),
			APIKeys: splitList(v.GetString("LIVEPRICE_API_KEYS")),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("LIVEPRICE_RATE_RPS"),
			Burst:             v.GetInt("LIVEPRICE_RATE_BURST"),
		},
		Log: LogConfig{
			Level:      strings.ToLower(v.GetString("LIVEPRICE_LOG_LEVEL")),
			Format:     strings.ToLower(v.GetString("LIVEPRICE_LOG_FORMAT")),
			OutputFile: v.GetString("LIVEPRICE_LOG_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LIVEPRICE_HOST", "127.0.0.1")
	v.SetDefault("LIVEPRICE_PORT", 3000)
	v.SetDefault("LIVEPRICE_MODE", "release")
	v.SetDefault("LIVEPRICE_SHUTDOWN_TIMEOUT", 5*time.Second)

	v.SetDefault("LIVEPRICE_DRIVER_MODE", ModeManaged)
	v.SetDefault("LIVEPRICE_DRIVER_ENDPOINT", "http://127.0.0.1:4444")
	v.SetDefault("LIVEPRICE_DRIVER_COMMAND", "")
	v.SetDefault("LIVEPRICE_DRIVER_READY_PATTERN", "(?i)listening on")
	v.SetDefault("LIVEPRICE_DRIVER_STARTUP_TIMEOUT", 30*time.Second)
	v.SetDefault("LIVEPRICE_DRIVER_STOP_GRACE", 5*time.Second)

	v.SetDefault("LIVEPRICE_HEADLESS", true)
	v.SetDefault("LIVEPRICE_NO_SANDBOX", true)
	v.SetDefault("LIVEPRICE_DISABLE_DEV_SHM", true)
	v.SetDefault("LIVEPRICE_BROWSER_BIN", "")
	v.SetDefault("LIVEPRICE_STEALTH", false)
	v.SetDefault("LIVEPRICE_ACCEPT_LANGUAGE", "en-US,en;q=0.9")
	v.SetDefault("LIVEPRICE_BLOCK_RESOURCES", "Image,Font,Media")
	v.SetDefault("LIVEPRICE_BLOCK_TRACKERS", true)

	v.SetDefault("LIVEPRICE_URL_TEMPLATE", "https://finance.yahoo.com/quote/"+TickerPlaceholder)
	v.SetDefault("LIVEPRICE_PRICE_CLASS", "livePrice")
	v.SetDefault("LIVEPRICE_PRICE_TAG", "span")
	v.SetDefault("LIVEPRICE_SCRAPE_TIMEOUT", 30*time.Second)
	v.SetDefault("LIVEPRICE_ELEMENT_TIMEOUT", 10*time.Second)

	v.SetDefault("LIVEPRICE_POOL_SIZE", 1)
	v.SetDefault("LIVEPRICE_POOL_MAX_USES", 200)
	v.SetDefault("LIVEPRICE_POOL_MAX_AGE", time.Hour)

	v.SetDefault("LIVEPRICE_AUTH_ENABLED", false)
	v.SetDefault("LIVEPRICE_API_KEYS", "")
	v.SetDefault("LIVEPRICE_RATE_RPS", 0.0)
	v.SetDefault("LIVEPRICE_RATE_BURST", 10)

	v.SetDefault("LIVEPRICE_LOG_LEVEL", "info")
	v.SetDefault("LIVEPRICE_LOG_FORMAT", "json")
	v.SetDefault("LIVEPRICE_LOG_FILE", "")
}

// Validate checks the invariants the rest of the program relies on.
func (c *Config) Validate() error {
	switch c.Driver.Mode {
	case ModeManaged, ModeRemote, ModeLaunch, ModeHTTP:
	default:
		return fmt.Errorf("config: unknown driver mode %q", c.Driver.Mode)
	}
	if c.Pool.Size < 1 {
		return fmt.Errorf("config: pool size must be >= 1, got %d", c.Pool.Size)
	}
	if !strings.Contains(c.Scraper.URLTemplate, TickerPlaceholder) {
		return fmt.Errorf("config: url template %q lacks %s", c.Scraper.URLTemplate, TickerPlaceholder)
	}
	if _, err := cascadia.Compile(c.Scraper.ContainerSelector()); err != nil {
		return fmt.Errorf("config: price class %q: %w", c.Scraper.PriceClass, err)
	}
	if _, err := cascadia.Compile(c.Scraper.PriceTag); err != nil {
		return fmt.Errorf("config: price tag %q: %w", c.Scraper.PriceTag, err)
	}
	if c.Scraper.Timeout <= 0 {
		return errors.New("config: scrape timeout must be positive")
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return errors.New("config: auth enabled without api keys")
	}
	return nil
}

// ContainerSelector is the CSS selector for the price container.
func (s ScraperConfig) ContainerSelector() string {
	return "." + s.PriceClass
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
