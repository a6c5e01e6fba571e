package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. SHUTUBA_BASE_URL.
const EnvPrefix = "SHUTUBA"

// Output formats accepted by the fetch command.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatDual = "dual"
	// FormatAll writes the workbook plus CSV and JSON lines copies.
	FormatAll = "all"
)

// Config holds scraper, renderer and front end configuration.
type Config struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	OutputDir      string
	OutputFormat   string
	Label          string
	Zoom           int
	ListenAddr     string
	MetricsEnabled bool
	CacheTTL       time.Duration
	CacheSize      int
	Verbose        bool
}

// DefaultConfig returns the defaults for the public race site.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://race.netkeiba.com",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timeout:        15 * time.Second,
		OutputDir:      ".",
		OutputFormat:   FormatXLSX,
		Label:          "出馬表",
		Zoom:           165,
		ListenAddr:     ":8080",
		MetricsEnabled: true,
		CacheTTL:       10 * time.Minute,
		CacheSize:      32,
		Verbose:        false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch c.OutputFormat {
	case FormatXLSX, FormatCSV, FormatJSON, FormatDual, FormatAll:
	default:
		return fmt.Errorf("output format must be xlsx, csv, json, dual, or all")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if strings.TrimSpace(c.Label) == "" {
		return fmt.Errorf("label cannot be empty")
	}
	if c.Zoom < 10 || c.Zoom > 400 {
		return fmt.Errorf("zoom must be between 10 and 400")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}

	return nil
}

// Load builds a Config from defaults, an optional .env file, SHUTUBA_*
// environment variables and the given flags, in increasing precedence.
// Flag names map to keys directly ("base-url" reads SHUTUBA_BASE_URL).
func Load(flags *pflag.FlagSet) (*Config, error) {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	def := DefaultConfig()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("base-url", def.BaseURL)
	v.SetDefault("user-agent", def.UserAgent)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("output-dir", def.OutputDir)
	v.SetDefault("format", def.OutputFormat)
	v.SetDefault("label", def.Label)
	v.SetDefault("zoom", def.Zoom)
	v.SetDefault("listen", def.ListenAddr)
	v.SetDefault("metrics", def.MetricsEnabled)
	v.SetDefault("cache-ttl", def.CacheTTL)
	v.SetDefault("cache-size", def.CacheSize)
	v.SetDefault("verbose", def.Verbose)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := &Config{
		BaseURL:        strings.TrimRight(v.GetString("base-url"), "/"),
		UserAgent:      v.GetString("user-agent"),
		Timeout:        v.GetDuration("timeout"),
		OutputDir:      v.GetString("output-dir"),
		OutputFormat:   strings.ToLower(v.GetString("format")),
		Label:          v.GetString("label"),
		Zoom:           v.GetInt("zoom"),
		ListenAddr:     v.GetString("listen"),
		MetricsEnabled: v.GetBool("metrics"),
		CacheTTL:       v.GetDuration("cache-ttl"),
		CacheSize:      v.GetInt("cache-size"),
		Verbose:        v.GetBool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
