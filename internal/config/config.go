package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            string          `yaml:"port"`
	Debug           bool            `yaml:"debug"`
	DatabaseURL     string          `yaml:"database_url"`
	AdminSecret     string          `yaml:"admin_secret"`
	TrustedProxies  []string        `yaml:"trusted_proxies"`
	RateLimitAdmin  RateLimitConfig `yaml:"rate_limit_admin"`
	RateLimitClient RateLimitConfig `yaml:"rate_limit_client"`
	Release         ReleaseInfo     `yaml:"release"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Enabled           bool          `yaml:"enabled"`
	CacheSize         int           `yaml:"cache_size"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

// ReleaseInfo is the static manifest served on GET /api/version so clients
// can self-update.
type ReleaseInfo struct {
	Version     string   `yaml:"version" json:"version"`
	DownloadURL string   `yaml:"download_url" json:"download_url"`
	Changelog   []string `yaml:"changelog" json:"changelog"`
	Required    bool     `yaml:"required" json:"required"`
	MinVersion  string   `yaml:"min_version" json:"min_version"`
	SizeMB      float64  `yaml:"size_mb" json:"size_mb,omitempty"`
	ReleaseDate string   `yaml:"release_date" json:"release_date,omitempty"`
}

func Load() (Config, error) {
	return LoadFromPath("config.yaml")
}

func LoadFromPath(path string) (Config, error) {
	cfg := NewDefaultConfig()

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	cfg.LoadEnv()

	if err := cfg.ensureAdminSecret(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func NewDefaultConfig() Config {
	return Config{
		Port:  "8080",
		Debug: false,
		RateLimitAdmin: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			Enabled:           true,
			CacheSize:         5000,
			CacheTTL:          1 * time.Hour,
		},
		// Client activations are rare per device; roughly 10 requests per
		// minute with a burst allowance matches the old fixed window.
		RateLimitClient: RateLimitConfig{
			RequestsPerSecond: 0.17,
			Burst:             10,
			Enabled:           true,
			CacheSize:         5000,
			CacheTTL:          1 * time.Hour,
		},
		Release: ReleaseInfo{
			Version:    "1.1.0",
			MinVersion: "1.0.0",
		},
	}
}

func (c *Config) LoadEnv() {
	if envPort := os.Getenv("PORT"); envPort != "" {
		c.Port = envPort
	}
	if envDB := os.Getenv("DATABASE_URL"); envDB != "" {
		c.DatabaseURL = envDB
	}
	if envSecret := os.Getenv("ADMIN_SECRET"); envSecret != "" {
		c.AdminSecret = envSecret
	}
}

func (c *Config) ensureAdminSecret() error {
	if c.AdminSecret != "" {
		return nil
	}

	slog.Warn("Admin Secret not found, generating a random ephemeral one. THIS SECRET WILL BE LOST ON RESTART.")

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("failed to generate admin secret: %w", err)
	}
	c.AdminSecret = base64.StdEncoding.EncodeToString(secretBytes)

	return nil
}
