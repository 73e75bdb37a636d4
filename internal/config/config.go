// Package config loads and validates exporter config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds exporter configuration loaded from the environment.
type Config struct {
	// BaseURL is the research platform API root (e.g. https://mydatahelps.org).
	BaseURL string `mapstructure:"MDH_BASE_URL"`
	// TokenURL is the OAuth2 token endpoint; also the aud claim of the signed assertion.
	TokenURL string `mapstructure:"MDH_TOKEN_URL"`
	// ServiceAccount is the service account name; iss and sub of the assertion.
	ServiceAccount string `mapstructure:"MDH_SERVICE_ACCOUNT"`
	// ProjectID is the project whose participants and device data are exported.
	ProjectID string `mapstructure:"MDH_PROJECT_ID"`
	// PrivateKeyPath is the PEM-encoded RSA private key file (inline PEM is also accepted).
	PrivateKeyPath string `mapstructure:"RKS_PRIVATE_KEY_PATH"`
	// AssertionTTL is the lifetime of the signed client assertion (e.g. "200s").
	AssertionTTL string `mapstructure:"ASSERTION_TTL"`
	// HTTPTimeout is the per-request timeout of the API client (e.g. "30s").
	HTTPTimeout string `mapstructure:"HTTP_TIMEOUT"`
	// PageSize is the participant listing page size; default 100.
	PageSize int `mapstructure:"PAGE_SIZE"`
	// FetchConcurrency bounds how many participants are fetched at once; 1 keeps requests sequential.
	FetchConcurrency int `mapstructure:"FETCH_CONCURRENCY"`

	// Env is the application environment (e.g. "development", "production"). Production switches logs to JSON.
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Telemetry (optional). When set, traces, metrics and diagnostics are exported via OTLP gRPC.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS for https OTLP endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated list of brokers; when set, records are written to Kafka instead of stdout.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the topic device data point records are written to.
	KafkaTopic string `mapstructure:"EXPORT_KAFKA_TOPIC"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("MDH_BASE_URL", "https://mydatahelps.org")
	v.SetDefault("MDH_TOKEN_URL", "https://mydatahelps.org/identityserver/connect/token")
	v.SetDefault("MDH_SERVICE_ACCOUNT", "")
	v.SetDefault("MDH_PROJECT_ID", "")
	v.SetDefault("RKS_PRIVATE_KEY_PATH", "")
	v.SetDefault("ASSERTION_TTL", "200s")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("PAGE_SIZE", 100)
	v.SetDefault("FETCH_CONCURRENCY", 1)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EXPORT_KAFKA_TOPIC", "mdh-device-points")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("config: MDH_BASE_URL must be set")
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	if cfg.PageSize == 0 {
		cfg.PageSize = 100
	}
	if cfg.PageSize < 1 || cfg.PageSize > 1000 {
		return nil, errors.New("config: PAGE_SIZE must be between 1 and 1000")
	}

	if cfg.FetchConcurrency == 0 {
		cfg.FetchConcurrency = 1
	}
	if cfg.FetchConcurrency < 1 || cfg.FetchConcurrency > 32 {
		return nil, errors.New("config: FETCH_CONCURRENCY must be between 1 and 32")
	}

	return &cfg, nil
}

// RequireCredentials reports an error naming the first missing setting needed to mint a token.
func (c *Config) RequireCredentials() error {
	switch {
	case c.ServiceAccount == "":
		return errors.New("config: MDH_SERVICE_ACCOUNT must be set")
	case c.TokenURL == "":
		return errors.New("config: MDH_TOKEN_URL must be set")
	case c.PrivateKeyPath == "":
		return errors.New("config: RKS_PRIVATE_KEY_PATH must be set")
	case c.ProjectID == "":
		return errors.New("config: MDH_PROJECT_ID must be set")
	}
	return nil
}

// AssertionLifetime parses AssertionTTL as a time.Duration. Returns 200s if unset or invalid.
func (c *Config) AssertionLifetime() time.Duration {
	d, err := time.ParseDuration(c.AssertionTTL)
	if err != nil || d <= 0 {
		return 200 * time.Second
	}
	return d
}

// RequestTimeout parses HTTPTimeout as a time.Duration. Returns 30s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means records go to stdout.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
