package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Placeholder values shipped in example configuration. Federation is treated
// as unconfigured while any of them is still in place.
const (
	PlaceholderIdentityPoolID = "REPLACE_WITH_IDENTITY_POOL_ID"
	PlaceholderClientID       = "REPLACE_WITH_CLIENT_ID"
)

// BrokerConfig holds all configuration for the identity broker.
// Tags use mapstructure for Viper unmarshalling.
type BrokerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	// Google IdP settings. GoogleClientID is the audience every incoming
	// identity token must carry.
	GoogleClientID string `mapstructure:"GOOGLE_CLIENT_ID"`

	// AllowedEmailDomains optionally restricts federated sign-in to a set of
	// hosted domains. Empty means any domain.
	AllowedEmailDomains []string `mapstructure:"ALLOWED_EMAIL_DOMAINS"`

	// Identity pool settings.
	IdentityPoolID     string `mapstructure:"IDENTITY_POOL_ID"`
	PoolProviderName   string `mapstructure:"POOL_PROVIDER_NAME"`
	PoolClientID       string `mapstructure:"POOL_CLIENT_ID"`
	PoolAPIEndpoint    string `mapstructure:"POOL_API_ENDPOINT"`
	PoolAPITokenURL    string `mapstructure:"POOL_API_TOKEN_URL"`
	PoolAPIClientID    string `mapstructure:"POOL_API_CLIENT_ID"`
	PoolAPISecret      string `mapstructure:"POOL_API_SECRET"`
	FederationEnabled  bool   `mapstructure:"FEDERATION_ENABLED"`

	// Rate limiting (per-identity fixed window).
	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
}

// IsFederationConfigured reports whether the pool side of federation is usable:
// a real (non-placeholder) identity pool id, a target provider name, and the
// feature flag switched on. The exchanger refuses to make network calls while
// this is false.
func (c *BrokerConfig) IsFederationConfigured() bool {
	if !c.FederationEnabled {
		return false
	}
	if c.IdentityPoolID == "" || c.IdentityPoolID == PlaceholderIdentityPoolID {
		return false
	}
	return c.PoolProviderName != ""
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*BrokerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/reelrooms-identity/")
	v.AddConfigPath("$HOME/.reelrooms-identity")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/reelrooms_identity_dev")
	v.SetDefault("MONGO_DB_NAME", "reelrooms_identity_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("ALLOWED_EMAIL_DOMAINS", []string{})
	v.SetDefault("POOL_PROVIDER_NAME", "accounts.google.com")
	v.SetDefault("POOL_API_ENDPOINT", "")
	v.SetDefault("POOL_API_TOKEN_URL", "")
	v.SetDefault("POOL_API_CLIENT_ID", "")
	v.SetDefault("POOL_API_SECRET", "")
	v.SetDefault("IDENTITY_POOL_ID", PlaceholderIdentityPoolID)
	v.SetDefault("POOL_CLIENT_ID", PlaceholderClientID)
	v.SetDefault("FEDERATION_ENABLED", false)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 30)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we fall back to env vars and defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg BrokerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
