package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFederationConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  BrokerConfig
		want bool
	}{
		{
			name: "fully configured",
			cfg: BrokerConfig{
				FederationEnabled: true,
				IdentityPoolID:    "pool-1",
				PoolProviderName:  "accounts.google.com",
			},
			want: true,
		},
		{
			name: "feature flag off",
			cfg: BrokerConfig{
				IdentityPoolID:   "pool-1",
				PoolProviderName: "accounts.google.com",
			},
			want: false,
		},
		{
			name: "empty pool id",
			cfg: BrokerConfig{
				FederationEnabled: true,
				PoolProviderName:  "accounts.google.com",
			},
			want: false,
		},
		{
			name: "placeholder pool id",
			cfg: BrokerConfig{
				FederationEnabled: true,
				IdentityPoolID:    PlaceholderIdentityPoolID,
				PoolProviderName:  "accounts.google.com",
			},
			want: false,
		},
		{
			name: "missing provider name",
			cfg: BrokerConfig{
				FederationEnabled: true,
				IdentityPoolID:    "pool-1",
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.IsFederationConfigured())
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "accounts.google.com", cfg.PoolProviderName)
	assert.Equal(t, PlaceholderIdentityPoolID, cfg.IdentityPoolID)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)

	// Out of the box, federation stays off until the placeholders are replaced.
	assert.False(t, cfg.IsFederationConfigured())
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("IDENTITY_POOL_ID", "pool-from-env")
	t.Setenv("FEDERATION_ENABLED", "true")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "pool-from-env", cfg.IdentityPoolID)
	assert.True(t, cfg.FederationEnabled)
	assert.Equal(t, 5, cfg.RateLimitPerMinute)
	assert.True(t, cfg.IsFederationConfigured())
}
