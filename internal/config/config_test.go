package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":      "postgres://localhost/quotes",
		"REDIS_URL":         "redis://localhost:6379/0",
		"QUOTE_STORE":       "",
		"CAMPAIGNS_SOURCE":  "",
		"TAX_ENABLED":       "",
		"TAX_RATE":          "",
		"RECONCILE_TIMEOUT": "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.QuoteStore)
	require.True(t, cfg.TaxEnabled)
	require.Equal(t, "0.255", cfg.TaxRate.String())
	require.Equal(t, "29.5", cfg.StonePackagePrice.String())
	require.Equal(t, "20", cfg.StonePackageKg.String())
	require.Equal(t, 5*time.Second, cfg.ReconcileTimeout)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadTaxDisabled(t *testing.T) {
	env := baseEnv()
	env["TAX_ENABLED"] = "false"
	env["TAX_RATE"] = "0.24"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.True(t, cfg.EffectiveTaxRate().IsZero())
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	env := baseEnv()
	env["QUOTE_STORE"] = "mongo"
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadMemoryStoreWithFileCampaigns(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	env["QUOTE_STORE"] = "memory"
	env["CAMPAIGNS_SOURCE"] = "file"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.QuoteStore)
}
