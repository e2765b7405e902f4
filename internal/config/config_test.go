package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "EUR", cfg.Payment.Currency)
	assert.Equal(t, 10, cfg.Dispatch.MaxCandidates)
	assert.InDelta(t, 0.05, cfg.Pricing.ServiceFeeRate, 1e-9)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DASHR_HTTP_ADDR", ":9999")
	t.Setenv("DASHR_DISPATCH_MAX_RADIUS_KM", "25")

	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.InDelta(t, 25.0, cfg.Dispatch.MaxRadiusKm, 1e-9)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashr.yaml")
	content := "pricing:\n  service_fee_rate: 0.1\n  service_fee_min: 50\n  service_fee_max: 900\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, int64(50), cfg.Pricing.ServiceFeeMin)
	assert.Equal(t, int64(900), cfg.Pricing.ServiceFeeMax)
}

func TestValidateRejectsBadPricing(t *testing.T) {
	t.Setenv("DASHR_PRICING_SERVICE_FEE_MIN", "600")

	_, err := load(viper.New(), "")
	require.Error(t, err)
}

func TestRadiusForRound(t *testing.T) {
	d := DispatchConfig{BaseRadiusKm: 3, RadiusStepKm: 2, MaxRadiusKm: 8}
	assert.InDelta(t, 3.0, d.RadiusForRound(0), 1e-9)
	assert.InDelta(t, 7.0, d.RadiusForRound(2), 1e-9)
	assert.InDelta(t, 8.0, d.RadiusForRound(3), 1e-9)
	assert.InDelta(t, 8.0, d.RadiusForRound(10), 1e-9)
}
