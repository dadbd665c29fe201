package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	// Forecast/bid endpoints are empty in defaults (no network calls without
	// explicit operator configuration), but Validate only checks bounds that
	// matter regardless of whether those endpoints are set.
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsInvertedSOCWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSOC = 0.8
	cfg.MaxSOC = 0.2
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsInitialSOCOutsideWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialSOC = 0.95
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveBatteryCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatteryCapacityKWh = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigFromReader_LayersOverDefaults(t *testing.T) {
	body := `{"battery_capacity_kwh": 20.0, "bus_timeout": "2s"}`
	cfg, err := LoadConfigFromReader(strings.NewReader(body))
	assert.NoError(t, err)
	assert.InDelta(t, 20.0, cfg.BatteryCapacityKWh, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.BusTimeout)
	// Untouched fields keep their defaults.
	assert.InDelta(t, 0.95, cfg.RoundTripEfficiency, 1e-9)
}

func TestLoadConfigFromReader_RejectsInvalidResult(t *testing.T) {
	body := `{"min_soc": 0.9, "max_soc": 0.1}`
	_, err := LoadConfigFromReader(strings.NewReader(body))
	assert.Error(t, err)
}

func TestMarshalJSON_RoundTripsDurationFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FastDRPeriod = 45 * time.Second

	data, err := cfg.MarshalJSON()
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"fast_dr_period":"45s"`)

	roundTripped, err := LoadConfigFromReader(strings.NewReader(string(data)))
	assert.NoError(t, err)
	assert.Equal(t, 45*time.Second, roundTripped.FastDRPeriod)
}
