// Package config loads and validates the dispatch controller's
// configuration, grounded on the teacher's scheduler/config.go: a flat JSON
// struct, DefaultConfig/LoadConfig/LoadConfigFromReader, custom
// Marshal/UnmarshalJSON for time.Duration fields, and a Validate that runs
// before any task starts (spec.md §7's "Fatal init" error kind).
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Config is the full set of operator-tunable parameters named in spec.md §6.
type Config struct {
	// Battery parameters (strategy.Params, spec.md §3)
	BatteryCapacityKWh  float64 `json:"battery_capacity_kwh"`
	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
	MinSOC              float64 `json:"min_soc"`
	MaxSOC              float64 `json:"max_soc"`
	ReplacementCost     float64 `json:"replacement_cost"`
	KDeltaE1            float64 `json:"k_delta_e1"`
	KDeltaE2            float64 `json:"k_delta_e2"`
	CyclesToEOL         float64 `json:"cycles_to_eol"`
	RiskPremium         float64 `json:"risk_premium"`
	Alpha               float64 `json:"alpha"`
	Beta                float64 `json:"beta"`
	MaxGridDemand       float64 `json:"max_grid_demand"`
	InitialSOC          float64 `json:"initial_soc"`

	// Serial bus
	SerialDevice  string        `json:"serial_device"`
	SerialBaud    int           `json:"serial_baud"`
	SerialSlaveID int           `json:"serial_slave_id"`
	BusTimeout    time.Duration `json:"bus_timeout"`

	// Market data / forecast endpoint
	ForecastEndpoint string        `json:"forecast_endpoint"`
	ForecastTimeout  time.Duration `json:"forecast_timeout"`
	UserAgent        string        `json:"user_agent"`

	// Bid submission transport
	BidEndpoint string `json:"bid_endpoint"`

	// Ephemeris
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Location  string  `json:"location"` // timezone location string

	// Task periods
	SOCMonitorPeriod     time.Duration `json:"soc_monitor_period"`
	FastDRPeriod         time.Duration `json:"fast_dr_period"`
	DayAheadPeriod       time.Duration `json:"day_ahead_period"`
	ForecastRefreshPeriod time.Duration `json:"forecast_refresh_period"`

	AntiFlutterInterval time.Duration `json:"anti_flutter_interval"`
	ForecastStaleAfter   time.Duration `json:"forecast_stale_after"`

	// Ops surface
	HealthCheckPort int    `json:"health_check_port"` // 0 = disabled
	WebSocketPort   int    `json:"websocket_port"`    // 0 = disabled
	LogLevel        string `json:"log_level"`

	// Optional audit persistence (not required by the core, see persistence package)
	PostgresConnString string `json:"postgres_conn_string"`

	DryRun bool `json:"dry_run"`
}

// DefaultConfig returns a configuration with the spec's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		BatteryCapacityKWh:  13.5,
		RoundTripEfficiency: 0.95,
		MinSOC:              0.10,
		MaxSOC:              0.90,
		ReplacementCost:     4000,
		KDeltaE1:            0.693,
		KDeltaE2:            3.31,
		CyclesToEOL:         5000,
		RiskPremium:         0.05,
		Alpha:               0.3,
		Beta:                0.2,
		MaxGridDemand:       50000,
		InitialSOC:          0.5,

		SerialDevice:  "/dev/ttyUSB0",
		SerialBaud:    9600,
		SerialSlaveID: 1,
		BusTimeout:    time.Second,

		ForecastEndpoint: "",
		ForecastTimeout:  10 * time.Second,
		UserAgent:        "bess-bidder/1.0",

		BidEndpoint: "",

		Latitude:  40.7608,
		Longitude: -111.8910,
		Location:  "America/Denver",

		SOCMonitorPeriod:      time.Second,
		FastDRPeriod:          time.Second,
		DayAheadPeriod:        60 * time.Second,
		ForecastRefreshPeriod: 60 * time.Second,

		AntiFlutterInterval: time.Hour,
		ForecastStaleAfter:  time.Hour,

		HealthCheckPort: 0,
		WebSocketPort:   0,
		LogLevel:        "info",

		PostgresConnString: "",

		DryRun: false,
	}
}

// LoadConfig loads configuration from a JSON file on disk.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("config: failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader, layering it on
// top of DefaultConfig and validating the result.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a JSON file.
func (c *Config) SaveConfig(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("config: failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("config: failed to encode config JSON: %w", err)
	}
	return nil
}

// Validate checks every numeric bound spec.md §3 names, matching the
// teacher's exhaustive field-by-field Validate on scheduler.Config.
func (c *Config) Validate() error {
	if c.BatteryCapacityKWh <= 0 {
		return fmt.Errorf("battery_capacity_kwh must be positive, got %f", c.BatteryCapacityKWh)
	}
	if c.RoundTripEfficiency <= 0 || c.RoundTripEfficiency > 1 {
		return fmt.Errorf("round_trip_efficiency must be in (0,1], got %f", c.RoundTripEfficiency)
	}
	if c.MinSOC < 0 || c.MinSOC > 1 {
		return fmt.Errorf("min_soc must be between 0 and 1, got %f", c.MinSOC)
	}
	if c.MaxSOC < 0 || c.MaxSOC > 1 {
		return fmt.Errorf("max_soc must be between 0 and 1, got %f", c.MaxSOC)
	}
	if c.MinSOC >= c.MaxSOC {
		return fmt.Errorf("min_soc (%f) must be less than max_soc (%f)", c.MinSOC, c.MaxSOC)
	}
	if c.InitialSOC < c.MinSOC || c.InitialSOC > c.MaxSOC {
		return fmt.Errorf("initial_soc (%f) must be within [min_soc, max_soc] = [%f, %f]", c.InitialSOC, c.MinSOC, c.MaxSOC)
	}
	if c.ReplacementCost <= 0 {
		return fmt.Errorf("replacement_cost must be positive, got %f", c.ReplacementCost)
	}
	if c.KDeltaE1 <= 0 || c.KDeltaE2 <= 0 {
		return fmt.Errorf("k_delta_e1 and k_delta_e2 must be positive")
	}
	if c.CyclesToEOL <= 0 {
		return fmt.Errorf("cycles_to_eol must be positive, got %f", c.CyclesToEOL)
	}
	if c.RiskPremium < 0 {
		return fmt.Errorf("risk_premium must be non-negative, got %f", c.RiskPremium)
	}
	if c.MaxGridDemand <= 0 {
		return fmt.Errorf("max_grid_demand must be positive, got %f", c.MaxGridDemand)
	}
	if c.SerialDevice == "" {
		return fmt.Errorf("serial_device cannot be empty")
	}
	if c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", c.SerialBaud)
	}
	if c.BusTimeout <= 0 {
		return fmt.Errorf("bus_timeout must be greater than 0, got: %s", c.BusTimeout)
	}
	if c.ForecastTimeout <= 0 {
		return fmt.Errorf("forecast_timeout must be greater than 0, got: %s", c.ForecastTimeout)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}
	if c.SOCMonitorPeriod <= 0 {
		return fmt.Errorf("soc_monitor_period must be greater than 0, got: %s", c.SOCMonitorPeriod)
	}
	if c.FastDRPeriod <= 0 {
		return fmt.Errorf("fast_dr_period must be greater than 0, got: %s", c.FastDRPeriod)
	}
	if c.DayAheadPeriod <= 0 {
		return fmt.Errorf("day_ahead_period must be greater than 0, got: %s", c.DayAheadPeriod)
	}
	if c.ForecastRefreshPeriod <= 0 {
		return fmt.Errorf("forecast_refresh_period must be greater than 0, got: %s", c.ForecastRefreshPeriod)
	}
	if c.AntiFlutterInterval <= 0 {
		return fmt.Errorf("anti_flutter_interval must be greater than 0, got: %s", c.AntiFlutterInterval)
	}
	if c.HealthCheckPort < 0 || c.HealthCheckPort > 65535 {
		return fmt.Errorf("health_check_port must be between 0 and 65535, got: %d", c.HealthCheckPort)
	}
	if c.WebSocketPort < 0 || c.WebSocketPort > 65535 {
		return fmt.Errorf("websocket_port must be between 0 and 65535, got: %d", c.WebSocketPort)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling so time.Duration fields
// round-trip as Go duration strings instead of raw nanosecond integers,
// exactly as the teacher's scheduler.Config does.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		BusTimeout            string `json:"bus_timeout"`
		ForecastTimeout       string `json:"forecast_timeout"`
		SOCMonitorPeriod      string `json:"soc_monitor_period"`
		FastDRPeriod          string `json:"fast_dr_period"`
		DayAheadPeriod        string `json:"day_ahead_period"`
		ForecastRefreshPeriod string `json:"forecast_refresh_period"`
		AntiFlutterInterval   string `json:"anti_flutter_interval"`
		ForecastStaleAfter    string `json:"forecast_stale_after"`
	}{
		Alias:                 (*Alias)(c),
		BusTimeout:            c.BusTimeout.String(),
		ForecastTimeout:       c.ForecastTimeout.String(),
		SOCMonitorPeriod:      c.SOCMonitorPeriod.String(),
		FastDRPeriod:          c.FastDRPeriod.String(),
		DayAheadPeriod:        c.DayAheadPeriod.String(),
		ForecastRefreshPeriod: c.ForecastRefreshPeriod.String(),
		AntiFlutterInterval:   c.AntiFlutterInterval.String(),
		ForecastStaleAfter:    c.ForecastStaleAfter.String(),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling, parsing Go duration
// strings for every time.Duration field.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		BusTimeout            string `json:"bus_timeout"`
		ForecastTimeout       string `json:"forecast_timeout"`
		SOCMonitorPeriod      string `json:"soc_monitor_period"`
		FastDRPeriod          string `json:"fast_dr_period"`
		DayAheadPeriod        string `json:"day_ahead_period"`
		ForecastRefreshPeriod string `json:"forecast_refresh_period"`
		AntiFlutterInterval   string `json:"anti_flutter_interval"`
		ForecastStaleAfter    string `json:"forecast_stale_after"`
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	durations := []struct {
		raw string
		dst *time.Duration
		name string
	}{
		{aux.BusTimeout, &c.BusTimeout, "bus_timeout"},
		{aux.ForecastTimeout, &c.ForecastTimeout, "forecast_timeout"},
		{aux.SOCMonitorPeriod, &c.SOCMonitorPeriod, "soc_monitor_period"},
		{aux.FastDRPeriod, &c.FastDRPeriod, "fast_dr_period"},
		{aux.DayAheadPeriod, &c.DayAheadPeriod, "day_ahead_period"},
		{aux.ForecastRefreshPeriod, &c.ForecastRefreshPeriod, "forecast_refresh_period"},
		{aux.AntiFlutterInterval, &c.AntiFlutterInterval, "anti_flutter_interval"},
		{aux.ForecastStaleAfter, &c.ForecastStaleAfter, "forecast_stale_after"},
	}

	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

// String returns a pretty-printed JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
