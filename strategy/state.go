// Package strategy implements the bidding strategy engine: the degradation
// ledger, economics kernel, and bid planner that decide when and at what
// price the battery should bid stored energy into demand-response markets.
package strategy

import (
	"fmt"
	"sync"
	"time"
)

// Params holds the chemistry- and site-specific constants that parameterize
// the strategy. They are constant after initialization.
type Params struct {
	BatteryCapacityKWh  float64 // kWh, positive
	RoundTripEfficiency float64 // (0,1]
	MinSOC              float64 // [0,1]
	MaxSOC              float64 // [0,1], MinSOC < MaxSOC
	ReplacementCost     float64 // currency units, positive
	KDeltaE1            float64 // Millner exponential model coefficient
	KDeltaE2            float64 // Millner exponential model coefficient
	CyclesToEOL         float64 // reference cycles to 80% capacity
	RiskPremium         float64 // >= 0
	Alpha               float64 // Nash markup scaling
	Beta                float64 // Nash competition factor
	MaxGridDemand       float64 // positive normalizer
}

// DefaultParams returns the LFP chemistry defaults named in the spec.
func DefaultParams() Params {
	return Params{
		BatteryCapacityKWh:  0,
		RoundTripEfficiency: 0.95,
		MinSOC:              0.10,
		MaxSOC:              0.90,
		ReplacementCost:     0,
		KDeltaE1:            0.693,
		KDeltaE2:            3.31,
		CyclesToEOL:         5000,
		RiskPremium:         0,
		Alpha:               0.3,
		Beta:                0.2,
		MaxGridDemand:       1,
	}
}

// Validate checks that the parameters satisfy the invariants the rest of the
// package assumes. It is the strategy-level analogue of config.Config.Validate.
func (p Params) Validate() error {
	if p.BatteryCapacityKWh <= 0 {
		return fmt.Errorf("battery_capacity_kwh must be positive, got %f", p.BatteryCapacityKWh)
	}
	if p.RoundTripEfficiency <= 0 || p.RoundTripEfficiency > 1 {
		return fmt.Errorf("round_trip_efficiency must be in (0,1], got %f", p.RoundTripEfficiency)
	}
	if p.MinSOC < 0 || p.MaxSOC > 1 {
		return fmt.Errorf("min_soc/max_soc must be within [0,1], got [%f,%f]", p.MinSOC, p.MaxSOC)
	}
	if p.MinSOC >= p.MaxSOC {
		return fmt.Errorf("min_soc (%f) must be less than max_soc (%f)", p.MinSOC, p.MaxSOC)
	}
	if p.ReplacementCost <= 0 {
		return fmt.Errorf("replacement_cost must be positive, got %f", p.ReplacementCost)
	}
	if p.KDeltaE1 <= 0 || p.KDeltaE2 <= 0 {
		return fmt.Errorf("k_delta_e1/k_delta_e2 must be positive, got [%f,%f]", p.KDeltaE1, p.KDeltaE2)
	}
	if p.CyclesToEOL <= 0 {
		return fmt.Errorf("cycles_to_eol must be positive, got %f", p.CyclesToEOL)
	}
	if p.RiskPremium < 0 {
		return fmt.Errorf("risk_premium must be non-negative, got %f", p.RiskPremium)
	}
	if p.MaxGridDemand <= 0 {
		return fmt.Errorf("max_grid_demand must be positive, got %f", p.MaxGridDemand)
	}
	return nil
}

// Forecast is an immutable snapshot of the market data needed to price bids.
// It is replaced atomically by a whole-object swap (see Strategy.SetForecast).
type Forecast struct {
	PriceForecast      [24]float64 // $/kWh
	GridDemandForecast [24]float64 // kW
	NumCompetitors     int         // positive integer
	FetchedAt          time.Time
}

// CycleRecord is one entry in the append-only rainflow ledger.
type CycleRecord struct {
	Depth       float64 // (0,1]
	MeanSOC     float64 // [0,1]
	Temperature float64 // degrees C
	Timestamp   time.Time
}

// Strategy is the single process-wide instance of strategy state: battery
// parameters, the current SOC, the cycle ledger, the installed forecast, and
// the anti-flutter gate. It is shared by every dispatch task and guarded by
// mu for concurrent access, the way the teacher's MinerScheduler guards its
// own state with a sync.RWMutex.
type Strategy struct {
	mu sync.RWMutex

	params Params

	currentSOC           float64
	equivalentFullCycles float64
	ledger               []CycleRecord

	forecast *Forecast

	lastDispatchTS time.Time
}

// New creates a Strategy with the given parameters and initial SOC. It
// returns an error if params are invalid or initialSOC falls outside
// [MinSOC, MaxSOC], so the caller can refuse to start (spec's "Fatal init"
// error kind).
func New(params Params, initialSOC float64) (*Strategy, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if initialSOC < params.MinSOC || initialSOC > params.MaxSOC {
		return nil, fmt.Errorf("initial_soc %f outside [min_soc, max_soc] = [%f, %f]", initialSOC, params.MinSOC, params.MaxSOC)
	}
	return &Strategy{
		params:     params,
		currentSOC: initialSOC,
		ledger:     make([]CycleRecord, 0, 16),
	}, nil
}

// Params returns a copy of the strategy's constant parameters.
func (s *Strategy) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// CurrentSOC returns the current (filtered) state of charge.
func (s *Strategy) CurrentSOC() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSOC
}

// EquivalentFullCycles returns the monotonically non-decreasing cycle count.
func (s *Strategy) EquivalentFullCycles() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.equivalentFullCycles
}

// LedgerLen returns the number of recorded cycles.
func (s *Strategy) LedgerLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ledger)
}

// Ledger returns a copy of the recorded cycles, for inspection/persistence.
func (s *Strategy) Ledger() []CycleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CycleRecord, len(s.ledger))
	copy(out, s.ledger)
	return out
}

// SetSOC updates the current SOC directly. Only task T1 (the SOC monitor)
// should call this; it is exported so the dispatch package can live outside
// this one while still holding the single-writer discipline spec.md §5
// requires.
func (s *Strategy) SetSOC(soc float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentSOC = soc
}

// Forecast returns the currently installed forecast snapshot, or nil if none
// has ever been installed.
func (s *Strategy) Forecast() *Forecast {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forecast
}

// SetForecast atomically replaces the forecast snapshot. Readers observe
// either the old or the new snapshot, never a half-updated one, because the
// pointer swap happens under the write lock and the Forecast itself is never
// mutated after installation.
func (s *Strategy) SetForecast(f *Forecast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecast = f
}

// LastDispatchTS returns the timestamp of the last permitted dispatch.
func (s *Strategy) LastDispatchTS() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDispatchTS
}

// SetLastDispatchTS resets the anti-flutter gate's timestamp.
func (s *Strategy) SetLastDispatchTS(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDispatchTS = t
}

// DispatchAllowed reports whether a new dispatch is permitted under the
// anti-flutter gate (spec.md §4.6 T1 step 4): at least gateInterval must have
// elapsed since the last permitted dispatch.
func (s *Strategy) DispatchAllowed(now time.Time, gateInterval time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastDispatchTS.IsZero() {
		return true
	}
	return now.Sub(s.lastDispatchTS) >= gateInterval
}
