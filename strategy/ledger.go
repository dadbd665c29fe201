package strategy

import (
	"math"
	"time"
)

// minRecordedDepth is the sub-threshold motion cutoff: cycles shallower than
// this are not fatigue-significant and are silently dropped (spec invariant:
// every recorded cycle has depth > 0.01).
const minRecordedDepth = 0.01

// AppendCycle records a charge/discharge swing of the given depth, mean SOC,
// and temperature. Swings at or below minRecordedDepth are ignored; they are
// measurement jitter, not cycling. Temperature is recorded for future
// extension but does not affect cost in the baseline model (spec.md §4.1).
func (s *Strategy) AppendCycle(depth, meanSOC, temperature float64, ts time.Time) {
	if !isFinite(depth) || depth <= minRecordedDepth {
		return
	}
	if depth > 1 {
		depth = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, CycleRecord{
		Depth:       depth,
		MeanSOC:     meanSOC,
		Temperature: temperature,
		Timestamp:   ts,
	})
	s.equivalentFullCycles += depth
}

// DegradationCostPerKWh returns the incremental replacement-cost contribution
// per delivered kWh for a single discharge of the given depth of discharge,
// using the Millner exponential stress model:
//
//	S(d)  = k1 * d * exp(k2 * d)
//	N(d)  = cycles_to_eol / S(d)
//	Cdeg  = (replacement_cost / capacity_kwh) * (d / N(d))
//
// depthOfDischarge == 0 yields 0 cost; values above 1 are clamped to 1 before
// evaluation (spec.md §4.1 edge policy).
func (p Params) DegradationCostPerKWh(depthOfDischarge float64) float64 {
	if !isFinite(depthOfDischarge) || depthOfDischarge <= 0 {
		return 0
	}
	d := depthOfDischarge
	if d > 1 {
		d = 1
	}

	stress := p.KDeltaE1 * d * math.Exp(p.KDeltaE2*d)
	if stress <= 0 {
		return 0
	}
	cyclesAtDoD := p.CyclesToEOL / stress

	return (p.ReplacementCost / p.BatteryCapacityKWh) * (d / cyclesAtDoD)
}

// DegradationCostPerKWh is a convenience wrapper over the strategy's own
// parameters, for callers that hold a *Strategy rather than a bare Params.
func (s *Strategy) DegradationCostPerKWh(depthOfDischarge float64) float64 {
	return s.Params().DegradationCostPerKWh(depthOfDischarge)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
