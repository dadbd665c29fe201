package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testParams() Params {
	p := DefaultParams()
	p.BatteryCapacityKWh = 13.5
	p.ReplacementCost = 4000
	return p
}

func TestAppendCycle_IgnoresSubThresholdDepth(t *testing.T) {
	s, err := New(testParams(), 0.5)
	assert.NoError(t, err)

	s.AppendCycle(0.01, 0.5, 25, time.Now())
	assert.Equal(t, 0, s.LedgerLen())
	assert.Equal(t, 0.0, s.EquivalentFullCycles())
}

func TestAppendCycle_RecordsSignificantDepth(t *testing.T) {
	s, err := New(testParams(), 0.5)
	assert.NoError(t, err)

	s.AppendCycle(0.3, 0.4, 22, time.Now())
	assert.Equal(t, 1, s.LedgerLen())
	assert.InDelta(t, 0.3, s.EquivalentFullCycles(), 1e-9)
}

func TestAppendCycle_ClampsDepthAboveOne(t *testing.T) {
	s, err := New(testParams(), 0.5)
	assert.NoError(t, err)

	s.AppendCycle(1.5, 0.5, 25, time.Now())
	ledger := s.Ledger()
	assert.Equal(t, 1, len(ledger))
	assert.InDelta(t, 1.0, ledger[0].Depth, 1e-9)
}

func TestAppendCycle_IgnoresNonFiniteDepth(t *testing.T) {
	s, err := New(testParams(), 0.5)
	assert.NoError(t, err)

	s.AppendCycle(math.NaN(), 0.5, 25, time.Now())
	s.AppendCycle(math.Inf(1), 0.5, 25, time.Now())
	assert.Equal(t, 0, s.LedgerLen())
}

func TestDegradationCostPerKWh_ZeroAtZeroDepth(t *testing.T) {
	p := testParams()
	assert.Equal(t, 0.0, p.DegradationCostPerKWh(0))
}

func TestDegradationCostPerKWh_PositiveAndIncreasingWithDepth(t *testing.T) {
	p := testParams()

	shallow := p.DegradationCostPerKWh(0.1)
	deep := p.DegradationCostPerKWh(0.8)

	assert.Greater(t, shallow, 0.0)
	assert.Greater(t, deep, shallow)
}

func TestDegradationCostPerKWh_ClampsAboveOne(t *testing.T) {
	p := testParams()
	atOne := p.DegradationCostPerKWh(1.0)
	aboveOne := p.DegradationCostPerKWh(2.0)
	assert.InDelta(t, atOne, aboveOne, 1e-9)
}
