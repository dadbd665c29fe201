package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func flatForecast(v float64) [24]float64 {
	var f [24]float64
	for i := range f {
		f[i] = v
	}
	return f
}

func TestFastDispatchBid_DeclinesAtMinSOC(t *testing.T) {
	p := testParams()
	s, err := New(p, p.MinSOC)
	assert.NoError(t, err)

	bid := s.FastDispatchBid(14, 0.30, 10000, 2, 1.0, []float64{0.30, 0.28, 0.25})
	assert.Equal(t, Bid{}, bid)
}

func TestFastDispatchBid_DeclinesWhenNashAtOrBelowMarginalCost(t *testing.T) {
	p := testParams()
	s, err := New(p, 0.5)
	assert.NoError(t, err)

	// Near-zero market price keeps p_nash below marginal cost regardless of
	// markup, so no bid should be produced.
	bid := s.FastDispatchBid(2, 0.001, 0, 0, 1.0, []float64{0.001})
	assert.Equal(t, 0.0, bid.Capacity)
	assert.Equal(t, 0.0, bid.Price)
}

func TestFastDispatchBid_ProducesPositiveBidWhenProfitable(t *testing.T) {
	p := testParams()
	s, err := New(p, 0.9)
	assert.NoError(t, err)

	bid := s.FastDispatchBid(14, 2.00, p.MaxGridDemand, 1, 1.0, []float64{2.00, 1.80, 1.60})
	assert.Greater(t, bid.Capacity, 0.0)
	assert.Greater(t, bid.Price, 0.0)
}

func TestFastDispatchBid_CapacityNeverExceedsAvailableEnergy(t *testing.T) {
	p := testParams()
	s, err := New(p, 0.9)
	assert.NoError(t, err)

	available := (0.9 - p.MinSOC) * p.BatteryCapacityKWh
	bid := s.FastDispatchBid(14, 5.00, p.MaxGridDemand, 1, 100.0, []float64{5.00})
	assert.LessOrEqual(t, bid.Capacity, available+1e-9)
}

func TestDayAheadAllocation_EnergyBudgetExactlyConserved(t *testing.T) {
	p := testParams()
	s, err := New(p, 0.5)
	assert.NoError(t, err)

	prices := flatForecast(0.20)
	prices[14] = 0.50
	mask := DerivePeakMask(prices)

	capacity, _ := s.DayAheadAllocation(prices, mask)

	var total float64
	for _, c := range capacity {
		total += c
	}
	want := p.BatteryCapacityKWh * (p.MaxSOC - p.MinSOC)
	assert.InDelta(t, want, total, 1e-6)
}

func TestDayAheadAllocation_NoHourReceivesZeroWeight(t *testing.T) {
	p := testParams()
	s, err := New(p, 0.5)
	assert.NoError(t, err)

	prices := flatForecast(0.20)
	prices[3] = 5.00
	mask := DerivePeakMask(prices)

	capacity, _ := s.DayAheadAllocation(prices, mask)
	for h, c := range capacity {
		assert.Greater(t, c, 0.0, "hour %d should receive nonzero capacity", h)
	}
}

func TestDayAheadAllocation_UniformUnderFlatPrices(t *testing.T) {
	p := testParams()
	s, err := New(p, 0.5)
	assert.NoError(t, err)

	prices := flatForecast(0.25)
	mask := DerivePeakMask(prices) // all-true under a flat profile (ties-include)

	capacity, _ := s.DayAheadAllocation(prices, mask)
	first := capacity[0]
	for h, c := range capacity {
		assert.InDelta(t, first, c, 1e-9, "hour %d should match hour 0 under flat prices", h)
	}
}

func TestDerivePeakMask_AllHoursTrueUnderFlatPrices(t *testing.T) {
	prices := flatForecast(0.30)
	mask := DerivePeakMask(prices)
	for h, m := range mask {
		assert.True(t, m, "hour %d should be peak under flat/tied prices", h)
	}
}

func TestDerivePeakMask_MarksExactlySixWithDistinctPrices(t *testing.T) {
	var prices [24]float64
	for i := range prices {
		prices[i] = float64(i) // strictly increasing, no ties
	}
	mask := DerivePeakMask(prices)

	count := 0
	for _, m := range mask {
		if m {
			count++
		}
	}
	assert.Equal(t, 6, count)
	// the six highest-numbered hours (18..23) should be marked
	for h := 18; h < 24; h++ {
		assert.True(t, mask[h], "hour %d should be peak", h)
	}
}

func TestRotate_CyclicallyShiftsForecast(t *testing.T) {
	var p [24]float64
	for i := range p {
		p[i] = float64(i)
	}
	rotated := rotate(p, 2)
	assert.Equal(t, 2.0, rotated[0])
	assert.Equal(t, 23.0, rotated[21])
	assert.Equal(t, 0.0, rotated[22])
	assert.Equal(t, 1.0, rotated[23])
}
