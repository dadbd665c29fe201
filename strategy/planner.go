package strategy

import "math"

// Bid is a priced capacity offer. A declined participation is represented as
// Capacity == 0 && Price == 0 (spec invariant I4).
type Bid struct {
	Capacity float64 // kWh
	Price    float64 // $/kWh
}

// FastDispatchBid computes the fast-dispatch bid per spec.md §4.3:
//
//  1. available_kwh = (current_soc - min_soc) * capacity
//  2. delta = available_kwh / capacity (hypothetical full-use DoD)
//  3. o = opportunity_cost(local forecast from now)
//  4. MC = marginal_cost(current_hour, delta, o)
//  5. p_nash = nash_price(p_m, D, N)
//  6. if p_nash > MC: capacity = min(available_kwh, capacity*tau*eff), price = p_nash
//     else: (0, 0)
//
// localForecast is the slice of forward prices starting at the current hour,
// used to compute the opportunity cost of holding the energy instead.
func (s *Strategy) FastDispatchBid(currentHour int, marketPrice, gridDemand float64, numCompetitors int, tauHours float64, localForecast []float64) Bid {
	p := s.Params()
	soc := s.CurrentSOC()

	availableKWh := (soc - p.MinSOC) * p.BatteryCapacityKWh
	if availableKWh < 0 {
		availableKWh = 0
	}
	delta := availableKWh / p.BatteryCapacityKWh

	o := OpportunityCost(localForecast)
	mc := marginalCost(p, currentHour, delta, o)
	pNash := nashPrice(p, marketPrice, gridDemand, numCompetitors)

	if pNash <= mc {
		return Bid{}
	}

	capacity := math.Min(availableKWh, p.BatteryCapacityKWh*tauHours*p.RoundTripEfficiency)
	if capacity <= 0 {
		return Bid{}
	}

	return Bid{Capacity: capacity, Price: pNash}
}

// DayAheadAllocation computes the 24-hour capacity/price schedule per
// spec.md §4.3. prices and peakMask must each have length 24; peakMask[h]
// is true when hour h is a utility-designated peak hour (or the fallback
// derived by DerivePeakMask when the utility does not supply one).
func (s *Strategy) DayAheadAllocation(prices [24]float64, peakMask [24]bool) (capacity, price [24]float64) {
	p := s.Params()

	const gamma = 2.0

	var revenue [24]float64
	for h := 0; h < 24; h++ {
		mult := 1.0
		if peakMask[h] {
			mult = 1.2
		}
		pr := prices[h]
		if !isFinite(pr) {
			pr = 0
		}
		revenue[h] = pr * mult
	}

	var weights [24]float64
	var weightSum float64
	for h := 0; h < 24; h++ {
		w := math.Exp(gamma * revenue[h])
		weights[h] = w
		weightSum += w
	}

	energyBudget := p.BatteryCapacityKWh * (p.MaxSOC - p.MinSOC)

	for h := 0; h < 24; h++ {
		weight := weights[h] / weightSum
		cap := energyBudget * weight
		capacity[h] = cap

		delta := cap / p.BatteryCapacityKWh
		rotated := rotate(prices, h)
		o := OpportunityCost(rotated[:])
		mc := marginalCost(p, h, delta, o)

		priceMult := 1.05
		mcMult := 1.10
		if peakMask[h] {
			priceMult = 1.15
			mcMult = 1.20
		}

		pr := prices[h]
		if !isFinite(pr) {
			pr = 0
		}

		byPrice := pr * priceMult
		byMC := mc * mcMult
		price[h] = math.Max(byPrice, byMC)
	}

	return capacity, price
}

// rotate returns a cyclic rotation of a 24-element forecast starting at
// index start, e.g. rotate(p, 2) = [p[2], p[3], ..., p[23], p[0], p[1]].
func rotate(p [24]float64, start int) [24]float64 {
	var out [24]float64
	for i := 0; i < 24; i++ {
		out[i] = p[(start+i)%24]
	}
	return out
}

// DerivePeakMask ranks the 24 hourly prices descending and marks the top 6 as
// peak hours, per spec.md §4.3's peak-hour derivation used when the utility
// does not supply a mask. Ties at the 6th-place threshold default to
// inclusion, so more than 6 hours may be marked when there is a tie at the
// boundary.
func DerivePeakMask(prices [24]float64) [24]bool {
	sorted := make([]float64, 24)
	copy(sorted, prices[:])

	// Simple descending insertion sort; 24 elements, clarity over speed.
	for i := 1; i < len(sorted); i++ {
		v := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] < v {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = v
	}

	threshold := sorted[5]

	var mask [24]bool
	for h := 0; h < 24; h++ {
		if prices[h] >= threshold {
			mask[h] = true
		}
	}
	return mask
}
