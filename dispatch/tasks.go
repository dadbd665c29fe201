package dispatch

import (
	"context"
	"math"
	"time"

	"github.com/devskill-org/bess-bidder/battery"
	"github.com/devskill-org/bess-bidder/ephemeris"
	"github.com/devskill-org/bess-bidder/persistence"
	"github.com/devskill-org/bess-bidder/strategy"
)

// cycleDepthThreshold mirrors strategy's sub-threshold cutoff for deciding
// whether a SOC movement is worth recording; kept here too so T1 doesn't
// need a round trip into strategy internals to decide whether to log.
const cycleDepthThreshold = 0.01

// runSOCMonitor is task T1, per spec.md §4.6: read raw SOC/temperature,
// filter the SOC, record a ledger cycle on significant movement, enforce the
// SOC safety latch, and otherwise leave the anti-flutter gate's timestamp
// alone (only a successful dispatch, in runFastDRLoop, resets it).
func (c *Controller) runSOCMonitor(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, c.cfg.BusTimeout)
	defer cancel()

	rawSOC, err := c.bat.ReadSOC(tickCtx)
	if err != nil {
		c.logger.Printf("SOC monitor: read SOC failed: %v", err)
		return
	}
	if math.IsNaN(rawSOC) || math.IsInf(rawSOC, 0) {
		c.logger.Printf("SOC monitor: non-finite SOC reading discarded")
		return
	}

	temp, err := c.bat.ReadTemperatureC(tickCtx)
	if err != nil || math.IsNaN(temp) || math.IsInf(temp, 0) {
		temp = battery.DefaultTemperatureC
	}

	filtered := c.socFilter.Push(rawSOC)
	c.strategy.SetSOC(filtered)

	c.mu.Lock()
	prev := c.previousSOC
	c.previousSOC = filtered
	c.mu.Unlock()

	delta := math.Abs(filtered - prev)
	if delta > cycleDepthThreshold {
		mean := (prev + filtered) / 2
		now := c.clockNow()
		c.strategy.AppendCycle(delta, mean, temp, now)
		if c.store != nil {
			rec := strategy.CycleRecord{Depth: delta, MeanSOC: mean, Temperature: temp, Timestamp: now}
			go c.store.SaveCycle(context.Background(), rec)
		}
	}

	params := c.strategy.Params()
	if filtered < params.MinSOC {
		if err := c.bat.WriteDREnable(tickCtx, false); err != nil {
			c.logger.Printf("SOC monitor: SAFETY LATCH write DR-enable=false failed: %v", err)
		} else {
			c.logger.Printf("SOC monitor: SAFETY LATCH soc %.4f below min_soc %.4f, DR disabled", filtered, params.MinSOC)
		}
		c.setState(StateIdle)
	}
}

// runFastDRLoop is task T2, per spec.md §4.6: read DR status, drive the
// dispatch state machine, and when the planner emits a profitable bid,
// actuate the discharge rate and submit the bid. Only this task resets the
// anti-flutter gate's timestamp (spec.md §5's ambiguity resolved in
// DESIGN.md: T1 reads/drives state, T2 is the sole writer of last_dispatch_ts).
func (c *Controller) runFastDRLoop(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, c.cfg.BusTimeout)
	defer cancel()

	now := c.clockNow()
	filtered := c.strategy.CurrentSOC()
	params := c.strategy.Params()

	if filtered < params.MinSOC {
		c.setState(StateIdle)
		return
	}

	drActive, err := c.bat.ReadDRStatus(tickCtx)
	if err != nil {
		c.logger.Printf("fast-DR loop: read DR status failed: %v", err)
		return
	}

	state := c.State()

	if !drActive {
		if state == StateArmed {
			c.setState(StateIdle)
		}
		return
	}

	if state == StateIdle {
		c.setState(StateArmed)
		state = StateArmed
	}

	switch state {
	case StateCooldown:
		if now.Sub(c.strategy.LastDispatchTS()) >= c.cfg.AntiFlutterInterval {
			c.setState(StateIdle)
		}
		return
	case StateArmed:
		if !c.strategy.DispatchAllowed(now, c.cfg.AntiFlutterInterval) {
			return
		}

		forecast := c.strategy.Forecast()
		var marketPrice, demand float64
		var numCompetitors int
		var localForecast []float64
		hour := now.Hour()
		if forecast != nil {
			marketPrice = forecast.PriceForecast[hour]
			demand = forecast.GridDemandForecast[hour]
			numCompetitors = forecast.NumCompetitors
			localForecast = rotatePrices(forecast.PriceForecast, hour)
		}

		bid := c.strategy.FastDispatchBid(hour, marketPrice, demand, numCompetitors, 1.0, localForecast)
		if bid.Capacity <= 0 {
			c.setState(StateIdle)
			return
		}

		c.setState(StateDispatching)

		rate := int(math.Round(bid.Capacity * 100))
		if err := c.bat.WriteDischargeRate(tickCtx, rate); err != nil {
			c.logger.Printf("fast-DR loop: write discharge rate failed: %v", err)
			c.setState(StateArmed)
			return
		}

		c.strategy.SetLastDispatchTS(now)
		c.setState(StateCooldown)

		if c.bids != nil {
			if err := c.bids.SubmitFastDispatch(ctx, bid.Capacity, bid.Price); err != nil {
				c.logger.Printf("fast-DR loop: bid submission failed: %v", err)
			}
		}
		if c.store != nil {
			rec := persistence.BidRecord{SubmittedAt: now, Hour: -1, Capacity: bid.Capacity, Price: bid.Price}
			go c.store.SaveBid(context.Background(), rec)
		}

		c.logger.Printf("fast-DR loop: dispatched capacity=%.4f kWh price=%.4f $/kWh", bid.Capacity, bid.Price)
	}
}

func rotatePrices(p [24]float64, start int) []float64 {
	out := make([]float64, 24)
	for i := 0; i < 24; i++ {
		out[i] = p[(start+i)%24]
	}
	return out
}

// runDayAheadLoop is task T3, per spec.md §4.6: exactly once per day, in the
// 02:00 local hour, refresh market data, derive the peak mask, allocate
// day-ahead capacity, and submit each non-zero hourly bid. It latches "done
// today" per the resolution in DESIGN.md of the scheduler-jitter open
// question, rather than matching an exact minute.
func (c *Controller) runDayAheadLoop(ctx context.Context) {
	now := c.clockNow()

	c.mu.Lock()
	today := now.Format("2006-01-02")
	alreadyDone := c.dayAheadDoneDate == today
	c.mu.Unlock()

	if now.Hour() != 2 || alreadyDone || c.mkt == nil {
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, c.cfg.ForecastTimeout)
	defer cancel()

	forecast, err := c.mkt.Refresh(tickCtx)
	if err != nil {
		c.logger.Printf("day-ahead loop: market refresh failed: %v", err)
		return
	}
	c.strategy.SetForecast(forecast)

	c.mu.Lock()
	c.lastForecastRefresh = now
	c.dayAheadDoneDate = today
	c.mu.Unlock()

	peakMask := strategy.DerivePeakMask(forecast.PriceForecast)
	capacity, price := c.strategy.DayAheadAllocation(forecast.PriceForecast, peakMask)

	daylightMask := ephemeris.DaylightHours(now, c.cfg.Latitude, c.cfg.Longitude)
	peakDaylightHours := 0
	for h := 0; h < 24; h++ {
		if peakMask[h] && daylightMask[h] {
			peakDaylightHours++
		}
	}
	c.logger.Printf("day-ahead loop: %d of the day's designated peak hours overlap daylight at lat=%.4f lon=%.4f", peakDaylightHours, c.cfg.Latitude, c.cfg.Longitude)

	for h := 0; h < 24; h++ {
		if capacity[h] <= 0 {
			continue
		}
		if c.bids != nil {
			if err := c.bids.SubmitDayAhead(ctx, h, capacity[h], price[h]); err != nil {
				c.logger.Printf("day-ahead loop: bid submission for hour %d failed: %v", h, err)
			}
		}
		if c.store != nil {
			rec := persistence.BidRecord{SubmittedAt: now, Hour: h, Capacity: capacity[h], Price: price[h]}
			go c.store.SaveBid(context.Background(), rec)
		}
	}

	c.logger.Printf("day-ahead loop: submitted allocation for %s", today)
}

// runForecastRefresh is task T4, per spec.md §4.6: refresh market data once
// an hour has elapsed since the last successful refresh; a failure simply
// keeps the prior snapshot in force.
func (c *Controller) runForecastRefresh(ctx context.Context) {
	now := c.clockNow()

	c.mu.Lock()
	last := c.lastForecastRefresh
	c.mu.Unlock()

	if c.mkt == nil || (!last.IsZero() && now.Sub(last) < time.Hour) {
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, c.cfg.ForecastTimeout)
	defer cancel()

	forecast, err := c.mkt.Refresh(tickCtx)
	if err != nil {
		c.logger.Printf("forecast refresh: stale forecast, refresh failed: %v", err)
		return
	}

	c.strategy.SetForecast(forecast)
	c.mu.Lock()
	c.lastForecastRefresh = now
	c.mu.Unlock()

	c.logger.Printf("forecast refresh: installed new snapshot")
}
