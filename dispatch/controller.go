// Package dispatch implements the concurrent dispatch controller C6: four
// cooperating periodic tasks (SOC monitor, fast-DR loop, day-ahead loop,
// forecast refresh) driving the strategy engine, with safety latches and an
// anti-flutter gate, per spec.md §4.6 and §5. Grounded directly on the
// teacher's scheduler/scheduler.go PeriodicTask/run loop: the same
// initial-delay-then-ticker construction, the same context+stopChan double
// cancellation, one goroutine per task joined by a sync.WaitGroup.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/bess-bidder/battery"
	"github.com/devskill-org/bess-bidder/config"
	"github.com/devskill-org/bess-bidder/market"
	"github.com/devskill-org/bess-bidder/persistence"
	"github.com/devskill-org/bess-bidder/strategy"
	"github.com/devskill-org/bess-bidder/transport"
)

// PeriodicTask runs a function on an interval, with an optional initial
// delay, until the context is cancelled or stopChan is closed. Identical in
// shape to the teacher's scheduler.PeriodicTask.
type PeriodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

func (pt *PeriodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *log.Logger) {
	if pt.initialDelay > 0 {
		select {
		case <-time.After(pt.initialDelay):
			pt.runFunc()
		case <-ctx.Done():
			return
		case <-stopChan:
			return
		}
	} else {
		pt.runFunc()
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] stopped due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] stopped due to stop signal", pt.name)
			return
		}
	}
}

// Controller drives the strategy against a battery adapter and market data
// source. It is the single owner of the dispatch state machine and the
// per-tick bookkeeping (previous SOC, last forecast refresh, day-ahead
// latch) that the strategy itself does not hold.
type Controller struct {
	cfg      *config.Config
	strategy *strategy.Strategy
	bat      battery.Adapter
	mkt      market.Source
	bids     *transport.BidClient
	store    *persistence.Store
	logger   *log.Logger

	socFilter *battery.SOCFilter

	mu                  sync.Mutex
	state               DispatchState
	previousSOC         float64
	lastForecastRefresh time.Time
	dayAheadDoneDate    string
	drDisabledBySafety  bool
	now                 func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// New creates a Controller. The previous-SOC baseline that T1 compares each
// filtered SOC against to detect cycling is seeded from the strategy's
// current SOC at construction time.
func New(cfg *config.Config, strat *strategy.Strategy, bat battery.Adapter, mkt market.Source, bids *transport.BidClient, store *persistence.Store, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		cfg:         cfg,
		strategy:    strat,
		bat:         bat,
		mkt:         mkt,
		bids:        bids,
		store:       store,
		logger:      logger,
		socFilter:   battery.NewSOCFilter(),
		state:       StateIdle,
		previousSOC: strat.CurrentSOC(),
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

// State returns the current dispatch state machine state.
func (c *Controller) State() DispatchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetClock overrides the controller's time source. Production callers never
// need this (the default is time.Now); it exists so tests can exercise T3's
// 02:00 day-ahead window and done-today latch deterministically instead of
// depending on wall-clock luck.
func (c *Controller) SetClock(fn func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = fn
}

func (c *Controller) clockNow() time.Time {
	c.mu.Lock()
	fn := c.now
	c.mu.Unlock()
	return fn()
}

func (c *Controller) setState(s DispatchState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != s {
		c.logger.Printf("dispatch state %s -> %s", c.state, s)
	}
	c.state = s
}

// Start launches the four periodic tasks and blocks until they all stop
// (context cancellation or Stop). Matches the teacher's Start/Stop/stop
// idempotency discipline.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("dispatch: controller already running")
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	tasks := []PeriodicTask{
		{
			name:     "SOCMonitor",
			interval: c.cfg.SOCMonitorPeriod,
			runFunc:  func() { c.runSOCMonitor(ctx) },
		},
		{
			name:     "FastDRLoop",
			interval: c.cfg.FastDRPeriod,
			runFunc:  func() { c.runFastDRLoop(ctx) },
		},
		{
			name:     "DayAheadLoop",
			interval: c.cfg.DayAheadPeriod,
			runFunc:  func() { c.runDayAheadLoop(ctx) },
		},
		{
			name:     "ForecastRefresh",
			interval: c.cfg.ForecastRefreshPeriod,
			runFunc:  func() { c.runForecastRefresh(ctx) },
		},
	}

	c.wg.Add(len(tasks))
	for i := range tasks {
		task := tasks[i]
		go func() {
			defer c.wg.Done()
			task.run(ctx, c.stopChan, c.logger)
		}()
	}

	c.wg.Wait()
	c.stop()
	return nil
}

// RunOnce drives all four tasks exactly one time, synchronously, without
// starting any periodic goroutines. It exists for the CLI's -once diagnostic
// mode and for tests that want deterministic single-tick behavior instead of
// racing a ticker.
func (c *Controller) RunOnce(ctx context.Context) {
	c.runSOCMonitor(ctx)
	c.runForecastRefresh(ctx)
	c.runFastDRLoop(ctx)
	c.runDayAheadLoop(ctx)
}

// Stop gracefully stops all periodic tasks.
func (c *Controller) Stop() {
	c.stop()
}

func (c *Controller) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}
}

// IsRunning reports whether the controller's tasks are active.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
