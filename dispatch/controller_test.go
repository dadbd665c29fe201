package dispatch

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devskill-org/bess-bidder/battery/fakebattery"
	"github.com/devskill-org/bess-bidder/config"
	"github.com/devskill-org/bess-bidder/market/fakemarket"
	"github.com/devskill-org/bess-bidder/strategy"
	"github.com/devskill-org/bess-bidder/transport"
)

func testStrategy(t *testing.T, initialSOC float64) *strategy.Strategy {
	t.Helper()
	p := strategy.DefaultParams()
	p.BatteryCapacityKWh = 13.5
	p.ReplacementCost = 4000
	strat, err := strategy.New(p, initialSOC)
	assert.NoError(t, err)
	return strat
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// profitableForecast returns a forecast where every hour has a high price,
// modest demand, and a single competitor, so FastDispatchBid is profitable
// regardless of what hour of day the test happens to run at.
func profitableForecast() *strategy.Forecast {
	f := &strategy.Forecast{NumCompetitors: 1}
	for i := 0; i < 24; i++ {
		f.PriceForecast[i] = 5.0
		f.GridDemandForecast[i] = 1
	}
	return f
}

func TestNew_InitialStateIsIdle(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, cfg.InitialSOC)
	ctrl := New(cfg, strat, fakebattery.New(cfg.InitialSOC), nil, nil, nil, testLogger())

	assert.Equal(t, StateIdle, ctrl.State())
	assert.False(t, ctrl.IsRunning())
}

func TestDispatchState_String(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "ARMED", StateArmed.String())
	assert.Equal(t, "DISPATCHING", StateDispatching.String())
	assert.Equal(t, "COOLDOWN", StateCooldown.String())
}

func TestRunSOCMonitor_SafetyLatchDisablesDRBelowMinSOC(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.05)
	bat.DRStatus = true
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	// Saturate the moving-average filter so a single tick already reads a
	// filtered SOC well below min_soc, instead of needing five ticks to
	// converge away from the filter's 0.5 seed.
	for i := 0; i < 5; i++ {
		ctrl.socFilter.Push(0.05)
	}

	ctrl.runSOCMonitor(context.Background())

	assert.Equal(t, StateIdle, ctrl.State())
	history := bat.DREnableHistory()
	assert.NotEmpty(t, history)
	assert.False(t, history[len(history)-1])
}

func TestRunSOCMonitor_AboveMinSOCLeavesDRAlone(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	ctrl.runSOCMonitor(context.Background())

	assert.Empty(t, bat.DREnableHistory())
}

func TestRunSOCMonitor_RecordsCycleOnSignificantMovement(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	for i := 0; i < 5; i++ {
		ctrl.socFilter.Push(0.9)
	}
	bat.SetSOC(0.9)

	ctrl.runSOCMonitor(context.Background())

	assert.Equal(t, 1, strat.LedgerLen())
}

func TestRunFastDRLoop_NoDispatchWhenDRInactive(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.8)
	strat.SetForecast(profitableForecast())
	bat := fakebattery.New(0.8)
	bat.DRStatus = false
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	ctrl.runFastDRLoop(context.Background())

	assert.Equal(t, StateIdle, ctrl.State())
	assert.Empty(t, bat.DischargeWrites)
}

func TestRunFastDRLoop_DispatchesProfitableBidAndEntersCooldown(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.8)
	strat.SetForecast(profitableForecast())
	bat := fakebattery.New(0.8)
	bat.DRStatus = true
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	ctrl.runFastDRLoop(context.Background())

	assert.Equal(t, StateCooldown, ctrl.State())
	assert.Len(t, bat.DischargeWrites, 1)
	assert.NotZero(t, strat.LastDispatchTS())
}

func TestRunFastDRLoop_AntiFlutterGatePreventsImmediateRedispatch(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AntiFlutterInterval = time.Hour
	strat := testStrategy(t, 0.8)
	strat.SetForecast(profitableForecast())
	bat := fakebattery.New(0.8)
	bat.DRStatus = true
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	ctrl.runFastDRLoop(context.Background())
	assert.Len(t, bat.DischargeWrites, 1)

	ctrl.runFastDRLoop(context.Background())
	assert.Len(t, bat.DischargeWrites, 1, "anti-flutter gate must block a second dispatch within the interval")
	assert.Equal(t, StateCooldown, ctrl.State())
}

func TestRunFastDRLoop_BelowMinSOCForcesIdle(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	strat.SetSOC(0.05)
	bat := fakebattery.New(0.05)
	bat.DRStatus = true
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	ctrl.runFastDRLoop(context.Background())

	assert.Equal(t, StateIdle, ctrl.State())
	assert.Empty(t, bat.DischargeWrites)
}

func TestRunForecastRefresh_InstallsForecastWhenStale(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	want := profitableForecast()
	mkt := fakemarket.New(want)
	ctrl := New(cfg, strat, bat, mkt, nil, nil, testLogger())

	ctrl.runForecastRefresh(context.Background())

	assert.Equal(t, 1, mkt.RefreshCount)
	assert.Same(t, want, strat.Forecast())
}

func TestRunForecastRefresh_SkipsWhenRecentlyRefreshed(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	mkt := fakemarket.New(profitableForecast())
	ctrl := New(cfg, strat, bat, mkt, nil, nil, testLogger())

	ctrl.runForecastRefresh(context.Background())
	assert.Equal(t, 1, mkt.RefreshCount)

	ctrl.runForecastRefresh(context.Background())
	assert.Equal(t, 1, mkt.RefreshCount, "a refresh within the last hour should not trigger another fetch")
}

func TestRunForecastRefresh_NilSourceIsNoOp(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	assert.NotPanics(t, func() { ctrl.runForecastRefresh(context.Background()) })
	assert.Nil(t, strat.Forecast())
}

func TestRunDayAheadLoop_NilSourceIsNoOp(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	assert.NotPanics(t, func() { ctrl.runDayAheadLoop(context.Background()) })
}

func TestRunDayAheadLoop_OutsideTwoAMWindowIsNoOp(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	mkt := fakemarket.New(profitableForecast())
	ctrl := New(cfg, strat, bat, mkt, nil, nil, testLogger())
	ctrl.SetClock(func() time.Time { return time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC) })

	ctrl.runDayAheadLoop(context.Background())

	assert.Equal(t, 0, mkt.RefreshCount)
}

func TestRunDayAheadLoop_RunsAtTwoAMAndLatchesPerDay(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	mkt := fakemarket.New(profitableForecast())
	ctrl := New(cfg, strat, bat, mkt, nil, nil, testLogger())

	fixed := time.Date(2026, 3, 5, 2, 0, 0, 0, time.UTC)
	ctrl.SetClock(func() time.Time { return fixed })

	ctrl.runDayAheadLoop(context.Background())
	assert.Equal(t, 1, mkt.RefreshCount)
	assert.NotNil(t, strat.Forecast())

	// Same 02:00 hour, same day: the done-today latch must prevent a second
	// refresh/allocation.
	ctrl.runDayAheadLoop(context.Background())
	assert.Equal(t, 1, mkt.RefreshCount, "the done-today latch must prevent a second allocation the same day")

	// Next day, same 02:00 hour: the latch resets and a new allocation runs.
	ctrl.SetClock(func() time.Time { return fixed.Add(24 * time.Hour) })
	ctrl.runDayAheadLoop(context.Background())
	assert.Equal(t, 2, mkt.RefreshCount)
}

func TestRunDayAheadLoop_SubmitsNonZeroHourlyBids(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	mkt := fakemarket.New(profitableForecast())

	var submitted int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		submitted++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	bids := transport.New(server.URL, 5*time.Second)
	ctrl := New(cfg, strat, bat, mkt, bids, nil, testLogger())
	ctrl.SetClock(func() time.Time { return time.Date(2026, 3, 5, 2, 0, 0, 0, time.UTC) })

	ctrl.runDayAheadLoop(context.Background())

	// Every hour of a softmax allocation over a positive energy budget gets a
	// strictly positive share (P3/B4), so all 24 hours should submit a bid.
	assert.Equal(t, 24, submitted)
}

func TestRunOnce_DrivesAllFourTasksWithoutPanicking(t *testing.T) {
	cfg := config.DefaultConfig()
	strat := testStrategy(t, 0.8)
	bat := fakebattery.New(0.8)
	mkt := fakemarket.New(profitableForecast())
	ctrl := New(cfg, strat, bat, mkt, nil, nil, testLogger())

	assert.NotPanics(t, func() { ctrl.RunOnce(context.Background()) })
}

func TestStartStop_LifecycleReportsRunning(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SOCMonitorPeriod = time.Millisecond
	cfg.FastDRPeriod = time.Millisecond
	cfg.DayAheadPeriod = time.Millisecond
	cfg.ForecastRefreshPeriod = time.Millisecond
	strat := testStrategy(t, 0.5)
	bat := fakebattery.New(0.5)
	ctrl := New(cfg, strat, bat, nil, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		ctrl.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, ctrl.IsRunning())

	ctrl.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("controller did not stop within timeout")
	}
	assert.False(t, ctrl.IsRunning())
}
