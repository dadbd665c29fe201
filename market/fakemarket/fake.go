// Package fakemarket provides an in-memory market.Source double for tests,
// mirroring the teacher's dependency-injection test hooks (scheduler.go's
// minerDiscoveryFunc).
package fakemarket

import (
	"context"
	"sync"

	"github.com/devskill-org/bess-bidder/market"
	"github.com/devskill-org/bess-bidder/strategy"
)

// Fake is a scripted market.Source.
type Fake struct {
	mu sync.Mutex

	Forecast *strategy.Forecast
	Err      error

	RefreshCount int
}

// New creates a Fake that returns the given forecast on every successful
// Refresh call.
func New(forecast *strategy.Forecast) *Fake {
	return &Fake{Forecast: forecast}
}

func (f *Fake) Refresh(ctx context.Context) (*strategy.Forecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshCount++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Forecast, nil
}

// SetForecast updates the forecast the fake hands back on subsequent calls.
func (f *Fake) SetForecast(fc *strategy.Forecast) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Forecast = fc
}

var _ market.Source = (*Fake)(nil)
