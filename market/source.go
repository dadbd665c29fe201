// Package market defines the abstract market data source C5 uses to supply
// price/demand forecasts and competitor counts, per spec.md §4.5. Production
// code pulls this over HTTP (see market/httpmarket); tests drive an
// in-memory double (see market/fakemarket).
package market

import (
	"context"

	"github.com/devskill-org/bess-bidder/strategy"
)

// Source is the abstract pull interface over the utility's market data feed.
// Refresh may fail; on failure the caller keeps using the previous snapshot
// (spec.md §4.5).
type Source interface {
	Refresh(ctx context.Context) (*strategy.Forecast, error)
}
