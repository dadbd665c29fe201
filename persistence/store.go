// Package persistence is a peripheral audit sink, NOT part of the bidding
// strategy core (spec.md §1: "the core does not... persist history beyond
// the in-memory cycle ledger"). It archives cycle-ledger entries and
// submitted bids to Postgres for operators who want history beyond the
// process lifetime. Grounded on the teacher's scheduler/mpc_persistence.go:
// an ON CONFLICT upsert and a rows.Scan loop. Each statement runs directly
// via ExecContext/QueryContext, without a transaction or prepared statement.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/devskill-org/bess-bidder/strategy"
)

// Store wraps a Postgres connection. A nil *Store (or one built with an
// empty DSN) is a valid no-op, mirroring the teacher's
// `if s.config.PostgresConnString != ""` guard.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres using the given DSN. An empty DSN returns a nil
// *Store and no error - persistence is optional.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: failed to connect: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveCycle appends a single cycle-ledger record. Failures are returned to
// the caller, who is expected to log and continue rather than fail the
// dispatch tick that produced the cycle (spec.md §1/§7: persistence is not
// part of the core's own correctness).
func (s *Store) SaveCycle(ctx context.Context, rec strategy.CycleRecord) error {
	if s == nil || s.db == nil {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_ledger (depth, mean_soc, temperature_c, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, rec.Depth, rec.MeanSOC, rec.Temperature, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("persistence: failed to insert cycle: %w", err)
	}
	return nil
}

// BidRecord is an archived fast-dispatch or day-ahead bid.
type BidRecord struct {
	SubmittedAt time.Time
	Hour        int // -1 for fast-dispatch bids
	Capacity    float64
	Price       float64
}

// SaveBid archives a single submitted bid.
func (s *Store) SaveBid(ctx context.Context, rec BidRecord) error {
	if s == nil || s.db == nil {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submitted_bids (submitted_at, hour, capacity, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (submitted_at, hour) DO UPDATE SET
			capacity = EXCLUDED.capacity,
			price = EXCLUDED.price
	`, rec.SubmittedAt, rec.Hour, rec.Capacity, rec.Price)
	if err != nil {
		return fmt.Errorf("persistence: failed to insert bid: %w", err)
	}
	return nil
}

// LoadRecentBids returns bids submitted since the given time, ordered
// oldest-first, for audit/reporting purposes.
func (s *Store) LoadRecentBids(ctx context.Context, since time.Time) ([]BidRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT submitted_at, hour, capacity, price
		FROM submitted_bids
		WHERE submitted_at >= $1
		ORDER BY submitted_at ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("persistence: failed to query bids: %w", err)
	}
	defer rows.Close()

	var out []BidRecord
	for rows.Next() {
		var rec BidRecord
		if err := rows.Scan(&rec.SubmittedAt, &rec.Hour, &rec.Capacity, &rec.Price); err != nil {
			return nil, fmt.Errorf("persistence: failed to scan bid: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: error iterating bids: %w", err)
	}

	return out, nil
}
