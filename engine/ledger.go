/*
ledger.go - Round history

PURPOSE:
  The Ledger is the ordered, replayable history of settled rounds.
  Records are immutable: there is no update. A round is undone by the
  controller, which applies the inverse deltas and removes the record.

ID ASSIGNMENT:
  IDs are millisecond timestamps made strictly increasing:
  - two rounds in the same millisecond get consecutive IDs
  - a clock moving backwards never produces a smaller ID
  - the generator is seeded from the highest ID already stored, so a
    restarted process continues above the existing history

SEE ALSO:
  - store.go:      Persistence interface
  - controller.go: Uses the ledger inside a store transaction
*/
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// ID GENERATOR
// =============================================================================

// IDGenerator hands out strictly increasing RoundIDs.
type IDGenerator struct {
	mu   sync.Mutex
	last RoundID
	now  func() time.Time
}

// NewIDGenerator creates a generator using the given clock (time.Now if nil).
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns an ID greater than every ID returned or observed so far.
func (g *IDGenerator) Next() RoundID {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := RoundID(g.now().UnixMilli())
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// Observe records an ID that exists elsewhere so Next stays above it.
func (g *IDGenerator) Observe(id RoundID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id > g.last {
		g.last = id
	}
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger provides append/read/remove over a Store's round collection.
type Ledger struct {
	Store Store
	IDs   *IDGenerator
}

// NewLedger creates a ledger over store. A nil ids gets a wall-clock generator.
func NewLedger(store Store, ids *IDGenerator) *Ledger {
	if ids == nil {
		ids = NewIDGenerator(nil)
	}
	return &Ledger{Store: store, IDs: ids}
}

// Append assigns an ID to the record, stores it and returns the ID.
// Any ID already set on the record is ignored.
func (l *Ledger) Append(ctx context.Context, r RoundRecord) (RoundID, error) {
	latest, err := l.Store.LatestRoundID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest round id: %w", err)
	}
	l.IDs.Observe(latest)
	r.ID = l.IDs.Next()

	existing, err := l.Store.GetRound(ctx, r.ID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, ErrDuplicateRoundID
	}

	if err := l.Store.PutRound(ctx, r); err != nil {
		return 0, fmt.Errorf("failed to store round: %w", err)
	}
	return r.ID, nil
}

// All returns every record in ascending ID order.
func (l *Ledger) All(ctx context.Context) ([]RoundRecord, error) {
	return l.Store.GetAllRounds(ctx)
}

// Get returns the record with the given ID, or nil when absent.
func (l *Ledger) Get(ctx context.Context, id RoundID) (*RoundRecord, error) {
	return l.Store.GetRound(ctx, id)
}

// Remove deletes a record. Removing an absent record is a no-op.
func (l *Ledger) Remove(ctx context.Context, id RoundID) error {
	return l.Store.DeleteRound(ctx, id)
}
