/*
store.go - Persistence interface for players and rounds

PURPOSE:
  Defines the boundary between the engine and its key-value store.
  Players are keyed by name, rounds by RoundID. Different implementations
  use SQLite, Redis or memory.

KEY INTERFACES:
  Store:   Reads and writes on both collections
  TxStore: Runs a function against a Store inside one atomic transaction

ATOMICITY:
  The controller opens exactly one WithTx per settle, reverse, roster or
  reset call. If the function returns an error nothing it wrote is visible
  afterwards. Implementations:
  - store/sqlite:  native *sql.Tx
  - store/redis:   staged writes committed by one MULTI/EXEC under WATCH
  - engine/store:  snapshot + restore on error

NOT FOUND:
  GetPlayer and GetRound return (nil, nil) when the key is absent.
  DeleteRound of an absent key is not an error.
*/
package engine

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store persists players and round records.
type Store interface {
	GetAllPlayers(ctx context.Context) ([]Player, error)
	GetPlayer(ctx context.Context, name string) (*Player, error)
	PutPlayer(ctx context.Context, p Player) error

	// GetAllRounds returns records in ascending ID order.
	GetAllRounds(ctx context.Context) ([]RoundRecord, error)
	GetRound(ctx context.Context, id RoundID) (*RoundRecord, error)
	PutRound(ctx context.Context, r RoundRecord) error
	DeleteRound(ctx context.Context, id RoundID) error

	// LatestRoundID returns the highest stored ID, or 0 when empty.
	LatestRoundID(ctx context.Context) (RoundID, error)

	// ClearAll removes every player and round.
	ClearAll(ctx context.Context) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
