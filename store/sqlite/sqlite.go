/*
Package sqlite provides a SQLite-backed implementation of engine.TxStore.

PURPOSE:
  Persists the roster and the round ledger in two tables. Every settle or
  reverse runs inside one *sql.Tx, so balances and rounds are committed
  together or not at all.

KEY TABLES:
  players: name (PK), balance. Insertion order is kept by rowid; balance
           updates use an UPSERT so the rowid never changes.
  rounds:  id (PK, millisecond timestamp), raw input, details/bonus JSON,
           display time, rounding residue.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, which also
  keeps ":memory:" databases shared between calls.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for crash safety.

USAGE:
  store, err := sqlite.New("./data/gamble.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  controller := engine.NewController(store)

SEE ALSO:
  - engine/store.go: Interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/gamble-ledger/engine"
)

// Ensure Store implements engine.TxStore
var _ engine.TxStore = (*Store)(nil)

// Store implements engine.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := NewWithDB(db)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an existing connection. The schema is not created;
// call Migrate when needed.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		name TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0
	);

	-- Round ledger. Rows are inserted once and deleted by reversal.
	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY,
		raw_input TEXT NOT NULL DEFAULT '',
		details_json TEXT NOT NULL,
		bonus_json TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT '',
		residue INTEGER NOT NULL DEFAULT 0,
		recorded_at TEXT NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// STORE (engine.Store interface)
// =============================================================================

func (s *Store) GetAllPlayers(ctx context.Context) ([]engine.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAllPlayers(ctx, s.db)
}

func (s *Store) GetPlayer(ctx context.Context, name string) (*engine.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPlayer(ctx, s.db, name)
}

func (s *Store) PutPlayer(ctx context.Context, p engine.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putPlayer(ctx, s.db, p)
}

func (s *Store) GetAllRounds(ctx context.Context) ([]engine.RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAllRounds(ctx, s.db)
}

func (s *Store) GetRound(ctx context.Context, id engine.RoundID) (*engine.RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRound(ctx, s.db, id)
}

func (s *Store) PutRound(ctx context.Context, r engine.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putRound(ctx, s.db, r)
}

func (s *Store) DeleteRound(ctx context.Context, id engine.RoundID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRound(ctx, s.db, id)
}

func (s *Store) LatestRoundID(ctx context.Context) (engine.RoundID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestRoundID(ctx, s.db)
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clearAll(ctx, s.db)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetAllPlayers(ctx context.Context) ([]engine.Player, error) {
	return getAllPlayers(ctx, ts.tx)
}

func (ts *txStore) GetPlayer(ctx context.Context, name string) (*engine.Player, error) {
	return getPlayer(ctx, ts.tx, name)
}

func (ts *txStore) PutPlayer(ctx context.Context, p engine.Player) error {
	return putPlayer(ctx, ts.tx, p)
}

func (ts *txStore) GetAllRounds(ctx context.Context) ([]engine.RoundRecord, error) {
	return getAllRounds(ctx, ts.tx)
}

func (ts *txStore) GetRound(ctx context.Context, id engine.RoundID) (*engine.RoundRecord, error) {
	return getRound(ctx, ts.tx, id)
}

func (ts *txStore) PutRound(ctx context.Context, r engine.RoundRecord) error {
	return putRound(ctx, ts.tx, r)
}

func (ts *txStore) DeleteRound(ctx context.Context, id engine.RoundID) error {
	return deleteRound(ctx, ts.tx, id)
}

func (ts *txStore) LatestRoundID(ctx context.Context) (engine.RoundID, error) {
	return latestRoundID(ctx, ts.tx)
}

func (ts *txStore) ClearAll(ctx context.Context) error {
	return clearAll(ctx, ts.tx)
}

// =============================================================================
// QUERIES - shared by Store and txStore
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAllPlayers(ctx context.Context, q querier) ([]engine.Player, error) {
	rows, err := q.QueryContext(ctx, "SELECT name, balance FROM players ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []engine.Player
	for rows.Next() {
		var p engine.Player
		if err := rows.Scan(&p.Name, &p.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate players: %w", err)
	}
	return players, nil
}

func getPlayer(ctx context.Context, q querier, name string) (*engine.Player, error) {
	var p engine.Player
	err := q.QueryRowContext(ctx,
		"SELECT name, balance FROM players WHERE name = ?", name,
	).Scan(&p.Name, &p.Balance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return &p, nil
}

func putPlayer(ctx context.Context, q querier, p engine.Player) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO players (name, balance) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET balance = excluded.balance`,
		p.Name, p.Balance,
	)
	if err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}
	return nil
}

const roundColumns = "id, raw_input, details_json, bonus_json, created_at, residue"

func getAllRounds(ctx context.Context, q querier) ([]engine.RoundRecord, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+roundColumns+" FROM rounds ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []engine.RoundRecord
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}
	return rounds, nil
}

func getRound(ctx context.Context, q querier, id engine.RoundID) (*engine.RoundRecord, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+roundColumns+" FROM rounds WHERE id = ?", int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRound(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func putRound(ctx context.Context, q querier, r engine.RoundRecord) error {
	details, err := json.Marshal(toDetailRows(r.Details))
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}
	bonus, err := json.Marshal(toBonusRows(r.Bonus))
	if err != nil {
		return fmt.Errorf("failed to encode bonus: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO rounds (id, raw_input, details_json, bonus_json, created_at, residue, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(r.ID), r.RawInput, string(details), string(bonus), r.CreatedAt, r.Residue,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateRoundID
		}
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

func deleteRound(ctx context.Context, q querier, id engine.RoundID) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM rounds WHERE id = ?", int64(id)); err != nil {
		return fmt.Errorf("failed to delete round: %w", err)
	}
	return nil
}

func latestRoundID(ctx context.Context, q querier) (engine.RoundID, error) {
	var id sql.NullInt64
	if err := q.QueryRowContext(ctx, "SELECT MAX(id) FROM rounds").Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read latest round id: %w", err)
	}
	return engine.RoundID(id.Int64), nil
}

func clearAll(ctx context.Context, q querier) error {
	for _, table := range []string{"rounds", "players"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// ROW ENCODING
// =============================================================================

type detailRow struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Kind   string `json:"kind"`
}

type bonusRow struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

func toDetailRows(details []engine.Detail) []detailRow {
	rows := make([]detailRow, len(details))
	for i, d := range details {
		rows[i] = detailRow{Name: d.Name, Amount: d.Amount, Kind: string(d.Kind)}
	}
	return rows
}

func toBonusRows(bonus []engine.Bonus) []bonusRow {
	rows := make([]bonusRow, len(bonus))
	for i, b := range bonus {
		rows[i] = bonusRow{Name: b.Name, Amount: b.Amount}
	}
	return rows
}

func scanRound(rows *sql.Rows) (engine.RoundRecord, error) {
	var (
		r           engine.RoundRecord
		id          int64
		detailsJSON string
		bonusJSON   string
	)
	if err := rows.Scan(&id, &r.RawInput, &detailsJSON, &bonusJSON, &r.CreatedAt, &r.Residue); err != nil {
		return engine.RoundRecord{}, fmt.Errorf("failed to scan round: %w", err)
	}
	r.ID = engine.RoundID(id)

	var details []detailRow
	if err := json.Unmarshal([]byte(detailsJSON), &details); err != nil {
		return engine.RoundRecord{}, fmt.Errorf("failed to decode details of round %d: %w", id, err)
	}
	for _, d := range details {
		r.Details = append(r.Details, engine.Detail{Name: d.Name, Amount: d.Amount, Kind: engine.DetailKind(d.Kind)})
	}

	var bonus []bonusRow
	if err := json.Unmarshal([]byte(bonusJSON), &bonus); err != nil {
		return engine.RoundRecord{}, fmt.Errorf("failed to decode bonus of round %d: %w", id, err)
	}
	for _, b := range bonus {
		r.Bonus = append(r.Bonus, engine.Bonus{Name: b.Name, Amount: b.Amount})
	}
	return r, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
