// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/gamble-ledger/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	players map[string]engine.Player
	order   []string // insertion order of player names
	rounds  map[engine.RoundID]engine.RoundRecord
}

func NewMemory() *Memory {
	return &Memory{
		players: make(map[string]engine.Player),
		rounds:  make(map[engine.RoundID]engine.RoundRecord),
	}
}

func (m *Memory) GetAllPlayers(_ context.Context) ([]engine.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allPlayersLocked(), nil
}

func (m *Memory) GetPlayer(_ context.Context, name string) (*engine.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playerLocked(name), nil
}

func (m *Memory) PutPlayer(_ context.Context, p engine.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putPlayerLocked(p)
	return nil
}

func (m *Memory) GetAllRounds(_ context.Context) ([]engine.RoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allRoundsLocked(), nil
}

func (m *Memory) GetRound(_ context.Context, id engine.RoundID) (*engine.RoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roundLocked(id), nil
}

func (m *Memory) PutRound(_ context.Context, r engine.RoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[r.ID] = cloneRound(r)
	return nil
}

func (m *Memory) DeleteRound(_ context.Context, id engine.RoundID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rounds, id)
	return nil
}

func (m *Memory) LatestRoundID(_ context.Context) (engine.RoundID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestLocked(), nil
}

func (m *Memory) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	return nil
}

// --- lock-free helpers, caller holds mu ---

func (m *Memory) allPlayersLocked() []engine.Player {
	result := make([]engine.Player, 0, len(m.order))
	for _, name := range m.order {
		result = append(result, m.players[name])
	}
	return result
}

func (m *Memory) playerLocked(name string) *engine.Player {
	p, ok := m.players[name]
	if !ok {
		return nil
	}
	return &p
}

func (m *Memory) putPlayerLocked(p engine.Player) {
	if _, ok := m.players[p.Name]; !ok {
		m.order = append(m.order, p.Name)
	}
	m.players[p.Name] = p
}

func (m *Memory) allRoundsLocked() []engine.RoundRecord {
	result := make([]engine.RoundRecord, 0, len(m.rounds))
	for _, r := range m.rounds {
		result = append(result, cloneRound(r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) roundLocked(id engine.RoundID) *engine.RoundRecord {
	r, ok := m.rounds[id]
	if !ok {
		return nil
	}
	c := cloneRound(r)
	return &c
}

func (m *Memory) latestLocked() engine.RoundID {
	var latest engine.RoundID
	for id := range m.rounds {
		if id > latest {
			latest = id
		}
	}
	return latest
}

func (m *Memory) clearLocked() {
	m.players = make(map[string]engine.Player)
	m.order = nil
	m.rounds = make(map[engine.RoundID]engine.RoundRecord)
}

func cloneRound(r engine.RoundRecord) engine.RoundRecord {
	r.Details = append([]engine.Detail(nil), r.Details...)
	r.Bonus = append([]engine.Bonus(nil), r.Bonus...)
	return r
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Snapshot current state
	snapshot := tm.snapshot()

	// Create a transactional view
	txStore := &txMemoryView{parent: tm}

	// Execute function
	if err := fn(txStore); err != nil {
		// Rollback
		tm.restore(snapshot)
		return err
	}

	// Commit (already done via direct writes)
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	players := make(map[string]engine.Player, len(tm.players))
	for k, v := range tm.players {
		players[k] = v
	}
	rounds := make(map[engine.RoundID]engine.RoundRecord, len(tm.rounds))
	for k, v := range tm.rounds {
		rounds[k] = cloneRound(v)
	}
	return memorySnapshot{
		players: players,
		order:   append([]string(nil), tm.order...),
		rounds:  rounds,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.players = s.players
	tm.order = s.order
	tm.rounds = s.rounds
}

type memorySnapshot struct {
	players map[string]engine.Player
	order   []string
	rounds  map[engine.RoundID]engine.RoundRecord
}

type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) GetAllPlayers(_ context.Context) ([]engine.Player, error) {
	return tv.parent.allPlayersLocked(), nil
}

func (tv *txMemoryView) GetPlayer(_ context.Context, name string) (*engine.Player, error) {
	return tv.parent.playerLocked(name), nil
}

func (tv *txMemoryView) PutPlayer(_ context.Context, p engine.Player) error {
	tv.parent.putPlayerLocked(p)
	return nil
}

func (tv *txMemoryView) GetAllRounds(_ context.Context) ([]engine.RoundRecord, error) {
	return tv.parent.allRoundsLocked(), nil
}

func (tv *txMemoryView) GetRound(_ context.Context, id engine.RoundID) (*engine.RoundRecord, error) {
	return tv.parent.roundLocked(id), nil
}

func (tv *txMemoryView) PutRound(_ context.Context, r engine.RoundRecord) error {
	tv.parent.rounds[r.ID] = cloneRound(r)
	return nil
}

func (tv *txMemoryView) DeleteRound(_ context.Context, id engine.RoundID) error {
	delete(tv.parent.rounds, id)
	return nil
}

func (tv *txMemoryView) LatestRoundID(_ context.Context) (engine.RoundID, error) {
	return tv.parent.latestLocked(), nil
}

func (tv *txMemoryView) ClearAll(_ context.Context) error {
	tv.parent.clearLocked()
	return nil
}
