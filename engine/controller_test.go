package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/gamble-ledger/engine"
	"github.com/warp/gamble-ledger/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var errBoom = errors.New("boom")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, s engine.TxStore, names ...string) (*engine.Controller, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c := engine.NewController(s,
		engine.WithClock(clock.Now),
		engine.WithLocation(time.UTC),
		engine.WithLogger(quietLogger()),
	)
	if len(names) > 0 {
		_, err := c.CreateRoster(context.Background(), names)
		require.NoError(t, err)
	}
	return c, clock
}

func balances(t *testing.T, c *engine.Controller) map[string]int64 {
	t.Helper()
	ps, err := c.Players(context.Background())
	require.NoError(t, err)
	out := make(map[string]int64, len(ps))
	for _, p := range ps {
		out[p.Name] = p.Balance
	}
	return out
}

// failingStore fails the named write inside transactions.
type failingStore struct {
	*store.TxMemory
	failOn string
}

func (f *failingStore) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return f.TxMemory.WithTx(ctx, func(s engine.Store) error {
		return fn(&failingView{Store: s, failOn: f.failOn})
	})
}

type failingView struct {
	engine.Store
	failOn string
}

func (v *failingView) PutRound(ctx context.Context, r engine.RoundRecord) error {
	if v.failOn == "PutRound" {
		return errBoom
	}
	return v.Store.PutRound(ctx, r)
}

func (v *failingView) DeleteRound(ctx context.Context, id engine.RoundID) error {
	if v.failOn == "DeleteRound" {
		return errBoom
	}
	return v.Store.DeleteRound(ctx, id)
}

// =============================================================================
// ROSTER
// =============================================================================

func TestController_CreateRoster(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, store.NewTxMemory())

	ps, err := c.CreateRoster(ctx, []string{" Hoa ", "Minh", "Lan"})
	require.NoError(t, err)
	assert.Equal(t, []engine.Player{{Name: "Hoa"}, {Name: "Minh"}, {Name: "Lan"}}, ps)

	_, err = c.CreateRoster(ctx, []string{"X", "Y"})
	assert.ErrorIs(t, err, engine.ErrRosterExists)
	assert.True(t, engine.IsConflict(err))

	require.NoError(t, c.Reset(ctx))
	_, err = c.CreateRoster(ctx, []string{"X", "Y"})
	require.NoError(t, err)
}

func TestController_CreateRosterRules(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		wantErr error
	}{
		{"one player", []string{"Hoa"}, engine.ErrInsufficientRoster},
		{"blank name", []string{"Hoa", "  "}, engine.ErrInvalidName},
		{"case-insensitive duplicate", []string{"Hoa", "HOA"}, engine.ErrDuplicatePlayer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(t, store.NewTxMemory())
			_, err := c.CreateRoster(context.Background(), tt.names)
			assert.ErrorIs(t, err, tt.wantErr)

			ps, err := c.Players(context.Background())
			require.NoError(t, err)
			assert.Empty(t, ps)
		})
	}
}

// =============================================================================
// SETTLE / REVERSE
// =============================================================================

func TestController_EndToEnd(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestController(t, store.NewTxMemory(), "Hoa", "Minh", "Lan")

	rec, err := c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 100"})
	require.NoError(t, err)

	assert.Equal(t, engine.RoundID(clock.t.UnixMilli()), rec.ID)
	assert.Equal(t, "Hoa 100", rec.RawInput)
	assert.Equal(t, "21:30", rec.CreatedAt)
	want := []engine.Detail{
		{Name: "Hoa", Amount: -100, Kind: engine.KindLoser},
		{Name: "Minh", Amount: 50, Kind: engine.KindRemaining},
		{Name: "Lan", Amount: 50, Kind: engine.KindRemaining},
	}
	if diff := cmp.Diff(want, rec.Details); diff != "" {
		t.Errorf("details mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]int64{"Hoa": -100, "Minh": 50, "Lan": 50}, balances(t, c))

	history, err := c.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, rec.ID, history[0].ID)

	ok, err := c.ReverseRound(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]int64{"Hoa": 0, "Minh": 0, "Lan": 0}, balances(t, c))

	history, err = c.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestController_ReverseIsInverseWithRoundsBetween(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, store.NewTxMemory(), "Hoa", "Minh", "Lan")

	r1, err := c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 100"})
	require.NoError(t, err)
	r2, err := c.SettleRound(ctx, engine.RoundInput{Wins: "Minh 30"})
	require.NoError(t, err)
	assert.Greater(t, r2.ID, r1.ID)

	assert.Equal(t, map[string]int64{"Hoa": -115, "Minh": 80, "Lan": 35}, balances(t, c))

	ok, err := c.ReverseRound(ctx, r1.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// only round 2 remains
	assert.Equal(t, map[string]int64{"Hoa": -15, "Minh": 30, "Lan": -15}, balances(t, c))
}

func TestController_ReverseTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, store.NewTxMemory(), "Hoa", "Minh", "Lan")

	rec, err := c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 100"})
	require.NoError(t, err)

	ok, err := c.ReverseRound(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ReverseRound(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, map[string]int64{"Hoa": 0, "Minh": 0, "Lan": 0}, balances(t, c))
}

func TestController_ReverseSkipsMissingPlayers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	c, _ := newTestController(t, mem, "Hoa", "Minh")

	require.NoError(t, mem.PutRound(ctx, engine.RoundRecord{
		ID: 1,
		Details: []engine.Detail{
			{Name: "Hoa", Amount: 10, Kind: engine.KindWinner},
			{Name: "Ghost", Amount: -10, Kind: engine.KindLoser},
		},
	}))

	ok, err := c.ReverseRound(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]int64{"Hoa": -10, "Minh": 0}, balances(t, c))
}

func TestController_SettleCombinesTextAndStructuredInput(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, store.NewTxMemory(), "Hoa", "Minh", "Lan", "Tuấn Anh")

	rec, err := c.SettleRound(ctx, engine.RoundInput{
		Losses:   "hoa 40 tuấn anh 20",
		Wins:     "Minh 30",
		Explicit: []engine.Owed{{Name: "Hoa", Owed: 10}},
		Bonuses:  []engine.Bonus{{Name: "Lan", Amount: 5}, {Name: "Minh", Amount: -5}},
	})
	require.NoError(t, err)

	// owed: Hoa 50, Tuấn Anh 20, Minh -30 -> total 40 for Lan
	assert.Equal(t, map[string]int64{"Hoa": -50, "Tuấn Anh": -20, "Minh": 25, "Lan": 45}, balances(t, c))
	assert.Equal(t, "hoa 40 tuấn anh 20 | Minh 30", rec.RawInput)
	assert.Zero(t, rec.Residue)
}

func TestController_SettleErrorsLeaveStateUntouched(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, store.NewTxMemory(), "Hoa", "Minh", "Lan")

	_, err := c.SettleRound(ctx, engine.RoundInput{Losses: "nobody here 10"})
	assert.ErrorIs(t, err, engine.ErrEmptySettlement)

	_, err = c.SettleRound(ctx, engine.RoundInput{Explicit: []engine.Owed{{Name: "Ghost", Owed: 10}}})
	assert.ErrorIs(t, err, engine.ErrUnknownPlayer)

	_, err = c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 10 Minh 10 Lan 10"})
	assert.ErrorIs(t, err, engine.ErrNoCounterparty)

	assert.Equal(t, map[string]int64{"Hoa": 0, "Minh": 0, "Lan": 0}, balances(t, c))
	history, err := c.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestController_SettleRejectsOverflow(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	c, _ := newTestController(t, mem, "Hoa", "Minh", "Lan")

	_, err := c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 9223372036854775807 Minh 9223372036854775807"})
	assert.ErrorIs(t, err, engine.ErrAmountOutOfRange)

	_, err = c.SettleRound(ctx, engine.RoundInput{Explicit: []engine.Owed{{Name: "Hoa", Owed: math.MinInt64}}})
	assert.ErrorIs(t, err, engine.ErrAmountOutOfRange)

	assert.Equal(t, map[string]int64{"Hoa": 0, "Minh": 0, "Lan": 0}, balances(t, c))

	// balance near the limit: the delta itself fits but the new balance does not
	require.NoError(t, mem.PutPlayer(ctx, engine.Player{Name: "Minh", Balance: math.MaxInt64 - 10}))
	_, err = c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 100"})
	var oor *engine.AmountOutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, "balance", oor.Field)
	assert.Equal(t, "Minh", oor.Name)

	assert.Equal(t, map[string]int64{"Hoa": 0, "Minh": math.MaxInt64 - 10, "Lan": 0}, balances(t, c))
	history, err := c.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestController_ReverseRejectsOverflow(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	c, _ := newTestController(t, mem, "Hoa", "Minh", "Lan")

	rec, err := c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 100"})
	require.NoError(t, err)

	// undoing Minh's +50 would go below MinInt64
	require.NoError(t, mem.PutPlayer(ctx, engine.Player{Name: "Minh", Balance: math.MinInt64 + 10}))
	ok, err := c.ReverseRound(ctx, rec.ID)
	assert.ErrorIs(t, err, engine.ErrAmountOutOfRange)
	assert.False(t, ok)

	assert.Equal(t, map[string]int64{"Hoa": -100, "Minh": math.MinInt64 + 10, "Lan": 50}, balances(t, c))
	got, err := c.Round(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestController_SettleIsAtomic(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{TxMemory: store.NewTxMemory()}
	c, _ := newTestController(t, fs, "Hoa", "Minh", "Lan")

	fs.failOn = "PutRound"
	_, err := c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 100"})
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, map[string]int64{"Hoa": 0, "Minh": 0, "Lan": 0}, balances(t, c))
	history, err := c.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestController_ReverseIsAtomic(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{TxMemory: store.NewTxMemory()}
	c, _ := newTestController(t, fs, "Hoa", "Minh", "Lan")

	rec, err := c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 100"})
	require.NoError(t, err)

	fs.failOn = "DeleteRound"
	ok, err := c.ReverseRound(ctx, rec.ID)
	require.ErrorIs(t, err, errBoom)
	assert.False(t, ok)

	assert.Equal(t, map[string]int64{"Hoa": -100, "Minh": 50, "Lan": 50}, balances(t, c))
	got, err := c.Round(ctx, rec.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

// =============================================================================
// READ PATHS
// =============================================================================

func TestController_PreviewDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, store.NewTxMemory(), "Hoa", "Minh", "Lan")

	s, err := c.Preview(ctx, engine.RoundInput{Losses: "Hoa 100"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Hoa": -100, "Minh": 50, "Lan": 50}, s.Deltas)

	assert.Equal(t, map[string]int64{"Hoa": 0, "Minh": 0, "Lan": 0}, balances(t, c))
	history, err := c.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestController_Standings(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, store.NewTxMemory(), "Hoa", "Minh", "Lan")

	_, err := c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 100"})
	require.NoError(t, err)

	got, err := c.Standings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []engine.Player{
		{Name: "Lan", Balance: 50},
		{Name: "Minh", Balance: 50},
		{Name: "Hoa", Balance: -100},
	}, got)
}

// =============================================================================
// RECONCILE
// =============================================================================

func TestController_Reconcile(t *testing.T) {
	ctx := context.Background()
	mem := store.NewTxMemory()
	c, _ := newTestController(t, mem, "A", "B", "C", "D")

	_, err := c.SettleRound(ctx, engine.RoundInput{Losses: "A 100"})
	require.NoError(t, err)
	_, err = c.SettleRound(ctx, engine.RoundInput{Wins: "B 20"})
	require.NoError(t, err)

	rec, err := c.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Balanced())
	assert.Equal(t, 4, rec.Players)
	assert.Equal(t, 2, rec.Rounds)
	assert.Equal(t, int64(-2), rec.ResidueSum)
	assert.Equal(t, rec.ResidueSum, rec.BalanceSum)

	// tamper with a stored balance
	require.NoError(t, mem.PutPlayer(ctx, engine.Player{Name: "A", Balance: 999}))

	rec, err = c.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, rec.Balanced())
	require.Len(t, rec.Drift, 1)
	assert.Equal(t, engine.PlayerDrift{Name: "A", Stored: 999, Replayed: -107}, rec.Drift[0])
}

func TestController_ReconcileReportsBonusImbalanceApart(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, store.NewTxMemory(), "A", "B", "C", "D")

	rec, err := c.SettleRound(ctx, engine.RoundInput{Losses: "A 100"})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), rec.Residue)

	rec, err = c.SettleRound(ctx, engine.RoundInput{Bonuses: []engine.Bonus{{Name: "A", Amount: 15}}})
	require.NoError(t, err)
	assert.Zero(t, rec.Residue)
	assert.Equal(t, int64(15), rec.BonusImbalance())

	result, err := c.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, result.Balanced())
	assert.Equal(t, int64(-1), result.ResidueSum)
	assert.Equal(t, int64(15), result.BonusImbalanceSum)
	assert.Equal(t, int64(14), result.BalanceSum)
}

func TestReplay(t *testing.T) {
	rounds := []engine.RoundRecord{
		{ID: 1, Details: []engine.Detail{{Name: "A", Amount: -10}, {Name: "B", Amount: 10}}},
		{ID: 2, Details: []engine.Detail{{Name: "A", Amount: 4}}, Bonus: []engine.Bonus{{Name: "C", Amount: -4}}},
	}
	got := engine.Replay([]string{"A", "B", "C", "D"}, rounds)
	assert.Equal(t, map[string]int64{"A": -6, "B": 10, "C": -4, "D": 0}, got)
}
