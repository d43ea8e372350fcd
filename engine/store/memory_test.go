package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/gamble-ledger/engine"
	"github.com/warp/gamble-ledger/engine/store"
)

func TestMemory_PlayersKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.PutPlayer(ctx, engine.Player{Name: "Minh"}))
	require.NoError(t, m.PutPlayer(ctx, engine.Player{Name: "Hoa"}))
	require.NoError(t, m.PutPlayer(ctx, engine.Player{Name: "Minh", Balance: 20}))

	ps, err := m.GetAllPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []engine.Player{{Name: "Minh", Balance: 20}, {Name: "Hoa"}}, ps)

	p, err := m.GetPlayer(ctx, "Nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMemory_Rounds(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.PutRound(ctx, engine.RoundRecord{ID: 20}))
	require.NoError(t, m.PutRound(ctx, engine.RoundRecord{ID: 10, Details: []engine.Detail{{Name: "Hoa", Amount: 5}}}))

	all, err := m.GetAllRounds(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, engine.RoundID(10), all[0].ID)

	// returned records are copies
	all[0].Details[0].Amount = 99
	r, err := m.GetRound(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.Details[0].Amount)

	latest, err := m.LatestRoundID(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.RoundID(20), latest)

	require.NoError(t, m.DeleteRound(ctx, 20))
	require.NoError(t, m.DeleteRound(ctx, 20))
	latest, err = m.LatestRoundID(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.RoundID(10), latest)

	require.NoError(t, m.ClearAll(ctx))
	all, err = m.GetAllRounds(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	tm := store.NewTxMemory()
	require.NoError(t, tm.PutPlayer(ctx, engine.Player{Name: "Hoa"}))

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s engine.Store) error {
		require.NoError(t, s.PutPlayer(ctx, engine.Player{Name: "Hoa", Balance: -100}))
		require.NoError(t, s.PutPlayer(ctx, engine.Player{Name: "Minh", Balance: 100}))
		require.NoError(t, s.PutRound(ctx, engine.RoundRecord{ID: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	ps, err := tm.GetAllPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []engine.Player{{Name: "Hoa"}}, ps)

	r, err := tm.GetRound(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestTxMemory_Commit(t *testing.T) {
	ctx := context.Background()
	tm := store.NewTxMemory()

	err := tm.WithTx(ctx, func(s engine.Store) error {
		if err := s.PutPlayer(ctx, engine.Player{Name: "Hoa", Balance: 7}); err != nil {
			return err
		}
		return s.PutRound(ctx, engine.RoundRecord{ID: 3})
	})
	require.NoError(t, err)

	p, err := tm.GetPlayer(ctx, "Hoa")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(7), p.Balance)

	latest, err := tm.LatestRoundID(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.RoundID(3), latest)
}
