package engine_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/gamble-ledger/engine"
)

func players(names ...string) []engine.Player {
	out := make([]engine.Player, len(names))
	for i, n := range names {
		out[i] = engine.Player{Name: n}
	}
	return out
}

// =============================================================================
// SETTLE
// =============================================================================

func TestSettle_Aggregation(t *testing.T) {
	s, err := engine.Settle(players("A", "B", "C"), []engine.Owed{
		{Name: "A", Owed: 30},
		{Name: "B", Owed: -10},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(20), s.Total)
	assert.Equal(t, []string{"C"}, s.Remaining)
	assert.Equal(t, int64(20), s.RemainderShare)
	assert.Equal(t, map[string]int64{"A": -30, "B": 10, "C": 20}, s.Deltas)
	assert.Zero(t, s.Residue)

	want := []engine.Detail{
		{Name: "A", Amount: -30, Kind: engine.KindLoser},
		{Name: "B", Amount: 10, Kind: engine.KindWinner},
		{Name: "C", Amount: 20, Kind: engine.KindRemaining},
	}
	if diff := cmp.Diff(want, s.Details); diff != "" {
		t.Errorf("details mismatch (-want +got):\n%s", diff)
	}
}

func TestSettle_RepeatedNamesAreSummed(t *testing.T) {
	s, err := engine.Settle(players("A", "B", "C"), []engine.Owed{
		{Name: "A", Owed: 10},
		{Name: "A", Owed: 20},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"A": -30, "B": 15, "C": 15}, s.Deltas)
	assert.Len(t, s.Details, 3)
}

func TestSettle_RoundingResidueIsBounded(t *testing.T) {
	s, err := engine.Settle(players("A", "B", "C", "D"), []engine.Owed{{Name: "A", Owed: 100}}, nil)
	require.NoError(t, err)

	// 100 / 3 = 33.33 -> 33
	assert.Equal(t, int64(33), s.RemainderShare)
	assert.Equal(t, int64(-1), s.Residue)
	assert.LessOrEqual(t, abs(s.Residue), int64(len(s.Remaining)-1))

	var sum int64
	for _, d := range s.Deltas {
		sum += d
	}
	assert.Equal(t, s.Residue, sum)
}

func TestSettle_BonusIndependence(t *testing.T) {
	without, err := engine.Settle(players("A", "B", "C"), []engine.Owed{{Name: "A", Owed: 30}}, nil)
	require.NoError(t, err)

	with, err := engine.Settle(players("A", "B", "C"), []engine.Owed{{Name: "A", Owed: 30}}, []engine.Bonus{
		{Name: "B", Amount: 15},
		{Name: "C", Amount: -15},
	})
	require.NoError(t, err)

	assert.Equal(t, without.Total, with.Total)
	assert.Equal(t, without.RemainderShare, with.RemainderShare)
	assert.Equal(t, without.Details, with.Details)
	assert.Equal(t, map[string]int64{"A": -30, "B": 30}, with.Deltas)
	assert.Zero(t, with.Residue)
}

func TestSettle_BonusOnly(t *testing.T) {
	s, err := engine.Settle(players("A", "B"), nil, []engine.Bonus{{Name: "A", Amount: 10}})
	require.NoError(t, err)

	assert.Empty(t, s.Details)
	assert.Equal(t, []engine.Bonus{{Name: "A", Amount: 10}}, s.Bonus)
	assert.Equal(t, map[string]int64{"A": 10}, s.Deltas)
	assert.Zero(t, s.Residue)
	assert.Equal(t, int64(10), s.BonusImbalance)
}

func TestSettle_UnpairedBonusIsNotResidue(t *testing.T) {
	s, err := engine.Settle(players("A", "B", "C"), nil, []engine.Bonus{{Name: "A", Amount: 15}})
	require.NoError(t, err)

	assert.Zero(t, s.Residue)
	assert.Equal(t, int64(15), s.BonusImbalance)
	assert.Equal(t, int64(15), s.Record("").BonusImbalance())

	// rounding and an unpaired bonus in the same round
	s, err = engine.Settle(players("A", "B", "C", "D"), []engine.Owed{{Name: "A", Owed: 100}}, []engine.Bonus{
		{Name: "B", Amount: 40},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), s.Residue)
	assert.LessOrEqual(t, abs(s.Residue), int64(len(s.Remaining)-1))
	assert.Equal(t, int64(40), s.BonusImbalance)

	var sum int64
	for _, d := range s.Deltas {
		sum += d
	}
	assert.Equal(t, s.Residue+s.BonusImbalance, sum)
}

func TestSettle_AllMentionedAndBalanced(t *testing.T) {
	s, err := engine.Settle(players("A", "B"), []engine.Owed{
		{Name: "A", Owed: 30},
		{Name: "B", Owed: -30},
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, s.Remaining)
	assert.Equal(t, map[string]int64{"A": -30, "B": 30}, s.Deltas)
}

func TestSettle_Errors(t *testing.T) {
	tests := []struct {
		name     string
		players  []engine.Player
		explicit []engine.Owed
		bonuses  []engine.Bonus
		wantErr  error
	}{
		{
			name:     "single player",
			players:  players("A"),
			explicit: []engine.Owed{{Name: "A", Owed: 10}},
			wantErr:  engine.ErrInsufficientRoster,
		},
		{
			name:    "nothing to apply",
			players: players("A", "B"),
			wantErr: engine.ErrEmptySettlement,
		},
		{
			name:     "only zero amounts",
			players:  players("A", "B", "C"),
			explicit: []engine.Owed{{Name: "A", Owed: 0}},
			wantErr:  engine.ErrEmptySettlement,
		},
		{
			name:     "unknown explicit player",
			players:  players("A", "B"),
			explicit: []engine.Owed{{Name: "Z", Owed: 10}},
			wantErr:  engine.ErrUnknownPlayer,
		},
		{
			name:     "unknown bonus player",
			players:  players("A", "B"),
			explicit: []engine.Owed{{Name: "A", Owed: 10}},
			bonuses:  []engine.Bonus{{Name: "Z", Amount: 5}},
			wantErr:  engine.ErrUnknownPlayer,
		},
		{
			name:    "everyone mentioned and unbalanced",
			players: players("A", "B"),
			explicit: []engine.Owed{
				{Name: "A", Owed: 30},
				{Name: "B", Owed: -10},
			},
			wantErr: engine.ErrNoCounterparty,
		},
		{
			name:     "owed is MinInt64",
			players:  players("A", "B", "C"),
			explicit: []engine.Owed{{Name: "A", Owed: math.MinInt64}},
			wantErr:  engine.ErrAmountOutOfRange,
		},
		{
			name:    "repeated name overflows",
			players: players("A", "B", "C"),
			explicit: []engine.Owed{
				{Name: "A", Owed: math.MaxInt64},
				{Name: "A", Owed: math.MaxInt64},
			},
			wantErr: engine.ErrAmountOutOfRange,
		},
		{
			name:    "total overflows",
			players: players("A", "B", "C"),
			explicit: []engine.Owed{
				{Name: "A", Owed: math.MaxInt64},
				{Name: "B", Owed: math.MaxInt64},
			},
			wantErr: engine.ErrAmountOutOfRange,
		},
		{
			name:     "bonus overflows delta",
			players:  players("A", "B", "C"),
			explicit: []engine.Owed{{Name: "A", Owed: 10}},
			bonuses:  []engine.Bonus{{Name: "A", Amount: math.MinInt64}},
			wantErr:  engine.ErrAmountOutOfRange,
		},
		{
			name:    "bonus imbalance overflows",
			players: players("A", "B"),
			bonuses: []engine.Bonus{
				{Name: "A", Amount: math.MaxInt64},
				{Name: "B", Amount: math.MaxInt64},
			},
			wantErr: engine.ErrAmountOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := engine.Settle(tt.players, tt.explicit, tt.bonuses)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, engine.IsClientError(err))
		})
	}
}

func TestSettle_ErrorDetails(t *testing.T) {
	_, err := engine.Settle(players("A", "B"), []engine.Owed{{Name: "A", Owed: 30}, {Name: "B", Owed: -10}}, nil)
	var nc *engine.NoCounterpartyError
	require.True(t, errors.As(err, &nc))
	assert.Equal(t, int64(20), nc.Total)

	_, err = engine.Settle(players("A", "B"), nil, []engine.Bonus{{Name: "Z", Amount: 1}})
	var up *engine.UnknownPlayerError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, "Z", up.Name)
	assert.Equal(t, "bonus", up.Field)
}

func TestSettle_LargestAmounts(t *testing.T) {
	s, err := engine.Settle(players("A", "B", "C"), []engine.Owed{{Name: "A", Owed: math.MaxInt64}}, nil)
	require.NoError(t, err)

	// MaxInt64 / 2 ends in .5 and rounds up
	assert.Equal(t, int64(math.MaxInt64/2+1), s.RemainderShare)
	assert.Equal(t, map[string]int64{
		"A": -math.MaxInt64,
		"B": math.MaxInt64/2 + 1,
		"C": math.MaxInt64/2 + 1,
	}, s.Deltas)
	assert.Equal(t, int64(1), s.Residue)

	s, err = engine.Settle(players("A", "B"), []engine.Owed{
		{Name: "A", Owed: math.MaxInt64},
		{Name: "B", Owed: -math.MaxInt64},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, s.Residue)
	assert.Equal(t, int64(math.MaxInt64), s.Deltas["B"])
}

func TestSettle_OutOfRangeDetails(t *testing.T) {
	_, err := engine.Settle(players("A", "B", "C"), []engine.Owed{
		{Name: "A", Owed: math.MaxInt64},
		{Name: "B", Owed: math.MaxInt64},
	}, nil)
	var oor *engine.AmountOutOfRangeError
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, "B", oor.Name)
	assert.Equal(t, "total", oor.Field)
}

// =============================================================================
// REMAINDER SHARE
// =============================================================================

func TestRemainderShare(t *testing.T) {
	tests := []struct {
		total int64
		n     int
		want  int64
	}{
		{100, 2, 50},
		{5, 2, 3},
		{-5, 2, -3},
		{7, 2, 4},
		{1, 3, 0},
		{2, 3, 1},
		{-2, 3, -1},
		{0, 4, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, engine.RemainderShare(tt.total, tt.n), "RemainderShare(%d, %d)", tt.total, tt.n)
	}
}

func TestSettlement_RecordCopiesSlices(t *testing.T) {
	s, err := engine.Settle(players("A", "B"), []engine.Owed{{Name: "A", Owed: 10}}, nil)
	require.NoError(t, err)

	rec := s.Record("A 10")
	s.Details[0].Amount = 999

	assert.Equal(t, "A 10", rec.RawInput)
	assert.Equal(t, int64(-10), rec.Details[0].Amount)
	assert.Zero(t, rec.Sum())
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
