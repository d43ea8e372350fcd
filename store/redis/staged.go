package redis

import (
	"context"
	"sort"

	goredis "github.com/go-redis/redis/v8"
	"github.com/warp/gamble-ledger/engine"
)

// stagedView is the engine.Store handed to WithTx callbacks. Reads merge
// Redis state with buffered writes; writes stay in memory until flush.
type stagedView struct {
	r    reader
	keys keys

	cleared    bool
	players    map[string]playerValue
	rounds     map[engine.RoundID]*engine.RoundRecord // nil value = deleted
	baseCount  int64
	countKnown bool
}

func newStagedView(r reader, k keys) *stagedView {
	return &stagedView{
		r:       r,
		keys:    k,
		players: make(map[string]playerValue),
		rounds:  make(map[engine.RoundID]*engine.RoundRecord),
	}
}

func (v *stagedView) dirty() bool {
	return v.cleared || len(v.players) > 0 || len(v.rounds) > 0
}

func (v *stagedView) GetAllPlayers(ctx context.Context) ([]engine.Player, error) {
	values, err := v.mergedPlayers(ctx)
	if err != nil {
		return nil, err
	}
	return sortedPlayers(values), nil
}

func (v *stagedView) GetPlayer(ctx context.Context, name string) (*engine.Player, error) {
	pv, err := v.player(ctx, name)
	if err != nil || pv == nil {
		return nil, err
	}
	return &engine.Player{Name: name, Balance: pv.Balance}, nil
}

func (v *stagedView) PutPlayer(ctx context.Context, p engine.Player) error {
	existing, err := v.player(ctx, p.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		v.players[p.Name] = playerValue{Balance: p.Balance, Seq: existing.Seq}
		return nil
	}

	seq, err := v.nextSeq(ctx)
	if err != nil {
		return err
	}
	v.players[p.Name] = playerValue{Balance: p.Balance, Seq: seq}
	return nil
}

func (v *stagedView) GetAllRounds(ctx context.Context) ([]engine.RoundRecord, error) {
	rounds := make(map[engine.RoundID]engine.RoundRecord)
	if !v.cleared {
		base, err := readRounds(ctx, v.r, v.keys)
		if err != nil {
			return nil, err
		}
		rounds = base
	}
	for id, r := range v.rounds {
		if r == nil {
			delete(rounds, id)
			continue
		}
		rounds[id] = *r
	}
	return sortedRounds(rounds), nil
}

func (v *stagedView) GetRound(ctx context.Context, id engine.RoundID) (*engine.RoundRecord, error) {
	if r, ok := v.rounds[id]; ok {
		if r == nil {
			return nil, nil
		}
		c := *r
		return &c, nil
	}
	if v.cleared {
		return nil, nil
	}
	return readRound(ctx, v.r, v.keys, id)
}

func (v *stagedView) PutRound(_ context.Context, r engine.RoundRecord) error {
	v.rounds[r.ID] = &r
	return nil
}

func (v *stagedView) DeleteRound(_ context.Context, id engine.RoundID) error {
	v.rounds[id] = nil
	return nil
}

func (v *stagedView) LatestRoundID(ctx context.Context) (engine.RoundID, error) {
	rounds, err := v.GetAllRounds(ctx)
	if err != nil {
		return 0, err
	}
	if len(rounds) == 0 {
		return 0, nil
	}
	return rounds[len(rounds)-1].ID, nil
}

func (v *stagedView) ClearAll(_ context.Context) error {
	v.cleared = true
	v.players = make(map[string]playerValue)
	v.rounds = make(map[engine.RoundID]*engine.RoundRecord)
	v.baseCount = 0
	v.countKnown = true
	return nil
}

// flush queues every buffered write on pipe: the clear first, then
// players by name, then rounds by id.
func (v *stagedView) flush(ctx context.Context, pipe goredis.Pipeliner) error {
	if v.cleared {
		pipe.Del(ctx, v.keys.players, v.keys.rounds, v.keys.roundIDs)
	}

	names := make([]string, 0, len(v.players))
	for name := range v.players {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := encodePlayer(v.players[name])
		if err != nil {
			return err
		}
		pipe.HSet(ctx, v.keys.players, name, data)
	}

	ids := make([]engine.RoundID, 0, len(v.rounds))
	for id := range v.rounds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		r := v.rounds[id]
		field := roundField(id)
		if r == nil {
			pipe.HDel(ctx, v.keys.rounds, field)
			pipe.ZRem(ctx, v.keys.roundIDs, field)
			continue
		}
		data, err := encodeRound(*r)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, v.keys.rounds, field, data)
		pipe.ZAdd(ctx, v.keys.roundIDs, &goredis.Z{Score: float64(id), Member: field})
	}
	return nil
}

// --- helpers ---

func (v *stagedView) player(ctx context.Context, name string) (*playerValue, error) {
	if pv, ok := v.players[name]; ok {
		return &pv, nil
	}
	if v.cleared {
		return nil, nil
	}
	return readPlayer(ctx, v.r, v.keys, name)
}

func (v *stagedView) mergedPlayers(ctx context.Context) (map[string]playerValue, error) {
	values := make(map[string]playerValue)
	if !v.cleared {
		base, err := readPlayers(ctx, v.r, v.keys)
		if err != nil {
			return nil, err
		}
		values = base
	}
	for name, pv := range v.players {
		values[name] = pv
	}
	return values, nil
}

// nextSeq returns one past the highest sequence number seen so far.
func (v *stagedView) nextSeq(ctx context.Context) (int64, error) {
	if !v.countKnown {
		values, err := v.mergedPlayers(ctx)
		if err != nil {
			return 0, err
		}
		for _, pv := range values {
			if pv.Seq+1 > v.baseCount {
				v.baseCount = pv.Seq + 1
			}
		}
		v.countKnown = true
	}
	seq := v.baseCount
	v.baseCount++
	return seq, nil
}
