/*
Package redis provides a Redis-backed implementation of engine.TxStore.

PURPOSE:
  Keeps the roster and the round ledger in Redis, the closest match to a
  plain key-value store. Useful when several short-lived CLI processes
  share one game.

KEYS (all under a configurable prefix):
  <prefix>:players    hash  name -> {"balance":..,"seq":..}
  <prefix>:rounds     hash  id   -> round JSON
  <prefix>:round_ids  zset  id scored by id, for ordering and MAX(id)

TRANSACTIONS:
  WithTx WATCHes the three keys, runs fn against a staged view (reads go
  to Redis through the watched connection, writes are buffered in memory)
  and commits every buffered write in one MULTI/EXEC. If fn fails nothing
  is sent. If a watched key changed meanwhile EXEC aborts and the error is
  returned without retry.
*/
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	goredis "github.com/go-redis/redis/v8"
	"github.com/warp/gamble-ledger/engine"
)

// Ensure Store implements engine.TxStore
var _ engine.TxStore = (*Store)(nil)

// DefaultPrefix is used when New is given an empty prefix.
const DefaultPrefix = "gamble"

// Store implements engine.TxStore on top of a go-redis client.
type Store struct {
	client *goredis.Client
	keys   keys
}

type keys struct {
	players  string
	rounds   string
	roundIDs string
}

// New creates a store using client. All keys are namespaced by prefix.
func New(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client: client,
		keys: keys{
			players:  prefix + ":players",
			rounds:   prefix + ":rounds",
			roundIDs: prefix + ":round_ids",
		},
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// =============================================================================
// STORE (engine.Store interface) - direct, non-transactional access
// =============================================================================

func (s *Store) GetAllPlayers(ctx context.Context) ([]engine.Player, error) {
	values, err := readPlayers(ctx, s.client, s.keys)
	if err != nil {
		return nil, err
	}
	return sortedPlayers(values), nil
}

func (s *Store) GetPlayer(ctx context.Context, name string) (*engine.Player, error) {
	v, err := readPlayer(ctx, s.client, s.keys, name)
	if err != nil || v == nil {
		return nil, err
	}
	return &engine.Player{Name: name, Balance: v.Balance}, nil
}

func (s *Store) PutPlayer(ctx context.Context, p engine.Player) error {
	return s.WithTx(ctx, func(tx engine.Store) error {
		return tx.PutPlayer(ctx, p)
	})
}

func (s *Store) GetAllRounds(ctx context.Context) ([]engine.RoundRecord, error) {
	rounds, err := readRounds(ctx, s.client, s.keys)
	if err != nil {
		return nil, err
	}
	return sortedRounds(rounds), nil
}

func (s *Store) GetRound(ctx context.Context, id engine.RoundID) (*engine.RoundRecord, error) {
	return readRound(ctx, s.client, s.keys, id)
}

func (s *Store) PutRound(ctx context.Context, r engine.RoundRecord) error {
	return s.WithTx(ctx, func(tx engine.Store) error {
		return tx.PutRound(ctx, r)
	})
}

func (s *Store) DeleteRound(ctx context.Context, id engine.RoundID) error {
	return s.WithTx(ctx, func(tx engine.Store) error {
		return tx.DeleteRound(ctx, id)
	})
}

func (s *Store) LatestRoundID(ctx context.Context) (engine.RoundID, error) {
	return readLatestRoundID(ctx, s.client, s.keys)
}

func (s *Store) ClearAll(ctx context.Context) error {
	return s.WithTx(ctx, func(tx engine.Store) error {
		return tx.ClearAll(ctx)
	})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a staged view and commits its writes atomically.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		view := newStagedView(tx, s.keys)
		if err := fn(view); err != nil {
			return err
		}
		if !view.dirty() {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return view.flush(ctx, pipe)
		})
		return err
	}, s.keys.players, s.keys.rounds, s.keys.roundIDs)

	if errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("redis transaction aborted by concurrent write: %w", err)
	}
	return err
}

// =============================================================================
// READERS - shared by Store and the staged view
// =============================================================================

// reader is satisfied by *redis.Client and *redis.Tx.
type reader interface {
	HGetAll(ctx context.Context, key string) *goredis.StringStringMapCmd
	HGet(ctx context.Context, key, field string) *goredis.StringCmd
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *goredis.ZSliceCmd
}

type playerValue struct {
	Balance int64 `json:"balance"`
	Seq     int64 `json:"seq"`
}

func readPlayers(ctx context.Context, r reader, k keys) (map[string]playerValue, error) {
	raw, err := r.HGetAll(ctx, k.players).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	values := make(map[string]playerValue, len(raw))
	for name, data := range raw {
		var v playerValue
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to decode player %q: %w", name, err)
		}
		values[name] = v
	}
	return values, nil
}

func readPlayer(ctx context.Context, r reader, k keys, name string) (*playerValue, error) {
	data, err := r.HGet(ctx, k.players, name).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	var v playerValue
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to decode player %q: %w", name, err)
	}
	return &v, nil
}

func readRounds(ctx context.Context, r reader, k keys) (map[engine.RoundID]engine.RoundRecord, error) {
	raw, err := r.HGetAll(ctx, k.rounds).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	rounds := make(map[engine.RoundID]engine.RoundRecord, len(raw))
	for _, data := range raw {
		rec, err := decodeRound(data)
		if err != nil {
			return nil, err
		}
		rounds[rec.ID] = rec
	}
	return rounds, nil
}

func readRound(ctx context.Context, r reader, k keys, id engine.RoundID) (*engine.RoundRecord, error) {
	data, err := r.HGet(ctx, k.rounds, roundField(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	rec, err := decodeRound(data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func readLatestRoundID(ctx context.Context, r reader, k keys) (engine.RoundID, error) {
	top, err := r.ZRevRangeWithScores(ctx, k.roundIDs, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read latest round id: %w", err)
	}
	if len(top) == 0 {
		return 0, nil
	}
	return engine.RoundID(int64(top[0].Score)), nil
}

func sortedPlayers(values map[string]playerValue) []engine.Player {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if values[names[i]].Seq != values[names[j]].Seq {
			return values[names[i]].Seq < values[names[j]].Seq
		}
		return names[i] < names[j]
	})

	players := make([]engine.Player, len(names))
	for i, name := range names {
		players[i] = engine.Player{Name: name, Balance: values[name].Balance}
	}
	return players
}

func sortedRounds(rounds map[engine.RoundID]engine.RoundRecord) []engine.RoundRecord {
	out := make([]engine.RoundRecord, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// ENCODING
// =============================================================================

type roundDoc struct {
	ID        int64       `json:"id"`
	RawInput  string      `json:"raw_input"`
	Details   []detailDoc `json:"details"`
	Bonus     []bonusDoc  `json:"bonus"`
	CreatedAt string      `json:"created_at"`
	Residue   int64       `json:"residue"`
}

type detailDoc struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Kind   string `json:"kind"`
}

type bonusDoc struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

func encodePlayer(v playerValue) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode player: %w", err)
	}
	return string(data), nil
}

func roundField(id engine.RoundID) string {
	return strconv.FormatInt(int64(id), 10)
}

func encodeRound(r engine.RoundRecord) (string, error) {
	doc := roundDoc{
		ID:        int64(r.ID),
		RawInput:  r.RawInput,
		Details:   make([]detailDoc, len(r.Details)),
		Bonus:     make([]bonusDoc, len(r.Bonus)),
		CreatedAt: r.CreatedAt,
		Residue:   r.Residue,
	}
	for i, d := range r.Details {
		doc.Details[i] = detailDoc{Name: d.Name, Amount: d.Amount, Kind: string(d.Kind)}
	}
	for i, b := range r.Bonus {
		doc.Bonus[i] = bonusDoc{Name: b.Name, Amount: b.Amount}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode round %d: %w", r.ID, err)
	}
	return string(data), nil
}

func decodeRound(data string) (engine.RoundRecord, error) {
	var doc roundDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return engine.RoundRecord{}, fmt.Errorf("failed to decode round: %w", err)
	}
	r := engine.RoundRecord{
		ID:        engine.RoundID(doc.ID),
		RawInput:  doc.RawInput,
		CreatedAt: doc.CreatedAt,
		Residue:   doc.Residue,
	}
	for _, d := range doc.Details {
		r.Details = append(r.Details, engine.Detail{Name: d.Name, Amount: d.Amount, Kind: engine.DetailKind(d.Kind)})
	}
	for _, b := range doc.Bonus {
		r.Bonus = append(r.Bonus, engine.Bonus{Name: b.Name, Amount: b.Amount})
	}
	return r, nil
}
