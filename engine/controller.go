/*
controller.go - Round controller: atomic settle and reverse

PURPOSE:
  Orchestrates parser, calculator, roster balances and ledger. Every
  mutating call runs inside one TxStore.WithTx so balances and history
  can never disagree: either all writes land or none do.

SETTLE FLOW:
  1. Read the roster inside the transaction
  2. Parse loss/win text and merge structured amounts into []Owed
  3. Settle (settlement.go)
  4. Apply every delta to the players
  5. Append the round record to the ledger

REVERSE FLOW:
  1. Look up the record; absent means already reversed (no-op)
  2. Subtract every detail and bonus amount (missing players are skipped)
  3. Remove the record
  Reversal uses the stored deltas only. It never re-parses or re-runs the
  remainder calculation, so it is exact even if the roster has changed.

EXAMPLE:
  c := engine.NewController(store)
  rec, err := c.SettleRound(ctx, engine.RoundInput{Losses: "Hoa 100"})
  ...
  _, err = c.ReverseRound(ctx, rec.ID)
*/
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DefaultTimeFormat is the display format of RoundRecord.CreatedAt.
const DefaultTimeFormat = "15:04"

// Controller is the entry point for all roster and round operations.
type Controller struct {
	store      TxStore
	ids        *IDGenerator
	now        func() time.Time
	location   *time.Location
	timeFormat string
	logger     *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock sets the clock used for IDs and CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLocation sets the time zone for CreatedAt.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) { c.location = loc }
}

// WithTimeFormat sets the layout for CreatedAt.
func WithTimeFormat(layout string) Option {
	return func(c *Controller) { c.timeFormat = layout }
}

// NewController creates a controller over store.
func NewController(store TxStore, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		now:        time.Now,
		location:   time.Local,
		timeFormat: DefaultTimeFormat,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ids = NewIDGenerator(c.now)
	return c
}

// =============================================================================
// ROSTER
// =============================================================================

// CreateRoster starts a game with zero balances. It fails if a roster
// already exists.
func (c *Controller) CreateRoster(ctx context.Context, names []string) ([]Player, error) {
	clean, err := ValidateRoster(names)
	if err != nil {
		return nil, err
	}

	players := make([]Player, len(clean))
	err = c.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetAllPlayers(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrRosterExists
		}
		for i, name := range clean {
			players[i] = Player{Name: name}
			if err := s.PutPlayer(ctx, players[i]); err != nil {
				return fmt.Errorf("failed to create player %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("Roster creation failed", "names", names, "error", err)
		return nil, err
	}

	c.logger.Info("Roster created", "players", clean)
	return players, nil
}

// Players returns the roster in store order.
func (c *Controller) Players(ctx context.Context) ([]Player, error) {
	return c.store.GetAllPlayers(ctx)
}

// Standings returns the roster sorted by balance (highest first), then name.
func (c *Controller) Standings(ctx context.Context) ([]Player, error) {
	players, err := c.store.GetAllPlayers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Balance != players[j].Balance {
			return players[i].Balance > players[j].Balance
		}
		return players[i].Name < players[j].Name
	})
	return players, nil
}

// Reset wipes every player and round.
func (c *Controller) Reset(ctx context.Context) error {
	err := c.store.WithTx(ctx, func(s Store) error {
		return s.ClearAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}
	c.logger.Info("Game reset")
	return nil
}

// =============================================================================
// ROUNDS
// =============================================================================

// History returns every round in ascending ID order.
func (c *Controller) History(ctx context.Context) ([]RoundRecord, error) {
	return NewLedger(c.store, c.ids).All(ctx)
}

// Round returns one round, or nil when absent.
func (c *Controller) Round(ctx context.Context, id RoundID) (*RoundRecord, error) {
	return NewLedger(c.store, c.ids).Get(ctx, id)
}

// Preview computes the settlement for in without changing anything.
func (c *Controller) Preview(ctx context.Context, in RoundInput) (*Settlement, error) {
	players, err := c.store.GetAllPlayers(ctx)
	if err != nil {
		return nil, err
	}
	return settleInput(players, in)
}

// SettleRound parses, settles, applies and records one round atomically.
func (c *Controller) SettleRound(ctx context.Context, in RoundInput) (*RoundRecord, error) {
	var record RoundRecord

	err := c.store.WithTx(ctx, func(s Store) error {
		players, err := s.GetAllPlayers(ctx)
		if err != nil {
			return err
		}

		settlement, err := settleInput(players, in)
		if err != nil {
			return err
		}

		if err := applyDeltas(ctx, s, settlement.Deltas, 1, false); err != nil {
			return err
		}

		record = settlement.Record(in.RawText())
		record.CreatedAt = c.now().In(c.location).Format(c.timeFormat)

		id, err := NewLedger(s, c.ids).Append(ctx, record)
		if err != nil {
			return err
		}
		record.ID = id
		return nil
	})
	if err != nil {
		c.logger.Warn("Round settlement failed", "input", in.RawText(), "error", err)
		return nil, err
	}

	if record.Residue != 0 {
		c.logger.Warn("Round has rounding residue",
			"round_id", record.ID,
			"residue", record.Residue,
		)
	}
	if imbalance := record.BonusImbalance(); imbalance != 0 {
		c.logger.Warn("Round bonuses do not net to zero",
			"round_id", record.ID,
			"bonus_imbalance", imbalance,
		)
	}
	c.logger.Info("Round settled",
		"round_id", record.ID,
		"details", len(record.Details),
		"bonus", len(record.Bonus),
	)
	return &record, nil
}

// ReverseRound undoes a round and removes it from the ledger.
// It returns false when the round does not exist (already reversed).
func (c *Controller) ReverseRound(ctx context.Context, id RoundID) (bool, error) {
	reversed := false

	err := c.store.WithTx(ctx, func(s Store) error {
		ledger := NewLedger(s, c.ids)
		record, err := ledger.Get(ctx, id)
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}

		if err := applyDeltas(ctx, s, record.Deltas(), -1, true); err != nil {
			return err
		}
		if err := ledger.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove round %d: %w", id, err)
		}
		reversed = true
		return nil
	})
	if err != nil {
		c.logger.Warn("Round reversal failed", "round_id", id, "error", err)
		return false, err
	}

	if reversed {
		c.logger.Info("Round reversed", "round_id", id)
	} else {
		c.logger.Debug("Round already reversed", "round_id", id)
	}
	return reversed, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// settleInput converts text and structured input to owed amounts and settles.
func settleInput(players []Player, in RoundInput) (*Settlement, error) {
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Name
	}

	matcher := NewMatcher(names)
	var explicit []Owed
	for _, st := range matcher.Match(in.Losses, Loss) {
		explicit = append(explicit, st.Owed())
	}
	for _, st := range matcher.Match(in.Wins, Win) {
		explicit = append(explicit, st.Owed())
	}
	explicit = append(explicit, in.Explicit...)

	return Settle(players, explicit, in.Bonuses)
}

// applyDeltas adds sign*delta to each player's balance. Names are visited
// in sorted order. With skipMissing, absent players are ignored; otherwise
// they fail the transaction. A balance that would overflow fails it too.
func applyDeltas(ctx context.Context, s Store, deltas map[string]int64, sign int64, skipMissing bool) error {
	names := make([]string, 0, len(deltas))
	for name := range deltas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p, err := s.GetPlayer(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to load player %q: %w", name, err)
		}
		if p == nil {
			if skipMissing {
				continue
			}
			return &UnknownPlayerError{Name: name, Field: "roster"}
		}
		delta := deltas[name]
		if sign < 0 {
			var ok bool
			if delta, ok = negateAmount(delta); !ok {
				return &AmountOutOfRangeError{Name: name, Field: "balance"}
			}
		}
		balance, ok := addAmount(p.Balance, delta)
		if !ok {
			return &AmountOutOfRangeError{Name: name, Field: "balance"}
		}
		p.Balance = balance
		if err := s.PutPlayer(ctx, *p); err != nil {
			return fmt.Errorf("failed to update player %q: %w", name, err)
		}
	}
	return nil
}
