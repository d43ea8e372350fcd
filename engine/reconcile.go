/*
reconcile.go - Ledger replay and balance verification

PURPOSE:
  Balances start at zero and are changed only by rounds, so replaying the
  ledger from zero must reproduce the stored balances exactly. Reconcile
  does that replay and reports any drift. It never writes.

CHECKS:
  1. Per player: stored balance == replayed balance
  2. Global: sum(balances) == sum(round residues) + sum(bonus imbalances)
     (zero when no round had a rounding residue or an unpaired bonus)

The two global terms are reported separately so an unpaired bonus is
never mistaken for rounding.
*/
package engine

import (
	"context"
	"sort"
)

// PlayerDrift is a player whose stored balance disagrees with the ledger.
type PlayerDrift struct {
	Name     string
	Stored   int64
	Replayed int64
}

// Reconciliation is the result of a ledger replay.
type Reconciliation struct {
	Players    int
	Rounds     int
	BalanceSum int64
	ResidueSum int64

	// BonusImbalanceSum is the net of all unpaired bonuses.
	BonusImbalanceSum int64

	Drift []PlayerDrift
}

// Balanced reports whether the stored state matches the ledger.
func (r *Reconciliation) Balanced() bool {
	return len(r.Drift) == 0 && r.BalanceSum == r.ResidueSum+r.BonusImbalanceSum
}

// Replay computes balances from zero by applying every round in order.
// Rounds naming players outside roster are still accumulated.
func Replay(roster []string, rounds []RoundRecord) map[string]int64 {
	balances := make(map[string]int64, len(roster))
	for _, name := range roster {
		balances[name] = 0
	}
	for _, r := range rounds {
		for name, d := range r.Deltas() {
			balances[name] += d
		}
	}
	return balances
}

// Reconcile replays the ledger against the stored roster.
func (c *Controller) Reconcile(ctx context.Context) (*Reconciliation, error) {
	result := &Reconciliation{}

	err := c.store.WithTx(ctx, func(s Store) error {
		players, err := s.GetAllPlayers(ctx)
		if err != nil {
			return err
		}
		rounds, err := s.GetAllRounds(ctx)
		if err != nil {
			return err
		}

		result.Players = len(players)
		result.Rounds = len(rounds)

		names := make([]string, len(players))
		stored := make(map[string]int64, len(players))
		for i, p := range players {
			names[i] = p.Name
			stored[p.Name] = p.Balance
			result.BalanceSum += p.Balance
		}
		for _, r := range rounds {
			result.ResidueSum += r.Residue
			result.BonusImbalanceSum += r.BonusImbalance()
		}

		replayed := Replay(names, rounds)
		for name, want := range replayed {
			if got := stored[name]; got != want {
				result.Drift = append(result.Drift, PlayerDrift{Name: name, Stored: got, Replayed: want})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result.Drift, func(i, j int) bool { return result.Drift[i].Name < result.Drift[j].Name })
	if !result.Balanced() {
		c.logger.Warn("Ledger does not reconcile",
			"balance_sum", result.BalanceSum,
			"residue_sum", result.ResidueSum,
			"bonus_imbalance_sum", result.BonusImbalanceSum,
			"drift", len(result.Drift),
		)
	}
	return result, nil
}
