/*
Package engine provides the round settlement and ledger engine.

PURPOSE:
  Tracks running balances among a fixed roster of players across rounds of
  a card game. Rounds are described by loose text ("Hoa 100 Minh 50") or by
  structured amounts. The engine parses them, computes a zero-sum
  redistribution, applies it atomically and keeps a reversible history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Player:      A roster member with a running balance
  - RoundRecord: An immutable ledger entry for one settled round
  - Detail:      One balance delta inside a round (loser/winner/remaining)
  - Bonus:       Extra delta layered on top of a settlement
  - Owed:        "Amount this player owes the pot" before sign conversion

ZERO-SUM:
  Every round's details sum to zero, except for a bounded rounding residue
  produced when the remainder does not divide evenly. The residue is
  stored on the record so nothing is silently absorbed. Bonuses are kept
  out of the residue; an unpaired bonus shows up as BonusImbalance.

SEE ALSO:
  - parser.go:     Statement parsing
  - settlement.go: Delta computation
  - ledger.go:     Round history
  - controller.go: Atomic settle/reverse orchestration
*/
package engine

// =============================================================================
// PLAYER
// =============================================================================

// Player is a roster member. Name is the identity key.
type Player struct {
	Name    string
	Balance int64
}

// =============================================================================
// ROUND RECORD - Immutable ledger entry
// =============================================================================

// RoundID identifies a round. It is a millisecond timestamp made strictly
// increasing by IDGenerator, so ordering by ID is ordering by creation.
type RoundID int64

// DetailKind classifies how a detail delta was derived.
type DetailKind string

const (
	KindLoser     DetailKind = "loser"
	KindWinner    DetailKind = "winner"
	KindRemaining DetailKind = "remaining"
)

// Detail is the balance delta applied to one player by the settlement.
type Detail struct {
	Name   string
	Amount int64
	Kind   DetailKind
}

// Bonus is an extra delta applied independently of the settlement.
type Bonus struct {
	Name   string
	Amount int64
}

// RoundRecord is one settled round. Records are never updated; reversal
// deletes them.
type RoundRecord struct {
	ID       RoundID
	RawInput string
	Details  []Detail
	Bonus    []Bonus

	// CreatedAt is display-formatted local time. Presentation only.
	CreatedAt string

	// Residue is sum(Details). Non-zero only from remainder rounding.
	Residue int64
}

// BonusImbalance returns sum(Bonus). It is zero when bonuses are paired.
func (r RoundRecord) BonusImbalance() int64 {
	var sum int64
	for _, b := range r.Bonus {
		sum += b.Amount
	}
	return sum
}

// Deltas returns the net balance change per player recorded by this round.
func (r RoundRecord) Deltas() map[string]int64 {
	deltas := make(map[string]int64, len(r.Details)+len(r.Bonus))
	for _, d := range r.Details {
		deltas[d.Name] += d.Amount
	}
	for _, b := range r.Bonus {
		deltas[b.Name] += b.Amount
	}
	return deltas
}

// Sum returns the total of all deltas in the record.
func (r RoundRecord) Sum() int64 {
	var sum int64
	for _, d := range r.Details {
		sum += d.Amount
	}
	for _, b := range r.Bonus {
		sum += b.Amount
	}
	return sum
}

// =============================================================================
// INPUT
// =============================================================================

// Owed is a signed amount a player owes the pot.
// Positive = player lost this round, negative = player won.
type Owed struct {
	Name string
	Owed int64
}

// RoundInput describes one round. Text statements and structured amounts
// may be combined; both are converted to Owed before settlement.
type RoundInput struct {
	// Losses is free text where every "<name> <amount>" is a loss.
	Losses string

	// Wins is free text where every "<name> <amount>" is a win.
	Wins string

	// Explicit bypasses the parser.
	Explicit []Owed

	Bonuses []Bonus
}

// RawText returns the diagnostic text stored on the round record.
func (in RoundInput) RawText() string {
	switch {
	case in.Losses != "" && in.Wins != "":
		return in.Losses + " | " + in.Wins
	case in.Wins != "":
		return in.Wins
	default:
		return in.Losses
	}
}
