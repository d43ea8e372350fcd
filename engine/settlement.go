/*
settlement.go - Zero-sum delta computation for one round

PURPOSE:
  Turns explicit "owed to pot" amounts and bonuses into the balance delta
  of every player. Pure function; no store access.

ALGORITHM:
  1. Aggregate owed per name (a player may appear several times).
  2. Classify: owed > 0 is a loser, owed < 0 a winner, 0 is dropped from
     the details but still counts as mentioned.
  3. total = sum(owed). Players never mentioned are "remaining"; each is
     credited remainderShare = round(total / |remaining|).
  4. delta = -owed for mentioned players, +remainderShare for remaining
     players, +amount for every bonus.

ROUNDING:
  remainderShare rounds half away from zero (decimal.Round). When total is
  not divisible by |remaining| the details sum to a residue with
  |residue| <= |remaining|-1. The residue is reported, never absorbed.

BONUSES:
  Bonuses are usually paired (+15 / -15) but pairing is not enforced. Their
  net sum is kept apart from the rounding residue as BonusImbalance.

RANGE:
  Every sum and negation is checked. Anything that would overflow an
  int64 fails with AmountOutOfRangeError before a delta is produced.

BALANCE POLICY:
  If every player is mentioned and the explicit amounts do not net to
  zero there is nobody to absorb the difference: NoCounterpartyError.

EXAMPLE:
  Roster A, B, C. Explicit A owes 30, B owes -10.
  total = 20, remaining = [C], remainderShare = 20.
  Deltas: A -30, B +10, C +20.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// Settlement is the computed effect of one round.
type Settlement struct {
	// Deltas is the net balance change per player (zero entries omitted).
	Deltas map[string]int64

	// Details are the settlement deltas in report order:
	// mentioned players first (first-seen order), then remaining players.
	Details []Detail

	// Bonus entries, as applied.
	Bonus []Bonus

	// Total is the sum of explicit owed amounts. Bonuses are not included.
	Total int64

	// Remaining lists players not mentioned in the explicit amounts.
	Remaining []string

	// RemainderShare is credited to each remaining player.
	RemainderShare int64

	// Residue is sum(Details): the rounding residue of the remainder split.
	// Bounded by |Remaining|-1 in absolute value.
	Residue int64

	// BonusImbalance is sum(Bonus). Zero when bonuses are paired.
	BonusImbalance int64
}

// Settle computes a round's deltas. players is the full roster.
func Settle(players []Player, explicit []Owed, bonuses []Bonus) (*Settlement, error) {
	if len(players) < 2 {
		return nil, ErrInsufficientRoster
	}
	if len(explicit) == 0 && len(bonuses) == 0 {
		return nil, ErrEmptySettlement
	}

	onRoster := make(map[string]bool, len(players))
	for _, p := range players {
		onRoster[p.Name] = true
	}

	// Step 1: aggregate
	owed := make(map[string]int64, len(explicit))
	var order []string
	for _, e := range explicit {
		if !onRoster[e.Name] {
			return nil, &UnknownPlayerError{Name: e.Name, Field: "explicit"}
		}
		if _, seen := owed[e.Name]; !seen {
			order = append(order, e.Name)
		}
		sum, ok := addAmount(owed[e.Name], e.Owed)
		if !ok {
			return nil, &AmountOutOfRangeError{Name: e.Name, Field: "explicit"}
		}
		owed[e.Name] = sum
	}
	for _, b := range bonuses {
		if !onRoster[b.Name] {
			return nil, &UnknownPlayerError{Name: b.Name, Field: "bonus"}
		}
	}

	s := &Settlement{Deltas: make(map[string]int64, len(players))}

	// Step 2: classify
	for _, name := range order {
		o := owed[name]
		total, ok := addAmount(s.Total, o)
		if !ok {
			return nil, &AmountOutOfRangeError{Name: name, Field: "total"}
		}
		s.Total = total
		if o == 0 {
			continue
		}
		delta, ok := negateAmount(o)
		if !ok {
			return nil, &AmountOutOfRangeError{Name: name, Field: "explicit"}
		}
		kind := KindLoser
		if o < 0 {
			kind = KindWinner
		}
		s.Details = append(s.Details, Detail{Name: name, Amount: delta, Kind: kind})
		s.Deltas[name] = delta
	}

	// Step 3: remainder
	for _, p := range players {
		if _, seen := owed[p.Name]; !seen {
			s.Remaining = append(s.Remaining, p.Name)
		}
	}
	if len(s.Remaining) == 0 {
		if s.Total != 0 {
			return nil, &NoCounterpartyError{Total: s.Total}
		}
	} else {
		// |share| <= |total|, so a remaining player's delta always fits.
		s.RemainderShare = RemainderShare(s.Total, len(s.Remaining))
		if s.RemainderShare != 0 {
			for _, name := range s.Remaining {
				s.Details = append(s.Details, Detail{Name: name, Amount: s.RemainderShare, Kind: KindRemaining})
				s.Deltas[name] = s.RemainderShare
			}
		}
	}

	// Step 4: bonuses
	for _, b := range bonuses {
		if b.Amount == 0 {
			continue
		}
		delta, ok := addAmount(s.Deltas[b.Name], b.Amount)
		if !ok {
			return nil, &AmountOutOfRangeError{Name: b.Name, Field: "bonus"}
		}
		imbalance, ok := addAmount(s.BonusImbalance, b.Amount)
		if !ok {
			return nil, &AmountOutOfRangeError{Name: b.Name, Field: "bonus"}
		}
		s.Bonus = append(s.Bonus, b)
		s.Deltas[b.Name] = delta
		s.BonusImbalance = imbalance
	}

	for name, d := range s.Deltas {
		if d == 0 {
			delete(s.Deltas, name)
		}
	}
	if len(s.Details) == 0 && len(s.Bonus) == 0 {
		return nil, ErrEmptySettlement
	}

	s.Residue = detailResidue(s.Details)
	return s, nil
}

// detailResidue sums details exactly. Partial sums of large opposing
// amounts may leave the int64 range even though the total is small.
func detailResidue(details []Detail) int64 {
	sum := decimal.Zero
	for _, d := range details {
		sum = sum.Add(decimal.NewFromInt(d.Amount))
	}
	return sum.IntPart()
}

// RemainderShare divides total among n players, rounding half away from zero.
func RemainderShare(total int64, n int) int64 {
	if n <= 0 {
		return 0
	}
	return decimal.NewFromInt(total).
		Div(decimal.NewFromInt(int64(n))).
		Round(0).
		IntPart()
}

// Record builds the ledger entry for this settlement. ID and CreatedAt are
// assigned by the ledger and controller.
func (s *Settlement) Record(rawInput string) RoundRecord {
	details := make([]Detail, len(s.Details))
	copy(details, s.Details)
	bonus := make([]Bonus, len(s.Bonus))
	copy(bonus, s.Bonus)
	return RoundRecord{
		RawInput: rawInput,
		Details:  details,
		Bonus:    bonus,
		Residue:  s.Residue,
	}
}
