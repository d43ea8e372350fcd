/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Shape is checked here;
  roster and settlement rules are enforced by the engine.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/gamble-ledger/engine"
)

// =============================================================================
// PLAYERS
// =============================================================================

// PlayerDTO represents a roster member in API responses.
type PlayerDTO struct {
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// CreateRosterRequest starts a game.
type CreateRosterRequest struct {
	Names []string `json:"names" validate:"required,min=2,dive,required"`
}

// =============================================================================
// ROUNDS
// =============================================================================

// RoundRequest describes one round. Text and structured amounts may be mixed.
type RoundRequest struct {
	Losses   string     `json:"losses"`
	Wins     string     `json:"wins"`
	Explicit []OwedDTO  `json:"explicit" validate:"omitempty,dive"`
	Bonuses  []BonusDTO `json:"bonuses" validate:"omitempty,dive"`
}

// OwedDTO is an amount a player owes the pot (negative = won).
type OwedDTO struct {
	Name string `json:"name" validate:"required"`
	Owed int64  `json:"owed"`
}

// BonusDTO is an extra delta applied on top of the settlement.
type BonusDTO struct {
	Name   string `json:"name" validate:"required"`
	Amount int64  `json:"amount"`
}

// DetailDTO is one settlement delta.
type DetailDTO struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Kind   string `json:"kind"`
}

// RoundDTO represents a ledger entry. Index is the 1-based position in
// the current history.
type RoundDTO struct {
	ID        int64       `json:"id"`
	Index     int         `json:"index"`
	RawInput  string      `json:"raw_input"`
	Details   []DetailDTO `json:"details"`
	Bonus     []BonusDTO  `json:"bonus"`
	CreatedAt string      `json:"created_at"`
	Residue   int64       `json:"residue"`

	BonusImbalance int64 `json:"bonus_imbalance"`
}

// SettlementDTO is a preview of a round.
type SettlementDTO struct {
	Deltas         map[string]int64 `json:"deltas"`
	Details        []DetailDTO      `json:"details"`
	Bonus          []BonusDTO       `json:"bonus"`
	Total          int64            `json:"total"`
	Remaining      []string         `json:"remaining"`
	RemainderShare int64            `json:"remainder_share"`
	Residue        int64            `json:"residue"`
	BonusImbalance int64            `json:"bonus_imbalance"`
}

// ReverseResponse reports whether a round was undone.
type ReverseResponse struct {
	ID       int64 `json:"id"`
	Reversed bool  `json:"reversed"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

type DriftDTO struct {
	Name     string `json:"name"`
	Stored   int64  `json:"stored"`
	Replayed int64  `json:"replayed"`
}

type ReconciliationDTO struct {
	Players           int        `json:"players"`
	Rounds            int        `json:"rounds"`
	BalanceSum        int64      `json:"balance_sum"`
	ResidueSum        int64      `json:"residue_sum"`
	BonusImbalanceSum int64      `json:"bonus_imbalance_sum"`
	Balanced          bool       `json:"balanced"`
	Drift             []DriftDTO `json:"drift"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo game.
type ScenarioDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Players     []string `json:"players"`
	Rounds      int      `json:"rounds"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPlayerDTOs(players []engine.Player) []PlayerDTO {
	dtos := make([]PlayerDTO, len(players))
	for i, p := range players {
		dtos[i] = PlayerDTO{Name: p.Name, Balance: p.Balance}
	}
	return dtos
}

func toDetailDTOs(details []engine.Detail) []DetailDTO {
	dtos := make([]DetailDTO, len(details))
	for i, d := range details {
		dtos[i] = DetailDTO{Name: d.Name, Amount: d.Amount, Kind: string(d.Kind)}
	}
	return dtos
}

func toBonusDTOs(bonus []engine.Bonus) []BonusDTO {
	dtos := make([]BonusDTO, len(bonus))
	for i, b := range bonus {
		dtos[i] = BonusDTO{Name: b.Name, Amount: b.Amount}
	}
	return dtos
}

func toRoundDTO(r engine.RoundRecord, index int) RoundDTO {
	return RoundDTO{
		ID:        int64(r.ID),
		Index:     index,
		RawInput:  r.RawInput,
		Details:   toDetailDTOs(r.Details),
		Bonus:     toBonusDTOs(r.Bonus),
		CreatedAt: r.CreatedAt,
		Residue:   r.Residue,

		BonusImbalance: r.BonusImbalance(),
	}
}

func toSettlementDTO(s *engine.Settlement) SettlementDTO {
	remaining := s.Remaining
	if remaining == nil {
		remaining = []string{}
	}
	return SettlementDTO{
		Deltas:         s.Deltas,
		Details:        toDetailDTOs(s.Details),
		Bonus:          toBonusDTOs(s.Bonus),
		Total:          s.Total,
		Remaining:      remaining,
		RemainderShare: s.RemainderShare,
		Residue:        s.Residue,
		BonusImbalance: s.BonusImbalance,
	}
}

func toReconciliationDTO(r *engine.Reconciliation) ReconciliationDTO {
	drift := make([]DriftDTO, len(r.Drift))
	for i, d := range r.Drift {
		drift[i] = DriftDTO{Name: d.Name, Stored: d.Stored, Replayed: d.Replayed}
	}
	return ReconciliationDTO{
		Players:           r.Players,
		Rounds:            r.Rounds,
		BalanceSum:        r.BalanceSum,
		ResidueSum:        r.ResidueSum,
		BonusImbalanceSum: r.BonusImbalanceSum,
		Balanced:          r.Balanced(),
		Drift:             drift,
	}
}

func (req RoundRequest) toInput() engine.RoundInput {
	in := engine.RoundInput{Losses: req.Losses, Wins: req.Wins}
	for _, o := range req.Explicit {
		in.Explicit = append(in.Explicit, engine.Owed{Name: o.Name, Owed: o.Owed})
	}
	for _, b := range req.Bonuses {
		in.Bonuses = append(in.Bonuses, engine.Bonus{Name: b.Name, Amount: b.Amount})
	}
	return in
}
