/*
scenarios.go - Demo games for testing and demonstrations

PURPOSE:
	Provides pre-built games that populate the store with a roster and a
	few settled rounds, each showing one engine behaviour.

AVAILABLE SCENARIOS:
	classic-table:   Three players, losses and wins mixed
	uneven-split:    Remainder that does not divide evenly (residue)
	bonus-night:     Bonuses layered on top of settlements
	similar-names:   Longest-name and word-boundary matching

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create the roster
 3. Settle each round through the controller

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "classic-table"}

NOTE:
	Scenarios reset the store. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/gamble-ledger/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	rounds []engine.RoundInput
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "classic-table",
			Name:        "Classic Table",
			Description: "Three players, one loser per round, the rest split the pot",
			Players:     []string{"Hoa", "Minh", "Lan"},
		},
		rounds: []engine.RoundInput{
			{Losses: "Hoa 100"},
			{Wins: "Minh 60"},
			{Losses: "Lan 30 Hoa 20"},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "uneven-split",
			Name:        "Uneven Split",
			Description: "A loss shared by three winners leaves a rounding residue",
			Players:     []string{"An", "Bình", "Chi", "Dũng"},
		},
		rounds: []engine.RoundInput{
			{Losses: "An 100"},
			{Losses: "Bình 50", Wins: "Chi 10"},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "bonus-night",
			Name:        "Bonus Night",
			Description: "Special hands paid as bonuses on top of the settlement",
			Players:     []string{"Hoa", "Minh", "Lan", "Tuấn"},
		},
		rounds: []engine.RoundInput{
			{
				Losses:  "Tuấn 40",
				Bonuses: []engine.Bonus{{Name: "Hoa", Amount: 20}, {Name: "Minh", Amount: -20}},
			},
			{
				Explicit: []engine.Owed{{Name: "Lan", Owed: 30}, {Name: "Hoa", Owed: -30}},
			},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "similar-names",
			Name:        "Similar Names",
			Description: "Names that contain each other: Tuấn Anh / Anh, Khoa / Hoa",
			Players:     []string{"Tuấn Anh", "Anh", "Khoa", "Hoa"},
		},
		rounds: []engine.RoundInput{
			{Losses: "tuấn anh 60 khoa 20", Wins: "anh 50"},
			{Losses: "Hoa 30"},
		},
	},
}

func init() {
	for i := range scenarios {
		scenarios[i].Rounds = len(scenarios[i].rounds)
	}
}

func scenarioDTOs() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	return out
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarioDTOs())
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, _ := findScenario(current)
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the store and replays a predefined game.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = ""

	if err := h.loadScenario(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = s.ID
	h.Metrics.Players.Set(float64(len(s.Players)))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": s.ID})
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) error {
	if err := h.Controller.Reset(ctx); err != nil {
		return err
	}
	if _, err := h.Controller.CreateRoster(ctx, s.Players); err != nil {
		return fmt.Errorf("roster: %w", err)
	}
	for i, in := range s.rounds {
		if _, err := h.Controller.SettleRound(ctx, in); err != nil {
			return fmt.Errorf("round %d: %w", i+1, err)
		}
	}
	h.logger.Info("Scenario loaded", "scenario", s.ID, "rounds", len(s.rounds))
	return nil
}
