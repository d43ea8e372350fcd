/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Every scenario must load without error, leave the ledger balanced and
	produce the balances documented below.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_ClassicTable(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "classic-table"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Hoa 100 -> Hoa -100, Minh +50, Lan +50
	// win Minh 60 -> Minh +60, Hoa -30, Lan -30
	// Lan 30 Hoa 20 -> Lan -30, Hoa -20, Minh +50
	players := decodeBody[[]PlayerDTO](t, s.do(t, http.MethodGet, "/api/players", nil))
	assert.Equal(t, []PlayerDTO{
		{Name: "Hoa", Balance: -150},
		{Name: "Minh", Balance: 160},
		{Name: "Lan", Balance: -10},
	}, players)

	current := decodeBody[ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "classic-table", current.ID)
	assert.Equal(t, 3, current.Rounds)
}

func TestScenario_SimilarNames(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "similar-names"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// round 1: Tuấn Anh -60, Khoa -20, Anh +50, Hoa +30
	// round 2: Hoa -30, others +10
	players := decodeBody[[]PlayerDTO](t, s.do(t, http.MethodGet, "/api/players", nil))
	assert.Equal(t, []PlayerDTO{
		{Name: "Tuấn Anh", Balance: -50},
		{Name: "Anh", Balance: 60},
		{Name: "Khoa", Balance: -10},
		{Name: "Hoa", Balance: 0},
	}, players)
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	for _, sc := range scenarioDTOs() {
		t.Run(sc.ID, func(t *testing.T) {
			s := setupTestServer(t)

			rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: sc.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rounds := decodeBody[[]RoundDTO](t, s.do(t, http.MethodGet, "/api/rounds", nil))
			assert.Len(t, rounds, sc.Rounds)

			result, err := s.handler.Controller.Reconcile(context.Background())
			require.NoError(t, err)
			assert.True(t, result.Balanced())
		})
	}
}

func TestScenario_LoadTwiceReplacesGame(t *testing.T) {
	s := setupTestServer(t)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "bonus-night"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "uneven-split"}).Code)

	players := decodeBody[[]PlayerDTO](t, s.do(t, http.MethodGet, "/api/players", nil))
	require.Len(t, players, 4)
	assert.Equal(t, "An", players[0].Name)
}

func TestScenario_Unknown(t *testing.T) {
	s := setupTestServer(t)

	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "poker"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{}).Code)

	list := decodeBody[[]ScenarioDTO](t, s.do(t, http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, list, len(scenarios))
}
