/*
handlers.go - HTTP API handlers for the round ledger

PURPOSE:
  Exposes the engine controller via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the controller.

ENDPOINTS:
  Players:
    GET    /api/players            Roster in seating order
    POST   /api/players            Start a game ({"names": [...]})
    GET    /api/standings          Roster sorted by balance, winners first

  Rounds:
    GET    /api/rounds             History, oldest first
    GET    /api/rounds/{id}        One round
    POST   /api/rounds             Settle and record a round
    POST   /api/rounds/preview     Compute a round without recording it
    DELETE /api/rounds/{id}        Undo a round (idempotent)

  Admin:
    GET    /api/reconciliation     Replay the ledger against balances
    POST   /api/reset              Wipe players and history

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unparseable or unbalanced rounds
  - 404: Round not found
  - 409: Roster already exists
  - 500: Store failures

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo game loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/gamble-ledger/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Controller *engine.Controller
	Metrics    *Metrics

	validate *validator.Validate
	logger   *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over controller. A nil logger means slog.Default().
func NewHandler(controller *engine.Controller, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Controller: controller,
		Metrics:    metrics,
		validate:   validator.New(),
		logger:     logger,
	}
}

// =============================================================================
// PLAYER HANDLERS
// =============================================================================

// ListPlayers returns the roster.
func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.Controller.Players(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list players", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerDTOs(players))
}

// CreateRoster starts a new game with zero balances.
func (h *Handler) CreateRoster(w http.ResponseWriter, r *http.Request) {
	var req CreateRosterRequest
	if !h.decode(w, r, &req) {
		return
	}

	players, err := h.Controller.CreateRoster(r.Context(), req.Names)
	if err != nil {
		writeEngineError(w, "Failed to create roster", err)
		return
	}
	h.Metrics.Players.Set(float64(len(players)))
	writeJSON(w, http.StatusCreated, toPlayerDTOs(players))
}

// Standings returns the roster sorted by balance.
func (h *Handler) Standings(w http.ResponseWriter, r *http.Request) {
	players, err := h.Controller.Standings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute standings", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerDTOs(players))
}

// =============================================================================
// ROUND HANDLERS
// =============================================================================

// ListRounds returns the full history, oldest first.
func (h *Handler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.Controller.History(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rounds", err)
		return
	}

	dtos := make([]RoundDTO, len(rounds))
	for i, rec := range rounds {
		dtos[i] = toRoundDTO(rec, i+1)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRound returns one round.
func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, ok := roundIDParam(w, r)
	if !ok {
		return
	}

	rounds, err := h.Controller.History(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load round", err)
		return
	}
	index := roundIndex(rounds, id)
	if index == 0 {
		writeError(w, http.StatusNotFound, "Round not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRoundDTO(rounds[index-1], index))
}

// SettleRound records a round and applies it to the balances.
func (h *Handler) SettleRound(w http.ResponseWriter, r *http.Request) {
	var req RoundRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	rec, err := h.Controller.SettleRound(ctx, req.toInput())
	if err != nil {
		h.Metrics.observeFailure("settle", err)
		writeEngineError(w, "Failed to settle round", err)
		return
	}
	h.Metrics.RoundsSettled.Inc()
	if rec.Residue != 0 {
		h.Metrics.ResidueRounds.Inc()
	}

	// Rounds settled concurrently sort after this one.
	index := 0
	if rounds, err := h.Controller.History(ctx); err == nil {
		index = roundIndex(rounds, rec.ID)
	}
	writeJSON(w, http.StatusCreated, toRoundDTO(*rec, index))
}

// PreviewRound computes a round without recording it.
func (h *Handler) PreviewRound(w http.ResponseWriter, r *http.Request) {
	var req RoundRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.Controller.Preview(r.Context(), req.toInput())
	if err != nil {
		writeEngineError(w, "Failed to preview round", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(s))
}

// ReverseRound undoes a round. Undoing a missing round is not an error.
func (h *Handler) ReverseRound(w http.ResponseWriter, r *http.Request) {
	id, ok := roundIDParam(w, r)
	if !ok {
		return
	}

	reversed, err := h.Controller.ReverseRound(r.Context(), id)
	if err != nil {
		h.Metrics.observeFailure("reverse", err)
		writeEngineError(w, "Failed to reverse round", err)
		return
	}
	if reversed {
		h.Metrics.RoundsReversed.Inc()
	}
	writeJSON(w, http.StatusOK, ReverseResponse{ID: int64(id), Reversed: reversed})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Reconcile replays the ledger and reports drift.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.Controller.Reconcile(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(result))
}

// Reset wipes every player and round.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	h.Metrics.Players.Set(0)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. On failure the
// response is written and false is returned.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func roundIDParam(w http.ResponseWriter, r *http.Request) (engine.RoundID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid round id %q", raw), err)
		return 0, false
	}
	return engine.RoundID(id), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// roundIndex returns the 1-based position of id in rounds, or 0.
func roundIndex(rounds []engine.RoundRecord, id engine.RoundID) int {
	for i, rec := range rounds {
		if rec.ID == id {
			return i + 1
		}
	}
	return 0
}

// writeEngineError maps engine errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch errorClass(err) {
	case "conflict":
		writeError(w, http.StatusConflict, message, err)
	case "client":
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "Validation failed", Details: err.Error()}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[fe.Namespace()] = fmt.Sprintf("failed on '%s' tag", fe.Tag())
		}
	}
	writeJSON(w, http.StatusBadRequest, resp)
}
