/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place. Every failure is local to one call and
  leaves committed state untouched (the store transaction is rolled back).

ERROR CATEGORIES:
  1. Settlement errors - Input produced nothing usable or cannot balance
  2. Roster errors     - Invalid game setup
  3. Ledger errors     - Round persistence failures

USAGE:
  if errors.Is(err, engine.ErrNoCounterparty) {
      // every player was mentioned and the amounts do not net to zero
  }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptySettlement is returned when a round has nothing to apply.
	ErrEmptySettlement = errors.New("empty settlement: no player amounts recognised")

	// ErrNoCounterparty is returned when explicit amounts do not net to zero
	// and no unmentioned player is left to absorb the difference.
	ErrNoCounterparty = errors.New("no counterparty: round does not balance")

	// ErrUnknownPlayer is returned when an input names a player not in the roster.
	ErrUnknownPlayer = errors.New("unknown player")

	// ErrInsufficientRoster is returned when fewer than two players are present.
	ErrInsufficientRoster = errors.New("at least two players are required")

	// ErrDuplicatePlayer is returned when a roster repeats a name (case-insensitive).
	ErrDuplicatePlayer = errors.New("duplicate player name")

	// ErrInvalidName is returned for blank player names.
	ErrInvalidName = errors.New("invalid player name")

	// ErrRosterExists is returned when starting a game while one is running.
	ErrRosterExists = errors.New("a roster already exists; reset first")

	// ErrDuplicateRoundID is returned when a round ID is already taken.
	ErrDuplicateRoundID = errors.New("duplicate round id")

	// ErrAmountOutOfRange is returned when an amount, a sum of amounts or a
	// resulting balance does not fit in an int64.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnknownPlayerError names the player that is not on the roster.
type UnknownPlayerError struct {
	Name  string
	Field string // "explicit" or "bonus"
}

func (e *UnknownPlayerError) Error() string {
	return fmt.Sprintf("unknown player %q in %s entries", e.Name, e.Field)
}

func (e *UnknownPlayerError) Unwrap() error {
	return ErrUnknownPlayer
}

// NoCounterpartyError reports the imbalance that could not be distributed.
type NoCounterpartyError struct {
	Total int64
}

func (e *NoCounterpartyError) Error() string {
	return fmt.Sprintf("no counterparty: every player was mentioned but amounts net to %d", e.Total)
}

func (e *NoCounterpartyError) Unwrap() error {
	return ErrNoCounterparty
}

// AmountOutOfRangeError names the player whose amount or balance would
// overflow. Field is "explicit", "bonus", "total" or "balance".
type AmountOutOfRangeError struct {
	Name  string
	Field string
}

func (e *AmountOutOfRangeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("amount out of range in %s", e.Field)
	}
	return fmt.Sprintf("amount out of range for %q in %s", e.Name, e.Field)
}

func (e *AmountOutOfRangeError) Unwrap() error {
	return ErrAmountOutOfRange
}

// DuplicatePlayerError names the clashing roster entries.
type DuplicatePlayerError struct {
	Name     string
	Existing string
}

func (e *DuplicatePlayerError) Error() string {
	return fmt.Sprintf("duplicate player %q (clashes with %q)", e.Name, e.Existing)
}

func (e *DuplicatePlayerError) Unwrap() error {
	return ErrDuplicatePlayer
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptySettlement) ||
		errors.Is(err, ErrNoCounterparty) ||
		errors.Is(err, ErrUnknownPlayer) ||
		errors.Is(err, ErrInsufficientRoster) ||
		errors.Is(err, ErrDuplicatePlayer) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrAmountOutOfRange)
}

// IsConflict returns true if the error is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrRosterExists) ||
		errors.Is(err, ErrDuplicateRoundID)
}
