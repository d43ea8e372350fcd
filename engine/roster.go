package engine

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MinPlayers is the smallest roster a game can start with.
const MinPlayers = 2

// RosterSetup is a caller-owned buffer of names collected before a game
// starts. It holds no store state; pass Names() to Controller.CreateRoster.
type RosterSetup struct {
	names []string
}

// Add appends a trimmed name. Blank names and case-insensitive duplicates
// are rejected.
func (r *RosterSetup) Add(name string) error {
	clean := CleanName(name)
	if clean == "" {
		return ErrInvalidName
	}
	for _, existing := range r.names {
		if foldKey(existing) == foldKey(clean) {
			return &DuplicatePlayerError{Name: clean, Existing: existing}
		}
	}
	r.names = append(r.names, clean)
	return nil
}

// Remove drops the name at index i. Out of range indexes are ignored.
func (r *RosterSetup) Remove(i int) {
	if i < 0 || i >= len(r.names) {
		return
	}
	r.names = append(r.names[:i], r.names[i+1:]...)
}

// Names returns a copy of the collected names.
func (r *RosterSetup) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Ready reports whether enough players were added to start.
func (r *RosterSetup) Ready() bool {
	return len(r.names) >= MinPlayers
}

// ValidateRoster cleans names and checks the roster rules:
// at least MinPlayers, no blanks, no case-insensitive duplicates.
func ValidateRoster(names []string) ([]string, error) {
	var setup RosterSetup
	for _, n := range names {
		if err := setup.Add(n); err != nil {
			return nil, err
		}
	}
	if !setup.Ready() {
		return nil, ErrInsufficientRoster
	}
	return setup.Names(), nil
}

// CleanName trims surrounding space and NFC-normalises a display name.
func CleanName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func foldKey(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}
