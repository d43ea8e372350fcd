/*
parser.go - Statement parser for "<name> <amount>" phrases

PURPOSE:
  Extracts (player, amount) pairs from free-form text, typically a
  voice transcript such as "hoa 100 tuấn anh 50". Matching is done
  against the known roster only; anything else in the text is ignored.

MATCHING RULES:
  1. Names are tried longest first, so "Tuấn Anh" wins over "Anh" and
     "Annabelle" over "Anna".
  2. Comparison is case-insensitive and Unicode-normalised (NFC).
  3. A name must start at a word boundary: "Hoa" never matches inside "Khoa".
     Digits count as a boundary, so "Hoa 100Minh 50" yields both players.
  4. The name must be followed by whitespace, an optional "-" and digits.
  5. Text is consumed left to right. A matched span is not re-scanned,
     so a shorter name can never steal part of a longer match.

SIGN CONVENTION:
  The parser reports the stated amount. The caller says whether the text
  describes losses or wins; Statement.Owed converts it to "owed to pot".

The parser has no side effects; an empty result is not an error.
*/
package engine

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SignConvention tells how a statement's amounts are to be read.
type SignConvention int

const (
	// Loss statements debit the player: owed = +amount.
	Loss SignConvention = iota
	// Win statements credit the player: owed = -amount.
	Win
)

func (c SignConvention) String() string {
	if c == Win {
		return "win"
	}
	return "loss"
}

// Statement is one "<name> <amount>" match.
type Statement struct {
	Name       string
	Amount     int64
	Convention SignConvention
}

// Owed converts the stated amount into "amount owed to the pot".
func (s Statement) Owed() Owed {
	if s.Convention == Win {
		return Owed{Name: s.Name, Owed: -s.Amount}
	}
	return Owed{Name: s.Name, Owed: s.Amount}
}

// =============================================================================
// MATCHER
// =============================================================================

// Matcher scans text for roster names followed by an amount.
// Build it once per roster; it is safe for concurrent use.
type Matcher struct {
	names []candidate
}

type candidate struct {
	name  string // roster spelling, reported in statements
	runes []rune // NFC form used for comparison
}

// NewMatcher builds a matcher for the given roster. Blank and repeated
// names are ignored.
func NewMatcher(knownNames []string) *Matcher {
	seen := make(map[string]bool, len(knownNames))
	names := make([]candidate, 0, len(knownNames))
	for _, n := range knownNames {
		if strings.TrimSpace(n) == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, candidate{name: n, runes: []rune(norm.NFC.String(n))})
	}

	sort.SliceStable(names, func(i, j int) bool {
		if len(names[i].runes) != len(names[j].runes) {
			return len(names[i].runes) > len(names[j].runes)
		}
		return names[i].name < names[j].name
	})
	return &Matcher{names: names}
}

// Names returns the roster names in match order (longest first).
func (m *Matcher) Names() []string {
	out := make([]string, len(m.names))
	for i, c := range m.names {
		out[i] = c.name
	}
	return out
}

// Match returns every statement found in text, in order of appearance.
func (m *Matcher) Match(text string, conv SignConvention) []Statement {
	runes := []rune(norm.NFC.String(text))
	var out []Statement

	for i := 0; i < len(runes); {
		if !atWordStart(runes, i) {
			i++
			continue
		}
		next := -1
		for _, c := range m.names {
			end, amount, ok := matchAt(runes, i, c.runes)
			if !ok {
				continue
			}
			out = append(out, Statement{Name: c.name, Amount: amount, Convention: conv})
			next = end
			break
		}
		if next < 0 {
			i++
			continue
		}
		i = next
	}
	return out
}

// Parse is a convenience wrapper: NewMatcher(knownNames).Match(text, conv).
func Parse(text string, knownNames []string, conv SignConvention) []Statement {
	return NewMatcher(knownNames).Match(text, conv)
}

// matchAt tries "<name><space>+[-]<digits>" at position i.
// Returns the index just past the digits.
func matchAt(runes []rune, i int, name []rune) (int, int64, bool) {
	if len(name) == 0 || i+len(name) > len(runes) {
		return 0, 0, false
	}
	if !strings.EqualFold(string(runes[i:i+len(name)]), string(name)) {
		return 0, 0, false
	}

	j := i + len(name)
	spaceStart := j
	for j < len(runes) && unicode.IsSpace(runes[j]) {
		j++
	}
	if j == spaceStart {
		return 0, 0, false
	}

	negative := false
	if j < len(runes) && runes[j] == '-' {
		negative = true
		j++
	}

	digitStart := j
	for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
		j++
	}
	if j == digitStart {
		return 0, 0, false
	}

	amount, err := strconv.ParseInt(string(runes[digitStart:j]), 10, 64)
	if err != nil {
		// overflow
		return 0, 0, false
	}
	if negative {
		amount = -amount
	}
	return j, amount, true
}

// atWordStart reports whether a name may begin at i. A preceding letter
// means i is inside a word; a preceding digit does not, so "100Minh 50"
// still yields Minh.
func atWordStart(runes []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev := runes[i-1]
	return !(unicode.IsLetter(prev) || unicode.IsMark(prev))
}
