// Package contract computes the tracked working set for quarterly-cycle
// futures: the active contract plus its calendar-adjacent neighbors.
package contract

import (
	"fmt"
	"strings"
)

// monthSeq is the quarterly delivery cycle: March, June, September, December.
const monthSeq = "HMUZ"

// MalformedSymbolError reports a local symbol that does not parse as a
// quarterly futures identifier <ROOT><MONTH><YEAR_DIGIT>.
type MalformedSymbolError struct {
	Symbol string
}

func (e *MalformedSymbolError) Error() string {
	return fmt.Sprintf("malformed quarterly symbol %q", e.Symbol)
}

// Roster is the three-symbol working set around an active contract.
type Roster struct {
	Previous string
	Active   string
	Next     string
}

// Symbols returns the roster in previous, active, next order.
func (r Roster) Symbols() []string {
	return []string{r.Previous, r.Active, r.Next}
}

// parse splits a local symbol like "MNQZ5" into root "MNQ", month index into
// monthSeq, and year digit. The month letter is the last H/M/U/Z occurrence so
// roots containing cycle letters (e.g. "MNQ" has none, but "HE" does) still
// parse when the month is not the first character.
func parse(symbol string) (root string, month int, year int, err error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	idx := -1
	for _, m := range monthSeq {
		if i := strings.LastIndexByte(s, byte(m)); i > idx {
			idx = i
		}
	}
	if idx <= 0 || idx != len(s)-2 {
		return "", 0, 0, &MalformedSymbolError{Symbol: symbol}
	}
	d := s[idx+1]
	if d < '0' || d > '9' {
		return "", 0, 0, &MalformedSymbolError{Symbol: symbol}
	}
	return s[:idx], strings.IndexByte(monthSeq, s[idx]), int(d - '0'), nil
}

// New computes the roster for an active quarterly symbol. Stepping backward
// past H moves to U of the prior year; stepping forward past Z moves to H of
// the next year. Year digits are cyclic modulo 10.
func New(active string) (Roster, error) {
	root, month, year, err := parse(active)
	if err != nil {
		return Roster{}, err
	}

	prevMonth := (month + 3) % 4
	nextMonth := (month + 1) % 4
	prevYear, nextYear := year, year
	if month == 0 { // H: previous is U of the prior year, skipping its Z
		prevMonth = 2
		prevYear = (year + 9) % 10
	}
	if month == 3 { // Z: next is H of the following year
		nextYear = (year + 1) % 10
	}

	return Roster{
		Previous: fmt.Sprintf("%s%c%d", root, monthSeq[prevMonth], prevYear),
		Active:   fmt.Sprintf("%s%c%d", root, monthSeq[month], year),
		Next:     fmt.Sprintf("%s%c%d", root, monthSeq[nextMonth], nextYear),
	}, nil
}
