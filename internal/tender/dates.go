package tender

import (
	"fmt"
	"strings"
	"time"
)

// CutoffLayout is the wire format for cutoff dates (YYYY-MM-DD).
const CutoffLayout = "2006-01-02"

// DateLayouts are tried in order; the first successful parse wins. US comes
// before EU, so ambiguous values such as 03/04/2024 resolve to March 4.
var DateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006/01/02",
}

// ParseDate parses a free-text date against DateLayouts. Values carrying a
// trailing time or zone ("2024-01-15 2:00 PM EST") are retried on their
// leading tokens.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.Join(strings.Fields(raw), " ")
	if s == "" {
		return time.Time{}, false
	}
	tokens := strings.Split(s, " ")
	candidates := []string{s}
	if len(tokens) > 3 {
		candidates = append(candidates, strings.Join(tokens[:3], " "))
	}
	if len(tokens) > 1 {
		candidates = append(candidates, tokens[0])
	}
	for _, c := range candidates {
		for _, layout := range DateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ParseCutoff parses a YYYY-MM-DD cutoff. Empty input yields the zero time,
// which disables date filtering.
func ParseCutoff(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(CutoffLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cutoff date %q (want YYYY-MM-DD): %w", raw, err)
	}
	return t, nil
}

// OnOrAfter reports whether the published date is at or after cutoff.
// Unparseable dates and a zero cutoff always pass.
func OnOrAfter(published string, cutoff time.Time) bool {
	if cutoff.IsZero() {
		return true
	}
	t, ok := ParseDate(published)
	if !ok {
		return true
	}
	return !t.Before(cutoff)
}

// WithinRange reports whether raw falls inside [from, to]. Zero bounds are
// open and unparseable values pass.
func WithinRange(raw string, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	t, ok := ParseDate(raw)
	if !ok {
		return true
	}
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
