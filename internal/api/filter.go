package api

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// Date fields a range filter can apply to.
const (
	DateFieldClosing   = "closing"
	DateFieldPublished = "published"
)

// Filter narrows a listing set. The zero value keeps everything.
type Filter struct {
	Query     string
	Orgs      []string
	From      time.Time
	To        time.Time
	DateField string
}

// ParseFilter reads q, org, from, to and date_field from a query string.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		Query:     strings.TrimSpace(q.Get("q")),
		DateField: strings.ToLower(strings.TrimSpace(q.Get("date_field"))),
	}
	for _, org := range q["org"] {
		if org = strings.TrimSpace(org); org != "" {
			f.Orgs = append(f.Orgs, org)
		}
	}
	switch f.DateField {
	case "":
		f.DateField = DateFieldClosing
	case DateFieldClosing, DateFieldPublished:
	default:
		return Filter{}, fmt.Errorf("date_field must be %q or %q", DateFieldClosing, DateFieldPublished)
	}
	var err error
	if f.From, err = tender.ParseCutoff(q.Get("from")); err != nil {
		return Filter{}, fmt.Errorf("from: %w", err)
	}
	if f.To, err = tender.ParseCutoff(q.Get("to")); err != nil {
		return Filter{}, fmt.Errorf("to: %w", err)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return Filter{}, fmt.Errorf("to must not be before from")
	}
	return f, nil
}

// Apply returns the listings that match every set criterion, in order.
func (f Filter) Apply(in []tender.Listing) []tender.Listing {
	out := make([]tender.Listing, 0, len(in))
	query := strings.ToLower(f.Query)
	for _, l := range in {
		if query != "" &&
			!strings.Contains(strings.ToLower(l.Title), query) &&
			!strings.Contains(strings.ToLower(l.Organization), query) {
			continue
		}
		if len(f.Orgs) > 0 && !slices.Contains(f.Orgs, l.Organization) {
			continue
		}
		raw := l.ClosingDate
		if f.DateField == DateFieldPublished {
			raw = l.PublishedDate
		}
		if !tender.WithinRange(raw, f.From, f.To) {
			continue
		}
		out = append(out, l)
	}
	return out
}
