package api

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// View names accepted by GET /api/listings.
const (
	ViewList      = "list"
	ViewTable     = "table"
	ViewAnalytics = "analytics"
)

// closingSoonWindow flags listings that close within a week.
const closingSoonWindow = 7 * 24 * time.Hour

const (
	topOrganizations = 10
	topClosingDates  = 15
)

// TableColumns are the headers of the table view.
var TableColumns = []string{"Title", "Organization", "Published", "Closes", "Link"}

type listingItem struct {
	tender.Listing
	ClosingSoon bool `json:"closing_soon"`
}

type listResponse struct {
	Count    int           `json:"count"`
	Listings []listingItem `json:"listings"`
}

type tableResponse struct {
	Count   int        `json:"count"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Count is one bar of a frequency chart.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// PageCount is the number of listings found on one result page.
type PageCount struct {
	Page  int `json:"page"`
	Count int `json:"count"`
}

// Totals are the headline figures of the analytics view.
type Totals struct {
	Listings      int        `json:"listings"`
	Organizations int        `json:"organizations"`
	WithLinks     int        `json:"with_links"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
}

// Analytics summarizes a listing set.
type Analytics struct {
	Totals           Totals      `json:"totals"`
	TopOrganizations []Count     `json:"top_organizations"`
	ByPage           []PageCount `json:"by_page"`
	ClosingDates     []Count     `json:"closing_dates"`
	ByCategory       []Count     `json:"by_category"`
}

// ClosingSoon reports whether l's closing date parses and falls between the
// start of now's day and one week later.
func ClosingSoon(l tender.Listing, now time.Time) bool {
	closes, ok := tender.ParseDate(l.ClosingDate)
	if !ok {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return !closes.Before(today) && !closes.After(today.Add(closingSoonWindow))
}

func listView(in []tender.Listing, now time.Time) listResponse {
	items := make([]listingItem, len(in))
	for i, l := range in {
		items[i] = listingItem{Listing: l, ClosingSoon: ClosingSoon(l, now)}
	}
	return listResponse{Count: len(items), Listings: items}
}

func tableView(in []tender.Listing) tableResponse {
	rows := make([][]string, len(in))
	for i, l := range in {
		rows[i] = []string{l.Title, l.Organization, l.PublishedDate, l.ClosingDate, l.Link}
	}
	return tableResponse{Count: len(rows), Columns: TableColumns, Rows: rows}
}

// Summarize computes the analytics view of in.
func Summarize(in []tender.Listing) Analytics {
	orgs := map[string]int{}
	pages := map[int]int{}
	closing := map[string]int{}
	categories := map[string]int{}
	var a Analytics
	a.Totals.Listings = len(in)
	for _, l := range in {
		if org := strings.TrimSpace(l.Organization); org != "" {
			orgs[org]++
		}
		if l.Link != "" {
			a.Totals.WithLinks++
		}
		pages[l.Page]++
		if c := strings.TrimSpace(l.ClosingDate); c != "" {
			closing[c]++
		}
		if l.PredictedCategory != "" {
			categories[l.PredictedCategory]++
		}
		if !l.ScrapedAt.IsZero() && (a.Totals.LastUpdated == nil || l.ScrapedAt.After(*a.Totals.LastUpdated)) {
			at := l.ScrapedAt
			a.Totals.LastUpdated = &at
		}
	}
	a.Totals.Organizations = len(orgs)
	a.TopOrganizations = topCounts(orgs, topOrganizations)
	a.ClosingDates = topCounts(closing, topClosingDates)
	a.ByCategory = topCounts(categories, 0)

	a.ByPage = make([]PageCount, 0, len(pages))
	for page, n := range pages {
		a.ByPage = append(a.ByPage, PageCount{Page: page, Count: n})
	}
	slices.SortFunc(a.ByPage, func(x, y PageCount) int { return cmp.Compare(x.Page, y.Page) })
	return a
}

// topCounts orders by count descending then key; limit <= 0 keeps all.
func topCounts(m map[string]int, limit int) []Count {
	out := make([]Count, 0, len(m))
	for k, n := range m {
		out = append(out, Count{Key: k, Count: n})
	}
	slices.SortFunc(out, func(x, y Count) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Key, y.Key)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
