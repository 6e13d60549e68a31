// Package extract turns captured listing rows into tender fields using an
// ordered chain of named strategies.
package extract

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// Row is a parsed listing row handed to each strategy.
type Row struct {
	Sel  *goquery.Selection
	Text string
}

// Strategy is one way of reading fields out of a row.
type Strategy struct {
	Name string
	Fn   func(Row) (tender.Fields, bool)
}

// maxDateLineLen bounds the length of a line considered a date candidate.
const maxDateLineLen = 30

var cellSelectors = []string{"td", "[role='cell'], [role='gridcell']"}

// DefaultStrategies returns the structured-cell strategy followed by the
// line-splitting heuristic.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "cells", Fn: fromCells},
		{Name: "lines", Fn: fromLines},
	}
}

// Extractor applies strategies in priority order and resolves detail links.
type Extractor struct {
	origin       *url.URL
	detailMarker string
	strategies   []Strategy
}

// New builds an Extractor. baseURL supplies the origin for relative links.
func New(baseURL, detailMarker string, strategies ...Strategy) (*Extractor, error) {
	origin, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{
		origin:       &url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: "/"},
		detailMarker: detailMarker,
		strategies:   strategies,
	}, nil
}

// Extract returns the row's fields, or the reason it was skipped.
func (e *Extractor) Extract(raw tender.Row) (tender.Fields, tender.SkipReason) {
	if strings.TrimSpace(raw.HTML) == "" && strings.TrimSpace(raw.Text) == "" {
		return tender.Fields{}, tender.SkipEmptyRow
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(wrapRow(raw.HTML)))
	if err != nil {
		return tender.Fields{}, tender.SkipParseError
	}
	row := Row{Sel: doc.Selection, Text: raw.Text}
	for _, strategy := range e.strategies {
		fields, ok := strategy.Fn(row)
		if !ok {
			continue
		}
		if fields.Title == "" {
			return tender.Fields{}, tender.SkipNoTitle
		}
		fields.Strategy = strategy.Name
		fields.Link = e.link(row.Sel)
		return fields, tender.SkipNone
	}
	return tender.Fields{}, tender.SkipNoTitle
}

// ResolveLink makes href absolute against the site origin.
func (e *Extractor) ResolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return e.origin.ResolveReference(ref).String()
}

func (e *Extractor) link(sel *goquery.Selection) string {
	anchors := sel.Find("a[href]")
	if e.detailMarker != "" {
		var marked string
		anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if strings.Contains(href, e.detailMarker) {
				marked = href
				return false
			}
			return true
		})
		if marked != "" {
			return e.ResolveLink(marked)
		}
	}
	href, _ := anchors.First().Attr("href")
	return e.ResolveLink(href)
}

func fromCells(row Row) (tender.Fields, bool) {
	for _, selector := range cellSelectors {
		cells := row.Sel.Find(selector)
		n := cells.Length()
		if n < 3 {
			continue
		}
		cell := func(i int) string { return cleanText(cells.Eq(i).Text()) }
		fields := tender.Fields{
			Title:        cell(0),
			Organization: cell(1),
			ClosingDate:  cell(n - 1),
		}
		if n >= 4 {
			fields.PublishedDate = cell(2)
		}
		return fields, true
	}
	return tender.Fields{}, false
}

// fromLines assigns fields by position in the row's rendered text. It is an
// approximation and can misassign fields on rows with unexpected shapes.
func fromLines(row Row) (tender.Fields, bool) {
	lines := textLines(row)
	if len(lines) == 0 {
		return tender.Fields{}, false
	}
	fields := tender.Fields{Title: lines[0]}
	if len(lines) < 2 {
		return fields, true
	}
	fields.Organization = lines[1]
	for _, line := range lines[2:] {
		if !looksLikeDate(line) {
			continue
		}
		switch {
		case fields.PublishedDate == "":
			fields.PublishedDate = line
		case fields.ClosingDate == "":
			fields.ClosingDate = line
		}
	}
	return fields, true
}

func textLines(row Row) []string {
	var lines []string
	if strings.TrimSpace(row.Text) != "" {
		for _, line := range strings.Split(row.Text, "\n") {
			if line = cleanText(line); line != "" {
				lines = append(lines, line)
			}
		}
		return lines
	}
	// No rendered text: fall back to leaf elements in document order.
	row.Sel.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		if line := cleanText(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})
	return lines
}

func looksLikeDate(line string) bool {
	if utf8.RuneCountInString(line) >= maxDateLineLen {
		return false
	}
	return strings.IndexFunc(line, unicode.IsDigit) >= 0
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// wrapRow keeps table fragments intact: the HTML parser drops bare <tr>/<td>
// elements that appear outside a table.
func wrapRow(html string) string {
	trimmed := strings.ToLower(strings.TrimSpace(html))
	switch {
	case strings.HasPrefix(trimmed, "<tr"):
		return "<table><tbody>" + html + "</tbody></table>"
	case strings.HasPrefix(trimmed, "<td"), strings.HasPrefix(trimmed, "<th"):
		return "<table><tbody><tr>" + html + "</tr></tbody></table>"
	default:
		return html
	}
}
