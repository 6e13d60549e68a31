// Package walker iterates paginated listing results and folds each row into
// an accumulator.
//
// The walk is a small state machine:
//
//	scanning  -> read rows on the current page, then advancing or done
//	advancing -> click the next control and wait for new rows, then scanning or done
//	done      -> return the accumulated Result
//
// At most MaxPages pages are scanned regardless of what the site offers.
package walker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// StopReason explains why a walk ended.
type StopReason string

const (
	StopMaxPages      StopReason = "max_pages"
	StopNoNextPage    StopReason = "no_next_page"
	StopErrorPage     StopReason = "error_page"
	StopPageUnchanged StopReason = "page_unchanged"
)

// DefaultMaxPages bounds a walk when no limit is configured.
const DefaultMaxPages = 3

var (
	// DefaultRowSelectors match table rows first, then any row.
	DefaultRowSelectors = []string{"table tbody tr", "tr"}
	// DefaultNextSelectors match the site's pagination control.
	DefaultNextSelectors = []string{"button[aria-label='Next page']", "a[aria-label='Next page']", "a[rel='next']"}
	// notFoundMarkers flag an error page by its title.
	notFoundMarkers = []string{"404", "not found", "page not found"}
)

// Extractor turns a captured row into fields.
type Extractor interface {
	Extract(row tender.Row) (tender.Fields, tender.SkipReason)
}

// Observer is notified of walk progress. Metrics hook in here.
type Observer interface {
	PageScanned(page int)
	RowExtracted()
	RowSkipped(reason tender.SkipReason)
}

// Config holds the selectors and timings for a walk.
type Config struct {
	RowSelectors  []string
	NextSelectors []string
	WaitTimeout   time.Duration
}

// Params are the per-run limits.
type Params struct {
	MaxPages int
	Cutoff   time.Time
}

// Result is what a walk produced.
type Result struct {
	Listings   []tender.Listing
	Pages      int
	Skipped    map[tender.SkipReason]int
	ErrorPage  bool
	StopReason StopReason
}

// Walker drives pagination over a prepared browser.
type Walker struct {
	cfg       Config
	extractor Extractor
	clock     tender.Clock
	observer  Observer
	logger    *zap.Logger
}

// Option customizes a Walker.
type Option func(*Walker)

// WithObserver attaches progress callbacks.
func WithObserver(o Observer) Option {
	return func(w *Walker) { w.observer = o }
}

// WithClock overrides the capture timestamp source.
func WithClock(c tender.Clock) Option {
	return func(w *Walker) { w.clock = c }
}

// New builds a Walker.
func New(cfg Config, extractor Extractor, logger *zap.Logger, opts ...Option) (*Walker, error) {
	if extractor == nil {
		return nil, fmt.Errorf("walker extractor is required")
	}
	if len(cfg.RowSelectors) == 0 {
		cfg.RowSelectors = DefaultRowSelectors
	}
	if len(cfg.NextSelectors) == 0 {
		cfg.NextSelectors = DefaultNextSelectors
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Walker{cfg: cfg, extractor: extractor, logger: logger, observer: nopObserver{}, clock: utcClock{}}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

type state int

const (
	scanning state = iota
	advancing
	done
)

// accumulator is threaded through the walk and becomes the Result.
type accumulator struct {
	listings []tender.Listing
	skipped  map[tender.SkipReason]int
	pages    int
	// firstRow is the HTML of the first row on the current page.
	firstRow    string
	rowSelector string
}

func (a *accumulator) skip(reason tender.SkipReason) {
	a.skipped[reason]++
}

// Walk scans pages starting from the browser's current page.
func (w *Walker) Walk(ctx context.Context, b tender.Browser, p Params) (Result, error) {
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	acc := &accumulator{skipped: map[tender.SkipReason]int{}}
	res := Result{}
	page := 1
	st := scanning

	for st != done {
		if err := ctx.Err(); err != nil {
			return w.result(acc, res), fmt.Errorf("walk canceled: %w", err)
		}
		switch st {
		case scanning:
			errorPage, err := w.scan(ctx, b, page, p.Cutoff, acc)
			if err != nil {
				return w.result(acc, res), err
			}
			switch {
			case errorPage:
				res.ErrorPage = true
				res.StopReason = StopErrorPage
				st = done
			case page >= maxPages:
				res.StopReason = StopMaxPages
				st = done
			default:
				st = advancing
			}
		case advancing:
			next, reason, err := w.advance(ctx, b, acc)
			if err != nil {
				return w.result(acc, res), err
			}
			if !next {
				res.StopReason = reason
				st = done
				continue
			}
			page++
			st = scanning
		}
	}
	out := w.result(acc, res)
	w.logger.Info("walk finished",
		zap.Int("pages", out.Pages),
		zap.Int("listings", len(out.Listings)),
		zap.String("stop_reason", string(out.StopReason)),
		zap.Any("skipped", out.Skipped),
	)
	return out, nil
}

func (w *Walker) result(acc *accumulator, res Result) Result {
	res.Listings = acc.listings
	res.Pages = acc.pages
	res.Skipped = acc.skipped
	return res
}

// scan reads the current page into acc. It reports true for an error page.
func (w *Walker) scan(ctx context.Context, b tender.Browser, page int, cutoff time.Time, acc *accumulator) (bool, error) {
	ps, err := b.State(ctx)
	if err != nil {
		return false, fmt.Errorf("read page %d state: %w", page, err)
	}
	if IsErrorPage(ps) {
		w.logger.Warn("error page reached", zap.Int("page", page), zap.Int("status", ps.Status), zap.String("title", ps.Title))
		return true, nil
	}

	acc.pages++
	w.observer.PageScanned(page)
	acc.firstRow = ""

	selector, ok, err := b.WaitForAny(ctx, w.cfg.RowSelectors, w.cfg.WaitTimeout)
	if err != nil {
		return false, fmt.Errorf("wait for rows on page %d: %w", page, err)
	}
	if !ok {
		w.logger.Info("no rows on page", zap.Int("page", page))
		return false, nil
	}
	rows, err := b.Rows(ctx, selector)
	if err != nil {
		return false, fmt.Errorf("read rows on page %d: %w", page, err)
	}
	acc.rowSelector = selector
	if len(rows) > 0 {
		acc.firstRow = rows[0].HTML
	}

	scrapedAt := w.clock.Now().UTC()
	kept := 0
	for _, row := range rows {
		fields, reason := w.extractor.Extract(row)
		if reason == tender.SkipNone && !tender.OnOrAfter(fields.PublishedDate, cutoff) {
			reason = tender.SkipBeforeCutoff
		}
		if reason != tender.SkipNone {
			acc.skip(reason)
			w.observer.RowSkipped(reason)
			continue
		}
		acc.listings = append(acc.listings, fields.ToListing(page, scrapedAt))
		w.observer.RowExtracted()
		kept++
	}
	w.logger.Info("page scanned",
		zap.Int("page", page),
		zap.Int("rows", len(rows)),
		zap.Int("kept", kept),
		zap.String("selector", selector),
	)
	return false, nil
}

// advance clicks the next control and waits for the rows to change.
func (w *Walker) advance(ctx context.Context, b tender.Browser, acc *accumulator) (bool, StopReason, error) {
	selector, ok, err := b.ClickFirst(ctx, w.cfg.NextSelectors)
	if err != nil {
		return false, "", fmt.Errorf("click next page: %w", err)
	}
	if !ok {
		w.logger.Info("no next page control")
		return false, StopNoNextPage, nil
	}
	if acc.firstRow == "" {
		return true, "", nil
	}
	changed, err := b.WaitForChange(ctx, acc.rowSelector, acc.firstRow, w.cfg.WaitTimeout)
	if err != nil {
		return false, "", fmt.Errorf("wait for next page: %w", err)
	}
	if !changed {
		w.logger.Warn("rows did not change after next click", zap.String("selector", selector))
		return false, StopPageUnchanged, nil
	}
	return true, "", nil
}

// IsErrorPage reports whether the loaded document is an HTTP error page.
func IsErrorPage(s tender.PageState) bool {
	if s.Status >= 400 {
		return true
	}
	title := strings.ToLower(strings.TrimSpace(s.Title))
	if title == "" {
		return false
	}
	if title == "error" || strings.HasPrefix(title, "error ") || strings.HasPrefix(title, "error:") {
		return true
	}
	for _, marker := range notFoundMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

type nopObserver struct{}

func (nopObserver) PageScanned(int) {}
func (nopObserver) RowExtracted() {}
func (nopObserver) RowSkipped(tender.SkipReason) {}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
