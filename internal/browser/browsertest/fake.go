// Package browsertest provides a scripted tender.Browser for tests.
package browsertest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// Page is one result page served by the fake.
type Page struct {
	Status int
	Title  string
	Rows   []tender.Row
	// Next reports whether an enabled next-page control is shown.
	Next bool
}

// Fake is an in-memory browser. Pages advance when NextSelector is clicked.
// Set PageFunc to serve an unbounded sequence instead of Pages.
type Fake struct {
	Pages    []Page
	PageFunc func(index int) Page

	RowSelector  string
	NextSelector string
	// Present lists other selectors that exist on every page.
	Present map[string]bool
	// SearchSelector is reported as the search box when it is Present.
	SearchSelector string
	// Options maps a select control to the labels it offers.
	Options map[string][]string
	// StaleAfterClick keeps the old rows after a next click.
	StaleAfterClick bool
	// Errs injects an error for the named method.
	Errs map[string]error
	// SnapshotHTML is returned by Snapshot with a fixed PNG payload.
	SnapshotHTML string
	// PageErrs injects an error for the named method on the page at the
	// given zero-based index only.
	PageErrs map[int]map[string]error

	mu        sync.Mutex
	index     int
	closed    bool
	Navigated []string
	Clicked   []string
	Submitted []string
	Selected  []string
}

var (
	_ tender.Session     = (*Fake)(nil)
	_ tender.Snapshotter = (*Fake)(nil)
)

// SnapshotPNG is the screenshot payload every Snapshot returns.
var SnapshotPNG = []byte("\x89PNG fake")

func (f *Fake) err(method string) error {
	if err := f.PageErrs[f.index][method]; err != nil {
		return err
	}
	return f.Errs[method]
}

func (f *Fake) page() Page {
	if f.PageFunc != nil {
		return f.PageFunc(f.index)
	}
	if f.index < len(f.Pages) {
		return f.Pages[f.index]
	}
	return Page{}
}

// PageIndex returns the zero-based index of the current page.
func (f *Fake) PageIndex() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Navigate records url and resets to the first page.
func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Navigate"); err != nil {
		return err
	}
	f.Navigated = append(f.Navigated, url)
	f.index = 0
	return nil
}

// State reports the current page status and title.
func (f *Fake) State(context.Context) (tender.PageState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("State"); err != nil {
		return tender.PageState{}, err
	}
	p := f.page()
	status := p.Status
	if status == 0 {
		status = 200
	}
	return tender.PageState{URL: fmt.Sprintf("fake://page/%d", f.index+1), Title: p.Title, Status: status}, nil
}

func (f *Fake) present(selector string) bool {
	p := f.page()
	switch {
	case selector == f.RowSelector:
		return len(p.Rows) > 0
	case selector == f.NextSelector:
		return p.Next
	default:
		return f.Present[selector]
	}
}

// WaitForAny returns the first present selector without sleeping.
func (f *Fake) WaitForAny(_ context.Context, selectors []string, _ time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("WaitForAny"); err != nil {
		return "", false, err
	}
	for _, s := range selectors {
		if f.present(s) {
			return s, true, nil
		}
	}
	return "", false, nil
}

// Rows returns the current page rows for RowSelector.
func (f *Fake) Rows(_ context.Context, selector string) ([]tender.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Rows"); err != nil {
		return nil, err
	}
	if selector != f.RowSelector {
		return nil, nil
	}
	return slices.Clone(f.page().Rows), nil
}

// ClickFirst clicks the first present selector; NextSelector advances a page.
func (f *Fake) ClickFirst(_ context.Context, selectors []string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("ClickFirst"); err != nil {
		return "", false, err
	}
	for _, s := range selectors {
		if !f.present(s) {
			continue
		}
		f.Clicked = append(f.Clicked, s)
		if s == f.NextSelector && !f.StaleAfterClick {
			f.index++
		}
		return s, true, nil
	}
	return "", false, nil
}

// WaitForChange compares the first row of the current page with previous.
func (f *Fake) WaitForChange(_ context.Context, _ string, previous string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("WaitForChange"); err != nil {
		return false, err
	}
	rows := f.page().Rows
	if len(rows) == 0 {
		return previous != "", nil
	}
	return rows[0].HTML != previous, nil
}

// FindSearchBox reports SearchSelector when it is listed and present.
func (f *Fake) FindSearchBox(_ context.Context, selectors []string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("FindSearchBox"); err != nil {
		return "", false, err
	}
	if f.SearchSelector != "" && f.Present[f.SearchSelector] && slices.Contains(selectors, f.SearchSelector) {
		return f.SearchSelector, true, nil
	}
	return "", false, nil
}

// Submit records the submitted text.
func (f *Fake) Submit(_ context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Submit"); err != nil {
		return err
	}
	f.Submitted = append(f.Submitted, selector+"="+text)
	return nil
}

// SelectOption selects label in the first control that offers it.
func (f *Fake) SelectOption(_ context.Context, selectors []string, label string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("SelectOption"); err != nil {
		return false, err
	}
	for _, s := range selectors {
		if slices.Contains(f.Options[s], label) {
			f.Selected = append(f.Selected, s+"="+label)
			return true, nil
		}
	}
	return false, nil
}

// Snapshot returns SnapshotHTML and SnapshotPNG.
func (f *Fake) Snapshot(context.Context) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err("Snapshot"); err != nil {
		return "", nil, err
	}
	return f.SnapshotHTML, slices.Clone(SnapshotPNG), nil
}

// Close marks the fake closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.err("Close")
}

// Factory hands out a single Fake.
type Factory struct {
	Browser *Fake
	Err     error
	Opened  int
}

// Open returns the configured Fake.
func (f *Factory) Open(context.Context) (tender.Session, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.Opened++
	return f.Browser, nil
}
