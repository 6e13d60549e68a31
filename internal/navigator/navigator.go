// Package navigator prepares the listing page for a run: it opens the site,
// follows the configured category link, submits the search term and applies
// the status filter.
package navigator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// DefaultSearchSelectors are tried in order; the first displayed match wins.
var DefaultSearchSelectors = []string{
	"input[type='search']",
	"input[placeholder*='search' i]",
	"input[class*='search' i]",
	"input[id*='search' i]",
	"input[type='text']",
	"input:not([type])",
}

// Config describes the site layout the navigator works against.
type Config struct {
	BaseURL           string
	ListingPath       string
	CategorySelectors []string
	SearchSelectors   []string
	StatusSelectors   []string
	WaitTimeout       time.Duration
	// DebugDir receives page source and a screenshot when the search box is
	// missing. Empty disables snapshots.
	DebugDir string
}

// Params are the per-run inputs.
type Params struct {
	SearchTerm   string
	StatusFilter string
}

// Outcome reports what the navigator managed to apply.
type Outcome struct {
	URL           string
	Category      string
	Searched      bool
	Unfiltered    bool
	StatusApplied bool
	DebugFiles    []string
}

// Navigator drives a browser to the filtered listing view.
type Navigator struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and fills defaults.
func New(cfg Config, logger *zap.Logger) (*Navigator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("navigator base url is required")
	}
	if len(cfg.SearchSelectors) == 0 {
		cfg.SearchSelectors = DefaultSearchSelectors
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{cfg: cfg, logger: logger}, nil
}

// StartURL is the page the navigator opens.
func (n *Navigator) StartURL() string {
	base := strings.TrimRight(n.cfg.BaseURL, "/")
	path := strings.TrimSpace(n.cfg.ListingPath)
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// Prepare leaves b on the listing page with the search and filters applied.
// Missing optional elements are logged; browser errors are returned.
func (n *Navigator) Prepare(ctx context.Context, b tender.Browser, p Params) (Outcome, error) {
	out := Outcome{URL: n.StartURL()}
	if err := b.Navigate(ctx, out.URL); err != nil {
		return out, fmt.Errorf("open listing page: %w", err)
	}
	n.logger.Info("listing page opened", zap.String("url", out.URL))

	if len(n.cfg.CategorySelectors) > 0 {
		selector, ok, err := b.ClickFirst(ctx, n.cfg.CategorySelectors)
		if err != nil {
			return out, fmt.Errorf("click category: %w", err)
		}
		if ok {
			out.Category = selector
			n.logger.Info("category selected", zap.String("selector", selector))
		} else {
			n.logger.Warn("category link not found", zap.Strings("selectors", n.cfg.CategorySelectors))
		}
	}

	if err := n.search(ctx, b, p.SearchTerm, &out); err != nil {
		return out, err
	}

	if p.StatusFilter != "" && len(n.cfg.StatusSelectors) > 0 {
		if _, _, err := b.WaitForAny(ctx, n.cfg.StatusSelectors, n.cfg.WaitTimeout); err != nil {
			return out, fmt.Errorf("wait for status filter: %w", err)
		}
		ok, err := b.SelectOption(ctx, n.cfg.StatusSelectors, p.StatusFilter)
		if err != nil {
			return out, fmt.Errorf("apply status filter: %w", err)
		}
		out.StatusApplied = ok
		if !ok {
			n.logger.Warn("status filter not applied", zap.String("status", p.StatusFilter))
		}
	}
	return out, nil
}

func (n *Navigator) search(ctx context.Context, b tender.Browser, term string, out *Outcome) error {
	term = strings.TrimSpace(term)
	if term == "" {
		out.Unfiltered = true
		return nil
	}
	if _, _, err := b.WaitForAny(ctx, n.cfg.SearchSelectors, n.cfg.WaitTimeout); err != nil {
		return fmt.Errorf("wait for search box: %w", err)
	}
	selector, ok, err := b.FindSearchBox(ctx, n.cfg.SearchSelectors)
	if err != nil {
		return fmt.Errorf("locate search box: %w", err)
	}
	if !ok {
		out.Unfiltered = true
		n.logger.Warn("search box not found, scraping unfiltered listing", zap.String("term", term))
		out.DebugFiles = n.snapshot(ctx, b, "no-search-box")
		return nil
	}
	if err := b.Submit(ctx, selector, term); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	out.Searched = true
	n.logger.Info("search submitted", zap.String("term", term))
	return nil
}

// snapshot saves the page source and a screenshot under DebugDir. Failures
// are logged only.
func (n *Navigator) snapshot(ctx context.Context, b tender.Browser, reason string) []string {
	if n.cfg.DebugDir == "" {
		return nil
	}
	snap, ok := b.(tender.Snapshotter)
	if !ok {
		return nil
	}
	html, png, err := snap.Snapshot(ctx)
	if err != nil {
		n.logger.Warn("debug snapshot failed", zap.Error(err))
		return nil
	}
	if err := os.MkdirAll(n.cfg.DebugDir, 0o750); err != nil {
		n.logger.Warn("create debug dir", zap.String("dir", n.cfg.DebugDir), zap.Error(err))
		return nil
	}
	base := filepath.Join(n.cfg.DebugDir, fmt.Sprintf("%s-%s", reason, time.Now().UTC().Format("20060102T150405")))
	var files []string
	for ext, data := range map[string][]byte{".html": []byte(html), ".png": png} {
		path := base + ext
		if err := os.WriteFile(path, data, 0o600); err != nil {
			n.logger.Warn("write debug snapshot", zap.String("path", path), zap.Error(err))
			continue
		}
		files = append(files, path)
	}
	slices.Sort(files)
	n.logger.Info("debug snapshot saved", zap.Strings("files", files))
	return files
}
