// Package browser drives headless Chrome through chromedp and exposes it as a
// tender.Session with bounded, polling waits.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// ErrSessionClosed is returned by actions issued after Close.
var ErrSessionClosed = errors.New("browser session closed")

const snapshotQuality = 90

var (
	_ tender.Session     = (*Session)(nil)
	_ tender.Snapshotter = (*Session)(nil)
)

// Config controls the Chrome process and action timing.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	PollInterval      time.Duration
	WindowWidth       int
	WindowHeight      int
}

// Factory starts one Chrome process per session.
type Factory struct {
	cfg    Config
	logger *zap.Logger
}

// NewFactory validates cfg and fills defaults.
func NewFactory(cfg Config, logger *zap.Logger) (*Factory, error) {
	if cfg.WindowWidth < 0 || cfg.WindowHeight < 0 {
		return nil, fmt.Errorf("window size must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.WindowWidth == 0 || cfg.WindowHeight == 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}, nil
}

func (f *Factory) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(f.cfg.WindowWidth, f.cfg.WindowHeight),
	)
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	return opts
}

// Open launches Chrome and returns a ready session. The caller must Close it.
func (f *Factory) Open(ctx context.Context) (tender.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), f.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:         f.cfg,
		logger:      f.logger,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		meta:        newResponseMeta(),
	}
	chromedp.ListenTarget(tabCtx, s.meta.captureEvent)

	if err := s.run(ctx, f.cfg.NavigationTimeout, s.networkSetupAction()); err != nil {
		s.closeContexts()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	f.logger.Info("browser session started", zap.Bool("headless", f.cfg.Headless))
	return s, nil
}

// Session is a single Chrome tab.
type Session struct {
	cfg         Config
	logger      *zap.Logger
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	meta        *responseMeta
	closeOnce   sync.Once
}

// Close tears down the tab and the browser process. It is safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeContexts()
		s.logger.Info("browser session closed")
	})
	return nil
}

func (s *Session) closeContexts() {
	s.tabCancel()
	s.allocCancel()
}

// Navigate loads url and waits for the body element.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.meta.reset()
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// State reports the loaded document's URL, title and HTTP status.
func (s *Session) State(ctx context.Context) (tender.PageState, error) {
	var title, location string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Title(&title), chromedp.Location(&location)); err != nil {
		return tender.PageState{}, fmt.Errorf("read page state: %w", err)
	}
	status, finalURL := s.meta.snapshotWithFallbacks(location)
	return tender.PageState{URL: finalURL, Title: title, Status: status}, nil
}

// WaitForAny polls for the first selector present in the DOM.
func (s *Session) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (string, bool, error) {
	var found string
	ok, err := s.poll(ctx, timeout, func(pollCtx context.Context) (bool, error) {
		for _, selector := range selectors {
			var present bool
			if err := s.run(pollCtx, s.cfg.ActionTimeout, chromedp.Evaluate(existsScript(selector), &present)); err != nil {
				return false, err
			}
			if present {
				found = selector
				return true, nil
			}
		}
		return false, nil
	})
	return found, ok, err
}

type rowPayload struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// Rows captures the outer HTML and inner text of every match of selector.
func (s *Session) Rows(ctx context.Context, selector string) ([]tender.Row, error) {
	var payload []rowPayload
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(rowsScript(selector), &payload)); err != nil {
		return nil, fmt.Errorf("capture rows %q: %w", selector, err)
	}
	rows := make([]tender.Row, 0, len(payload))
	for _, p := range payload {
		rows = append(rows, tender.Row{HTML: p.HTML, Text: p.Text})
	}
	return rows, nil
}

// ClickFirst clicks the first displayed, enabled element across selectors.
func (s *Session) ClickFirst(ctx context.Context, selectors []string) (string, bool, error) {
	for _, selector := range selectors {
		var clicked bool
		if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(clickScript(selector), &clicked)); err != nil {
			return "", false, fmt.Errorf("click %q: %w", selector, err)
		}
		if clicked {
			return selector, true, nil
		}
	}
	return "", false, nil
}

// WaitForChange polls until the first match of selector differs from previous.
func (s *Session) WaitForChange(ctx context.Context, selector, previous string, timeout time.Duration) (bool, error) {
	return s.poll(ctx, timeout, func(pollCtx context.Context) (bool, error) {
		var current string
		if err := s.run(pollCtx, s.cfg.ActionTimeout, chromedp.Evaluate(firstHTMLScript(selector), &current)); err != nil {
			return false, err
		}
		return current != "" && current != previous, nil
	})
}

// FindSearchBox tags the first visible match and returns SearchBoxSelector.
func (s *Session) FindSearchBox(ctx context.Context, selectors []string) (string, bool, error) {
	for _, selector := range selectors {
		var marked bool
		if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(markSearchScript(selector), &marked)); err != nil {
			return "", false, fmt.Errorf("locate search box %q: %w", selector, err)
		}
		if marked {
			s.logger.Debug("search box located", zap.String("selector", selector))
			return SearchBoxSelector, true, nil
		}
	}
	return "", false, nil
}

// Submit replaces the value of the input at selector and presses Enter.
func (s *Session) Submit(ctx context.Context, selector, text string) error {
	s.meta.reset()
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit %q: %w", selector, err)
	}
	return nil
}

// SelectOption picks the option labeled label in the first matching control.
func (s *Session) SelectOption(ctx context.Context, selectors []string, label string) (bool, error) {
	for _, selector := range selectors {
		var selected bool
		if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(selectOptionScript(selector, label), &selected)); err != nil {
			return false, fmt.Errorf("select %q in %q: %w", label, selector, err)
		}
		if selected {
			return true, nil
		}
	}
	return false, nil
}

// Snapshot captures the document HTML and a full-page PNG screenshot.
func (s *Session) Snapshot(ctx context.Context) (string, []byte, error) {
	var html string
	var png []byte
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, snapshotQuality),
	)
	if err != nil {
		return "", nil, fmt.Errorf("snapshot page: %w", err)
	}
	return html, png, nil
}

// run executes actions on the tab with a timeout while honoring ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.tabCtx.Err() != nil {
		return ErrSessionClosed
	}
	taskCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("chromedp run: %w", ctxErr)
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// poll re-evaluates check every PollInterval until it is satisfied or the
// timeout elapses. Timing out is not an error.
func (s *Session) poll(ctx context.Context, timeout time.Duration, check func(context.Context) (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		ok, err := check(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("wait canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// responseMeta remembers the status of the most recent document response.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status = 0
	m.url = ""
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(location string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	if location != "" {
		url = location
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
