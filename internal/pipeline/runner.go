// Package pipeline runs one scrape end to end: it prepares the listing page,
// walks the result pages, optionally fetches details and classifies, filters,
// and writes the artifact. Archive, history and notification sinks are
// optional and never fail a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tenderwatch/internal/metrics"
	"github.com/JakeFAU/tenderwatch/internal/navigator"
	"github.com/JakeFAU/tenderwatch/internal/sink"
	"github.com/JakeFAU/tenderwatch/internal/tender"
	"github.com/JakeFAU/tenderwatch/internal/walker"
)

// Run statuses recorded in metrics.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ErrClassification wraps the first classifier failure of a run.
var ErrClassification = errors.New("classification failed")

// Deps are the collaborators a Runner drives. Sessions, Navigator, Walker,
// Clock and IDs are required; the rest may be nil.
type Deps struct {
	Sessions   tender.SessionFactory
	Navigator  *navigator.Navigator
	Walker     *walker.Walker
	Details    tender.DetailFetcher
	Classifier tender.Classifier
	Blobs      tender.BlobStore
	Hasher     tender.Hasher
	History    tender.HistoryStore
	Publisher  tender.Publisher
	Clock      tender.Clock
	IDs        tender.IDGenerator
}

// Options are fixed for the lifetime of a Runner.
type Options struct {
	OutputPath   string
	Format       sink.Format
	// Threshold defaults to tender.DefaultThreshold when unset.
	Threshold    float64
	StatusFilter string
	Topic        string
}

// Params are the per-run inputs.
type Params struct {
	SearchTerm   string
	MaxPages     int
	Cutoff       time.Time
	FetchDetails bool
}

// Report summarizes a finished run.
type Report struct {
	RunID      string
	Navigation navigator.Outcome
	Pages      int
	StopReason walker.StopReason
	ErrorPage  bool
	Skipped    map[tender.SkipReason]int
	Extracted  int
	Classified int
	Rejected   map[string]int
	Retained   []tender.Listing
	// Partial is set when a fatal walk error cut the run short and the rows
	// gathered before it were written anyway.
	Partial    bool
	OutputPath string
	Artifact   sink.Artifact
	Duration   time.Duration
}

// Runner executes scrape runs.
type Runner struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New validates deps and opts.
func New(deps Deps, opts Options, logger *zap.Logger) (*Runner, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("pipeline session factory is required")
	case deps.Navigator == nil:
		return nil, fmt.Errorf("pipeline navigator is required")
	case deps.Walker == nil:
		return nil, fmt.Errorf("pipeline walker is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("pipeline clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("pipeline id generator is required")
	}
	if deps.Blobs != nil && deps.Hasher == nil {
		return nil, fmt.Errorf("pipeline hasher is required when archiving")
	}
	if strings.TrimSpace(opts.OutputPath) == "" {
		return nil, fmt.Errorf("pipeline output path is required")
	}
	if opts.Format == "" {
		f, err := sink.FormatFromPath(opts.OutputPath)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}
	if opts.Threshold <= 0 {
		opts.Threshold = tender.DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{deps: deps, opts: opts, logger: logger}, nil
}

// Run performs one scrape. The browser session is closed on every path.
func (r *Runner) Run(ctx context.Context, p Params) (rep Report, err error) {
	start := r.deps.Clock.Now()
	defer func() {
		status := StatusSuccess
		if err != nil {
			status = StatusFailed
		}
		rep.Duration = r.deps.Clock.Now().Sub(start)
		metrics.ObserveRun(status, len(rep.Retained), rep.Duration)
	}()

	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return rep, fmt.Errorf("generate run id: %w", err)
	}
	rep.RunID = runID
	logger := r.logger.With(zap.String("run_id", runID), zap.String("search_term", p.SearchTerm))

	listings, err := r.collect(ctx, logger, p, &rep)
	if err != nil {
		if len(listings) == 0 {
			return rep, err
		}
		return rep, r.savePartial(logger, listings, &rep, err)
	}
	rep.Extracted = len(listings)

	if p.FetchDetails && r.deps.Details != nil {
		listings = r.fetchDetails(ctx, logger, listings)
	}

	if r.deps.Classifier != nil {
		listings, err = r.classify(ctx, logger, listings)
		if err != nil {
			return rep, err
		}
		rep.Classified = len(listings)
	}

	rep.Retained, rep.Rejected = tender.FilterListings(listings, r.opts.Threshold)

	data, err := sink.WriteFile(r.opts.OutputPath, r.opts.Format, rep.Retained)
	if err != nil {
		return rep, fmt.Errorf("write artifact: %w", err)
	}
	rep.OutputPath = r.opts.OutputPath

	finished := r.deps.Clock.Now()
	r.archive(ctx, logger, data, finished, &rep)
	r.recordHistory(ctx, logger, &rep)
	r.notify(ctx, logger, p, finished, &rep)

	logger.Info("run complete",
		zap.Int("pages", rep.Pages),
		zap.String("stop_reason", string(rep.StopReason)),
		zap.Int("extracted", rep.Extracted),
		zap.Int("retained", len(rep.Retained)),
		zap.Any("skipped", rep.Skipped),
		zap.Any("rejected", rep.Rejected),
		zap.String("output", rep.OutputPath),
	)
	return rep, nil
}

func (r *Runner) collect(ctx context.Context, logger *zap.Logger, p Params, rep *Report) ([]tender.Listing, error) {
	session, err := r.deps.Sessions.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("close browser", zap.Error(cerr))
		}
	}()

	outcome, err := r.deps.Navigator.Prepare(ctx, session, navigator.Params{
		SearchTerm:   p.SearchTerm,
		StatusFilter: r.opts.StatusFilter,
	})
	rep.Navigation = outcome
	if err != nil {
		return nil, fmt.Errorf("prepare listing page: %w", err)
	}
	if outcome.Unfiltered {
		logger.Warn("search not applied; scraping unfiltered listing")
	}

	res, err := r.deps.Walker.Walk(ctx, session, walker.Params{MaxPages: p.MaxPages, Cutoff: p.Cutoff})
	rep.Pages = res.Pages
	rep.StopReason = res.StopReason
	rep.ErrorPage = res.ErrorPage
	rep.Skipped = res.Skipped
	if err != nil {
		return res.Listings, fmt.Errorf("walk result pages: %w", err)
	}
	return res.Listings, nil
}

// savePartial writes the rows gathered before walkErr without details or
// classification, and returns walkErr.
func (r *Runner) savePartial(logger *zap.Logger, listings []tender.Listing, rep *Report, walkErr error) error {
	rep.Extracted = len(listings)
	rep.Partial = true
	rep.Retained, rep.Rejected = tender.FilterListings(listings, r.opts.Threshold)
	if _, err := sink.WriteFile(r.opts.OutputPath, r.opts.Format, rep.Retained); err != nil {
		return errors.Join(walkErr, fmt.Errorf("write partial artifact: %w", err))
	}
	rep.OutputPath = r.opts.OutputPath
	logger.Warn("run failed; partial results written",
		zap.Int("pages", rep.Pages),
		zap.Int("retained", len(rep.Retained)),
		zap.String("output", rep.OutputPath),
		zap.Error(walkErr),
	)
	return walkErr
}

// fetchDetails fills descriptions; a failed page leaves the listing as is.
func (r *Runner) fetchDetails(ctx context.Context, logger *zap.Logger, in []tender.Listing) []tender.Listing {
	out := make([]tender.Listing, len(in))
	for i, l := range in {
		out[i] = l
		if l.Link == "" {
			continue
		}
		desc, err := r.deps.Details.FetchDescription(ctx, l.Link)
		if err != nil {
			logger.Warn("fetch detail page", zap.String("link", l.Link), zap.Error(err))
			continue
		}
		out[i].Description = desc
	}
	return out
}

func (r *Runner) classify(ctx context.Context, logger *zap.Logger, in []tender.Listing) ([]tender.Listing, error) {
	out := make([]tender.Listing, 0, len(in))
	for i, l := range in {
		pred, err := r.deps.Classifier.Classify(ctx, l)
		if err != nil {
			metrics.ObserveClassification("error")
			logger.Error("classify listing", zap.Int("index", i), zap.String("title", l.Title), zap.Error(err))
			return nil, fmt.Errorf("%w: listing %d: %w", ErrClassification, i, err)
		}
		outcome := pred.Label
		if outcome == tender.ExcludedCategory {
			outcome = "excluded"
		}
		metrics.ObserveClassification(outcome)
		out = append(out, l.WithPrediction(pred))
	}
	return out, nil
}

func (r *Runner) archive(ctx context.Context, logger *zap.Logger, data []byte, at time.Time, rep *Report) {
	if r.deps.Blobs == nil {
		return
	}
	artifact, err := sink.Archive(ctx, r.deps.Blobs, r.deps.Hasher, rep.RunID, r.opts.Format, data, at)
	if err != nil {
		logger.Warn("archive artifact", zap.Error(err))
		return
	}
	rep.Artifact = artifact
	logger.Info("artifact archived", zap.String("uri", artifact.URI), zap.String("digest", artifact.Digest))
}

func (r *Runner) recordHistory(ctx context.Context, logger *zap.Logger, rep *Report) {
	if r.deps.History == nil {
		return
	}
	if err := r.deps.History.StoreRun(ctx, rep.RunID, rep.Retained); err != nil {
		logger.Warn("store run history", zap.Error(err))
	}
}

func (r *Runner) notify(ctx context.Context, logger *zap.Logger, p Params, finished time.Time, rep *Report) {
	if r.deps.Publisher == nil || r.opts.Topic == "" {
		return
	}
	event := RunEvent{
		RunID:       rep.RunID,
		SearchTerm:  p.SearchTerm,
		Pages:       rep.Pages,
		Retained:    len(rep.Retained),
		ArtifactURI: rep.Artifact.URI,
		Digest:      rep.Artifact.Digest,
		FinishedAt:  finished.UTC(),
	}
	id, err := r.deps.Publisher.Publish(ctx, r.opts.Topic, event)
	if err != nil {
		logger.Warn("publish run event", zap.Error(err))
		return
	}
	logger.Debug("run event published", zap.String("message_id", id))
}
