// Package server assembles tenderwatch's dependencies from configuration and
// runs the scrape pipeline or the dashboard server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/tenderwatch/internal/api"
	"github.com/JakeFAU/tenderwatch/internal/browser"
	"github.com/JakeFAU/tenderwatch/internal/classify"
	"github.com/JakeFAU/tenderwatch/internal/clock/system"
	"github.com/JakeFAU/tenderwatch/internal/config"
	"github.com/JakeFAU/tenderwatch/internal/dispatch"
	"github.com/JakeFAU/tenderwatch/internal/extract"
	collyfetcher "github.com/JakeFAU/tenderwatch/internal/fetcher/colly"
	"github.com/JakeFAU/tenderwatch/internal/hash/sha256"
	"github.com/JakeFAU/tenderwatch/internal/id/uuid"
	"github.com/JakeFAU/tenderwatch/internal/metrics"
	"github.com/JakeFAU/tenderwatch/internal/navigator"
	"github.com/JakeFAU/tenderwatch/internal/pipeline"
	gcppublisher "github.com/JakeFAU/tenderwatch/internal/publisher/pubsub"
	"github.com/JakeFAU/tenderwatch/internal/sink"
	gcsstorage "github.com/JakeFAU/tenderwatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/tenderwatch/internal/storage/local"
	pgstore "github.com/JakeFAU/tenderwatch/internal/storage/postgres"
	"github.com/JakeFAU/tenderwatch/internal/tender"
	"github.com/JakeFAU/tenderwatch/internal/walker"
)

// App holds the long-lived clients a command needs.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	history         *pgstore.ListingStore
}

// NewApp creates an App without any external clients.
func NewApp(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &App{cfg: cfg, logger: logger}
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// BuildRunner wires the scrape pipeline. Optional sinks are connected only
// when configured.
func (a *App) BuildRunner(ctx context.Context) (*pipeline.Runner, error) {
	cfg := a.cfg
	sessions, err := browser.NewFactory(browser.Config{
		Headless:          cfg.Browser.Headless,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
		ActionTimeout:     cfg.WaitTimeout(),
		PollInterval:      cfg.PollInterval(),
		WindowWidth:       cfg.Browser.WindowWidth,
		WindowHeight:      cfg.Browser.WindowHeight,
	}, a.logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser init failed: %w", err)
	}

	nav, err := navigator.New(navigator.Config{
		BaseURL:           cfg.Site.BaseURL,
		ListingPath:       cfg.Site.ListingPath,
		CategorySelectors: cfg.Site.CategorySelectors,
		SearchSelectors:   cfg.Site.SearchSelectors,
		StatusSelectors:   cfg.Site.StatusSelectors,
		WaitTimeout:       cfg.WaitTimeout(),
		DebugDir:          cfg.Browser.DebugDir,
	}, a.logger.Named("navigator"))
	if err != nil {
		return nil, fmt.Errorf("navigator init failed: %w", err)
	}

	extractor, err := extract.New(cfg.Site.BaseURL, cfg.Site.DetailMarker)
	if err != nil {
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}
	clock := system.New()
	w, err := walker.New(walker.Config{
		RowSelectors:  cfg.Site.RowSelectors,
		NextSelectors: cfg.Site.NextSelectors,
		WaitTimeout:   cfg.WaitTimeout(),
	}, extractor, a.logger.Named("walker"),
		walker.WithObserver(metrics.NewWalkObserver()),
		walker.WithClock(clock),
	)
	if err != nil {
		return nil, fmt.Errorf("walker init failed: %w", err)
	}

	format, err := sink.Resolve(cfg.Output.Format, cfg.Output.Path)
	if err != nil {
		return nil, fmt.Errorf("output format: %w", err)
	}

	deps := pipeline.Deps{
		Sessions:  sessions,
		Navigator: nav,
		Walker:    w,
		Details: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Browser.UserAgent,
			RespectRobots: cfg.HTTP.RespectRobots,
			Timeout:       cfg.HTTPTimeout(),
			Selectors:     cfg.Site.DescriptionSelectors,
		}),
		Hasher: sha256.New(),
		Clock:  clock,
		IDs:    uuid.New(),
	}

	if cfg.Classifier.Enabled {
		adapter, err := classify.New(classify.Config{
			Endpoint:          cfg.Classifier.Endpoint,
			Token:             cfg.Classifier.Token,
			Labels:            cfg.Classifier.Labels,
			ExcludedLabel:     cfg.Classifier.ExcludedLabel,
			MaxChars:          cfg.Classifier.MaxChars,
			RequestsPerSecond: cfg.Classifier.RequestsPerSecond,
			Timeout:           time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
		}, a.logger.Named("classifier"))
		if err != nil {
			return nil, fmt.Errorf("classifier init failed: %w", err)
		}
		deps.Classifier = adapter
	}

	// Optional sinks that fail to start are skipped; the local artifact is
	// still written.
	if blobs, err := a.setupStorage(ctx); err != nil {
		a.logger.Warn("artifact archiving disabled", zap.Error(err))
	} else if blobs != nil {
		deps.Blobs = blobs
	}
	if err := a.setupHistory(ctx); err != nil {
		a.logger.Warn("run history disabled", zap.Error(err))
	}
	if a.history != nil {
		deps.History = a.history
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.logger.Warn("run notifications disabled", zap.Error(err))
	}
	if a.pubsubPublisher != nil {
		deps.Publisher = a.pubsubPublisher
	}

	runner, err := pipeline.New(deps, pipeline.Options{
		OutputPath:   cfg.Output.Path,
		Format:       format,
		Threshold:    cfg.Classifier.Threshold,
		StatusFilter: cfg.Site.StatusFilter,
		Topic:        cfg.PubSub.TopicName,
	}, a.logger.Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	return runner, nil
}

// ScrapeParams derives run parameters from the scrape section.
func (a *App) ScrapeParams() pipeline.Params {
	return pipeline.Params{
		SearchTerm:   a.cfg.Scrape.SearchTerm,
		MaxPages:     a.cfg.Scrape.MaxPages,
		Cutoff:       a.cfg.Cutoff(),
		FetchDetails: a.cfg.Scrape.FetchDetails,
	}
}

// Dispatcher returns the remote run client, or nil when none is configured.
func (a *App) Dispatcher() (*dispatch.Client, error) {
	d := a.cfg.Dispatch
	if !d.Configured() {
		return nil, nil
	}
	client, err := dispatch.New(dispatch.Config{
		APIURL:   d.APIURL,
		Owner:    d.Owner,
		Repo:     d.Repo,
		Workflow: d.Workflow,
		Ref:      d.Ref,
		Token:    d.Token,
		Timeout:  a.cfg.HTTPTimeout(),
	}, a.logger.Named("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("dispatch init failed: %w", err)
	}
	return client, nil
}

// Handler builds the dashboard HTTP handler.
func (a *App) Handler() (http.Handler, error) {
	client, err := a.Dispatcher()
	if err != nil {
		return nil, err
	}
	var d api.Dispatcher
	if client != nil {
		d = client
	} else {
		a.logger.Warn("dispatch not configured; POST /api/runs is disabled")
	}
	srv := api.NewServer(api.FileSource{Path: a.cfg.Output.Path}, d, system.New(), a.cfg, a.logger.Named("api"))
	return srv.Handler(), nil
}

// Serve runs the dashboard until ctx is canceled or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, err := a.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port), zap.String("artifact", a.cfg.Output.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	default:
		return nil
	}
}

// Close releases every external client.
func (a *App) Close() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.history != nil {
		a.history.Close()
	}
	_ = a.logger.Sync()
}

func (a *App) setupStorage(ctx context.Context) (tender.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case config.ProviderGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving artifacts to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case config.ProviderLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving artifacts locally", zap.String("path", a.cfg.Storage.BaseDir))
		return store, nil
	default:
		a.logger.Debug("artifact archiving disabled")
		return nil, nil
	}
}

func (a *App) setupHistory(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no DSN configured, run history disabled")
		return nil
	}
	store, err := pgstore.NewListingStore(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("run history init failed: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return fmt.Errorf("run history schema: %w", err)
	}
	a.history = store
	a.logger.Info("run history enabled", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Debug("no Pub/Sub topic configured, run notifications disabled")
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPublisher = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}
