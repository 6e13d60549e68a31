// Package api exposes the dashboard HTTP interface over the latest run
// artifact and the remote run trigger.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/tenderwatch/internal/config"
	"github.com/JakeFAU/tenderwatch/internal/dispatch"
	"github.com/JakeFAU/tenderwatch/internal/id/uuid"
	"github.com/JakeFAU/tenderwatch/internal/metrics"
	"github.com/JakeFAU/tenderwatch/internal/sink"
	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// ExportPrefix starts every export file name.
const ExportPrefix = "merx_opportunities"

const maxUploadBytes = 10 << 20

// ListingSource supplies the listings of the latest run.
type ListingSource interface {
	Listings(ctx context.Context) ([]tender.Listing, error)
}

// FileSource reads the artifact written by the scrape command.
type FileSource struct {
	Path string
}

// Listings loads the artifact at Path.
func (s FileSource) Listings(context.Context) ([]tender.Listing, error) {
	return sink.LoadFile(s.Path)
}

// Replace overwrites the artifact at Path in the format its extension names.
func (s FileSource) Replace(_ context.Context, listings []tender.Listing) error {
	f, err := sink.FormatFromPath(s.Path)
	if err != nil {
		return err
	}
	if _, err := sink.WriteFile(s.Path, f, listings); err != nil {
		return err
	}
	return nil
}

// ListingWriter is implemented by sources that accept an uploaded artifact.
type ListingWriter interface {
	Replace(ctx context.Context, listings []tender.Listing) error
}

// Dispatcher starts a remote scrape run.
type Dispatcher interface {
	Dispatch(ctx context.Context, p dispatch.Params) error
}

// Server wires HTTP handlers to the artifact and the dispatcher.
type Server struct {
	router     chi.Router
	source     ListingSource
	dispatcher Dispatcher
	clock      tender.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. dispatcher may be
// nil, in which case run requests are rejected.
func NewServer(
	source ListingSource,
	dispatcher Dispatcher,
	clock tender.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		source:     source,
		dispatcher: dispatcher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(uuid.New()))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/listings", s.listListings)
		r.Post("/listings", s.uploadListings)
		r.Get("/export", s.export)
		r.Post("/runs", s.triggerRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.source.Listings(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "artifact not readable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// load returns the filtered listings or writes an error response.
func (s *Server) load(w http.ResponseWriter, r *http.Request) ([]tender.Listing, bool) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	listings, err := s.source.Listings(r.Context())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		listings = nil
	case err != nil:
		s.logger.Error("load listings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load listings")
		return nil, false
	}
	return filter.Apply(listings), true
}

func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	view := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("view")))
	if view == "" {
		view = ViewList
	}
	if view != ViewList && view != ViewTable && view != ViewAnalytics {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown view %q", view))
		return
	}
	listings, ok := s.load(w, r)
	if !ok {
		return
	}
	switch view {
	case ViewTable:
		writeJSON(w, http.StatusOK, tableView(listings))
	case ViewAnalytics:
		writeJSON(w, http.StatusOK, Summarize(listings))
	default:
		writeJSON(w, http.StatusOK, listView(listings, s.clock.Now()))
	}
}

// uploadListings seeds an empty dashboard from a JSON artifact. An artifact
// that already holds listings is never replaced.
func (s *Server) uploadListings(w http.ResponseWriter, r *http.Request) {
	writer, ok := s.source.(ListingWriter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "artifact upload is not supported")
		return
	}
	existing, err := s.source.Listings(r.Context())
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		s.logger.Error("load listings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load listings")
		return
	case len(existing) > 0:
		writeError(w, http.StatusConflict, "artifact already has listings")
		return
	}

	listings, err := sink.Decode(http.MaxBytesReader(w, r.Body, maxUploadBytes), sink.FormatJSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON array of listings")
		return
	}
	if len(listings) == 0 {
		writeError(w, http.StatusBadRequest, "upload contains no listings")
		return
	}
	if err := writer.Replace(r.Context(), listings); err != nil {
		s.logger.Error("store uploaded listings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store listings")
		return
	}
	s.logger.Info("artifact uploaded", zap.Int("listings", len(listings)))
	writeJSON(w, http.StatusCreated, map[string]int{"stored": len(listings)})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(sink.FormatCSV)
	}
	format, err := sink.ParseFormat(raw)
	if err != nil || format == sink.FormatJSON {
		writeError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}
	listings, ok := s.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := sink.Encode(&buf, format, listings); err != nil {
		s.logger.Error("encode export", zap.String("format", string(format)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}
	name := sink.Filename(ExportPrefix, format, s.clock.Now().Format("20060102"))
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("write export", zap.Error(err))
	}
}

type runRequest struct {
	SearchTerm       string `json:"search_term"`
	MaxPages         int    `json:"max_pages"`
	MinPublishedDate string `json:"min_published_date"`
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "run dispatch is not configured")
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params := s.applyDefaults(req)
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.dispatcher.Dispatch(r.Context(), params); err != nil {
		metrics.ObserveDispatch("failed")
		s.logger.Warn("dispatch run", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrDispatchFailed) {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	metrics.ObserveDispatch("accepted")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":             "dispatched",
		"search_term":        params.SearchTerm,
		"max_pages":          params.MaxPages,
		"min_published_date": params.MinPublishedDate,
	})
}

func (s *Server) applyDefaults(req runRequest) dispatch.Params {
	params := dispatch.Params{
		SearchTerm:       strings.TrimSpace(req.SearchTerm),
		MaxPages:         req.MaxPages,
		MinPublishedDate: strings.TrimSpace(req.MinPublishedDate),
	}
	if params.SearchTerm == "" {
		params.SearchTerm = s.cfg.Scrape.SearchTerm
	}
	if params.MaxPages == 0 {
		params.MaxPages = s.cfg.Scrape.MaxPages
	}
	return params
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
