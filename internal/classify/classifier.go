// Package classify labels listings with a hosted zero-shot classification
// model.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// DefaultExcludedLabel is remapped to tender.ExcludedCategory.
const DefaultExcludedLabel = "Hardware/Instrument Requirement"

// DefaultMaxChars bounds the text sent per listing.
const DefaultMaxChars = 1000

// DefaultLabels is the candidate label set used when none is configured.
var DefaultLabels = []string{
	"IT Services",
	"Software Development",
	"Consulting",
	"Health Services",
	"Construction",
	DefaultExcludedLabel,
}

var (
	// ErrEmptyPrediction means the model answered without any label.
	ErrEmptyPrediction = errors.New("classifier returned no labels")
	// ErrRequestFailed wraps non-2xx model responses.
	ErrRequestFailed = errors.New("classifier request failed")
)

// Config configures the adapter.
type Config struct {
	Endpoint          string
	Token             string
	Labels            []string
	ExcludedLabel     string
	MaxChars          int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Adapter implements tender.Classifier over HTTP.
type Adapter struct {
	cfg     Config
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ tender.Classifier = (*Adapter)(nil)

// New validates cfg and builds the HTTP client.
func New(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("classifier endpoint is required")
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = DefaultLabels
	}
	if cfg.ExcludedLabel == "" {
		cfg.ExcludedLabel = DefaultExcludedLabel
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	a := &Adapter{cfg: cfg, client: client, logger: logger}
	if cfg.RequestsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return a, nil
}

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

// Classify returns the top label for the listing's title and description.
func (a *Adapter) Classify(ctx context.Context, listing tender.Listing) (tender.Prediction, error) {
	text := Truncate(listing.ClassifierInput(), a.cfg.MaxChars)
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return tender.Prediction{}, fmt.Errorf("classifier rate limit: %w", err)
		}
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(request{
			Inputs:     text,
			Parameters: parameters{CandidateLabels: a.cfg.Labels},
		}).
		Post(a.cfg.Endpoint)
	if err != nil {
		return tender.Prediction{}, fmt.Errorf("classify %q: %w", listing.Title, err)
	}
	if resp.IsError() {
		return tender.Prediction{}, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	pred, err := DecodePrediction(resp.Body())
	if err != nil {
		return tender.Prediction{}, err
	}
	if pred.Label == a.cfg.ExcludedLabel {
		pred.Label = tender.ExcludedCategory
	}
	a.logger.Debug("listing classified",
		zap.String("title", listing.Title),
		zap.String("label", pred.Label),
		zap.Float64("score", pred.Score),
	)
	return pred, nil
}

type labelScores struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// DecodePrediction accepts either {"labels": [...], "scores": [...]} or
// [{"label": ..., "score": ...}] and returns the highest scoring label.
func DecodePrediction(body []byte) (tender.Prediction, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var items []labelScore
		if err := json.Unmarshal(body, &items); err != nil {
			return tender.Prediction{}, fmt.Errorf("decode classifier response: %w", err)
		}
		best := -1
		for i, it := range items {
			if best < 0 || it.Score > items[best].Score {
				best = i
			}
		}
		if best < 0 {
			return tender.Prediction{}, ErrEmptyPrediction
		}
		return tender.Prediction{Label: items[best].Label, Score: items[best].Score}, nil
	}

	var ls labelScores
	if err := json.Unmarshal(body, &ls); err != nil {
		return tender.Prediction{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if len(ls.Labels) == 0 || len(ls.Scores) == 0 {
		return tender.Prediction{}, ErrEmptyPrediction
	}
	best := 0
	for i := 1; i < len(ls.Labels) && i < len(ls.Scores); i++ {
		if ls.Scores[i] > ls.Scores[best] {
			best = i
		}
	}
	return tender.Prediction{Label: ls.Labels[best], Score: ls.Scores[best]}, nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
