// Package dispatch triggers a scrape run on a remote CI workflow through the
// workflow_dispatch REST endpoint.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultAPIURL is the public GitHub REST API.
const DefaultAPIURL = "https://api.github.com"

// ErrDispatchFailed is returned when the remote API does not accept the run.
var ErrDispatchFailed = errors.New("workflow dispatch failed")

// Config identifies the workflow to run.
type Config struct {
	APIURL   string
	Owner    string
	Repo     string
	Workflow string
	Ref      string
	Token    string
	Timeout  time.Duration
}

// Params are forwarded as workflow inputs.
type Params struct {
	SearchTerm       string `json:"search_term"`
	MaxPages         int    `json:"max_pages"`
	MinPublishedDate string `json:"min_published_date,omitempty"`
}

// Validate checks the inputs before they are sent.
func (p Params) Validate() error {
	if strings.TrimSpace(p.SearchTerm) == "" {
		return fmt.Errorf("search_term is required")
	}
	if p.MaxPages < 1 {
		return fmt.Errorf("max_pages must be >= 1")
	}
	if p.MinPublishedDate != "" {
		if _, err := time.Parse("2006-01-02", p.MinPublishedDate); err != nil {
			return fmt.Errorf("min_published_date must be YYYY-MM-DD: %w", err)
		}
	}
	return nil
}

type payload struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs"`
}

// Client sends workflow dispatch requests.
type Client struct {
	cfg    Config
	client *resty.Client
	logger *zap.Logger
}

// New validates cfg and builds the HTTP client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" || cfg.Workflow == "" {
		return nil, fmt.Errorf("dispatch owner, repo and workflow are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Ref == "" {
		cfg.Ref = "main"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &Client{cfg: cfg, client: client, logger: logger}, nil
}

// Endpoint is the dispatch URL for the configured workflow.
func (c *Client) Endpoint() string {
	return fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		strings.TrimRight(c.cfg.APIURL, "/"),
		url.PathEscape(c.cfg.Owner),
		url.PathEscape(c.cfg.Repo),
		url.PathEscape(c.cfg.Workflow),
	)
}

// Dispatch asks the remote to start a run. Only 204 No Content is success.
func (c *Client) Dispatch(ctx context.Context, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	body := payload{
		Ref: c.cfg.Ref,
		Inputs: map[string]string{
			"search_term":        p.SearchTerm,
			"max_pages":          strconv.Itoa(p.MaxPages),
			"min_published_date": p.MinPublishedDate,
		},
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.Endpoint())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	if resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("%w: status %d: %s", ErrDispatchFailed, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	c.logger.Info("workflow dispatched",
		zap.String("workflow", c.cfg.Workflow),
		zap.String("ref", c.cfg.Ref),
		zap.String("search_term", p.SearchTerm),
		zap.Int("max_pages", p.MaxPages),
	)
	return nil
}
