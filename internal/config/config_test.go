package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "health", cfg.Scrape.SearchTerm)
	assert.Equal(t, 3, cfg.Scrape.MaxPages)
	assert.True(t, cfg.Browser.Headless)
	assert.InDelta(t, 0.5, cfg.Classifier.Threshold, 0)
	assert.Equal(t, 1000, cfg.Classifier.MaxChars)
	assert.Equal(t, ProviderNone, cfg.Storage.Provider)
	assert.Equal(t, 45*time.Second, cfg.NavTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.True(t, cfg.Cutoff().IsZero())
	assert.False(t, cfg.Dispatch.Configured())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
scrape:
  search_term: ambulance
  max_pages: 7
  min_published_date: "2024-01-01"
  fetch_details: true
classifier:
  enabled: true
  endpoint: https://inference.example.com/models/bart
  threshold: 0.7
  labels: ["IT Services", "Consulting"]
output:
  path: out/listings.xlsx
storage:
  provider: gcs
  gcs_bucket: bucket
  prefix: archive
dispatch:
  owner: acme
  repo: tenders
  workflow: scrape.yml
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "ambulance", cfg.Scrape.SearchTerm)
	assert.Equal(t, 7, cfg.Scrape.MaxPages)
	assert.True(t, cfg.Scrape.FetchDetails)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Cutoff())
	assert.Equal(t, []string{"IT Services", "Consulting"}, cfg.Classifier.Labels)
	assert.InDelta(t, 0.7, cfg.Classifier.Threshold, 0)
	assert.Equal(t, "out/listings.xlsx", cfg.Output.Path)
	assert.Equal(t, "archive", cfg.Storage.Prefix)
	assert.True(t, cfg.Dispatch.Configured())
	assert.Equal(t, "main", cfg.Dispatch.Ref)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadReadsKeysWithoutDefaultsFromEnv(t *testing.T) {
	t.Setenv("TENDERWATCH_DISPATCH_TOKEN", "ghp_secret")
	t.Setenv("TENDERWATCH_DISPATCH_OWNER", "acme")
	t.Setenv("TENDERWATCH_DISPATCH_REPO", "tenders")
	t.Setenv("TENDERWATCH_DISPATCH_WORKFLOW", "scrape.yml")
	t.Setenv("TENDERWATCH_CLASSIFIER_TOKEN", "hf_token")
	t.Setenv("TENDERWATCH_DB_DSN", "postgres://localhost/tenders")
	t.Setenv("TENDERWATCH_AUTH_ENABLED", "true")
	t.Setenv("TENDERWATCH_AUTH_API_KEY", "key")
	t.Setenv("TENDERWATCH_CLASSIFIER_LABELS", "IT Services,Consulting")
	t.Setenv("TENDERWATCH_SCRAPE_SEARCH_TERM", "software")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ghp_secret", cfg.Dispatch.Token)
	assert.True(t, cfg.Dispatch.Configured())
	assert.Equal(t, "hf_token", cfg.Classifier.Token)
	assert.Equal(t, "postgres://localhost/tenders", cfg.DB.DSN)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "key", cfg.Auth.APIKey)
	assert.Equal(t, []string{"IT Services", "Consulting"}, cfg.Classifier.Labels)
	assert.Equal(t, "software", cfg.Scrape.SearchTerm)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8080},
		Site:    SiteConfig{BaseURL: "https://www.merx.com"},
		Scrape:  ScrapeConfig{SearchTerm: "health", MaxPages: 3},
		Browser: BrowserConfig{NavTimeoutSeconds: 45, WaitTimeoutSeconds: 10, PollIntervalMs: 250},
		HTTP:    HTTPConfig{TimeoutSeconds: 15},
		Classifier: ClassifierConfig{
			Threshold: 0.5,
		},
		Output:  OutputConfig{Path: "out.json"},
		Storage: StorageConfig{Provider: ProviderNone},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"relative base url", func(c *Config) { c.Site.BaseURL = "/opportunities" }, "site.base_url"},
		{"max pages", func(c *Config) { c.Scrape.MaxPages = 0 }, "scrape.max_pages"},
		{"cutoff layout", func(c *Config) { c.Scrape.MinPublishedDate = "01/01/2024" }, "scrape.min_published_date"},
		{"nav timeout", func(c *Config) { c.Browser.NavTimeoutSeconds = 0 }, "browser.nav_timeout_seconds"},
		{"poll interval", func(c *Config) { c.Browser.PollIntervalMs = -1 }, "browser.poll_interval_ms"},
		{"http timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"classifier endpoint", func(c *Config) { c.Classifier.Enabled = true }, "classifier.endpoint"},
		{"threshold range", func(c *Config) { c.Classifier.Threshold = 1.5 }, "classifier.threshold"},
		{"threshold zero", func(c *Config) { c.Classifier.Threshold = 0 }, "classifier.threshold"},
		{"output path", func(c *Config) { c.Output.Path = " " }, "output.path"},
		{"local base dir", func(c *Config) { c.Storage.Provider = ProviderLocal }, "storage.base_dir"},
		{"gcs bucket", func(c *Config) { c.Storage.Provider = ProviderGCS }, "storage.gcs_bucket"},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
		{"pubsub project", func(c *Config) { c.PubSub.TopicName = "runs" }, "pubsub.project_id"},
		{"auth key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
