// Package config loads and validates tenderwatch configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Site       SiteConfig       `mapstructure:"site"`
	Scrape     ScrapeConfig     `mapstructure:"scrape"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Output     OutputConfig     `mapstructure:"output"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the dashboard HTTP server.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SiteConfig describes the tendering site's layout.
type SiteConfig struct {
	BaseURL              string   `mapstructure:"base_url"`
	ListingPath          string   `mapstructure:"listing_path"`
	CategorySelectors    []string `mapstructure:"category_selectors"`
	SearchSelectors      []string `mapstructure:"search_selectors"`
	StatusFilter         string   `mapstructure:"status_filter"`
	StatusSelectors      []string `mapstructure:"status_selectors"`
	RowSelectors         []string `mapstructure:"row_selectors"`
	NextSelectors        []string `mapstructure:"next_selectors"`
	DetailMarker         string   `mapstructure:"detail_marker"`
	DescriptionSelectors []string `mapstructure:"description_selectors"`
}

// ScrapeConfig holds the per-run parameters.
type ScrapeConfig struct {
	SearchTerm       string `mapstructure:"search_term"`
	MaxPages         int    `mapstructure:"max_pages"`
	MinPublishedDate string `mapstructure:"min_published_date"`
	FetchDetails     bool   `mapstructure:"fetch_details"`
}

// BrowserConfig configures the headless Chrome session.
type BrowserConfig struct {
	Headless           bool   `mapstructure:"headless"`
	UserAgent          string `mapstructure:"user_agent"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSeconds int    `mapstructure:"wait_timeout_seconds"`
	PollIntervalMs     int    `mapstructure:"poll_interval_ms"`
	WindowWidth        int    `mapstructure:"window_width"`
	WindowHeight       int    `mapstructure:"window_height"`
	// DebugDir receives page snapshots when the search box is missing.
	DebugDir           string `mapstructure:"debug_dir"`
}

// HTTPConfig configures plain HTTP clients (detail pages).
type HTTPConfig struct {
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	RespectRobots  bool `mapstructure:"respect_robots"`
}

// ClassifierConfig configures the zero-shot classification endpoint.
type ClassifierConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	Endpoint          string   `mapstructure:"endpoint"`
	Token             string   `mapstructure:"token"`
	Labels            []string `mapstructure:"labels"`
	ExcludedLabel     string   `mapstructure:"excluded_label"`
	Threshold         float64  `mapstructure:"threshold"`
	MaxChars          int      `mapstructure:"max_chars"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	TimeoutSeconds    int      `mapstructure:"timeout_seconds"`
}

// OutputConfig names the run artifact.
type OutputConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// StorageConfig selects where artifact copies are archived.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the run history database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DispatchConfig identifies the remote workflow triggered by the dashboard.
type DispatchConfig struct {
	APIURL   string `mapstructure:"api_url"`
	Owner    string `mapstructure:"owner"`
	Repo     string `mapstructure:"repo"`
	Workflow string `mapstructure:"workflow"`
	Ref      string `mapstructure:"ref"`
	Token    string `mapstructure:"token"`
}

// Configured reports whether enough is set to dispatch runs.
func (d DispatchConfig) Configured() bool {
	return d.Owner != "" && d.Repo != "" && d.Workflow != ""
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Storage providers.
const (
	ProviderNone  = "none"
	ProviderLocal = "local"
	ProviderGCS   = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TENDERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("site.base_url", "https://www.merx.com")
	v.SetDefault("site.listing_path", "/public/opportunities")
	v.SetDefault("site.search_selectors", []string{
		"input[type='search']",
		"input[placeholder*='search' i]",
		"input[class*='search' i]",
		"input[id*='search' i]",
		"input[type='text']",
	})
	v.SetDefault("site.status_filter", "Open")
	v.SetDefault("site.status_selectors", []string{"select[name*='status' i]", "[aria-label*='status' i]"})
	v.SetDefault("site.row_selectors", []string{"table tbody tr", "tr"})
	v.SetDefault("site.next_selectors", []string{"button[aria-label='Next page']", "a[aria-label='Next page']", "a[rel='next']"})
	v.SetDefault("site.detail_marker", "/solicitations/")
	v.SetDefault("scrape.search_term", "health")
	v.SetDefault("scrape.max_pages", 3)
	v.SetDefault("scrape.fetch_details", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.wait_timeout_seconds", 10)
	v.SetDefault("browser.poll_interval_ms", 250)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("classifier.enabled", false)
	v.SetDefault("classifier.excluded_label", "Hardware/Instrument Requirement")
	v.SetDefault("classifier.threshold", tender.DefaultThreshold)
	v.SetDefault("classifier.max_chars", 1000)
	v.SetDefault("classifier.timeout_seconds", 30)
	v.SetDefault("output.path", "merx_opportunities.json")
	v.SetDefault("storage.provider", ProviderNone)
	v.SetDefault("storage.prefix", "tenderwatch")
	v.SetDefault("db.table", "tender_listings")
	v.SetDefault("dispatch.api_url", "https://api.github.com")
	v.SetDefault("dispatch.ref", "main")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// envOnlyKeys have no default, so AutomaticEnv alone never surfaces them to
// Unmarshal.
var envOnlyKeys = []string{
	"auth.enabled",
	"auth.api_key",
	"site.category_selectors",
	"site.description_selectors",
	"scrape.min_published_date",
	"browser.debug_dir",
	"classifier.endpoint",
	"classifier.token",
	"classifier.labels",
	"classifier.requests_per_second",
	"output.format",
	"storage.base_dir",
	"storage.gcs_bucket",
	"db.dsn",
	"db.max_conns",
	"pubsub.project_id",
	"pubsub.topic_name",
	"dispatch.owner",
	"dispatch.repo",
	"dispatch.workflow",
	"dispatch.token",
}

func bindEnv(v *viper.Viper) error {
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute URL")
	}
	if c.Scrape.MaxPages < 1 {
		return fmt.Errorf("scrape.max_pages must be >= 1")
	}
	if _, err := tender.ParseCutoff(c.Scrape.MinPublishedDate); err != nil {
		return fmt.Errorf("scrape.min_published_date: %w", err)
	}
	if c.Browser.NavTimeoutSeconds <= 0 || c.Browser.WaitTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds and browser.wait_timeout_seconds must be > 0")
	}
	if c.Browser.PollIntervalMs <= 0 {
		return fmt.Errorf("browser.poll_interval_ms must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Classifier.Enabled && c.Classifier.Endpoint == "" {
		return fmt.Errorf("classifier.endpoint must be set when the classifier is enabled")
	}
	if c.Classifier.Threshold <= 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier.threshold must be within (0,1]")
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output.path is required")
	}
	switch c.Storage.Provider {
	case "", ProviderNone:
	case ProviderLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local provider")
		}
	case ProviderGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// NavTimeout is the page load budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// WaitTimeout bounds element polling.
func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.Browser.WaitTimeoutSeconds) * time.Second
}

// PollInterval is the element polling period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Browser.PollIntervalMs) * time.Millisecond
}

// HTTPTimeout bounds plain HTTP requests.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Cutoff parses scrape.min_published_date; zero means no cutoff.
func (c Config) Cutoff() time.Time {
	t, _ := tender.ParseCutoff(c.Scrape.MinPublishedDate)
	return t
}
