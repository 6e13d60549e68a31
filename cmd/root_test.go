package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tenderwatch/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Parallel()

	cmd := newScrapeCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--search-term", "ambulance",
		"--max-pages", "7",
		"--min-published-date", "2024-01-01",
		"--fetch-details",
		"-o", "out.csv",
	}))
	cfg := config.Config{Scrape: config.ScrapeConfig{SearchTerm: "health", MaxPages: 3}, Output: config.OutputConfig{Path: "x.json", Format: "json"}}
	require.NoError(t, applyFlagOverrides(cmd, &cfg))

	assert.Equal(t, "ambulance", cfg.Scrape.SearchTerm)
	assert.Equal(t, 7, cfg.Scrape.MaxPages)
	assert.Equal(t, "2024-01-01", cfg.Scrape.MinPublishedDate)
	assert.True(t, cfg.Scrape.FetchDetails)
	assert.False(t, cfg.Classifier.Enabled)
	assert.Equal(t, "out.csv", cfg.Output.Path)
	assert.Equal(t, "json", cfg.Output.Format, "unset flags leave config alone")
}

func TestDispatchCommand(t *testing.T) {
	t.Parallel()

	var inputs map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Inputs map[string]string `json:"inputs"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		inputs = body.Inputs
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	path := writeConfig(t, fmt.Sprintf(`
dispatch:
  api_url: %s
  owner: acme
  repo: tenders
  workflow: scrape.yml
logging:
  development: false
  level: error
`, srv.URL))

	out, err := execute(t, "--config", path, "dispatch", "--search-term", "nursing", "--max-pages", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "run dispatched")
	assert.Equal(t, "nursing", inputs["search_term"])
	assert.Equal(t, "2", inputs["max_pages"])
}

func TestDispatchCommandRequiresConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "logging:\n  level: error\n")
	_, err := execute(t, "--config", path, "dispatch")
	require.ErrorContains(t, err, "dispatch.owner")
}

func TestInvalidFlagOverrideFailsValidation(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "logging:\n  level: error\n")
	_, err := execute(t, "--config", path, "dispatch", "--max-pages", "0")
	require.ErrorContains(t, err, "scrape.max_pages")
}
