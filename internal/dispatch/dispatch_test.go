package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(t *testing.T, apiURL string) *Client {
	t.Helper()
	c, err := New(Config{
		APIURL:   apiURL,
		Owner:    "acme",
		Repo:     "tenders",
		Workflow: "scrape.yml",
		Ref:      "main",
		Token:    "ghp_test",
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Owner: "acme"}, nil)
	require.Error(t, err)

	c, err := New(Config{Owner: "acme", Repo: "tenders", Workflow: "scrape.yml"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com/repos/acme/tenders/actions/workflows/scrape.yml/dispatches", c.Endpoint())
	assert.Equal(t, "main", c.cfg.Ref)
}

func TestDispatchSuccess(t *testing.T) {
	t.Parallel()

	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/tenders/actions/workflows/scrape.yml/dispatches", r.URL.Path)
		assert.Equal(t, "Bearer ghp_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newClient(t, srv.URL+"/").Dispatch(context.Background(), Params{
		SearchTerm:       "health",
		MaxPages:         3,
		MinPublishedDate: "2024-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "main", got.Ref)
	assert.Equal(t, map[string]string{
		"search_term":        "health",
		"max_pages":          "3",
		"min_published_date": "2024-01-01",
	}, got.Inputs)
}

func TestDispatchNon204IsFailure(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusOK, http.StatusUnauthorized, http.StatusUnprocessableEntity} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
		}))
		err := newClient(t, srv.URL).Dispatch(context.Background(), Params{SearchTerm: "health", MaxPages: 1})
		srv.Close()
		require.ErrorIs(t, err, ErrDispatchFailed)
		assert.Contains(t, err.Error(), "Bad credentials")
	}
}

func TestDispatchTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newClient(t, url).Dispatch(context.Background(), Params{SearchTerm: "health", MaxPages: 1})
	require.ErrorIs(t, err, ErrDispatchFailed)
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Params{SearchTerm: "x", MaxPages: 1}.Validate())
	require.Error(t, Params{MaxPages: 1}.Validate())
	require.Error(t, Params{SearchTerm: "x"}.Validate())
	require.Error(t, Params{SearchTerm: "x", MaxPages: 1, MinPublishedDate: "01/02/2024"}.Validate())

	err := newClient(t, "http://127.0.0.1:1").Dispatch(context.Background(), Params{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDispatchFailed)
}
