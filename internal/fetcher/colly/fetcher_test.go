package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second})
	collector := f.buildCollector(&page{}, new(error))
	assert.Equal(t, "coverage-agent", collector.UserAgent)
	assert.False(t, collector.IgnoreRobotsTxt)

	f = New(Config{})
	assert.True(t, f.buildCollector(&page{}, new(error)).IgnoreRobotsTxt)
	assert.Equal(t, 15*time.Second, f.timeout())
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var result page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Contains(t, collyReq.Headers.Get("Accept"), "text/html")

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("<p>body</p>"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://www.merx.com/solicitations/1")},
	})
	assert.Equal(t, http.StatusOK, result.status)
	assert.Equal(t, "<p>body</p>", string(result.body))

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	require.Error(t, fetchErr)
	assert.Contains(t, fetchErr.Error(), "status 404")
}

func TestFetchDescription(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/solicitations/1":
			_, _ = w.Write([]byte(`<html><body><div class="description">Supply of  hospital beds.</div></body></html>`))
		case "/solicitations/empty":
			_, _ = w.Write([]byte(`<html><body><h1>No description</h1></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second})
	desc, err := f.FetchDescription(context.Background(), srv.URL+"/solicitations/1")
	require.NoError(t, err)
	assert.Equal(t, "Supply of hospital beds.", desc)

	desc, err = f.FetchDescription(context.Background(), srv.URL+"/solicitations/1")
	require.NoError(t, err, "revisits are allowed")
	assert.NotEmpty(t, desc)

	desc, err = f.FetchDescription(context.Background(), srv.URL+"/solicitations/empty")
	require.NoError(t, err)
	assert.Empty(t, desc)

	_, err = f.FetchDescription(context.Background(), srv.URL+"/missing")
	require.Error(t, err)

	desc, err = f.FetchDescription(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, desc)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
