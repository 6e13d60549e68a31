package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

func TestNewRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)

	a, err := New(Config{Endpoint: "http://model"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLabels, a.cfg.Labels)
	assert.Equal(t, DefaultExcludedLabel, a.cfg.ExcludedLabel)
	assert.Equal(t, DefaultMaxChars, a.cfg.MaxChars)
	assert.Nil(t, a.limiter)
}

func TestClassifySendsZeroShotRequest(t *testing.T) {
	t.Parallel()

	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sequence":"x","labels":["IT Services","Consulting"],"scores":[0.82,0.18]}`))
	}))
	defer srv.Close()

	a, err := New(Config{
		Endpoint:          srv.URL,
		Token:             "secret",
		Labels:            []string{"IT Services", "Consulting"},
		MaxChars:          12,
		RequestsPerSecond: 100,
	}, zap.NewNop())
	require.NoError(t, err)

	pred, err := a.Classify(context.Background(), tender.Listing{Title: "Network upgrade", Description: "Switches"})
	require.NoError(t, err)
	assert.Equal(t, "IT Services", pred.Label)
	assert.InDelta(t, 0.82, pred.Score, 1e-9)
	assert.Equal(t, "Network upgr", got.Inputs)
	assert.Equal(t, []string{"IT Services", "Consulting"}, got.Parameters.CandidateLabels)
	assert.False(t, got.Parameters.MultiLabel)
}

func TestClassifyRemapsExcludedLabel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"Consulting","score":0.05},{"label":"Hardware/Instrument Requirement","score":0.9}]`))
	}))
	defer srv.Close()

	a, err := New(Config{Endpoint: srv.URL}, nil)
	require.NoError(t, err)
	pred, err := a.Classify(context.Background(), tender.Listing{Title: "Ultrasound machines"})
	require.NoError(t, err)
	assert.Equal(t, tender.ExcludedCategory, pred.Label)

	keep, reason := tender.Retain(tender.Listing{Title: "Ultrasound machines"}.WithPrediction(pred), tender.DefaultThreshold)
	assert.False(t, keep)
	assert.Equal(t, tender.RejectExcluded, reason)
}

func TestClassifyFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/down":
			http.Error(w, "model loading", http.StatusServiceUnavailable)
		case "/empty":
			_, _ = w.Write([]byte(`{"labels":[],"scores":[]}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	for path, check := range map[string]func(error){
		"/down": func(err error) {
			require.ErrorIs(t, err, ErrRequestFailed)
			assert.Contains(t, err.Error(), "503")
		},
		"/empty": func(err error) { require.ErrorIs(t, err, ErrEmptyPrediction) },
		"/bad":   func(err error) { require.Error(t, err) },
	} {
		a, err := New(Config{Endpoint: srv.URL + path}, nil)
		require.NoError(t, err)
		_, err = a.Classify(context.Background(), tender.Listing{Title: "x"})
		check(err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassifyHonorsContextWhileRateLimited(t *testing.T) {
	t.Parallel()

	a, err := New(Config{Endpoint: "http://127.0.0.1:0", RequestsPerSecond: 0.001}, nil)
	require.NoError(t, err)
	require.True(t, a.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Classify(ctx, tender.Listing{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestDecodePrediction(t *testing.T) {
	t.Parallel()

	pred, err := DecodePrediction([]byte(`{"labels":["A","B"],"scores":[0.2,0.7]}`))
	require.NoError(t, err)
	assert.Equal(t, tender.Prediction{Label: "B", Score: 0.7}, pred)

	pred, err = DecodePrediction([]byte(` [{"label":"C","score":0.4}]`))
	require.NoError(t, err)
	assert.Equal(t, tender.Prediction{Label: "C", Score: 0.4}, pred)

	_, err = DecodePrediction([]byte(`[]`))
	require.ErrorIs(t, err, ErrEmptyPrediction)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "any", Truncate("any", 0))
	assert.Len(t, []rune(Truncate(strings.Repeat("é", 2000), DefaultMaxChars)), DefaultMaxChars)
}
