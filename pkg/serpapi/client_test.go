package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placement-monitor/internal/resilience"
)

var fastRetry = resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "google", r.URL.Query().Get("engine"))
		assert.Equal(t, `"Jane Doe" "Acme Eye Care"`, r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "20", r.URL.Query().Get("num"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"organic_results":[{"position":1,"title":"Dr. Jane Doe - Acme Eye Care","link":"https://acmeeye.com/team","snippet":"Dr. Doe joined Acme Eye Care in Rockford, IL."}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), `"Jane Doe" "Acme Eye Care"`, WithNum(20))

	require.NoError(t, err)
	require.Len(t, resp.OrganicResults, 1)
	assert.Equal(t, "https://acmeeye.com/team", resp.OrganicResults[0].Link)
	assert.Contains(t, resp.OrganicResults[0].Snippet, "Rockford, IL")
}

func TestSearch_NoResultsIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Google hasn't returned any results for this query."}`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, resp.OrganicResults)
}

func TestSearch_QuotaExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Your account has run out of searches."}`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", WithBaseURL(srv.URL), WithRetry(fastRetry)).Search(context.Background(), "q")
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, resilience.IsQuotaExhausted(err))
	assert.Equal(t, int32(1), calls.Load(), "quota errors are not retried")
}

func TestSearch_QuotaInOKBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Monthly limit reached for this plan"}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Search(context.Background(), "q")
	assert.True(t, resilience.IsQuotaExhausted(err))
}

func TestSearch_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"organic_results":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL), WithRetry(fastRetry)).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key."}`))
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithBaseURL(srv.URL)).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.False(t, resilience.IsQuotaExhausted(err))
}

func TestSearch_MinInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithMinInterval(50*time.Millisecond))
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Search(context.Background(), "q")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
