package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placement-monitor/internal/model"
)

func sampleAlert() model.Alert {
	return model.Alert{
		ID:            "a-1",
		CandidateID:   "c-1",
		CandidateName: "Jane Doe",
		ClientName:    "Acme Eye Care",
		Source:        model.SourceWebSearch,
		Confidence:    model.ConfidenceHigh,
		Reason:        `full client name "acme eye care" present`,
		Evidence: model.AlertEvidence{
			Organization: "Acme Eye Care",
			Location:     model.Location{City: "Rockford", State: "IL"},
			URLs:         []string{"https://acme.example/team"},
		},
		Status:    model.AlertPending,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestWebhook_Notify(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	w.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, w.Notify(context.Background(), sampleAlert()))
	assert.Equal(t, EventNewAlert, got.Event)
	assert.Equal(t, "a-1", got.Alert.ID)
	assert.Equal(t, model.ConfidenceHigh, got.Alert.Confidence)
	assert.Equal(t, []string{"https://acme.example/team"}, got.Alert.Evidence.URLs)
	assert.True(t, got.SentAt.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestWebhook_ErrorStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Notify(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhook_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewWebhook(url).Notify(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review: webhook request")
}

func TestWebhook_Name(t *testing.T) {
	assert.Equal(t, "webhook", NewWebhook("http://localhost").Name())
}
