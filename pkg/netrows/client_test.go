package netrows

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placement-monitor/internal/resilience"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/people/profile", r.URL.Path)
		assert.Equal(t, "https://www.linkedin.com/in/jane-doe-od", r.URL.Query().Get("url"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProfile_SnakeCaseShape(t *testing.T) {
	srv := serve(t, http.StatusOK, `{
		"full_name": "Jane Doe",
		"headline": "Optometrist at Acme Eye Care",
		"experiences": [
			{"company": "Acme Eye Care", "title": "Optometrist", "starts_at": {"year": 2023, "month": 6}, "ends_at": null},
			{"company": "Bayside Vision", "title": "Associate OD", "starts_at": {"year": 2019}, "ends_at": {"year": 2023, "month": 5}}
		]
	}`)

	p, err := NewClient("test-key", WithBaseURL(srv.URL)).Profile(context.Background(), "https://www.linkedin.com/in/jane-doe-od")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.FullName)
	require.Len(t, p.Positions, 2)
	assert.Equal(t, "Acme Eye Care", p.Positions[0].Company)
	assert.Equal(t, time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC), *p.Positions[0].Start)
	assert.Nil(t, p.Positions[0].End)
	assert.Equal(t, "Bayside Vision", p.Positions[1].Company)
	assert.NotNil(t, p.Positions[1].End)
}

func TestProfile_CamelCaseEnvelope(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"data": {
		"firstName": "Jane", "lastName": "Doe",
		"positions": [{"companyName": {"name": "Acme Eye Care"}, "role": "OD", "startDate": "2023-06", "endDate": "Present"}]
	}}`)

	p, err := NewClient("test-key", WithBaseURL(srv.URL)).Profile(context.Background(), "https://www.linkedin.com/in/jane-doe-od")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.FullName)
	require.Len(t, p.Positions, 1)
	assert.Equal(t, "Acme Eye Care", p.Positions[0].Company)
	assert.Equal(t, "OD", p.Positions[0].Title)
	assert.True(t, p.Positions[0].Current)
}

func TestProfile_EmptyHistory(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"full_name": "Jane Doe", "experiences": []}`)

	p, err := NewClient("test-key", WithBaseURL(srv.URL)).Profile(context.Background(), "https://www.linkedin.com/in/jane-doe-od")
	assert.True(t, errors.Is(err, ErrEmptyHistory))
	require.NotNil(t, p)
	assert.Equal(t, "Jane Doe", p.FullName)
}

func TestProfile_QuotaExhausted(t *testing.T) {
	srv := serve(t, http.StatusPaymentRequired, `{"message": "Insufficient credits"}`)

	_, err := NewClient("test-key", WithBaseURL(srv.URL)).Profile(context.Background(), "https://www.linkedin.com/in/jane-doe-od")
	assert.True(t, resilience.IsQuotaExhausted(err))
}

func TestProfile_QuotaInOKBody(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"error": "You have run out of credits: credit balance is 0"}`)

	_, err := NewClient("test-key", WithBaseURL(srv.URL)).Profile(context.Background(), "https://www.linkedin.com/in/jane-doe-od")
	assert.True(t, resilience.IsQuotaExhausted(err))
}

func TestProfile_ServerError(t *testing.T) {
	srv := serve(t, http.StatusBadGateway, `upstream down`)

	_, err := NewClient("test-key", WithBaseURL(srv.URL)).Profile(context.Background(), "https://www.linkedin.com/in/jane-doe-od")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "502")
}

func TestParseDate(t *testing.T) {
	assert.Nil(t, parseDate(nil))
	assert.Nil(t, parseDate("sometime"))
	assert.Equal(t, 2020, parseDate("Mar 2020").Year())
	assert.Equal(t, time.March, parseDate(map[string]any{"year": float64(2020), "month": float64(3)}).Month())
	assert.Nil(t, parseDate(map[string]any{"month": float64(3)}))
}
