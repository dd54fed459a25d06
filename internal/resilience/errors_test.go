package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsQuotaMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Your account has run out of searches.", true},
		{"Insufficient credits for this request", true},
		{"Monthly limit reached", true},
		{"Quota exceeded for quota metric", true},
		{"Too many requests, slow down", false},
		{"internal server error", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuotaMessage(tt.msg))
		})
	}
}

func TestClassifyHTTP(t *testing.T) {
	base := errors.New("upstream refused")

	err := ClassifyHTTP("serpapi", 402, "", base)
	assert.True(t, IsQuotaExhausted(err))
	assert.False(t, IsTransient(err))

	err = ClassifyHTTP("serpapi", 429, `{"error":"Your account has run out of searches."}`, base)
	assert.True(t, IsQuotaExhausted(err))
	assert.False(t, IsTransient(err), "quota exhaustion must not be retried")

	err = ClassifyHTTP("serpapi", 429, `{"error":"slow down"}`, base)
	assert.False(t, IsQuotaExhausted(err))
	assert.True(t, IsTransient(err))

	err = ClassifyHTTP("serpapi", 404, "not found", base)
	assert.Same(t, base, err)
}

func TestIsQuotaExhaustedThroughWrapping(t *testing.T) {
	qe := NewQuotaError("netrows", 403, errors.New("plan limit"))
	wrapped := eris.Wrap(fmt.Errorf("lookup: %w", qe), "evidence: network")
	assert.True(t, IsQuotaExhausted(wrapped))
	assert.False(t, IsQuotaExhausted(nil))
	assert.Contains(t, qe.Error(), "netrows: quota exhausted")
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(errors.New("503"), 503)))
	assert.True(t, IsTransient(errors.New("read tcp: i/o timeout")))
	assert.False(t, IsTransient(errors.New("bad request")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 402, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
