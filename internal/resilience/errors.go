package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// QuotaError marks an upstream refusal caused by an exhausted plan, credit
// balance or usage quota. It is never retried.
type QuotaError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *QuotaError) Error() string {
	return e.Service + ": quota exhausted: " + e.Err.Error()
}

func (e *QuotaError) Unwrap() error { return e.Err }

// NewQuotaError wraps err as a quota exhaustion reported by service.
func NewQuotaError(service string, statusCode int, err error) *QuotaError {
	return &QuotaError{Service: service, StatusCode: statusCode, Err: err}
}

var quotaPhrases = []string{
	"run out of searches",
	"out of credits",
	"insufficient credits",
	"not enough credits",
	"credit balance",
	"credits exhausted",
	"quota exceeded",
	"quota exhausted",
	"exceeded your quota",
	"monthly limit",
	"plan limit",
	"usage limit",
	"limit exceeded",
	"limit reached",
	"payment required",
}

// IsQuotaMessage reports whether an upstream error message describes credit
// or quota exhaustion rather than a transient throttle.
func IsQuotaMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range quotaPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// ClassifyHTTP turns a non-2xx upstream response into a typed error: quota
// exhaustion (402, or any status whose body uses quota vocabulary),
// transient (408, 429, 5xx) or the plain error.
func ClassifyHTTP(service string, statusCode int, body string, err error) error {
	if statusCode == http.StatusPaymentRequired || IsQuotaMessage(body) {
		return NewQuotaError(service, statusCode, err)
	}
	if IsTransientHTTPStatus(statusCode) {
		return NewTransientError(err, statusCode)
	}
	return err
}

// IsQuotaExhausted reports whether err (or its chain) is a quota exhaustion.
func IsQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	var qe *QuotaError
	if errors.As(err, &qe) {
		return true
	}
	return IsQuotaMessage(err.Error())
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common network failure patterns. Quota
// exhaustion is never transient.
func IsTransient(err error) bool {
	if err == nil || IsQuotaExhausted(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
