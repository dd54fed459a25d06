// Package evidence queries third-party sources for organization mentions
// about a candidate. Each source sits behind the Adapter contract and
// degrades to an empty result instead of failing the run.
package evidence

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/internal/resilience"
)

// Status summarizes how a source call went.
type Status string

const (
	StatusFound          Status = "found"
	StatusNotFound       Status = "not_found"
	StatusNotConfigured  Status = "not_configured"
	StatusQuotaExhausted Status = "quota_exhausted"
	StatusDisabled       Status = "disabled"
)

// Query is one lookup: a candidate, the parsed name, and the client the
// candidate was submitted to. Candidate-scoped adapters ignore ClientName.
type Query struct {
	Candidate  model.Candidate
	Person     normalize.PersonName
	ClientName string
}

// Result is what an adapter returns. Err is informational; adapters never
// fail a run.
type Result struct {
	Source        model.Source
	Status        Status
	Mentions      []model.OrganizationMention
	ProfileURL    string
	DiscoveredNPI string
	Note          string
	Err           error
}

// Adapter is one evidence source.
type Adapter interface {
	Source() model.Source
	// Configured reports whether credentials and clients are present.
	Configured() bool
	// CandidateScoped reports whether results depend only on the candidate,
	// so a run may reuse them across that candidate's submissions.
	CandidateScoped() bool
	Find(ctx context.Context, q Query) Result
}

func notConfigured(src model.Source) Result {
	return Result{Source: src, Status: StatusNotConfigured, Note: "source not configured"}
}

func found(src model.Source, mentions []model.OrganizationMention) Result {
	if len(mentions) == 0 {
		return Result{Source: src, Status: StatusNotFound}
	}
	return Result{Source: src, Status: StatusFound, Mentions: mentions}
}

// failure maps an upstream error onto a result status.
func failure(src model.Source, err error) Result {
	r := Result{Source: src, Err: err, Note: err.Error()}
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		r.Status = StatusDisabled
	case resilience.IsQuotaExhausted(err):
		r.Status = StatusQuotaExhausted
	default:
		r.Status = StatusNotFound
	}
	return r
}

// halts reports whether err means the upstream should not be called again.
func halts(err error) bool {
	return errors.Is(err, resilience.ErrCircuitOpen) || resilience.IsQuotaExhausted(err)
}

func logger(src model.Source) *zap.Logger {
	return zap.L().With(zap.String("component", "evidence."+string(src)))
}
