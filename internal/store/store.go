// Package store persists candidates, submissions, alerts and relatedness
// edges. Three backends implement Store: a single JSON document (default),
// SQLite and Postgres.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placement-monitor/internal/model"
)

// ErrNotFound is returned when an update targets a missing record.
var ErrNotFound = eris.New("store: not found")

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	Status      model.AlertStatus `json:"status,omitempty"`
	CandidateID string            `json:"candidate_id,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Offset      int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for the monitor.
type Store interface {
	// Candidates and submissions
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
	ListSubmissionsFor(ctx context.Context, candidateID string) ([]model.Submission, error)
	UpsertCandidate(ctx context.Context, c model.Candidate) error
	UpsertSubmission(ctx context.Context, s model.Submission) error
	UpdateCandidate(ctx context.Context, id string, u model.CandidateUpdate) error

	// Alerts. AppendAlert is idempotent on (candidate, client, source): when
	// an alert already exists it is returned unchanged with created=false.
	AppendAlert(ctx context.Context, a model.Alert) (stored model.Alert, created bool, err error)
	FindAlert(ctx context.Context, candidateID, clientName string, source model.Source) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus) (*model.Alert, error)

	// Relatedness edges. Adding an existing edge is a no-op.
	ListRelationships(ctx context.Context) ([]model.RelatednessEdge, error)
	AddRelationship(ctx context.Context, e model.RelatednessEdge) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// prepareAlert fills the fields a new alert needs before insertion.
func prepareAlert(a model.Alert, id string, now time.Time) model.Alert {
	if a.ID == "" {
		a.ID = id
	}
	if a.Status == "" {
		a.Status = model.AlertPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return a
}

func validateStatus(status model.AlertStatus) error {
	if !status.Valid() {
		return eris.Errorf("store: invalid alert status %q", status)
	}
	return nil
}

func edgeKey(e model.RelatednessEdge) (string, string) {
	return model.ClientKey(e.Parent), model.ClientKey(e.Alias)
}
