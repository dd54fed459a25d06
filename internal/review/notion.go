package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/store"
	"github.com/sells-group/placement-monitor/pkg/notion"
)

// Review database columns.
const (
	PropTitle        = "Alert"
	PropAlertID      = "Alert ID"
	PropCandidate    = "Candidate"
	PropClient       = "Client"
	PropSource       = "Source"
	PropConfidence   = "Confidence"
	PropReason       = "Reason"
	PropOrganization = "Matched Organization"
	PropExcerpt      = "Excerpt"
	PropLocation     = "Location"
	PropEvidence     = "Evidence"
	PropReview       = "Review"
	PropCreated      = "Created"
)

// decisionStatuses are the review states pulled back from the queue.
// Pending is the queue's starting state and never overwrites the store.
var decisionStatuses = []model.AlertStatus{
	model.AlertReviewing,
	model.AlertConfirmed,
	model.AlertDismissed,
}

// StatusUpdater applies a reviewer's decision to a stored alert.
type StatusUpdater interface {
	UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus) (*model.Alert, error)
}

// Queue files new alerts as pages in a Notion database and reads reviewer
// decisions back.
type Queue struct {
	client notion.Client
	dbID   string
	log    *zap.Logger
}

// NewQueue creates a Queue writing to the database dbID.
func NewQueue(client notion.Client, dbID string) *Queue {
	return &Queue{
		client: client,
		dbID:   dbID,
		log:    zap.L().With(zap.String("component", "review.notion")),
	}
}

// Name identifies the notifier in logs and metrics.
func (q *Queue) Name() string { return "notion" }

// Notify creates one review page for the alert.
func (q *Queue) Notify(ctx context.Context, a model.Alert) error {
	page, err := q.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(q.dbID),
		},
		Properties: alertProperties(a),
	})
	if err != nil {
		return eris.Wrapf(err, "review: file alert %s", a.ID)
	}
	q.log.Debug("review: alert filed", zap.String("alert_id", a.ID), zap.String("page_id", string(page.ID)))
	return nil
}

func alertProperties(a model.Alert) notionapi.Properties {
	props := notionapi.Properties{
		PropTitle:      notion.TitleValue(fmt.Sprintf("%s at %s", a.CandidateName, a.ClientName)),
		PropAlertID:    notion.TextValue(a.ID),
		PropCandidate:  notion.TextValue(a.CandidateID),
		PropClient:     notion.TextValue(a.ClientName),
		PropSource:     notion.SelectValue(string(a.Source)),
		PropConfidence: notion.SelectValue(string(a.Confidence)),
		PropReason:     notion.TextValue(a.Reason),
		PropReview:     notion.StatusValue(string(model.AlertPending)),
		PropCreated:    notion.DateValue(a.CreatedAt),
	}
	if a.Evidence.Organization != "" {
		props[PropOrganization] = notion.TextValue(a.Evidence.Organization)
	}
	if a.Evidence.Excerpt != "" {
		props[PropExcerpt] = notion.TextValue(a.Evidence.Excerpt)
	}
	if !a.Evidence.Location.IsZero() {
		props[PropLocation] = notion.TextValue(a.Evidence.Location.String())
	}
	if len(a.Evidence.URLs) > 0 {
		props[PropEvidence] = notion.URLValue(a.Evidence.URLs[0])
	}
	return props
}

// PullDecisions copies reviewer decisions from the queue onto stored alerts
// and returns how many were applied. Pages whose alert no longer exists are
// skipped.
func (q *Queue) PullDecisions(ctx context.Context, updater StatusUpdater) (int, error) {
	applied := 0
	for _, status := range decisionStatuses {
		pages, err := notion.QueryByStatus(ctx, q.client, q.dbID, PropReview, string(status))
		if err != nil {
			return applied, eris.Wrap(err, "review: pull decisions")
		}
		for _, page := range pages {
			id := notion.PlainText(page, PropAlertID)
			if id == "" {
				continue
			}
			if _, err := updater.UpdateAlertStatus(ctx, id, status); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					q.log.Warn("review: decision for unknown alert", zap.String("alert_id", id))
					continue
				}
				return applied, eris.Wrapf(err, "review: apply decision for %s", id)
			}
			applied++
		}
	}
	return applied, nil
}
