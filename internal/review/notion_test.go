package review

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/store"
	"github.com/sells-group/placement-monitor/pkg/notion"
)

type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

type mockUpdater struct {
	mock.Mock
}

func (m *mockUpdater) UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus) (*model.Alert, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Alert), args.Error(1)
}

func reviewPage(alertID string) notionapi.Page {
	id := notion.TextValue(alertID)
	return notionapi.Page{ID: notionapi.ObjectID("page-" + alertID), Properties: notionapi.Properties{PropAlertID: &id}}
}

func statusFilter(status model.AlertStatus) interface{} {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == PropReview && pf.Status != nil && pf.Status.Equals == string(status)
	})
}

func TestQueue_Notify(t *testing.T) {
	mc := new(mockNotion)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		if req.Parent.DatabaseID != "db-review" || req.Parent.Type != notionapi.ParentTypeDatabaseID {
			return false
		}
		title, ok := req.Properties[PropTitle].(notionapi.TitleProperty)
		if !ok || len(title.Title) != 1 || title.Title[0].Text.Content != "Jane Doe at Acme Eye Care" {
			return false
		}
		review, ok := req.Properties[PropReview].(notionapi.StatusProperty)
		if !ok || review.Status.Name != "pending" {
			return false
		}
		ev, ok := req.Properties[PropEvidence].(notionapi.URLProperty)
		return ok && ev.URL == "https://acme.example/team"
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	q := NewQueue(mc, "db-review")
	require.NoError(t, q.Notify(ctx, sampleAlert()))
	assert.Equal(t, "notion", q.Name())
	mc.AssertExpectations(t)
}

func TestQueue_NotifyError(t *testing.T) {
	mc := new(mockNotion)
	mc.On("CreatePage", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	err := NewQueue(mc, "db-review").Notify(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review: file alert a-1")
}

func TestAlertProperties_OptionalEvidence(t *testing.T) {
	a := sampleAlert()
	a.Evidence = model.AlertEvidence{}

	props := alertProperties(a)
	assert.NotContains(t, props, PropEvidence)
	assert.NotContains(t, props, PropOrganization)
	assert.NotContains(t, props, PropExcerpt)
	assert.NotContains(t, props, PropLocation)
	assert.Contains(t, props, PropReason)
}

func TestQueue_PullDecisions(t *testing.T) {
	mc := new(mockNotion)
	up := new(mockUpdater)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-review", statusFilter(model.AlertReviewing)).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-review", statusFilter(model.AlertConfirmed)).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{reviewPage("a-1"), reviewPage("")}}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-review", statusFilter(model.AlertDismissed)).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{reviewPage("a-2"), reviewPage("gone")}}, nil).Once()

	up.On("UpdateAlertStatus", ctx, "a-1", model.AlertConfirmed).Return(&model.Alert{ID: "a-1"}, nil).Once()
	up.On("UpdateAlertStatus", ctx, "a-2", model.AlertDismissed).Return(&model.Alert{ID: "a-2"}, nil).Once()
	up.On("UpdateAlertStatus", ctx, "gone", model.AlertDismissed).
		Return(nil, eris.Wrapf(store.ErrNotFound, "alert %s", "gone")).Once()

	n, err := NewQueue(mc, "db-review").PullDecisions(ctx, up)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	mc.AssertExpectations(t)
	up.AssertExpectations(t)
}

func TestQueue_PullDecisionsStoreError(t *testing.T) {
	mc := new(mockNotion)
	up := new(mockUpdater)

	mc.On("QueryDatabase", mock.Anything, "db-review", statusFilter(model.AlertReviewing)).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{reviewPage("a-1")}}, nil).Once()
	up.On("UpdateAlertStatus", mock.Anything, "a-1", model.AlertReviewing).Return(nil, assert.AnError).Once()

	n, err := NewQueue(mc, "db-review").PullDecisions(context.Background(), up)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "review: apply decision for a-1")
}

func TestQueue_PullDecisionsQueryError(t *testing.T) {
	mc := new(mockNotion)
	mc.On("QueryDatabase", mock.Anything, "db-review", mock.Anything).Return(nil, assert.AnError).Once()

	_, err := NewQueue(mc, "db-review").PullDecisions(context.Background(), new(mockUpdater))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review: pull decisions")
}
