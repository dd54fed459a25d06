package crm

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/store"
	"github.com/sells-group/placement-monitor/pkg/salesforce"
)

type fakeSF struct {
	submissions []salesforce.Submission
	contacts    []salesforce.Contact
	queryErr    error
	queries     []string
	updates     []salesforce.CollectionRecord
	reject      map[string]bool
}

func (f *fakeSF) Query(_ context.Context, soql string, out any) error {
	f.queries = append(f.queries, soql)
	if f.queryErr != nil {
		return f.queryErr
	}
	switch dst := out.(type) {
	case *[]salesforce.Submission:
		*dst = append(*dst, f.submissions...)
	case *[]salesforce.Contact:
		for _, c := range f.contacts {
			if strings.Contains(soql, "'"+c.ID+"'") {
				*dst = append(*dst, c)
			}
		}
	}
	return nil
}

func (f *fakeSF) UpdateCollection(_ context.Context, _ string, records []salesforce.CollectionRecord) ([]salesforce.CollectionResult, error) {
	f.updates = append(f.updates, records...)
	out := make([]salesforce.CollectionResult, len(records))
	for i, r := range records {
		out[i] = salesforce.CollectionResult{ID: r.ID, Success: !f.reject[r.ID]}
		if f.reject[r.ID] {
			out[i].Errors = []string{"FIELD_CUSTOM_VALIDATION_EXCEPTION"}
		}
	}
	return out, nil
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewFile(filepath.Join(t.TempDir(), "monitor.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func acme() *salesforce.ClientRef {
	return &salesforce.ClientRef{Name: " Acme Eye Care ", Website: "acme.example"}
}

func TestSync_ImportsSubmissionsAndCandidates(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	sf := &fakeSF{
		submissions: []salesforce.Submission{
			{ID: "s1", CandidateID: "003a", Client: acme(), JobTitle: "Optometrist", Stage: "Placed", SubmittedDate: "2026-01-05"},
			{ID: "s2", CandidateID: "003a", Client: &salesforce.ClientRef{Name: "Bright Vision"}},
			{ID: "s3", CandidateID: "", Client: acme()},
			{ID: "s4", CandidateID: "003b", Client: nil},
		},
		contacts: []salesforce.Contact{
			{ID: "003a", Name: "Jane Doe, OD", NPI: "1234567893", LinkedIn: "https://www.linkedin.com/in/janedoe"},
		},
	}

	res, err := NewSyncer(sf, st, "Submission__c").Sync(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, Result{Submissions: 2, Candidates: 1, Skipped: 2}, res)

	cands, err := st.ListCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Jane Doe, OD", cands[0].Name)
	assert.Equal(t, "1234567893", cands[0].NPI)
	assert.Equal(t, "003a", cands[0].SalesforceID)
	assert.Equal(t, []string{"https://www.linkedin.com/in/janedoe"}, cands[0].ProfileURLs)

	subs, err := st.ListSubmissionsFor(ctx, "003a")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	byID := map[string]model.Submission{}
	for _, s := range subs {
		byID[s.ID] = s
	}
	assert.Equal(t, "Acme Eye Care", byID["s1"].ClientName)
	assert.Equal(t, "acme.example", byID["s1"].ClientWebsite)
	assert.Equal(t, "Placed", byID["s1"].PipelineStage)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), byID["s1"].SubmittedDate)
}

func TestSync_KeepsStoredNPIAndPushesIt(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.UpsertCandidate(ctx, model.Candidate{
		ID:          "003a",
		Name:        "Jane Doe",
		NPI:         "1234567893",
		ProfileURLs: []string{"https://www.linkedin.com/in/janedoe"},
	}))

	sf := &fakeSF{
		submissions: []salesforce.Submission{{ID: "s1", CandidateID: "003a", Client: acme()}},
		contacts:    []salesforce.Contact{{ID: "003a", Name: "Jane Doe", LinkedIn: "https://www.LinkedIn.com/in/janedoe"}},
	}

	res, err := NewSyncer(sf, st, "Submission__c", WithNPIPush(true)).Sync(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NPIsPushed)

	cands, err := st.ListCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "1234567893", cands[0].NPI)
	assert.Len(t, cands[0].ProfileURLs, 1)

	require.Len(t, sf.updates, 1)
	assert.Equal(t, "003a", sf.updates[0].ID)
	assert.Equal(t, "1234567893", sf.updates[0].Fields[salesforce.FieldNPI])
}

func TestSync_PushDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.UpsertCandidate(ctx, model.Candidate{ID: "003a", Name: "Jane Doe", NPI: "1234567893"}))

	sf := &fakeSF{
		submissions: []salesforce.Submission{{ID: "s1", CandidateID: "003a", Client: acme()}},
		contacts:    []salesforce.Contact{{ID: "003a", Name: "Jane Doe"}},
	}

	res, err := NewSyncer(sf, st, "Submission__c").Sync(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, res.NPIsPushed)
	assert.Empty(t, sf.updates)
}

func TestSync_RejectedPushIsNotCounted(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.UpsertCandidate(ctx, model.Candidate{ID: "003a", Name: "Jane Doe", NPI: "1234567893"}))

	sf := &fakeSF{
		submissions: []salesforce.Submission{{ID: "s1", CandidateID: "003a", Client: acme()}},
		contacts:    []salesforce.Contact{{ID: "003a", Name: "Jane Doe"}},
		reject:      map[string]bool{"003a": true},
	}

	res, err := NewSyncer(sf, st, "Submission__c", WithNPIPush(true)).Sync(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, res.NPIsPushed)
	assert.Len(t, sf.updates, 1)
}

func TestSync_UnknownContactSkipped(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	sf := &fakeSF{
		submissions: []salesforce.Submission{
			{ID: "s1", CandidateID: "003a", Client: acme()},
			{ID: "s2", CandidateID: "003z", Client: acme()},
		},
		contacts: []salesforce.Contact{{ID: "003a", Name: "Jane Doe"}},
	}

	res, err := NewSyncer(sf, st, "Submission__c").Sync(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Submissions)
	assert.Equal(t, 1, res.Skipped)
}

func TestSync_NothingToDo(t *testing.T) {
	sf := &fakeSF{}
	res, err := NewSyncer(sf, newStore(t), "Submission__c").Sync(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Len(t, sf.queries, 1)
}

func TestSync_QueryError(t *testing.T) {
	sf := &fakeSF{queryErr: errors.New("INVALID_SESSION_ID")}
	_, err := NewSyncer(sf, newStore(t), "Submission__c").Sync(context.Background(), time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crm: load submissions")
}

func TestSync_Incremental(t *testing.T) {
	sf := &fakeSF{}
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := NewSyncer(sf, newStore(t), "Submission__c").Sync(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, sf.queries, 1)
	assert.Contains(t, sf.queries[0], "LastModifiedDate > 2026-02-01T00:00:00Z")
}
