package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placement-monitor/internal/model"
)

func TestSQLite_MigrateIsRepeatable(t *testing.T) {
	st := newTestSQLite(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	st, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	_, _, err = st.AppendAlert(ctx, sampleAlert("c1", "Acme Eye Care", model.SourceRegistry))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = NewSQLite(path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	got, err := st.FindAlert(ctx, "c1", "Acme Eye Care", model.SourceRegistry)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"https://acme.example/team"}, got.Evidence.URLs)
}

func TestSQLite_EmptyProfileURLs(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertCandidate(ctx, model.Candidate{ID: "c1", Name: "Jane Doe"}))
	require.NoError(t, st.UpdateCandidate(ctx, "c1", model.CandidateUpdate{ProfileURLs: []string{"https://www.linkedin.com/in/jdoe"}}))

	cands, err := st.ListCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, []string{"https://www.linkedin.com/in/jdoe"}, cands[0].ProfileURLs)
}
