package salesforce

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockClient implements Client for testing.
type mockClient struct {
	queryFn            func(ctx context.Context, soql string, out any) error
	updateCollectionFn func(ctx context.Context, sObjectName string, records []CollectionRecord) ([]CollectionResult, error)
}

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) UpdateCollection(ctx context.Context, sObjectName string, records []CollectionRecord) ([]CollectionResult, error) {
	if m.updateCollectionFn != nil {
		return m.updateCollectionFn(ctx, sObjectName, records)
	}
	results := make([]CollectionResult, len(records))
	for i, r := range records {
		results[i] = CollectionResult{ID: r.ID, Success: true}
	}
	return results, nil
}

var _ Client = (*mockClient)(nil)

func TestWithRateLimit(t *testing.T) {
	t.Run("sets limiter", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(10)).(*sfClient)
		require.NotNil(t, c.limiter)
		assert.Equal(t, rate.Limit(10), c.limiter.Limit())
		assert.Equal(t, 10, c.limiter.Burst())
	})

	t.Run("non-positive rate skips limiter", func(t *testing.T) {
		assert.Nil(t, NewClient(nil, WithRateLimit(0)).(*sfClient).limiter)
		assert.Nil(t, NewClient(nil, WithRateLimit(-5)).(*sfClient).limiter)
	})

	t.Run("fractional rate gets burst of 1", func(t *testing.T) {
		c := NewClient(nil, WithRateLimit(0.5)).(*sfClient)
		require.NotNil(t, c.limiter)
		assert.Equal(t, 1, c.limiter.Burst())
	})
}

func TestWait_CancelledContext(t *testing.T) {
	c := &sfClient{limiter: rate.NewLimiter(rate.Every(time.Hour), 0)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: rate limit")
}

func TestLogin_Validation(t *testing.T) {
	_, err := Login(Credentials{Username: "ops@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id and username are required")

	_, err = Login(Credentials{
		ClientID: "consumer-key",
		Username: "ops@example.com",
		KeyPath:  filepath.Join(t.TempDir(), "missing.pem"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: read jwt private key")
}

func TestLogin_BadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a pem"), 0o600))

	_, err := Login(Credentials{
		LoginURL: "http://127.0.0.1:1",
		ClientID: "consumer-key",
		Username: "ops@example.com",
		KeyPath:  path,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: login")
}
