package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

var _ Client = (*MockClient)(nil)

func TestNewClient(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(10))
	require.NotNil(t, c)

	ac, ok := c.(*apiClient)
	require.True(t, ok)
	assert.NotNil(t, ac.limiter)
	assert.InDelta(t, 10, float64(ac.limiter.Limit()), 0.001)
}

func TestWithRateLimit_Disables(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(0)).(*apiClient)
	assert.Nil(t, c.limiter)
	assert.NoError(t, c.throttle(context.Background()))
}

func TestThrottle_CancelledContext(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(0.001)).(*apiClient)
	// The first token is free; the second would wait far past the deadline.
	require.NoError(t, c.throttle(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.throttle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: rate limit")
}
