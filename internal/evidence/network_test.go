package evidence

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
	"github.com/sells-group/placement-monitor/pkg/netrows"
	"github.com/sells-group/placement-monitor/pkg/serpapi"
)

const janeProfile = "https://www.linkedin.com/in/jane-doe-od-4a1b2c3"

func TestSlugMatches(t *testing.T) {
	tests := []struct {
		name   string
		person string
		url    string
		want   bool
	}{
		{"slug with id suffix", "Jane Doe", "https://www.linkedin.com/in/jane-doe-4a1b2c3", true},
		{"joined slug", "Jane Doe", "https://linkedin.com/in/janedoe", true},
		{"different given name", "Jane Doe", "https://www.linkedin.com/in/john-doe", false},
		{"different family name", "Jane Doe", "https://www.linkedin.com/in/jane-smith", false},
		{"hyphen segment", "Jane Doe-Smith", "https://www.linkedin.com/in/jane-smith-od", true},
		{"former family name", "Jane Doe (née Smith)", "https://www.linkedin.com/in/jane-smith-12", true},
		{"not a profile", "Jane Doe", "https://www.linkedin.com/company/jane-doe", false},
		{"names inside longer names", "Ann Lee", "https://www.linkedin.com/in/joanne-leeds-1a2b3c", false},
		{"given name inside longer token", "Ann Lee", "https://www.linkedin.com/in/annie-lee", false},
		{"joined slug inside longer name", "Ann Lee", "https://www.linkedin.com/in/joanneleeds", false},
		{"family name first", "Ann Lee", "https://www.linkedin.com/in/lee-ann-77", true},
		{"hyphenated family name", "Jane Doe-Smith", "https://www.linkedin.com/in/jane-doe-smith", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SlugMatches(tt.url, normalize.ParsePerson(tt.person)))
		})
	}
}

func TestProfileSlug(t *testing.T) {
	assert.Equal(t, "jane-doe-od", profileSlug("https://www.linkedin.com/in/jane-doe-od-88b1a2/"))
	assert.Equal(t, "jane-doe", profileSlug("https://www.linkedin.com/in/jane-doe"))
	assert.Equal(t, "", profileSlug("https://www.linkedin.com/company/acme"))
}

func TestNetwork_Rank(t *testing.T) {
	n := NewNetwork(&mockSearch{}, nil)
	person := normalize.ParsePerson("Jane Doe")

	c, ok := n.Rank(serpapi.Result{
		Title:   "Jane Doe - Optometrist - Acme Eye Care | LinkedIn",
		Link:    janeProfile,
		Snippet: "Rockford, IL · Optometrist at Acme Eye Care",
	}, person)
	require.True(t, ok)
	assert.Equal(t, weightSlug+weightTitleName+weightKeyword+weightUSGeo, c.Score)

	c, ok = n.Rank(serpapi.Result{
		Title:   "Jane Doe | LinkedIn",
		Link:    "https://uk.linkedin.com/in/jane-doe-77",
		Snippet: "Optician in London, England",
	}, person)
	require.True(t, ok)
	assert.Equal(t, weightSlug+weightTitleName+weightKeyword+weightForeign, c.Score)
	assert.Contains(t, c.Reasons, "foreign locale")

	_, ok = n.Rank(serpapi.Result{Title: "John Doe", Link: "https://www.linkedin.com/in/john-doe"}, person)
	assert.False(t, ok)
}

func TestNetwork_UsesProfileAPI(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, `site:linkedin.com/in "Jane Doe"`).Return(results(
		serpapi.Result{Title: "John Doe - Optometrist | LinkedIn", Link: "https://www.linkedin.com/in/john-doe", Snippet: "Optometrist in Rockford, IL"},
		serpapi.Result{Title: "Jane Doe - Optometrist - Acme Eye Care | LinkedIn", Link: janeProfile, Snippet: "Rockford, IL · Optometrist"},
	), nil)

	profiles := &mockProfiles{}
	profiles.On("Profile", mock.Anything, janeProfile).Return(&netrows.Profile{
		FullName: "Jane Doe",
		Location: "Rockford, Illinois, United States",
		Positions: []netrows.Position{
			{Company: "Acme Eye Care", Title: "Optometrist", Location: "Rockford, Illinois, United States", Current: true},
			{Company: "Bayside Vision", Title: "Associate"},
		},
	}, nil)

	r := NewNetwork(search, nil, WithProfiles(profiles)).Find(context.Background(), janeQuery(""))

	require.Equal(t, StatusFound, r.Status)
	assert.Equal(t, janeProfile, r.ProfileURL)
	require.Len(t, r.Mentions, 2)
	assert.Equal(t, "Acme Eye Care", r.Mentions[0].Organization)
	assert.True(t, r.Mentions[0].Current)
	assert.Equal(t, model.KindProfile, r.Mentions[0].Kind)
	assert.Equal(t, model.Location{City: "Rockford", State: "IL"}, r.Mentions[0].Location)
	assert.Equal(t, model.Location{City: "Rockford", State: "IL"}, r.Mentions[1].Location)
	profiles.AssertExpectations(t)
}

func TestNetwork_EmptyHistoryFallsBackToSnippet(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).Return(results(
		serpapi.Result{
			Title:   "Jane Doe - Optometrist | LinkedIn",
			Link:    janeProfile,
			Snippet: "Current: Optometrist at Acme Eye Care · Location: Rockford, IL",
		},
	), nil)
	profiles := &mockProfiles{}
	profiles.On("Profile", mock.Anything, janeProfile).Return(&netrows.Profile{FullName: "Jane Doe"}, netrows.ErrEmptyHistory)

	r := NewNetwork(search, nil, WithProfiles(profiles)).Find(context.Background(), janeQuery(""))

	require.Equal(t, StatusFound, r.Status)
	require.Len(t, r.Mentions, 1)
	assert.Equal(t, "Acme Eye Care", r.Mentions[0].Organization)
	assert.Equal(t, model.Location{City: "Rockford", State: "IL"}, r.Mentions[0].Location)
	assert.Contains(t, r.Note, "empty history")
	assert.Contains(t, r.Note, "current_label")
}

func TestNetwork_ProfileAPIFailureFallsBack(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).Return(results(
		serpapi.Result{Title: "Jane Doe - Optometrist - Acme Eye Care | LinkedIn", Link: janeProfile, Snippet: "Illinois"},
	), nil)
	profiles := &mockProfiles{}
	profiles.On("Profile", mock.Anything, mock.Anything).Return(nil, eris.New("netrows: unexpected status 500"))

	r := NewNetwork(search, nil, WithProfiles(profiles)).Find(context.Background(), janeQuery(""))

	require.Equal(t, StatusFound, r.Status)
	assert.Equal(t, "Acme Eye Care", r.Mentions[0].Organization)
	assert.Contains(t, r.Note, "title_segments")
}

func TestNetwork_BelowFloor(t *testing.T) {
	search := &mockSearch{}
	search.On("Search", mock.Anything, mock.Anything).Return(results(
		serpapi.Result{Title: "Profile | LinkedIn", Link: "https://www.linkedin.com/in/jane-doe-55", Snippet: "Member"},
	), nil)

	r := NewNetwork(search, nil).Find(context.Background(), janeQuery(""))

	assert.Equal(t, StatusNotFound, r.Status)
	assert.Equal(t, "best profile scored 40, floor 50", r.Note)
	assert.Empty(t, r.ProfileURL)
}

func TestNetwork_ProfileOnRecordSkipsSearch(t *testing.T) {
	search := &mockSearch{}
	q := janeQuery("")
	q.Candidate.ProfileURLs = []string{"https://www.linkedin.com/in/jane-doe-123abc"}

	r := NewNetwork(search, nil).Find(context.Background(), q)

	assert.Equal(t, "https://www.linkedin.com/in/jane-doe-123abc", r.ProfileURL)
	search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestNetwork_NotConfigured(t *testing.T) {
	n := NewNetwork(nil, nil)
	assert.Equal(t, StatusNotConfigured, n.Find(context.Background(), janeQuery("")).Status)
	assert.True(t, n.CandidateScoped())
}
