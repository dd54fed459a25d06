package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceOrdering(t *testing.T) {
	t.Parallel()

	assert.True(t, ConfidenceConfirmed.AtLeast(ConfidenceHigh))
	assert.True(t, ConfidenceHigh.AtLeast(ConfidenceMedium))
	assert.True(t, ConfidenceMedium.AtLeast(ConfidenceMedium))
	assert.False(t, ConfidenceLow.AtLeast(ConfidenceMedium))
	assert.False(t, Confidence("bogus").AtLeast(ConfidenceLow))
}

func TestParseConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Confidence
	}{
		{"high", ConfidenceHigh},
		{" LOW ", ConfidenceLow},
		{"", ConfidenceMedium},
		{"nonsense", ConfidenceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseConfidence(tt.in))
		})
	}
}

func TestAlertKeyIgnoresClientCaseAndSpacing(t *testing.T) {
	t.Parallel()

	a := Alert{CandidateID: "c1", ClientName: "  Acme  Eye Care ", Source: SourceWebSearch}
	assert.Equal(t, KeyFor("c1", "acme eye care", SourceWebSearch), a.Key())
	assert.NotEqual(t, KeyFor("c1", "acme eye care", SourceNetwork), a.Key())
}

func TestLocationString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Rockford, IL", Location{City: "Rockford", State: "IL"}.String())
	assert.Equal(t, "IL", Location{State: "IL"}.String())
	assert.True(t, Location{}.IsZero())
}

func TestMentionKindPersonValidated(t *testing.T) {
	t.Parallel()

	assert.True(t, KindProfile.PersonValidated())
	assert.True(t, KindRegistry.PersonValidated())
	assert.False(t, KindSearchResult.PersonValidated())
	assert.False(t, KindPage.PersonValidated())
}

func TestAlertStatusValid(t *testing.T) {
	t.Parallel()

	assert.True(t, AlertDismissed.Valid())
	assert.False(t, AlertStatus("archived").Valid())
}
