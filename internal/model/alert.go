package model

import (
	"strings"
	"time"
)

// Confidence is a discrete confidence tier.
type Confidence string

const (
	ConfidenceConfirmed Confidence = "confirmed"
	ConfidenceHigh      Confidence = "high"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceLow       Confidence = "low"
)

var confidenceRank = map[Confidence]int{
	ConfidenceLow:       1,
	ConfidenceMedium:    2,
	ConfidenceHigh:      3,
	ConfidenceConfirmed: 4,
}

// Rank orders tiers; unknown tiers rank 0.
func (c Confidence) Rank() int { return confidenceRank[c] }

// AtLeast reports whether c is the same tier as min or stronger.
func (c Confidence) AtLeast(min Confidence) bool { return c.Rank() >= min.Rank() }

// ParseConfidence maps a config string to a tier, defaulting to medium.
func ParseConfidence(s string) Confidence {
	c := Confidence(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := confidenceRank[c]; ok {
		return c
	}
	return ConfidenceMedium
}

// AlertStatus is the human review state of an alert.
type AlertStatus string

const (
	AlertPending   AlertStatus = "pending"
	AlertReviewing AlertStatus = "reviewing"
	AlertConfirmed AlertStatus = "confirmed"
	AlertDismissed AlertStatus = "dismissed"
)

// Valid reports whether s is a known review state.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertPending, AlertReviewing, AlertConfirmed, AlertDismissed:
		return true
	}
	return false
}

// AlertEvidence is the supporting data shown to reviewers.
type AlertEvidence struct {
	Organization string   `json:"organization,omitempty"`
	Excerpt      string   `json:"excerpt,omitempty"`
	Location     Location `json:"location"`
	URLs         []string `json:"urls,omitempty"`
}

// Alert is a persisted claim that a candidate appears to be employed by a client.
type Alert struct {
	ID            string        `json:"id"`
	CandidateID   string        `json:"candidate_id"`
	CandidateName string        `json:"candidate_name"`
	ClientName    string        `json:"client_name"`
	Source        Source        `json:"source"`
	Confidence    Confidence    `json:"confidence"`
	Reason        string        `json:"reason"`
	Evidence      AlertEvidence `json:"evidence"`
	Status        AlertStatus   `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ClientKey is the comparison form of a client name used for alert de-duplication.
func ClientKey(clientName string) string {
	return strings.ToLower(strings.Join(strings.Fields(clientName), " "))
}

// AlertKey identifies the (candidate, client, source) triple an alert is unique on.
type AlertKey struct {
	CandidateID string
	Client      string
	Source      Source
}

// KeyFor builds the de-duplication key for a triple.
func KeyFor(candidateID, clientName string, source Source) AlertKey {
	return AlertKey{CandidateID: candidateID, Client: ClientKey(clientName), Source: source}
}

// Key returns the alert's de-duplication key.
func (a Alert) Key() AlertKey { return KeyFor(a.CandidateID, a.ClientName, a.Source) }
