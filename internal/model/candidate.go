package model

import "time"

// Candidate is a person being tracked for placement.
type Candidate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	NPI          string    `json:"npi,omitempty"`
	ProfileURLs  []string  `json:"profile_urls,omitempty"`
	SalesforceID string    `json:"salesforce_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CandidateUpdate carries the candidate fields the monitor may write back.
// Nil fields are left untouched.
type CandidateUpdate struct {
	NPI         *string  `json:"npi,omitempty"`
	ProfileURLs []string `json:"profile_urls,omitempty"`
}

// Submission records that a candidate was put forward to a client organization.
type Submission struct {
	ID            string    `json:"id"`
	CandidateID   string    `json:"candidate_id"`
	ClientName    string    `json:"client_name"`
	ClientWebsite string    `json:"client_website,omitempty"`
	JobTitle      string    `json:"job_title,omitempty"`
	PipelineStage string    `json:"pipeline_stage,omitempty"`
	SubmittedDate time.Time `json:"submitted_date"`
	SalesforceID  string    `json:"salesforce_id,omitempty"`
}
