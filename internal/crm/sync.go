// Package crm copies candidates and their client submissions from Salesforce
// into the monitor's store, and pushes NPIs the monitor discovered back.
package crm

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/store"
	"github.com/sells-group/placement-monitor/pkg/salesforce"
)

// Result counts what a sync did.
type Result struct {
	Submissions int `json:"submissions"`
	Candidates  int `json:"candidates"`
	Skipped     int `json:"skipped"`
	NPIsPushed  int `json:"npis_pushed"`
}

// Syncer pulls CRM records into a store.
type Syncer struct {
	sf     salesforce.Client
	store  store.Store
	object string
	push   bool
	log    *zap.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithNPIPush enables writing store-only NPIs back to the CRM contact.
func WithNPIPush(enabled bool) Option {
	return func(s *Syncer) { s.push = enabled }
}

// NewSyncer creates a Syncer reading submissions from object.
func NewSyncer(sf salesforce.Client, st store.Store, object string, opts ...Option) *Syncer {
	s := &Syncer{
		sf:     sf,
		store:  st,
		object: object,
		log:    zap.L().With(zap.String("component", "crm")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sync imports submissions modified after since (all when zero) and the
// candidates they reference. Stored NPIs and profile URLs are never erased by
// blank CRM values.
func (s *Syncer) Sync(ctx context.Context, since time.Time) (Result, error) {
	var res Result

	subs, err := salesforce.QuerySubmissions(ctx, s.sf, s.object, since)
	if err != nil {
		return res, eris.Wrap(err, "crm: load submissions")
	}

	var kept []salesforce.Submission
	ids := make(map[string]bool)
	for _, sub := range subs {
		if sub.CandidateID == "" || sub.Client == nil || strings.TrimSpace(sub.Client.Name) == "" {
			res.Skipped++
			continue
		}
		kept = append(kept, sub)
		ids[sub.CandidateID] = true
	}
	if len(kept) == 0 {
		s.log.Info("crm: nothing to sync", zap.Int("skipped", res.Skipped))
		return res, nil
	}

	contactIDs := make([]string, 0, len(ids))
	for id := range ids {
		contactIDs = append(contactIDs, id)
	}
	sort.Strings(contactIDs)

	contacts, err := salesforce.QueryContacts(ctx, s.sf, contactIDs)
	if err != nil {
		return res, eris.Wrap(err, "crm: load contacts")
	}

	existing, err := s.store.ListCandidates(ctx)
	if err != nil {
		return res, eris.Wrap(err, "crm: list stored candidates")
	}
	stored := make(map[string]model.Candidate, len(existing))
	for _, c := range existing {
		stored[c.ID] = c
	}

	var pushes []salesforce.CollectionRecord
	known := make(map[string]bool, len(contacts))
	for _, contact := range contacts {
		c := mergeCandidate(stored[contact.ID], contact)
		if err := s.store.UpsertCandidate(ctx, c); err != nil {
			return res, eris.Wrapf(err, "crm: upsert candidate %s", contact.ID)
		}
		known[contact.ID] = true
		res.Candidates++

		if s.push && strings.TrimSpace(contact.NPI) == "" && c.NPI != "" {
			pushes = append(pushes, salesforce.CollectionRecord{
				ID:     contact.ID,
				Fields: map[string]any{salesforce.FieldNPI: c.NPI},
			})
		}
	}

	for _, sub := range kept {
		if !known[sub.CandidateID] {
			s.log.Warn("crm: submission references unknown contact",
				zap.String("submission", sub.ID), zap.String("contact", sub.CandidateID))
			res.Skipped++
			continue
		}
		if err := s.store.UpsertSubmission(ctx, toSubmission(sub)); err != nil {
			return res, eris.Wrapf(err, "crm: upsert submission %s", sub.ID)
		}
		res.Submissions++
	}

	if len(pushes) > 0 {
		results, err := salesforce.BulkUpdate(ctx, s.sf, salesforce.ContactObject, pushes)
		if err != nil {
			s.log.Error("crm: push npis", zap.Error(err))
		}
		for _, r := range results {
			if r.Success {
				res.NPIsPushed++
				continue
			}
			s.log.Warn("crm: npi push rejected", zap.String("contact", r.ID), zap.Strings("errors", r.Errors))
		}
	}

	s.log.Info("crm: sync complete",
		zap.Int("submissions", res.Submissions),
		zap.Int("candidates", res.Candidates),
		zap.Int("skipped", res.Skipped),
		zap.Int("npis_pushed", res.NPIsPushed),
	)
	return res, nil
}

func mergeCandidate(prev model.Candidate, contact salesforce.Contact) model.Candidate {
	c := prev
	c.ID = contact.ID
	c.SalesforceID = contact.ID
	if name := strings.TrimSpace(contact.Name); name != "" {
		c.Name = name
	}
	if npi := strings.TrimSpace(contact.NPI); npi != "" {
		c.NPI = npi
	}
	if u := strings.TrimSpace(contact.LinkedIn); u != "" && !containsFold(c.ProfileURLs, u) {
		c.ProfileURLs = append(append([]string(nil), c.ProfileURLs...), u)
	}
	c.UpdatedAt = salesforce.ParseDate(contact.LastModifiedDate)
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	return c
}

func toSubmission(sub salesforce.Submission) model.Submission {
	return model.Submission{
		ID:            sub.ID,
		CandidateID:   sub.CandidateID,
		ClientName:    strings.TrimSpace(sub.Client.Name),
		ClientWebsite: strings.TrimSpace(sub.Client.Website),
		JobTitle:      sub.JobTitle,
		PipelineStage: sub.Stage,
		SubmittedDate: salesforce.ParseDate(sub.SubmittedDate),
		SalesforceID:  sub.ID,
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
