package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/placement-monitor/internal/model"
)

const documentVersion = 1

// document is the on-disk shape of a FileStore.
type document struct {
	Version       int                     `json:"version"`
	Candidates    []model.Candidate       `json:"candidates"`
	Submissions   []model.Submission      `json:"submissions"`
	Alerts        []model.Alert           `json:"alerts"`
	Relationships []model.RelatednessEdge `json:"relationships"`
}

// FileStore keeps everything in one JSON document and rewrites it on every
// mutation through a temp file and rename.
type FileStore struct {
	path string
	now  func() time.Time

	mu  sync.Mutex
	doc document
}

// NewFile opens (or prepares to create) the document at path.
func NewFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, now: time.Now, doc: document{Version: documentVersion}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, eris.Wrapf(err, "file: read %s", path)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, eris.Wrapf(err, "file: decode %s", path)
	}
	return s, nil
}

// Migrate writes the document if it does not exist yet.
func (s *FileStore) Migrate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	return s.save()
}

func (s *FileStore) Close() error { return nil }

// save must be called with mu held.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "file: encode")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "file: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return eris.Wrap(err, "file: create temp")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "file: write temp")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "file: sync temp")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "file: close temp")
	}
	return eris.Wrap(os.Rename(tmp.Name(), s.path), "file: rename")
}

func (s *FileStore) ListCandidates(_ context.Context) ([]model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Candidate(nil), s.doc.Candidates...), nil
}

func (s *FileStore) ListSubmissionsFor(_ context.Context, candidateID string) ([]model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Submission
	for _, sub := range s.doc.Submissions {
		if sub.CandidateID == candidateID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *FileStore) UpsertCandidate(_ context.Context, c model.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now().UTC()
	}
	for i := range s.doc.Candidates {
		if s.doc.Candidates[i].ID == c.ID {
			s.doc.Candidates[i] = c
			return s.save()
		}
	}
	s.doc.Candidates = append(s.doc.Candidates, c)
	return s.save()
}

func (s *FileStore) UpsertSubmission(_ context.Context, sub model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Submissions {
		if s.doc.Submissions[i].ID == sub.ID {
			s.doc.Submissions[i] = sub
			return s.save()
		}
	}
	s.doc.Submissions = append(s.doc.Submissions, sub)
	return s.save()
}

func (s *FileStore) UpdateCandidate(_ context.Context, id string, u model.CandidateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Candidates {
		c := &s.doc.Candidates[i]
		if c.ID != id {
			continue
		}
		if u.NPI != nil {
			c.NPI = *u.NPI
		}
		if u.ProfileURLs != nil {
			c.ProfileURLs = u.ProfileURLs
		}
		c.UpdatedAt = s.now().UTC()
		return s.save()
	}
	return eris.Wrapf(ErrNotFound, "file: candidate %s", id)
}

func (s *FileStore) AppendAlert(_ context.Context, a model.Alert) (model.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := a.Key()
	for _, existing := range s.doc.Alerts {
		if existing.Key() == key {
			return existing, false, nil
		}
	}
	a = prepareAlert(a, uuid.New().String(), s.now().UTC())
	s.doc.Alerts = append(s.doc.Alerts, a)
	if err := s.save(); err != nil {
		s.doc.Alerts = s.doc.Alerts[:len(s.doc.Alerts)-1]
		return model.Alert{}, false, err
	}
	return a, true, nil
}

func (s *FileStore) FindAlert(_ context.Context, candidateID, clientName string, source model.Source) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := model.KeyFor(candidateID, clientName, source)
	for _, a := range s.doc.Alerts {
		if a.Key() == key {
			return &a, nil
		}
	}
	return nil, nil
}

func (s *FileStore) ListAlerts(_ context.Context, filter AlertFilter) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.Alert
	for _, a := range s.doc.Alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.CandidateID != "" && a.CandidateID != filter.CandidateID {
			continue
		}
		matched = append(matched, a)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *FileStore) UpdateAlertStatus(_ context.Context, id string, status model.AlertStatus) (*model.Alert, error) {
	if err := validateStatus(status); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Alerts {
		if s.doc.Alerts[i].ID != id {
			continue
		}
		s.doc.Alerts[i].Status = status
		s.doc.Alerts[i].UpdatedAt = s.now().UTC()
		if err := s.save(); err != nil {
			return nil, err
		}
		a := s.doc.Alerts[i]
		return &a, nil
	}
	return nil, eris.Wrapf(ErrNotFound, "file: alert %s", id)
}

func (s *FileStore) ListRelationships(_ context.Context) ([]model.RelatednessEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RelatednessEdge(nil), s.doc.Relationships...), nil
}

func (s *FileStore) AddRelationship(_ context.Context, e model.RelatednessEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk, ak := edgeKey(e)
	for _, existing := range s.doc.Relationships {
		ep, ea := edgeKey(existing)
		if (ep == pk && ea == ak) || (ep == ak && ea == pk) {
			return nil
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	s.doc.Relationships = append(s.doc.Relationships, e)
	return s.save()
}
