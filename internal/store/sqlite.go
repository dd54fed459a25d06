package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/placement-monitor/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	npi           TEXT NOT NULL DEFAULT '',
	profile_urls  TEXT NOT NULL DEFAULT '[]',
	salesforce_id TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	candidate_id   TEXT NOT NULL,
	client_name    TEXT NOT NULL,
	client_website TEXT NOT NULL DEFAULT '',
	job_title      TEXT NOT NULL DEFAULT '',
	pipeline_stage TEXT NOT NULL DEFAULT '',
	submitted_date DATETIME NOT NULL,
	salesforce_id  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alerts (
	id             TEXT PRIMARY KEY,
	candidate_id   TEXT NOT NULL,
	candidate_name TEXT NOT NULL,
	client_name    TEXT NOT NULL,
	client_key     TEXT NOT NULL,
	source         TEXT NOT NULL,
	confidence     TEXT NOT NULL,
	reason         TEXT NOT NULL,
	evidence       TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	UNIQUE (candidate_id, client_key, source)
);

CREATE TABLE IF NOT EXISTS relationships (
	parent     TEXT NOT NULL,
	alias      TEXT NOT NULL,
	parent_key TEXT NOT NULL,
	alias_key  TEXT NOT NULL,
	origin     TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (parent_key, alias_key)
);

CREATE INDEX IF NOT EXISTS idx_submissions_candidate ON submissions(candidate_id);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE INDEX IF NOT EXISTS idx_alerts_candidate ON alerts(candidate_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, npi, profile_urls, salesforce_id, updated_at FROM candidates ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var urls string
		if err := rows.Scan(&c.ID, &c.Name, &c.NPI, &urls, &c.SalesforceID, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		if err := json.Unmarshal([]byte(urls), &c.ProfileURLs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal profile urls")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) ListSubmissionsFor(ctx context.Context, candidateID string) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, candidate_id, client_name, client_website, job_title, pipeline_stage, submitted_date, salesforce_id
		 FROM submissions WHERE candidate_id = ? ORDER BY submitted_date`,
		candidateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list submissions for %s", candidateID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.CandidateID, &sub.ClientName, &sub.ClientWebsite,
			&sub.JobTitle, &sub.PipelineStage, &sub.SubmittedDate, &sub.SalesforceID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

func (s *SQLiteStore) UpsertCandidate(ctx context.Context, c model.Candidate) error {
	urls, err := json.Marshal(nonNil(c.ProfileURLs))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile urls")
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO candidates (id, name, npi, profile_urls, salesforce_id, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, npi = excluded.npi, profile_urls = excluded.profile_urls,
		 salesforce_id = excluded.salesforce_id, updated_at = excluded.updated_at`,
		c.ID, c.Name, c.NPI, string(urls), c.SalesforceID, c.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert candidate %s", c.ID)
}

func (s *SQLiteStore) UpsertSubmission(ctx context.Context, sub model.Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, candidate_id, client_name, client_website, job_title, pipeline_stage, submitted_date, salesforce_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET candidate_id = excluded.candidate_id, client_name = excluded.client_name,
		 client_website = excluded.client_website, job_title = excluded.job_title,
		 pipeline_stage = excluded.pipeline_stage, submitted_date = excluded.submitted_date,
		 salesforce_id = excluded.salesforce_id`,
		sub.ID, sub.CandidateID, sub.ClientName, sub.ClientWebsite, sub.JobTitle, sub.PipelineStage,
		sub.SubmittedDate, sub.SalesforceID,
	)
	return eris.Wrapf(err, "sqlite: upsert submission %s", sub.ID)
}

func (s *SQLiteStore) UpdateCandidate(ctx context.Context, id string, u model.CandidateUpdate) error {
	query := `UPDATE candidates SET updated_at = ?`
	args := []any{time.Now().UTC()}
	if u.NPI != nil {
		query += `, npi = ?`
		args = append(args, *u.NPI)
	}
	if u.ProfileURLs != nil {
		urls, err := json.Marshal(u.ProfileURLs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal profile urls")
		}
		query += `, profile_urls = ?`
		args = append(args, string(urls))
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update candidate %s", id)
	}
	return checkRowsAffected(res, "candidate", id)
}

const sqliteAlertColumns = `id, candidate_id, candidate_name, client_name, source, confidence, reason, evidence, status, created_at, updated_at`

func (s *SQLiteStore) AppendAlert(ctx context.Context, a model.Alert) (model.Alert, bool, error) {
	a = prepareAlert(a, uuid.New().String(), time.Now().UTC())
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return model.Alert{}, false, eris.Wrap(err, "sqlite: marshal evidence")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, candidate_id, candidate_name, client_name, client_key, source, confidence, reason, evidence, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(candidate_id, client_key, source) DO NOTHING`,
		a.ID, a.CandidateID, a.CandidateName, a.ClientName, model.ClientKey(a.ClientName), string(a.Source),
		string(a.Confidence), a.Reason, string(evidence), string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return model.Alert{}, false, eris.Wrap(err, "sqlite: insert alert")
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Alert{}, false, eris.Wrap(err, "sqlite: rows affected")
	} else if n == 1 {
		return a, true, nil
	}

	existing, err := s.FindAlert(ctx, a.CandidateID, a.ClientName, a.Source)
	if err != nil {
		return model.Alert{}, false, err
	}
	if existing == nil {
		return model.Alert{}, false, eris.New("sqlite: alert conflict without existing row")
	}
	return *existing, false, nil
}

func (s *SQLiteStore) FindAlert(ctx context.Context, candidateID, clientName string, source model.Source) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAlertColumns+` FROM alerts WHERE candidate_id = ? AND client_key = ? AND source = ?`,
		candidateID, model.ClientKey(clientName), string(source),
	)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find alert")
	}
	return a, nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT ` + sqliteAlertColumns + ` FROM alerts WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CandidateID != "" {
		query += ` AND candidate_id = ?`
		args = append(args, filter.CandidateID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

func (s *SQLiteStore) UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus) (*model.Alert, error) {
	if err := validateStatus(status); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update alert status %s", id)
	}
	if err := checkRowsAffected(res, "alert", id); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteAlertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	return a, eris.Wrapf(err, "sqlite: get alert %s", id)
}

func (s *SQLiteStore) ListRelationships(ctx context.Context) ([]model.RelatednessEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parent, alias, origin, created_at FROM relationships ORDER BY created_at, parent_key, alias_key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list relationships")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RelatednessEdge
	for rows.Next() {
		var e model.RelatednessEdge
		var origin string
		if err := rows.Scan(&e.Parent, &e.Alias, &origin, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan relationship")
		}
		e.Origin = model.EdgeOrigin(origin)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list relationships iterate")
}

func (s *SQLiteStore) AddRelationship(ctx context.Context, e model.RelatednessEdge) error {
	pk, ak := edgeKey(e)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	// The reverse direction counts as the same edge.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relationships (parent, alias, parent_key, alias_key, origin, created_at)
		 SELECT ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM relationships WHERE parent_key = ? AND alias_key = ?)
		 ON CONFLICT(parent_key, alias_key) DO NOTHING`,
		e.Parent, e.Alias, pk, ak, string(e.Origin), e.CreatedAt, ak, pk,
	)
	return eris.Wrap(err, "sqlite: add relationship")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAlert(row scannable) (*model.Alert, error) {
	var a model.Alert
	var source, confidence, status, evidence string
	err := row.Scan(&a.ID, &a.CandidateID, &a.CandidateName, &a.ClientName, &source, &confidence,
		&a.Reason, &evidence, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Source = model.Source(source)
	a.Confidence = model.Confidence(confidence)
	a.Status = model.AlertStatus(status)
	if err := json.Unmarshal([]byte(evidence), &a.Evidence); err != nil {
		return nil, eris.Wrap(err, "unmarshal evidence")
	}
	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
