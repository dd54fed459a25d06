package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/placement-monitor/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock pools satisfy it too.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection; the monitor
// issues them once per (candidate, client, source) triple.
var preparedStatements = map[string]string{
	"find_alert":   `SELECT ` + pgAlertColumns + ` FROM alerts WHERE candidate_id = $1 AND client_key = $2 AND source = $3`,
	"insert_alert": pgInsertAlert,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS candidates (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	npi           TEXT NOT NULL DEFAULT '',
	profile_urls  JSONB NOT NULL DEFAULT '[]',
	salesforce_id TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	candidate_id   TEXT NOT NULL,
	client_name    TEXT NOT NULL,
	client_website TEXT NOT NULL DEFAULT '',
	job_title      TEXT NOT NULL DEFAULT '',
	pipeline_stage TEXT NOT NULL DEFAULT '',
	submitted_date TIMESTAMPTZ NOT NULL,
	salesforce_id  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alerts (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	candidate_id   TEXT NOT NULL,
	candidate_name TEXT NOT NULL,
	client_name    TEXT NOT NULL,
	client_key     TEXT NOT NULL,
	source         TEXT NOT NULL,
	confidence     TEXT NOT NULL,
	reason         TEXT NOT NULL,
	evidence       JSONB NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (candidate_id, client_key, source)
);

CREATE TABLE IF NOT EXISTS relationships (
	parent     TEXT NOT NULL,
	alias      TEXT NOT NULL,
	parent_key TEXT NOT NULL,
	alias_key  TEXT NOT NULL,
	origin     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (parent_key, alias_key)
);

CREATE INDEX IF NOT EXISTS idx_submissions_candidate ON submissions(candidate_id);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
CREATE INDEX IF NOT EXISTS idx_alerts_candidate ON alerts(candidate_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, npi, profile_urls, salesforce_id, updated_at FROM candidates ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var urls []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.NPI, &urls, &c.SalesforceID, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		if len(urls) > 0 {
			if err := json.Unmarshal(urls, &c.ProfileURLs); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal profile urls")
			}
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) ListSubmissionsFor(ctx context.Context, candidateID string) ([]model.Submission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, candidate_id, client_name, client_website, job_title, pipeline_stage, submitted_date, salesforce_id
		 FROM submissions WHERE candidate_id = $1 ORDER BY submitted_date`,
		candidateID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list submissions for %s", candidateID)
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.CandidateID, &sub.ClientName, &sub.ClientWebsite,
			&sub.JobTitle, &sub.PipelineStage, &sub.SubmittedDate, &sub.SalesforceID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func (s *PostgresStore) UpsertCandidate(ctx context.Context, c model.Candidate) error {
	urls, err := json.Marshal(nonNil(c.ProfileURLs))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile urls")
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO candidates (id, name, npi, profile_urls, salesforce_id, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, npi = EXCLUDED.npi, profile_urls = EXCLUDED.profile_urls,
		 salesforce_id = EXCLUDED.salesforce_id, updated_at = EXCLUDED.updated_at`,
		c.ID, c.Name, c.NPI, urls, c.SalesforceID, c.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert candidate %s", c.ID)
}

func (s *PostgresStore) UpsertSubmission(ctx context.Context, sub model.Submission) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions (id, candidate_id, client_name, client_website, job_title, pipeline_stage, submitted_date, salesforce_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET candidate_id = EXCLUDED.candidate_id, client_name = EXCLUDED.client_name,
		 client_website = EXCLUDED.client_website, job_title = EXCLUDED.job_title,
		 pipeline_stage = EXCLUDED.pipeline_stage, submitted_date = EXCLUDED.submitted_date,
		 salesforce_id = EXCLUDED.salesforce_id`,
		sub.ID, sub.CandidateID, sub.ClientName, sub.ClientWebsite, sub.JobTitle, sub.PipelineStage,
		sub.SubmittedDate, sub.SalesforceID,
	)
	return eris.Wrapf(err, "postgres: upsert submission %s", sub.ID)
}

func (s *PostgresStore) UpdateCandidate(ctx context.Context, id string, u model.CandidateUpdate) error {
	query := `UPDATE candidates SET updated_at = $1`
	args := []any{time.Now().UTC()}
	if u.NPI != nil {
		args = append(args, *u.NPI)
		query += fmt.Sprintf(`, npi = $%d`, len(args))
	}
	if u.ProfileURLs != nil {
		urls, err := json.Marshal(u.ProfileURLs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal profile urls")
		}
		args = append(args, urls)
		query += fmt.Sprintf(`, profile_urls = $%d`, len(args))
	}
	args = append(args, id)
	query += fmt.Sprintf(` WHERE id = $%d`, len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update candidate %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "candidate %s", id)
	}
	return nil
}

const pgAlertColumns = `id, candidate_id, candidate_name, client_name, source, confidence, reason, evidence, status, created_at, updated_at`

const pgInsertAlert = `INSERT INTO alerts (id, candidate_id, candidate_name, client_name, client_key, source, confidence, reason, evidence, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (candidate_id, client_key, source) DO NOTHING`

func (s *PostgresStore) AppendAlert(ctx context.Context, a model.Alert) (model.Alert, bool, error) {
	a = prepareAlert(a, uuid.New().String(), time.Now().UTC())
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return model.Alert{}, false, eris.Wrap(err, "postgres: marshal evidence")
	}

	tag, err := s.pool.Exec(ctx, pgInsertAlert,
		a.ID, a.CandidateID, a.CandidateName, a.ClientName, model.ClientKey(a.ClientName), string(a.Source),
		string(a.Confidence), a.Reason, evidence, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return model.Alert{}, false, eris.Wrap(err, "postgres: insert alert")
	}
	if tag.RowsAffected() == 1 {
		return a, true, nil
	}

	existing, err := s.FindAlert(ctx, a.CandidateID, a.ClientName, a.Source)
	if err != nil {
		return model.Alert{}, false, err
	}
	if existing == nil {
		return model.Alert{}, false, eris.New("postgres: alert conflict without existing row")
	}
	return *existing, false, nil
}

func (s *PostgresStore) FindAlert(ctx context.Context, candidateID, clientName string, source model.Source) (*model.Alert, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAlertColumns+` FROM alerts WHERE candidate_id = $1 AND client_key = $2 AND source = $3`,
		candidateID, model.ClientKey(clientName), string(source),
	)
	a, err := scanPgAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find alert")
	}
	return a, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT ` + pgAlertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	argN := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argN)
		args = append(args, string(filter.Status))
		argN++
	}
	if filter.CandidateID != "" {
		query += fmt.Sprintf(` AND candidate_id = $%d`, argN)
		args = append(args, filter.CandidateID)
		argN++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argN)
	args = append(args, limit)
	argN++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		a, err := scanPgAlert(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list alerts iterate")
}

func (s *PostgresStore) UpdateAlertStatus(ctx context.Context, id string, status model.AlertStatus) (*model.Alert, error) {
	if err := validateStatus(status); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE alerts SET status = $1, updated_at = $2 WHERE id = $3 RETURNING `+pgAlertColumns,
		string(status), time.Now().UTC(), id,
	)
	a, err := scanPgAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "alert %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update alert status %s", id)
	}
	return a, nil
}

func (s *PostgresStore) ListRelationships(ctx context.Context) ([]model.RelatednessEdge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT parent, alias, origin, created_at FROM relationships ORDER BY created_at, parent_key, alias_key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list relationships")
	}
	defer rows.Close()

	var out []model.RelatednessEdge
	for rows.Next() {
		var e model.RelatednessEdge
		var origin string
		if err := rows.Scan(&e.Parent, &e.Alias, &origin, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan relationship")
		}
		e.Origin = model.EdgeOrigin(origin)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list relationships iterate")
}

func (s *PostgresStore) AddRelationship(ctx context.Context, e model.RelatednessEdge) error {
	pk, ak := edgeKey(e)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO relationships (parent, alias, parent_key, alias_key, origin, created_at)
		 SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::timestamptz
		 WHERE NOT EXISTS (SELECT 1 FROM relationships WHERE parent_key = $4::text AND alias_key = $3::text)
		 ON CONFLICT (parent_key, alias_key) DO NOTHING`,
		e.Parent, e.Alias, pk, ak, string(e.Origin), e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: add relationship")
}

func scanPgAlert(row pgx.Row) (*model.Alert, error) {
	var a model.Alert
	var source, confidence, status string
	var evidence []byte
	err := row.Scan(&a.ID, &a.CandidateID, &a.CandidateName, &a.ClientName, &source, &confidence,
		&a.Reason, &evidence, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Source = model.Source(source)
	a.Confidence = model.Confidence(confidence)
	a.Status = model.AlertStatus(status)
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
			return nil, eris.Wrap(err, "unmarshal evidence")
		}
	}
	return &a, nil
}
