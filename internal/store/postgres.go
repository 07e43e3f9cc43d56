package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/onboard/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore. pgxmock's
// PgxPoolIface satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
	nowFunc func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_company":  `INSERT INTO companies (id, name, linkedin_url, website_url, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"insert_record":   `INSERT INTO onboarding_records (id, company_id, created_by, initial_company_name, initial_linkedin_url, initial_website_url, initial_resources, current_step, completed_steps, partial_data, research_status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9::jsonb, $10::jsonb, $11, $12, $13)`,
	"latest_by_user":  `SELECT ` + recordColumns + ` FROM onboarding_records WHERE created_by = $1 ORDER BY created_at DESC LIMIT 1`,
	"get_by_job_id":   `SELECT ` + recordColumns + ` FROM onboarding_records WHERE job_id = $1 ORDER BY created_at DESC LIMIT 1`,
	"complete_latest": `UPDATE onboarding_records SET final_data = $1::jsonb, is_completed = TRUE, completed_at = $2, current_step = 'completed', updated_at = $2 WHERE id = (SELECT id FROM onboarding_records WHERE created_by = $3 ORDER BY created_at DESC LIMIT 1)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
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
	return &PostgresStore{pool: pool, closeFn: pool.Close, nowFunc: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name         TEXT NOT NULL,
	linkedin_url TEXT NOT NULL DEFAULT '',
	website_url  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS onboarding_records (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_id           TEXT NOT NULL REFERENCES companies(id),
	created_by           TEXT NOT NULL,
	initial_company_name TEXT NOT NULL,
	initial_linkedin_url TEXT NOT NULL DEFAULT '',
	initial_website_url  TEXT NOT NULL DEFAULT '',
	initial_resources    JSONB NOT NULL DEFAULT '[]'::jsonb,
	job_id               TEXT,
	current_step         TEXT NOT NULL DEFAULT 'initial',
	completed_steps      JSONB NOT NULL DEFAULT '[]'::jsonb,
	partial_data         JSONB NOT NULL DEFAULT '{}'::jsonb,
	ai_generated_data    JSONB,
	research_data        JSONB,
	ai_generated_at      TIMESTAMPTZ,
	research_status      TEXT NOT NULL DEFAULT 'pending',
	research_error       TEXT NOT NULL DEFAULT '',
	final_data           JSONB,
	is_completed         BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at         TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_onboarding_records_created_by ON onboarding_records(created_by, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_onboarding_records_job_id ON onboarding_records(job_id) WHERE job_id IS NOT NULL;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) now() time.Time {
	if s.nowFunc == nil {
		return time.Now().UTC()
	}
	return s.nowFunc().UTC()
}

func (s *PostgresStore) CreateCompany(ctx context.Context, company *model.Company, rec *model.OnboardingRecord) error {
	cols, err := prepareCreate(company, rec, uuid.NewString, s.now())
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create company")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO companies (id, name, linkedin_url, website_url, created_at) VALUES ($1, $2, $3, $4, $5)`,
		company.ID, company.Name, company.LinkedInURL, company.WebsiteURL, company.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert company")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO onboarding_records (id, company_id, created_by, initial_company_name, initial_linkedin_url, initial_website_url, initial_resources, current_step, completed_steps, partial_data, research_status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9::jsonb, $10::jsonb, $11, $12, $13)`,
		rec.ID, rec.CompanyID, rec.CreatedBy, rec.InitialCompanyName, rec.InitialLinkedInURL,
		rec.InitialWebsiteURL, string(cols.resources), string(rec.CurrentStep), string(cols.steps),
		string(cols.partial), string(rec.ResearchStatus), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert onboarding record")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit create company")
}

func (s *PostgresStore) LatestByUser(ctx context.Context, userID string) (*model.OnboardingRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM onboarding_records WHERE created_by = $1 ORDER BY created_at DESC LIMIT 1`,
		userID,
	)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest record by user")
	}
	return rec, nil
}

func (s *PostgresStore) GetByJobID(ctx context.Context, jobID string) (*model.OnboardingRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM onboarding_records WHERE job_id = $1 ORDER BY created_at DESC LIMIT 1`,
		jobID,
	)
	rec, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: record by job id")
	}
	return rec, nil
}

func (s *PostgresStore) UpdateLatestByUser(ctx context.Context, userID string, patch model.RecordPatch) error {
	set, args, err := buildPatch(postgresDialect, patch, s.now())
	if err != nil {
		return err
	}
	ph := args.add(userID)
	tag, err := s.pool.Exec(ctx,
		`UPDATE onboarding_records SET `+set+` WHERE id = (SELECT id FROM onboarding_records WHERE created_by = `+ph+` ORDER BY created_at DESC LIMIT 1)`,
		args.vals...,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update latest record")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "user %s", userID)
	}
	return nil
}

func (s *PostgresStore) UpdateByJobID(ctx context.Context, jobID string, patch model.RecordPatch) error {
	set, args, err := buildPatch(postgresDialect, patch, s.now())
	if err != nil {
		return err
	}
	ph := args.add(jobID)
	tag, err := s.pool.Exec(ctx,
		`UPDATE onboarding_records SET `+set+` WHERE job_id = `+ph,
		args.vals...,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update record by job id")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return nil
}

func (s *PostgresStore) CompleteLatest(ctx context.Context, userID string, final *model.WizardFormState, at time.Time) error {
	finalJSON, err := json.Marshal(final)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal final data")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE onboarding_records SET final_data = $1::jsonb, is_completed = TRUE, completed_at = $2, current_step = 'completed', updated_at = $2 WHERE id = (SELECT id FROM onboarding_records WHERE created_by = $3 ORDER BY created_at DESC LIMIT 1)`,
		string(finalJSON), at.UTC(), userID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: complete record")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "user %s", userID)
	}
	return nil
}

func scanPostgresRecord(row pgx.Row) (*model.OnboardingRecord, error) {
	var rec model.OnboardingRecord
	var raw recordJSON
	var jobID *string
	var step, status string

	err := row.Scan(
		&rec.ID, &rec.CompanyID, &rec.CreatedBy, &rec.InitialCompanyName, &rec.InitialLinkedInURL,
		&rec.InitialWebsiteURL, &raw.resources, &jobID, &step, &raw.steps,
		&raw.partial, &raw.ai, &rec.AIGeneratedAt, &status, &rec.ResearchError,
		&raw.final, &rec.IsCompleted, &rec.CompletedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if jobID != nil {
		rec.JobID = *jobID
	}
	rec.CurrentStep = model.Step(step)
	rec.ResearchStatus = model.ResearchStatus(status)
	if err := raw.decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
