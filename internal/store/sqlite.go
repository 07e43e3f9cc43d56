package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/onboard/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db      *sql.DB
	nowFunc func() time.Time
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	linkedin_url TEXT NOT NULL DEFAULT '',
	website_url  TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS onboarding_records (
	id                   TEXT PRIMARY KEY,
	company_id           TEXT NOT NULL REFERENCES companies(id),
	created_by           TEXT NOT NULL,
	initial_company_name TEXT NOT NULL,
	initial_linkedin_url TEXT NOT NULL DEFAULT '',
	initial_website_url  TEXT NOT NULL DEFAULT '',
	initial_resources    TEXT NOT NULL DEFAULT '[]',
	job_id               TEXT,
	current_step         TEXT NOT NULL DEFAULT 'initial',
	completed_steps      TEXT NOT NULL DEFAULT '[]',
	partial_data         TEXT NOT NULL DEFAULT '{}',
	ai_generated_data    TEXT,
	research_data        TEXT,
	ai_generated_at      DATETIME,
	research_status      TEXT NOT NULL DEFAULT 'pending',
	research_error       TEXT NOT NULL DEFAULT '',
	final_data           TEXT,
	is_completed         INTEGER NOT NULL DEFAULT 0,
	completed_at         DATETIME,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_onboarding_records_created_by ON onboarding_records(created_by, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_onboarding_records_job_id ON onboarding_records(job_id) WHERE job_id IS NOT NULL;
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) now() time.Time {
	return s.nowFunc().UTC()
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, company *model.Company, rec *model.OnboardingRecord) error {
	cols, err := prepareCreate(company, rec, uuid.NewString, s.now())
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create company")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO companies (id, name, linkedin_url, website_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		company.ID, company.Name, company.LinkedInURL, company.WebsiteURL, company.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert company")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO onboarding_records (id, company_id, created_by, initial_company_name, initial_linkedin_url, initial_website_url, initial_resources, current_step, completed_steps, partial_data, research_status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CompanyID, rec.CreatedBy, rec.InitialCompanyName, rec.InitialLinkedInURL,
		rec.InitialWebsiteURL, string(cols.resources), string(rec.CurrentStep), string(cols.steps),
		string(cols.partial), string(rec.ResearchStatus), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert onboarding record")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit create company")
}

func (s *SQLiteStore) LatestByUser(ctx context.Context, userID string) (*model.OnboardingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM onboarding_records WHERE created_by = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		userID,
	)
	rec, err := scanSQLiteRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest record by user")
	}
	return rec, nil
}

func (s *SQLiteStore) GetByJobID(ctx context.Context, jobID string) (*model.OnboardingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM onboarding_records WHERE job_id = ? ORDER BY created_at DESC LIMIT 1`,
		jobID,
	)
	rec, err := scanSQLiteRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: record by job id")
	}
	return rec, nil
}

func (s *SQLiteStore) UpdateLatestByUser(ctx context.Context, userID string, patch model.RecordPatch) error {
	set, args, err := buildPatch(sqliteDialect, patch, s.now())
	if err != nil {
		return err
	}
	ph := args.add(userID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE onboarding_records SET `+set+` WHERE id = (SELECT id FROM onboarding_records WHERE created_by = `+ph+` ORDER BY created_at DESC, rowid DESC LIMIT 1)`,
		args.vals...,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update latest record")
	}
	return checkRowsAffected(res, "user", userID)
}

func (s *SQLiteStore) UpdateByJobID(ctx context.Context, jobID string, patch model.RecordPatch) error {
	set, args, err := buildPatch(sqliteDialect, patch, s.now())
	if err != nil {
		return err
	}
	ph := args.add(jobID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE onboarding_records SET `+set+` WHERE job_id = `+ph,
		args.vals...,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update record by job id")
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) CompleteLatest(ctx context.Context, userID string, final *model.WizardFormState, at time.Time) error {
	finalJSON, err := json.Marshal(final)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal final data")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE onboarding_records SET final_data = ?1, is_completed = 1, completed_at = ?2, current_step = 'completed', updated_at = ?2
		 WHERE id = (SELECT id FROM onboarding_records WHERE created_by = ?3 ORDER BY created_at DESC, rowid DESC LIMIT 1)`,
		string(finalJSON), at.UTC(), userID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: complete record")
	}
	return checkRowsAffected(res, "user", userID)
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

func scanSQLiteRecord(row scannable) (*model.OnboardingRecord, error) {
	var rec model.OnboardingRecord
	var resources, steps, partial string
	var jobID, ai, final sql.NullString
	var aiAt, completedAt sql.NullTime
	var step, status string

	err := row.Scan(
		&rec.ID, &rec.CompanyID, &rec.CreatedBy, &rec.InitialCompanyName, &rec.InitialLinkedInURL,
		&rec.InitialWebsiteURL, &resources, &jobID, &step, &steps,
		&partial, &ai, &aiAt, &status, &rec.ResearchError,
		&final, &rec.IsCompleted, &completedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.JobID = jobID.String
	rec.CurrentStep = model.Step(step)
	rec.ResearchStatus = model.ResearchStatus(status)
	if aiAt.Valid {
		t := aiAt.Time
		rec.AIGeneratedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}

	raw := recordJSON{
		resources: []byte(resources),
		steps:     []byte(steps),
		partial:   []byte(partial),
	}
	if ai.Valid {
		raw.ai = []byte(ai.String)
	}
	if final.Valid {
		raw.final = []byte(final.String)
	}
	if err := raw.decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
