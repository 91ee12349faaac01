package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/course-admin-api/pkg/config"
)

// DSN renders the lib/pq connection string for cfg.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Schema creates the tables used by the postgres course store when absent.
const Schema = `
CREATE TABLE IF NOT EXISTS teachers (
	id          TEXT PRIMARY KEY,
	full_name   TEXT NOT NULL,
	email       TEXT NOT NULL DEFAULT '',
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS courses (
	id                BIGSERIAL PRIMARY KEY,
	name              TEXT NOT NULL,
	level             TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	max_capacity      INTEGER NOT NULL,
	enrolled_count    INTEGER NOT NULL DEFAULT 0,
	lead_teacher_id   TEXT NOT NULL,
	lead_teacher_name TEXT NOT NULL,
	room              TEXT NOT NULL,
	start_time        TEXT NOT NULL,
	end_time          TEXT NOT NULL,
	days_of_week      TEXT NOT NULL,
	enrollment_fee    BIGINT NOT NULL DEFAULT 0,
	monthly_fee       BIGINT NOT NULL DEFAULT 0,
	term_start        DATE NOT NULL,
	term_end          DATE NOT NULL,
	active            BOOLEAN NOT NULL DEFAULT TRUE,
	notes             TEXT,
	created_by        TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_by        TEXT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	deleted_by        TEXT,
	deleted_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_courses_level ON courses (level);
CREATE INDEX IF NOT EXISTS idx_courses_lead_teacher ON courses (lead_teacher_id);

CREATE TABLE IF NOT EXISTS export_jobs (
	id            UUID PRIMARY KEY,
	format        TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	query         JSONB NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL,
	row_count     INTEGER NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 0,
	file_path     TEXT NOT NULL DEFAULT '',
	result_url    TEXT,
	expires_at    TIMESTAMPTZ,
	error_message TEXT,
	created_by    TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_export_jobs_status ON export_jobs (status, finished_at);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
