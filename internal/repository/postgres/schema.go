package postgres

import (
	"context"
	"errors"

	"shramsaathi-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on startup. Statements are idempotent.
//
// applications.job_id carries no foreign key: applications outlive a deleted job
// and the worker list shows them with the job fields empty.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id               BIGSERIAL PRIMARY KEY,
		name             TEXT NOT NULL,
		phone            TEXT NOT NULL UNIQUE,
		role             TEXT NOT NULL DEFAULT 'worker',
		address          TEXT NOT NULL DEFAULT '',
		work_type        TEXT NOT NULL DEFAULT '',
		business_name    TEXT,
		district         TEXT NOT NULL DEFAULT '',
		mandal           TEXT NOT NULL DEFAULT '',
		area             TEXT,
		colony           TEXT,
		state            TEXT,
		pincode          TEXT,
		age              INTEGER CHECK (age >= 0),
		experience_years DOUBLE PRECISION CHECK (experience_years >= 0),
		attributes       JSONB NOT NULL DEFAULT '{}'::jsonb,
		registered       BOOLEAN NOT NULL DEFAULT TRUE,
		password_hash    TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id           BIGSERIAL PRIMARY KEY,
		owner_id     BIGINT NOT NULL REFERENCES users(id),
		title        TEXT NOT NULL,
		skill_needed TEXT NOT NULL DEFAULT '',
		location     TEXT NOT NULL DEFAULT '',
		area         TEXT,
		colony       TEXT,
		state        TEXT,
		pincode      TEXT,
		pay          DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration     TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'closed')),
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id)`,
	`CREATE TABLE IF NOT EXISTS applications (
		id           BIGSERIAL PRIMARY KEY,
		job_id       BIGINT NOT NULL,
		worker_id    BIGINT NOT NULL,
		worker_name  TEXT NOT NULL DEFAULT '',
		worker_skill TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
		applied_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT applications_job_worker_key UNIQUE (job_id, worker_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_worker ON applications(worker_id)`,
	// at most one accepted application per job
	`CREATE UNIQUE INDEX IF NOT EXISTS applications_one_accepted_per_job
		ON applications(job_id) WHERE status = 'accepted'`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id                BIGSERIAL PRIMARY KEY,
		application_id    BIGINT NOT NULL,
		sender_id         BIGINT NOT NULL,
		receiver_id       BIGINT,
		message           TEXT NOT NULL,
		client_message_id TEXT,
		sent_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_application ON chat_messages(application_id, sent_at, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS chat_messages_client_id
		ON chat_messages(application_id, client_message_id) WHERE client_message_id IS NOT NULL`,
}

// Migrate creates the tables and indexes the repositories rely on.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const (
	uniqueViolation        = "23505"
	constraintJobWorker    = "applications_job_worker_key"
	constraintOneAccepted  = "applications_one_accepted_per_job"
	constraintChatClientID = "chat_messages_client_id"
	constraintUsersPhone   = "users_phone_key"
)

// uniqueConstraint returns the violated constraint name, or "" for other errors.
func uniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}
