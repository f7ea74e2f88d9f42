package postgres

import (
	"context"
	"errors"
	"time"

	"shramsaathi-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type applicationRepo struct {
	db *pgxpool.Pool
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *pgxpool.Pool) domain.ApplicationRepository {
	return &applicationRepo{db: db}
}

const applicationColumns = `id, job_id, worker_id, worker_name, worker_skill, status, applied_at, updated_at`

func scanApplication(row pgx.Row, app *domain.Application) error {
	return row.Scan(
		&app.ID, &app.JobID, &app.WorkerID, &app.WorkerName, &app.WorkerSkill,
		&app.Status, &app.AppliedAt, &app.UpdatedAt,
	)
}

// Create inserts a new application; the (job_id, worker_id) unique key turns a
// racing duplicate into DuplicateApplication.
func (r *applicationRepo) Create(ctx context.Context, app *domain.Application) error {
	query := `
		INSERT INTO applications (job_id, worker_id, worker_name, worker_skill, status, applied_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now().UTC()
	app.AppliedAt = now
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = domain.ApplicationStatusPending
	}

	err := r.db.QueryRow(ctx, query,
		app.JobID, app.WorkerID, app.WorkerName, app.WorkerSkill, app.Status, app.AppliedAt, app.UpdatedAt,
	).Scan(&app.ID)
	if uniqueConstraint(err) == constraintJobWorker {
		return domain.DuplicateApplicationError()
	}
	return err
}

func (r *applicationRepo) GetByID(ctx context.Context, id int64) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	var app domain.Application
	if err := scanApplication(r.db.QueryRow(ctx, query, id), &app); err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func (r *applicationRepo) GetByJobID(ctx context.Context, jobID int64) ([]domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE job_id = $1 ORDER BY id`
	return r.list(ctx, query, jobID)
}

func (r *applicationRepo) list(ctx context.Context, query string, args ...any) ([]domain.Application, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applications := make([]domain.Application, 0)
	for rows.Next() {
		var app domain.Application
		if err := scanApplication(rows, &app); err != nil {
			return nil, err
		}
		applications = append(applications, app)
	}
	return applications, rows.Err()
}

// GetByWorkerID retrieves a worker's applications with the job fields joined in
func (r *applicationRepo) GetByWorkerID(ctx context.Context, workerID int64) ([]domain.Application, error) {
	query := `
		SELECT
			a.id, a.job_id, a.worker_id, a.worker_name, a.worker_skill, a.status, a.applied_at, a.updated_at,
			j.title, j.location, j.pay, j.duration
		FROM applications a
		LEFT JOIN jobs j ON a.job_id = j.id
		WHERE a.worker_id = $1
		ORDER BY a.applied_at DESC, a.id DESC`

	rows, err := r.db.Query(ctx, query, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applications := make([]domain.Application, 0)
	for rows.Next() {
		var app domain.Application
		if err := rows.Scan(
			&app.ID, &app.JobID, &app.WorkerID, &app.WorkerName, &app.WorkerSkill,
			&app.Status, &app.AppliedAt, &app.UpdatedAt,
			&app.JobTitle, &app.Location, &app.Pay, &app.Duration,
		); err != nil {
			return nil, err
		}
		applications = append(applications, app)
	}
	return applications, rows.Err()
}

func (r *applicationRepo) CheckExists(ctx context.Context, jobID, workerID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM applications WHERE job_id = $1 AND worker_id = $2)`
	var exists bool
	err := r.db.QueryRow(ctx, query, jobID, workerID).Scan(&exists)
	return exists, err
}

// CountByOwnerID maps every job of the owner to its application count, zero included.
func (r *applicationRepo) CountByOwnerID(ctx context.Context, ownerID int64) (map[int64]int64, error) {
	query := `
		SELECT j.id, COUNT(a.id)
		FROM jobs j
		LEFT JOIN applications a ON a.job_id = j.id
		WHERE j.owner_id = $1
		GROUP BY j.id`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var jobID, n int64
		if err := rows.Scan(&jobID, &n); err != nil {
			return nil, err
		}
		counts[jobID] = n
	}
	return counts, rows.Err()
}

func (r *applicationRepo) HasAcceptedWorker(ctx context.Context, ownerID, workerID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM applications a
			JOIN jobs j ON a.job_id = j.id
			WHERE j.owner_id = $1 AND a.worker_id = $2 AND a.status = 'accepted'
		)`
	var ok bool
	err := r.db.QueryRow(ctx, query, ownerID, workerID).Scan(&ok)
	return ok, err
}

// Accept locks every application of the target's job, re-checks the
// one-accepted-per-job rule and writes inside the same transaction. The partial
// unique index applications_one_accepted_per_job backs the check, so a writer
// that slips past the lock still fails with ConflictingAcceptance.
func (r *applicationRepo) Accept(ctx context.Context, id int64, supersede bool) (*domain.AcceptOutcome, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE job_id = (SELECT job_id FROM applications WHERE id = $1)
		ORDER BY id
		FOR UPDATE`

	rows, err := tx.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	var target, current *domain.Application
	for rows.Next() {
		var app domain.Application
		if err := scanApplication(rows, &app); err != nil {
			rows.Close()
			return nil, err
		}
		switch {
		case app.ID == id:
			target = &app
		case app.Status == domain.ApplicationStatusAccepted:
			current = &app
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if target == nil {
		return nil, domain.ErrNotFound
	}
	if target.Status == domain.ApplicationStatusAccepted {
		return nil, domain.AlreadyAcceptedError(target)
	}

	now := time.Now().UTC()
	out := &domain.AcceptOutcome{}
	if current != nil {
		if !supersede {
			return nil, domain.ConflictingAcceptanceError(current)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE applications SET status = 'rejected', updated_at = $2 WHERE id = $1`,
			current.ID, now,
		); err != nil {
			return nil, err
		}
		current.Status = domain.ApplicationStatusRejected
		current.UpdatedAt = now
		out.Superseded = current
	}

	if _, err := tx.Exec(ctx,
		`UPDATE applications SET status = 'accepted', updated_at = $2 WHERE id = $1`,
		id, now,
	); err != nil {
		if uniqueConstraint(err) == constraintOneAccepted {
			return nil, domain.ConflictingAcceptanceError(nil)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		if uniqueConstraint(err) == constraintOneAccepted {
			return nil, domain.ConflictingAcceptanceError(nil)
		}
		return nil, err
	}

	target.Status = domain.ApplicationStatusAccepted
	target.UpdatedAt = now
	out.Application = target
	return out, nil
}

// Reject is a single conditional update; an accepted row is never matched.
func (r *applicationRepo) Reject(ctx context.Context, id int64) (*domain.Application, error) {
	query := `
		UPDATE applications
		SET status = 'rejected',
		    updated_at = CASE WHEN status = 'rejected' THEN updated_at ELSE NOW() END
		WHERE id = $1 AND status <> 'accepted'
		RETURNING ` + applicationColumns

	var app domain.Application
	err := scanApplication(r.db.QueryRow(ctx, query, id), &app)
	if err == nil {
		return &app, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, domain.CannotRejectAcceptedError(existing)
}

func (r *applicationRepo) RejectIfPending(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE applications SET status = 'rejected', updated_at = NOW() WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
