package postgres

import (
	"context"
	"time"

	"shramsaathi-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type jobRepo struct {
	db *pgxpool.Pool
}

func NewJobRepository(db *pgxpool.Pool) domain.JobRepository {
	return &jobRepo{db: db}
}

const jobColumns = `id, owner_id, title, skill_needed, location, area, colony, state, pincode, pay, duration, status, created_at, updated_at`

func scanJob(row pgx.Row, job *domain.Job) error {
	return row.Scan(
		&job.ID, &job.OwnerID, &job.Title, &job.SkillNeeded, &job.Location,
		&job.Area, &job.Colony, &job.State, &job.Pincode,
		&job.Pay, &job.Duration, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
}

func (r *jobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `INSERT INTO jobs (owner_id, title, skill_needed, location, area, colony, state, pincode, pay, duration, status, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	return r.db.QueryRow(ctx, query,
		job.OwnerID, job.Title, job.SkillNeeded, job.Location, job.Area, job.Colony, job.State, job.Pincode,
		job.Pay, job.Duration, job.Status, job.CreatedAt, job.UpdatedAt,
	).Scan(&job.ID)
}

func (r *jobRepo) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	var job domain.Job
	if err := scanJob(r.db.QueryRow(ctx, query, id), &job); err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (r *jobRepo) Fetch(ctx context.Context) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query)
}

// FetchByOwnerID retrieves jobs for a specific owner
func (r *jobRepo) FetchByOwnerID(ctx context.Context, ownerID int64) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, ownerID)
}

func (r *jobRepo) list(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		var job domain.Job
		if err := scanJob(rows, &job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total)
	return total, err
}

func (r *jobRepo) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM jobs WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
