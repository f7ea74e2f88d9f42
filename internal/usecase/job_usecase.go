package usecase

import (
	"context"
	"errors"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type jobUsecase struct {
	jobRepo  domain.JobRepository
	validate *validator.Validate
}

func NewJobUsecase(jobRepo domain.JobRepository, validate *validator.Validate) domain.JobUsecase {
	return &jobUsecase{
		jobRepo:  jobRepo,
		validate: validate,
	}
}

// CreateJob stores a job for the calling owner. The owner comes from the session,
// never from the request body.
func (u *jobUsecase) CreateJob(ctx context.Context, ownerID int64, job *domain.Job) error {
	job.OwnerID = ownerID
	if job.Status == "" {
		job.Status = domain.JobStatusActive
	}

	if err := u.validate.Struct(job); err != nil {
		return apperror.BadRequest(validation.Message(err))
	}

	if err := u.jobRepo.Create(ctx, job); err != nil {
		return apperror.Persistence(err)
	}
	return nil
}

func (u *jobUsecase) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	job, err := u.jobRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Job not found")
		}
		return nil, apperror.Internal(err)
	}
	return job, nil
}

func (u *jobUsecase) ListJobs(ctx context.Context) ([]domain.Job, error) {
	jobs, err := u.jobRepo.Fetch(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return jobs, nil
}

// ListJobsByOwner returns jobs belonging to a specific owner
func (u *jobUsecase) ListJobsByOwner(ctx context.Context, ownerID int64) ([]domain.Job, error) {
	jobs, err := u.jobRepo.FetchByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return jobs, nil
}

func (u *jobUsecase) DeleteJob(ctx context.Context, ownerID int64, id int64) error {
	job, err := u.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.OwnerID != ownerID {
		return apperror.Forbidden("You can only delete your own jobs")
	}

	if err := u.jobRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperror.NotFound("Job not found")
		}
		return apperror.Persistence(err)
	}
	return nil
}
