package usecase

import (
	"context"
	"errors"
	"strings"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/audit"
	"shramsaathi-backend/pkg/logger"
	"shramsaathi-backend/pkg/metrics"
	"shramsaathi-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type applicationUsecase struct {
	applicationRepo domain.ApplicationRepository
	jobRepo         domain.JobRepository
	profileRepo     domain.ProfileRepository
	validate        *validator.Validate
	audit           *audit.Logger
	metrics         *metrics.Collector
}

// NewApplicationUsecase creates a new application usecase. auditLog and collector may be nil.
func NewApplicationUsecase(
	appRepo domain.ApplicationRepository,
	jobRepo domain.JobRepository,
	profileRepo domain.ProfileRepository,
	validate *validator.Validate,
	auditLog *audit.Logger,
	collector *metrics.Collector,
) domain.ApplicationUsecase {
	return &applicationUsecase{
		applicationRepo: appRepo,
		jobRepo:         jobRepo,
		profileRepo:     profileRepo,
		validate:        validate,
		audit:           auditLog,
		metrics:         collector,
	}
}

// Apply creates a pending application for an active job
func (uc *applicationUsecase) Apply(ctx context.Context, in domain.ApplyInput) (*domain.Application, error) {
	if err := uc.validate.Struct(in); err != nil {
		return nil, apperror.BadRequest(validation.Message(err))
	}

	// 1. Validate job exists and is active
	job, err := uc.jobRepo.GetByID(ctx, in.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Job not found")
		}
		return nil, apperror.Internal(err)
	}
	if job.Status == domain.JobStatusClosed {
		return nil, apperror.BadRequest("This job is no longer accepting applications")
	}
	if job.OwnerID == in.WorkerID {
		return nil, apperror.BadRequest("You cannot apply to your own job")
	}

	// 2. Optimistic duplicate check; the store's unique key is authoritative
	exists, err := uc.applicationRepo.CheckExists(ctx, in.JobID, in.WorkerID)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	if exists {
		return nil, domain.DuplicateApplicationError()
	}

	// 3. Snapshot display fields, falling back to the profile directory
	name, skill := strings.TrimSpace(in.WorkerName), strings.TrimSpace(in.WorkerSkill)
	if name == "" || skill == "" {
		if profile, err := uc.profileRepo.GetByID(ctx, in.WorkerID); err == nil {
			if name == "" {
				name = profile.Name
			}
			if skill == "" {
				skill = profile.WorkType
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			logger.Log.Warn("Profile lookup failed while applying", "worker_id", in.WorkerID, "error", err)
		}
	}

	app := &domain.Application{
		JobID:       in.JobID,
		WorkerID:    in.WorkerID,
		WorkerName:  name,
		WorkerSkill: skill,
		Status:      domain.ApplicationStatusPending,
	}
	if err := uc.applicationRepo.Create(ctx, app); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.Persistence(err)
	}

	uc.metrics.RecordTransition(domain.ApplicationStatusPending)
	uc.audit.Application(ctx, audit.EventApplicationSubmitted, in.WorkerID, app.ID, app.JobID, nil)
	return app, nil
}

// ListByWorker returns a worker's own applications
func (uc *applicationUsecase) ListByWorker(ctx context.Context, actorID, workerID int64) ([]domain.Application, error) {
	if actorID != workerID {
		uc.audit.Forbidden(ctx, actorID, "worker_applications")
		return nil, apperror.Forbidden("You can only view your own applications")
	}
	apps, err := uc.applicationRepo.GetByWorkerID(ctx, workerID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return apps, nil
}

// ListByJob returns all applications for a job (owner only)
func (uc *applicationUsecase) ListByJob(ctx context.Context, actorID, jobID int64) ([]domain.Application, error) {
	if _, err := uc.ownedJob(ctx, actorID, jobID); err != nil {
		return nil, err
	}
	apps, err := uc.applicationRepo.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return apps, nil
}

// GetApplication returns one application to its worker or the job's owner
func (uc *applicationUsecase) GetApplication(ctx context.Context, actorID, applicationID int64) (*domain.Application, error) {
	app, err := uc.applicationRepo.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Application not found")
		}
		return nil, apperror.Internal(err)
	}
	if app.WorkerID == actorID {
		return app, nil
	}
	if _, err := uc.ownedJob(ctx, actorID, app.JobID); err != nil {
		return nil, err
	}
	return app, nil
}

// SetStatus drives the state machine: pending → accepted | rejected.
//
// Acceptance is decided by the store in one conditional write. After it commits,
// every still-pending sibling is rejected one by one; a sibling that fails is
// reported in the result and never undoes the acceptance.
func (uc *applicationUsecase) SetStatus(ctx context.Context, actorID, applicationID int64, status string, supersede bool) (*domain.StatusChange, error) {
	target, ok := domain.ParseApplicationStatus(status)
	if !ok {
		return nil, apperror.BadRequest("Invalid status. Must be: PENDING, ACCEPTED or REJECTED")
	}

	app, err := uc.applicationRepo.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Application not found")
		}
		return nil, apperror.Internal(err)
	}
	if _, err := uc.ownedJob(ctx, actorID, app.JobID); err != nil {
		return nil, err
	}

	switch target {
	case domain.ApplicationStatusAccepted:
		return uc.accept(ctx, actorID, app, supersede)
	case domain.ApplicationStatusRejected:
		return uc.reject(ctx, actorID, app)
	default:
		if app.Status == domain.ApplicationStatusPending {
			return &domain.StatusChange{Application: app}, nil
		}
		return nil, apperror.BadRequest("A decided application cannot be moved back to pending")
	}
}

func (uc *applicationUsecase) accept(ctx context.Context, actorID int64, app *domain.Application, supersede bool) (*domain.StatusChange, error) {
	// Optimistic pre-check for a precise message; Accept re-checks atomically.
	if app.Status == domain.ApplicationStatusAccepted {
		return nil, domain.AlreadyAcceptedError(app)
	}

	outcome, err := uc.applicationRepo.Accept(ctx, app.ID, supersede)
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrConflictingAcceptance):
			uc.metrics.RecordConflict()
			uc.audit.Application(ctx, audit.EventAcceptanceConflict, actorID, app.ID, app.JobID, nil)
			return nil, err
		case errors.Is(err, apperror.ErrAlreadyAccepted):
			return nil, err
		case errors.Is(err, domain.ErrNotFound):
			return nil, apperror.NotFound("Application not found")
		}
		return nil, apperror.Persistence(err)
	}

	change := &domain.StatusChange{Application: outcome.Application, Superseded: outcome.Superseded}
	uc.metrics.RecordTransition(domain.ApplicationStatusAccepted)
	uc.audit.Application(ctx, audit.EventApplicationAccepted, actorID, app.ID, app.JobID, nil)
	if outcome.Superseded != nil {
		uc.metrics.RecordTransition(domain.ApplicationStatusRejected)
		uc.audit.Application(ctx, audit.EventApplicationReplaced, actorID, outcome.Superseded.ID, app.JobID,
			map[string]any{"replaced_by": app.ID})
	}

	uc.cascade(ctx, actorID, change)
	return change, nil
}

// cascade rejects the accepted application's pending siblings, best-effort.
func (uc *applicationUsecase) cascade(ctx context.Context, actorID int64, change *domain.StatusChange) {
	accepted := change.Application
	siblings, err := uc.applicationRepo.GetByJobID(ctx, accepted.JobID)
	if err != nil {
		logger.Log.Error("Cascade reject: listing siblings failed", "job_id", accepted.JobID, "error", err)
		change.CascadeFailures = append(change.CascadeFailures, domain.CascadeFailure{Reason: err.Error()})
		uc.audit.Application(ctx, audit.EventCascadeRejectFailed, actorID, accepted.ID, accepted.JobID,
			map[string]any{"reason": err.Error()})
		uc.metrics.RecordCascade(0, 1)
		return
	}

	for _, sibling := range siblings {
		if sibling.ID == accepted.ID || sibling.Status != domain.ApplicationStatusPending {
			continue
		}
		rejected, err := uc.applicationRepo.RejectIfPending(ctx, sibling.ID)
		if err != nil {
			logger.Log.Error("Cascade reject failed", "application_id", sibling.ID, "job_id", sibling.JobID, "error", err)
			change.CascadeFailures = append(change.CascadeFailures, domain.CascadeFailure{
				ApplicationID: sibling.ID,
				Reason:        err.Error(),
			})
			uc.audit.Application(ctx, audit.EventCascadeRejectFailed, actorID, sibling.ID, sibling.JobID,
				map[string]any{"reason": err.Error(), "accepted_id": accepted.ID})
			continue
		}
		if rejected {
			change.Rejected = append(change.Rejected, sibling.ID)
			uc.metrics.RecordTransition(domain.ApplicationStatusRejected)
		}
	}
	uc.metrics.RecordCascade(len(change.Rejected), len(change.CascadeFailures))
}

func (uc *applicationUsecase) reject(ctx context.Context, actorID int64, app *domain.Application) (*domain.StatusChange, error) {
	if app.Status == domain.ApplicationStatusAccepted {
		return nil, domain.CannotRejectAcceptedError(app)
	}

	updated, err := uc.applicationRepo.Reject(ctx, app.ID)
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrCannotRejectAccepted):
			return nil, err
		case errors.Is(err, domain.ErrNotFound):
			return nil, apperror.NotFound("Application not found")
		}
		return nil, apperror.Persistence(err)
	}

	if app.Status != domain.ApplicationStatusRejected {
		uc.metrics.RecordTransition(domain.ApplicationStatusRejected)
		uc.audit.Application(ctx, audit.EventApplicationRejected, actorID, app.ID, app.JobID, nil)
	}
	return &domain.StatusChange{Application: updated}, nil
}

// ownedJob loads the job and checks the actor owns it
func (uc *applicationUsecase) ownedJob(ctx context.Context, actorID, jobID int64) (*domain.Job, error) {
	job, err := uc.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Job not found")
		}
		return nil, apperror.Internal(err)
	}
	if job.OwnerID != actorID {
		uc.audit.Forbidden(ctx, actorID, "job_applications")
		return nil, apperror.Forbidden("Only the job's owner can manage its applications")
	}
	return job, nil
}
