package domain

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shramsaathi-backend/pkg/apperror"
)

// Application status constants
const (
	ApplicationStatusPending  = "pending"
	ApplicationStatusAccepted = "accepted"
	ApplicationStatusRejected = "rejected"
)

// Application represents a worker's application to a job
type Application struct {
	ID          int64     `json:"id"`
	JobID       int64     `json:"jobId"`
	WorkerID    int64     `json:"workerId"`
	WorkerName  string    `json:"workerName"`  // snapshotted at apply time
	WorkerSkill string    `json:"workerSkill"` // snapshotted at apply time
	Status      string    `json:"status"`      // pending → accepted / rejected
	AppliedAt   time.Time `json:"appliedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Joined job data for worker list responses
	JobTitle *string  `json:"jobTitle,omitempty"`
	Location *string  `json:"location,omitempty"`
	Pay      *float64 `json:"pay,omitempty"`
	Duration *string  `json:"duration,omitempty"`
}

// ParseApplicationStatus accepts PENDING|ACCEPTED|REJECTED in any case.
func ParseApplicationStatus(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ApplicationStatusPending:
		return ApplicationStatusPending, true
	case ApplicationStatusAccepted:
		return ApplicationStatusAccepted, true
	case ApplicationStatusRejected:
		return ApplicationStatusRejected, true
	}
	return "", false
}

// ApplyInput is what a worker submits when applying to a job.
type ApplyInput struct {
	JobID       int64  `json:"jobId" validate:"required,gt=0"`
	WorkerID    int64  `json:"workerId" validate:"required,gt=0"`
	WorkerName  string `json:"workerName" validate:"max=120"`
	WorkerSkill string `json:"workerSkill" validate:"max=80"`
}

// CascadeFailure records a sibling that could not be auto-rejected after an acceptance.
type CascadeFailure struct {
	ApplicationID int64  `json:"applicationId"`
	Reason        string `json:"reason"`
}

// StatusChange is the outcome of a status transition.
type StatusChange struct {
	Application     *Application     `json:"application"`
	Superseded      *Application     `json:"superseded,omitempty"`
	Rejected        []int64          `json:"rejected,omitempty"`
	CascadeFailures []CascadeFailure `json:"cascadeFailures,omitempty"`
}

// AcceptOutcome is returned by the store's atomic accept.
type AcceptOutcome struct {
	Application *Application
	Superseded  *Application
}

// ApplicationRepository defines data access methods for applications.
//
// Accept and Reject are conditional writes: the store re-checks the acceptance
// invariant inside the write so concurrent callers cannot both succeed.
type ApplicationRepository interface {
	Create(ctx context.Context, app *Application) error
	GetByID(ctx context.Context, id int64) (*Application, error)
	GetByJobID(ctx context.Context, jobID int64) ([]Application, error)
	GetByWorkerID(ctx context.Context, workerID int64) ([]Application, error)
	CheckExists(ctx context.Context, jobID, workerID int64) (bool, error)
	CountByOwnerID(ctx context.Context, ownerID int64) (map[int64]int64, error)
	HasAcceptedWorker(ctx context.Context, ownerID, workerID int64) (bool, error)

	Accept(ctx context.Context, id int64, supersede bool) (*AcceptOutcome, error)
	Reject(ctx context.Context, id int64) (*Application, error)
	RejectIfPending(ctx context.Context, id int64) (bool, error)
}

// ApplicationUsecase defines business logic for applications
type ApplicationUsecase interface {
	// Worker operations
	Apply(ctx context.Context, in ApplyInput) (*Application, error)
	ListByWorker(ctx context.Context, actorID, workerID int64) ([]Application, error)

	// Owner operations
	ListByJob(ctx context.Context, actorID, jobID int64) ([]Application, error)
	SetStatus(ctx context.Context, actorID, applicationID int64, status string, supersede bool) (*StatusChange, error)

	// Either party
	GetApplication(ctx context.Context, actorID, applicationID int64) (*Application, error)
}

func DuplicateApplicationError() *apperror.AppError {
	return apperror.WithKind(http.StatusConflict, apperror.KindDuplicateApplication,
		"You have already applied for this job")
}

func AlreadyAcceptedError(app *Application) *apperror.AppError {
	return apperror.WithKind(http.StatusConflict, apperror.KindAlreadyAccepted,
		fmt.Sprintf("%s is already accepted for this job", displayName(app)))
}

func ConflictingAcceptanceError(accepted *Application) *apperror.AppError {
	return apperror.WithKind(http.StatusConflict, apperror.KindConflictingAcceptance,
		fmt.Sprintf("%s is already accepted for this job; accept with supersede to replace them", displayName(accepted)))
}

func CannotRejectAcceptedError(app *Application) *apperror.AppError {
	return apperror.WithKind(http.StatusConflict, apperror.KindCannotRejectAccepted,
		fmt.Sprintf("%s is accepted; accept another applicant to replace them", displayName(app)))
}

func displayName(app *Application) string {
	if app == nil || strings.TrimSpace(app.WorkerName) == "" {
		return "Another worker"
	}
	return app.WorkerName
}
