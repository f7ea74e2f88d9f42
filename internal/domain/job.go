package domain

import (
	"context"
	"errors"
	"time"
)

// Common domain errors
var ErrNotFound = errors.New("resource not found")

// Job status constants
const (
	JobStatusActive = "active"
	JobStatusClosed = "closed"
)

type Job struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"ownerId"` // immutable after creation
	Title       string    `json:"title" validate:"required,min=3,max=120"`
	SkillNeeded string    `json:"skillNeeded" validate:"required,max=80"`
	Location    string    `json:"location" validate:"required,max=255"`
	Area        *string   `json:"area,omitempty" validate:"omitempty,max=120"`
	Colony      *string   `json:"colony,omitempty" validate:"omitempty,max=120"`
	State       *string   `json:"state,omitempty" validate:"omitempty,max=80"`
	Pincode     *string   `json:"pincode,omitempty" validate:"omitempty,valid_pincode"`
	Pay         float64   `json:"pay" validate:"gte=0"`
	Duration    string    `json:"duration" validate:"max=80"`
	Status      string    `json:"status" validate:"omitempty,oneof=active closed"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id int64) (*Job, error)
	Fetch(ctx context.Context) ([]Job, error)
	FetchByOwnerID(ctx context.Context, ownerID int64) ([]Job, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id int64) error
}

type JobUsecase interface {
	CreateJob(ctx context.Context, ownerID int64, job *Job) error
	GetJob(ctx context.Context, id int64) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	ListJobsByOwner(ctx context.Context, ownerID int64) ([]Job, error)
	DeleteJob(ctx context.Context, ownerID int64, id int64) error
}
