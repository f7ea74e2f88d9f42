package usecase

import (
	"context"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"
)

type analyticsUsecase struct {
	applicationRepo domain.ApplicationRepository
	jobRepo         domain.JobRepository
}

func NewAnalyticsUsecase(appRepo domain.ApplicationRepository, jobRepo domain.JobRepository) domain.AnalyticsUsecase {
	return &analyticsUsecase{applicationRepo: appRepo, jobRepo: jobRepo}
}

func (u *analyticsUsecase) OwnerApplicationCounts(ctx context.Context, actorID, ownerID int64) (map[int64]int64, error) {
	if actorID != ownerID {
		return nil, apperror.Forbidden("You can only view your own analytics")
	}
	counts, err := u.applicationRepo.CountByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return counts, nil
}

// WorkerSummary counts the open marketplace against the worker's applications
func (u *analyticsUsecase) WorkerSummary(ctx context.Context, actorID, workerID int64) (*domain.WorkerSummary, error) {
	if actorID != workerID {
		return nil, apperror.Forbidden("You can only view your own analytics")
	}
	total, err := u.jobRepo.Count(ctx)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	apps, err := u.applicationRepo.GetByWorkerID(ctx, workerID)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	summary := &domain.WorkerSummary{TotalJobs: total, Applied: int64(len(apps))}
	for _, a := range apps {
		if a.Status == domain.ApplicationStatusAccepted {
			summary.Accepted++
		}
	}
	return summary, nil
}
