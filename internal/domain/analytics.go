package domain

import "context"

type WorkerSummary struct {
	TotalJobs int64 `json:"totalJobs"`
	Applied   int64 `json:"applied"`
	Accepted  int64 `json:"accepted"`
}

type AnalyticsUsecase interface {
	// OwnerApplicationCounts maps each of the owner's job ids to its application count.
	OwnerApplicationCounts(ctx context.Context, actorID, ownerID int64) (map[int64]int64, error)
	WorkerSummary(ctx context.Context, actorID, workerID int64) (*WorkerSummary, error)
}
