package memory

import (
	"context"
	"sort"

	"shramsaathi-backend/internal/domain"
)

type applicationRepo struct{ s *Store }

func (r *applicationRepo) Create(_ context.Context, app *domain.Application) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// unique (job_id, worker_id)
	for _, existing := range r.s.apps {
		if existing.JobID == app.JobID && existing.WorkerID == app.WorkerID {
			return domain.DuplicateApplicationError()
		}
	}

	app.ID = r.s.id()
	if app.Status == "" {
		app.Status = domain.ApplicationStatusPending
	}
	app.AppliedAt = r.s.now()
	app.UpdatedAt = app.AppliedAt
	r.s.apps[app.ID] = *app
	return nil
}

func (r *applicationRepo) GetByID(_ context.Context, id int64) (*domain.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	app, ok := r.s.apps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &app, nil
}

func (r *applicationRepo) GetByJobID(_ context.Context, jobID int64) ([]domain.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.Application, 0)
	for _, a := range r.s.apps {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// GetByWorkerID joins the job fields the worker dashboard shows. Applications
// whose job was deleted are still returned with the job fields left nil.
func (r *applicationRepo) GetByWorkerID(_ context.Context, workerID int64) ([]domain.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.Application, 0)
	for _, a := range r.s.apps {
		if a.WorkerID != workerID {
			continue
		}
		if job, ok := r.s.jobs[a.JobID]; ok {
			title, location, pay, duration := job.Title, job.Location, job.Pay, job.Duration
			a.JobTitle, a.Location, a.Pay, a.Duration = &title, &location, &pay, &duration
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return out, nil
}

func (r *applicationRepo) CheckExists(_ context.Context, jobID, workerID int64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.apps {
		if a.JobID == jobID && a.WorkerID == workerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *applicationRepo) CountByOwnerID(_ context.Context, ownerID int64) (map[int64]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := make(map[int64]int64)
	for _, j := range r.s.jobs {
		if j.OwnerID == ownerID {
			counts[j.ID] = 0
		}
	}
	for _, a := range r.s.apps {
		if _, ok := counts[a.JobID]; ok {
			counts[a.JobID]++
		}
	}
	return counts, nil
}

func (r *applicationRepo) HasAcceptedWorker(_ context.Context, ownerID, workerID int64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.apps {
		if a.WorkerID != workerID || a.Status != domain.ApplicationStatusAccepted {
			continue
		}
		if job, ok := r.s.jobs[a.JobID]; ok && job.OwnerID == ownerID {
			return true, nil
		}
	}
	return false, nil
}

// Accept checks and writes under the store lock, so of two racing acceptances
// for one job exactly one commits.
func (r *applicationRepo) Accept(_ context.Context, id int64, supersede bool) (*domain.AcceptOutcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	target, ok := r.s.apps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if target.Status == domain.ApplicationStatusAccepted {
		return nil, domain.AlreadyAcceptedError(&target)
	}

	var current *domain.Application
	for _, a := range r.s.apps {
		if a.JobID == target.JobID && a.ID != id && a.Status == domain.ApplicationStatusAccepted {
			a := a
			current = &a
			break
		}
	}

	now := r.s.now()
	out := &domain.AcceptOutcome{}
	if current != nil {
		if !supersede {
			return nil, domain.ConflictingAcceptanceError(current)
		}
		current.Status = domain.ApplicationStatusRejected
		current.UpdatedAt = now
		r.s.apps[current.ID] = *current
		out.Superseded = current
	}

	target.Status = domain.ApplicationStatusAccepted
	target.UpdatedAt = now
	r.s.apps[id] = target
	out.Application = &target
	return out, nil
}

func (r *applicationRepo) Reject(_ context.Context, id int64) (*domain.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	app, ok := r.s.apps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if app.Status == domain.ApplicationStatusAccepted {
		return nil, domain.CannotRejectAcceptedError(&app)
	}
	if app.Status != domain.ApplicationStatusRejected {
		app.Status = domain.ApplicationStatusRejected
		app.UpdatedAt = r.s.now()
		r.s.apps[id] = app
	}
	return &app, nil
}

func (r *applicationRepo) RejectIfPending(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	app, ok := r.s.apps[id]
	if !ok || app.Status != domain.ApplicationStatusPending {
		return false, nil
	}
	app.Status = domain.ApplicationStatusRejected
	app.UpdatedAt = r.s.now()
	r.s.apps[id] = app
	return true, nil
}
