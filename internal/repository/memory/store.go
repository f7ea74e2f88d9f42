// Package memory is an in-process store with the same write semantics as the
// Postgres repositories. It backs STORE_DRIVER=memory and the usecase tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"shramsaathi-backend/internal/domain"
)

// Store holds every table behind one lock so cross-table checks are atomic.
type Store struct {
	mu sync.RWMutex

	nextID   int64
	jobs     map[int64]domain.Job
	apps     map[int64]domain.Application
	profiles map[int64]domain.Profile
	chats    []domain.ChatMessage

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs:     make(map[int64]domain.Job),
		apps:     make(map[int64]domain.Application),
		profiles: make(map[int64]domain.Profile),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Jobs returns the job repository view of the store.
func (s *Store) Jobs() domain.JobRepository { return &jobRepo{s} }

// Applications returns the application repository view of the store.
func (s *Store) Applications() domain.ApplicationRepository { return &applicationRepo{s} }

// Profiles returns the profile repository view of the store.
func (s *Store) Profiles() domain.ProfileRepository { return &profileRepo{s} }

// Chats returns the chat repository view of the store.
func (s *Store) Chats() domain.ChatRepository { return &chatRepo{s} }

// Ping satisfies the health check.
func (s *Store) Ping(context.Context) error { return nil }

type jobRepo struct{ s *Store }

func (r *jobRepo) Create(_ context.Context, job *domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	job.ID = r.s.id()
	job.CreatedAt = r.s.now()
	job.UpdatedAt = job.CreatedAt
	r.s.jobs[job.ID] = *job
	return nil
}

func (r *jobRepo) GetByID(_ context.Context, id int64) (*domain.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	job, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

func (r *jobRepo) Fetch(_ context.Context) ([]domain.Job, error) {
	return r.list(func(domain.Job) bool { return true }), nil
}

func (r *jobRepo) FetchByOwnerID(_ context.Context, ownerID int64) ([]domain.Job, error) {
	return r.list(func(j domain.Job) bool { return j.OwnerID == ownerID }), nil
}

// list returns matching jobs newest first, as the SQL queries do.
func (r *jobRepo) list(keep func(domain.Job) bool) []domain.Job {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.Job, 0, len(r.s.jobs))
	for _, j := range r.s.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID > out[k].ID })
	return out
}

func (r *jobRepo) Count(_ context.Context) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.jobs)), nil
}

func (r *jobRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.jobs, id)
	return nil
}
