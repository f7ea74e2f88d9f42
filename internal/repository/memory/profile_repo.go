package memory

import (
	"context"
	"sort"
	"strings"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"
)

type profileRepo struct{ s *Store }

func (r *profileRepo) Create(_ context.Context, p *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.profiles {
		if existing.Phone == p.Phone {
			return apperror.Conflict("An account with this phone number already exists")
		}
	}
	p.ID = r.s.id()
	p.CreatedAt = r.s.now()
	p.UpdatedAt = p.CreatedAt
	r.s.profiles[p.ID] = *p
	return nil
}

func (r *profileRepo) Update(_ context.Context, p *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.profiles[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = r.s.now()
	r.s.profiles[p.ID] = *p
	return nil
}

func (r *profileRepo) GetByID(_ context.Context, id int64) (*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *profileRepo) GetByPhone(_ context.Context, phone string) (*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.profiles {
		if p.Phone == phone {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *profileRepo) List(_ context.Context, role string) ([]domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.Profile, 0, len(r.s.profiles))
	for _, p := range r.s.profiles {
		if role == "" || strings.EqualFold(p.Role, role) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *profileRepo) GetByIDs(_ context.Context, ids []int64) ([]domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
