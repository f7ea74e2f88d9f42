package memory

import (
	"context"
	"sort"

	"shramsaathi-backend/internal/domain"
)

type chatRepo struct{ s *Store }

func (r *chatRepo) Create(_ context.Context, msg *domain.ChatMessage) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if msg.ClientMessageID != "" {
		for _, m := range r.s.chats {
			if m.ApplicationID == msg.ApplicationID && m.ClientMessageID == msg.ClientMessageID {
				*msg = m
				return false, nil
			}
		}
	}

	msg.ID = r.s.id()
	if msg.SentAt.IsZero() {
		msg.SentAt = r.s.now()
	}
	r.s.chats = append(r.s.chats, *msg)
	return true, nil
}

func (r *chatRepo) ListByApplication(_ context.Context, applicationID int64) ([]domain.ChatMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]domain.ChatMessage, 0)
	for _, m := range r.s.chats {
		if m.ApplicationID == applicationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		if !out[i].SentAt.Equal(out[k].SentAt) {
			return out[i].SentAt.Before(out[k].SentAt)
		}
		return out[i].ID < out[k].ID
	})
	return out, nil
}
