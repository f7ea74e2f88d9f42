package postgres

import (
	"context"
	"errors"
	"time"

	"shramsaathi-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type chatRepo struct {
	db *pgxpool.Pool
}

func NewChatRepository(db *pgxpool.Pool) domain.ChatRepository {
	return &chatRepo{db: db}
}

const chatColumns = `id, application_id, sender_id, receiver_id, message, COALESCE(client_message_id, ''), sent_at`

func scanChat(row pgx.Row, m *domain.ChatMessage) error {
	return row.Scan(&m.ID, &m.ApplicationID, &m.SenderID, &m.ReceiverID, &m.Message, &m.ClientMessageID, &m.SentAt)
}

// Create inserts the message. A repeated client message id hits the partial
// unique index and the stored row is returned instead.
func (r *chatRepo) Create(ctx context.Context, msg *domain.ChatMessage) (bool, error) {
	query := `
		INSERT INTO chat_messages (application_id, sender_id, receiver_id, message, client_message_id, sent_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (application_id, client_message_id) WHERE client_message_id IS NOT NULL DO NOTHING
		RETURNING id`

	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx, query,
		msg.ApplicationID, msg.SenderID, msg.ReceiverID, msg.Message, msg.ClientMessageID, msg.SentAt,
	).Scan(&msg.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) && uniqueConstraint(err) != constraintChatClientID {
		return false, err
	}

	existing := `SELECT ` + chatColumns + ` FROM chat_messages WHERE application_id = $1 AND client_message_id = $2`
	if err := scanChat(r.db.QueryRow(ctx, existing, msg.ApplicationID, msg.ClientMessageID), msg); err != nil {
		return false, notFound(err)
	}
	return false, nil
}

func (r *chatRepo) ListByApplication(ctx context.Context, applicationID int64) ([]domain.ChatMessage, error) {
	query := `SELECT ` + chatColumns + ` FROM chat_messages WHERE application_id = $1 ORDER BY sent_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var m domain.ChatMessage
		if err := scanChat(rows, &m); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
