package domain

import (
	"context"
	"time"
)

// ChatMessage is one persisted message of an application's conversation.
type ChatMessage struct {
	ID              int64     `json:"id"`
	ApplicationID   int64     `json:"applicationId"`
	SenderID        int64     `json:"senderId"`
	ReceiverID      *int64    `json:"receiverId,omitempty"`
	Message         string    `json:"message"`
	ClientMessageID string    `json:"clientMessageId,omitempty"` // idempotency key assigned by the sender
	SentAt          time.Time `json:"sentAt"`
}

type SendMessageInput struct {
	ApplicationID   int64  `json:"applicationId" validate:"required,gt=0"`
	SenderID        int64  `json:"senderId" validate:"required,gt=0"`
	ReceiverID      *int64 `json:"receiverId"`
	Message         string `json:"message" validate:"required,max=2000"`
	ClientMessageID string `json:"clientMessageId" validate:"omitempty,uuid"`
}

// LocationPing is a worker position relayed over the realtime channel.
type LocationPing struct {
	WorkerID  int64   `json:"workerId"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp int64   `json:"timestamp"` // unix millis
}

type ChatRepository interface {
	// Create stores msg unless a message with the same ClientMessageID exists for the
	// application, in which case msg is filled from the stored row and created is false.
	Create(ctx context.Context, msg *ChatMessage) (created bool, err error)
	ListByApplication(ctx context.Context, applicationID int64) ([]ChatMessage, error)
}

// Conversation names the two parties of an accepted application.
type Conversation struct {
	Application *Application
	OwnerID     int64
	WorkerID    int64
}

// Counterpart returns the other party's id.
func (c *Conversation) Counterpart(userID int64) int64 {
	if userID == c.OwnerID {
		return c.WorkerID
	}
	return c.OwnerID
}

type ChatUsecase interface {
	SendMessage(ctx context.Context, actorID int64, in SendMessageInput) (*ChatMessage, error)
	GetHistory(ctx context.Context, actorID, applicationID int64) ([]ChatMessage, error)
	Conversation(ctx context.Context, actorID, applicationID int64) (*Conversation, error)
	CanTrack(ctx context.Context, actorID int64, role string, workerID int64) (bool, error)
}
