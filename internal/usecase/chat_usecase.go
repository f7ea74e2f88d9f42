package usecase

import (
	"context"
	"errors"
	"strings"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/metrics"
	"shramsaathi-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type chatUsecase struct {
	chatRepo        domain.ChatRepository
	applicationRepo domain.ApplicationRepository
	jobRepo         domain.JobRepository
	validate        *validator.Validate
	metrics         *metrics.Collector
}

func NewChatUsecase(
	chatRepo domain.ChatRepository,
	appRepo domain.ApplicationRepository,
	jobRepo domain.JobRepository,
	validate *validator.Validate,
	collector *metrics.Collector,
) domain.ChatUsecase {
	return &chatUsecase{
		chatRepo:        chatRepo,
		applicationRepo: appRepo,
		jobRepo:         jobRepo,
		validate:        validate,
		metrics:         collector,
	}
}

// Conversation resolves the parties of an accepted application and checks the
// actor is one of them.
func (u *chatUsecase) Conversation(ctx context.Context, actorID, applicationID int64) (*domain.Conversation, error) {
	app, err := u.applicationRepo.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Application not found")
		}
		return nil, apperror.Internal(err)
	}
	job, err := u.jobRepo.GetByID(ctx, app.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Job not found")
		}
		return nil, apperror.Internal(err)
	}

	conv := &domain.Conversation{Application: app, OwnerID: job.OwnerID, WorkerID: app.WorkerID}
	if actorID != conv.OwnerID && actorID != conv.WorkerID {
		return nil, apperror.Forbidden("You are not part of this conversation")
	}
	if app.Status != domain.ApplicationStatusAccepted {
		return nil, apperror.BadRequest("Chat opens once the application is accepted")
	}
	return conv, nil
}

// SendMessage persists a message. Resending the same client message id returns
// the stored copy.
func (u *chatUsecase) SendMessage(ctx context.Context, actorID int64, in domain.SendMessageInput) (*domain.ChatMessage, error) {
	in.Message = strings.TrimSpace(in.Message)
	if err := u.validate.Struct(in); err != nil {
		return nil, apperror.BadRequest(validation.Message(err))
	}
	if in.SenderID != actorID {
		return nil, apperror.Forbidden("You can only send messages as yourself")
	}

	conv, err := u.Conversation(ctx, actorID, in.ApplicationID)
	if err != nil {
		return nil, err
	}

	receiver := conv.Counterpart(actorID)
	if in.ReceiverID != nil && *in.ReceiverID != receiver {
		return nil, apperror.BadRequest("Receiver is not part of this conversation")
	}

	msg := &domain.ChatMessage{
		ApplicationID:   in.ApplicationID,
		SenderID:        actorID,
		ReceiverID:      &receiver,
		Message:         in.Message,
		ClientMessageID: in.ClientMessageID,
	}
	created, err := u.chatRepo.Create(ctx, msg)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	if created {
		u.metrics.RecordChatPersisted()
	}
	return msg, nil
}

// GetHistory returns the conversation ordered by sent time, oldest first
func (u *chatUsecase) GetHistory(ctx context.Context, actorID, applicationID int64) ([]domain.ChatMessage, error) {
	if _, err := u.Conversation(ctx, actorID, applicationID); err != nil {
		return nil, err
	}
	msgs, err := u.chatRepo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return msgs, nil
}

// CanTrack reports whether the actor may follow a worker's location: the worker
// themself, or an owner who accepted that worker on one of their jobs.
func (u *chatUsecase) CanTrack(ctx context.Context, actorID int64, role string, workerID int64) (bool, error) {
	if actorID == workerID {
		return true, nil
	}
	if role != domain.RoleOwner {
		return false, nil
	}
	return u.applicationRepo.HasAcceptedWorker(ctx, actorID, workerID)
}
