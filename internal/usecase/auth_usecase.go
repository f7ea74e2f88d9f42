package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/audit"
	"shramsaathi-backend/pkg/logger"
	"shramsaathi-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

type authUsecase struct {
	profileRepo domain.ProfileRepository
	tokens      domain.TokenIssuer
	validate    *validator.Validate
	audit       *audit.Logger
	guard       domain.LoginGuard
}

// NewAuthUsecase creates the login usecase. auditLog and guard may be nil.
func NewAuthUsecase(profileRepo domain.ProfileRepository, tokens domain.TokenIssuer, validate *validator.Validate, auditLog *audit.Logger, guard domain.LoginGuard) domain.AuthUsecase {
	return &authUsecase{profileRepo: profileRepo, tokens: tokens, validate: validate, audit: auditLog, guard: guard}
}

const (
	invalidCredentials = "Invalid phone number or password"
	tooManyAttempts    = "Too many failed login attempts. Please try again later."
)

// Login checks the phone/password pair and issues a session token
func (u *authUsecase) Login(ctx context.Context, in domain.LoginInput) (*domain.LoginResult, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if err := u.validate.Struct(in); err != nil {
		return nil, apperror.BadRequest(validation.Message(err))
	}

	if u.guard != nil {
		blocked, err := u.guard.Blocked(ctx, in.Phone)
		if err != nil {
			// fail open: the lockout store is advisory
			logger.Log.Warn("Login lockout check failed", "error", err)
		}
		if blocked {
			u.audit.LoginFailed(ctx, in.Phone, "", "", "locked")
			return nil, apperror.New(http.StatusTooManyRequests, tooManyAttempts, nil)
		}
	}

	p, err := u.profileRepo.GetByPhone(ctx, in.Phone)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, u.failed(ctx, in.Phone, "unknown_phone")
		}
		return nil, apperror.Internal(err)
	}
	if p.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(in.Password)) != nil {
		return nil, u.failed(ctx, in.Phone, "bad_password")
	}
	if u.guard != nil {
		if err := u.guard.Reset(ctx, in.Phone); err != nil {
			logger.Log.Warn("Login lockout reset failed", "error", err)
		}
	}

	token, err := u.tokens.Issue(domain.Claims{UserID: p.ID, Phone: p.Phone, Role: p.Role})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	u.audit.LoginSucceeded(ctx, p.ID, "", "")
	return &domain.LoginResult{Token: token, Profile: p}, nil
}

func (u *authUsecase) failed(ctx context.Context, phone, reason string) error {
	u.audit.LoginFailed(ctx, phone, "", "", reason)
	if u.guard == nil {
		return apperror.Unauthorized(invalidCredentials)
	}
	blocked, err := u.guard.Failed(ctx, phone)
	if err != nil {
		logger.Log.Warn("Login lockout update failed", "error", err)
	}
	if blocked {
		return apperror.New(http.StatusTooManyRequests, tooManyAttempts, nil)
	}
	return apperror.Unauthorized(invalidCredentials)
}

func (u *authUsecase) CurrentUser(ctx context.Context, id int64) (*domain.Profile, error) {
	p, err := u.profileRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.Unauthorized("User not found")
		}
		return nil, apperror.Internal(err)
	}
	return p, nil
}
