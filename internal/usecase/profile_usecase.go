package usecase

import (
	"context"
	"errors"
	"strings"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/internal/filter"
	"shramsaathi-backend/pkg/apperror"
	"shramsaathi-backend/pkg/logger"
	"shramsaathi-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

type profileUsecase struct {
	profileRepo domain.ProfileRepository
	tokens      domain.TokenIssuer
	evaluator   *filter.Evaluator
	validate    *validator.Validate
}

func NewProfileUsecase(
	profileRepo domain.ProfileRepository,
	tokens domain.TokenIssuer,
	evaluator *filter.Evaluator,
	validate *validator.Validate,
) domain.ProfileUsecase {
	return &profileUsecase{
		profileRepo: profileRepo,
		tokens:      tokens,
		evaluator:   evaluator,
		validate:    validate,
	}
}

// Upsert creates a profile for an anonymous caller, or updates the caller's own
// profile when a session is present. Role is fixed at creation.
func (u *profileUsecase) Upsert(ctx context.Context, actorID int64, in domain.ProfileInput) (*domain.UpsertResult, error) {
	if err := u.validate.Struct(in); err != nil {
		return nil, apperror.BadRequest(validation.Message(err))
	}

	if actorID == 0 {
		return u.create(ctx, in)
	}

	existing, err := u.profileRepo.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("Profile not found")
		}
		return nil, apperror.Internal(err)
	}

	apply(existing, in)
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperror.Internal(err)
		}
		existing.PasswordHash = string(hash)
	}
	if err := u.profileRepo.Update(ctx, existing); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.Persistence(err)
	}
	return &domain.UpsertResult{Profile: existing}, nil
}

func (u *profileUsecase) create(ctx context.Context, in domain.ProfileInput) (*domain.UpsertResult, error) {
	if in.Password == "" {
		return nil, apperror.BadRequest("Password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	p := &domain.Profile{
		Role:         domain.RoleWorker,
		Registered:   true,
		PasswordHash: string(hash),
	}
	if in.Role != "" {
		p.Role = in.Role
	}
	apply(p, in)

	if err := u.profileRepo.Create(ctx, p); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.Persistence(err)
	}

	token, err := u.tokens.Issue(domain.Claims{UserID: p.ID, Phone: p.Phone, Role: p.Role})
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &domain.UpsertResult{Profile: p, Created: true, Token: token}, nil
}

func apply(p *domain.Profile, in domain.ProfileInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Phone = strings.TrimSpace(in.Phone)
	p.Address = in.Address
	p.WorkType = in.WorkType
	p.BusinessName = in.BusinessName
	p.District = in.District
	p.Mandal = in.Mandal
	p.Area = in.Area
	p.Colony = in.Colony
	p.State = in.State
	p.Pincode = in.Pincode
	p.Age = in.Age
	p.ExperienceYears = in.ExperienceYears
	if in.Attributes != nil {
		p.Attributes = in.Attributes
	}
}

func (u *profileUsecase) GetProfile(ctx context.Context, id int64) (*domain.Profile, error) {
	p, err := u.profileRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, apperror.Internal(err)
	}
	return p, nil
}

// Search lists profiles of a role and runs them through the filter evaluator.
// Excluded profiles are reported with the reason so an empty listing can be
// told apart from a failed directory lookup.
func (u *profileUsecase) Search(ctx context.Context, role string, c filter.Criteria) (*domain.ProfileSearch, error) {
	profiles, err := u.profileRepo.List(ctx, role)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	records := make([]filter.Record, len(profiles))
	for i := range profiles {
		records[i] = profiles[i].Record()
	}
	included, excluded := u.evaluator.Apply(records, c)

	out := &domain.ProfileSearch{Profiles: make([]domain.Profile, 0, len(included))}
	for _, i := range included {
		out.Profiles = append(out.Profiles, profiles[i])
	}
	for _, e := range excluded {
		out.Excluded = append(out.Excluded, domain.ProfileExclusion{
			ProfileID: profiles[e.Index].ID,
			Field:     e.Field,
			Reason:    e.Reason.Error(),
		})
	}
	if len(excluded) > 0 {
		logger.Log.Debug("Profiles filtered out", "role", role, "included", len(included), "excluded", len(excluded))
	}
	return out, nil
}
