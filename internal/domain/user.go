package domain

import (
	"context"
	"time"

	"shramsaathi-backend/internal/filter"
)

// Profile roles
const (
	RoleWorker = "worker"
	RoleOwner  = "owner"
)

// Profile is a worker or owner record in the profile directory.
type Profile struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Phone           string         `json:"phone"`
	Role            string         `json:"role"`
	Address         string         `json:"address"`
	WorkType        string         `json:"workType,omitempty"`
	BusinessName    *string        `json:"businessName,omitempty"`
	District        string         `json:"district,omitempty"`
	Mandal          string         `json:"mandal,omitempty"`
	Area            *string        `json:"area,omitempty"`
	Colony          *string        `json:"colony,omitempty"`
	State           *string        `json:"state,omitempty"`
	Pincode         *string        `json:"pincode,omitempty"`
	Age             *int           `json:"age,omitempty"`
	ExperienceYears *float64       `json:"experienceYears,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"` // free-form registration fields
	Registered      bool           `json:"registered"`
	PasswordHash    string         `json:"-"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Record flattens the profile for the filter evaluator. Typed fields win over
// attributes carrying the same key.
func (p *Profile) Record() filter.Record {
	r := make(filter.Record, len(p.Attributes)+4)
	for k, v := range p.Attributes {
		r[k] = v
	}
	if p.Age != nil {
		r["age"] = *p.Age
	}
	if p.ExperienceYears != nil {
		r["experienceYears"] = *p.ExperienceYears
	}
	if p.Pincode != nil && *p.Pincode != "" {
		r["pincode"] = *p.Pincode
	}
	return r
}

// ProfileInput is the body of POST /users.
type ProfileInput struct {
	Name            string         `json:"name" validate:"required,valid_name"`
	Phone           string         `json:"phone" validate:"required,valid_phone"`
	Role            string         `json:"role" validate:"omitempty,oneof=worker owner"`
	Address         string         `json:"address" validate:"max=255"`
	WorkType        string         `json:"workType" validate:"max=80"`
	BusinessName    *string        `json:"businessName" validate:"omitempty,max=120"`
	District        string         `json:"district" validate:"max=80"`
	Mandal          string         `json:"mandal" validate:"max=80"`
	Area            *string        `json:"area" validate:"omitempty,max=120"`
	Colony          *string        `json:"colony" validate:"omitempty,max=120"`
	State           *string        `json:"state" validate:"omitempty,max=80"`
	Pincode         *string        `json:"pincode" validate:"omitempty,valid_pincode"`
	Age             *int           `json:"age" validate:"omitempty,gte=0,lte=120"`
	ExperienceYears *float64       `json:"experienceYears" validate:"omitempty,gte=0,lte=80"`
	Attributes      map[string]any `json:"attributes"`
	Password        string         `json:"password" validate:"omitempty,min=6,max=72"`
}

// UpsertResult carries the stored profile and, for new profiles, a session token.
type UpsertResult struct {
	Profile *Profile `json:"user"`
	Created bool     `json:"created"`
	Token   string   `json:"token,omitempty"`
}

// ProfileSearch is the result of a filtered worker listing.
type ProfileSearch struct {
	Profiles []Profile          `json:"users"`
	Excluded []ProfileExclusion `json:"excluded,omitempty"`
}

// ProfileExclusion explains why a profile was left out of a listing.
type ProfileExclusion struct {
	ProfileID int64  `json:"userId"`
	Field     string `json:"field,omitempty"`
	Reason    string `json:"reason"`
}

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	Update(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id int64) (*Profile, error)
	GetByPhone(ctx context.Context, phone string) (*Profile, error)
	List(ctx context.Context, role string) ([]Profile, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Profile, error)
}

type ProfileUsecase interface {
	// Upsert creates the profile when actorID is zero, else updates the actor's own profile.
	Upsert(ctx context.Context, actorID int64, in ProfileInput) (*UpsertResult, error)
	GetProfile(ctx context.Context, id int64) (*Profile, error)
	Search(ctx context.Context, role string, c filter.Criteria) (*ProfileSearch, error)
}

// Claims is the identity carried by a session token.
type Claims struct {
	UserID int64
	Phone  string
	Role   string
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Issue(c Claims) (string, error)
	Verify(token string) (*Claims, error)
}

// LoginGuard throttles repeated failed logins per phone number.
type LoginGuard interface {
	Blocked(ctx context.Context, phone string) (bool, error)
	Failed(ctx context.Context, phone string) (blocked bool, err error)
	Reset(ctx context.Context, phone string) error
}

type LoginInput struct {
	Phone    string `json:"phone" validate:"required,valid_phone"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token   string   `json:"token"`
	Profile *Profile `json:"user"`
}

type AuthUsecase interface {
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	CurrentUser(ctx context.Context, id int64) (*Profile, error)
}
