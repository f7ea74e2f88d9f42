package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type profileRepo struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) domain.ProfileRepository {
	return &profileRepo{db: db}
}

const profileColumns = `id, name, phone, role, address, work_type, business_name, district, mandal,
	area, colony, state, pincode, age, experience_years, attributes, registered, password_hash, created_at, updated_at`

func scanProfile(row pgx.Row, p *domain.Profile) error {
	var attributes []byte
	if err := row.Scan(
		&p.ID, &p.Name, &p.Phone, &p.Role, &p.Address, &p.WorkType, &p.BusinessName, &p.District, &p.Mandal,
		&p.Area, &p.Colony, &p.State, &p.Pincode, &p.Age, &p.ExperienceYears, &attributes,
		&p.Registered, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return err
	}
	if len(attributes) > 0 {
		dec := json.NewDecoder(bytes.NewReader(attributes))
		// keep numbers as json.Number so the filter sees what was stored
		dec.UseNumber()
		if err := dec.Decode(&p.Attributes); err != nil {
			return err
		}
	}
	return nil
}

func marshalAttributes(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(attrs)
}

func (r *profileRepo) Create(ctx context.Context, p *domain.Profile) error {
	attributes, err := marshalAttributes(p.Attributes)
	if err != nil {
		return apperror.BadRequest("Invalid profile attributes")
	}

	query := `INSERT INTO users (name, phone, role, address, work_type, business_name, district, mandal,
			area, colony, state, pincode, age, experience_years, attributes, registered, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	err = r.db.QueryRow(ctx, query,
		p.Name, p.Phone, p.Role, p.Address, p.WorkType, p.BusinessName, p.District, p.Mandal,
		p.Area, p.Colony, p.State, p.Pincode, p.Age, p.ExperienceYears, attributes, p.Registered, p.PasswordHash,
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if uniqueConstraint(err) == constraintUsersPhone {
		return apperror.Conflict("An account with this phone number already exists")
	}
	return err
}

func (r *profileRepo) Update(ctx context.Context, p *domain.Profile) error {
	attributes, err := marshalAttributes(p.Attributes)
	if err != nil {
		return apperror.BadRequest("Invalid profile attributes")
	}

	query := `UPDATE users SET
		name = $2, phone = $3, address = $4, work_type = $5, business_name = $6, district = $7, mandal = $8,
		area = $9, colony = $10, state = $11, pincode = $12, age = $13, experience_years = $14,
		attributes = $15, password_hash = $16, updated_at = $17
	WHERE id = $1`

	p.UpdatedAt = time.Now().UTC()
	result, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.Phone, p.Address, p.WorkType, p.BusinessName, p.District, p.Mandal,
		p.Area, p.Colony, p.State, p.Pincode, p.Age, p.ExperienceYears,
		attributes, p.PasswordHash, p.UpdatedAt,
	)
	if err != nil {
		if uniqueConstraint(err) == constraintUsersPhone {
			return apperror.Conflict("An account with this phone number already exists")
		}
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *profileRepo) GetByID(ctx context.Context, id int64) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE id = $1`
	var p domain.Profile
	if err := scanProfile(r.db.QueryRow(ctx, query, id), &p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *profileRepo) GetByPhone(ctx context.Context, phone string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE phone = $1`
	var p domain.Profile
	if err := scanProfile(r.db.QueryRow(ctx, query, phone), &p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *profileRepo) List(ctx context.Context, role string) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE ($1 = '' OR role = $1) ORDER BY id`
	return r.list(ctx, query, role)
}

// GetByIDs loads many profiles in one round trip.
func (r *profileRepo) GetByIDs(ctx context.Context, ids []int64) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return []domain.Profile{}, nil
	}
	query := `SELECT ` + profileColumns + ` FROM users WHERE id = ANY($1) ORDER BY id`
	return r.list(ctx, query, pq.Array(ids))
}

func (r *profileRepo) list(ctx context.Context, query string, args ...any) ([]domain.Profile, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]domain.Profile, 0)
	for rows.Next() {
		var p domain.Profile
		if err := scanProfile(rows, &p); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
