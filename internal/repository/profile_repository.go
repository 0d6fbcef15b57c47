package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oxedro/erp-client/internal/backend"
	"github.com/oxedro/erp-client/internal/model"
	"github.com/oxedro/erp-client/internal/validator"
)

// ErrUnknownColumn is returned for filters on columns the repository does not expose.
var ErrUnknownColumn = errors.New("unknown profile column")

const profileColumns = `id::text, unique_id, email, phone, first_name, last_name, role, address, sex,
	blood_group, avatar_url, is_active, created_at, updated_at`

// filterable maps filter names to SQL columns.
var filterable = map[string]string{
	"id":        "id::text",
	"unique_id": "unique_id",
	"email":     "email",
	"is_active": "is_active",
}

// ProfileRepository reads profiles straight from the backend's Postgres.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// FindOne returns the single profile matching all filters, or
// backend.ErrNotSingle when zero or several rows match.
func (r *ProfileRepository) FindOne(ctx context.Context, filters ...backend.Filter) (*model.Profile, error) {
	where, args, err := buildWhere(filters)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles`+where+` LIMIT 2`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*model.Profile
	for rows.Next() {
		p := &model.Profile{}
		if err := rows.Scan(&p.ID, &p.UniqueID, &p.Email, &p.Phone, &p.FirstName, &p.LastName, &p.Role,
			&p.Address, &p.Sex, &p.BloodGroup, &p.AvatarURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(found) != 1 {
		return nil, fmt.Errorf("%s: %w (got %d)", backend.ProfilesTable, backend.ErrNotSingle, len(found))
	}
	if err := validator.Struct(found[0]); err != nil {
		return nil, fmt.Errorf("profile %s: %w", found[0].ID, err)
	}
	return found[0], nil
}

func buildWhere(filters []backend.Filter) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filters))
	args := make([]interface{}, 0, len(filters))
	for i, f := range filters {
		col, ok := filterable[f.Column]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, f.Column)
		}
		conds = append(conds, col+` = $`+strconv.Itoa(i+1))
		args = append(args, f.Value)
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args, nil
}
