package model

import (
	"encoding/json"
	"strings"
	"time"
)

// UserRole is the institutional role attached to a profile.
type UserRole string

const (
	RoleSuperAdmin UserRole = "superadmin"
	RoleAdmin      UserRole = "admin"
	RoleTeacher    UserRole = "teacher"
	RoleStudent    UserRole = "student"
	RoleParent     UserRole = "parent"
)

// Gender represents the member's recorded sex.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Profile is one institutional member as stored in the `profiles` table.
// Rows are created and mutated by the backend only; this client reads them.
type Profile struct {
	ID         string     `json:"id" validate:"required"`
	UniqueID   string     `json:"unique_id" validate:"required"`
	Email      string     `json:"email" validate:"required,email"`
	Phone      *string    `json:"phone,omitempty"`
	FirstName  string     `json:"first_name" validate:"required"`
	LastName   *string    `json:"last_name,omitempty"`
	Role       UserRole   `json:"role" validate:"required,oneof=superadmin admin teacher student parent"`
	Address    *string    `json:"address,omitempty"`
	Sex        *Gender    `json:"sex,omitempty" validate:"omitempty,oneof=male female other"`
	BloodGroup *string    `json:"blood_group,omitempty"`
	AvatarURL  *string    `json:"avatar_url,omitempty"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// UnmarshalJSON treats a missing is_active as true.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type alias Profile
	aux := struct {
		*alias
		IsActive *bool `json:"is_active"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.IsActive = aux.IsActive == nil || *aux.IsActive
	return nil
}

// FullName joins first and last name.
func (p *Profile) FullName() string {
	if p.LastName == nil || strings.TrimSpace(*p.LastName) == "" {
		return p.FirstName
	}
	return p.FirstName + " " + *p.LastName
}
