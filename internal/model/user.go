package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RoleHospital Role = "hospital"
	RoleAdmin    Role = "admin"
)

// User is a row of the identity directory. HospitalID is only set for
// doctors and names the employing hospital user.
type User struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Role       Role       `json:"role" db:"role"`
	FullName   *string    `json:"full_name,omitempty" db:"full_name"`
	Email      string     `json:"email" db:"email"`
	Phone      *string    `json:"phone,omitempty" db:"phone"`
	HospitalID *uuid.UUID `json:"hospital_id,omitempty" db:"hospital_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// DisplayName returns the full name, or the email when no name is set.
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Email
}

// Hospital is the directory entry shown when picking a transfer destination.
type Hospital struct {
	ID       uuid.UUID `json:"id" db:"id"`
	FullName *string   `json:"full_name,omitempty" db:"full_name"`
	Email    string    `json:"email" db:"email"`
}
