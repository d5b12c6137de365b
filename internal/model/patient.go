package model

import (
	"time"

	"github.com/google/uuid"
)

// Patient holds the admission state of one patient user.
// CurrentHospitalID is the only input to health data access decisions.
type Patient struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	UserID            uuid.UUID  `json:"user_id" db:"user_id"`
	CurrentHospitalID *uuid.UUID `json:"current_hospital_id,omitempty" db:"current_hospital_id"`
	DateOfBirth       *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Gender            *string    `json:"gender,omitempty" db:"gender"`
	Timestamps
}

// IsAdmittedAt reports whether hospitalID currently admits the patient.
func (p *Patient) IsAdmittedAt(hospitalID uuid.UUID) bool {
	return p.CurrentHospitalID != nil && *p.CurrentHospitalID == hospitalID
}

// PatientProfile is a patient joined with its user row for listings.
type PatientProfile struct {
	Patient
	FullName *string `json:"full_name,omitempty" db:"full_name"`
	Email    string  `json:"email" db:"email"`
}

// AdmitPatientRequest identifies the patient either by id or by email.
type AdmitPatientRequest struct {
	PatientID string `json:"patient_id" binding:"required_without=Email,omitempty,uuid"`
	Email     string `json:"email" binding:"required_without=PatientID,omitempty,email"`
}
