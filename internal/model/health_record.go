package model

import (
	"time"

	"github.com/google/uuid"
)

type HealthRecord struct {
	ID                     uuid.UUID `json:"id" db:"id"`
	PatientID              uuid.UUID `json:"patient_id" db:"patient_id"`
	BloodPressureSystolic  *int      `json:"blood_pressure_systolic,omitempty" db:"blood_pressure_systolic"`
	BloodPressureDiastolic *int      `json:"blood_pressure_diastolic,omitempty" db:"blood_pressure_diastolic"`
	HeartRate              *int      `json:"heart_rate,omitempty" db:"heart_rate"`
	SugarLevel             *float64  `json:"sugar_level,omitempty" db:"sugar_level"`
	RecordedAt             time.Time `json:"recorded_at" db:"recorded_at"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

// HasVitals reports whether at least one measurement is present.
func (r *HealthRecord) HasVitals() bool {
	return r.BloodPressureSystolic != nil || r.BloodPressureDiastolic != nil ||
		r.HeartRate != nil || r.SugarLevel != nil
}

type CreateHealthRecordRequest struct {
	BloodPressureSystolic  *int       `json:"blood_pressure_systolic" binding:"omitempty,min=0,max=300"`
	BloodPressureDiastolic *int       `json:"blood_pressure_diastolic" binding:"omitempty,min=0,max=200"`
	HeartRate              *int       `json:"heart_rate" binding:"omitempty,min=0,max=300"`
	SugarLevel             *float64   `json:"sugar_level" binding:"omitempty,min=0,max=1000"`
	RecordedAt             *time.Time `json:"recorded_at"`
}
