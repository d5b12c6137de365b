package model

import (
	"time"

	"github.com/google/uuid"
)

// MedicalReport is the metadata of a privately stored report file.
// FilePath is never handed out; clients obtain a signed URL instead.
type MedicalReport struct {
	ID         uuid.UUID `json:"id" db:"id"`
	PatientID  uuid.UUID `json:"patient_id" db:"patient_id"`
	ReportName string    `json:"report_name" db:"report_name"`
	FilePath   string    `json:"-" db:"file_path"`
	ReportType *string   `json:"report_type,omitempty" db:"report_type"`
	UploadedBy uuid.UUID `json:"uploaded_by" db:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
