package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
)

const patientColumns = `id, user_id, current_hospital_id, date_of_birth, gender, created_at, updated_at`

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) EnsureForUser(ctx context.Context, userID uuid.UUID) (*model.Patient, error) {
	// A concurrent insert for the same user loses on the unique user_id
	// and the follow-up select returns the winner's row.
	insert := `
		INSERT INTO patients (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, uuid.New(), userID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", mapErr(err))
	}
	return r.GetByUserID(ctx, userID)
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		return nil, mapErr(err)
	}
	return &patient, nil
}

func (r *patientRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE user_id = $1`
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, userID); err != nil {
		return nil, mapErr(err)
	}
	return &patient, nil
}

func (r *patientRepository) SetCurrentHospital(ctx context.Context, patientID, hospitalID uuid.UUID) error {
	query := `UPDATE patients SET current_hospital_id = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, hospitalID, time.Now(), patientID)
	if err != nil {
		return fmt.Errorf("failed to update patient admission: %w", err)
	}
	return requireRow(res)
}

func (r *patientRepository) MoveAdmission(ctx context.Context, patientID uuid.UUID, observed *uuid.UUID, hospitalID uuid.UUID) error {
	query := `
		UPDATE patients
		SET current_hospital_id = $1, updated_at = $2
		WHERE id = $3 AND current_hospital_id IS NOT DISTINCT FROM $4`

	var from interface{}
	if observed != nil {
		from = *observed
	}
	res, err := r.db.ExecContext(ctx, query, hospitalID, time.Now(), patientID, from)
	if err != nil {
		return fmt.Errorf("failed to move patient admission: %w", err)
	}
	if err := requireRow(res); err != nil {
		if err == repository.ErrNotFound {
			return repository.ErrConditionFailed
		}
		return err
	}
	return nil
}

func (r *patientRepository) Admit(ctx context.Context, patientID, hospitalID uuid.UUID) (*model.Patient, error) {
	query := `
		UPDATE patients
		SET current_hospital_id = $1, updated_at = $2
		WHERE id = $3 AND (current_hospital_id IS NULL OR current_hospital_id = $1)
		RETURNING ` + patientColumns

	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, query, hospitalID, time.Now(), patientID)
	if err != nil {
		if mapErr(err) == repository.ErrNotFound {
			return nil, repository.ErrConditionFailed
		}
		return nil, fmt.Errorf("failed to admit patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*model.PatientProfile, error) {
	query := `
		SELECT p.id, p.user_id, p.current_hospital_id, p.date_of_birth, p.gender,
			p.created_at, p.updated_at, u.full_name, u.email
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.current_hospital_id = $1
		ORDER BY u.full_name
	`
	var patients []*model.PatientProfile
	if err := r.db.SelectContext(ctx, &patients, query, hospitalID); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
