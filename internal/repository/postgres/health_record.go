package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
)

const healthRecordColumns = `id, patient_id, blood_pressure_systolic, blood_pressure_diastolic,
	heart_rate, sugar_level, recorded_at, created_at`

type healthRecordRepository struct {
	BaseRepository
}

func NewHealthRecordRepository(base BaseRepository) repository.HealthRecordRepository {
	return &healthRecordRepository{base}
}

func (r *healthRecordRepository) Create(ctx context.Context, rec *model.HealthRecord) error {
	query := `
		INSERT INTO health_records (
			id, patient_id, blood_pressure_systolic, blood_pressure_diastolic,
			heart_rate, sugar_level, recorded_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.PatientID,
		rec.BloodPressureSystolic,
		rec.BloodPressureDiastolic,
		rec.HeartRate,
		rec.SugarLevel,
		rec.RecordedAt,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create health record: %w", err)
	}
	return nil
}

func (r *healthRecordRepository) Get(ctx context.Context, id uuid.UUID) (*model.HealthRecord, error) {
	query := `SELECT ` + healthRecordColumns + ` FROM health_records WHERE id = $1`
	var rec model.HealthRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

func (r *healthRecordRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.HealthRecord, error) {
	query := `SELECT ` + healthRecordColumns + ` FROM health_records WHERE patient_id = $1 ORDER BY recorded_at DESC`
	var records []*model.HealthRecord
	if err := r.db.SelectContext(ctx, &records, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list health records: %w", err)
	}
	return records, nil
}

func (r *healthRecordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM health_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete health record: %w", err)
	}
	return requireRow(res)
}
