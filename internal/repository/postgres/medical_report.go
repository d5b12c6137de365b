package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
)

const reportColumns = `id, patient_id, report_name, file_path, report_type, uploaded_by, uploaded_at`

type medicalReportRepository struct {
	BaseRepository
}

func NewMedicalReportRepository(base BaseRepository) repository.MedicalReportRepository {
	return &medicalReportRepository{base}
}

func (r *medicalReportRepository) Create(ctx context.Context, rep *model.MedicalReport) error {
	query := `
		INSERT INTO medical_reports (id, patient_id, report_name, file_path, report_type, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, query,
		rep.ID,
		rep.PatientID,
		rep.ReportName,
		rep.FilePath,
		rep.ReportType,
		rep.UploadedBy,
		rep.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create medical report: %w", err)
	}
	return nil
}

func (r *medicalReportRepository) Get(ctx context.Context, id uuid.UUID) (*model.MedicalReport, error) {
	query := `SELECT ` + reportColumns + ` FROM medical_reports WHERE id = $1`
	var rep model.MedicalReport
	if err := r.db.GetContext(ctx, &rep, query, id); err != nil {
		return nil, mapErr(err)
	}
	return &rep, nil
}

func (r *medicalReportRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalReport, error) {
	query := `SELECT ` + reportColumns + ` FROM medical_reports WHERE patient_id = $1 ORDER BY uploaded_at DESC`
	var reports []*model.MedicalReport
	if err := r.db.SelectContext(ctx, &reports, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list medical reports: %w", err)
	}
	return reports, nil
}

func (r *medicalReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM medical_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete medical report: %w", err)
	}
	return requireRow(res)
}
