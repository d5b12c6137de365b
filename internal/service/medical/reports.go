package medical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
	"github.com/jwalitptl/carebridge/internal/service/access"
	"github.com/jwalitptl/carebridge/internal/service/audit"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/metrics"
)

const (
	ReportBucket   = "medical-reports"
	SignedURLTTL   = 3600 * time.Second
	maxReportBytes = 20 << 20
)

// ObjectStore is the private bucket holding report files.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type UploadInput struct {
	ReportName  string
	ReportType  *string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ReportService stores report files and brokers short-lived access to them.
type ReportService struct {
	repo     repository.MedicalReportRepository
	patients repository.PatientRepository
	store    ObjectStore
	auditor  *audit.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewReportService(
	repo repository.MedicalReportRepository,
	patients repository.PatientRepository,
	store ObjectStore,
	auditor *audit.Service,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *ReportService {
	return &ReportService{
		repo:     repo,
		patients: patients,
		store:    store,
		auditor:  auditor,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (s *ReportService) Upload(ctx context.Context, actor model.Actor, patientID uuid.UUID, in UploadInput) (*model.MedicalReport, error) {
	patient, err := loadPatient(ctx, s.patients, patientID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatientData(actor, patient) {
		return nil, apperrors.Forbidden("You cannot upload reports for this patient")
	}

	name := strings.TrimSpace(in.ReportName)
	if name == "" {
		return nil, apperrors.BadRequest("report_name is required", nil)
	}
	if in.Body == nil || in.FileName == "" {
		return nil, apperrors.BadRequest("file is required", nil)
	}
	if in.Size > maxReportBytes {
		return nil, apperrors.BadRequest("file exceeds the 20MB limit", nil)
	}

	now := s.now().UTC()
	key := ReportObjectKey(patient.ID, now, name, in.FileName)
	if err := s.store.Put(ctx, key, in.Body, in.Size, in.ContentType); err != nil {
		return nil, apperrors.Storage("Failed to upload file", err)
	}

	report := &model.MedicalReport{
		ID:         uuid.New(),
		PatientID:  patient.ID,
		ReportName: name,
		FilePath:   key,
		ReportType: in.ReportType,
		UploadedBy: actor.ActorID(),
		UploadedAt: now,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Error(delErr, "failed to remove orphaned report object", "key", key)
		}
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	s.auditor.Log(ctx, actor.ActorID(), model.AuditActionCreate, model.AuditEntityMedicalReport, report.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"patient_id": patient.ID, "report_name": name},
	})
	return report, nil
}

func (s *ReportService) List(ctx context.Context, actor model.Actor, patientID uuid.UUID) ([]*model.MedicalReport, error) {
	patient, err := loadPatient(ctx, s.patients, patientID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatientData(actor, patient) {
		return nil, apperrors.Forbidden("You do not have access to this patient's reports")
	}

	reports, err := s.repo.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	if reports == nil {
		reports = []*model.MedicalReport{}
	}
	return reports, nil
}

// SignedURL mints a URL valid for SignedURLTTL. Access is evaluated on every
// call, so a patient transferred away from the caller's hospital stops
// yielding new URLs immediately.
func (s *ReportService) SignedURL(ctx context.Context, actor model.Actor, reportID uuid.UUID) (u *model.SignedURL, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = apperrors.CodeOf(err).String()
		}
		s.metrics.SignedURLs.WithLabelValues(result).Inc()
	}()

	report, patient, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessPatientData(actor, patient) {
		return nil, apperrors.Forbidden("You do not have access to this report")
	}

	key := CleanObjectPath(report.FilePath)
	expires := s.now().UTC().Add(SignedURLTTL)
	url, err := s.store.PresignGet(ctx, key, SignedURLTTL)
	if err != nil {
		s.logger.Error(err, "failed to sign report url", "report_id", report.ID.String(), "key", key)
		return nil, apperrors.Storage("Failed to generate signed URL", err)
	}

	s.auditor.Log(ctx, actor.ActorID(), model.AuditActionSignURL, model.AuditEntityMedicalReport, report.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"patient_id": patient.ID, "expires_at": expires},
	})
	return &model.SignedURL{URL: url, ExpiresAt: expires}, nil
}

func (s *ReportService) Delete(ctx context.Context, actor model.Actor, reportID uuid.UUID) error {
	report, patient, err := s.load(ctx, reportID)
	if err != nil {
		return err
	}
	if !access.CanRemovePatientData(actor, patient) {
		return apperrors.Forbidden("You cannot delete this report")
	}

	if err := s.store.Delete(ctx, CleanObjectPath(report.FilePath)); err != nil {
		return apperrors.Storage("Failed to delete file", err)
	}
	if err := s.repo.Delete(ctx, report.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	s.auditor.Log(ctx, actor.ActorID(), model.AuditActionDelete, model.AuditEntityMedicalReport, report.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"patient_id": patient.ID, "report_name": report.ReportName},
	})
	return nil
}

func (s *ReportService) load(ctx context.Context, id uuid.UUID) (*model.MedicalReport, *model.Patient, error) {
	report, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperrors.NotFound("report", nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get report: %w", err)
	}
	patient, err := loadPatient(ctx, s.patients, report.PatientID)
	if err != nil {
		return nil, nil, err
	}
	return report, patient, nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ReportObjectKey builds "{patient}/{unixMillis}_{name}.{ext}". The extension
// follows the last dot of the file name's final path element and falls back
// to "bin".
func ReportObjectKey(patientID uuid.UUID, at time.Time, reportName, fileName string) string {
	base := fileName[strings.LastIndexAny(fileName, `/\`)+1:]
	ext := "bin"
	if i := strings.LastIndex(base, "."); i >= 0 && i < len(base)-1 {
		ext = unsafeNameChars.ReplaceAllString(base[i+1:], "_")
	}
	return fmt.Sprintf("%s/%d_%s.%s", patientID, at.UnixMilli(), unsafeNameChars.ReplaceAllString(reportName, "_"), ext)
}

// CleanObjectPath normalises stored paths that carry a leading slash or
// the bucket name.
func CleanObjectPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "/")
	return strings.TrimPrefix(p, ReportBucket+"/")
}
