package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
	"github.com/jwalitptl/carebridge/internal/service/access"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
	"github.com/jwalitptl/carebridge/pkg/genai"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/metrics"
)

// Generator produces text for a prompt, trying one or more models.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, []genai.Attempt, error)
}

type Summary struct {
	Summary     string    `json:"summary"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
	Stats       Stats     `json:"stats"`
}

type Service struct {
	records   repository.HealthRecordRepository
	patients  repository.PatientRepository
	generator Generator
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(records repository.HealthRecordRepository, patients repository.PatientRepository, generator Generator, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		records:   records,
		patients:  patients,
		generator: generator,
		logger:    logger,
		metrics:   metrics,
	}
}

// Generate summarises a patient's stored vitals in plain language.
func (s *Service) Generate(ctx context.Context, actor model.Actor, patientID uuid.UUID) (*Summary, error) {
	patient, err := s.patients.Get(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("patient", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	if !access.CanAccessPatientData(actor, patient) {
		return nil, apperrors.Forbidden("You do not have access to this patient's health records")
	}

	records, err := s.records.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list health records: %w", err)
	}

	vitals := BuildVitals(records)
	if len(vitals.Timestamps) == 0 {
		return nil, apperrors.BadRequest("At least one health record with timestamp is required", nil)
	}
	if !vitals.HasData() {
		return nil, apperrors.BadRequest("At least one vital sign (blood pressure, heart rate, or sugar level) is required", nil)
	}

	stats := ComputeStats(vitals)
	prompt, err := BuildPrompt(vitals, stats)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	text, attempts, err := s.generator.Generate(ctx, prompt)
	for _, a := range attempts {
		result := "success"
		if a.Err != nil {
			result = string(genai.KindOf(a.Err))
			if result == "" {
				result = "error"
			}
		}
		s.metrics.SummaryRequests.WithLabelValues(a.Model, result).Inc()
	}
	if err != nil {
		s.logger.Error(err, "health summary generation failed", "patient_id", patient.ID.String())
		return nil, mapGenerationError(err)
	}

	var modelName string
	if len(attempts) > 0 {
		modelName = attempts[len(attempts)-1].Model
	}
	return &Summary{
		Summary:     text,
		Model:       modelName,
		GeneratedAt: time.Now().UTC(),
		Stats:       stats,
	}, nil
}

func mapGenerationError(err error) error {
	switch genai.KindOf(err) {
	case genai.KindAPIKeyMissing, genai.KindInvalidAPIKey:
		return apperrors.Unavailable("AI service is not configured.", err)
	case genai.KindForbidden:
		return apperrors.Forbidden("AI service access denied. Please check your API key is valid and has proper permissions.")
	case genai.KindModelNotFound:
		return apperrors.Unavailable("AI models are not available with the configured API key.", err)
	case genai.KindRateLimit, genai.KindUnavailable:
		return apperrors.Unavailable("AI service is temporarily unavailable. Please try again later.", err)
	default:
		return apperrors.Unavailable("Failed to generate health summary", err)
	}
}
