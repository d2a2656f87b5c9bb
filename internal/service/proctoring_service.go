package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/models"
	"github.com/invigilo/invigilo-go-api/internal/observability"
	"github.com/invigilo/invigilo-go-api/internal/repository"
	"github.com/invigilo/invigilo-go-api/pkg/verifier"
)

// ErrNoVerificationSession indicates the attempt carries no verification session.
var ErrNoVerificationSession = errors.New("attempt has no verification session")

// ErrInvalidFrame indicates the uploaded frame is not a usable image.
var ErrInvalidFrame = errors.New("frame is not a supported image")

// DefaultLockReason is recorded when the oracle locks a session without
// naming a reason of its own.
const DefaultLockReason = "Too many suspicious activities detected"

const reportIncidentLimit = 200

// FileUploader abstracts uploading binary data and returning a URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// ReportSummarizer produces a short prose summary of an attempt's incident
// history for reviewers.
type ReportSummarizer interface {
	Summarize(ctx context.Context, report dto.ProctoringReportResponse) (string, error)
}

// IncidentPublisher pushes newly recorded incidents to live observers.
type IncidentPublisher interface {
	PublishIncident(ctx context.Context, examID uint, incident dto.IncidentResponse)
}

// ProctoringService processes monitoring ticks against the verification
// oracle and maintains the append-only incident trail.
type ProctoringService interface {
	Monitor(ctx context.Context, attemptID uint, frame verifier.Frame) (dto.MonitorResponse, error)
	ListIncidents(ctx context.Context, attemptID uint, limit int) ([]dto.IncidentResponse, error)
	Report(ctx context.Context, attemptID uint) (dto.ProctoringReportResponse, error)
	ReviewerMessage(ctx context.Context, attemptID uint, payload dto.ReviewerMessageRequest) (dto.IncidentResponse, error)
	Flag(ctx context.Context, attemptID uint, payload dto.FlagAttemptRequest) (dto.IncidentResponse, error)
}

type proctoringService struct {
	attempts   repository.AttemptRepository
	incidents  repository.IncidentRepository
	verifier   verifier.Verifier
	uploader   FileUploader
	summarizer ReportSummarizer
	feed       IncidentPublisher
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewProctoringService builds the proctoring service. The uploader,
// summarizer and feed are optional; without them evidence snapshots, report
// summaries and live streaming are simply skipped.
func NewProctoringService(
	attempts repository.AttemptRepository,
	incidents repository.IncidentRepository,
	v verifier.Verifier,
	uploader FileUploader,
	summarizer ReportSummarizer,
	feed IncidentPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) ProctoringService {
	return &proctoringService{
		attempts:   attempts,
		incidents:  incidents,
		verifier:   v,
		uploader:   uploader,
		summarizer: summarizer,
		feed:       feed,
		validator:  validate,
		logger:     logger.With().Str("component", "proctoring_service").Logger(),
		tracer:     otel.Tracer("github.com/invigilo/invigilo-go-api/internal/service/proctoring"),
		now:        time.Now,
	}
}

// Monitor runs one verification tick for an in-progress attempt. A gateway
// failure degrades the tick instead of failing the exam: the caller gets a
// success=false response with zero issues and the attempt continues
// untouched. Locking happens at most once per attempt; the conditional lock
// update decides which tick wins under concurrency.
func (s *proctoringService) Monitor(ctx context.Context, attemptID uint, frame verifier.Frame) (dto.MonitorResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "proctoring.monitor", trace.WithAttributes(
		attribute.Int("attempt.id", int(attemptID)),
	))
	defer span.End()

	if len(frame.Content) > 0 {
		if kind := mimetype.Detect(frame.Content); !strings.HasPrefix(kind.String(), "image/") {
			return dto.MonitorResponse{}, ErrInvalidFrame
		}
	}

	attempt, err := s.attempts.GetByID(spanCtx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MonitorResponse{}, ErrAttemptNotFound
		}
		return dto.MonitorResponse{}, err
	}

	// Locked attempts stop accepting frames until a reviewer unlocks them.
	if !attempt.IsInProgress() || attempt.IsLocked {
		return dto.MonitorResponse{}, ErrAttemptNotInProgress
	}

	if !attempt.HasVerificationSession() {
		return dto.MonitorResponse{}, ErrNoVerificationSession
	}

	result, err := s.verifier.Check(spanCtx, *attempt.VerificationSessionID, frame)
	if err != nil {
		span.RecordError(err)
		observability.VerifierOutages().Inc()
		observability.MonitorTicks().WithLabelValues("degraded").Inc()
		s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("verification check failed, tick degraded")

		return dto.MonitorResponse{
			Success:        false,
			Issues:         []string{},
			IncidentsCount: 0,
			SessionLocked:  false,
			Message:        "verification service unavailable",
		}, nil
	}

	// Soft signals only advance the suspicion counter; the incident log
	// records a single CRITICAL entry when a tick locks the attempt.
	locked := false
	incidentsRecorded := 0
	if result.ShouldLock {
		reason := result.Reason
		if reason == "" {
			reason = DefaultLockReason
		}

		acquired, err := s.attempts.Lock(spanCtx, attempt.ID, reason, s.now(), len(result.Issues))
		if err != nil {
			return dto.MonitorResponse{}, err
		}

		if acquired {
			locked = true
			observability.AttemptLocks().Inc()

			eventType := models.IncidentSuspiciousActivity
			if len(result.Issues) > 0 {
				eventType = classifyIssue(result.Issues[0])
			}

			s.record(spanCtx, attempt.ExamID, models.ProctoringIncident{
				AttemptID:   attempt.ID,
				EventType:   eventType,
				Severity:    models.SeverityCritical,
				Description: reason,
				EvidenceURL: s.uploadEvidence(spanCtx, attempt.ID, frame, result.Issues),
				Timestamp:   s.now(),
			})
			incidentsRecorded = 1

			s.logger.Warn().
				Uint("attempt_id", attempt.ID).
				Str("reason", reason).
				Int("issues", len(result.Issues)).
				Msg("attempt locked by monitor")
		}
	} else if len(result.Issues) > 0 {
		if err := s.attempts.IncrementSuspicion(spanCtx, attempt.ID, len(result.Issues)); err != nil {
			return dto.MonitorResponse{}, err
		}
	}

	outcome := "ok"
	switch {
	case locked:
		outcome = "locked"
	case len(result.Issues) > 0:
		outcome = "issues"
	}
	observability.MonitorTicks().WithLabelValues(outcome).Inc()

	return dto.MonitorResponse{
		Success:        true,
		Issues:         result.Issues,
		IncidentsCount: incidentsRecorded,
		SessionLocked:  locked,
	}, nil
}

func (s *proctoringService) ListIncidents(ctx context.Context, attemptID uint, limit int) ([]dto.IncidentResponse, error) {
	if _, err := s.attempts.GetByID(ctx, attemptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}

	incidents, err := s.incidents.ListByAttempt(ctx, attemptID, limit)
	if err != nil {
		return nil, err
	}

	return dto.NewIncidentResponseSlice(incidents), nil
}

// Report assembles the reviewer view of an attempt: the incident trail with
// severity and type breakdowns, plus an optional prose summary.
func (s *proctoringService) Report(ctx context.Context, attemptID uint) (dto.ProctoringReportResponse, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ProctoringReportResponse{}, ErrAttemptNotFound
		}
		return dto.ProctoringReportResponse{}, err
	}

	incidents, err := s.incidents.ListByAttempt(ctx, attemptID, reportIncidentLimit)
	if err != nil {
		return dto.ProctoringReportResponse{}, err
	}

	total, err := s.incidents.CountByAttempt(ctx, attemptID)
	if err != nil {
		return dto.ProctoringReportResponse{}, err
	}

	severityCounts := make(map[string]int)
	typeCounts := make(map[string]int)
	for _, incident := range incidents {
		severityCounts[incident.Severity]++
		typeCounts[incident.EventType]++
	}

	report := dto.ProctoringReportResponse{
		Attempt:        dto.NewAttemptResponse(attempt),
		TotalIncidents: total,
		SeverityCounts: severityCounts,
		TypeCounts:     typeCounts,
		WasLocked:      attempt.IsLocked || attempt.LockedAt != nil,
		Incidents:      dto.NewIncidentResponseSlice(incidents),
	}

	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, report)
		if err != nil {
			s.logger.Warn().Err(err).Uint("attempt_id", attemptID).Msg("report summary unavailable")
		} else {
			report.Summary = summary
		}
	}

	return report, nil
}

func (s *proctoringService) ReviewerMessage(ctx context.Context, attemptID uint, payload dto.ReviewerMessageRequest) (dto.IncidentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.IncidentResponse{}, err
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.IncidentResponse{}, ErrAttemptNotFound
		}
		return dto.IncidentResponse{}, err
	}

	incident := models.ProctoringIncident{
		AttemptID:   attemptID,
		EventType:   models.IncidentReviewerMessage,
		Severity:    models.SeverityInfo,
		Description: payload.Message,
		Timestamp:   s.now(),
	}
	if err := s.incidents.Append(ctx, &incident); err != nil {
		return dto.IncidentResponse{}, err
	}
	s.stream(ctx, attempt.ExamID, incident)

	return dto.NewIncidentResponse(incident), nil
}

// Flag records a reviewer's critical incident against an attempt. An attempt
// still in progress is closed out as flagged: this is the only path that
// produces the flagged status, a plain submit always ends at submitted.
func (s *proctoringService) Flag(ctx context.Context, attemptID uint, payload dto.FlagAttemptRequest) (dto.IncidentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.IncidentResponse{}, err
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.IncidentResponse{}, ErrAttemptNotFound
		}
		return dto.IncidentResponse{}, err
	}

	if attempt.IsInProgress() {
		flagged, err := s.attempts.SubmitWithAnswers(ctx, attempt.ID, models.AttemptStatusFlagged, s.now(), 0, nil)
		if err != nil {
			return dto.IncidentResponse{}, err
		}
		if !flagged {
			// The student's submit won the race; the incident below still
			// puts the attempt in front of a reviewer.
			s.logger.Info().Uint("attempt_id", attempt.ID).Msg("attempt submitted before reviewer flag landed")
		}
	}

	incident := models.ProctoringIncident{
		AttemptID:   attemptID,
		EventType:   models.IncidentReviewerFlag,
		Severity:    models.SeverityCritical,
		Description: payload.Reason,
		Timestamp:   s.now(),
	}
	if err := s.incidents.Append(ctx, &incident); err != nil {
		return dto.IncidentResponse{}, err
	}
	s.stream(ctx, attempt.ExamID, incident)

	s.logger.Info().Uint("attempt_id", attemptID).Msg("attempt flagged for review")

	return dto.NewIncidentResponse(incident), nil
}

// record appends the incident and streams it to live observers. Append
// failures are logged rather than propagated so a storage hiccup cannot
// abort a monitoring tick mid-way.
func (s *proctoringService) record(ctx context.Context, examID uint, incident models.ProctoringIncident) {
	if err := s.incidents.Append(ctx, &incident); err != nil {
		s.logger.Error().Err(err).Uint("attempt_id", incident.AttemptID).Msg("failed to record incident")
		return
	}
	s.stream(ctx, examID, incident)
}

func (s *proctoringService) stream(ctx context.Context, examID uint, incident models.ProctoringIncident) {
	if s.feed == nil {
		return
	}
	s.feed.PublishIncident(ctx, examID, dto.NewIncidentResponse(incident))
}

// uploadEvidence stores the frame that produced issues. Upload failures are
// logged and ignored so evidence storage never interferes with monitoring.
func (s *proctoringService) uploadEvidence(ctx context.Context, attemptID uint, frame verifier.Frame, issues []string) string {
	if s.uploader == nil || len(issues) == 0 || len(frame.Content) == 0 {
		return ""
	}

	name := fmt.Sprintf("attempt-%d-%d", attemptID, s.now().UnixNano())
	url, err := s.uploader.Upload(ctx, name, bytes.NewReader(frame.Content))
	if err != nil {
		s.logger.Warn().Err(err).Uint("attempt_id", attemptID).Msg("evidence upload failed")
		return ""
	}
	return url
}

func classifyIssue(issue string) string {
	lower := strings.ToLower(issue)
	switch {
	case strings.Contains(lower, "mismatch") || strings.Contains(lower, "identity"):
		return models.IncidentIdentityMismatch
	case strings.Contains(lower, "no face") || strings.Contains(lower, "not detected"):
		return models.IncidentFaceNotDetected
	case strings.Contains(lower, "multiple"):
		return models.IncidentMultipleFaces
	default:
		return models.IncidentSuspiciousActivity
	}
}
