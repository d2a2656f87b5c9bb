package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	verifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "invigilo",
		Subsystem: "verifier",
		Name:      "request_duration_seconds",
		Help:      "Duration of verification oracle requests",
	}, []string{"operation"})

	verifierFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invigilo",
		Subsystem: "verifier",
		Name:      "request_failures_total",
		Help:      "Number of failed verification oracle requests",
	}, []string{"operation"})
)

// APIError is a structured failure surfaced by the oracle itself, as opposed
// to a transport failure.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("verifier responded %d: %s", e.StatusCode, e.Detail)
}

// Config defines connection options for the verification oracle.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client talks to the verification oracle over HTTP. Every call is bounded
// by the configured timeout; callers decide whether a failure is surfaced
// or absorbed.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewClient builds a verifier client from the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("verifier base url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("github.com/invigilo/invigilo-go-api/pkg/verifier"),
		logger:  cfg.Logger.With().Str("component", "verifier_client").Logger(),
	}, nil
}

// RegisterIdentity enrolls a reference face for later verification.
func (c *Client) RegisterIdentity(ctx context.Context, subjectID string, frame Frame, meta IdentityMetadata) (Registration, error) {
	fields := map[string]string{"subject_id": subjectID}
	if meta.Name != "" {
		fields["name"] = meta.Name
	}
	if meta.Email != "" {
		fields["email"] = meta.Email
	}
	if meta.RollNumber != "" {
		fields["roll_number"] = meta.RollNumber
	}

	var registration Registration
	if err := c.postMultipart(ctx, "register", "/identities/register", fields, &frame, &registration); err != nil {
		return Registration{}, err
	}

	return registration, nil
}

// StartSession begins a monitored session. The oracle rejects the start when
// the frame's similarity to the reference falls below its threshold.
func (c *Client) StartSession(ctx context.Context, referenceID, examCode string, frame Frame) (Session, error) {
	fields := map[string]string{
		"reference_id": referenceID,
		"exam_code":    examCode,
	}

	var session Session
	if err := c.postMultipart(ctx, "start_session", "/sessions/start", fields, &frame, &session); err != nil {
		return Session{}, err
	}

	return session, nil
}

// Check performs one verification tick against an active session.
func (c *Client) Check(ctx context.Context, sessionID string, frame Frame) (CheckResult, error) {
	fields := map[string]string{"session_id": sessionID}

	var result CheckResult
	if err := c.postMultipart(ctx, "check", "/sessions/check", fields, &frame, &result); err != nil {
		return CheckResult{}, err
	}

	if result.Issues == nil {
		result.Issues = []string{}
	}

	return result, nil
}

// EndSession closes a session on the oracle side.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.postMultipart(ctx, "end_session", "/sessions/end", map[string]string{"session_id": sessionID}, nil, nil)
}

// UnlockSession clears a lock on the oracle side after manual review.
func (c *Client) UnlockSession(ctx context.Context, sessionID string) error {
	return c.postMultipart(ctx, "unlock_session", "/sessions/unlock", map[string]string{"session_id": sessionID}, nil, nil)
}

func (c *Client) postMultipart(ctx context.Context, operation, path string, fields map[string]string, frame *Frame, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "verifier."+operation, trace.WithAttributes(
		attribute.String("verifier.operation", operation),
	))
	defer span.End()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to encode field %s: %w", key, err)
		}
	}

	if frame != nil {
		name := frame.Name
		if name == "" {
			name = "frame.jpg"
		}
		part, err := writer.CreateFormFile("image", name)
		if err != nil {
			return fmt.Errorf("failed to create frame part: %w", err)
		}
		if _, err := part.Write(frame.Content); err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize request body: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	response, err := c.http.Do(request)
	verifierDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		verifierFailures.WithLabelValues(operation).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport_failure")
		return fmt.Errorf("verifier %s failed: %w", operation, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		verifierFailures.WithLabelValues(operation).Inc()
		span.RecordError(err)
		return fmt.Errorf("verifier %s read failed: %w", operation, err)
	}

	if response.StatusCode >= http.StatusBadRequest {
		verifierFailures.WithLabelValues(operation).Inc()
		apiErr := &APIError{StatusCode: response.StatusCode, Detail: extractDetail(payload)}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "oracle_rejection")
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			verifierFailures.WithLabelValues(operation).Inc()
			span.RecordError(err)
			return fmt.Errorf("verifier %s decode failed: %w", operation, err)
		}
	}

	span.SetAttributes(attribute.Int("verifier.status", response.StatusCode))
	return nil
}

func extractDetail(payload []byte) string {
	var structured struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(payload, &structured); err == nil {
		switch {
		case structured.Detail != "":
			return structured.Detail
		case structured.Message != "":
			return structured.Message
		case structured.Reason != "":
			return structured.Reason
		}
	}

	detail := string(payload)
	if len(detail) > 256 {
		detail = detail[:256]
	}
	return detail
}
