package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "invigilo",
		Subsystem: "ai",
		Name:      "summary_duration_seconds",
		Help:      "Duration of AI summary requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invigilo",
		Subsystem: "ai",
		Name:      "summary_failures_total",
		Help:      "Number of AI summary failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI summarizer.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAISummarizer implements Summarizer against the OpenAI chat completion API.
type OpenAISummarizer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAISummarizer builds a new summarizer using the provided configuration.
func NewOpenAISummarizer(cfg OpenAIConfig) (*OpenAISummarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}

	tracer := otel.Tracer("github.com/invigilo/invigilo-go-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAISummarizer{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Summarize sends the incident digest to OpenAI and returns the prose summary.
func (s *OpenAISummarizer) Summarize(parent context.Context, input ReportInput) (string, error) {
	ctx, span := s.tracer.Start(parent, "openai.summarize", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
		attribute.Int("attempt.id", int(input.AttemptID)),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: summarizerSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildSummaryPrompt(input),
			},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	aiDuration.WithLabelValues(s.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		aiFailures.WithLabelValues(s.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai summarize: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues(s.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		err := fmt.Errorf("empty summary returned from openai")
		aiFailures.WithLabelValues(s.cfg.Model).Inc()
		span.RecordError(err)
		return "", err
	}

	s.logger.Debug().
		Uint("attempt_id", input.AttemptID).
		Dur("duration", duration).
		Msg("proctoring summary generated")

	return summary, nil
}

func summarizerSystemPrompt() string {
	return strings.TrimSpace(`
You are an exam integrity assistant. You receive the proctoring incident
trail of one exam attempt and produce a short, factual summary for a human
reviewer. Mention the dominant issue types, whether the session was locked,
and anything a reviewer should check first. Three sentences maximum. Do not
speculate beyond the listed incidents.`)
}

func buildSummaryPrompt(input ReportInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Attempt %d. Suspicion counter: %d.\n", input.AttemptID, input.SuspicionCount)
	if input.WasLocked {
		fmt.Fprintf(&b, "The session was locked: %s\n", input.LockedReason)
	} else {
		b.WriteString("The session was never locked.\n")
	}

	if len(input.TypeCounts) > 0 {
		b.WriteString("Incident counts by type:\n")
		for eventType, count := range input.TypeCounts {
			fmt.Fprintf(&b, "- %s: %d\n", eventType, count)
		}
	}

	if len(input.Incidents) > 0 {
		b.WriteString("Incident trail (newest first):\n")
		for _, incident := range input.Incidents {
			fmt.Fprintf(&b, "- [%s] %s (%s): %s\n",
				incident.At.Format(time.RFC3339), incident.EventType, incident.Severity, incident.Description)
		}
	}

	return b.String()
}
