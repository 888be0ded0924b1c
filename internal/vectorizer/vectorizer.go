// Package vectorizer extracts a structured state vector (intent, risk,
// entities, deadline) from a raw email. It is the first stage of the
// Shadow Router and, like the classifier, never fails: model errors yield a
// degraded payload that is still valid to persist.
package vectorizer

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Knowmad79/Docbox2026/internal/llm"
	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/telemetry"
)

const (
	defaultDeadlineHours = 24
	minDeadlineHours     = 1
	maxDeadlineHours     = 144
)

// Summary written when the model call or parse failed.
const failedSummary = "AI Processing Failed"

// Vectorizer turns emails into unrouted vector payloads.
type Vectorizer struct {
	llm    llm.Client
	now    func() time.Time
	logger *slog.Logger

	duration metric.Float64Histogram
	failures metric.Int64Counter
}

// Option customizes a Vectorizer.
type Option func(*Vectorizer)

// WithClock overrides time.Now for deadline computation.
func WithClock(now func() time.Time) Option {
	return func(v *Vectorizer) { v.now = now }
}

// WithLogger sets the logger used for degraded results.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vectorizer) { v.logger = l }
}

// New creates a Vectorizer. A nil or Noop client makes every call degrade.
func New(client llm.Client, opts ...Option) *Vectorizer {
	if client == nil {
		client = llm.Noop{}
	}
	v := &Vectorizer{llm: client, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(v)
	}

	meter := telemetry.Meter("docbox/vectorizer")
	v.duration, _ = meter.Float64Histogram("docbox.vectorize.duration",
		metric.WithDescription("Time to vectorize one email (ms)"),
		metric.WithUnit("ms"),
	)
	v.failures, _ = meter.Int64Counter("docbox.vectorize.failures",
		metric.WithDescription("Vectorizations that fell back to the degraded payload"),
	)
	return v
}

// Vectorize returns a complete payload for in with LifecycleState NEW and no
// owner role. It never returns an error.
func (v *Vectorizer) Vectorize(ctx context.Context, in model.EmailInput) model.VectorPayload {
	start := time.Now()
	p, err := v.extract(ctx, in)
	if err != nil {
		v.logger.Warn("vectorizer: extraction failed, using degraded payload",
			"nylas_message_id", in.MessageID, "error", err)
		v.failures.Add(ctx, 1)
		p = v.degraded(in, err)
	}
	v.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Bool("degraded", err != nil)))
	return p
}

func (v *Vectorizer) extract(ctx context.Context, in model.EmailInput) (model.VectorPayload, error) {
	text, err := v.llm.Complete(ctx, buildPrompt(in))
	if err != nil {
		return model.VectorPayload{}, err
	}
	e, err := parseExtraction(text)
	if err != nil {
		return model.VectorPayload{}, err
	}
	return model.VectorPayload{
		NylasMessageID: in.MessageID,
		GrantID:        in.GrantID,
		IntentLabel:    e.intent(),
		RiskScore:      e.risk(),
		ContextBlob:    e.context(),
		Summary:        e.summary(),
		DeadlineAt:     v.now().Add(time.Duration(e.hours() * float64(time.Hour))),
		LifecycleState: model.StateNew,
	}, nil
}

func (v *Vectorizer) degraded(in model.EmailInput, cause error) model.VectorPayload {
	return model.VectorPayload{
		NylasMessageID: in.MessageID,
		GrantID:        in.GrantID,
		IntentLabel:    model.IntentAdmin,
		RiskScore:      0,
		ContextBlob:    map[string]any{"error": cause.Error()},
		Summary:        failedSummary,
		DeadlineAt:     v.now().Add(defaultDeadlineHours * time.Hour),
		LifecycleState: model.StateNew,
	}
}
