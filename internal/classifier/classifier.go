// Package classifier assigns a priority zone to an email.
//
// A configured LLM is the primary strategy. When it is absent or fails, a
// deterministic rule engine (learned sender overrides, then keyword and domain
// tables) always produces a zone, so Classify never returns an error.
package classifier

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

// OverrideStore looks up zones learned from user corrections.
type OverrideStore interface {
	GetRuleOverride(ctx context.Context, senderKey string) (model.Zone, bool, error)
}

// Options configures a Classifier. Zero values are usable: no LLM, no
// overrides, random flavor text, default logger.
type Options struct {
	LLM       llm.Client
	Overrides OverrideStore
	// OverridesBeforeLLM makes a learned correction win over a live LLM
	// verdict. When false the LLM is consulted first and overrides only
	// apply on the rule path.
	OverridesBeforeLLM bool
	Picker             Picker
	Logger             *slog.Logger
}

// Classifier is safe for concurrent use; its only state is read-only.
type Classifier struct {
	llm            llm.Client
	overrides      OverrideStore
	overridesFirst bool
	pick           Picker
	logger         *slog.Logger

	duration metric.Float64Histogram
	total    metric.Int64Counter
}

// New creates a Classifier.
func New(opts Options) *Classifier {
	if opts.Picker == nil {
		opts.Picker = RandomPicker
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	client := opts.LLM
	if !llm.Configured(client) {
		client = nil
	}

	meter := telemetry.Meter("docbox/classifier")
	dur, _ := meter.Float64Histogram("docbox.classify.duration",
		metric.WithDescription("Time to classify one email (ms)"),
		metric.WithUnit("ms"),
	)
	total, _ := meter.Int64Counter("docbox.classify.count",
		metric.WithDescription("Emails classified, by zone and fallback"),
	)

	return &Classifier{
		llm:            client,
		overrides:      opts.Overrides,
		overridesFirst: opts.OverridesBeforeLLM,
		pick:           opts.Picker,
		logger:         opts.Logger,
		duration:       dur,
		total:          total,
	}
}

// LLMEnabled reports whether a model is consulted.
func (c *Classifier) LLMEnabled() bool {
	return c.llm != nil
}

// Classify returns exactly one verdict for in. Collaborator failures (LLM,
// override lookup) degrade to the rule engine and are only logged.
func (c *Classifier) Classify(ctx context.Context, in model.EmailInput) model.ClassificationResult {
	start := time.Now()
	if in.SenderDomain == "" {
		in.SenderDomain = SenderDomain(in.Sender)
	}

	res := c.classify(ctx, in)

	attrs := metric.WithAttributes(
		attribute.String("zone", string(res.Zone)),
		attribute.Bool("fallback", res.Fallback),
	)
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	c.total.Add(ctx, 1, attrs)
	return res
}

func (c *Classifier) classify(ctx context.Context, in model.EmailInput) model.ClassificationResult {
	overrideChecked := false
	if c.overridesFirst {
		overrideChecked = true
		if zone, ok := c.lookupOverride(ctx, in.Sender); ok {
			return c.fromVerdict(overrideVerdict(in, zone))
		}
	}

	if c.llm != nil {
		res, err := c.classifyLLM(ctx, in)
		if err == nil {
			return res
		}
		c.logger.Warn("classifier: llm path failed, using rules", "error", err)
	}

	if !overrideChecked {
		if zone, ok := c.lookupOverride(ctx, in.Sender); ok {
			return c.fromVerdict(overrideVerdict(in, zone))
		}
	}

	return c.fromVerdict(ruleVerdict(in))
}

// classifyLLM is the recoverable half of Classify: any error here means
// "use the rules", never "fail the request".
func (c *Classifier) classifyLLM(ctx context.Context, in model.EmailInput) (model.ClassificationResult, error) {
	text, err := c.llm.Complete(ctx, buildClassifyPrompt(in, in.SenderDomain))
	if err != nil {
		return model.ClassificationResult{}, err
	}
	res, err := parseLLMReply(text)
	if err != nil {
		return model.ClassificationResult{}, err
	}
	res.PersonalityMessage = c.pick(personalityPools[res.Zone])
	res.Fallback = false
	return res, nil
}

func (c *Classifier) lookupOverride(ctx context.Context, sender string) (model.Zone, bool) {
	if c.overrides == nil {
		return "", false
	}
	zone, ok, err := c.overrides.GetRuleOverride(ctx, SenderKey(sender))
	if err != nil {
		c.logger.Warn("classifier: override lookup failed, ignoring", "error", err)
		return "", false
	}
	if !ok || !zone.Valid() {
		return "", false
	}
	return zone, true
}

func (c *Classifier) fromVerdict(v verdict) model.ClassificationResult {
	summary, action, actionType := v.summary, v.action, v.actionType
	personality := unsureMessage
	if !v.unsure {
		personality = c.pick(personalityPools[v.zone])
	}
	return model.ClassificationResult{
		Zone:               v.zone,
		Confidence:         v.confidence,
		Reason:             v.reason,
		PersonalityMessage: personality,
		Summary:            &summary,
		RecommendedAction:  &action,
		ActionType:         &actionType,
		Fallback:           true,
	}
}

// CorrectionMessage returns the acknowledgement shown after a user correction.
func (c *Classifier) CorrectionMessage() string {
	return c.pick(correctionThanks)
}
