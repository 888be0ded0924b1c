package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Complete(context.Context, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type mapOverrides struct {
	mu   sync.Mutex
	m    map[string]model.Zone
	err  error
	hits int
}

func (o *mapOverrides) GetRuleOverride(_ context.Context, key string) (model.Zone, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits++
	if o.err != nil {
		return "", false, o.err
	}
	z, ok := o.m[key]
	return z, ok, nil
}

func newRulesOnly(overrides OverrideStore) *Classifier {
	return New(Options{Overrides: overrides, OverridesBeforeLLM: true, Picker: FirstPicker})
}

func TestClassify_OverrideBeatsKeywords(t *testing.T) {
	o := &mapOverrides{m: map[string]model.Zone{"sender:billing@x.com": model.ZoneLater}}
	c := newRulesOnly(o)

	res := c.Classify(context.Background(), model.EmailInput{
		Sender:  "Billing@X.com",
		Subject: "URGENT STAT",
	})
	assert.Equal(t, model.ZoneLater, res.Zone)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.True(t, res.Fallback)
	assert.Equal(t, "Learned pattern from previous correction", res.Reason)
	require.NotNil(t, res.Summary)
	assert.Equal(t, "Email from Billing@X.com about: URGENT STAT...", *res.Summary)
}

func TestClassify_StatKeywordBeforeLater(t *testing.T) {
	c := newRulesOnly(nil)
	res := c.Classify(context.Background(), model.EmailInput{
		Sender:  "news@medscape.com",
		Subject: "critical newsletter",
	})
	assert.Equal(t, model.ZoneStat, res.Zone)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)
	assert.Equal(t, "Urgent keyword: 'critical'", res.Reason)
	require.NotNil(t, res.ActionType)
	assert.Equal(t, model.ActionReview, *res.ActionType)
}

func TestClassify_DefaultBucket(t *testing.T) {
	c := newRulesOnly(nil)
	res := c.Classify(context.Background(), model.EmailInput{
		Sender:  "friend@example.com",
		Subject: "Lunch plans",
		Snippet: "See you soon",
	})
	assert.Equal(t, model.ZoneThisWeek, res.Zone)
	assert.InDelta(t, 0.60, res.Confidence, 1e-9)
	assert.True(t, res.Fallback)
	assert.Equal(t, unsureMessage, res.PersonalityMessage)
	require.NotNil(t, res.RecommendedAction)
	assert.Equal(t, "Review and categorize manually", *res.RecommendedAction)
}

func TestClassify_RuleTableOrder(t *testing.T) {
	tests := []struct {
		name       string
		in         model.EmailInput
		zone       model.Zone
		confidence float64
		action     model.ActionType
	}{
		{
			name: "stat domain",
			in:   model.EmailInput{Sender: "results@labcorp.com", Subject: "Your report"},
			zone: model.ZoneStat, confidence: 0.88, action: model.ActionReview,
		},
		{
			name: "today keyword",
			in:   model.EmailInput{Sender: "pharmacy@cvs.com", Subject: "Refill Request - Metformin"},
			zone: model.ZoneToday, confidence: 0.85, action: model.ActionReply,
		},
		{
			name: "today domain",
			in:   model.EmailInput{Sender: "notices@aetna.com", Subject: "Plan update"},
			zone: model.ZoneToday, confidence: 0.82, action: model.ActionReply,
		},
		{
			name: "this week keyword",
			in:   model.EmailInput{Sender: "ops@clinicsoft.io", Subject: "Invoice for March"},
			zone: model.ZoneThisWeek, confidence: 0.80, action: model.ActionDelegate,
		},
		{
			name: "later keyword",
			in:   model.EmailInput{Sender: "news@medscape.com", Subject: "Weekly CME Update"},
			zone: model.ZoneLater, confidence: 0.90, action: model.ActionArchive,
		},
	}
	c := newRulesOnly(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(context.Background(), tt.in)
			assert.Equal(t, tt.zone, res.Zone)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			require.NotNil(t, res.ActionType)
			assert.Equal(t, tt.action, *res.ActionType)
			assert.True(t, res.Fallback)
			assert.NotEmpty(t, res.PersonalityMessage)
		})
	}
}

func TestClassify_LLMSuccess(t *testing.T) {
	f := &fakeLLM{reply: "```json\n{\"zone\":\"TODAY\",\"confidence\":1.4,\"reason\":\"refill\",\"summary\":\"Refill\",\"recommended_action\":\"Approve\",\"action_type\":\"reply\",\"draft_reply\":\"Approved.\"}\n```"}
	c := New(Options{LLM: f, Picker: FirstPicker})

	res := c.Classify(context.Background(), model.EmailInput{Sender: "a@b.com", Subject: "critical"})
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, model.ZoneToday, res.Zone)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9, "confidence is clamped")
	assert.False(t, res.Fallback)
	require.NotNil(t, res.DraftReply)
	assert.Equal(t, "Approved.", *res.DraftReply)
	assert.Equal(t, personalityPools[model.ZoneToday][0], res.PersonalityMessage)
}

func TestClassify_LLMNullDraftAndDefaults(t *testing.T) {
	f := &fakeLLM{reply: `{"zone":"later","action_type":"shout","draft_reply":"null"}`}
	c := New(Options{LLM: f, Picker: FirstPicker})

	res := c.Classify(context.Background(), model.EmailInput{Sender: "a@b.com", Subject: "hello"})
	assert.Equal(t, model.ZoneLater, res.Zone)
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
	assert.Equal(t, "AI analysis", res.Reason)
	assert.Nil(t, res.DraftReply)
	assert.Nil(t, res.ActionType, "unknown action types are dropped")
	assert.False(t, res.Fallback)
}

func TestClassify_LLMFailureFallsBackToRules(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{"transport error", &fakeLLM{err: errors.New("connection refused")}},
		{"not json", &fakeLLM{reply: "I cannot help with that"}},
		{"invalid zone", &fakeLLM{reply: `{"zone":"TOMORROW"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{LLM: tt.llm, Picker: FirstPicker})
			res := c.Classify(context.Background(), model.EmailInput{Sender: "a@b.com", Subject: "abnormal result"})
			assert.Equal(t, model.ZoneStat, res.Zone)
			assert.True(t, res.Fallback)
			assert.Equal(t, 1, tt.llm.calls)
		})
	}
}

func TestClassify_OverridePolicy(t *testing.T) {
	overrides := map[string]model.Zone{"sender:doc@clinic.org": model.ZoneLater}
	llmSaysStat := `{"zone":"STAT","confidence":0.9,"reason":"labs"}`

	t.Run("overrides before llm", func(t *testing.T) {
		f := &fakeLLM{reply: llmSaysStat}
		c := New(Options{LLM: f, Overrides: &mapOverrides{m: overrides}, OverridesBeforeLLM: true, Picker: FirstPicker})
		res := c.Classify(context.Background(), model.EmailInput{Sender: "doc@clinic.org", Subject: "labs"})
		assert.Equal(t, model.ZoneLater, res.Zone)
		assert.Equal(t, 0, f.calls, "llm is not consulted when an override exists")
	})

	t.Run("llm first", func(t *testing.T) {
		f := &fakeLLM{reply: llmSaysStat}
		o := &mapOverrides{m: overrides}
		c := New(Options{LLM: f, Overrides: o, OverridesBeforeLLM: false, Picker: FirstPicker})
		res := c.Classify(context.Background(), model.EmailInput{Sender: "doc@clinic.org", Subject: "labs"})
		assert.Equal(t, model.ZoneStat, res.Zone)
		assert.False(t, res.Fallback)
		assert.Equal(t, 0, o.hits)
	})

	t.Run("llm first then override on failure", func(t *testing.T) {
		f := &fakeLLM{err: errors.New("timeout")}
		o := &mapOverrides{m: overrides}
		c := New(Options{LLM: f, Overrides: o, OverridesBeforeLLM: false, Picker: FirstPicker})
		res := c.Classify(context.Background(), model.EmailInput{Sender: "doc@clinic.org", Subject: "labs"})
		assert.Equal(t, model.ZoneLater, res.Zone)
		assert.Equal(t, 1, o.hits)
	})
}

func TestClassify_OverrideLookupErrorIsIgnored(t *testing.T) {
	c := newRulesOnly(&mapOverrides{err: errors.New("db down")})
	res := c.Classify(context.Background(), model.EmailInput{Sender: "x@y.com", Subject: "Webinar invite"})
	assert.Equal(t, model.ZoneLater, res.Zone)
}

func TestClassify_PickerDoesNotAffectZone(t *testing.T) {
	last := func(pool []string) string { return pool[len(pool)-1] }
	a := New(Options{Picker: FirstPicker}).Classify(context.Background(), model.EmailInput{Sender: "a@b.com", Subject: "prior auth"})
	b := New(Options{Picker: last}).Classify(context.Background(), model.EmailInput{Sender: "a@b.com", Subject: "prior auth"})
	assert.Equal(t, a.Zone, b.Zone)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.NotEqual(t, a.PersonalityMessage, b.PersonalityMessage)
}

func TestSenderHelpers(t *testing.T) {
	assert.Equal(t, "labcorp.com", SenderDomain("Results <results@labcorp.com>"))
	assert.Equal(t, "unknown", SenderDomain("no-at-sign"))
	assert.Equal(t, "sender:doc@clinic.org", SenderKey("  Doc@Clinic.ORG "))
}

func TestCorrectionMessage(t *testing.T) {
	c := New(Options{Picker: FirstPicker})
	assert.Equal(t, correctionThanks[0], c.CorrectionMessage())
}
