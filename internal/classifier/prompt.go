package classifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knowmad79/Docbox2026/internal/llm"
	"github.com/Knowmad79/Docbox2026/internal/model"
)

const classifyPrompt = `You are DocBox, the inbox assistant for a busy medical practice. Triage the email below and tell the doctor exactly what to do with it.

Email:
- From: %s (%s)
- Subject: %s
- Content: %s

Reply with a single JSON object:
{
  "zone": "STAT|TODAY|THIS_WEEK|LATER",
  "confidence": 0.0-1.0,
  "reason": "why this priority",
  "summary": "1-2 sentences on what the email is about and what the sender wants",
  "recommended_action": "a concrete step, e.g. 'Call patient back about lab results' or 'Forward to billing'",
  "action_type": "reply|forward|call|archive|delegate|review",
  "draft_reply": "a professional 2-3 sentence reply when action_type is reply, otherwise null"
}

Zones:
- STAT: urgent (critical labs, emergencies), act now
- TODAY: same-day work (refills, prior auths, referrals)
- THIS_WEEK: standard admin (billing, records), can wait a few days
- LATER: FYI only (newsletters, marketing), archive or ignore`

func buildClassifyPrompt(in model.EmailInput, domain string) string {
	content := in.Snippet
	if strings.TrimSpace(content) == "" {
		content = "No content available"
	}
	return fmt.Sprintf(classifyPrompt, in.Sender, domain, in.Subject, content)
}

// llmReply is the JSON shape the classify prompt asks for.
type llmReply struct {
	Zone              string   `json:"zone"`
	Confidence        *float64 `json:"confidence"`
	Reason            string   `json:"reason"`
	Summary           *string  `json:"summary"`
	RecommendedAction *string  `json:"recommended_action"`
	ActionType        string   `json:"action_type"`
	DraftReply        *string  `json:"draft_reply"`
}

var errInvalidZone = errors.New("classifier: llm returned no valid zone")

// parseLLMReply turns model text into a result. Anything short of a valid
// zone is an error so the caller falls through to the rule engine.
func parseLLMReply(text string) (model.ClassificationResult, error) {
	var r llmReply
	if err := llm.DecodeJSON(text, &r); err != nil {
		return model.ClassificationResult{}, err
	}
	zone, ok := model.ParseZone(r.Zone)
	if !ok {
		return model.ClassificationResult{}, fmt.Errorf("%w: %q", errInvalidZone, r.Zone)
	}

	confidence := 0.75
	if r.Confidence != nil {
		confidence = min(max(*r.Confidence, 0), 1)
	}
	reason := strings.TrimSpace(r.Reason)
	if reason == "" {
		reason = "AI analysis"
	}

	res := model.ClassificationResult{
		Zone:              zone,
		Confidence:        confidence,
		Reason:            reason,
		Summary:           nonEmpty(r.Summary),
		RecommendedAction: nonEmpty(r.RecommendedAction),
		DraftReply:        nonEmpty(r.DraftReply),
	}
	if at := model.ActionType(strings.ToLower(strings.TrimSpace(r.ActionType))); at.Valid() {
		res.ActionType = &at
	}
	return res, nil
}

// nonEmpty drops blank strings and the literal "null" some models emit.
func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
