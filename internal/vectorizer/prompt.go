package vectorizer

import (
	"fmt"
	"math"
	"strings"

	"github.com/Knowmad79/Docbox2026/internal/llm"
	"github.com/Knowmad79/Docbox2026/internal/model"
)

// maxBodyRunes bounds how much of the body reaches the prompt.
const maxBodyRunes = 2000

const vectorPrompt = `You are the "State Vector Engine" for a high-volume medical practice.
Turn the raw email below into a deterministic business object.

INPUT EMAIL:
Subject: %s
Sender: %s
Body: %s

Return a JSON object with exactly these fields:

1. "intent_label" (string): one of "CLINICAL", "BILLING", "ADMIN", "SCHEDULING", "VENDOR", "SPAM".
2. "risk_score" (number): 0.0 (no risk) to 1.0 (malpractice or revenue loss).
   - above 0.8: urgent clinical distress, legal threat, missed surgery
   - above 0.5: billing denial, patient complaint
   - below 0.2: routine admin
3. "context_blob" (object): entities if present (patient_name, mrn, dollar_amount, insurance_provider). Use {} when there are none.
4. "suggested_deadline_hours" (integer): a Fibonacci value (1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144).
5. "summary" (string): at most 10 words.

OUTPUT JSON ONLY. NO MARKDOWN.`

func buildPrompt(in model.EmailInput) string {
	body := in.Body
	if r := []rune(body); len(r) > maxBodyRunes {
		body = string(r[:maxBodyRunes])
	}
	return fmt.Sprintf(vectorPrompt, in.Subject, in.Sender, body)
}

// extraction is what the model said, before defaults are applied.
type extraction struct {
	IntentLabel   string         `json:"intent_label"`
	RiskScore     *float64       `json:"risk_score"`
	ContextBlob   map[string]any `json:"context_blob"`
	DeadlineHours *float64       `json:"suggested_deadline_hours"`
	Summary       string         `json:"summary"`
}

func parseExtraction(text string) (extraction, error) {
	var e extraction
	if err := llm.DecodeJSON(text, &e); err != nil {
		return extraction{}, err
	}
	return e, nil
}

func (e extraction) intent() model.IntentLabel {
	l := model.IntentLabel(strings.ToUpper(strings.TrimSpace(e.IntentLabel)))
	if !l.Valid() {
		return model.IntentAdmin
	}
	return l
}

func (e extraction) risk() float64 {
	if e.RiskScore == nil || math.IsNaN(*e.RiskScore) {
		return 0
	}
	return min(max(*e.RiskScore, 0), 1)
}

func (e extraction) context() map[string]any {
	if e.ContextBlob == nil {
		return map[string]any{}
	}
	return e.ContextBlob
}

func (e extraction) summary() string {
	if s := strings.TrimSpace(e.Summary); s != "" {
		return s
	}
	return "No summary generated"
}

// hours is the suggested deadline, clamped to the Fibonacci range offered in
// the prompt. Missing, non-positive and non-finite values use the default.
func (e extraction) hours() float64 {
	if e.DeadlineHours == nil {
		return defaultDeadlineHours
	}
	h := *e.DeadlineHours
	if math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
		return defaultDeadlineHours
	}
	return math.Min(math.Max(math.Ceil(h), minDeadlineHours), maxDeadlineHours)
}
