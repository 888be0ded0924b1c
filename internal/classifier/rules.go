package classifier

import (
	"regexp"
	"strings"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// Rule tables. Matching is case-insensitive substring: keywords against
// subject + snippet, domains against the sender domain.
var (
	statKeywords = []string{
		"critical", "urgent", "stat", "emergency", "abnormal", "positive",
		"elevated", "low", "high", "alert", "immediate", "asap",
	}
	statDomains = []string{
		"labcorp", "quest", "hospital", "er", "emergency", "lab", "pathology", "radiology",
	}
	todayKeywords = []string{
		"refill", "prescription", "prior auth", "authorization", "referral",
		"appointment", "callback", "pharmacy", "medication",
	}
	todayDomains = []string{
		"pharmacy", "cvs", "walgreens", "insurance", "medicaid", "medicare",
		"aetna", "cigna", "united", "bcbs",
	}
	thisWeekKeywords = []string{
		"billing", "invoice", "payment", "claim", "denial", "records request", "compliance", "audit",
	}
	laterKeywords = []string{
		"newsletter", "cme", "conference", "webinar", "marketing", "promotion", "sale", "discount", "survey",
	}
)

// Rule confidences, in evaluation order.
const (
	confOverride    = 0.95
	confStatKeyword = 0.92
	confStatDomain  = 0.88
	confTodayKW     = 0.85
	confTodayDomain = 0.82
	confThisWeekKW  = 0.80
	confLaterKW     = 0.90
	confDefault     = 0.60
)

var domainPattern = regexp.MustCompile(`@([\w.-]+)`)

// SenderDomain extracts the domain part of an address, or "unknown".
func SenderDomain(sender string) string {
	if m := domainPattern.FindStringSubmatch(sender); m != nil {
		return m[1]
	}
	return "unknown"
}

// SenderKey is the override-table key for a sender address.
func SenderKey(sender string) string {
	return "sender:" + strings.ToLower(strings.TrimSpace(sender))
}

// verdict is a rule-path result before flavor text is attached.
type verdict struct {
	zone       model.Zone
	confidence float64
	reason     string
	summary    string
	action     string
	actionType model.ActionType
	unsure     bool // nothing matched; the default bucket was used
}

func firstMatch(haystack string, needles []string) (string, bool) {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return n, true
		}
	}
	return "", false
}

// overrideVerdict is the result for a sender with a learned zone.
func overrideVerdict(in model.EmailInput, zone model.Zone) verdict {
	return verdict{
		zone:       zone,
		confidence: confOverride,
		reason:     "Learned pattern from previous correction",
		summary:    "Email from " + in.Sender + " about: " + truncate(in.Subject, 50) + "...",
		action:     "Review and take appropriate action",
		actionType: model.ActionReview,
	}
}

// ruleVerdict walks the keyword and domain tables in priority order and
// stops at the first hit. It never fails: no hit lands in THIS_WEEK.
func ruleVerdict(in model.EmailInput) verdict {
	text := strings.ToLower(in.Subject + " " + in.Snippet)
	domain := strings.ToLower(in.SenderDomain)
	if domain == "" {
		domain = strings.ToLower(SenderDomain(in.Sender))
	}

	if kw, ok := firstMatch(text, statKeywords); ok {
		return verdict{
			zone: model.ZoneStat, confidence: confStatKeyword,
			reason:  "Urgent keyword: '" + kw + "'",
			summary: "URGENT: Contains '" + kw + "' - requires immediate attention",
			action:  "Review immediately and respond", actionType: model.ActionReview,
		}
	}
	if d, ok := firstMatch(domain, statDomains); ok {
		return verdict{
			zone: model.ZoneStat, confidence: confStatDomain,
			reason:  "High-priority domain: '" + d + "'",
			summary: "From " + d + " - likely urgent medical matter",
			action:  "Review lab/medical results immediately", actionType: model.ActionReview,
		}
	}
	if kw, ok := firstMatch(text, todayKeywords); ok {
		return verdict{
			zone: model.ZoneToday, confidence: confTodayKW,
			reason:  "Same-day keyword: '" + kw + "'",
			summary: "Action needed today: " + kw,
			action:  "Process " + kw + " request today", actionType: model.ActionReply,
		}
	}
	if d, ok := firstMatch(domain, todayDomains); ok {
		return verdict{
			zone: model.ZoneToday, confidence: confTodayDomain,
			reason:  "Action-required sender: '" + d + "'",
			summary: "From " + d + " - likely needs same-day response",
			action:  "Respond to request today", actionType: model.ActionReply,
		}
	}
	if kw, ok := firstMatch(text, thisWeekKeywords); ok {
		return verdict{
			zone: model.ZoneThisWeek, confidence: confThisWeekKW,
			reason:  "Administrative keyword: '" + kw + "'",
			summary: "Administrative matter: " + kw,
			action:  "Handle " + kw + " within the week", actionType: model.ActionDelegate,
		}
	}
	if kw, ok := firstMatch(text, laterKeywords); ok {
		return verdict{
			zone: model.ZoneLater, confidence: confLaterKW,
			reason:  "Low-priority keyword: '" + kw + "'",
			summary: "FYI only: " + kw,
			action:  "Archive - no action needed", actionType: model.ActionArchive,
		}
	}
	return verdict{
		zone: model.ZoneThisWeek, confidence: confDefault,
		reason:  "No strong signals - defaulting to THIS_WEEK",
		summary: "Email from " + in.Sender + ": " + truncate(in.Subject, 50) + "...",
		action:  "Review and categorize manually", actionType: model.ActionReview,
		unsure:  true,
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
