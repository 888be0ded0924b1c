package model

import "strings"

// Zone is the priority bucket a triaged email lands in.
type Zone string

// Zones, highest urgency first.
const (
	ZoneStat     Zone = "STAT"
	ZoneToday    Zone = "TODAY"
	ZoneThisWeek Zone = "THIS_WEEK"
	ZoneLater    Zone = "LATER"
)

// Zones lists every zone in urgency order.
var Zones = []Zone{ZoneStat, ZoneToday, ZoneThisWeek, ZoneLater}

// Valid reports whether z is one of the four known zones.
func (z Zone) Valid() bool {
	switch z {
	case ZoneStat, ZoneToday, ZoneThisWeek, ZoneLater:
		return true
	}
	return false
}

// ParseZone normalizes s ("this_week", " stat ") into a Zone.
func ParseZone(s string) (Zone, bool) {
	z := Zone(strings.ToUpper(strings.TrimSpace(s)))
	return z, z.Valid()
}

// ActionType is the kind of follow-up the classifier recommends.
type ActionType string

const (
	ActionReply    ActionType = "reply"
	ActionForward  ActionType = "forward"
	ActionCall     ActionType = "call"
	ActionArchive  ActionType = "archive"
	ActionDelegate ActionType = "delegate"
	ActionReview   ActionType = "review"
)

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	switch a {
	case ActionReply, ActionForward, ActionCall, ActionArchive, ActionDelegate, ActionReview:
		return true
	}
	return false
}

// ClassificationResult is the classifier's verdict for one email. It has no
// identity of its own; callers copy its fields onto a Message.
type ClassificationResult struct {
	Zone               Zone        `json:"zone"`
	Confidence         float64     `json:"confidence"`
	Reason             string      `json:"reason"`
	PersonalityMessage string      `json:"personality_message"`
	Summary            *string     `json:"summary,omitempty"`
	RecommendedAction  *string     `json:"recommended_action,omitempty"`
	ActionType         *ActionType `json:"action_type,omitempty"`
	DraftReply         *string     `json:"draft_reply,omitempty"`
	// Fallback is true when zone and confidence came from the rule engine.
	Fallback bool `json:"fallback"`
}

// EmailInput carries the plain fields the triage core reads from an email.
// Transport framing (MIME, webhook payloads) is stripped before this point.
type EmailInput struct {
	Sender       string `json:"sender"`
	SenderDomain string `json:"sender_domain,omitempty"`
	Subject      string `json:"subject"`
	Snippet      string `json:"snippet,omitempty"`
	Body         string `json:"body,omitempty"`
	MessageID    string `json:"message_id,omitempty"`
	GrantID      string `json:"grant_id,omitempty"`
}
