package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the operator's workflow flag on a triaged message.
type MessageStatus string

const (
	StatusActive   MessageStatus = "active"
	StatusDone     MessageStatus = "done"
	StatusArchived MessageStatus = "archived"
	StatusSnoozed  MessageStatus = "snoozed"
)

// Valid reports whether s is a known message status.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusActive, StatusDone, StatusArchived, StatusSnoozed:
		return true
	}
	return false
}

// Message is a triaged email owned by one user.
type Message struct {
	ID                 uuid.UUID     `json:"id"`
	UserID             uuid.UUID     `json:"user_id"`
	SourceID           *uuid.UUID    `json:"source_id,omitempty"`
	Sender             string        `json:"sender"`
	SenderDomain       string        `json:"sender_domain"`
	Subject            string        `json:"subject"`
	Snippet            string        `json:"snippet"`
	Zone               Zone          `json:"zone"`
	Confidence         float64       `json:"confidence"`
	Reason             string        `json:"reason"`
	PersonalityMessage string        `json:"personality_message"`
	Summary            *string       `json:"summary,omitempty"`
	RecommendedAction  *string       `json:"recommended_action,omitempty"`
	ActionType         *ActionType   `json:"action_type,omitempty"`
	DraftReply         *string       `json:"draft_reply,omitempty"`
	LLMFallback        bool          `json:"llm_fallback"`
	Corrected          bool          `json:"corrected"`
	CorrectedAt        *time.Time    `json:"corrected_at,omitempty"`
	Status             MessageStatus `json:"status"`
	SnoozedUntil       *time.Time    `json:"snoozed_until,omitempty"`
	ReceivedAt         time.Time     `json:"received_at"`
	ClassifiedAt       time.Time     `json:"classified_at"`

	// CompletedAt is set when Status becomes done and cleared when it leaves.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	NeedsReply  bool       `json:"needs_reply"`
	RepliedAt   *time.Time `json:"replied_at,omitempty"`

	// ProviderMessageID and GrantID identify mail pulled from a connected
	// mailbox. They are nil for pasted and forwarded mail.
	ProviderMessageID *string `json:"provider_message_id,omitempty"`
	GrantID           *string `json:"grant_id,omitempty"`
}

// ApplyClassification copies a classifier verdict onto the message.
func (m *Message) ApplyClassification(c ClassificationResult) {
	m.Zone = c.Zone
	m.Confidence = c.Confidence
	m.Reason = c.Reason
	m.PersonalityMessage = c.PersonalityMessage
	m.Summary = c.Summary
	m.RecommendedAction = c.RecommendedAction
	m.ActionType = c.ActionType
	m.DraftReply = c.DraftReply
	m.LLMFallback = c.Fallback
	m.NeedsReply = c.ActionType != nil && *c.ActionType == ActionReply
}

// ActionCenter is the operator's to-do view over active mail.
type ActionCenter struct {
	UrgentCount      int       `json:"urgent_count"`
	NeedsReplyCount  int       `json:"needs_reply_count"`
	SnoozedDueCount  int       `json:"snoozed_due_count"`
	DoneToday        int       `json:"done_today"`
	TotalActionItems int       `json:"total_action_items"`
	UrgentItems      []Message `json:"urgent_items"`
	NeedsReply       []Message `json:"needs_reply"`
	SnoozedDue       []Message `json:"snoozed_due"`
}

// SyncResult reports one pull from a connected mailbox.
type SyncResult struct {
	Synced  int             `json:"synced"`
	Skipped int             `json:"skipped"`
	Failed  int             `json:"failed"`
	Results []SyncedMessage `json:"results"`
}

// SyncedMessage is one newly stored message in a SyncResult.
type SyncedMessage struct {
	ID      uuid.UUID `json:"id"`
	Subject string    `json:"subject"`
	Zone    Zone      `json:"zone"`
}

// Correction records a user moving a message to a different zone.
type Correction struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	MessageID   uuid.UUID `json:"message_id"`
	OldZone     Zone      `json:"old_zone"`
	NewZone     Zone      `json:"new_zone"`
	Sender      string    `json:"sender"`
	CorrectedAt time.Time `json:"corrected_at"`
}

// Source is a forwarding inbox: mail sent to its inbound address is triaged
// for the owning user.
type Source struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Name           string    `json:"name"`
	InboundToken   string    `json:"inbound_token"`
	InboundAddress string    `json:"inbound_address"`
	EmailCount     int       `json:"email_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// User is an account that owns messages and sources.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stats summarizes a user's triage activity.
type Stats struct {
	TotalMessages    int          `json:"total_messages"`
	TotalCorrections int          `json:"total_corrections"`
	ZoneCounts       map[Zone]int `json:"zone_counts"`
}

// NewZoneCounts returns a count map with every zone present at zero.
func NewZoneCounts() map[Zone]int {
	m := make(map[Zone]int, len(Zones))
	for _, z := range Zones {
		m[z] = 0
	}
	return m
}
