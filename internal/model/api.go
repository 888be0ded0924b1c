package model

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field length limits for inbound email fields. They keep a single oversized
// field from filling Postgres TEXT columns or blowing up LLM prompts.
const (
	MaxSenderLen  = 320
	MaxSubjectLen = 1000
	MaxSnippetLen = 64 * 1024  // 64 KB
	MaxBodyLen    = 256 * 1024 // 256 KB
)

// ValidateEmailInput checks the fields every ingestion path requires.
func ValidateEmailInput(in EmailInput) error {
	if strings.TrimSpace(in.Sender) == "" {
		return fmt.Errorf("sender is required")
	}
	if strings.TrimSpace(in.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if len(in.Sender) > MaxSenderLen {
		return fmt.Errorf("sender exceeds maximum length of %d characters", MaxSenderLen)
	}
	if len(in.Subject) > MaxSubjectLen {
		return fmt.Errorf("subject exceeds maximum length of %d characters", MaxSubjectLen)
	}
	if len(in.Snippet) > MaxSnippetLen {
		return fmt.Errorf("snippet exceeds maximum length of %d bytes", MaxSnippetLen)
	}
	if len(in.Body) > MaxBodyLen {
		return fmt.Errorf("body exceeds maximum length of %d bytes", MaxBodyLen)
	}
	return nil
}

// ValidateEmailAddress accepts a bare address ("a@b.com") and rejects display-name forms.
func ValidateEmailAddress(addr string) error {
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
)

// RegisterRequest is the request body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// CorrectRequest is the request body for POST /v1/messages/{id}/correct.
type CorrectRequest struct {
	NewZone string `json:"new_zone"`
}

// CorrectResponse reports a stored correction and what the classifier learned.
type CorrectResponse struct {
	Message  Message `json:"message"`
	Response string  `json:"response"`
	Learning string  `json:"learning"`
}

// StatusRequest is the request body for POST /v1/messages/{id}/status.
type StatusRequest struct {
	Status       string     `json:"status"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
}

// SyncRequest is the request body for POST /v1/sync. A zero limit uses the
// server default.
type SyncRequest struct {
	GrantID string `json:"grant_id"`
	Limit   int    `json:"limit,omitempty"`
}

// ZoneBoard groups a user's messages by zone.
type ZoneBoard struct {
	Zones  map[Zone][]Message `json:"zones"`
	Counts map[Zone]int       `json:"counts"`
	Total  int                `json:"total"`
}

// CreateSourceRequest is the request body for POST /v1/sources.
type CreateSourceRequest struct {
	Name string `json:"name"`
}

// InboundResult is returned to the mail relay that forwarded a message.
type InboundResult struct {
	MessageID          uuid.UUID `json:"message_id"`
	Zone               Zone      `json:"zone"`
	PersonalityMessage string    `json:"personality_message"`
}

// SeedResult is one row of POST /v1/demo/seed output.
type SeedResult struct {
	Subject string `json:"subject"`
	Zone    Zone   `json:"zone"`
}

// TransitionRequest is the request body for POST /v1/vectors/{id}/transition.
type TransitionRequest struct {
	State string `json:"state"`
	Actor string `json:"actor,omitempty"`
}

// ReplayRequest is the request body for POST /v1/shadow/replay.
type ReplayRequest struct {
	GrantID   string `json:"grant_id"`
	MessageID string `json:"message_id"`
	Repeat    int    `json:"repeat"`
}

// ReplayResult reports a manual Shadow Router replay.
type ReplayResult struct {
	GrantID   string `json:"grant_id"`
	MessageID string `json:"message_id"`
	Repeat    int    `json:"repeat"`
}

// VectorDetail is a state vector with its audit history.
type VectorDetail struct {
	Vector StateVector  `json:"vector"`
	Events []StateEvent `json:"events"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Database      string `json:"database"`
	LLMConfigured bool   `json:"llm_configured"`
	Uptime        int64  `json:"uptime_seconds"`
}

// WebhookNotification is the payload mailbox providers post for new mail.
type WebhookNotification struct {
	Deltas []WebhookDelta `json:"deltas"`
}

// WebhookDelta is one change notification inside a webhook payload.
type WebhookDelta struct {
	Type       string            `json:"type"`
	ObjectData WebhookObjectData `json:"object_data"`
}

// WebhookObjectData identifies the message a delta refers to.
type WebhookObjectData struct {
	ID      string `json:"id"`
	GrantID string `json:"grant_id"`
}
