package model

import (
	"time"

	"github.com/google/uuid"
)

// IntentLabel is the Shadow Router's taxonomy for what an email is about.
type IntentLabel string

const (
	IntentClinical   IntentLabel = "CLINICAL"
	IntentBilling    IntentLabel = "BILLING"
	IntentAdmin      IntentLabel = "ADMIN"
	IntentScheduling IntentLabel = "SCHEDULING"
	IntentVendor     IntentLabel = "VENDOR"
	IntentSpam       IntentLabel = "SPAM"
)

// Valid reports whether l is one of the six intent labels.
func (l IntentLabel) Valid() bool {
	switch l {
	case IntentClinical, IntentBilling, IntentAdmin, IntentScheduling, IntentVendor, IntentSpam:
		return true
	}
	return false
}

// LifecycleState is the workflow status of a state vector.
type LifecycleState string

const (
	StateNew       LifecycleState = "NEW"
	StateAssigned  LifecycleState = "ASSIGNED"
	StateEscalated LifecycleState = "ESCALATED"
	StateResolved  LifecycleState = "RESOLVED"
	StateArchived  LifecycleState = "ARCHIVED"
)

// Valid reports whether s is a known lifecycle state.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateNew, StateAssigned, StateEscalated, StateResolved, StateArchived:
		return true
	}
	return false
}

// Closed reports whether the vector no longer needs attention.
func (s LifecycleState) Closed() bool {
	return s == StateResolved || s == StateArchived
}

// OwnerRole identifies who in the practice owns a routed message.
type OwnerRole string

const (
	RoleMedicalAssistant  OwnerRole = "medical_assistant"
	RoleBillingSpecialist OwnerRole = "billing_specialist"
	RoleFrontDesk         OwnerRole = "front_desk"
	RoleOfficeManager     OwnerRole = "office_manager"
	RoleSystemArchive     OwnerRole = "system_archive"
	RoleLeadDoctor        OwnerRole = "lead_doctor"
	RolePracticeManager   OwnerRole = "practice_manager"
)

// EventStateChange is the event type written for every lifecycle transition.
const EventStateChange = "STATE_CHANGE"

// VectorPayload is a state vector before it is persisted.
type VectorPayload struct {
	NylasMessageID   string         `json:"nylas_message_id"`
	GrantID          string         `json:"grant_id"`
	IntentLabel      IntentLabel    `json:"intent_label"`
	RiskScore        float64        `json:"risk_score"`
	ContextBlob      map[string]any `json:"context_blob"`
	Summary          string         `json:"summary"`
	DeadlineAt       time.Time      `json:"deadline_at"`
	LifecycleState   LifecycleState `json:"lifecycle_state"`
	CurrentOwnerRole *OwnerRole     `json:"current_owner_role"`
}

// StateVector is the persisted Shadow Router record of one source message.
type StateVector struct {
	ID               uuid.UUID      `json:"id"`
	NylasMessageID   string         `json:"nylas_message_id"`
	GrantID          string         `json:"grant_id"`
	IntentLabel      IntentLabel    `json:"intent_label"`
	RiskScore        float64        `json:"risk_score"`
	ContextBlob      map[string]any `json:"context_blob"`
	Summary          string         `json:"summary"`
	CurrentOwnerRole *OwnerRole     `json:"current_owner_role"`
	DeadlineAt       time.Time      `json:"deadline_at"`
	LifecycleState   LifecycleState `json:"lifecycle_state"`
	IsOverdue        bool           `json:"is_overdue"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// StateEvent is one immutable entry in a vector's audit history.
type StateEvent struct {
	ID          uuid.UUID `json:"id"`
	VectorID    uuid.UUID `json:"vector_id"`
	EventType   string    `json:"event_type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateChange describes a lifecycle transition a store must apply atomically.
type StateChange struct {
	From        LifecycleState
	To          LifecycleState
	EventType   string
	Description string
}
