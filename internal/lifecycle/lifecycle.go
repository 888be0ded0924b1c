// Package lifecycle enforces the legal workflow transitions of a state
// vector and records an audit event for each one.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/storage"
	"github.com/Knowmad79/Docbox2026/internal/telemetry"
)

// DefaultActor is recorded when a transition names no actor.
const DefaultActor = "system"

// ErrNotFound is returned when the vector does not exist.
var ErrNotFound = storage.ErrNotFound

// ErrInvalidTransition matches every *InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

// InvalidTransitionError reports a requested edge that is not in the table.
type InvalidTransitionError struct {
	From model.LifecycleState
	To   model.LifecycleState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: invalid transition: %s -> %s", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) true.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var edges = map[model.LifecycleState][]model.LifecycleState{
	model.StateNew:       {model.StateAssigned, model.StateResolved, model.StateArchived},
	model.StateAssigned:  {model.StateResolved, model.StateEscalated, model.StateArchived},
	model.StateEscalated: {model.StateResolved, model.StateArchived},
	model.StateResolved:  {model.StateArchived, model.StateNew},
	model.StateArchived:  {model.StateNew},
}

// Allowed reports whether from -> to is a legal edge.
func Allowed(from, to model.LifecycleState) bool {
	return slices.Contains(edges[from], to)
}

// Targets lists the states reachable from from in one step.
func Targets(from model.LifecycleState) []model.LifecycleState {
	return slices.Clone(edges[from])
}

// Store applies a lifecycle change to one vector atomically. The decide
// callback runs while the vector is locked against concurrent transitions;
// when it returns an error nothing is written and that error is returned.
type Store interface {
	UpdateLifecycle(ctx context.Context, id uuid.UUID,
		decide func(current model.LifecycleState) (model.StateChange, error)) (model.StateVector, error)
}

// Machine runs transitions against a Store.
type Machine struct {
	store       Store
	logger      *slog.Logger
	transitions metric.Int64Counter
}

// New creates a Machine.
func New(store Store, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	counter, _ := telemetry.Meter("docbox/lifecycle").Int64Counter("docbox.lifecycle.transitions",
		metric.WithDescription("Lifecycle transition attempts by from, to and outcome"),
	)
	return &Machine{store: store, logger: logger, transitions: counter}
}

// Transition moves vector id to state to. The state write, updated_at bump
// and STATE_CHANGE event are one unit: either all land or none do.
func (m *Machine) Transition(ctx context.Context, id uuid.UUID, to model.LifecycleState, actor string) (model.StateVector, error) {
	if actor == "" {
		actor = DefaultActor
	}

	var from model.LifecycleState
	v, err := m.store.UpdateLifecycle(ctx, id, func(current model.LifecycleState) (model.StateChange, error) {
		from = current
		if !Allowed(current, to) {
			return model.StateChange{}, &InvalidTransitionError{From: current, To: to}
		}
		return model.StateChange{
			From:        current,
			To:          to,
			EventType:   model.EventStateChange,
			Description: Describe(current, to, actor),
		}, nil
	})

	outcome := "ok"
	switch {
	case errors.Is(err, ErrInvalidTransition):
		outcome = "invalid"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("outcome", outcome),
	))

	if err != nil {
		if outcome == "error" {
			return model.StateVector{}, fmt.Errorf("lifecycle: transition %s: %w", id, err)
		}
		return model.StateVector{}, err
	}
	m.logger.Info("lifecycle: transition", "vector_id", id, "from", from, "to", to, "actor", actor)
	return v, nil
}

// Describe renders the audit description for a transition.
func Describe(from, to model.LifecycleState, actor string) string {
	return fmt.Sprintf("Changed from %s to %s by %s", from, to, actor)
}
