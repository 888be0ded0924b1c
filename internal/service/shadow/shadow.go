// Package shadow runs the Shadow Router: every incoming message is turned into
// a structured state vector (intent, risk, deadline), routed to an owner role
// and tracked through the lifecycle state machine. It is independent of the
// zone classifier and shares no state with it.
package shadow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Knowmad79/Docbox2026/internal/lifecycle"
	"github.com/Knowmad79/Docbox2026/internal/mailbox"
	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/routing"
	"github.com/Knowmad79/Docbox2026/internal/storage"
	"github.com/Knowmad79/Docbox2026/internal/telemetry"
	"github.com/Knowmad79/Docbox2026/internal/vectorizer"
)

// Deck, list and replay bounds.
const (
	DefaultDeckLimit = 20
	MaxDeckLimit     = 100
	DefaultListLimit = 100
	MaxListLimit     = 500
	MaxReplay        = 50
)

// DefaultDeckRole is used when DailyDeck names no role.
const DefaultDeckRole = model.RoleLeadDoctor

const eventMessageNew = "message.created"

// ErrInvalidInput is returned for malformed arguments.
var ErrInvalidInput = errors.New("shadow: invalid input")

// Store is the persistence the Shadow Router needs.
type Store interface {
	lifecycle.Store
	CreateVector(ctx context.Context, p model.VectorPayload) (model.StateVector, error)
	GetVector(ctx context.Context, id uuid.UUID) (model.StateVector, error)
	GetVectorByMessageID(ctx context.Context, nylasMessageID string) (model.StateVector, error)
	ListVectors(ctx context.Context, state model.LifecycleState, limit, offset int) ([]model.StateVector, error)
	ListEvents(ctx context.Context, vectorID uuid.UUID) ([]model.StateEvent, error)
	DailyDeck(ctx context.Context, role model.OwnerRole, limit int) ([]model.StateVector, error)
	SweepOverdue(ctx context.Context, now time.Time) (marked, cleared int64, err error)
}

// Options configures a Service.
type Options struct {
	// Concurrency bounds how many webhook deltas are processed at once.
	Concurrency int
	Now         func() time.Time
	Logger      *slog.Logger
}

// Result is the outcome of processing one message.
type Result struct {
	Vector model.StateVector
	// Duplicate is true when a vector for the message already existed and
	// nothing new was written.
	Duplicate bool
}

// Service processes messages into state vectors and drives their lifecycle.
type Service struct {
	store       Store
	vectorizer  *vectorizer.Vectorizer
	fetcher     mailbox.Fetcher
	machine     *lifecycle.Machine
	concurrency int
	now         func() time.Time
	logger      *slog.Logger

	flight singleflight.Group
	bg     sync.WaitGroup

	mu       sync.Mutex // guards draining and bg.Add
	draining bool

	duplicates metric.Int64Counter
	processed  metric.Int64Counter
	overdue    metric.Int64Counter
}

// New creates a Service. fetcher may be nil when no mail provider is
// configured; ProcessRemote then fails with mailbox.ErrNotConfigured.
func New(store Store, v *vectorizer.Vectorizer, fetcher mailbox.Fetcher, opts Options) *Service {
	if fetcher == nil {
		fetcher = mailbox.Disabled{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	meter := telemetry.Meter("docbox/shadow")
	dups, _ := meter.Int64Counter("docbox.shadow.duplicates",
		metric.WithDescription("Messages skipped because a state vector already existed"),
	)
	processed, _ := meter.Int64Counter("docbox.shadow.processed",
		metric.WithDescription("State vectors created, by intent and owner role"),
	)
	overdue, _ := meter.Int64Counter("docbox.overdue.marked",
		metric.WithDescription("State vectors flagged overdue by the sweep"),
	)

	return &Service{
		store:       store,
		vectorizer:  v,
		fetcher:     fetcher,
		machine:     lifecycle.New(store, opts.Logger),
		concurrency: opts.Concurrency,
		now:         opts.Now,
		logger:      opts.Logger,
		duplicates:  dups,
		processed:   processed,
		overdue:     overdue,
	}
}

// Process vectorizes, routes and stores one message. A message that already
// has a vector is not processed again: the existing vector is returned with
// Duplicate set. Concurrent calls for the same message id share one run,
// which completes even if the caller that started it is cancelled.
func (s *Service) Process(ctx context.Context, in model.EmailInput) (Result, error) {
	in.MessageID = strings.TrimSpace(in.MessageID)
	if in.MessageID == "" {
		in.MessageID = "local-" + uuid.NewString()
	}

	// The shared run outlives any single caller: one caller giving up must
	// not fail the others waiting on the same message.
	runCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(in.MessageID, func() (any, error) {
		return s.process(runCtx, in)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Service) process(ctx context.Context, in model.EmailInput) (Result, error) {
	// 1. Skip the model call entirely when the message was seen before.
	existing, err := s.store.GetVectorByMessageID(ctx, in.MessageID)
	switch {
	case err == nil:
		return s.duplicate(ctx, existing), nil
	case !errors.Is(err, storage.ErrNotFound):
		return Result{}, fmt.Errorf("shadow: lookup %s: %w", in.MessageID, err)
	}

	// 2. Vectorize (never fails) and route.
	payload := routing.Route(s.vectorizer.Vectorize(ctx, in))

	// 3. Insert. Losing a race to another writer is a duplicate, not an error.
	vec, err := s.store.CreateVector(ctx, payload)
	if errors.Is(err, storage.ErrDuplicateVector) {
		existing, gerr := s.store.GetVectorByMessageID(ctx, in.MessageID)
		if gerr != nil {
			return Result{}, fmt.Errorf("shadow: reload duplicate %s: %w", in.MessageID, gerr)
		}
		return s.duplicate(ctx, existing), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("shadow: create vector: %w", err)
	}

	role := ""
	if vec.CurrentOwnerRole != nil {
		role = string(*vec.CurrentOwnerRole)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("docbox.vector_id", vec.ID.String()),
		attribute.String("docbox.intent", string(vec.IntentLabel)),
		attribute.String("docbox.owner_role", role),
	)
	s.processed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("intent", string(vec.IntentLabel)),
		attribute.String("role", role),
	))
	s.logger.Info("shadow: vector created",
		"vector_id", vec.ID, "intent", vec.IntentLabel, "risk", vec.RiskScore, "role", role)
	return Result{Vector: vec}, nil
}

func (s *Service) duplicate(ctx context.Context, v model.StateVector) Result {
	s.duplicates.Add(ctx, 1)
	s.logger.Info("shadow: duplicate message ignored",
		"vector_id", v.ID, "nylas_message_id", v.NylasMessageID)
	return Result{Vector: v, Duplicate: true}
}

// ProcessRemote fetches a message from the mail provider and processes it.
func (s *Service) ProcessRemote(ctx context.Context, grantID, messageID string) (Result, error) {
	if strings.TrimSpace(grantID) == "" || strings.TrimSpace(messageID) == "" {
		return Result{}, fmt.Errorf("%w: grant_id and message_id are required", ErrInvalidInput)
	}
	in, err := s.fetcher.Fetch(ctx, grantID, messageID)
	if err != nil {
		return Result{}, fmt.Errorf("shadow: fetch %s: %w", messageID, err)
	}
	in.MessageID = messageID
	in.GrantID = grantID
	return s.Process(ctx, in)
}

// HandleDeltas schedules background processing for every message.created
// delta that names both a grant and a message. It returns the number of
// deltas accepted. Failures are logged and never reach the caller.
func (s *Service) HandleDeltas(ctx context.Context, deltas []model.WebhookDelta) int {
	var jobs []model.WebhookObjectData
	for _, d := range deltas {
		if d.Type != eventMessageNew || d.ObjectData.ID == "" || d.ObjectData.GrantID == "" {
			continue
		}
		jobs = append(jobs, d.ObjectData)
	}
	if len(jobs) == 0 {
		return 0
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		s.logger.Warn("shadow: draining, webhook deltas dropped", "count", len(jobs))
		return 0
	}
	s.bg.Add(1)
	s.mu.Unlock()

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.bg.Done()
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, job := range jobs {
			g.Go(func() error {
				if _, err := s.ProcessRemote(bgCtx, job.GrantID, job.ID); err != nil {
					s.logger.Error("shadow: webhook delta failed",
						"nylas_message_id", job.ID, "grant_id", job.GrantID, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return len(jobs)
}

// Drain stops HandleDeltas from accepting new work, then waits for the work
// already scheduled. Deltas arriving after Drain are dropped and counted as
// not accepted.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	return s.Wait(ctx)
}

// Wait blocks until background webhook work has finished or ctx is done. It
// does not stop new work from being scheduled; use Drain at shutdown.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Replay processes the same remote message repeat times in sequence, clamped
// to [1, MaxReplay]. Every run after the first is expected to be a duplicate.
func (s *Service) Replay(ctx context.Context, grantID, messageID string, repeat int) (int, []Result, error) {
	repeat = min(max(repeat, 1), MaxReplay)
	results := make([]Result, 0, repeat)
	for range repeat {
		r, err := s.ProcessRemote(ctx, grantID, messageID)
		if err != nil {
			return repeat, results, err
		}
		results = append(results, r)
	}
	return repeat, results, nil
}

// Transition moves a vector to a new lifecycle state.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to, actor string) (model.StateVector, error) {
	state := model.LifecycleState(strings.ToUpper(strings.TrimSpace(to)))
	if !state.Valid() {
		return model.StateVector{}, fmt.Errorf("%w: unknown lifecycle state %q", ErrInvalidInput, to)
	}
	return s.machine.Transition(ctx, id, state, actor)
}

// Get returns one vector.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.StateVector, error) {
	return s.store.GetVector(ctx, id)
}

// Events returns a vector's audit history, oldest first.
func (s *Service) Events(ctx context.Context, id uuid.UUID) ([]model.StateEvent, error) {
	if _, err := s.store.GetVector(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.StateEvent{}
	}
	return events, nil
}

// List returns vectors, optionally filtered by lifecycle state.
func (s *Service) List(ctx context.Context, state string, limit, offset int) ([]model.StateVector, error) {
	var st model.LifecycleState
	if state != "" {
		st = model.LifecycleState(strings.ToUpper(strings.TrimSpace(state)))
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown lifecycle state %q", ErrInvalidInput, state)
		}
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)
	return nonNil(s.store.ListVectors(ctx, st, limit, offset))
}

// DailyDeck lists open (NEW or ASSIGNED) vectors owned by role, riskiest
// first, then by nearest deadline.
func (s *Service) DailyDeck(ctx context.Context, role string, limit int) ([]model.StateVector, error) {
	r := model.OwnerRole(strings.ToLower(strings.TrimSpace(role)))
	if r == "" {
		r = DefaultDeckRole
	}
	if limit <= 0 {
		limit = DefaultDeckLimit
	}
	limit = min(limit, MaxDeckLimit)
	return nonNil(s.store.DailyDeck(ctx, r, limit))
}

// SweepOverdue flags open vectors whose deadline has passed and clears the
// flag on vectors that no longer qualify.
func (s *Service) SweepOverdue(ctx context.Context) (marked, cleared int64, err error) {
	marked, cleared, err = s.store.SweepOverdue(ctx, s.now())
	if err != nil {
		return 0, 0, fmt.Errorf("shadow: sweep overdue: %w", err)
	}
	if marked > 0 {
		s.overdue.Add(ctx, marked)
	}
	if marked > 0 || cleared > 0 {
		s.logger.Info("shadow: overdue sweep", "marked", marked, "cleared", cleared)
	}
	return marked, cleared, nil
}

func nonNil(vs []model.StateVector, err error) ([]model.StateVector, error) {
	if err != nil {
		return nil, err
	}
	if vs == nil {
		vs = []model.StateVector{}
	}
	return vs, nil
}
