// Package triage is the business logic behind the inbox: it classifies and
// stores incoming email, applies user corrections so the classifier learns
// from them, and manages forwarding sources.
//
// The HTTP API, the MCP server and the CLI all delegate here.
package triage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Knowmad79/Docbox2026/internal/classifier"
	"github.com/Knowmad79/Docbox2026/internal/mailbox"
	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/storage"
)

// Sync and action center bounds.
const (
	DefaultSyncLimit = 50
	MaxSyncLimit     = 200
	ActionItemsShown = 5
)

const syncSnippetRunes = 200

// ErrInvalidInput wraps every validation failure returned by the service.
var ErrInvalidInput = errors.New("triage: invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Store is the persistence the service needs. Both the Postgres and SQLite
// stores implement it.
type Store interface {
	CreateMessage(ctx context.Context, m model.Message) (model.Message, error)
	GetMessage(ctx context.Context, userID, id uuid.UUID) (model.Message, error)
	GetMessageByProviderID(ctx context.Context, userID uuid.UUID, providerMessageID string) (model.Message, error)
	ListMessages(ctx context.Context, userID uuid.UUID, zone model.Zone) ([]model.Message, error)
	DeleteMessage(ctx context.Context, userID, id uuid.UUID) error
	UpdateMessageStatus(ctx context.Context, userID, id uuid.UUID, status model.MessageStatus, snoozedUntil *time.Time) (model.Message, error)
	MarkMessageReplied(ctx context.Context, userID, id uuid.UUID, at time.Time) (model.Message, error)
	ApplyCorrection(ctx context.Context, c model.Correction, senderKey string) (model.Message, model.Correction, error)
	Stats(ctx context.Context, userID uuid.UUID) (model.Stats, error)

	CreateSource(ctx context.Context, s model.Source) (model.Source, error)
	ListSources(ctx context.Context, userID uuid.UUID) ([]model.Source, error)
	DeleteSource(ctx context.Context, userID, id uuid.UUID) error
	GetSourceByToken(ctx context.Context, token string) (model.Source, error)
}

// Service implements triage operations.
type Service struct {
	store         Store
	classifier    *classifier.Classifier
	inboundDomain string
	logger        *slog.Logger
	mail          mailbox.Lister
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMailbox sets the connected mailbox Sync pulls from.
func WithMailbox(l mailbox.Lister) Option {
	return func(s *Service) {
		if l != nil {
			s.mail = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a triage Service. inboundDomain is the mail domain used to
// build forwarding addresses. Without WithMailbox, Sync fails with
// mailbox.ErrNotConfigured.
func New(store Store, c *classifier.Classifier, inboundDomain string, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:         store,
		classifier:    c,
		inboundDomain: inboundDomain,
		logger:        logger,
		mail:          mailbox.Disabled{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classify runs the classifier without storing anything.
func (s *Service) Classify(ctx context.Context, in model.EmailInput) (model.ClassificationResult, error) {
	if err := model.ValidateEmailInput(in); err != nil {
		return model.ClassificationResult{}, invalid("%v", err)
	}
	return s.classifier.Classify(ctx, in), nil
}

// Ingest classifies an email and stores it for the user.
func (s *Service) Ingest(ctx context.Context, userID uuid.UUID, in model.EmailInput) (model.Message, error) {
	return s.ingest(ctx, userID, origin{}, in)
}

// origin records where an ingested message came from.
type origin struct {
	sourceID   *uuid.UUID
	providerID *string
	grantID    *string
}

func (s *Service) ingest(ctx context.Context, userID uuid.UUID, from origin, in model.EmailInput) (model.Message, error) {
	if err := model.ValidateEmailInput(in); err != nil {
		return model.Message{}, invalid("%v", err)
	}
	if strings.TrimSpace(in.SenderDomain) == "" {
		in.SenderDomain = classifier.SenderDomain(in.Sender)
	}

	res := s.classifier.Classify(ctx, in)

	now := s.now().UTC()
	msg := model.Message{
		UserID:            userID,
		SourceID:          from.sourceID,
		ProviderMessageID: from.providerID,
		GrantID:           from.grantID,
		Sender:            in.Sender,
		SenderDomain:      in.SenderDomain,
		Subject:           in.Subject,
		Snippet:           in.Snippet,
		Status:            model.StatusActive,
		ReceivedAt:        now,
		ClassifiedAt:      now,
	}
	msg.ApplyClassification(res)

	stored, err := s.store.CreateMessage(ctx, msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("triage: ingest: %w", err)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("docbox.zone", string(stored.Zone)),
		attribute.Bool("docbox.fallback", stored.LLMFallback),
	)
	s.logger.Info("triage: message ingested",
		"message_id", stored.ID, "zone", stored.Zone, "fallback", stored.LLMFallback)
	return stored, nil
}

// CorrectResult is the outcome of a user correction.
type CorrectResult struct {
	Message  model.Message
	Response string
	Learning string
}

// Correct moves a message to newZone and teaches the classifier that mail
// from this sender belongs there.
func (s *Service) Correct(ctx context.Context, userID, messageID uuid.UUID, newZone string) (CorrectResult, error) {
	zone, ok := model.ParseZone(newZone)
	if !ok {
		return CorrectResult{}, invalid("zone must be one of STAT, TODAY, THIS_WEEK, LATER")
	}

	current, err := s.store.GetMessage(ctx, userID, messageID)
	if err != nil {
		return CorrectResult{}, err
	}

	msg, c, err := s.store.ApplyCorrection(ctx, model.Correction{
		UserID:    userID,
		MessageID: messageID,
		NewZone:   zone,
	}, classifier.SenderKey(current.Sender))
	if err != nil {
		return CorrectResult{}, fmt.Errorf("triage: correct: %w", err)
	}

	s.logger.Info("triage: correction applied",
		"message_id", messageID, "old_zone", c.OldZone, "new_zone", c.NewZone)
	return CorrectResult{
		Message:  msg,
		Response: s.classifier.CorrectionMessage(),
		Learning: fmt.Sprintf("DocBox will now route emails from '%s' to %s", msg.Sender, zone),
	}, nil
}

// List returns the user's messages, optionally limited to one zone.
func (s *Service) List(ctx context.Context, userID uuid.UUID, zone string) ([]model.Message, error) {
	var z model.Zone
	if zone != "" {
		var ok bool
		if z, ok = model.ParseZone(zone); !ok {
			return nil, invalid("unknown zone %q", zone)
		}
	}
	msgs, err := s.store.ListMessages(ctx, userID, z)
	if err != nil {
		return nil, fmt.Errorf("triage: list: %w", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// ByZone groups the user's messages by zone. Every zone is present.
func (s *Service) ByZone(ctx context.Context, userID uuid.UUID) (model.ZoneBoard, error) {
	msgs, err := s.store.ListMessages(ctx, userID, "")
	if err != nil {
		return model.ZoneBoard{}, fmt.Errorf("triage: by zone: %w", err)
	}
	board := model.ZoneBoard{
		Zones:  make(map[model.Zone][]model.Message, len(model.Zones)),
		Counts: model.NewZoneCounts(),
	}
	for _, z := range model.Zones {
		board.Zones[z] = []model.Message{}
	}
	for _, m := range msgs {
		board.Zones[m.Zone] = append(board.Zones[m.Zone], m)
		board.Counts[m.Zone]++
		board.Total++
	}
	return board, nil
}

// Get returns one message.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (model.Message, error) {
	return s.store.GetMessage(ctx, userID, id)
}

// Delete removes one message.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.DeleteMessage(ctx, userID, id)
}

// UpdateStatus sets the message's workflow status. Snoozing requires a
// future wake-up time.
func (s *Service) UpdateStatus(ctx context.Context, userID, id uuid.UUID, status string, snoozedUntil *time.Time) (model.Message, error) {
	st := model.MessageStatus(strings.ToLower(strings.TrimSpace(status)))
	if !st.Valid() {
		return model.Message{}, invalid("status must be one of active, done, archived, snoozed")
	}
	if st == model.StatusSnoozed && (snoozedUntil == nil || !snoozedUntil.After(s.now())) {
		return model.Message{}, invalid("snoozed_until must be a future time when snoozing")
	}
	return s.store.UpdateMessageStatus(ctx, userID, id, st, snoozedUntil)
}

// Stats summarizes the user's inbox.
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (model.Stats, error) {
	return s.store.Stats(ctx, userID)
}

// CreateSource registers a forwarding inbox with a fresh inbound address.
func (s *Service) CreateSource(ctx context.Context, userID uuid.UUID, name string) (model.Source, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Source{}, invalid("name is required")
	}
	token, err := newInboundToken()
	if err != nil {
		return model.Source{}, fmt.Errorf("triage: inbound token: %w", err)
	}
	return s.store.CreateSource(ctx, model.Source{
		UserID:         userID,
		Name:           name,
		InboundToken:   token,
		InboundAddress: fmt.Sprintf("inbox-%s@%s", token, s.inboundDomain),
	})
}

// ListSources returns the user's sources.
func (s *Service) ListSources(ctx context.Context, userID uuid.UUID) ([]model.Source, error) {
	srcs, err := s.store.ListSources(ctx, userID)
	if err != nil {
		return nil, err
	}
	if srcs == nil {
		srcs = []model.Source{}
	}
	return srcs, nil
}

// DeleteSource removes one of the user's sources.
func (s *Service) DeleteSource(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.DeleteSource(ctx, userID, id)
}

// IngestInbound stores mail forwarded to a source's inbound address. The
// token identifies both the source and its owner.
func (s *Service) IngestInbound(ctx context.Context, token string, in model.EmailInput) (model.Message, error) {
	src, err := s.store.GetSourceByToken(ctx, token)
	if err != nil {
		return model.Message{}, err
	}
	if strings.TrimSpace(in.Sender) == "" || strings.TrimSpace(in.Subject) == "" {
		return model.Message{}, invalid("could not parse email: missing sender or subject")
	}
	return s.ingest(ctx, src.UserID, origin{sourceID: &src.ID}, in)
}

// Sync pulls the newest limit inbox messages from the connected mailbox and
// classifies and stores the ones the user does not have yet. limit defaults
// to DefaultSyncLimit and is capped at MaxSyncLimit. A message that cannot
// be classified is counted as failed and does not stop the sync.
func (s *Service) Sync(ctx context.Context, userID uuid.UUID, grantID string, limit int) (model.SyncResult, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return model.SyncResult{}, invalid("grant_id is required")
	}
	if limit <= 0 {
		limit = DefaultSyncLimit
	}
	limit = min(limit, MaxSyncLimit)

	inbox, err := s.mail.List(ctx, grantID, limit)
	if err != nil {
		return model.SyncResult{}, fmt.Errorf("triage: sync %s: %w", grantID, err)
	}

	res := model.SyncResult{Results: []model.SyncedMessage{}}
	for _, in := range inbox {
		providerID := strings.TrimSpace(in.MessageID)
		if providerID == "" {
			res.Failed++
			continue
		}
		_, err := s.store.GetMessageByProviderID(ctx, userID, providerID)
		switch {
		case err == nil:
			res.Skipped++
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return res, fmt.Errorf("triage: sync lookup %s: %w", providerID, err)
		}

		if strings.TrimSpace(in.Snippet) == "" {
			in.Snippet = truncateRunes(strings.Join(strings.Fields(in.Body), " "), syncSnippetRunes)
		}
		msg, err := s.ingest(ctx, userID, origin{providerID: &providerID, grantID: &grantID}, in)
		switch {
		case err == nil:
			res.Synced++
			res.Results = append(res.Results, model.SyncedMessage{ID: msg.ID, Subject: msg.Subject, Zone: msg.Zone})
		case errors.Is(err, storage.ErrDuplicateMessage):
			res.Skipped++
		case errors.Is(err, ErrInvalidInput):
			res.Failed++
			s.logger.Warn("triage: sync skipped unreadable message",
				"provider_message_id", providerID, "error", err)
		default:
			return res, err
		}
	}

	s.logger.Info("triage: mailbox synced",
		"grant_id", grantID, "synced", res.Synced, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// MarkReplied records that the user answered a message, removing it from
// the needs-reply list.
func (s *Service) MarkReplied(ctx context.Context, userID, id uuid.UUID) (model.Message, error) {
	return s.store.MarkMessageReplied(ctx, userID, id, s.now().UTC())
}

// ActionCenter builds the user's to-do view: urgent active mail (STAT, then
// TODAY, newest first), active mail awaiting a reply, snoozed mail whose
// wake-up time has passed, and the number of messages completed in the last
// 24 hours. Urgent and needs-reply lists show at most ActionItemsShown items;
// the counts cover all of them.
func (s *Service) ActionCenter(ctx context.Context, userID uuid.UUID) (model.ActionCenter, error) {
	msgs, err := s.store.ListMessages(ctx, userID, "")
	if err != nil {
		return model.ActionCenter{}, fmt.Errorf("triage: action center: %w", err)
	}
	now := s.now()
	dayAgo := now.Add(-24 * time.Hour)

	var urgent, reply, snoozed []model.Message
	done := 0
	for _, m := range msgs {
		switch m.Status {
		case model.StatusActive:
			if m.Zone == model.ZoneStat || m.Zone == model.ZoneToday {
				urgent = append(urgent, m)
			}
			if m.NeedsReply {
				reply = append(reply, m)
			}
		case model.StatusSnoozed:
			if m.SnoozedUntil != nil && !m.SnoozedUntil.After(now) {
				snoozed = append(snoozed, m)
			}
		case model.StatusDone:
			if m.CompletedAt != nil && !m.CompletedAt.Before(dayAgo) {
				done++
			}
		}
	}

	// msgs is newest first; stable sorts keep that within each group.
	slices.SortStableFunc(urgent, func(a, b model.Message) int {
		return zoneRank(a.Zone) - zoneRank(b.Zone)
	})
	slices.SortStableFunc(snoozed, func(a, b model.Message) int {
		return a.SnoozedUntil.Compare(*b.SnoozedUntil)
	})

	return model.ActionCenter{
		UrgentCount:      len(urgent),
		NeedsReplyCount:  len(reply),
		SnoozedDueCount:  len(snoozed),
		DoneToday:        done,
		TotalActionItems: len(urgent) + len(snoozed),
		UrgentItems:      firstN(urgent, ActionItemsShown),
		NeedsReply:       firstN(reply, ActionItemsShown),
		SnoozedDue:       firstN(snoozed, len(snoozed)),
	}, nil
}

func zoneRank(z model.Zone) int {
	if z == model.ZoneStat {
		return 0
	}
	return 1
}

// firstN returns up to n items, never nil.
func firstN(ms []model.Message, n int) []model.Message {
	out := make([]model.Message, 0, min(len(ms), n))
	return append(out, ms[:min(len(ms), n)]...)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// newInboundToken returns 16 lowercase hex characters.
func newInboundToken() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
