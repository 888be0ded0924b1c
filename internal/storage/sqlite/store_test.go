package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Knowmad79/Docbox2026/internal/lifecycle"
	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/storage"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "docbox.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docbox.db")
	s, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	s.Close(context.Background())

	s, err = Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	s.Close(context.Background())
}

func TestUsersAndMessages(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)

	u, err := s.CreateUser(ctx, model.User{Email: "Doc@Clinic.test", Name: "Doc", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, "doc@clinic.test", u.Email)
	_, err = s.CreateUser(ctx, model.User{Email: "doc@clinic.test", PasswordHash: "h"})
	assert.ErrorIs(t, err, storage.ErrDuplicateEmail)

	got, err := s.GetUserByEmail(ctx, "DOC@clinic.test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	draft := "Thanks, will do."
	reply := model.ActionReply
	m, err := s.CreateMessage(ctx, model.Message{
		UserID: u.ID, Sender: "pharmacy@cvs.com", SenderDomain: "cvs.com", Subject: "Refill",
		Zone: model.ZoneToday, Confidence: 0.85, Reason: "refill", DraftReply: &draft, ActionType: &reply,
		LLMFallback: true,
	})
	require.NoError(t, err)

	back, err := s.GetMessage(ctx, u.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ZoneToday, back.Zone)
	assert.True(t, back.LLMFallback)
	assert.False(t, back.Corrected)
	require.NotNil(t, back.DraftReply)
	assert.Equal(t, draft, *back.DraftReply)
	assert.Nil(t, back.Summary)
	assert.WithinDuration(t, m.ReceivedAt, back.ReceivedAt, time.Microsecond)

	updated, c, err := s.ApplyCorrection(ctx, model.Correction{UserID: u.ID, MessageID: m.ID, NewZone: model.ZoneStat},
		"sender:pharmacy@cvs.com")
	require.NoError(t, err)
	assert.Equal(t, model.ZoneStat, updated.Zone)
	assert.True(t, updated.Corrected)
	assert.Equal(t, model.ZoneToday, c.OldZone)

	zone, ok, err := s.GetRuleOverride(ctx, "sender:pharmacy@cvs.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.ZoneStat, zone)

	st, err := s.Stats(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalMessages)
	assert.Equal(t, 1, st.TotalCorrections)
	assert.Equal(t, 1, st.ZoneCounts[model.ZoneStat])

	until := time.Now().Add(2 * time.Hour)
	snoozed, err := s.UpdateMessageStatus(ctx, u.ID, m.ID, model.StatusSnoozed, &until)
	require.NoError(t, err)
	require.NotNil(t, snoozed.SnoozedUntil)

	list, err := s.ListMessages(ctx, u.ID, model.ZoneLater)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.DeleteMessage(ctx, u.ID, m.ID))
	_, err = s.GetMessage(ctx, u.ID, m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMessages_ReplyCompletionAndProviderID(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	u, err := s.CreateUser(ctx, model.User{Email: "r@b.test", PasswordHash: "h"})
	require.NoError(t, err)

	pid, grant := "prov-1", "grant-1"
	m, err := s.CreateMessage(ctx, model.Message{
		UserID: u.ID, Sender: "pharmacy@cvs.com", SenderDomain: "cvs.com", Subject: "Refill",
		Zone: model.ZoneToday, Confidence: 0.85, Reason: "refill", NeedsReply: true,
		ProviderMessageID: &pid, GrantID: &grant,
	})
	require.NoError(t, err)

	byProvider, err := s.GetMessageByProviderID(ctx, u.ID, pid)
	require.NoError(t, err)
	assert.Equal(t, m.ID, byProvider.ID)
	assert.True(t, byProvider.NeedsReply)
	require.NotNil(t, byProvider.GrantID)
	assert.Equal(t, grant, *byProvider.GrantID)

	_, err = s.GetMessageByProviderID(ctx, uuid.New(), pid)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.CreateMessage(ctx, model.Message{
		UserID: u.ID, Sender: "x@y.com", SenderDomain: "y.com", Subject: "again",
		Zone: model.ZoneLater, Confidence: 0.5, Reason: "r", ProviderMessageID: &pid,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateMessage)

	// Mail without a provider id never collides.
	for range 2 {
		_, err = s.CreateMessage(ctx, model.Message{
			UserID: u.ID, Sender: "x@y.com", SenderDomain: "y.com", Subject: "pasted",
			Zone: model.ZoneLater, Confidence: 0.5, Reason: "r",
		})
		require.NoError(t, err)
	}

	at := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	replied, err := s.MarkMessageReplied(ctx, u.ID, m.ID, at)
	require.NoError(t, err)
	assert.False(t, replied.NeedsReply)
	require.NotNil(t, replied.RepliedAt)
	assert.True(t, at.Equal(*replied.RepliedAt))

	_, err = s.MarkMessageReplied(ctx, uuid.New(), m.ID, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	done, err := s.UpdateMessageStatus(ctx, u.ID, m.ID, model.StatusDone, nil)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	first := *done.CompletedAt

	again, err := s.UpdateMessageStatus(ctx, u.ID, m.ID, model.StatusDone, nil)
	require.NoError(t, err)
	require.NotNil(t, again.CompletedAt)
	assert.True(t, first.Equal(*again.CompletedAt), "first completion is kept")

	reopened, err := s.UpdateMessageStatus(ctx, u.ID, m.ID, model.StatusActive, nil)
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
}

// legacyMessages is the messages table as first released.
const legacyMessages = `
CREATE TABLE users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE TABLE messages (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	source_id           TEXT,
	sender              TEXT NOT NULL,
	sender_domain       TEXT NOT NULL,
	subject             TEXT NOT NULL,
	snippet             TEXT NOT NULL DEFAULT '',
	zone                TEXT NOT NULL,
	confidence          REAL NOT NULL,
	reason              TEXT NOT NULL,
	personality_message TEXT NOT NULL DEFAULT '',
	summary             TEXT,
	recommended_action  TEXT,
	action_type         TEXT,
	draft_reply         TEXT,
	llm_fallback        INTEGER NOT NULL DEFAULT 1,
	corrected           INTEGER NOT NULL DEFAULT 0,
	corrected_at        TEXT,
	status              TEXT NOT NULL DEFAULT 'active',
	snoozed_until       TEXT,
	received_at         TEXT NOT NULL,
	classified_at       TEXT NOT NULL
);
INSERT INTO users (id, email, password_hash, created_at)
	VALUES ('6f1c1f62-3f5a-4d5e-9a59-0b8f8f0c9a11', 'old@clinic.test', 'h', '2026-01-01T00:00:00.000000000Z');
INSERT INTO messages (id, user_id, sender, sender_domain, subject, zone, confidence, reason, received_at, classified_at)
	VALUES ('0b0e8c1e-8f3c-4c4b-bb0c-6a3f1f7d2e01', '6f1c1f62-3f5a-4d5e-9a59-0b8f8f0c9a11', 'a@b.com', 'b.com',
	        'kept', 'LATER', 0.9, 'r', '2026-01-01T00:00:00.000000000Z', '2026-01-01T00:00:00.000000000Z');
`

func TestOpen_UpgradesLegacyMessagesTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, legacyMessages)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close(ctx)

	userID := uuid.MustParse("6f1c1f62-3f5a-4d5e-9a59-0b8f8f0c9a11")
	old, err := s.GetMessage(ctx, userID, uuid.MustParse("0b0e8c1e-8f3c-4c4b-bb0c-6a3f1f7d2e01"))
	require.NoError(t, err)
	assert.Equal(t, "kept", old.Subject)
	assert.False(t, old.NeedsReply)
	assert.Nil(t, old.ProviderMessageID)

	pid := "prov-9"
	_, err = s.CreateMessage(ctx, model.Message{
		UserID: userID, Sender: "x@y.com", SenderDomain: "y.com", Subject: "new",
		Zone: model.ZoneLater, Confidence: 0.5, Reason: "r", ProviderMessageID: &pid,
	})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, model.Message{
		UserID: userID, Sender: "x@y.com", SenderDomain: "y.com", Subject: "new",
		Zone: model.ZoneLater, Confidence: 0.5, Reason: "r", ProviderMessageID: &pid,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateMessage, "unique index added on upgrade")

	// A second open finds nothing left to add.
	s2, err := Open(ctx, path, nil)
	require.NoError(t, err)
	s2.Close(ctx)
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	u, err := s.CreateUser(ctx, model.User{Email: "a@b.test", PasswordHash: "h"})
	require.NoError(t, err)

	src, err := s.CreateSource(ctx, model.Source{UserID: u.ID, Name: "Fax", InboundToken: "abcdef0123456789",
		InboundAddress: "inbox-abcdef0123456789@inbound.test"})
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, model.Message{UserID: u.ID, SourceID: &src.ID, Sender: "x@y.z", SenderDomain: "y.z",
		Subject: "s", Zone: model.ZoneLater, Reason: "r"})
	require.NoError(t, err)

	byToken, err := s.GetSourceByToken(ctx, "abcdef0123456789")
	require.NoError(t, err)
	assert.Equal(t, 1, byToken.EmailCount)

	require.NoError(t, s.DeleteSource(ctx, u.ID, src.ID))
	assert.ErrorIs(t, s.DeleteSource(ctx, u.ID, src.ID), storage.ErrNotFound)
}

func TestVectors_DuplicateAndLifecycle(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	role := model.RolePracticeManager
	p := model.VectorPayload{
		NylasMessageID: "m-1", GrantID: "g-1", IntentLabel: model.IntentBilling, RiskScore: 0.95,
		ContextBlob: map[string]any{"dollar_amount": "1200"}, Summary: "Denied claim",
		DeadlineAt: time.Now().Add(time.Hour), LifecycleState: model.StateNew, CurrentOwnerRole: &role,
	}

	v, err := s.CreateVector(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "1200", v.ContextBlob["dollar_amount"])
	_, err = s.CreateVector(ctx, p)
	assert.ErrorIs(t, err, storage.ErrDuplicateVector)

	m := lifecycle.New(s, nil)
	for _, to := range []model.LifecycleState{model.StateAssigned, model.StateResolved, model.StateArchived} {
		_, err := m.Transition(ctx, v.ID, to, "")
		require.NoError(t, err)
	}
	_, err = m.Transition(ctx, v.ID, model.StateAssigned, "")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	events, err := s.ListEvents(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Changed from ASSIGNED to RESOLVED by system", events[1].Description)

	got, err := s.GetVectorByMessageID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateArchived, got.LifecycleState)

	_, err = m.Transition(ctx, uuid.New(), model.StateNew, "")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestVectors_ConcurrentTransitions(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	v, err := s.CreateVector(ctx, model.VectorPayload{NylasMessageID: "m-2", GrantID: "g", IntentLabel: model.IntentAdmin,
		DeadlineAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	m := lifecycle.New(s, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Transition(ctx, v.ID, model.StateAssigned, ""); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestDeckAndSweep(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	now := time.Now()
	doc := model.RoleLeadDoctor

	mk := func(id string, risk float64, deadline time.Time) model.StateVector {
		v, err := s.CreateVector(ctx, model.VectorPayload{NylasMessageID: id, GrantID: "g", IntentLabel: model.IntentClinical,
			RiskScore: risk, DeadlineAt: deadline, CurrentOwnerRole: &doc})
		require.NoError(t, err)
		return v
	}
	a := mk("a", 0.95, now.Add(-time.Hour))
	b := mk("b", 0.85, now.Add(2*time.Hour))
	c := mk("c", 0.85, now.Add(time.Hour))

	deck, err := s.DailyDeck(ctx, doc, 20)
	require.NoError(t, err)
	require.Len(t, deck, 3)
	assert.Equal(t, []uuid.UUID{a.ID, c.ID, b.ID}, []uuid.UUID{deck[0].ID, deck[1].ID, deck[2].ID})

	marked, cleared, err := s.SweepOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
	assert.Equal(t, int64(0), cleared)

	// Sweeping from an earlier instant clears the flag again.
	_, cleared, err = s.SweepOverdue(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	list, err := s.ListVectors(ctx, model.StateNew, 2, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
