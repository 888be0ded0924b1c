package triage_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Knowmad79/Docbox2026/internal/classifier"
	"github.com/Knowmad79/Docbox2026/internal/mailbox"
	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/service/triage"
	"github.com/Knowmad79/Docbox2026/internal/storage"
	"github.com/Knowmad79/Docbox2026/internal/storage/sqlite"
)

var _ triage.Store = (*storage.DB)(nil)
var _ triage.Store = (*sqlite.Store)(nil)

type fixture struct {
	svc    *triage.Service
	store  *sqlite.Store
	userID uuid.UUID
}

func setup(t *testing.T, opts ...triage.Option) fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "triage.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })

	u, err := store.CreateUser(ctx, model.User{Email: "doc@clinic.test", PasswordHash: "h"})
	require.NoError(t, err)

	c := classifier.New(classifier.Options{
		Overrides:          store,
		OverridesBeforeLLM: true,
		Picker:             classifier.FirstPicker,
	})
	return fixture{svc: triage.New(store, c, "inbound.test", nil, opts...), store: store, userID: u.ID}
}

func TestIngest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	m, err := f.svc.Ingest(ctx, f.userID, model.EmailInput{
		Sender:  "results@labcorp.com",
		Subject: "Abnormal potassium",
		Snippet: "see attached",
	})
	require.NoError(t, err)
	assert.Equal(t, "labcorp.com", m.SenderDomain)
	assert.Equal(t, model.ZoneStat, m.Zone)
	assert.True(t, m.LLMFallback)
	assert.Equal(t, model.StatusActive, m.Status)
	assert.NotEmpty(t, m.PersonalityMessage)

	_, err = f.svc.Ingest(ctx, f.userID, model.EmailInput{Sender: "a@b.com"})
	assert.ErrorIs(t, err, triage.ErrInvalidInput)
}

func TestCorrect_TeachesClassifier(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, f.userID, model.EmailInput{Sender: "Billing@X.com", Subject: "URGENT STAT"})
	require.NoError(t, err)
	require.Equal(t, model.ZoneStat, first.Zone)

	res, err := f.svc.Correct(ctx, f.userID, first.ID, "later")
	require.NoError(t, err)
	assert.Equal(t, model.ZoneLater, res.Message.Zone)
	assert.True(t, res.Message.Corrected)
	assert.Equal(t, "DocBox will now route emails from 'Billing@X.com' to LATER", res.Learning)
	assert.NotEmpty(t, res.Response)

	second, err := f.svc.Ingest(ctx, f.userID, model.EmailInput{Sender: "billing@x.com", Subject: "URGENT STAT again"})
	require.NoError(t, err)
	assert.Equal(t, model.ZoneLater, second.Zone)
	assert.InDelta(t, 0.95, second.Confidence, 1e-9)

	st, err := f.svc.Stats(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalMessages)
	assert.Equal(t, 1, st.TotalCorrections)
	assert.Equal(t, 2, st.ZoneCounts[model.ZoneLater])
}

func TestCorrect_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Correct(ctx, f.userID, uuid.New(), "TODAY")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	m, err := f.svc.Ingest(ctx, f.userID, model.EmailInput{Sender: "a@b.com", Subject: "hi"})
	require.NoError(t, err)
	_, err = f.svc.Correct(ctx, f.userID, m.ID, "SOMEDAY")
	assert.ErrorIs(t, err, triage.ErrInvalidInput)

	_, err = f.svc.Correct(ctx, uuid.New(), m.ID, "TODAY")
	assert.ErrorIs(t, err, storage.ErrNotFound, "other users cannot correct the message")
}

func TestListAndByZone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	seeded, err := f.svc.SeedDemo(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, seeded, 8)
	assert.Equal(t, model.ZoneStat, seeded[0].Zone)
	assert.Equal(t, model.ZoneToday, seeded[2].Zone)
	assert.Equal(t, model.ZoneLater, seeded[6].Zone)

	board, err := f.svc.ByZone(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 8, board.Total)
	assert.Len(t, board.Zones, 4)
	sum := 0
	for _, z := range model.Zones {
		assert.Len(t, board.Zones[z], board.Counts[z])
		sum += board.Counts[z]
	}
	assert.Equal(t, 8, sum)

	stat, err := f.svc.List(ctx, f.userID, "stat")
	require.NoError(t, err)
	assert.Len(t, stat, board.Counts[model.ZoneStat])

	_, err = f.svc.List(ctx, f.userID, "NEVER")
	assert.ErrorIs(t, err, triage.ErrInvalidInput)

	empty, err := f.svc.List(ctx, uuid.New(), "")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestUpdateStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	m, err := f.svc.Ingest(ctx, f.userID, model.EmailInput{Sender: "a@b.com", Subject: "hi"})
	require.NoError(t, err)

	done, err := f.svc.UpdateStatus(ctx, f.userID, m.ID, "DONE", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, done.Status)

	_, err = f.svc.UpdateStatus(ctx, f.userID, m.ID, "snoozed", nil)
	assert.ErrorIs(t, err, triage.ErrInvalidInput)

	past := time.Now().Add(-time.Minute)
	_, err = f.svc.UpdateStatus(ctx, f.userID, m.ID, "snoozed", &past)
	assert.ErrorIs(t, err, triage.ErrInvalidInput)

	future := time.Now().Add(time.Hour)
	snoozed, err := f.svc.UpdateStatus(ctx, f.userID, m.ID, "snoozed", &future)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSnoozed, snoozed.Status)

	_, err = f.svc.UpdateStatus(ctx, f.userID, m.ID, "deleted", nil)
	assert.ErrorIs(t, err, triage.ErrInvalidInput)

	require.NoError(t, f.svc.Delete(ctx, f.userID, m.ID))
	_, err = f.svc.Get(ctx, f.userID, m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSources_Inbound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateSource(ctx, f.userID, "  ")
	assert.ErrorIs(t, err, triage.ErrInvalidInput)

	src, err := f.svc.CreateSource(ctx, f.userID, "Gmail personal")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), src.InboundToken)
	assert.Equal(t, "inbox-"+src.InboundToken+"@inbound.test", src.InboundAddress)

	m, err := f.svc.IngestInbound(ctx, src.InboundToken, model.EmailInput{
		Sender: "pharmacy@walgreens.com", Subject: "Refill needed",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ZoneToday, m.Zone)
	require.NotNil(t, m.SourceID)
	assert.Equal(t, src.ID, *m.SourceID)

	_, err = f.svc.IngestInbound(ctx, src.InboundToken, model.EmailInput{Sender: "x@y.com"})
	assert.ErrorIs(t, err, triage.ErrInvalidInput)

	_, err = f.svc.IngestInbound(ctx, "0000000000000000", model.EmailInput{Sender: "x@y.com", Subject: "s"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := f.svc.ListSources(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].EmailCount)

	require.NoError(t, f.svc.DeleteSource(ctx, f.userID, src.ID))
	list, err = f.svc.ListSources(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClassify_DoesNotStore(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.Classify(ctx, model.EmailInput{Sender: "news@medscape.com", Subject: "Webinar"})
	require.NoError(t, err)
	assert.Equal(t, model.ZoneLater, res.Zone)

	st, err := f.svc.Stats(ctx, f.userID)
	require.NoError(t, err)
	assert.Zero(t, st.TotalMessages)
}

// inbox is a mailbox.Lister over fixed messages.
type inbox struct {
	msgs  []model.EmailInput
	err   error
	limit int
}

func (b *inbox) List(_ context.Context, grantID string, limit int) ([]model.EmailInput, error) {
	b.limit = limit
	if b.err != nil {
		return nil, b.err
	}
	out := make([]model.EmailInput, 0, len(b.msgs))
	for _, m := range b.msgs[:min(limit, len(b.msgs))] {
		m.GrantID = grantID
		out = append(out, m)
	}
	return out, nil
}

func TestSync(t *testing.T) {
	box := &inbox{msgs: []model.EmailInput{
		{MessageID: "p-1", Sender: "results@labcorp.com", Subject: "Critical potassium", Snippet: "6.8"},
		{MessageID: "p-2", Sender: "pharmacy@walgreens.com", Subject: "Refill request", Body: "Metformin   500mg\nplease confirm"},
		{MessageID: "p-3", Sender: "", Subject: "no sender"},
		{MessageID: "", Sender: "x@y.com", Subject: "no id"},
	}}
	f := setup(t, triage.WithMailbox(box))
	ctx := context.Background()

	res, err := f.svc.Sync(ctx, f.userID, "grant-1", 0)
	require.NoError(t, err)
	assert.Equal(t, triage.DefaultSyncLimit, box.limit)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 2, res.Failed)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "Critical potassium", res.Results[0].Subject)
	assert.Equal(t, model.ZoneStat, res.Results[0].Zone)
	assert.Equal(t, model.ZoneToday, res.Results[1].Zone)

	refill, err := f.svc.Get(ctx, f.userID, res.Results[1].ID)
	require.NoError(t, err)
	require.NotNil(t, refill.ProviderMessageID)
	assert.Equal(t, "p-2", *refill.ProviderMessageID)
	require.NotNil(t, refill.GrantID)
	assert.Equal(t, "grant-1", *refill.GrantID)
	assert.Equal(t, "Metformin 500mg please confirm", refill.Snippet)
	assert.True(t, refill.NeedsReply)

	// A second pull stores nothing new.
	again, err := f.svc.Sync(ctx, f.userID, "grant-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, triage.MaxSyncLimit, box.limit)
	assert.Zero(t, again.Synced)
	assert.Equal(t, 2, again.Skipped)
	assert.Empty(t, again.Results)

	st, err := f.svc.Stats(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalMessages)
}

func TestSync_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Sync(ctx, f.userID, "  ", 10)
	assert.ErrorIs(t, err, triage.ErrInvalidInput)

	_, err = f.svc.Sync(ctx, f.userID, "grant-1", 10)
	assert.ErrorIs(t, err, mailbox.ErrNotConfigured)

	down := setup(t, triage.WithMailbox(&inbox{err: errors.New("provider down")}))
	_, err = down.svc.Sync(ctx, down.userID, "grant-1", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

func TestSync_ConcurrentPullsStoreOnce(t *testing.T) {
	box := &inbox{msgs: []model.EmailInput{
		{MessageID: "dup-1", Sender: "pharmacy@walgreens.com", Subject: "Refill request"},
	}}
	f := setup(t, triage.WithMailbox(box))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]model.SyncResult, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.svc.Sync(ctx, f.userID, "g", 5)
		}()
	}
	wg.Wait()

	synced := 0
	for i := range results {
		require.NoError(t, errs[i])
		synced += results[i].Synced
		assert.Equal(t, 1, results[i].Synced+results[i].Skipped)
	}
	assert.Equal(t, 1, synced)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestActionCenter(t *testing.T) {
	clk := &clock{now: time.Now().UTC()}
	f := setup(t, triage.WithClock(clk.Now))
	ctx := context.Background()

	ingest := func(sender, subject string) model.Message {
		t.Helper()
		m, err := f.svc.Ingest(ctx, f.userID, model.EmailInput{Sender: sender, Subject: subject})
		require.NoError(t, err)
		clk.Advance(time.Second)
		return m
	}

	today := ingest("pharmacy@walgreens.com", "Refill request")
	stat := ingest("results@labcorp.com", "Critical potassium")
	for i := range 6 {
		ingest("referrals@clinic.test", fmt.Sprintf("Referral %d", i))
	}
	ingest("news@medscape.com", "Webinar")
	snoozed := ingest("billing@x.com", "Invoice")
	done := ingest("billing@y.com", "Statement")

	until := clk.Now().Add(time.Hour)
	_, err := f.svc.UpdateStatus(ctx, f.userID, snoozed.ID, "snoozed", &until)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.userID, done.ID, "done", nil)
	require.NoError(t, err)

	ac, err := f.svc.ActionCenter(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 8, ac.UrgentCount)
	require.Len(t, ac.UrgentItems, triage.ActionItemsShown)
	assert.Equal(t, stat.ID, ac.UrgentItems[0].ID, "STAT before TODAY")
	assert.Equal(t, "Referral 5", ac.UrgentItems[1].Subject, "newest first within a zone")
	assert.Equal(t, 7, ac.NeedsReplyCount, "STAT mail is for review, not reply")
	assert.Len(t, ac.NeedsReply, triage.ActionItemsShown)
	assert.Zero(t, ac.SnoozedDueCount, "snooze has not expired")
	assert.NotNil(t, ac.SnoozedDue)
	assert.Equal(t, 1, ac.DoneToday)
	assert.Equal(t, 8, ac.TotalActionItems)

	// Replying removes the message from the needs-reply list only.
	replied, err := f.svc.MarkReplied(ctx, f.userID, today.ID)
	require.NoError(t, err)
	assert.False(t, replied.NeedsReply)
	require.NotNil(t, replied.RepliedAt)

	clk.Advance(2 * time.Hour)
	ac, err = f.svc.ActionCenter(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 6, ac.NeedsReplyCount)
	assert.Equal(t, 8, ac.UrgentCount)
	assert.Equal(t, 1, ac.SnoozedDueCount)
	require.Len(t, ac.SnoozedDue, 1)
	assert.Equal(t, snoozed.ID, ac.SnoozedDue[0].ID)
	assert.Equal(t, 9, ac.TotalActionItems)

	// Completions older than a day drop out of done_today.
	clk.Advance(25 * time.Hour)
	ac, err = f.svc.ActionCenter(ctx, f.userID)
	require.NoError(t, err)
	assert.Zero(t, ac.DoneToday)

	_, err = f.svc.MarkReplied(ctx, f.userID, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
