package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/routing"
	"github.com/Knowmad79/Docbox2026/internal/storage/sqlite"
)

func init() {
	color.NoColor = true
}

// setupEnv points the CLI at a fresh SQLite file with no model or mailbox.
func setupEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.db")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DOCBOX_SQLITE_PATH", path)
	t.Setenv("DOCBOX_LLM_PROVIDER", "none")
	t.Setenv("DOCBOX_MAIL_PROVIDER", "none")
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := RootCmd("test", nil)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func seedVector(t *testing.T, path string, deadline time.Time) model.StateVector {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, path, nil)
	require.NoError(t, err)
	defer store.Close(ctx)

	v, err := store.CreateVector(ctx, routing.Route(model.VectorPayload{
		NylasMessageID: "msg-1",
		GrantID:        "grant-1",
		IntentLabel:    model.IntentClinical,
		RiskScore:      0.9,
		ContextBlob:    map[string]any{"patient_name": "Jane Roe"},
		Summary:        "Critical potassium result",
		DeadlineAt:     deadline,
		LifecycleState: model.StateNew,
	}))
	require.NoError(t, err)
	return v
}

func TestClassifyRulePath(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "classify",
		"--sender", "alerts@labcorp.com",
		"--subject", "Critical potassium",
		"--snippet", "Call the patient today")
	require.NoError(t, err)
	assert.Contains(t, out, "STAT  92%")
	assert.Contains(t, out, "engine: rules")
}

func TestClassifyRequiresSender(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "classify", "--subject", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sender")
}

func TestVectorizeWithoutModelIsDegraded(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "vectorize",
		"--subject", "Invoice 42",
		"--sender", "billing@vendor.test",
		"--message-id", "m-9")
	require.NoError(t, err)
	assert.Contains(t, out, `"intent_label": "ADMIN"`)
	assert.Contains(t, out, `"current_owner_role": "front_desk"`)
	assert.Contains(t, out, `"nylas_message_id": "m-9"`)
}

func TestMigrate(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite)")
}

func TestDeckSweepTransition(t *testing.T) {
	path := setupEnv(t)
	v := seedVector(t, path, time.Now().Add(-time.Hour))
	require.NotNil(t, v.CurrentOwnerRole)
	require.Equal(t, model.RoleLeadDoctor, *v.CurrentOwnerRole)

	out, err := execute(t, "deck")
	require.NoError(t, err)
	assert.Contains(t, out, v.ID.String())
	assert.Contains(t, out, "Critical potassium result")
	assert.NotContains(t, out, "OVERDUE")

	out, err = execute(t, "deck", "--role", "billing_specialist")
	require.NoError(t, err)
	assert.Contains(t, out, "No open vectors for billing_specialist")

	out, err = execute(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "marked 1 overdue, cleared 0")

	out, err = execute(t, "deck")
	require.NoError(t, err)
	assert.Contains(t, out, "OVERDUE")

	out, err = execute(t, "transition", v.ID.String(), "assigned", "--actor", "dr.lee")
	require.NoError(t, err)
	assert.Contains(t, out, v.ID.String()+" is now ASSIGNED")

	_, err = execute(t, "transition", v.ID.String(), "NEW")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ASSIGNED -> NEW")

	_, err = execute(t, "transition", v.ID.String(), "DONE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown lifecycle state")

	_, err = execute(t, "transition", "not-a-uuid", "NEW")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid vector id")

	out, err = execute(t, "transition", v.ID.String(), "resolved")
	require.NoError(t, err)
	assert.Contains(t, out, "is now RESOLVED")

	// Resolving drops the overdue flag, so the sweep has nothing left to do.
	out, err = execute(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "marked 0 overdue, cleared 0")

	out, err = execute(t, "deck")
	require.NoError(t, err)
	assert.Contains(t, out, "No open vectors for lead_doctor")
}
