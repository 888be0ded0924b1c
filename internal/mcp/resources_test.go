package mcp

import (
	"context"
	"encoding/json"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

func TestParseDeckURI(t *testing.T) {
	tests := []struct {
		name      string
		uri       string
		wantRole  string
		wantError bool
	}{
		{name: "valid role", uri: "docbox://deck/lead_doctor", wantRole: "lead_doctor"},
		{name: "other role", uri: "docbox://deck/front_desk", wantRole: "front_desk"},
		{name: "empty role", uri: "docbox://deck/", wantError: true},
		{name: "nested path", uri: "docbox://deck/a/b", wantError: true},
		{name: "wrong scheme", uri: "other://deck/lead_doctor", wantError: true},
		{name: "empty string", uri: "", wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := parseDeckURI(tt.uri)
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid deck URI")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}

func readRequest(uri string) mcplib.ReadResourceRequest {
	return mcplib.ReadResourceRequest{Params: mcplib.ReadResourceParams{URI: uri}}
}

func TestInboxByZoneResource(t *testing.T) {
	f := setup(t)
	ctx := userCtx(f.user)

	_, err := f.srv.triage.Ingest(ctx, f.user.ID, model.EmailInput{
		Sender: "rx@cvs.com", Subject: "Refill request",
	})
	require.NoError(t, err)

	contents, err := f.srv.handleInboxByZone(ctx, readRequest(inboxURI))
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, inboxURI, text.URI)

	var board model.ZoneBoard
	require.NoError(t, json.Unmarshal([]byte(text.Text), &board))
	assert.Equal(t, 1, board.Total)
	assert.Equal(t, 1, board.Counts[model.ZoneToday])
	assert.Len(t, board.Zones, len(model.Zones))
}

func TestInboxResources_RequireUser(t *testing.T) {
	f := setup(t)

	_, err := f.srv.handleInboxByZone(context.Background(), readRequest(inboxURI))
	assert.ErrorContains(t, err, "authentication required")
	_, err = f.srv.handleInboxStats(context.Background(), readRequest(statsURI))
	assert.ErrorContains(t, err, "authentication required")
}

func TestInboxStatsResource(t *testing.T) {
	f := setup(t)
	ctx := userCtx(f.user)

	contents, err := f.srv.handleInboxStats(ctx, readRequest(statsURI))
	require.NoError(t, err)
	text := contents[0].(mcplib.TextResourceContents)

	var stats model.Stats
	require.NoError(t, json.Unmarshal([]byte(text.Text), &stats))
	assert.Zero(t, stats.TotalMessages)
	assert.Len(t, stats.ZoneCounts, len(model.Zones))
}

func TestDeckResource(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.srv.shadow.Process(ctx, model.EmailInput{
		Sender: "fax@clinic.test", Subject: "Fax", MessageID: "nm-deck",
	})
	require.NoError(t, err)

	uri := "docbox://deck/front_desk"
	contents, err := f.srv.handleDeckResource(ctx, readRequest(uri))
	require.NoError(t, err)
	text := contents[0].(mcplib.TextResourceContents)
	assert.Equal(t, uri, text.URI)

	var out struct {
		Role    string              `json:"role"`
		Vectors []model.StateVector `json:"vectors"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	assert.Equal(t, "front_desk", out.Role)
	require.Len(t, out.Vectors, 1)
	assert.Equal(t, "nm-deck", out.Vectors[0].NylasMessageID)
}
