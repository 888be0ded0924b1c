package mcp

import (
	"context"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptRequest(name string, args map[string]string) mcplib.GetPromptRequest {
	return mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{Name: name, Arguments: args},
	}
}

func TestTriageEmailPrompt(t *testing.T) {
	f := setup(t)

	result, err := f.srv.handleTriageEmailPrompt(context.Background(), promptRequest("triage-email",
		map[string]string{"sender": "results@labcorp.com", "subject": "Critical potassium"}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.Description, "results@labcorp.com")
	require.NotEmpty(t, result.Messages)

	msg := result.Messages[0]
	assert.Equal(t, mcplib.RoleUser, msg.Role)
	tc, ok := msg.Content.(mcplib.TextContent)
	require.True(t, ok, "message content should be TextContent")
	for _, tool := range []string{"classify_email", "ingest_email", "correct_zone"} {
		assert.Contains(t, tc.Text, tool)
	}
	assert.Contains(t, tc.Text, "Critical potassium")
}

func TestTriageEmailPrompt_MissingArguments(t *testing.T) {
	f := setup(t)

	_, err := f.srv.handleTriageEmailPrompt(context.Background(), promptRequest("triage-email",
		map[string]string{"sender": "a@b.com"}))
	assert.ErrorContains(t, err, "required")
}

func TestMorningDeckPrompt(t *testing.T) {
	f := setup(t)

	result, err := f.srv.handleMorningDeckPrompt(context.Background(), promptRequest("morning-deck", nil))
	require.NoError(t, err)
	assert.Equal(t, "Morning deck for lead_doctor", result.Description)

	result, err = f.srv.handleMorningDeckPrompt(context.Background(), promptRequest("morning-deck",
		map[string]string{"role": "billing_specialist"}))
	require.NoError(t, err)
	tc := result.Messages[0].Content.(mcplib.TextContent)
	assert.Contains(t, tc.Text, `role="billing_specialist"`)
	assert.Contains(t, tc.Text, "transition_vector")
}
