package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

func (s *Server) registerPrompts() {
	// triage-email: walks the assistant through classifying, storing and
	// if needed correcting one email.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("triage-email",
			mcplib.WithPromptDescription("Triage one email: classify it, store it, and correct the zone if it is wrong"),
			mcplib.WithArgument("sender",
				mcplib.ArgumentDescription("Sender email address"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("subject",
				mcplib.ArgumentDescription("Subject line"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleTriageEmailPrompt,
	)

	// morning-deck: review the open work for one practice role.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("morning-deck",
			mcplib.WithPromptDescription("Review the open state vectors for a practice role and plan the day"),
			mcplib.WithArgument("role",
				mcplib.ArgumentDescription("Owner role, e.g. lead_doctor, billing_specialist, front_desk"),
			),
		),
		s.handleMorningDeckPrompt,
	)
}

func (s *Server) handleTriageEmailPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	sender := request.Params.Arguments["sender"]
	subject := request.Params.Arguments["subject"]
	if sender == "" || subject == "" {
		return nil, fmt.Errorf("sender and subject arguments are required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Triage the email from %s", sender),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Triage this email for the practice inbox.

From: %s
Subject: %s

1. CALL classify_email with the sender and subject (add a snippet if you have
   the opening text). Read the zone, the reason and the recommended action.

2. CALL ingest_email with the same fields to add it to the inbox.

3. If the zone is wrong for this practice, CALL correct_zone with the stored
   message_id and the right zone. DocBox remembers the correction and routes
   future mail from this sender the same way.

Zones: STAT (act now), TODAY (same day), THIS_WEEK (admin), LATER (FYI).`, sender, subject),
				},
			},
		},
	}, nil
}

func (s *Server) handleMorningDeckPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	role := request.Params.Arguments["role"]
	if role == "" {
		role = string(model.RoleLeadDoctor)
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Morning deck for %s", role),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Plan the day for the %s role.

1. CALL daily_deck with role="%s". Vectors come back riskiest first, then by
   nearest deadline. is_overdue=true means the deadline has already passed.

2. For each vector, say in one line what it is and what to do next.

3. When work is picked up, CALL transition_vector to move it NEW -> ASSIGNED.
   Use ESCALATED for anything that needs the lead doctor or practice manager,
   and RESOLVED when it is done.`, role, role),
				},
			},
		},
	}, nil
}
