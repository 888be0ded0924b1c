package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Knowmad79/Docbox2026/internal/ctxutil"
	"github.com/Knowmad79/Docbox2026/internal/lifecycle"
	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/service/shadow"
	"github.com/Knowmad79/Docbox2026/internal/storage"
)

func (s *Server) registerTools() {
	// classify_email: preview a zone without storing anything.
	s.mcpServer.AddTool(
		mcplib.NewTool("classify_email",
			mcplib.WithDescription(`Classify an email into a priority zone without storing it.

Zones:
- STAT: urgent (critical labs, emergencies), act now
- TODAY: same-day work (refills, prior auths, referrals)
- THIS_WEEK: standard admin (billing, records)
- LATER: FYI only (newsletters, marketing)

Learned sender corrections are applied. fallback=true means the rule
engine answered instead of the language model.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("sender", mcplib.Description("Sender email address"), mcplib.Required()),
			mcplib.WithString("subject", mcplib.Description("Subject line"), mcplib.Required()),
			mcplib.WithString("snippet", mcplib.Description("Opening text of the body")),
		),
		s.handleClassify,
	)

	// ingest_email: classify and store for the caller.
	s.mcpServer.AddTool(
		mcplib.NewTool("ingest_email",
			mcplib.WithDescription("Classify an email and add it to the caller's inbox. Returns the stored message with its zone."),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("sender", mcplib.Description("Sender email address"), mcplib.Required()),
			mcplib.WithString("subject", mcplib.Description("Subject line"), mcplib.Required()),
			mcplib.WithString("snippet", mcplib.Description("Opening text of the body")),
		),
		s.handleIngest,
	)

	// correct_zone: move a message and teach the classifier.
	s.mcpServer.AddTool(
		mcplib.NewTool("correct_zone",
			mcplib.WithDescription("Move a stored message to a different zone. Future mail from the same sender is routed to that zone."),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("message_id", mcplib.Description("Message UUID"), mcplib.Required()),
			mcplib.WithString("new_zone",
				mcplib.Description("Target zone"),
				mcplib.Enum("STAT", "TODAY", "THIS_WEEK", "LATER"),
				mcplib.Required(),
			),
		),
		s.handleCorrect,
	)

	// vectorize_email: run the Shadow Router on supplied fields.
	s.mcpServer.AddTool(
		mcplib.NewTool("vectorize_email",
			mcplib.WithDescription(`Extract a state vector (intent, risk, entities, deadline) from an email,
route it to an owner role and store it. A message id that was already
processed returns the existing vector with duplicate=true.`),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("subject", mcplib.Description("Subject line"), mcplib.Required()),
			mcplib.WithString("sender", mcplib.Description("Sender email address"), mcplib.Required()),
			mcplib.WithString("body", mcplib.Description("Message body text")),
			mcplib.WithString("message_id", mcplib.Description("Provider message id; generated when omitted")),
			mcplib.WithString("grant_id", mcplib.Description("Provider grant (mailbox) id")),
		),
		s.handleVectorize,
	)

	// transition_vector: move a vector through its workflow.
	s.mcpServer.AddTool(
		mcplib.NewTool("transition_vector",
			mcplib.WithDescription(`Move a state vector to a new lifecycle state.

Allowed moves:
- NEW -> ASSIGNED, RESOLVED, ARCHIVED
- ASSIGNED -> RESOLVED, ESCALATED, ARCHIVED
- ESCALATED -> RESOLVED, ARCHIVED
- RESOLVED -> ARCHIVED, NEW (reopen)
- ARCHIVED -> NEW (reopen)`),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("vector_id", mcplib.Description("State vector UUID"), mcplib.Required()),
			mcplib.WithString("state",
				mcplib.Description("Target lifecycle state"),
				mcplib.Enum("NEW", "ASSIGNED", "ESCALATED", "RESOLVED", "ARCHIVED"),
				mcplib.Required(),
			),
			mcplib.WithString("actor", mcplib.Description("Who is making the change; defaults to the caller")),
		),
		s.handleTransition,
	)

	// daily_deck: open work for one role.
	s.mcpServer.AddTool(
		mcplib.NewTool("daily_deck",
			mcplib.WithDescription("List open (NEW or ASSIGNED) state vectors owned by a role, riskiest first."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("role",
				mcplib.Description("Owner role"),
				mcplib.Enum(
					string(model.RoleLeadDoctor), string(model.RoleMedicalAssistant),
					string(model.RoleBillingSpecialist), string(model.RolePracticeManager),
					string(model.RoleFrontDesk), string(model.RoleOfficeManager),
					string(model.RoleSystemArchive),
				),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum vectors to return"),
				mcplib.Min(1),
				mcplib.Max(shadow.MaxDeckLimit),
				mcplib.DefaultNumber(shadow.DefaultDeckLimit),
			),
		),
		s.handleDailyDeck,
	)

	// action_center: the caller's to-do view.
	s.mcpServer.AddTool(
		mcplib.NewTool("action_center",
			mcplib.WithDescription("Summarize the caller's urgent mail, mail awaiting a reply, snoozed mail that is due, "+
				"and messages completed in the last 24 hours."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleActionCenter,
	)
}

func emailArgs(request mcplib.CallToolRequest) model.EmailInput {
	return model.EmailInput{
		Sender:  request.GetString("sender", ""),
		Subject: request.GetString("subject", ""),
		Snippet: request.GetString("snippet", ""),
	}
}

func (s *Server) handleClassify(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	res, err := s.triage.Classify(ctx, emailArgs(request))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) handleIngest(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	userID := ctxutil.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return errorResult("authentication required"), nil
	}
	msg, err := s.triage.Ingest(ctx, userID, emailArgs(request))
	if err != nil {
		return errorResult(fmt.Sprintf("failed to ingest email: %v", err)), nil
	}
	return jsonResult(msg)
}

func (s *Server) handleCorrect(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	userID := ctxutil.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return errorResult("authentication required"), nil
	}
	id, err := uuid.Parse(request.GetString("message_id", ""))
	if err != nil {
		return errorResult("message_id must be a UUID"), nil
	}
	res, err := s.triage.Correct(ctx, userID, id, request.GetString("new_zone", ""))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorResult("message not found"), nil
		}
		return errorResult(err.Error()), nil
	}
	return jsonResult(model.CorrectResponse{
		Message:  res.Message,
		Response: res.Response,
		Learning: res.Learning,
	})
}

func (s *Server) handleVectorize(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	in := model.EmailInput{
		Subject:   request.GetString("subject", ""),
		Sender:    request.GetString("sender", ""),
		Body:      request.GetString("body", ""),
		MessageID: request.GetString("message_id", ""),
		GrantID:   request.GetString("grant_id", ""),
	}
	if in.Subject == "" || in.Sender == "" {
		return errorResult("subject and sender are required"), nil
	}
	res, err := s.shadow.Process(ctx, in)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to vectorize email: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"vector":    res.Vector,
		"duplicate": res.Duplicate,
	})
}

func (s *Server) handleTransition(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("vector_id", ""))
	if err != nil {
		return errorResult("vector_id must be a UUID"), nil
	}
	actor := request.GetString("actor", "")
	if actor == "" {
		if claims := ctxutil.ClaimsFromContext(ctx); claims != nil && claims.Email != "" {
			actor = claims.Email
		}
	}

	v, err := s.shadow.Transition(ctx, id, request.GetString("state", ""), actor)
	var invalid *lifecycle.InvalidTransitionError
	switch {
	case err == nil:
		return jsonResult(v)
	case errors.As(err, &invalid):
		return errorResult(fmt.Sprintf("transition not allowed: %s -> %s", invalid.From, invalid.To)), nil
	case errors.Is(err, storage.ErrNotFound):
		return errorResult("vector not found"), nil
	default:
		return errorResult(err.Error()), nil
	}
}

func (s *Server) handleDailyDeck(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	role := request.GetString("role", "")
	deck, err := s.shadow.DailyDeck(ctx, role, request.GetInt("limit", shadow.DefaultDeckLimit))
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load deck: %v", err)), nil
	}
	if role == "" {
		role = string(shadow.DefaultDeckRole)
	}
	return jsonResult(map[string]any{
		"role":    role,
		"total":   len(deck),
		"vectors": deck,
	})
}

func (s *Server) handleActionCenter(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	userID := ctxutil.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return errorResult("authentication required"), nil
	}
	ac, err := s.triage.ActionCenter(ctx, userID)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to build action center: %v", err)), nil
	}
	return jsonResult(ac)
}
