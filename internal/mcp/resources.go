package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Knowmad79/Docbox2026/internal/ctxutil"
)

const (
	inboxURI       = "docbox://inbox/by-zone"
	statsURI       = "docbox://inbox/stats"
	deckURIPrefix  = "docbox://deck/"
	deckURIPattern = deckURIPrefix + "{role}"
)

func (s *Server) registerResources() {
	// docbox://inbox/by-zone: the caller's messages grouped by zone.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			inboxURI,
			"Inbox by Zone",
			mcplib.WithResourceDescription("The caller's triaged messages grouped into STAT, TODAY, THIS_WEEK and LATER"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleInboxByZone,
	)

	// docbox://inbox/stats: message, correction and zone counts.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			statsURI,
			"Inbox Stats",
			mcplib.WithResourceDescription("Totals and per-zone counts for the caller's inbox"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleInboxStats,
	)

	// docbox://deck/{role}: open state vectors owned by a role.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			deckURIPattern,
			"Daily Deck",
			mcplib.WithTemplateDescription("Open state vectors owned by a practice role, riskiest first"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleDeckResource,
	)
}

func (s *Server) handleInboxByZone(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	userID := ctxutil.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return nil, fmt.Errorf("mcp: inbox: authentication required")
	}
	board, err := s.triage.ByZone(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mcp: inbox: %w", err)
	}
	return jsonContents(inboxURI, board)
}

func (s *Server) handleInboxStats(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	userID := ctxutil.UserIDFromContext(ctx)
	if userID == uuid.Nil {
		return nil, fmt.Errorf("mcp: stats: authentication required")
	}
	stats, err := s.triage.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mcp: stats: %w", err)
	}
	return jsonContents(statsURI, stats)
}

func (s *Server) handleDeckResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	role, err := parseDeckURI(uri)
	if err != nil {
		return nil, err
	}
	deck, err := s.shadow.DailyDeck(ctx, role, 0)
	if err != nil {
		return nil, fmt.Errorf("mcp: deck: %w", err)
	}
	return jsonContents(uri, map[string]any{
		"role":    role,
		"vectors": deck,
	})
}

// parseDeckURI extracts the role from docbox://deck/{role}.
func parseDeckURI(uri string) (string, error) {
	role, ok := strings.CutPrefix(uri, deckURIPrefix)
	if !ok {
		return "", fmt.Errorf("mcp: invalid deck URI: %s", uri)
	}
	if role == "" || strings.Contains(role, "/") {
		return "", fmt.Errorf("mcp: invalid deck URI: empty or nested role in %s", uri)
	}
	return role, nil
}

func jsonContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
