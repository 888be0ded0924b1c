package server

import (
	"encoding/json"
	"net/http"

	"github.com/Knowmad79/Docbox2026/internal/ctxutil"
	"github.com/Knowmad79/Docbox2026/internal/lifecycle"
	"github.com/Knowmad79/Docbox2026/internal/model"
)

// HandleNylasChallenge handles GET /webhooks/nylas. Nylas verifies a new
// webhook endpoint by expecting the challenge parameter echoed verbatim.
func (h *Handlers) HandleNylasChallenge(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("challenge")
	if challenge == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "challenge is required")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// HandleNylasWebhook handles POST /webhooks/nylas. Work is scheduled in the
// background and the provider gets its 200 immediately.
func (h *Handlers) HandleNylasWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var n model.WebhookNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	accepted := h.shadow.HandleDeltas(r.Context(), n.Deltas)
	writeJSON(w, r, http.StatusOK, map[string]int{
		"received": len(n.Deltas),
		"accepted": accepted,
	})
}

// HandleReplay handles POST /v1/shadow/replay.
func (h *Handlers) HandleReplay(w http.ResponseWriter, r *http.Request) {
	var req model.ReplayRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	repeat, results, err := h.shadow.Replay(r.Context(), req.GrantID, req.MessageID, req.Repeat)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	duplicates := 0
	for _, res := range results {
		if res.Duplicate {
			duplicates++
		}
	}
	resp := map[string]any{
		"replay":     model.ReplayResult{GrantID: req.GrantID, MessageID: req.MessageID, Repeat: repeat},
		"duplicates": duplicates,
	}
	if len(results) > 0 {
		resp["vector"] = results[0].Vector
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleListVectors handles GET /v1/vectors?state=&limit=&offset=.
func (h *Handlers) HandleListVectors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vs, err := h.shadow.List(r.Context(), q.Get("state"), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, vs)
}

// HandleDailyDeck handles GET /v1/vectors/deck?role=&limit=.
func (h *Handlers) HandleDailyDeck(w http.ResponseWriter, r *http.Request) {
	vs, err := h.shadow.DailyDeck(r.Context(), r.URL.Query().Get("role"), queryInt(r, "limit", 0))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, vs)
}

// HandleGetVector handles GET /v1/vectors/{id}.
func (h *Handlers) HandleGetVector(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	v, err := h.shadow.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	events, err := h.shadow.Events(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.VectorDetail{Vector: v, Events: events})
}

// HandleVectorEvents handles GET /v1/vectors/{id}/events.
func (h *Handlers) HandleVectorEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	events, err := h.shadow.Events(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, events)
}

// HandleTransition handles POST /v1/vectors/{id}/transition. The actor
// defaults to the caller's email.
func (h *Handlers) HandleTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req model.TransitionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = lifecycle.DefaultActor
		if claims := ctxutil.ClaimsFromContext(r.Context()); claims != nil && claims.Email != "" {
			actor = claims.Email
		}
	}
	v, err := h.shadow.Transition(r.Context(), id, req.State, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}
