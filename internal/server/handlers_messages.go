package server

import (
	"net/http"

	"github.com/Knowmad79/Docbox2026/internal/ctxutil"
	"github.com/Knowmad79/Docbox2026/internal/model"
)

// HandleClassify handles POST /v1/classify. Nothing is stored.
func (h *Handlers) HandleClassify(w http.ResponseWriter, r *http.Request) {
	var in model.EmailInput
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	res, err := h.triage.Classify(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleCreateMessage handles POST /v1/messages.
func (h *Handlers) HandleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var in model.EmailInput
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	msg, err := h.triage.Ingest(r.Context(), ctxutil.UserIDFromContext(r.Context()), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, msg)
}

// HandleListMessages handles GET /v1/messages?zone=.
func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.triage.List(r.Context(), ctxutil.UserIDFromContext(r.Context()), r.URL.Query().Get("zone"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, msgs)
}

// HandleMessagesByZone handles GET /v1/messages/by-zone.
func (h *Handlers) HandleMessagesByZone(w http.ResponseWriter, r *http.Request) {
	board, err := h.triage.ByZone(r.Context(), ctxutil.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, board)
}

// HandleGetMessage handles GET /v1/messages/{id}.
func (h *Handlers) HandleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	msg, err := h.triage.Get(r.Context(), ctxutil.UserIDFromContext(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, msg)
}

// HandleDeleteMessage handles DELETE /v1/messages/{id}.
func (h *Handlers) HandleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.triage.Delete(r.Context(), ctxutil.UserIDFromContext(r.Context()), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCorrectMessage handles POST /v1/messages/{id}/correct.
func (h *Handlers) HandleCorrectMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req model.CorrectRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	res, err := h.triage.Correct(r.Context(), ctxutil.UserIDFromContext(r.Context()), id, req.NewZone)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.CorrectResponse{
		Message:  res.Message,
		Response: res.Response,
		Learning: res.Learning,
	})
}

// HandleUpdateStatus handles POST /v1/messages/{id}/status.
func (h *Handlers) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req model.StatusRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	msg, err := h.triage.UpdateStatus(r.Context(), ctxutil.UserIDFromContext(r.Context()), id, req.Status, req.SnoozedUntil)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, msg)
}

// HandleMarkReplied handles POST /v1/messages/{id}/replied.
func (h *Handlers) HandleMarkReplied(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	msg, err := h.triage.MarkReplied(r.Context(), ctxutil.UserIDFromContext(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, msg)
}

// HandleActionCenter handles GET /v1/action-center.
func (h *Handlers) HandleActionCenter(w http.ResponseWriter, r *http.Request) {
	ac, err := h.triage.ActionCenter(r.Context(), ctxutil.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ac)
}

// HandleSync handles POST /v1/sync: pull the connected inbox and triage
// what is new.
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	var req model.SyncRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	res, err := h.triage.Sync(r.Context(), ctxutil.UserIDFromContext(r.Context()), req.GrantID, req.Limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleStats handles GET /v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.triage.Stats(r.Context(), ctxutil.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleSeedDemo handles POST /v1/demo/seed.
func (h *Handlers) HandleSeedDemo(w http.ResponseWriter, r *http.Request) {
	seeded, err := h.triage.SeedDemo(r.Context(), ctxutil.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{
		"seeded":   len(seeded),
		"messages": seeded,
	})
}
