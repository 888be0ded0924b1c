package server

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/Knowmad79/Docbox2026/internal/ctxutil"
	"github.com/Knowmad79/Docbox2026/internal/mailbox"
	"github.com/Knowmad79/Docbox2026/internal/model"
)

// HandleCreateSource handles POST /v1/sources.
func (h *Handlers) HandleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSourceRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	src, err := h.triage.CreateSource(r.Context(), ctxutil.UserIDFromContext(r.Context()), req.Name)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, src)
}

// HandleListSources handles GET /v1/sources.
func (h *Handlers) HandleListSources(w http.ResponseWriter, r *http.Request) {
	srcs, err := h.triage.ListSources(r.Context(), ctxutil.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, srcs)
}

// HandleDeleteSource handles DELETE /v1/sources/{id}.
func (h *Handlers) HandleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.triage.DeleteSource(r.Context(), ctxutil.UserIDFromContext(r.Context()), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleInbound handles POST /inbound/{token}: mail forwarded by a relay to
// a source's inbound address. JSON, form posts and raw RFC 5322 bodies are
// accepted. Message content is never logged.
func (h *Handlers) HandleInbound(w http.ResponseWriter, r *http.Request) {
	in, ok := h.parseInbound(w, r)
	if !ok {
		return
	}
	// Messages keep only the snippet; the full body may exceed field limits.
	in.Body = ""

	msg, err := h.triage.IngestInbound(r.Context(), r.PathValue("token"), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.InboundResult{
		MessageID:          msg.ID,
		Zone:               msg.Zone,
		PersonalityMessage: msg.PersonalityMessage,
	})
}

func (h *Handlers) parseInbound(w http.ResponseWriter, r *http.Request) (model.EmailInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			handleDecodeError(w, r, err)
			return model.EmailInput{}, false
		}
		return mailbox.InboundJSON(data), true

	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(h.maxRequestBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			handleDecodeError(w, r, err)
			return model.EmailInput{}, false
		}
		return mailbox.InboundForm(r.PostForm), true

	default:
		in, err := mailbox.ParseRaw(r.Body)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "could not parse email")
			return model.EmailInput{}, false
		}
		return in, true
	}
}
