package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Knowmad79/Docbox2026/internal/auth"
	"github.com/Knowmad79/Docbox2026/internal/ctxutil"
	"github.com/Knowmad79/Docbox2026/internal/lifecycle"
	"github.com/Knowmad79/Docbox2026/internal/mailbox"
	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/service/shadow"
	"github.com/Knowmad79/Docbox2026/internal/service/triage"
	"github.com/Knowmad79/Docbox2026/internal/storage"
)

// UserStore is the account persistence the auth handlers need.
type UserStore interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	users               UserStore
	jwtMgr              *auth.JWTManager
	triage              *triage.Service
	shadow              *shadow.Service
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
	llmConfigured       bool
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): OpenAPISpec.
type HandlersDeps struct {
	Users               UserStore
	JWTMgr              *auth.JWTManager
	Triage              *triage.Service
	Shadow              *shadow.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
	LLMConfigured       bool
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxRequestBodyBytes <= 0 {
		d.MaxRequestBodyBytes = 1 << 20
	}
	return &Handlers{
		users:               d.Users,
		jwtMgr:              d.JWTMgr,
		triage:              d.Triage,
		shadow:              d.Shadow,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
		llmConfigured:       d.LLMConfigured,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.users.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:        status,
		Version:       h.version,
		Database:      dbStatus,
		LLMConfigured: h.llmConfigured,
		Uptime:        int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// HandleRegister handles POST /auth/register.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := model.ValidateEmailAddress(req.Email); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if len(req.Password) < auth.MinPasswordLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"password must be at least "+strconv.Itoa(auth.MinPasswordLen)+" characters")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name, _, _ = strings.Cut(req.Email, "@")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash password", err)
		return
	}
	user, err := h.users.CreateUser(r.Context(), model.User{
		Email:        req.Email,
		Name:         name,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "email already registered")
			return
		}
		h.writeInternalError(w, r, "failed to create user", err)
		return
	}
	h.logger.Info("user registered", "user_id", user.ID)
	h.writeToken(w, r, http.StatusCreated, user)
}

// HandleLogin handles POST /auth/login. Unknown emails still pay for a
// password hash so response time does not reveal which accounts exist.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "email and password are required")
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.writeInternalError(w, r, "failed to look up user", err)
			return
		}
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}
	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}
	h.writeToken(w, r, http.StatusOK, user)
}

// HandleMe handles GET /auth/me.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByID(r.Context(), ctxutil.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

func (h *Handlers) writeToken(w http.ResponseWriter, r *http.Request, status int, user model.User) {
	token, expiresAt, err := h.jwtMgr.IssueToken(user)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}
	writeJSON(w, r, status, model.TokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// writeInternalError logs err and writes a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// writeServiceError maps service and storage sentinels onto the error envelope.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *lifecycle.InvalidTransitionError
	switch {
	case errors.As(err, &invalid):
		writeError(w, r, http.StatusConflict, model.ErrCodeInvalidTransition,
			"cannot move from "+string(invalid.From)+" to "+string(invalid.To))
	case errors.Is(err, triage.ErrInvalidInput), errors.Is(err, shadow.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, inputMessage(err))
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, mailbox.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "not found")
	case errors.Is(err, storage.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "email already registered")
	case errors.Is(err, mailbox.ErrNotConfigured):
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError, "no mail provider is configured")
	default:
		h.writeInternalError(w, r, "internal error", err)
	}
}

// inputMessage strips the sentinel prefix ("triage: invalid input: ") so
// clients see only the field problem.
func inputMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{triage.ErrInvalidInput, shadow.ErrInvalidInput} {
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

// pathUUID parses a UUID path parameter, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid "+name+": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// queryInt returns an integer query parameter, or defaultVal when absent
// or malformed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
