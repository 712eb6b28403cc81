package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/computebaker/tekir-quota/internal/errors"
	"github.com/computebaker/tekir-quota/internal/middleware"
	"github.com/computebaker/tekir-quota/internal/service"
)

type SessionHandler struct {
	sessions   *service.SessionService
	sessionTTL time.Duration
}

func NewSessionHandler(sessions *service.SessionService, sessionTTL time.Duration) *SessionHandler {
	return &SessionHandler{
		sessions:   sessions,
		sessionTTL: sessionTTL,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Issue)
	r.Post("/link", h.Link)

	return r
}

type issueRequest struct {
	DeviceID string `json:"deviceId"`
}

// POST /v1/sessions
func (h *SessionHandler) Issue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
			return
		}
	}

	params := service.IssueParams{
		UserID:   middleware.UserID(ctx),
		HashedIP: middleware.HashedIP(ctx),
		TTL:      h.sessionTTL,
	}
	if req.DeviceID != "" {
		params.DeviceID = &req.DeviceID
	}

	result, err := h.sessions.Issue(ctx, params)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue session")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type linkRequest struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// POST /v1/sessions/link
func (h *SessionHandler) Link(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller := middleware.UserID(ctx)
	if caller == nil {
		writeError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Token == "" {
		writeError(w, apperrors.MissingRequired("token"))
		return
	}
	if req.UserID == "" {
		req.UserID = *caller
	}

	result, err := h.sessions.Link(ctx, *caller, req.UserID, req.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
