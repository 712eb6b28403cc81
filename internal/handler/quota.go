package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/computebaker/tekir-quota/internal/errors"
	"github.com/computebaker/tekir-quota/internal/service"
)

const sessionCookieName = "session_token"

type QuotaHandler struct {
	quota *service.QuotaService
}

func NewQuotaHandler(quota *service.QuotaService) *QuotaHandler {
	return &QuotaHandler{quota: quota}
}

func (h *QuotaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/consume", h.Consume)
	r.Get("/status", h.Status)

	return r
}

// POST /v1/quota/consume
func (h *QuotaHandler) Consume(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		writeError(w, apperrors.MissingRequired("session token"))
		return
	}

	result, err := h.quota.Consume(r.Context(), token)
	if err != nil {
		log.Error().Err(err).Msg("quota consume failed")
		writeError(w, err)
		return
	}

	if !result.Allowed {
		// Denial is deterministic, not transient: the same token keeps
		// getting 429 until the next reset.
		writeJSON(w, http.StatusTooManyRequests, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /v1/quota/status
func (h *QuotaHandler) Status(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		writeError(w, apperrors.MissingRequired("session token"))
		return
	}

	result, err := h.quota.Status(r.Context(), token)
	if err != nil {
		log.Error().Err(err).Msg("quota status failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func sessionToken(r *http.Request) string {
	if token := r.Header.Get("X-Session-Token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
