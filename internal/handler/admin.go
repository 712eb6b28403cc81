package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/computebaker/tekir-quota/internal/errors"
	"github.com/computebaker/tekir-quota/internal/service"
)

type AdminHandler struct {
	admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/sweeps/expired", h.SweepExpired)
	r.Post("/sweeps/reset", h.ResetDailyCounts)

	return r
}

type sweepRequest struct {
	Password string `json:"password"`
}

// POST /admin/sweeps/expired
func (h *AdminHandler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSweepRequest(w, r)
	if !ok {
		return
	}

	result, err := h.admin.SweepExpired(r.Context(), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /admin/sweeps/reset
func (h *AdminHandler) ResetDailyCounts(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSweepRequest(w, r)
	if !ok {
		return
	}

	result, err := h.admin.ResetDailyCounts(r.Context(), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeSweepRequest(w http.ResponseWriter, r *http.Request) (*sweepRequest, bool) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return nil, false
	}
	if req.Password == "" {
		writeError(w, apperrors.MissingRequired("password"))
		return nil, false
	}
	return &req, true
}
