package handler

import (
	"log/slog"
	"net/http"

	"loom/internal/httputil"
	"loom/internal/service/share"
)

// ShareHandler exposes share links, forks and social shares. Reading and
// cloning a share require only its code: the code is the capability.
type ShareHandler struct {
	shares *share.Service
	logger *slog.Logger
}

func NewShareHandler(shares *share.Service, logger *slog.Logger) *ShareHandler {
	return &ShareHandler{shares: shares, logger: logger}
}

// CreateShare captures the chat's current tip as a share link.
// POST /api/shares
func (h *ShareHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chat_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	code, err := h.shares.Create(r.Context(), httputil.GetCreatorID(r), req.ChatID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, map[string]string{"code": code})
}

// DescribeShare returns a share's public description.
// GET /api/shares/{code}
func (h *ShareHandler) DescribeShare(w http.ResponseWriter, r *http.Request) {
	desc, err := h.shares.Describe(r.Context(), r.PathValue("code"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, desc)
}

// CloneShare forks a shared chat into the caller's account.
// POST /api/shares/{code}/clone
// The caller supplies the id the new chat will go by.
func (h *ShareHandler) CloneShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID string `json:"chat_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	id, err := h.shares.Clone(r.Context(), httputil.GetCreatorID(r), r.PathValue("code"), req.ChatID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// CreateSocialShare creates a public social share for a chat.
// POST /api/social-shares
func (h *ShareHandler) CreateSocialShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID      string  `json:"chat_id"`
		ThumbnailID *string `json:"thumbnail_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChatID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	code, err := h.shares.CreateSocial(r.Context(), httputil.GetCreatorID(r), req.ChatID, req.ThumbnailID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, map[string]string{"code": code})
}

// EraseShareHistory redacts the message history behind a social share while
// keeping its final workspace state.
// POST /api/admin/social-shares/{code}/erase
func (h *ShareHandler) EraseShareHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DryRun bool `json:"dry_run"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.shares.EraseMessageHistory(r.Context(), r.PathValue("code"), req.DryRun)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}
