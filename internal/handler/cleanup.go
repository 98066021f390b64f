package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"loom/internal/httputil"
	"loom/internal/service/cleanup"
)

// CleanupHandler exposes the background sweeps as admin endpoints. The
// sweeps self-reschedule through the task scheduler once kicked off; these
// endpoints start (or dry-run) a sweep, they do not run it to completion.
type CleanupHandler struct {
	cleanup *cleanup.Service
	logger  *slog.Logger
}

func NewCleanupHandler(svc *cleanup.Service, logger *slog.Logger) *CleanupHandler {
	return &CleanupHandler{cleanup: svc, logger: logger}
}

type sweepRequest struct {
	ForReal      bool `json:"for_real"`
	DaysInactive int  `json:"days_inactive,omitempty"`
}

// StartDebugFilesSweep kicks off the inactive-chat debug file sweep.
// POST /api/admin/cleanup/debug-files
func (h *CleanupHandler) StartDebugFilesSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DaysInactive <= 0 {
		httputil.RespondError(w, http.StatusBadRequest, "days_inactive must be positive")
		return
	}

	err := h.cleanup.DeleteDebugFilesForInactiveChats(r.Context(), cleanup.DebugFilesOptions{
		ForReal:            req.ForReal,
		ShouldScheduleNext: true,
		DaysInactive:       req.DaysInactive,
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// StartChatStatesSweep kicks off the per-rank checkpoint compaction sweep.
// POST /api/admin/cleanup/chat-states
func (h *CleanupHandler) StartChatStatesSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.cleanup.DeleteAllOldChatStates(r.Context(), cleanup.ChatStatesOptions{
		ForReal:            req.ForReal,
		ShouldScheduleNext: true,
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// StartOrphanSweep kicks off the orphaned blob sweep.
// POST /api/admin/cleanup/orphaned-blobs
func (h *CleanupHandler) StartOrphanSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.cleanup.DeleteOrphanedBlobs(r.Context(), cleanup.OrphanSweepOptions{
		ForReal:            req.ForReal,
		ShouldScheduleNext: true,
	})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// VerifyBlobs audits that every referenced blob exists in the store. Runs
// synchronously; it is a read-only scan.
// POST /api/admin/cleanup/verify
func (h *CleanupHandler) VerifyBlobs(w http.ResponseWriter, r *http.Request) {
	if err := h.cleanup.VerifyReferencedBlobs(r.Context()); err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireAdminToken guards the admin surface with a shared secret. With no
// token configured the surface is disabled outright.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				httputil.RespondError(w, http.StatusNotFound, "not found")
				return
			}
			got := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.RespondError(w, http.StatusNotFound, "not found")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
