package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"loom/internal/domain"
	"loom/internal/httputil"
)

// handleError converts domain errors to RFC 7807 responses. Typed errors
// carry their own status code; sentinels cover errors wrapped with %w; the
// rest become opaque 500s so internals never leak to clients.
func handleError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var rewindErr *domain.RewindToFutureError
	if errors.As(err, &rewindErr) {
		httputil.RespondErrorWithExtras(w, rewindErr.StatusCode(), rewindErr.Error(), map[string]interface{}{
			"requested_rank": rewindErr.RequestedRank,
			"current_rank":   rewindErr.CurrentRank,
		})
		return
	}

	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("unhandled error", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
