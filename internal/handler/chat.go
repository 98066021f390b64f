package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"loom/internal/httputil"
	"loom/internal/service/chatstore"
)

// ChatHandler exposes the chat lifecycle and the checkpoint-log operations.
// Handlers only talk to services, never repositories.
type ChatHandler struct {
	chats  *chatstore.Service
	logger *slog.Logger
}

func NewChatHandler(chats *chatstore.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger}
}

// InitializeChat creates a chat with a client-chosen id.
// POST /api/chats
// Idempotent: re-posting an existing id returns the chat with 200.
func (h *ChatHandler) InitializeChat(w http.ResponseWriter, r *http.Request) {
	creatorID := httputil.GetCreatorID(r)

	var req struct {
		ID string `json:"id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.chats.InitializeChat(r.Context(), creatorID, req.ID); err != nil {
		handleError(w, h.logger, err)
		return
	}

	chat, err := h.chats.Get(r.Context(), creatorID, req.ID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, chat)
}

// GetChat resolves a chat by initial id or url alias.
// GET /api/chats/{id}
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.chats.Get(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, chat)
}

// ListChats returns the creator's chats, newest first.
// GET /api/chats
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chats.List(r.Context(), httputil.GetCreatorID(r))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, chats)
}

// UpdateChat patches the description and/or the url alias.
// PATCH /api/chats/{id}
// When url_id is present the alias is (re)allocated from it as a hint and
// the description, if also present, only lands on chats without one yet.
func (h *ChatHandler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	creatorID := httputil.GetCreatorID(r)
	id := r.PathValue("id")

	var req struct {
		Description httputil.OptionalString `json:"description"`
		URLID       httputil.OptionalString `json:"url_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URLID.Present {
		if req.URLID.Value == nil {
			httputil.RespondError(w, http.StatusBadRequest, "url_id cannot be null")
			return
		}
		description := ""
		if req.Description.Present && req.Description.Value != nil {
			description = *req.Description.Value
		}
		urlID, initialID, err := h.chats.SetURLID(r.Context(), creatorID, id, *req.URLID.Value, description)
		if err != nil {
			handleError(w, h.logger, err)
			return
		}
		httputil.RespondJSON(w, http.StatusOK, map[string]string{
			"url_id":     urlID,
			"initial_id": initialID,
		})
		return
	}

	if req.Description.Present {
		if req.Description.Value == nil {
			httputil.RespondError(w, http.StatusBadRequest, "description cannot be null")
			return
		}
		if err := h.chats.SetDescription(r.Context(), creatorID, id, *req.Description.Value); err != nil {
			handleError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	httputil.RespondError(w, http.StatusBadRequest, "nothing to update")
}

// DeleteChat soft-deletes a chat. Deleting an absent chat succeeds.
// DELETE /api/chats/{id}
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.chats.Remove(r.Context(), httputil.GetCreatorID(r), r.PathValue("id")); err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStorageState returns the tip of a branch.
// GET /api/chats/{id}/storage-state?subchat_index=N
// Without subchat_index the chat's latest branch is used.
func (h *ChatHandler) GetStorageState(w http.ResponseWriter, r *http.Request) {
	creatorID := httputil.GetCreatorID(r)
	id := r.PathValue("id")

	subchat, ok, err := queryInt(r, "subchat_index")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "subchat_index must be an integer")
		return
	}
	if !ok {
		chat, err := h.chats.Get(r.Context(), creatorID, id)
		if err != nil {
			handleError(w, h.logger, err)
			return
		}
		subchat = chat.SubchatIndex
	}

	state, err := h.chats.StorageState(r.Context(), creatorID, id, subchat)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, state)
}

// UpdateStorageState appends or patches the branch tip.
// PUT /api/chats/{id}/storage-state
// Stale retries are accepted and ignored. The response carries the id of
// the checkpoint row still waiting for a generated summary, when one is.
func (h *ChatHandler) UpdateStorageState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubchatIndex    int     `json:"subchat_index"`
		LastMessageRank int     `json:"last_message_rank"`
		PartIndex       int     `json:"part_index"`
		StorageID       *string `json:"storage_id"`
		SnapshotID      *string `json:"snapshot_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	descRowID, err := h.chats.UpdateStorageState(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"),
		chatstore.UpdateStorageStateRequest{
			SubchatIndex:    req.SubchatIndex,
			LastMessageRank: req.LastMessageRank,
			PartIndex:       req.PartIndex,
			StorageID:       req.StorageID,
			SnapshotID:      req.SnapshotID,
		})
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]*string{"description_row_id": descRowID})
}

// Rewind moves the chat pointer back to an earlier checkpoint.
// POST /api/chats/{id}/rewind
func (h *ChatHandler) Rewind(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubchatIndex    *int `json:"subchat_index"`
		LastMessageRank *int `json:"last_message_rank"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.chats.Rewind(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"),
		req.SubchatIndex, req.LastMessageRank)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetEarliestRewindableRank returns how far back a branch can rewind.
// GET /api/chats/{id}/earliest-rewindable-rank?subchat_index=N
func (h *ChatHandler) GetEarliestRewindableRank(w http.ResponseWriter, r *http.Request) {
	var subchatIndex *int
	if v, ok, err := queryInt(r, "subchat_index"); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "subchat_index must be an integer")
		return
	} else if ok {
		subchatIndex = &v
	}

	rank, err := h.chats.EarliestRewindableRank(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"), subchatIndex)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]*int{"rank": rank})
}

// ListSubchats returns every branch that has at least one checkpoint.
// GET /api/chats/{id}/subchats
func (h *ChatHandler) ListSubchats(w http.ResponseWriter, r *http.Request) {
	subchats, err := h.chats.ListSubchats(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, subchats)
}

// CreateSubchat starts a new branch from the current tip.
// POST /api/chats/{id}/subchats
func (h *ChatHandler) CreateSubchat(w http.ResponseWriter, r *http.Request) {
	index, err := h.chats.CreateSubchat(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, map[string]int{"subchat_index": index})
}

// SaveSnapshot records the chat-level fallback workspace snapshot.
// PUT /api/chats/{id}/snapshot
func (h *ChatHandler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StorageID string `json:"storage_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StorageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "storage_id is required")
		return
	}

	if err := h.chats.SaveSnapshot(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"), req.StorageID); err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSnapshotURL returns a download URL for the current workspace snapshot.
// GET /api/chats/{id}/snapshot-url
func (h *ChatHandler) GetSnapshotURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.chats.SnapshotURL(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// LogDebugPrompt records the blob id of a serialized prompt for debugging.
// POST /api/chats/{id}/debug-prompt
func (h *ChatHandler) LogDebugPrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StorageID string `json:"storage_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StorageID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "storage_id is required")
		return
	}

	if err := h.chats.LogPromptForDebug(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"), req.StorageID); err != nil {
		handleError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDebugPrompt returns the most recent logged prompt blob id, or "".
// GET /api/chats/{id}/debug-prompt
func (h *ChatHandler) GetDebugPrompt(w http.ResponseWriter, r *http.Request) {
	storageID, err := h.chats.LatestPromptBlob(r.Context(), httputil.GetCreatorID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"storage_id": storageID})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}
