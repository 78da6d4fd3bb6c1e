package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/stackit/internal/auth"
)

type createCommentRequest struct {
	Content string `json:"content"`
}

// HandleCreateComment adds a comment to a question and returns the full
// question snapshot, so the client can re-render without a second request.
//
// HTTP: POST /api/questions/{id}/comments
// REQUEST BODY: {"content": "..."}
// Auth: Required
func (h *ForumHandler) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	detail, err := h.forum.CreateComment(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// HandleDeleteComment removes the caller's own comment and returns the
// question snapshot.
//
// HTTP: DELETE /api/questions/{id}/comments/{commentId}
// Auth: Required
func (h *ForumHandler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	detail, err := h.forum.DeleteComment(r.Context(), auth.IdentityFromContext(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "commentId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
