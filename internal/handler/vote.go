package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/stackit/internal/auth"
)

type voteRequest struct {
	VoteType string `json:"voteType"`
}

// HandleVoteQuestion casts the caller's vote on a question.
//
// HTTP: POST /api/questions/{id}/vote
// REQUEST BODY: {"voteType": "UP"} or {"voteType": "DOWN"}
// Auth: Required
func (h *ForumHandler) HandleVoteQuestion(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	detail, err := h.forum.VoteQuestion(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.VoteType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleRetractQuestionVote removes the caller's vote on a question.
//
// HTTP: DELETE /api/questions/{id}/vote
// Auth: Required
func (h *ForumHandler) HandleRetractQuestionVote(w http.ResponseWriter, r *http.Request) {
	detail, err := h.forum.RetractQuestionVote(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleVoteComment casts the caller's vote on a comment and returns the
// comment with its new total.
//
// HTTP: POST /api/questions/{id}/comments/{commentId}/vote
// Auth: Required
func (h *ForumHandler) HandleVoteComment(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	comment, err := h.forum.VoteComment(r.Context(), auth.IdentityFromContext(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "commentId"), req.VoteType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

// HandleRetractCommentVote removes the caller's vote on a comment.
//
// HTTP: DELETE /api/questions/{id}/comments/{commentId}/vote
// Auth: Required
func (h *ForumHandler) HandleRetractCommentVote(w http.ResponseWriter, r *http.Request) {
	comment, err := h.forum.RetractCommentVote(r.Context(), auth.IdentityFromContext(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "commentId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}
