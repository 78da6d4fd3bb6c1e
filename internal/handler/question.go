package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/stackit/internal/apperror"
	"github.com/sakif/stackit/internal/auth"
	"github.com/sakif/stackit/internal/service"
)

// ForumHandler serves the question, comment and vote endpoints.
//
// HANDLER RESPONSIBILITIES:
// A handler does exactly three things:
//  1. Parse the request (path params, query, JSON body, caller identity)
//  2. Call one service method
//  3. Write the result or the error
//
// Validation, ownership checks and vote arithmetic all live in the service.
// The caller's identity was put into the context by auth.RequireAuth or
// auth.OptionalAuth; a nil identity means anonymous.
type ForumHandler struct {
	forum  *service.ForumService
	logger *slog.Logger
}

// NewForumHandler creates a ForumHandler.
func NewForumHandler(forum *service.ForumService, logger *slog.Logger) *ForumHandler {
	return &ForumHandler{forum: forum, logger: logger}
}

type createQuestionRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// HandleListQuestions returns questions, newest first.
//
// HTTP: GET /api/questions?tag=go&limit=20&offset=40
//
// All query parameters are optional. Without limit the whole list is
// returned.
func (h *ForumHandler) HandleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	questions, err := h.forum.ListQuestions(r.Context(), auth.IdentityFromContext(r.Context()), service.ListQuestionsInput{
		Tag:    q.Get("tag"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

// HandleCreateQuestion stores a new question authored by the caller.
//
// HTTP: POST /api/questions
// REQUEST BODY: {"title": "...", "description": "...", "tags": ["go", "sql"]}
// Auth: Required
func (h *ForumHandler) HandleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	question, err := h.forum.CreateQuestion(r.Context(), auth.IdentityFromContext(r.Context()), service.CreateQuestionInput{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

// HandleGetQuestion returns one question with its comments.
//
// HTTP: GET /api/questions/{id}
// Auth: Optional (signed-in callers see their own votes)
func (h *ForumHandler) HandleGetQuestion(w http.ResponseWriter, r *http.Request) {
	detail, err := h.forum.GetQuestion(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleDeleteQuestion deletes a question together with its comments and
// votes. Only the author may do this.
//
// HTTP: DELETE /api/questions/{id}
// Auth: Required
func (h *ForumHandler) HandleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.forum.DeleteQuestion(r.Context(), auth.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "question deleted"})
}

// intParam parses an optional non-negative integer query parameter. Range
// checks beyond "is a number" are the service's job.
func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
