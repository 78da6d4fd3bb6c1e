package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/stackit/internal/apperror"
)

func TestWriteError_MapsKindsToStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantMsg    string
	}{
		{"validation", apperror.ValidationFailed("title", "title is required"), http.StatusBadRequest, "validation_error", "title is required"},
		{"unauthorized", apperror.Unauthorized("sign in"), http.StatusUnauthorized, "unauthorized", "sign in"},
		{"forbidden", apperror.Forbidden("not yours"), http.StatusForbidden, "forbidden", "not yours"},
		{"not found", apperror.NotFound("question", "q1"), http.StatusNotFound, "not_found", "question not found with id q1"},
		{"conflict", apperror.Conflict("vote", "q1"), http.StatusConflict, "conflict", "vote conflict with id q1"},
		{"storage", apperror.Storage("loading", errors.New("SELECT * FROM secrets")), http.StatusInternalServerError, "storage_error", "storage failure while loading"},
		{"wrapped", fmt.Errorf("outer: %w", apperror.NotFound("comment", "c1")), http.StatusNotFound, "not_found", "comment not found with id c1"},
		{"unknown", errors.New("/var/lib/db: permission denied"), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, logger, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.wantKind, body.Error)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"content":"hi"}`, false},
		{"unknown fields are ignored", `{"content":"hi","extra":1}`, false},
		{"empty", ``, true},
		{"malformed", `{"content":`, true},
		{"wrong type", `{"content":42}`, true},
		{"too large", `{"content":"` + strings.Repeat("x", maxBodyBytes) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst createCommentRequest
			err := decodeJSON(rr, req, &dst)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "hi", dst.Content)
		})
	}
}
