package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/user/codeflare/internal/auth"
	"github.com/user/codeflare/internal/storage"
	"github.com/user/codeflare/pkg/logger"
)

const maxBodyBytes = 64 << 10

// SessionHandlers serves the identity-gated session routes.
type SessionHandlers struct {
	store storage.SessionStore
}

// NewSessionHandlers creates session handlers backed by store.
func NewSessionHandlers(store storage.SessionStore) *SessionHandlers {
	return &SessionHandlers{store: store}
}

type repoRequest struct {
	RepoFullName string `json:"repoFullName"`
}

// Identity returns the verified caller.
func (h *SessionHandlers) Identity(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	ok(w, id)
}

// Data returns the caller's session record.
func (h *SessionHandlers) Data(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	sess, err := h.store.Get(r.Context(), id.Email)
	if err != nil {
		h.storageFailure(w, err, id.Email)
		return
	}
	sess.Email = id.Email
	ok(w, sess)
}

// ToggleFavorite flips a repository in the caller's favorites.
func (h *SessionHandlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	repo, valid := readRepo(w, r)
	if !valid {
		return
	}
	sess, err := h.store.ToggleFavorite(r.Context(), id.Email, repo)
	if err != nil {
		h.storageFailure(w, err, id.Email)
		return
	}
	logger.Debug().Str("email", id.Email).Str("repo", repo).Msg("Favorite toggled")
	ok(w, sess)
}

// AddRecent records a repository visit for the caller.
func (h *SessionHandlers) AddRecent(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	repo, valid := readRepo(w, r)
	if !valid {
		return
	}
	sess, err := h.store.AddRecent(r.Context(), id.Email, repo)
	if err != nil {
		h.storageFailure(w, err, id.Email)
		return
	}
	ok(w, sess)
}

func (h *SessionHandlers) storageFailure(w http.ResponseWriter, err error, email string) {
	logger.Error().Err(err).Str("email", email).Msg("Session storage failure")
	fail(w, http.StatusInternalServerError, "failed to access session")
}

// readRepo decodes the {repoFullName} body. It writes a 400 and reports
// false when the body is malformed or the field is empty.
func readRepo(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body repoRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid request body")
		return "", false
	}
	repo := strings.TrimSpace(body.RepoFullName)
	if repo == "" {
		badRequest(w, "repoFullName is required")
		return "", false
	}
	return repo, true
}
