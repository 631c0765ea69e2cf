package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/user/codeflare/internal/github"
)

// Forwarder is satisfied by *github.Proxy.
type Forwarder interface {
	Forward(ctx context.Context, route github.Route, authorization string) (json.RawMessage, error)
}

// GitHubHandlers serves the public /api/github proxy routes.
type GitHubHandlers struct {
	proxy Forwarder
}

// NewGitHubHandlers creates proxy handlers.
func NewGitHubHandlers(proxy Forwarder) *GitHubHandlers {
	return &GitHubHandlers{proxy: proxy}
}

// UserRepos lists a user's repositories; page and per_page pass through.
func (h *GitHubHandlers) UserRepos(w http.ResponseWriter, r *http.Request) {
	username := param(r, "username")
	if !github.ValidName(username) {
		badRequest(w, invalidPath)
		return
	}
	q := r.URL.Query()
	h.forward(w, r, github.UserRepos(username, q.Get("page"), q.Get("per_page")))
}

// Repo returns repository details.
func (h *GitHubHandlers) Repo(w http.ResponseWriter, r *http.Request) {
	if owner, repo, valid := repoParams(w, r); valid {
		h.forward(w, r, github.Repo(owner, repo))
	}
}

// Contents returns a directory listing or a file.
func (h *GitHubHandlers) Contents(w http.ResponseWriter, r *http.Request) {
	owner, repo, valid := repoParams(w, r)
	if !valid {
		return
	}
	path := param(r, "*")
	if !github.ValidPath(path) {
		badRequest(w, invalidPath)
		return
	}
	h.forward(w, r, github.Contents(owner, repo, path))
}

// Issues lists open issues.
func (h *GitHubHandlers) Issues(w http.ResponseWriter, r *http.Request) {
	if owner, repo, valid := repoParams(w, r); valid {
		h.forward(w, r, github.Issues(owner, repo))
	}
}

// Issue returns a single issue.
func (h *GitHubHandlers) Issue(w http.ResponseWriter, r *http.Request) {
	owner, repo, valid := repoParams(w, r)
	if !valid {
		return
	}
	n, valid := issueNumber(w, r)
	if !valid {
		return
	}
	h.forward(w, r, github.Issue(owner, repo, n))
}

// IssueComments lists an issue's comments.
func (h *GitHubHandlers) IssueComments(w http.ResponseWriter, r *http.Request) {
	owner, repo, valid := repoParams(w, r)
	if !valid {
		return
	}
	n, valid := issueNumber(w, r)
	if !valid {
		return
	}
	h.forward(w, r, github.IssueComments(owner, repo, n))
}

// Pulls lists open pull requests.
func (h *GitHubHandlers) Pulls(w http.ResponseWriter, r *http.Request) {
	if owner, repo, valid := repoParams(w, r); valid {
		h.forward(w, r, github.Pulls(owner, repo))
	}
}

func (h *GitHubHandlers) forward(w http.ResponseWriter, r *http.Request, route github.Route) {
	body, err := h.proxy.Forward(r.Context(), route, r.Header.Get("Authorization"))
	if err == nil {
		ok(w, body)
		return
	}

	var upstream *github.UpstreamError
	if errors.As(err, &upstream) {
		fail(w, upstream.StatusCode, upstream.Error())
		return
	}
	fail(w, http.StatusInternalServerError, "Failed to contact GitHub API")
}

const invalidPath = "invalid path"

// repoParams returns the owner and repo parameters, writing a 400 when
// either is not a plain path segment.
func repoParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner, repo := param(r, "owner"), param(r, "repo")
	if !github.ValidName(owner) || !github.ValidName(repo) {
		badRequest(w, invalidPath)
		return "", "", false
	}
	return owner, repo, true
}

func issueNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(param(r, "number"))
	if err != nil || n <= 0 {
		badRequest(w, "issue number must be a positive integer")
		return 0, false
	}
	return n, true
}

// param returns a decoded URL parameter. chi matches against the escaped
// path when one exists, so values may still carry percent escapes.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}
