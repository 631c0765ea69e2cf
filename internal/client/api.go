// Package client is the browsing client's data layer: a typed client for the
// backend API and a shared state store with cached, deduplicated fetches.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// identityHeader carries the identity assertion to the session routes.
const identityHeader = "Cf-Access-Jwt-Assertion"

// APIError is a failed backend call.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Identity is the verified caller as reported by the backend.
type Identity struct {
	Email string `json:"email"`
}

// SessionData is the caller's favorites and recents.
type SessionData struct {
	Email     string   `json:"email"`
	Favorites []string `json:"favorites"`
	Recents   []string `json:"recents"`
}

// Content is a contents response: a directory listing or a single file.
type Content struct {
	Entries []*github.RepositoryContent
	File    *github.RepositoryContent
}

// IsDir reports whether the content is a directory listing.
func (c Content) IsDir() bool {
	return c.File == nil
}

// APIConfig configures an API client.
type APIConfig struct {
	BaseURL       string
	GitHubToken   string // optional, forwarded upstream as a bearer token
	IdentityToken string // optional identity assertion for session routes
	Timeout       time.Duration
}

// API talks to the backend and unwraps its response envelope.
type API struct {
	baseURL       *url.URL
	httpClient    *http.Client
	identityToken string
}

// NewAPI creates a backend client.
func NewAPI(cfg APIConfig) (*API, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url: %q", cfg.BaseURL)
	}

	httpClient := &http.Client{}
	if cfg.GitHubToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
		httpClient = oauth2.NewClient(context.Background(), src)
	}
	httpClient.Timeout = cfg.Timeout

	return &API{
		baseURL:       u,
		httpClient:    httpClient,
		identityToken: cfg.IdentityToken,
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := *a.baseURL
	u.RawPath = u.Path + path
	u.Path, _ = url.PathUnescape(u.RawPath)
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.identityToken != "" {
		req.Header.Set(identityHeader, a.identityToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "Request failed"
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func (a *API) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return a.do(ctx, http.MethodGet, path, query, nil, out)
}

// escapePath joins escaped segments with "/".
func escapePath(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		for _, part := range strings.Split(strings.Trim(s, "/"), "/") {
			if part == "" {
				continue
			}
			b.WriteByte('/')
			b.WriteString(url.PathEscape(part))
		}
	}
	return b.String()
}

func repoPath(owner, repo string, rest ...string) string {
	return "/api/github/repos" + escapePath(append([]string{owner, repo}, rest...)...)
}

// UserRepos lists a user's repositories.
func (a *API) UserRepos(ctx context.Context, username string) ([]*github.Repository, error) {
	var repos []*github.Repository
	err := a.get(ctx, "/api/github/users"+escapePath(username)+"/repos", nil, &repos)
	return repos, err
}

// Repo returns repository details.
func (a *API) Repo(ctx context.Context, owner, repo string) (*github.Repository, error) {
	var r github.Repository
	if err := a.get(ctx, repoPath(owner, repo), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Contents returns the directory listing or file at path.
func (a *API) Contents(ctx context.Context, owner, repo, path string) (Content, error) {
	var raw json.RawMessage
	if err := a.get(ctx, repoPath(owner, repo, "contents", path), nil, &raw); err != nil {
		return Content{}, err
	}

	var c Content
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &c.Entries); err != nil {
			return Content{}, fmt.Errorf("failed to decode directory listing: %w", err)
		}
		if c.Entries == nil {
			c.Entries = []*github.RepositoryContent{}
		}
		return c, nil
	}
	c.File = &github.RepositoryContent{}
	if err := json.Unmarshal(raw, c.File); err != nil {
		return Content{}, fmt.Errorf("failed to decode file: %w", err)
	}
	return c, nil
}

// Issues lists open issues. The upstream list includes pull requests.
func (a *API) Issues(ctx context.Context, owner, repo string) ([]*github.Issue, error) {
	var issues []*github.Issue
	err := a.get(ctx, repoPath(owner, repo, "issues"), nil, &issues)
	return issues, err
}

// Issue returns a single issue.
func (a *API) Issue(ctx context.Context, owner, repo string, number int) (*github.Issue, error) {
	var issue github.Issue
	if err := a.get(ctx, repoPath(owner, repo, "issues", strconv.Itoa(number)), nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// IssueComments lists an issue's comments.
func (a *API) IssueComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error) {
	var comments []*github.IssueComment
	err := a.get(ctx, repoPath(owner, repo, "issues", strconv.Itoa(number), "comments"), nil, &comments)
	return comments, err
}

// Pulls lists open pull requests.
func (a *API) Pulls(ctx context.Context, owner, repo string) ([]*github.PullRequest, error) {
	var pulls []*github.PullRequest
	err := a.get(ctx, repoPath(owner, repo, "pulls"), nil, &pulls)
	return pulls, err
}

// Session returns the verified caller.
func (a *API) Session(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := a.get(ctx, "/api/session", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// SessionData returns the caller's session record.
func (a *API) SessionData(ctx context.Context) (*SessionData, error) {
	var data SessionData
	if err := a.get(ctx, "/api/session/data", nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ToggleFavorite flips repoFullName in the caller's favorites.
func (a *API) ToggleFavorite(ctx context.Context, repoFullName string) (*SessionData, error) {
	return a.postRepo(ctx, "/api/session/favorites", repoFullName)
}

// AddRecent records a visit to repoFullName.
func (a *API) AddRecent(ctx context.Context, repoFullName string) (*SessionData, error) {
	return a.postRepo(ctx, "/api/session/recents", repoFullName)
}

func (a *API) postRepo(ctx context.Context, path, repoFullName string) (*SessionData, error) {
	body := map[string]string{"repoFullName": repoFullName}
	var data SessionData
	if err := a.do(ctx, http.MethodPost, path, nil, body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
