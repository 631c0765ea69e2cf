package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves canned envelope responses and counts hits per path.
type fakeBackend struct {
	server *httptest.Server

	mu      sync.Mutex
	routes  map[string]http.HandlerFunc
	hits    map[string]int
	headers map[string]http.Header
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		routes:  make(map[string]http.HandlerFunc),
		hits:    make(map[string]int),
		headers: make(map[string]http.Header),
	}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		b.mu.Lock()
		b.hits[key]++
		b.headers[key] = r.Header.Clone()
		h, found := b.routes[key]
		b.mu.Unlock()
		if !found {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"success":false,"error":"Not Found"}`)
			return
		}
		h(w, r)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) handle(method, path string, h http.HandlerFunc) {
	b.mu.Lock()
	b.routes[method+" "+path] = h
	b.mu.Unlock()
}

func (b *fakeBackend) ok(method, path, data string) {
	b.handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"data":%s}`, data)
	})
}

func (b *fakeBackend) fail(method, path string, status int, message string) {
	b.handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"success":false,"error":%q}`, message)
	})
}

func (b *fakeBackend) count(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[method+" "+path]
}

func (b *fakeBackend) header(method, path string) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[method+" "+path]
}

func newAPI(t *testing.T, b *fakeBackend, cfg APIConfig) *API {
	t.Helper()
	cfg.BaseURL = b.server.URL
	a, err := NewAPI(cfg)
	require.NoError(t, err)
	return a
}

func newStore(t *testing.T, b *fakeBackend, opts ...Option) *Store {
	t.Helper()
	return NewStore(newAPI(t, b, APIConfig{}), opts...)
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestAPIHeaders(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello", `{"full_name":"octo/hello"}`)
	b.ok("GET", "/api/session", `{"email":"a@example.com"}`)

	a := newAPI(t, b, APIConfig{GitHubToken: "gh-token", IdentityToken: "assertion"})

	repo, err := a.Repo(context.Background(), "octo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "octo/hello", repo.GetFullName())
	assert.Equal(t, "Bearer gh-token", b.header("GET", "/api/github/repos/octo/hello").Get("Authorization"))

	id, err := a.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", id.Email)
	assert.Equal(t, "assertion", b.header("GET", "/api/session").Get("Cf-Access-Jwt-Assertion"))
}

func TestAPIWithoutTokens(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/users/octocat/repos", `[]`)

	a := newAPI(t, b, APIConfig{})
	repos, err := a.UserRepos(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Empty(t, repos)

	h := b.header("GET", "/api/github/users/octocat/repos")
	assert.Empty(t, h.Get("Authorization"))
	assert.Empty(t, h.Get("Cf-Access-Jwt-Assertion"))
}

func TestAPIErrors(t *testing.T) {
	b := newFakeBackend(t)
	b.fail("GET", "/api/github/repos/octo/missing", http.StatusNotFound, "GitHub API Error: Not Found")
	b.handle("GET", "/api/github/repos/octo/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html>bad gateway</html>")
	})

	a := newAPI(t, b, APIConfig{})

	_, err := a.Repo(context.Background(), "octo", "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "GitHub API Error: Not Found", apiErr.Error())

	_, err = a.Repo(context.Background(), "octo", "broken")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestAPIContentsShapes(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello/contents", `[{"name":"src","path":"src","type":"dir"}]`)
	b.ok("GET", "/api/github/repos/octo/hello/contents/docs/my file.md",
		fmt.Sprintf(`{"name":"my file.md","path":"docs/my file.md","type":"file","encoding":"base64","content":%q}`, b64("hi")))

	a := newAPI(t, b, APIConfig{})

	dir, err := a.Contents(context.Background(), "octo", "hello", "")
	require.NoError(t, err)
	assert.True(t, dir.IsDir())
	require.Len(t, dir.Entries, 1)
	assert.Equal(t, "src", dir.Entries[0].GetName())

	file, err := a.Contents(context.Background(), "octo", "hello", "docs/my file.md")
	require.NoError(t, err)
	assert.False(t, file.IsDir())
	assert.Equal(t, "docs/my file.md", file.File.GetPath())
}

func TestAPIPostsRepoFullName(t *testing.T) {
	b := newFakeBackend(t)
	var body string
	b.handle("POST", "/api/session/favorites", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		io.WriteString(w, `{"success":true,"data":{"email":"a@example.com","favorites":["octo/hello"],"recents":[]}}`)
	})

	data, err := newAPI(t, b, APIConfig{}).ToggleFavorite(context.Background(), "octo/hello")
	require.NoError(t, err)
	assert.JSONEq(t, `{"repoFullName":"octo/hello"}`, body)
	assert.Equal(t, []string{"octo/hello"}, data.Favorites)
}

func TestNewAPIRejectsBadURL(t *testing.T) {
	_, err := NewAPI(APIConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestFetchRepos(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/users/octocat/repos", `[{"name":"hello","full_name":"octocat/hello"}]`)
	b.fail("GET", "/api/github/users/ghost/repos", http.StatusNotFound, "GitHub API Error: Not Found")

	s := newStore(t, b)
	ctx := context.Background()

	require.NoError(t, s.FetchRepos(ctx, "octocat"))
	st := s.Snapshot()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Err)
	assert.Equal(t, "octocat", st.ReposFor)
	require.Len(t, st.Repos, 1)
	assert.Equal(t, "octocat/hello", st.Repos[0].GetFullName())

	require.Error(t, s.FetchRepos(ctx, "ghost"))
	st = s.Snapshot()
	assert.False(t, st.Loading)
	assert.Equal(t, "GitHub API Error: Not Found", st.Err)
	assert.Empty(t, st.Repos)

	s.ClearError()
	assert.Empty(t, s.Snapshot().Err)
}

func TestCacheServesFreshKeys(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello", `{"full_name":"octo/hello"}`)
	ctx := context.Background()

	s := newStore(t, b)
	require.NoError(t, s.FetchRepoDetails(ctx, "octo", "hello"))
	require.NoError(t, s.FetchRepoDetails(ctx, "octo", "hello"))
	assert.Equal(t, 1, b.count("GET", "/api/github/repos/octo/hello"))
	assert.Equal(t, "octo/hello", s.Snapshot().RepoDetails["octo/hello"].GetFullName())

	s.Invalidate(ResourceRepo, RepoKey("octo", "hello"))
	require.NoError(t, s.FetchRepoDetails(ctx, "octo", "hello"))
	assert.Equal(t, 2, b.count("GET", "/api/github/repos/octo/hello"))

	s.InvalidateAll()
	require.NoError(t, s.FetchRepoDetails(ctx, "octo", "hello"))
	assert.Equal(t, 3, b.count("GET", "/api/github/repos/octo/hello"))
}

func TestCacheExpiresAndCanBeDisabled(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello/pulls", `[{"number":1}]`)
	ctx := context.Background()

	uncached := newStore(t, b, WithCacheTTL(0))
	require.NoError(t, uncached.FetchPulls(ctx, "octo", "hello"))
	require.NoError(t, uncached.FetchPulls(ctx, "octo", "hello"))
	assert.Equal(t, 2, b.count("GET", "/api/github/repos/octo/hello/pulls"))

	short := newStore(t, b, WithCacheTTL(20*time.Millisecond))
	require.NoError(t, short.FetchPulls(ctx, "octo", "hello"))
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, short.FetchPulls(ctx, "octo", "hello"))
	assert.Equal(t, 4, b.count("GET", "/api/github/repos/octo/hello/pulls"))
	assert.Len(t, short.Snapshot().Pulls, 1)
	assert.Equal(t, "octo/hello", short.Snapshot().PullsFor)
}

func TestConcurrentFetchesShareOneCall(t *testing.T) {
	b := newFakeBackend(t)
	release := make(chan struct{})
	b.handle("GET", "/api/github/repos/octo/hello/contents/main.go", func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprintf(w, `{"success":true,"data":{"name":"main.go","path":"main.go","type":"file","encoding":"base64","content":%q}}`, b64("package main"))
	})

	s := newStore(t, b)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.FetchContents(ctx, "octo", "hello", "main.go")
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, b.count("GET", "/api/github/repos/octo/hello/contents/main.go"))
	assert.Contains(t, s.Snapshot().Contents, ContentKey("octo", "hello", "main.go"))
}

func TestCanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	b := newFakeBackend(t)
	release := make(chan struct{})
	b.handle("GET", "/api/github/users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, `{"success":true,"data":[{"name":"hello"}]}`)
	})

	s := newStore(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- s.FetchRepos(ctx, "octocat") }()
	require.Eventually(t, func() bool {
		return b.count("GET", "/api/github/users/octocat/repos") == 1
	}, time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- s.FetchRepos(context.Background(), "octocat") }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	require.NoError(t, <-second)

	st := s.Snapshot()
	assert.Empty(t, st.Err)
	assert.Equal(t, "octocat", st.ReposFor)
	require.Len(t, st.Repos, 1)
	assert.Equal(t, 1, b.count("GET", "/api/github/users/octocat/repos"))
}

func TestOpenDirectoryFetchesReadme(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello/contents",
		`[{"name":"src","path":"src","type":"dir"},{"name":"ReadMe.md","path":"ReadMe.md","type":"file"}]`)
	b.ok("GET", "/api/github/repos/octo/hello/contents/ReadMe.md",
		fmt.Sprintf(`{"name":"ReadMe.md","path":"ReadMe.md","type":"file","encoding":"base64","content":%q}`, b64("# Hello")))
	b.ok("GET", "/api/github/repos/octo/hello/contents/src", `[{"name":"main.go","path":"src/main.go","type":"file"}]`)

	s := newStore(t, b)
	ctx := context.Background()

	require.NoError(t, s.OpenDirectory(ctx, "octo", "hello", ""))
	assert.Equal(t, 1, b.count("GET", "/api/github/repos/octo/hello/contents"))
	assert.Equal(t, 1, b.count("GET", "/api/github/repos/octo/hello/contents/ReadMe.md"))

	st := s.Snapshot()
	readme := st.Contents[ContentKey("octo", "hello", "ReadMe.md")]
	require.NotNil(t, readme.File)
	assert.Equal(t, "ReadMe.md", readme.File.GetName())

	require.NoError(t, s.OpenDirectory(ctx, "octo", "hello", "src"))
	assert.Equal(t, 1, b.count("GET", "/api/github/repos/octo/hello/contents/src"))
	assert.Len(t, s.Snapshot().Contents, 3)
}

func TestOpenDirectoryOnFile(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello/contents/README.md",
		fmt.Sprintf(`{"name":"README.md","path":"README.md","type":"file","encoding":"base64","content":%q}`, b64("x")))

	s := newStore(t, b)
	require.NoError(t, s.OpenDirectory(context.Background(), "octo", "hello", "README.md"))
	assert.Equal(t, 1, b.count("GET", "/api/github/repos/octo/hello/contents/README.md"))
}

func TestFetchIssuesDropsPullRequests(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello/issues",
		`[{"number":1,"title":"bug"},{"number":2,"title":"fix","pull_request":{"url":"https://example.com/pulls/2"}},{"number":3,"title":"idea"}]`)

	s := newStore(t, b)
	require.NoError(t, s.FetchIssues(context.Background(), "octo", "hello"))

	st := s.Snapshot()
	assert.Equal(t, "octo/hello", st.IssuesFor)
	require.Len(t, st.Issues, 2)
	assert.Equal(t, 1, st.Issues[0].GetNumber())
	assert.Equal(t, 3, st.Issues[1].GetNumber())
}

func TestFetchIssuesClearsOtherRepoList(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello/issues", `[{"number":1}]`)
	b.fail("GET", "/api/github/repos/octo/other/issues", http.StatusForbidden, "GitHub API Error: Forbidden")

	s := newStore(t, b)
	ctx := context.Background()
	require.NoError(t, s.FetchIssues(ctx, "octo", "hello"))
	require.Error(t, s.FetchIssues(ctx, "octo", "other"))

	st := s.Snapshot()
	assert.Empty(t, st.Issues)
	assert.Equal(t, "GitHub API Error: Forbidden", st.Err)
}

func TestFetchIssueDetail(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello/issues/7", `{"number":7,"title":"crash"}`)
	b.ok("GET", "/api/github/repos/octo/hello/issues/7/comments", `[{"body":"same here"},{"body":"fixed"}]`)
	b.ok("GET", "/api/github/repos/octo/hello/issues/8", `{"number":8}`)
	b.fail("GET", "/api/github/repos/octo/hello/issues/8/comments", http.StatusInternalServerError, "Failed to contact GitHub API")

	s := newStore(t, b)
	ctx := context.Background()

	require.NoError(t, s.FetchIssueDetail(ctx, "octo", "hello", 7))
	d := s.Snapshot().IssueDetails[DetailKey("octo", "hello", 7)]
	assert.Equal(t, "crash", d.Issue.GetTitle())
	require.Len(t, d.Comments, 2)
	assert.Equal(t, "fixed", d.Comments[1].GetBody())

	require.Error(t, s.FetchIssueDetail(ctx, "octo", "hello", 8))
	st := s.Snapshot()
	assert.NotContains(t, st.IssueDetails, DetailKey("octo", "hello", 8))
	assert.Equal(t, "Failed to contact GitHub API", st.Err)
	assert.False(t, st.Loading)
}

func TestFetchSession(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/session", `{"email":"a@example.com"}`)
	b.ok("GET", "/api/session/data", `{"email":"a@example.com","favorites":["octo/hello"],"recents":["octo/hello","octo/world"]}`)

	s := newStore(t, b)
	require.NoError(t, s.FetchSession(context.Background()))

	st := s.Snapshot()
	require.NotNil(t, st.Identity)
	assert.Equal(t, "a@example.com", st.Identity.Email)
	assert.Equal(t, []string{"octo/hello"}, st.Favorites)
	assert.Equal(t, []string{"octo/hello", "octo/world"}, st.Recents)
	assert.True(t, st.IsFavorite("octo/hello"))
	assert.Equal(t, 1, b.count("GET", "/api/session/data"))
}

func TestFetchSessionFailureClearsLists(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/session", `{"email":"a@example.com"}`)
	b.ok("GET", "/api/session/data", `{"email":"a@example.com","favorites":["octo/hello"],"recents":["octo/hello"]}`)

	s := newStore(t, b)
	ctx := context.Background()
	require.NoError(t, s.FetchSession(ctx))

	b.fail("GET", "/api/session", http.StatusUnauthorized, "Unauthorized: no token provided")
	err := s.FetchSession(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	st := s.Snapshot()
	assert.Nil(t, st.Identity)
	assert.Empty(t, st.Favorites)
	assert.Empty(t, st.Recents)
	assert.Empty(t, st.Err, "session failures are not page errors")
}

func TestSessionMutations(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("POST", "/api/session/favorites", `{"email":"a@example.com","favorites":["octo/hello"],"recents":["stale"]}`)
	b.ok("POST", "/api/session/recents", `{"email":"a@example.com","favorites":["stale"],"recents":["octo/hello"]}`)

	s := newStore(t, b)
	ctx := context.Background()

	require.NoError(t, s.ToggleFavorite(ctx, "octo/hello"))
	st := s.Snapshot()
	assert.Equal(t, []string{"octo/hello"}, st.Favorites)
	assert.Empty(t, st.Recents, "toggle only replaces favorites")

	require.NoError(t, s.AddRecent(ctx, "octo/hello"))
	st = s.Snapshot()
	assert.Equal(t, []string{"octo/hello"}, st.Recents)
	assert.Equal(t, []string{"octo/hello"}, st.Favorites, "add recent only replaces recents")

	b.fail("POST", "/api/session/recents", http.StatusUnauthorized, "Unauthorized: no token provided")
	assert.Error(t, s.AddRecent(ctx, "octo/world"))
	assert.Equal(t, []string{"octo/hello"}, s.Snapshot().Recents)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/a", `{"full_name":"octo/a"}`)
	b.ok("GET", "/api/github/repos/octo/b", `{"full_name":"octo/b"}`)

	s := newStore(t, b)
	ctx := context.Background()

	require.NoError(t, s.FetchRepoDetails(ctx, "octo", "a"))
	before := s.Snapshot()
	require.NoError(t, s.FetchRepoDetails(ctx, "octo", "b"))

	assert.Len(t, before.RepoDetails, 1)
	assert.Len(t, s.Snapshot().RepoDetails, 2)
}

func TestSubscribe(t *testing.T) {
	b := newFakeBackend(t)
	b.ok("GET", "/api/github/repos/octo/hello", `{"full_name":"octo/hello"}`)

	s := newStore(t, b)
	changes, unsubscribe := s.Subscribe()

	require.NoError(t, s.FetchRepoDetails(context.Background(), "octo", "hello"))
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}

	unsubscribe()
	s.ClearError()
	select {
	case <-changes:
		// a coalesced signal from before unsubscribing may still be pending
	default:
	}
	s.ClearError()
	select {
	case <-changes:
		t.Fatal("notified after unsubscribe")
	default:
	}
}
