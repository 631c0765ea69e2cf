package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/user/codeflare/internal/view"
	"github.com/user/codeflare/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a fetched GitHub resource is served from cache.
const DefaultCacheTTL = time.Minute

const defaultCacheSize = 512

// Resource names a kind of cached GitHub resource.
type Resource string

const (
	ResourceRepos       Resource = "repos"    // keyed by username
	ResourceRepo        Resource = "repo"     // keyed by RepoKey
	ResourceContents    Resource = "contents" // keyed by ContentKey
	ResourceIssues      Resource = "issues"   // keyed by RepoKey
	ResourcePulls       Resource = "pulls"    // keyed by RepoKey
	ResourceIssueDetail Resource = "issue"    // keyed by DetailKey
)

// Backend is the set of backend calls the store depends on. *API
// implements it.
type Backend interface {
	UserRepos(ctx context.Context, username string) ([]*github.Repository, error)
	Repo(ctx context.Context, owner, repo string) (*github.Repository, error)
	Contents(ctx context.Context, owner, repo, path string) (Content, error)
	Issues(ctx context.Context, owner, repo string) ([]*github.Issue, error)
	Issue(ctx context.Context, owner, repo string, number int) (*github.Issue, error)
	IssueComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error)
	Pulls(ctx context.Context, owner, repo string) ([]*github.PullRequest, error)
	Session(ctx context.Context) (*Identity, error)
	SessionData(ctx context.Context) (*SessionData, error)
	ToggleFavorite(ctx context.Context, repoFullName string) (*SessionData, error)
	AddRecent(ctx context.Context, repoFullName string) (*SessionData, error)
}

// Option configures a Store.
type Option func(*Store)

// WithCacheTTL sets how long GitHub resources are cached. 0 disables the
// cache so every fetch goes to the backend.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.cacheTTL = ttl
	}
}

// Store owns the client state. Actions fetch through the backend and
// publish a new immutable State; readers take snapshots.
type Store struct {
	backend  Backend
	cacheTTL time.Duration
	cache    *expirable.LRU[string, any]
	group    singleflight.Group

	mu    sync.Mutex
	state State
	subs  map[chan struct{}]struct{}
}

// NewStore creates a store with an empty state.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		cacheTTL: DefaultCacheTTL,
		state:    NewState(),
		subs:     make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheTTL > 0 {
		s.cache = expirable.NewLRU[string, any](defaultCacheSize, nil, s.cacheTTL)
	}
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications coalesce: a slow reader sees one pending signal. The
// returned func unsubscribes.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func (s *Store) update(fn func(State) State) {
	s.mu.Lock()
	s.state = fn(s.state)
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Store) fail(err error) {
	s.update(func(st State) State { return st.WithError(err.Error()) })
}

// Invalidate drops a cached resource so the next fetch re-runs.
func (s *Store) Invalidate(res Resource, key string) {
	if s.cache != nil {
		s.cache.Remove(cacheKey(res, key))
	}
}

// InvalidateAll empties the cache.
func (s *Store) InvalidateAll() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func cacheKey(res Resource, key string) string {
	return string(res) + ":" + key
}

// fetch serves res/key from cache or calls the backend once, sharing the
// call with concurrent fetches of the same key. The loading flag is set
// only when the backend is actually called. The shared call is detached
// from the caller's cancellation; a canceled caller stops waiting while
// the others still get the result.
func fetch[T any](ctx context.Context, s *Store, res Resource, key string, call func(context.Context) (T, error)) (T, error) {
	var zero T
	ck := cacheKey(res, key)
	if s.cache != nil {
		if v, found := s.cache.Get(ck); found {
			return v.(T), nil
		}
	}

	s.update(State.WithLoading)
	ch := s.group.DoChan(ck, func() (interface{}, error) {
		v, err := call(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Add(ck, v)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// FetchRepos loads a user's repository list. On failure the list is emptied.
func (s *Store) FetchRepos(ctx context.Context, username string) error {
	repos, err := fetch(ctx, s, ResourceRepos, username, func(ctx context.Context) ([]*github.Repository, error) {
		return s.backend.UserRepos(ctx, username)
	})
	if err != nil {
		s.update(func(st State) State { return st.WithoutRepos().WithError(err.Error()) })
		return err
	}
	s.update(func(st State) State { return st.WithRepos(username, repos) })
	return nil
}

// FetchRepoDetails loads a repository's details.
func (s *Store) FetchRepoDetails(ctx context.Context, owner, repo string) error {
	key := RepoKey(owner, repo)
	details, err := fetch(ctx, s, ResourceRepo, key, func(ctx context.Context) (*github.Repository, error) {
		return s.backend.Repo(ctx, owner, repo)
	})
	if err != nil {
		s.fail(err)
		return err
	}
	s.update(func(st State) State { return st.WithRepoDetails(key, details) })
	return nil
}

// FetchContents loads the file or directory listing at path.
func (s *Store) FetchContents(ctx context.Context, owner, repo, path string) error {
	key := ContentKey(owner, repo, path)
	c, err := fetch(ctx, s, ResourceContents, key, func(ctx context.Context) (Content, error) {
		return s.backend.Contents(ctx, owner, repo, path)
	})
	if err != nil {
		s.fail(err)
		return err
	}
	s.update(func(st State) State { return st.WithContents(key, c) })
	return nil
}

// OpenDirectory loads the contents at path and, when the result is a
// listing holding a README, the README file as well.
func (s *Store) OpenDirectory(ctx context.Context, owner, repo, path string) error {
	if err := s.FetchContents(ctx, owner, repo, path); err != nil {
		return err
	}

	c := s.Snapshot().Contents[ContentKey(owner, repo, path)]
	if !c.IsDir() {
		return nil
	}
	readme := view.FindReadme(c.Entries)
	if readme == nil {
		return nil
	}
	return s.FetchContents(ctx, owner, repo, readme.GetPath())
}

// FetchIssues loads the open issues of a repository. Pull requests, which
// the upstream issue list includes, are dropped.
func (s *Store) FetchIssues(ctx context.Context, owner, repo string) error {
	key := RepoKey(owner, repo)
	s.update(func(st State) State {
		if st.IssuesFor != key {
			return st.WithoutIssues()
		}
		return st
	})

	issues, err := fetch(ctx, s, ResourceIssues, key, func(ctx context.Context) ([]*github.Issue, error) {
		all, err := s.backend.Issues(ctx, owner, repo)
		if err != nil {
			return nil, err
		}
		issues := make([]*github.Issue, 0, len(all))
		for _, issue := range all {
			if !issue.IsPullRequest() {
				issues = append(issues, issue)
			}
		}
		return issues, nil
	})
	if err != nil {
		s.fail(err)
		return err
	}
	s.update(func(st State) State { return st.WithIssues(key, issues) })
	return nil
}

// FetchPulls loads the open pull requests of a repository.
func (s *Store) FetchPulls(ctx context.Context, owner, repo string) error {
	key := RepoKey(owner, repo)
	s.update(func(st State) State {
		if st.PullsFor != key {
			return st.WithoutPulls()
		}
		return st
	})

	pulls, err := fetch(ctx, s, ResourcePulls, key, func(ctx context.Context) ([]*github.PullRequest, error) {
		return s.backend.Pulls(ctx, owner, repo)
	})
	if err != nil {
		s.fail(err)
		return err
	}
	s.update(func(st State) State { return st.WithPulls(key, pulls) })
	return nil
}

// FetchIssueDetail loads an issue and its comments concurrently.
func (s *Store) FetchIssueDetail(ctx context.Context, owner, repo string, number int) error {
	key := DetailKey(owner, repo, number)
	detail, err := fetch(ctx, s, ResourceIssueDetail, key, func(ctx context.Context) (IssueDetail, error) {
		var d IssueDetail
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			issue, err := s.backend.Issue(ctx, owner, repo, number)
			d.Issue = issue
			return err
		})
		g.Go(func() error {
			comments, err := s.backend.IssueComments(ctx, owner, repo, number)
			d.Comments = comments
			return err
		})
		if err := g.Wait(); err != nil {
			return IssueDetail{}, err
		}
		return d, nil
	})
	if err != nil {
		s.fail(err)
		return err
	}
	s.update(func(st State) State { return st.WithIssueDetail(key, detail) })
	return nil
}

// FetchSession loads the verified identity and then its session data. On
// failure the identity, favorites and recents are cleared.
func (s *Store) FetchSession(ctx context.Context) error {
	id, err := s.backend.Session(ctx)
	if err != nil {
		s.update(State.WithoutSession)
		return err
	}
	s.update(func(st State) State { return st.WithIdentity(id) })
	return s.FetchSessionData(ctx)
}

// FetchSessionData loads favorites and recents.
func (s *Store) FetchSessionData(ctx context.Context) error {
	data, err := s.backend.SessionData(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch session data")
		return err
	}
	s.update(func(st State) State { return st.WithFavorites(data.Favorites).WithRecents(data.Recents) })
	return nil
}

// ToggleFavorite flips a repository in the favorites.
func (s *Store) ToggleFavorite(ctx context.Context, repoFullName string) error {
	data, err := s.backend.ToggleFavorite(ctx, repoFullName)
	if err != nil {
		logger.Warn().Err(err).Str("repo", repoFullName).Msg("Failed to toggle favorite")
		return err
	}
	s.update(func(st State) State { return st.WithFavorites(data.Favorites) })
	return nil
}

// AddRecent records a repository visit.
func (s *Store) AddRecent(ctx context.Context, repoFullName string) error {
	data, err := s.backend.AddRecent(ctx, repoFullName)
	if err != nil {
		logger.Warn().Err(err).Str("repo", repoFullName).Msg("Failed to add recent repository")
		return err
	}
	s.update(func(st State) State { return st.WithRecents(data.Recents) })
	return nil
}

// ClearError drops the last error message.
func (s *Store) ClearError() {
	s.update(State.ClearError)
}

