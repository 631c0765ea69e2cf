package client

import (
	"strconv"

	"github.com/google/go-github/v57/github"
)

// IssueDetail is an issue with its comments attached.
type IssueDetail struct {
	Issue    *github.Issue
	Comments []*github.IssueComment
}

// State is an immutable snapshot of everything the client has fetched.
// Transition methods return a modified copy; maps are copied on write so a
// published snapshot never changes underneath its reader.
type State struct {
	Repos    []*github.Repository
	ReposFor string // username the repo list belongs to

	RepoDetails map[string]*github.Repository // keyed by RepoKey
	Contents    map[string]Content            // keyed by ContentKey

	Issues    []*github.Issue
	IssuesFor string // RepoKey the issue list belongs to
	Pulls     []*github.PullRequest
	PullsFor  string

	IssueDetails map[string]IssueDetail // keyed by DetailKey

	Identity  *Identity
	Favorites []string
	Recents   []string

	Loading bool
	Err     string
}

// RepoKey addresses a repository as "owner/repo".
func RepoKey(owner, repo string) string {
	return owner + "/" + repo
}

// ContentKey addresses a file or directory listing as "owner/repo/path".
func ContentKey(owner, repo, path string) string {
	return owner + "/" + repo + "/" + path
}

// DetailKey addresses an issue detail as "owner/repo/number".
func DetailKey(owner, repo string, number int) string {
	return owner + "/" + repo + "/" + strconv.Itoa(number)
}

// NewState returns the empty initial state.
func NewState() State {
	return State{
		RepoDetails:  map[string]*github.Repository{},
		Contents:     map[string]Content{},
		IssueDetails: map[string]IssueDetail{},
		Favorites:    []string{},
		Recents:      []string{},
	}
}

// WithLoading marks a fetch as started and clears the last error.
func (s State) WithLoading() State {
	s.Loading = true
	s.Err = ""
	return s
}

// WithError records a failed fetch.
func (s State) WithError(msg string) State {
	s.Loading = false
	s.Err = msg
	return s
}

// ClearError drops the last error message.
func (s State) ClearError() State {
	s.Err = ""
	return s
}

func (s State) done() State {
	s.Loading = false
	s.Err = ""
	return s
}

// WithRepos replaces the repository list.
func (s State) WithRepos(username string, repos []*github.Repository) State {
	s = s.done()
	s.Repos = repos
	s.ReposFor = username
	return s
}

// WithoutRepos empties the repository list.
func (s State) WithoutRepos() State {
	s.Repos = nil
	s.ReposFor = ""
	return s
}

// WithRepoDetails stores a repository under key.
func (s State) WithRepoDetails(key string, repo *github.Repository) State {
	s = s.done()
	details := make(map[string]*github.Repository, len(s.RepoDetails)+1)
	for k, v := range s.RepoDetails {
		details[k] = v
	}
	details[key] = repo
	s.RepoDetails = details
	return s
}

// WithContents stores a file or listing under key.
func (s State) WithContents(key string, c Content) State {
	s = s.done()
	contents := make(map[string]Content, len(s.Contents)+1)
	for k, v := range s.Contents {
		contents[k] = v
	}
	contents[key] = c
	s.Contents = contents
	return s
}

// WithIssues replaces the issue list.
func (s State) WithIssues(key string, issues []*github.Issue) State {
	s = s.done()
	s.Issues = issues
	s.IssuesFor = key
	return s
}

// WithoutIssues empties the issue list.
func (s State) WithoutIssues() State {
	s.Issues = nil
	s.IssuesFor = ""
	return s
}

// WithPulls replaces the pull request list.
func (s State) WithPulls(key string, pulls []*github.PullRequest) State {
	s = s.done()
	s.Pulls = pulls
	s.PullsFor = key
	return s
}

// WithoutPulls empties the pull request list.
func (s State) WithoutPulls() State {
	s.Pulls = nil
	s.PullsFor = ""
	return s
}

// WithIssueDetail stores an issue detail under key.
func (s State) WithIssueDetail(key string, d IssueDetail) State {
	s = s.done()
	details := make(map[string]IssueDetail, len(s.IssueDetails)+1)
	for k, v := range s.IssueDetails {
		details[k] = v
	}
	details[key] = d
	s.IssueDetails = details
	return s
}

// WithIdentity records the verified caller.
func (s State) WithIdentity(id *Identity) State {
	s.Identity = id
	return s
}

// WithoutSession forgets the caller and their favorites and recents.
func (s State) WithoutSession() State {
	s.Identity = nil
	s.Favorites = []string{}
	s.Recents = []string{}
	return s
}

// WithFavorites replaces the favorites list.
func (s State) WithFavorites(favorites []string) State {
	s.Favorites = nonNil(favorites)
	return s
}

// WithRecents replaces the recents list.
func (s State) WithRecents(recents []string) State {
	s.Recents = nonNil(recents)
	return s
}

// IsFavorite reports whether repoFullName is a favorite.
func (s State) IsFavorite(repoFullName string) bool {
	for _, f := range s.Favorites {
		if f == repoFullName {
			return true
		}
	}
	return false
}

func nonNil(list []string) []string {
	if len(list) == 0 {
		return []string{}
	}
	return append([]string(nil), list...)
}
