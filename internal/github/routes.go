package github

import (
	"net/url"
	"strconv"
	"strings"
)

// Route is a fixed upstream path plus its query, relative to the API root.
type Route struct {
	path  string
	query url.Values
}

// String returns the relative URL passed to go-github's NewRequest.
func (r Route) String() string {
	if len(r.query) == 0 {
		return r.path
	}
	return r.path + "?" + r.query.Encode()
}

// Path returns the relative path without the query.
func (r Route) Path() string {
	return r.path
}

// ValidName reports whether s can stand as a single path segment: a
// username, owner or repository name. Dot segments are rejected since the
// upstream URL resolution would climb out of the route.
func ValidName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.Contains(s, "/")
}

// ValidPath reports whether every segment of a contents path is a valid
// name. The empty path is the repository root.
func ValidPath(path string) bool {
	path = strings.Trim(path, "/")
	if path == "" {
		return true
	}
	for _, seg := range strings.Split(path, "/") {
		if !ValidName(seg) {
			return false
		}
	}
	return true
}

func segments(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(escaped, "/")
}

// UserRepos lists a user's repositories, most recently updated first.
// Empty page and perPage default to "1" and "30".
func UserRepos(username, page, perPage string) Route {
	if page == "" {
		page = "1"
	}
	if perPage == "" {
		perPage = "30"
	}
	q := url.Values{}
	q.Set("page", page)
	q.Set("per_page", perPage)
	q.Set("sort", "updated")
	return Route{path: segments("users", username, "repos"), query: q}
}

// Repo addresses a single repository.
func Repo(owner, repo string) Route {
	return Route{path: segments("repos", owner, repo)}
}

// Contents addresses a directory listing or file. An empty path is the
// repository root. Slashes inside path separate segments.
func Contents(owner, repo, path string) Route {
	base := segments("repos", owner, repo, "contents")
	path = strings.Trim(path, "/")
	if path == "" {
		return Route{path: base}
	}
	return Route{path: base + "/" + segments(strings.Split(path, "/")...)}
}

// Issues lists a repository's open issues.
func Issues(owner, repo string) Route {
	return Route{path: segments("repos", owner, repo, "issues")}
}

// Issue addresses a single issue.
func Issue(owner, repo string, number int) Route {
	return Route{path: segments("repos", owner, repo, "issues", strconv.Itoa(number))}
}

// IssueComments lists the comments of an issue.
func IssueComments(owner, repo string, number int) Route {
	return Route{path: segments("repos", owner, repo, "issues", strconv.Itoa(number), "comments")}
}

// Pulls lists a repository's open pull requests.
func Pulls(owner, repo string) Route {
	return Route{path: segments("repos", owner, repo, "pulls")}
}
