// Package view holds the display logic shared by the client front ends:
// route matching, file listing order, breadcrumbs and content decoding.
package view

import (
	"net/url"
	"strconv"
	"strings"
)

// RouteKind identifies a page.
type RouteKind int

const (
	RouteNotFound RouteKind = iota
	RouteHome
	RouteUser
	RouteRepo
	RouteIssue
)

func (k RouteKind) String() string {
	switch k {
	case RouteHome:
		return "home"
	case RouteUser:
		return "user"
	case RouteRepo:
		return "repo"
	case RouteIssue:
		return "issue"
	default:
		return "not-found"
	}
}

// Route is a matched client path.
type Route struct {
	Kind        RouteKind
	Username    string
	Owner       string
	Repo        string
	Path        string // content path within the repository, may be empty
	IssueNumber int
}

// Match maps a client path to its page. The routes are
//
//	/
//	/user/:username
//	/repo/:owner/:repo/issues/:issue_number
//	/repo/:owner/:repo/*
//
// The issue route wins over the repository wildcard when both match.
func Match(path string) Route {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	parts := splitPath(path)

	switch {
	case len(parts) == 0:
		return Route{Kind: RouteHome}
	case parts[0] == "user" && len(parts) == 2:
		return Route{Kind: RouteUser, Username: parts[1]}
	case parts[0] == "repo" && len(parts) >= 3:
		route := Route{Kind: RouteRepo, Owner: parts[1], Repo: parts[2]}
		rest := parts[3:]
		if len(rest) == 2 && rest[0] == "issues" {
			if n, err := strconv.Atoi(rest[1]); err == nil && n > 0 {
				route.Kind = RouteIssue
				route.IssueNumber = n
				return route
			}
		}
		route.Path = strings.Join(rest, "/")
		return route
	}
	return Route{Kind: RouteNotFound}
}

// Href renders the route back to a client path.
func (r Route) Href() string {
	switch r.Kind {
	case RouteHome:
		return "/"
	case RouteUser:
		return UserHref(r.Username)
	case RouteRepo:
		return RepoHref(r.Owner, r.Repo, r.Path)
	case RouteIssue:
		return IssueHref(r.Owner, r.Repo, r.IssueNumber)
	default:
		return ""
	}
}

// FullName returns "owner/repo" for repository routes.
func (r Route) FullName() string {
	if r.Owner == "" || r.Repo == "" {
		return ""
	}
	return r.Owner + "/" + r.Repo
}

// UserHref links to a user's repository list.
func UserHref(username string) string {
	return "/user/" + url.PathEscape(username)
}

// RepoHref links to a path inside a repository.
func RepoHref(owner, repo, path string) string {
	href := "/repo/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
	for _, seg := range splitPath(path) {
		href += "/" + url.PathEscape(seg)
	}
	return href
}

// IssueHref links to an issue detail page.
func IssueHref(owner, repo string, number int) string {
	return RepoHref(owner, repo, "") + "/issues/" + strconv.Itoa(number)
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		if decoded, err := url.PathUnescape(p); err == nil {
			p = decoded
		}
		parts = append(parts, p)
	}
	return parts
}
