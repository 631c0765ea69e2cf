package view

import (
	"encoding/base64"
	"errors"
	"sort"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Inline texts shown in place of content that cannot be displayed.
const (
	DecodeErrorText = "Error: Could not decode file content."
	UnavailableText = "Cannot display binary file or content is unavailable."
	ReadmeErrorText = "Error: Could not display README. Invalid base64 content."
)

const (
	readmeName     = "readme.md"
	entryTypeDir   = "dir"
	encodingBase64 = "base64"
)

// IsDir reports whether a listing entry is a directory.
func IsDir(entry *github.RepositoryContent) bool {
	return entry.GetType() == entryTypeDir
}

// SortEntries returns a copy of entries with directories first, each group
// in natural-language name order.
func SortEntries(entries []*github.RepositoryContent) []*github.RepositoryContent {
	sorted := append([]*github.RepositoryContent(nil), entries...)
	coll := collate.New(language.English)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := IsDir(sorted[i]), IsDir(sorted[j])
		if di != dj {
			return di
		}
		return coll.CompareString(sorted[i].GetName(), sorted[j].GetName()) < 0
	})
	return sorted
}

// FindReadme returns the first entry named readme.md in any letter case.
func FindReadme(entries []*github.RepositoryContent) *github.RepositoryContent {
	for _, e := range entries {
		if strings.ToLower(e.GetName()) == readmeName {
			return e
		}
	}
	return nil
}

// DecodeContent returns the displayable text of a file.
func DecodeContent(file *github.RepositoryContent) string {
	text, err := decode(file)
	switch {
	case errors.Is(err, errUnavailable):
		return UnavailableText
	case err != nil:
		return DecodeErrorText
	}
	return text
}

// DecodeReadme returns README text, or "" when the file has no content.
func DecodeReadme(file *github.RepositoryContent) string {
	text, err := decode(file)
	switch {
	case errors.Is(err, errUnavailable):
		return ""
	case err != nil:
		return ReadmeErrorText
	}
	return text
}

var errUnavailable = errors.New("content unavailable")

// decode undoes the base64 transfer encoding. GitHub wraps the payload
// every 60 characters, so whitespace is dropped first.
func decode(file *github.RepositoryContent) (string, error) {
	if file == nil || file.Content == nil || *file.Content == "" || file.GetEncoding() != encodingBase64 {
		return "", errUnavailable
	}
	raw := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, *file.Content)
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Crumb is one breadcrumb element. Href is empty for the current page.
type Crumb struct {
	Label string
	Href  string
}

// Breadcrumbs returns owner, repo and one crumb per path segment.
// The last crumb is never linked.
func Breadcrumbs(owner, repo, path string) []Crumb {
	segments := splitPath(path)
	crumbs := []Crumb{{Label: owner, Href: UserHref(owner)}}

	repoCrumb := Crumb{Label: repo}
	if len(segments) > 0 {
		repoCrumb.Href = RepoHref(owner, repo, "")
	}
	crumbs = append(crumbs, repoCrumb)

	for i, seg := range segments {
		c := Crumb{Label: seg}
		if i < len(segments)-1 {
			c.Href = RepoHref(owner, repo, strings.Join(segments[:i+1], "/"))
		}
		crumbs = append(crumbs, c)
	}
	return crumbs
}
