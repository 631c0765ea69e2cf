package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/go-github/v57/github"
	"github.com/user/codeflare/internal/client"
	"github.com/user/codeflare/internal/view"
)

// item is one selectable row. A route of kind RouteNotFound is not
// navigable.
type item struct {
	section string
	title   string
	desc    string
	dir     bool
	route   view.Route
}

func repoRoute(fullName string) view.Route {
	owner, repo, _ := strings.Cut(fullName, "/")
	return view.Route{Kind: view.RouteRepo, Owner: owner, Repo: repo}
}

// items returns the rows of the current page.
func (m *Model) items(st client.State) []item {
	r := m.route
	var items []item

	switch r.Kind {
	case view.RouteHome:
		for _, name := range st.Favorites {
			items = append(items, item{section: "Favorites", title: name, route: repoRoute(name)})
		}
		for _, name := range st.Recents {
			items = append(items, item{section: "Recently viewed", title: name, route: repoRoute(name)})
		}

	case view.RouteUser:
		if st.ReposFor != r.Username {
			return nil
		}
		for _, repo := range st.Repos {
			owner := repo.GetOwner().GetLogin()
			if owner == "" {
				owner = r.Username
			}
			items = append(items, item{
				title: repo.GetName(),
				desc:  repoSummary(repo),
				route: view.Route{Kind: view.RouteRepo, Owner: owner, Repo: repo.GetName()},
			})
		}

	case view.RouteRepo:
		key := client.RepoKey(r.Owner, r.Repo)
		switch m.tab {
		case tabIssues:
			if st.IssuesFor != key {
				return nil
			}
			for _, issue := range st.Issues {
				items = append(items, item{
					title: fmt.Sprintf("#%d %s", issue.GetNumber(), issue.GetTitle()),
					desc:  fmt.Sprintf("opened by %s • %d comments", issue.GetUser().GetLogin(), issue.GetComments()),
					route: view.Route{Kind: view.RouteIssue, Owner: r.Owner, Repo: r.Repo, IssueNumber: issue.GetNumber()},
				})
			}
		case tabPulls:
			if st.PullsFor != key {
				return nil
			}
			for _, pr := range st.Pulls {
				items = append(items, item{
					title: fmt.Sprintf("#%d %s", pr.GetNumber(), pr.GetTitle()),
					desc:  fmt.Sprintf("opened by %s • %s", pr.GetUser().GetLogin(), pr.GetHTMLURL()),
				})
			}
		default:
			c, found := st.Contents[m.contentKey()]
			if !found || !c.IsDir() {
				return nil
			}
			for _, e := range view.SortEntries(c.Entries) {
				items = append(items, item{
					title: e.GetName(),
					dir:   view.IsDir(e),
					route: view.Route{Kind: view.RouteRepo, Owner: r.Owner, Repo: r.Repo, Path: e.GetPath()},
				})
			}
		}
	}
	return items
}

func repoSummary(repo *github.Repository) string {
	parts := []string{}
	if d := repo.GetDescription(); d != "" {
		parts = append(parts, d)
	}
	if l := repo.GetLanguage(); l != "" {
		parts = append(parts, l)
	}
	parts = append(parts, fmt.Sprintf("★ %d", repo.GetStargazersCount()))
	if !repo.GetUpdatedAt().IsZero() {
		parts = append(parts, "updated "+repo.GetUpdatedAt().Format("2006-01-02"))
	}
	return strings.Join(parts, " • ")
}

func (m *Model) renderItems(items []item) string {
	var b strings.Builder
	section := ""
	for i, it := range items {
		if it.section != section {
			section = it.section
			b.WriteString(sectionStyle.Render(section))
			b.WriteByte('\n')
		}

		style, marker := itemStyle, "  "
		if it.dir {
			style = dirStyle
		}
		if i == m.cursor {
			style, marker = selectedStyle, "> "
		}
		title := it.title
		if it.dir {
			title += "/"
		}
		b.WriteString(style.Render(marker + title))
		if it.desc != "" {
			b.WriteString("  " + descStyle.Render(it.desc))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// body renders a data-backed page according to its render state.
func (m *Model) body(p view.Page, errMsg, emptyText string, ready func() string) string {
	switch p {
	case view.PageLoading:
		return m.spinner.View() + " Loading..."
	case view.PageError:
		return errorStyle.Render("Error: " + errMsg)
	case view.PageEmpty:
		return descStyle.Render(emptyText)
	default:
		return ready()
	}
}

func (m *Model) header(st client.State) string {
	who := "not signed in"
	if st.Identity != nil {
		who = st.Identity.Email
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("codeflare"),
		"  ",
		identityStyle.Render(who),
	)
}

func (m *Model) homeView(st client.State) string {
	var b strings.Builder
	if !m.prompting {
		b.WriteString(descStyle.Render("Press u to browse a user's repositories."))
		b.WriteByte('\n')
	}

	switch items := m.items(st); {
	case st.Identity == nil:
		b.WriteString(descStyle.Render("Sign in to keep favorites and recently viewed repositories."))
	case len(items) == 0:
		b.WriteString(descStyle.Render("No favorites or recently viewed repositories yet."))
	default:
		b.WriteString(m.renderItems(items))
	}
	return b.String()
}

func (m *Model) userView(st client.State) string {
	items := m.items(st)
	loading := st.Loading || st.ReposFor != m.route.Username && st.Err == ""
	title := sectionStyle.Render(m.route.Username + "'s repositories")
	page := view.PageState(loading, st.Err, len(items) == 0)
	return title + "\n" + m.body(page, st.Err, "No public repositories found.", func() string {
		return m.renderItems(items)
	})
}

func (m *Model) breadcrumbs(st client.State) string {
	crumbs := view.Breadcrumbs(m.route.Owner, m.route.Repo, m.route.Path)
	parts := make([]string, 0, len(crumbs))
	for _, c := range crumbs {
		if c.Href == "" {
			parts = append(parts, crumbHereStyle.Render(c.Label))
		} else {
			parts = append(parts, crumbStyle.Render(c.Label))
		}
	}
	line := strings.Join(parts, descStyle.Render(" / "))
	if st.Identity != nil {
		star := "☆"
		if st.IsFavorite(m.route.FullName()) {
			star = "★"
		}
		line += "  " + favoriteStyle.Render(star)
	}
	return line
}

func (m *Model) tabs() string {
	rendered := make([]string, len(tabNames))
	for i, name := range tabNames {
		if tab(i) == m.tab {
			rendered[i] = activeTabStyle.Render(name)
		} else {
			rendered[i] = tabStyle.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m *Model) repoView(st client.State) string {
	r := m.route
	sections := []string{m.breadcrumbs(st)}
	if details, found := st.RepoDetails[client.RepoKey(r.Owner, r.Repo)]; found {
		sections = append(sections, descStyle.Render(repoSummary(details)))
	}
	sections = append(sections, m.tabs())

	items := m.items(st)
	key := client.RepoKey(r.Owner, r.Repo)
	switch m.tab {
	case tabIssues:
		page := view.PageState(st.Loading || st.IssuesFor != key && st.Err == "", st.Err, len(items) == 0)
		sections = append(sections, m.body(page, st.Err, "No open issues.", func() string {
			return m.renderItems(items)
		}))
	case tabPulls:
		page := view.PageState(st.Loading || st.PullsFor != key && st.Err == "", st.Err, len(items) == 0)
		sections = append(sections, m.body(page, st.Err, "No open pull requests.", func() string {
			return m.renderItems(items)
		}))
	default:
		c, found := st.Contents[m.contentKey()]
		page := view.PageState(st.Loading, st.Err, !found)
		sections = append(sections, m.body(page, st.Err, "Nothing here.", func() string {
			if !c.IsDir() {
				return boxStyle.Render(c.File.GetName()) + "\n" + m.viewport.View()
			}
			listing := m.renderItems(items)
			if len(items) == 0 {
				listing = descStyle.Render("This directory is empty.")
			}
			if readme := m.readme(st, c); readme != "" {
				listing += "\n" + boxStyle.Width(max(m.width-4, 20)).Render(readme)
			}
			return listing
		}))
	}
	return strings.Join(sections, "\n")
}

// readme returns the highlighted README of a listing once it is loaded.
func (m *Model) readme(st client.State, c client.Content) string {
	entry := view.FindReadme(c.Entries)
	if entry == nil {
		return ""
	}
	file, found := st.Contents[client.ContentKey(m.route.Owner, m.route.Repo, entry.GetPath())]
	if !found || file.IsDir() {
		return ""
	}
	text := view.DecodeReadme(file.File)
	if text == "" || text == view.ReadmeErrorText {
		return text
	}
	return highlight(entry.GetName(), text)
}

func (m *Model) issueView(st client.State) string {
	r := m.route
	crumbs := crumbStyle.Render(r.FullName()) + descStyle.Render(fmt.Sprintf(" / issues / #%d", r.IssueNumber))
	_, found := st.IssueDetails[client.DetailKey(r.Owner, r.Repo, r.IssueNumber)]
	page := view.PageState(st.Loading, st.Err, !found)
	return crumbs + "\n" + m.body(page, st.Err, "Issue not found.", m.viewport.View)
}

// renderIssue lays out an issue and its comments as a scrollable document.
func renderIssue(d client.IssueDetail, width int) string {
	if width <= 0 {
		width = 80
	}
	text := lipgloss.NewStyle().Width(width)
	issue := d.Issue

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("#%d %s", issue.GetNumber(), issue.GetTitle())))
	b.WriteByte('\n')
	b.WriteString(descStyle.Render(fmt.Sprintf("%s • opened by %s on %s • %d comments",
		issue.GetState(), issue.GetUser().GetLogin(), issue.GetCreatedAt().Format("2006-01-02"), issue.GetComments())))
	if len(issue.Labels) > 0 {
		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			labels = append(labels, lipgloss.NewStyle().Foreground(lipgloss.Color("#"+l.GetColor())).Render(l.GetName()))
		}
		b.WriteString("\n" + strings.Join(labels, " "))
	}
	b.WriteString("\n\n")
	body := issue.GetBody()
	if body == "" {
		body = "No description provided."
	}
	b.WriteString(text.Render(body))

	for _, c := range d.Comments {
		b.WriteString("\n\n")
		b.WriteString(sectionStyle.Render(fmt.Sprintf("%s commented on %s", c.GetUser().GetLogin(), c.GetCreatedAt().Format("2006-01-02"))))
		b.WriteByte('\n')
		b.WriteString(text.Render(c.GetBody()))
	}
	return b.String()
}
