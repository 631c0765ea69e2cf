// Package tui is the terminal front end of the browsing client.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/user/codeflare/internal/client"
	"github.com/user/codeflare/internal/view"
	"github.com/user/codeflare/pkg/logger"
)

type tab int

const (
	tabCode tab = iota
	tabIssues
	tabPulls
)

var tabNames = []string{"Code", "Issues", "Pull Requests"}

// headerLines is the height taken by the header, breadcrumbs and help.
const headerLines = 8

// stateChangedMsg is sent when the store publishes a new state.
type stateChangedMsg struct{}

// actionDoneMsg reports a finished store action.
type actionDoneMsg struct {
	action string
	err    error
}

// Model is the Bubbletea model for the browser.
type Model struct {
	store       *client.Store
	changes     <-chan struct{}
	unsubscribe func()

	route   view.Route
	history []view.Route
	tab     tab
	cursor  int
	visited string // repo last pushed to recents

	input     textinput.Model
	prompting bool
	spinner   spinner.Model
	viewport  viewport.Model

	width, height int
	status        string
	quitting      bool
}

// New creates a browser model starting at route.
func New(store *client.Store, start view.Route) *Model {
	if start.Kind == view.RouteNotFound {
		start = view.Route{Kind: view.RouteHome}
	}

	in := textinput.New()
	in.Placeholder = "GitHub username"
	in.CharLimit = 39
	in.Prompt = "user: "

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = titleStyle

	changes, unsubscribe := store.Subscribe()

	return &Model{
		store:       store,
		changes:     changes,
		unsubscribe: unsubscribe,
		route:       start,
		input:       in,
		spinner:     s,
		viewport:    viewport.New(80, 20),
	}
}

// Init starts the session lookup and loads the first page.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForChange(),
		m.run("session", m.store.FetchSession),
		m.load(),
	)
}

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.changes; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

func (m *Model) run(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(context.Background())}
	}
}

// load fetches what the current route and tab display.
func (m *Model) load() tea.Cmd {
	r := m.route
	st := m.store.Snapshot()

	switch r.Kind {
	case view.RouteUser:
		return m.run("repos", func(ctx context.Context) error {
			return m.store.FetchRepos(ctx, r.Username)
		})

	case view.RouteRepo:
		cmds := []tea.Cmd{m.recordVisit(st)}
		if _, found := st.RepoDetails[client.RepoKey(r.Owner, r.Repo)]; !found {
			cmds = append(cmds, m.run("repo", func(ctx context.Context) error {
				return m.store.FetchRepoDetails(ctx, r.Owner, r.Repo)
			}))
		}
		switch m.tab {
		case tabIssues:
			cmds = append(cmds, m.run("issues", func(ctx context.Context) error {
				return m.store.FetchIssues(ctx, r.Owner, r.Repo)
			}))
		case tabPulls:
			cmds = append(cmds, m.run("pulls", func(ctx context.Context) error {
				return m.store.FetchPulls(ctx, r.Owner, r.Repo)
			}))
		default:
			cmds = append(cmds, m.run("contents", func(ctx context.Context) error {
				return m.store.OpenDirectory(ctx, r.Owner, r.Repo, r.Path)
			}))
		}
		return tea.Batch(cmds...)

	case view.RouteIssue:
		return m.run("issue", func(ctx context.Context) error {
			return m.store.FetchIssueDetail(ctx, r.Owner, r.Repo, r.IssueNumber)
		})
	}
	return nil
}

// recordVisit pushes the current repository to recents once per visit,
// as soon as a session is known.
func (m *Model) recordVisit(st client.State) tea.Cmd {
	name := m.route.FullName()
	if st.Identity == nil || name == "" || m.visited == name {
		return nil
	}
	m.visited = name
	return m.run("recent", func(ctx context.Context) error {
		return m.store.AddRecent(ctx, name)
	})
}

// refresh drops the cached data of the current page and reloads it.
func (m *Model) refresh() tea.Cmd {
	r := m.route
	switch r.Kind {
	case view.RouteUser:
		m.store.Invalidate(client.ResourceRepos, r.Username)
	case view.RouteRepo:
		key := client.RepoKey(r.Owner, r.Repo)
		m.store.Invalidate(client.ResourceRepo, key)
		m.store.Invalidate(client.ResourceContents, client.ContentKey(r.Owner, r.Repo, r.Path))
		m.store.Invalidate(client.ResourceIssues, key)
		m.store.Invalidate(client.ResourcePulls, key)
	case view.RouteIssue:
		m.store.Invalidate(client.ResourceIssueDetail, client.DetailKey(r.Owner, r.Repo, r.IssueNumber))
	}
	return m.load()
}

// navigate moves to route, remembering the current page for back.
func (m *Model) navigate(route view.Route) tea.Cmd {
	if route.Kind == view.RouteNotFound {
		return nil
	}
	m.history = append(m.history, m.route)
	return m.show(route)
}

func (m *Model) back() tea.Cmd {
	if len(m.history) == 0 {
		return nil
	}
	prev := m.history[len(m.history)-1]
	m.history = m.history[:len(m.history)-1]
	return m.show(prev)
}

func (m *Model) show(route view.Route) tea.Cmd {
	if route.FullName() != m.route.FullName() {
		m.tab = tabCode
		m.visited = ""
	}
	m.route = route
	m.cursor = 0
	m.status = ""
	m.store.ClearError()
	m.syncViewport()
	m.viewport.GotoTop()
	return m.load()
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.width, m.height = msg.Width-h, msg.Height-v
		m.viewport.Width = m.width
		m.viewport.Height = max(m.height-headerLines, 3)
		m.syncViewport()
		return m, nil

	case stateChangedMsg:
		m.syncViewport()
		cmds := []tea.Cmd{m.waitForChange()}
		if m.route.Kind == view.RouteRepo {
			cmds = append(cmds, m.recordVisit(m.store.Snapshot()))
		}
		return m, tea.Batch(cmds...)

	case actionDoneMsg:
		if msg.err != nil {
			logger.Debug().Err(msg.err).Str("action", msg.action).Msg("Action failed")
			if msg.action == "favorite" {
				m.status = "Could not update favorites: " + msg.err.Error()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.prompting {
			return m, m.updatePrompt(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) updatePrompt(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		name := m.input.Value()
		m.prompting = false
		m.input.Blur()
		m.input.SetValue("")
		if name == "" {
			return nil
		}
		return m.navigate(view.Route{Kind: view.RouteUser, Username: name})
	case tea.KeyEsc:
		m.prompting = false
		m.input.Blur()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		m.unsubscribe()
		return tea.Quit
	case "esc", "backspace", "h":
		return m.back()
	case "u":
		m.prompting = true
		return m.input.Focus()
	case "g":
		return m.navigate(view.Route{Kind: view.RouteHome})
	case "r":
		return m.refresh()
	case "f":
		name := m.route.FullName()
		if name == "" || m.store.Snapshot().Identity == nil {
			return nil
		}
		return m.run("favorite", func(ctx context.Context) error {
			return m.store.ToggleFavorite(ctx, name)
		})
	case "tab":
		if m.route.Kind == view.RouteRepo {
			m.tab = (m.tab + 1) % tab(len(tabNames))
			m.cursor = 0
			return m.load()
		}
		return nil
	}

	if m.scrolling() {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}

	items := m.items(m.store.Snapshot())
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(items)-1 {
			m.cursor++
		}
	case "enter", "l":
		if m.cursor < len(items) {
			return m.navigate(items[m.cursor].route)
		}
	}
	return nil
}

// scrolling reports whether the page is a scrollable document rather than
// a list.
func (m *Model) scrolling() bool {
	switch m.route.Kind {
	case view.RouteIssue:
		return true
	case view.RouteRepo:
		c, found := m.store.Snapshot().Contents[m.contentKey()]
		return m.tab == tabCode && found && !c.IsDir()
	}
	return false
}

func (m *Model) contentKey() string {
	return client.ContentKey(m.route.Owner, m.route.Repo, m.route.Path)
}

// syncViewport refreshes the document shown by scrollable pages.
func (m *Model) syncViewport() {
	st := m.store.Snapshot()
	switch m.route.Kind {
	case view.RouteIssue:
		d, found := st.IssueDetails[client.DetailKey(m.route.Owner, m.route.Repo, m.route.IssueNumber)]
		if found {
			m.viewport.SetContent(renderIssue(d, m.width))
		}
	case view.RouteRepo:
		c, found := st.Contents[m.contentKey()]
		if found && !c.IsDir() {
			m.viewport.SetContent(highlight(c.File.GetName(), view.DecodeContent(c.File)))
		}
	}
}

// View renders the current page.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	st := m.store.Snapshot()

	sections := []string{m.header(st)}
	if m.prompting {
		sections = append(sections, m.input.View())
	}
	switch m.route.Kind {
	case view.RouteHome:
		sections = append(sections, m.homeView(st))
	case view.RouteUser:
		sections = append(sections, m.userView(st))
	case view.RouteRepo:
		sections = append(sections, m.repoView(st))
	case view.RouteIssue:
		sections = append(sections, m.issueView(st))
	}
	if m.status != "" {
		sections = append(sections, errorStyle.Render(m.status))
	}
	sections = append(sections, helpStyle.Render(m.help()))

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m *Model) help() string {
	switch {
	case m.prompting:
		return "enter: open user • esc: cancel"
	case m.scrolling():
		return "↑/↓: scroll • esc: back • f: favorite • r: refresh • g: home • q: quit"
	case m.route.Kind == view.RouteRepo:
		return "↑/↓: move • enter: open • tab: switch tab • esc: back • f: favorite • r: refresh • q: quit"
	default:
		return "↑/↓: move • enter: open • u: user • esc: back • r: refresh • q: quit"
	}
}
