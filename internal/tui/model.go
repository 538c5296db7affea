// Package tui is the terminal front end of the session: project list,
// file tree, file viewer, problem banner and log tail.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/session"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/tree"
)

// Session is the part of the coordinator the TUI drives.
type Session interface {
	Snapshot() session.State
	Subscribe() chan events.Event
	Unsubscribe(ch chan events.Event)
	Select(ctx context.Context, id string) error
	SelectFile(path string) error
	Generate(ctx context.Context, prompt, provider, model string) (string, error)
	Update(ctx context.Context, prompt, provider, model string) error
	Fix(ctx context.Context, provider, model string) error
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
	SetPolling(enabled bool) error
	RefreshProjects(ctx context.Context) ([]models.ProjectSummary, error)
	RefreshLogs(ctx context.Context) error
}

type pane int

const (
	paneProjects pane = iota
	paneFiles
	paneContent
	paneLogs
	paneCount
)

type mode int

const (
	modeBrowse mode = iota
	modeGenerate
	modeUpdate
)

// row is one line of the rendered file tree.
type row struct {
	name  string
	path  string
	depth int
	dir   bool
}

// eventMsg carries a session change into the update loop.
type eventMsg events.Event

// closedMsg reports that the event subscription ended.
type closedMsg struct{}

// doneMsg reports the completion of a session action.
type doneMsg struct {
	label string
	err   error
}

// Model is the bubbletea model.
type Model struct {
	session Session
	ctx     context.Context
	events  chan events.Event

	state         session.State
	rows          []row
	projectCursor int
	fileCursor    int
	focus         pane
	mode          mode

	prompt  textinput.Model
	content viewport.Model
	logs    viewport.Model

	width    int
	height   int
	notice   string
	err      error
	quitting bool
}

// NewModel subscribes to s and returns the initial model. Call Close once
// the program has exited.
func NewModel(ctx context.Context, s Session) Model {
	ti := textinput.New()
	ti.Placeholder = "describe the application..."
	ti.CharLimit = 2000

	m := Model{
		session: s,
		ctx:     ctx,
		events:  s.Subscribe(),
		prompt:  ti,
		content: viewport.New(80, 10),
		logs:    viewport.New(80, 6),
		width:   120,
		height:  36,
	}
	m.layout()
	m.refresh()
	return m
}

// Close releases the event subscription.
func (m Model) Close() {
	m.session.Unsubscribe(m.events)
}

// Init starts listening for session events.
func (m Model) Init() tea.Cmd {
	return listen(m.events)
}

func listen(ch chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update handles terminal input and session events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case eventMsg:
		m.refresh()
		return m, listen(m.events)

	case closedMsg:
		return m, nil

	case doneMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("%s: %w", msg.label, msg.err)
			m.notice = ""
		} else {
			m.err = nil
			m.notice = msg.label + " done"
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.updatePrompt(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.focus = (m.focus + 1) % paneCount
		return m, nil

	case "shift+tab":
		m.focus = (m.focus + paneCount - 1) % paneCount
		return m, nil

	case "up", "k":
		return m.move(-1, msg)

	case "down", "j":
		return m.move(1, msg)

	case "enter":
		return m.activate()

	case "n":
		return m.startPrompt(modeGenerate)

	case "u":
		if m.state.ActiveProjectID == "" {
			m.err = session.ErrNoActiveProject
			return m, nil
		}
		return m.startPrompt(modeUpdate)

	case "r":
		return m, m.do("run", m.session.Run)

	case "s":
		return m, m.do("stop", m.session.Stop)

	case "f":
		return m, m.do("fix", func(ctx context.Context) error {
			return m.session.Fix(ctx, "", "")
		})

	case "p":
		if err := m.session.SetPolling(!m.state.PollingEnabled); err != nil {
			m.err = err
		}
		m.refresh()
		return m, nil

	case "l":
		return m, m.do("refresh logs", m.session.RefreshLogs)

	case "R":
		return m, m.do("refresh projects", func(ctx context.Context) error {
			_, err := m.session.RefreshProjects(ctx)
			return err
		})
	}

	var cmd tea.Cmd
	switch m.focus {
	case paneContent:
		m.content, cmd = m.content.Update(msg)
	case paneLogs:
		m.logs, cmd = m.logs.Update(msg)
	}
	return m, cmd
}

func (m Model) move(delta int, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case paneProjects:
		m.projectCursor = clamp(m.projectCursor+delta, len(m.state.Projects))
	case paneFiles:
		m.fileCursor = clamp(m.fileCursor+delta, len(m.rows))
	case paneContent:
		m.content, cmd = m.content.Update(msg)
	case paneLogs:
		m.logs, cmd = m.logs.Update(msg)
	}
	return m, cmd
}

func (m Model) activate() (tea.Model, tea.Cmd) {
	switch m.focus {
	case paneProjects:
		if len(m.state.Projects) == 0 {
			return m, nil
		}
		id := m.state.Projects[m.projectCursor].ID
		return m, m.do("open "+id, func(ctx context.Context) error {
			return m.session.Select(ctx, id)
		})

	case paneFiles:
		if len(m.rows) == 0 || m.rows[m.fileCursor].dir {
			return m, nil
		}
		key := tree.OriginalKey(m.state.Files, m.rows[m.fileCursor].path)
		if err := m.session.SelectFile(key); err != nil {
			m.err = err
		}
		m.refresh()
		m.focus = paneContent
	}
	return m, nil
}

func (m Model) startPrompt(md mode) (tea.Model, tea.Cmd) {
	m.mode = md
	m.prompt.SetValue("")
	m.err = nil
	return m, m.prompt.Focus()
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.prompt.Blur()
		m.mode = modeBrowse
		return m, nil

	case "enter":
		text := strings.TrimSpace(m.prompt.Value())
		md := m.mode
		m.prompt.Blur()
		m.mode = modeBrowse
		if text == "" {
			m.err = session.ErrEmptyPrompt
			return m, nil
		}
		if md == modeGenerate {
			return m, m.do("generate", func(ctx context.Context) error {
				_, err := m.session.Generate(ctx, text, "", "")
				return err
			})
		}
		return m, m.do("update", func(ctx context.Context) error {
			return m.session.Update(ctx, text, "", "")
		})
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

// do runs fn off the update loop and reports its result as a doneMsg.
func (m Model) do(label string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return doneMsg{label: label, err: fn(ctx)}
	}
}

// refresh copies the latest snapshot into the model.
func (m *Model) refresh() {
	m.state = m.session.Snapshot()
	m.rows = buildRows(tree.Build(m.state.Files))
	m.projectCursor = clamp(m.projectCursor, len(m.state.Projects))
	for i, p := range m.state.Projects {
		if p.ID == m.state.ActiveProjectID && m.focus != paneProjects {
			m.projectCursor = i
		}
	}
	m.fileCursor = clamp(m.fileCursor, len(m.rows))
	for i, r := range m.rows {
		if !r.dir && tree.OriginalKey(m.state.Files, r.path) == m.state.SelectedPath && m.focus != paneFiles {
			m.fileCursor = i
		}
	}

	content, _ := m.state.SelectedContent()
	m.content.SetContent(content)

	follow := m.logs.AtBottom()
	m.logs.SetContent(renderLogs(m.state.Logs))
	if follow {
		m.logs.GotoBottom()
	}
}

func buildRows(forest []*models.FileTreeNode) []row {
	var out []row
	var rec func(nodes []*models.FileTreeNode, depth int)
	rec = func(nodes []*models.FileTreeNode, depth int) {
		for _, n := range nodes {
			out = append(out, row{name: n.Name, path: n.Path, depth: depth, dir: n.IsDir()})
			rec(n.Children, depth+1)
		}
	}
	rec(forest, 0)
	return out
}

func renderLogs(entries []models.LogEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		level := string(e.Level)
		if style, ok := levelStyles[level]; ok {
			level = style.Render(fmt.Sprintf("%-8s", level))
		} else {
			level = fmt.Sprintf("%-8s", level)
		}
		lines = append(lines, dimStyle.Render(e.Timestamp)+" "+level+" "+e.Message)
	}
	return strings.Join(lines, "\n")
}

// layout sizes the viewports from the terminal size.
func (m *Model) layout() {
	_, rightW := m.columns()
	body := m.bodyHeight()
	contentH := max(3, body*3/5-2)
	logsH := max(3, body-contentH-5)

	m.content.Width = rightW
	m.content.Height = contentH
	m.logs.Width = rightW
	m.logs.Height = logsH
	m.prompt.Width = max(10, m.width-20)
}

func (m Model) columns() (left, right int) {
	left = max(24, m.width/4)
	right = max(20, m.width-left-4)
	return left, right
}

// bodyHeight excludes the title, status and help lines.
func (m Model) bodyHeight() int {
	return max(10, m.height-3)
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// window returns the visible slice bounds of n rows that keeps cursor in
// view within height lines.
func window(n, cursor, height int) (int, int) {
	if height <= 0 || n <= height {
		return 0, n
	}
	start := cursor - height/2
	start = max(0, min(start, n-height))
	return start, start + height
}

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	leftW, rightW := m.columns()
	body := m.bodyHeight()
	projectsH := max(3, body/3-2)
	filesH := max(3, body-projectsH-4)

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.panel(paneProjects, leftW, m.renderProjects(leftW, projectsH)),
		m.panel(paneFiles, leftW, m.renderFiles(leftW, filesH)),
	)

	right := []string{m.panel(paneContent, rightW, m.contentHeader(rightW)+"\n"+m.content.View())}
	if p := m.state.Problem; p != nil {
		right = append(right, problemStyle.Width(rightW+2).Render(truncate(p.Type+": "+p.Message, rightW)))
	}
	right = append(right, m.panel(paneLogs, rightW, m.logs.View()))

	var b strings.Builder
	b.WriteString(m.renderTitle() + "\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.JoinVertical(lipgloss.Left, right...)) + "\n")
	b.WriteString(m.renderStatus() + "\n")
	switch m.mode {
	case modeGenerate:
		b.WriteString(statusBarStyle.Render("New app: ") + m.prompt.View())
	case modeUpdate:
		b.WriteString(statusBarStyle.Render("Change: ") + m.prompt.View())
	default:
		b.WriteString(helpStyle.Render("  tab: pane  enter: open  n: new  u: update  r: run  s: stop  f: fix  p: polling  R: reload  q: quit"))
	}
	return b.String()
}

func (m Model) panel(p pane, width int, body string) string {
	style := panelStyle
	if p == m.focus {
		style = focusedPanelStyle
	}
	return style.Width(width).Render(body)
}

func (m Model) renderTitle() string {
	title := titleStyle.Render("App Maker")
	info := "no project"
	if m.state.ActiveProjectID != "" {
		info = m.state.ActiveProjectID
		if p, ok := m.state.ActiveProject(); ok && p.Name != "" {
			info = p.Name + " (" + p.ID + ")"
		}
	}
	return title + dimStyle.Render("  "+info+"  ["+string(m.state.Status)+"]")
}

func (m Model) renderProjects(width, height int) string {
	lines := []string{headerStyle.Render("Projects")}
	if len(m.state.Projects) == 0 {
		lines = append(lines, dimStyle.Render(" none"))
	}
	start, end := window(len(m.state.Projects), m.projectCursor, height)
	for i := start; i < end; i++ {
		p := m.state.Projects[i]
		label := p.Name
		if label == "" {
			label = p.ID
		}
		line := truncate(" "+label, width)
		switch {
		case i == m.projectCursor && m.focus == paneProjects:
			line = selectedStyle.Render(lipgloss.PlaceHorizontal(width, lipgloss.Left, line))
		case p.ID == m.state.ActiveProjectID:
			line = activeStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFiles(width, height int) string {
	lines := []string{headerStyle.Render("Files")}
	if len(m.rows) == 0 {
		lines = append(lines, dimStyle.Render(" empty"))
	}
	start, end := window(len(m.rows), m.fileCursor, height)
	for i := start; i < end; i++ {
		r := m.rows[i]
		name := r.name
		if r.dir {
			name += "/"
		}
		marker := " "
		if !r.dir && tree.OriginalKey(m.state.Files, r.path) == m.state.SelectedPath {
			marker = "*"
		}
		line := truncate(marker+strings.Repeat("  ", r.depth)+name, width)
		switch {
		case i == m.fileCursor && m.focus == paneFiles:
			line = selectedStyle.Render(lipgloss.PlaceHorizontal(width, lipgloss.Left, line))
		case r.dir:
			line = dirStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) contentHeader(width int) string {
	name := m.state.SelectedPath
	if name == "" {
		name = "no file selected"
	}
	return headerStyle.Render(truncate(name, width-2))
}

func (m Model) renderStatus() string {
	parts := []string{"polling off"}
	if m.state.PollingEnabled {
		parts[0] = "polling on"
	}
	for _, a := range m.state.Pending {
		parts = append(parts, string(a)+"...")
	}
	status := statusBarStyle.Render(strings.Join(parts, " | "))
	switch {
	case m.err != nil:
		status += " " + errorStyle.Render(m.err.Error())
	case m.state.LastError != "":
		status += " " + errorStyle.Render(m.state.LastError)
	case m.notice != "":
		status += " " + dimStyle.Render(m.notice)
	}
	return status
}

// truncate cuts plain text s to width cells.
func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width {
		r = r[:max(0, width-2)]
	}
	return string(r) + ".."
}
