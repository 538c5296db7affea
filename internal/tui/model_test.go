package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/session"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
)

type fakeSession struct {
	*events.Broadcaster

	mu       sync.Mutex
	state    session.State
	selected []string
	prompts  []string
	runs     int
	runErr   error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		Broadcaster: events.NewBroadcaster(),
		state: session.State{
			Status: session.StatusIdle,
			Projects: []models.ProjectSummary{
				{ID: "p1", Name: "Todo app"},
				{ID: "p2", Name: "Weather"},
			},
		},
	}
}

func (f *fakeSession) Snapshot() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Select(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, id)
	f.state.ActiveProjectID = id
	f.state.Status = session.StatusReady
	f.state.Files = models.FileMap{"main.py": "print('hi')\n", "lib/util.py": "X = 1\n"}
	f.state.SelectedPath = "main.py"
	return nil
}

func (f *fakeSession) SelectFile(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.Files.Has(path) {
		return session.ErrUnknownFile
	}
	f.state.SelectedPath = path
	return nil
}

func (f *fakeSession) Generate(ctx context.Context, prompt, provider, model string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, "generate:"+prompt)
	return "p3", nil
}

func (f *fakeSession) Update(ctx context.Context, prompt, provider, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, "update:"+prompt)
	return nil
}

func (f *fakeSession) Fix(ctx context.Context, provider, model string) error { return nil }
func (f *fakeSession) Stop(ctx context.Context) error                        { return nil }
func (f *fakeSession) RefreshLogs(ctx context.Context) error                 { return nil }

func (f *fakeSession) Run(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.runErr
}

func (f *fakeSession) SetPolling(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.PollingEnabled = enabled
	return nil
}

func (f *fakeSession) RefreshProjects(ctx context.Context) ([]models.ProjectSummary, error) {
	return f.Snapshot().Projects, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

// runCmd executes cmd and feeds its message back into the model.
func runCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	return m
}

func TestViewListsProjects(t *testing.T) {
	m := NewModel(context.Background(), newFakeSession())
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	view := m.View()
	assert.Contains(t, view, "App Maker")
	assert.Contains(t, view, "Todo app")
	assert.Contains(t, view, "Weather")
	assert.Contains(t, view, "no project")
}

func TestEnterSelectsProject(t *testing.T) {
	fs := newFakeSession()
	m := NewModel(context.Background(), fs)

	m, _ = send(t, m, key("down"))
	m, cmd := send(t, m, key("enter"))
	m = runCmd(t, m, cmd)

	assert.Equal(t, []string{"p2"}, fs.selected)
	assert.Equal(t, "p2", m.state.ActiveProjectID)
	assert.Equal(t, "open p2 done", m.notice)
	assert.Contains(t, m.View(), "Weather (p2)")
}

func TestEventRefreshesAndKeepsListening(t *testing.T) {
	fs := newFakeSession()
	m := NewModel(context.Background(), fs)
	require.NoError(t, fs.Select(context.Background(), "p1"))

	m, cmd := send(t, m, eventMsg(events.Event{Type: events.EventFiles}))
	require.NotNil(t, cmd)
	assert.Equal(t, "p1", m.state.ActiveProjectID)
	assert.Contains(t, m.content.View(), "print('hi')")
}

func TestSelectFileFromTree(t *testing.T) {
	fs := newFakeSession()
	m := NewModel(context.Background(), fs)
	require.NoError(t, fs.Select(context.Background(), "p1"))
	m, _ = send(t, m, eventMsg(events.Event{}))

	// rows: lib/, lib/util.py, main.py
	require.Len(t, m.rows, 3)
	m, _ = send(t, m, key("tab"))
	assert.Equal(t, paneFiles, m.focus)

	m.fileCursor = 0
	m, _ = send(t, m, key("enter"))
	assert.Equal(t, "main.py", fs.Snapshot().SelectedPath, "folders are not selectable")
	assert.Equal(t, paneFiles, m.focus)

	m.fileCursor = 1
	m, _ = send(t, m, key("enter"))
	assert.Equal(t, "lib/util.py", fs.Snapshot().SelectedPath)
	assert.Equal(t, paneContent, m.focus)
	assert.Contains(t, m.content.View(), "X = 1")
}

func TestGeneratePrompt(t *testing.T) {
	fs := newFakeSession()
	m := NewModel(context.Background(), fs)

	m, _ = send(t, m, key("n"))
	assert.Equal(t, modeGenerate, m.mode)
	m, _ = send(t, m, key("a todo list"))
	m, cmd := send(t, m, key("enter"))
	assert.Equal(t, modeBrowse, m.mode)
	runCmd(t, m, cmd)

	assert.Equal(t, []string{"generate:a todo list"}, fs.prompts)
}

func TestEmptyPromptRejected(t *testing.T) {
	m := NewModel(context.Background(), newFakeSession())

	m, _ = send(t, m, key("n"))
	m, cmd := send(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.ErrorIs(t, m.err, session.ErrEmptyPrompt)
}

func TestPromptEscCancels(t *testing.T) {
	fs := newFakeSession()
	m := NewModel(context.Background(), fs)

	m, _ = send(t, m, key("n"))
	m, _ = send(t, m, key("x"))
	m, cmd := send(t, m, key("esc"))
	assert.Nil(t, cmd)
	assert.Equal(t, modeBrowse, m.mode)
	assert.Empty(t, fs.prompts)
}

func TestUpdateNeedsProject(t *testing.T) {
	m := NewModel(context.Background(), newFakeSession())

	m, _ = send(t, m, key("u"))
	assert.Equal(t, modeBrowse, m.mode)
	assert.ErrorIs(t, m.err, session.ErrNoActiveProject)
}

func TestActionErrorShownInStatus(t *testing.T) {
	fs := newFakeSession()
	fs.runErr = errors.New("runner offline")
	m := NewModel(context.Background(), fs)

	m, cmd := send(t, m, key("r"))
	m = runCmd(t, m, cmd)

	assert.Equal(t, 1, fs.runs)
	require.Error(t, m.err)
	assert.Contains(t, m.renderStatus(), "run: runner offline")
}

func TestTogglePolling(t *testing.T) {
	fs := newFakeSession()
	m := NewModel(context.Background(), fs)

	m, _ = send(t, m, key("p"))
	assert.True(t, m.state.PollingEnabled)
	assert.Contains(t, m.renderStatus(), "polling on")

	m, _ = send(t, m, key("p"))
	assert.False(t, m.state.PollingEnabled)
}

func TestCloseEndsListening(t *testing.T) {
	m := NewModel(context.Background(), newFakeSession())
	cmd := m.Init()
	m.Close()

	assert.Equal(t, closedMsg{}, cmd())
}

func TestQuit(t *testing.T) {
	m := NewModel(context.Background(), newFakeSession())
	m, cmd := send(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestWindow(t *testing.T) {
	tests := []struct {
		n, cursor, height int
		start, end        int
	}{
		{n: 5, cursor: 0, height: 10, start: 0, end: 5},
		{n: 20, cursor: 0, height: 5, start: 0, end: 5},
		{n: 20, cursor: 10, height: 5, start: 8, end: 13},
		{n: 20, cursor: 19, height: 5, start: 15, end: 20},
	}
	for _, tt := range tests {
		start, end := window(tt.n, tt.cursor, tt.height)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.end, end)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, clamp(-1, 3))
	assert.Equal(t, 2, clamp(5, 3))
	assert.Equal(t, 0, clamp(1, 0))
}
