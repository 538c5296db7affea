package session

import (
	"slices"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/tree"
)

// Status is the coarse lifecycle state of the session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusBusy    Status = "busy"
)

// Action names a mutating operation in flight.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionUpdate   Action = "update"
	ActionRun      Action = "run"
	ActionStop     Action = "stop"
	ActionFix      Action = "fix"
	ActionDelete   Action = "delete"
)

// State is a point-in-time copy of the session. All fields describe the
// active project; they are empty when there is none.
type State struct {
	Status          Status                  `json:"status"`
	ActiveProjectID string                  `json:"active_project_id,omitempty"`
	Files           models.FileMap          `json:"files"`
	SelectedPath    string                  `json:"selected_path,omitempty"`
	Problem         *models.Problem         `json:"problem"`
	Logs            []models.LogEntry       `json:"logs"`
	PollingEnabled  bool                    `json:"polling_enabled"`
	History         *models.ProjectHistory  `json:"history,omitempty"`
	Projects        []models.ProjectSummary `json:"projects"`
	Pending         []Action                `json:"pending,omitempty"`
	LastError       string                  `json:"last_error,omitempty"`
	Version         uint64                  `json:"version"`
}

// ActiveProject returns the summary of the active project, if listed.
func (s State) ActiveProject() (models.ProjectSummary, bool) {
	for _, p := range s.Projects {
		if p.ID == s.ActiveProjectID {
			return p, true
		}
	}
	return models.ProjectSummary{}, false
}

// SelectedContent returns the content of the selected file.
func (s State) SelectedContent() (string, bool) {
	if s.SelectedPath == "" {
		return "", false
	}
	c, ok := s.Files[s.SelectedPath]
	return c, ok
}

// machine is the coordinator-owned state plus bookkeeping that is not
// exposed to renderers.
type machine struct {
	State
	loading     bool
	createToken string

	// Every remote request that can install files, history or logs is
	// stamped with the next issued sequence. A result older than the one
	// already applied for the same slot is superseded.
	issued     uint64
	loadSeq    uint64
	filesSeq   uint64
	historySeq uint64
	logsSeq    uint64
}

// outcome tells the coordinator what reduce did with a message.
type outcome int

const (
	applied outcome = iota
	// stale: the message belongs to a subject that is no longer active.
	stale
	// ignored: the message is current but has no effect.
	ignored
)

type message interface {
	event() string
}

type (
	msgSelect struct {
		subject string
		seq     uint64
	}

	msgLoaded struct {
		subject string
		seq     uint64
		files   models.FileMap
		history *models.ProjectHistory
	}

	msgLoadFailed struct {
		subject string
		seq     uint64
		err     error
	}

	msgCreateStarted struct{ token string }

	msgCreated struct {
		token   string
		subject string
		seq     uint64
		files   models.FileMap
	}

	msgCreateFailed struct {
		token string
		err   error
	}

	msgActionStarted struct {
		subject string
		action  Action
		seq     uint64
	}

	// msgActionDone ends an action. A non-nil files replaces the FileMap
	// unless a later request already installed its own.
	msgActionDone struct {
		subject string
		action  Action
		seq     uint64
		err     error
		files   models.FileMap
	}

	msgLogs struct {
		subject string
		seq     uint64
		entries []models.LogEntry
	}

	msgHistory struct {
		subject string
		seq     uint64
		history *models.ProjectHistory
	}

	msgProjects struct{ projects []models.ProjectSummary }

	msgDeleted struct{ subject string }

	msgSelectFile struct {
		subject string
		path    string
	}

	msgPolling struct{ enabled bool }

	msgPollFailed struct {
		subject string
		err     error
	}

	msgError struct{ err error }

	msgProblemChanged struct{ subject string }
)

func (msgSelect) event() string         { return events.EventState }
func (msgLoaded) event() string         { return events.EventFiles }
func (msgLoadFailed) event() string     { return events.EventState }
func (msgCreateStarted) event() string  { return events.EventState }
func (msgCreated) event() string        { return events.EventFiles }
func (msgCreateFailed) event() string   { return events.EventState }
func (msgActionStarted) event() string  { return events.EventState }
func (msgActionDone) event() string     { return events.EventState }
func (msgLogs) event() string           { return events.EventLogs }
func (msgHistory) event() string        { return events.EventState }
func (msgProjects) event() string       { return events.EventProjects }
func (msgDeleted) event() string        { return events.EventProjects }
func (msgSelectFile) event() string     { return events.EventState }
func (msgPolling) event() string        { return events.EventState }
func (msgPollFailed) event() string     { return events.EventState }
func (msgError) event() string          { return events.EventState }
func (msgProblemChanged) event() string { return events.EventProblem }

// reduce applies msg to m. It never mutates slices or maps reachable from
// m; snapshots handed out earlier stay valid.
func reduce(m machine, msg message) (machine, outcome) {
	switch msg := msg.(type) {
	case msgSelect:
		if msg.subject != m.ActiveProjectID {
			m = clearProject(m)
			m.ActiveProjectID = msg.subject
		}
		m.loading = true
		m.loadSeq = msg.seq
		m.LastError = ""

	case msgLoaded:
		if msg.subject != m.ActiveProjectID {
			return m, stale
		}
		current := msg.seq == m.loadSeq
		newer := msg.seq >= m.filesSeq
		if !current && !newer {
			return m, stale
		}
		if current {
			m.loading = false
		}
		if newer {
			m = installFiles(m, msg.seq, msg.files)
		}
		if msg.seq >= m.historySeq {
			m.History = msg.history
			m.historySeq = msg.seq
		}

	case msgLoadFailed:
		if msg.subject != m.ActiveProjectID || msg.seq != m.loadSeq {
			return m, stale
		}
		m.loading = false
		m.LastError = msg.err.Error()

	case msgCreateStarted:
		m = clearProject(m)
		m.ActiveProjectID = ""
		m.createToken = msg.token
		m.Pending = []Action{ActionGenerate}
		m.LastError = ""

	case msgCreated:
		if msg.token != m.createToken || m.ActiveProjectID != "" {
			return m, stale
		}
		m.createToken = ""
		m.Pending = without(m.Pending, ActionGenerate)
		m.ActiveProjectID = msg.subject
		m = installFiles(m, msg.seq, msg.files)

	case msgCreateFailed:
		if msg.token != m.createToken {
			return m, stale
		}
		m.createToken = ""
		m.Pending = without(m.Pending, ActionGenerate)
		m.LastError = msg.err.Error()

	case msgActionStarted:
		if msg.subject != m.ActiveProjectID {
			return m, stale
		}
		m.Pending = append(slices.Clip(m.Pending), msg.action)
		m.LastError = ""

	case msgActionDone:
		if msg.subject != m.ActiveProjectID {
			return m, stale
		}
		m.Pending = without(m.Pending, msg.action)
		switch {
		case msg.err != nil:
			m.LastError = msg.err.Error()
		case msg.files != nil && msg.seq >= m.filesSeq:
			m = installFiles(m, msg.seq, msg.files)
		}

	case msgLogs:
		if msg.subject != m.ActiveProjectID || msg.seq < m.logsSeq {
			return m, stale
		}
		m.Logs = msg.entries
		m.logsSeq = msg.seq

	case msgHistory:
		if msg.subject != m.ActiveProjectID || msg.seq < m.historySeq {
			return m, stale
		}
		m.History = msg.history
		m.historySeq = msg.seq

	case msgProjects:
		m.Projects = msg.projects

	case msgDeleted:
		m.Projects = slices.DeleteFunc(slices.Clone(m.Projects), func(p models.ProjectSummary) bool {
			return p.ID == msg.subject
		})
		if msg.subject == m.ActiveProjectID {
			m = clearProject(m)
			m.ActiveProjectID = ""
		}

	case msgSelectFile:
		if msg.subject != m.ActiveProjectID {
			return m, stale
		}
		if !m.Files.Has(msg.path) {
			return m, ignored
		}
		m.SelectedPath = msg.path

	case msgPolling:
		if m.PollingEnabled == msg.enabled {
			return m, ignored
		}
		m.PollingEnabled = msg.enabled

	case msgPollFailed:
		if msg.subject != m.ActiveProjectID {
			return m, stale
		}
		m.LastError = msg.err.Error()

	case msgError:
		m.LastError = msg.err.Error()

	case msgProblemChanged:
		if msg.subject != m.ActiveProjectID {
			return m, stale
		}

	default:
		return m, ignored
	}

	m.Status = statusOf(m)
	return m, applied
}

// clearProject drops everything derived from the active project. Polling
// preference and the project list survive.
func clearProject(m machine) machine {
	m.Files = nil
	m.SelectedPath = ""
	m.Logs = nil
	m.History = nil
	m.Pending = nil
	m.loading = false
	m.createToken = ""
	return m
}

// installFiles replaces the FileMap with the result of request seq and
// keeps the selection when the path still exists, otherwise applies the
// default selection rule.
func installFiles(m machine, seq uint64, files models.FileMap) machine {
	if files == nil {
		files = models.FileMap{}
	}
	m.Files = files
	m.filesSeq = seq
	if m.SelectedPath == "" || !files.Has(m.SelectedPath) {
		m.SelectedPath = tree.DefaultSelection(files)
	}
	return m
}

func statusOf(m machine) Status {
	switch {
	case m.ActiveProjectID == "" && m.createToken == "":
		return StatusIdle
	case m.loading:
		return StatusLoading
	case len(m.Pending) > 0:
		return StatusBusy
	case m.ActiveProjectID == "":
		return StatusIdle
	default:
		return StatusReady
	}
}

// without returns a copy of actions minus one occurrence of a.
func without(actions []Action, a Action) []Action {
	i := slices.Index(actions, a)
	if i < 0 {
		return actions
	}
	out := make([]Action, 0, len(actions)-1)
	out = append(out, actions[:i]...)
	return append(out, actions[i+1:]...)
}
