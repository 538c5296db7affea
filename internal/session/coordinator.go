// Package session owns the client-side state of the workspace: the active
// project, its files, logs and problem status, and the polling loop that
// keeps them fresh.
//
// Every change goes through a subject-tagged message applied under one
// lock. Results of remote calls carry the project id they were issued for
// and are dropped when that project is no longer active.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/logging"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/metrics"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/poller"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/problem"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/logparse"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/protocol"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/tree"
)

var (
	ErrNoActiveProject = errors.New("no active project")
	ErrNoProblem       = errors.New("no problem to fix")
	ErrEmptyPrompt     = errors.New("prompt is empty")
	ErrUnknownFile     = errors.New("file not in project")
	ErrClosed          = errors.New("session closed")
)

const (
	DefaultProvider     = "gemini"
	DefaultModel        = "gemini-1.5-pro"
	DefaultPollInterval = time.Second
	DefaultSettleDelay  = 5 * time.Second
)

// Remote is the backend the coordinator talks to. *client.Client
// implements it.
type Remote interface {
	ListProjects(ctx context.Context) ([]models.ProjectSummary, error)
	CreateProject(ctx context.Context, req protocol.GenerateRequest) (*protocol.ProjectResponse, error)
	RegenerateProject(ctx context.Context, id string, req protocol.GenerateRequest) (*protocol.ProjectResponse, error)
	RenameProject(ctx context.Context, id, name string) error
	DeleteProject(ctx context.Context, id string) error
	GetFiles(ctx context.Context, id string) (models.FileMap, error)
	GetHistory(ctx context.Context, id string) (*models.ProjectHistory, error)
	GetLogs(ctx context.Context, id string) (string, error)
	ProblemStatus(ctx context.Context, id string) (*models.Problem, error)
	RunProject(ctx context.Context, id string) error
	StopProject(ctx context.Context, id string) error
	LLMOptions(ctx context.Context) (models.LLMOptions, error)
}

// LogScope selects which log stream the poll loop reads.
type LogScope string

const (
	ScopeGlobal  LogScope = "global"
	ScopeProject LogScope = "project"
)

// ParseLogScope parses "global" or "project".
func ParseLogScope(s string) (LogScope, error) {
	switch LogScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeGlobal, "":
		return ScopeGlobal, nil
	case ScopeProject:
		return ScopeProject, nil
	default:
		return "", fmt.Errorf("unknown log scope %q", s)
	}
}

// Config configures a Coordinator.
type Config struct {
	Remote      Remote
	Parser      logparse.Parser
	Broadcaster *events.Broadcaster
	Logger      *zap.Logger

	PollInterval  time.Duration
	SettleDelay   time.Duration
	LogScope      LogScope
	FailurePolicy poller.FailurePolicy

	// AutoPollOnRun enables polling after a successful Run.
	AutoPollOnRun bool
	// AutoSelectLast makes Init select the last listed project.
	AutoSelectLast bool

	DefaultProvider string
	DefaultModel    string
}

// Coordinator is the single owner of the session state.
type Coordinator struct {
	cfg     Config
	remote  Remote
	parser  logparse.Parser
	bus     *events.Broadcaster
	logger  *zap.Logger
	monitor *problem.Monitor
	poller  *poller.Controller

	mu     sync.Mutex
	m      machine
	closed bool

	// pollMu serializes re-keying of the poll loop. It is never held
	// together with mu.
	pollMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Coordinator. Call Close to release the poll loop and any
// scheduled work.
func New(cfg Config) *Coordinator {
	if cfg.Parser == nil {
		cfg.Parser = logparse.Default()
	}
	if cfg.Broadcaster == nil {
		cfg.Broadcaster = events.NewBroadcaster()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.LogScope == "" {
		cfg.LogScope = ScopeGlobal
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = DefaultProvider
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:    cfg,
		remote: cfg.Remote,
		parser: cfg.Parser,
		bus:    cfg.Broadcaster,
		logger: cfg.Logger.Named("session"),
		ctx:    ctx,
		cancel: cancel,
	}
	c.m.Status = StatusIdle
	c.monitor = problem.New(cfg.Remote, problem.Options{
		Logger:   cfg.Logger,
		OnChange: c.problemChanged,
	})
	c.poller = poller.New(poller.Options{
		Policy:  cfg.FailurePolicy,
		OnError: c.pollFailed,
		Logger:  cfg.Logger,
	})
	return c
}

// Close stops polling, cancels scheduled problem checks and waits for
// them. It is safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.pollMu.Lock()
	c.poller.Stop()
	c.pollMu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// dispatch applies msg and publishes the change. It reports whether the
// message was applied.
func (c *Coordinator) dispatch(msg message) bool {
	c.mu.Lock()
	prev := c.m.ActiveProjectID
	next, out := reduce(c.m, msg)
	if out == applied {
		next.Version = c.m.Version + 1
		c.m = next
		if next.ActiveProjectID != prev {
			c.monitor.SetSubject(next.ActiveProjectID)
		}
	}
	ev := events.Event{
		Type:      msg.event(),
		ProjectID: c.m.ActiveProjectID,
		Status:    string(c.m.Status),
		Version:   c.m.Version,
		Timestamp: time.Now().UnixMilli(),
	}
	c.mu.Unlock()

	switch out {
	case stale:
		metrics.RecordStaleDiscard(msg.event())
		c.logger.Debug("discarded stale result", zap.String("kind", msg.event()), zap.String("active", ev.ProjectID))
		return false
	case ignored:
		return false
	}

	metrics.RecordTransition(ev.Status)
	c.bus.Publish(ev)
	return true
}

// issue hands out the sequence of a new remote request. Results are
// applied in issue order per slot; see machine.
func (c *Coordinator) issue() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.issued++
	return c.m.issued
}

// active returns the active project id, or ErrNoActiveProject.
func (c *Coordinator) active() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	if c.m.ActiveProjectID == "" {
		return "", ErrNoActiveProject
	}
	return c.m.ActiveProjectID, nil
}

// ActiveProjectID returns the current subject, possibly empty.
func (c *Coordinator) ActiveProjectID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.ActiveProjectID
}

// Snapshot returns a deep copy of the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.m.State
	s.Problem = c.monitor.Current()
	s.Files = s.Files.Clone()
	s.Logs = slices.Clone(s.Logs)
	s.Projects = slices.Clone(s.Projects)
	s.Pending = slices.Clone(s.Pending)
	if s.History != nil {
		h := *s.History
		h.Prompts = slices.Clone(h.Prompts)
		s.History = &h
	}
	return s
}

// Tree builds the file tree of the active project.
func (c *Coordinator) Tree() []*models.FileTreeNode {
	c.mu.Lock()
	files := c.m.Files
	c.mu.Unlock()
	return tree.Build(files)
}

// Logs returns the latest parsed log entries.
func (c *Coordinator) Logs() []models.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.m.Logs)
}

// Problem returns the problem of the active project, if any.
func (c *Coordinator) Problem() *models.Problem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor.Current()
}

// Subscribe returns a channel of change events.
func (c *Coordinator) Subscribe() chan events.Event {
	return c.bus.Subscribe()
}

// Unsubscribe releases a channel obtained from Subscribe.
func (c *Coordinator) Unsubscribe(ch chan events.Event) {
	c.bus.Unsubscribe(ch)
}

// Polling reports whether a poll loop is running and for which subject.
func (c *Coordinator) Polling() (subject string, running bool) {
	return c.poller.Subject()
}

// problemChanged runs when the monitor applied a different problem.
func (c *Coordinator) problemChanged(subject string) {
	c.dispatch(msgProblemChanged{subject: subject})
}

// fetchProblem asks the monitor for the problem of subject. Stale results
// and transport errors are logged, never returned.
func (c *Coordinator) fetchProblem(ctx context.Context, subject string) {
	if _, err := c.monitor.Fetch(ctx, subject); err != nil && !errors.Is(err, problem.ErrStale) {
		c.logger.Warn("problem status unavailable", logging.Project(subject), zap.Error(err))
	}
}
