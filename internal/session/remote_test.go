package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/protocol"
)

var errUnavailable = errors.New("backend unavailable")

// fakeRemote is an in-memory backend. Gates block a call until closed.
type fakeRemote struct {
	mu sync.Mutex

	projects []models.ProjectSummary
	files    map[string]models.FileMap
	problems map[string]*models.Problem
	logs     string
	nextID   int

	filesGate   map[string]chan struct{}
	createGate  map[string]chan struct{}
	regenGate   map[string]chan struct{}
	logsGate    chan struct{}
	failFiles   map[string]error
	failRegen   error
	failLogs    error
	generated   models.FileMap
	regenerated models.FileMap
	regenFiles  map[string]models.FileMap

	createReqs  []protocol.GenerateRequest
	regenReqs   []protocol.GenerateRequest
	runs        int
	stops       int
	deleted     []string
	problemHits map[string]int
	logScopes   []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files:       map[string]models.FileMap{},
		problems:    map[string]*models.Problem{},
		filesGate:   map[string]chan struct{}{},
		createGate:  map[string]chan struct{}{},
		regenGate:   map[string]chan struct{}{},
		failFiles:   map[string]error{},
		regenFiles:  map[string]models.FileMap{},
		problemHits: map[string]int{},
	}
}

func (f *fakeRemote) addProject(id string, files models.FileMap) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, models.ProjectSummary{ID: id, Name: "project " + id})
	f.files[id] = files
}

func (f *fakeRemote) setProblem(id string, p *models.Problem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.problems[id] = p
}

func (f *fakeRemote) gateFiles(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.filesGate[id] = ch
	return ch
}

func (f *fakeRemote) gateCreate(prompt string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.createGate[prompt] = ch
	return ch
}

// gateRegenerate holds the regeneration for prompt and answers it with
// files.
func (f *fakeRemote) gateRegenerate(prompt string, files models.FileMap) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.regenGate[prompt] = ch
	f.regenFiles[prompt] = files
	return ch
}

// gateLogs holds the next log read. Its result is captured before it
// blocks.
func (f *fakeRemote) gateLogs() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.logsGate = ch
	return ch
}

func (f *fakeRemote) setLogs(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = raw
}

func (f *fakeRemote) ListProjects(ctx context.Context) ([]models.ProjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ProjectSummary, len(f.projects))
	copy(out, f.projects)
	return out, nil
}

func (f *fakeRemote) CreateProject(ctx context.Context, req protocol.GenerateRequest) (*protocol.ProjectResponse, error) {
	f.mu.Lock()
	gate := f.createGate[req.Prompt]
	f.createReqs = append(f.createReqs, req)
	f.nextID++
	id := fmt.Sprintf("gen-%d", f.nextID)
	files := f.generated
	if files == nil {
		files = models.FileMap{"main.py": "print('" + req.Prompt + "')\n"}
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.addProject(id, files)
	return &protocol.ProjectResponse{ProjectID: id, Files: files.Clone()}, nil
}

func (f *fakeRemote) RegenerateProject(ctx context.Context, id string, req protocol.GenerateRequest) (*protocol.ProjectResponse, error) {
	f.mu.Lock()
	f.regenReqs = append(f.regenReqs, req)
	if f.failRegen != nil {
		f.mu.Unlock()
		return nil, f.failRegen
	}
	files, ok := f.regenFiles[req.Prompt]
	if !ok {
		files = f.regenerated
	}
	if files == nil {
		files = f.files[id]
	}
	gate := f.regenGate[req.Prompt]
	delete(f.regenGate, req.Prompt)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[id] = files
	return &protocol.ProjectResponse{ProjectID: id, Files: files.Clone()}, nil
}

func (f *fakeRemote) RenameProject(ctx context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.projects {
		if f.projects[i].ID == id {
			f.projects[i].Name = name
			return nil
		}
	}
	return fmt.Errorf("project %s not found", id)
}

func (f *fakeRemote) DeleteProject(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.projects {
		if p.ID == id {
			f.projects = append(f.projects[:i:i], f.projects[i+1:]...)
			f.deleted = append(f.deleted, id)
			delete(f.files, id)
			return nil
		}
	}
	return fmt.Errorf("project %s not found", id)
}

func (f *fakeRemote) GetFiles(ctx context.Context, id string) (models.FileMap, error) {
	f.mu.Lock()
	gate := f.filesGate[id]
	delete(f.filesGate, id)
	err := f.failFiles[id]
	files, ok := f.files[id]
	files = files.Clone()
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("project %s not found", id)
	}
	return files, nil
}

func (f *fakeRemote) GetHistory(ctx context.Context, id string) (*models.ProjectHistory, error) {
	return &models.ProjectHistory{
		ProjectName: "project " + id,
		Prompts: []models.HistoryEntry{
			{Type: models.HistoryUser, Content: models.TextContent("build " + id)},
		},
	}, nil
}

func (f *fakeRemote) GetLogs(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	f.logScopes = append(f.logScopes, id)
	raw, err := f.logs, f.failLogs
	gate := f.logsGate
	f.logsGate = nil
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (f *fakeRemote) ProblemStatus(ctx context.Context, id string) (*models.Problem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.problemHits[id]++
	p := f.problems[id]
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRemote) RunProject(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return nil
}

func (f *fakeRemote) StopProject(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeRemote) LLMOptions(ctx context.Context) (models.LLMOptions, error) {
	return models.LLMOptions{
		"openai": {"gpt-4o"},
		"gemini": {"gemini-1.5-flash", "gemini-1.5-pro"},
	}, nil
}

func (f *fakeRemote) logReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logScopes)
}

func (f *fakeRemote) hits(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.problemHits[id]
}
