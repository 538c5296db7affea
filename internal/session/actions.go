package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/logging"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/protocol"
)

// Init loads the project list and, when configured, selects the last
// listed project.
func (c *Coordinator) Init(ctx context.Context) error {
	list, err := c.RefreshProjects(ctx)
	if err != nil {
		return err
	}
	if !c.cfg.AutoSelectLast || len(list) == 0 || c.ActiveProjectID() != "" {
		return nil
	}
	return c.Select(ctx, list[len(list)-1].ID)
}

// Select makes id the active project. Switching to a different project
// clears everything derived from the previous one before any fetch is
// issued; selecting the active project again refreshes it in place.
func (c *Coordinator) Select(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("project id is required")
	}
	if c.isClosed() {
		return ErrClosed
	}

	seq := c.issue()
	c.dispatch(msgSelect{subject: id, seq: seq})
	c.repoll()

	var (
		files   models.FileMap
		history *models.ProjectHistory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := c.remote.GetFiles(gctx, id)
		if err != nil {
			return err
		}
		files = f
		return nil
	})
	g.Go(func() error {
		h, err := c.remote.GetHistory(gctx, id)
		if err != nil {
			c.logger.Warn("history unavailable", logging.Project(id), zap.Error(err))
			return nil
		}
		history = h
		return nil
	})
	g.Go(func() error {
		c.fetchProblem(gctx, id)
		return nil
	})

	if err := g.Wait(); err != nil {
		if !c.dispatch(msgLoadFailed{subject: id, seq: seq, err: err}) {
			return nil
		}
		return fmt.Errorf("select %s: %w", id, err)
	}
	if c.dispatch(msgLoaded{subject: id, seq: seq, files: files, history: history}) {
		c.logger.Info("project loaded", logging.Project(id), zap.Int("files", len(files)))
	}
	return nil
}

// Generate creates a new project from prompt. The session is reset to
// having no project while the request runs; the new project becomes
// active only if nothing else was selected or generated meanwhile.
func (c *Coordinator) Generate(ctx context.Context, prompt, provider, model string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if c.isClosed() {
		return "", ErrClosed
	}

	token := uuid.NewString()
	seq := c.issue()
	c.dispatch(msgCreateStarted{token: token})
	c.repoll()

	start := time.Now()
	resp, err := c.remote.CreateProject(ctx, c.request(prompt, provider, model))
	if err != nil {
		c.dispatch(msgCreateFailed{token: token, err: err})
		return "", fmt.Errorf("generate: %w", err)
	}

	adopted := c.dispatch(msgCreated{token: token, subject: resp.ProjectID, seq: seq, files: resp.Files})
	c.refreshProjectsQuietly(ctx)
	if !adopted {
		c.logger.Info("generated project not adopted", logging.Project(resp.ProjectID))
		return resp.ProjectID, nil
	}

	c.logger.Info("project generated",
		logging.Project(resp.ProjectID),
		zap.Int("files", len(resp.Files)),
		zap.Duration("duration", time.Since(start)),
	)
	c.repoll()
	c.fetchProblem(ctx, resp.ProjectID)
	c.refreshHistory(ctx, resp.ProjectID)
	return resp.ProjectID, nil
}

// Update regenerates the active project in place from prompt.
func (c *Coordinator) Update(ctx context.Context, prompt, provider, model string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	subject, err := c.active()
	if err != nil {
		return err
	}
	return c.regenerate(ctx, subject, ActionUpdate, prompt, provider, model)
}

// Fix asks the generator to repair the active project using its files and
// the current problem report.
func (c *Coordinator) Fix(ctx context.Context, provider, model string) error {
	c.mu.Lock()
	subject, files, closed := c.m.ActiveProjectID, c.m.Files, c.closed
	p := c.monitor.Current()
	c.mu.Unlock()

	switch {
	case closed:
		return ErrClosed
	case subject == "":
		return ErrNoActiveProject
	case p == nil:
		return ErrNoProblem
	}

	c.logger.Info("requesting fix", logging.Project(subject), zap.String("problem", p.Type))
	return c.regenerate(ctx, subject, ActionFix, BuildFixPrompt(files, p), provider, model)
}

func (c *Coordinator) regenerate(ctx context.Context, subject string, action Action, prompt, provider, model string) error {
	seq := c.issue()
	c.dispatch(msgActionStarted{subject: subject, action: action, seq: seq})

	resp, err := c.remote.RegenerateProject(ctx, subject, c.request(prompt, provider, model))
	if err != nil {
		c.dispatch(msgActionDone{subject: subject, action: action, seq: seq, err: err})
		return fmt.Errorf("%s: %w", action, err)
	}
	files := resp.Files
	if files == nil {
		files = models.FileMap{}
	}
	if !c.dispatch(msgActionDone{subject: subject, action: action, seq: seq, files: files}) {
		return nil
	}

	c.fetchProblem(ctx, subject)
	c.refreshHistory(ctx, subject)
	return nil
}

// Run starts the active project on the runner and checks its problem
// status once it had time to settle.
func (c *Coordinator) Run(ctx context.Context) error {
	subject, err := c.active()
	if err != nil {
		return err
	}

	c.dispatch(msgActionStarted{subject: subject, action: ActionRun})
	err = c.remote.RunProject(ctx, subject)
	c.dispatch(msgActionDone{subject: subject, action: ActionRun, err: err})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if c.cfg.AutoPollOnRun {
		if err := c.SetPolling(true); err != nil {
			return err
		}
	}
	c.scheduleProblemCheck(subject)
	return nil
}

// Stop stops the active project on the runner.
func (c *Coordinator) Stop(ctx context.Context) error {
	subject, err := c.active()
	if err != nil {
		return err
	}

	c.dispatch(msgActionStarted{subject: subject, action: ActionStop})
	err = c.remote.StopProject(ctx, subject)
	c.dispatch(msgActionDone{subject: subject, action: ActionStop, err: err})
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Delete removes a project remotely. Deleting the active project returns
// the session to idle.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("project id is required")
	}
	if c.isClosed() {
		return ErrClosed
	}

	wasActive := c.ActiveProjectID() == id
	if wasActive {
		c.dispatch(msgActionStarted{subject: id, action: ActionDelete})
	}

	if err := c.remote.DeleteProject(ctx, id); err != nil {
		err = fmt.Errorf("delete %s: %w", id, err)
		if wasActive {
			c.dispatch(msgActionDone{subject: id, action: ActionDelete, err: err})
		} else {
			c.dispatch(msgError{err: err})
		}
		return err
	}

	c.dispatch(msgDeleted{subject: id})
	c.repoll()
	c.refreshProjectsQuietly(ctx)
	c.logger.Info("project deleted", logging.Project(id))
	return nil
}

// Rename changes the display name of a project.
func (c *Coordinator) Rename(ctx context.Context, id, name string) error {
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if id == "" {
		return errors.New("project id is required")
	}
	if name == "" {
		return errors.New("new name is required")
	}

	if err := c.remote.RenameProject(ctx, id, name); err != nil {
		err = fmt.Errorf("rename %s: %w", id, err)
		c.dispatch(msgError{err: err})
		return err
	}
	c.refreshProjectsQuietly(ctx)
	return nil
}

// RefreshProjects reloads the project list.
func (c *Coordinator) RefreshProjects(ctx context.Context) ([]models.ProjectSummary, error) {
	list, err := c.remote.ListProjects(ctx)
	if err != nil {
		err = fmt.Errorf("list projects: %w", err)
		c.dispatch(msgError{err: err})
		return nil, err
	}
	c.dispatch(msgProjects{projects: list})
	return slices.Clone(list), nil
}

func (c *Coordinator) refreshProjectsQuietly(ctx context.Context) {
	if _, err := c.RefreshProjects(ctx); err != nil {
		c.logger.Warn("project list refresh failed", zap.Error(err))
	}
}

func (c *Coordinator) refreshHistory(ctx context.Context, subject string) {
	seq := c.issue()
	h, err := c.remote.GetHistory(ctx, subject)
	if err != nil {
		c.logger.Debug("history refresh failed", logging.Project(subject), zap.Error(err))
		return
	}
	c.dispatch(msgHistory{subject: subject, seq: seq, history: h})
}

// SelectFile marks path as the selected file of the active project.
func (c *Coordinator) SelectFile(path string) error {
	subject := c.ActiveProjectID()
	if subject == "" {
		return ErrNoActiveProject
	}
	if !c.dispatch(msgSelectFile{subject: subject, path: path}) {
		return fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}
	return nil
}

// LLMOptions lists the providers and models offered by the backend.
func (c *Coordinator) LLMOptions(ctx context.Context) (models.LLMOptions, error) {
	opts, err := c.remote.LLMOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm options: %w", err)
	}
	return opts, nil
}

// DefaultModel picks the provider and model to preselect from opts.
func (c *Coordinator) DefaultModel(opts models.LLMOptions) (provider, model string) {
	return opts.Default(c.cfg.DefaultProvider, c.cfg.DefaultModel)
}

// request fills in the configured provider and model when omitted.
func (c *Coordinator) request(prompt, provider, model string) protocol.GenerateRequest {
	if provider == "" {
		provider = c.cfg.DefaultProvider
	}
	if model == "" && provider == c.cfg.DefaultProvider {
		model = c.cfg.DefaultModel
	}
	return protocol.GenerateRequest{Prompt: prompt, LLMProvider: provider, ModelName: model}
}

// scheduleProblemCheck fetches the problem of subject after the settle
// delay unless the coordinator closes first.
func (c *Coordinator) scheduleProblemCheck(subject string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		timer := time.NewTimer(c.cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
		}
		if c.ActiveProjectID() != subject {
			return
		}
		c.fetchProblem(c.ctx, subject)
	}()
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
