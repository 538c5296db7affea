package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/logging"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/metrics"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/poller"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/problem"
)

// SetPolling turns periodic log and problem refresh on or off. The loop
// follows the active project.
func (c *Coordinator) SetPolling(enabled bool) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.dispatch(msgPolling{enabled: enabled})
	c.repoll()
	return nil
}

// RefreshLogs runs one poll iteration for the active project.
func (c *Coordinator) RefreshLogs(ctx context.Context) error {
	return c.poll(ctx, c.ActiveProjectID())
}

// repoll brings the poll loop in line with the state: stopped when
// polling is off, otherwise running for the active project.
func (c *Coordinator) repoll() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	c.mu.Lock()
	enabled, subject, closed := c.m.PollingEnabled, c.m.ActiveProjectID, c.closed
	c.mu.Unlock()

	if !enabled || closed {
		c.poller.Stop()
		return
	}
	if current, ok := c.poller.Subject(); ok && current == subject {
		return
	}
	if err := c.poller.Start(c.ctx, subject, c.cfg.PollInterval, c.poll); err != nil {
		c.logger.Error("failed to start polling", logging.Project(subject), zap.Error(err))
	}
}

// poll fetches logs and the problem status of subject concurrently. With
// no subject only the global log is read.
func (c *Coordinator) poll(ctx context.Context, subject string) error {
	var g errgroup.Group

	g.Go(func() error {
		scope := ""
		if c.cfg.LogScope == ScopeProject {
			scope = subject
		}
		seq := c.issue()
		raw, err := c.remote.GetLogs(ctx, scope)
		if err != nil {
			return fmt.Errorf("fetch logs: %w", err)
		}
		entries := c.parser.Parse(raw)
		if c.dispatch(msgLogs{subject: subject, seq: seq, entries: entries}) {
			metrics.SetLogEntries(len(entries))
		}
		return nil
	})

	if subject != "" {
		g.Go(func() error {
			_, err := c.monitor.Fetch(ctx, subject)
			if err != nil && !errors.Is(err, problem.ErrStale) {
				return fmt.Errorf("fetch problem: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// pollFailed surfaces a failed iteration. It runs on the polling
// goroutine.
func (c *Coordinator) pollFailed(subject string, err error) {
	if !c.dispatch(msgPollFailed{subject: subject, err: err}) {
		return
	}
	if c.cfg.FailurePolicy == poller.StopOnError {
		c.dispatch(msgPolling{enabled: false})
	}
}
