// Package poller runs one periodic action at a time, keyed by a subject.
//
// Starting a new loop fully stops the previous one first, so two tickers
// never coexist. The loop's goroutine owns its ticker and releases it on
// exit; Stop and Start wait for that exit.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/metrics"
)

// FailurePolicy decides what a failed iteration does to the loop.
type FailurePolicy int

const (
	// ContinueOnError reports the failure and keeps polling.
	ContinueOnError FailurePolicy = iota
	// StopOnError reports the failure and ends the loop.
	StopOnError
)

func (p FailurePolicy) String() string {
	if p == StopOnError {
		return "stop"
	}
	return "continue"
}

// ParsePolicy maps "continue"/"stop" to a FailurePolicy.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "continue":
		return ContinueOnError, nil
	case "stop":
		return StopOnError, nil
	}
	return ContinueOnError, errors.New("failure policy must be continue or stop")
}

// Action is one polling iteration. ctx is cancelled when the loop stops.
type Action func(ctx context.Context, subject string) error

// ErrorHandler is told about failed iterations. It runs on the polling
// goroutine and must not call Start or Stop.
type ErrorHandler func(subject string, err error)

// Options configures a Controller.
type Options struct {
	Policy  FailurePolicy
	OnError ErrorHandler
	Logger  *zap.Logger
}

// ErrInvalidInterval is returned by Start for non-positive intervals.
var ErrInvalidInterval = errors.New("poll interval must be positive")

type loop struct {
	subject string
	cancel  context.CancelFunc
	done    chan struct{}
}

func (l *loop) finished() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Controller owns at most one polling loop.
type Controller struct {
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	current *loop

	// live counts goroutines holding a ticker.
	live atomic.Int32
}

// New creates a Controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{opts: opts, logger: logger.Named("poller")}
}

// Start installs a loop for subject that calls action immediately and then
// every interval. A running loop is stopped and joined first.
func (c *Controller) Start(ctx context.Context, subject string, interval time.Duration, action Action) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	l := &loop{subject: subject, cancel: cancel, done: make(chan struct{})}
	c.current = l

	go c.run(loopCtx, l, interval, action)

	c.logger.Debug("polling started",
		zap.String("subject", subject),
		zap.Duration("interval", interval),
		zap.Stringer("policy", c.opts.Policy),
	)
	return nil
}

// Stop ends the current loop and waits for its goroutine. It is a no-op
// when nothing runs.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.current == nil {
		return
	}
	l := c.current
	c.current = nil
	l.cancel()
	<-l.done
	c.logger.Debug("polling stopped", zap.String("subject", l.subject))
}

// Subject returns the subject of the running loop.
func (c *Controller) Subject() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.finished() {
		return "", false
	}
	return c.current.subject, true
}

// Running reports whether a loop is live.
func (c *Controller) Running() bool {
	_, ok := c.Subject()
	return ok
}

// Active returns the number of live tickers: 0 or 1.
func (c *Controller) Active() int {
	return int(c.live.Load())
}

func (c *Controller) run(ctx context.Context, l *loop, interval time.Duration, action Action) {
	defer close(l.done)

	ticker := time.NewTicker(interval)
	c.live.Add(1)
	metrics.AddActivePollers(1)
	defer func() {
		ticker.Stop()
		c.live.Add(-1)
		metrics.AddActivePollers(-1)
	}()

	if !c.tick(ctx, l.subject, action) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tick(ctx, l.subject, action) {
				return
			}
		}
	}
}

// tick runs one iteration and reports whether the loop should continue.
func (c *Controller) tick(ctx context.Context, subject string, action Action) bool {
	err := action(ctx, subject)
	if ctx.Err() != nil {
		return false
	}
	metrics.RecordPollTick(err == nil)
	if err == nil {
		return true
	}

	c.logger.Warn("poll failed", zap.String("subject", subject), zap.Error(err))
	if c.opts.OnError != nil {
		c.opts.OnError(subject, err)
	}
	if c.opts.Policy == StopOnError {
		c.logger.Info("polling stopped after failure", zap.String("subject", subject))
		return false
	}
	return true
}
