// Package problem tracks the problem status of the active project.
//
// Results are applied only when the subject they were fetched for is
// still the monitor's subject when they arrive, and only if no later
// fetch for that subject has already been applied.
package problem

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/metrics"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
)

// ErrStale is returned by Fetch when the result was discarded.
var ErrStale = errors.New("problem status is stale")

// Fetcher reads the problem status of a project.
type Fetcher interface {
	ProblemStatus(ctx context.Context, id string) (*models.Problem, error)
}

// Options configures a Monitor.
type Options struct {
	Logger *zap.Logger
	// OnChange is called, without locks held, after an applied result
	// changed the visible problem.
	OnChange func(subject string)
}

// Monitor holds the problem state of one subject at a time.
type Monitor struct {
	fetcher  Fetcher
	logger   *zap.Logger
	onChange func(string)

	mu      sync.Mutex
	subject string
	current *models.Problem
	issued  uint64
	applied uint64
}

// New creates a Monitor.
func New(fetcher Fetcher, opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		fetcher:  fetcher,
		logger:   logger.Named("problem"),
		onChange: opts.OnChange,
	}
}

// SetSubject switches the monitored project. Changing subject clears the
// visible problem before returning.
func (m *Monitor) SetSubject(subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subject == m.subject {
		return
	}
	m.subject = subject
	m.current = nil
	m.applied = m.issued
	metrics.SetProblemActive(false)
}

// Clear drops the subject and its problem.
func (m *Monitor) Clear() {
	m.SetSubject("")
}

// Subject returns the monitored project id.
func (m *Monitor) Subject() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subject
}

// Current returns a copy of the visible problem, or nil when healthy.
func (m *Monitor) Current() *models.Problem {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	p := *m.current
	return &p
}

// Fetch reads the problem of subject and applies it if still relevant.
// An empty subject clears the monitor without a remote call. Transport
// errors leave the visible state unchanged.
func (m *Monitor) Fetch(ctx context.Context, subject string) (*models.Problem, error) {
	if subject == "" {
		m.Clear()
		return nil, nil
	}

	m.mu.Lock()
	m.issued++
	seq := m.issued
	m.mu.Unlock()

	p, err := m.fetcher.ProblemStatus(ctx, subject)

	m.mu.Lock()
	if subject != m.subject || seq <= m.applied {
		m.mu.Unlock()
		metrics.RecordStaleDiscard("problem")
		m.logger.Debug("discarding stale problem status", zap.String("subject", subject))
		return nil, ErrStale
	}
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.applied = seq
	changed := !equal(m.current, p)
	m.current = p
	metrics.SetProblemActive(p != nil)
	m.mu.Unlock()

	if changed {
		if p != nil {
			m.logger.Info("problem reported",
				zap.String("subject", subject),
				zap.String("type", p.Type),
				zap.String("message", p.Message),
			)
		} else {
			m.logger.Info("problem cleared", zap.String("subject", subject))
		}
		if m.onChange != nil {
			m.onChange(subject)
		}
	}
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func equal(a, b *models.Problem) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
