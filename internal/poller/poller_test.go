package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) action(ctx context.Context, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, subject)
	return nil
}

func (r *recorder) count(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.calls {
		if s == subject {
			n++
		}
	}
	return n
}

func TestStartFiresImmediatelyThenOnInterval(t *testing.T) {
	c := New(Options{Logger: zaptest.NewLogger(t)})
	rec := &recorder{}

	require.NoError(t, c.Start(context.Background(), "A", 20*time.Millisecond, rec.action))
	defer c.Stop()

	require.Eventually(t, func() bool { return rec.count("A") >= 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return rec.count("A") >= 3 }, time.Second, 5*time.Millisecond)

	subject, ok := c.Subject()
	assert.True(t, ok)
	assert.Equal(t, "A", subject)
}

func TestStartReplacesPreviousLoop(t *testing.T) {
	c := New(Options{})
	rec := &recorder{}
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, "A", 5*time.Millisecond, rec.action))
	require.Eventually(t, func() bool { return rec.count("A") >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, c.Start(ctx, "B", 5*time.Millisecond, rec.action))
	assert.LessOrEqual(t, c.Active(), 1)

	frozen := rec.count("A")
	require.Eventually(t, func() bool { return rec.count("B") >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, frozen, rec.count("A"), "old subject must not fire after Start returned")

	c.Stop()
	assert.Equal(t, 0, c.Active())
}

func TestNeverTwoTickers(t *testing.T) {
	c := New(Options{})
	var maxLive atomic.Int32
	action := func(ctx context.Context, subject string) error {
		if n := int32(c.Active()); n > maxLive.Load() {
			maxLive.Store(n)
		}
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		c.Stop()
		require.NoError(t, c.Start(ctx, "p", time.Millisecond, action))
		assert.LessOrEqual(t, c.Active(), 1)
	}
	c.Stop()

	assert.LessOrEqual(t, maxLive.Load(), int32(1))
	assert.Equal(t, 0, c.Active())
}

func TestStopIsIdempotent(t *testing.T) {
	c := New(Options{})
	c.Stop()
	c.Stop()
	assert.False(t, c.Running())

	require.NoError(t, c.Start(context.Background(), "A", time.Hour, func(context.Context, string) error { return nil }))
	assert.True(t, c.Running())
	c.Stop()
	c.Stop()
	assert.False(t, c.Running())
}

func TestContinueOnErrorKeepsPolling(t *testing.T) {
	var failures atomic.Int32
	c := New(Options{OnError: func(subject string, err error) {
		assert.Equal(t, "A", subject)
		failures.Add(1)
	}})

	require.NoError(t, c.Start(context.Background(), "A", 2*time.Millisecond, func(context.Context, string) error {
		return errors.New("502")
	}))
	defer c.Stop()

	require.Eventually(t, func() bool { return failures.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, c.Running())
}

func TestStopOnErrorEndsLoop(t *testing.T) {
	var failures atomic.Int32
	c := New(Options{
		Policy:  StopOnError,
		OnError: func(string, error) { failures.Add(1) },
	})

	require.NoError(t, c.Start(context.Background(), "A", time.Millisecond, func(context.Context, string) error {
		return errors.New("boom")
	}))

	require.Eventually(t, func() bool { return !c.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), failures.Load())
	assert.Equal(t, 0, c.Active())
	c.Stop()
}

func TestCancelledIterationIsNotAFailure(t *testing.T) {
	var failures atomic.Int32
	c := New(Options{OnError: func(string, error) { failures.Add(1) }})
	started := make(chan struct{})

	require.NoError(t, c.Start(context.Background(), "A", time.Hour, func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started
	c.Stop()
	assert.Zero(t, failures.Load())
}

func TestParentContextEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(Options{})
	require.NoError(t, c.Start(ctx, "A", time.Millisecond, func(context.Context, string) error { return nil }))
	cancel()
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, time.Millisecond)
	c.Stop()
}

func TestInvalidInterval(t *testing.T) {
	c := New(Options{})
	assert.ErrorIs(t, c.Start(context.Background(), "A", 0, nil), ErrInvalidInterval)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("stop")
	require.NoError(t, err)
	assert.Equal(t, StopOnError, p)
	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ContinueOnError, p)
	_, err = ParsePolicy("panic")
	assert.Error(t, err)
}
