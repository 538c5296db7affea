package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/retry"
)

// StreamEvent is one Server-Sent Event read from a local bridge.
type StreamEvent struct {
	Type string
	Data json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e StreamEvent) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Watcher follows the event stream of a running bridge (appmaker serve)
// and reconnects with backoff when the stream drops.
type Watcher struct {
	url        string
	httpClient *http.Client
	backoff    retry.Config
	logger     *zap.Logger
}

// NewWatcher creates a watcher for the bridge at baseURL.
func NewWatcher(baseURL string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		url: strings.TrimSuffix(baseURL, "/") + "/api/events",
		httpClient: &http.Client{
			Timeout: 0, // No timeout for SSE
		},
		backoff: retry.Config{
			InitialWait: time.Second,
			MaxWait:     30 * time.Second,
			Multiplier:  2,
		},
		logger: logger.Named("watch"),
	}
}

// Subscribe connects to the stream and returns a channel of events. Both
// channels are closed once ctx ends.
func (w *Watcher) Subscribe(ctx context.Context) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 64)
	errs := make(chan error, 1)

	go w.loop(ctx, events, errs)

	return events, errs
}

func (w *Watcher) loop(ctx context.Context, events chan<- StreamEvent, errs chan<- error) {
	defer close(events)
	defer close(errs)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		received, err := w.connect(ctx, events)
		if ctx.Err() != nil {
			return
		}
		if received {
			failures = 0
		}
		failures++
		delay := retry.Backoff(w.backoff, failures)

		w.logger.Warn("event stream interrupted",
			zap.Error(err),
			zap.Duration("reconnect_in", delay),
		)
		select {
		case errs <- err:
		default:
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect reads one stream until it ends. received reports whether at
// least one event was delivered.
func (w *Watcher) connect(ctx context.Context, events chan<- StreamEvent) (received bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("bridge returned %d", resp.StatusCode)
	}

	w.logger.Info("event stream connected", zap.String("url", w.url))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	var eventType string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				ev := StreamEvent{Type: eventType, Data: json.RawMessage(data.String())}
				select {
				case events <- ev:
					received = true
				case <-ctx.Done():
					return received, nil
				}
			}
			eventType = ""
			data.Reset()
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if v, ok := strings.CutPrefix(line, "event:"); ok {
			eventType = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(v))
		}
	}

	if err := scanner.Err(); err != nil {
		return received, fmt.Errorf("read: %w", err)
	}
	return received, fmt.Errorf("connection closed")
}
