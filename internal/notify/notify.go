// Package notify provides a detached-task dispatcher for fire-and-forget
// side effects: fraud alerts, redemption notifications, analytics pings.
// Dispatched tasks run on their own goroutine with panic recovery; failures
// are logged and swallowed, never awaited on the request path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Dispatcher runs named tasks detached from the caller. The zero value is
// not usable; construct with NewDispatcher. A nil *Dispatcher is safe: Go
// becomes a no-op, which keeps services testable without wiring one.
type Dispatcher struct {
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher with a per-task timeout.
// A timeout <= 0 defaults to 5 seconds.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{logger: log.With().Str("component", "notify").Logger(), timeout: timeout}
}

// Go runs fn on a new goroutine with its own timeout context. Errors and
// panics are logged with the task name and otherwise discarded; the caller
// never blocks and never observes the outcome.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	if d == nil || fn == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error().Interface("panic", rec).Str("task", name).Msg("detached task panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			d.logger.Warn().Err(err).Str("task", name).Msg("detached task failed")
		}
	}()
}

// Wait blocks until all in-flight tasks finish. Intended for graceful
// shutdown and tests; request handlers must never call it.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// PostJSON returns a task that POSTs payload as JSON to url. An empty url
// yields a no-op task, which lets deployments leave webhooks unconfigured.
func PostJSON(url string, payload any) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if url == "" {
			return nil
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	}
}
