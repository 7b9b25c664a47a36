package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcher_RunsTaskAndWaits(t *testing.T) {
	d := NewDispatcher(time.Second)

	var ran atomic.Bool
	d.Go("test.task", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	d.Wait()

	if !ran.Load() {
		t.Fatalf("task did not run before Wait returned")
	}
}

func TestDispatcher_NilReceiverAndNilTask(t *testing.T) {
	var d *Dispatcher
	// Must not panic.
	d.Go("noop", func(ctx context.Context) error { return nil })
	d.Wait()

	d2 := NewDispatcher(time.Second)
	d2.Go("nil-fn", nil)
	d2.Wait()
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := NewDispatcher(time.Second)
	d.Go("panics", func(ctx context.Context) error {
		panic("boom")
	})
	// A panicking task must not take the process down; Wait must still return.
	d.Wait()
}

func TestDispatcher_TaskErrorsAreSwallowed(t *testing.T) {
	d := NewDispatcher(time.Second)
	d.Go("fails", func(ctx context.Context) error {
		return errors.New("nope")
	})
	d.Wait()
}

func TestDispatcher_TaskContextHasDeadline(t *testing.T) {
	d := NewDispatcher(50 * time.Millisecond)

	var hadDeadline atomic.Bool
	d.Go("deadline", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		return nil
	})
	d.Wait()

	if !hadDeadline.Load() {
		t.Fatalf("task context should carry a deadline")
	}
}

func TestPostJSON_DeliversPayload(t *testing.T) {
	type payload struct {
		Kind string `json:"kind"`
		IP   string `json:"ip"`
	}

	got := make(chan payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	task := PostJSON(srv.URL, payload{Kind: "ip_blocked", IP: "10.0.0.1"})
	if err := task(context.Background()); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}

	select {
	case p := <-got:
		if p.Kind != "ip_blocked" || p.IP != "10.0.0.1" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("server never received the payload")
	}
}

func TestPostJSON_EmptyURLIsNoop(t *testing.T) {
	task := PostJSON("", map[string]any{"x": 1})
	if err := task(context.Background()); err != nil {
		t.Fatalf("empty url should be a no-op, got %v", err)
	}
}

func TestPostJSON_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	task := PostJSON(srv.URL, map[string]any{"x": 1})
	if err := task(context.Background()); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}
