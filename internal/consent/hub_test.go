package consent

import (
	"context"
	"errors"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

func waitPending(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(h.Pending()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d pending requests, got %v", n, h.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubRoutesResultsByID(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	type outcome struct {
		id  int64
		res *Result
		err error
	}
	done := make(chan outcome, 2)
	for _, id := range []int64{1, 2} {
		go func(id int64) {
			res, err := hub.Request(context.Background(), Prompt{ID: id, Type: RequestTypeSignature})
			done <- outcome{id: id, res: res, err: err}
		}(id)
	}

	seen := map[int64]bool{}
	for len(seen) < 2 {
		select {
		case p := <-hub.Prompts():
			seen[p.ID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("prompts were not published")
		}
	}

	// Answer the older request last; each answer must reach its own request.
	if err := hub.Resolve(2, Result{Accepted: false}); err != nil {
		t.Fatalf("resolve 2: %v", err)
	}
	if err := hub.Resolve(1, Result{Accepted: true}); err != nil {
		t.Fatalf("resolve 1: %v", err)
	}

	for i := 0; i < 2; i++ {
		o := <-done
		if o.err != nil {
			t.Fatalf("request %d failed: %v", o.id, o.err)
		}
		want := o.id == 1
		if o.res.Accepted != want {
			t.Fatalf("request %d got accepted=%v", o.id, o.res.Accepted)
		}
	}
	if len(hub.Pending()) != 0 {
		t.Fatalf("expected no pending requests, got %v", hub.Pending())
	}
}

func TestHubRefusesDuplicateAndUnknownIDs(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _, _ = hub.Request(ctx, Prompt{ID: 7}) }()
	waitPending(t, hub, 1)

	if _, err := hub.Request(context.Background(), Prompt{ID: 7}); err == nil {
		t.Fatalf("expected duplicate id to be refused")
	}
	if err := hub.Resolve(99, Result{Accepted: true}); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for unknown id, got %v", err)
	}
}

func TestHubCancellationRemovesPending(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := hub.Request(ctx, Prompt{ID: 3})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(hub.Pending()) != 0 {
		t.Fatalf("cancelled request must not stay pending")
	}
}

func TestHubCloseYieldsNoResult(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan *Result, 1)
	go func() {
		res, _ := hub.Request(context.Background(), Prompt{ID: 1})
		done <- res
	}()
	<-hub.Prompts()
	hub.Close()
	select {
	case res := <-done:
		if res != nil {
			t.Fatalf("expected absent result after close, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("request did not return after close")
	}
}

func TestResultJSONKeepsExtraFields(t *testing.T) {
	var r Result
	if err := r.UnmarshalJSON([]byte(`{"accepted":true,"note":"ok"}`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !r.Accepted || r.Extra["note"] != "ok" {
		t.Fatalf("unexpected result %+v", r)
	}
	var missing Result
	if err := missing.UnmarshalJSON([]byte(`{}`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if missing.Accepted {
		t.Fatalf("missing accepted must decode as false")
	}
}

func TestHubRedeliversUnansweredPrompt(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	done := make(chan *Result, 1)
	go func() {
		res, _ := hub.Request(context.Background(), Prompt{ID: 3, Origin: "test"})
		done <- res
	}()

	var first Prompt
	select {
	case first = <-hub.Prompts():
	case <-time.After(2 * time.Second):
		t.Fatalf("prompt was not published")
	}
	// The first consumer drops the prompt; the request must stay answerable.
	if !hub.Redeliver(first) {
		t.Fatalf("expected pending prompt to be requeued")
	}
	select {
	case again := <-hub.Prompts():
		if again.ID != 3 || again.Origin != "test" {
			t.Fatalf("unexpected redelivered prompt %+v", again)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("prompt was not redelivered")
	}

	if err := hub.Resolve(3, Result{Accepted: true}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res := <-done; res == nil || !res.Accepted {
		t.Fatalf("expected accepted result, got %+v", res)
	}
	if hub.Redeliver(first) {
		t.Fatalf("answered prompt must not be requeued")
	}
}
