package consent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/logging"
)

// Hub is an in-process consent channel. Prompts are published on Prompts and
// answered through Resolve, matched by prompt ID.
type Hub struct {
	logger  logging.Logger
	prompts chan Prompt

	mu      sync.Mutex
	pending map[int64]*waiter
	closed  bool
	done    chan struct{}
}

type waiter struct {
	answer   chan Result
	gone     chan struct{}
	resolved bool
}

func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		logger:  logger,
		prompts: make(chan Prompt),
		pending: map[int64]*waiter{},
		done:    make(chan struct{}),
	}
}

// Prompts delivers each outstanding prompt once.
func (h *Hub) Prompts() <-chan Prompt { return h.prompts }

func (h *Hub) Request(ctx context.Context, p Prompt) (*Result, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil
	}
	if _, exists := h.pending[p.ID]; exists {
		h.mu.Unlock()
		return nil, clierr.New(clierr.CodeInternal, fmt.Sprintf("consent request %d is already pending", p.ID))
	}
	w := &waiter{answer: make(chan Result, 1), gone: make(chan struct{})}
	h.pending[p.ID] = w
	h.mu.Unlock()
	defer h.remove(p.ID)

	h.logger.Debug("consent prompt published", "id", p.ID, "origin", p.Origin)
	select {
	case h.prompts <- p:
	case r := <-w.answer:
		return &r, nil
	case <-h.done:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-w.answer:
		return &r, nil
	case <-h.done:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve routes r to the request with the given ID.
func (h *Hub) Resolve(id int64, r Result) error {
	h.mu.Lock()
	w, ok := h.pending[id]
	if ok && w.resolved {
		ok = false
	}
	if ok {
		w.resolved = true
	}
	h.mu.Unlock()
	if !ok {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("no pending consent request %d", id))
	}
	w.answer <- r
	h.logger.Debug("consent prompt resolved", "id", id, "accepted", r.Accepted)
	return nil
}

// Redeliver publishes p again if its request is still unanswered. It reports
// whether the prompt was requeued.
func (h *Hub) Redeliver(p Prompt) bool {
	h.mu.Lock()
	w, ok := h.pending[p.ID]
	if ok && w.resolved {
		ok = false
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.logger.Debug("consent prompt requeued", "id", p.ID)
	go func() {
		select {
		case h.prompts <- p:
		case <-w.gone:
		case <-h.done:
		}
	}()
	return true
}

// Pending lists the IDs of unanswered requests.
func (h *Hub) Pending() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int64, 0, len(h.pending))
	for id, w := range h.pending {
		if !w.resolved {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close releases every waiting request without an answer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

func (h *Hub) remove(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.pending[id]; ok {
		delete(h.pending, id)
		close(w.gone)
	}
}
