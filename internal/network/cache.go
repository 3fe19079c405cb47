package network

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/logging"
	"github.com/ggonzalez94/wallet-cli/internal/metrics"
)

// BuildFunc constructs a client handle for an identity.
type BuildFunc[C any] func(ctx context.Context, id Identity) (C, error)

// ClientCache hands out one client handle per network identity. The first
// Resolve for an identity builds the handle; every later Resolve returns the
// same handle. Entries are never evicted.
type ClientCache[C any] struct {
	build   BuildFunc[C]
	logger  logging.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]C
	closed  bool
	group   singleflight.Group
}

type CacheOption func(*cacheOptions)

type cacheOptions struct {
	logger  logging.Logger
	metrics *metrics.Metrics
}

func WithCacheLogger(lg logging.Logger) CacheOption {
	return func(o *cacheOptions) { o.logger = lg }
}

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(o *cacheOptions) { o.metrics = m }
}

func NewClientCache[C any](build BuildFunc[C], opts ...CacheOption) *ClientCache[C] {
	o := cacheOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &ClientCache[C]{
		build:   build,
		logger:  o.logger,
		metrics: o.metrics,
		clients: map[string]C{},
	}
}

// Resolve returns the cached handle for id, building it on first use.
// Concurrent first calls for the same identity share a single build.
func (c *ClientCache[C]) Resolve(ctx context.Context, id Identity) (C, error) {
	var zero C
	key := id.Unique()

	c.mu.RLock()
	closed := c.closed
	client, ok := c.clients[key]
	c.mu.RUnlock()
	if closed {
		return zero, clierr.New(clierr.CodeClientConstruction, "client cache is closed")
	}
	if ok {
		c.logger.Debug("network client cache hit", "network", key)
		return client, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		existing, ok := c.clients[key]
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return nil, clierr.New(clierr.CodeClientConstruction, "client cache is closed")
		}
		if ok {
			return existing, nil
		}

		built, err := c.build(ctx, id)
		c.metrics.ObserveClientConstruction(id.Blockchain, err)
		if err != nil {
			c.logger.Warn("network client construction failed", "network", key, "error", err)
			return nil, clierr.Wrap(clierr.CodeClientConstruction, "construct client for "+id.String(), err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			closeHandle(built)
			return nil, clierr.New(clierr.CodeClientConstruction, "client cache is closed")
		}
		c.clients[key] = built
		c.logger.Info("network client constructed", "network", key)
		return built, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(C), nil
}

// Len reports how many handles are cached.
func (c *ClientCache[C]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// Close releases every cached handle that implements io.Closer. Resolve fails
// after Close.
func (c *ClientCache[C]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var firstErr error
	for key, client := range c.clients {
		if err := closeHandle(client); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.clients, key)
	}
	return firstErr
}

func closeHandle(v any) error {
	if closer, ok := v.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
