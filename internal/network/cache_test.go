package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
	"github.com/ggonzalez94/wallet-cli/internal/metrics"
)

type stubClient struct {
	endpoint string
	closed   atomic.Bool
}

func (s *stubClient) Close() error {
	s.closed.Store(true)
	return nil
}

type countingBuilder struct {
	calls atomic.Int64
	delay time.Duration
}

func (b *countingBuilder) build(_ context.Context, id Identity) (*stubClient, error) {
	b.calls.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	return &stubClient{endpoint: id.FullHost()}, nil
}

func TestResolveReturnsSameHandle(t *testing.T) {
	b := &countingBuilder{}
	cache := NewClientCache(b.build)

	first, err := cache.Resolve(context.Background(), mainnet())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := cache.Resolve(context.Background(), mainnet())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical handles")
	}
	if b.calls.Load() != 1 {
		t.Fatalf("expected one construction, got %d", b.calls.Load())
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cached entry, got %d", cache.Len())
	}
}

func TestResolveIdentityProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("repeated resolution yields the same handle per identity", prop.ForAll(
		func(ports []int, repeats int) bool {
			b := &countingBuilder{}
			cache := NewClientCache(b.build)
			seen := map[string]*stubClient{}
			for r := 0; r < repeats; r++ {
				for _, port := range ports {
					id := Identity{Protocol: "http", Host: "127.0.0.1", Port: port, Blockchain: "trx", ChainID: "1"}
					c, err := cache.Resolve(context.Background(), id)
					if err != nil {
						return false
					}
					if prev, ok := seen[id.Unique()]; ok && prev != c {
						return false
					}
					seen[id.Unique()] = c
				}
			}
			return int(b.calls.Load()) == len(seen) && cache.Len() == len(seen)
		},
		gen.SliceOf(gen.IntRange(1, 65535)),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestConcurrentFirstResolutionBuildsOnce(t *testing.T) {
	b := &countingBuilder{delay: 20 * time.Millisecond}
	cache := NewClientCache(b.build)

	const workers = 32
	results := make([]*stubClient, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			c, err := cache.Resolve(context.Background(), mainnet())
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			results[i] = c
		}(i)
	}
	close(start)
	wg.Wait()

	if b.calls.Load() != 1 {
		t.Fatalf("expected exactly one construction, got %d", b.calls.Load())
	}
	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatalf("worker %d received a different handle", i)
		}
	}
}

func TestFailedConstructionIsNotCached(t *testing.T) {
	var calls atomic.Int64
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	cache := NewClientCache(func(_ context.Context, id Identity) (*stubClient, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("dial refused")
		}
		return &stubClient{endpoint: id.FullHost()}, nil
	}, WithCacheMetrics(m))

	_, err := cache.Resolve(context.Background(), mainnet())
	if !clierr.Is(err, clierr.CodeClientConstruction) {
		t.Fatalf("expected client construction error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("failed construction must not be cached")
	}

	if _, err := cache.Resolve(context.Background(), mainnet()); err != nil {
		t.Fatalf("second resolve should retry construction: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected two construction attempts, got %d", calls.Load())
	}
	if got := testutil.ToFloat64(m.ClientConstructFail.WithLabelValues("trx")); got != 1 {
		t.Fatalf("expected one failure observed, got %v", got)
	}
	if got := testutil.ToFloat64(m.ClientsConstructed.WithLabelValues("trx")); got != 1 {
		t.Fatalf("expected one construction observed, got %v", got)
	}
}

func TestCloseReleasesHandlesAndRejectsResolve(t *testing.T) {
	b := &countingBuilder{}
	cache := NewClientCache(b.build)

	handles := make([]*stubClient, 0, 3)
	for port := 8090; port < 8093; port++ {
		id := Identity{Protocol: "http", Host: "127.0.0.1", Port: port, Blockchain: "trx"}
		c, err := cache.Resolve(context.Background(), id)
		if err != nil {
			t.Fatalf("resolve %d: %v", port, err)
		}
		handles = append(handles, c)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for i, h := range handles {
		if !h.closed.Load() {
			t.Fatalf("handle %d was not closed", i)
		}
	}
	_, err := cache.Resolve(context.Background(), mainnet())
	if !clierr.Is(err, clierr.CodeClientConstruction) {
		t.Fatalf("expected resolve after close to fail, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after close")
	}
}

func ExampleClientCache_Resolve() {
	cache := NewClientCache(func(_ context.Context, id Identity) (string, error) {
		return "client for " + id.FullHost(), nil
	})
	c, _ := cache.Resolve(context.Background(), Identity{Protocol: "https", Host: "api.trongrid.io", Port: 443, Blockchain: "trx", ChainID: "1"})
	fmt.Println(c)
	// Output: client for https://api.trongrid.io
}
