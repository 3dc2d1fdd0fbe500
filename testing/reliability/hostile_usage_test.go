package reliability

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"

	"github.com/zoobzio/stackz"
	"github.com/zoobzio/stackz/recorder"
)

// Hostile usage tests: callers that misuse the API must never corrupt other
// lineages or crash the process.

func newRecorded(t *testing.T, opts ...stackz.Option) (*stackz.Tracer, *recorder.Collector) {
	t.Helper()
	rec := recorder.New()
	collector := recorder.NewCollector(t.Name(), 1<<16)
	collector.SetSyncMode(true)
	rec.AddCollector(collector)
	t.Cleanup(func() {
		collector.Close()
		rec.Close()
	})
	return stackz.New(rec, opts...), collector
}

func TestConcurrentDoubleFinish(t *testing.T) {
	cfg := requireLevel(t, "basic")
	tracer, collector := newRecorded(t)
	requests := cfg.scale(200, 5000)

	var wg sync.WaitGroup
	for range requests {
		_, span := tracer.StartServer(context.Background(), &stackz.Call{Method: http.MethodGet, Path: "/twice"})
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				span.Finish(http.StatusOK)
			}()
		}
	}
	wg.Wait()

	if got := collector.Count(); got != requests {
		t.Errorf("Expected %d spans (one per request), got %d", requests, got)
	}
}

func TestOutOfOrderScopesStayInTheirLineage(t *testing.T) {
	cfg := requireLevel(t, "basic")
	core, logs := observer.New(zapcore.WarnLevel)
	tracer, collector := newRecorded(t)
	manager := stackz.NewStackScopes(zap.New(core))
	lineages := cfg.scale(cfg.MaxGoroutines, cfg.MaxGoroutines*20)

	ctx, root := tracer.StartServer(context.Background(), &stackz.Call{Method: http.MethodGet, Path: "/root"})

	var broken atomic.Int64
	var wg sync.WaitGroup
	for i := range lineages {
		wg.Add(1)
		child := stackz.Fork(ctx)
		go func() {
			defer wg.Done()
			stack := stackz.StackFromContext(child)
			scopes := make([]*stackz.Scope, 3)
			c := child
			for j := range scopes {
				span := tracer.Backend().StartSpan("nested", stackz.StartOptions{})
				c, scopes[j] = manager.Activate(c, span)
				defer span.Finish()
			}
			r := rand.New(rand.NewPCG(uint64(i), 7))
			r.Shuffle(len(scopes), func(a, b int) { scopes[a], scopes[b] = scopes[b], scopes[a] })
			for _, s := range scopes {
				s.Close()
				s.Close()
			}
			if top, ok := stack.Peek(); !ok || top != root.Span() || stack.Len() != 1 {
				broken.Add(1)
			}
		}()
	}
	wg.Wait()
	root.Finish(http.StatusOK)

	if n := broken.Load(); float64(n)/float64(lineages) > cfg.FailureThreshold {
		t.Errorf("%d lineages did not return to their root after closing every scope", n)
	}
	if rootStack := stackz.StackFromContext(ctx); rootStack.Len() != 1 {
		t.Errorf("Request stack should be untouched by children, len=%d", rootStack.Len())
	}
	if got, want := collector.Count(), lineages*3+1; got != want {
		t.Errorf("Expected %d spans, got %d", want, got)
	}
	if logs.FilterMessage("span scope closed out of order").Len() == 0 {
		t.Error("Expected out-of-order closes to be logged")
	}
}

type flakyBackend struct {
	stackz.Backend
	calls atomic.Int64
}

func (b *flakyBackend) StartSpan(name stackz.Key, opts stackz.StartOptions) stackz.Span {
	if b.calls.Add(1)%3 == 0 {
		panic("backend exploded")
	}
	return b.Backend.StartSpan(name, opts)
}

func TestPanickingBackendUnderConcurrency(t *testing.T) {
	cfg := requireLevel(t, "basic")
	rec := recorder.New()
	t.Cleanup(rec.Close)
	backend := &flakyBackend{Backend: rec}
	tracer := stackz.New(backend, stackz.WithTag("tenant", func(ctx context.Context) (string, error) {
		if rand.IntN(2) == 0 {
			panic("tag source exploded")
		}
		return "", errors.New("tenant unknown")
	}))

	workers := cfg.scale(cfg.MaxGoroutines, cfg.MaxGoroutines*10)
	var ran atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, span := tracer.StartServer(context.Background(), &stackz.Call{Method: http.MethodPost, Path: "/jobs"})
			err := tracer.Trace(ctx, "work", func(context.Context, stackz.Span) error {
				ran.Add(1)
				return nil
			})
			if err != nil {
				t.Errorf("Trace returned %v", err)
			}
			span.Finish(http.StatusAccepted)
		}()
	}
	wg.Wait()

	if got := ran.Load(); got != int64(workers) {
		t.Errorf("Every block must run despite backend failures: ran %d of %d", got, workers)
	}
}

func TestPanickingBlocksDoNotLeakSpans(t *testing.T) {
	cfg := requireLevel(t, "basic")
	tracer, collector := newRecorded(t)
	n := cfg.scale(100, 2000)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = recover() }()
			ctx := stackz.WithStack(context.Background(), stackz.NewStack())
			_ = tracer.Trace(ctx, "outer", func(ctx context.Context, _ stackz.Span) error {
				return tracer.Trace(ctx, "inner", func(context.Context, stackz.Span) error {
					panic("inner exploded")
				})
			})
		}()
	}
	wg.Wait()

	spans := collector.Export()
	if len(spans) != n*2 {
		t.Fatalf("Expected %d spans, got %d", n*2, len(spans))
	}
	for _, s := range spans {
		if !s.Errored() {
			t.Errorf("Span %s should be errored after a panic", s.Name)
			break
		}
	}
}
