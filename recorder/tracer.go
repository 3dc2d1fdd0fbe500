package recorder

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/zoobzio/stackz"
)

// SpanHandler is called when a span completes.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Tracer records spans in process. It implements stackz.Backend.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	collectors   []*Collector
	panicHook    func(handlerID uint64, r interface{})
	workers      *workerPool
	traceIDPool  *IDPool
	spanIDPool   *IDPool
	clock        clockz.Clock
	logger       *zap.Logger
	handlersLock sync.RWMutex
	idPoolOnce   sync.Once
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
}

var _ stackz.Backend = (*Tracer)(nil)

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the logger for handler panics and dropped work.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a new tracer using the real clock.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		handlers: make([]handlerEntry, 0),
		clock:    clockz.RealClock,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Clock returns the tracer's clock.
func (t *Tracer) Clock() clockz.Clock {
	return t.clock
}

func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		poolSize := runtime.NumCPU() * 100

		t.traceIDPool = NewIDPool(poolSize, func() string {
			return t.randomID(16)
		})
		t.spanIDPool = NewIDPool(poolSize, func() string {
			return t.randomID(8)
		})
	})
}

// randomID returns n random bytes as hex. If crypto/rand fails the clock
// seeds the ID instead, so IDs stay well formed.
func (t *Tracer) randomID(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		ts := uint64(t.clock.Now().UnixNano())
		for i := range b {
			b[i] = byte(ts >> (8 * (i % 8)))
		}
		b[n-1] |= 1
	}
	return hex.EncodeToString(b)
}

// AddCollector registers a collector that receives a copy of every
// completed span.
func (t *Tracer) AddCollector(c *Collector) {
	if c == nil {
		return
	}
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.collectors = append(t.collectors, c)
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.panicHook = hook
}

// StartSpan implements stackz.Backend. A valid recorder SpanContext parent
// makes the new span its child; anything else starts a new trace.
func (t *Tracer) StartSpan(name stackz.Key, opts stackz.StartOptions) stackz.Span {
	span := &Span{
		SpanID:    t.generateSpanID(),
		Name:      name,
		StartTime: t.clock.Now(),
	}

	if parent, ok := opts.Parent.(SpanContext); ok && parent.IsValid() {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = t.generateTraceID()
	}

	if len(opts.Tags) > 0 {
		span.Tags = make(map[string]string, len(opts.Tags))
		for k, v := range opts.Tags {
			span.Tags[k] = formatTag(v)
		}
	}

	return &ActiveSpan{span: span, tracer: t}
}

// collectSpan fans a finished span out to collectors and handlers.
func (t *Tracer) collectSpan(span Span) {
	t.handlersLock.RLock()
	collectors := make([]*Collector, len(t.collectors))
	copy(collectors, t.collectors)
	t.handlersLock.RUnlock()

	for _, c := range collectors {
		c.Collect(&span)
	}
	t.executeHandlers(span)
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for _, h := range handlers {
		if h.async {
			entry := h
			own := span.clone()
			if workers != nil {
				workers.submit(func() {
					t.safeCall(entry, own)
				})
			} else {
				go t.safeCall(entry, own)
			}
		} else {
			t.safeCall(h, span.clone())
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.handlersLock.RLock()
			hook := t.panicHook
			t.handlersLock.RUnlock()
			if hook != nil {
				hook(entry.id, r)
				return
			}
			t.logger.Error("span handler panicked",
				zap.Uint64("handler", entry.id),
				zap.String("span", span.Name),
				zap.Any("panic", r))
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}

	t.workers = &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: &t.droppedSpans,
		logger:  t.logger,
	}

	t.workers.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.workers.run()
	}

	return nil
}

// DroppedSpans returns the number of spans dropped due to full worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Close shuts down the tracer gracefully and cleans up resources.
// Collectors are owned by the caller and are not closed.
func (t *Tracer) Close() {
	t.handlersLock.Lock()
	t.handlers = nil
	t.collectors = nil
	workers := t.workers
	t.workers = nil
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.shutdown()
	}

	// Pools created after this point are never closed, so force creation first.
	t.ensureIDPools()
	t.traceIDPool.Close()
	t.spanIDPool.Close()
}

func (t *Tracer) generateTraceID() string {
	t.ensureIDPools()
	return t.traceIDPool.Get()
}

func (t *Tracer) generateSpanID() string {
	t.ensureIDPools()
	return t.spanIDPool.Get()
}

// workerPool manages a fixed number of workers for processing async handlers.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			return
		}
	}
}

func (w *workerPool) submit(task func()) {
	select {
	case w.tasks <- task:
	default:
		if w.dropped.Add(1) == 1 {
			w.logger.Warn("span handler queue full, dropping spans")
		}
	}
}

func (w *workerPool) shutdown() {
	close(w.stop)
	w.wg.Wait()
}

