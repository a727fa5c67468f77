// Package batch implements the coalescing queue manager: single-item
// submissions are grouped into size- or age-bounded batches, handed to
// a batch function, and the results routed back to per-item waiters.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrShortBatch is delivered to waiters whose slot fell off the end
	// of an undersized result list.
	ErrShortBatch = errors.New("batch function returned fewer results than items")
	// ErrShutdown is delivered to waiters whose batch never fired before
	// the processor stopped.
	ErrShutdown = errors.New("processor is shut down")
)

// monitorInterval is how often the background task checks the head of
// the queue against the max-wait deadline.
const monitorInterval = 200 * time.Millisecond

// Func processes one batch. It must return one result per item; the
// aux map comes from the head item of the batch.
type Func[T, R any] func(ctx context.Context, items []T, aux map[string]any) ([]R, error)

type outcome[R any] struct {
	val R
	err error
}

type item[T, R any] struct {
	value    T
	aux      map[string]any
	enqueued time.Time
	result   chan outcome[R]
}

// Processor owns one named queue bound to a batch function. A single
// background task drains the queue; batches within a processor are
// dispatched FIFO.
type Processor[T, R any] struct {
	name      string
	fn        Func[T, R]
	batchSize int
	maxWait   time.Duration

	mu     sync.Mutex
	queue  []*item[T, R]
	closed bool

	wake    chan struct{}
	done    chan struct{}
	batches int
	served  int
}

// NewProcessor creates and starts a processor. batchSize must be at
// least 1; maxWait bounds how long the head item may sit queued.
func NewProcessor[T, R any](name string, fn Func[T, R], batchSize int, maxWait time.Duration) (*Processor[T, R], error) {
	if name == "" {
		return nil, fmt.Errorf("processor name must not be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("processor %s: batch function must not be nil", name)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("processor %s: batch size must be at least 1, got %d", name, batchSize)
	}
	if maxWait <= 0 {
		return nil, fmt.Errorf("processor %s: max wait must be positive, got %s", name, maxWait)
	}
	p := &Processor[T, R]{
		name:      name,
		fn:        fn,
		batchSize: batchSize,
		maxWait:   maxWait,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Name returns the processor name.
func (p *Processor[T, R]) Name() string { return p.name }

// Submit queues one item and blocks until its batch has been processed
// or ctx is cancelled. Cancelling before dispatch removes the item
// from the queue; cancelling after dispatch still waits for the
// batch's outcome. The aux args of the batch's head item are used for
// the whole batch.
func (p *Processor[T, R]) Submit(ctx context.Context, value T, aux map[string]any) (R, error) {
	var zero R
	it := &item[T, R]{
		value:    value,
		aux:      aux,
		enqueued: time.Now(),
		result:   make(chan outcome[R], 1),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrShutdown
	}
	p.queue = append(p.queue, it)
	full := len(p.queue) >= p.batchSize
	p.mu.Unlock()

	if full {
		p.signal()
	}

	select {
	case out := <-it.result:
		return out.val, out.err
	case <-ctx.Done():
		if p.remove(it) {
			return zero, ctx.Err()
		}
		// Already dispatched; the outcome is on its way.
		out := <-it.result
		return out.val, out.err
	}
}

// Flush dispatches everything currently queued without waiting for the
// size or age trigger.
func (p *Processor[T, R]) Flush(ctx context.Context) {
	for {
		batch := p.take(true)
		if len(batch) == 0 {
			return
		}
		p.dispatch(ctx, batch)
	}
}

// Shutdown stops accepting items, flushes the queue once, and stops
// the background task. Items enqueued during shutdown get ErrShutdown.
func (p *Processor[T, R]) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.Flush(ctx)

	// Anything that slipped in between the flush and here never fires.
	p.mu.Lock()
	leftovers := p.queue
	p.queue = nil
	p.mu.Unlock()
	var zero R
	for _, it := range leftovers {
		it.result <- outcome[R]{val: zero, err: ErrShutdown}
	}
}

// Pending returns the number of queued items.
func (p *Processor[T, R]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stats reports batches dispatched and items served so far.
func (p *Processor[T, R]) Stats() (batches, served int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batches, p.served
}

func (p *Processor[T, R]) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Processor[T, R]) remove(it *item[T, R]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, queued := range p.queue {
		if queued == it {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return true
		}
	}
	return false
}

// take pops up to batchSize items if the size or age trigger holds.
// force ignores the triggers and drains whatever is queued.
func (p *Processor[T, R]) take(force bool) []*item[T, R] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	ready := force ||
		len(p.queue) >= p.batchSize ||
		time.Since(p.queue[0].enqueued) >= p.maxWait
	if !ready {
		return nil
	}
	n := len(p.queue)
	if n > p.batchSize {
		n = p.batchSize
	}
	batch := p.queue[:n:n]
	p.queue = append([]*item[T, R]{}, p.queue[n:]...)
	return batch
}

func (p *Processor[T, R]) run() {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		case <-ticker.C:
		}
		for {
			batch := p.take(false)
			if len(batch) == 0 {
				break
			}
			p.dispatch(context.Background(), batch)
		}
	}
}

// dispatch runs the batch function and routes results. The lock is
// never held across the call.
func (p *Processor[T, R]) dispatch(ctx context.Context, batch []*item[T, R]) {
	items := make([]T, len(batch))
	for i, it := range batch {
		items[i] = it.value
	}
	aux := batch[0].aux

	results, err := p.safeCall(ctx, items, aux)

	p.mu.Lock()
	p.batches++
	p.served += len(batch)
	p.mu.Unlock()

	var zero R
	if err != nil {
		// A bad batch fails only its own waiters.
		for _, it := range batch {
			it.result <- outcome[R]{val: zero, err: err}
		}
		return
	}
	for i, it := range batch {
		if i < len(results) {
			it.result <- outcome[R]{val: results[i]}
		} else {
			it.result <- outcome[R]{val: zero, err: ErrShortBatch}
		}
	}
}

// safeCall shields the processor from a panicking batch function.
func (p *Processor[T, R]) safeCall(ctx context.Context, items []T, aux map[string]any) (results []R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor %s: batch function panicked: %v", p.name, r)
		}
	}()
	return p.fn(ctx, items, aux)
}

// Handle is the type-erased view a Manager keeps of a processor.
type Handle interface {
	Name() string
	Flush(ctx context.Context)
	Shutdown(ctx context.Context)
	Pending() int
	Stats() (batches, served int)
}

// Manager tracks named processors and coordinates shutdown. Processor
// registration is idempotent by name.
type Manager struct {
	mu    sync.Mutex
	procs map[string]Handle
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{procs: make(map[string]Handle)}
}

// Register adds a processor under its name. It reports false if a
// processor with that name already exists.
func (m *Manager) Register(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.procs[h.Name()]; ok {
		return false
	}
	m.procs[h.Name()] = h
	return true
}

// Has reports whether a processor is registered under name.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.procs[name]
	return ok
}

// Flush drains the named processor's queue immediately.
func (m *Manager) Flush(ctx context.Context, name string) error {
	m.mu.Lock()
	h, ok := m.procs[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no processor named %q", name)
	}
	h.Flush(ctx)
	return nil
}

// Shutdown stops every processor: pending items are flushed once, then
// late arrivals fail with ErrShutdown.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	handles := make([]Handle, 0, len(m.procs))
	for _, h := range m.procs {
		handles = append(handles, h)
	}
	m.mu.Unlock()
	for _, h := range handles {
		h.Shutdown(ctx)
	}
}

// Stats returns per-processor queue depth and throughput counters.
func (m *Manager) Stats() map[string]map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[string]int, len(m.procs))
	for name, h := range m.procs {
		batches, served := h.Stats()
		out[name] = map[string]int{
			"pending": h.Pending(),
			"batches": batches,
			"served":  served,
		}
	}
	return out
}
