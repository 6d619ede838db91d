package inbox

import (
	"sync"
	"time"

	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/logger"
	"go.uber.org/zap"
)

// DefaultThrottle is the coalescing window between batch deliveries
const DefaultThrottle = 2 * time.Second

// BatchHandler receives one coalesced batch of changes, in arrival order
type BatchHandler func(changes []changefeed.Change)

// BatcherConfig configures a Batcher
type BatcherConfig struct {
	// Throttle is the fixed delay between deliveries; DefaultThrottle if zero
	Throttle time.Duration
	// Enabled gates the batcher entirely - when false, changes are dropped
	Enabled bool
}

// Batcher decouples the high-frequency changefeed from consumer cost by
// accumulating changes and delivering them at most once per throttle window.
// Ordering is preserved within and across batches; a handler panic is
// logged and never kills delivery.
type Batcher struct {
	mu      sync.Mutex
	buf     []changefeed.Change
	timer   *time.Timer
	closed  bool
	enabled bool

	throttle time.Duration
	handler  BatchHandler

	// Serializes handler invocations so batches arrive in emit order
	emitMu sync.Mutex
}

// NewBatcher creates a batcher delivering to handler
func NewBatcher(cfg BatcherConfig, handler BatchHandler) *Batcher {
	throttle := cfg.Throttle
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Batcher{
		throttle: throttle,
		enabled:  cfg.Enabled,
		handler:  handler,
	}
}

// Enqueue buffers one change. The first change in an idle window arms the
// delivery timer; everything arriving before it fires joins the same batch.
func (b *Batcher) Enqueue(change changefeed.Change) {
	b.mu.Lock()
	if !b.enabled || b.closed {
		b.mu.Unlock()
		return
	}

	b.buf = append(b.buf, change)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.throttle, b.deliverPending)
	}
	b.mu.Unlock()
}

// Flush cancels any pending timer and delivers the buffer immediately.
// With nothing buffered it is a no-op.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.take()
	b.mu.Unlock()

	b.emit(batch)
}

// Pending returns the count of buffered, not-yet-delivered changes
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Close stops the batcher; buffered changes are discarded
func (b *Batcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.buf = nil
}

// deliverPending is the timer callback
func (b *Batcher) deliverPending() {
	b.mu.Lock()
	b.timer = nil
	batch := b.take()
	b.mu.Unlock()

	b.emit(batch)
}

// take detaches the current buffer. Caller must hold mu.
func (b *Batcher) take() []changefeed.Change {
	batch := b.buf
	b.buf = nil
	return batch
}

// emit hands one batch to the handler, serialized so batches can never
// overtake each other
func (b *Batcher) emit(batch []changefeed.Change) {
	if len(batch) == 0 {
		return
	}

	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Batch handler panicked",
				zap.Any("panic", r),
				zap.Int("batch_size", len(batch)))
		}
	}()

	b.handler(batch)
}
