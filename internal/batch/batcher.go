package batch

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/driftframe/uiscript/internal/logging"
	"github.com/driftframe/uiscript/internal/ops"
	"github.com/driftframe/uiscript/internal/shared/id"
)

// FlushFunc receives one complete batch. Implementations must not call
// back into the batcher.
type FlushFunc func(ops.Batch)

// Config holds batching parameters.
type Config struct {
	// Window is the debounce delay after the first operation since the
	// last flush.
	Window time.Duration
	// MaxSize flushes immediately once the queue reaches this many
	// operations.
	MaxSize int
	// MinFlushInterval is the floor between timer-driven flushes. Zero
	// disables rate limiting.
	MinFlushInterval time.Duration
	Debug            bool
}

// DefaultConfig returns the default batching parameters.
func DefaultConfig() Config {
	return Config{
		Window:           16 * time.Millisecond,
		MaxSize:          100,
		MinFlushInterval: 4 * time.Millisecond,
	}
}

// Stats reports batching effectiveness.
type Stats struct {
	TotalOperations  uint64  `json:"total_operations"`
	TotalFlushes     uint64  `json:"total_flushes"`
	ReductionPercent float64 `json:"reduction_percent"`
	LargestBatch     int     `json:"largest_batch"`
	AverageBatchSize float64 `json:"average_batch_size"`
	CurrentQueueSize int     `json:"current_queue_size"`
}

// Batcher is the micro-scheduler between a running script and the
// renderer.
type Batcher struct {
	cfg     Config
	log     *logging.Logger
	flushFn FlushFunc
	limiter *rate.Limiter

	mu        sync.Mutex // guards queue, timer, stats, destroyed
	flushMu   sync.Mutex // serializes deliveries, preserving batch order
	queue     []ops.Stamped
	timer     *time.Timer
	seq       uint64
	destroyed bool

	totalOps     uint64
	totalFlushes uint64
	largest      int
	sumBatched   uint64
}

// New creates a batcher delivering to flushFn.
func New(cfg Config, flushFn FlushFunc, log *logging.Logger) *Batcher {
	if log == nil {
		log = logging.NewNop()
	}

	b := &Batcher{
		cfg:     cfg,
		log:     log.Component("batch"),
		flushFn: flushFn,
	}
	if cfg.MinFlushInterval > 0 {
		b.limiter = rate.NewLimiter(rate.Every(cfg.MinFlushInterval), 1)
	}
	return b
}

// Add enqueues one operation, stamping it with a monotonic sequence
// number and timestamp. The first operation since the last flush arms the
// debounce window; reaching MaxSize flushes immediately and resets it.
func (b *Batcher) Add(op ops.Operation) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}

	b.seq++
	b.queue = append(b.queue, ops.Stamped{Seq: b.seq, At: time.Now(), Op: op})
	b.totalOps++

	if len(b.queue) >= b.cfg.MaxSize {
		b.stopTimerLocked()
		b.deliverLocked()
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.cfg.Window, b.onWindow)
	}
	b.mu.Unlock()
}

// Flush synchronously drains the queue to the callback. No-op when empty.
func (b *Batcher) Flush() {
	b.mu.Lock()
	b.stopTimerLocked()
	b.deliverLocked()
}

// FlushImmediate delivers a single urgent operation ahead of any pending
// batch. Operations already enqueued keep their queue positions.
func (b *Batcher) FlushImmediate(op ops.Operation) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}

	b.seq++
	stamped := ops.Stamped{Seq: b.seq, At: time.Now(), Op: op}
	b.totalOps++
	b.totalFlushes++
	b.sumBatched++
	if b.largest < 1 {
		b.largest = 1
	}

	batch := ops.Batch{ID: id.NewBatchID(), Ops: []ops.Stamped{stamped}}
	cb := b.flushFn

	b.flushMu.Lock()
	b.mu.Unlock()
	if cb != nil {
		cb(batch)
	}
	b.flushMu.Unlock()
}

// Clear discards the queue without invoking the callback and cancels the
// pending window. Used on abort.
func (b *Batcher) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimerLocked()
	b.queue = nil
}

// Stats returns batching statistics.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		TotalOperations:  b.totalOps,
		TotalFlushes:     b.totalFlushes,
		LargestBatch:     b.largest,
		CurrentQueueSize: len(b.queue),
	}
	if b.totalOps > 0 {
		s.ReductionPercent = (1 - float64(b.totalFlushes)/float64(b.totalOps)) * 100
	}
	if b.totalFlushes > 0 {
		s.AverageBatchSize = float64(b.sumBatched) / float64(b.totalFlushes)
	}
	return s
}

// Destroy flushes any pending queue, then releases the timer. No
// callbacks fire after Destroy returns.
func (b *Batcher) Destroy() {
	b.Flush()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
	b.stopTimerLocked()
}

// onWindow fires when the debounce window elapses. Deliveries on this
// path respect the flush rate limiter; a throttled window is rescheduled
// for the limiter's earliest slot.
func (b *Batcher) onWindow() {
	b.mu.Lock()
	b.timer = nil

	if b.destroyed || len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}

	if b.limiter != nil {
		res := b.limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			b.timer = time.AfterFunc(delay, b.onWindow)
			b.mu.Unlock()
			return
		}
	}

	b.deliverLocked()
}

// deliverLocked drains the queue and invokes the callback. The caller
// must hold mu; it is released before the callback runs. flushMu keeps
// concurrent deliveries in order.
func (b *Batcher) deliverLocked() {
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}

	batch := ops.Batch{ID: id.NewBatchID(), Ops: b.queue}
	b.queue = nil
	b.totalFlushes++
	b.sumBatched += uint64(len(batch.Ops))
	if len(batch.Ops) > b.largest {
		b.largest = len(batch.Ops)
	}
	cb := b.flushFn

	if b.cfg.Debug {
		b.log.Debug("flushing batch",
			zap.String("batch_id", batch.ID.String()),
			zap.Int("size", len(batch.Ops)),
		)
	}

	b.flushMu.Lock()
	b.mu.Unlock()
	if cb != nil {
		cb(batch)
	}
	b.flushMu.Unlock()
}

// stopTimerLocked cancels the pending window. Caller holds mu.
func (b *Batcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
