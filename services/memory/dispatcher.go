package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"turnmemory/core"
)

// DispatcherConfig holds configuration for the per-session persist queue.
type DispatcherConfig struct {
	QueueSize        int `json:"queue_size" yaml:"queue_size"`                 // Turns waiting for the sink. A full queue drops new turns.
	PersistTimeoutMs int `json:"persist_timeout_ms" yaml:"persist_timeout_ms"` // Deadline for one sink call.
	DrainTimeoutMs   int `json:"drain_timeout_ms" yaml:"drain_timeout_ms"`     // How long Cleanup waits for queued turns before abandoning them.
}

// DefaultDispatcherConfig returns a DispatcherConfig with sensible defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:        64,
		PersistTimeoutMs: 10000,
		DrainTimeoutMs:   5000,
	}
}

// Dispatcher hands turns to a Sink on its own goroutine so the event loop
// never waits for storage. Failed turns are reported and dropped, never
// retried.
type Dispatcher struct {
	sink     Sink
	config   DispatcherConfig
	logger   *core.Logger
	onResult func(turn core.ConversationTurn, status core.PersistStatus, err error)

	queue  chan core.ConversationTurn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	open   bool
}

func NewDispatcher(sink Sink, config DispatcherConfig, logger *core.Logger) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.PersistTimeoutMs <= 0 {
		config.PersistTimeoutMs = defaults.PersistTimeoutMs
	}
	if config.DrainTimeoutMs <= 0 {
		config.DrainTimeoutMs = defaults.DrainTimeoutMs
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Dispatcher{
		sink:   sink,
		config: config,
		logger: logger.With(map[string]interface{}{"component": "memory_dispatcher"}),
	}
}

// OnResult registers the callback invoked after every persist attempt. It
// runs on the dispatcher goroutine, or on the caller of Enqueue when the turn
// is rejected up front.
func (d *Dispatcher) OnResult(fn func(turn core.ConversationTurn, status core.PersistStatus, err error)) {
	d.onResult = fn
}

// Init starts the worker. Sink calls use their own context so turns matched
// just before the session ends can still be written during Cleanup. A session
// logger attached to ctx replaces the constructor's logger.
func (d *Dispatcher) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l := core.SessionLoggerFromContext(ctx); l != nil {
		d.logger = l.With(map[string]interface{}{"component": "memory_dispatcher"})
	}
	d.queue = make(chan core.ConversationTurn, d.config.QueueSize)
	d.done = make(chan struct{})
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.open = true
	go d.worker(d.queue, d.done)
	return nil
}

// Enqueue never blocks.
func (d *Dispatcher) Enqueue(turn core.ConversationTurn) {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		d.report(turn, core.PersistFailed, ErrSinkClosed)
		return
	}
	select {
	case d.queue <- turn:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		d.report(turn, core.PersistFailed, ErrQueueFull)
	}
}

func (d *Dispatcher) worker(queue <-chan core.ConversationTurn, done chan<- struct{}) {
	defer close(done)
	for turn := range queue {
		d.persist(turn)
	}
}

func (d *Dispatcher) persist(turn core.ConversationTurn) {
	ctx, cancel := context.WithTimeout(d.ctx, time.Duration(d.config.PersistTimeoutMs)*time.Millisecond)
	defer cancel()

	start := time.Now()
	status, err := d.sink.Persist(ctx, turn)
	if err != nil {
		status = core.PersistFailed
	}
	logger := d.logger.With(map[string]interface{}{
		"turn_id":     turn.ID,
		"status":      string(status),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if status == core.PersistFailed {
		logger.With(map[string]interface{}{"error": err}).Warn("persist failed, turn dropped")
	} else {
		logger.Debug("turn persisted")
	}
	d.report(turn, status, err)
}

func (d *Dispatcher) report(turn core.ConversationTurn, status core.PersistStatus, err error) {
	if status == core.PersistFailed && (errors.Is(err, ErrQueueFull) || errors.Is(err, ErrSinkClosed)) {
		d.logger.With(map[string]interface{}{"turn_id": turn.ID, "error": err}).Warn("turn dropped before persist")
	}
	if d.onResult != nil {
		d.onResult(turn, status, err)
	}
}

// Cleanup stops accepting turns and waits up to the drain timeout for the
// queue to empty. Whatever is still queued after that fails fast.
func (d *Dispatcher) Cleanup() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return nil
	}
	d.open = false
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-time.After(time.Duration(d.config.DrainTimeoutMs) * time.Millisecond):
		d.logger.With(map[string]interface{}{"pending": len(d.queue)}).Warn("drain timeout, abandoning queued turns")
		d.cancel()
		<-d.done
	}
	d.cancel()
	return nil
}

// Reset is a no-op: turns already queued were completed before the reset and
// are still stored.
func (d *Dispatcher) Reset() error {
	return nil
}
