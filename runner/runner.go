package runner

import (
	"context"
	"errors"
	"sync"

	"turnmemory/core"
	"turnmemory/events/session"
)

var ErrNotRunning = errors.New("runner: pipeline is not running")

const channelSize = 100

// Runner wires a chain of handlers with channels and owns their lifetime.
// Events pushed into the runner reach the first handler in push order; each
// handler consumes its input on a single goroutine.
type Runner struct {
	Handlers []core.IHandler
	// OnOutput receives every packet leaving the last handler. It runs on the
	// runner's listener goroutine.
	OnOutput func(packet *core.EventPacket)

	logger         *core.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	inputChans     []chan *core.EventPacket
	topOutputChan  chan *core.EventPacket
	lastOutputChan chan *core.EventPacket
	wg             sync.WaitGroup
	mu             sync.RWMutex
	running        bool
}

func NewRunner(handlers []core.IHandler, logger *core.Logger) *Runner {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Runner{
		Handlers: handlers,
		logger:   logger.With(map[string]interface{}{"component": "runner"}),
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if len(r.Handlers) == 0 {
		return errors.New("runner: no handlers")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.topOutputChan = make(chan *core.EventPacket, channelSize)
	r.lastOutputChan = make(chan *core.EventPacket, channelSize)

	r.inputChans = make([]chan *core.EventPacket, len(r.Handlers))
	for i := range r.inputChans {
		r.inputChans[i] = make(chan *core.EventPacket, channelSize)
	}

	for i, handler := range r.Handlers {
		var outputNextChan chan<- *core.EventPacket
		if i < len(r.Handlers)-1 {
			outputNextChan = r.inputChans[i+1]
		} else {
			outputNextChan = r.lastOutputChan
		}

		if err := handler.Initialize(r.inputChans[i], outputNextChan, r.topOutputChan, r.ctx); err != nil {
			r.cancel()
			return err
		}
	}

	for _, handler := range r.Handlers {
		r.wg.Add(1)
		go func(h core.IHandler) {
			defer r.wg.Done()
			if err := h.Start(); err != nil {
				r.logger.With(map[string]interface{}{"error": err}).Error("handler stopped with error")
			}
		}(handler)
	}

	r.wg.Add(1)
	go r.listenToOutputs()

	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	return nil
}

// Push hands an event to the first handler. It blocks while the first
// handler's input is full.
func (r *Runner) Push(event core.IEvent, relayer string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.running {
		return ErrNotRunning
	}
	packet := core.NewEventPacket(event, core.EventRelayDestinationNextService, relayer)
	select {
	case r.inputChans[0] <- packet:
		return nil
	case <-r.ctx.Done():
		return ErrNotRunning
	}
}

// Reset asks every handler to drop its session state. The request is queued
// behind events already pushed.
func (r *Runner) Reset(reason string) error {
	return r.Push(&session.ResetEvent{Reason: reason}, "runner")
}

func (r *Runner) listenToOutputs() {
	defer r.wg.Done()
	for {
		select {
		case packet := <-r.lastOutputChan:
			if r.OnOutput != nil {
				r.OnOutput(packet)
			}
		case packet := <-r.topOutputChan:
			r.processTopOutput(packet)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) processTopOutput(packet *core.EventPacket) {
	switch event := packet.Event.(type) {
	case *core.CriticalErrorEvent:
		r.logger.With(map[string]interface{}{"error": event.Error, "relayer": packet.Relayer}).Error("critical pipeline error")
	default:
		// Everything else restarts at the top of the chain.
		select {
		case r.inputChans[0] <- packet:
		case <-r.ctx.Done():
		}
	}
}

// Stop cancels the pipeline, waits for every handler loop to return, then
// cleans the handlers up. Safe to call more than once.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	var errs []error
	for _, handler := range r.Handlers {
		if err := handler.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
