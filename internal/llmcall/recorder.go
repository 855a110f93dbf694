package llmcall

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tradepsych/insight/internal/providers"
)

// defaultQueueSize bounds pending writes before new records are dropped.
const defaultQueueSize = 256

// Recorder handles fire-and-forget LLM call recording.
// Writes are queued and drained by a single goroutine.
type Recorder struct {
	store  *Store
	logger *slog.Logger
	queue  chan *Call

	// mu orders sends against Close: senders hold it shared, Close
	// exclusively, so the queue is never sent on after it is closed.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder creates a recorder and starts its writer goroutine.
// A nil store yields a recorder that drops everything.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan *Call, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record captures an LLM call asynchronously.
// This is non-blocking; the record is dropped if the queue is full.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) {
	if r == nil || r.store == nil {
		return
	}
	if opts.Logger == nil {
		opts.Logger = r.logger
	}
	r.RecordCall(FromChatResult(result, opts))
}

// RecordCall captures an already-constructed Call asynchronously.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || r.store == nil || call == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("llm call recorder closed, dropping record", "id", call.ID)
		return
	}
	select {
	case r.queue <- call:
	default:
		r.logger.Warn("llm call queue full, dropping record", "id", call.ID, "agent", call.Agent)
	}
}

// Close stops accepting records and waits for queued writes to finish.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for call := range r.queue {
		if r.store == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.Insert(ctx, call); err != nil {
			r.logger.Warn("failed to record llm call", "id", call.ID, "error", err)
		}
		cancel()
	}
}
