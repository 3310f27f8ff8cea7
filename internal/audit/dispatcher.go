package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

// Config controls dispatcher buffering.
type Config struct {
	BufferSize int
}

// Dispatcher queues audit entries on a buffered channel and forwards them
// to a sink from a single worker goroutine.
type Dispatcher struct {
	sink      Sink
	ch        chan model.AuditEntry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	now       func() time.Time
	logger    *logger.Logger
}

var _ model.Auditor = (*Dispatcher)(nil)

func NewDispatcher(cfg Config, sink Sink, logger *logger.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:   sink,
		ch:     make(chan model.AuditEntry, cfg.BufferSize),
		done:   make(chan struct{}),
		now:    time.Now,
		logger: logger,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case entry := <-d.ch:
			d.sink.Emit(context.Background(), entry)
		case <-d.done:
			for {
				select {
				case entry := <-d.ch:
					d.sink.Emit(context.Background(), entry)
				default:
					return
				}
			}
		}
	}
}

// Log enqueues entry without blocking. A full queue drops the entry.
func (d *Dispatcher) Log(_ context.Context, entry model.AuditEntry) {
	if d == nil || d.closed.Load() {
		return
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = d.now().UTC()
	}

	select {
	case d.ch <- entry:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.logger.Warn("Audit dispatcher: queue full, entry dropped",
			"action", entry.Action)
	}
}

// Close stops accepting entries and waits until the queue is drained.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of entries lost to a full queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
