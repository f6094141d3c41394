package tokenauth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// dropLogEvery throttles the backpressure warning.
const dropLogEvery = 1000

// auditDispatcher delivers events to the sink on a single worker goroutine so
// a slow sink never sits on the Login or Refresh path.
type auditDispatcher struct {
	dropIfFull bool
	sink       AuditSink
	log        logrus.FieldLogger
	queue      chan AuditEvent
	stop       chan struct{}
	worker     sync.WaitGroup
	dropped    atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, log logrus.FieldLogger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if log == nil {
		log = logrus.New()
	}

	d := &auditDispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		log:        log,
		queue:      make(chan AuditEvent, cfg.BufferSize),
		stop:       make(chan struct{}),
	}

	d.worker.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.worker.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver isolates the worker from a panicking sink.
func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{
				"audit": event.EventType,
				"panic": r,
			}).Error("tokenauth: audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. With DropIfFull a full buffer drops the event and
// counts it; otherwise Emit blocks until queued or ctx is done.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			if n := d.dropped.Add(1); n == 1 || n%dropLogEvery == 0 {
				d.log.WithField("dropped_total", n).Warn("tokenauth: audit buffer full, dropping events")
			}
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events and drains what is queued.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
