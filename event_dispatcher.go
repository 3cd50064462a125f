package authpipe

import (
	"context"
	"sync"
	"sync/atomic"
)

// eventDispatcher hands lifecycle events to the sink on a single goroutine,
// in queue order. Request-path events may wait for buffer space; events
// raised while a refresh is in flight are only offered, so a slow sink never
// holds up the requests queued behind that refresh.
type eventDispatcher struct {
	sink       EventSink
	queue      chan Event
	dropIfFull bool

	seq     atomic.Uint64
	dropped atomic.Uint64

	// senders hold mu shared; Close takes it exclusively before closing queue.
	mu        sync.RWMutex
	closed    bool
	stop      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

// newEventDispatcher returns nil when events are disabled. Every method
// accepts a nil receiver.
func newEventDispatcher(cfg EventsConfig, sink EventSink) *eventDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &eventDispatcher{
		sink:       sink,
		queue:      make(chan Event, size),
		dropIfFull: cfg.DropIfFull,
		stop:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
	go d.deliver()
	return d
}

func (d *eventDispatcher) deliver() {
	defer close(d.exited)
	for ev := range d.queue {
		d.sink.Emit(context.Background(), ev)
	}
}

// Emit queues ev. Unless DropIfFull is set it waits for room until ctx
// ends or the dispatcher closes; an event given up on counts as dropped.
func (d *eventDispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.send(ctx, ev, !d.dropIfFull)
}

// Offer queues ev only if the buffer has room, whatever DropIfFull says.
func (d *eventDispatcher) Offer(ev Event) {
	if d == nil {
		return
	}
	d.send(context.Background(), ev, false)
}

func (d *eventDispatcher) send(ctx context.Context, ev Event, wait bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	ev.Seq = d.seq.Add(1)

	if !wait {
		select {
		case d.queue <- ev:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
		d.dropped.Add(1)
	}
}

// Close rejects further events, releases waiting senders and returns once
// everything already queued reached the sink.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.stop)
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		<-d.exited
	})
}

// Dropped counts events that never reached the queue.
func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
