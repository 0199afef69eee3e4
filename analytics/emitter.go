package analytics

import (
	"sync"
	"sync/atomic"
	"time"
)

// defaultBuffer is the emitter queue depth used when none is given.
const defaultBuffer = 256

// Emitter decouples event producers from sinks with a bounded queue and
// a single delivery worker. Emit never blocks: when the queue is full
// the event is dropped and counted.
type Emitter struct {
	sinks   []Sink
	ch      chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

// NewEmitter starts the delivery worker. A non-positive buffer falls
// back to the default depth.
func NewEmitter(buffer int, sinks ...Sink) *Emitter {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	e := &Emitter{
		sinks: sinks,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// Emit queues an event for delivery. A zero timestamp is stamped with
// the current time. Never blocks; after Close all events are dropped.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case <-e.done:
		e.dropped.Add(1)
		return
	default:
	}
	select {
	case e.ch <- event:
	default:
		e.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded because the queue was
// full or the emitter was closed.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Close stops accepting events, delivers what is already queued, and
// waits for the worker to exit. Safe to call more than once.
func (e *Emitter) Close() {
	e.once.Do(func() { close(e.done) })
	e.wg.Wait()
}

func (e *Emitter) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			// Drain whatever was queued before the close.
			for {
				select {
				case event := <-e.ch:
					e.dispatch(event)
				default:
					return
				}
			}
		case event := <-e.ch:
			e.dispatch(event)
		}
	}
}

func (e *Emitter) dispatch(event Event) {
	for _, sink := range e.sinks {
		sink.Emit(event)
	}
}
