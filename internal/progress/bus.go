package progress

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

// Bus fans events out to subscribers. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	closed  bool
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of future events and a function that removes
// the subscription. The channel is closed on unsubscribe or Close.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Attach runs sink on its own goroutine for every future event. Close waits
// for attached sinks to drain.
func (b *Bus) Attach(sink Sink) {
	ch, _ := b.Subscribe(DefaultBuffer)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range ch {
			sink.Handle(ev)
		}
	}()
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscription and waits for attached sinks to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for id, ch := range b.subs {
			delete(b.subs, id)
			close(ch)
		}
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// LogSink logs each transition.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(ev Event) {
		attrs := []any{"session_id", ev.SessionID, "step", ev.Index, "from", ev.From.String(), "to", ev.To.String()}
		if ev.Cause != "" {
			attrs = append(attrs, "cause", string(ev.Cause))
		}
		logger.Debug("Step transition.", attrs...)
	})
}
