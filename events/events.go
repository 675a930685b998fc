// Package events carries typed notifications from background workers to the
// single consumer that owns presentation state (terminal meter, control
// server broadcaster).
package events

import (
	"sync"
	"time"
)

// Kind identifies an event.
type Kind string

const (
	KindLevel        Kind = "level"
	KindStatus       Kind = "status"
	KindTick         Kind = "tick"
	KindJobCompleted Kind = "job_completed"
	KindProgress     Kind = "progress"
)

// Event is a single notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	Level   int    `json:"level,omitempty"`
	Status  string `json:"status,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
	Seconds int64  `json:"seconds,omitempty"`
	Line    string `json:"line,omitempty"`

	// Job is the finished job for KindJobCompleted.
	Job any `json:"job,omitempty"`
}

// Droppable reports whether the event may be skipped for a lagging consumer.
// Level and tick events are superseded by the next one.
func (e Event) Droppable() bool {
	return e.Kind == KindLevel || e.Kind == KindTick
}

// Emitter accepts events.
type Emitter interface {
	Emit(Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(Event) {}

// Func adapts a function to Emitter.
type Func func(Event)

func (f Func) Emit(e Event) { f(e) }

// Level, Status, Tick, Progress and JobCompleted build events.
func Level(level int) Event { return Event{Kind: KindLevel, Time: time.Now(), Level: level} }

func Status(status string) Event { return Event{Kind: KindStatus, Time: time.Now(), Status: status} }

func Tick(elapsed string, seconds int64) Event {
	return Event{Kind: KindTick, Time: time.Now(), Elapsed: elapsed, Seconds: seconds}
}

func Progress(line string) Event { return Event{Kind: KindProgress, Time: time.Now(), Line: line} }

func JobCompleted(job any) Event { return Event{Kind: KindJobCompleted, Time: time.Now(), Job: job} }

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe returns a channel of events and a cancel func. The channel is
// never closed; stop reading after calling cancel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	sub := &subscriber{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Emit delivers e to every subscriber. Droppable events are skipped for
// subscribers whose buffer is full; other events wait until the subscriber
// reads or cancels.
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if e.Droppable() {
			select {
			case sub.ch <- e:
			default:
			}
			continue
		}
		select {
		case sub.ch <- e:
		case <-sub.done:
		}
	}
}
