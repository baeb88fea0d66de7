package log

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventLogger is the interface for logging table events. It doubles as the
// display sink: implementations must return promptly.
type EventLogger interface {
	Log(event GameEvent)
	Events() []GameEvent
}

// --- MemoryLogger: stores events in memory for test assertions ---

type MemoryLogger struct {
	mu     sync.Mutex
	events []GameEvent
	seq    int
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Log(event GameEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	event.Seq = l.seq
	l.events = append(l.events, event)
}

// Events returns a copy of every event logged so far.
func (l *MemoryLogger) Events() []GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]GameEvent, len(l.events))
	copy(out, l.events)
	return out
}

// EventsOfType returns all events matching the given type.
func (l *MemoryLogger) EventsOfType(t EventType) []GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []GameEvent
	for _, e := range l.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// LastEvent returns the most recent event, or a zero event if none.
func (l *MemoryLogger) LastEvent() GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return GameEvent{}
	}
	return l.events[len(l.events)-1]
}

// --- TextLogger: writes human-readable lines to an io.Writer ---

// TextLogger prints state changes and ignores timer ticks. It keeps no
// history, so it can run for the life of the process.
type TextLogger struct {
	wmu sync.Mutex
	w   io.Writer
}

func NewTextLogger(w io.Writer) *TextLogger {
	return &TextLogger{w: w}
}

func (l *TextLogger) Log(event GameEvent) {
	if event.Type.Tick() {
		return
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	fmt.Fprintln(l.w, FormatEvent(event))
}

// Events returns nil; printed lines are not retained.
func (l *TextLogger) Events() []GameEvent {
	return nil
}

// --- NopLogger: discards everything ---

type NopLogger struct{}

func (NopLogger) Log(GameEvent) {}

func (NopLogger) Events() []GameEvent { return nil }

// --- MultiLogger: fans events out to several sinks ---

type MultiLogger struct {
	sinks []EventLogger
}

func NewMultiLogger(sinks ...EventLogger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

func (l *MultiLogger) Log(event GameEvent) {
	for _, s := range l.sinks {
		s.Log(event)
	}
}

// Events returns the events of the first sink.
func (l *MultiLogger) Events() []GameEvent {
	if len(l.sinks) == 0 {
		return nil
	}
	return l.sinks[0].Events()
}

// --- AsyncLogger: decouples the table from slow sinks ---

// DefaultBacklog is the number of queued events past which ticks are dropped.
const DefaultBacklog = 256

// AsyncLogger queues events and forwards them from its own goroutine, so Log
// never waits on the wrapped sink. Once the backlog reaches its limit, timer
// ticks are dropped; state changes are always kept.
type AsyncLogger struct {
	next    EventLogger
	limit   int
	mu      sync.Mutex
	queue   []GameEvent
	closed  bool
	dropped int
	notify  chan struct{}
	done    chan struct{}
}

func NewAsyncLogger(next EventLogger, backlog int) *AsyncLogger {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	l := &AsyncLogger{
		next:   next,
		limit:  backlog,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *AsyncLogger) Log(event GameEvent) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if event.Type.Tick() && len(l.queue) >= l.limit {
		l.dropped++
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, event)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *AsyncLogger) Events() []GameEvent {
	return l.next.Events()
}

// Dropped returns how many ticks were discarded under pressure.
func (l *AsyncLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close stops accepting events and returns once the backlog is forwarded.
func (l *AsyncLogger) Close() {
	l.Shutdown(context.Background())
}

// Shutdown stops accepting events and waits for the backlog to be forwarded
// or for ctx to end, whichever comes first. A sink still stuck in a write
// when ctx ends is abandoned; its goroutine exits once the write returns.
func (l *AsyncLogger) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *AsyncLogger) run() {
	defer close(l.done)
	for range l.notify {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, e := range batch {
			l.next.Log(e)
		}
		if closed {
			l.mu.Lock()
			rest := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, e := range rest {
				l.next.Log(e)
			}
			return
		}
	}
}

// --- Process logging ---

// NewProcessLogger builds the logrus logger used for lifecycle and diagnostic
// output. An empty level means "info".
func NewProcessLogger(level string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(lvl)
	return logger, nil
}

// Discard returns an entry that writes nowhere, for tests and quiet callers.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
