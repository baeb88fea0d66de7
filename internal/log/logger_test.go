package log

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLoggerSequence(t *testing.T) {
	l := NewMemoryLogger()
	l.Log(NewCardPlacedEvent(1, 0, 5, "c5"))
	l.Log(NewMarkPlacedEvent(1, 0, 0))
	l.Log(NewCardPlacedEvent(1, 1, 6, "c6"))

	events := l.Events()
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Seq)
	}
	assert.Len(t, l.EventsOfType(EventCardPlaced), 2)
	assert.Equal(t, EventCardPlaced, l.LastEvent().Type)
}

func TestTextLoggerSkipsTicks(t *testing.T) {
	var buf bytes.Buffer
	l := NewTextLogger(&buf)
	l.Log(NewCountdownEvent(1, 30*time.Second, false))
	l.Log(NewScoreEvent(1, 1, 3))

	out := buf.String()
	assert.NotContains(t, out, "left")
	assert.Contains(t, out, "P2 score: 3")
	assert.Nil(t, l.Events(), "nothing is retained")
}

func TestTextLoggerRetainsNothingOverLongRuns(t *testing.T) {
	l := NewTextLogger(io.Discard)
	for i := 0; i < 10000; i++ {
		l.Log(NewCountdownEvent(1, time.Second, false))
		l.Log(NewFreezeEvent(1, i%4, time.Second))
	}
	assert.Empty(t, l.Events())

	var nop NopLogger
	nop.Log(NewScoreEvent(1, 0, 1))
	assert.Nil(t, nop.Events())
}

func TestFormatEvent(t *testing.T) {
	line := FormatEvent(NewMarkPlacedEvent(2, 0, 7))
	assert.True(t, strings.HasPrefix(line, "R2  P1"), line)
	assert.Contains(t, line, "P1 marks slot 7")

	line = FormatEvent(NewReshuffleEvent(3, "timeout"))
	assert.Contains(t, line, "Dealer")
}

func TestWinnersEvent(t *testing.T) {
	e := NewWinnersEvent(4, []int{0, 2}, 5)
	assert.Equal(t, []int{0, 2}, e.Players)
	assert.Equal(t, "P1, P3 tie with 5 point(s)", e.Details)
	assert.Equal(t, "P2 wins with 1 point(s)", NewWinnersEvent(1, []int{1}, 1).Details)
}

// blockingLogger holds every Log call until released.
type blockingLogger struct {
	MemoryLogger
	gate chan struct{}
}

func (b *blockingLogger) Log(e GameEvent) {
	<-b.gate
	b.MemoryLogger.Log(e)
}

func TestAsyncLoggerNeverBlocks(t *testing.T) {
	sink := &blockingLogger{gate: make(chan struct{})}
	l := NewAsyncLogger(sink, 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			l.Log(NewCountdownEvent(1, time.Second, false))
		}
		l.Log(NewScoreEvent(1, 0, 1))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a stalled sink")
	}

	close(sink.gate)
	l.Close()

	assert.Greater(t, l.Dropped(), 0)
	scores := sink.EventsOfType(EventScore)
	require.Len(t, scores, 1, "state changes are never dropped")
}

func TestAsyncLoggerConcurrent(t *testing.T) {
	sink := NewMemoryLogger()
	l := NewAsyncLogger(sink, 0)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Log(NewMarkPlacedEvent(1, p, i))
			}
		}(p)
	}
	wg.Wait()
	l.Close()
	l.Log(NewMarkPlacedEvent(1, 0, 0)) // ignored after close

	assert.Len(t, sink.Events(), 200)
	assert.Len(t, l.Events(), 200)
}

func TestMultiLogger(t *testing.T) {
	a, b := NewMemoryLogger(), NewMemoryLogger()
	m := NewMultiLogger(a, b)
	m.Log(NewHintEvent(1, []int{0, 1, 2}))
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Len(t, m.Events(), 1)
	assert.Nil(t, NewMultiLogger().Events())
}

func TestNewProcessLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewProcessLogger("debug", &buf)
	require.NoError(t, err)
	logger.WithField("component", "test").Debug("hello")
	assert.Contains(t, buf.String(), "component=test")

	_, err = NewProcessLogger("loud", &buf)
	assert.Error(t, err)
}

func TestAsyncLoggerShutdownAbandonsStalledSink(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	l := NewAsyncLogger(NewTextLogger(pw), 4)
	l.Log(NewScoreEvent(1, 0, 1)) // the forwarder blocks writing this line

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := l.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	l.Log(NewScoreEvent(1, 0, 2)) // ignored after shutdown
	pw.Close()                    // unblocks the stuck write
}
