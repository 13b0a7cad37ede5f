package chat

import (
	"sync"
	"time"
)

// DefaultIdleThreshold separates typing bursts: keystrokes with gaps below it
// belong to one burst.
const DefaultIdleThreshold = 2 * time.Second

type typingState int

const (
	typingIdle typingState = iota
	typingBursting
)

// TypingNotifier coalesces local keystrokes into at most one "typing started"
// emission per contiguous burst and exactly one "typing stopped" emission once
// the idle threshold elapses, so the connection is not flooded with one event
// per keystroke. Sending a message forces an immediate stop and suppresses the
// idle timer's own emission.
type TypingNotifier struct {
	mu    sync.Mutex
	state typingState
	timer *time.Timer
	idle  time.Duration
	// emit receives true for "typing started", false for "typing stopped".
	emit func(started bool)
}

func NewTypingNotifier(idle time.Duration, emit func(started bool)) *TypingNotifier {
	if idle <= 0 {
		idle = DefaultIdleThreshold
	}
	return &TypingNotifier{
		state: typingIdle,
		idle:  idle,
		emit:  emit,
	}
}

// Keystroke records one unit of local typing activity. The first keystroke of
// a burst emits "typing started"; subsequent ones only push the idle timer.
func (t *TypingNotifier) Keystroke() {
	t.mu.Lock()
	switch t.state {
	case typingIdle:
		t.state = typingBursting
		t.timer = time.AfterFunc(t.idle, t.idleElapsed)
		t.mu.Unlock()
		t.emit(true)
	case typingBursting:
		t.timer.Reset(t.idle)
		t.mu.Unlock()
	}
}

// MessageSent ends the current burst immediately, emitting "typing stopped"
// and cancelling the idle timer so it cannot emit a second stop.
func (t *TypingNotifier) MessageSent() {
	t.mu.Lock()
	if t.state != typingBursting {
		t.mu.Unlock()
		return
	}
	t.state = typingIdle
	t.timer.Stop()
	t.timer = nil
	t.mu.Unlock()
	t.emit(false)
}

// Stop cancels any pending emission without emitting. Used on room switch and
// session shutdown.
func (t *TypingNotifier) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.state = typingIdle
}

func (t *TypingNotifier) idleElapsed() {
	t.mu.Lock()
	if t.state != typingBursting {
		t.mu.Unlock()
		return
	}
	t.state = typingIdle
	t.timer = nil
	t.mu.Unlock()
	t.emit(false)
}
