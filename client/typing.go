package client

import (
	"sync"
	"time"
)

// TypingIdle is how long after the last keystroke typing_stop is sent.
const TypingIdle = 3 * time.Second

type TypingSender interface {
	SendTypingStart(receiverID string)
	SendTypingStop(receiverID string)
}

// Typing debounces typing indicators for one receiver: the first keystroke
// sends typing_start, TypingIdle without input or an emptied input sends
// typing_stop.
type Typing struct {
	sender   TypingSender
	receiver string
	idle     time.Duration

	mu     sync.Mutex
	active bool
	timer  *time.Timer
	gen    uint64
}

func NewTyping(sender TypingSender, receiverID string) *Typing {
	return &Typing{sender: sender, receiver: receiverID, idle: TypingIdle}
}

// Input is called with the current content of the input field on every change.
func (t *Typing) Input(text string) {
	if text == "" {
		t.Stop()
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		t.active = true
		t.sender.SendTypingStart(t.receiver)
	}
	t.arm()
}

// Stop ends the indicator now, e.g. when the message is sent.
func (t *Typing) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stop()
}

func (t *Typing) arm() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.idle, func() { t.expire(gen) })
}

func (t *Typing) expire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// A newer keystroke re-armed the timer after this one fired.
	if gen != t.gen {
		return
	}
	t.stop()
}

func (t *Typing) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	if t.active {
		t.active = false
		t.sender.SendTypingStop(t.receiver)
	}
}
