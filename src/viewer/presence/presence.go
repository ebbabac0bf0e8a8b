// Package presence tracks ephemeral typing indicators for a discussion
// view. Entries expire after a silence window or an explicit stop,
// whichever comes first; nothing here is persisted.
package presence

import (
	"sync"
	"time"
)

// DefaultWindow matches the client-side typing timeout.
const DefaultWindow = 3 * time.Second

// Tracker holds the set of remote users currently typing. Each typing_start
// restarts that user's expiry timer; the local user is never tracked.
type Tracker struct {
	mu          sync.Mutex
	localUserID uint64
	window      time.Duration
	names       map[uint64]string
	timers      map[uint64]*time.Timer
	onChange    func()
	closed      bool
}

// New creates a tracker. onChange, if non-nil, fires after every visible
// change to the typing set, including timer expiries.
func New(localUserID uint64, window time.Duration, onChange func()) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		localUserID: localUserID,
		window:      window,
		names:       make(map[uint64]string),
		timers:      make(map[uint64]*time.Timer),
		onChange:    onChange,
	}
}

// Start records a typing_start. Repeats from the same user restart the
// expiry window. typing_start for the local viewer is a no-op.
func (t *Tracker) Start(userID uint64, username string) {
	if userID == t.localUserID {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
	}
	t.names[userID] = username
	t.timers[userID] = time.AfterFunc(t.window, func() { t.expire(userID) })
	t.mu.Unlock()
	t.notify()
}

// Stop removes a user immediately (explicit typing_stop).
func (t *Tracker) Stop(userID uint64) {
	t.mu.Lock()
	timer, ok := t.timers[userID]
	if ok {
		timer.Stop()
		delete(t.timers, userID)
		delete(t.names, userID)
	}
	t.mu.Unlock()
	if ok {
		t.notify()
	}
}

func (t *Tracker) expire(userID uint64) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	_, ok := t.names[userID]
	if ok {
		delete(t.names, userID)
		delete(t.timers, userID)
	}
	t.mu.Unlock()
	if ok {
		t.notify()
	}
}

// Typing returns the current user-id to display-name set.
func (t *Tracker) Typing() map[uint64]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint64]string, len(t.names))
	for id, name := range t.names {
		out[id] = name
	}
	return out
}

// Close cancels every timer. No entries survive and no expiry callback
// fires afterwards.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.names = make(map[uint64]string)
}

func (t *Tracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
