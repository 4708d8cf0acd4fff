// Package status holds the transient per-action indicators shown next to
// workflow and export controls.
package status

import (
	"sync"
	"time"
)

// State is the indicator value.
type State string

const (
	Idle    State = ""
	Running State = "running"
	Success State = "success"
	Error   State = "error"
)

// Snapshot is a point-in-time copy of a Box.
type Snapshot struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// Box is a tri-state indicator. A terminal state (success or error) falls
// back to Idle after the reset delay. Safe for concurrent use.
type Box struct {
	reset    time.Duration
	onChange func(Snapshot)

	mu     sync.Mutex
	cur    Snapshot
	gen    uint64
	timer  *time.Timer
	closed bool
}

// NewBox creates an idle indicator. onChange, if set, is called after every
// transition, outside the lock.
func NewBox(reset time.Duration, onChange func(Snapshot)) *Box {
	return &Box{reset: reset, onChange: onChange}
}

// Get returns the current value.
func (b *Box) Get() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

// Start moves to Running and cancels a pending reset.
func (b *Box) Start() {
	b.set(Snapshot{State: Running}, false)
}

// Succeed moves to Success and schedules the reset.
func (b *Box) Succeed() {
	b.set(Snapshot{State: Success}, true)
}

// Fail moves to Error with the message and schedules the reset.
func (b *Box) Fail(msg string) {
	b.set(Snapshot{State: Error, Message: msg}, true)
}

// Close stops any pending reset; later transitions are ignored.
func (b *Box) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Box) set(s Snapshot, scheduleReset bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.gen++
	b.cur = s
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if scheduleReset {
		gen := b.gen
		b.timer = time.AfterFunc(b.reset, func() { b.expire(gen) })
	}
	b.mu.Unlock()

	b.notify(s)
}

// expire resets to Idle unless another transition happened since gen.
func (b *Box) expire(gen uint64) {
	b.mu.Lock()
	if b.closed || b.gen != gen {
		b.mu.Unlock()
		return
	}
	b.gen++
	b.cur = Snapshot{}
	b.timer = nil
	b.mu.Unlock()

	b.notify(Snapshot{})
}

func (b *Box) notify(s Snapshot) {
	if b.onChange != nil {
		b.onChange(s)
	}
}
