package host

import "sync/atomic"

// Events carries host-state requests from the interrupt handler to the task.
//
// It is a lock-free ring safe for exactly one producer (the interrupt
// handler) and one consumer (Host.Task). Push never blocks: when the ring is
// full the oldest unread entry is dropped. Pop returns the newest unread
// entry and discards the older ones, since each entry is a snapshot of the
// controller rather than a delta.
type Events struct {
	ring [EventCapacity]atomic.Uint32
	head atomic.Uint32 // next slot written by Push
	tail atomic.Uint32 // oldest unread slot

	overwritten atomic.Uint32
}

// Push enqueues a state request. Interrupt context only.
func (e *Events) Push(s State) {
	h := e.head.Load()
	for {
		t := e.tail.Load()
		if h-t < EventCapacity {
			break
		}
		if e.tail.CompareAndSwap(t, t+1) {
			e.overwritten.Add(1)
			break
		}
	}
	e.ring[h%EventCapacity].Store(s.pack())
	e.head.Store(h + 1)
}

// Pop removes and returns the most recently pushed unread state. stale is
// the number of older unread entries discarded with it. Task context only.
func (e *Events) Pop() (s State, stale int, ok bool) {
	for {
		t := e.tail.Load()
		h := e.head.Load()
		if h == t {
			return State{}, 0, false
		}
		v := e.ring[(h-1)%EventCapacity].Load()
		if e.tail.CompareAndSwap(t, h) {
			return unpack(v), int(h - t - 1), true
		}
	}
}

// Flush discards every unread entry. Task context only.
func (e *Events) Flush() {
	for {
		t := e.tail.Load()
		if e.tail.CompareAndSwap(t, e.head.Load()) {
			return
		}
	}
}

// Len returns the number of unread entries.
func (e *Events) Len() int {
	return int(e.head.Load() - e.tail.Load())
}

// Overwritten returns the number of entries dropped because the ring was
// full.
func (e *Events) Overwritten() uint32 {
	return e.overwritten.Load()
}

func (s State) pack() uint32 {
	return uint32(s.Host) | uint32(s.Task)<<8
}

func unpack(v uint32) State {
	return State{Host: HostState(v), Task: TaskState(v >> 8)}
}
