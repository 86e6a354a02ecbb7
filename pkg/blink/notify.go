package blink

import (
	"sync"
	"sync/atomic"
)

// notifier is the single-producer/single-consumer mailbox between the worker
// and the controller. push never blocks; events leave in the order they were
// pushed. When the consumer lags, the oldest pending frame events are dropped
// so that at most maxFrames frames are queued. Other kinds are never dropped.
type notifier struct {
	mu        sync.Mutex
	queue     []Event
	frames    int
	closed    bool
	maxFrames int

	start   sync.Once
	wake    chan struct{}
	out     chan Event
	exited  chan struct{}
	dropped atomic.Uint64
}

func newNotifier(maxFrames int) *notifier {
	if maxFrames < 1 {
		maxFrames = 1
	}
	return &notifier{
		maxFrames: maxFrames,
		wake:      make(chan struct{}, 1),
		out:       make(chan Event),
		exited:    make(chan struct{}),
	}
}

// push queues an event. Events pushed after close are discarded.
func (n *notifier) push(ev Event) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	if ev.Kind == EventFrame {
		if n.frames >= n.maxFrames {
			n.dropOldestFrame()
		}
		n.frames++
	}
	n.queue = append(n.queue, ev)
	n.mu.Unlock()

	n.start.Do(func() { go n.run() })
	n.signal()
}

// close delivers what is pending, then closes the output channel.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.start.Do(func() { go n.run() })
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// dropOldestFrame must be called with mu held.
func (n *notifier) dropOldestFrame() {
	for i, ev := range n.queue {
		if ev.Kind == EventFrame {
			copy(n.queue[i:], n.queue[i+1:])
			n.queue[len(n.queue)-1] = Event{}
			n.queue = n.queue[:len(n.queue)-1]
			n.frames--
			n.dropped.Add(1)
			return
		}
	}
}

func (n *notifier) run() {
	defer close(n.exited)
	defer close(n.out)

	for {
		n.mu.Lock()
		for len(n.queue) == 0 {
			if n.closed {
				n.mu.Unlock()
				return
			}
			n.mu.Unlock()
			<-n.wake
			n.mu.Lock()
		}
		ev := n.queue[0]
		n.queue[0] = Event{}
		n.queue = n.queue[1:]
		if ev.Kind == EventFrame {
			n.frames--
		}
		n.mu.Unlock()

		n.out <- ev
	}
}
