package blink

import (
	"fmt"
	"time"
)

// State is the tracking session state.
type State int32

const (
	// Stopped is both the initial and the terminal state.
	Stopped State = iota
	Running
	Paused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// EventKind identifies a notification from the worker.
type EventKind int

const (
	// EventFrame carries an annotated frame; emitted for every processed frame.
	EventFrame EventKind = iota
	// EventBlink is emitted once per qualifying dip/recovery.
	EventBlink
	// EventLog carries a diagnostic line.
	EventLog
	// EventFinished is the last event of a session.
	EventFinished
	// EventState is emitted when the worker applies Pause or Resume. Events
	// before it belong to the previous state.
	EventState
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventBlink:
		return "blink"
	case EventLog:
		return "log"
	case EventFinished:
		return "finished"
	case EventState:
		return "state"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Blink is a detected blink.
type Blink struct {
	Count     int // blinks since Start
	FrameSeq  int // frame that completed the blink
	DipFrames int
	At        time.Time
}

// Event is a value-type notification. Only the fields matching Kind are set.
type Event struct {
	Kind EventKind
	Time time.Time

	Frame   Frame   // EventFrame
	Overlay Overlay // EventFrame
	Blink   Blink   // EventBlink
	Message string  // EventLog
	Err     error   // EventFinished; nil after a requested stop
	State   State   // EventState
}

func frameEvent(f Frame, o Overlay) Event {
	return Event{Kind: EventFrame, Time: time.Now(), Frame: f, Overlay: o}
}

func blinkEvent(b Blink) Event {
	return Event{Kind: EventBlink, Time: b.At, Blink: b}
}

func logEvent(format string, args ...any) Event {
	return Event{Kind: EventLog, Time: time.Now(), Message: fmt.Sprintf(format, args...)}
}

func stateEvent(st State) Event {
	return Event{Kind: EventState, Time: time.Now(), State: st}
}

func finishedEvent(err error) Event {
	return Event{Kind: EventFinished, Time: time.Now(), Err: err}
}
