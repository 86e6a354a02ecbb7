package blink

import "context"

// FrameConsumer receives every processed frame with its detection overlay.
type FrameConsumer interface {
	OnFrame(f Frame, o Overlay)
}

// FrameConsumerFunc adapts a function to FrameConsumer.
type FrameConsumerFunc func(f Frame, o Overlay)

// OnFrame calls fn(f, o).
func (fn FrameConsumerFunc) OnFrame(f Frame, o Overlay) {
	fn(f, o)
}

// BlinkConsumer is optionally implemented by a FrameConsumer to receive blinks.
type BlinkConsumer interface {
	OnBlink(b Blink)
}

// LogConsumer is optionally implemented by a FrameConsumer to receive log lines.
type LogConsumer interface {
	OnLog(msg string)
}

// StateConsumer is optionally implemented by a FrameConsumer to learn when
// the worker applied Pause or Resume, in order with the other events.
type StateConsumer interface {
	OnState(st State)
}

// FinishConsumer is optionally implemented by a FrameConsumer to learn how the
// session ended.
type FinishConsumer interface {
	OnFinished(err error)
}

// Dispatch drains events into c until the stream closes or ctx is done, and
// returns the error carried by EventFinished. Once ctx is done the rest of the
// stream is discarded in the background so the detector can still shut down.
func Dispatch(ctx context.Context, events <-chan Event, c FrameConsumer) error {
	blinks, _ := c.(BlinkConsumer)
	logs, _ := c.(LogConsumer)
	finish, _ := c.(FinishConsumer)
	states, _ := c.(StateConsumer)

	var finishErr error
	for {
		select {
		case <-ctx.Done():
			go discard(events)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return finishErr
			}
			switch ev.Kind {
			case EventFrame:
				c.OnFrame(ev.Frame, ev.Overlay)
			case EventBlink:
				if blinks != nil {
					blinks.OnBlink(ev.Blink)
				}
			case EventLog:
				if logs != nil {
					logs.OnLog(ev.Message)
				}
			case EventState:
				if states != nil {
					states.OnState(ev.State)
				}
			case EventFinished:
				finishErr = ev.Err
				if finish != nil {
					finish.OnFinished(ev.Err)
				}
			}
		}
	}
}

func discard(events <-chan Event) {
	for range events {
	}
}
