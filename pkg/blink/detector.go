package blink

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-blink/internal/log"
	"github.com/teslashibe/go-blink/pkg/debug"
)

// FrameSource delivers camera frames. ReadFrame blocks until the next frame is
// available and fails with a DeviceError once the device stops producing.
type FrameSource interface {
	ReadFrame() (Frame, error)
	Close() error
}

// Classifier finds the largest face in a frame and the eyes inside it.
type Classifier interface {
	Detect(f Frame) (Overlay, error)
	Close() error
}

// OpenFunc opens the frame source for a session.
type OpenFunc func(cfg Config) (FrameSource, error)

// LoadFunc loads both cascades for a session.
type LoadFunc func(cfg Config) (Classifier, error)

type command int

const (
	cmdPause command = iota
	cmdResume
)

// Stats is a snapshot of worker counters.
type Stats struct {
	Frames          int64
	Blinks          int64
	DetectionErrors int64
	DroppedFrames   uint64
}

// Detector runs one tracking session on a dedicated worker goroutine.
//
// The worker owns the session state and the eye-count history. The controller
// talks to it only through commands (Pause, Resume, Stop) and listens on
// Events. A Detector emits exactly one EventFinished over its lifetime; once
// finished it cannot be restarted.
type Detector struct {
	config Config
	open   OpenFunc
	load   LoadFunc

	events   *notifier
	cmds     chan command
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Lifecycle, guarded by mu
	mu       sync.Mutex
	started  bool
	finished bool

	// Published by the worker
	state  atomic.Int32
	frames atomic.Int64
	blinks atomic.Int64
	noise  atomic.Int64
}

// New creates a detector. Nothing is loaded or opened until Start.
func New(cfg Config, open OpenFunc, load LoadFunc) *Detector {
	return &Detector{
		config: cfg,
		open:   open,
		load:   load,
		events: newNotifier(cfg.MaxPendingFrames),
		cmds:   make(chan command, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Config returns the session configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Events returns the ordered notification stream. It is closed after the
// EventFinished notification. Consumers must keep draining it.
func (d *Detector) Events() <-chan Event {
	return d.events.out
}

// Done is closed once the session has finished and every resource is released.
func (d *Detector) Done() <-chan struct{} {
	return d.done
}

// State returns the current session state.
func (d *Detector) State() State {
	return State(d.state.Load())
}

// IsPaused returns true iff the session is paused.
func (d *Detector) IsPaused() bool {
	return d.State() == Paused
}

// Stats returns the worker counters.
func (d *Detector) Stats() Stats {
	return Stats{
		Frames:          d.frames.Load(),
		Blinks:          d.blinks.Load(),
		DetectionErrors: d.noise.Load(),
		DroppedFrames:   d.events.dropped.Load(),
	}
}

// Start loads the classifiers, opens the camera and launches the worker.
// Classifier and device failures are returned before the session enters
// Running; they also finish the detector. Cancelling ctx stops the worker
// like Stop.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finished {
		return ErrFinished
	}
	if d.started {
		return ErrAlreadyStarted
	}

	if err := d.config.Validate(); err != nil {
		d.finishLocked(err)
		return err
	}

	cls, err := d.load(d.config)
	if err != nil {
		log.Error("classifier load failed", "err", err)
		d.finishLocked(err)
		return err
	}

	src, err := d.open(d.config)
	if err != nil {
		cls.Close()
		err = deviceError(err, d.config.Device, ErrDeviceNotFound)
		log.Error("camera open failed", "device", d.config.Device, "err", err)
		d.finishLocked(err)
		return err
	}

	d.started = true
	d.state.Store(int32(Running))
	go d.run(ctx, src, cls)
	return nil
}

// Pause suspends detection. The camera stays open.
func (d *Detector) Pause() error {
	return d.send(cmdPause)
}

// Resume restarts detection after Pause and clears the eye-count history.
func (d *Detector) Resume() error {
	return d.send(cmdResume)
}

// Stop ends the session. It is idempotent and safe from any state, including
// before Start and after a fatal failure. The worker observes the request at
// its next iteration boundary.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.started && !d.finished {
		d.finishLocked(nil)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.stopOnce.Do(func() { close(d.stop) })
}

func (d *Detector) send(c command) error {
	d.mu.Lock()
	started, finished := d.started, d.finished
	d.mu.Unlock()

	if finished {
		return ErrFinished
	}
	if !started {
		return ErrNotRunning
	}

	select {
	case d.cmds <- c:
		return nil
	case <-d.done:
		return ErrFinished
	}
}

// finishLocked emits the single Finished notification. Must hold mu.
func (d *Detector) finishLocked(err error) {
	if d.finished {
		return
	}
	d.finished = true
	d.state.Store(int32(Stopped))
	d.events.push(finishedEvent(err))
	d.events.close()
	close(d.done)
}

func (d *Detector) run(ctx context.Context, src FrameSource, cls Classifier) {
	var err error
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn("camera close failed", "err", cerr)
		}
		cls.Close()

		d.mu.Lock()
		d.finishLocked(err)
		d.mu.Unlock()

		log.Info("tracking finished", "frames", d.frames.Load(), "blinks", d.blinks.Load(), "err", err)
	}()

	hist := NewHistory(d.config.MaxDipFrames, d.config.MinOpenHistory)
	interval := d.config.FrameInterval()
	state := Running

	log.Info("tracking started", "device", d.config.Device, "fps", d.config.FPS)
	d.events.push(logEvent("tracking started"))

	for {
		// Checkpoint: stop and commands are only observed here
		select {
		case <-d.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		state = d.drain(state, hist)

		if state == Paused {
			select {
			case <-d.stop:
				return
			case <-ctx.Done():
				return
			case c := <-d.cmds:
				state = d.apply(c, state, hist)
			}
			continue
		}

		began := time.Now()

		frame, rerr := src.ReadFrame()
		if rerr != nil {
			err = deviceError(rerr, d.config.Device, ErrStreamEnded)
			d.events.push(logEvent("camera read failed: %v", err))
			return
		}

		d.process(frame, cls, hist)

		if interval <= 0 {
			continue
		}
		if wait := interval - time.Since(began); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-d.stop:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// drain applies every queued command without blocking.
func (d *Detector) drain(state State, hist *History) State {
	for {
		select {
		case c := <-d.cmds:
			state = d.apply(c, state, hist)
		default:
			return state
		}
	}
}

func (d *Detector) apply(c command, state State, hist *History) State {
	switch {
	case c == cmdPause && state == Running:
		d.state.Store(int32(Paused))
		d.events.push(stateEvent(Paused))
		d.events.push(logEvent("tracking paused"))
		return Paused

	case c == cmdResume && state == Paused:
		hist.Reset()
		d.state.Store(int32(Running))
		d.events.push(stateEvent(Running))
		d.events.push(logEvent("tracking resumed"))
		return Running
	}

	debug.Log("👁️  ignoring command %d in state %s\n", c, state)
	return state
}

func (d *Detector) process(f Frame, cls Classifier, hist *History) {
	overlay, err := cls.Detect(f)
	if err != nil {
		// Detection noise: a bad frame counts as no eyes
		d.noise.Add(1)
		debug.FrameLog("👁️  frame %d: detection failed: %v\n", f.Seq, err)
		overlay = Overlay{}
	}
	d.frames.Add(1)

	dip, blinked := hist.Observe(overlay.EyeCount())
	debug.FrameLog("👁️  frame %d: eyes=%d hist=%d/%d/%d\n",
		f.Seq, overlay.EyeCount(), hist.Current, hist.Previous, hist.Running)

	d.events.push(frameEvent(f, overlay))

	if blinked {
		at := f.CapturedAt
		if at.IsZero() {
			at = time.Now()
		}
		n := d.blinks.Add(1)
		d.events.push(blinkEvent(Blink{
			Count:     int(n),
			FrameSeq:  f.Seq,
			DipFrames: dip.Frames,
			At:        at,
		}))
	}
}

// deviceError makes sure camera failures surface as a DeviceError.
func deviceError(err error, device int, kind error) error {
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &DeviceError{
		Device: strconv.Itoa(device),
		Err:    errors.Join(kind, err),
	}
}
