package study

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-blink/internal/log"
	"github.com/teslashibe/go-blink/pkg/blink"
)

var (
	ErrSessionActive = errors.New("study: session already running")
	ErrNoSession     = errors.New("study: no session running")
	ErrNoTask        = errors.New("study: no task selected")
	ErrUnknownTask   = errors.New("study: unknown task")
	ErrPausePending  = errors.New("study: pause in progress")
)

const separator = "|----------------------|"

// pauseTimeout bounds how long Pause waits for the tracker to stop on its
// current frame before closing the segment anyway.
const pauseTimeout = 2 * time.Second

// Status is a snapshot of the controller.
type Status struct {
	Session       string    `json:"session"`
	State         string    `json:"state"`
	Task          int       `json:"task"`
	TaskURL       string    `json:"task_url,omitempty"`
	Blinks        int       `json:"blinks"`
	Total         int       `json:"total"`
	Rate          float64   `json:"rate"`
	Started       time.Time `json:"started"`
	Frames        int64     `json:"frames"`
	DroppedFrames uint64    `json:"dropped_frames"`
	Stimuli       int       `json:"stimuli"`
	LogDir        string    `json:"log_dir,omitempty"`
}

// Session drives one study at a time: Start opens the camera and begins
// tracking, SelectTask starts a task segment, Pause closes it and reports the
// blink rate, Finish ends the session.
type Session struct {
	cfg     Config
	open    blink.OpenFunc
	load    blink.LoadFunc
	fatigue *FatigueTimer

	mu      sync.Mutex
	tasks   []string
	encoder Encoder
	archive Archive
	sinks   []Sink
	cur     *run
}

// run is the state of a single Start..Finish cycle.
type run struct {
	id       string
	det      *blink.Detector
	rec      *Recorder
	arch     *archiver
	started  time.Time
	segStart time.Time
	task     int // -1 outside a segment
	blinks   int // since the last segment boundary
	total    int
	paused   bool // as last reported by the worker
	finished bool
	closing  bool
	pauseAck chan float64  // set while a Pause waits for the worker
	done     chan struct{} // closed when the consumer goroutine exits
}

// New builds a controller. open and load are passed to every detector it
// creates.
func New(cfg Config, open blink.OpenFunc, load blink.LoadFunc) *Session {
	tasks := append([]string(nil), cfg.Tasks...)
	if cfg.Shuffle {
		rand.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
	}

	s := &Session{
		cfg:   cfg,
		open:  open,
		load:  load,
		tasks: tasks,
	}
	s.fatigue = NewFatigueTimer(cfg.Fatigue, s.stimulate)
	return s
}

// SetEncoder sets the frame encoder. Without one, frames are not forwarded.
func (s *Session) SetEncoder(e Encoder) {
	s.mu.Lock()
	s.encoder = e
	s.mu.Unlock()
}

// SetArchive sets the session archive. Call it before Start.
func (s *Session) SetArchive(a Archive) {
	s.mu.Lock()
	s.archive = a
	s.mu.Unlock()
}

// AddSink registers an output.
func (s *Session) AddSink(sink Sink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// Tasks returns the task list in presentation order.
func (s *Session) Tasks() []string {
	return append([]string(nil), s.tasks...)
}

// Start begins a new session. ctx bounds the whole session, not just the
// call; cancelling it stops tracking.
func (s *Session) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old := s.cur; old != nil {
		if !old.finished {
			return "", ErrSessionActive
		}
		// Tracking ended on its own and nobody called Finish.
		<-old.done
		go old.close(time.Now())
		s.cur = nil
	}
	if err := s.cfg.Validate(); err != nil {
		return "", err
	}

	now := time.Now()
	r := &run{
		id:       uuid.NewString(),
		det:      blink.New(s.cfg.Blink, s.open, s.load),
		started:  now,
		segStart: now,
		task:     -1,
		done:     make(chan struct{}),
	}
	archive := s.archive

	if s.cfg.LogDir != "" {
		rec, err := OpenRecorder(s.cfg.LogDir, now)
		if err != nil {
			r.det.Stop()
			return "", err
		}
		r.rec = rec
	}

	if err := r.det.Start(ctx); err != nil {
		if r.rec != nil {
			r.rec.Log("tracking failed", "err", err)
			r.rec.Close()
		}
		s.notifyLocked(Notice{Type: NoticeFinished, Time: time.Now(), Session: r.id, Error: err.Error()})
		return "", err
	}

	// Queued before the consumer starts so blinks land after their session.
	r.arch = newArchiver(archive)
	rec := SessionRecord{ID: r.id, Started: now, Device: s.cfg.Blink.Device, LogDir: r.logDir()}
	r.arch.submit("begin session", func(ctx context.Context, a Archive) error {
		return a.BeginSession(ctx, rec)
	})

	s.cur = r
	go s.consume(r)

	r.log(separator, "session", r.id)
	log.Info("study session started", "session", r.id, "device", s.cfg.Blink.Device)
	s.notifyLocked(s.statusNoticeLocked())
	return r.id, nil
}

// SelectTask starts a segment for task i, resumes tracking and returns the
// task URL for the renderer.
func (s *Session) SelectTask(i int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.activeLocked()
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(s.tasks) {
		return "", fmt.Errorf("%w: %d", ErrUnknownTask, i)
	}
	if r.pauseAck != nil {
		return "", ErrPausePending
	}
	if err := r.det.Resume(); err != nil {
		return "", err
	}

	now := time.Now()
	url := s.tasks[i]
	r.task = i
	r.segStart = now
	if r.rec != nil {
		if _, err := r.rec.BeginSegment(now); err != nil {
			log.Warn("segment directory unavailable", "err", err)
		}
	}

	r.log("Task: " + url)
	s.notifyLocked(Notice{Type: NoticeTask, Time: now, Session: r.id, Task: url})
	return url, nil
}

// Pause suspends tracking and returns the segment's blink rate in blinks per
// minute. The segment closes once the worker has stopped, so a blink finishing
// on the frame in flight still counts toward it.
func (s *Session) Pause() (float64, error) {
	s.mu.Lock()
	r, err := s.activeLocked()
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	if r.task < 0 || r.pauseAck != nil {
		s.mu.Unlock()
		return 0, ErrNoTask
	}
	if err := r.det.Pause(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	ack := make(chan float64, 1)
	r.pauseAck = ack
	s.mu.Unlock()

	timer := time.NewTimer(pauseTimeout)
	defer timer.Stop()
	select {
	case rate := <-ack:
		return rate, nil
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r.pauseAck != ack {
		return <-ack, nil
	}
	log.Warn("tracker did not confirm pause", "session", r.id, "waited", pauseTimeout)
	return s.settlePauseLocked(r, time.Now()), nil
}

// settlePauseLocked closes the segment a Pause is waiting for and hands it
// the rate.
func (s *Session) settlePauseLocked(r *run, now time.Time) float64 {
	rate := s.closeSegmentLocked(r, now)
	r.pauseAck <- rate
	r.pauseAck = nil
	s.notifyLocked(s.statusNoticeLocked())
	return rate
}

// Finish stops tracking and the fatigue timer, reports the final blink rate
// and waits for the session's event stream to drain.
func (s *Session) Finish() (float64, error) {
	s.mu.Lock()
	r := s.cur
	if r == nil || r.closing {
		s.mu.Unlock()
		return 0, ErrNoSession
	}
	r.closing = true

	r.det.Stop()
	if s.fatigue.Stop() {
		s.clearStimulusLocked(r)
	}

	now := time.Now()
	var rate float64
	if r.pauseAck != nil {
		rate = s.settlePauseLocked(r, now)
	} else {
		rate = s.closeSegmentLocked(r, now)
	}
	total := r.total
	s.mu.Unlock()

	<-r.done
	r.close(now)

	s.mu.Lock()
	if s.cur == r {
		s.cur = nil
	}
	s.mu.Unlock()

	log.Info("study session finished", "session", r.id, "blinks", total)
	return rate, nil
}

// Status returns a snapshot of the controller.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{State: blink.Stopped.String(), Task: -1, Stimuli: s.fatigue.Fired()}
	r := s.cur
	if r == nil {
		return st
	}

	stats := r.det.Stats()
	st.Session = r.id
	st.State = r.det.State().String()
	st.Task = r.task
	if r.task >= 0 {
		st.TaskURL = s.tasks[r.task]
	}
	st.Blinks = r.blinks
	st.Total = r.total
	st.Rate = Rate(r.blinks, time.Since(r.segStart))
	st.Started = r.started
	st.Frames = stats.Frames
	st.DroppedFrames = stats.DroppedFrames
	st.LogDir = r.logDir()
	return st
}

func (s *Session) statusNoticeLocked() Notice {
	st := s.statusLocked()
	return Notice{
		Type:    NoticeStatus,
		Time:    time.Now(),
		Session: st.Session,
		State:   st.State,
		Task:    st.TaskURL,
		Blinks:  st.Blinks,
		Total:   st.Total,
	}
}

func (s *Session) activeLocked() (*run, error) {
	if s.cur == nil || s.cur.finished || s.cur.closing {
		return nil, ErrNoSession
	}
	return s.cur, nil
}

// closeSegmentLocked logs and archives the segment rate and resets the
// counter. Outside a segment it still reports the rate since the last
// boundary.
func (s *Session) closeSegmentLocked(r *run, now time.Time) float64 {
	rate := Rate(r.blinks, now.Sub(r.segStart))
	r.log(fmt.Sprintf("Eye blink rate: %.2f", rate))
	r.log(separator)

	if r.task >= 0 {
		seg := SegmentRecord{
			SessionID: r.id,
			Task:      s.tasks[r.task],
			Started:   r.segStart,
			Ended:     now,
			Blinks:    r.blinks,
			Rate:      rate,
		}
		r.arch.submit("save segment", func(ctx context.Context, a Archive) error {
			return a.SaveSegment(ctx, seg)
		})
	}
	if r.rec != nil {
		r.rec.EndSegment()
	}

	s.notifyLocked(Notice{Type: NoticeRate, Time: now, Session: r.id, Blinks: r.blinks, Total: r.total, Rate: rate})

	r.blinks = 0
	r.segStart = now
	r.task = -1
	return rate
}

// consume forwards detector events until the stream closes.
func (s *Session) consume(r *run) {
	defer close(r.done)

	err := blink.Dispatch(context.Background(), r.det.Events(), &consumer{s: s, r: r})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("tracking ended with error", "session", r.id, "err", err)
	}
}

func (s *Session) onFrame(r *run, f blink.Frame, o blink.Overlay) {
	s.mu.Lock()
	enc, sinks := s.encoder, append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	if enc == nil {
		return
	}

	if len(sinks) > 0 {
		jpeg, err := enc.JPEG(f, o)
		if err != nil {
			log.Debug("frame encode failed", "err", err)
		} else {
			for _, sink := range sinks {
				sink.Frame(jpeg)
			}
		}
	}

	if s.cfg.SaveFrames && r.rec != nil {
		png, err := enc.PNG(f, o)
		if err != nil {
			log.Debug("frame encode failed", "err", err)
			return
		}
		at := f.CapturedAt
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := r.rec.SaveFrame(png, at); err != nil {
			log.Warn("frame not saved", "err", err)
		}
	}
}

func (s *Session) onBlink(r *run, b blink.Blink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.blinks++
	r.total++
	s.notifyLocked(Notice{Type: NoticeBlink, Time: b.At, Session: r.id, Blinks: r.blinks, Total: r.total})

	if s.fatigue.Arm() {
		s.clearStimulusLocked(r)
	}
	if !r.paused {
		r.log("blink detected", "frame", b.FrameSeq, "dip", b.DipFrames)
	}
	r.arch.submit("save blink", func(ctx context.Context, a Archive) error {
		return a.SaveBlink(ctx, r.id, b)
	})
}

func (s *Session) onState(r *run, st blink.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.paused = st == blink.Paused
	if r.paused && r.pauseAck != nil {
		s.settlePauseLocked(r, time.Now())
	}
}

func (s *Session) onLog(r *run, msg string) {
	s.mu.Lock()
	s.notifyLocked(Notice{Type: NoticeLog, Time: time.Now(), Session: r.id, Message: msg})
	s.mu.Unlock()
}

func (s *Session) onFinished(r *run, err error) {
	s.mu.Lock()
	if s.fatigue.Stop() {
		s.clearStimulusLocked(r)
	}
	if r.pauseAck != nil {
		s.settlePauseLocked(r, time.Now())
	}
	r.finished = true
	n := Notice{Type: NoticeFinished, Time: time.Now(), Session: r.id, Total: r.total}
	if err != nil {
		n.Error = err.Error()
	}
	s.notifyLocked(n)
	s.mu.Unlock()

	if err != nil {
		r.log("tracking stopped", "err", err)
	}
}

// stimulate runs on the fatigue timer goroutine.
func (s *Session) stimulate(m Mode) {
	s.mu.Lock()
	r := s.cur
	id := ""
	if r != nil {
		id = r.id
	}
	s.notifyLocked(Notice{Type: NoticeStimulus, Time: time.Now(), Session: id, Stimulus: m})
	s.mu.Unlock()

	if r != nil {
		r.log("stimulated", "mode", string(m))
	}
}

// clearStimulusLocked tells the renderer to drop a flash or blur.
func (s *Session) clearStimulusLocked(r *run) {
	s.notifyLocked(Notice{Type: NoticeStimulus, Time: time.Now(), Session: r.id, Stimulus: ModeNone})
	r.log("stimulus cleared")
}

// notifyLocked is called with s.mu held; sinks must not call back into the
// session.
func (s *Session) notifyLocked(n Notice) {
	for _, sink := range s.sinks {
		sink.Notify(n)
	}
}

func (r *run) log(msg string, args ...any) {
	if r.rec != nil {
		r.rec.Log(msg, args...)
	}
}

// close flushes the archive and the session log. The consumer must be done.
func (r *run) close(ended time.Time) {
	total := r.total
	r.arch.submit("end session", func(ctx context.Context, a Archive) error {
		return a.EndSession(ctx, r.id, ended, total)
	})
	r.arch.close()
	if r.rec != nil {
		r.rec.Close()
	}
}

func (r *run) logDir() string {
	if r.rec == nil {
		return ""
	}
	return r.rec.Dir()
}

// consumer adapts a run to blink.Dispatch.
type consumer struct {
	s *Session
	r *run
}

func (c *consumer) OnFrame(f blink.Frame, o blink.Overlay) { c.s.onFrame(c.r, f, o) }
func (c *consumer) OnBlink(b blink.Blink)                  { c.s.onBlink(c.r, b) }
func (c *consumer) OnLog(msg string)                       { c.s.onLog(c.r, msg) }
func (c *consumer) OnState(st blink.State)                 { c.s.onState(c.r, st) }
func (c *consumer) OnFinished(err error)                   { c.s.onFinished(c.r, err) }
