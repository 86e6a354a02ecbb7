package study

import (
	"context"
	"time"

	"github.com/teslashibe/go-blink/pkg/blink"
)

// NoticeType identifies a session notice.
type NoticeType string

const (
	NoticeStatus   NoticeType = "status"
	NoticeLog      NoticeType = "log"
	NoticeBlink    NoticeType = "blink"
	NoticeTask     NoticeType = "task"
	NoticeRate     NoticeType = "rate"
	NoticeStimulus NoticeType = "stimulus"
	NoticeFinished NoticeType = "finished"
)

// Notice is what sinks receive for everything except frames.
type Notice struct {
	Type     NoticeType `json:"type"`
	Session  string     `json:"session,omitempty"`
	Time     time.Time  `json:"time"`
	State    string     `json:"state,omitempty"`
	Message  string     `json:"message,omitempty"`
	Task     string     `json:"task,omitempty"`
	Blinks   int        `json:"blinks,omitempty"`
	Total    int        `json:"total,omitempty"`
	Rate     float64    `json:"rate,omitempty"`
	Stimulus Mode       `json:"stimulus,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Sink receives session output. Methods are called from the session's
// consumer and timer goroutines and must not block for long.
type Sink interface {
	Frame(jpeg []byte)
	Notify(n Notice)
}

// Encoder turns a frame and its overlay into image bytes.
type Encoder interface {
	JPEG(f blink.Frame, o blink.Overlay) ([]byte, error)
	PNG(f blink.Frame, o blink.Overlay) ([]byte, error)
}

// SessionRecord describes a session as it starts.
type SessionRecord struct {
	ID      string
	Started time.Time
	Device  int
	LogDir  string
}

// SegmentRecord summarizes one task segment.
type SegmentRecord struct {
	SessionID string
	Task      string
	Started   time.Time
	Ended     time.Time
	Blinks    int
	Rate      float64
}

// Archive persists session history. Failures are logged, never fatal.
type Archive interface {
	BeginSession(ctx context.Context, s SessionRecord) error
	SaveSegment(ctx context.Context, s SegmentRecord) error
	SaveBlink(ctx context.Context, sessionID string, b blink.Blink) error
	EndSession(ctx context.Context, id string, ended time.Time, blinks int) error
}

// Rate converts a blink count over d into blinks per minute. Zero for an
// empty interval.
func Rate(blinks int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(blinks) * 60 / d.Seconds()
}
