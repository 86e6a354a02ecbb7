package main

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-blink/pkg/blink"
	"github.com/teslashibe/go-blink/pkg/study"
)

func TestEventsURL(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"http://localhost:8181", "ws://localhost:8181/ws/events", true},
		{"https://lab.example/blink/", "wss://lab.example/blink/ws/events", true},
		{"ws://10.0.0.2:8181", "ws://10.0.0.2:8181/ws/events", true},
		{"ftp://x", "", false},
	}

	for _, tc := range tests {
		got, err := eventsURL(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("eventsURL(%q): err=%v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("eventsURL(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatNotice(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 5, 0, time.Local)

	line := formatNotice(study.Notice{Type: study.NoticeBlink, Session: "0123456789ab", Time: at, Blinks: 2, Total: 9})
	if !strings.Contains(line, "09:30:05 [01234567]") || !strings.Contains(line, "blink #9 (segment 2)") {
		t.Errorf("blink line: %q", line)
	}

	line = formatNotice(study.Notice{Type: study.NoticeFinished, Total: 3, Error: "camera gone"})
	if !strings.HasPrefix(line, "--:--:--") || !strings.HasSuffix(line, "finished after 3 blinks: camera gone") {
		t.Errorf("finished line: %q", line)
	}
}

func TestTrackFlags(t *testing.T) {
	var f trackFlags
	f.register(&cobra.Command{Use: "probe"}, blink.DefaultConfig())

	f.camera = 3
	f.fps = 0
	f.maxDip = 5
	cfg := f.apply(blink.DefaultConfig())
	if cfg.Device != 3 || cfg.FPS != 0 || cfg.MaxDipFrames != 5 {
		t.Errorf("apply: %+v", cfg)
	}
	if cfg.MinOpenHistory != blink.DefaultConfig().MinOpenHistory {
		t.Errorf("min-open default lost: %d", cfg.MinOpenHistory)
	}
	if cfg.MinFaceSize != 300 || cfg.MinEyeSize != 50 {
		t.Errorf("sizes changed: %+v", cfg)
	}
}
