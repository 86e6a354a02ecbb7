// Package debug holds the --debug and --debug-frames switches and the
// printers gated by them. Per-frame output is far too chatty for slog.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

var (
	enabled atomic.Bool
	frames  atomic.Bool

	mu  sync.Mutex
	out io.Writer = os.Stderr
)

// Enable turns general debug output on or off.
func Enable(on bool) { enabled.Store(on) }

// EnableFrames turns per-frame detection output on or off.
func EnableFrames(on bool) { frames.Store(on) }

// Enabled reports whether general debug output is on.
func Enabled() bool { return enabled.Load() }

// Frames reports whether per-frame output is on.
func Frames() bool { return frames.Load() }

// SetOutput redirects debug output (stderr by default).
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Log prints when debug output is on.
func Log(format string, args ...any) {
	if enabled.Load() {
		write(format, args...)
	}
}

// FrameLog prints when per-frame output is on.
func FrameLog(format string, args ...any) {
	if frames.Load() {
		write(format, args...)
	}
}

func write(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, format, args...)
}
