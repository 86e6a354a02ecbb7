package study

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-blink/internal/log"
)

// stampLayout names session and segment directories. It sorts by time and
// contains no characters that need escaping on common filesystems.
const stampLayout = "2006-01-02T15-04-05.000"

// Stamp formats t as a directory name.
func Stamp(t time.Time) string {
	return t.Local().Format(stampLayout)
}

// Recorder owns the on-disk log of one session:
//
//	<root>/<start>/<start>.txt        session log
//	<root>/<start>/<segment start>/   one directory per task segment
//	    <ms since segment start>.png  annotated frames
type Recorder struct {
	dir    string
	file   *os.File
	logger *slog.Logger

	mu       sync.Mutex
	segDir   string
	segStart time.Time
	saved    int
}

// OpenRecorder creates the session directory and opens its log file.
func OpenRecorder(root string, start time.Time) (*Recorder, error) {
	name := Stamp(start)
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, name+".txt"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}

	return &Recorder{
		dir:    dir,
		file:   f,
		logger: log.New(f, "info", false),
	}, nil
}

// Dir returns the session directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// LogPath returns the session log file path.
func (r *Recorder) LogPath() string {
	return r.file.Name()
}

// Log appends a line to the session log.
func (r *Recorder) Log(msg string, args ...any) {
	r.logger.Info(msg, args...)
}

// BeginSegment creates the directory for a new task segment.
func (r *Recorder) BeginSegment(at time.Time) (string, error) {
	dir := filepath.Join(r.dir, Stamp(at))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create segment dir: %w", err)
	}

	r.mu.Lock()
	r.segDir = dir
	r.segStart = at
	r.mu.Unlock()
	return dir, nil
}

// EndSegment stops frame persistence until the next BeginSegment.
func (r *Recorder) EndSegment() {
	r.mu.Lock()
	r.segDir = ""
	r.mu.Unlock()
}

// SaveFrame writes an encoded PNG into the current segment, named by its
// millisecond offset from the segment start. Outside a segment it does
// nothing and returns "".
func (r *Recorder) SaveFrame(png []byte, at time.Time) (string, error) {
	r.mu.Lock()
	dir, start := r.segDir, r.segStart
	r.mu.Unlock()

	if dir == "" {
		return "", nil
	}

	ms := max(at.Sub(start).Milliseconds(), 0)
	path := filepath.Join(dir, strconv.FormatInt(ms, 10)+".png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", fmt.Errorf("save frame: %w", err)
	}

	r.mu.Lock()
	r.saved++
	r.mu.Unlock()
	return path, nil
}

// Saved returns how many frames have been written.
func (r *Recorder) Saved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved
}

// Close closes the log file.
func (r *Recorder) Close() error {
	return r.file.Close()
}
