package study

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-blink/internal/log"
)

const (
	archiveTimeout = 5 * time.Second
	archiveBacklog = 256
)

type archiveFunc func(ctx context.Context, a Archive) error

// archiver runs the archive writes of one session in order on its own
// goroutine. Callers never wait on the database.
type archiver struct {
	a Archive

	mu     sync.Mutex
	closed bool
	queue  chan archiveFunc
	done   chan struct{}
}

// newArchiver returns nil when a is nil; a nil archiver drops every write.
func newArchiver(a Archive) *archiver {
	if a == nil {
		return nil
	}
	w := &archiver{
		a:     a,
		queue: make(chan archiveFunc, archiveBacklog),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *archiver) submit(op string, fn archiveFunc) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		log.Warn("archive write after close", "op", op)
		return
	}
	select {
	case w.queue <- fn:
	default:
		log.Warn("archive backlog full, write dropped", "op", op)
	}
}

// close flushes pending writes and stops the goroutine.
func (w *archiver) close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *archiver) run() {
	defer close(w.done)
	for fn := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := fn(ctx, w.a); err != nil {
			log.Warn("archive write failed", "err", err)
		}
		cancel()
	}
}
