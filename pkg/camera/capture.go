package camera

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/teslashibe/go-blink/internal/log"
	"github.com/teslashibe/go-blink/pkg/blink"
	"github.com/teslashibe/go-blink/pkg/vision"
	"gocv.io/x/gocv"
)

// Camera reads frames from a device or a video file. It implements
// blink.FrameSource.
type Camera struct {
	name   string
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	mirror bool

	mu     sync.Mutex
	seq    int
	closed bool
}

// Open opens camera cfg.Device and applies the resolution and rate hints.
// Devices are free to ignore the hints.
func Open(cfg Config) (*Camera, error) {
	name := strconv.Itoa(cfg.Device)

	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil || !vc.IsOpened() {
		if vc != nil {
			vc.Close()
		}
		return nil, &blink.DeviceError{Device: name, Err: deviceCause(err)}
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	log.Info("camera opened",
		"device", cfg.Device,
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
		"fps", vc.Get(gocv.VideoCaptureFPS))

	return &Camera{name: name, cap: vc, mat: gocv.NewMat(), mirror: cfg.Mirror}, nil
}

// OpenFile opens a recorded video for offline replay.
func OpenFile(path string) (*Camera, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil || !vc.IsOpened() {
		if vc != nil {
			vc.Close()
		}
		return nil, &blink.DeviceError{Device: path, Err: deviceCause(err)}
	}
	return &Camera{name: path, cap: vc, mat: gocv.NewMat()}, nil
}

func deviceCause(err error) error {
	if err == nil {
		return blink.ErrDeviceNotFound
	}
	return fmt.Errorf("%w: %v", blink.ErrDeviceNotFound, err)
}

// ReadFrame blocks until the next frame. A failed or empty read means the
// device is gone (or the file is exhausted).
func (c *Camera) ReadFrame() (blink.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return blink.Frame{}, &blink.DeviceError{Device: c.name, Err: blink.ErrStreamEnded}
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return blink.Frame{}, &blink.DeviceError{Device: c.name, Err: blink.ErrStreamEnded}
	}

	if c.mirror {
		gocv.Flip(c.mat, &c.mat, 1)
	}

	f := vision.FromMat(c.mat, c.seq)
	c.seq++
	return f, nil
}

// FPS reports the rate the device (or file) claims.
func (c *Camera) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.cap.Get(gocv.VideoCaptureFPS)
}

// FrameCount returns the number of frames in a video file, or -1 when the
// source does not know (live devices).
func (c *Camera) FrameCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return -1
	}
	n := int64(c.cap.Get(gocv.VideoCaptureFrameCount))
	if n <= 0 {
		return -1
	}
	return n
}

// Close releases the device. Safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.cap.Close()
}

// Opener returns a blink.OpenFunc that opens the device named by the
// detector config with the capture settings from cfg.
func Opener(cfg Config) blink.OpenFunc {
	return func(bc blink.Config) (blink.FrameSource, error) {
		cfg.Device = bc.Device
		return Open(cfg)
	}
}

// ManagedOpener is like Opener but reads the capture settings from m each
// time a session starts, so dashboard changes apply to the next session.
func ManagedOpener(m *Manager) blink.OpenFunc {
	return func(bc blink.Config) (blink.FrameSource, error) {
		cfg := m.Config()
		cfg.Device = bc.Device
		return Open(cfg)
	}
}

// FileOpener returns a blink.OpenFunc that replays path.
func FileOpener(path string) blink.OpenFunc {
	return func(blink.Config) (blink.FrameSource, error) {
		return OpenFile(path)
	}
}
