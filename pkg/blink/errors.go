package blink

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrClassifierLoad is matched by every ResourceError.
	ErrClassifierLoad = errors.New("blink: classifier load failed")

	// ErrDeviceNotFound is returned when the camera index has no device.
	ErrDeviceNotFound = errors.New("blink: camera device not found")

	// ErrStreamEnded is returned when the device stops producing frames.
	ErrStreamEnded = errors.New("blink: camera stream ended")

	// ErrAlreadyStarted is returned by Start on a detector that is running.
	ErrAlreadyStarted = errors.New("blink: tracking already started")

	// ErrNotRunning is returned by Pause/Resume before Start.
	ErrNotRunning = errors.New("blink: tracking not running")

	// ErrFinished is returned by Start once the detector has emitted Finished.
	ErrFinished = errors.New("blink: session finished")
)

// ResourceError reports a missing or malformed cascade file.
type ResourceError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("blink: load classifier %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Is reports ResourceError as ErrClassifierLoad.
func (e *ResourceError) Is(target error) bool {
	return target == ErrClassifierLoad
}

// DeviceError reports a camera that is unavailable or disconnected.
type DeviceError struct {
	// Device identifies the source (index or file path).
	Device string

	// Err is ErrDeviceNotFound or ErrStreamEnded.
	Err error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("blink [%s]: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsFatal returns true for errors that end a tracking session.
func IsFatal(err error) bool {
	var re *ResourceError
	var de *DeviceError
	return errors.As(err, &re) || errors.As(err, &de)
}
