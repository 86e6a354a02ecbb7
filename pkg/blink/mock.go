package blink

import (
	"image"
	"sync"
	"time"
)

// MockSource implements FrameSource for testing.
// ReadFunc is called with the zero-based read index; if nil, an endless
// stream of tiny gray frames is produced.
type MockSource struct {
	ReadFunc func(i int) (Frame, error)

	mu     sync.Mutex
	reads  int
	closed int
}

// NewMockSource creates an endless mock source.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// FiniteSource returns a source that yields n frames and then fails with
// ErrStreamEnded.
func FiniteSource(n int) *MockSource {
	return &MockSource{
		ReadFunc: func(i int) (Frame, error) {
			if i >= n {
				return Frame{}, &DeviceError{Device: "mock", Err: ErrStreamEnded}
			}
			return MockFrame(i), nil
		},
	}
}

// MockFrame builds a 4x4 single-channel frame.
func MockFrame(seq int) Frame {
	return Frame{
		Seq:        seq,
		Width:      4,
		Height:     4,
		Channels:   1,
		Data:       make([]byte, 16),
		CapturedAt: time.Now(),
	}
}

// ReadFrame records the read and calls ReadFunc.
func (m *MockSource) ReadFrame() (Frame, error) {
	m.mu.Lock()
	i := m.reads
	m.reads++
	fn := m.ReadFunc
	m.mu.Unlock()

	if fn == nil {
		return MockFrame(i), nil
	}
	return fn(i)
}

// Close records the call.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Reads returns how many frames were requested.
func (m *MockSource) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Closed returns how many times Close was called.
func (m *MockSource) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Opener returns an OpenFunc handing out this source.
func (m *MockSource) Opener() OpenFunc {
	return func(Config) (FrameSource, error) {
		return m, nil
	}
}

// MockClassifier implements Classifier for testing.
// DetectFunc is called for every frame; if nil, a face with two eyes is found.
type MockClassifier struct {
	DetectFunc func(f Frame) (Overlay, error)

	mu     sync.Mutex
	calls  int
	closed int
}

// NewMockClassifier creates a classifier that always sees two open eyes.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// ScriptedClassifier returns a classifier reporting counts[f.Seq] eyes, and
// two eyes for frames past the end of the script.
func ScriptedClassifier(counts []int) *MockClassifier {
	return &MockClassifier{
		DetectFunc: func(f Frame) (Overlay, error) {
			n := 2
			if f.Seq < len(counts) {
				n = counts[f.Seq]
			}
			return EyesOverlay(n), nil
		},
	}
}

// EyesOverlay builds an overlay with a face and n eye boxes. A negative n
// means no face.
func EyesOverlay(n int) Overlay {
	if n < 0 {
		return Overlay{}
	}
	o := Overlay{HasFace: true, Face: image.Rect(0, 0, 4, 4)}
	for i := 0; i < n; i++ {
		o.Eyes = append(o.Eyes, image.Rect(i, 1, i+1, 2))
	}
	return o
}

// Detect records the call and calls DetectFunc.
func (m *MockClassifier) Detect(f Frame) (Overlay, error) {
	m.mu.Lock()
	m.calls++
	fn := m.DetectFunc
	m.mu.Unlock()

	if fn == nil {
		return EyesOverlay(2), nil
	}
	return fn(f)
}

// Close records the call.
func (m *MockClassifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Calls returns how many frames were classified.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed returns how many times Close was called.
func (m *MockClassifier) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Loader returns a LoadFunc handing out this classifier.
func (m *MockClassifier) Loader() LoadFunc {
	return func(Config) (Classifier, error) {
		return m, nil
	}
}
