package blink

import (
	"image"
	"time"
)

// Frame is a single camera image. Data holds Height rows of Width*Channels
// bytes (BGR order for 3 channels).
type Frame struct {
	Seq        int
	Width      int
	Height     int
	Channels   int
	Data       []byte
	CapturedAt time.Time
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Width == 0 || f.Height == 0 || len(f.Data) == 0
}

// Bounds returns the frame rectangle.
func (f Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Overlay is the detection result for one frame. Eyes are only ever searched
// inside Face, and are reported in frame coordinates.
type Overlay struct {
	HasFace bool
	Face    image.Rectangle
	Eyes    []image.Rectangle
}

// EyeCount returns the number of eyes found; zero without a face.
func (o Overlay) EyeCount() int {
	if !o.HasFace {
		return 0
	}
	return len(o.Eyes)
}

// Largest picks the largest rectangle by area.
// Ties keep the earliest candidate.
func Largest(rects []image.Rectangle) (image.Rectangle, bool) {
	if len(rects) == 0 {
		return image.Rectangle{}, false
	}

	best := rects[0]
	bestArea := area(best)
	for _, r := range rects[1:] {
		if a := area(r); a > bestArea {
			best, bestArea = r, a
		}
	}
	return best, true
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
