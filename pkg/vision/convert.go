// Package vision provides the OpenCV side of blink tracking: Haar cascade
// face/eye detection, overlay drawing and frame encoding.
package vision

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-blink/pkg/blink"
	"gocv.io/x/gocv"
)

// FromMat copies a Mat into a value-type frame.
func FromMat(m gocv.Mat, seq int) blink.Frame {
	return blink.Frame{
		Seq:        seq,
		Width:      m.Cols(),
		Height:     m.Rows(),
		Channels:   m.Channels(),
		Data:       m.ToBytes(),
		CapturedAt: time.Now(),
	}
}

// ToMat builds a Mat over a copy of the frame pixels. The caller closes it.
func ToMat(f blink.Frame) (gocv.Mat, error) {
	if f.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty frame")
	}

	var mt gocv.MatType
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", f.Channels)
	}

	if want := f.Width * f.Height * f.Channels; len(f.Data) != want {
		return gocv.NewMat(), fmt.Errorf("frame data is %d bytes, want %d", len(f.Data), want)
	}

	return gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
}

// toGray converts m to an 8-bit single channel image in dst.
func toGray(m gocv.Mat, dst *gocv.Mat) {
	switch m.Channels() {
	case 1:
		m.CopyTo(dst)
	case 4:
		gocv.CvtColor(m, dst, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(m, dst, gocv.ColorBGRToGray)
	}
}
