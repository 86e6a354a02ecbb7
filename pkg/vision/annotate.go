package vision

import (
	"fmt"
	"image"
	"image/color"

	"github.com/teslashibe/go-blink/pkg/blink"
	"gocv.io/x/gocv"
)

// Overlay colors (BGR order is handled by gocv)
var (
	faceColor = color.RGBA{R: 255, G: 0, B: 255, A: 0}
	eyeColor  = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	textColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// Annotate returns a BGR copy of the frame with the face and eye boxes drawn.
// The caller closes the returned Mat.
func Annotate(f blink.Frame, o blink.Overlay) (gocv.Mat, error) {
	src, err := ToMat(f)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer src.Close()

	out := gocv.NewMat()
	switch src.Channels() {
	case 1:
		gocv.CvtColor(src, &out, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(src, &out, gocv.ColorBGRAToBGR)
	default:
		src.CopyTo(&out)
	}

	if o.HasFace {
		gocv.Rectangle(&out, o.Face, faceColor, 3)
		for _, eye := range o.Eyes {
			gocv.Rectangle(&out, eye, eyeColor, 2)
		}
	}

	label := fmt.Sprintf("eyes: %d", o.EyeCount())
	gocv.PutText(&out, label, image.Pt(10, 24), gocv.FontHersheyPlain, 1.6, textColor, 2)

	return out, nil
}

// Encoder turns annotated frames into JPEG (dashboard) or PNG (archive) bytes.
type Encoder struct {
	Quality int // JPEG quality 1-100
}

// NewEncoder creates an encoder with the given JPEG quality.
func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &Encoder{Quality: quality}
}

// JPEG encodes the annotated frame as JPEG.
func (e *Encoder) JPEG(f blink.Frame, o blink.Overlay) ([]byte, error) {
	img, err := Annotate(f, o)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, e.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	return copyBytes(buf.GetBytes()), nil
}

// PNG encodes the annotated frame as PNG.
func (e *Encoder) PNG(f blink.Frame, o blink.Overlay) ([]byte, error) {
	img, err := Annotate(f, o)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	return copyBytes(buf.GetBytes()), nil
}

// copyBytes detaches encoded data from the native buffer before it is freed.
func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
