package vision

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/teslashibe/go-blink/pkg/blink"
	"github.com/teslashibe/go-blink/pkg/debug"
	"gocv.io/x/gocv"
)

// Detection parameters shared by both cascades
const (
	scaleFactor  = 1.1
	minNeighbors = 2
)

// Cascades detects the largest face with a frontal-face Haar cascade and the
// eyes inside it with an eye cascade.
type Cascades struct {
	face gocv.CascadeClassifier
	eyes gocv.CascadeClassifier

	minFace image.Point
	minEye  image.Point

	gray gocv.Mat
	mu   sync.Mutex // Protects gray and the classifiers
}

// LoadCascades loads both cascade files named in cfg. Missing or malformed
// files are reported as *blink.ResourceError.
func LoadCascades(cfg blink.Config) (*Cascades, error) {
	face, err := loadCascade(cfg.FaceCascadePath)
	if err != nil {
		return nil, err
	}

	eyes, err := loadCascade(cfg.EyeCascadePath)
	if err != nil {
		face.Close()
		return nil, err
	}

	return &Cascades{
		face:    face,
		eyes:    eyes,
		minFace: image.Pt(cfg.MinFaceSize, cfg.MinFaceSize),
		minEye:  image.Pt(cfg.MinEyeSize, cfg.MinEyeSize),
		gray:    gocv.NewMat(),
	}, nil
}

// Loader adapts LoadCascades to blink.LoadFunc.
func Loader() blink.LoadFunc {
	return func(cfg blink.Config) (blink.Classifier, error) {
		c, err := LoadCascades(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func loadCascade(path string) (gocv.CascadeClassifier, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.CascadeClassifier{}, &blink.ResourceError{Path: path, Err: err}
	}

	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		c.Close()
		return gocv.CascadeClassifier{}, &blink.ResourceError{Path: path, Err: fmt.Errorf("not a cascade classifier")}
	}
	return c, nil
}

// Detect finds the largest face and the eyes inside it.
func (c *Cascades) Detect(f blink.Frame) (blink.Overlay, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	img, err := ToMat(f)
	if err != nil {
		return blink.Overlay{}, fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	// Grayscale + equalized histogram keeps the cascades stable under changing light
	toGray(img, &c.gray)
	gocv.EqualizeHist(c.gray, &c.gray)

	faces := c.face.DetectMultiScaleWithParams(c.gray, scaleFactor, minNeighbors, 0, c.minFace, image.Point{})
	face, ok := blink.Largest(faces)
	if !ok {
		return blink.Overlay{}, nil
	}
	face = face.Intersect(f.Bounds())
	if face.Empty() {
		return blink.Overlay{}, nil
	}

	roi := c.gray.Region(face)
	defer roi.Close()

	found := c.eyes.DetectMultiScaleWithParams(roi, scaleFactor, minNeighbors, 0, c.minEye, image.Point{})

	overlay := blink.Overlay{HasFace: true, Face: face}
	for _, r := range found {
		overlay.Eyes = append(overlay.Eyes, r.Add(face.Min))
	}

	if len(faces) > 1 {
		debug.FrameLog("👁️  %d faces, using largest %v\n", len(faces), face)
	}
	return overlay, nil
}

// Close releases the classifiers.
func (c *Cascades) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.face.Close()
	c.eyes.Close()
	return c.gray.Close()
}
