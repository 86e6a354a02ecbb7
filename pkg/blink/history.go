package blink

// History is the short eye-count history used to infer blinks.
//
// Running is a decaying accumulator, halved every frame before the new count is
// added, so a single missed detection barely moves it while a sustained run of
// empty frames drains it to zero.
type History struct {
	Current  int
	Previous int
	Running  int

	maxDip  int
	minOpen int

	dip   int  // consecutive zero-eye frames in the current dip
	armed bool // the dip started from an open-eye regime
}

// Dip describes a qualifying closed→open transition.
type Dip struct {
	Frames int // zero-eye frames before recovery
}

// NewHistory creates an empty history with the given blink policy.
func NewHistory(maxDipFrames, minOpenHistory int) *History {
	return &History{
		maxDip:  maxDipFrames,
		minOpen: minOpenHistory,
	}
}

// Observe folds one frame's eye count into the history and reports whether
// the frame completes a blink. At most one blink is reported per dip.
func (h *History) Observe(eyes int) (Dip, bool) {
	if eyes < 0 {
		eyes = 0
	}

	openBefore := h.Running >= h.minOpen && h.Current > 0

	h.Previous = h.Current
	h.Current = eyes
	h.Running = h.Running/2 + eyes

	if eyes == 0 {
		if h.dip == 0 {
			h.armed = openBefore
		}
		h.dip++
		return Dip{}, false
	}

	if h.dip == 0 {
		return Dip{}, false
	}

	dip := Dip{Frames: h.dip}
	fired := h.armed && h.dip <= h.maxDip
	h.dip = 0
	h.armed = false
	return dip, fired
}

// InDip reports whether the eyes are currently not detected after being open.
func (h *History) InDip() bool {
	return h.dip > 0 && h.armed
}

// Reset clears all counters.
func (h *History) Reset() {
	h.Current, h.Previous, h.Running = 0, 0, 0
	h.dip = 0
	h.armed = false
}
