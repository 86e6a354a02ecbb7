package blink

import "testing"

// observeAll feeds counts and returns how many blinks fired.
func observeAll(h *History, counts []int) int {
	blinks := 0
	for _, c := range counts {
		if _, ok := h.Observe(c); ok {
			blinks++
		}
	}
	return blinks
}

func TestHistory_BlinkSequences(t *testing.T) {
	tests := []struct {
		name   string
		maxDip int
		counts []int
		want   int
	}{
		{
			name:   "sustained open eyes",
			maxDip: 2,
			counts: []int{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2},
			want:   0,
		},
		{
			name:   "single eye sustained",
			maxDip: 2,
			counts: []int{1, 1, 1, 1, 1, 1},
			want:   0,
		},
		{
			name:   "one short dip",
			maxDip: 2,
			counts: []int{2, 2, 0, 2, 2},
			want:   1,
		},
		{
			name:   "dip at threshold",
			maxDip: 3,
			counts: []int{2, 2, 0, 0, 0, 2},
			want:   1,
		},
		{
			name:   "look-away exceeds threshold",
			maxDip: 2,
			counts: []int{2, 2, 0, 0, 0, 0, 0, 0, 2, 2},
			want:   0,
		},
		{
			name:   "reference ten-frame sequence",
			maxDip: 2,
			counts: []int{2, 2, 0, 0, 2, 2, 2, 0, 2, 2},
			want:   2,
		},
		{
			name:   "no face from the start",
			maxDip: 2,
			counts: []int{0, 0, 2, 2},
			want:   0,
		},
		{
			name:   "partial eyes do not dip",
			maxDip: 2,
			counts: []int{2, 1, 2, 1, 2},
			want:   0,
		},
		{
			name:   "unending zero run",
			maxDip: 2,
			counts: []int{2, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			want:   0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHistory(tc.maxDip, DefaultConfig().MinOpenHistory)
			if got := observeAll(h, tc.counts); got != tc.want {
				t.Errorf("blinks: got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHistory_OneBlinkPerDip(t *testing.T) {
	h := NewHistory(4, 1)
	observeAll(h, []int{2, 2, 0, 0})

	dip, ok := h.Observe(2)
	if !ok {
		t.Fatal("Expected blink on recovery")
	}
	if dip.Frames != 2 {
		t.Errorf("DipFrames: got %d, want 2", dip.Frames)
	}

	// Further open frames must not re-fire
	for i := 0; i < 5; i++ {
		if _, ok := h.Observe(2); ok {
			t.Fatalf("Unexpected second blink at open frame %d", i)
		}
	}
}

func TestHistory_ShiftsCounts(t *testing.T) {
	h := NewHistory(2, 1)
	h.Observe(2)
	h.Observe(1)

	if h.Current != 1 || h.Previous != 2 {
		t.Errorf("Current/Previous: got %d/%d, want 1/2", h.Current, h.Previous)
	}
	// 0/2+2 = 2, then 2/2+1 = 2
	if h.Running != 2 {
		t.Errorf("Running: got %d, want 2", h.Running)
	}
}

func TestHistory_RunningDecaysWithoutFace(t *testing.T) {
	h := NewHistory(2, 1)
	observeAll(h, []int{2, 2, 2, 2})
	observeAll(h, []int{0, 0, 0, 0, 0})

	if h.Running != 0 {
		t.Errorf("Running should drain to 0 without eyes, got %d", h.Running)
	}
}

func TestHistory_ResetDropsPartialDip(t *testing.T) {
	h := NewHistory(2, 1)
	observeAll(h, []int{2, 2, 0})
	if !h.InDip() {
		t.Fatal("Expected to be inside a dip before reset")
	}

	h.Reset()

	if h.InDip() {
		t.Error("Reset should clear the dip")
	}
	if got := observeAll(h, []int{0, 2}); got != 0 {
		t.Errorf("Pre-reset dip combined with post-reset dip: got %d blinks, want 0", got)
	}
	if h.Current != 2 || h.Previous != 0 {
		t.Errorf("Current/Previous after reset: got %d/%d, want 2/0", h.Current, h.Previous)
	}
}

func TestHistory_WithoutResetDipsCombine(t *testing.T) {
	// Control for the reset test: the same frames without a reset do blink
	h := NewHistory(2, 1)
	if got := observeAll(h, []int{2, 2, 0, 0, 2}); got != 1 {
		t.Errorf("Expected 1 blink, got %d", got)
	}
}

func TestHistory_MinOpenHistory(t *testing.T) {
	// A demanding open-history gate rejects a dip right after the face appears
	h := NewHistory(2, 3)
	if got := observeAll(h, []int{2, 0, 2}); got != 0 {
		t.Errorf("Expected gated dip to be ignored, got %d blinks", got)
	}

	// Once the history has built up the same dip counts
	if got := observeAll(h, []int{2, 2, 2, 0, 2}); got != 1 {
		t.Errorf("Expected 1 blink after history builds, got %d", got)
	}
}

func TestHistory_FlickerAfterLookAway(t *testing.T) {
	// Look-away, one open frame, a zero frame, then the eyes are back
	counts := []int{2, 2, 2, 0, 0, 0, 0, 0, 0, 2, 0, 2, 2}

	h := NewHistory(2, DefaultConfig().MinOpenHistory)
	if got := observeAll(h, counts); got != 0 {
		t.Errorf("Flicker counted as a blink: got %d, want 0", got)
	}
	if h.Running < DefaultConfig().MinOpenHistory {
		t.Errorf("Running should rebuild once the eyes stay open, got %d", h.Running)
	}

	// Without the gate the same frames fire
	ungated := NewHistory(2, 0)
	if got := observeAll(ungated, counts); got != 1 {
		t.Errorf("Ungated history: got %d blinks, want 1", got)
	}
}

func TestHistory_DefaultGateNeedsTwoOpenFrames(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
		want   int
	}{
		{"one open frame", []int{2, 0, 2}, 0},
		{"two open frames", []int{2, 2, 0, 2}, 1},
		{"one eye then both", []int{1, 2, 2, 0, 2}, 1},
		{"one eye only", []int{1, 1, 1, 0, 1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHistory(8, DefaultConfig().MinOpenHistory)
			if got := observeAll(h, tc.counts); got != tc.want {
				t.Errorf("blinks: got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHistory_NegativeCountsClamp(t *testing.T) {
	h := NewHistory(2, 1)
	h.Observe(-3)
	if h.Current != 0 || h.Running != 0 {
		t.Errorf("Negative count should clamp to 0, got current=%d running=%d", h.Current, h.Running)
	}
}
