package study

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFatigueTimer_Flash(t *testing.T) {
	var fired atomic.Int32
	ft := NewFatigueTimer(FatigueConfig{Limit: 10 * time.Millisecond, Mode: ModeFlash}, func(m Mode) {
		if m != ModeFlash {
			t.Errorf("mode: got %q", m)
		}
		fired.Add(1)
	})

	ft.Arm()
	waitFor(t, "repeated flashes", func() bool { return fired.Load() >= 3 })

	ft.Stop()
	if ft.Active() {
		t.Error("timer still active after Stop")
	}

	n := fired.Load()
	time.Sleep(40 * time.Millisecond)
	if got := fired.Load(); got > n+1 {
		t.Errorf("timer kept firing after Stop: %d -> %d", n, got)
	}
}

func TestFatigueTimer_BlurFiresOnce(t *testing.T) {
	var fired atomic.Int32
	ft := NewFatigueTimer(FatigueConfig{Limit: 10 * time.Millisecond, Mode: ModeBlur}, func(Mode) {
		fired.Add(1)
	})

	ft.Arm()
	waitFor(t, "blur", func() bool { return fired.Load() == 1 })
	time.Sleep(40 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("blur fired %d times, want 1", got)
	}
	if ft.Active() {
		t.Error("blur timer should not re-arm")
	}
	if ft.Fired() != 1 {
		t.Errorf("Fired: got %d, want 1", ft.Fired())
	}
}

func TestFatigueTimer_ArmPostpones(t *testing.T) {
	var fired atomic.Int32
	ft := NewFatigueTimer(FatigueConfig{Limit: 80 * time.Millisecond, Mode: ModeFlash}, func(Mode) {
		fired.Add(1)
	})
	defer ft.Stop()

	// Blinking more often than the limit keeps the stimulus away
	for i := 0; i < 10; i++ {
		ft.Arm()
		time.Sleep(10 * time.Millisecond)
	}

	if got := fired.Load(); got != 0 {
		t.Errorf("fired %d times while being re-armed", got)
	}
}

func TestFatigueTimer_None(t *testing.T) {
	ft := NewFatigueTimer(FatigueConfig{Mode: ModeNone}, func(Mode) {
		t.Error("mode none must never fire")
	})
	ft.Arm()
	if ft.Active() {
		t.Error("mode none should not arm")
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"none", "flash", "blur"} {
		if m, err := ParseMode(s); err != nil || string(m) != s {
			t.Errorf("ParseMode(%q): got %q, %v", s, m, err)
		}
	}
	if _, err := ParseMode("strobe"); err == nil {
		t.Error("ParseMode(strobe) should fail")
	}
}

func TestFatigueTimer_ArmReportsClearedStimulus(t *testing.T) {
	ft := NewFatigueTimer(FatigueConfig{Limit: 10 * time.Millisecond, Mode: ModeBlur}, nil)

	if ft.Arm() {
		t.Error("first Arm reported a stimulus that never fired")
	}
	waitFor(t, "blur", ft.Showing)

	if !ft.Arm() {
		t.Error("Arm after a blur should report it cleared")
	}
	if ft.Showing() {
		t.Error("stimulus still showing after Arm")
	}
	if ft.Stop() {
		t.Error("Stop reported a stimulus before the limit passed")
	}

	ft.Arm()
	waitFor(t, "second blur", ft.Showing)
	if !ft.Stop() {
		t.Error("Stop should report the showing stimulus")
	}
}
