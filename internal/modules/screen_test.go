package modules

import "testing"

func TestScreenSeedsDisplayedFromInitialFlag(t *testing.T) {
	on := NewScreenInterface(1, 50, true, nil)
	if !on.Displayed() {
		t.Fatal("expected displayed=true when seeded initiallyOn=true")
	}
	off := NewScreenInterface(1, 50, false, nil)
	if off.Displayed() {
		t.Fatal("expected displayed=false when seeded initiallyOn=false")
	}
}

func TestScreenSetStateTogglesOnlyOnChange(t *testing.T) {
	s := NewScreenInterface(1, 50, false, nil)
	sink := newRecordingSink()
	s.Attach(sink)

	s.SetState(false) // no-op, already off
	if len(sink.sent) != 0 {
		t.Fatalf("sent %d frames for a no-op SetState, want 0", len(sink.sent))
	}

	s.SetState(true)
	if len(sink.sent) != 1 || !s.Displayed() {
		t.Fatalf("sent=%d displayed=%v, want 1 frame and displayed=true", len(sink.sent), s.Displayed())
	}

	s.SetState(false)
	if len(sink.sent) != 2 || s.Displayed() {
		t.Fatalf("sent=%d displayed=%v, want 2 frames and displayed=false", len(sink.sent), s.Displayed())
	}
}
