package modules

import "testing"

func TestTTLPulseReporterCountsRisingEdgesOnly(t *testing.T) {
	ttl := NewTTLInterface(1, true, nil)

	ttl.HandleEvent(TTLInputHigh, nil, 0)
	ttl.HandleEvent(TTLInputLow, nil, 0)
	ttl.HandleEvent(TTLInputHigh, nil, 0)
	ttl.HandleEvent(TTLOutputHigh, nil, 0)

	if got := ttl.Tracker().Pulses.Load(); got != 2 {
		t.Fatalf("pulses = %d, want 2", got)
	}
}

func TestTTLNonReporterHasNilTracker(t *testing.T) {
	ttl := NewTTLInterface(1, false, nil)
	if ttl.Tracker() != nil {
		t.Fatal("expected nil tracker for a non-pulse-reporter instance")
	}
	// Must not panic even though it sees an InputHigh.
	ttl.HandleEvent(TTLInputHigh, nil, 0)
}

func TestTTLResetPulseCount(t *testing.T) {
	ttl := NewTTLInterface(1, true, nil)
	ttl.HandleEvent(TTLInputHigh, nil, 0)
	ttl.ResetPulseCount()

	if got := ttl.Tracker().Pulses.Load(); got != 0 {
		t.Fatalf("pulses after reset = %d, want 0", got)
	}
}

func TestTTLCommandsSendExpectedFrames(t *testing.T) {
	ttl := NewTTLInterface(1, false, nil)
	sink := newRecordingSink()
	ttl.Attach(sink)

	ttl.SendPulse()
	ttl.Toggle(true)
	ttl.CheckState(500)

	if len(sink.sent) != 3 {
		t.Fatalf("sent %d frames, want 3", len(sink.sent))
	}
	if sink.sent[0].Code != CmdOneOff {
		t.Fatalf("SendPulse code = %d, want CmdOneOff", sink.sent[0].Code)
	}
	if sink.sent[2].Code != CmdRepeated {
		t.Fatalf("CheckState code = %d, want CmdRepeated", sink.sent[2].Code)
	}
}
