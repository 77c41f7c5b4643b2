package modules

import (
	"math"
	"testing"
)

func TestTorquePrecomputesSlope(t *testing.T) {
	tq := NewTorqueInterface(1, 100, 900, 500, 1000, nil)

	want := 500 * gCMToNCM / (900 - 100)
	if math.Abs(tq.TorquePerADC()-want) > 1e-12 {
		t.Fatalf("torquePerADC = %v, want %v", tq.TorquePerADC(), want)
	}
}

func TestTorqueFromADCReferencesBaseline(t *testing.T) {
	tq := NewTorqueInterface(1, 100, 900, 500, 1000, nil)

	if got := tq.TorqueFromADC(100); got != 0 {
		t.Fatalf("torque at baseline = %v, want 0", got)
	}
	if got := tq.TorqueFromADC(900); math.Abs(got-500*gCMToNCM) > 1e-9 {
		t.Fatalf("torque at max = %v, want %v", got, 500*gCMToNCM)
	}
}

func TestTorqueHandleEventIgnoresUnknownCode(t *testing.T) {
	tq := NewTorqueInterface(1, 100, 900, 500, 1000, nil)
	// Should not panic on an unrecognized code or a short payload.
	tq.HandleEvent(99, nil, 0)
	tq.HandleEvent(TorqueADCReport, []byte{1}, 0)
}
