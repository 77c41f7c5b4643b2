package modules

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestFitPowerLawRecoversExactCurve(t *testing.T) {
	const wantA, wantB = 0.01, 1.6
	points := []CalibrationPoint{
		{PulseUS: 10, VolumeUL: wantA * math.Pow(10, wantB)},
		{PulseUS: 50, VolumeUL: wantA * math.Pow(50, wantB)},
		{PulseUS: 100, VolumeUL: wantA * math.Pow(100, wantB)},
		{PulseUS: 500, VolumeUL: wantA * math.Pow(500, wantB)},
	}

	v, err := NewValveInterface(1, points, nil)
	if err != nil {
		t.Fatalf("NewValveInterface: %v", err)
	}
	if math.Abs(v.A-wantA) > 1e-6 || math.Abs(v.B-wantB) > 1e-6 {
		t.Fatalf("fit = (%.8f, %.8f), want (%.8f, %.8f)", v.A, v.B, wantA, wantB)
	}
}

func TestFitPowerLawRejectsTooFewPoints(t *testing.T) {
	if _, err := NewValveInterface(1, []CalibrationPoint{{PulseUS: 10, VolumeUL: 1}}, nil); err == nil {
		t.Fatal("expected error with a single calibration point")
	}
}

func calibratedValve(t *testing.T) *ValveInterface {
	t.Helper()
	points := []CalibrationPoint{
		{PulseUS: 10, VolumeUL: 0.05},
		{PulseUS: 50, VolumeUL: 0.5},
		{PulseUS: 100, VolumeUL: 1.2},
		{PulseUS: 500, VolumeUL: 9.0},
	}
	v, err := NewValveInterface(1, points, nil)
	if err != nil {
		t.Fatalf("NewValveInterface: %v", err)
	}
	return v
}

func TestDurationForVolumeInvertsVolumeForDuration(t *testing.T) {
	v := calibratedValve(t)
	const wantDuration = 200.0
	volume := v.VolumeForDuration(wantDuration)

	gotDuration, err := v.DurationForVolume(volume)
	if err != nil {
		t.Fatalf("DurationForVolume: %v", err)
	}
	if math.Abs(gotDuration-wantDuration) > 1e-6 {
		t.Fatalf("duration = %.6f, want %.6f", gotDuration, wantDuration)
	}
}

func TestDurationForVolumeRejectsBelowFloor(t *testing.T) {
	v := calibratedValve(t)
	floorVolume := v.VolumeForDuration(durationFloor)

	if _, err := v.DurationForVolume(floorVolume / 2); !errors.Is(err, ErrVolumeTooSmall) {
		t.Fatalf("err = %v, want ErrVolumeTooSmall", err)
	}
}

func TestHandleEventAccumulatesVolumeOnOpenClose(t *testing.T) {
	v := calibratedValve(t)
	v.HandleEvent(ValveOpened, nil, 0)
	time.Sleep(2 * time.Millisecond)
	v.HandleEvent(ValveClosed, nil, 0)

	if got := v.Tracker().VolumeUL.Load(); got <= 0 {
		t.Fatalf("tracked volume = %v, want > 0 after an open/close cycle", got)
	}
}

func TestHandleEventCloseWithoutOpenIsNoop(t *testing.T) {
	v := calibratedValve(t)
	v.HandleEvent(ValveClosed, nil, 0)

	if got := v.Tracker().VolumeUL.Load(); got != 0 {
		t.Fatalf("tracked volume = %v, want 0 for an unmatched close", got)
	}
}

func TestDeliverRewardRejectsBelowFloor(t *testing.T) {
	v := calibratedValve(t)
	floorVolume := v.VolumeForDuration(durationFloor)

	if err := v.DeliverReward(floorVolume / 2); !errors.Is(err, ErrVolumeTooSmall) {
		t.Fatalf("err = %v, want ErrVolumeTooSmall", err)
	}
}

func TestReferenceValveSendsOneOff(t *testing.T) {
	v := calibratedValve(t)
	sink := newRecordingSink()
	v.Attach(sink)

	if err := v.ReferenceValve(); err != nil {
		t.Fatalf("ReferenceValve: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sink.sent))
	}
	if sink.sent[0].Code != CmdOneOff {
		t.Fatalf("code = %d, want CmdOneOff", sink.sent[0].Code)
	}
}
