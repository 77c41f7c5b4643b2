package engine

import (
	"testing"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/logbus"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/modules"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	bus, err := logbus.New(t.TempDir(), clock.New(), nil)
	if err != nil {
		t.Fatalf("logbus.New: %v", err)
	}
	t.Cleanup(func() { _ = bus.Stop() })
	return New(clock.New(), bus, nil, nil)
}

func TestSetIdleResetsRuntimeStateToZero(t *testing.T) {
	e := newTestEngine(t)
	e.SetRunTraining()
	e.SetIdle()
	if e.State() != sessiondata.StateIdle {
		t.Fatalf("State() = %v, want Idle", e.State())
	}
	if e.currentRuntimeCode != 0 {
		t.Fatalf("currentRuntimeCode = %d, want 0", e.currentRuntimeCode)
	}
}

func TestSetLickTrainingSetsRuntimeActiveSentinel(t *testing.T) {
	e := newTestEngine(t)
	e.SetLickTraining()
	if e.currentRuntimeCode != runtimeActive {
		t.Fatalf("currentRuntimeCode = %d, want %d", e.currentRuntimeCode, runtimeActive)
	}
}

func TestSetRestAndRunAcceptExplicitRuntimeCode(t *testing.T) {
	e := newTestEngine(t)
	e.SetRest(7)
	if e.currentRuntimeCode != 7 {
		t.Fatalf("SetRest: currentRuntimeCode = %d, want 7", e.currentRuntimeCode)
	}
	e.SetRun(9)
	if e.currentRuntimeCode != 9 {
		t.Fatalf("SetRun: currentRuntimeCode = %d, want 9", e.currentRuntimeCode)
	}
}

func TestTransitionMatrixDrivesHardwareState(t *testing.T) {
	e := newTestEngine(t)
	brake := modules.NewBrakeInterface(3, 1.0, 10.0, 6.0, nil)
	screen := modules.NewScreenInterface(7, 50000, false, nil)
	e.Hardware.Brake = brake
	e.Hardware.Screen = screen

	e.SetRun(0)
	if screen.Displayed() != true {
		t.Fatal("Run state: expected screens on")
	}

	e.SetIdle()
	if screen.Displayed() != false {
		t.Fatal("Idle state: expected screens off")
	}
}

func TestResolveRewardDeliversUntilCapThenSimulates(t *testing.T) {
	e := newTestEngine(t)
	valve, err := modules.NewValveInterface(5, []modules.CalibrationPoint{
		{PulseUS: 10, VolumeUL: 1},
		{PulseUS: 100, VolumeUL: 5},
		{PulseUS: 1000, VolumeUL: 20},
	}, nil)
	if err != nil {
		t.Fatalf("NewValveInterface: %v", err)
	}
	e.Hardware.Valve = valve

	delivered, err := e.ResolveReward(5, 100, 2)
	if err != nil {
		t.Fatalf("ResolveReward (1st): %v", err)
	}
	if !delivered {
		t.Fatal("expected 1st reward delivered")
	}

	delivered, err = e.ResolveReward(5, 100, 2)
	if err != nil {
		t.Fatalf("ResolveReward (2nd): %v", err)
	}
	if !delivered {
		t.Fatal("expected 2nd reward delivered (count 1 < cap 2)")
	}

	delivered, err = e.ResolveReward(5, 100, 2)
	if err != nil {
		t.Fatalf("ResolveReward (3rd): %v", err)
	}
	if delivered {
		t.Fatal("expected 3rd reward simulated, count 2 not < cap 2")
	}
}

func TestResolveRewardCapDisabledBelowOne(t *testing.T) {
	e := newTestEngine(t)
	valve, err := modules.NewValveInterface(5, []modules.CalibrationPoint{
		{PulseUS: 10, VolumeUL: 1},
		{PulseUS: 100, VolumeUL: 5},
	}, nil)
	if err != nil {
		t.Fatalf("NewValveInterface: %v", err)
	}
	e.Hardware.Valve = valve

	for i := 0; i < 5; i++ {
		delivered, err := e.ResolveReward(2, 100, 0)
		if err != nil {
			t.Fatalf("ResolveReward iter %d: %v", i, err)
		}
		if !delivered {
			t.Fatalf("iter %d: expected delivery with cap disabled", i)
		}
	}
}

func TestSetupLickGuidanceResetsEveryCall(t *testing.T) {
	e := newTestEngine(t)
	e.failedTrials = 3
	e.guidedTrialsRemaining = 1

	e.setupLickGuidance(5, 2, 3)

	if e.failedTrials != 0 {
		t.Fatalf("failedTrials = %d, want reset to 0", e.failedTrials)
	}
	if e.guidedTrialsRemaining != 5 {
		t.Fatalf("guidedTrialsRemaining = %d, want 5", e.guidedTrialsRemaining)
	}
	if !e.guidanceEnabled {
		t.Fatal("expected guidance enabled when initialGuided > 0")
	}
}
