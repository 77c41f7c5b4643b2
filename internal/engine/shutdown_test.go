package engine

import (
	"testing"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
)

func TestUpdateDescriptorOnStopWritesBackFinalThresholds(t *testing.T) {
	e := newTestEngine(t)
	e.Descriptor.RunTraining = &sessiondata.RunTrainingFields{
		InitialSpeedThresholdCMS:   1,
		FinalSpeedThresholdCMS:     0,
		InitialDurationThresholdMS: 100,
		FinalDurationThresholdMS:   0,
	}
	e.lastPushedSpeedThreshold = 3.5
	e.lastPushedDurationThreshold = 1200

	e.updateDescriptorOnStop()

	if e.Descriptor.RunTraining.FinalSpeedThresholdCMS != 3.5 {
		t.Fatalf("FinalSpeedThresholdCMS = %v, want 3.5 (the last value pushed to the visualizer)", e.Descriptor.RunTraining.FinalSpeedThresholdCMS)
	}
	if e.Descriptor.RunTraining.FinalDurationThresholdMS != 1200 {
		t.Fatalf("FinalDurationThresholdMS = %v, want 1200", e.Descriptor.RunTraining.FinalDurationThresholdMS)
	}
}

func TestUpdateDescriptorOnStopClearsIncompleteOnGracefulStop(t *testing.T) {
	e := newTestEngine(t)
	e.Descriptor.Common.Incomplete = true

	e.updateDescriptorOnStop()

	if e.Descriptor.Common.Incomplete {
		t.Fatal("expected Incomplete to clear on a graceful stop")
	}
}

func TestUpdateDescriptorOnStopLeavesIncompleteOnStartupFailure(t *testing.T) {
	e := newTestEngine(t)
	e.Descriptor.Common.Incomplete = true
	e.SetStartupFailed()

	e.updateDescriptorOnStop()

	if !e.Descriptor.Common.Incomplete {
		t.Fatal("expected Incomplete to stay true when Startup failed, even though no task controller ever set terminated")
	}
}
