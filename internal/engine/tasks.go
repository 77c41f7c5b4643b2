package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/controlui"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
)

// lickRewardVolumeUL is the fixed per-reward volume §4.9's lick training and
// run training controllers both deliver.
const lickRewardVolumeUL = 5.0

// Fixed clamp bounds for the run-training reward thresholds, independent of
// the descriptor's own Initial/Final fields (those are session metadata, not
// formula parameters): speed clamps to [0.1, 5.0] cm/s, duration clamps to
// [50, 5000] ms, regardless of modifiers.
const (
	minSpeedThresholdCMS   = 0.1
	maxSpeedThresholdCMS   = 5.0
	minDurationThresholdMS = 50.0
	maxDurationThresholdMS = 5000.0
)

// RunLickTraining implements §4.9's lick-training controller: a
// pre-generated uniform random delay sequence, bounded by whichever of
// max_time or max_volume is reached first, delivering one 5 uL reward per
// delay.
func (e *Engine) RunLickTraining(fields sessiondata.LickTrainingFields, maxUnconsumedRewards int) {
	delays := generateLickDelays(fields.MinDelayS, fields.MaxDelayS, fields.MaxTimeMin, fields.MaxVolumeML)

	cap := maxUnconsumedRewards
	if cap < 1 {
		cap = len(delays)
	}

	e.SetLickTraining()
	for _, delay := range delays {
		if e.terminated {
			return
		}
		timerStartUS := e.Clock.Now()
		target := delay - e.PausedTimeS()
		for float64(e.Clock.Now()-timerStartUS)/1e6 < target {
			e.RuntimeCycle()
			if e.terminated {
				return
			}
		}
		_, _ = e.ResolveReward(lickRewardVolumeUL, 0, cap)
		e.ResetPausedTime()
	}

	time.Sleep(time.Duration(fields.MaxDelayS * float64(time.Second)))
	e.SetIdle()
}

// generateLickDelays pre-generates a uniform random delay sequence in
// [minDelayS, maxDelayS] whose prefix sum first exceeds
// min(max_time_min*60, floor(max_volume_ml*1000/5)*mean_delay), per §4.9.
func generateLickDelays(minDelayS, maxDelayS, maxTimeMin, maxVolumeML float64) []float64 {
	meanDelay := (minDelayS + maxDelayS) / 2
	maxRewards := math.Floor(maxVolumeML * 1000 / lickRewardVolumeUL)
	bound := math.Min(maxTimeMin*60, maxRewards*meanDelay)

	var delays []float64
	var sum float64
	for sum <= bound {
		d := minDelayS + rand.Float64()*(maxDelayS-minDelayS)
		delays = append(delays, d)
		sum += d
	}
	return delays
}

// RunTraining implements §4.9's run-training controller: an escalating
// speed/duration reward threshold driven by cumulative delivered volume,
// with clamped thresholds and an optional single-dip idle tolerance.
func (e *Engine) RunTraining(fields sessiondata.RunTrainingFields, maxUnconsumedRewards int) {
	e.SetRunTraining()

	trainingDeadlineS := fields.TrainingTimeMin * 60
	maxVolumeUL := fields.MaxVolumeML * 1000

	startUS := e.Clock.Now()
	var aboveThresholdSinceUS uint64
	aboveThreshold := false
	var idleStartUS uint64
	idling := false

	for {
		e.RuntimeCycle()
		if e.terminated {
			return
		}

		elapsedS := float64(e.Clock.Now()-startUS)/1e6 - e.PausedTimeS()
		if elapsedS >= trainingDeadlineS || e.deliveredWaterUL >= maxVolumeUL {
			e.SetIdle()
			return
		}

		steps := math.Floor(e.deliveredWaterUL / fields.IncreaseThresholdUL)
		speedThreshold := clamp(
			fields.InitialSpeedThresholdCMS+steps*fields.SpeedStepCMS+float64(e.uiModifier(controlui.SpeedModifier))*0.01,
			minSpeedThresholdCMS, maxSpeedThresholdCMS,
		)
		durationThresholdMS := int64(clamp(
			float64(fields.InitialDurationThresholdMS)+steps*float64(fields.DurationStepMS)+float64(e.uiModifier(controlui.DurationModifier))*10,
			minDurationThresholdMS, maxDurationThresholdMS,
		))

		if speedThreshold != e.lastPushedSpeedThreshold || durationThresholdMS != e.lastPushedDurationThreshold {
			e.lastPushedSpeedThreshold = speedThreshold
			e.lastPushedDurationThreshold = durationThresholdMS
			if e.Visualizer != nil {
				e.Visualizer.PushThresholds(speedThreshold, durationThresholdMS)
			}
		}

		now := e.Clock.Now()
		if e.runningSpeedCMS >= speedThreshold {
			idling = false
			if !aboveThreshold {
				aboveThreshold = true
				aboveThresholdSinceUS = now
			}
		} else if aboveThreshold {
			if !idling {
				idling = true
				idleStartUS = now
			}
			if float64(now-idleStartUS)/1000 > float64(fields.MaxIdleMS) {
				aboveThreshold = false
				idling = false
			}
		}

		if aboveThreshold && float64(now-aboveThresholdSinceUS)/1000 >= float64(durationThresholdMS) {
			_, _ = e.ResolveReward(lickRewardVolumeUL, 0, maxUnconsumedRewards)
			aboveThreshold = false
			idling = false
		}
	}
}

func (e *Engine) uiModifier(index int) int64 {
	if e.UI == nil {
		return 0
	}
	return e.UI.Get(index)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RunExperiment implements §4.9's experiment controller: iterate the
// ordered phase table, applying each phase's runtime/system state and
// lick-guidance parameters for its configured duration.
func (e *Engine) RunExperiment(phases sessiondata.Experiment, maxUnconsumedRewards int) {
	for _, phase := range phases {
		if e.terminated {
			return
		}

		switch phase.SystemStateCode {
		case sessiondata.StateRun:
			e.SetRun(phase.StateCode)
		default:
			e.SetRest(phase.StateCode)
		}
		e.setupLickGuidance(phase.InitialGuidedTrials, phase.FailedThreshold, phase.RecoveryGuidedTrials)

		startUS := e.Clock.Now()
		for float64(e.Clock.Now()-startUS)/1e6-e.PausedTimeS() < phase.DurationS {
			e.RuntimeCycle()
			if e.terminated {
				return
			}
		}
		e.ResetPausedTime()
	}
	e.SetIdle()
}

// RunWindowChecking implements §4.9's window-checking controller: the
// shortened variant that exercises motor setup, mesoscope prep, and the
// descriptor/position snapshots via Startup/Shutdown, but never enters the
// runtime loop at all.
func (e *Engine) RunWindowChecking() {
	e.SetIdle()
}
