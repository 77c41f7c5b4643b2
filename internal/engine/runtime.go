package engine

import (
	"time"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/controlui"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/preprocess"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/unity"
)

// idleLoopDelay paces the self-loop while paused so it does not spin the
// engine's single OS thread, per §5's "the cycle itself never blocks beyond
// the visualizer's internal pacing" — the self-loop while paused is the one
// deliberate exception, kept short enough to feel synchronous to the UI.
const idleLoopDelay = 10 * time.Millisecond

// cueSequenceTimeout bounds the startup and post-restart cue-sequence
// round trip to Unity (§4.8: "Cue-sequence request has a 10 s timeout").
const cueSequenceTimeout = 10 * time.Second

// RuntimeCycle runs the seven numbered steps of §4.8's "Runtime cycle"
// exactly once per call from the caller's perspective, but self-loops while
// paused (step 7) so callers never need their own pause-polling logic.
func (e *Engine) RuntimeCycle() {
	for {
		e.dataCycle()
		// Step 2, visualizer update, is rate-limited inside Hub/client
		// already (internal/visualizer); the data cycle's own pushes above
		// satisfy it, so no separate tick is needed here.
		e.uiCycle()

		if e.terminated {
			return
		}
		if e.usesUnity {
			e.unityCycle()
		}
		if e.usesMesoscope {
			e.mesoscopeCycle()
		}

		if !e.paused {
			return
		}
		time.Sleep(idleLoopDelay)
	}
}

// dataCycle implements §4.8.a.
func (e *Engine) dataCycle() {
	if e.Hardware.Encoder == nil {
		return
	}
	distanceNow, positionNow := e.Hardware.Encoder.Tracker().Read()

	now := e.Clock.Now()
	if now-e.lastSpeedSampleT >= speedSampleIntervalMS*1000 {
		e.runningSpeedCMS = (distanceNow - e.lastDistanceCM) * 10
		e.lastDistanceCM = distanceNow
		e.lastSpeedSampleT = now
		if e.Visualizer != nil {
			e.Visualizer.PushSpeed(e.runningSpeedCMS)
		}
	}

	if e.usesUnity {
		e.dataCycleUnity(distanceNow, positionNow)
	}

	e.dataCycleLick()
	e.dataCycleVolume()
}

func (e *Engine) dataCycleUnity(distanceNow, positionNow float64) {
	delta := positionNow - e.lastPositionUnit
	if delta != 0 {
		e.lastPositionUnit = positionNow
		if e.Unity != nil {
			if err := e.Unity.PublishMovement(delta); err != nil && e.Log != nil {
				e.Log.Printf("engine: publish movement: %v", err)
			}
		}
	}

	if e.TrialStructure == nil || e.completedTrials >= len(e.TrialStructure.CumulativeDistanceCM) {
		return
	}
	if distanceNow > e.TrialStructure.CumulativeDistanceCM[e.completedTrials] {
		e.completedTrials++
		if !e.trialRewarded {
			e.failedTrials++
		} else {
			e.failedTrials = 0
		}
		e.trialRewarded = false

		if e.failedTrials >= e.failedThreshold && e.recoveryTrials > 0 {
			e.failedTrials = 0
			e.guidedTrialsRemaining = e.recoveryTrials
			e.SetGuidance(true)
		}
	}
}

func (e *Engine) dataCycleLick() {
	if e.Hardware.Lick == nil {
		return
	}
	count := e.Hardware.Lick.Tracker().Licks.Load()
	if count <= e.lastLickCount {
		return
	}
	e.lastLickCount = count
	e.unconsumedRewardCount = 0

	if e.Visualizer != nil {
		e.Visualizer.PushLickTick(count)
	}
	if e.usesUnity && e.Unity != nil {
		if err := e.Unity.PublishLick(); err != nil && e.Log != nil {
			e.Log.Printf("engine: publish lick: %v", err)
		}
	}
}

func (e *Engine) dataCycleVolume() {
	if e.Hardware.Valve == nil {
		return
	}
	total := e.Hardware.Valve.Tracker().VolumeUL.Load()
	dispensedNow := total - (e.pausedWaterUL + e.deliveredWaterUL)
	if dispensedNow <= 0 {
		return
	}
	if e.paused {
		e.pausedWaterUL += dispensedNow
	} else {
		e.deliveredWaterUL += dispensedNow
	}
}

// uiCycle implements §4.8.b.
func (e *Engine) uiCycle() {
	if e.UI == nil {
		return
	}

	pausedNow := e.UI.Paused()
	if pausedNow && !e.paused {
		e.pauseRuntime()
	} else if !pausedNow && e.paused {
		e.resumeRuntime()
	}

	if e.UI.TakeOneShot(controlui.Termination) {
		// The UI process reports it has closed; treat as a user-requested
		// abort identical to a confirmed exit signal.
		e.terminated = true
	}

	e.handleExitSignal()
	e.handleRewardSignal()
	e.mirrorGuidanceAndRewardMarker()
}

func (e *Engine) handleExitSignal() {
	if !e.UI.TakeOneShot(controlui.ExitSignal) {
		return
	}
	if e.Prompt == nil {
		e.terminated = true
		return
	}
	confirmed, err := e.Prompt.AskYesNo("Operator requested exit. Confirm graceful stop?")
	if err != nil && e.Log != nil {
		e.Log.Printf("engine: exit confirmation prompt: %v", err)
	}
	if confirmed {
		e.terminated = true
	}
}

func (e *Engine) handleRewardSignal() {
	if !e.UI.TakeOneShot(controlui.RewardSignal) {
		return
	}
	volumeUL := float64(e.UI.Get(controlui.RewardVolume))

	// Manual reward bypasses the unconsumed-reward cap outright (§4.8.b);
	// while paused it additionally must not count against the cap, so the
	// counter is restored immediately after delivery in that case.
	wasPaused := e.paused
	before := e.unconsumedRewardCount
	if err := e.DeliverReward(volumeUL); err != nil && e.Log != nil {
		e.Log.Printf("engine: manual reward delivery: %v", err)
		return
	}
	if wasPaused {
		e.unconsumedRewardCount = before
	}
}

func (e *Engine) mirrorGuidanceAndRewardMarker() {
	if uiGuidance := e.UI.GuidanceIsEnabled(); uiGuidance != e.guidanceEnabled {
		e.SetGuidance(uiGuidance)
	}
	if uiShow := e.UI.Get(controlui.ShowReward) != 0; uiShow != e.showRewardMarker {
		e.SetShowRewardMarker(uiShow)
	}
}

func (e *Engine) pauseRuntime() {
	e.pauseStartUS = e.Clock.Now()
	resumeState := e.state
	resumeCode := e.currentRuntimeCode
	e.SetIdle()
	e.preState = resumeState
	e.preRuntimeCode = resumeCode
	e.paused = true
	if e.UI != nil {
		e.UI.SetPaused(true)
	}
}

func (e *Engine) resumeRuntime() {
	if e.unityTerminated {
		e.requeryCueSequence()
		e.unityTerminated = false
	}
	if e.mesoscopeTerminated {
		e.rearmMesoscope()
	}

	e.pausedTimeS += float64(e.Clock.Now()-e.pauseStartUS) / 1e6
	e.paused = false

	switch e.preState {
	case sessiondata.StateRest:
		e.SetRest(e.preRuntimeCode)
	case sessiondata.StateRun:
		e.SetRun(e.preRuntimeCode)
	case sessiondata.StateLickTraining:
		e.SetLickTraining()
	case sessiondata.StateRunTraining:
		e.SetRunTraining()
	default:
		e.SetIdle()
	}

	if e.UI != nil {
		e.UI.SetPaused(false)
	}
}

func (e *Engine) requeryCueSequence() {
	if e.Unity == nil {
		return
	}
	cues, err := e.Unity.RequestCueSequence(cueSequenceTimeout)
	if err != nil {
		if e.Log != nil {
			e.Log.Printf("engine: re-query cue sequence: %v", err)
		}
		return
	}
	e.CueSequence = cues
}

func (e *Engine) rearmMesoscope() {
	if e.Prompt != nil {
		e.Prompt.Echo("Mesoscope stopped emitting frame triggers. Restart acquisition on the ScanImage PC, then continue.")
		_ = e.Prompt.WaitForEnter("Ready to resume")
	}
	if e.Layout.MesoscopeShared != "" {
		_ = preprocess.ClearMesoscopeMarkers(e.Layout.MesoscopeShared)
	}
	e.mesoscopeTerminated = false
}

// unityCycle implements §4.8.c, draining at most one message.
func (e *Engine) unityCycle() {
	if e.Unity == nil || !e.Unity.HasData() {
		return
	}
	msg, ok := e.Unity.GetData()
	if !ok {
		return
	}

	switch msg.Topic {
	case unity.TopicReward:
		volumeUL, toneMS := e.currentTrialReward()
		_, err := e.ResolveReward(volumeUL, toneMS, e.MaxUnconsumedRewards)
		if err != nil && e.Log != nil {
			e.Log.Printf("engine: resolve reward: %v", err)
		}
		if e.guidedTrialsRemaining > 0 {
			e.guidedTrialsRemaining--
		}
		if e.guidedTrialsRemaining == 0 {
			e.SetGuidance(false)
		}
		e.trialRewarded = true

	case unity.TopicSessionStop:
		if e.paused {
			return
		}
		e.unityTerminated = true
		var distanceNow float64
		if e.Hardware.Encoder != nil {
			distanceNow, _ = e.Hardware.Encoder.Tracker().Read()
		}
		e.pauseRuntime()
		e.logDistanceSnapshot(distanceNow)
		if e.Prompt != nil {
			e.Prompt.Echo("Unity exited play mode; session paused awaiting operator.")
		}
	}
}

// currentTrialReward returns the reward volume/tone for the trial currently
// in progress (index completedTrials, so trial 0 before any completion; the
// last trial once every trial has completed).
func (e *Engine) currentTrialReward() (volumeUL float64, toneMS int64) {
	if e.TrialStructure == nil || len(e.TrialStructure.RewardSchedule) == 0 {
		return 0, 0
	}
	idx := e.completedTrials
	if idx >= len(e.TrialStructure.RewardSchedule) {
		idx = len(e.TrialStructure.RewardSchedule) - 1
	}
	spec := e.TrialStructure.RewardSchedule[idx]
	return spec.VolumeUL, spec.ToneMS
}

// mesoscopeCycle implements §4.8.d.
func (e *Engine) mesoscopeCycle() {
	if e.Hardware.MesoscopeTTL == nil {
		return
	}
	now := e.Clock.Now()
	if now-e.lastMesoscopeCheckT < mesoscopeFrameDelayMS*1000 {
		return
	}

	pulses := e.Hardware.MesoscopeTTL.Tracker().Pulses.Load()
	if pulses > e.lastMesoscopePulses {
		e.lastMesoscopePulses = pulses
		e.lastMesoscopeCheckT = now
		return
	}

	e.mesoscopeTerminated = true
	e.pauseRuntime()
	if e.Layout.MesoscopeShared != "" {
		_ = preprocess.ClearMesoscopeMarkers(e.Layout.MesoscopeShared)
	}
}
