package engine

import (
	"fmt"
	"math"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/controlui"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/logbus"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/mcu"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/modules"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/motors"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/preprocess"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/unity"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/video"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/visualizer"
)

// Engine-source log record codes, per §4.8.g.
const (
	RecordSystemState      uint8 = 1
	RecordRuntimeState     uint8 = 2
	RecordGuidanceState    uint8 = 3
	RecordShowReward       uint8 = 4
	RecordDistanceSnapshot uint8 = 5
)

// runtimeActive is the runtime_state value written on entering
// LickTraining/RunTraining, per §4.8.f.
const runtimeActive uint8 = 255

// mesoscopeFrameDelayMS is the watchdog window from §4.8.d / §7: the
// mesoscope cycle trips if no new pulse lands within this many ms.
const mesoscopeFrameDelayMS = 300

// speedSampleIntervalMS is the data-cycle's minimum interval between running
// speed recomputations, per §4.8.a ("every >= 50 ms of wall time").
const speedSampleIntervalMS = 50

// Hardware bundles every module interface the engine drives directly. Some
// fields are nil depending on session type (e.g. MesoscopeTTL is nil for
// non-imaging sessions).
type Hardware struct {
	Encoder      *modules.EncoderInterface
	Lick         *modules.LickInterface
	Valve        *modules.ValveInterface
	Brake        *modules.BrakeInterface
	Torque       *modules.TorqueInterface
	Screen       *modules.ScreenInterface
	MesoscopeTTL *modules.TTLInterface
}

// Channels bundles the three microcontroller channels, per §4.3.
type Channels struct {
	Actor   *mcu.Channel
	Sensor  *mcu.Channel
	Encoder *mcu.Channel
}

func (c Channels) all() []*mcu.Channel {
	return []*mcu.Channel{c.Actor, c.Sensor, c.Encoder}
}

// Engine is the session runtime engine, §4.8's "core" of this specification:
// it exclusively owns every interface, channel, subprocess handle, and piece
// of mutable session state for one session.
type Engine struct {
	Clock  *clock.Clock
	Bus    *logbus.LogBus
	Log    clock.Logger
	Prompt Prompt

	Channels   Channels
	Hardware   Hardware
	Motors     *motors.Group
	Preprocess *preprocess.Pipeline
	Unity      *unity.Bridge
	UI               *controlui.Vector
	Visualizer       *visualizer.Hub
	VisualizerServer *visualizer.Server
	Video            *video.Group

	// LogBusDir is the directory the engine's LogBus was constructed with —
	// the raw per-source shard staging area preprocessing step 2 archives
	// into Layout.BehaviorLog.
	LogBusDir string

	Identity             sessiondata.SessionIdentity
	Layout               sessiondata.FilesystemLayout
	Descriptor           sessiondata.Descriptor
	HardwareState        sessiondata.HardwareState
	ZaberPositions       sessiondata.ZaberPositions
	MesoscopePositions   sessiondata.MesoscopePositions
	TrialStructure       *sessiondata.TrialStructure
	CueSequence          sessiondata.VrCueSequence
	MaxUnconsumedRewards int

	usesUnity     bool
	usesMesoscope bool

	// Engine-local mutable state, per §3's "Engine-local mutable state" list.
	state              sessiondata.SystemState
	preState           sessiondata.SystemState
	preRuntimeCode     uint8
	currentRuntimeCode uint8

	lastDistanceCM   float64
	lastPositionUnit float64
	lastSpeedSampleT uint64

	lastLickCount uint64

	deliveredWaterUL      float64
	pausedWaterUL         float64
	unconsumedRewardCount int

	guidanceEnabled  bool
	showRewardMarker bool

	completedTrials       int
	failedTrials          int
	guidedTrialsRemaining int
	failedThreshold       int
	recoveryTrials        int
	trialRewarded         bool

	runningSpeedCMS float64

	paused              bool
	unityTerminated     bool
	mesoscopeTerminated bool
	terminated          bool
	startupFailed       bool

	pausedTimeS  float64
	pauseStartUS uint64

	lastMesoscopeCheckT uint64
	lastMesoscopePulses uint64

	lastPushedSpeedThreshold    float64
	lastPushedDurationThreshold int64
}

// New constructs an Engine wired to already-built collaborators. Hardware,
// channels, and the optional Unity bridge/mesoscope TTL interface are
// assigned onto the returned Engine by the caller before Startup (cmd/sl-run
// does this in wireHardware), since the caller knows the session type and
// therefore which subsystems apply.
func New(clk *clock.Clock, bus *logbus.LogBus, log clock.Logger, prompt Prompt) *Engine {
	return &Engine{
		Clock:  clk,
		Bus:    bus,
		Log:    log,
		Prompt: prompt,
		state:  sessiondata.StateIdle,
	}
}

// UsesUnity reports whether this session drives the Unity bridge.
func (e *Engine) UsesUnity() bool { return e.usesUnity }

// SetUsesUnity marks the session as Unity-driven (or not), set once during
// startup based on session type.
func (e *Engine) SetUsesUnity(v bool) { e.usesUnity = v }

// UsesMesoscope reports whether this session arms the mesoscope.
func (e *Engine) UsesMesoscope() bool { return e.usesMesoscope }

// SetUsesMesoscope marks the session as mesoscope-driven (or not).
func (e *Engine) SetUsesMesoscope(v bool) { e.usesMesoscope = v }

// State returns the current system state.
func (e *Engine) State() sessiondata.SystemState { return e.state }

// Terminated reports whether the task loop should stop.
func (e *Engine) Terminated() bool { return e.terminated }

// SetStartupFailed records that Startup returned an error before any task
// controller ran, so Shutdown knows this was not a graceful stop even though
// e.terminated was never set by a task loop.
func (e *Engine) SetStartupFailed() { e.startupFailed = true }

// Paused reports whether the engine is currently paused.
func (e *Engine) Paused() bool { return e.paused }

// PausedTimeS returns the accumulated pause duration since the last reset,
// consumed by task controllers to offset their timers (§4.9).
func (e *Engine) PausedTimeS() float64 { return e.pausedTimeS }

// ResetPausedTime zeroes the pause accumulator, called by task controllers
// between task phases (§4.9's "Clear engine.paused_time between states").
func (e *Engine) ResetPausedTime() { e.pausedTimeS = 0 }

// DeliveredWaterUL returns the cumulative volume delivered outside of pause.
func (e *Engine) DeliveredWaterUL() float64 { return e.deliveredWaterUL }

// ------------------------------------------------------------------------
// Log-bus helpers
// ------------------------------------------------------------------------

func (e *Engine) logByte(code uint8, value uint8) {
	e.Bus.Put(logbus.EngineSourceID, e.Clock.Now(), []byte{code, value})
}

func (e *Engine) logDistanceSnapshot(distanceCM float64) {
	payload := make([]byte, 9)
	payload[0] = RecordDistanceSnapshot
	putFloat64LE(payload[1:], distanceCM)
	e.Bus.Put(logbus.EngineSourceID, e.Clock.Now(), payload)
}

func putFloat64LE(b []byte, v float64) {
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * i))
	}
}

// ------------------------------------------------------------------------
// System-state transitions, per §4.8.f
// ------------------------------------------------------------------------

// transitionTo applies the hardware transition matrix for the target state,
// then writes the mandatory RUNTIME_STATE-then-SYSTEM_STATE log pair
// (testable property 6).
func (e *Engine) transitionTo(target sessiondata.SystemState, runtimeCode uint8) {
	e.preState = e.state
	e.state = target
	e.currentRuntimeCode = runtimeCode
	e.applyTransitionMatrix(target)

	e.logByte(RecordRuntimeState, runtimeCode)
	e.logByte(RecordSystemState, uint8(target))
}

func (e *Engine) applyTransitionMatrix(target sessiondata.SystemState) {
	screens, brakeEngaged, encoderMon, torqueMon, lickMon := transitionRow(target)

	if e.Hardware.Screen != nil {
		e.Hardware.Screen.SetState(screens)
	}
	if e.Hardware.Brake != nil {
		e.Hardware.Brake.SetState(brakeEngaged)
	}
	if e.Hardware.Encoder != nil {
		if encoderMon {
			e.Hardware.Encoder.EnableMonitoring()
		} else {
			e.Hardware.Encoder.DisableMonitoring()
		}
	}
	if e.Hardware.Torque != nil {
		if torqueMon {
			e.Hardware.Torque.EnableMonitoring()
		} else {
			e.Hardware.Torque.DisableMonitoring()
		}
	}
	if e.Hardware.Lick != nil {
		if lickMon {
			e.Hardware.Lick.EnableMonitoring()
		} else {
			e.Hardware.Lick.DisableMonitoring()
		}
	}
}

// transitionRow returns (screens, brakeEngaged, encoderMonitoring,
// torqueMonitoring, lickMonitoring) for a target state, per the transition
// matrix table in §4.8.f.
func transitionRow(state sessiondata.SystemState) (screens, brakeEngaged, encoderMon, torqueMon, lickMon bool) {
	switch state {
	case sessiondata.StateIdle:
		return false, true, false, false, false
	case sessiondata.StateRest:
		return false, true, false, true, true
	case sessiondata.StateRun:
		return true, false, true, false, true
	case sessiondata.StateLickTraining:
		return false, true, false, true, true
	case sessiondata.StateRunTraining:
		return false, false, true, false, true
	default:
		return false, true, false, false, false
	}
}

// SetIdle transitions to Idle, resetting runtime_state to 0 per §4.8.f.
func (e *Engine) SetIdle() { e.transitionTo(sessiondata.StateIdle, 0) }

// SetLickTraining transitions to LickTraining, setting runtime_state to 255
// (active) per §4.8.f.
func (e *Engine) SetLickTraining() { e.transitionTo(sessiondata.StateLickTraining, runtimeActive) }

// SetRunTraining transitions to RunTraining, setting runtime_state to 255.
func (e *Engine) SetRunTraining() { e.transitionTo(sessiondata.StateRunTraining, runtimeActive) }

// SetRest transitions to Rest with the given explicit runtime_state code
// (the experiment controller supplies its own phase code here).
func (e *Engine) SetRest(runtimeCode uint8) { e.transitionTo(sessiondata.StateRest, runtimeCode) }

// SetRun transitions to Run with the given explicit runtime_state code.
func (e *Engine) SetRun(runtimeCode uint8) { e.transitionTo(sessiondata.StateRun, runtimeCode) }

// ------------------------------------------------------------------------
// Guidance / reward-marker mirroring
// ------------------------------------------------------------------------

// SetGuidance updates the cached guidance flag, writes the GUIDANCE_STATE
// log record, mirrors it to the UI vector, and (if Unity is in play)
// publishes the MustLick topic.
func (e *Engine) SetGuidance(enabled bool) {
	e.guidanceEnabled = enabled
	e.logByte(RecordGuidanceState, boolByte(enabled))
	if e.UI != nil {
		e.UI.SetGuidanceEnabled(enabled)
	}
	if e.usesUnity && e.Unity != nil {
		if err := e.Unity.SetGuidance(enabled); err != nil && e.Log != nil {
			e.Log.Printf("engine: publish guidance state: %v", err)
		}
	}
}

// SetShowRewardMarker updates the cached reward-zone-visible flag, writes
// the SHOW_REWARD log record, and mirrors it to Unity.
func (e *Engine) SetShowRewardMarker(visible bool) {
	e.showRewardMarker = visible
	e.logByte(RecordShowReward, boolByte(visible))
	if e.usesUnity && e.Unity != nil {
		if err := e.Unity.SetRewardMarkerVisible(visible); err != nil && e.Log != nil {
			e.Log.Printf("engine: publish reward marker visibility: %v", err)
		}
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// ------------------------------------------------------------------------
// Reward resolution, per §4.8.e
// ------------------------------------------------------------------------

// DeliverReward increments the unconsumed-reward count, issues a valve pulse
// for the volume (a one-off command without a blocking flag), and schedules
// a visualizer valve tick.
func (e *Engine) DeliverReward(volumeUL float64) error {
	e.unconsumedRewardCount++
	if e.Hardware.Valve == nil {
		return fmt.Errorf("engine: no valve interface wired")
	}
	if err := e.Hardware.Valve.DeliverReward(volumeUL); err != nil {
		return err
	}
	if e.Visualizer != nil {
		e.Visualizer.PushValveTick(volumeUL)
	}
	return nil
}

// SimulateReward fires the audible tone without opening the valve. No
// hardware module in §4.2's roster owns a buzzer/tone output, so this is
// modeled as an engine-local event: it neither actuates the valve nor
// requires a dedicated interface, matching the spec's "without opening the
// valve" wording literally.
func (e *Engine) SimulateReward(toneMS int64) {
	if e.Log != nil {
		e.Log.Printf("engine: simulated reward tone (%d ms), valve not actuated", toneMS)
	}
}

// ResolveReward delivers a real reward if the unconsumed-reward cap allows
// it, otherwise simulates one, per §4.8.e. maxUnconsumed < 1 disables the
// cap entirely (testable property: boundary behaviors).
func (e *Engine) ResolveReward(volumeUL float64, toneMS int64, maxUnconsumed int) (bool, error) {
	if maxUnconsumed < 1 || e.unconsumedRewardCount < maxUnconsumed {
		if err := e.DeliverReward(volumeUL); err != nil {
			return false, err
		}
		return true, nil
	}
	e.SimulateReward(toneMS)
	return false, nil
}

// setupLickGuidance applies a phase's guidance parameters, per §4.9's
// experiment controller and the Open Question note that per-state recovery
// settings reset guided_trials_remaining on every call (matching the
// source's setup_lick_guidance behavior, per DESIGN NOTES §9's guidance on
// resolving the ambiguity in the recovery_trials branch).
func (e *Engine) setupLickGuidance(initialGuided, failedThreshold, recoveryGuided int) {
	e.failedTrials = 0
	e.failedThreshold = failedThreshold
	e.recoveryTrials = recoveryGuided
	e.guidedTrialsRemaining = initialGuided
	e.SetGuidance(initialGuided > 0)
}
