package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/controlui"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/decompose"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/preprocess"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
)

// minLogicalCores is the startup gate from §4.8 step 1: 3 channels, 1 log
// bus, 4 video (2 pipelines x producer/consumer), 1 engine, 1 UI.
const minLogicalCores = 10

// mesoscopeArmRetries is the bound on declined start_mesoscope() retries
// before aborting, per §4.8 and §7's "bounded retries (5 for file checks)".
const mesoscopeArmRetries = 5

// mesoscopeZeroPulseWait is the quiet period start_mesoscope() waits before
// asserting no pulses have landed yet.
const mesoscopeZeroPulseWait = 1 * time.Second

// mesoscopeArmTimeout bounds each poll-for-pulses attempt.
const mesoscopeArmTimeout = 5 * time.Second

// mesoscopeArmPulseTarget is the pulse count start_mesoscope() waits for
// before declaring acquisition live.
const mesoscopeArmPulseTarget = 10

// requiredMesoscopeFiles must be present in the shared landing zone before
// the engine arms acquisition, per §6.
var requiredMesoscopeFiles = []string{"MotionEstimator.me", "fov.roi", "zstack_00000_00001.tif"}

// StartupOptions carries everything the eleven-step startup sequence needs
// beyond what is already wired onto the Engine: the trial vocabulary for
// Unity sessions, the raw experiment configuration bytes to snapshot
// alongside the session, and whether this is the first mesoscope session
// (which clears stray TIFFs on the first arm attempt).
type StartupOptions struct {
	TrialDefinitions   []sessiondata.TrialDefinition
	ExperimentConfig   []byte
	FirstMesoscopeSession bool
}

// Startup runs the eleven-step sequence from §4.8. It assumes every
// collaborator the step needs (Hardware, Channels, Motors, Unity, UI,
// Visualizer, Video, Identity, Layout, Descriptor, HardwareState) has
// already been assigned on the Engine by the caller, the way a CLI entry
// point wires hardware from config.EngineConfig before calling this.
func (e *Engine) Startup(ctx context.Context, opts StartupOptions) error {
	// Step 1: core-count gate.
	if n := runtime.NumCPU(); n < minLogicalCores {
		return fmt.Errorf("engine: host has %d logical cores, need at least %d", n, minLogicalCores)
	}

	if err := preprocess.MarkInitializing(e.Layout.RawData); err != nil {
		return fmt.Errorf("engine: mark initializing: %w", err)
	}

	// Step 2: cache an unvalidated descriptor precursor so a crash still
	// leaves a recoverable record.
	if err := sessiondata.SaveIdentity(e.Layout.RawData, e.Identity); err != nil {
		return fmt.Errorf("engine: cache identity: %w", err)
	}
	if err := sessiondata.SaveDescriptor(e.Layout.RawData, e.Descriptor); err != nil {
		return fmt.Errorf("engine: cache descriptor precursor: %w", err)
	}

	// Step 3: onset.
	e.Bus.Onset()
	e.Clock.Reset()

	// Step 4: start channels, go Idle, snapshot HardwareState.
	for _, ch := range e.Channels.all() {
		if ch == nil {
			continue
		}
		if err := ch.Start(); err != nil {
			return fmt.Errorf("engine: start channel %s: %w", ch.Name, err)
		}
	}
	e.SetIdle()
	if err := sessiondata.SaveHardwareState(e.Layout.RawData, e.HardwareState); err != nil {
		return fmt.Errorf("engine: snapshot hardware state: %w", err)
	}

	// Step 5: Unity wiring.
	if e.usesUnity {
		if err := e.startupUnity(opts.TrialDefinitions); err != nil {
			return err
		}
	}

	// Step 6: cameras, acquisition only.
	if e.Video != nil {
		e.Video.StartAcquisition()
	}

	// Step 7: Zaber setup, snapshot to disk immediately.
	if e.Motors != nil {
		if err := e.Motors.PrepareMotors(ctx); err != nil {
			return fmt.Errorf("engine: prepare motors: %w", err)
		}
		e.Motors.MountPosition()
		e.Motors.RestorePosition()
		e.ZaberPositions = e.Motors.GenerateSnapshot()
		if err := sessiondata.SaveZaberPositions(e.Layout.RawData, e.ZaberPositions); err != nil {
			return fmt.Errorf("engine: snapshot zaber positions: %w", err)
		}
	}

	// Step 8: experiment YAML snapshot, then the mesoscope prep ritual.
	if e.Descriptor.Type == sessiondata.SessionExperiment {
		if err := sessiondata.SaveExperimentConfig(e.Layout.RawData, opts.ExperimentConfig); err != nil {
			return fmt.Errorf("engine: snapshot experiment configuration: %w", err)
		}
	}
	if e.usesMesoscope {
		if err := e.mesoscopePrepRitual(opts.FirstMesoscopeSession); err != nil {
			return err
		}
	}

	// Step 9: UI and Visualizer. Both are already constructed and their
	// background goroutines already running by the time they are assigned to
	// the Engine (controlui.New/visualizer.New start nothing further); a
	// VisualizerServer, if present, is told to begin serving here.
	if e.VisualizerServer != nil {
		e.VisualizerServer.Start()
	}

	// Step 10: checkpoint. Service manual valve/reward/guidance requests
	// while the UI holds pause_state set; the operator exits by pressing
	// Resume.
	e.checkpointLoop()

	// Step 11: begin saving, arm the mesoscope.
	if e.Video != nil {
		e.Video.EnableSaving()
	}
	if e.usesMesoscope {
		e.Hardware.MesoscopeTTL.CheckState(mesoscopeFrameDelayMS * 1000)
		if err := e.startMesoscope(opts.FirstMesoscopeSession); err != nil {
			return err
		}
	}

	if err := preprocess.ClearInitializing(e.Layout.RawData); err != nil {
		return fmt.Errorf("engine: clear initializing marker: %w", err)
	}
	return nil
}

func (e *Engine) startupUnity(definitions []sessiondata.TrialDefinition) error {
	if e.Prompt != nil {
		e.Prompt.Echo("Verify the Unity scene matches the session configuration.")
		if name, err := e.Unity.RequestSceneName(cueSequenceTimeout); err == nil {
			e.Prompt.Echo("Unity reports scene %q.", name)
		}
		_ = e.Prompt.WaitForEnter("Press enter once the scene is confirmed")
	}

	cues, err := e.Unity.RequestCueSequence(cueSequenceTimeout)
	if err != nil {
		return fmt.Errorf("engine: cue sequence request: %w", err)
	}
	e.CueSequence = cues

	motifs := make([]decompose.Motif, len(definitions))
	for i, d := range definitions {
		motifs[i] = decompose.Motif{Cues: d.CueMotif, Distance: d.LengthCM}
	}
	result, err := decompose.Decompose(cues, motifs)
	if err != nil {
		return fmt.Errorf("engine: decompose cue sequence: %w", err)
	}
	ts, err := sessiondata.NewTrialStructure(definitions, result.TrialIndices, result.CumulativeDistances)
	if err != nil {
		return fmt.Errorf("engine: build trial structure: %w", err)
	}
	e.TrialStructure = &ts

	if e.Hardware.Encoder != nil {
		e.Hardware.Encoder.ResetDistanceTracker()
	}
	return nil
}

// checkpointLoop implements §4.8 startup step 10: loop while the UI vector's
// pause_state is set, servicing the same one-shot manual requests the
// runtime cycle's UI cycle handles, plus the valve one-shots that only make
// sense before the runtime loop proper begins.
func (e *Engine) checkpointLoop() {
	if e.UI == nil {
		return
	}
	e.UI.SetPaused(true)
	for e.UI.Paused() {
		e.handleRewardSignal()
		e.mirrorGuidanceAndRewardMarker()
		if e.UI.TakeOneShot(controlui.OpenValve) && e.Hardware.Valve != nil {
			e.Hardware.Valve.SetState(true)
		}
		if e.UI.TakeOneShot(controlui.CloseValve) && e.Hardware.Valve != nil {
			e.Hardware.Valve.SetState(false)
		}
		time.Sleep(idleLoopDelay)
	}
}

// mesoscopePrepRitual walks the operator through getting the ScanImage PC
// ready: the shared landing zone must hold the required files (plus a
// screenshot in the sibling meso_data dir) before the engine will attempt to
// arm acquisition, per §6.
func (e *Engine) mesoscopePrepRitual(firstSession bool) error {
	for attempt := 0; ; attempt++ {
		missing := missingMesoscopeFiles(e.Layout.MesoscopeShared)
		if len(missing) == 0 {
			return nil
		}
		if e.Prompt == nil {
			return fmt.Errorf("engine: mesoscope landing zone missing required files: %v", missing)
		}
		e.Prompt.Echo("Mesoscope landing zone is missing: %s", strings.Join(missing, ", "))
		retry, err := e.Prompt.AskYesNo("Prepared the ScanImage PC? Retry the check?")
		if err != nil || !retry {
			return fmt.Errorf("engine: mesoscope prep aborted, missing files: %v", missing)
		}
		if attempt >= mesoscopeArmRetries {
			return fmt.Errorf("engine: mesoscope prep failed after %d retries, missing files: %v", mesoscopeArmRetries, missing)
		}
	}
}

func missingMesoscopeFiles(sharedDir string) []string {
	var missing []string
	for _, name := range requiredMesoscopeFiles {
		if _, err := os.Stat(filepath.Join(sharedDir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// startMesoscope implements the §4.8 retry-until-abort ritual: ensure no
// marker files exist, wait out a quiet period and assert zero pulses, clear
// stray TIFFs on the first call only, arm with kinase.bin, then poll for the
// acquisition to actually start producing frame triggers.
func (e *Engine) startMesoscope(firstCall bool) error {
	for attempt := 0; attempt < mesoscopeArmRetries; attempt++ {
		if err := e.armMesoscopeOnce(firstCall && attempt == 0); err == nil {
			return nil
		} else if e.Prompt == nil {
			return fmt.Errorf("engine: start mesoscope: %w", err)
		} else {
			e.Prompt.Echo("Mesoscope arm attempt failed: %v", err)
			retry, askErr := e.Prompt.AskYesNo("Retry arming the mesoscope?")
			if askErr != nil || !retry {
				return fmt.Errorf("engine: start mesoscope aborted by operator: %w", err)
			}
		}
	}
	return fmt.Errorf("engine: start mesoscope: exhausted %d retries", mesoscopeArmRetries)
}

func (e *Engine) armMesoscopeOnce(cleanStrayTIFFs bool) error {
	shared := e.Layout.MesoscopeShared
	if preprocess.IsMesoscopeArmed(shared) {
		return fmt.Errorf("arm precondition violated: kinase.bin already present")
	}

	pulses := e.Hardware.MesoscopeTTL.Tracker()
	before := pulses.Pulses.Load()
	time.Sleep(mesoscopeZeroPulseWait)
	if pulses.Pulses.Load() != before {
		return fmt.Errorf("arm precondition violated: pulses observed before arming")
	}

	if cleanStrayTIFFs {
		if err := removeStrayTIFFs(shared); err != nil {
			return fmt.Errorf("clear stray TIFFs: %w", err)
		}
	}

	if err := preprocess.MarkMesoscopeArmed(shared); err != nil {
		return fmt.Errorf("create kinase.bin: %w", err)
	}

	deadline := time.Now().Add(mesoscopeArmTimeout)
	for time.Now().Before(deadline) {
		if pulses.Pulses.Load()-before >= mesoscopeArmPulseTarget {
			e.lastMesoscopePulses = pulses.Pulses.Load()
			e.lastMesoscopeCheckT = e.Clock.Now()
			return nil
		}
		time.Sleep(idleLoopDelay)
	}

	_ = preprocess.ClearMesoscopeMarkers(shared)
	return fmt.Errorf("no frame triggers observed within %s", mesoscopeArmTimeout)
}

// removeStrayTIFFs deletes leftover TIFFs in the shared landing zone from a
// prior session, except the zstack reference images every session reuses.
func removeStrayTIFFs(sharedDir string) error {
	entries, err := os.ReadDir(sharedDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "zstack") {
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), ".tif") || strings.HasSuffix(strings.ToLower(name), ".tiff") {
			if err := os.Remove(filepath.Join(sharedDir, name)); err != nil {
				return err
			}
		}
	}
	return nil
}
