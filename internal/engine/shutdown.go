package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/preprocess"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
)

// visualizerShutdownTimeout bounds the HTTP server's graceful drain.
const visualizerShutdownTimeout = 5 * time.Second

// Shutdown runs the "Shutdown (all variants)" sequence from §4.9. It never
// returns early on a collaborator failure — every step logs and continues,
// per §7's "shutdown errors themselves are logged and swallowed to avoid
// losing raw_data" — except the final preprocess/purge dispatch, whose error
// is returned so the caller can set a non-zero exit code.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.SetIdle()

	if e.VisualizerServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, visualizerShutdownTimeout)
		if err := e.VisualizerServer.Stop(shutdownCtx); err != nil && e.Log != nil {
			e.Log.Printf("engine: stop visualizer: %v", err)
		}
		cancel()
	} else if e.Visualizer != nil {
		e.Visualizer.Stop()
	}

	if e.usesUnity && e.Unity != nil {
		e.Unity.Disconnect()
	}

	if e.Video != nil {
		if err := e.Video.Stop(); err != nil && e.Log != nil {
			e.Log.Printf("engine: stop cameras: %v", err)
		}
	}

	if e.usesMesoscope {
		e.shutdownMesoscope()
	}

	e.updateDescriptorOnStop()
	if err := sessiondata.SaveDescriptor(e.Layout.RawData, e.Descriptor); err != nil && e.Log != nil {
		e.Log.Printf("engine: save descriptor: %v", err)
	}
	if err := e.Descriptor.Validate(); err != nil && e.Log != nil {
		e.Log.Printf("engine: descriptor failed validation: %v", err)
	}

	if e.usesMesoscope {
		cached, err := sessiondata.LoadMesoscopePositions(e.Layout.RawData)
		if err == nil && e.MesoscopePositions.Changed(cached) {
			if e.Log != nil {
				e.Log.Printf("engine: mesoscope positions changed since last session")
			}
		}
		if err := sessiondata.SaveMesoscopePositions(e.Layout.RawData, e.MesoscopePositions); err != nil && e.Log != nil {
			e.Log.Printf("engine: save mesoscope positions: %v", err)
		}
	}

	if e.Motors != nil {
		e.ZaberPositions = e.Motors.GenerateSnapshot()
		if err := sessiondata.SaveZaberPositions(e.Layout.RawData, e.ZaberPositions); err != nil && e.Log != nil {
			e.Log.Printf("engine: save zaber positions: %v", err)
		}

		resetMotors := false
		if e.Prompt != nil {
			resetMotors, _ = e.Prompt.AskYesNo("Reset motors to park position before disconnecting?")
		}
		if resetMotors {
			e.Motors.ParkPosition()
		}
		if err := e.Motors.Disconnect(); err != nil && e.Log != nil {
			e.Log.Printf("engine: disconnect motors: %v", err)
		}
	}

	for _, ch := range e.Channels.all() {
		if ch == nil {
			continue
		}
		if err := ch.Stop(); err != nil && e.Log != nil {
			e.Log.Printf("engine: stop channel %s: %v", ch.Name, err)
		}
	}

	if err := e.Bus.Stop(); err != nil && e.Log != nil {
		e.Log.Printf("engine: stop log bus: %v", err)
	}

	return e.finalizeSession()
}

// shutdownMesoscope stops acquisition (clearing kinase.bin if still armed)
// and renames the shared landing zone to the session name, per §6: "The
// engine renames the landing zone to <session_name>/ on stop so subsequent
// sessions get a fresh empty mesoscope_data/."
func (e *Engine) shutdownMesoscope() {
	shared := e.Layout.MesoscopeShared
	if preprocess.IsMesoscopeArmed(shared) {
		if err := preprocess.ClearMesoscopeMarkers(shared); err != nil && e.Log != nil {
			e.Log.Printf("engine: clear mesoscope markers: %v", err)
		}
	}

	renamed := filepath.Join(filepath.Dir(shared), e.Identity.SessionName)
	if err := os.Rename(shared, renamed); err != nil && e.Log != nil {
		e.Log.Printf("engine: rename mesoscope landing zone: %v", err)
	}
}

// updateDescriptorOnStop fills in the dispensed-volume fields, writes back
// the final run-training thresholds, and clears Incomplete once the session
// reached a graceful stop, per §3's descriptor lifecycle ("incomplete flag
// ... cleared only on graceful stop"). A fatal Startup failure is not a
// graceful stop even though no task controller ever set e.terminated, so
// Incomplete stays true on that path — per spec.md's "on ungraceful exit,
// the acquired raw_data directory must remain on disk so purge or
// preprocess can be retried".
func (e *Engine) updateDescriptorOnStop() {
	e.Descriptor.Common.DispensedDuringRunUL = e.deliveredWaterUL
	e.Descriptor.Common.DispensedDuringPauseUL = e.pausedWaterUL

	if e.Descriptor.RunTraining != nil {
		e.Descriptor.RunTraining.FinalSpeedThresholdCMS = e.lastPushedSpeedThreshold
		e.Descriptor.RunTraining.FinalDurationThresholdMS = e.lastPushedDurationThreshold
	}

	if !e.startupFailed {
		e.Descriptor.Common.Incomplete = false
	}
}

// finalizeSession runs the mandatory preprocess/skip/purge prompt, per §4.9:
// "Finally, prompt for preprocess / skip / purge and invoke the
// corresponding pipeline." An initialization-time abort (nk.bin never
// cleared) always purges regardless of the operator's answer, per §7's
// "Initialization-time abort" entry.
func (e *Engine) finalizeSession() error {
	if preprocess.IsInitializing(e.Layout.RawData) {
		return preprocess.Purge(e.Layout.RawData)
	}

	choice := "preprocess"
	if e.Prompt != nil {
		answer, err := e.Prompt.Ask("Preprocess, skip, or purge this session? [preprocess/skip/purge]")
		if err == nil && answer != "" {
			choice = answer
		}
	}

	switch choice {
	case "purge":
		return preprocess.Purge(e.Layout.RawData)
	case "skip":
		return nil
	default:
		pipeline := e.Preprocess
		if pipeline == nil {
			pipeline = preprocess.New()
		}
		if err := pipeline.Run(e.Layout, e.Identity, e.Descriptor, e.LogBusDir, e.Layout.MesoscopeShared, e.usesMesoscope); err != nil {
			return fmt.Errorf("engine: preprocess session: %w", err)
		}
		return nil
	}
}
