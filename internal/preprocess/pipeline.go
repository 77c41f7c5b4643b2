package preprocess

import (
	"fmt"
	"os"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
)

// Pipeline runs the nine-step preprocessing sequence from §6 against one
// finished session. Every external collaborator (mesoscope recompression,
// water log, transfer) is injected so the orchestration itself stays
// testable without real hardware or network access.
type Pipeline struct {
	Mesoscope MesoscopeProcessor
	WaterLog  WaterLog
	Transfer  Transferer

	NASDestination    string
	ServerDestination string
}

// New returns a Pipeline wired with the no-op mesoscope processor, the
// no-op water log, and a local-copy transferer — callers override any of
// these fields for production wiring.
func New() *Pipeline {
	return &Pipeline{
		Mesoscope: NoopMesoscopeProcessor{},
		WaterLog:  NoopWaterLog{},
		Transfer:  LocalCopyTransferer{},
	}
}

// Run executes steps 1-9 against session's layout and descriptor. It does
// not modify descriptor; it creates telomere.bin only if the caller has
// already cleared descriptor.Common.Incomplete (the engine does this once
// its own shutdown-time validation succeeds).
func (p *Pipeline) Run(layout sessiondata.FilesystemLayout, identity sessiondata.SessionIdentity, descriptor sessiondata.Descriptor, logBusDir, mesoscopeShared string, isMesoscopeSession bool) error {
	// Step 1: rename mesoscope landing zone to session-specific (handled by
	// the Mesoscope collaborator's Pull, which already targets layout's
	// session-specific mesoscope_data directory).
	if isMesoscopeSession {
		if err := p.Mesoscope.Pull(mesoscopeShared, layout.MesoscopeData); err != nil {
			return fmt.Errorf("preprocess: pull mesoscope data: %w", err)
		}
	}

	// Step 2: move the already-compressed behavior log shards into the
	// published layout.
	if err := ArchiveBehaviorLogs(logBusDir, layout.BehaviorLog); err != nil {
		return fmt.Errorf("preprocess: archive behavior logs: %w", err)
	}

	// Step 3: rename camera videos to human names.
	if err := RenameCameraVideos(layout.CameraData, identity.SessionName); err != nil {
		return fmt.Errorf("preprocess: rename camera videos: %w", err)
	}

	// Step 5: recompress mesoscope TIFF stacks and extract metadata.
	if isMesoscopeSession {
		if err := p.Mesoscope.RecompressStacks(layout.MesoscopeData); err != nil {
			return fmt.Errorf("preprocess: recompress mesoscope stacks: %w", err)
		}
	}

	// Step 6: append water-log row.
	if err := p.WaterLog.AppendRow(WaterLogRow{
		SessionName:         identity.SessionName,
		AnimalID:            identity.AnimalID,
		DispensedVolumeML:   descriptor.Common.DispensedDuringRunUL / 1000,
		ExperimenterWaterML: descriptor.Common.ExperimenterWaterML,
	}); err != nil {
		return fmt.Errorf("preprocess: append water log row: %w", err)
	}

	// Step 7: mark completion if the descriptor says so.
	if !descriptor.Common.Incomplete {
		if err := MarkComplete(layout.RawData); err != nil {
			return fmt.Errorf("preprocess: mark complete: %w", err)
		}
	}

	// Step 8: checksum and transfer.
	if _, err := WriteChecksum(layout.RawData); err != nil {
		return fmt.Errorf("preprocess: write checksum: %w", err)
	}
	if _, err := p.Transfer.Transfer(layout.RawData, layout.NASDestination); err != nil {
		return fmt.Errorf("preprocess: transfer to NAS: %w", err)
	}
	if _, err := p.Transfer.Transfer(layout.RawData, layout.ServerDestination); err != nil {
		return fmt.Errorf("preprocess: transfer to server: %w", err)
	}

	// Step 9: purge redundant caches.
	if err := PurgeMarkedCaches(layout.PersistentCache); err != nil {
		return fmt.Errorf("preprocess: purge caches: %w", err)
	}

	return nil
}

// Purge runs the abbreviated path taken when a session was aborted during
// initialization (nk.bin still present, per §7's "Initialization-time
// abort" entry): the raw_data tree is removed entirely rather than shipped.
func Purge(rawDataDir string) error {
	return os.RemoveAll(rawDataDir)
}
