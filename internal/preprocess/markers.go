// Package preprocess implements the postconditions-only preprocessing
// pipeline described in spec.md §6: given a finished session's raw_data
// tree, compress and rename its artifacts, checksum the tree, and hand it
// off to long-term storage. The TIFF/ScanImage metadata extraction itself
// is explicitly out of scope (§1: "TIFF/JSON preprocessing (described as a
// postconditions-only pipeline)") — this package guarantees the
// surrounding contract (markers, renames, checksum, transfer, purge) and
// leaves the recompression/metadata step to an injected collaborator.
package preprocess

import (
	"os"
	"path/filepath"
)

const (
	initMarker      = "nk.bin"
	completeMarker  = "telomere.bin"
	purgeMarker     = "ubiquitin.bin"
	mesoscopeMarker = "kinase.bin"
)

// MarkInitializing creates nk.bin, whose presence means "session is still
// being initialized" per §6's on-disk layout table.
func MarkInitializing(sessionDir string) error {
	return touch(filepath.Join(sessionDir, initMarker))
}

// ClearInitializing removes nk.bin on successful init.
func ClearInitializing(sessionDir string) error {
	err := os.Remove(filepath.Join(sessionDir, initMarker))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsInitializing reports whether nk.bin is still present — the marker the
// outer shutdown logic uses to choose purge over preprocess, per §7's
// "Initialization-time abort" error-handling entry.
func IsInitializing(sessionDir string) bool {
	_, err := os.Stat(filepath.Join(sessionDir, initMarker))
	return err == nil
}

// MarkComplete creates telomere.bin, written only once descriptor.Incomplete
// has become false (§6, preprocessing step 7).
func MarkComplete(sessionDir string) error {
	return touch(filepath.Join(sessionDir, completeMarker))
}

// IsComplete reports whether telomere.bin is present.
func IsComplete(sessionDir string) bool {
	_, err := os.Stat(filepath.Join(sessionDir, completeMarker))
	return err == nil
}

// IsPurgeable reports whether dir carries ubiquitin.bin, the marker used by
// preprocessing step 9 to identify redundant caches.
func IsPurgeable(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, purgeMarker))
	return err == nil
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// MarkMesoscopeArmed creates kinase.bin in the mesoscope-PC shared
// directory, the engine's signal that MATLAB-side acquisition may begin
// (§4.8, "start_mesoscope()").
func MarkMesoscopeArmed(sharedDir string) error {
	return touch(filepath.Join(sharedDir, mesoscopeMarker))
}

// ClearMesoscopeMarkers removes kinase.bin, letting the operator restart
// mesoscope acquisition after a watchdog trip or a planned stop (§4.8.d,
// §4.9).
func ClearMesoscopeMarkers(sharedDir string) error {
	err := os.Remove(filepath.Join(sharedDir, mesoscopeMarker))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsMesoscopeArmed reports whether kinase.bin is present.
func IsMesoscopeArmed(sharedDir string) bool {
	_, err := os.Stat(filepath.Join(sharedDir, mesoscopeMarker))
	return err == nil
}

// PurgeMarkedCaches removes every directory under root that carries
// ubiquitin.bin, per preprocessing step 9.
func PurgeMarkedCaches(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if IsPurgeable(dir) {
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
		}
	}
	return nil
}
