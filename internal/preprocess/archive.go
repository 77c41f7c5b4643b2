package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveBehaviorLogs renames every compressed per-source shard the log bus
// wrote (internal/logbus.Stop already zstd-compresses each "NNN.log" shard
// to "NNN.log.zst") into behavior_data/NNN.npz, matching preprocessing
// step 2's "compress behavior_data_log/*.npy -> .npz archives (one per
// source)" naming convention. The bytes are already zstd-compressed by the
// log bus; this step only relocates and renames them into the session's
// published layout.
func ArchiveBehaviorLogs(logBusDir, behaviorDataDir string) error {
	entries, err := os.ReadDir(logBusDir)
	if err != nil {
		return fmt.Errorf("preprocess: read %s: %w", logBusDir, err)
	}
	if err := os.MkdirAll(behaviorDataDir, 0o755); err != nil {
		return fmt.Errorf("preprocess: create %s: %w", behaviorDataDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log.zst") {
			continue
		}
		source := strings.TrimSuffix(entry.Name(), ".log.zst")
		src := filepath.Join(logBusDir, entry.Name())
		dst := filepath.Join(behaviorDataDir, source+".npz")
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("preprocess: archive shard %s: %w", source, err)
		}
	}
	return nil
}

// cameraRename maps a pipeline's output filename to its human-named
// counterpart, per §6's "<session>_face_camera.mp4" / "_body_camera.mp4"
// convention.
var cameraRename = map[string]string{
	"face.mp4":       "_face_camera.mp4",
	"body_left.mp4":  "_body_camera_left.mp4",
	"body_right.mp4": "_body_camera_right.mp4",
}

// RenameCameraVideos renames every recognized camera file under
// cameraDataDir to its human name, prefixed with sessionName, per
// preprocessing step 3.
func RenameCameraVideos(cameraDataDir, sessionName string) error {
	for rawName, suffix := range cameraRename {
		src := filepath.Join(cameraDataDir, rawName)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		dst := filepath.Join(cameraDataDir, sessionName+suffix)
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("preprocess: rename %s: %w", rawName, err)
		}
	}
	return nil
}
