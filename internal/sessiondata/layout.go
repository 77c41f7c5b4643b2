package sessiondata

import (
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemLayout is derived from a SessionIdentity and the host's root
// directories, per §3: per-session paths for raw data, the behavior log,
// camera footage, and mesoscope output, a per-animal persistent cache, two
// remote destinations (NAS and long-term server), and the mesoscope-PC's
// shared/persistent directories.
type FilesystemLayout struct {
	RawData       string `yaml:"raw_data"`
	BehaviorLog   string `yaml:"behavior_log"`
	CameraData    string `yaml:"camera_data"`
	MesoscopeData string `yaml:"mesoscope_data"`

	PersistentCache string `yaml:"persistent_cache"`

	NASDestination    string `yaml:"nas_destination"`
	ServerDestination string `yaml:"server_destination"`

	MesoscopeShared     string `yaml:"mesoscope_shared"`
	MesoscopePersistent string `yaml:"mesoscope_persistent"`
}

// Roots names the host directories FilesystemLayout is derived from
// (the "host SystemConfiguration" referenced in §3).
type Roots struct {
	RawDataRoot      string `yaml:"raw_data_root" mapstructure:"raw_data_root"`
	PersistentRoot   string `yaml:"persistent_root" mapstructure:"persistent_root"`
	NASRoot          string `yaml:"nas_root" mapstructure:"nas_root"`
	ServerRoot       string `yaml:"server_root" mapstructure:"server_root"`
	MesoscopeShared  string `yaml:"mesoscope_shared" mapstructure:"mesoscope_shared"`
	MesoscopePersist string `yaml:"mesoscope_persist" mapstructure:"mesoscope_persist"`
}

// NewFilesystemLayout builds a session's layout from its identity and the
// host's configured roots, creating every persistent subdirectory so the
// "all persistent subdirectories exist after construction" invariant holds
// on return. Per-session directories under raw_data are unique by
// construction since SessionName encodes a UTC timestamp.
func NewFilesystemLayout(identity SessionIdentity, roots Roots) (FilesystemLayout, error) {
	sessionDir := filepath.Join(roots.RawDataRoot, identity.ProjectName, identity.AnimalID, identity.SessionName)

	layout := FilesystemLayout{
		RawData:             sessionDir,
		BehaviorLog:         filepath.Join(sessionDir, "behavior_data"),
		CameraData:          filepath.Join(sessionDir, "camera_data"),
		MesoscopeData:       filepath.Join(sessionDir, "mesoscope_data"),
		PersistentCache:     filepath.Join(roots.PersistentRoot, identity.ProjectName, identity.AnimalID),
		NASDestination:      filepath.Join(roots.NASRoot, identity.ProjectName, identity.AnimalID, identity.SessionName),
		ServerDestination:   filepath.Join(roots.ServerRoot, identity.ProjectName, identity.AnimalID, identity.SessionName),
		MesoscopeShared:     roots.MesoscopeShared,
		MesoscopePersistent: filepath.Join(roots.MesoscopePersist, identity.ProjectName, identity.AnimalID),
	}

	for _, dir := range []string{
		layout.RawData,
		layout.BehaviorLog,
		layout.CameraData,
		layout.MesoscopeData,
		layout.PersistentCache,
		layout.MesoscopePersistent,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return FilesystemLayout{}, fmt.Errorf("sessiondata: create %s: %w", dir, err)
		}
	}

	return layout, nil
}
