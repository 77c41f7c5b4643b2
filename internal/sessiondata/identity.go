// Package sessiondata implements the data model described in spec.md §3:
// the immutable session identity and filesystem layout, the Zaber/
// mesoscope position snapshots, the hardware calibration snapshot, the
// session descriptor tagged union, the Unity cue sequence and trial
// structure, and the experiment phase/system-state enumerations. None of
// these types drive behavior themselves — the session engine is the sole
// owner and mutator — so this package is pure data plus the YAML
// (de)serialization and validation the engine needs at startup and
// shutdown.
package sessiondata

import "time"

// SessionType enumerates the four session kinds the engine can run, per
// §3's SessionDescriptor tagged union.
type SessionType string

const (
	SessionLickTraining   SessionType = "lick_training"
	SessionRunTraining    SessionType = "run_training"
	SessionExperiment     SessionType = "experiment"
	SessionWindowChecking SessionType = "window_checking"
)

// SessionIdentity is immutable once constructed: project name, animal id,
// session name (a UTC timestamp), session type, and the software/library
// versions in effect. It is persisted as a YAML sibling of the raw data and
// never mutated afterward.
type SessionIdentity struct {
	ProjectName     string            `yaml:"project_name"`
	AnimalID        string            `yaml:"animal_id"`
	SessionName     string            `yaml:"session_name"`
	SessionType     SessionType       `yaml:"session_type"`
	SoftwareVersion string            `yaml:"software_version"`
	LibraryVersions map[string]string `yaml:"library_versions"`
}

// NewSessionIdentity stamps SessionName as the UTC instant of construction,
// formatted so it sorts lexically with chronological order.
func NewSessionIdentity(project, animalID string, sessionType SessionType, softwareVersion string, libraryVersions map[string]string) SessionIdentity {
	return SessionIdentity{
		ProjectName:     project,
		AnimalID:        animalID,
		SessionName:     time.Now().UTC().Format("20060102-150405"),
		SessionType:     sessionType,
		SoftwareVersion: softwareVersion,
		LibraryVersions: libraryVersions,
	}
}
