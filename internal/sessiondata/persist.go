package sessiondata

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Sibling file names under a session's raw_data directory, per §6's
// "On-disk session layout" table.
const (
	IdentityFileName           = "session_data.yaml"
	DescriptorFileName         = "session_descriptor.yaml"
	HardwareStateFileName      = "hardware_state.yaml"
	ZaberPositionsFileName     = "zaber_positions.yaml"
	MesoscopePositionsFileName = "mesoscope_positions.yaml"
	ExperimentConfigFileName   = "experiment_configuration.yaml"
)

// writeYAML marshals v and writes it to path, creating parent directories
// as needed.
func writeYAML(path string, v any) error {
	body, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("sessiondata: marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sessiondata: create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("sessiondata: write %s: %w", path, err)
	}
	return nil
}

// readYAML reads and unmarshals path into v.
func readYAML(path string, v any) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sessiondata: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(body, v); err != nil {
		return fmt.Errorf("sessiondata: unmarshal %s: %w", path, err)
	}
	return nil
}

// SaveIdentity writes session_data.yaml under sessionDir.
func SaveIdentity(sessionDir string, identity SessionIdentity) error {
	return writeYAML(filepath.Join(sessionDir, IdentityFileName), identity)
}

// SaveDescriptor writes session_descriptor.yaml under sessionDir. Called
// once as an unvalidated precursor at startup (§4.8 step 2) and again, the
// operator-edited version, at shutdown.
func SaveDescriptor(sessionDir string, descriptor Descriptor) error {
	return writeYAML(filepath.Join(sessionDir, DescriptorFileName), descriptor)
}

// LoadDescriptor reads session_descriptor.yaml back, the operator's edited
// copy consumed by shutdown.
func LoadDescriptor(sessionDir string) (Descriptor, error) {
	var d Descriptor
	err := readYAML(filepath.Join(sessionDir, DescriptorFileName), &d)
	return d, err
}

// LoadDescriptorFile reads a descriptor from an arbitrary path rather than
// a session directory, for the operator-authored descriptor a CLI entry
// point consumes before a session directory even exists.
func LoadDescriptorFile(path string) (Descriptor, error) {
	var d Descriptor
	err := readYAML(path, &d)
	return d, err
}

// LoadZaberPositions reads zaber_positions.yaml back from sessionDir (or a
// persistent per-animal cache directory), the last-known motor positions
// NewGroup keeps as its cached previous position.
func LoadZaberPositions(sessionDir string) (ZaberPositions, error) {
	var p ZaberPositions
	err := readYAML(filepath.Join(sessionDir, ZaberPositionsFileName), &p)
	return p, err
}

// SaveHardwareState writes hardware_state.yaml under sessionDir.
func SaveHardwareState(sessionDir string, state HardwareState) error {
	return writeYAML(filepath.Join(sessionDir, HardwareStateFileName), state)
}

// SaveZaberPositions writes zaber_positions.yaml under sessionDir.
func SaveZaberPositions(sessionDir string, positions ZaberPositions) error {
	return writeYAML(filepath.Join(sessionDir, ZaberPositionsFileName), positions)
}

// SaveMesoscopePositions writes mesoscope_positions.yaml under sessionDir.
func SaveMesoscopePositions(sessionDir string, positions MesoscopePositions) error {
	return writeYAML(filepath.Join(sessionDir, MesoscopePositionsFileName), positions)
}

// LoadMesoscopePositions reads mesoscope_positions.yaml back, the
// operator-edited copy the shutdown sequence diffs against the cached
// value to detect an edit.
func LoadMesoscopePositions(sessionDir string) (MesoscopePositions, error) {
	var p MesoscopePositions
	err := readYAML(filepath.Join(sessionDir, MesoscopePositionsFileName), &p)
	return p, err
}

// SaveExperimentConfig copies the experiment configuration's raw bytes
// alongside the session, per §4.8 startup step 8's "snapshot experiment
// YAML".
func SaveExperimentConfig(sessionDir string, configBytes []byte) error {
	path := filepath.Join(sessionDir, ExperimentConfigFileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sessiondata: create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, configBytes, 0o644); err != nil {
		return fmt.Errorf("sessiondata: write %s: %w", path, err)
	}
	return nil
}
