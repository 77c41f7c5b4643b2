package sessiondata

import "github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/motors"

// ZaberPositions is the 7-integer motor-unit snapshot described in §3. It is
// the same type internal/motors uses as its own cache, aliased here so the
// data-model package documented by §3 and the motor group that produces it
// agree on one definition instead of two structurally-identical structs
// drifting apart.
type ZaberPositions = motors.ZaberPositions

// MesoscopePositions holds the seven float mesoscope stage coordinates,
// laser power, and red-dot alignment Z described in §3. This data is
// opaque and user-owned: the engine never computes or adjusts it, only
// compares it for equality against the previous session's cache to detect
// an operator edit.
type MesoscopePositions struct {
	FastZ         float64 `yaml:"fast_z"`
	TiltX         float64 `yaml:"tilt_x"`
	TiltY         float64 `yaml:"tilt_y"`
	VolumeZ       float64 `yaml:"volume_z"`
	FOVX          float64 `yaml:"fov_x"`
	FOVY          float64 `yaml:"fov_y"`
	FOVZ          float64 `yaml:"fov_z"`
	LaserPowerPct float64 `yaml:"laser_power_pct"`
	RedDotAlignZ  float64 `yaml:"red_dot_align_z"`
}

// Changed reports whether the operator edited the cached coordinates since
// the last session, per §3's "engine only compares equality" contract.
func (p MesoscopePositions) Changed(cached MesoscopePositions) bool {
	return p != cached
}
