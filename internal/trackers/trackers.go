// Package trackers implements the shared tracker state described in spec.md
// §3: fixed-layout atomic cells, each with exactly one writer (the owning
// module interface's channel) and many readers (the engine, the visualizer).
// DESIGN NOTES §9 calls for "fixed-layout atomic numeric cells owned by the
// interface, published by address/handle to consumers; no serialization in
// the hot path" — these types are that handle.
package trackers

import "github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/atomicx"

// EncoderTracker holds cumulative wheel distance (cm) and the Unity-space
// absolute position, advanced by EncoderInterface on every CW/CCW event.
type EncoderTracker struct {
	DistanceCM   *atomicx.Float64
	PositionUnit *atomicx.Float64
}

// NewEncoderTracker returns a zeroed tracker.
func NewEncoderTracker() *EncoderTracker {
	return &EncoderTracker{
		DistanceCM:   atomicx.NewFloat64(0),
		PositionUnit: atomicx.NewFloat64(0),
	}
}

// Read returns both fields read together. Per §5's shared-resource policy,
// readers tolerate transient inconsistency between the paired fields because
// the engine acts on a single cycle's read before the next write can land.
func (t *EncoderTracker) Read() (distanceCM, positionUnit float64) {
	return t.DistanceCM.Load(), t.PositionUnit.Load()
}

// Reset zeroes both tracker slots, per EncoderInterface.reset_distance_tracker.
func (t *EncoderTracker) Reset() {
	t.DistanceCM.Store(0)
	t.PositionUnit.Store(0)
}

// LickTracker holds the monotonic lick count.
type LickTracker struct {
	Licks *atomicx.Uint64
}

// NewLickTracker returns a zeroed tracker.
func NewLickTracker() *LickTracker {
	return &LickTracker{Licks: atomicx.NewUint64(0)}
}

// ValveTracker holds cumulative dispensed volume in microliters.
type ValveTracker struct {
	VolumeUL *atomicx.Float64
}

// NewValveTracker returns a zeroed tracker.
func NewValveTracker() *ValveTracker {
	return &ValveTracker{VolumeUL: atomicx.NewFloat64(0)}
}

// MesoscopePulseTracker counts rising-edge mesoscope frame triggers observed
// since the last reset.
type MesoscopePulseTracker struct {
	Pulses *atomicx.Uint64
}

// NewMesoscopePulseTracker returns a zeroed tracker.
func NewMesoscopePulseTracker() *MesoscopePulseTracker {
	return &MesoscopePulseTracker{Pulses: atomicx.NewUint64(0)}
}

// Reset zeroes the pulse counter, used when re-arming the mesoscope watchdog.
func (t *MesoscopePulseTracker) Reset() {
	t.Pulses.Store(0)
}
