package sessiondata

import "fmt"

// VrCueSequence is the vector of u8 cue codes received from Unity at
// runtime onset. It is immutable for the lifetime of the current Unity
// session and reacquired after a Unity restart, per §3.
type VrCueSequence []uint8

// TrialDefinition names one experiment trial type's cue motif and reward
// geometry, keyed by name per §3's "{trial name -> (cue-motif, length_cm,
// reward_µL, tone_ms)}" mapping.
type TrialDefinition struct {
	Name     string
	CueMotif []uint8
	LengthCM float64
	RewardUL float64
	ToneMS   int64
}

// TrialStructure holds an experiment's named trial definitions plus the
// arrays derived from decomposing a VrCueSequence against them.
type TrialStructure struct {
	Definitions []TrialDefinition

	// CumulativeDistanceCM[i] is the sum of decomposed-trial lengths for
	// trials 0..i, strictly increasing per §3's invariant.
	CumulativeDistanceCM []float64

	// RewardSchedule[i] is the (µL, ms) reward for decomposed trial i.
	RewardSchedule []RewardSpec
}

// RewardSpec is one trial's reward volume and accompanying tone duration.
type RewardSpec struct {
	VolumeUL float64
	ToneMS   int64
}

// NewTrialStructure builds the derived arrays from a decomposition result
// (trial indices into Definitions, each motif's Distance already summed by
// the decomposer) and validates the strictly-increasing invariant.
func NewTrialStructure(definitions []TrialDefinition, trialIndices []int, cumulativeDistances []float64) (TrialStructure, error) {
	if len(trialIndices) != len(cumulativeDistances) {
		return TrialStructure{}, fmt.Errorf("sessiondata: trial index and distance arrays disagree in length: %d vs %d", len(trialIndices), len(cumulativeDistances))
	}

	ts := TrialStructure{
		Definitions:          definitions,
		CumulativeDistanceCM: cumulativeDistances,
		RewardSchedule:       make([]RewardSpec, len(trialIndices)),
	}

	last := -1.0
	for i, idx := range trialIndices {
		if idx < 0 || idx >= len(definitions) {
			return TrialStructure{}, fmt.Errorf("sessiondata: trial index %d out of range for %d definitions", idx, len(definitions))
		}
		if cumulativeDistances[i] <= last {
			return TrialStructure{}, fmt.Errorf("sessiondata: cumulative_distance_cm is not strictly increasing at trial %d", i)
		}
		last = cumulativeDistances[i]

		def := definitions[idx]
		ts.RewardSchedule[i] = RewardSpec{VolumeUL: def.RewardUL, ToneMS: def.ToneMS}
	}

	return ts, nil
}
