package sessiondata

import (
	"errors"
	"fmt"
)

// notesPlaceholder is the placeholder string every descriptor's Notes field
// starts with; §3 requires the experimenter to replace it before the
// descriptor validates.
const notesPlaceholder = "Replace this with your notes."

// ErrNotesNotEdited is returned by Validate when Notes still holds its
// unedited placeholder.
var ErrNotesNotEdited = errors.New("sessiondata: descriptor notes were not edited")

// CommonDescriptor carries the fields every session type shares, per §3:
// experimenter id, mouse weight, the incomplete flag (starts true, cleared
// only on graceful stop), dispensed volumes during run/pause, water given
// directly by the experimenter, the unconsumed-reward cap, and notes.
type CommonDescriptor struct {
	ExperimenterID         string  `yaml:"experimenter_id"`
	MouseWeightG           float64 `yaml:"mouse_weight_g"`
	Incomplete             bool    `yaml:"incomplete"`
	DispensedDuringRunUL   float64 `yaml:"dispensed_during_run_ul"`
	DispensedDuringPauseUL float64 `yaml:"dispensed_during_pause_ul"`
	ExperimenterWaterML    float64 `yaml:"experimenter_water_ml"`
	MaxUnconsumedRewards   int     `yaml:"max_unconsumed_rewards"`
	Notes                  string  `yaml:"notes"`
}

// NewCommonDescriptor seeds Incomplete=true and the unedited placeholder
// Notes, per §3's lifecycle ("incomplete flag (starts true...)").
func NewCommonDescriptor(experimenterID string, mouseWeightG float64, maxUnconsumedRewards int) CommonDescriptor {
	return CommonDescriptor{
		ExperimenterID:       experimenterID,
		MouseWeightG:         mouseWeightG,
		Incomplete:           true,
		MaxUnconsumedRewards: maxUnconsumedRewards,
		Notes:                notesPlaceholder,
	}
}

// Validate enforces the placeholder-notes invariant.
func (c CommonDescriptor) Validate() error {
	if c.Notes == notesPlaceholder {
		return ErrNotesNotEdited
	}
	return nil
}

// LickTrainingFields carries the lick-training-specific descriptor fields.
type LickTrainingFields struct {
	MinDelayS   float64 `yaml:"min_delay_s"`
	MaxDelayS   float64 `yaml:"max_delay_s"`
	MaxVolumeML float64 `yaml:"max_volume_ml"`
	MaxTimeMin  float64 `yaml:"max_time_min"`
}

// RunTrainingFields carries the run-training-specific descriptor fields,
// including the initial/final threshold values §3 calls out explicitly.
type RunTrainingFields struct {
	InitialSpeedThresholdCMS   float64 `yaml:"initial_speed_threshold_cm_s"`
	FinalSpeedThresholdCMS     float64 `yaml:"final_speed_threshold_cm_s"`
	InitialDurationThresholdMS int64   `yaml:"initial_duration_threshold_ms"`
	FinalDurationThresholdMS   int64   `yaml:"final_duration_threshold_ms"`
	SpeedStepCMS               float64 `yaml:"speed_step_cm_s"`
	DurationStepMS             int64   `yaml:"duration_step_ms"`
	IncreaseThresholdUL        float64 `yaml:"increase_threshold_ul"`
	MaxIdleMS                  int64   `yaml:"max_idle_ms"`
	MaxVolumeML                float64 `yaml:"max_volume_ml"`
	TrainingTimeMin            float64 `yaml:"training_time_min"`
}

// ExperimentFields carries the experiment-specific descriptor fields.
type ExperimentFields struct {
	ExperimentConfiguration string `yaml:"experiment_configuration"`
}

// WindowCheckingFields carries the window-checking-specific descriptor
// fields — the variant is a shortened session, so it adds nothing beyond
// CommonDescriptor today, but keeps the tagged-union shape consistent.
type WindowCheckingFields struct{}

// Descriptor is the type-tagged union over the four session kinds
// described in §3. Exactly one of the type-specific field pointers is
// non-nil, matching Type.
type Descriptor struct {
	Type   SessionType
	Common CommonDescriptor

	LickTraining   *LickTrainingFields
	RunTraining    *RunTrainingFields
	Experiment     *ExperimentFields
	WindowChecking *WindowCheckingFields
}

// Validate checks the common invariant and that exactly the field matching
// Type is populated.
func (d Descriptor) Validate() error {
	if err := d.Common.Validate(); err != nil {
		return err
	}

	present := 0
	for _, set := range []bool{
		d.LickTraining != nil,
		d.RunTraining != nil,
		d.Experiment != nil,
		d.WindowChecking != nil,
	} {
		if set {
			present++
		}
	}
	if present != 1 {
		return fmt.Errorf("sessiondata: descriptor must carry exactly one type-specific field set, got %d", present)
	}

	switch d.Type {
	case SessionLickTraining:
		if d.LickTraining == nil {
			return fmt.Errorf("sessiondata: type %s requires LickTraining fields", d.Type)
		}
	case SessionRunTraining:
		if d.RunTraining == nil {
			return fmt.Errorf("sessiondata: type %s requires RunTraining fields", d.Type)
		}
	case SessionExperiment:
		if d.Experiment == nil {
			return fmt.Errorf("sessiondata: type %s requires Experiment fields", d.Type)
		}
	case SessionWindowChecking:
		if d.WindowChecking == nil {
			return fmt.Errorf("sessiondata: type %s requires WindowChecking fields", d.Type)
		}
	default:
		return fmt.Errorf("sessiondata: unrecognized session type %q", d.Type)
	}

	return nil
}
