package sessiondata

// SystemState is the engine's coarse hardware mode, stored as two u8s
// (current + pre-pause) per §3. Only the engine's state-setters write it;
// see §4.8.f's transition matrix (screens/brake/encoder/torque/lick).
type SystemState uint8

const (
	StateIdle         SystemState = 0
	StateRest         SystemState = 1
	StateRun          SystemState = 2
	StateLickTraining SystemState = 3
	StateRunTraining  SystemState = 4
)

// String names a SystemState for logging.
func (s SystemState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRest:
		return "Rest"
	case StateRun:
		return "Run"
	case StateLickTraining:
		return "LickTraining"
	case StateRunTraining:
		return "RunTraining"
	default:
		return "Unknown"
	}
}

// ExperimentState is one phase of an Experiment session, per §3: its own
// state code, the underlying rest/run system-state code, a duration, and
// the lick-guidance parameters to apply for the phase's duration.
type ExperimentState struct {
	StateCode            uint8       `yaml:"state_code"`
	SystemStateCode      SystemState `yaml:"system_state_code"`
	DurationS            float64     `yaml:"duration_s"`
	InitialGuidedTrials  int         `yaml:"initial_guided_trials"`
	FailedThreshold      int         `yaml:"failed_threshold"`
	RecoveryGuidedTrials int         `yaml:"recovery_guided_trials"`
}

// Experiment is an ordered sequence of phases run in order by the
// experiment task controller (§4.9).
type Experiment []ExperimentState
