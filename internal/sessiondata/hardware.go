package sessiondata

// HardwareState is the per-session, read-only record of every calibration
// constant actually in effect, written once at startup per §3. It lets a
// later analysis pipeline interpret raw tracker values (distance, volume,
// torque) without needing to re-derive the interfaces' fitted constants.
type HardwareState struct {
	EncoderCMPerPulse float64 `yaml:"encoder_cm_per_pulse"`

	BrakeMinTorqueGCM float64 `yaml:"brake_min_torque_g_cm"`
	BrakeMaxTorqueGCM float64 `yaml:"brake_max_torque_g_cm"`

	LickADCThreshold uint16 `yaml:"lick_adc_threshold"`

	ValvePowerLawA float64 `yaml:"valve_power_law_a"`
	ValvePowerLawB float64 `yaml:"valve_power_law_b"`

	TorqueNCMPerADC float64 `yaml:"torque_ncm_per_adc"`

	MesoscopeTTLRecorded bool `yaml:"mesoscope_ttl_recorded"`

	SystemStateCodes map[string]uint8 `yaml:"system_state_codes"`
}
