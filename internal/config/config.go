// Package config loads the engine's bootstrap configuration: host
// filesystem roots, serial port addresses for the three microcontrollers
// and three Zaber connections, the MQTT broker address, and the hardware
// calibration constants persisted into HardwareState at startup. CLI
// entry points and the YAML-backed session/project/experiment objects
// themselves are external collaborators (spec.md §1's out-of-scope list);
// this package only owns getting a YAML file on disk into a typed Go
// struct, the way the teacher's reinforcement.FromYaml does for its own
// training config.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/modules"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/motors"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
)

// SerialPorts names the OS device paths for the three microcontroller
// channels and the three Zaber daisy-chain connections.
type SerialPorts struct {
	ActorPort    string `yaml:"actor_port" mapstructure:"actor_port"`
	SensorPort   string `yaml:"sensor_port" mapstructure:"sensor_port"`
	EncoderPort  string `yaml:"encoder_port" mapstructure:"encoder_port"`
	HeadbarPort  string `yaml:"headbar_port" mapstructure:"headbar_port"`
	WheelPort    string `yaml:"wheel_port" mapstructure:"wheel_port"`
	LickportPort string `yaml:"lickport_port" mapstructure:"lickport_port"`
}

// Calibration carries the hardware constants an operator tunes per rig.
// cmd/sl-run copies the brake torque bounds and the lick threshold into
// sessiondata.HardwareState at startup; the encoder, valve and torque
// constants recorded there are the ones the module interfaces derive, and
// EncoderCMPerPulse is not read.
type Calibration struct {
	EncoderCMPerPulse float64 `yaml:"encoder_cm_per_pulse" mapstructure:"encoder_cm_per_pulse"`
	BrakeMinTorqueGCM float64 `yaml:"brake_min_torque_g_cm" mapstructure:"brake_min_torque_g_cm"`
	BrakeMaxTorqueGCM float64 `yaml:"brake_max_torque_g_cm" mapstructure:"brake_max_torque_g_cm"`
	WheelDiameterCM   float64 `yaml:"wheel_diameter_cm" mapstructure:"wheel_diameter_cm"`
	LickADCThreshold  uint16  `yaml:"lick_adc_threshold" mapstructure:"lick_adc_threshold"`
	TorqueBaselineADC uint16  `yaml:"torque_baseline_adc" mapstructure:"torque_baseline_adc"`
	TorqueMaxADC      uint16  `yaml:"torque_max_adc" mapstructure:"torque_max_adc"`
	TorqueCapacityGCM float64 `yaml:"torque_capacity_g_cm" mapstructure:"torque_capacity_g_cm"`

	ValveCalibrationPoints []modules.CalibrationPoint `yaml:"valve_calibration_points" mapstructure:"valve_calibration_points"`
}

// UnityBridge carries the MQTT broker address and client id the engine
// dials at startup when a session uses Unity.
type UnityBridge struct {
	BrokerAddress string `yaml:"broker_address" mapstructure:"broker_address"`
	ClientID      string `yaml:"client_id" mapstructure:"client_id"`
}

// EngineConfig is the top-level bootstrap configuration: filesystem roots,
// serial ports, calibration constants, the Unity broker, and the Zaber
// axis geometry (park/maintenance/mount positions, travel limits) for
// every one of the seven motor axes.
type EngineConfig struct {
	Roots        sessiondata.Roots       `yaml:"roots" mapstructure:"roots"`
	Ports        SerialPorts             `yaml:"serial_ports" mapstructure:"serial_ports"`
	Calibration  Calibration             `yaml:"calibration" mapstructure:"calibration"`
	Unity        UnityBridge             `yaml:"unity" mapstructure:"unity"`
	AxisGeometry map[string]AxisGeometry `yaml:"axis_geometry" mapstructure:"axis_geometry"`

	VisualizerAddr string `yaml:"visualizer_addr" mapstructure:"visualizer_addr"`
}

// AxisGeometry is the per-axis geometry an operator tunes once per rig:
// park/maintenance/mount positions and travel limits, in native motor
// units, matching the fields internal/motors.Axis exposes.
type AxisGeometry struct {
	ParkPosition        int32 `yaml:"park_position" mapstructure:"park_position"`
	MaintenancePosition int32 `yaml:"maintenance_position" mapstructure:"maintenance_position"`
	MountPosition       int32 `yaml:"mount_position" mapstructure:"mount_position"`
	MinLimit            int32 `yaml:"min_limit" mapstructure:"min_limit"`
	MaxLimit            int32 `yaml:"max_limit" mapstructure:"max_limit"`
}

// Apply copies an AxisGeometry entry onto an already-constructed Axis.
func (g AxisGeometry) Apply(axis *motors.Axis) {
	axis.ParkPosition = g.ParkPosition
	axis.MaintenancePosition = g.MaintenancePosition
	axis.MountPosition = g.MountPosition
	axis.MinLimit = g.MinLimit
	axis.MaxLimit = g.MaxLimit
}

// Load reads path (YAML) into an EngineConfig, following the teacher's
// viper-backed pattern (SetConfigFile/SetConfigType/AddConfigPath then
// Unmarshal) rather than hand-rolling a decoder.
func Load(path string) (*EngineConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(filepath.Base(path))
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))

	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &EngineConfig{}
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders an EngineConfig back to YAML bytes.
func Marshal(cfg *EngineConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}
