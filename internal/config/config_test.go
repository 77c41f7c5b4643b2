package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/motors"
)

const sampleYAML = `
roots:
  raw_data_root: /data/raw
  persistent_root: /data/persistent
  nas_root: /mnt/nas
  server_root: /mnt/server
  mesoscope_shared: /mnt/meso-shared
  mesoscope_persist: /mnt/meso-persist

serial_ports:
  actor_port: /dev/ttyACM0
  sensor_port: /dev/ttyACM1
  encoder_port: /dev/ttyACM2
  headbar_port: /dev/ttyUSB0
  wheel_port: /dev/ttyUSB1
  lickport_port: /dev/ttyUSB2

calibration:
  encoder_cm_per_pulse: 0.0216
  brake_min_torque_g_cm: 10
  brake_max_torque_g_cm: 180
  wheel_diameter_cm: 15
  lick_adc_threshold: 500
  torque_baseline_adc: 2048
  torque_max_adc: 4095
  torque_capacity_g_cm: 500
  valve_calibration_points:
    - pulse_us: 10
      volume_ul: 1
    - pulse_us: 100
      volume_ul: 5
    - pulse_us: 1000
      volume_ul: 20

unity:
  broker_address: tcp://127.0.0.1:1883
  client_id: sl-engine

visualizer_addr: 127.0.0.1:9001

axis_geometry:
  headbar_z:
    park_position: 0
    maintenance_position: 1000
    mount_position: 2000
    min_limit: -50000
    max_limit: 50000
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	path := writeSample(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Ports.ActorPort != "/dev/ttyACM0" {
		t.Fatalf("ActorPort = %q, want /dev/ttyACM0", cfg.Ports.ActorPort)
	}
	if cfg.Calibration.EncoderCMPerPulse != 0.0216 {
		t.Fatalf("EncoderCMPerPulse = %v, want 0.0216", cfg.Calibration.EncoderCMPerPulse)
	}
	if cfg.Unity.BrokerAddress != "tcp://127.0.0.1:1883" {
		t.Fatalf("BrokerAddress = %q, want tcp://127.0.0.1:1883", cfg.Unity.BrokerAddress)
	}
	geo, ok := cfg.AxisGeometry["headbar_z"]
	if !ok {
		t.Fatal("expected headbar_z axis geometry entry")
	}
	if geo.MountPosition != 2000 {
		t.Fatalf("MountPosition = %d, want 2000", geo.MountPosition)
	}
	if len(cfg.Calibration.ValveCalibrationPoints) != 3 {
		t.Fatalf("len(ValveCalibrationPoints) = %d, want 3", len(cfg.Calibration.ValveCalibrationPoints))
	}
	if got := cfg.Calibration.ValveCalibrationPoints[1]; got.PulseUS != 100 || got.VolumeUL != 5 {
		t.Fatalf("ValveCalibrationPoints[1] = %+v, want {PulseUS:100 VolumeUL:5}", got)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent file")
	}
}

func TestAxisGeometryApplyCopiesFields(t *testing.T) {
	geo := AxisGeometry{ParkPosition: 1, MaintenancePosition: 2, MountPosition: 3, MinLimit: -9, MaxLimit: 9}
	axis := &motors.Axis{Label: "wheel_x"}
	geo.Apply(axis)

	if axis.ParkPosition != 1 || axis.MaintenancePosition != 2 || axis.MountPosition != 3 || axis.MinLimit != -9 || axis.MaxLimit != 9 {
		t.Fatalf("axis after Apply = %+v, want fields copied from %+v", axis, geo)
	}
}

func TestMarshalRoundTrips(t *testing.T) {
	path := writeSample(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	out, err := Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty marshaled YAML")
	}
}
