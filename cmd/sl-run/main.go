// Command sl-run is the thin operator-facing entry point that wires one
// session's hardware, loads its descriptor, and drives the engine through
// startup, its task controller, and shutdown. The CLI surface itself
// (flag parsing, descriptor authoring) is intentionally minimal: spec.md
// §1 places the actual operator tooling out of scope, leaving this binary
// as the wiring harness the engine package needs to run for real.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/config"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/controlui"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/engine"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/logbus"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/mcu"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/modules"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/motors"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/unity"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/visualizer"
)

var (
	configPath     = flag.String("config", "config.yaml", "path to the engine bootstrap configuration")
	descriptorPath = flag.String("descriptor", "", "path to the session descriptor YAML (required)")
	projectName    = flag.String("project", "", "project name")
	animalID       = flag.String("animal", "", "animal id")
	softwareVer    = flag.String("software-version", "dev", "software version stamped into the session identity")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sl-run:", err)
		os.Exit(1)
	}
}

func run() error {
	if *descriptorPath == "" {
		return fmt.Errorf("sl-run: -descriptor is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("sl-run: load config: %w", err)
	}

	descriptor, err := sessiondata.LoadDescriptorFile(*descriptorPath)
	if err != nil {
		return fmt.Errorf("sl-run: load descriptor: %w", err)
	}
	if err := descriptor.Validate(); err != nil {
		return fmt.Errorf("sl-run: descriptor invalid: %w", err)
	}

	identity := sessiondata.NewSessionIdentity(*projectName, *animalID, descriptor.Type, *softwareVer, nil)
	layout, err := sessiondata.NewFilesystemLayout(identity, cfg.Roots)
	if err != nil {
		return fmt.Errorf("sl-run: build filesystem layout: %w", err)
	}

	// The log bus stages its compressed per-source shards in a scratch
	// directory distinct from the published behavior_data archive;
	// preprocessing step 2 (ArchiveBehaviorLogs) relocates shards from one
	// into the other, so the two must never be the same directory.
	logBusDir := filepath.Join(layout.RawData, "raw_behavior_log")
	clk := clock.New()
	bus, err := logbus.New(logBusDir, clk, nil)
	if err != nil {
		return fmt.Errorf("sl-run: start log bus: %w", err)
	}

	prompt := engine.NewTerminalPrompt(os.Stdin, os.Stdout)
	e := engine.New(clk, bus, nil, prompt)
	e.Identity = identity
	e.Layout = layout
	e.Descriptor = descriptor
	e.LogBusDir = logBusDir
	e.MaxUnconsumedRewards = descriptor.Common.MaxUnconsumedRewards

	if err := wireHardware(e, cfg); err != nil {
		return fmt.Errorf("sl-run: wire hardware: %w", err)
	}

	usesUnity := descriptor.Type == sessiondata.SessionLickTraining ||
		descriptor.Type == sessiondata.SessionRunTraining ||
		descriptor.Type == sessiondata.SessionExperiment
	usesMesoscope := descriptor.Type == sessiondata.SessionExperiment ||
		descriptor.Type == sessiondata.SessionWindowChecking
	e.SetUsesUnity(usesUnity)
	e.SetUsesMesoscope(usesMesoscope)

	if usesUnity {
		clientID := cfg.Unity.ClientID
		if clientID == "" {
			// Every session needs its own MQTT client id so a crashed prior
			// session's stale connection never collides with this one.
			clientID = "sl-run-" + uuid.NewString()
		}
		bridge, err := unity.Connect(cfg.Unity.BrokerAddress, clientID, nil)
		if err != nil {
			return fmt.Errorf("sl-run: connect unity: %w", err)
		}
		e.Unity = bridge
	}

	e.UI = controlui.New()
	e.Visualizer = visualizer.New(nil)
	if cfg.VisualizerAddr != "" {
		e.VisualizerServer = visualizer.NewServer(cfg.VisualizerAddr, e.Visualizer, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var trialDefinitions []sessiondata.TrialDefinition
	var experimentConfigBytes []byte
	var experimentPhases sessiondata.Experiment

	if descriptor.Experiment != nil {
		phases, err := sessiondata.LoadExperiment(descriptor.Experiment.ExperimentConfiguration)
		if err != nil {
			return fmt.Errorf("sl-run: load experiment configuration: %w", err)
		}
		experimentPhases = phases
		experimentConfigBytes, _ = os.ReadFile(descriptor.Experiment.ExperimentConfiguration)
	}

	if err := e.Startup(ctx, engine.StartupOptions{
		TrialDefinitions: trialDefinitions,
		ExperimentConfig: experimentConfigBytes,
	}); err != nil {
		// Startup failure still requires the full shutdown/preprocess ritual
		// per §7's "initialization-time abort" entry, and must leave the
		// descriptor's Incomplete flag set since no task controller ever ran.
		e.SetStartupFailed()
		if shutdownErr := e.Shutdown(ctx); shutdownErr != nil {
			return fmt.Errorf("sl-run: startup failed: %w (shutdown also failed: %v)", err, shutdownErr)
		}
		return fmt.Errorf("sl-run: startup failed: %w", err)
	}

	return runTask(e, ctx, descriptor, experimentPhases)
}

// runTask dispatches to the session's task controller and always invokes
// Shutdown afterward, including when the task controller panics, so the
// motor-park invariant and log-bus/descriptor finalization still run.
func runTask(e *engine.Engine, ctx context.Context, descriptor sessiondata.Descriptor, experimentPhases sessiondata.Experiment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if shutdownErr := e.Shutdown(ctx); shutdownErr != nil {
				err = fmt.Errorf("sl-run: task controller panicked: %v (shutdown also failed: %v)", r, shutdownErr)
				return
			}
			err = fmt.Errorf("sl-run: task controller panicked: %v", r)
		}
	}()

	switch descriptor.Type {
	case sessiondata.SessionLickTraining:
		e.RunLickTraining(*descriptor.LickTraining, e.MaxUnconsumedRewards)
	case sessiondata.SessionRunTraining:
		e.RunTraining(*descriptor.RunTraining, e.MaxUnconsumedRewards)
	case sessiondata.SessionExperiment:
		e.RunExperiment(experimentPhases, e.MaxUnconsumedRewards)
	case sessiondata.SessionWindowChecking:
		e.RunWindowChecking()
	}

	return e.Shutdown(ctx)
}

// wireHardware opens the three microcontroller serial connections, the
// Zaber motor group, and every module interface from the calibration
// constants in cfg, per §4.2-§4.4. Camera acquisition is left to a
// concrete driver plugin supplied at deployment time; the camera
// transport is out of scope at the message layer (spec.md §1), and no
// driver-specific FrameSource/Encoder implementation belongs in this
// generic wiring harness.
func wireHardware(e *engine.Engine, cfg *config.EngineConfig) error {
	actorPort, err := transport.OpenSerial(cfg.Ports.ActorPort, 115200)
	if err != nil {
		return fmt.Errorf("open actor port: %w", err)
	}
	sensorPort, err := transport.OpenSerial(cfg.Ports.SensorPort, 115200)
	if err != nil {
		return fmt.Errorf("open sensor port: %w", err)
	}
	encoderPort, err := transport.OpenSerial(cfg.Ports.EncoderPort, 115200)
	if err != nil {
		return fmt.Errorf("open encoder port: %w", err)
	}

	e.Channels.Actor = mcu.New("actor", mcu.ActorSourceID, actorPort, e.Clock, e.Bus, e.Log)
	e.Channels.Sensor = mcu.New("sensor", mcu.SensorSourceID, sensorPort, e.Clock, e.Bus, e.Log)
	e.Channels.Encoder = mcu.New("encoder", mcu.EncoderSourceID, encoderPort, e.Clock, e.Bus, e.Log)

	e.Hardware.Brake = modules.NewBrakeInterface(1, cfg.Calibration.BrakeMinTorqueGCM, cfg.Calibration.BrakeMaxTorqueGCM, cfg.Calibration.WheelDiameterCM, e.Log)
	e.Hardware.Screen = modules.NewScreenInterface(2, 50000, false, e.Log)
	e.Hardware.Torque = modules.NewTorqueInterface(3, cfg.Calibration.TorqueBaselineADC, cfg.Calibration.TorqueMaxADC, cfg.Calibration.TorqueCapacityGCM, 1000, e.Log)
	valve, err := modules.NewValveInterface(4, cfg.Calibration.ValveCalibrationPoints, e.Log)
	if err != nil {
		return fmt.Errorf("fit valve calibration: %w", err)
	}
	e.Hardware.Valve = valve
	e.Hardware.Lick = modules.NewLickInterface(5, cfg.Calibration.LickADCThreshold, 1000, e.Log)
	e.Hardware.Encoder = modules.NewEncoderInterface(1, 8192, cfg.Calibration.WheelDiameterCM, 1.0, 1000, e.Log)

	e.Channels.Actor.AddModule(e.Hardware.Brake)
	e.Channels.Actor.AddModule(e.Hardware.Screen)
	e.Channels.Actor.AddModule(e.Hardware.Valve)
	e.Channels.Sensor.AddModule(e.Hardware.Torque)
	e.Channels.Sensor.AddModule(e.Hardware.Lick)
	e.Channels.Encoder.AddModule(e.Hardware.Encoder)

	if e.UsesMesoscope() {
		e.Hardware.MesoscopeTTL = modules.NewTTLInterface(6, true, e.Log)
		e.Channels.Sensor.AddModule(e.Hardware.MesoscopeTTL)
	}

	e.HardwareState = sessiondata.HardwareState{
		EncoderCMPerPulse:    e.Hardware.Encoder.CMPerPulse(),
		BrakeMinTorqueGCM:    cfg.Calibration.BrakeMinTorqueGCM,
		BrakeMaxTorqueGCM:    cfg.Calibration.BrakeMaxTorqueGCM,
		LickADCThreshold:     cfg.Calibration.LickADCThreshold,
		ValvePowerLawA:       valve.A,
		ValvePowerLawB:       valve.B,
		TorqueNCMPerADC:      e.Hardware.Torque.TorquePerADC(),
		MesoscopeTTLRecorded: e.UsesMesoscope(),
		SystemStateCodes: map[string]uint8{
			"idle":          uint8(sessiondata.StateIdle),
			"rest":          uint8(sessiondata.StateRest),
			"run":           uint8(sessiondata.StateRun),
			"lick_training": uint8(sessiondata.StateLickTraining),
			"run_training":  uint8(sessiondata.StateRunTraining),
		},
	}

	headbarPort, err := transport.OpenSerial(cfg.Ports.HeadbarPort, 115200)
	if err != nil {
		return fmt.Errorf("open headbar port: %w", err)
	}
	wheelPort, err := transport.OpenSerial(cfg.Ports.WheelPort, 115200)
	if err != nil {
		return fmt.Errorf("open wheel port: %w", err)
	}
	lickportPort, err := transport.OpenSerial(cfg.Ports.LickportPort, 115200)
	if err != nil {
		return fmt.Errorf("open lickport port: %w", err)
	}

	headbar := motors.NewConnection("headbar", headbarPort)
	wheel := motors.NewConnection("wheel", wheelPort)
	lickport := motors.NewConnection("lickport", lickportPort)

	axis := func(label string, id uint8) *motors.Axis {
		a := &motors.Axis{Label: label, ID: id}
		if geo, ok := cfg.AxisGeometry[label]; ok {
			geo.Apply(a)
		}
		return a
	}

	var previous *sessiondata.ZaberPositions
	if cached, err := sessiondata.LoadZaberPositions(e.Layout.PersistentCache); err == nil {
		previous = &cached
	}

	e.Motors = motors.NewGroup(
		headbar, axis("headbar_z", 1), axis("headbar_pitch", 2), axis("headbar_roll", 3),
		wheel, axis("wheel_x", 1),
		lickport, axis("lickport_z", 1), axis("lickport_x", 2), axis("lickport_y", 3),
		previous,
	)

	return nil
}
