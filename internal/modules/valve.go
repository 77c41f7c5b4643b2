package modules

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/trackers"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// ValveModuleType is the module type byte for the solenoid reward valve (§4.2).
const ValveModuleType uint8 = 5

// Valve inbound event codes.
const (
	ValveOpened          uint8 = 52
	ValveClosed          uint8 = 53
	ValveCalibrationDone uint8 = 54
)

// CalibrationPoint is one (pulse duration, dispensed volume) sample used to
// fit the power-law calibration curve volume = A * duration^B.
type CalibrationPoint struct {
	PulseUS  float64 `yaml:"pulse_us" mapstructure:"pulse_us"`
	VolumeUL float64 `yaml:"volume_ul" mapstructure:"volume_ul"`
}

// durationFloor is the shortest pulse duration (microseconds) the valve is
// considered to reliably dispense, per §4.2's get_duration_from_volume note.
const durationFloor = 10.0

// ValveInterface drives the reward solenoid valve and tracks cumulative
// dispensed volume by timing open->close intervals and applying the fitted
// power law.
type ValveInterface struct {
	Base

	A, B       float64
	Covariance [2][2]float64

	openedAt time.Time
	tracker  *trackers.ValveTracker
}

// NewValveInterface fits the power law from the given calibration points and
// returns a ready-to-use interface.
func NewValveInterface(moduleID uint8, points []CalibrationPoint, log clock.Logger) (*ValveInterface, error) {
	a, b, cov, err := fitPowerLaw(points)
	if err != nil {
		return nil, err
	}
	return &ValveInterface{
		Base:       NewBase(ValveModuleType, moduleID, log),
		A:          a,
		B:          b,
		Covariance: cov,
		tracker:    trackers.NewValveTracker(),
	}, nil
}

// Tracker returns the shared cumulative-volume tracker — the stable handle
// DESIGN NOTES §9 asks callers (e.g. a maintenance UI) to hold rather than
// reach into the interface by name.
func (v *ValveInterface) Tracker() *trackers.ValveTracker {
	return v.tracker
}

// EventCodes lists the inbound events this module expects.
func (v *ValveInterface) EventCodes() []uint8 {
	return []uint8{ValveOpened, ValveClosed, ValveCalibrationDone}
}

// InitialParameters has no calibration payload to push; the fit is computed
// host-side, so the firmware only needs to know this module exists.
func (v *ValveInterface) InitialParameters() transport.Frame {
	return transport.Frame{ModuleType: v.ModuleType, ModuleID: v.ModuleID, Code: CmdSetParameters}
}

// HandleEvent times the open->close interval and applies it to the
// cumulative-volume tracker (§4.2's "Volume accounting").
func (v *ValveInterface) HandleEvent(code uint8, _ []byte, _ uint64) {
	switch code {
	case ValveOpened:
		v.openedAt = time.Now()
	case ValveClosed:
		if v.openedAt.IsZero() {
			return
		}
		elapsedUS := float64(time.Since(v.openedAt).Microseconds())
		v.openedAt = time.Time{}
		v.tracker.VolumeUL.Add(v.A * math.Pow(elapsedUS, v.B))
	case ValveCalibrationDone:
		// Purely informational; calibrate_valve's caller observes this via the log bus.
	}
}

// VolumeForDuration applies the fitted power law forward: volume = A*dur^B.
func (v *ValveInterface) VolumeForDuration(durationUS float64) float64 {
	return v.A * math.Pow(durationUS, v.B)
}

// ErrVolumeTooSmall is returned by DurationForVolume when the requested
// volume is below what the valve can reliably dispense at the duration
// floor, per §4.2.
var ErrVolumeTooSmall = errors.New("modules: requested volume below minimum reliably dispensable volume")

// DurationForVolume inverts the power law to a pulse duration in
// microseconds: dur = (volume/A)^(1/B).
func (v *ValveInterface) DurationForVolume(volumeUL float64) (float64, error) {
	minVolume := v.VolumeForDuration(durationFloor)
	if volumeUL < minVolume {
		return 0, fmt.Errorf("%w: requested %.3f uL, floor is %.3f uL", ErrVolumeTooSmall, volumeUL, minVolume)
	}
	return math.Pow(volumeUL/v.A, 1/v.B), nil
}

// DeliverReward inverts the power law to a duration and issues a one-off
// pulse of that duration (§4.2). The pulse goes out through OneOff, so it
// carries no blocking flag.
func (v *ValveInterface) DeliverReward(volumeUL float64) error {
	durationUS, err := v.DurationForVolume(volumeUL)
	if err != nil {
		return err
	}
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, uint64(durationUS))
	v.OneOff(payload)
	return nil
}

// SetState latches the valve fully open (true) or closed (false).
func (v *ValveInterface) SetState(open bool) {
	state := byte(0)
	if open {
		state = 1
	}
	v.OneOff([]byte{state})
}

// ReferenceValve runs 200 pulses at 5 uL each, per §4.2.
func (v *ValveInterface) ReferenceValve() error {
	durationUS, err := v.DurationForVolume(5.0)
	if err != nil {
		return err
	}
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint64(payload[0:8], 200)
	binary.LittleEndian.PutUint64(payload[8:16], uint64(durationUS))
	v.OneOff(payload)
	return nil
}

// CalibrateValve runs a pulse train at the given pulse duration and reports
// ValveCalibrationDone on completion.
func (v *ValveInterface) CalibrateValve(pulseUS uint64) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, pulseUS)
	v.OneOff(payload)
}

// fitPowerLaw fits volume = A*duration^B to the calibration points using
// Gauss-Newton nonlinear least squares, seeded from the exact solution of
// the log-log linear regression (ln(volume) = ln(A) + B*ln(duration)), and
// returns an approximate parameter covariance from the final Jacobian.
func fitPowerLaw(points []CalibrationPoint) (a, b float64, covariance [2][2]float64, err error) {
	if len(points) < 2 {
		return 0, 0, covariance, errors.New("modules: power-law fit needs at least 2 calibration points")
	}

	n := float64(len(points))
	var sumLnX, sumLnY, sumLnXLnY, sumLnX2 float64
	for _, p := range points {
		if p.PulseUS <= 0 || p.VolumeUL <= 0 {
			return 0, 0, covariance, fmt.Errorf("modules: calibration point must have positive pulse/volume: %+v", p)
		}
		lx, ly := math.Log(p.PulseUS), math.Log(p.VolumeUL)
		sumLnX += lx
		sumLnY += ly
		sumLnXLnY += lx * ly
		sumLnX2 += lx * lx
	}
	b = (n*sumLnXLnY - sumLnX*sumLnY) / (n*sumLnX2 - sumLnX*sumLnX)
	lnA := (sumLnY - b*sumLnX) / n
	a = math.Exp(lnA)

	// Gauss-Newton refinement: residual r_i(A,B) = V_i - A*t_i^B.
	for iter := 0; iter < 25; iter++ {
		var jtj [2][2]float64
		var jtr [2]float64
		for _, p := range points {
			tPowB := math.Pow(p.PulseUS, b)
			pred := a * tPowB
			resid := p.VolumeUL - pred
			dA := -tPowB
			dB := -a * tPowB * math.Log(p.PulseUS)

			jtj[0][0] += dA * dA
			jtj[0][1] += dA * dB
			jtj[1][0] += dB * dA
			jtj[1][1] += dB * dB
			jtr[0] += dA * resid
			jtr[1] += dB * resid
		}

		det := jtj[0][0]*jtj[1][1] - jtj[0][1]*jtj[1][0]
		if math.Abs(det) < 1e-12 {
			break
		}
		deltaA := (-jtr[0]*jtj[1][1] + jtr[1]*jtj[0][1]) / det
		deltaB := (-jtr[1]*jtj[0][0] + jtr[0]*jtj[1][0]) / det
		a += deltaA
		b += deltaB

		if math.Abs(deltaA) < 1e-9 && math.Abs(deltaB) < 1e-9 {
			break
		}
	}

	// Approximate covariance: sigma^2 * (J^T J)^-1, with sigma^2 the residual
	// variance over the n-2 degrees of freedom.
	var sumSqResid float64
	var jtj [2][2]float64
	for _, p := range points {
		tPowB := math.Pow(p.PulseUS, b)
		pred := a * tPowB
		resid := p.VolumeUL - pred
		sumSqResid += resid * resid

		dA := -tPowB
		dB := -a * tPowB * math.Log(p.PulseUS)
		jtj[0][0] += dA * dA
		jtj[0][1] += dA * dB
		jtj[1][0] += dB * dA
		jtj[1][1] += dB * dB
	}
	dof := n - 2
	if dof < 1 {
		dof = 1
	}
	sigma2 := sumSqResid / dof
	det := jtj[0][0]*jtj[1][1] - jtj[0][1]*jtj[1][0]
	if math.Abs(det) > 1e-12 {
		inv00 := jtj[1][1] / det
		inv01 := -jtj[0][1] / det
		inv10 := -jtj[1][0] / det
		inv11 := jtj[0][0] / det
		covariance = [2][2]float64{
			{sigma2 * inv00, sigma2 * inv01},
			{sigma2 * inv10, sigma2 * inv11},
		}
	}

	return a, b, covariance, nil
}
