package modules

import (
	"encoding/binary"
	"math"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// BrakeModuleType is the module type byte for the electromagnetic wheel
// brake (§4.2).
const BrakeModuleType uint8 = 3

// gCMToNCM converts gram-centimeters to newton-centimeters.
const gCMToNCM = 0.00981

// maxBrakePWM is the firmware's fixed 8-bit PWM ceiling, per §4.2.
const maxBrakePWM = 255

// BrakeInterface drives the running-wheel electromagnetic brake. It has no
// tracker: braking power is a commanded setpoint, not a sensed quantity.
type BrakeInterface struct {
	Base

	MinTorqueGCM    float64
	MaxTorqueGCM    float64
	WheelDiameterCM float64

	minTorqueNCM float64
	maxTorqueNCM float64
	torquePerPWM float64
	forcePerPWM  float64

	lastPWM uint8
}

// NewBrakeInterface precomputes torque_per_pwm and force_per_pwm per §4.2.
func NewBrakeInterface(moduleID uint8, minTorqueGCM, maxTorqueGCM, wheelDiameterCM float64, log clock.Logger) *BrakeInterface {
	br := &BrakeInterface{
		Base:            NewBase(BrakeModuleType, moduleID, log),
		MinTorqueGCM:    minTorqueGCM,
		MaxTorqueGCM:    maxTorqueGCM,
		WheelDiameterCM: wheelDiameterCM,
	}
	br.minTorqueNCM = minTorqueGCM * gCMToNCM
	br.maxTorqueNCM = maxTorqueGCM * gCMToNCM
	br.torquePerPWM = (br.maxTorqueNCM - br.minTorqueNCM) / maxBrakePWM
	br.forcePerPWM = br.torquePerPWM / (wheelDiameterCM / 2)
	return br
}

// EventCodes: the brake reports nothing back; it is commanded open-loop.
func (br *BrakeInterface) EventCodes() []uint8 {
	return nil
}

// InitialParameters pushes the min/max torque so the firmware can clamp.
func (br *BrakeInterface) InitialParameters() transport.Frame {
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint64(payload[0:8], math.Float64bits(br.MinTorqueGCM))
	binary.LittleEndian.PutUint64(payload[8:16], math.Float64bits(br.MaxTorqueGCM))
	return transport.Frame{ModuleType: br.ModuleType, ModuleID: br.ModuleID, Code: CmdSetParameters, Payload: payload}
}

// HandleEvent is a no-op; the brake emits no inbound events.
func (br *BrakeInterface) HandleEvent(uint8, []byte, uint64) {}

// TorquePerPWM exposes the precomputed N*cm-per-PWM-step constant.
func (br *BrakeInterface) TorquePerPWM() float64 { return br.torquePerPWM }

// ForcePerPWM exposes the precomputed N-per-PWM-step constant.
func (br *BrakeInterface) ForcePerPWM() float64 { return br.forcePerPWM }

// SetState engages the brake at max torque (true) or fully disengages it at
// min torque (false) — the two extremes, per §4.2.
func (br *BrakeInterface) SetState(engaged bool) {
	pwm := uint8(0)
	if engaged {
		pwm = maxBrakePWM
	}
	br.lastPWM = pwm
	br.OneOff([]byte{pwm})
}

// SetParameters latches a variable-PWM setpoint for the next
// SetBreakingPower call and sends it in a set-parameters frame; it does not
// itself change the braking power.
func (br *BrakeInterface) SetParameters(pwm uint8) {
	br.lastPWM = pwm
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint64(payload[0:8], math.Float64bits(br.MinTorqueGCM))
	binary.LittleEndian.PutUint64(payload[8:16], math.Float64bits(br.MaxTorqueGCM))
	br.send(CmdSetParameters, append(payload, pwm))
}

// SetBreakingPower activates variable-PWM mode at the last SetParameters
// value, per §4.2.
func (br *BrakeInterface) SetBreakingPower() {
	br.OneOff([]byte{br.lastPWM})
}
