package modules

import (
	"encoding/binary"
	"math"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/trackers"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// EncoderModuleType is the module type byte for the quadrature encoder (§4.2).
const EncoderModuleType uint8 = 2

// Encoder inbound event codes.
const (
	EncoderCCWRotated  uint8 = 51
	EncoderCWRotated   uint8 = 52
	EncoderPPRReported uint8 = 53
)

// EncoderInterface drives the quadrature wheel encoder. It precomputes
// cm-per-pulse and unity-per-pulse once, per §4.2, rounded to 8 decimals to
// match the reference implementation's stored calibration precision.
type EncoderInterface struct {
	Base

	PPR             int
	WheelDiameterCM float64
	CMPerUnityUnit  float64
	PollingDelayUS  uint64

	cmPerPulse    float64
	unityPerPulse float64

	tracker *trackers.EncoderTracker
}

// NewEncoderInterface constructs the interface and its tracker.
func NewEncoderInterface(
	moduleID uint8,
	ppr int,
	wheelDiameterCM float64,
	cmPerUnityUnit float64,
	pollingDelayUS uint64,
	log clock.Logger,
) *EncoderInterface {
	e := &EncoderInterface{
		Base:            NewBase(EncoderModuleType, moduleID, log),
		PPR:             ppr,
		WheelDiameterCM: wheelDiameterCM,
		CMPerUnityUnit:  cmPerUnityUnit,
		PollingDelayUS:  pollingDelayUS,
		tracker:         trackers.NewEncoderTracker(),
	}
	e.cmPerPulse = round8(math.Pi * wheelDiameterCM / float64(ppr))
	e.unityPerPulse = round8((math.Pi * wheelDiameterCM) / (float64(ppr) * cmPerUnityUnit))
	return e
}

func round8(v float64) float64 {
	const scale = 1e8
	return math.Round(v*scale) / scale
}

// Tracker returns the shared tracker this interface is the sole writer of.
func (e *EncoderInterface) Tracker() *trackers.EncoderTracker {
	return e.tracker
}

// EventCodes lists the inbound events this module expects.
func (e *EncoderInterface) EventCodes() []uint8 {
	return []uint8{EncoderCCWRotated, EncoderCWRotated, EncoderPPRReported}
}

// InitialParameters builds the set_parameters frame pushed on channel start.
func (e *EncoderInterface) InitialParameters() transport.Frame {
	payload := make([]byte, 8+8+8+8)
	binary.LittleEndian.PutUint64(payload[0:8], uint64(e.PPR))
	binary.LittleEndian.PutUint64(payload[8:16], math.Float64bits(e.WheelDiameterCM))
	binary.LittleEndian.PutUint64(payload[16:24], math.Float64bits(e.CMPerUnityUnit))
	binary.LittleEndian.PutUint64(payload[24:32], e.PollingDelayUS)
	return transport.Frame{ModuleType: e.ModuleType, ModuleID: e.ModuleID, Code: CmdSetParameters, Payload: payload}
}

// HandleEvent mutates the encoder tracker per the sign rule in §4.2: CCW
// positive, CW negative. The PPR-report event (53) is purely informational
// and not mutate-worthy on its own.
func (e *EncoderInterface) HandleEvent(code uint8, payload []byte, _ uint64) {
	switch code {
	case EncoderCCWRotated, EncoderCWRotated:
		if len(payload) < 4 {
			if e.log != nil {
				e.log.Printf("encoder: %v", errShortPayload(4, len(payload)))
			}
			return
		}
		pulses := int32(binary.LittleEndian.Uint32(payload))
		sign := 1.0
		if code == EncoderCWRotated {
			sign = -1.0
		}
		k := math.Abs(float64(pulses))
		e.tracker.DistanceCM.Add(k * e.cmPerPulse)
		e.tracker.PositionUnit.Add(sign * float64(pulses) * e.unityPerPulse)
	case EncoderPPRReported:
		// Informational only; no tracker mutation.
	}
}

// EnableMonitoring resets the pulse counter and starts a repeated
// check_state at the configured polling delay (§4.2).
func (e *EncoderInterface) EnableMonitoring() {
	e.tracker.Reset()
	e.Repeated(nil, e.PollingDelayUS)
}

// DisableMonitoring clears the command queue, stopping the repeated
// check_state.
func (e *EncoderInterface) DisableMonitoring() {
	e.ResetQueue()
}

// ResetDistanceTracker zeroes both tracker slots.
func (e *EncoderInterface) ResetDistanceTracker() {
	e.tracker.Reset()
}

// CMPerPulse exposes the precomputed calibration constant, recorded in the
// HardwareState snapshot (§3).
func (e *EncoderInterface) CMPerPulse() float64 { return e.cmPerPulse }

// UnityPerPulse exposes the precomputed calibration constant.
func (e *EncoderInterface) UnityPerPulse() float64 { return e.unityPerPulse }
