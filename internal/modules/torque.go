package modules

import (
	"encoding/binary"
	"math"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// TorqueModuleType is the module type byte for the running-wheel torque
// sensor (§4.2).
const TorqueModuleType uint8 = 6

// TorqueADCReport is the single inbound event code: a u16 ADC reading.
const TorqueADCReport uint8 = 51

// TorqueInterface reads the wheel's torque sensor. Per §4.2 it requires no
// tracker: its ADC readings are logged as-is and converted to N*cm only on
// demand (e.g. for display), not accumulated.
type TorqueInterface struct {
	Base

	BaselineADC       uint16
	MaxADC            uint16
	SensorCapacityGCM float64
	PollingUS         uint64

	torquePerADC float64
}

// NewTorqueInterface precomputes torque_per_adc per §4.2.
func NewTorqueInterface(moduleID uint8, baselineADC, maxADC uint16, sensorCapacityGCM float64, pollingUS uint64, log clock.Logger) *TorqueInterface {
	return &TorqueInterface{
		Base:              NewBase(TorqueModuleType, moduleID, log),
		BaselineADC:       baselineADC,
		MaxADC:            maxADC,
		SensorCapacityGCM: sensorCapacityGCM,
		PollingUS:         pollingUS,
		torquePerADC:      sensorCapacityGCM * gCMToNCM / float64(int(maxADC)-int(baselineADC)),
	}
}

// TorquePerADC exposes the precomputed N*cm-per-ADC-count constant, recorded
// in the HardwareState snapshot (§3).
func (tq *TorqueInterface) TorquePerADC() float64 { return tq.torquePerADC }

// TorqueFromADC converts a raw reading to N*cm using the precomputed slope,
// referenced from baseline.
func (tq *TorqueInterface) TorqueFromADC(reading uint16) float64 {
	return float64(int(reading)-int(tq.BaselineADC)) * tq.torquePerADC
}

// EventCodes lists the inbound events this module expects.
func (tq *TorqueInterface) EventCodes() []uint8 {
	return []uint8{TorqueADCReport}
}

// InitialParameters builds the set_parameters frame for the sensor range.
func (tq *TorqueInterface) InitialParameters() transport.Frame {
	payload := make([]byte, 2+2+8+8)
	binary.LittleEndian.PutUint16(payload[0:2], tq.BaselineADC)
	binary.LittleEndian.PutUint16(payload[2:4], tq.MaxADC)
	binary.LittleEndian.PutUint64(payload[4:12], math.Float64bits(tq.SensorCapacityGCM))
	binary.LittleEndian.PutUint64(payload[12:20], tq.PollingUS)
	return transport.Frame{ModuleType: tq.ModuleType, ModuleID: tq.ModuleID, Code: CmdSetParameters, Payload: payload}
}

// HandleEvent is intentionally a no-op beyond validation: torque readings
// are logged by the owning channel from the raw frame, not accumulated into
// a tracker (§4.2: "No tracker required; events logged only").
func (tq *TorqueInterface) HandleEvent(code uint8, payload []byte, _ uint64) {
	if code != TorqueADCReport {
		return
	}
	if len(payload) < 2 && tq.log != nil {
		tq.log.Printf("torque: %v", errShortPayload(2, len(payload)))
	}
}

// EnableMonitoring starts a repeated check_state at the sensor polling delay.
func (tq *TorqueInterface) EnableMonitoring() {
	tq.Repeated(nil, tq.PollingUS)
}

// DisableMonitoring clears the command queue.
func (tq *TorqueInterface) DisableMonitoring() {
	tq.ResetQueue()
}
