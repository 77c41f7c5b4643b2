package modules

import (
	"encoding/binary"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/trackers"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// LickModuleType is the module type byte for the lick sensor (§4.2).
const LickModuleType uint8 = 4

// LickADCReport is the single inbound event code: a u16 ADC reading.
const LickADCReport uint8 = 51

// LickInterface detects lick events from a thresholded ADC reading. Edge
// rule per §4.2: increments on reading >= threshold AND the previous reading
// was zero; every zero reading re-arms the detector.
type LickInterface struct {
	Base

	ThresholdADC   uint16
	PollingDelayUS uint64

	armed   bool
	tracker *trackers.LickTracker
}

// NewLickInterface constructs the interface, armed (ready to detect) by default.
func NewLickInterface(moduleID uint8, thresholdADC uint16, pollingDelayUS uint64, log clock.Logger) *LickInterface {
	return &LickInterface{
		Base:           NewBase(LickModuleType, moduleID, log),
		ThresholdADC:   thresholdADC,
		PollingDelayUS: pollingDelayUS,
		armed:          true,
		tracker:        trackers.NewLickTracker(),
	}
}

// Tracker returns the shared lick counter.
func (l *LickInterface) Tracker() *trackers.LickTracker {
	return l.tracker
}

// EventCodes lists the inbound events this module expects.
func (l *LickInterface) EventCodes() []uint8 {
	return []uint8{LickADCReport}
}

// InitialParameters builds the set_parameters frame for the ADC threshold.
func (l *LickInterface) InitialParameters() transport.Frame {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, l.ThresholdADC)
	return transport.Frame{ModuleType: l.ModuleType, ModuleID: l.ModuleID, Code: CmdSetParameters, Payload: payload}
}

// HandleEvent applies the edge-detection rule from §4.2.
func (l *LickInterface) HandleEvent(code uint8, payload []byte, _ uint64) {
	if code != LickADCReport {
		return
	}
	if len(payload) < 2 {
		if l.log != nil {
			l.log.Printf("lick: %v", errShortPayload(2, len(payload)))
		}
		return
	}

	reading := binary.LittleEndian.Uint16(payload)
	if reading == 0 {
		l.armed = true
		return
	}
	if reading >= l.ThresholdADC && l.armed {
		l.tracker.Licks.Add(1)
		l.armed = false
	}
}

// EnableMonitoring starts a repeated check_state at the sensor polling delay.
func (l *LickInterface) EnableMonitoring() {
	l.Repeated(nil, l.PollingDelayUS)
}

// DisableMonitoring clears the command queue.
func (l *LickInterface) DisableMonitoring() {
	l.ResetQueue()
}
