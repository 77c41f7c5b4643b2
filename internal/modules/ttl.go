package modules

import (
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/trackers"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// TTLModuleType is the module type byte for external TTL monitors/drivers
// (§4.2). Multiple TTLInterface instances share this type, distinguished by
// module id — e.g. one per mesoscope frame-trigger line, one per external
// sync input.
const TTLModuleType uint8 = 1

// TTL inbound event codes.
const (
	TTLInputHigh  uint8 = 52
	TTLInputLow   uint8 = 53
	TTLOutputHigh uint8 = 55
	TTLOutputLow  uint8 = 56
)

// TTLInterface drives or monitors one external TTL line. When PulseReporter
// is set, every InputHigh rising edge increments the shared pulse tracker
// (used for the mesoscope frame-trigger line, among others).
type TTLInterface struct {
	Base

	PulseReporter bool

	tracker *trackers.MesoscopePulseTracker
}

// NewTTLInterface constructs the interface. If pulseReporter is true, a
// tracker is allocated; otherwise Tracker returns nil and HandleEvent only
// forwards to the log bus via the owning channel.
func NewTTLInterface(moduleID uint8, pulseReporter bool, log clock.Logger) *TTLInterface {
	t := &TTLInterface{
		Base:          NewBase(TTLModuleType, moduleID, log),
		PulseReporter: pulseReporter,
	}
	if pulseReporter {
		t.tracker = trackers.NewMesoscopePulseTracker()
	}
	return t
}

// Tracker returns the pulse counter, or nil if this instance is not a pulse
// reporter.
func (t *TTLInterface) Tracker() *trackers.MesoscopePulseTracker {
	return t.tracker
}

// EventCodes lists the inbound events this module expects.
func (t *TTLInterface) EventCodes() []uint8 {
	return []uint8{TTLInputHigh, TTLInputLow, TTLOutputHigh, TTLOutputLow}
}

// InitialParameters has nothing module-specific to configure beyond
// addressing; the pulse-reporter behavior is entirely host-side.
func (t *TTLInterface) InitialParameters() transport.Frame {
	return transport.Frame{ModuleType: t.ModuleType, ModuleID: t.ModuleID, Code: CmdSetParameters}
}

// HandleEvent increments the pulse tracker on every rising edge, when
// configured as a pulse reporter.
func (t *TTLInterface) HandleEvent(code uint8, _ []byte, _ uint64) {
	if code == TTLInputHigh && t.PulseReporter {
		t.tracker.Pulses.Add(1)
	}
}

// SendPulse issues a single fire-and-forget output pulse.
func (t *TTLInterface) SendPulse() {
	t.OneOff(nil)
}

// Toggle drives the output line high (true) or low (false).
func (t *TTLInterface) Toggle(state bool) {
	level := byte(0)
	if state {
		level = 1
	}
	t.OneOff([]byte{level})
}

// CheckState starts a repeated input-level check at the given cycle.
func (t *TTLInterface) CheckState(cycleUS uint64) {
	t.Repeated(nil, cycleUS)
}

// ResetPulseCount zeroes the pulse tracker, if this instance reports pulses.
func (t *TTLInterface) ResetPulseCount() {
	if t.tracker != nil {
		t.tracker.Reset()
	}
}
