package modules

import (
	"encoding/binary"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// ScreenModuleType is the module type byte for the VR display-toggle relay
// (§4.2).
const ScreenModuleType uint8 = 7

// ScreenInterface momentarily shorts the display panel's power button via
// relay to toggle it on or off. The panel exposes no state feedback line, so
// the engine must track displayed state itself, seeded from an initial-on
// flag in configuration.
type ScreenInterface struct {
	Base

	PulseDurationUS uint64

	displayed bool
}

// NewScreenInterface constructs the interface, seeding displayed state from
// the configured initial-on flag.
func NewScreenInterface(moduleID uint8, pulseDurationUS uint64, initiallyOn bool, log clock.Logger) *ScreenInterface {
	return &ScreenInterface{
		Base:            NewBase(ScreenModuleType, moduleID, log),
		PulseDurationUS: pulseDurationUS,
		displayed:       initiallyOn,
	}
}

// EventCodes: the screen reports nothing back.
func (s *ScreenInterface) EventCodes() []uint8 {
	return nil
}

// InitialParameters pushes the relay pulse width.
func (s *ScreenInterface) InitialParameters() transport.Frame {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, s.PulseDurationUS)
	return transport.Frame{ModuleType: s.ModuleType, ModuleID: s.ModuleID, Code: CmdSetParameters, Payload: payload}
}

// HandleEvent is a no-op; the screen emits no inbound events.
func (s *ScreenInterface) HandleEvent(uint8, []byte, uint64) {}

// Displayed reports the engine's best-effort tracked display state.
func (s *ScreenInterface) Displayed() bool {
	return s.displayed
}

// SetState emits a single toggle pulse and flips the engine's tracked
// display state to match, per §4.2.
func (s *ScreenInterface) SetState(on bool) {
	if s.displayed == on {
		return
	}
	s.OneOff(nil)
	s.displayed = on
}
