// Package modules implements the per-hardware-module interfaces described in
// spec.md §4.2: one object per hardware module, each with an 8-bit module
// type and module id, a set of expected inbound event codes, typed outbound
// commands, and (for most modules) a shared tracker it is the sole writer
// of. §4.2's "Failure semantics" governs every interface uniformly: command
// frames are fire-and-forget, and transport errors are logged but never
// abort the engine — interfaces rely on tracker/Unity/mesoscope effects for
// liveness, not acknowledgements.
package modules

import (
	"fmt"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// Outbound command opcodes, distinct from each module's inbound event codes
// (which are module-specific and start at 51 per §4.2). These are the
// generic envelope every interface uses for set_parameters/one_off/repeated/
// reset_queue, with the module-specific payload carried in Frame.Payload.
const (
	CmdSetParameters uint8 = 1
	CmdOneOff        uint8 = 2
	CmdRepeated      uint8 = 3
	CmdResetQueue    uint8 = 4
)

// Sink is the narrow interface a module interface needs from its owning
// mcu.Channel: a place to push outbound frames. This is the
// "no cross-thread mutable references" pattern from DESIGN NOTES §9 —
// modules never touch the channel's internals directly.
type Sink interface {
	Send(transport.Frame) error
}

// Base is embedded by every concrete module interface; it carries the
// addressing (module type/id) and the outbound sink, and centralizes the
// fire-and-forget error logging every interface needs.
type Base struct {
	ModuleType uint8
	ModuleID   uint8
	sink       Sink
	log        clock.Logger
}

// NewBase constructs the common addressing fields. log may be nil.
func NewBase(moduleType, moduleID uint8, log clock.Logger) Base {
	return Base{ModuleType: moduleType, ModuleID: moduleID, log: log}
}

// Attach binds the outbound sink once the owning channel has accepted this
// interface. Before Attach is called, send is a no-op: this lets interfaces
// be constructed (and their derived parameters computed) independently of
// channel wiring, which is how tests exercise the pure event-handling logic.
func (b *Base) Attach(sink Sink) {
	b.sink = sink
}

// send emits one frame addressed to this module, logging (never propagating)
// any transport error, per §4.2's failure semantics.
func (b *Base) send(code uint8, payload []byte) {
	if b.sink == nil {
		return
	}
	frame := transport.Frame{ModuleType: b.ModuleType, ModuleID: b.ModuleID, Code: code, Payload: payload}
	if err := b.sink.Send(frame); err != nil {
		if b.log != nil {
			b.log.Printf("modules: channel degraded sending to type=%d id=%d: %v", b.ModuleType, b.ModuleID, err)
		}
	}
}

// OneOff issues a fire-and-forget one-off command (§4.2). The frame carries
// no blocking/non-blocking flag, so the caller cannot ask the firmware to
// finish this command before accepting further commands for this module.
func (b *Base) OneOff(payload []byte) {
	b.send(CmdOneOff, payload)
}

// Repeated issues a repeated command at the given cycle in microseconds,
// e.g. the periodic check_state used by monitoring.
func (b *Base) Repeated(payload []byte, cycleUs uint64) {
	b.send(CmdRepeated, appendCycle(payload, cycleUs))
}

// ResetQueue clears this module's outbound command queue on the firmware
// side, used when disabling monitoring (§4.2 encoder/lick "disable_monitoring
// clears the command queue").
func (b *Base) ResetQueue() {
	b.send(CmdResetQueue, nil)
}

func appendCycle(payload []byte, cycleUs uint64) []byte {
	out := make([]byte, len(payload)+8)
	copy(out, payload)
	putUint64(out[len(payload):], cycleUs)
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Module is the minimal contract an mcu.Channel needs to own an
// interface: addressing, the set of inbound event codes it expects, the
// initial parameter frame to push on channel start, and event dispatch.
type Module interface {
	Addr() (moduleType, moduleID uint8)
	EventCodes() []uint8
	InitialParameters() transport.Frame
	HandleEvent(code uint8, payload []byte, t uint64)
	Attach(Sink)
}

// Addr returns the module's addressing pair.
func (b *Base) Addr() (moduleType, moduleID uint8) {
	return b.ModuleType, b.ModuleID
}

// errShortPayload builds the error event decoders log when fed a too-small
// event payload.
func errShortPayload(want, got int) error {
	return fmt.Errorf("modules: short payload: want >= %d bytes, got %d", want, got)
}
