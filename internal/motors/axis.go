// Package motors implements the Zaber motor group described in spec.md
// §4.4: three independent serial connections (headbar, wheel, lickport),
// each hosting 1-3 daisy-chained axes, exposing the prepare/restore/mount/
// unmount/maintenance/park/snapshot vocabulary the engine drives directly
// from its own thread (§5: "Motor group — synchronous calls from the engine
// thread").
package motors

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// Axis command/response codes. The real Zaber ASCII protocol is out of
// scope per spec.md §1 ("low-level serial/USB transport to ... motor
// controllers... specified only at the message layer"); this is that
// message layer, addressed the same way module interfaces are.
const (
	cmdHome         uint8 = 1
	cmdMoveAbs      uint8 = 2
	cmdPark         uint8 = 3
	cmdUnpark       uint8 = 4
	cmdQueryState   uint8 = 5
	respStateReport uint8 = 50
)

// axisState is the unpacked response to cmdQueryState.
type axisState struct {
	position int32
	busy     bool
	homed    bool
	parked   bool
}

// pollInterval bounds how often wait_until_idle re-polls axis state; it is
// the "axis driver's built-in pacing" mentioned in §4.4.
const pollInterval = 10 * time.Millisecond

// Axis is one motor on a daisy-chained connection. Positions are in native
// motor units (signed), per §3's ZaberPositions.
type Axis struct {
	Label string
	ID    uint8

	ParkPosition        int32
	MaintenancePosition int32
	MountPosition       int32
	MinLimit            int32
	MaxLimit            int32

	conn *Connection
}

func (a *Axis) queryState() (axisState, error) {
	fr, err := a.conn.roundTrip(transport.Frame{ModuleID: a.ID, Code: cmdQueryState})
	if err != nil {
		return axisState{}, err
	}
	if fr.Code != respStateReport || len(fr.Payload) < 5 {
		return axisState{}, fmt.Errorf("motors: axis %s: malformed state report", a.Label)
	}
	flags := fr.Payload[4]
	return axisState{
		position: int32(binary.LittleEndian.Uint32(fr.Payload[0:4])),
		busy:     flags&0x1 != 0,
		homed:    flags&0x2 != 0,
		parked:   flags&0x4 != 0,
	}, nil
}

// IsBusy reports whether the axis is currently executing a motion command.
func (a *Axis) IsBusy() bool {
	st, err := a.queryState()
	return err == nil && st.busy
}

// IsHomed reports whether the axis has a stable motion reference point.
func (a *Axis) IsHomed() bool {
	st, err := a.queryState()
	return err == nil && st.homed
}

// IsParked reports whether the axis's safety lock is engaged.
func (a *Axis) IsParked() bool {
	st, err := a.queryState()
	return err == nil && st.parked
}

// GetPosition returns the axis's current absolute position.
func (a *Axis) GetPosition() int32 {
	st, err := a.queryState()
	if err != nil {
		return 0
	}
	return st.position
}

// Home initiates homing. Non-blocking, per §4.4 ("home each axis in
// parallel"): a parked or already-busy axis silently ignores the command.
func (a *Axis) Home() {
	if a.IsParked() || a.IsBusy() {
		return
	}
	_ = a.conn.send(transport.Frame{ModuleID: a.ID, Code: cmdHome})
}

// Move initiates an absolute move to position within the axis's software
// limits. Non-blocking; a parked, busy, or unhomed axis silently ignores the
// command, and an out-of-range target is silently ignored, not clamped.
func (a *Axis) Move(position int32) {
	if a.IsBusy() || !a.IsHomed() || a.IsParked() {
		return
	}
	if position < a.MinLimit || position > a.MaxLimit {
		return
	}
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(position))
	_ = a.conn.send(transport.Frame{ModuleID: a.ID, Code: cmdMoveAbs, Payload: payload})
}

// Park engages the axis's safety lock.
func (a *Axis) Park() {
	_ = a.conn.send(transport.Frame{ModuleID: a.ID, Code: cmdPark})
}

// Unpark releases the axis's safety lock.
func (a *Axis) Unpark() {
	_ = a.conn.send(transport.Frame{ModuleID: a.ID, Code: cmdUnpark})
}

// Connection is one daisy-chained serial connection hosting 1-3 axes
// (headbar, wheel, or lickport), per §4.4.
type Connection struct {
	Name      string
	Connected bool

	port transport.Port
	mu   sync.Mutex
}

// NewConnection wraps an already-open port. If port is nil, the connection
// is marked not-connected and every axis command against it is a no-op
// (§4.4: "Motors that are not connected are silently skipped").
func NewConnection(name string, port transport.Port) *Connection {
	return &Connection{Name: name, port: port, Connected: port != nil}
}

func (c *Connection) send(fr transport.Frame) error {
	if !c.Connected {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.WriteFrame(fr)
}

// roundTrip serializes a write/read pair against the daisy-chained port so
// concurrent axis queries (e.g. parallel homing) never interleave on one
// connection.
func (c *Connection) roundTrip(fr transport.Frame) (transport.Frame, error) {
	if !c.Connected {
		return transport.Frame{}, fmt.Errorf("motors: %s connection not connected", c.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.port.WriteFrame(fr); err != nil {
		return transport.Frame{}, err
	}
	return c.port.ReadFrame()
}

// Close closes the underlying port, if connected.
func (c *Connection) Close() error {
	if !c.Connected {
		return nil
	}
	return c.port.Close()
}
