package motors

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// fakeAxisPort is a minimal synchronous request/response Port standing in
// for a real Zaber daisy-chain connection: it remembers per-axis-id state
// and answers cmdQueryState with the current snapshot.
type fakeAxisPort struct {
	mu      sync.Mutex
	states  map[uint8]*axisState
	lastReq transport.Frame
}

func newFakeAxisPort() *fakeAxisPort {
	return &fakeAxisPort{states: make(map[uint8]*axisState)}
}

func (f *fakeAxisPort) stateFor(id uint8) *axisState {
	st, ok := f.states[id]
	if !ok {
		st = &axisState{}
		f.states[id] = st
	}
	return st
}

func (f *fakeAxisPort) WriteFrame(fr transport.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = fr
	st := f.stateFor(fr.ModuleID)
	switch fr.Code {
	case cmdPark:
		st.parked = true
	case cmdUnpark:
		st.parked = false
	case cmdHome:
		st.homed = true
	case cmdMoveAbs:
		st.position = int32(binary.LittleEndian.Uint32(fr.Payload))
	}
	return nil
}

func (f *fakeAxisPort) ReadFrame() (transport.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.stateFor(f.lastReq.ModuleID)
	payload := make([]byte, 5)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(st.position))
	var flags byte
	if st.busy {
		flags |= 0x1
	}
	if st.homed {
		flags |= 0x2
	}
	if st.parked {
		flags |= 0x4
	}
	payload[4] = flags
	return transport.Frame{ModuleID: f.lastReq.ModuleID, Code: respStateReport, Payload: payload}, nil
}

func (f *fakeAxisPort) Close() error { return nil }

func newTestAxis(t *testing.T, label string, id uint8, conn *Connection) *Axis {
	t.Helper()
	return &Axis{
		Label:               label,
		ID:                  id,
		ParkPosition:        0,
		MaintenancePosition: 1000,
		MountPosition:       2000,
		MinLimit:            -100000,
		MaxLimit:            100000,
		conn:                conn,
	}
}
