// Package transport defines the message-layer contract to microcontrollers
// and motor controllers. spec.md §1 explicitly scopes the low-level
// serial/USB transport itself as an external collaborator ("specified only
// at the message layer") — this package is that message layer: a minimal
// frame Port plus a real go.bug.st/serial-backed implementation, with
// everything below "write these bytes, read these bytes" left to the driver.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// Frame is the wire unit exchanged with a microcontroller: a module type,
// module id, event/command code, and an opaque payload. §4.2/§4.3 describe
// interfaces as addressed by (module type, module id) and channels as
// routing inbound frames by that same key.
type Frame struct {
	ModuleType uint8
	ModuleID   uint8
	Code       uint8
	Payload    []byte
}

// Port is the minimal contract a microcontroller or motor-controller
// connection must satisfy. Implementations are expected to be safe for
// concurrent ReadFrame/WriteFrame use by at most one reader and one writer
// goroutine respectively, which matches how mcu.Channel drives them.
type Port interface {
	WriteFrame(Frame) error
	ReadFrame() (Frame, error)
	Close() error
}

// wireFrame layout: [module_type(1)][module_id(1)][code(1)][len(2 LE)][payload...]
const headerSize = 5

// SerialPort adapts a go.bug.st/serial connection to the Port contract.
type SerialPort struct {
	port serial.Port
	r    *bufio.Reader
	mu   sync.Mutex
}

// OpenSerial opens the named port (e.g. "/dev/ttyACM0") at the given baud
// rate, suitable for the Actor/Sensor/Encoder microcontroller channels and
// the Zaber motor group's three daisy-chain connections.
func OpenSerial(name string, baud int) (*SerialPort, error) {
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}
	return &SerialPort{port: p, r: bufio.NewReader(p)}, nil
}

// WriteFrame serializes and writes a single frame. Fire-and-forget per
// §4.2's failure semantics: callers log transport errors but do not treat
// them as fatal to the session.
func (s *SerialPort) WriteFrame(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header := make([]byte, headerSize)
	header[0] = f.ModuleType
	header[1] = f.ModuleID
	header[2] = f.Code
	binary.LittleEndian.PutUint16(header[3:5], uint16(len(f.Payload)))
	if _, err := s.port.Write(header); err != nil {
		return fmt.Errorf("transport: write header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := s.port.Write(f.Payload); err != nil {
			return fmt.Errorf("transport: write payload: %w", err)
		}
	}
	return nil
}

// ReadFrame blocks until a full frame has been read from the port.
func (s *SerialPort) ReadFrame() (Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(s.r, header); err != nil {
		return Frame{}, err
	}

	payloadLen := binary.LittleEndian.Uint16(header[3:5])
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(s.r, payload); err != nil {
			return Frame{}, err
		}
	}

	return Frame{
		ModuleType: header[0],
		ModuleID:   header[1],
		Code:       header[2],
		Payload:    payload,
	}, nil
}

// Close closes the underlying serial connection.
func (s *SerialPort) Close() error {
	return s.port.Close()
}

// Reset sends a bare reset frame (module type/id zero, code zero) that every
// microcontroller firmware interprets as "reinitialize", per the channel
// start sequence in §4.3 ("open port -> send reset -> ...").
func (s *SerialPort) Reset() error {
	return s.WriteFrame(Frame{})
}
