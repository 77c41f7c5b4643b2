package modules

import "github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"

// recordingSink is a minimal Sink used across module tests to assert on the
// outbound command frames a module interface emits.
type recordingSink struct {
	sent []transport.Frame
}

func newRecordingSink() *recordingSink {
	return &recordingSink{}
}

func (s *recordingSink) Send(fr transport.Frame) error {
	s.sent = append(s.sent, fr)
	return nil
}
