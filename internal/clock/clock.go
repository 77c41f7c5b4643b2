// Package clock provides the monotonic microsecond timer anchored to a UTC
// epoch stamp that every other subsystem times its records against (§4.1).
package clock

import (
	"encoding/binary"
	"time"
)

// Clock hands out monotonic microsecond timestamps relative to an onset
// established once per session. It is intentionally tiny: the session engine
// owns exactly one Clock and every producer (channels, cameras, the engine
// itself) reads from it, never writes.
type Clock struct {
	onset time.Time
}

// New starts a Clock with its onset set to now.
func New() *Clock {
	return &Clock{onset: time.Now()}
}

// Onset returns the UTC epoch bytes recorded at startup (an 8-byte
// little-endian Unix microsecond stamp) alongside the zero monotonic value,
// matching the "onset() -> (wall_utc_bytes, monotonic_zero)" contract in
// §4.1. Callers write the returned bytes as the source_id=1, t=0 log record.
func (c *Clock) Onset() (wallUTC []byte, zero uint64) {
	wallUTC = make([]byte, 8)
	binary.LittleEndian.PutUint64(wallUTC, uint64(c.onset.UnixMicro()))
	return wallUTC, 0
}

// Now returns microseconds elapsed since onset. Never decreases as long as
// the system clock is not adjusted backward during the session.
func (c *Clock) Now() uint64 {
	return uint64(time.Since(c.onset).Microseconds())
}

// Reset re-anchors onset to the current instant. §4.8 startup step 3 calls
// this immediately after the onset record is emitted, so that t=0 in the log
// stream lines up with the moment the onset record was written rather than
// process start.
func (c *Clock) Reset() {
	c.onset = time.Now()
}

// Logger is the injected logging capability threaded through constructors,
// per DESIGN NOTES §9 ("Global console logging -> injected logger capability").
// The teacher never reaches for a structured logging library, logging
// directly with fmt/log at call sites instead, so the default implementation
// here is a thin wrapper over the standard library's *log.Logger rather than
// a third-party logging package.
type Logger interface {
	Printf(format string, args ...any)
	Println(args ...any)
}
