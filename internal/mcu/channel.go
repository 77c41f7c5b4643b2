// Package mcu implements the three microcontroller channels described in
// spec.md §4.3: Actor, Sensor, and Encoder. Each channel owns a disjoint set
// of hardware module interfaces, routes inbound frames to them by
// (module type, module id), and forwards every inbound frame to the log bus
// with a channel-assigned monotonic stamp.
package mcu

import (
	"fmt"
	"sync"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/logbus"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/modules"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

// Log bus source ids reserved for the three channels; EngineSourceID (1) is
// reserved by the engine itself (§4.1).
const (
	ActorSourceID   uint8 = 2
	SensorSourceID  uint8 = 3
	EncoderSourceID uint8 = 4
)

// resettable is implemented by transport.SerialPort; FakePort in tests
// doesn't need a hardware reset line and simply isn't asserted to it.
type resettable interface {
	Reset() error
}

// monitored is implemented by module interfaces that run continuous
// monitoring and must be told to stop it on channel shutdown (§4.3
// "send monitoring-off to every owned interface").
type monitored interface {
	DisableMonitoring()
}

func moduleKey(moduleType, moduleID uint8) uint16 {
	return uint16(moduleType)<<8 | uint16(moduleID)
}

// Channel is one of the three parallel microcontroller transports. It
// implements modules.Sink so owned interfaces can send commands directly
// through it.
type Channel struct {
	Name     string
	SourceID uint8

	port transport.Port
	clk  *clock.Clock
	bus  *logbus.LogBus
	log  clock.Logger

	mods map[uint16]modules.Module

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a channel bound to an already-open port. Modules must be
// added with AddModule before Start.
func New(name string, sourceID uint8, port transport.Port, clk *clock.Clock, bus *logbus.LogBus, log clock.Logger) *Channel {
	return &Channel{
		Name:     name,
		SourceID: sourceID,
		port:     port,
		clk:      clk,
		bus:      bus,
		log:      log,
		mods:     make(map[uint16]modules.Module),
		done:     make(chan struct{}),
	}
}

// AddModule registers an interface with this channel and attaches the
// channel as its outbound sink. Must be called before Start.
func (c *Channel) AddModule(m modules.Module) {
	moduleType, moduleID := m.Addr()
	c.mods[moduleKey(moduleType, moduleID)] = m
	m.Attach(c)
}

// Send implements modules.Sink by writing directly to the port.
func (c *Channel) Send(fr transport.Frame) error {
	return c.port.WriteFrame(fr)
}

// Start performs the §4.3 channel-start sequence: reset, push initial
// set_parameters for every owned interface, then enter the steady-state
// read loop on its own goroutine.
func (c *Channel) Start() error {
	if r, ok := c.port.(resettable); ok {
		if err := r.Reset(); err != nil {
			return fmt.Errorf("mcu: %s reset: %w", c.Name, err)
		}
	}
	for _, m := range c.mods {
		if err := c.port.WriteFrame(m.InitialParameters()); err != nil {
			return fmt.Errorf("mcu: %s push initial parameters: %w", c.Name, err)
		}
	}

	c.wg.Add(1)
	go c.run()
	return nil
}

func (c *Channel) run() {
	defer c.wg.Done()
	for {
		fr, err := c.port.ReadFrame()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if c.log != nil {
				c.log.Printf("mcu: %s channel degraded: %v", c.Name, err)
			}
			return
		}

		t := c.clk.Now()
		c.bus.Put(c.SourceID, t, encodeFrame(fr))

		if m, ok := c.mods[moduleKey(fr.ModuleType, fr.ModuleID)]; ok {
			m.HandleEvent(fr.Code, fr.Payload, t)
		}
	}
}

// Stop performs the §4.3 channel-stop sequence: monitoring-off to every
// owned interface, drain the read loop, close the port.
func (c *Channel) Stop() error {
	for _, m := range c.mods {
		if mon, ok := m.(monitored); ok {
			mon.DisableMonitoring()
		}
	}
	close(c.done)
	err := c.port.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("mcu: %s close port: %w", c.Name, err)
	}
	return nil
}

// encodeFrame serializes a frame for the log bus: [module_type][module_id][code][payload...].
func encodeFrame(fr transport.Frame) []byte {
	out := make([]byte, 3+len(fr.Payload))
	out[0] = fr.ModuleType
	out[1] = fr.ModuleID
	out[2] = fr.Code
	copy(out[3:], fr.Payload)
	return out
}
