package mcu

import (
	"os"
	"testing"
	"time"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/logbus"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/modules"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/transport"
)

func newTestBus(t *testing.T) *logbus.LogBus {
	t.Helper()
	dir, err := os.MkdirTemp("", "mcu-logbus-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	clk := clock.New()
	bus, err := logbus.New(dir, clk, nil)
	if err != nil {
		t.Fatalf("logbus.New: %v", err)
	}
	t.Cleanup(func() { _ = bus.Stop() })
	return bus
}

func TestChannelPushesInitialParametersOnStart(t *testing.T) {
	port := transport.NewFakePort()
	clk := clock.New()
	bus := newTestBus(t)

	ch := New("sensor", SensorSourceID, port, clk, bus, nil)
	lick := modules.NewLickInterface(1, 500, 1000, nil)
	ch.AddModule(lick)

	if err := ch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ch.Stop()

	if len(port.Written) != 1 {
		t.Fatalf("written %d frames on start, want 1 initial-parameters frame", len(port.Written))
	}
	if port.Written[0].Code != modules.CmdSetParameters {
		t.Fatalf("code = %d, want CmdSetParameters", port.Written[0].Code)
	}
}

func TestChannelRoutesInboundFrameToModule(t *testing.T) {
	port := transport.NewFakePort()
	clk := clock.New()
	bus := newTestBus(t)

	ch := New("sensor", SensorSourceID, port, clk, bus, nil)
	lick := modules.NewLickInterface(1, 500, 1000, nil)
	ch.AddModule(lick)

	if err := ch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer ch.Stop()

	payload := make([]byte, 2)
	payload[0], payload[1] = 0xF4, 0x01 // 500 little-endian
	port.Inject(transport.Frame{ModuleType: modules.LickModuleType, ModuleID: 1, Code: modules.LickADCReport, Payload: payload})

	deadline := time.After(time.Second)
	for lick.Tracker().Licks.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for lick event to be routed")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestChannelStopDisablesMonitoringAndClosesPort(t *testing.T) {
	port := transport.NewFakePort()
	clk := clock.New()
	bus := newTestBus(t)

	ch := New("sensor", SensorSourceID, port, clk, bus, nil)
	lick := modules.NewLickInterface(1, 500, 1000, nil)
	ch.AddModule(lick)

	if err := ch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	lick.EnableMonitoring()

	if err := ch.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if last := port.Written[len(port.Written)-1]; last.Code != modules.CmdResetQueue {
		t.Fatalf("last frame written before close has code %d, want CmdResetQueue", last.Code)
	}
	if _, err := port.ReadFrame(); err != transport.ErrClosed {
		t.Fatalf("ReadFrame after Stop = %v, want ErrClosed", err)
	}
}
