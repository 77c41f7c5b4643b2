package logbus

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
)

func shardArchivePath(dir string, sourceID uint8) string {
	return filepath.Join(dir, fmt.Sprintf("%03d.log.zst", sourceID))
}

func TestOnsetWritesSourceOneAtZero(t *testing.T) {
	dir := t.TempDir()
	clk := clock.New()
	bus, err := New(dir, clk, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	bus.Onset()
	bus.Put(5, clk.Now(), []byte{1, 2, 3})

	if err := bus.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	for _, want := range []uint8{EngineSourceID, 5} {
		if _, err := os.Stat(shardArchivePath(dir, want)); err != nil {
			t.Fatalf("expected archive for source %d: %v", want, err)
		}
	}
}

func TestPutAfterStopDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	clk := clock.New()
	bus, err := New(dir, clk, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := bus.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		bus.Put(2, 0, []byte("late"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Put after Stop blocked")
	}
}

func TestDegradedOnBackwardTime(t *testing.T) {
	dir := t.TempDir()
	clk := clock.New()
	bus, err := New(dir, clk, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	bus.Put(3, 100, []byte("a"))
	bus.Put(3, 50, []byte("b"))
	// Give the writer goroutine a moment to process both sends.
	time.Sleep(50 * time.Millisecond)
	if !bus.Degraded() {
		t.Fatal("Degraded() = false, want true after out-of-order records")
	}
	_ = bus.Stop()
}
