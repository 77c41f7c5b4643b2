// Package logbus implements the single append-only log sink described in
// spec.md §4.1: a single-producer-many-writers stream keyed by
// (source_id, acquisition_time_µs, payload_bytes). Every microcontroller
// channel, camera pipeline, and the engine itself enqueue records here; one
// writer goroutine owns the disk.
package logbus

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/klauspost/compress/zstd"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
)

// EngineSourceID is reserved for the engine's own tagged control records
// (§4.1 "The engine reserves source_id=1").
const EngineSourceID uint8 = 1

// Record is one heterogeneous log entry. T is explicit per record so a
// reader can tolerate gaps between sources, per the §4.1 invariant.
type Record struct {
	SourceID uint8
	T        uint64
	Payload  []byte
}

// flushInterval bounds how long an enqueued record can sit in the writer's
// buffer before being written to its shard file.
const flushInterval = 100 * time.Millisecond

// LogBus is the append-only sink. Put is non-blocking from the caller's
// perspective (it only contends on a buffered channel send); the single
// writer goroutine does all disk I/O.
type LogBus struct {
	dir     string
	clk     *clock.Clock
	log     clock.Logger
	records chan Record
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	lastT   map[uint8]uint64
	shards  map[uint8]*bufio.Writer
	files   map[uint8]*os.File
	degrade bool
}

// New creates a LogBus that shards records under dir/<source_id>.log. dir is
// created if missing.
func New(dir string, clk *clock.Clock, log clock.Logger) (*LogBus, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logbus: create dir: %w", err)
	}

	bus := &LogBus{
		dir:     dir,
		clk:     clk,
		log:     log,
		records: make(chan Record, 4096),
		done:    make(chan struct{}),
		lastT:   make(map[uint8]uint64),
		shards:  make(map[uint8]*bufio.Writer),
		files:   make(map[uint8]*os.File),
	}

	bus.wg.Add(1)
	go bus.run()
	return bus, nil
}

// Onset writes the UTC anchor record from the engine's clock, with t=0, per
// §4.1 and the startup sequence step 3 in §4.8.
func (b *LogBus) Onset() {
	wallUTC, zero := b.clk.Onset()
	b.Put(EngineSourceID, zero, wallUTC)
}

// Put enqueues a record for asynchronous write. It never blocks the caller
// beyond a channel send; if the writer has already stopped, Put is a no-op.
func (b *LogBus) Put(sourceID uint8, t uint64, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	select {
	case b.records <- Record{SourceID: sourceID, T: t, Payload: cp}:
	case <-b.done:
	}
}

func (b *LogBus) run() {
	defer b.wg.Done()
	ticker := channerics.NewTicker(b.done, flushInterval)
	for {
		select {
		case rec, ok := <-b.records:
			if !ok {
				return
			}
			b.write(rec)
		case <-ticker:
			b.flushAll()
		case <-b.done:
			b.drain()
			return
		}
	}
}

// drain writes any records still queued after Stop() was requested, so a
// graceful shutdown never silently loses the tail of the stream.
func (b *LogBus) drain() {
	for {
		select {
		case rec, ok := <-b.records:
			if !ok {
				return
			}
			b.write(rec)
		default:
			b.flushAll()
			return
		}
	}
}

func (b *LogBus) write(rec Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.lastT[rec.SourceID]; ok && rec.T < last {
		// Non-decreasing-per-source is an invariant of well-behaved producers;
		// a violation is logged, never fatal to the session (§4.1, §7 propagation policy).
		b.degrade = true
		if b.log != nil {
			b.log.Printf("logbus: source %d time went backward: %d -> %d", rec.SourceID, last, rec.T)
		}
	}
	b.lastT[rec.SourceID] = rec.T

	w, ok := b.shards[rec.SourceID]
	if !ok {
		f, err := os.Create(filepath.Join(b.dir, fmt.Sprintf("%03d.log", rec.SourceID)))
		if err != nil {
			if b.log != nil {
				b.log.Printf("logbus: create shard %d: %v", rec.SourceID, err)
			}
			return
		}
		b.files[rec.SourceID] = f
		w = bufio.NewWriter(f)
		b.shards[rec.SourceID] = w
	}

	header := make([]byte, 12)
	binary.LittleEndian.PutUint64(header[0:8], rec.T)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(rec.Payload)))
	_, _ = w.Write(header)
	_, _ = w.Write(rec.Payload)
}

func (b *LogBus) flushAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.shards {
		_ = w.Flush()
	}
}

// Degraded reports whether any ordering violation has been observed.
func (b *LogBus) Degraded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.degrade
}

// Stop flushes, closes, and compresses each per-source shard file into a
// ".zst" archive so the session's behavior_data directory is "safe to read"
// per §4.1. Stop is idempotent-safe to call once; calling it twice is a
// programmer error but will not panic.
func (b *LogBus) Stop() error {
	select {
	case <-b.done:
		return nil
	default:
	}
	close(b.done)
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for sourceID, w := range b.shards {
		_ = w.Flush()
		f := b.files[sourceID]
		name := f.Name()
		_ = f.Close()
		if err := compressAndRemove(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func compressAndRemove(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("logbus: reopen shard: %w", err)
	}
	defer in.Close()

	out, err := os.Create(path + ".zst")
	if err != nil {
		return fmt.Errorf("logbus: create archive: %w", err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("logbus: new zstd writer: %w", err)
	}
	if _, err := enc.ReadFrom(in); err != nil {
		_ = enc.Close()
		return fmt.Errorf("logbus: compress shard: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("logbus: close zstd writer: %w", err)
	}

	return os.Remove(path)
}
