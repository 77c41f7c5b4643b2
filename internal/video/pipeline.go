// Package video implements the camera pipeline façade described in
// spec.md §2 item 4 and §5's worker model: producer threads acquire frames,
// consumer threads encode them to MP4, and every pipeline logs
// frame-arrival timestamps to the log bus regardless of whether saving is
// currently enabled. The actual frame-grab hardware and the H.265 encoder
// are external collaborators (§1's "specified only at the message/frame
// layer" boundary) — FrameSource and Encoder are the seams other code
// plugs real drivers into.
package video

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/logbus"
)

// Frame is one acquired image, opaque to this package beyond its size.
type Frame struct {
	Data []byte
}

// FrameSource is the camera driver collaborator: blocking frame
// acquisition, one call per frame. A real implementation wraps a capture
// SDK; tests substitute a fake that yields a fixed sequence.
type FrameSource interface {
	NextFrame() (Frame, error)
}

// Encoder is the MP4 encoder collaborator. Real implementations shell out
// to (or link) an H.265 encoder; that codec detail is out of this
// façade's scope, which only guarantees every saved frame is offered to
// Encode in arrival order.
type Encoder interface {
	Encode(Frame) error
	Close() error
}

// Stream is one named camera feed routed through a Pipeline's shared
// producer/consumer pair.
type Stream struct {
	Name     string
	SourceID uint8
	Source   FrameSource
	Encoder  Encoder
}

// frameBuffer bounds how many acquired-but-not-yet-encoded frames a
// pipeline tolerates before the producer blocks; acquisition must never be
// allowed to race arbitrarily far ahead of encoding.
const frameBuffer = 8

type taggedFrame struct {
	stream int
	t      uint64
	frame  Frame
}

// Pipeline owns one producer goroutine per Stream and one consumer goroutine
// shared by all of its Streams. The body pipeline's two cameras are acquired
// on two separate producer goroutines and encoded on one shared consumer;
// they do not share a producer. The face pipeline has its own producer and
// consumer.
type Pipeline struct {
	Name    string
	streams []Stream

	clk *clock.Clock
	bus *logbus.LogBus
	log clock.Logger

	acquiring atomic.Bool
	saving    atomic.Bool

	frames chan taggedFrame
	done   chan struct{}
	wg     sync.WaitGroup
}

// New returns a Pipeline over one or more streams; each stream gets its own
// producer goroutine and all of them share a single consumer.
func New(name string, streams []Stream, clk *clock.Clock, bus *logbus.LogBus, log clock.Logger) *Pipeline {
	return &Pipeline{
		Name:    name,
		streams: streams,
		clk:     clk,
		bus:     bus,
		log:     log,
		frames:  make(chan taggedFrame, frameBuffer*len(streams)),
		done:    make(chan struct{}),
	}
}

// Start begins acquisition with saving disabled, per §4.8 startup step 6
// ("Start all cameras (acquisition only, saving disabled)").
func (p *Pipeline) Start() {
	p.acquiring.Store(true)
	for i := range p.streams {
		p.wg.Add(1)
		go p.produce(i)
	}
	p.wg.Add(1)
	go p.consume()
}

// EnableSaving begins routing acquired frames to each stream's Encoder,
// per startup step 11 ("Begin saving camera frames").
func (p *Pipeline) EnableSaving() {
	p.saving.Store(true)
}

// DisableSaving stops routing frames to the encoders without stopping
// acquisition or frame-arrival logging.
func (p *Pipeline) DisableSaving() {
	p.saving.Store(false)
}

func (p *Pipeline) produce(streamIdx int) {
	defer p.wg.Done()
	stream := p.streams[streamIdx]
	for {
		frame, err := stream.Source.NextFrame()
		if err != nil {
			select {
			case <-p.done:
				return
			default:
				p.log.Printf("video: %s/%s: acquisition stopped: %v", p.Name, stream.Name, err)
				return
			}
		}

		t := p.clk.Now()
		p.bus.Put(stream.SourceID, t, nil)

		select {
		case p.frames <- taggedFrame{stream: streamIdx, t: t, frame: frame}:
		case <-p.done:
			return
		}
	}
}

func (p *Pipeline) consume() {
	defer p.wg.Done()
	for {
		select {
		case tf := <-p.frames:
			if !p.saving.Load() {
				continue
			}
			stream := p.streams[tf.stream]
			if err := stream.Encoder.Encode(tf.frame); err != nil {
				p.log.Printf("video: %s/%s: encode: %v", p.Name, stream.Name, err)
			}
		case <-p.done:
			return
		}
	}
}

// Stop halts acquisition and encoding and closes every stream's encoder.
func (p *Pipeline) Stop() error {
	p.acquiring.Store(false)
	p.saving.Store(false)
	close(p.done)
	p.wg.Wait()

	var firstErr error
	for _, stream := range p.streams {
		if err := stream.Encoder.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("video: %s/%s: close encoder: %w", p.Name, stream.Name, err)
		}
	}
	return firstErr
}

// Acquiring reports whether the pipeline's producer(s) are currently live.
func (p *Pipeline) Acquiring() bool {
	return p.acquiring.Load()
}

// Saving reports whether acquired frames are currently forwarded to disk.
func (p *Pipeline) Saving() bool {
	return p.saving.Load()
}
