package video

import (
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/logbus"
)

// Log-bus source ids for the three camera streams, continuing the id space
// reserved by internal/mcu (EngineSourceID=1, ActorSourceID=2,
// SensorSourceID=3, EncoderSourceID=4).
const (
	FaceCameraSourceID      uint8 = 5
	BodyLeftCameraSourceID  uint8 = 6
	BodyRightCameraSourceID uint8 = 7
)

// Group owns two pipelines: a dedicated producer/consumer pair for the face
// camera, and a body pipeline with one producer per body camera and one
// consumer shared by both.
type Group struct {
	Face *Pipeline
	Body *Pipeline
}

// NewGroup wires a face stream and a pair of body streams into their
// respective pipelines.
func NewGroup(
	faceSource FrameSource, faceEncoder Encoder,
	bodyLeftSource FrameSource, bodyLeftEncoder Encoder,
	bodyRightSource FrameSource, bodyRightEncoder Encoder,
	clk *clock.Clock, bus *logbus.LogBus, log clock.Logger,
) *Group {
	face := New("face", []Stream{
		{Name: "face", SourceID: FaceCameraSourceID, Source: faceSource, Encoder: faceEncoder},
	}, clk, bus, log)

	body := New("body", []Stream{
		{Name: "body_left", SourceID: BodyLeftCameraSourceID, Source: bodyLeftSource, Encoder: bodyLeftEncoder},
		{Name: "body_right", SourceID: BodyRightCameraSourceID, Source: bodyRightSource, Encoder: bodyRightEncoder},
	}, clk, bus, log)

	return &Group{Face: face, Body: body}
}

func (g *Group) pipelines() []*Pipeline {
	return []*Pipeline{g.Face, g.Body}
}

// StartAcquisition starts every pipeline with saving disabled, per §4.8
// startup step 6.
func (g *Group) StartAcquisition() {
	for _, p := range g.pipelines() {
		p.Start()
	}
}

// EnableSaving begins saving on every pipeline, per §4.8 startup step 11.
func (g *Group) EnableSaving() {
	for _, p := range g.pipelines() {
		p.EnableSaving()
	}
}

// Stop halts every pipeline, returning the first error encountered.
func (g *Group) Stop() error {
	var firstErr error
	for _, p := range g.pipelines() {
		if err := p.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
