// Package visualizer implements the push façade described in spec.md §2
// item 8: a separate process (here, a browser client reached over
// websocket) consuming periodic updates — lick tick, valve tick, running
// speed, thresholds, and trial outcomes — with the actual throttling done
// internally so the engine's Push* calls never block on a slow client.
package visualizer

import (
	"sync"
	"sync/atomic"

	channerics "github.com/niceyeti/channerics/channels"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
)

// Kind tags which field of an Update is populated.
type Kind string

const (
	KindLick         Kind = "lick"
	KindValve        Kind = "valve"
	KindSpeed        Kind = "speed"
	KindThresholds   Kind = "thresholds"
	KindTrialOutcome Kind = "trial_outcome"
)

// Thresholds mirrors the run-training reward thresholds pushed whenever
// they change, per §4.9's run-training controller.
type Thresholds struct {
	SpeedThresholdCMS   float64 `json:"speed_threshold_cm_s"`
	DurationThresholdMS int64   `json:"duration_threshold_ms"`
}

// TrialOutcome reports one decomposed trial's result for display.
type TrialOutcome struct {
	TrialIndex int     `json:"trial_index"`
	MotifIndex int     `json:"motif_index"`
	Rewarded   bool    `json:"rewarded"`
	DistanceCM float64 `json:"cumulative_distance_cm"`
}

// Update is one idempotent view update, serialized directly to the
// websocket client as JSON. Only the field matching Kind is populated.
type Update struct {
	Kind         Kind          `json:"kind"`
	Sequence     uint64        `json:"sequence"`
	LickCount    uint64        `json:"lick_count,omitempty"`
	ValveVolume  float64       `json:"valve_volume_ul,omitempty"`
	SpeedCMS     float64       `json:"speed_cm_s,omitempty"`
	Thresholds   *Thresholds   `json:"thresholds,omitempty"`
	TrialOutcome *TrialOutcome `json:"trial_outcome,omitempty"`
}

// Hub fans one stream of engine-pushed updates out to every currently
// connected visualizer client. Unlike the teacher's fastview.ViewBuilder,
// the subscriber count here is not known up front — clients connect and
// disconnect over the lifetime of a session — so subscription is dynamic
// rather than channerics.Broadcast's fixed-width fan-out.
type Hub struct {
	log clock.Logger

	in chan Update

	mu   sync.Mutex
	subs map[int]chan Update
	next int

	seq uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// subBuffer bounds how many updates a slow client can fall behind by before
// the hub starts dropping for it; a connected browser tab is expected to
// drain every tick within milliseconds.
const subBuffer = 32

// New starts a Hub. Callers must call Stop when the session ends.
func New(log clock.Logger) *Hub {
	h := &Hub{
		log:  log,
		in:   make(chan Update, 256),
		subs: make(map[int]chan Update),
		done: make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Hub) run() {
	defer h.wg.Done()
	for update := range channerics.OrDone(h.done, h.in) {
		h.broadcast(update)
	}
}

func (h *Hub) broadcast(update Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		select {
		case sub <- update:
		default:
			h.log.Printf("visualizer: dropping update for slow subscriber %d", id)
		}
	}
}

// Subscribe registers a new client and returns its update channel plus an
// unsubscribe func the caller must invoke on disconnect.
func (h *Hub) Subscribe() (<-chan Update, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Update, subBuffer)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

// Stop shuts the hub down and closes every subscriber channel; updates still
// queued in the hub's input are discarded, not delivered. Safe to call once.
func (h *Hub) Stop() {
	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub)
	}
}

func (h *Hub) push(u Update) {
	u.Sequence = atomic.AddUint64(&h.seq, 1)
	select {
	case h.in <- u:
	case <-h.done:
	default:
		h.log.Printf("visualizer: dropping %s update, hub input full", u.Kind)
	}
}

// PushLickTick signals a lick event, per §4.8's "Lick detection ... signal
// the visualizer".
func (h *Hub) PushLickTick(lickCount uint64) {
	h.push(Update{Kind: KindLick, LickCount: lickCount})
}

// PushValveTick signals a reward delivery, per §4.8's
// "schedule a visualizer 'valve' tick".
func (h *Hub) PushValveTick(volumeUL float64) {
	h.push(Update{Kind: KindValve, ValveVolume: volumeUL})
}

// PushSpeed reports the current running speed, computed at least every
// 50 ms of wall time per §4.8.
func (h *Hub) PushSpeed(speedCMS float64) {
	h.push(Update{Kind: KindSpeed, SpeedCMS: speedCMS})
}

// PushThresholds reports new run-training reward thresholds, per §4.9's
// "If thresholds changed, push them to the visualizer."
func (h *Hub) PushThresholds(speedThresholdCMS float64, durationThresholdMS int64) {
	h.push(Update{Kind: KindThresholds, Thresholds: &Thresholds{
		SpeedThresholdCMS:   speedThresholdCMS,
		DurationThresholdMS: durationThresholdMS,
	}})
}

// PushTrialOutcome reports one decomposed trial's result.
func (h *Hub) PushTrialOutcome(outcome TrialOutcome) {
	h.push(Update{Kind: KindTrialOutcome, TrialOutcome: &outcome})
}
