// Package unity implements the MQTT pub/sub bridge to the Unity VR game
// engine described in spec.md §4.5: a fixed topic table for session
// start/stop, wall-cue sequence exchange, scene-name queries, task-guidance
// toggles, treadmill motion, lick pings, and reward requests.
package unity

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/clock"
)

// Topic names, verbatim per §4.5's topic table.
const (
	TopicSessionStart       = "Gimbl/Session/Start"
	TopicSessionStop        = "Gimbl/Session/Stop"
	TopicCueSequenceTrigger = "CueSequenceTrigger/"
	TopicCueSequence        = "CueSequence/"
	TopicSceneNameTrigger   = "SceneNameTrigger/"
	TopicSceneName          = "SceneName/"
	TopicMustLickTrue       = "MustLick/True/"
	TopicMustLickFalse      = "MustLick/False/"
	TopicVisibleMarkerTrue  = "VisibleMarker/True/"
	TopicVisibleMarkerFalse = "VisibleMarker/False/"
	TopicLinearTreadmill    = "LinearTreadmill/Data"
	TopicLickPort           = "LickPort/"
	TopicReward             = "Gimbl/Reward/"
)

const qosAtLeastOnce byte = 1

// Message is one inbound MQTT message drained by the engine's Unity cycle
// (§4.8.c: "The engine drains at most one message per runtime cycle").
type Message struct {
	Topic   string
	Payload []byte
}

// Bridge wraps a paho MQTT client with the narrow send/has_data/get_data
// contract §4.5 specifies, plus typed request helpers for the cue sequence
// and scene name round trips the startup sequence needs.
type Bridge struct {
	client mqtt.Client
	log    clock.Logger
	inbox  chan Message
}

// Connect dials the given broker (e.g. "tcp://localhost:1883") and
// subscribes to every inbound topic in §4.5's table.
func Connect(broker, clientID string, log clock.Logger) (*Bridge, error) {
	b := &Bridge{log: log, inbox: make(chan Message, 256)}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		b.deliver(Message{Topic: msg.Topic(), Payload: msg.Payload()})
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("unity: connect to %s: %w", broker, token.Error())
	}
	return wrap(client, b)
}

// wrap finishes bridge setup against an already-connected client: subscribing
// to every inbound topic in §4.5's table. Split out from Connect so tests can
// exercise the subscription/dispatch logic against a fake client.
func wrap(client mqtt.Client, b *Bridge) (*Bridge, error) {
	b.client = client
	for _, topic := range []string{
		TopicSessionStart, TopicSessionStop,
		TopicCueSequence, TopicSceneName,
		TopicReward,
	} {
		if err := b.subscribe(topic); err != nil {
			b.client.Disconnect(250)
			return nil, err
		}
	}
	return b, nil
}

func (b *Bridge) subscribe(topic string) error {
	token := b.client.Subscribe(topic, qosAtLeastOnce, func(_ mqtt.Client, msg mqtt.Message) {
		b.deliver(Message{Topic: msg.Topic(), Payload: msg.Payload()})
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("unity: subscribe %s: %w", topic, token.Error())
	}
	return nil
}

func (b *Bridge) deliver(msg Message) {
	select {
	case b.inbox <- msg:
	default:
		if b.log != nil {
			b.log.Printf("unity: inbox full, dropping message on %s", msg.Topic)
		}
	}
}

// Send publishes payload (nil for an empty-body topic like LickPort/) to
// topic. Publish errors are returned, not swallowed: unlike hardware module
// commands, Unity message delivery is relied on for trial bookkeeping.
func (b *Bridge) Send(topic string, payload []byte) error {
	token := b.client.Publish(topic, qosAtLeastOnce, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("unity: publish %s: %w", topic, token.Error())
	}
	return nil
}

// HasData reports whether at least one inbound message is queued.
func (b *Bridge) HasData() bool {
	return len(b.inbox) > 0
}

// GetData non-blockingly pops the oldest queued inbound message.
func (b *Bridge) GetData() (Message, bool) {
	select {
	case msg := <-b.inbox:
		return msg, true
	default:
		return Message{}, false
	}
}

// cueSequencePayload mirrors Unity's JSON cue-sequence message.
type cueSequencePayload struct {
	CueSequence []uint8 `json:"cue_sequence"`
}

// sceneNamePayload mirrors Unity's JSON scene-name message.
type sceneNamePayload struct {
	Name string `json:"name"`
}

// movementPayload is published on every encoder-driven treadmill update.
type movementPayload struct {
	Movement float64 `json:"movement"`
}

// RequestCueSequence asks Unity for the current wall-cue sequence and waits
// up to timeout for the reply, per the startup sequence in §4.8 ("Cue-
// sequence request has a 10 s timeout -> fatal").
func (b *Bridge) RequestCueSequence(timeout time.Duration) ([]uint8, error) {
	if err := b.Send(TopicCueSequenceTrigger, nil); err != nil {
		return nil, err
	}
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-b.inbox:
			if msg.Topic != TopicCueSequence {
				b.deliver(msg)
				continue
			}
			var payload cueSequencePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				return nil, fmt.Errorf("unity: decode cue sequence: %w", err)
			}
			return payload.CueSequence, nil
		case <-deadline:
			return nil, fmt.Errorf("unity: cue sequence request timed out after %s", timeout)
		}
	}
}

// RequestSceneName asks Unity for the current scene name.
func (b *Bridge) RequestSceneName(timeout time.Duration) (string, error) {
	if err := b.Send(TopicSceneNameTrigger, nil); err != nil {
		return "", err
	}
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-b.inbox:
			if msg.Topic != TopicSceneName {
				b.deliver(msg)
				continue
			}
			var payload sceneNamePayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				return "", fmt.Errorf("unity: decode scene name: %w", err)
			}
			return payload.Name, nil
		case <-deadline:
			return "", fmt.Errorf("unity: scene name request timed out after %s", timeout)
		}
	}
}

// PublishMovement publishes an encoder position delta in Unity units.
func (b *Bridge) PublishMovement(delta float64) error {
	body, err := json.Marshal(movementPayload{Movement: delta})
	if err != nil {
		return fmt.Errorf("unity: encode movement: %w", err)
	}
	return b.Send(TopicLinearTreadmill, body)
}

// PublishLick publishes an empty-payload lick event.
func (b *Bridge) PublishLick() error {
	return b.Send(TopicLickPort, nil)
}

// SetGuidance mirrors the engine's task-guidance state to Unity.
func (b *Bridge) SetGuidance(enabled bool) error {
	if enabled {
		return b.Send(TopicMustLickTrue, nil)
	}
	return b.Send(TopicMustLickFalse, nil)
}

// SetRewardMarkerVisible mirrors the reward-zone boundary visibility.
func (b *Bridge) SetRewardMarkerVisible(visible bool) error {
	if visible {
		return b.Send(TopicVisibleMarkerTrue, nil)
	}
	return b.Send(TopicVisibleMarkerFalse, nil)
}

// Disconnect quiesces and closes the MQTT connection.
func (b *Bridge) Disconnect() {
	b.client.Disconnect(250)
}
