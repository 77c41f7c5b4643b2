package unity

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// doneToken is an already-resolved mqtt.Token with no error.
type doneToken struct{}

func (doneToken) Wait() bool                    { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }

func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeMQTTClient is a minimal mqtt.Client fake: it records published
// messages and lets tests inject inbound deliveries via its stored
// subscription callbacks.
type fakeMQTTClient struct {
	published []publishedMsg
	subs      map[string]mqtt.MessageHandler
}

type publishedMsg struct {
	topic   string
	payload []byte
}

func newFakeMQTTClient() *fakeMQTTClient {
	return &fakeMQTTClient{subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTTClient) IsConnected() bool      { return true }
func (f *fakeMQTTClient) IsConnectionOpen() bool { return true }
func (f *fakeMQTTClient) Connect() mqtt.Token    { return doneToken{} }
func (f *fakeMQTTClient) Disconnect(uint)        {}

func (f *fakeMQTTClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}
	f.published = append(f.published, publishedMsg{topic: topic, payload: body})
	return doneToken{}
}

func (f *fakeMQTTClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	f.subs[topic] = callback
	return doneToken{}
}

func (f *fakeMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic := range filters {
		f.subs[topic] = callback
	}
	return doneToken{}
}

func (f *fakeMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	for _, topic := range topics {
		delete(f.subs, topic)
	}
	return doneToken{}
}

func (f *fakeMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	f.subs[topic] = callback
}

func (f *fakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// fakeMessage is a minimal mqtt.Message fake used to simulate inbound
// deliveries against a subscribed callback.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestBridge(t *testing.T) (*Bridge, *fakeMQTTClient) {
	t.Helper()
	client := newFakeMQTTClient()
	b, err := wrap(client, &Bridge{inbox: make(chan Message, 64)})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	return b, client
}

func TestWrapSubscribesToInboundTopics(t *testing.T) {
	_, client := newTestBridge(t)
	for _, topic := range []string{TopicSessionStart, TopicSessionStop, TopicCueSequence, TopicSceneName, TopicReward} {
		if _, ok := client.subs[topic]; !ok {
			t.Fatalf("expected subscription to %s", topic)
		}
	}
}

func TestSendPublishesToClient(t *testing.T) {
	b, client := newTestBridge(t)
	if err := b.Send(TopicLickPort, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(client.published) != 1 || client.published[0].topic != TopicLickPort {
		t.Fatalf("published = %+v, want one message on %s", client.published, TopicLickPort)
	}
}

func TestGetDataDrainsOneMessageAtATime(t *testing.T) {
	b, client := newTestBridge(t)
	client.subs[TopicSessionStart](nil, fakeMessage{topic: TopicSessionStart})

	if !b.HasData() {
		t.Fatal("expected HasData() true after a delivered message")
	}
	msg, ok := b.GetData()
	if !ok || msg.Topic != TopicSessionStart {
		t.Fatalf("GetData = %+v, %v, want TopicSessionStart, true", msg, ok)
	}
	if b.HasData() {
		t.Fatal("expected HasData() false after draining the only message")
	}
}

func TestRequestCueSequenceDecodesJSON(t *testing.T) {
	b, client := newTestBridge(t)

	go func() {
		time.Sleep(5 * time.Millisecond)
		body, _ := json.Marshal(cueSequencePayload{CueSequence: []uint8{1, 2, 3}})
		client.subs[TopicCueSequence](nil, fakeMessage{topic: TopicCueSequence, payload: body})
	}()

	seq, err := b.RequestCueSequence(time.Second)
	if err != nil {
		t.Fatalf("RequestCueSequence: %v", err)
	}
	if len(seq) != 3 || seq[0] != 1 || seq[2] != 3 {
		t.Fatalf("seq = %v, want [1 2 3]", seq)
	}
}

func TestRequestCueSequenceTimesOut(t *testing.T) {
	b, _ := newTestBridge(t)
	if _, err := b.RequestCueSequence(10 * time.Millisecond); err == nil {
		t.Fatal("expected timeout error when Unity never replies")
	}
}
