package visualizer

import (
	"testing"
	"time"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Printf(format string, args ...any) { l.t.Logf(format, args...) }
func (l testLogger) Println(args ...any)               { l.t.Log(args...) }

func TestSubscribeReceivesPushedUpdates(t *testing.T) {
	hub := New(testLogger{t})
	defer hub.Stop()

	updates, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	hub.PushLickTick(3)

	select {
	case u := <-updates:
		if u.Kind != KindLick || u.LickCount != 3 {
			t.Fatalf("update = %+v, want lick tick with count 3", u)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pushed update")
	}
}

func TestSequenceIncreasesMonotonically(t *testing.T) {
	hub := New(testLogger{t})
	defer hub.Stop()

	updates, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	hub.PushSpeed(1.0)
	hub.PushSpeed(2.0)

	first := <-updates
	second := <-updates
	if second.Sequence <= first.Sequence {
		t.Fatalf("sequence did not increase: %d then %d", first.Sequence, second.Sequence)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := New(testLogger{t})
	defer hub.Stop()

	updates, unsubscribe := hub.Subscribe()
	unsubscribe()

	hub.PushValveTick(5.0)

	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("expected no delivery after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMultipleSubscribersEachReceiveBroadcast(t *testing.T) {
	hub := New(testLogger{t})
	defer hub.Stop()

	a, unsubA := hub.Subscribe()
	defer unsubA()
	b, unsubB := hub.Subscribe()
	defer unsubB()

	hub.PushTrialOutcome(TrialOutcome{TrialIndex: 1, MotifIndex: 0, Rewarded: true, DistanceCM: 12.5})

	for _, ch := range []<-chan Update{a, b} {
		select {
		case u := <-ch:
			if u.Kind != KindTrialOutcome || u.TrialOutcome == nil || u.TrialOutcome.TrialIndex != 1 {
				t.Fatalf("update = %+v, want trial outcome for trial 1", u)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast to one of the subscribers")
		}
	}
}

func TestStopClosesAllSubscriberChannels(t *testing.T) {
	hub := New(testLogger{t})
	updates, _ := hub.Subscribe()

	hub.Stop()

	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("expected subscriber channel to be closed after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber channel closure")
	}
}
