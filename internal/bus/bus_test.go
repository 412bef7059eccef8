package bus

import (
	"fmt"
	"testing"
)

func TestPublishFIFOPerUser(t *testing.T) {
	b := NewBroker()
	ch, detach := b.Subscribe("u1")
	defer detach()

	const n = 20
	for i := 0; i < n; i++ {
		b.Publish("u1", EventDriverLocation, i)
	}
	for i := 0; i < n; i++ {
		ev := <-ch
		if ev.Payload.(int) != i {
			t.Fatalf("out of order: expected %d, got %v", i, ev.Payload)
		}
	}
}

func TestPublishOnlyToTargetUser(t *testing.T) {
	b := NewBroker()
	ch1, d1 := b.Subscribe("u1")
	ch2, d2 := b.Subscribe("u2")
	defer d1()
	defer d2()

	b.Publish("u1", EventAccepted, "hello")

	ev := <-ch1
	if ev.Type != EventAccepted {
		t.Fatalf("expected %s, got %s", EventAccepted, ev.Type)
	}
	select {
	case ev := <-ch2:
		t.Fatalf("u2 should not receive u1 events, got %v", ev)
	default:
	}
}

func TestBroadcastReachesEveryone(t *testing.T) {
	b := NewBroker()
	var chans []<-chan Event
	for i := 0; i < 3; i++ {
		ch, detach := b.Subscribe(fmt.Sprintf("admin-%d", i))
		defer detach()
		chans = append(chans, ch)
	}

	b.Broadcast(EventSOSAlert, "alert")
	for i, ch := range chans {
		ev := <-ch
		if ev.Type != EventSOSAlert {
			t.Fatalf("subscriber %d: expected %s, got %s", i, EventSOSAlert, ev.Type)
		}
	}
}

func TestDetachStopsDelivery(t *testing.T) {
	b := NewBroker()
	_, detach := b.Subscribe("u1")
	if b.SubscriberCount("u1") != 1 {
		t.Fatal("expected one subscriber")
	}
	detach()
	if b.SubscriberCount("u1") != 0 {
		t.Fatal("expected zero subscribers after detach")
	}
	// publishing to a user with no subscribers is a no-op
	b.Publish("u1", EventCompleted, nil)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker()
	_, detach := b.Subscribe("u1")
	defer detach()

	// more events than the buffer holds; Publish must not block
	for i := 0; i < subscriberBuffer*2; i++ {
		b.Publish("u1", EventDriverLocation, i)
	}
}
