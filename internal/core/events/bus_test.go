package events

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/pkg/types"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewEventBus(4, zerolog.Nop())
	a := bus.Subscribe(EventTypeSignal)
	b := bus.Subscribe(EventTypeSignal)

	bus.Publish(NewSignalEvent("2024-06-17", "SPY", types.Signal{
		Direction: types.DirectionLong,
		Type:      types.SignalBreak,
	}))

	for i, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Type() != EventTypeSignal {
				t.Fatalf("subscriber %d got %s", i, ev.Type())
			}
		default:
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewEventBus(1, zerolog.Nop())
	ch := bus.Subscribe(EventTypeSessionEnd)

	bus.Publish(NewSessionEndEvent())
	bus.Publish(NewSessionEndEvent()) // dropped

	metrics := bus.GetMetrics()[EventTypeSessionEnd]
	if metrics.PublishedCount != 2 {
		t.Fatalf("published = %d, want 2", metrics.PublishedCount)
	}
	if metrics.DroppedCount != 1 {
		t.Fatalf("dropped = %d, want 1", metrics.DroppedCount)
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestPublishWithoutSubscribersIsHarmless(t *testing.T) {
	bus := NewEventBus(1, zerolog.Nop())
	bus.Publish(NewSessionEndEvent())

	if m, ok := bus.GetMetrics()[EventTypeSessionEnd]; ok && m.PublishedCount != 0 {
		t.Fatalf("published = %d, want 0 with no subscribers", m.PublishedCount)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(1, zerolog.Nop())
	ch := bus.Subscribe(EventTypeError)
	bus.Unsubscribe(EventTypeError, ch)

	if _, open := <-ch; open {
		t.Fatal("unsubscribed channel should be closed")
	}
	if bus.SubscriberCount(EventTypeError) != 0 {
		t.Fatal("subscriber count should be 0")
	}
}
