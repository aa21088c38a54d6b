package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/turbinewatch/pkg/plugin"
	"go.uber.org/zap"
)

func TestBus_PublishMatchesTopicAndWildcard(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var got []string
	bus.Subscribe(TopicCycleCompleted, func(_ context.Context, e plugin.Event) {
		got = append(got, "topic:"+e.Topic)
	})
	bus.SubscribeAll(func(_ context.Context, e plugin.Event) {
		got = append(got, "all:"+e.Topic)
	})

	bus.Publish(context.Background(), plugin.Event{Topic: TopicCycleCompleted}) //nolint:errcheck
	bus.Publish(context.Background(), plugin.Event{Topic: TopicFaultDetected})  //nolint:errcheck

	want := []string{
		"topic:" + TopicCycleCompleted,
		"all:" + TopicCycleCompleted,
		"all:" + TopicFaultDetected,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())
	calls := 0
	unsub := bus.Subscribe(TopicEscalationFinished, func(context.Context, plugin.Event) { calls++ })
	bus.Publish(context.Background(), plugin.Event{Topic: TopicEscalationFinished}) //nolint:errcheck
	unsub()
	bus.Publish(context.Background(), plugin.Event{Topic: TopicEscalationFinished}) //nolint:errcheck
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBus_PanicRecovered(t *testing.T) {
	bus := NewBus(zap.NewNop())
	after := false
	bus.Subscribe(TopicCycleCompleted, func(context.Context, plugin.Event) { panic("sink bug") })
	bus.Subscribe(TopicCycleCompleted, func(context.Context, plugin.Event) { after = true })

	if err := bus.Publish(context.Background(), plugin.Event{Topic: TopicCycleCompleted}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !after {
		t.Error("handlers after a panicking one should still run")
	}
}

func TestBus_PublishAsyncStampsTimestamp(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var wg sync.WaitGroup
	wg.Add(1)
	var ts time.Time
	bus.Subscribe(TopicCycleCompleted, func(_ context.Context, e plugin.Event) {
		ts = e.Timestamp
		wg.Done()
	})
	bus.PublishAsync(context.Background(), plugin.Event{Topic: TopicCycleCompleted})
	wg.Wait()
	if ts.IsZero() {
		t.Error("PublishAsync should stamp a timestamp")
	}
}
