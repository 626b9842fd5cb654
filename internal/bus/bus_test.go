package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func ingestedEvent(id, merchantID string) []byte {
	data, _ := json.Marshal(&domain.Event{
		ID:       id,
		TenantID: "t1",
		Domain:   domain.DomainPSP,
		Payload:  map[string]any{"merchantId": merchantID, "amount": 2500.0},
	})
	return data
}

func TestChannelBusDeliversIngestedEvents(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var (
		mu  sync.Mutex
		got []*domain.Message
	)
	sub, err := b.Subscribe(ctx, "t1", domain.TopicEventIngested, func(_ context.Context, msg *domain.Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.Topic() != domain.TopicEventIngested {
		t.Errorf("Topic() = %s, want %s", sub.Topic(), domain.TopicEventIngested)
	}

	if err := b.Publish(ctx, "t1", domain.TopicEventIngested, ingestedEvent("ev1", "MTO-1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	msg := got[0]
	mu.Unlock()

	// The envelope is what the watch worker unmarshals downstream.
	if msg.ID == "" || msg.Timestamp == 0 {
		t.Errorf("message envelope incomplete: %+v", msg)
	}
	if msg.TenantID != "t1" || msg.Topic != domain.TopicEventIngested {
		t.Errorf("message routing = tenant %s topic %s", msg.TenantID, msg.Topic)
	}

	var ev domain.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("payload is not an event: %v", err)
	}
	if ev.ID != "ev1" || ev.PayloadString("merchantId") != "MTO-1" {
		t.Errorf("event round trip = %+v", ev)
	}
}

func TestChannelBusTenantIsolation(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var forT1, forT2 atomic.Int32
	b.Subscribe(ctx, "t1", domain.TopicEventIngested, func(context.Context, *domain.Message) error {
		forT1.Add(1)
		return nil
	})
	b.Subscribe(ctx, "t2", domain.TopicEventIngested, func(context.Context, *domain.Message) error {
		forT2.Add(1)
		return nil
	})

	b.Publish(ctx, "t1", domain.TopicEventIngested, ingestedEvent("ev1", "MTO-1"))
	b.Publish(ctx, "t1", domain.TopicEventIngested, ingestedEvent("ev2", "MTO-1"))

	waitFor(t, time.Second, func() bool { return forT1.Load() == 2 })

	// Give misrouted deliveries a chance to land before asserting none did.
	time.Sleep(20 * time.Millisecond)
	if forT2.Load() != 0 {
		t.Errorf("tenant t2 received %d messages published for t1", forT2.Load())
	}
}

func TestChannelBusFanOut(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	// Completed decisions feed independent consumers, e.g. an audit feed
	// and an operator notifier.
	var audit, notify atomic.Int32
	b.Subscribe(ctx, "t1", domain.TopicDecisionCompleted, func(context.Context, *domain.Message) error {
		audit.Add(1)
		return nil
	})
	b.Subscribe(ctx, "t1", domain.TopicDecisionCompleted, func(context.Context, *domain.Message) error {
		notify.Add(1)
		return nil
	})

	data, _ := json.Marshal(&domain.Decision{ID: "d1", Score: 85, Status: domain.StatusDecline})
	b.Publish(ctx, "t1", domain.TopicDecisionCompleted, data)

	waitFor(t, time.Second, func() bool {
		return audit.Load() == 1 && notify.Load() == 1
	})
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int32
	sub, err := b.Subscribe(ctx, "t1", domain.TopicAlertFired, func(context.Context, *domain.Message) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish(ctx, "t1", domain.TopicAlertFired, []byte(`{}`))
	waitFor(t, time.Second, func() bool { return count.Load() == 1 })

	sub.Unsubscribe()
	time.Sleep(10 * time.Millisecond)

	b.Publish(ctx, "t1", domain.TopicAlertFired, []byte(`{}`))
	time.Sleep(20 * time.Millisecond)

	if count.Load() != 1 {
		t.Errorf("messages after unsubscribe = %d, want 1", count.Load())
	}
}

func TestChannelBusRequiresTenant(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "", domain.TopicEventIngested, []byte(`{}`)); err == nil {
		t.Error("publish without tenant accepted")
	}
	if _, err := b.Subscribe(ctx, "", domain.TopicEventIngested, func(context.Context, *domain.Message) error {
		return nil
	}); err == nil {
		t.Error("subscribe without tenant accepted")
	}
}

func TestChannelBusClosed(t *testing.T) {
	b := NewChannelBus(100)
	ctx := context.Background()

	b.Subscribe(ctx, "t1", domain.TopicEventIngested, func(context.Context, *domain.Message) error {
		return nil
	})

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Publish(ctx, "t1", domain.TopicEventIngested, []byte(`{}`)); err == nil {
		t.Error("publish after close accepted")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("ping after close succeeded")
	}
	if err := b.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestChannelBusBurst(t *testing.T) {
	b := NewChannelBus(1000)
	defer b.Close()
	ctx := context.Background()

	const events = 200
	var received atomic.Int32
	b.Subscribe(ctx, "t1", domain.TopicEventIngested, func(context.Context, *domain.Message) error {
		received.Add(1)
		return nil
	})

	for i := 0; i < events; i++ {
		if err := b.Publish(ctx, "t1", domain.TopicEventIngested, ingestedEvent("ev", "MTO-1")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	waitFor(t, 5*time.Second, func() bool { return received.Load() == events })
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer b.Close()
		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("New(channel) = %T, want *ChannelBus", b)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("unsupported bus type accepted")
		}
	})
}

func TestNATSSubjectScheme(t *testing.T) {
	// Topics carry the product prefix; the subject only adds the tenant.
	b := &NATSBus{}
	got := b.makeSubject("t1", domain.TopicEventIngested)
	if got != "tenants.t1.kestrel.event.ingested" {
		t.Errorf("subject = %s", got)
	}
}
