package watch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/expr"
)

type fakeWatchRepo struct {
	domain.Repository
	watches   []*domain.AlertWatch
	aggregate func(q domain.EventQuery, reducer, field string) (float64, error)

	logs  []*domain.AlertLog
	fired []string
}

func (f *fakeWatchRepo) ListActiveWatches(_ context.Context, _ string, _ string) ([]*domain.AlertWatch, error) {
	return f.watches, nil
}

func (f *fakeWatchRepo) AggregateEvents(_ context.Context, _ string, q domain.EventQuery, reducer, field string) (float64, error) {
	if f.aggregate == nil {
		return 0, nil
	}
	return f.aggregate(q, reducer, field)
}

func (f *fakeWatchRepo) SaveAlertLog(_ context.Context, _ string, l *domain.AlertLog) error {
	f.logs = append(f.logs, l)
	return nil
}

func (f *fakeWatchRepo) MarkWatchFired(_ context.Context, _ string, watchID string, _ time.Time) error {
	f.fired = append(f.fired, watchID)
	return nil
}

type fakeNotifier struct {
	sent []domain.Notification
	fail bool
}

func (f *fakeNotifier) Send(_ context.Context, n domain.Notification) error {
	f.sent = append(f.sent, n)
	if f.fail {
		return fmt.Errorf("endpoint unreachable")
	}
	return nil
}

func newTestEngine(t *testing.T, repo *fakeWatchRepo, notifier *fakeNotifier) *Engine {
	t.Helper()
	eval, err := expr.New()
	if err != nil {
		t.Fatalf("expr.New: %v", err)
	}
	return NewEngine(repo, eval, notifier)
}

func watchCustomer() *domain.Customer {
	return &domain.Customer{ID: "c1", TenantID: "t1", ExternalID: "MTO-1"}
}

func watchEvent(amount float64) *domain.Event {
	return &domain.Event{
		ID:       "ev1",
		TenantID: "t1",
		Domain:   domain.DomainRemittance,
		Payload:  map[string]any{"amount": amount},
	}
}

func simpleWatch(id, expression string) *domain.AlertWatch {
	return &domain.AlertWatch{
		ID: id, TenantID: "t1", CustomerID: "c1", Name: id,
		Kind:       domain.WatchSimple,
		Expression: expression,
		Settings:   domain.WatchSettings{Channel: domain.ChannelWebhook, Recipient: "https://ops.example/hook"},
		Active:     true,
	}
}

func TestProcessSimpleWatch(t *testing.T) {
	repo := &fakeWatchRepo{watches: []*domain.AlertWatch{
		simpleWatch("w-large", `payload.amount > 1000.0`),
		simpleWatch("w-quiet", `payload.amount > 100000.0`),
	}}
	notifier := &fakeNotifier{}
	engine := newTestEngine(t, repo, notifier)

	engine.Process(context.Background(), "t1", watchEvent(5000), watchCustomer())

	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sent))
	}
	if len(repo.logs) != 1 || repo.logs[0].WatchID != "w-large" {
		t.Fatalf("alert logs = %+v, want one for w-large", repo.logs)
	}
	if repo.logs[0].Status != domain.DeliveryDelivered {
		t.Errorf("status = %s, want DELIVERED", repo.logs[0].Status)
	}
	if len(repo.fired) != 1 || repo.fired[0] != "w-large" {
		t.Errorf("fired = %v, want [w-large]", repo.fired)
	}
}

func TestProcessAggregateWatch(t *testing.T) {
	repo := &fakeWatchRepo{
		watches: []*domain.AlertWatch{{
			ID: "w-sum", TenantID: "t1", CustomerID: "c1", Name: "daily volume",
			Kind: domain.WatchAggregate,
			Aggregation: domain.WatchAggregation{
				Metric: domain.MetricSum, Field: "amount", WindowHours: 24, Threshold: 5000,
			},
			Settings: domain.WatchSettings{Channel: domain.ChannelSlack, Recipient: "https://hooks.example/T1"},
			Active:   true,
		}},
		aggregate: func(q domain.EventQuery, reducer, field string) (float64, error) {
			if q.MerchantID != "MTO-1" || reducer != domain.ReduceSum || field != "amount" {
				return 0, fmt.Errorf("unexpected query %+v %s %s", q, reducer, field)
			}
			if q.Until.Sub(q.Since) != 24*time.Hour {
				return 0, fmt.Errorf("window = %v, want 24h", q.Until.Sub(q.Since))
			}
			// Three 2000 transfers inside the window.
			return 6000, nil
		},
	}
	notifier := &fakeNotifier{}
	engine := newTestEngine(t, repo, notifier)

	engine.Process(context.Background(), "t1", watchEvent(2000), watchCustomer())

	if len(repo.logs) != 1 {
		t.Fatalf("alert logs = %d, want 1", len(repo.logs))
	}
	if repo.logs[0].TriggerValue != 6000 {
		t.Errorf("TriggerValue = %v, want 6000", repo.logs[0].TriggerValue)
	}
}

func TestProcessAggregateBelowThreshold(t *testing.T) {
	repo := &fakeWatchRepo{
		watches: []*domain.AlertWatch{{
			ID: "w-sum", TenantID: "t1", CustomerID: "c1", Name: "daily volume",
			Kind: domain.WatchAggregate,
			Aggregation: domain.WatchAggregation{
				Metric: domain.MetricSum, Field: "amount", WindowHours: 24, Threshold: 5000,
			},
			Settings: domain.WatchSettings{Channel: domain.ChannelSlack, Recipient: "https://hooks.example/T1"},
			Active:   true,
		}},
		aggregate: func(domain.EventQuery, string, string) (float64, error) {
			// The 2000 transfer outside the window is not counted.
			return 4000, nil
		},
	}
	notifier := &fakeNotifier{}
	engine := newTestEngine(t, repo, notifier)

	engine.Process(context.Background(), "t1", watchEvent(2000), watchCustomer())

	if len(notifier.sent) != 0 || len(repo.logs) != 0 {
		t.Errorf("below-threshold watch fired: sent=%d logs=%d", len(notifier.sent), len(repo.logs))
	}
}

func TestProcessIsolatesFailingWatch(t *testing.T) {
	repo := &fakeWatchRepo{watches: []*domain.AlertWatch{
		simpleWatch("w-broken", `payload.amount >>>`),
		simpleWatch("w-good", `payload.amount > 1000.0`),
	}}
	notifier := &fakeNotifier{}
	engine := newTestEngine(t, repo, notifier)

	engine.Process(context.Background(), "t1", watchEvent(5000), watchCustomer())

	if len(repo.logs) != 1 || repo.logs[0].WatchID != "w-good" {
		t.Fatalf("alert logs = %+v, want one for w-good", repo.logs)
	}
}

func TestProcessRecordsFailedDelivery(t *testing.T) {
	repo := &fakeWatchRepo{watches: []*domain.AlertWatch{
		simpleWatch("w-large", `payload.amount > 1000.0`),
	}}
	notifier := &fakeNotifier{fail: true}
	engine := newTestEngine(t, repo, notifier)

	engine.Process(context.Background(), "t1", watchEvent(5000), watchCustomer())

	if len(repo.logs) != 1 || repo.logs[0].Status != domain.DeliveryFailed {
		t.Fatalf("alert logs = %+v, want one FAILED entry", repo.logs)
	}
	if len(repo.fired) != 1 {
		t.Errorf("watch should still be marked fired on delivery failure")
	}
}

func TestValidateWatch(t *testing.T) {
	engine := newTestEngine(t, &fakeWatchRepo{}, &fakeNotifier{})

	if err := engine.Validate(simpleWatch("w1", `payload.amount > 1.0`)); err != nil {
		t.Errorf("valid SIMPLE watch rejected: %v", err)
	}
	if err := engine.Validate(simpleWatch("w2", ``)); err == nil {
		t.Error("SIMPLE watch without expression accepted")
	}
	if err := engine.Validate(&domain.AlertWatch{
		Kind:        domain.WatchAggregate,
		Aggregation: domain.WatchAggregation{Metric: "MAX", WindowHours: 24},
		Settings:    domain.WatchSettings{Channel: domain.ChannelEmail, Recipient: "ops@example.com"},
	}); err == nil {
		t.Error("AGGREGATE watch with unknown metric accepted")
	}

	bad := simpleWatch("w3", `payload.amount > 1.0`)
	bad.Settings.Channel = "PAGER"
	if err := engine.Validate(bad); err == nil {
		t.Error("unknown channel accepted")
	}
}

func TestValidateAggregateField(t *testing.T) {
	engine := newTestEngine(t, &fakeWatchRepo{}, &fakeNotifier{})

	aggregate := func(field string) *domain.AlertWatch {
		return &domain.AlertWatch{
			Kind: domain.WatchAggregate,
			Aggregation: domain.WatchAggregation{
				Metric: domain.MetricSum, Field: field, WindowHours: 24, Threshold: 100,
			},
			Settings: domain.WatchSettings{Channel: domain.ChannelEmail, Recipient: "ops@example.com"},
		}
	}

	for _, field := range []string{"amount", "feeAmount", "refund_total", ""} {
		if err := engine.Validate(aggregate(field)); err != nil {
			t.Errorf("field %q rejected: %v", field, err)
		}
	}
	for _, field := range []string{"fee-amount", "fee amount", "payload.fee", "1fee"} {
		if err := engine.Validate(aggregate(field)); err == nil {
			t.Errorf("field %q accepted; it can never be aggregated", field)
		}
	}
}
