package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type fakeHistory struct {
	aggregate func(q domain.EventQuery, reducer, field string) (float64, error)
	query     func(q domain.EventQuery) ([]*domain.Event, error)
}

func (f *fakeHistory) AggregateEvents(_ context.Context, _ string, q domain.EventQuery, reducer, field string) (float64, error) {
	if f.aggregate == nil {
		return 0, nil
	}
	return f.aggregate(q, reducer, field)
}

func (f *fakeHistory) QueryEvents(_ context.Context, _ string, q domain.EventQuery) ([]*domain.Event, error) {
	if f.query == nil {
		return nil, nil
	}
	return f.query(q)
}

func historyEvent(createdAt time.Time, payload map[string]any) *domain.Event {
	return &domain.Event{
		ID:        "ev-hist",
		TenantID:  "t1",
		Payload:   payload,
		CreatedAt: createdAt,
	}
}

func TestSnapshotBusinessVolume(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	history := &fakeHistory{
		aggregate: func(q domain.EventQuery, reducer, field string) (float64, error) {
			windowDur := q.Until.Sub(q.Since)
			switch {
			case reducer == domain.ReduceAvg && windowDur == 90*24*time.Hour:
				return 120, nil
			case reducer == domain.ReduceSum && windowDur == 24*time.Hour:
				return 4500, nil
			case reducer == domain.ReduceSum && windowDur == 30*24*time.Hour:
				return 60000, nil
			}
			return 0, nil
		},
	}

	ev := historyEvent(now, map[string]any{"merchantId": "MTO-1", "amount": 100.0})
	snap := NewAggregator(history).Snapshot(context.Background(), "t1", ev, nil, now)

	if snap.ThreeMonthDailyAvg != 120 || snap.DailyAverage != 120 {
		t.Errorf("averages = (%v, %v), want 120", snap.ThreeMonthDailyAvg, snap.DailyAverage)
	}
	if snap.MonthlyAverage != 3600 {
		t.Errorf("MonthlyAverage = %v, want 3600", snap.MonthlyAverage)
	}
	if snap.CurrentDayVolume != 4500 {
		t.Errorf("CurrentDayVolume = %v, want 4500", snap.CurrentDayVolume)
	}
	if snap.Cumulative30d != 60000 || snap.FifteenDaySum != 30000 {
		t.Errorf("cumulative = (%v, %v), want (60000, 30000)", snap.Cumulative30d, snap.FifteenDaySum)
	}
}

func TestSnapshotPatternAnalysis(t *testing.T) {
	now := time.Now().UTC()

	history := &fakeHistory{
		query: func(q domain.EventQuery) ([]*domain.Event, error) {
			if q.MerchantID == "" {
				return nil, nil // mule category, not under test
			}
			return []*domain.Event{
				historyEvent(now.Add(-time.Hour), map[string]any{"accountNumber": "A", "amount": 9600.0}),
				historyEvent(now.Add(-2*time.Hour), map[string]any{"accountNumber": "B", "amount": 9500.0}),
				historyEvent(now.Add(-3*time.Hour), map[string]any{"accountNumber": "A", "amount": 100.0}),
			}, nil
		},
	}

	ev := historyEvent(now, map[string]any{"merchantId": "MTO-1", "amount": 9500.0})
	snap := NewAggregator(history).Snapshot(context.Background(), "t1", ev, nil, now)

	if snap.UniqueOutboundCount5d != 2 {
		t.Errorf("UniqueOutboundCount5d = %d, want 2", snap.UniqueOutboundCount5d)
	}
	if snap.OutboundSum5d != 19200 {
		t.Errorf("OutboundSum5d = %v, want 19200", snap.OutboundSum5d)
	}
	// 9600 and 9500 are within 5% of 9500; 100 is not.
	if snap.SimilarAmountCount5d != 2 {
		t.Errorf("SimilarAmountCount5d = %d, want 2", snap.SimilarAmountCount5d)
	}
}

func TestSnapshotMuleIndicators(t *testing.T) {
	now := time.Now().UTC()

	history := &fakeHistory{
		query: func(q domain.EventQuery) ([]*domain.Event, error) {
			if q.AccountNumber == "" {
				return nil, nil
			}
			return []*domain.Event{
				// Inside 4h: inbound 1000, outbound 800.
				historyEvent(now.Add(-time.Hour), map[string]any{
					"senderName": "Ama", "senderCountry": "GH",
					"transactionType": "remittance", "amount": 1000.0,
				}),
				historyEvent(now.Add(-2*time.Hour), map[string]any{
					"senderName": "Kofi", "senderCountry": "NG",
					"transactionType": "withdrawal", "amount": 800.0,
				}),
				// Inside 72h but outside 4h: convergence only.
				historyEvent(now.Add(-48*time.Hour), map[string]any{
					"senderName": "Yaw", "senderCountry": "US",
					"transactionType": "transfer", "amount": 500.0,
				}),
				// Outside 72h: corridor diversity only.
				historyEvent(now.Add(-6*24*time.Hour), map[string]any{
					"senderName": "Esi", "senderCountry": "GB",
					"transactionType": "topup", "amount": 200.0,
				}),
			}, nil
		},
	}

	ev := historyEvent(now, map[string]any{"accountNumber": "ACC-9"})
	snap := NewAggregator(history).Snapshot(context.Background(), "t1", ev, nil, now)

	if snap.UniqueSendersToBeneficiary72h != 3 {
		t.Errorf("UniqueSendersToBeneficiary72h = %d, want 3", snap.UniqueSendersToBeneficiary72h)
	}
	if snap.UniqueCorridors7d != 4 {
		t.Errorf("UniqueCorridors7d = %d, want 4", snap.UniqueCorridors7d)
	}
	if snap.PassThroughRatio4h != 0.8 {
		t.Errorf("PassThroughRatio4h = %v, want 0.8", snap.PassThroughRatio4h)
	}
}

func TestSnapshotZeroInboundPassThrough(t *testing.T) {
	now := time.Now().UTC()
	history := &fakeHistory{
		query: func(q domain.EventQuery) ([]*domain.Event, error) {
			return []*domain.Event{
				historyEvent(now.Add(-time.Hour), map[string]any{
					"transactionType": "payout", "amount": 900.0,
				}),
			}, nil
		},
	}

	ev := historyEvent(now, map[string]any{"accountNumber": "ACC-9"})
	snap := NewAggregator(history).Snapshot(context.Background(), "t1", ev, nil, now)

	if snap.PassThroughRatio4h != 0 {
		t.Errorf("PassThroughRatio4h = %v, want 0 when no inbound", snap.PassThroughRatio4h)
	}
}

func TestSnapshotSkipsCategoriesWithoutIdentifiers(t *testing.T) {
	history := &fakeHistory{
		aggregate: func(q domain.EventQuery, reducer, field string) (float64, error) {
			return 0, fmt.Errorf("no query expected without identifiers")
		},
		query: func(q domain.EventQuery) ([]*domain.Event, error) {
			return nil, fmt.Errorf("no query expected without identifiers")
		},
	}

	now := time.Now().UTC()
	ev := historyEvent(now, map[string]any{"amount": 50.0})
	snap := NewAggregator(history).Snapshot(context.Background(), "t1", ev, nil, now)

	if snap.CurrentDayVolume != 0 || snap.UniqueOutboundCount5d != 0 || snap.PassThroughRatio4h != 0 {
		t.Error("all windowed metrics should default to zero without correlation identifiers")
	}
}

func TestSnapshotFailedCategoryDefaults(t *testing.T) {
	now := time.Now().UTC()
	history := &fakeHistory{
		aggregate: func(q domain.EventQuery, reducer, field string) (float64, error) {
			return 0, fmt.Errorf("history unavailable")
		},
		query: func(q domain.EventQuery) ([]*domain.Event, error) {
			return nil, fmt.Errorf("history unavailable")
		},
	}

	ev := historyEvent(now, map[string]any{
		"merchantId": "MTO-1", "senderName": "Ama", "accountNumber": "ACC-9",
		"senderCountry": "IR", "transactionType": "Remittance",
	})
	snap := NewAggregator(history).Snapshot(context.Background(), "t1", ev, nil, now)

	// Windowed categories default; static categories still computed.
	if snap.CurrentDayVolume != 0 || snap.SenderFifteenDaySum != 0 {
		t.Error("failed categories should default to zero")
	}
	if snap.CountryRiskTier != 1 {
		t.Errorf("CountryRiskTier = %d, want 1 for IR", snap.CountryRiskTier)
	}
	if !snap.IsRemittance {
		t.Error("IsRemittance should be set from the payload")
	}
}

func TestCountryTiers(t *testing.T) {
	cases := []struct {
		cc           string
		wantRisk     int
		wantConflict int
	}{
		{"KP", 1, 3},
		{"ng", 2, 2},
		{"PK", 3, 2},
		{"AF", 3, 1},
		{"GH", 4, 3},
		{"", 4, 3},
	}

	for _, tc := range cases {
		if got := CountryRiskTier(tc.cc); got != tc.wantRisk {
			t.Errorf("CountryRiskTier(%q) = %d, want %d", tc.cc, got, tc.wantRisk)
		}
		if got := ConflictRiskTier(tc.cc); got != tc.wantConflict {
			t.Errorf("ConflictRiskTier(%q) = %d, want %d", tc.cc, got, tc.wantConflict)
		}
	}
}
