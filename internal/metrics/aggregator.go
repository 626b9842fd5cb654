// Package metrics computes the windowed behavioral snapshot consumed by
// rule and watch expressions. Every category queries its own lookback
// window against the event history and defaults to zero when no history
// qualifies; a missing correlation identifier skips that category.
package metrics

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// History is the read-only event-history capability the aggregator
// consumes. domain.Repository satisfies it.
type History interface {
	QueryEvents(ctx context.Context, tenantID string, q domain.EventQuery) ([]*domain.Event, error)
	AggregateEvents(ctx context.Context, tenantID string, q domain.EventQuery, reducer string, field string) (float64, error)
}

// Transaction type groups for the pass-through ratio.
var (
	passThroughInbound  = []string{"remittance", "topup"}
	passThroughOutbound = []string{"transfer", "withdrawal", "payout"}
)

// Aggregator computes MetricsSnapshots.
type Aggregator struct {
	history History
}

// NewAggregator creates a metrics aggregator over an event history.
func NewAggregator(history History) *Aggregator {
	return &Aggregator{history: history}
}

// Snapshot computes the behavioral metrics for one event at evaluation
// time. Sub-queries are independent and run concurrently; a failing
// category is logged and left at its defaults, never fatal. customer may
// be nil for context fields.
func (a *Aggregator) Snapshot(ctx context.Context, tenantID string, ev *domain.Event, customer *domain.Customer, now time.Time) *domain.MetricsSnapshot {
	snap := &domain.MetricsSnapshot{}

	merchantID := ev.PayloadString("merchantId")
	senderName := ev.PayloadString("senderName")
	accountNumber := ev.PayloadString("accountNumber")
	amount := ev.Amount()

	var wg sync.WaitGroup
	run := func(category string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				slog.Warn("metrics category defaulted",
					"category", category,
					"tenant_id", tenantID,
					"error", err,
				)
			}
		}()
	}

	if merchantID != "" {
		run("business_volume", func() error {
			return a.businessVolume(ctx, tenantID, merchantID, now, snap)
		})
		run("pattern", func() error {
			return a.patternAnalysis(ctx, tenantID, merchantID, amount, now, snap)
		})
		if senderName != "" {
			run("sender", func() error {
				return a.senderAnalysis(ctx, tenantID, merchantID, senderName, now, snap)
			})
		}
		if accountNumber != "" {
			run("beneficiary", func() error {
				return a.beneficiaryConcentration(ctx, tenantID, merchantID, accountNumber, now, snap)
			})
		}
	}
	if accountNumber != "" {
		run("mule_indicators", func() error {
			return a.muleIndicators(ctx, tenantID, accountNumber, now, snap)
		})
	}

	wg.Wait()

	senderCountry := ev.PayloadString("senderCountry")
	snap.CountryRiskTier = CountryRiskTier(senderCountry)
	snap.ConflictRiskTier = ConflictRiskTier(senderCountry)
	snap.IsRemittance = ev.TransactionType() == "remittance"
	snap.DescriptionKeywords = lowerDescription(ev)
	if customer != nil {
		snap.PreviousStatus = customer.Status
	}

	return snap
}

// businessVolume fills the merchant-level volume category: 24h volume,
// 30d cumulative, and long-window averages.
func (a *Aggregator) businessVolume(ctx context.Context, tenantID, merchantID string, now time.Time, snap *domain.MetricsSnapshot) error {
	avg90, err := a.history.AggregateEvents(ctx, tenantID,
		window(merchantID, now, 90*24*time.Hour), domain.ReduceAvg, "amount")
	if err != nil {
		return err
	}

	dayVolume, err := a.history.AggregateEvents(ctx, tenantID,
		window(merchantID, now, 24*time.Hour), domain.ReduceSum, "amount")
	if err != nil {
		return err
	}

	cumulative30d, err := a.history.AggregateEvents(ctx, tenantID,
		window(merchantID, now, 30*24*time.Hour), domain.ReduceSum, "amount")
	if err != nil {
		return err
	}

	snap.ThreeMonthDailyAvg = avg90
	snap.DailyAverage = avg90
	snap.MonthlyAverage = avg90 * 30
	snap.CurrentDayVolume = dayVolume
	snap.Cumulative30d = cumulative30d
	snap.FifteenDaySum = cumulative30d / 2
	return nil
}

// senderAnalysis fills the named-counterpart category: 15d sum and 24h
// count for one sender at this merchant.
func (a *Aggregator) senderAnalysis(ctx context.Context, tenantID, merchantID, senderName string, now time.Time, snap *domain.MetricsSnapshot) error {
	q := window(merchantID, now, 15*24*time.Hour)
	q.SenderName = senderName
	sum15d, err := a.history.AggregateEvents(ctx, tenantID, q, domain.ReduceSum, "amount")
	if err != nil {
		return err
	}

	q = window(merchantID, now, 24*time.Hour)
	q.SenderName = senderName
	count24h, err := a.history.AggregateEvents(ctx, tenantID, q, domain.ReduceCount, "")
	if err != nil {
		return err
	}

	snap.SenderFifteenDaySum = sum15d
	snap.SenderDailyTransactionCount = int64(count24h)
	return nil
}

// patternAnalysis fills the 5d fan-out category: distinct outbound
// counterparties, their total, and transfers within 5% of the current
// amount.
func (a *Aggregator) patternAnalysis(ctx context.Context, tenantID, merchantID string, amount float64, now time.Time, snap *domain.MetricsSnapshot) error {
	events, err := a.history.QueryEvents(ctx, tenantID, window(merchantID, now, 5*24*time.Hour))
	if err != nil {
		return err
	}

	accounts := make(map[string]bool)
	var total float64
	var similar int64
	tolerance := amount * 0.05

	for _, ev := range events {
		accounts[ev.PayloadString("accountNumber")] = true
		total += ev.Amount()
		if amount > 0 && math.Abs(ev.Amount()-amount) <= tolerance {
			similar++
		}
	}

	snap.UniqueOutboundCount5d = int64(len(accounts))
	snap.OutboundSum5d = total
	snap.SimilarAmountCount5d = similar
	return nil
}

// beneficiaryConcentration counts prior transfers to the same beneficiary
// within 30d.
func (a *Aggregator) beneficiaryConcentration(ctx context.Context, tenantID, merchantID, accountNumber string, now time.Time, snap *domain.MetricsSnapshot) error {
	q := window(merchantID, now, 30*24*time.Hour)
	q.AccountNumber = accountNumber
	count, err := a.history.AggregateEvents(ctx, tenantID, q, domain.ReduceCount, "")
	if err != nil {
		return err
	}

	snap.SameBeneficiaryCount30d = int64(count)
	return nil
}

// muleIndicators fills the beneficiary-scoped money-mule category:
// sender convergence in 72h, the 4h pass-through ratio, and corridor
// diversity over 7d. Scoped by beneficiary account across the whole
// tenant, not one merchant.
func (a *Aggregator) muleIndicators(ctx context.Context, tenantID, accountNumber string, now time.Time, snap *domain.MetricsSnapshot) error {
	events, err := a.history.QueryEvents(ctx, tenantID, domain.EventQuery{
		AccountNumber: accountNumber,
		Since:         now.Add(-7 * 24 * time.Hour),
		Until:         now,
	})
	if err != nil {
		return err
	}

	senders72h := make(map[string]bool)
	corridors := make(map[string]bool)
	var totalIn, totalOut float64

	cutoff72h := now.Add(-72 * time.Hour)
	cutoff4h := now.Add(-4 * time.Hour)

	for _, ev := range events {
		if country := ev.PayloadString("senderCountry"); country != "" {
			corridors[country] = true
		}
		if !ev.CreatedAt.Before(cutoff72h) {
			if sender := ev.PayloadString("senderName"); sender != "" {
				senders72h[sender] = true
			}
		}
		if !ev.CreatedAt.Before(cutoff4h) {
			switch {
			case contains(passThroughInbound, ev.TransactionType()):
				totalIn += ev.Amount()
			case contains(passThroughOutbound, ev.TransactionType()):
				totalOut += ev.Amount()
			}
		}
	}

	snap.UniqueSendersToBeneficiary72h = int64(len(senders72h))
	snap.UniqueCorridors7d = int64(len(corridors))
	if totalIn > 0 {
		snap.PassThroughRatio4h = totalOut / totalIn
	}
	return nil
}

// window builds a half-open [now-d, now) merchant-scoped query.
func window(merchantID string, now time.Time, d time.Duration) domain.EventQuery {
	return domain.EventQuery{
		MerchantID: merchantID,
		Since:      now.Add(-d),
		Until:      now,
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func lowerDescription(ev *domain.Event) string {
	return strings.ToLower(ev.PayloadString("description"))
}
