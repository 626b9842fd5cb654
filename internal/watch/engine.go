// Package watch evaluates per-customer alert watches. Watches run off the
// event bus, decoupled from the rule/decision pipeline: a watch firing (or
// failing) never changes a decision, and vice versa.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/expr"
)

// fieldPattern mirrors the repository's aggregate-field restriction so a
// misconfigured watch is rejected at creation instead of silently never
// firing.
var fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Engine evaluates a customer's active watches against an ingested event.
type Engine struct {
	repo     domain.Repository
	eval     *expr.Evaluator
	notifier domain.Notifier
}

// NewEngine creates a watch engine.
func NewEngine(repo domain.Repository, eval *expr.Evaluator, notifier domain.Notifier) *Engine {
	return &Engine{repo: repo, eval: eval, notifier: notifier}
}

// Validate checks a watch definition before it is stored.
func (e *Engine) Validate(w *domain.AlertWatch) error {
	switch w.Kind {
	case domain.WatchSimple:
		if w.Expression == "" {
			return domain.ValidationErrorf("SIMPLE watch requires an expression")
		}
		if _, err := e.eval.Compile(w.Expression); err != nil {
			return domain.ValidationErrorf("watch expression: %v", err)
		}
	case domain.WatchAggregate:
		agg := w.Aggregation
		if agg.Metric != domain.MetricSum && agg.Metric != domain.MetricCount {
			return domain.ValidationErrorf("AGGREGATE watch metric must be SUM or COUNT, got %q", agg.Metric)
		}
		if agg.WindowHours <= 0 {
			return domain.ValidationErrorf("AGGREGATE watch requires a positive window")
		}
		if agg.Field != "" && !fieldPattern.MatchString(agg.Field) {
			return domain.ValidationErrorf("aggregate field must be a bare payload key, got %q", agg.Field)
		}
	default:
		return domain.ValidationErrorf("watch kind must be SIMPLE or AGGREGATE, got %q", w.Kind)
	}

	switch w.Settings.Channel {
	case domain.ChannelEmail, domain.ChannelSlack, domain.ChannelWebhook:
	default:
		return domain.ValidationErrorf("unknown notification channel %q", w.Settings.Channel)
	}
	return nil
}

// Process evaluates every active watch for the event's customer. Each watch
// is isolated: one failing watch is logged and skipped, the rest still run.
func (e *Engine) Process(ctx context.Context, tenantID string, ev *domain.Event, customer *domain.Customer) (int, error) {
	watches, err := e.repo.ListActiveWatches(ctx, tenantID, customer.ID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	fired := 0
	for _, w := range watches {
		tripped, value, err := e.evaluate(ctx, w, ev, customer, now)
		if err != nil {
			slog.Warn("watch evaluation skipped",
				"tenant_id", tenantID,
				"watch_id", w.ID,
				"watch_name", w.Name,
				"error", err,
			)
			continue
		}
		if !tripped {
			continue
		}
		e.fire(ctx, w, ev, customer, value, now)
		fired++
	}
	return fired, nil
}

func (e *Engine) evaluate(ctx context.Context, w *domain.AlertWatch, ev *domain.Event, customer *domain.Customer, now time.Time) (bool, float64, error) {
	switch w.Kind {
	case domain.WatchSimple:
		program, err := e.eval.Compile(w.Expression)
		if err != nil {
			return false, 0, err
		}
		hit, err := e.eval.Evaluate(program, map[string]any{
			"payload":    ev.Payload,
			"enrichment": ev.Enrichment,
			"domain":     ev.Domain,
			"actionType": ev.ActionType,
			"ip":         ev.IPAddress,
			"deviceId":   ev.DeviceID,
		})
		return hit, ev.Amount(), err

	case domain.WatchAggregate:
		agg := w.Aggregation
		reducer := domain.ReduceSum
		if agg.Metric == domain.MetricCount {
			reducer = domain.ReduceCount
		}
		value, err := e.repo.AggregateEvents(ctx, w.TenantID, domain.EventQuery{
			MerchantID: customer.ExternalID,
			Since:      now.Add(-time.Duration(agg.WindowHours) * time.Hour),
			Until:      now,
		}, reducer, agg.Field)
		if err != nil {
			return false, 0, err
		}
		return value >= agg.Threshold, value, nil

	default:
		return false, 0, domain.EvaluationErrorf("unknown watch kind %q", w.Kind)
	}
}

// fire notifies the watch's channel and writes the alert log. Delivery is
// best effort; the log records the outcome either way.
func (e *Engine) fire(ctx context.Context, w *domain.AlertWatch, ev *domain.Event, customer *domain.Customer, value float64, now time.Time) {
	status := domain.DeliveryDelivered
	err := e.notifier.Send(ctx, domain.Notification{
		Channel:   w.Settings.Channel,
		Recipient: w.Settings.Recipient,
		Message:   fmt.Sprintf("Alert %q fired for customer %s (value %.2f, event %s)", w.Name, customer.ExternalID, value, ev.ID),
	})
	if err != nil {
		status = domain.DeliveryFailed
		slog.Warn("alert delivery failed",
			"tenant_id", w.TenantID,
			"watch_id", w.ID,
			"channel", w.Settings.Channel,
			"error", err,
		)
	} else {
		slog.Info("alert fired",
			"tenant_id", w.TenantID,
			"watch_id", w.ID,
			"watch_name", w.Name,
			"customer_id", customer.ID,
			"value", value,
		)
	}

	if err := e.repo.SaveAlertLog(ctx, w.TenantID, &domain.AlertLog{
		ID:           uuid.New().String(),
		TenantID:     w.TenantID,
		WatchID:      w.ID,
		CustomerID:   customer.ID,
		EventID:      ev.ID,
		TriggerName:  w.Name,
		TriggerValue: value,
		Status:       status,
		CreatedAt:    now,
	}); err != nil {
		slog.Error("failed to save alert log", "tenant_id", w.TenantID, "watch_id", w.ID, "error", err)
	}

	if err := e.repo.MarkWatchFired(ctx, w.TenantID, w.ID, now); err != nil {
		slog.Error("failed to mark watch fired", "tenant_id", w.TenantID, "watch_id", w.ID, "error", err)
	}
}
