// Package pipeline orchestrates event ingestion: enrichment context,
// windowed metrics, rule scoring, classification, triage and risk-state
// update, in that order. The event itself is persisted before any
// evaluation so the audit trail survives evaluation failures.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/kestrel/internal/customer"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/triage"
)

var tracer = otel.Tracer("kestrel-pipeline")

// Pipeline wires the evaluation stages together.
type Pipeline struct {
	repo       domain.Repository
	bus        domain.EventBus
	catalog    *rules.Catalog
	scorer     *rules.Scorer
	aggregator *metrics.Aggregator
	classifier *decision.Classifier
	triage     *triage.Triage
	updater    *customer.Updater
	matcher    domain.IdentityMatcher

	// lists is optional; nil means no list screening is configured.
	lists         domain.ListSource
	lookupTimeout time.Duration
}

// Config wires pipeline collaborators.
type Config struct {
	Repository domain.Repository
	Bus        domain.EventBus
	Catalog    *rules.Catalog
	Scorer     *rules.Scorer
	Aggregator *metrics.Aggregator
	Classifier *decision.Classifier
	Triage     *triage.Triage
	Updater    *customer.Updater
	Matcher    domain.IdentityMatcher

	Lists         domain.ListSource
	LookupTimeout time.Duration
}

// New creates an evaluation pipeline.
func New(cfg Config) *Pipeline {
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Pipeline{
		repo:          cfg.Repository,
		bus:           cfg.Bus,
		catalog:       cfg.Catalog,
		scorer:        cfg.Scorer,
		aggregator:    cfg.Aggregator,
		classifier:    cfg.Classifier,
		triage:        cfg.Triage,
		updater:       cfg.Updater,
		matcher:       cfg.Matcher,
		lists:         cfg.Lists,
		lookupTimeout: timeout,
	}
}

// Result is the synchronous outcome of processing one event.
type Result struct {
	Event        *domain.Event    `json:"event"`
	Decision     *domain.Decision `json:"decision"`
	Case         *domain.Case     `json:"case,omitempty"`
	Unregistered bool             `json:"unregistered"`
}

// Process ingests and evaluates one event for a tenant.
func (p *Pipeline) Process(ctx context.Context, tenantID string, req *domain.EventRequest) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.process")
	defer span.End()
	start := time.Now()

	if req == nil || len(req.Payload) == 0 {
		return nil, domain.ValidationErrorf("event payload is required")
	}
	if req.ActionType == "" {
		return nil, domain.ValidationErrorf("actionType is required")
	}

	ev := &domain.Event{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Domain:     eventDomain(req.Domain),
		ActionType: strings.ToUpper(req.ActionType),
		Payload:    req.Payload,
		Enrichment: req.Enrichment,
		IPAddress:  req.IPAddress,
		DeviceID:   req.DeviceID,
		CreatedAt:  time.Now().UTC(),
	}
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("event.id", ev.ID),
		attribute.String("event.domain", ev.Domain),
	)

	// Only a confirmed miss fails closed; a storage failure must surface so
	// the caller retries instead of declining a registered customer.
	cust, err := p.repo.GetCustomerByExternalID(ctx, tenantID, ev.PayloadString("merchantId"))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, domain.PersistenceErrorf("customer lookup failed: %v", err)
		}
		cust = nil
		slog.Warn("event from unregistered customer",
			"tenant_id", tenantID,
			"merchant_id", ev.PayloadString("merchantId"),
		)
	}

	// Raw event first: the audit trail must exist even if evaluation fails.
	if err := p.repo.SaveEvent(ctx, tenantID, ev); err != nil {
		return nil, domain.PersistenceErrorf("failed to save event: %v", err)
	}
	p.publish(ctx, tenantID, domain.TopicEventIngested, ev)

	if cust == nil {
		d, err := p.classifier.FailClosed(ctx, tenantID, ev.ID, start)
		if err != nil {
			return nil, err
		}
		p.publish(ctx, tenantID, domain.TopicDecisionCompleted, d)
		return &Result{Event: ev, Decision: d, Unregistered: true}, nil
	}

	pool := p.buildPool(ctx, tenantID, ev, cust)

	ruleSet, err := p.catalog.ActiveRules(ctx, tenantID, ev.Domain)
	if err != nil {
		return nil, err
	}
	outcome := p.scorer.Score(ctx, ruleSet, pool)

	d, err := p.classifier.Decide(ctx, tenantID, ev.ID, outcome, start)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("decision.score", d.Score),
		attribute.String("decision.status", d.Status),
	)

	cs := p.triage.FromDecision(ctx, tenantID, cust.ID, ev, d)

	if err := p.updater.Apply(ctx, tenantID, cust, ev, d.Score); err != nil {
		slog.Error("failed to update customer risk state",
			"tenant_id", tenantID,
			"customer_id", cust.ID,
			"error", err,
		)
	}

	p.publish(ctx, tenantID, domain.TopicDecisionCompleted, d)

	return &Result{Event: ev, Decision: d, Case: cs}, nil
}

// buildPool assembles the data pool read by rule expressions. Every lookup
// degrades to its default on failure; pool assembly never aborts the event.
func (p *Pipeline) buildPool(ctx context.Context, tenantID string, ev *domain.Event, cust *domain.Customer) map[string]any {
	ctx, span := tracer.Start(ctx, "pipeline.build_pool")
	defer span.End()

	var (
		wg       sync.WaitGroup
		snap     *domain.MetricsSnapshot
		match    domain.IdentityMatch
		listHits []domain.ListEntry
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		snap = p.aggregator.Snapshot(ctx, tenantID, ev, cust, time.Now().UTC())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		match = p.matcher.MatchIdentity(partyNames(ev, cust), cust.Directors)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		listHits = p.lookupListHits(ctx, tenantID, ev)
	}()

	wg.Wait()

	hits := make([]map[string]any, 0, len(listHits))
	for _, h := range listHits {
		hits = append(hits, map[string]any{"value": h.Value, "listType": h.ListType})
	}

	return map[string]any{
		"payload":    ev.Payload,
		"enrichment": ev.Enrichment,
		"metrics":    snap.ToMap(),
		"actors": map[string]any{
			"senderName":    ev.PayloadString("senderName"),
			"recipientName": ev.PayloadString("recipientName"),
			"senderCountry": ev.PayloadString("senderCountry"),
		},
		"user": map[string]any{
			"userEmail": firstPayload(ev, "customerEmail", "senderEmail", "userEmail"),
			"userPhone": firstPayload(ev, "phoneNumber", "phone"),
		},
		"internal": map[string]any{
			"identityMatch": match.MatchType,
			"listHits":      hits,
			"isRemittance":  snap.IsRemittance,
			"sanctionsHit":  sanctionsHit(ev.Enrichment),
		},
		"domain":     ev.Domain,
		"actionType": ev.ActionType,
		"ip":         ev.IPAddress,
		"deviceId":   ev.DeviceID,
	}
}

// lookupListHits screens the event's identifying values against managed
// lists, bounded by the lookup timeout. Failures degrade to no hits.
func (p *Pipeline) lookupListHits(ctx context.Context, tenantID string, ev *domain.Event) []domain.ListEntry {
	if p.lists == nil {
		return nil
	}

	values := []string{
		firstPayload(ev, "customerEmail", "senderEmail", "userEmail"),
		firstPayload(ev, "phoneNumber", "phone"),
		ev.IPAddress,
		ev.DeviceID,
	}

	ctx, cancel := context.WithTimeout(ctx, p.lookupTimeout)
	defer cancel()

	var hits []domain.ListEntry
	for _, v := range values {
		if v == "" {
			continue
		}
		entries, err := p.lists.Lookup(ctx, tenantID, v, "BLACKLIST")
		if err != nil {
			slog.Warn("list lookup degraded",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		hits = append(hits, entries...)
	}
	return hits
}

func (p *Pipeline) publish(ctx context.Context, tenantID, topic string, payload any) {
	if p.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal bus payload", "topic", topic, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, tenantID, topic, data); err != nil {
		slog.Warn("bus publish failed",
			"tenant_id", tenantID,
			"topic", topic,
			"error", err,
		)
	}
}

func eventDomain(dom string) string {
	switch strings.ToUpper(dom) {
	case domain.DomainPSP, domain.DomainRemittance, domain.DomainCredit, domain.DomainAll:
		return strings.ToUpper(dom)
	default:
		return domain.DomainPSP
	}
}

// partyNames collects the names screened against the director roster; the
// sender (or the customer itself) always comes first.
func partyNames(ev *domain.Event, cust *domain.Customer) []string {
	sender := ev.PayloadString("senderName")
	if sender == "" {
		sender = cust.Name
	}
	names := []string{sender}
	if recipient := ev.PayloadString("recipientName"); recipient != "" {
		names = append(names, recipient)
	}
	return names
}

func firstPayload(ev *domain.Event, keys ...string) string {
	for _, k := range keys {
		if v := ev.PayloadString(k); v != "" {
			return v
		}
	}
	return ""
}

// sanctionsHit reads enrichment.sanctionsDetails.anyMatch.
func sanctionsHit(enrichment map[string]any) bool {
	details, ok := enrichment["sanctionsDetails"].(map[string]any)
	if !ok {
		return false
	}
	hit, _ := details["anyMatch"].(bool)
	return hit
}
