// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveEvent stores a raw event with tenant isolation. The correlation
// columns are denormalized from the payload at write time.
func (r *SQLRepository) SaveEvent(ctx context.Context, tenantID string, ev *domain.Event) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	payload, _ := json.Marshal(ev.Payload)
	enrichment, _ := json.Marshal(ev.Enrichment)

	query := `
		INSERT INTO events (
			id, tenant_id, domain, action_type, payload, enrichment,
			ip_address, device_id, merchant_id, sender_name,
			account_number, transaction_type, amount, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		ev.ID, tenantID, ev.Domain, ev.ActionType,
		string(payload), string(enrichment),
		ev.IPAddress, ev.DeviceID,
		ev.PayloadString("merchantId"), ev.PayloadString("senderName"),
		ev.PayloadString("accountNumber"), ev.TransactionType(),
		ev.Amount(), ev.CreatedAt,
	)
	return err
}

// GetEvent retrieves an event by ID with tenant isolation.
func (r *SQLRepository) GetEvent(ctx context.Context, tenantID string, eventID string) (*domain.Event, error) {
	if tenantID == "" {
		return nil, domain.ValidationErrorf("tenantID is required")
	}

	query := `
		SELECT id, tenant_id, domain, action_type, payload, enrichment,
			   ip_address, device_id, created_at
		FROM events
		WHERE tenant_id = ? AND id = ?
	`

	var ev domain.Event
	var payload, enrichment string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, eventID).Scan(
		&ev.ID, &ev.TenantID, &ev.Domain, &ev.ActionType,
		&payload, &enrichment,
		&ev.IPAddress, &ev.DeviceID, &ev.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundErrorf("event %s", eventID)
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(payload), &ev.Payload)
	json.Unmarshal([]byte(enrichment), &ev.Enrichment)
	return &ev, nil
}

// eventFilter builds the WHERE clause shared by event queries. The time
// range is half-open: since <= created_at < until.
func eventFilter(tenantID string, q domain.EventQuery) (string, []any) {
	clauses := []string{"tenant_id = ?"}
	args := []any{tenantID}

	if q.MerchantID != "" {
		clauses = append(clauses, "merchant_id = ?")
		args = append(args, q.MerchantID)
	}
	if q.SenderName != "" {
		clauses = append(clauses, "sender_name = ?")
		args = append(args, q.SenderName)
	}
	if q.AccountNumber != "" {
		clauses = append(clauses, "account_number = ?")
		args = append(args, q.AccountNumber)
	}
	if len(q.TransactionTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(q.TransactionTypes)), ", ")
		clauses = append(clauses, "transaction_type IN ("+placeholders+")")
		for _, t := range q.TransactionTypes {
			args = append(args, strings.ToLower(t))
		}
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, q.Since)
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, q.Until)
	}

	return strings.Join(clauses, " AND "), args
}

// QueryEvents retrieves historical events matching the query.
func (r *SQLRepository) QueryEvents(ctx context.Context, tenantID string, q domain.EventQuery) ([]*domain.Event, error) {
	if tenantID == "" {
		return nil, domain.ValidationErrorf("tenantID is required")
	}

	where, args := eventFilter(tenantID, q)
	query := `
		SELECT id, tenant_id, domain, action_type, payload, enrichment,
			   ip_address, device_id, created_at
		FROM events
		WHERE ` + where + `
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var ev domain.Event
		var payload, enrichment string

		if err := rows.Scan(
			&ev.ID, &ev.TenantID, &ev.Domain, &ev.ActionType,
			&payload, &enrichment,
			&ev.IPAddress, &ev.DeviceID, &ev.CreatedAt,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(payload), &ev.Payload)
		json.Unmarshal([]byte(enrichment), &ev.Enrichment)
		events = append(events, &ev)
	}

	return events, rows.Err()
}

// AggregateEvents computes SUM/COUNT/AVG over matching events. SUM and AVG
// reduce the amount column; COUNT ignores the field.
func (r *SQLRepository) AggregateEvents(ctx context.Context, tenantID string, q domain.EventQuery, reducer string, field string) (float64, error) {
	if tenantID == "" {
		return 0, domain.ValidationErrorf("tenantID is required")
	}

	expr, err := r.aggregateExpr(reducer, field)
	if err != nil {
		return 0, err
	}

	where, args := eventFilter(tenantID, q)
	query := "SELECT " + expr + " FROM events WHERE " + where

	var value float64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// aggregateFieldPattern restricts aggregate fields to bare payload keys so
// they can be spliced into the JSON path safely.
var aggregateFieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// aggregateExpr builds the SQL aggregate expression. The amount column is
// denormalized at write time; any other payload field is pulled out of the
// stored JSON with the driver's extraction functions.
func (r *SQLRepository) aggregateExpr(reducer, field string) (string, error) {
	if reducer == domain.ReduceCount {
		return "COUNT(*)", nil
	}

	var fn string
	switch reducer {
	case domain.ReduceSum:
		fn = "SUM"
	case domain.ReduceAvg:
		fn = "AVG"
	default:
		return "", domain.ValidationErrorf("unsupported reducer %q", reducer)
	}

	column := "amount"
	switch field {
	case "", "amount", "transactionAmount":
	default:
		if !aggregateFieldPattern.MatchString(field) {
			return "", domain.ValidationErrorf("invalid aggregate field %q", field)
		}
		if r.driver == "postgres" {
			column = "((payload::jsonb ->> '" + field + "')::numeric)"
		} else {
			column = "CAST(json_extract(payload, '$." + field + "') AS REAL)"
		}
	}
	return "COALESCE(" + fn + "(" + column + "), 0)", nil
}

// SaveRule inserts or updates a rule with tenant isolation.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.Rule) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	active := 0
	if rule.Active {
		active = 1
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO rules (
			id, tenant_id, name, description, domain, expression, action,
			score, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			domain = excluded.domain,
			expression = excluded.expression,
			action = excluded.action,
			score = excluded.score,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Domain,
		rule.Expression, rule.Action, rule.Score, active,
		rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetRule retrieves a rule by ID with tenant isolation.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, ruleID string) (*domain.Rule, error) {
	if tenantID == "" {
		return nil, domain.ValidationErrorf("tenantID is required")
	}

	query := `
		SELECT id, tenant_id, name, description, domain, expression, action,
			   score, active, created_at, updated_at
		FROM rules
		WHERE tenant_id = ? AND id = ?
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundErrorf("rule %s", ruleID)
	}
	return rule, err
}

// ListActiveRules retrieves the tenant's active rules. A non-empty dom
// restricts to rules scoped to that business domain or to ALL.
func (r *SQLRepository) ListActiveRules(ctx context.Context, tenantID string, dom string) ([]*domain.Rule, error) {
	if tenantID == "" {
		return nil, domain.ValidationErrorf("tenantID is required")
	}

	query := `
		SELECT id, tenant_id, name, description, domain, expression, action,
			   score, active, created_at, updated_at
		FROM rules
		WHERE tenant_id = ? AND active = 1
	`
	args := []any{tenantID}
	if dom != "" {
		query += ` AND domain IN (?, ?)`
		args = append(args, domain.DomainAll, dom)
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rulesOut []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rulesOut = append(rulesOut, rule)
	}

	return rulesOut, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.Rule, error) {
	var rule domain.Rule
	var active int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description, &rule.Domain,
		&rule.Expression, &rule.Action, &rule.Score, &active,
		&rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rule.Active = active == 1
	return &rule, nil
}

// GetThresholds returns the tenant's score cut-offs, or the defaults when
// the tenant has never configured them.
func (r *SQLRepository) GetThresholds(ctx context.Context, tenantID string) (domain.Thresholds, error) {
	if tenantID == "" {
		return domain.Thresholds{}, domain.ValidationErrorf("tenantID is required")
	}

	query := `SELECT decline, review FROM thresholds WHERE tenant_id = ?`

	var t domain.Thresholds
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(&t.Decline, &t.Review)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultThresholds(), nil
	}
	if err != nil {
		return domain.Thresholds{}, err
	}
	return t, nil
}

// SaveThresholds stores the tenant's score cut-offs.
func (r *SQLRepository) SaveThresholds(ctx context.Context, tenantID string, t domain.Thresholds) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	query := `
		INSERT INTO thresholds (tenant_id, decline, review, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			decline = excluded.decline,
			review = excluded.review,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, t.Decline, t.Review, time.Now().UTC())
	return err
}

// SaveDecision stores a decision with tenant isolation.
func (r *SQLRepository) SaveDecision(ctx context.Context, tenantID string, d *domain.Decision) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	triggered, _ := json.Marshal(d.TriggeredRules)
	overrides, _ := json.Marshal(d.ManualOverrides)

	query := `
		INSERT INTO decisions (
			id, tenant_id, event_id, score, status, triggered_rules,
			manual_overrides, processing_time_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, tenantID, d.EventID, d.Score, d.Status,
		string(triggered), string(overrides), d.ProcessingTimeMs, d.CreatedAt,
	)
	return err
}

// GetDecision retrieves a decision by ID with tenant isolation.
func (r *SQLRepository) GetDecision(ctx context.Context, tenantID string, decisionID string) (*domain.Decision, error) {
	if tenantID == "" {
		return nil, domain.ValidationErrorf("tenantID is required")
	}

	query := `
		SELECT id, tenant_id, event_id, score, status, triggered_rules,
			   manual_overrides, processing_time_ms, created_at
		FROM decisions
		WHERE tenant_id = ? AND id = ?
	`

	d, err := scanDecision(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, decisionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundErrorf("decision %s", decisionID)
	}
	return d, err
}

// ListDecisions retrieves the tenant's most recent decisions.
func (r *SQLRepository) ListDecisions(ctx context.Context, tenantID string, limit int) ([]*domain.Decision, error) {
	if tenantID == "" {
		return nil, domain.ValidationErrorf("tenantID is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, event_id, score, status, triggered_rules,
			   manual_overrides, processing_time_ms, created_at
		FROM decisions
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

func scanDecision(row rowScanner) (*domain.Decision, error) {
	var d domain.Decision
	var triggered, overrides string

	if err := row.Scan(
		&d.ID, &d.TenantID, &d.EventID, &d.Score, &d.Status,
		&triggered, &overrides, &d.ProcessingTimeMs, &d.CreatedAt,
	); err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(triggered), &d.TriggeredRules)
	json.Unmarshal([]byte(overrides), &d.ManualOverrides)
	return &d, nil
}

// AppendOverride appends a manual override to the decision's trail and
// updates the current status. Returns the updated decision. The
// read-modify-write runs in a transaction so concurrent overrides on the
// same decision cannot drop each other's entries.
func (r *SQLRepository) AppendOverride(ctx context.Context, tenantID string, decisionID string, o domain.Override) (*domain.Decision, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		SELECT id, tenant_id, event_id, score, status, triggered_rules,
			   manual_overrides, processing_time_ms, created_at
		FROM decisions
		WHERE tenant_id = ? AND id = ?
	`
	// SQLite serializes writers on its own; postgres needs the row lock.
	if r.driver == "postgres" {
		query += " FOR UPDATE"
	}

	d, err := scanDecision(tx.QueryRowContext(ctx, r.rebind(query), tenantID, decisionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundErrorf("decision %s", decisionID)
	}
	if err != nil {
		return nil, err
	}

	d.ManualOverrides = append(d.ManualOverrides, o)
	d.Status = o.Status
	overrides, _ := json.Marshal(d.ManualOverrides)

	update := `
		UPDATE decisions
		SET manual_overrides = ?, status = ?
		WHERE tenant_id = ? AND id = ?
	`
	if _, err := tx.ExecContext(ctx, r.rebind(update), string(overrides), d.Status, tenantID, decisionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d, nil
}

// SaveWatch inserts or updates an alert watch with tenant isolation.
func (r *SQLRepository) SaveWatch(ctx context.Context, tenantID string, w *domain.AlertWatch) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	aggregation, _ := json.Marshal(w.Aggregation)
	settings, _ := json.Marshal(w.Settings)

	active := 0
	if w.Active {
		active = 1
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO watches (
			id, tenant_id, customer_id, name, description, kind,
			expression, aggregation, settings, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			kind = excluded.kind,
			expression = excluded.expression,
			aggregation = excluded.aggregation,
			settings = excluded.settings,
			active = excluded.active
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		w.ID, tenantID, w.CustomerID, w.Name, w.Description, w.Kind,
		w.Expression, string(aggregation), string(settings), active, w.CreatedAt,
	)
	return err
}

// ListActiveWatches retrieves a customer's active watches.
func (r *SQLRepository) ListActiveWatches(ctx context.Context, tenantID string, customerID string) ([]*domain.AlertWatch, error) {
	if tenantID == "" {
		return nil, domain.ValidationErrorf("tenantID is required")
	}

	query := `
		SELECT id, tenant_id, customer_id, name, description, kind,
			   expression, aggregation, settings, active, last_fired, created_at
		FROM watches
		WHERE tenant_id = ? AND customer_id = ? AND active = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var watches []*domain.AlertWatch
	for rows.Next() {
		var w domain.AlertWatch
		var aggregation, settings string
		var active int
		var lastFired sql.NullTime

		if err := rows.Scan(
			&w.ID, &w.TenantID, &w.CustomerID, &w.Name, &w.Description, &w.Kind,
			&w.Expression, &aggregation, &settings, &active, &lastFired, &w.CreatedAt,
		); err != nil {
			return nil, err
		}

		w.Active = active == 1
		if lastFired.Valid {
			t := lastFired.Time
			w.LastFired = &t
		}
		json.Unmarshal([]byte(aggregation), &w.Aggregation)
		json.Unmarshal([]byte(settings), &w.Settings)
		watches = append(watches, &w)
	}

	return watches, rows.Err()
}

// MarkWatchFired records the watch's last firing time.
func (r *SQLRepository) MarkWatchFired(ctx context.Context, tenantID string, watchID string, at time.Time) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	query := `UPDATE watches SET last_fired = ? WHERE tenant_id = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), at, tenantID, watchID)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.NotFoundErrorf("watch %s", watchID)
	}
	return nil
}

// SaveAlertLog stores one fired-watch record.
func (r *SQLRepository) SaveAlertLog(ctx context.Context, tenantID string, l *domain.AlertLog) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	query := `
		INSERT INTO alert_logs (
			id, tenant_id, watch_id, customer_id, event_id,
			trigger_name, trigger_value, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		l.ID, tenantID, l.WatchID, l.CustomerID, l.EventID,
		l.TriggerName, l.TriggerValue, l.Status, l.CreatedAt,
	)
	return err
}

// SaveCustomer stores a newly registered customer.
func (r *SQLRepository) SaveCustomer(ctx context.Context, tenantID string, c *domain.Customer) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	directors, _ := json.Marshal(c.Directors)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO customers (
			id, tenant_id, external_id, name, status, directors,
			total_transactions, total_flags, total_inbound_volume,
			total_outbound_volume, onboarding_risk_score,
			dynamic_risk_score, risk_level, last_seen, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.ExternalID, c.Name, c.Status, string(directors),
		c.TotalTransactions, c.TotalFlags, c.TotalInboundVolume,
		c.TotalOutboundVolume, c.OnboardingRiskScore,
		c.DynamicRiskScore, c.RiskLevel, c.LastSeen, c.CreatedAt,
	)
	return err
}

// GetCustomerByExternalID retrieves a customer by the identifier carried
// on events.
func (r *SQLRepository) GetCustomerByExternalID(ctx context.Context, tenantID string, externalID string) (*domain.Customer, error) {
	if tenantID == "" {
		return nil, domain.ValidationErrorf("tenantID is required")
	}
	if externalID == "" {
		return nil, domain.NotFoundErrorf("customer with empty external ID")
	}

	query := `
		SELECT id, tenant_id, external_id, name, status, directors,
			   total_transactions, total_flags, total_inbound_volume,
			   total_outbound_volume, onboarding_risk_score,
			   dynamic_risk_score, risk_level, last_seen, created_at
		FROM customers
		WHERE tenant_id = ? AND external_id = ?
	`

	var c domain.Customer
	var directors string
	var lastSeen sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, externalID).Scan(
		&c.ID, &c.TenantID, &c.ExternalID, &c.Name, &c.Status, &directors,
		&c.TotalTransactions, &c.TotalFlags, &c.TotalInboundVolume,
		&c.TotalOutboundVolume, &c.OnboardingRiskScore,
		&c.DynamicRiskScore, &c.RiskLevel, &lastSeen, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundErrorf("customer %s", externalID)
	}
	if err != nil {
		return nil, err
	}

	if lastSeen.Valid {
		t := lastSeen.Time
		c.LastSeen = &t
	}
	json.Unmarshal([]byte(directors), &c.Directors)
	return &c, nil
}

// UpdateCustomerRiskState persists the mutable risk-state columns.
func (r *SQLRepository) UpdateCustomerRiskState(ctx context.Context, tenantID string, c *domain.Customer) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	query := `
		UPDATE customers
		SET total_transactions = ?, total_flags = ?,
			total_inbound_volume = ?, total_outbound_volume = ?,
			dynamic_risk_score = ?, risk_level = ?, last_seen = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		c.TotalTransactions, c.TotalFlags,
		c.TotalInboundVolume, c.TotalOutboundVolume,
		c.DynamicRiskScore, c.RiskLevel, c.LastSeen,
		tenantID, c.ID,
	)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.NotFoundErrorf("customer %s", c.ID)
	}
	return nil
}

// SaveCase stores an investigation case.
func (r *SQLRepository) SaveCase(ctx context.Context, tenantID string, cs *domain.Case) error {
	if tenantID == "" {
		return domain.ValidationErrorf("tenantID is required")
	}

	triggered, _ := json.Marshal(cs.TriggeredRules)

	query := `
		INSERT INTO cases (
			id, tenant_id, customer_id, event_id, decision_id, reference,
			title, severity, status, total_risk_score, triggered_rules, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		cs.ID, tenantID, cs.CustomerID, cs.EventID, cs.DecisionID, cs.Reference,
		cs.Title, cs.Severity, cs.Status, cs.TotalRiskScore, string(triggered), cs.CreatedAt,
	)
	return err
}

// ListCases retrieves the tenant's most recent cases.
func (r *SQLRepository) ListCases(ctx context.Context, tenantID string, limit int) ([]*domain.Case, error) {
	if tenantID == "" {
		return nil, domain.ValidationErrorf("tenantID is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, customer_id, event_id, decision_id, reference,
			   title, severity, status, total_risk_score, triggered_rules, created_at
		FROM cases
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		var cs domain.Case
		var triggered string

		if err := rows.Scan(
			&cs.ID, &cs.TenantID, &cs.CustomerID, &cs.EventID, &cs.DecisionID, &cs.Reference,
			&cs.Title, &cs.Severity, &cs.Status, &cs.TotalRiskScore, &triggered, &cs.CreatedAt,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(triggered), &cs.TriggeredRules)
		cases = append(cases, &cs)
	}

	return cases, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
