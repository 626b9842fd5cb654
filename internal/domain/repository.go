// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// EventQuery narrows the historical events considered by an aggregate or
// list query. Zero-valued fields are not applied. Time ranges are half-open:
// Since <= createdAt < Until.
type EventQuery struct {
	MerchantID    string
	SenderName    string
	AccountNumber string

	// TransactionTypes restricts to payload transactionType values
	// (lowercased).
	TransactionTypes []string

	Since time.Time
	Until time.Time
}

// Reducers for event aggregation.
const (
	ReduceSum   = "SUM"
	ReduceCount = "COUNT"
	ReduceAvg   = "AVG"
)

// Repository defines the persistence boundary. All methods require tenantID
// for strict multi-tenancy isolation.
type Repository interface {
	// Event history (append-only) and the read-only query capability
	// consumed by the metrics aggregator and the watch engine.
	SaveEvent(ctx context.Context, tenantID string, ev *Event) error
	GetEvent(ctx context.Context, tenantID string, eventID string) (*Event, error)
	QueryEvents(ctx context.Context, tenantID string, q EventQuery) ([]*Event, error)
	AggregateEvents(ctx context.Context, tenantID string, q EventQuery, reducer string, field string) (float64, error)

	// Rules (management is external; evaluation reads snapshots).
	SaveRule(ctx context.Context, tenantID string, rule *Rule) error
	GetRule(ctx context.Context, tenantID string, ruleID string) (*Rule, error)
	ListActiveRules(ctx context.Context, tenantID string, domain string) ([]*Rule, error)

	// Tenant thresholds; implementations return DefaultThresholds when
	// the tenant has none configured.
	GetThresholds(ctx context.Context, tenantID string) (Thresholds, error)
	SaveThresholds(ctx context.Context, tenantID string, t Thresholds) error

	// Decisions.
	SaveDecision(ctx context.Context, tenantID string, d *Decision) error
	GetDecision(ctx context.Context, tenantID string, decisionID string) (*Decision, error)
	ListDecisions(ctx context.Context, tenantID string, limit int) ([]*Decision, error)
	AppendOverride(ctx context.Context, tenantID string, decisionID string, o Override) (*Decision, error)

	// Alert watches and their fire log.
	SaveWatch(ctx context.Context, tenantID string, w *AlertWatch) error
	ListActiveWatches(ctx context.Context, tenantID string, customerID string) ([]*AlertWatch, error)
	MarkWatchFired(ctx context.Context, tenantID string, watchID string, at time.Time) error
	SaveAlertLog(ctx context.Context, tenantID string, l *AlertLog) error

	// Customers.
	SaveCustomer(ctx context.Context, tenantID string, c *Customer) error
	GetCustomerByExternalID(ctx context.Context, tenantID string, externalID string) (*Customer, error)
	UpdateCustomerRiskState(ctx context.Context, tenantID string, c *Customer) error

	// Cases.
	SaveCase(ctx context.Context, tenantID string, cs *Case) error
	ListCases(ctx context.Context, tenantID string, limit int) ([]*Case, error)

	// Health check.
	Ping(ctx context.Context) error

	// Lifecycle.
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
