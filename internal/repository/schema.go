package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

// Frequently filtered payload fields (merchant, sender, beneficiary
// account, transaction type, amount) are extracted into columns at write
// time so windowed aggregates never parse JSON.
const schemaEvents = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    domain TEXT NOT NULL,
    action_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    enrichment TEXT,
    ip_address TEXT,
    device_id TEXT,
    merchant_id TEXT,
    sender_name TEXT,
    account_number TEXT,
    transaction_type TEXT,
    amount REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_tenant ON events(tenant_id);
CREATE INDEX IF NOT EXISTS idx_events_merchant ON events(tenant_id, merchant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_sender ON events(tenant_id, sender_name, created_at);
CREATE INDEX IF NOT EXISTS idx_events_account ON events(tenant_id, account_number, created_at);
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    domain TEXT NOT NULL DEFAULT 'ALL',
    expression TEXT NOT NULL,
    action TEXT NOT NULL,
    score INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_rules_active ON rules(tenant_id, active);
`

const schemaThresholds = `
CREATE TABLE IF NOT EXISTS thresholds (
    tenant_id TEXT PRIMARY KEY,
    decline INTEGER NOT NULL,
    review INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    status TEXT NOT NULL,
    triggered_rules TEXT NOT NULL,
    manual_overrides TEXT,
    processing_time_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_tenant ON decisions(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_event ON decisions(tenant_id, event_id);
`

const schemaWatches = `
CREATE TABLE IF NOT EXISTS watches (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    kind TEXT NOT NULL,
    expression TEXT,
    aggregation TEXT,
    settings TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    last_fired TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_watches_customer ON watches(tenant_id, customer_id, active);
`

const schemaAlertLogs = `
CREATE TABLE IF NOT EXISTS alert_logs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    watch_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    trigger_name TEXT NOT NULL,
    trigger_value REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_logs_tenant ON alert_logs(tenant_id, created_at);
`

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    external_id TEXT NOT NULL,
    name TEXT NOT NULL,
    status TEXT,
    directors TEXT,
    total_transactions INTEGER NOT NULL DEFAULT 0,
    total_flags INTEGER NOT NULL DEFAULT 0,
    total_inbound_volume REAL NOT NULL DEFAULT 0,
    total_outbound_volume REAL NOT NULL DEFAULT 0,
    onboarding_risk_score REAL NOT NULL DEFAULT 0,
    dynamic_risk_score REAL NOT NULL DEFAULT 0,
    risk_level TEXT NOT NULL DEFAULT 'LOW',
    last_seen TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (tenant_id, external_id)
);
`

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    decision_id TEXT NOT NULL,
    reference TEXT NOT NULL,
    title TEXT NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL,
    total_risk_score INTEGER NOT NULL,
    triggered_rules TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_tenant ON cases(tenant_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaEvents,
		schemaRules,
		schemaThresholds,
		schemaDecisions,
		schemaWatches,
		schemaAlertLogs,
		schemaCustomers,
		schemaCases,
	}
}
