package domain

import "time"

// Case severities.
const (
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Case statuses.
const (
	CaseOpen   = "OPEN"
	CaseClosed = "CLOSED"
)

// Case is an investigation case derived from a decision that crossed the
// triage severity floor. Triggered rules are denormalized so the case
// remains readable after rule edits.
type Case struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	CustomerID string `json:"customerId"`
	EventID    string `json:"eventId"`
	DecisionID string `json:"decisionId"`

	Reference string `json:"reference"` // e.g. AML-104523
	Title     string `json:"title"`
	Severity  string `json:"severity"`
	Status    string `json:"status"`

	TotalRiskScore int             `json:"totalRiskScore"`
	TriggeredRules []TriggeredRule `json:"triggeredRules"`

	CreatedAt time.Time `json:"createdAt"`
}
