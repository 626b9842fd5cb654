package domain

import "time"

// Rule is a tenant-owned detection rule. The expression is a stored CEL
// program evaluated against the per-event data pool; when it yields true
// the rule's score is added to the event's total. Rules are read-only
// during evaluation; edits apply only to later events.
type Rule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Domain scopes the rule to a business line. ALL matches every event.
	Domain string `json:"domain"`

	// Expression is the CEL source. Must evaluate to bool.
	Expression string `json:"expression"`

	// Action is the suggested outcome when this rule fires.
	Action string `json:"action"`

	// Score is the weight added to the running total on a hit.
	Score int `json:"score"`

	Active bool `json:"active"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Rule actions.
const (
	ActionApprove = "APPROVE"
	ActionReview  = "REVIEW"
	ActionDecline = "DECLINE"
	ActionBlock   = "BLOCK"
)

// TriggeredRule is a frozen snapshot of a rule at the moment it fired.
// Decisions carry these copies so later rule edits never rewrite history.
type TriggeredRule struct {
	RuleID     string `json:"ruleId"`
	Name       string `json:"name"`
	ScoreAdded int    `json:"scoreAdded"`
	Action     string `json:"action"`
}
