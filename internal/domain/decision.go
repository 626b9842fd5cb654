package domain

import "time"

// Decision is the persisted outcome of running a tenant's rule set against
// one event. Score and triggered-rule snapshots are immutable once written;
// only the override history grows.
type Decision struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	EventID  string `json:"eventId"`

	Score  int    `json:"score"`
	Status string `json:"status"`

	TriggeredRules []TriggeredRule `json:"triggeredRules"`

	// ManualOverrides is append-only. The last entry's status is the
	// decision's current authoritative status.
	ManualOverrides []Override `json:"manualOverrides,omitempty"`

	ProcessingTimeMs int64     `json:"processingTimeMs"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Decision statuses.
const (
	StatusApprove = "APPROVE"
	StatusReview  = "REVIEW"
	StatusDecline = "DECLINE"
)

// Override records a manual status change by an operator.
type Override struct {
	Status    string    `json:"status"` // APPROVE or DECLINE only
	Reason    string    `json:"reason"`
	ActorID   string    `json:"actorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Thresholds are the tenant's score cut-offs. Invariant: Decline >= Review >= 0.
type Thresholds struct {
	Decline int `json:"decline"`
	Review  int `json:"review"`
}

// DefaultThresholds applies when a tenant has not configured its own.
func DefaultThresholds() Thresholds {
	return Thresholds{Decline: 80, Review: 30}
}

// StatusFor maps an accumulated score to a decision status.
func (t Thresholds) StatusFor(score int) string {
	switch {
	case score >= t.Decline:
		return StatusDecline
	case score >= t.Review:
		return StatusReview
	default:
		return StatusApprove
	}
}
