// Package triage opens investigation cases for decisions that cross the
// significance floor.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// caseFloor is the minimum decision score that warrants a case.
const caseFloor = 30

// Triage creates at most one consolidated case per decision.
type Triage struct {
	repo domain.Repository
}

// New creates a triage service.
func New(repo domain.Repository) *Triage {
	return &Triage{repo: repo}
}

// FromDecision opens a case when the decision is significant: at least one
// triggered rule and a score at or above the floor. Returns nil when no
// case is warranted. Case creation never fails the pipeline; persistence
// errors are logged and swallowed.
func (t *Triage) FromDecision(ctx context.Context, tenantID, customerID string, ev *domain.Event, d *domain.Decision) *domain.Case {
	if len(d.TriggeredRules) == 0 || d.Score < caseFloor {
		return nil
	}

	now := time.Now().UTC()
	cs := &domain.Case{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		CustomerID:     customerID,
		EventID:        ev.ID,
		DecisionID:     d.ID,
		Reference:      reference(now),
		Title:          d.TriggeredRules[0].Name,
		Severity:       severity(d.Score),
		Status:         domain.CaseOpen,
		TotalRiskScore: d.Score,
		TriggeredRules: d.TriggeredRules,
		CreatedAt:      now,
	}

	if err := t.repo.SaveCase(ctx, tenantID, cs); err != nil {
		slog.Error("failed to save case",
			"tenant_id", tenantID,
			"decision_id", d.ID,
			"error", err,
		)
		return nil
	}

	slog.Info("case opened",
		"tenant_id", tenantID,
		"case_reference", cs.Reference,
		"severity", cs.Severity,
		"score", cs.TotalRiskScore,
	)
	return cs
}

func severity(score int) string {
	switch {
	case score >= 80:
		return domain.SeverityCritical
	case score >= 50:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

// reference builds a short operator-facing case reference from the last six
// digits of the millisecond timestamp.
func reference(now time.Time) string {
	ms := fmt.Sprintf("%d", now.UnixMilli())
	return "AML-" + ms[len(ms)-6:]
}
