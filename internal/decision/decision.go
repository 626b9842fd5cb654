// Package decision turns a scoring outcome into a persisted decision and
// manages the manual-override trail on top of it.
package decision

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Classifier maps accumulated scores to decision statuses using the
// tenant's thresholds and persists the result.
type Classifier struct {
	repo domain.Repository
}

// NewClassifier creates a classifier backed by the given repository.
func NewClassifier(repo domain.Repository) *Classifier {
	return &Classifier{repo: repo}
}

// Thresholds returns the tenant's configured score cut-offs, or the
// defaults when the tenant has never set any.
func (c *Classifier) Thresholds(ctx context.Context, tenantID string) domain.Thresholds {
	t, err := c.repo.GetThresholds(ctx, tenantID)
	if err != nil {
		return domain.DefaultThresholds()
	}
	return t
}

// SetThresholds validates and stores a tenant's score cut-offs.
func (c *Classifier) SetThresholds(ctx context.Context, tenantID string, t domain.Thresholds) error {
	if t.Review < 0 || t.Decline < t.Review {
		return domain.ValidationErrorf("thresholds require decline >= review >= 0, got decline=%d review=%d", t.Decline, t.Review)
	}
	return c.repo.SaveThresholds(ctx, tenantID, t)
}

// Decide classifies a scoring outcome, persists the decision, and returns
// it. startTime is when event processing began; the stored processing time
// covers the full pipeline, not just classification.
func (c *Classifier) Decide(ctx context.Context, tenantID, eventID string, outcome *rules.Outcome, startTime time.Time) (*domain.Decision, error) {
	thresholds := c.Thresholds(ctx, tenantID)

	d := &domain.Decision{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		EventID:          eventID,
		Score:            outcome.Score,
		Status:           thresholds.StatusFor(outcome.Score),
		TriggeredRules:   outcome.TriggeredRules,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}

	if err := c.repo.SaveDecision(ctx, tenantID, d); err != nil {
		return nil, domain.PersistenceErrorf("failed to save decision: %v", err)
	}
	return d, nil
}

// FailClosed persists the maximum-score decision used when an event cannot
// be attributed to a known customer.
func (c *Classifier) FailClosed(ctx context.Context, tenantID, eventID string, startTime time.Time) (*domain.Decision, error) {
	outcome := &rules.Outcome{
		Score: 100,
		TriggeredRules: []domain.TriggeredRule{{
			RuleID:     "unknown-customer",
			Name:       "Unknown Customer",
			ScoreAdded: 100,
			Action:     domain.ActionDecline,
		}},
	}
	return c.Decide(ctx, tenantID, eventID, outcome, startTime)
}

// Override appends a manual status change to a decision. The original
// automated score and triggered rules are never modified.
func (c *Classifier) Override(ctx context.Context, tenantID, decisionID string, o domain.Override) (*domain.Decision, error) {
	if o.Status != domain.StatusApprove && o.Status != domain.StatusDecline {
		return nil, domain.ValidationErrorf("override status must be APPROVE or DECLINE, got %q", o.Status)
	}
	if len(strings.TrimSpace(o.Reason)) < 5 {
		return nil, domain.ValidationErrorf("override reason must be at least 5 characters")
	}

	o.CreatedAt = time.Now().UTC()
	return c.repo.AppendOverride(ctx, tenantID, decisionID, o)
}
