// Package rules provides the tenant rule catalog and the scoring pass that
// evaluates every active rule against an event's data pool.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/expr"
)

// Scorer evaluates rule sets. Rules are stateless and evaluated
// concurrently; the total is a commutative sum, so the result is
// independent of evaluation order.
type Scorer struct {
	eval       *expr.Evaluator
	maxWorkers int

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// Outcome is the result of one scoring pass.
type Outcome struct {
	Score          int
	TriggeredRules []domain.TriggeredRule
	RulesEvaluated int
	ElapsedMs      int64
}

// NewScorer creates a scorer with a bounded worker pool.
func NewScorer(eval *expr.Evaluator, maxWorkers int) *Scorer {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Scorer{
		eval:       eval,
		maxWorkers: maxWorkers,
		programs:   make(map[string]cel.Program),
	}
}

// Validate compiles a rule expression without caching it. Used when rules
// are created or edited.
func (s *Scorer) Validate(rule *domain.Rule) error {
	if rule == nil || rule.Expression == "" {
		return fmt.Errorf("rule expression is required")
	}
	_, err := s.eval.Compile(rule.Expression)
	return err
}

// Score evaluates all rules against the data pool. A rule that fails to
// compile or evaluate is logged and skipped; it never aborts the pass.
// Triggered-rule snapshots freeze name/score/action at evaluation time.
func (s *Scorer) Score(ctx context.Context, rules []*domain.Rule, pool map[string]any) *Outcome {
	start := time.Now()

	fired := make([]*domain.TriggeredRule, len(rules))
	sem := make(chan struct{}, s.maxWorkers)
	var wg sync.WaitGroup

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *domain.Rule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			hit, err := s.evaluateRule(r, pool)
			if err != nil {
				slog.Warn("rule evaluation skipped",
					"tenant_id", r.TenantID,
					"rule_id", r.ID,
					"rule_name", r.Name,
					"error", err,
				)
				return
			}
			if hit {
				fired[idx] = &domain.TriggeredRule{
					RuleID:     r.ID,
					Name:       r.Name,
					ScoreAdded: r.Score,
					Action:     r.Action,
				}
			}
		}(i, rule)
	}

	wg.Wait()

	outcome := &Outcome{RulesEvaluated: len(rules)}
	for _, tr := range fired {
		if tr != nil {
			outcome.Score += tr.ScoreAdded
			outcome.TriggeredRules = append(outcome.TriggeredRules, *tr)
		}
	}
	outcome.ElapsedMs = time.Since(start).Milliseconds()
	return outcome
}

func (s *Scorer) evaluateRule(r *domain.Rule, pool map[string]any) (bool, error) {
	program, err := s.program(r)
	if err != nil {
		return false, err
	}
	return s.eval.Evaluate(program, pool)
}

// program returns the compiled program for a rule, compiling and caching
// on first use. The cache key includes UpdatedAt so edited rules are
// recompiled while evaluations already in flight keep their snapshot.
func (s *Scorer) program(r *domain.Rule) (cel.Program, error) {
	key := r.TenantID + "/" + r.ID + "/" + r.UpdatedAt.UTC().Format(time.RFC3339Nano)

	s.mu.RLock()
	program, ok := s.programs[key]
	s.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := s.eval.Compile(r.Expression)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.programs[key] = program
	s.mu.Unlock()
	return program, nil
}
