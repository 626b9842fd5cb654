package rules

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/expr"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	eval, err := expr.New()
	if err != nil {
		t.Fatalf("expr.New: %v", err)
	}
	return NewScorer(eval, 4)
}

func testRule(id, expression string, score int) *domain.Rule {
	return &domain.Rule{
		ID:         id,
		TenantID:   "t1",
		Name:       id,
		Domain:     domain.DomainAll,
		Expression: expression,
		Action:     domain.ActionReview,
		Score:      score,
		Active:     true,
		UpdatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func structuringPool(amount, fifteenDaySum float64) map[string]any {
	return map[string]any{
		"payload": map[string]any{"amount": amount},
		"metrics": map[string]any{
			"fifteenDaySum":       fifteenDaySum,
			"senderFifteenDaySum": 0.0,
		},
		"internal": map[string]any{"isRemittance": false},
	}
}

func seedByName(t *testing.T, name string) *domain.Rule {
	t.Helper()
	for _, r := range SeedRules("t1") {
		if r.Name == name {
			r.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			return r
		}
	}
	t.Fatalf("seed rule %q not found", name)
	return nil
}

func TestScoreStructuringRule(t *testing.T) {
	s := newTestScorer(t)
	rule := seedByName(t, "AML-112: Structuring / Reporting Limit 1")

	// 9500 on top of 500 already moved crosses the 10k reporting limit.
	out := s.Score(context.Background(), []*domain.Rule{rule}, structuringPool(9500, 500))
	if out.Score != 50 || len(out.TriggeredRules) != 1 {
		t.Fatalf("score = %d, triggered = %d, want 50 and 1", out.Score, len(out.TriggeredRules))
	}
	if out.TriggeredRules[0].RuleID != rule.ID || out.TriggeredRules[0].ScoreAdded != 50 {
		t.Errorf("triggered snapshot = %+v", out.TriggeredRules[0])
	}

	// Same amount with no prior activity stays under the limit.
	out = s.Score(context.Background(), []*domain.Rule{rule}, structuringPool(9500, 0))
	if out.Score != 0 || len(out.TriggeredRules) != 0 {
		t.Errorf("score = %d, triggered = %d, want 0 and 0", out.Score, len(out.TriggeredRules))
	}
}

func TestScoreOrderIndependent(t *testing.T) {
	s := newTestScorer(t)
	rules := []*domain.Rule{
		testRule("r-amount", `payload.amount > 100.0`, 10),
		testRule("r-surge", `metrics.currentDayVolume > 1000.0`, 20),
		testRule("r-miss", `payload.amount > 100000.0`, 40),
		testRule("r-domain", `domain == "PSP"`, 5),
	}
	pool := map[string]any{
		"payload": map[string]any{"amount": 500.0},
		"metrics": map[string]any{"currentDayVolume": 2000.0},
		"domain":  "PSP",
	}

	first := s.Score(context.Background(), rules, pool)
	if first.Score != 35 {
		t.Fatalf("score = %d, want 35", first.Score)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := make([]*domain.Rule, len(rules))
		copy(shuffled, rules)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		out := s.Score(context.Background(), shuffled, pool)
		if out.Score != first.Score {
			t.Fatalf("shuffled score = %d, want %d", out.Score, first.Score)
		}
		if len(out.TriggeredRules) != len(first.TriggeredRules) {
			t.Fatalf("shuffled triggered = %d, want %d", len(out.TriggeredRules), len(first.TriggeredRules))
		}
	}
}

func TestScoreIdempotent(t *testing.T) {
	s := newTestScorer(t)
	rules := []*domain.Rule{testRule("r-amount", `payload.amount >= 9000.0`, 50)}
	pool := map[string]any{"payload": map[string]any{"amount": 9500.0}}

	for i := 0; i < 3; i++ {
		out := s.Score(context.Background(), rules, pool)
		if out.Score != 50 {
			t.Fatalf("pass %d: score = %d, want 50", i, out.Score)
		}
	}
}

func TestScoreIsolatesFailingRules(t *testing.T) {
	s := newTestScorer(t)
	rules := []*domain.Rule{
		testRule("r-bad-compile", `payload.amount >>> 5`, 100),
		testRule("r-absent-path", `payload.missing.deeply > 1.0`, 100),
		testRule("r-good", `payload.amount > 100.0`, 30),
	}
	pool := map[string]any{"payload": map[string]any{"amount": 500.0}}

	out := s.Score(context.Background(), rules, pool)
	if out.Score != 30 || len(out.TriggeredRules) != 1 {
		t.Fatalf("score = %d, triggered = %d, want 30 and 1", out.Score, len(out.TriggeredRules))
	}
	if out.RulesEvaluated != 3 {
		t.Errorf("RulesEvaluated = %d, want 3", out.RulesEvaluated)
	}
}

func TestValidate(t *testing.T) {
	s := newTestScorer(t)

	if err := s.Validate(testRule("r-ok", `payload.amount > 1.0`, 10)); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}
	if err := s.Validate(testRule("r-bad", `payload.amount +`, 10)); err == nil {
		t.Error("malformed expression accepted")
	}
	if err := s.Validate(testRule("r-nonbool", `"hello"`, 10)); err == nil {
		t.Error("non-bool expression accepted")
	}
	if err := s.Validate(&domain.Rule{ID: "r-empty"}); err == nil {
		t.Error("empty expression accepted")
	}
}

func TestSeedRulesCompile(t *testing.T) {
	s := newTestScorer(t)
	for _, r := range SeedRules("t1") {
		if err := s.Validate(r); err != nil {
			t.Errorf("seed rule %q does not compile: %v", r.Name, err)
		}
	}
}
