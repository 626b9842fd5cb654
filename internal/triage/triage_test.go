package triage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type fakeCaseRepo struct {
	domain.Repository
	cases []*domain.Case
	fail  bool
}

func (f *fakeCaseRepo) SaveCase(_ context.Context, _ string, cs *domain.Case) error {
	if f.fail {
		return fmt.Errorf("storage unavailable")
	}
	f.cases = append(f.cases, cs)
	return nil
}

func triageDecision(score int, ruleNames ...string) *domain.Decision {
	d := &domain.Decision{ID: "d1", TenantID: "t1", EventID: "ev1", Score: score}
	for _, name := range ruleNames {
		d.TriggeredRules = append(d.TriggeredRules, domain.TriggeredRule{
			RuleID: "r-" + name, Name: name, ScoreAdded: score,
		})
	}
	return d
}

func TestFromDecisionOpensCase(t *testing.T) {
	repo := &fakeCaseRepo{}
	ev := &domain.Event{ID: "ev1"}

	cs := New(repo).FromDecision(context.Background(), "t1", "c1", ev, triageDecision(55, "AML-111: Sudden Surge in Activity", "GEO-2: Grey-List Corridor"))
	if cs == nil {
		t.Fatal("expected a case for score 55 with triggered rules")
	}
	if cs.Severity != domain.SeverityHigh {
		t.Errorf("severity = %s, want HIGH", cs.Severity)
	}
	if cs.Status != domain.CaseOpen {
		t.Errorf("status = %s, want OPEN", cs.Status)
	}
	if cs.Title != "AML-111: Sudden Surge in Activity" {
		t.Errorf("title = %q, want first triggered rule name", cs.Title)
	}
	if !strings.HasPrefix(cs.Reference, "AML-") || len(cs.Reference) != 10 {
		t.Errorf("reference = %q, want AML- plus six digits", cs.Reference)
	}
	if len(repo.cases) != 1 {
		t.Errorf("cases persisted = %d, want 1", len(repo.cases))
	}
}

func TestFromDecisionSeverityBands(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{30, domain.SeverityMedium},
		{49, domain.SeverityMedium},
		{50, domain.SeverityHigh},
		{79, domain.SeverityHigh},
		{80, domain.SeverityCritical},
	}
	for _, tc := range cases {
		repo := &fakeCaseRepo{}
		cs := New(repo).FromDecision(context.Background(), "t1", "c1", &domain.Event{ID: "ev1"}, triageDecision(tc.score, "rule"))
		if cs == nil || cs.Severity != tc.want {
			t.Errorf("score %d: severity = %v, want %s", tc.score, cs, tc.want)
		}
	}
}

func TestFromDecisionBelowFloor(t *testing.T) {
	repo := &fakeCaseRepo{}
	tr := New(repo)
	ev := &domain.Event{ID: "ev1"}

	if cs := tr.FromDecision(context.Background(), "t1", "c1", ev, triageDecision(29, "rule")); cs != nil {
		t.Error("score 29 should not open a case")
	}
	if cs := tr.FromDecision(context.Background(), "t1", "c1", ev, triageDecision(90)); cs != nil {
		t.Error("decision without triggered rules should not open a case")
	}
	if len(repo.cases) != 0 {
		t.Errorf("cases persisted = %d, want 0", len(repo.cases))
	}
}

func TestFromDecisionSwallowsPersistenceFailure(t *testing.T) {
	repo := &fakeCaseRepo{fail: true}
	cs := New(repo).FromDecision(context.Background(), "t1", "c1", &domain.Event{ID: "ev1"}, triageDecision(90, "rule"))
	if cs != nil {
		t.Error("failed persistence should yield nil, not a case")
	}
}
