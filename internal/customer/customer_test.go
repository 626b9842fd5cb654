package customer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func lowRiskProfile() domain.RiskProfile {
	return domain.RiskProfile{
		OriginationMethod:     "Solicited",
		SignOnComplete:        true,
		HasNationalID:         true,
		IDVerified:            true,
		ResidencyStatus:       "Resident",
		Purpose:               "Collections",
		RelationshipYears:     5,
		DomesticNational:      true,
		Industry:              "Salaried worker",
		ProductType:           "Payment Link",
		ExpectedMonthlyVolume: 2000,
		LocationZone:          "Tantra Hill",
		RegistrationStatus:    "Verified",
		ThirdPartyOversight:   "Verified",
	}
}

func TestAssessOnboardingLowRisk(t *testing.T) {
	got := AssessOnboarding(lowRiskProfile())

	// Every factor at its minimum: 14 ones.
	if got.TotalScore != 14 {
		t.Errorf("TotalScore = %d, want 14", got.TotalScore)
	}
	if got.RiskRate != 1 || got.RiskLevel != domain.RiskLow {
		t.Errorf("assessment = %+v, want rate 1 LOW", got)
	}
}

func TestAssessOnboardingHighRisk(t *testing.T) {
	p := domain.RiskProfile{
		OriginationMethod:     "Unsolicited",
		ResidencyStatus:       "Non-Resident",
		Purpose:               "Disbursements",
		Industry:              "Casinos",
		ProductType:           "API Integration",
		ExpectedMonthlyVolume: 100000,
		LocationZone:          "Unknown",
		RegistrationStatus:    "Not identified",
		ThirdPartyOversight:   "Not obtained",
	}
	got := AssessOnboarding(p)

	// 3+3+4+4+4+2+2+4+4+4+4+3+4+4 = 49.
	if got.TotalScore != 49 {
		t.Errorf("TotalScore = %d, want 49", got.TotalScore)
	}
	if got.RiskRate != 2 || got.RiskLevel != domain.RiskMedium {
		t.Errorf("assessment = %+v, want rate 2 MEDIUM", got)
	}
}

func TestAssessOnboardingMonotonicFactors(t *testing.T) {
	base := AssessOnboarding(lowRiskProfile())

	worsen := []func(*domain.RiskProfile){
		func(p *domain.RiskProfile) { p.OriginationMethod = "Unsolicited" },
		func(p *domain.RiskProfile) { p.SignOnComplete = false },
		func(p *domain.RiskProfile) { p.HasNationalID = false },
		func(p *domain.RiskProfile) { p.IDVerified = false },
		func(p *domain.RiskProfile) { p.ResidencyStatus = "Non-Resident" },
		func(p *domain.RiskProfile) { p.RelationshipYears = 1 },
		func(p *domain.RiskProfile) { p.DomesticNational = false },
		func(p *domain.RiskProfile) { p.IsPEP = true },
		func(p *domain.RiskProfile) { p.Industry = "Betting" },
		func(p *domain.RiskProfile) { p.ProductType = "API Integration" },
		func(p *domain.RiskProfile) { p.ExpectedMonthlyVolume = 50000 },
		func(p *domain.RiskProfile) { p.LocationZone = "Elsewhere" },
		func(p *domain.RiskProfile) { p.RegistrationStatus = "Not identified" },
		func(p *domain.RiskProfile) { p.ThirdPartyOversight = "Not obtained" },
	}

	for i, change := range worsen {
		p := lowRiskProfile()
		change(&p)
		if got := AssessOnboarding(p); got.TotalScore <= base.TotalScore {
			t.Errorf("factor %d: score %d did not increase from %d", i, got.TotalScore, base.TotalScore)
		}
	}
}

type fakeCustomerRepo struct {
	domain.Repository

	mu    sync.Mutex
	saved *domain.Customer
}

func (f *fakeCustomerRepo) UpdateCustomerRiskState(_ context.Context, _ string, c *domain.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := *c
	f.saved = &snapshot
	return nil
}

func txEvent(txType string, amount float64) *domain.Event {
	return &domain.Event{
		ID:       "ev1",
		TenantID: "t1",
		Payload:  map[string]any{"transactionType": txType, "amount": amount},
	}
}

func TestApplyRunningMean(t *testing.T) {
	u := NewUpdater(&fakeCustomerRepo{})
	c := &domain.Customer{
		ID: "c1", TenantID: "t1",
		TotalTransactions: 4,
		DynamicRiskScore:  50,
	}

	// (50*4 + 100) / 5 = 60.
	if err := u.Apply(context.Background(), "t1", c, txEvent("collection", 1000), 100); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c.DynamicRiskScore != 60 {
		t.Errorf("DynamicRiskScore = %v, want 60", c.DynamicRiskScore)
	}
	if c.TotalTransactions != 5 {
		t.Errorf("TotalTransactions = %d, want 5", c.TotalTransactions)
	}
}

func TestApplyVolumeAndFlags(t *testing.T) {
	repo := &fakeCustomerRepo{}
	u := NewUpdater(repo)
	c := &domain.Customer{ID: "c1", TenantID: "t1"}

	if err := u.Apply(context.Background(), "t1", c, txEvent("topup", 500), 80); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c.TotalInboundVolume != 500 || c.TotalOutboundVolume != 0 {
		t.Errorf("volumes = (%v, %v), want (500, 0)", c.TotalInboundVolume, c.TotalOutboundVolume)
	}
	if c.TotalFlags != 1 {
		t.Errorf("TotalFlags = %d, want 1 for score 80", c.TotalFlags)
	}

	if err := u.Apply(context.Background(), "t1", c, txEvent("payout", 300), 75); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c.TotalOutboundVolume != 300 {
		t.Errorf("TotalOutboundVolume = %v, want 300", c.TotalOutboundVolume)
	}
	if c.TotalFlags != 1 {
		t.Errorf("TotalFlags = %d, want 1; score 75 is not above the threshold", c.TotalFlags)
	}
	if repo.saved == nil || repo.saved.TotalTransactions != 2 {
		t.Error("updated state was not persisted")
	}
}

func TestApplyRiskLevelUsesEffectiveScore(t *testing.T) {
	u := NewUpdater(&fakeCustomerRepo{})

	// Low behavior but a high onboarding baseline keeps the level up.
	c := &domain.Customer{ID: "c1", TenantID: "t1", OnboardingRiskScore: 65}
	if err := u.Apply(context.Background(), "t1", c, txEvent("transfer", 100), 10); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c.RiskLevel != domain.RiskHigh {
		t.Errorf("RiskLevel = %s, want HIGH from onboarding baseline", c.RiskLevel)
	}

	c2 := &domain.Customer{ID: "c2", TenantID: "t1"}
	if err := u.Apply(context.Background(), "t1", c2, txEvent("transfer", 100), 45); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c2.RiskLevel != domain.RiskMedium {
		t.Errorf("RiskLevel = %s, want MEDIUM for dynamic 45", c2.RiskLevel)
	}
}

func TestApplyConcurrentUpdatesSerialized(t *testing.T) {
	u := NewUpdater(&fakeCustomerRepo{})
	c := &domain.Customer{ID: "c1", TenantID: "t1"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = u.Apply(context.Background(), "t1", c, txEvent("collection", 10), 50)
		}()
	}
	wg.Wait()

	if c.TotalTransactions != 20 {
		t.Errorf("TotalTransactions = %d, want 20", c.TotalTransactions)
	}
	if c.TotalInboundVolume != 200 {
		t.Errorf("TotalInboundVolume = %v, want 200", c.TotalInboundVolume)
	}
	if c.DynamicRiskScore != 50 {
		t.Errorf("DynamicRiskScore = %v, want 50", c.DynamicRiskScore)
	}
}

func TestApplyDistinctCustomersConcurrent(t *testing.T) {
	u := NewUpdater(&fakeCustomerRepo{})

	// More customers than lock stripes, so stripes are shared.
	customers := make([]*domain.Customer, 200)
	for i := range customers {
		customers[i] = &domain.Customer{ID: fmt.Sprintf("c%d", i), TenantID: "t1"}
	}

	var wg sync.WaitGroup
	for _, c := range customers {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(c *domain.Customer) {
				defer wg.Done()
				_ = u.Apply(context.Background(), "t1", c, txEvent("payout", 100), 20)
			}(c)
		}
	}
	wg.Wait()

	for _, c := range customers {
		if c.TotalTransactions != 3 || c.TotalOutboundVolume != 300 {
			t.Fatalf("customer %s = %d transactions %v outbound, want 3 and 300",
				c.ID, c.TotalTransactions, c.TotalOutboundVolume)
		}
	}
}
