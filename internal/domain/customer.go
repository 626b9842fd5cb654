package domain

import "time"

// Risk levels, ordered LOW < MEDIUM < MEDIUM-HIGH < HIGH.
const (
	RiskLow        = "LOW"
	RiskMedium     = "MEDIUM"
	RiskMediumHigh = "MEDIUM-HIGH"
	RiskHigh       = "HIGH"
)

// Customer carries the running risk state for one registered customer of a
// tenant. Counter and score mutations are serialized per customer; see
// internal/customer.
type Customer struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	ExternalID string `json:"externalId"` // merchant/business identifier on events
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`

	// Directors is the roster used for shared-identity matching.
	Directors []string `json:"directors,omitempty"`

	TotalTransactions   int64   `json:"totalTransactions"`
	TotalFlags          int64   `json:"totalFlags"`
	TotalInboundVolume  float64 `json:"totalInboundVolume"`
	TotalOutboundVolume float64 `json:"totalOutboundVolume"`

	// OnboardingRiskScore is the static baseline seeded at registration.
	OnboardingRiskScore float64 `json:"onboardingRiskScore"`

	// DynamicRiskScore is the running mean of decision scores.
	DynamicRiskScore float64 `json:"dynamicRiskScore"`

	RiskLevel string     `json:"riskLevel"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// EffectiveScore is the higher of the onboarding baseline and the live
// behavioral score; risk level is classified from it.
func (c *Customer) EffectiveScore() float64 {
	if c.OnboardingRiskScore > c.DynamicRiskScore {
		return c.OnboardingRiskScore
	}
	return c.DynamicRiskScore
}

// ClassifyRisk maps an effective score to an ordinal risk level.
func ClassifyRisk(effective float64) string {
	switch {
	case effective > 60:
		return RiskHigh
	case effective > 50:
		return RiskMediumHigh
	case effective > 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskProfile is the onboarding questionnaire scored by the static
// weighted-factor assessor at customer registration.
type RiskProfile struct {
	OriginationMethod string `json:"originationMethod"` // "Solicited" or "Unsolicited"
	SignOnComplete    bool   `json:"signOnComplete"`
	HasNationalID     bool   `json:"hasNationalId"`
	IDVerified        bool   `json:"idVerified"`
	ResidencyStatus   string `json:"residencyStatus"` // "Resident" or "Non-Resident"
	Purpose           string `json:"purpose"`
	RelationshipYears int    `json:"relationshipYears"`
	DomesticNational  bool   `json:"domesticNational"`
	Industry          string `json:"industry"`
	IsPEP             bool   `json:"isPep"`
	ProductType       string `json:"productType"`

	ExpectedMonthlyVolume float64 `json:"expectedMonthlyVolume"`
	LocationZone          string  `json:"locationZone"`
	RegistrationStatus    string  `json:"registrationStatus"` // registry verification
	ThirdPartyOversight   string  `json:"thirdPartyOversight"`
}

// OnboardingAssessment is the output of the static weighted-factor scorer.
type OnboardingAssessment struct {
	TotalScore int    `json:"totalScore"`
	RiskRate   int    `json:"riskRate"` // 1..4
	RiskLevel  string `json:"riskLevel"`
}
