// Package customer holds the onboarding risk assessor and the running
// risk-state updater applied after every decision.
package customer

import "github.com/opensource-finance/kestrel/internal/domain"

// Industries treated as inherently high risk by the onboarding matrix.
var highRiskIndustries = map[string]bool{
	"Casinos":         true,
	"Betting":         true,
	"Precious Metals": true,
	"Real Estate":     true,
	"NGOs":            true,
	"Cash-intensive":  true,
}

var purposeScores = map[string]int{
	"Collections":   1,
	"Click2School":  1,
	"Disbursements": 2,
}

var locationScores = map[string]int{
	"Tantra Hill":   1,
	"Greater Accra": 2,
}

var registrationScores = map[string]int{
	"Verified":                    1,
	"Identified but not verified": 2,
	"Not identified":              4,
}

var oversightScores = map[string]int{
	"Verified":                  1,
	"Obtained but not verified": 2,
	"Not obtained":              4,
	"Not required":              2,
}

// AssessOnboarding scores a registration questionnaire with the static
// weighted-factor matrix. Each factor contributes 1 (lowest risk) to 4
// (highest); the total maps onto a 1..4 risk rate.
func AssessOnboarding(p domain.RiskProfile) domain.OnboardingAssessment {
	score := 0

	if p.OriginationMethod == "Solicited" {
		score += 1
	} else {
		score += 3
	}
	if p.SignOnComplete {
		score += 1
	} else {
		score += 3
	}

	if p.HasNationalID {
		score += 1
	} else {
		score += 4
	}
	if p.IDVerified {
		score += 1
	} else {
		score += 4
	}

	if p.ResidencyStatus == "Resident" {
		score += 1
	} else {
		score += 4
	}
	score += lookupScore(purposeScores, p.Purpose, 1)

	if p.RelationshipYears >= 3 {
		score += 1
	} else {
		score += 2
	}
	if p.DomesticNational {
		score += 1
	} else {
		score += 4
	}

	if p.IsPEP || highRiskIndustries[p.Industry] {
		score += 4
	} else {
		score += 1
	}

	if p.ProductType == "API Integration" {
		score += 4
	} else {
		score += 1
	}

	switch {
	case p.ExpectedMonthlyVolume <= 5000:
		score += 1
	case p.ExpectedMonthlyVolume <= 10000:
		score += 2
	case p.ExpectedMonthlyVolume <= 20000:
		score += 3
	default:
		score += 4
	}

	score += lookupScore(locationScores, p.LocationZone, 3)
	score += lookupScore(registrationScores, p.RegistrationStatus, 4)
	score += lookupScore(oversightScores, p.ThirdPartyOversight, 2)

	assessment := domain.OnboardingAssessment{TotalScore: score}
	switch {
	case score <= 40:
		assessment.RiskRate, assessment.RiskLevel = 1, domain.RiskLow
	case score <= 50:
		assessment.RiskRate, assessment.RiskLevel = 2, domain.RiskMedium
	case score <= 60:
		assessment.RiskRate, assessment.RiskLevel = 3, domain.RiskMediumHigh
	default:
		assessment.RiskRate, assessment.RiskLevel = 4, domain.RiskHigh
	}
	return assessment
}

func lookupScore(table map[string]int, key string, fallback int) int {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}
