package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// SeedRules returns the default AML/fraud rule set installed for a new
// tenant. Tenants tune or disable these through rule management.
func SeedRules(tenantID string) []*domain.Rule {
	seed := func(id, name, dom, expression, action string, score int) *domain.Rule {
		return &domain.Rule{
			ID:         id,
			TenantID:   tenantID,
			Name:       name,
			Domain:     dom,
			Expression: expression,
			Action:     action,
			Score:      score,
			Active:     true,
		}
	}

	return []*domain.Rule{
		seed("seed-blacklist", "Global Blacklist Check", domain.DomainAll,
			`inList(user.userEmail, "BLACKLIST", internal.listHits) || inList(ip, "BLACKLIST", internal.listHits) || inList(deviceId, "BLACKLIST", internal.listHits) || inList(user.userPhone, "BLACKLIST", internal.listHits)`,
			domain.ActionDecline, 100),

		seed("seed-proxy", "Suspicious Proxy/VPN", domain.DomainAll,
			`has(enrichment.ipDetails) && enrichment.ipDetails["isProxy"] == true`,
			domain.ActionReview, 25),

		seed("seed-surge", "AML-111: Sudden Surge in Activity", domain.DomainAll,
			`metrics.threeMonthDailyAvg > 0.0 && metrics.currentDayVolume > metrics.threeMonthDailyAvg * 1.5`,
			domain.ActionReview, 60),

		seed("seed-structuring-1", "AML-112: Structuring / Reporting Limit 1", domain.DomainAll,
			`payload.amount >= 9000.0 && payload.amount <= 10000.0 && (internal.isRemittance ? metrics.senderFifteenDaySum : metrics.fifteenDaySum) + payload.amount >= 10000.0`,
			domain.ActionBlock, 50),

		seed("seed-structuring-2", "AML-112: Structuring / Reporting Limit 2", domain.DomainAll,
			`payload.amount >= 40000.0 && payload.amount <= 50000.0 && (internal.isRemittance ? metrics.senderFifteenDaySum : metrics.fifteenDaySum) + payload.amount >= 50000.0`,
			domain.ActionBlock, 50),

		seed("seed-similar-deposits", "AML-114: Repeat Similar Deposits", domain.DomainAll,
			`metrics.similarAmountCount5d >= 3 && payload.amount >= 500.0`,
			domain.ActionReview, 40),

		seed("seed-threshold-breach", "AML-116: Threshold Breach", domain.DomainAll,
			`metrics.monthlyAverage > 0.0 && metrics.cumulative30d > metrics.monthlyAverage * 1.5`,
			domain.ActionReview, 60),

		seed("seed-one-to-many", "AML-117: One to Many Transfer", domain.DomainAll,
			`metrics.uniqueOutboundCount5d >= 6 && metrics.outboundSum5d >= 5000.0`,
			domain.ActionReview, 60),

		seed("seed-dormant", "AML-1110: Dormant Account Activity", domain.DomainAll,
			`metrics.previousStatus in ["Dormant", "Inactive"] && payload.amount >= 1000.0`,
			domain.ActionReview, 75),

		seed("seed-repeat-beneficiary", "AML-1111: Repeat Beneficiary", domain.DomainAll,
			`metrics.sameBeneficiaryCount30d >= 5`,
			domain.ActionReview, 40),

		seed("seed-director-match", "AML-1112: Direct UBO/Director Match", domain.DomainAll,
			`internal.identityMatch == "EXACT"`,
			domain.ActionReview, 85),

		seed("seed-relative-match", "AML-1112b: Family/Associate Link Detected", domain.DomainAll,
			`internal.identityMatch == "RELATIVE"`,
			domain.ActionReview, 45),

		seed("seed-sanctions", "AML-1114: Sanctions List Match", domain.DomainAll,
			`internal.sanctionsHit == true`,
			domain.ActionBlock, 100),

		seed("seed-convergence", "AML-1115: Convergence Smurfing (Many-to-One)", domain.DomainRemittance,
			`metrics.uniqueSendersToBeneficiary72h >= 3 && internal.isRemittance == true`,
			domain.ActionReview, 65),

		seed("seed-pass-through", "AML-1116: High-Velocity Pass-Through", domain.DomainAll,
			`metrics.passThroughRatio4h >= 0.8`,
			domain.ActionReview, 60),

		seed("seed-corridors", "AML-1117: Corridor Diversity", domain.DomainRemittance,
			`metrics.uniqueCorridors7d >= 4`,
			domain.ActionReview, 45),

		seed("seed-sanctioned-corridor", "GEO-1: Sanctioned Corridor", domain.DomainAll,
			`metrics.countryRiskTier == 1`,
			domain.ActionBlock, 90),

		seed("seed-greylist-corridor", "GEO-2: Grey-List Corridor", domain.DomainAll,
			`metrics.countryRiskTier == 2`,
			domain.ActionReview, 30),

		seed("seed-conflict-zone", "GEO-3: Conflict Zone Origin", domain.DomainAll,
			`metrics.conflictRiskTier == 1`,
			domain.ActionReview, 40),

		seed("seed-keywords", "High-Risk Description Keywords", domain.DomainAll,
			`containsAny(metrics.descriptionKeywords, ["gold", "crypto", "charity", "donation", "gift"])`,
			domain.ActionReview, 30),
	}
}
