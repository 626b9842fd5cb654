package domain

// MetricsSnapshot is the ephemeral bundle of windowed behavioral aggregates
// computed for one evaluation. It is never persisted; every field defaults
// to zero/false when no history qualifies. All windows are half-open
// [now-window, now).
type MetricsSnapshot struct {
	// Business/merchant-level volume.
	CurrentDayVolume   float64 `json:"currentDayVolume"`   // 24h sum
	ThreeMonthDailyAvg float64 `json:"threeMonthDailyAvg"` // 90d average amount
	DailyAverage       float64 `json:"dailyAverage"`
	MonthlyAverage     float64 `json:"monthlyAverage"`
	Cumulative30d      float64 `json:"cumulative30d"`
	FifteenDaySum      float64 `json:"fifteenDaySum"` // business-level structuring fallback

	// Counterpart (named sender) volume/frequency.
	SenderFifteenDaySum         float64 `json:"senderFifteenDaySum"`
	SenderDailyTransactionCount int64   `json:"senderDailyTransactionCount"`

	// Pattern detection within 5d.
	UniqueOutboundCount5d int64   `json:"uniqueOutboundCount5d"`
	OutboundSum5d         float64 `json:"outboundSum5d"`
	SimilarAmountCount5d  int64   `json:"similarAmountCount5d"` // within 5% of current amount

	// Beneficiary concentration.
	SameBeneficiaryCount30d       int64 `json:"sameBeneficiaryCount30d"`
	UniqueSendersToBeneficiary72h int64 `json:"uniqueSendersToBeneficiary72h"`

	// Money-mule indicators.
	PassThroughRatio4h float64 `json:"passThroughRatio4h"` // out/in, 0 when no inbound
	UniqueCorridors7d  int64   `json:"uniqueCorridors7d"`

	// Static country classification tiers (lower tier = higher risk).
	CountryRiskTier  int `json:"countryRiskTier"`
	ConflictRiskTier int `json:"conflictRiskTier"`

	// Context carried alongside the aggregates.
	PreviousStatus      string `json:"previousStatus"`
	IsRemittance        bool   `json:"isRemittance"`
	DescriptionKeywords string `json:"descriptionKeywords"`
}

// ToMap flattens the snapshot into the data pool namespace read by rule
// and watch expressions.
func (m *MetricsSnapshot) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"currentDayVolume":              m.CurrentDayVolume,
		"threeMonthDailyAvg":            m.ThreeMonthDailyAvg,
		"dailyAverage":                  m.DailyAverage,
		"monthlyAverage":                m.MonthlyAverage,
		"cumulative30d":                 m.Cumulative30d,
		"fifteenDaySum":                 m.FifteenDaySum,
		"senderFifteenDaySum":           m.SenderFifteenDaySum,
		"senderDailyTransactionCount":   m.SenderDailyTransactionCount,
		"uniqueOutboundCount5d":         m.UniqueOutboundCount5d,
		"outboundSum5d":                 m.OutboundSum5d,
		"similarAmountCount5d":          m.SimilarAmountCount5d,
		"sameBeneficiaryCount30d":       m.SameBeneficiaryCount30d,
		"uniqueSendersToBeneficiary72h": m.UniqueSendersToBeneficiary72h,
		"passThroughRatio4h":            m.PassThroughRatio4h,
		"uniqueCorridors7d":             m.UniqueCorridors7d,
		"countryRiskTier":               m.CountryRiskTier,
		"conflictRiskTier":              m.ConflictRiskTier,
		"previousStatus":                m.PreviousStatus,
		"isRemittance":                  m.IsRemittance,
		"descriptionKeywords":           m.DescriptionKeywords,
	}
}
