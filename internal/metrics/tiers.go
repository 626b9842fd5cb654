package metrics

import "strings"

// Static geographic risk classification tables. Lower tier means higher
// risk; unclassified countries fall into the lowest-risk tier.

var sanctionedCountries = map[string]bool{
	"KP": true, "IR": true, "MM": true,
}

var greyListCountries = map[string]bool{
	"DZ": true, "AO": true, "BO": true, "BG": true, "CM": true, "CI": true,
	"CD": true, "HT": true, "KE": true, "LA": true, "LB": true, "MC": true,
	"NA": true, "NP": true, "SS": true, "SY": true, "VE": true, "VN": true,
	"VG": true, "YE": true, "NG": true, "ZA": true,
}

var highCorruptionCountries = map[string]bool{
	"AF": true, "SO": true, "SD": true, "LY": true, "PK": true, "BD": true,
}

var conflictTier1Countries = map[string]bool{
	"AF": true, "SY": true, "YE": true, "SO": true, "IQ": true, "SD": true,
	"SS": true, "LY": true, "CD": true, "MM": true, "ML": true, "BF": true,
	"CF": true,
}

var conflictTier2Countries = map[string]bool{
	"NG": true, "NE": true, "TD": true, "MZ": true, "ET": true, "KE": true,
	"LB": true, "PS": true, "PK": true, "PH": true,
}

// CountryRiskTier classifies a country code: 1 sanctions blacklist,
// 2 monitoring grey list, 3 high corruption, 4 low risk.
func CountryRiskTier(countryCode string) int {
	cc := strings.ToUpper(countryCode)
	switch {
	case sanctionedCountries[cc]:
		return 1
	case greyListCountries[cc]:
		return 2
	case highCorruptionCountries[cc]:
		return 3
	default:
		return 4
	}
}

// ConflictRiskTier classifies a country code by conflict-zone exposure:
// 1 active conflict, 2 adjacent/fragile, 3 low risk.
func ConflictRiskTier(countryCode string) int {
	cc := strings.ToUpper(countryCode)
	switch {
	case conflictTier1Countries[cc]:
		return 1
	case conflictTier2Countries[cc]:
		return 2
	default:
		return 3
	}
}
