// Package identity screens transaction party names against a customer's
// director roster to detect self-dealing through the customer's own rails.
package identity

import (
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Matcher implements roster screening. Comparison is case-insensitive;
// EXACT requires a full-name match, RELATIVE a shared surname.
type Matcher struct{}

// NewMatcher creates a roster matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// MatchIdentity screens the party names against the roster. EXACT wins
// over RELATIVE; only the first party name is considered for surname
// matching, mirroring the sender-centric screening model.
func (m *Matcher) MatchIdentity(partyNames []string, directorRoster []string) domain.IdentityMatch {
	var parties []string
	for _, p := range partyNames {
		if strings.TrimSpace(p) != "" {
			parties = append(parties, p)
		}
	}
	if len(parties) == 0 || len(directorRoster) == 0 {
		return domain.IdentityMatch{MatchType: domain.MatchNone}
	}

	for _, director := range directorRoster {
		for _, party := range parties {
			if strings.EqualFold(strings.TrimSpace(director), strings.TrimSpace(party)) {
				return domain.IdentityMatch{MatchType: domain.MatchExact, Match: true}
			}
		}
	}

	partySurname := surname(parties[0])
	if partySurname != "" {
		for _, director := range directorRoster {
			if surname(director) == partySurname {
				return domain.IdentityMatch{MatchType: domain.MatchRelative, Match: true}
			}
		}
	}

	return domain.IdentityMatch{MatchType: domain.MatchNone}
}

// surname returns the uppercased last name token, or "".
func surname(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[len(fields)-1])
}
