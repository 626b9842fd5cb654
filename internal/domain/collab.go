package domain

import "context"

// ListEntry is one record of an externally managed block/allow list.
type ListEntry struct {
	Value    string `json:"value"`
	ListType string `json:"listType"` // e.g. "BLACKLIST", "WHITELIST"
}

// ListSource is the narrow capability for list-hit lookups. Management of
// list storage is external; lookups are time-bounded by the caller and
// degrade to no hits on failure.
type ListSource interface {
	Lookup(ctx context.Context, tenantID string, value string, listType string) ([]ListEntry, error)
}

// Identity match types.
const (
	MatchExact    = "EXACT"
	MatchRelative = "RELATIVE"
	MatchNone     = "NONE"
)

// IdentityMatch is the result of screening transaction parties against a
// customer's director roster.
type IdentityMatch struct {
	MatchType string `json:"matchType"` // EXACT, RELATIVE, NONE
	Match     bool   `json:"match"`
}

// IdentityMatcher screens party names against a director roster.
type IdentityMatcher interface {
	MatchIdentity(partyNames []string, directorRoster []string) IdentityMatch
}

// Notification is a fire-and-forget message to an operator channel.
type Notification struct {
	Channel   string `json:"channel"` // EMAIL, SLACK, WEBHOOK
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// Notifier is the delivery sink contract. Send failures are reported via
// the error return but callers treat delivery as best effort.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
