package domain

import (
	"strings"
	"time"
)

// Event is an immutable, append-only record of an ingested financial event.
// Payload shape is merchant-defined; enrichment is attached by external
// lookups before ingestion (sanctions, PEP, IP/email/phone checks).
type Event struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	Domain     string `json:"domain"`     // ALL, PSP, REMITTANCE, CREDIT
	ActionType string `json:"actionType"` // e.g. "TRANSACTION", "LOGIN"

	Payload    map[string]interface{} `json:"payload"`
	Enrichment map[string]interface{} `json:"enrichment,omitempty"`

	IPAddress string `json:"ipAddress,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Business domain tags for rule scoping.
const (
	DomainAll        = "ALL"
	DomainPSP        = "PSP"
	DomainRemittance = "REMITTANCE"
	DomainCredit     = "CREDIT"
)

// EventRequest is the API request payload for event ingestion.
type EventRequest struct {
	Domain     string                 `json:"domain,omitempty"`
	ActionType string                 `json:"actionType"`
	Payload    map[string]interface{} `json:"payload"`
	Enrichment map[string]interface{} `json:"enrichment,omitempty"`
	IPAddress  string                 `json:"ip,omitempty"`
	DeviceID   string                 `json:"deviceId,omitempty"`
}

// PayloadString returns a string payload field, or "" when absent or
// not a string.
func (e *Event) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// PayloadNumber returns a numeric payload field, or 0 when absent.
// JSON decoding yields float64 for all numbers; int is accepted for
// payloads built in code.
func (e *Event) PayloadNumber(key string) float64 {
	if e.Payload == nil {
		return 0
	}
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Amount returns the transaction amount from the payload, checking the
// common aliases used by merchant integrations.
func (e *Event) Amount() float64 {
	if v := e.PayloadNumber("amount"); v != 0 {
		return v
	}
	return e.PayloadNumber("transactionAmount")
}

// TransactionType returns the lowercased transaction type, or "".
func (e *Event) TransactionType() string {
	return strings.ToLower(e.PayloadString("transactionType"))
}
