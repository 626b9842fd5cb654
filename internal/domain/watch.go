package domain

import "time"

// Watch kinds.
const (
	WatchSimple    = "SIMPLE"
	WatchAggregate = "AGGREGATE"
)

// Notification channels.
const (
	ChannelEmail   = "EMAIL"
	ChannelSlack   = "SLACK"
	ChannelWebhook = "WEBHOOK"
)

// Aggregation reducers for AGGREGATE watches.
const (
	MetricSum   = "SUM"
	MetricCount = "COUNT"
)

// AlertWatch is a per-customer alert definition, evaluated independently of
// the rule/decision pipeline. SIMPLE watches trip on the current event;
// AGGREGATE watches trip on a windowed SUM/COUNT crossing a threshold.
type AlertWatch struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	CustomerID  string `json:"customerId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Kind string `json:"kind"` // SIMPLE or AGGREGATE

	// Expression is the CEL tripwire for SIMPLE watches.
	Expression string `json:"expression,omitempty"`

	// Aggregation configures AGGREGATE watches.
	Aggregation WatchAggregation `json:"aggregation,omitempty"`

	// Settings is the notification destination.
	Settings WatchSettings `json:"settings"`

	Active    bool       `json:"active"`
	LastFired *time.Time `json:"lastFired,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// WatchAggregation describes the windowed metric for an AGGREGATE watch.
type WatchAggregation struct {
	Metric      string  `json:"metric"` // SUM or COUNT
	Field       string  `json:"field"`
	WindowHours int     `json:"windowHours"`
	Threshold   float64 `json:"threshold"`
}

// WatchSettings is the notification target for a watch.
type WatchSettings struct {
	Channel   string `json:"channel"` // EMAIL, SLACK, WEBHOOK
	Recipient string `json:"recipient"`
}

// Alert log delivery statuses.
const (
	DeliveryDelivered = "DELIVERED"
	DeliveryFailed    = "FAILED"
)

// AlertLog is the denormalized record of one fired watch.
type AlertLog struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	WatchID    string `json:"watchId"`
	CustomerID string `json:"customerId"`
	EventID    string `json:"eventId"`

	TriggerName  string  `json:"triggerName"`
	TriggerValue float64 `json:"triggerValue"`
	Status       string  `json:"status"` // DELIVERED or FAILED

	CreatedAt time.Time `json:"createdAt"`
}
