// Package analytics provides the analytics event model, the in-process event
// bus with optional durable broker delivery, and the warehouse event sink.
package analytics

import (
	"fmt"
	"time"
)

// SchemaVersion is stamped on events created by this module version.
const SchemaVersion = 2

// Category classifies an analytics event. The set is closed: the sink only
// routes categories listed here and ignores everything else.
type Category string

const (
	CategoryOrderLifecycle      Category = "order-lifecycle"
	CategoryDriverTelemetry     Category = "driver-telemetry"
	CategoryCampaignInteraction Category = "campaign-interaction"
)

// warehouseTables maps each known category to its warehouse destination.
var warehouseTables = map[Category]string{
	CategoryOrderLifecycle:      "order_lifecycle_events",
	CategoryDriverTelemetry:     "driver_telemetry_events",
	CategoryCampaignInteraction: "campaign_interaction_events",
}

// TableFor returns the warehouse table for a category. ok is false for
// categories outside the closed set.
func TableFor(c Category) (table string, ok bool) {
	table, ok = warehouseTables[c]
	return table, ok
}

// Payload is the category-specific body of an event. Implementations are the
// three payload structs below; Category ties each payload to its event category.
type Payload interface {
	Category() Category
}

// OrderLifecyclePayload captures an order state transition.
type OrderLifecyclePayload struct {
	OrderID    string `json:"orderId"`
	BranchID   string `json:"branchId,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
	FromStatus string `json:"fromStatus,omitempty"`
	ToStatus   string `json:"toStatus"`
	TotalCents int64  `json:"totalCents,omitempty"`
	Currency   string `json:"currency,omitempty"`
}

func (OrderLifecyclePayload) Category() Category { return CategoryOrderLifecycle }

// DriverTelemetryPayload captures a driver position/status ping.
type DriverTelemetryPayload struct {
	DriverID     string  `json:"driverId"`
	BranchID     string  `json:"branchId,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	SpeedKPH     float64 `json:"speedKph,omitempty"`
	BatteryLevel float64 `json:"batteryLevel,omitempty"`
	Status       string  `json:"status,omitempty"`
}

func (DriverTelemetryPayload) Category() Category { return CategoryDriverTelemetry }

// CampaignInteractionPayload captures a customer touching a campaign.
type CampaignInteractionPayload struct {
	CampaignID  string `json:"campaignId"`
	CustomerID  string `json:"customerId,omitempty"`
	Channel     string `json:"channel,omitempty"`
	Interaction string `json:"interaction"`
	CohortID    string `json:"cohortId,omitempty"`
}

func (CampaignInteractionPayload) Category() Category { return CategoryCampaignInteraction }

// Actor identifies who or what produced an event.
type Actor struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// Event is an immutable analytics fact. It is created once by the originating
// subsystem and consumed by any number of bus listeners.
type Event struct {
	EventID       string         `json:"eventId"`
	OccurredAt    time.Time      `json:"occurredAt"`
	SchemaVersion int            `json:"schemaVersion"`
	Source        string         `json:"source"`
	Category      Category       `json:"category"`
	Name          string         `json:"name"`
	Payload       Payload        `json:"payload"`
	Actor         *Actor         `json:"actor,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// ValidationError reports a malformed event. Validation failures are terminal:
// the event is rejected and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// Validate checks the event against its schema.
func (e *Event) Validate() error {
	switch {
	case e.EventID == "":
		return &ValidationError{Field: "eventId", Reason: "is required"}
	case e.OccurredAt.IsZero():
		return &ValidationError{Field: "occurredAt", Reason: "is required"}
	case e.Source == "":
		return &ValidationError{Field: "source", Reason: "is required"}
	case e.Name == "":
		return &ValidationError{Field: "name", Reason: "is required"}
	case e.Payload == nil:
		return &ValidationError{Field: "payload", Reason: "is required"}
	}
	if _, known := warehouseTables[e.Category]; !known {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("%q is not a known category", e.Category)}
	}
	if pc := e.Payload.Category(); pc != e.Category {
		return &ValidationError{Field: "payload", Reason: fmt.Sprintf("is a %s payload on a %s event", pc, e.Category)}
	}
	return nil
}
