// Package warehouse persists analytics events into the analytical store as
// flattened, category-specific rows. Rows are keyed by event_id so batch
// writes are idempotent; the core never reads them back.
package warehouse

import "time"

// OrderLifecycleRow is the flattened projection of an order-lifecycle event.
type OrderLifecycleRow struct {
	ID         uint      `gorm:"primaryKey"`
	EventID    string    `gorm:"size:64;not null;uniqueIndex"`
	OccurredAt time.Time `gorm:"not null;index"`
	Source     string    `gorm:"size:100;not null"`
	Name       string    `gorm:"size:100;not null;index"`
	OrderID    string    `gorm:"size:64;not null;index"`
	BranchID   string    `gorm:"size:64;default:'';index"`
	CustomerID string    `gorm:"size:64;default:''"`
	FromStatus string    `gorm:"size:50;default:''"`
	ToStatus   string    `gorm:"size:50;not null"`
	TotalCents int64     `gorm:"default:0"`
	Currency   string    `gorm:"size:8;default:''"`
	ActorID    string    `gorm:"size:64;default:''"`
	ActorType  string    `gorm:"size:50;default:''"`
	Context    string    `gorm:"type:text;default:''"`
	WrittenAt  time.Time `gorm:"autoCreateTime"`
}

func (OrderLifecycleRow) TableName() string { return "order_lifecycle_events" }

// DriverTelemetryRow is the flattened projection of a driver-telemetry ping.
type DriverTelemetryRow struct {
	ID           uint      `gorm:"primaryKey"`
	EventID      string    `gorm:"size:64;not null;uniqueIndex"`
	OccurredAt   time.Time `gorm:"not null;index"`
	Source       string    `gorm:"size:100;not null"`
	Name         string    `gorm:"size:100;not null"`
	DriverID     string    `gorm:"size:64;not null;index"`
	BranchID     string    `gorm:"size:64;default:'';index"`
	Latitude     float64   `gorm:"not null"`
	Longitude    float64   `gorm:"not null"`
	SpeedKPH     float64   `gorm:"default:0"`
	BatteryLevel float64   `gorm:"default:0"`
	Status       string    `gorm:"size:50;default:''"`
	Context      string    `gorm:"type:text;default:''"`
	WrittenAt    time.Time `gorm:"autoCreateTime"`
}

func (DriverTelemetryRow) TableName() string { return "driver_telemetry_events" }

// CampaignInteractionRow is the flattened projection of a campaign interaction.
type CampaignInteractionRow struct {
	ID          uint      `gorm:"primaryKey"`
	EventID     string    `gorm:"size:64;not null;uniqueIndex"`
	OccurredAt  time.Time `gorm:"not null;index"`
	Source      string    `gorm:"size:100;not null"`
	Name        string    `gorm:"size:100;not null"`
	CampaignID  string    `gorm:"size:64;not null;index"`
	CustomerID  string    `gorm:"size:64;default:''"`
	Channel     string    `gorm:"size:50;default:''"`
	Interaction string    `gorm:"size:50;not null"`
	CohortID    string    `gorm:"size:64;default:'';index"`
	Context     string    `gorm:"type:text;default:''"`
	WrittenAt   time.Time `gorm:"autoCreateTime"`
}

func (CampaignInteractionRow) TableName() string { return "campaign_interaction_events" }
