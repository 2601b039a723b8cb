package entities

import "time"

// AlertDelivery is an append-only audit row, written once per dispatch attempt
// and never mutated.
type AlertDelivery struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RuleID      uint      `gorm:"not null;index:idx_alert_deliveries_rule_time,priority:1" json:"rule_id"`
	Channel     string    `gorm:"size:20;not null" json:"channel"`
	Recipient   string    `gorm:"size:500;not null" json:"recipient"`
	Payload     string    `gorm:"type:text;default:''" json:"payload"`
	DeliveredAt time.Time `gorm:"not null;index:idx_alert_deliveries_rule_time,priority:2" json:"delivered_at"`
	Status      string    `gorm:"size:10;not null;index" json:"status"`
	Error       string    `gorm:"size:2000;default:''" json:"error"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AlertDelivery) TableName() string {
	return "alert_deliveries"
}
