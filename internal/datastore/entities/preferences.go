package entities

import "time"

// UserAlertPreferences holds a subscriber's channel flags, contact targets,
// and optional quiet-hours window. Read at dispatch time; upserted by the user.
type UserAlertPreferences struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"size:64;not null;uniqueIndex" json:"user_id"`
	EmailEnabled    bool      `gorm:"not null;default:false" json:"email_enabled"`
	SMSEnabled      bool      `gorm:"not null;default:false" json:"sms_enabled"`
	SlackEnabled    bool      `gorm:"not null;default:false" json:"slack_enabled"`
	EmailAddress    string    `gorm:"size:255;default:''" json:"email_address"`
	PhoneNumber     string    `gorm:"size:50;default:''" json:"phone_number"`
	SlackWebhookURL string    `gorm:"size:500;default:''" json:"slack_webhook_url"`
	QuietStart      string    `gorm:"size:5;default:''" json:"quiet_start"` // "HH:MM" local clock
	QuietEnd        string    `gorm:"size:5;default:''" json:"quiet_end"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (UserAlertPreferences) TableName() string {
	return "user_alert_preferences"
}
