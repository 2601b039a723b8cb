package entities

import "time"

// AlertRule defines an operator-configured threshold rule. Rules are evaluated
// on their schedule and dispatch notifications when the metric crosses the
// threshold. Rules are soft-disabled via IsActive; the core never hard-deletes.
type AlertRule struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Name        string  `gorm:"size:255;not null" json:"name"`
	Metric      string  `gorm:"size:100;not null;index" json:"metric"`
	Comparison  string  `gorm:"size:20;not null" json:"comparison"`
	Threshold   float64 `gorm:"not null;default:0" json:"threshold"`
	BranchID    string  `gorm:"size:64;default:''" json:"branch_id"`
	CohortID    string  `gorm:"size:64;default:''" json:"cohort_id"`
	CohortLabel string  `gorm:"size:255;default:''" json:"cohort_label"`
	CohortKey   string  `gorm:"size:64;not null;index" json:"cohort_key"`

	ScheduleFrequency string `gorm:"size:10;not null" json:"schedule_frequency"`
	ScheduleMinute    int    `gorm:"not null;default:0" json:"schedule_minute"`
	ScheduleHour      int    `gorm:"not null;default:0" json:"schedule_hour"`
	ScheduleDayOfWeek int    `gorm:"not null;default:0" json:"schedule_day_of_week"`

	IsActive        bool       `gorm:"not null;index" json:"is_active"`
	CreatedBy       string     `gorm:"size:64;default:''" json:"created_by"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	NextRunAt       time.Time  `gorm:"not null;index" json:"next_run_at"`

	Channels    []AlertChannel    `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"channels"`
	Subscribers []AlertSubscriber `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"subscribers"`
}

// TableName returns the table name for GORM.
func (AlertRule) TableName() string {
	return "alert_rules"
}

// AlertChannel is a direct rule-level delivery target with an explicit
// recipient. Subscriber preferences do not apply to these.
type AlertChannel struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	RuleID    uint   `gorm:"not null;index" json:"rule_id"`
	Channel   string `gorm:"size:20;not null" json:"channel"`
	Target    string `gorm:"size:500;not null" json:"target"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
}

// TableName returns the table name for GORM.
func (AlertChannel) TableName() string {
	return "alert_channels"
}

// AlertSubscriber links a rule to a user whose personal notification
// preferences are resolved at dispatch time.
type AlertSubscriber struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	RuleID uint   `gorm:"not null;index" json:"rule_id"`
	UserID string `gorm:"size:64;not null" json:"user_id"`
}

// TableName returns the table name for GORM.
func (AlertSubscriber) TableName() string {
	return "alert_subscribers"
}
