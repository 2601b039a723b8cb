// Package repository defines and implements the alerting persistence boundary.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/entities"
)

// ErrRuleNotFound is returned when an alert rule does not exist.
var ErrRuleNotFound = errors.New("alert rule not found")

// AlertingRepository stores rules, append-only delivery records, and per-user
// notification preferences.
type AlertingRepository interface {
	// Rule CRUD. Rules are only ever soft-disabled via ToggleRule.
	ListRules(ctx context.Context, filter RuleFilter) ([]entities.AlertRule, error)
	GetRule(ctx context.Context, id uint) (*entities.AlertRule, error)
	CreateRule(ctx context.Context, rule *entities.AlertRule) error
	UpdateRule(ctx context.Context, rule *entities.AlertRule) error
	ToggleRule(ctx context.Context, id uint, active bool) error

	// Scheduling
	ListDueRules(ctx context.Context, now time.Time) ([]entities.AlertRule, error)
	RescheduleRule(ctx context.Context, id uint, nextRunAt time.Time, triggeredAt *time.Time) error

	// Delivery audit trail (append-only)
	RecordDelivery(ctx context.Context, delivery *entities.AlertDelivery) error
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]entities.AlertDelivery, int64, error)
	DeleteDeliveriesBefore(ctx context.Context, before time.Time) (int64, error)

	// Preferences. GetPreferences returns (nil, nil) when the user has none.
	GetPreferences(ctx context.Context, userID string) (*entities.UserAlertPreferences, error)
	SavePreferences(ctx context.Context, prefs *entities.UserAlertPreferences) error
}

// RuleFilter controls rule listing queries.
type RuleFilter struct {
	Metric    string
	BranchID  string
	CohortKey string
	IsActive  *bool
}

// DeliveryFilter controls delivery listing queries.
type DeliveryFilter struct {
	RuleID uint
	Status string
	Limit  int
	Offset int
}
