package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/entities"
)

// alertingRepository implements AlertingRepository on gorm.
type alertingRepository struct {
	db *gorm.DB
}

// NewAlertingRepository creates a new AlertingRepository.
func NewAlertingRepository(db *gorm.DB) AlertingRepository {
	return &alertingRepository{db: db}
}

// Migrate creates the alerting tables if they do not exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entities.AlertRule{},
		&entities.AlertChannel{},
		&entities.AlertSubscriber{},
		&entities.AlertDelivery{},
		&entities.UserAlertPreferences{},
	); err != nil {
		return fmt.Errorf("migrating alerting tables: %w", err)
	}
	return nil
}

// ListRules returns alert rules matching the given filter.
func (r *alertingRepository) ListRules(ctx context.Context, filter RuleFilter) ([]entities.AlertRule, error) {
	var rules []entities.AlertRule
	query := r.db.WithContext(ctx).Preload("Channels").Preload("Subscribers")

	if filter.Metric != "" {
		query = query.Where("metric = ?", filter.Metric)
	}
	if filter.BranchID != "" {
		query = query.Where("branch_id = ?", filter.BranchID)
	}
	if filter.CohortKey != "" {
		query = query.Where("cohort_key = ?", filter.CohortKey)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	if err := query.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	return rules, nil
}

// GetRule returns a single alert rule by ID with its channels and subscribers.
// Returns ErrRuleNotFound if the rule does not exist.
func (r *alertingRepository) GetRule(ctx context.Context, id uint) (*entities.AlertRule, error) {
	var rule entities.AlertRule
	if err := r.db.WithContext(ctx).Preload("Channels").Preload("Subscribers").First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get alert rule %d: %w", id, err)
	}
	return &rule, nil
}

// CreateRule creates a new alert rule with its channels and subscribers.
func (r *alertingRepository) CreateRule(ctx context.Context, rule *entities.AlertRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	return nil
}

// UpdateRule replaces an alert rule, deleting existing channels and
// subscribers first.
func (r *alertingRepository) UpdateRule(ctx context.Context, rule *entities.AlertRule) error {
	if rule.ID == 0 {
		return fmt.Errorf("failed to update alert rule: missing rule ID")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rule_id = ?", rule.ID).Delete(&entities.AlertChannel{}).Error; err != nil {
			return fmt.Errorf("failed to delete old channels: %w", err)
		}
		if err := tx.Where("rule_id = ?", rule.ID).Delete(&entities.AlertSubscriber{}).Error; err != nil {
			return fmt.Errorf("failed to delete old subscribers: %w", err)
		}
		// Zero out child IDs so GORM inserts fresh rows instead of trying to
		// update the ones just deleted.
		for i := range rule.Channels {
			rule.Channels[i].ID = 0
		}
		for i := range rule.Subscribers {
			rule.Subscribers[i].ID = 0
		}
		if err := tx.Save(rule).Error; err != nil {
			return fmt.Errorf("failed to update alert rule: %w", err)
		}
		return nil
	})
}

// ToggleRule activates or soft-disables an alert rule.
func (r *alertingRepository) ToggleRule(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&entities.AlertRule{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to toggle alert rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ListDueRules returns active rules whose next_run_at has passed.
func (r *alertingRepository) ListDueRules(ctx context.Context, now time.Time) ([]entities.AlertRule, error) {
	var rules []entities.AlertRule
	err := r.db.WithContext(ctx).
		Preload("Channels").Preload("Subscribers").
		Where("is_active = ? AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due rules: %w", err)
	}
	return rules, nil
}

// RescheduleRule persists the next evaluation time and, when the rule fired,
// the trigger timestamp. Last write wins; only the engine writes these columns.
func (r *alertingRepository) RescheduleRule(ctx context.Context, id uint, nextRunAt time.Time, triggeredAt *time.Time) error {
	updates := map[string]any{"next_run_at": nextRunAt}
	if triggeredAt != nil {
		updates["last_triggered_at"] = *triggeredAt
	}
	result := r.db.WithContext(ctx).Model(&entities.AlertRule{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to reschedule alert rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// RecordDelivery appends one delivery audit row.
func (r *alertingRepository) RecordDelivery(ctx context.Context, delivery *entities.AlertDelivery) error {
	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns delivery records matching the filter with pagination.
func (r *alertingRepository) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]entities.AlertDelivery, int64, error) {
	var items []entities.AlertDelivery
	var total int64

	countQuery := r.db.WithContext(ctx).Model(&entities.AlertDelivery{})
	if filter.RuleID > 0 {
		countQuery = countQuery.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Status != "" {
		countQuery = countQuery.Where("status = ?", filter.Status)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count deliveries: %w", err)
	}

	query := r.db.WithContext(ctx).Order("delivered_at DESC")
	if filter.RuleID > 0 {
		query = query.Where("rule_id = ?", filter.RuleID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return items, total, nil
}

// DeleteDeliveriesBefore deletes delivery records older than the given time.
func (r *alertingRepository) DeleteDeliveriesBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("delivered_at < ?", before).Delete(&entities.AlertDelivery{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete deliveries before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}

// GetPreferences returns a user's notification preferences, or nil when the
// user has never saved any.
func (r *alertingRepository) GetPreferences(ctx context.Context, userID string) (*entities.UserAlertPreferences, error) {
	var prefs entities.UserAlertPreferences
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences for %s: %w", userID, err)
	}
	return &prefs, nil
}

// SavePreferences upserts a user's notification preferences keyed by user ID.
func (r *alertingRepository) SavePreferences(ctx context.Context, prefs *entities.UserAlertPreferences) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(prefs).Error
	if err != nil {
		return fmt.Errorf("failed to save preferences for %s: %w", prefs.UserID, err)
	}
	return nil
}
