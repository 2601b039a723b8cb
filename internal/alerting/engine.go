package alerting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/entities"
	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/repository"
	"github.com/zeez-dotcom/laundryao-analytics/internal/telemetry"
)

const (
	// cleanupInterval is how often the delivery-retention goroutine runs.
	cleanupInterval = 1 * time.Hour
	// cleanupTimeout is the context deadline for the periodic deletion.
	cleanupTimeout = 5 * time.Second
)

// EngineConfig tunes evaluation behavior.
type EngineConfig struct {
	// EqualTolerance is the absolute tolerance for the equal comparison.
	// Defaults to 0.01 when zero.
	EqualTolerance float64
	// DeliveryRetentionDays bounds how long audit rows are kept by the
	// background cleanup. Zero disables cleanup.
	DeliveryRetentionDays int
}

// Engine evaluates due alert rules and dispatches notifications.
type Engine struct {
	repo     repository.AlertingRepository
	provider MetricProvider
	notifier Notifier
	slack    SlackSender
	webhook  WebhookSender
	cfg      EngineConfig
	log      *zap.Logger
	metrics  *telemetry.Metrics

	// now is swappable for deterministic scheduling in tests.
	now func() time.Time

	cleanupMu   sync.Mutex
	cleanupStop chan struct{}
}

// NewEngine creates the alerting engine. The repository and metric provider
// are required; notification clients may be nil, in which case deliveries to
// their channels are recorded as failed.
func NewEngine(
	repo repository.AlertingRepository,
	provider MetricProvider,
	notifier Notifier,
	slack SlackSender,
	webhook WebhookSender,
	cfg EngineConfig,
	log *zap.Logger,
	metrics *telemetry.Metrics,
) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("alerting engine requires a repository")
	}
	if provider == nil {
		return nil, errors.New("alerting engine requires a metric provider")
	}
	if cfg.EqualTolerance <= 0 {
		cfg.EqualTolerance = defaultEqualTolerance
	}
	return &Engine{
		repo:     repo,
		provider: provider,
		notifier: notifier,
		slack:    slack,
		webhook:  webhook,
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// RuleSpec describes a rule to create.
type RuleSpec struct {
	Name        string
	Metric      string
	Comparison  string
	Threshold   float64
	BranchID    string
	Cohort      *Cohort
	Schedule    Schedule
	Channels    []entities.AlertChannel
	Subscribers []string
	CreatedBy   string
}

func validComparison(c string) bool {
	switch c {
	case ComparisonAbove, ComparisonBelow, ComparisonEqual, ComparisonOutsideBounds:
		return true
	}
	return false
}

// ConfigureRule validates and persists a new rule, priming it so the first
// evaluation happens on the next scheduler tick instead of a full schedule
// period out.
func (e *Engine) ConfigureRule(ctx context.Context, spec RuleSpec) (*entities.AlertRule, error) {
	if spec.Name == "" {
		return nil, errors.New("rule name is required")
	}
	if spec.Metric == "" {
		return nil, errors.New("rule metric is required")
	}
	if !validComparison(spec.Comparison) {
		return nil, fmt.Errorf("unknown comparison %q", spec.Comparison)
	}
	if err := spec.Schedule.Validate(); err != nil {
		return nil, err
	}

	rule := &entities.AlertRule{
		Name:              spec.Name,
		Metric:            spec.Metric,
		Comparison:        spec.Comparison,
		Threshold:         spec.Threshold,
		BranchID:          spec.BranchID,
		CohortKey:         ComputeCohortKey(spec.Cohort),
		ScheduleFrequency: spec.Schedule.Frequency,
		ScheduleMinute:    spec.Schedule.Minute,
		ScheduleHour:      spec.Schedule.Hour,
		ScheduleDayOfWeek: spec.Schedule.DayOfWeek,
		IsActive:          true,
		CreatedBy:         spec.CreatedBy,
		Channels:          spec.Channels,
		// Primed just-in-the-past so ListDueRules picks it up immediately.
		NextRunAt: e.now().Add(-time.Second),
	}
	if spec.Cohort != nil {
		rule.CohortID = spec.Cohort.ID
		rule.CohortLabel = spec.Cohort.Label
	}
	for _, userID := range spec.Subscribers {
		rule.Subscribers = append(rule.Subscribers, entities.AlertSubscriber{UserID: userID})
	}

	if err := e.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	e.log.Info("alert rule configured",
		zap.Uint("rule_id", rule.ID),
		zap.String("metric", rule.Metric),
		zap.String("comparison", rule.Comparison))
	return rule, nil
}

// RuleUpdate is a partial rule patch; nil fields are left unchanged.
type RuleUpdate struct {
	Name        *string
	Metric      *string
	Comparison  *string
	Threshold   *float64
	BranchID    *string
	Cohort      *Cohort
	ClearCohort bool
	Schedule    *Schedule
	Channels    []entities.AlertChannel
	Subscribers []string
	IsActive    *bool
}

// UpdateRule applies a partial update. A cohort change re-derives the cohort
// key; a schedule change recomputes NextRunAt immediately from the new
// schedule.
func (e *Engine) UpdateRule(ctx context.Context, id uint, update RuleUpdate) (*entities.AlertRule, error) {
	rule, err := e.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		rule.Name = *update.Name
	}
	if update.Metric != nil {
		rule.Metric = *update.Metric
	}
	if update.Comparison != nil {
		if !validComparison(*update.Comparison) {
			return nil, fmt.Errorf("unknown comparison %q", *update.Comparison)
		}
		rule.Comparison = *update.Comparison
	}
	if update.Threshold != nil {
		rule.Threshold = *update.Threshold
	}
	if update.BranchID != nil {
		rule.BranchID = *update.BranchID
	}
	if update.ClearCohort {
		rule.CohortID = ""
		rule.CohortLabel = ""
		rule.CohortKey = ComputeCohortKey(nil)
	} else if update.Cohort != nil {
		rule.CohortID = update.Cohort.ID
		rule.CohortLabel = update.Cohort.Label
		rule.CohortKey = ComputeCohortKey(update.Cohort)
	}
	if update.Schedule != nil {
		if err := update.Schedule.Validate(); err != nil {
			return nil, err
		}
		rule.ScheduleFrequency = update.Schedule.Frequency
		rule.ScheduleMinute = update.Schedule.Minute
		rule.ScheduleHour = update.Schedule.Hour
		rule.ScheduleDayOfWeek = update.Schedule.DayOfWeek
		rule.NextRunAt = NextRunAt(e.now(), *update.Schedule)
	}
	if update.Channels != nil {
		rule.Channels = update.Channels
	}
	if update.Subscribers != nil {
		subs := make([]entities.AlertSubscriber, 0, len(update.Subscribers))
		for _, userID := range update.Subscribers {
			subs = append(subs, entities.AlertSubscriber{UserID: userID})
		}
		rule.Subscribers = subs
	}
	if update.IsActive != nil {
		rule.IsActive = *update.IsActive
	}

	if err := e.repo.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// RunDueRules loads every active rule whose NextRunAt has passed and evaluates
// them concurrently. A failed rule is rescheduled to its next natural slot and
// logged; it can never block the others or wedge itself.
func (e *Engine) RunDueRules(ctx context.Context) error {
	now := e.now()
	rules, err := e.repo.ListDueRules(ctx, now)
	if err != nil {
		return fmt.Errorf("loading due rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for i := range rules {
		rule := rules[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runRule(ctx, &rule, now)
		}()
	}
	wg.Wait()
	return nil
}

// runRule evaluates one rule, absorbing errors and panics so a bad rule only
// affects itself.
func (e *Engine) runRule(ctx context.Context, rule *entities.AlertRule, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("rule evaluation panicked",
				zap.Uint("rule_id", rule.ID),
				zap.Any("panic", r))
			e.rescheduleAfterFailure(ctx, rule, now)
		}
	}()

	if err := e.evaluateRule(ctx, rule, now); err != nil {
		e.log.Error("rule evaluation failed",
			zap.Uint("rule_id", rule.ID),
			zap.String("metric", rule.Metric),
			zap.Error(err))
		e.rescheduleAfterFailure(ctx, rule, now)
	}
}

func (e *Engine) rescheduleAfterFailure(ctx context.Context, rule *entities.AlertRule, now time.Time) {
	next := NextRunAt(now, ruleSchedule(rule))
	if err := e.repo.RescheduleRule(ctx, rule.ID, next, nil); err != nil {
		e.log.Error("failed to reschedule rule after failure",
			zap.Uint("rule_id", rule.ID),
			zap.Error(err))
	}
}

func ruleSchedule(rule *entities.AlertRule) Schedule {
	return Schedule{
		Frequency: rule.ScheduleFrequency,
		Minute:    rule.ScheduleMinute,
		Hour:      rule.ScheduleHour,
		DayOfWeek: rule.ScheduleDayOfWeek,
	}
}

func (e *Engine) metricQuery(rule *entities.AlertRule) MetricQuery {
	query := MetricQuery{Metric: rule.Metric, BranchID: rule.BranchID}
	if rule.CohortID != "" || rule.CohortLabel != "" {
		query.Cohort = &Cohort{ID: rule.CohortID, Label: rule.CohortLabel}
	}
	return query
}

// evaluateRule queries the metric provider, decides whether the rule fires,
// dispatches if so, and always advances NextRunAt strictly past now.
func (e *Engine) evaluateRule(ctx context.Context, rule *entities.AlertRule, now time.Time) error {
	e.metrics.RuleEvaluated()
	next := NextRunAt(now, ruleSchedule(rule))

	value, err := e.provider.MetricValue(ctx, e.metricQuery(rule))
	if err != nil {
		return fmt.Errorf("querying metric %s: %w", rule.Metric, err)
	}
	if value == nil {
		// Data unavailable is a normal outcome: no dispatch, no trigger,
		// just advance the schedule.
		e.log.Debug("metric unavailable, rescheduling",
			zap.Uint("rule_id", rule.ID),
			zap.String("metric", rule.Metric))
		return e.repo.RescheduleRule(ctx, rule.ID, next, nil)
	}

	triggered, band, err := e.compare(ctx, rule, *value)
	if err != nil {
		return err
	}

	if !triggered {
		return e.repo.RescheduleRule(ctx, rule.ID, next, nil)
	}

	e.metrics.RuleTriggered()
	e.log.Info("alert rule triggered",
		zap.Uint("rule_id", rule.ID),
		zap.String("metric", rule.Metric),
		zap.Float64("value", *value),
		zap.Float64("threshold", rule.Threshold))

	e.dispatch(ctx, rule, *value, band, now)
	return e.repo.RescheduleRule(ctx, rule.ID, next, &now)
}

// compare applies the rule's comparison to the observed value. For
// outside_bounds it consults the provider's forecast-band lookup when exposed;
// without a band the rule does not trigger this cycle.
func (e *Engine) compare(ctx context.Context, rule *entities.AlertRule, value float64) (bool, *Band, error) {
	switch rule.Comparison {
	case ComparisonAbove:
		return value > rule.Threshold, nil, nil
	case ComparisonBelow:
		return value < rule.Threshold, nil, nil
	case ComparisonEqual:
		return math.Abs(value-rule.Threshold) <= e.cfg.EqualTolerance, nil, nil
	case ComparisonOutsideBounds:
		bands, ok := e.provider.(BandProvider)
		if !ok {
			return false, nil, nil
		}
		band, err := bands.ForecastBand(ctx, e.metricQuery(rule))
		if err != nil {
			return false, nil, fmt.Errorf("querying forecast band for %s: %w", rule.Metric, err)
		}
		if band == nil {
			return false, nil, nil
		}
		return value < band.LowerBound || value > band.UpperBound, band, nil
	default:
		return false, nil, fmt.Errorf("unknown comparison %q", rule.Comparison)
	}
}

// GetPreferences returns a user's notification preferences, or nil if none.
func (e *Engine) GetPreferences(ctx context.Context, userID string) (*entities.UserAlertPreferences, error) {
	return e.repo.GetPreferences(ctx, userID)
}

// UpdatePreferences upserts a user's notification preferences.
func (e *Engine) UpdatePreferences(ctx context.Context, prefs *entities.UserAlertPreferences) error {
	if prefs.UserID == "" {
		return errors.New("preferences require a user ID")
	}
	return e.repo.SavePreferences(ctx, prefs)
}

// StartDeliveryCleanup starts a background goroutine that periodically deletes
// delivery records older than the configured retention. Zero retention
// disables cleanup.
func (e *Engine) StartDeliveryCleanup() {
	retention := e.cfg.DeliveryRetentionDays
	if retention <= 0 {
		return
	}
	e.stopCleanup()
	e.cleanupMu.Lock()
	e.cleanupStop = make(chan struct{})
	stopCh := e.cleanupStop
	e.cleanupMu.Unlock()

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := e.now().AddDate(0, 0, -retention)
				cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
				deleted, err := e.repo.DeleteDeliveriesBefore(cleanupCtx, cutoff)
				cancel()
				if err != nil {
					e.log.Error("delivery cleanup failed", zap.Error(err))
				} else if deleted > 0 {
					e.log.Info("delivery cleanup completed",
						zap.Int64("deleted", deleted),
						zap.Int("retention_days", retention))
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// stopCleanup signals the cleanup goroutine to exit. The mutex makes the
// nil-check-then-close atomic so Stop and StartDeliveryCleanup cannot race
// into a double close.
func (e *Engine) stopCleanup() {
	e.cleanupMu.Lock()
	ch := e.cleanupStop
	e.cleanupStop = nil
	e.cleanupMu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	e.stopCleanup()
}
