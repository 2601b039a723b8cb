package alerting

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/entities"
	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/repository"
)

type engineFixture struct {
	engine   *Engine
	repo     *mockRepo
	provider *mockProvider
	notifier *mockNotifier
	slack    *mockSlack
	webhook  *mockWebhook
}

// evalTime is the frozen clock all engine tests run at: Wednesday 10:20 UTC.
var evalTime = time.Date(2026, 3, 11, 10, 20, 0, 0, time.UTC)

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		repo:     newMockRepo(),
		provider: newMockProvider(),
		notifier: &mockNotifier{},
		slack:    &mockSlack{},
		webhook:  &mockWebhook{},
	}
	engine, err := NewEngine(f.repo, f.provider, f.notifier, f.slack, f.webhook, EngineConfig{}, zap.NewNop(), nil)
	require.NoError(t, err)
	engine.now = func() time.Time { return evalTime }
	f.engine = engine
	return f
}

func hourlySpec() RuleSpec {
	return RuleSpec{
		Name:       "Revenue floor",
		Metric:     "revenue",
		Comparison: ComparisonBelow,
		Threshold:  500,
		Schedule:   Schedule{Frequency: FrequencyHourly, Minute: 0},
		Channels:   []entities.AlertChannel{{Channel: ChannelEmail, Target: "ops@example.com"}},
	}
}

func TestNewEngine_RequiresRepoAndProvider(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(nil, newMockProvider(), nil, nil, nil, EngineConfig{}, zap.NewNop(), nil)
	assert.Error(t, err)

	_, err = NewEngine(newMockRepo(), nil, nil, nil, nil, EngineConfig{}, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestConfigureRule(t *testing.T) {
	f := newEngineFixture(t)

	spec := hourlySpec()
	spec.Cohort = &Cohort{ID: "vip", Label: "VIP"}
	spec.Subscribers = []string{"user-1", "user-2"}

	rule, err := f.engine.ConfigureRule(t.Context(), spec)
	require.NoError(t, err)
	assert.NotZero(t, rule.ID)
	assert.True(t, rule.IsActive)
	assert.Equal(t, ComputeCohortKey(spec.Cohort), rule.CohortKey)
	assert.Len(t, rule.Subscribers, 2)

	// Primed: the rule is already due so the next scheduler tick evaluates it.
	due, err := f.repo.ListDueRules(t.Context(), evalTime)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, rule.ID, due[0].ID)
}

func TestConfigureRule_Validation(t *testing.T) {
	f := newEngineFixture(t)

	tests := []struct {
		name   string
		mutate func(*RuleSpec)
	}{
		{"missing name", func(s *RuleSpec) { s.Name = "" }},
		{"missing metric", func(s *RuleSpec) { s.Metric = "" }},
		{"unknown comparison", func(s *RuleSpec) { s.Comparison = "near" }},
		{"bad schedule", func(s *RuleSpec) { s.Schedule.Minute = 99 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := hourlySpec()
			tt.mutate(&spec)
			_, err := f.engine.ConfigureRule(t.Context(), spec)
			assert.Error(t, err)
		})
	}
}

func TestUpdateRule(t *testing.T) {
	f := newEngineFixture(t)

	rule, err := f.engine.ConfigureRule(t.Context(), hourlySpec())
	require.NoError(t, err)

	threshold := 750.0
	schedule := Schedule{Frequency: FrequencyDaily, Hour: 8, Minute: 30}
	updated, err := f.engine.UpdateRule(t.Context(), rule.ID, RuleUpdate{
		Threshold: &threshold,
		Cohort:    &Cohort{ID: "vip", Label: "VIP"},
		Schedule:  &schedule,
	})
	require.NoError(t, err)

	assert.InDelta(t, 750, updated.Threshold, 1e-9)
	assert.Equal(t, ComputeCohortKey(&Cohort{ID: "vip", Label: "VIP"}), updated.CohortKey)
	// Schedule change recomputes NextRunAt from the new schedule immediately.
	assert.Equal(t, NextRunAt(evalTime, schedule), updated.NextRunAt)
}

func TestUpdateRule_ClearCohort(t *testing.T) {
	f := newEngineFixture(t)

	spec := hourlySpec()
	spec.Cohort = &Cohort{ID: "vip", Label: "VIP"}
	rule, err := f.engine.ConfigureRule(t.Context(), spec)
	require.NoError(t, err)

	updated, err := f.engine.UpdateRule(t.Context(), rule.ID, RuleUpdate{ClearCohort: true})
	require.NoError(t, err)
	assert.Equal(t, CohortKeyAll, updated.CohortKey)
	assert.Empty(t, updated.CohortID)
}

func TestRunDueRules_TriggersAndReschedules(t *testing.T) {
	f := newEngineFixture(t)
	f.provider.values["revenue"] = 342.5

	rule, err := f.engine.ConfigureRule(t.Context(), hourlySpec())
	require.NoError(t, err)

	require.NoError(t, f.engine.RunDueRules(t.Context()))

	deliveries := f.repo.deliveriesFor(rule.ID)
	require.Len(t, deliveries, 1)
	assert.Equal(t, ChannelEmail, deliveries[0].Channel)
	assert.Equal(t, StatusSent, deliveries[0].Status)
	assert.Equal(t, []string{"ops@example.com"}, f.notifier.emails)

	stored, err := f.repo.GetRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextRunAt.After(evalTime))
	require.NotNil(t, stored.LastTriggeredAt)
	assert.Equal(t, evalTime, *stored.LastTriggeredAt)
}

func TestRunDueRules_NotTriggeredStillReschedules(t *testing.T) {
	f := newEngineFixture(t)
	f.provider.values["revenue"] = 900 // above the floor, no alert

	rule, err := f.engine.ConfigureRule(t.Context(), hourlySpec())
	require.NoError(t, err)

	require.NoError(t, f.engine.RunDueRules(t.Context()))

	assert.Empty(t, f.repo.deliveriesFor(rule.ID))
	stored, err := f.repo.GetRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextRunAt.After(evalTime))
	assert.Nil(t, stored.LastTriggeredAt)
}

func TestRunDueRules_MetricUnavailableAdvancesSchedule(t *testing.T) {
	f := newEngineFixture(t)
	// No value registered for "revenue": data unavailable.

	rule, err := f.engine.ConfigureRule(t.Context(), hourlySpec())
	require.NoError(t, err)

	require.NoError(t, f.engine.RunDueRules(t.Context()))

	assert.Empty(t, f.repo.deliveriesFor(rule.ID))
	stored, err := f.repo.GetRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextRunAt.After(evalTime), "unavailable data must not wedge the schedule")
}

func TestRunDueRules_ProviderErrorIsolatedPerRule(t *testing.T) {
	f := newEngineFixture(t)
	f.provider.errs["revenue"] = errors.New("warehouse down")
	f.provider.values["orders"] = 10

	broken, err := f.engine.ConfigureRule(t.Context(), hourlySpec())
	require.NoError(t, err)

	healthySpec := hourlySpec()
	healthySpec.Name = "Order volume"
	healthySpec.Metric = "orders"
	healthySpec.Comparison = ComparisonBelow
	healthySpec.Threshold = 50
	healthy, err := f.engine.ConfigureRule(t.Context(), healthySpec)
	require.NoError(t, err)

	require.NoError(t, f.engine.RunDueRules(t.Context()))

	// The healthy rule fired despite the broken one.
	assert.Len(t, f.repo.deliveriesFor(healthy.ID), 1)
	assert.Empty(t, f.repo.deliveriesFor(broken.ID))

	// The broken rule is rescheduled to its next natural slot, not left due.
	stored, err := f.repo.GetRule(t.Context(), broken.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextRunAt.After(evalTime))
}

func TestCompare(t *testing.T) {
	f := newEngineFixture(t)
	f.provider.bands["orders:forecast"] = Band{LowerBound: 80, UpperBound: 120}

	tests := []struct {
		name       string
		comparison string
		metric     string
		threshold  float64
		value      float64
		want       bool
	}{
		{"above triggers", ComparisonAbove, "m", 100, 101, true},
		{"above at threshold does not", ComparisonAbove, "m", 100, 100, false},
		{"below triggers", ComparisonBelow, "m", 100, 99, true},
		{"below at threshold does not", ComparisonBelow, "m", 100, 100, false},
		{"equal within tolerance", ComparisonEqual, "m", 100, 100.005, true},
		{"equal outside tolerance", ComparisonEqual, "m", 100, 100.5, false},
		{"outside bounds high", ComparisonOutsideBounds, "orders:forecast", 0, 140, true},
		{"outside bounds low", ComparisonOutsideBounds, "orders:forecast", 0, 60, true},
		{"inside bounds", ComparisonOutsideBounds, "orders:forecast", 0, 100, false},
		{"no band no trigger", ComparisonOutsideBounds, "other", 0, 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &entities.AlertRule{Metric: tt.metric, Comparison: tt.comparison, Threshold: tt.threshold}
			got, _, err := f.engine.compare(t.Context(), rule, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare_OutsideBoundsWithoutBandProvider(t *testing.T) {
	repo := newMockRepo()
	engine, err := NewEngine(repo, &valueOnlyProvider{value: 1000}, nil, nil, nil, EngineConfig{}, zap.NewNop(), nil)
	require.NoError(t, err)

	rule := &entities.AlertRule{Metric: "m", Comparison: ComparisonOutsideBounds}
	triggered, band, err := engine.compare(t.Context(), rule, 1000)
	require.NoError(t, err)
	assert.False(t, triggered, "providers without band support never trigger outside_bounds")
	assert.Nil(t, band)
}

func TestPreferences_RoundTrip(t *testing.T) {
	f := newEngineFixture(t)

	prefs, err := f.engine.GetPreferences(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, prefs, "absent preferences are nil, not an error")

	require.NoError(t, f.engine.UpdatePreferences(t.Context(), &entities.UserAlertPreferences{
		UserID:       "user-1",
		EmailEnabled: true,
		EmailAddress: "user1@example.com",
	}))

	prefs, err = f.engine.GetPreferences(t.Context(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, prefs)
	assert.Equal(t, "user1@example.com", prefs.EmailAddress)

	assert.Error(t, f.engine.UpdatePreferences(t.Context(), &entities.UserAlertPreferences{}))
}

func TestDeliveryCleanup(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.cfg.DeliveryRetentionDays = 30

	old := entities.AlertDelivery{RuleID: 1, Channel: ChannelEmail, Status: StatusSent, DeliveredAt: evalTime.AddDate(0, 0, -60)}
	recent := entities.AlertDelivery{RuleID: 1, Channel: ChannelEmail, Status: StatusSent, DeliveredAt: evalTime.AddDate(0, 0, -5)}
	require.NoError(t, f.repo.RecordDelivery(t.Context(), &old))
	require.NoError(t, f.repo.RecordDelivery(t.Context(), &recent))

	deleted, err := f.repo.DeleteDeliveriesBefore(t.Context(), evalTime.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, _, err := f.repo.ListDeliveries(t.Context(), repository.DeliveryFilter{RuleID: 1})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, recent.DeliveredAt, remaining[0].DeliveredAt)
}

func TestEngine_StopIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.cfg.DeliveryRetentionDays = 30

	f.engine.StartDeliveryCleanup()
	f.engine.StartDeliveryCleanup() // restart must not leak or double-close
	f.engine.Stop()
	f.engine.Stop()
}
