// Package forecast provides the metric providers consumed by the alerting
// engine: a direct provider aggregating warehouse rows, and a forecast-backed
// provider wrapping a forecasting service behind the same interface.
package forecast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/zeez-dotcom/laundryao-analytics/internal/alerting"
)

// QualifierForecast selects forecasted values in a qualified metric
// identifier, e.g. "revenue:forecast". Unqualified metrics and
// "metric:actual" read the warehouse directly.
const (
	QualifierActual   = "actual"
	QualifierForecast = "forecast"
)

// Metric identifiers the warehouse provider can aggregate.
const (
	MetricRevenue              = "revenue"
	MetricOrders               = "orders"
	MetricDriverSpeed          = "telemetry.speed"
	MetricCampaignInteractions = "campaign.interactions"
)

// aggregationWindow is the trailing window metrics are computed over.
const aggregationWindow = 24 * time.Hour

// splitMetric separates a metric identifier from its optional qualifier.
func splitMetric(metric string) (base, qualifier string) {
	parts := strings.SplitN(metric, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return metric, QualifierActual
}

// WarehouseProvider computes metric values by aggregating warehouse rows over
// a trailing window. It implements alerting.MetricProvider.
type WarehouseProvider struct {
	db  *gorm.DB
	now func() time.Time
}

// NewWarehouseProvider creates a provider over the warehouse handle.
func NewWarehouseProvider(db *gorm.DB) *WarehouseProvider {
	return &WarehouseProvider{db: db, now: time.Now}
}

// MetricValue aggregates the requested metric. Unknown metrics and forecast
// qualifiers resolve to nil: data unavailable, not an error.
func (p *WarehouseProvider) MetricValue(ctx context.Context, query alerting.MetricQuery) (*float64, error) {
	base, qualifier := splitMetric(query.Metric)
	if qualifier == QualifierForecast {
		return nil, nil
	}

	since := p.now().Add(-aggregationWindow)

	switch base {
	case MetricRevenue:
		var cents *int64
		q := p.db.WithContext(ctx).
			Table("order_lifecycle_events").
			Where("occurred_at >= ? AND name = ?", since, "order.completed")
		if query.BranchID != "" {
			q = q.Where("branch_id = ?", query.BranchID)
		}
		if err := q.Select("SUM(total_cents)").Scan(&cents).Error; err != nil {
			return nil, fmt.Errorf("aggregating revenue: %w", err)
		}
		if cents == nil {
			return nil, nil
		}
		value := float64(*cents) / 100
		return &value, nil

	case MetricOrders:
		var count int64
		q := p.db.WithContext(ctx).
			Table("order_lifecycle_events").
			Where("occurred_at >= ? AND name = ?", since, "order.completed")
		if query.BranchID != "" {
			q = q.Where("branch_id = ?", query.BranchID)
		}
		if err := q.Count(&count).Error; err != nil {
			return nil, fmt.Errorf("counting orders: %w", err)
		}
		value := float64(count)
		return &value, nil

	case MetricDriverSpeed:
		var speed *float64
		q := p.db.WithContext(ctx).
			Table("driver_telemetry_events").
			Where("occurred_at >= ?", since)
		if query.BranchID != "" {
			q = q.Where("branch_id = ?", query.BranchID)
		}
		if err := q.Select("AVG(speed_kph)").Scan(&speed).Error; err != nil {
			return nil, fmt.Errorf("averaging driver speed: %w", err)
		}
		return speed, nil

	case MetricCampaignInteractions:
		var count int64
		q := p.db.WithContext(ctx).
			Table("campaign_interaction_events").
			Where("occurred_at >= ?", since)
		if query.Cohort != nil && query.Cohort.ID != "" {
			q = q.Where("cohort_id = ?", query.Cohort.ID)
		}
		if err := q.Count(&count).Error; err != nil {
			return nil, fmt.Errorf("counting campaign interactions: %w", err)
		}
		value := float64(count)
		return &value, nil

	default:
		return nil, nil
	}
}

// ForecastPoint is a forecasted metric value with its confidence band.
type ForecastPoint struct {
	Value      float64
	LowerBound float64
	UpperBound float64
}

// ForecastingService produces forecasted values and bands. Its internal
// statistics are outside this module; the engine only consumes this contract.
type ForecastingService interface {
	Forecast(ctx context.Context, metric, branchID string, cohort *alerting.Cohort, at time.Time) (*ForecastPoint, error)
}

// ForecastBackedProvider serves "metric:forecast" lookups from a forecasting
// service and delegates everything else to a direct provider. The alerting
// engine never knows which implementation it holds. It implements both
// alerting.MetricProvider and alerting.BandProvider.
type ForecastBackedProvider struct {
	svc    ForecastingService
	direct alerting.MetricProvider
	now    func() time.Time
}

// NewForecastBackedProvider wraps a forecasting service over a direct
// provider.
func NewForecastBackedProvider(svc ForecastingService, direct alerting.MetricProvider) *ForecastBackedProvider {
	return &ForecastBackedProvider{svc: svc, direct: direct, now: time.Now}
}

// MetricValue resolves forecast-qualified metrics via the forecasting service
// and falls back to the direct provider otherwise.
func (p *ForecastBackedProvider) MetricValue(ctx context.Context, query alerting.MetricQuery) (*float64, error) {
	base, qualifier := splitMetric(query.Metric)
	if qualifier != QualifierForecast {
		return p.direct.MetricValue(ctx, query)
	}

	point, err := p.svc.Forecast(ctx, base, query.BranchID, query.Cohort, p.now())
	if err != nil {
		return nil, fmt.Errorf("forecasting %s: %w", base, err)
	}
	if point == nil {
		return nil, nil
	}
	return &point.Value, nil
}

// ForecastBand exposes the forecast confidence band for outside_bounds rules.
func (p *ForecastBackedProvider) ForecastBand(ctx context.Context, query alerting.MetricQuery) (*alerting.Band, error) {
	base, _ := splitMetric(query.Metric)
	point, err := p.svc.Forecast(ctx, base, query.BranchID, query.Cohort, p.now())
	if err != nil {
		return nil, fmt.Errorf("forecasting band for %s: %w", base, err)
	}
	if point == nil {
		return nil, nil
	}
	return &alerting.Band{LowerBound: point.LowerBound, UpperBound: point.UpperBound}, nil
}
