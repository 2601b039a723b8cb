package warehouse

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
	"gorm.io/gorm/clause"

	"github.com/zeez-dotcom/laundryao-analytics/internal/analytics"
)

// Writer batches analytics events into warehouse tables. It implements
// analytics.WarehouseWriter and the optional shutdown hook.
type Writer struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewWriter wraps an open gorm handle.
func NewWriter(db *gorm.DB, log *zap.Logger) *Writer {
	return &Writer{db: db, log: log}
}

// OpenMySQL opens the production warehouse connection.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening mysql warehouse: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a file-backed warehouse, used for embedded deployments
// and tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite warehouse: %w", err)
	}
	return db, nil
}

// Migrate creates the warehouse tables if they do not exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&OrderLifecycleRow{},
		&DriverTelemetryRow{},
		&CampaignInteractionRow{},
	); err != nil {
		return fmt.Errorf("migrating warehouse tables: %w", err)
	}
	return nil
}

// WriteBatch inserts one table's batch. The insert is idempotent per event ID:
// conflicting rows are skipped, never updated.
func (w *Writer) WriteBatch(ctx context.Context, table string, events []*analytics.Event) error {
	if len(events) == 0 {
		return nil
	}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}
	tx := w.db.WithContext(ctx).Clauses(onConflict)

	switch table {
	case OrderLifecycleRow{}.TableName():
		rows, err := orderRows(events)
		if err != nil {
			return err
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("inserting %d order lifecycle rows: %w", len(rows), err)
		}
	case DriverTelemetryRow{}.TableName():
		rows, err := telemetryRows(events)
		if err != nil {
			return err
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("inserting %d driver telemetry rows: %w", len(rows), err)
		}
	case CampaignInteractionRow{}.TableName():
		rows, err := campaignRows(events)
		if err != nil {
			return err
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("inserting %d campaign interaction rows: %w", len(rows), err)
		}
	default:
		return fmt.Errorf("unknown warehouse table %q", table)
	}
	return nil
}

// Close releases the underlying connection pool.
func (w *Writer) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return fmt.Errorf("resolving warehouse connection: %w", err)
	}
	return sqlDB.Close()
}

func orderRows(events []*analytics.Event) ([]OrderLifecycleRow, error) {
	rows := make([]OrderLifecycleRow, 0, len(events))
	for _, event := range events {
		payload, ok := event.Payload.(analytics.OrderLifecyclePayload)
		if !ok {
			return nil, fmt.Errorf("event %s: payload is %T, want OrderLifecyclePayload", event.EventID, event.Payload)
		}
		row := OrderLifecycleRow{
			EventID:    event.EventID,
			OccurredAt: event.OccurredAt,
			Source:     event.Source,
			Name:       event.Name,
			OrderID:    payload.OrderID,
			BranchID:   payload.BranchID,
			CustomerID: payload.CustomerID,
			FromStatus: payload.FromStatus,
			ToStatus:   payload.ToStatus,
			TotalCents: payload.TotalCents,
			Currency:   payload.Currency,
			Context:    contextJSON(event),
		}
		if event.Actor != nil {
			row.ActorID = event.Actor.ID
			row.ActorType = event.Actor.Type
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func telemetryRows(events []*analytics.Event) ([]DriverTelemetryRow, error) {
	rows := make([]DriverTelemetryRow, 0, len(events))
	for _, event := range events {
		payload, ok := event.Payload.(analytics.DriverTelemetryPayload)
		if !ok {
			return nil, fmt.Errorf("event %s: payload is %T, want DriverTelemetryPayload", event.EventID, event.Payload)
		}
		rows = append(rows, DriverTelemetryRow{
			EventID:      event.EventID,
			OccurredAt:   event.OccurredAt,
			Source:       event.Source,
			Name:         event.Name,
			DriverID:     payload.DriverID,
			BranchID:     payload.BranchID,
			Latitude:     payload.Latitude,
			Longitude:    payload.Longitude,
			SpeedKPH:     payload.SpeedKPH,
			BatteryLevel: payload.BatteryLevel,
			Status:       payload.Status,
			Context:      contextJSON(event),
		})
	}
	return rows, nil
}

func campaignRows(events []*analytics.Event) ([]CampaignInteractionRow, error) {
	rows := make([]CampaignInteractionRow, 0, len(events))
	for _, event := range events {
		payload, ok := event.Payload.(analytics.CampaignInteractionPayload)
		if !ok {
			return nil, fmt.Errorf("event %s: payload is %T, want CampaignInteractionPayload", event.EventID, event.Payload)
		}
		rows = append(rows, CampaignInteractionRow{
			EventID:     event.EventID,
			OccurredAt:  event.OccurredAt,
			Source:      event.Source,
			Name:        event.Name,
			CampaignID:  payload.CampaignID,
			CustomerID:  payload.CustomerID,
			Channel:     payload.Channel,
			Interaction: payload.Interaction,
			CohortID:    payload.CohortID,
			Context:     contextJSON(event),
		})
	}
	return rows, nil
}

func contextJSON(event *analytics.Event) string {
	if len(event.Context) == 0 {
		return ""
	}
	data, err := json.Marshal(event.Context)
	if err != nil {
		return ""
	}
	return string(data)
}
