package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zeez-dotcom/laundryao-analytics/internal/telemetry"
)

const (
	defaultMaxBatchSize  = 500
	defaultFlushInterval = 10 * time.Second
)

// WarehouseWriter persists a batch of events into one warehouse table. Writes
// must be idempotent per event ID so a retried batch cannot duplicate rows.
type WarehouseWriter interface {
	WriteBatch(ctx context.Context, table string, events []*Event) error
}

// WriterCloser is the optional shutdown hook a WarehouseWriter may expose.
type WriterCloser interface {
	Close() error
}

// SinkConfig configures the event sink.
type SinkConfig struct {
	// MaxBatchSize triggers an immediate flush when a table buffer reaches it.
	MaxBatchSize int
	// FlushInterval is the recurring timer-driven flush period.
	FlushInterval time.Duration
}

// Sink subscribes to the event bus, groups events by destination table, and
// batches them into warehouse writes on a timer or size threshold.
type Sink struct {
	bus     *Bus
	writer  WarehouseWriter
	cfg     SinkConfig
	log     *zap.Logger
	metrics *telemetry.Metrics

	mu      sync.Mutex
	buffers map[string][]*Event

	// flight serializes flushes: concurrent callers join the in-flight flush
	// instead of starting a second write to the same tables.
	flight singleflight.Group

	unsubscribe func()
	stopCh      chan struct{}
	stopOnce    sync.Once
	timerDone   chan struct{}
}

// NewSink creates a sink over the given bus and writer.
func NewSink(bus *Bus, writer WarehouseWriter, cfg SinkConfig, log *zap.Logger, metrics *telemetry.Metrics) *Sink {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	return &Sink{
		bus:       bus,
		writer:    writer,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		buffers:   make(map[string][]*Event),
		stopCh:    make(chan struct{}),
		timerDone: make(chan struct{}),
	}
}

// Start subscribes to the bus and starts the flush timer.
func (s *Sink) Start() {
	s.unsubscribe = s.bus.On(s.handleEvent)
	go s.runTimer()
}

// Stop cancels the timer, unsubscribes from the bus, performs one final flush,
// and closes the writer if it exposes a shutdown hook.
func (s *Sink) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.timerDone

	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	flushErr := s.Flush(ctx)

	if closer, ok := s.writer.(WriterCloser); ok {
		if err := closer.Close(); err != nil {
			return errors.Join(flushErr, fmt.Errorf("closing warehouse writer: %w", err))
		}
	}
	return flushErr
}

// handleEvent is the bus listener: it revalidates, routes by category, and
// buffers the event, kicking off an async flush when the buffer fills.
func (s *Sink) handleEvent(_ context.Context, event *Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("sink rejected event: %w", err)
	}

	table, ok := TableFor(event.Category)
	if !ok {
		// The sink is allow-listed to known tables; anything else is ignored.
		s.log.Debug("ignoring event outside warehouse allow-list",
			zap.String("event_id", event.EventID),
			zap.String("category", string(event.Category)))
		return nil
	}

	s.mu.Lock()
	s.buffers[table] = append(s.buffers[table], event)
	full := len(s.buffers[table]) >= s.cfg.MaxBatchSize
	s.mu.Unlock()

	if full {
		go func() {
			if err := s.Flush(context.Background()); err != nil {
				s.log.Error("size-triggered flush failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Flush writes all buffered events to the warehouse. Concurrent callers await
// the in-flight flush, then re-check whether new data accumulated while it ran
// and flush again if so. Failed batches stay buffered for the next attempt.
func (s *Sink) Flush(ctx context.Context) error {
	for {
		_, err, _ := s.flight.Do("flush", func() (any, error) {
			return nil, s.flushOnce(ctx)
		})
		if err != nil {
			return err
		}

		s.mu.Lock()
		pending := 0
		for _, events := range s.buffers {
			pending += len(events)
		}
		s.mu.Unlock()
		if pending == 0 {
			return nil
		}
	}
}

// flushOnce atomically takes the current buffers and writes each table's batch.
// One table's failure does not block the others; its rows are prepended back in
// original order for the next cycle.
func (s *Sink) flushOnce(ctx context.Context) error {
	s.mu.Lock()
	taken := s.buffers
	s.buffers = make(map[string][]*Event)
	s.mu.Unlock()

	var errs []error
	for table, events := range taken {
		if len(events) == 0 {
			continue
		}
		if err := s.writer.WriteBatch(ctx, table, events); err != nil {
			s.metrics.FlushFailed(table)
			s.log.Error("warehouse write failed, re-queueing batch",
				zap.String("table", table),
				zap.Int("rows", len(events)),
				zap.Error(err))
			s.requeue(table, events)
			errs = append(errs, fmt.Errorf("writing %d rows to %s: %w", len(events), table, err))
			continue
		}
		s.metrics.FlushSucceeded(table, len(events))
		s.log.Debug("flushed batch",
			zap.String("table", table),
			zap.Int("rows", len(events)))
	}
	return errors.Join(errs...)
}

// requeue prepends failed rows ahead of anything that arrived during the write,
// preserving arrival order across the retry.
func (s *Sink) requeue(table string, events []*Event) {
	s.mu.Lock()
	s.buffers[table] = append(events, s.buffers[table]...)
	s.mu.Unlock()
}

func (s *Sink) runTimer() {
	defer close(s.timerDone)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.log.Error("timer-triggered flush failed", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}
