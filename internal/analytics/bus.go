package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zeez-dotcom/laundryao-analytics/internal/telemetry"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 250 * time.Millisecond
	defaultTopicPrefix = "analytics"
)

// Listener consumes published events. Listener errors are logged and never
// propagate to the publisher.
type Listener func(ctx context.Context, event *Event) error

// BrokerDriver is the durable delivery backend for the bus: any broker that can
// send one keyed message to a named destination.
type BrokerDriver interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, destination, key string, payload []byte) error
	Disconnect() error
}

// BusConfig configures the event bus.
type BusConfig struct {
	// Driver enables durable delivery when set. The bus runs in pure
	// in-process mode without one.
	Driver BrokerDriver
	// OwnsDriver marks the driver as created for this bus; Shutdown only
	// disconnects owned drivers, never injected ones.
	OwnsDriver bool
	// MaxAttempts bounds durable delivery tries per event.
	MaxAttempts int
	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration
	// TopicPrefix prefixes the per-category broker destination.
	TopicPrefix string
}

// Bus is the single in-process fan-out point for analytics events.
type Bus struct {
	cfg     BusConfig
	log     *zap.Logger
	metrics *telemetry.Metrics

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// NewBus creates an event bus. Zero config fields get defaults.
func NewBus(cfg BusConfig, log *zap.Logger, metrics *telemetry.Metrics) *Bus {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}
	return &Bus{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		listeners: make(map[int]Listener),
	}
}

// On registers a listener and returns its unregister function.
func (b *Bus) On(listener Listener) (unregister func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Publish validates the event, ships it to the broker when one is configured,
// and fans it out to every registered listener. Durable-delivery failure after
// exhausting retries fails the call; listener failures never do.
func (b *Bus) Publish(ctx context.Context, event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	if b.cfg.Driver != nil {
		if err := b.deliverDurable(ctx, event); err != nil {
			b.metrics.PublishFailed()
			return fmt.Errorf("durable delivery of event %s: %w", event.EventID, err)
		}
	}

	b.fanOut(ctx, event)
	b.metrics.EventPublished(string(event.Category))
	return nil
}

// PublishMany assigns missing event IDs and publishes sequentially. It stays
// sequential to bound memory and broker load; the first failure aborts the
// remaining batch.
func (b *Bus) PublishMany(ctx context.Context, events []*Event) error {
	for i, event := range events {
		if event.EventID == "" {
			event.EventID = uuid.NewString()
		}
		if err := b.Publish(ctx, event); err != nil {
			return fmt.Errorf("publishing event %d of %d: %w", i+1, len(events), err)
		}
	}
	return nil
}

// Shutdown disconnects the broker driver if the bus owns it and drops all
// listeners.
func (b *Bus) Shutdown() error {
	b.mu.Lock()
	b.listeners = make(map[int]Listener)
	b.mu.Unlock()

	if b.cfg.Driver != nil && b.cfg.OwnsDriver {
		if err := b.cfg.Driver.Disconnect(); err != nil {
			return fmt.Errorf("disconnecting broker driver: %w", err)
		}
	}
	return nil
}

func (b *Bus) deliverDurable(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	destination := b.cfg.TopicPrefix + "/" + string(event.Category)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.cfg.BaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		sendErr := b.cfg.Driver.Send(ctx, destination, event.EventID, payload)
		if sendErr != nil {
			b.log.Warn("broker send failed",
				zap.String("event_id", event.EventID),
				zap.String("destination", destination),
				zap.Int("attempt", attempt),
				zap.Error(sendErr))
		}
		return sendErr
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(b.cfg.MaxAttempts-1)), ctx))
}

// fanOut runs every listener concurrently and waits for all of them. A failing
// or panicking listener is logged and cannot affect the others.
func (b *Bus) fanOut(ctx context.Context, event *Event) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, listener := range listeners {
		wg.Add(1)
		go func(l Listener) {
			defer wg.Done()
			b.safeCall(ctx, l, event)
		}(listener)
	}
	wg.Wait()
}

func (b *Bus) safeCall(ctx context.Context, listener Listener, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.ListenerFailed()
			b.log.Error("listener panicked",
				zap.String("event_id", event.EventID),
				zap.Any("panic", r))
		}
	}()
	if err := listener(ctx, event); err != nil {
		b.metrics.ListenerFailed()
		b.log.Error("listener failed",
			zap.String("event_id", event.EventID),
			zap.String("category", string(event.Category)),
			zap.Error(err))
	}
}
