package alerting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultTickInterval = time.Minute

// Scheduler invokes RunDueRules on a fixed tick. The tick only decides how
// promptly a due rule is noticed; the rules themselves carry their own
// schedules.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	log      *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler creates a scheduler over the engine. A non-positive interval
// defaults to one minute.
func NewScheduler(engine *Engine, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop. It also starts the engine's delivery-retention
// cleanup when configured.
func (s *Scheduler) Start() {
	s.engine.StartDeliveryCleanup()
	go s.run()
}

// Stop halts the tick loop and the engine's background goroutines, waiting
// for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
	s.engine.Stop()
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.engine.RunDueRules(context.Background()); err != nil {
				s.log.Error("scheduler tick failed", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}
