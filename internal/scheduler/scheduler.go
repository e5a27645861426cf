// Package scheduler runs one background observation task per intent.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"intentmesh/internal/config"
	"intentmesh/internal/domain"
	"intentmesh/internal/logging"
)

// Recorder persists an observation and notifies subscribers.
type Recorder interface {
	RecordObservationReport(ctx context.Context, intentID string, metrics []domain.ObservationMetric, summary string) (domain.IntentReport, error)
}

// MetricSource produces the metric observed for an intent at one tick.
type MetricSource interface {
	Sample(ctx context.Context, intent domain.Intent, tick int) (domain.ObservationMetric, error)
}

// IntentLookup reads the current version of an intent.
type IntentLookup interface {
	Get(id string) (domain.Intent, bool)
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Scheduler struct {
	recorder Recorder
	source   MetricSource
	interval time.Duration
	lookup   IntentLookup
	logger   *zap.Logger

	mu    sync.Mutex
	tasks map[string]*task
}

// New creates a scheduler that observes every interval. Callers apply any
// configured floor to interval; a non-positive interval falls back to
// config.MinObservationInterval.
func New(recorder Recorder, source MetricSource, interval time.Duration, logger *zap.Logger) *Scheduler {
	if source == nil {
		source = NewSyntheticSource(0)
	}
	if interval <= 0 {
		interval = config.MinObservationInterval
	}
	return &Scheduler{
		recorder: recorder,
		source:   source,
		interval: interval,
		logger:   logging.OrNop(logger),
		tasks:    map[string]*task{},
	}
}

// WithLookup makes every tick re-read its intent from l. A task whose intent
// is gone stops itself.
func (s *Scheduler) WithLookup(l IntentLookup) *Scheduler {
	s.lookup = l
	return s
}

// StartForIntent starts observing intent. It returns false when a task for
// the intent is already running.
func (s *Scheduler) StartForIntent(intent domain.Intent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[intent.ID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[intent.ID] = t
	go s.run(ctx, intent.Clone(), t)
	s.logger.Info("observation started", zap.String("intent", intent.ID), zap.Duration("interval", s.interval))
	return true
}

// StopForIntent cancels the task of intentID and waits up to one interval
// plus a second for it to finish. It reports whether no task is left
// running; an absent task counts as stopped.
func (s *Scheduler) StopForIntent(intentID string) bool {
	s.mu.Lock()
	t, ok := s.tasks[intentID]
	if ok {
		delete(s.tasks, intentID)
	}
	s.mu.Unlock()
	if !ok {
		return true
	}
	t.cancel()
	wait := time.NewTimer(s.interval + time.Second)
	defer wait.Stop()
	select {
	case <-t.done:
		s.logger.Info("observation stopped", zap.String("intent", intentID))
		return true
	case <-wait.C:
		s.logger.Warn("observation task did not acknowledge stop", zap.String("intent", intentID))
		return false
	}
}

// StopAll stops every task and waits for them.
func (s *Scheduler) StopAll() {
	var wg sync.WaitGroup
	for _, id := range s.Active() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.StopForIntent(id)
		}(id)
	}
	wg.Wait()
}

// Active returns the observed intent ids in order.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) run(ctx context.Context, intent domain.Intent, t *task) {
	defer close(t.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.lookup != nil {
			current, ok := s.lookup.Get(intent.ID)
			if !ok {
				s.forget(intent.ID, t)
				s.logger.Info("observation stopped, intent is gone", zap.String("intent", intent.ID))
				return
			}
			intent = current
		}
		s.observe(ctx, intent, tick)
	}
}

// forget drops t from the task table unless a newer task replaced it.
func (s *Scheduler) forget(intentID string, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[intentID] == t {
		delete(s.tasks, intentID)
	}
	t.cancel()
}

func (s *Scheduler) observe(ctx context.Context, intent domain.Intent, tick int) {
	metric, err := s.source.Sample(ctx, intent, tick)
	if err != nil {
		s.logger.Warn("metric sample failed", zap.String("intent", intent.ID), zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	summary := fmt.Sprintf("observation %d: %s = %g%s", tick, metric.Name, metric.Value, metric.Unit)
	if _, err := s.recorder.RecordObservationReport(ctx, intent.ID, []domain.ObservationMetric{metric}, summary); err != nil {
		s.logger.Warn("observation report failed", zap.String("intent", intent.ID), zap.Error(err))
	}
}
