// Package reporting records intent reports and fans hub events out to the
// matching subscribers.
package reporting

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"intentmesh/internal/domain"
	"intentmesh/internal/logging"
	"intentmesh/internal/repo"
)

// Deliverer sends one event to one subscriber.
type Deliverer interface {
	Deliver(ctx context.Context, sub domain.HubSubscription, evt domain.Event) error
}

type Options struct {
	// Handler names this backend in reports and events.
	Handler string
	// Concurrency bounds the deliveries in flight for one event.
	Concurrency int
	Logger      *zap.Logger
	Now         func() time.Time
}

type Service struct {
	reports     *repo.Reports
	subs        *repo.Subscriptions
	notifier    Deliverer
	handler     string
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

func New(reports *repo.Reports, subs *repo.Subscriptions, notifier Deliverer, opts Options) *Service {
	s := &Service{
		reports:     reports,
		subs:        subs,
		notifier:    notifier,
		handler:     opts.Handler,
		concurrency: opts.Concurrency,
		logger:      logging.OrNop(opts.Logger),
		now:         opts.Now,
	}
	if s.concurrency <= 0 {
		s.concurrency = 8
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// RecordStateReport stores the next STATE report of an intent and notifies
// REPORT_CREATE subscribers before returning.
func (s *Service) RecordStateReport(ctx context.Context, intent domain.Intent, state domain.HandlingState, summary, reason string) (domain.IntentReport, error) {
	if !state.Valid() {
		return domain.IntentReport{}, domain.Invalidf("unknown handling state %q", state)
	}
	rep := s.reports.Append(intent.ID, func(n int) domain.IntentReport {
		return domain.IntentReport{
			ID:            uuid.NewString(),
			ReportNumber:  n,
			ReportType:    domain.ReportTypeState,
			GeneratedAt:   s.timestamp(),
			HandlingState: state,
			Reason:        reason,
			Handler:       s.handler,
			Owner:         intent.Name,
			Summary:       summary,
		}
	})
	s.logger.Info("state report recorded",
		zap.String("intent", intent.ID), zap.Int("number", rep.ReportNumber), zap.String("state", string(state)))
	s.Publish(ctx, domain.EventReportCreate, intent.ID, EventBody("intentReport", rep))
	return rep, nil
}

// RecordObservationReport stores the next OBSERVATION report of an intent and
// notifies REPORT_CREATE subscribers before returning.
func (s *Service) RecordObservationReport(ctx context.Context, intentID string, metrics []domain.ObservationMetric, summary string) (domain.IntentReport, error) {
	if len(metrics) == 0 {
		return domain.IntentReport{}, domain.Invalidf("observation report needs at least one metric")
	}
	rep := s.reports.Append(intentID, func(n int) domain.IntentReport {
		r := domain.IntentReport{
			ID:           uuid.NewString(),
			ReportNumber: n,
			ReportType:   domain.ReportTypeObservation,
			GeneratedAt:  s.timestamp(),
			Handler:      s.handler,
			Summary:      summary,
			Metrics:      metrics,
		}
		return r.Clone()
	})
	s.logger.Debug("observation report recorded",
		zap.String("intent", intentID), zap.Int("number", rep.ReportNumber))
	s.Publish(ctx, domain.EventReportCreate, intentID, EventBody("intentReport", rep))
	return rep, nil
}

// Publish delivers one event about intentID to every matching subscription
// and waits for all deliveries. Failures are logged and dropped.
func (s *Service) Publish(ctx context.Context, eventType domain.EventType, intentID string, body map[string]any) {
	subs := s.subs.FindByEvent(eventType, intentID)
	if len(subs) == 0 {
		return
	}
	evt := domain.Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventTime:     s.timestamp(),
		Event:         body,
		CorrelationID: intentID,
		Domain:        s.handler,
	}
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(s.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			if err := s.notifier.Deliver(gctx, sub, evt); err != nil {
				s.logger.Warn("notification delivery failed",
					zap.String("subscription", sub.ID),
					zap.String("callback", sub.Callback),
					zap.String("event", string(eventType)),
					zap.Error(err))
				return nil
			}
			s.logger.Debug("notification delivered",
				zap.String("subscription", sub.ID), zap.String("event", string(eventType)))
			return nil
		})
	}
	_ = g.Wait()
}

// EventBody wraps a resource under key as a JSON object.
func EventBody(key string, resource any) map[string]any {
	data, err := json.Marshal(resource)
	if err != nil {
		return map[string]any{key: nil}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return map[string]any{key: nil}
	}
	return map[string]any{key: v}
}
