package reporting_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentmesh/internal/domain"
	"intentmesh/internal/reporting"
	"intentmesh/internal/repo"
)

type recorder struct {
	mu        sync.Mutex
	delivered []string
	events    []domain.Event
	DeliverFn func(sub domain.HubSubscription) error
}

func (r *recorder) Deliver(_ context.Context, sub domain.HubSubscription, evt domain.Event) error {
	if r.DeliverFn != nil {
		if err := r.DeliverFn(sub); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.delivered = append(r.delivered, sub.ID)
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Delivered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.delivered...)
}

func newService(notifier reporting.Deliverer, subs ...domain.HubSubscription) (*reporting.Service, *repo.Reports) {
	reports := repo.NewReports()
	store := repo.NewSubscriptions()
	for _, s := range subs {
		store.Save(s)
	}
	now := func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	return reporting.New(reports, store, notifier, reporting.Options{Handler: "edge-7", Now: now}), reports
}

func TestRecordStateReport(t *testing.T) {
	rec := &recorder{}
	svc, reports := newService(rec, domain.HubSubscription{
		ID: "s1", EventTypes: []domain.EventType{domain.EventReportCreate},
	})
	intent := domain.Intent{ID: "I1", Name: "deploy llm"}

	rep, err := svc.RecordStateReport(context.Background(), intent, domain.StateReceived, "accepted", "")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ReportNumber)
	assert.Equal(t, domain.ReportTypeState, rep.ReportType)
	assert.Equal(t, domain.StateReceived, rep.HandlingState)
	assert.Equal(t, "edge-7", rep.Handler)
	assert.Equal(t, "2026-10-16T09:00:00Z", rep.GeneratedAt)

	stored, ok := reports.Get("I1", rep.ID)
	require.True(t, ok)
	assert.Equal(t, rep, stored)

	require.Equal(t, []string{"s1"}, rec.Delivered())
	evt := rec.events[0]
	assert.Equal(t, domain.EventReportCreate, evt.EventType)
	assert.Equal(t, "I1", evt.CorrelationID)
	body, ok := evt.Event["intentReport"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, rep.ID, body["id"])
}

func TestRecordStateReportRejectsUnknownState(t *testing.T) {
	svc, reports := newService(&recorder{})
	_, err := svc.RecordStateReport(context.Background(), domain.Intent{ID: "I1"}, "exploded", "", "")
	assert.True(t, domain.IsInvalid(err))
	assert.Equal(t, 1, reports.NextReportNumber("I1"))
}

func TestRecordObservationReportNumbersAfterState(t *testing.T) {
	svc, _ := newService(&recorder{})
	ctx := context.Background()
	_, err := svc.RecordStateReport(ctx, domain.Intent{ID: "I1"}, domain.StateReceived, "", "")
	require.NoError(t, err)

	metrics := []domain.ObservationMetric{{Name: "availability", Value: 99.5, Unit: "%"}}
	rep, err := svc.RecordObservationReport(ctx, "I1", metrics, "tick")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.ReportNumber)
	assert.Equal(t, domain.ReportTypeObservation, rep.ReportType)
	assert.Empty(t, rep.HandlingState)
	assert.Equal(t, metrics, rep.Metrics)

	metrics[0].Value = 0
	assert.Equal(t, 99.5, rep.Metrics[0].Value)

	_, err = svc.RecordObservationReport(ctx, "I1", nil, "")
	assert.True(t, domain.IsInvalid(err))
}

func TestConcurrentRecordingKeepsNumbersDense(t *testing.T) {
	rec := &recorder{}
	svc, reports := newService(rec, domain.HubSubscription{
		ID: "s1", EventTypes: []domain.EventType{domain.EventReportCreate},
	})
	ctx := context.Background()
	intent := domain.Intent{ID: "I1", Name: "x"}
	metrics := []domain.ObservationMetric{{Name: "availability", Value: 99, Unit: "%"}}

	const writers, each = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				var err error
				if (w+i)%2 == 0 {
					_, err = svc.RecordStateReport(ctx, intent, domain.StateUpdated, "", "")
				} else {
					_, err = svc.RecordObservationReport(ctx, intent.ID, metrics, "")
				}
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	all, total := reports.List("I1", 0, 0)
	require.Equal(t, writers*each, total)
	ids := map[string]bool{}
	for i, rep := range all {
		assert.Equal(t, i+1, rep.ReportNumber)
		ids[rep.ID] = true
	}
	assert.Len(t, ids, writers*each)
	assert.Len(t, rec.Delivered(), writers*each)
	assert.Equal(t, writers*each+1, reports.NextReportNumber("I1"))
}

func TestPublishDeliversToMatchingOnly(t *testing.T) {
	rec := &recorder{}
	svc, _ := newService(rec,
		domain.HubSubscription{ID: "create", EventTypes: []domain.EventType{domain.EventIntentCreate}},
		domain.HubSubscription{ID: "other-intent", EventTypes: []domain.EventType{domain.EventIntentCreate}, Query: "I9"},
		domain.HubSubscription{ID: "delete", EventTypes: []domain.EventType{domain.EventIntentDelete}},
	)
	svc.Publish(context.Background(), domain.EventIntentCreate, "I1", reporting.EventBody("intent", domain.Intent{ID: "I1"}))
	assert.Equal(t, []string{"create"}, rec.Delivered())
}

func TestPublishFailureDoesNotStopOthers(t *testing.T) {
	rec := &recorder{DeliverFn: func(sub domain.HubSubscription) error {
		if sub.ID == "broken" {
			return errors.New("connection refused")
		}
		return nil
	}}
	svc, _ := newService(rec,
		domain.HubSubscription{ID: "broken", EventTypes: []domain.EventType{domain.EventReportCreate}},
		domain.HubSubscription{ID: "healthy", EventTypes: []domain.EventType{domain.EventReportCreate}},
	)
	_, err := svc.RecordStateReport(context.Background(), domain.Intent{ID: "I1"}, domain.StateReceived, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"healthy"}, rec.Delivered())
}

func TestPublishBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	rec := &recorder{DeliverFn: func(domain.HubSubscription) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}}
	reports := repo.NewReports()
	subs := repo.NewSubscriptions()
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		subs.Save(domain.HubSubscription{ID: id, EventTypes: []domain.EventType{domain.EventIntentChange}})
	}
	svc := reporting.New(reports, subs, rec, reporting.Options{Concurrency: 2})
	svc.Publish(context.Background(), domain.EventIntentChange, "I1", nil)

	assert.Len(t, rec.Delivered(), 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
