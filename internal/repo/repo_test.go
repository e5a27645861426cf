package repo_test

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentmesh/internal/domain"
	"intentmesh/internal/repo"
)

func sampleIntent(id string) domain.Intent {
	return domain.Intent{
		ID:         id,
		Name:       "intent " + id,
		Expression: domain.IntentExpression{Type: domain.ExpressionTypeTurtle, Value: "@prefix x: <http://x/> ."},
		Attributes: map[string]any{"labels": map[string]any{"tier": "gold"}, "tags": []any{"a"}},
	}
}

func TestIntentsCopyIsolation(t *testing.T) {
	r := repo.NewIntents()
	in := sampleIntent("I1")
	r.Save(in)

	in.Attributes["labels"].(map[string]any)["tier"] = "bronze"
	got, ok := r.Get("I1")
	require.True(t, ok)
	assert.Equal(t, "gold", got.Attributes["labels"].(map[string]any)["tier"])

	got.Attributes["tags"].([]any)[0] = "mutated"
	again, _ := r.Get("I1")
	assert.Equal(t, "a", again.Attributes["tags"].([]any)[0])
}

func TestIntentsCreateConflict(t *testing.T) {
	r := repo.NewIntents()
	require.NoError(t, r.Create(sampleIntent("I1")))
	err := r.Create(sampleIntent("I1"))
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.Equal(t, 1, r.Len())
}

func TestIntentsListAndDelete(t *testing.T) {
	r := repo.NewIntents()
	for _, id := range []string{"c", "a", "b"} {
		r.Save(sampleIntent(id))
	}
	items, total := r.List(0, 2)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "b", items[1].ID)

	items, _ = r.List(2, 10)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].ID)

	items, _ = r.List(5, 10)
	assert.Empty(t, items)

	removed, ok := r.Delete("b")
	assert.True(t, ok)
	assert.Equal(t, "b", removed.ID)
	_, ok = r.Delete("b")
	assert.False(t, ok)
	_, ok = r.Get("b")
	assert.False(t, ok)
}

func TestReportsNumbering(t *testing.T) {
	r := repo.NewReports()
	assert.Equal(t, 1, r.NextReportNumber("I1"))
	r.Save(domain.IntentReport{ID: "r3", IntentID: "I1", ReportNumber: 3})
	r.Save(domain.IntentReport{ID: "r1", IntentID: "I1", ReportNumber: 1})
	assert.Equal(t, 4, r.NextReportNumber("I1"))
	assert.Equal(t, 1, r.NextReportNumber("I2"))

	list, total := r.List("I1", 0, 0)
	assert.Equal(t, 2, total)
	assert.Equal(t, []int{1, 3}, []int{list[0].ReportNumber, list[1].ReportNumber})
}

func TestReportsAppendConcurrentIsGapFree(t *testing.T) {
	r := repo.NewReports()
	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Append("I1", func(n int) domain.IntentReport {
				return domain.IntentReport{ID: fmt.Sprintf("r-%d", i), ReportNumber: n, ReportType: domain.ReportTypeObservation}
			})
		}(i)
	}
	wg.Wait()

	list, total := r.List("I1", 0, 0)
	require.Equal(t, writers, total)
	numbers := make([]int, len(list))
	for i, rep := range list {
		numbers[i] = rep.ReportNumber
		assert.Equal(t, "I1", rep.IntentID)
	}
	assert.True(t, sort.IntsAreSorted(numbers))
	for i, n := range numbers {
		assert.Equal(t, i+1, n)
	}
}

func TestReportsGetDelete(t *testing.T) {
	r := repo.NewReports()
	for i := 1; i <= 3; i++ {
		r.Append("I1", func(n int) domain.IntentReport {
			return domain.IntentReport{ID: fmt.Sprintf("r%d", n), ReportNumber: n, Details: map[string]any{"k": "v"}}
		})
	}
	got, ok := r.Get("I1", "r2")
	require.True(t, ok)
	got.Details["k"] = "changed"
	again, _ := r.Get("I1", "r2")
	assert.Equal(t, "v", again.Details["k"])

	_, ok = r.Get("I2", "r2")
	assert.False(t, ok)

	_, ok = r.Delete("I1", "r2")
	assert.True(t, ok)
	list, total := r.List("I1", 0, 0)
	assert.Equal(t, 2, total)
	assert.Equal(t, "r1", list[0].ID)
	assert.Equal(t, "r3", list[1].ID)
	assert.Equal(t, 4, r.NextReportNumber("I1"))

	assert.Equal(t, 2, r.DeleteAll("I1"))
	_, total = r.List("I1", 0, 0)
	assert.Zero(t, total)
	assert.Equal(t, 1, r.NextReportNumber("I1"))
}

func TestSubscriptionsFindByEvent(t *testing.T) {
	r := repo.NewSubscriptions()
	r.Save(domain.HubSubscription{ID: "all", EventTypes: []domain.EventType{domain.EventReportCreate}})
	r.Save(domain.HubSubscription{ID: "scoped", EventTypes: []domain.EventType{domain.EventReportCreate}, Query: "I1"})
	r.Save(domain.HubSubscription{ID: "other", EventTypes: []domain.EventType{domain.EventIntentDelete}})

	ids := func(subs []domain.HubSubscription) []string {
		out := []string{}
		for _, s := range subs {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []string{"all", "scoped"}, ids(r.FindByEvent(domain.EventReportCreate, "I1")))
	assert.Equal(t, []string{"all", "scoped"}, ids(r.FindByEvent(domain.EventReportCreate, "xI1x")))
	assert.Equal(t, []string{"all"}, ids(r.FindByEvent(domain.EventReportCreate, "I2")))
	assert.Equal(t, []string{"other"}, ids(r.FindByEvent(domain.EventIntentDelete, "I2")))
	assert.Empty(t, r.FindByEvent(domain.EventIntentChange, "I1"))
}

func TestSubscriptionsCRUD(t *testing.T) {
	r := repo.NewSubscriptions()
	r.Save(domain.HubSubscription{ID: "s2", CreatedAt: "2026-01-02T00:00:00Z", Headers: map[string]string{"a": "1"}})
	r.Save(domain.HubSubscription{ID: "s1", CreatedAt: "2026-01-01T00:00:00Z"})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].ID)

	got, ok := r.Get("s2")
	require.True(t, ok)
	got.Headers["a"] = "2"
	again, _ := r.Get("s2")
	assert.Equal(t, "1", again.Headers["a"])

	_, ok = r.Delete("s2")
	assert.True(t, ok)
	_, ok = r.Get("s2")
	assert.False(t, ok)
}
