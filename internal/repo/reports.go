package repo

import (
	"sort"
	"sync"

	"intentmesh/internal/domain"
)

// Reports keeps the reports of each intent ordered by report number.
type Reports struct {
	mu       sync.Mutex
	byIntent map[string][]domain.IntentReport
}

func NewReports() *Reports {
	return &Reports{byIntent: map[string][]domain.IntentReport{}}
}

// Save appends a copy of rep to its intent's reports.
func (r *Reports) Save(rep domain.IntentReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(rep)
}

func (r *Reports) insert(rep domain.IntentReport) {
	list := append(r.byIntent[rep.IntentID], rep.Clone())
	sort.SliceStable(list, func(i, j int) bool { return list[i].ReportNumber < list[j].ReportNumber })
	r.byIntent[rep.IntentID] = list
}

func (r *Reports) next(intentID string) int {
	list := r.byIntent[intentID]
	if len(list) == 0 {
		return 1
	}
	return list[len(list)-1].ReportNumber + 1
}

// NextReportNumber returns 1 for an intent without reports, else max+1.
func (r *Reports) NextReportNumber(intentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next(intentID)
}

// Append reserves the next report number of intentID, builds the report with
// it and stores it in the same critical section. Concurrent callers get
// distinct, consecutive numbers.
func (r *Reports) Append(intentID string, build func(number int) domain.IntentReport) domain.IntentReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep := build(r.next(intentID))
	rep.IntentID = intentID
	r.insert(rep)
	return rep.Clone()
}

// List returns one page of the reports of intentID and their total count.
func (r *Reports) List(intentID string, offset, limit int) ([]domain.IntentReport, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.byIntent[intentID]
	selected := page(all, offset, limit)
	out := make([]domain.IntentReport, len(selected))
	for i, rep := range selected {
		out[i] = rep.Clone()
	}
	return out, len(all)
}

func (r *Reports) Get(intentID, reportID string) (domain.IntentReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.byIntent[intentID] {
		if rep.ID == reportID {
			return rep.Clone(), true
		}
	}
	return domain.IntentReport{}, false
}

func (r *Reports) Delete(intentID, reportID string) (domain.IntentReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byIntent[intentID]
	for i, rep := range list {
		if rep.ID != reportID {
			continue
		}
		r.byIntent[intentID] = append(list[:i:i], list[i+1:]...)
		return rep, true
	}
	return domain.IntentReport{}, false
}

// DeleteAll drops every report of intentID and returns how many there were.
func (r *Reports) DeleteAll(intentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.byIntent[intentID])
	delete(r.byIntent, intentID)
	return n
}
