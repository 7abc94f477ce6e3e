package parallel

import (
	"sync"
	"time"

	"github.com/mwiater/aibff/internal/grading"
)

// Key identifies one grader-model pair in the ledger.
type Key struct {
	Grader string
	Model  string
}

// Ledger accumulates grading results and run counters. All fields are
// guarded by one mutex.
type Ledger struct {
	mutex     sync.Mutex
	results   map[Key][]grading.Result
	updated   map[Key]time.Time
	completed int
	failed    int
	total     int
	now       func() time.Time
}

// Snapshot is a point-in-time copy of the ledger.
type Snapshot struct {
	Results   map[Key][]grading.Result
	Updated   map[Key]time.Time
	Completed int
	Failed    int
	Total     int
}

// Version counts every recorded unit, successful or not.
func (s Snapshot) Version() int { return s.Completed + s.Failed }

// NewLedger returns an empty ledger expecting total units.
func NewLedger(total int) *Ledger {
	return &Ledger{
		results: make(map[Key][]grading.Result),
		updated: make(map[Key]time.Time),
		total:   total,
		now:     time.Now,
	}
}

// RecordSuccess appends result under the unit's grader-model pair and
// returns the new completed count.
func (l *Ledger) RecordSuccess(unit WorkUnit, result grading.Result) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	k := Key{Grader: unit.Grader, Model: unit.Model}
	l.results[k] = append(l.results[k], result)
	l.updated[k] = l.now().UTC()
	l.completed++
	return l.completed
}

// RecordFailure counts a unit that will not be attempted again and returns
// the new failed count.
func (l *Ledger) RecordFailure(unit WorkUnit) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.failed++
	return l.failed
}

// Counts returns the completed, failed and total counters.
func (l *Ledger) Counts() (completed, failed, total int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.completed, l.failed, l.total
}

// Version returns completed+failed.
func (l *Ledger) Version() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.completed + l.failed
}

// Snapshot copies the ledger. Result slices are copied so later appends do
// not leak into the snapshot.
func (l *Ledger) Snapshot() Snapshot {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	snap := Snapshot{
		Results:   make(map[Key][]grading.Result, len(l.results)),
		Updated:   make(map[Key]time.Time, len(l.updated)),
		Completed: l.completed,
		Failed:    l.failed,
		Total:     l.total,
	}
	for k, rs := range l.results {
		snap.Results[k] = append([]grading.Result(nil), rs...)
	}
	for k, t := range l.updated {
		snap.Updated[k] = t
	}
	return snap
}
