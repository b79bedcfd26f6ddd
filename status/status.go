// Package status tracks the state of the current harvest run.
package status

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/catalog-harvester/models"
)

var (
	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("status: run already in progress")
	// ErrNoRun is returned when a stop is requested with nothing running.
	ErrNoRun = errors.New("status: no run in progress")
)

// SourceProgress is the live progress of one source pipeline.
type SourceProgress struct {
	CategoriesTotal int    `json:"categoriesTotal"`
	CategoriesDone  int    `json:"categoriesDone"`
	CurrentCategory string `json:"currentCategory"`
	CurrentPage     int    `json:"currentPage"`
	PagesTotal      int    `json:"pagesTotal"`
	RecordsFound    int64  `json:"recordsFound"`
}

// Snapshot is a consistent copy of the run status.
type Snapshot struct {
	Running       bool                               `json:"isRunning"`
	StartedAt     time.Time                          `json:"startTime,omitzero"`
	EndedAt       time.Time                          `json:"endTime,omitzero"`
	Message       string                             `json:"message"`
	StopRequested bool                               `json:"stopRequested"`
	RecordsFound  int64                              `json:"productsFound"`
	Sources       map[models.SourceID]SourceProgress `json:"sources"`
	Statistics    *models.Statistics                 `json:"statistics,omitempty"`
}

type sourceState struct {
	progress SourceProgress
	records  atomic.Int64
}

// Tracker owns the run status. Counters are updated with atomic increments;
// everything else is guarded by mu.
type Tracker struct {
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	endedAt   time.Time
	message   string
	sources   map[models.SourceID]*sourceState
	stats     *models.Statistics

	stop    atomic.Bool
	records atomic.Int64
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{
		message: "Ready",
		sources: make(map[models.SourceID]*sourceState),
	}
}

// Begin marks a new run as started. It fails without touching any counter
// when a run is already active.
func (t *Tracker) Begin(message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrRunInProgress
	}
	t.running = true
	t.startedAt = time.Now()
	t.endedAt = time.Time{}
	t.message = message
	t.stats = nil
	t.sources = make(map[models.SourceID]*sourceState)
	t.stop.Store(false)
	t.records.Store(0)
	return nil
}

// Plan records how many categories each source will walk.
func (t *Tracker) Plan(totals map[models.SourceID]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for src, n := range totals {
		t.sourceLocked(src).progress.CategoriesTotal = n
	}
}

// RequestStop raises the cooperative stop flag for the active run.
func (t *Tracker) RequestStop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrNoRun
	}
	t.stop.Store(true)
	t.message = "Stop requested, finishing current page"
	return nil
}

// StopRequested reports whether the active run has been asked to stop.
func (t *Tracker) StopRequested() bool {
	return t.stop.Load()
}

// Running reports whether a run is active.
func (t *Tracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// AddRecords adds n harvested records to the source and global totals.
func (t *Tracker) AddRecords(src models.SourceID, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	state := t.sourceLocked(src)
	t.mu.Unlock()

	state.records.Add(int64(n))
	t.records.Add(int64(n))
}

// CategoryStarted records the category a source pipeline is walking.
func (t *Tracker) CategoryStarted(src models.SourceID, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &t.sourceLocked(src).progress
	p.CurrentCategory = label
	p.CurrentPage = 0
	p.PagesTotal = 0
}

// CategoryDone increments the finished category counter of a source.
func (t *Tracker) CategoryDone(src models.SourceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sourceLocked(src).progress.CategoriesDone++
}

// PageStarted records the page being fetched and updates the run message.
func (t *Tracker) PageStarted(src models.SourceID, label string, page, pagesTotal int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &t.sourceLocked(src).progress
	p.CurrentCategory = label
	p.CurrentPage = page
	p.PagesTotal = pagesTotal
	if !t.stop.Load() {
		t.message = fmt.Sprintf("%s: %s - Page %d/%d", src, label, page, pagesTotal)
	}
}

// SetMessage replaces the run message.
func (t *Tracker) SetMessage(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = message
}

// Finish ends the run successfully.
func (t *Tracker) Finish(stats models.Statistics, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.endedAt = time.Now()
	t.stats = &stats
	t.message = message
}

// Fail ends the run with err.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.endedAt = time.Now()
	t.message = fmt.Sprintf("Error: %v", err)
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Running:       t.running,
		StartedAt:     t.startedAt,
		EndedAt:       t.endedAt,
		Message:       t.message,
		StopRequested: t.stop.Load(),
		RecordsFound:  t.records.Load(),
		Sources:       make(map[models.SourceID]SourceProgress, len(t.sources)),
	}
	for src, state := range t.sources {
		p := state.progress
		p.RecordsFound = state.records.Load()
		snap.Sources[src] = p
	}
	if t.stats != nil {
		stats := *t.stats
		stats.PerSource = maps.Clone(t.stats.PerSource)
		snap.Statistics = &stats
	}
	return snap
}

func (t *Tracker) sourceLocked(src models.SourceID) *sourceState {
	state, ok := t.sources[src]
	if !ok {
		state = &sourceState{}
		t.sources[src] = state
	}
	return state
}
