// Package progress reports engine progress at layer and pass granularity.
//
// Engines emit [Update] values through a [Reporter]. A [Tracker] keeps the
// latest update so a caller can poll it from another goroutine without the
// engine depending on any particular transport.
package progress

import (
	"sync"
	"time"
)

// Stage names used by the engines.
const (
	StageIndex     = "index"
	StageTrace     = "trace"
	StageTerminals = "terminals"
	StageBasin     = "basin"
	StageBranch    = "branch"
	StageMultiplex = "multiplex"
	StagePublish   = "publish"
)

// Update is one progress observation.
//
// Total is zero when the amount of work is not known in advance, which is the
// normal case for a basin: its depth is discovered while mapping it.
type Update struct {
	Stage  string `json:"stage"`
	Done   int64  `json:"done"`
	Total  int64  `json:"total,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Fraction returns Done/Total clamped to [0,1], or -1 when Total is unknown.
func (u Update) Fraction() float64 {
	if u.Total <= 0 {
		return -1
	}
	f := float64(u.Done) / float64(u.Total)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// Reporter receives progress updates. Implementations must be safe for
// concurrent use; engines call Report from their own goroutine.
type Reporter interface {
	Report(Update)
}

// Func adapts a function to the Reporter interface.
type Func func(Update)

// Report calls f(u).
func (f Func) Report(u Update) { f(u) }

// Nop discards all updates.
var Nop Reporter = Func(func(Update) {})

// OrNop returns r, or Nop when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop
	}
	return r
}

// Tracker stores the most recent update for polling.
type Tracker struct {
	mu      sync.RWMutex
	last    Update
	updated time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Report records u as the latest update.
func (t *Tracker) Report(u Update) {
	t.mu.Lock()
	t.last = u
	t.updated = time.Now()
	t.mu.Unlock()
}

// Snapshot returns the latest update and when it was recorded.
// The zero Update is returned before the first report.
func (t *Tracker) Snapshot() (Update, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.updated
}

// Fan returns a reporter that forwards every update to all non-nil reporters.
func Fan(reporters ...Reporter) Reporter {
	var rs []Reporter
	for _, r := range reporters {
		if r != nil {
			rs = append(rs, r)
		}
	}
	return Func(func(u Update) {
		for _, r := range rs {
			r.Report(u)
		}
	})
}

var _ Reporter = (*Tracker)(nil)
