package jobs

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/nlink/pkg/artifact"
	"github.com/matzehuels/nlink/pkg/errors"
	"github.com/matzehuels/nlink/pkg/observability"
	"github.com/matzehuels/nlink/pkg/pipeline"
	"github.com/matzehuels/nlink/pkg/progress"
)

// ID identifies a submitted job.
type ID string

// State is the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Done reports whether s is final.
func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Snapshot is a point-in-time view of a job.
type Snapshot struct {
	ID    ID    `json:"id"`
	Spec  Spec  `json:"spec"`
	State State `json:"state"`

	Stage string `json:"stage,omitempty"`
	// Fraction is the completed share of the current stage, or -1 when
	// the stage has no known total.
	Fraction float64 `json:"fraction"`
	Detail   string  `json:"detail,omitempty"`

	Error     string   `json:"error,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
	Locations []string `json:"locations,omitempty"`
	Truncated bool     `json:"truncated"`

	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

type job struct {
	id      ID
	spec    Spec
	tracker *progress.Tracker
	cancel  context.CancelFunc
	done    chan struct{}

	// guarded by Manager.mu
	state     State
	err       error
	locations []string
	truncated bool
	submitted time.Time
	started   time.Time
	finished  time.Time
}

// Manager runs submitted jobs in the background.
//
// At most Workers jobs run at once; the rest wait in Submit order. A spec
// submitted while an identical one is queued or running returns the
// existing job's ID.
type Manager struct {
	runner *pipeline.Runner
	sink   artifact.Publisher
	logger *log.Logger
	sem    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[ID]*job
	active map[string]ID
}

// NewManager creates a manager. workers < 1 means one worker.
func NewManager(r *pipeline.Runner, sink artifact.Publisher, workers int, logger *log.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = r.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner: r,
		sink:   sink,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[ID]*job),
		active: make(map[string]ID),
	}
}

// Submit validates spec and queues it.
func (m *Manager) Submit(spec Spec) (ID, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if m.ctx.Err() != nil {
		return "", errors.New(errors.ErrCodeCancelled, "manager is closed")
	}

	key := spec.Key()
	m.mu.Lock()
	if id, ok := m.active[key]; ok {
		m.mu.Unlock()
		return id, nil
	}
	ctx, cancel := context.WithCancel(m.ctx)
	j := &job{
		id:        ID(uuid.NewString()),
		spec:      spec,
		tracker:   progress.NewTracker(),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateQueued,
		submitted: time.Now(),
	}
	m.jobs[j.id] = j
	m.active[key] = j.id
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, j)
	return j.id, nil
}

func (m *Manager) run(ctx context.Context, j *job) {
	defer m.wg.Done()
	defer close(j.done)
	defer j.cancel()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(j, nil, false, errors.Cancelled(err, "queue"))
		return
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	j.state = StateRunning
	j.started = time.Now()
	m.mu.Unlock()

	kind := string(j.spec.Kind)
	observability.Jobs().OnJobStart(ctx, kind)
	logger := m.logger.With("job", j.id, "kind", kind)
	logger.Debug("job started", "spec", j.spec.Key())

	arts, err := Execute(ctx, m.runner, j.spec, j.tracker)
	var locs []string
	truncated := false
	if err == nil {
		for _, a := range arts {
			a.Provenance.JobID = string(j.id)
			truncated = truncated || a.Provenance.Truncated
		}
		locs, err = publishAll(ctx, m.sink, arts, j.tracker)
	}
	m.finish(j, locs, truncated, err)

	m.mu.Lock()
	state, elapsed := j.state, j.finished.Sub(j.started)
	m.mu.Unlock()
	observability.Jobs().OnJobComplete(ctx, kind, string(state), elapsed)
	if err != nil {
		logger.Warn("job failed", "state", state, "err", err)
	} else {
		logger.Info("job finished", "locations", locs, "truncated", truncated, "duration", elapsed.Round(time.Millisecond))
	}
}

func (m *Manager) finish(j *job, locs []string, truncated bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.finished = time.Now()
	if j.started.IsZero() {
		j.started = j.finished
	}
	j.err = err
	j.truncated = truncated
	switch {
	case err == nil:
		j.state = StateSucceeded
		j.locations = locs
	case errors.IsCancelled(err):
		j.state = StateCancelled
	default:
		j.state = StateFailed
	}
	if m.active[j.spec.Key()] == j.id {
		delete(m.active, j.spec.Key())
	}
}

// Status returns a snapshot of job id.
func (m *Manager) Status(id ID) (Snapshot, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, errors.New(errors.ErrCodeJobNotFound, "job %s not found", id)
	}
	snap := Snapshot{
		ID:          j.id,
		Spec:        j.spec,
		State:       j.state,
		Locations:   j.locations,
		Truncated:   j.truncated,
		SubmittedAt: j.submitted,
		StartedAt:   j.started,
		FinishedAt:  j.finished,
	}
	if j.err != nil {
		snap.Error = errors.UserMessage(j.err)
		snap.ErrorCode = string(errors.GetCode(j.err))
	}
	m.mu.Unlock()

	u, _ := j.tracker.Snapshot()
	snap.Stage, snap.Detail, snap.Fraction = u.Stage, u.Detail, u.Fraction()
	if snap.State == StateSucceeded {
		snap.Fraction = 1
	}
	return snap, nil
}

// Wait blocks until job id is finished or ctx is done.
func (m *Manager) Wait(ctx context.Context, id ID) (Snapshot, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, errors.New(errors.ErrCodeJobNotFound, "job %s not found", id)
	}
	select {
	case <-j.done:
		return m.Status(id)
	case <-ctx.Done():
		return Snapshot{}, errors.Cancelled(ctx.Err(), "wait")
	}
}

// Cancel requests cancellation of job id. The job stops at its next layer
// or pass boundary and publishes nothing. Cancelling a finished job is a
// no-op.
func (m *Manager) Cancel(id ID) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return errors.New(errors.ErrCodeJobNotFound, "job %s not found", id)
	}
	j.cancel()
	return nil
}

// List returns snapshots of every known job in submission order.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	ids := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		ids = append(ids, j)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(ids))
	for _, j := range ids {
		if s, err := m.Status(j.id); err == nil {
			out = append(out, s)
		}
	}
	sortSnapshots(out)
	return out
}

// Close cancels every job and waits for them to stop.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func sortSnapshots(s []Snapshot) {
	slices.SortFunc(s, func(a, b Snapshot) int {
		if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
