package importer

import (
	"context"
	"sync"
	"time"
)

// ProgressConfig tunes the time-based progress estimate.
type ProgressConfig struct {
	PerRow   time.Duration
	Floor    time.Duration
	Interval time.Duration
	Ceiling  int
}

// DefaultProgressConfig matches the service defaults.
var DefaultProgressConfig = ProgressConfig{
	PerRow:   500 * time.Millisecond,
	Floor:    3 * time.Second,
	Interval: 500 * time.Millisecond,
	Ceiling:  90,
}

func (c ProgressConfig) withDefaults() ProgressConfig {
	d := DefaultProgressConfig
	if c.PerRow > 0 {
		d.PerRow = c.PerRow
	}
	if c.Floor > 0 {
		d.Floor = c.Floor
	}
	if c.Interval > 0 {
		d.Interval = c.Interval
	}
	if c.Ceiling > 0 && c.Ceiling < 100 {
		d.Ceiling = c.Ceiling
	}
	return d
}

// EstimateDuration is rows times the per-row constant, never below the floor.
func (c ProgressConfig) EstimateDuration(rows int) time.Duration {
	c = c.withDefaults()
	return max(time.Duration(rows)*c.PerRow, c.Floor)
}

// Phase labels a progress update.
type Phase string

const (
	PhaseQueued   Phase = "queued"
	PhaseRunning  Phase = "running"
	PhaseComplete Phase = "complete"
	PhaseFailed   Phase = "failed"
)

// ProgressUpdate is one value of the progress stream.
type ProgressUpdate struct {
	RunID   string `json:"run_id"`
	Percent int    `json:"percent"`
	Phase   Phase  `json:"phase"`
}

// Reporter publishes an estimated 0-100 progress value for a run. It is a
// wall-clock approximation: it climbs toward the ceiling on a fixed interval
// and jumps to 100 only when Complete is called. It knows nothing about
// which rows are actually done.
type Reporter struct {
	runID string
	cfg   ProgressConfig
	step  float64

	mu        sync.Mutex
	value     float64
	phase     Phase
	listeners []chan ProgressUpdate
	finished  bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewReporter sizes the estimate for rows rows.
func NewReporter(runID string, rows int, cfg ProgressConfig) *Reporter {
	cfg = cfg.withDefaults()
	estimate := cfg.EstimateDuration(rows)
	return &Reporter{
		runID: runID,
		cfg:   cfg,
		step:  100 * float64(cfg.Interval) / float64(estimate),
		phase: PhaseQueued,
		stop:  make(chan struct{}),
	}
}

// Start begins ticking. It returns immediately.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	r.phase = PhaseRunning
	r.mu.Unlock()
	r.notify()

	go func() {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				if r.advance() {
					r.notify()
				}
			}
		}
	}()
}

// advance moves the value one step, holding at the ceiling. It reports
// whether the visible percentage changed.
func (r *Reporter) advance() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return false
	}
	before := int(r.value)
	r.value = min(r.value+r.step, float64(r.cfg.Ceiling))
	return int(r.value) != before
}

// Complete sets the value to 100 and closes every subscriber.
func (r *Reporter) Complete() {
	r.finish(PhaseComplete, 100)
}

// Fail stops the reporter without reaching 100.
func (r *Reporter) Fail() {
	r.finish(PhaseFailed, -1)
}

func (r *Reporter) finish(phase Phase, value float64) {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.phase = phase
	if value >= 0 {
		r.value = value
	}
	r.mu.Unlock()

	r.notify()

	r.mu.Lock()
	for _, ch := range r.listeners {
		close(ch)
	}
	r.listeners = nil
	r.mu.Unlock()
}

// Snapshot returns the current update.
func (r *Reporter) Snapshot() ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reporter) snapshotLocked() ProgressUpdate {
	return ProgressUpdate{RunID: r.runID, Percent: int(r.value), Phase: r.phase}
}

// Subscribe returns a channel that receives the current value at once and
// every later change. The channel is closed when the run finishes.
func (r *Reporter) Subscribe() <-chan ProgressUpdate {
	ch := make(chan ProgressUpdate, 16)

	r.mu.Lock()
	defer r.mu.Unlock()

	ch <- r.snapshotLocked()
	if r.finished {
		close(ch)
		return ch
	}
	r.listeners = append(r.listeners, ch)
	return ch
}

// notify fans the current value out. Slow listeners miss intermediate
// values but never block the reporter.
func (r *Reporter) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.snapshotLocked()
	for _, ch := range r.listeners {
		select {
		case ch <- u:
		default:
		}
	}
}
