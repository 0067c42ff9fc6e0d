package importer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/warehouse/internal/logging"
)

// ServiceConfig holds run limits for a Service.
type ServiceConfig struct {
	MaxFileSize  int64
	MaxRows      int
	Timeout      time.Duration
	RunRetention time.Duration
	Progress     ProgressConfig
	Profile      Profile

	// ShutdownGrace is how long Shutdown waits for cancelled runs to roll
	// back their current row.
	ShutdownGrace time.Duration
}

// Service ties the pipeline together for the HTTP and CLI front ends and
// tracks runs in flight.
type Service struct {
	executor   *Executor
	prechecker *Prechecker
	limiter    *RunLimiter
	metrics    *Metrics
	cfg        ServiceConfig

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	id        string
	rows      int
	startedAt time.Time
	reporter  *Reporter
	cancel    context.CancelFunc
	done      chan struct{}
	result    Result
	finished  time.Time
}

// RunStatus describes a run without waiting for it.
type RunStatus struct {
	ID         string         `json:"run_id"`
	Rows       int            `json:"rows"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Progress   ProgressUpdate `json:"progress"`
	Result     *Result        `json:"result,omitempty"`
}

// NewService creates a Service. metrics may be nil.
func NewService(executor *Executor, prechecker *Prechecker, limiter *RunLimiter, metrics *Metrics, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if cfg.RunRetention <= 0 {
		cfg.RunRetention = 30 * time.Minute
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	if cfg.Profile.Key == "" {
		cfg.Profile = InventoryProfile
	}
	return &Service{
		executor:   executor,
		prechecker: prechecker,
		limiter:    limiter,
		metrics:    metrics,
		cfg:        cfg,
		runs:       make(map[string]*activeRun),
	}
}

// Profile returns the field catalog offered to the mapper.
func (s *Service) Profile() Profile {
	return s.cfg.Profile
}

// ResolveProfile returns the registered catalog for key, or the default
// catalog when key is empty.
func (s *Service) ResolveProfile(key string) (Profile, error) {
	if key == "" {
		return s.cfg.Profile, nil
	}
	p, ok := GetProfile(key)
	if !ok {
		return Profile{}, fmt.Errorf("%w %q", ErrUnknownProfile, key)
	}
	return p, nil
}

// ParseUpload parses a file and proposes a column mapping for it against
// the catalog named by profileKey ("" for the default).
func (s *Service) ParseUpload(r io.Reader, fileName, profileKey string) (*ParsedFile, []ColumnMapping, error) {
	profile, err := s.ResolveProfile(profileKey)
	if err != nil {
		return nil, nil, err
	}
	file, err := Parse(r, fileName, s.cfg.MaxFileSize)
	if err != nil {
		return nil, nil, err
	}
	return file, AutoMapProfile(file.Headers, profile), nil
}

// Precheck reports existing pallet numbers and SKUs in the mapped columns.
func (s *Service) Precheck(ctx context.Context, rows []ParsedRow, mapping []ColumnMapping) (ExistingKeys, error) {
	return s.prechecker.Check(ctx, rows, mapping)
}

// CheckPallets reports which pallet numbers already exist.
func (s *Service) CheckPallets(ctx context.Context, values []string) ([]string, error) {
	return s.prechecker.CheckPallets(ctx, values)
}

// CheckSKUs reports which SKUs already exist.
func (s *Service) CheckSKUs(ctx context.Context, values []string) ([]string, error) {
	return s.prechecker.CheckSKUs(ctx, values)
}

// Execute runs an import and waits for its result.
func (s *Service) Execute(ctx context.Context, rows []MappedRow) (Result, error) {
	id, err := s.StartRun(ctx, rows)
	if err != nil {
		return Result{}, err
	}
	res, err := s.Wait(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return *res, nil
}

// DryRun validates rows without importing them.
func (s *Service) DryRun(rows []MappedRow) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrEmptyImport
	}
	return s.executor.Validate(rows), nil
}

// StartRun queues rows for import and returns the run ID at once. The run
// is detached from ctx cancellation: an abandoned request does not stop it,
// only the import timeout or Cancel does.
func (s *Service) StartRun(ctx context.Context, rows []MappedRow) (string, error) {
	if len(rows) == 0 {
		return "", ErrEmptyImport
	}
	if s.cfg.MaxRows > 0 && len(rows) > s.cfg.MaxRows {
		return "", fmt.Errorf("invalid request: %d rows exceeds the limit of %d", len(rows), s.cfg.MaxRows)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		s.metrics.observeRun("rejected", 0)
		return "", err
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(logging.WithRun(ctx, id)), s.cfg.Timeout)

	run := &activeRun{
		id:        id,
		rows:      len(rows),
		startedAt: time.Now(),
		reporter:  NewReporter(id, len(rows), s.cfg.Progress),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()

	logging.FromContext(runCtx).Info("import started", "rows", len(rows))
	run.reporter.Start(runCtx)
	s.metrics.runStarted()

	go s.execute(runCtx, run, rows)
	return id, nil
}

func (s *Service) execute(ctx context.Context, run *activeRun, rows []MappedRow) {
	defer func() {
		run.cancel()
		s.limiter.Release()
		s.metrics.runFinished()
		close(run.done)
		s.forget(run.id, s.cfg.RunRetention)
	}()

	run.result = s.executor.Run(ctx, rows)
	run.finished = time.Now()

	outcome := "complete"
	if ctx.Err() != nil {
		outcome = "cancelled"
	}
	s.metrics.observeRun(outcome, run.finished.Sub(run.startedAt))
	run.reporter.Complete()
}

func (s *Service) lookup(id string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// SubscribeProgress streams progress for a run. The channel closes when
// the run finishes.
func (s *Service) SubscribeProgress(id string) (<-chan ProgressUpdate, error) {
	run, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return run.reporter.Subscribe(), nil
}

// Progress returns the current progress without blocking.
func (s *Service) Progress(id string) (ProgressUpdate, error) {
	run, err := s.lookup(id)
	if err != nil {
		return ProgressUpdate{}, err
	}
	return run.reporter.Snapshot(), nil
}

// Status returns the run's state, including its result when finished.
func (s *Service) Status(id string) (RunStatus, error) {
	run, err := s.lookup(id)
	if err != nil {
		return RunStatus{}, err
	}

	st := RunStatus{
		ID:        run.id,
		Rows:      run.rows,
		StartedAt: run.startedAt,
		Progress:  run.reporter.Snapshot(),
	}
	select {
	case <-run.done:
		res := run.result
		finished := run.finished
		st.Result = &res
		st.FinishedAt = &finished
	default:
	}
	return st, nil
}

// Wait blocks until the run finishes or ctx ends.
func (s *Service) Wait(ctx context.Context, id string) (*Result, error) {
	run, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.done:
		res := run.result
		return &res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops a run before its next row.
func (s *Service) Cancel(id string) error {
	run, err := s.lookup(id)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// Limiter exposes the run limiter for status reporting.
func (s *Service) Limiter() *RunLimiter {
	return s.limiter
}

// Shutdown waits for runs in flight. If ctx ends first the remaining runs
// are cancelled and their unprocessed rows recorded as cancelled; Shutdown
// then waits up to ShutdownGrace for each of them to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.limiter.WaitForDrain(ctx)
	if err == nil {
		return nil
	}

	s.mu.RLock()
	pending := make([]*activeRun, 0, len(s.runs))
	for _, run := range s.runs {
		run.cancel()
		pending = append(pending, run)
	}
	s.mu.RUnlock()

	// Storage must stay open until each cancelled run has rolled back.
	grace := time.NewTimer(s.cfg.ShutdownGrace)
	defer grace.Stop()
	for _, run := range pending {
		select {
		case <-run.done:
		case <-grace.C:
			logging.FromContext(ctx).Warn("import still running after shutdown grace", "run_id", run.id)
			return err
		}
	}
	return err
}

// forget drops a finished run after the retention delay.
func (s *Service) forget(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
	})
}
