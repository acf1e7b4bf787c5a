package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	apperrors "github.com/lorrc/issues-insights-backend/internal/core/errors"
	"github.com/lorrc/issues-insights-backend/internal/core/ports"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/logging"
	"github.com/lorrc/issues-insights-backend/internal/infrastructure/metrics"
)

// State is the run state of a job.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Job is a named unit of periodic work.
type Job struct {
	Name    string
	Trigger Trigger
	Run     func(ctx context.Context) error

	// ReplaceExisting allows Register to overwrite a job with the same name.
	ReplaceExisting bool

	// Timeout bounds a single run when positive.
	Timeout time.Duration
}

func (j Job) validate() error {
	if j.Name == "" {
		return apperrors.ErrJobNameRequired
	}
	if j.Run == nil {
		return fmt.Errorf("%w: %s", apperrors.ErrJobFuncRequired, j.Name)
	}
	if j.Trigger == nil {
		return fmt.Errorf("%w: %s has no trigger", apperrors.ErrInvalidTrigger, j.Name)
	}
	return j.Trigger.validate()
}

// entry is the registration of a job; it is replaced as a whole.
type entry struct {
	job    Job
	anchor time.Time
	cancel context.CancelFunc
}

// jobState survives replacement of the job under the same name.
type jobState struct {
	running      bool
	lastRun      time.Time
	lastDuration time.Duration
	lastErr      error
	nextRun      time.Time
	runs         int64
	failures     int64
	skipped      int64
}

// Scheduler runs registered jobs on their triggers, one goroutine per job.
// A job never overlaps itself; a trigger that fires while the previous run is
// still in progress is skipped.
type Scheduler struct {
	clock   clockwork.Clock
	metrics *metrics.SchedulerMetrics
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	states  map[string]*jobState
	started bool

	// loopCtx stops trigger evaluation; runCtx aborts in-flight runs once the
	// shutdown grace period has passed.
	loopCtx   context.Context
	runCtx    context.Context
	runCancel context.CancelFunc
	stopLoops context.CancelFunc
	wg        *sync.WaitGroup
}

// Ensure Scheduler implements the JobStatusProvider interface.
var _ ports.JobStatusProvider = (*Scheduler)(nil)

// New creates a scheduler driven by clock.
func New(clock clockwork.Clock, m *metrics.SchedulerMetrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clock:   clock,
		metrics: m,
		logger:  logger.With("component", "scheduler"),
		entries: make(map[string]*entry),
		states:  make(map[string]*jobState),
	}
}

// Register adds a job. If the scheduler is running, the job starts
// immediately; replacing a job restarts its trigger loop.
func (s *Scheduler) Register(job Job) error {
	if err := job.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.entries[job.Name]
	if exists && !job.ReplaceExisting {
		return fmt.Errorf("%w: %s", apperrors.ErrJobExists, job.Name)
	}
	if exists && old.cancel != nil {
		old.cancel()
	}

	e := &entry{job: job, anchor: s.clock.Now()}
	s.entries[job.Name] = e
	if _, ok := s.states[job.Name]; !ok {
		s.states[job.Name] = &jobState{}
	}

	if s.started {
		s.launch(e)
	}

	s.logger.Info("job registered",
		"job", job.Name,
		"trigger", job.Trigger.String(),
		"replaced", exists,
	)
	return nil
}

// Start begins evaluating triggers. Cancelling ctx stops trigger evaluation
// but lets in-flight runs finish; use Stop for an orderly shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return apperrors.ErrSchedulerRunning
	}

	s.loopCtx, s.stopLoops = context.WithCancel(ctx)
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	s.wg = &sync.WaitGroup{}
	s.started = true

	for _, e := range s.entries {
		s.launch(e)
	}

	s.logger.Info("scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop halts trigger evaluation and waits for in-flight runs until ctx is
// done. On timeout the remaining runs are cancelled and a
// *errors.ShutdownError naming them is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return apperrors.ErrSchedulerStopped
	}
	s.started = false
	s.stopLoops()
	for _, e := range s.entries {
		e.cancel = nil
	}
	wg := s.wg
	runCancel := s.runCancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		runCancel()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		pending := s.runningJobs()
		runCancel()
		return &apperrors.ShutdownError{Jobs: pending}
	}
}

// RunNow runs a job immediately on the caller's goroutine and returns its
// error. It fails with ErrJobRunning if the job is already in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return apperrors.ErrSchedulerStopped
	}
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", apperrors.ErrJobNotFound, name)
	}
	wg := s.wg
	wg.Add(1)
	s.mu.Unlock()
	defer wg.Done()

	return s.execute(ctx, e.job)
}

// Status returns the state of a single job.
func (s *Scheduler) Status(name string) (ports.JobSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return ports.JobSnapshot{}, fmt.Errorf("%w: %s", apperrors.ErrJobNotFound, name)
	}
	return s.snapshot(e), nil
}

// Statuses returns the state of every registered job ordered by name.
func (s *Scheduler) Statuses() []ports.JobSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ports.JobSnapshot, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, s.snapshot(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// snapshot must be called with s.mu held.
func (s *Scheduler) snapshot(e *entry) ports.JobSnapshot {
	st := s.states[e.job.Name]
	snap := ports.JobSnapshot{
		Name:     e.job.Name,
		State:    string(StateIdle),
		Trigger:  e.job.Trigger.String(),
		Runs:     st.runs,
		Failures: st.failures,
		Skipped:  st.skipped,
	}
	if st.running {
		snap.State = string(StateRunning)
	}
	if !st.lastRun.IsZero() {
		lastRun := st.lastRun
		snap.LastRun = &lastRun
		snap.LastDuration = st.lastDuration.String()
	}
	if st.lastErr != nil {
		snap.LastError = st.lastErr.Error()
	}
	if s.started && !st.nextRun.IsZero() {
		nextRun := st.nextRun
		snap.NextRun = &nextRun
	}
	return snap
}

func (s *Scheduler) runningJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name, st := range s.states {
		if st.running {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// launch must be called with s.mu held.
func (s *Scheduler) launch(e *entry) {
	ctx, cancel := context.WithCancel(s.loopCtx)
	e.cancel = cancel

	runCtx := s.runCtx
	wg := s.wg
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop(ctx, runCtx, e)
	}()
}

// loop waits for each fire time and runs the job synchronously. Boundaries
// that pass while a run is in progress coalesce into one immediate run when
// it completes; the grid then resumes.
func (s *Scheduler) loop(ctx, runCtx context.Context, e *entry) {
	job := e.job
	next := job.Trigger.next(e.anchor, s.clock.Now())

	for {
		s.setNextRun(job.Name, next)

		if wait := next.Sub(s.clock.Now()); wait > 0 {
			timer := s.clock.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.Chan():
			}
		}
		if ctx.Err() != nil {
			return
		}

		if err := s.execute(runCtx, job); errors.Is(err, apperrors.ErrJobRunning) {
			s.skip(job.Name)
		}

		if ctx.Err() != nil {
			return
		}

		now := s.clock.Now()
		following := job.Trigger.next(e.anchor, next)
		if following.After(now) {
			next = following
		} else {
			next = now
		}
	}
}

func (s *Scheduler) setNextRun(name string, next time.Time) {
	s.mu.Lock()
	if st, ok := s.states[name]; ok {
		st.nextRun = next
	}
	s.mu.Unlock()
}

func (s *Scheduler) skip(name string) {
	s.mu.Lock()
	s.states[name].skipped++
	s.mu.Unlock()

	s.metrics.Skipped.WithLabelValues(name).Inc()
	s.logger.Warn("skipping job run, previous run still in progress", "job", name)
}

// execute runs job once under the at-most-one guard. It returns
// ErrJobRunning without running if the job is already in progress.
func (s *Scheduler) execute(ctx context.Context, job Job) error {
	s.mu.Lock()
	st := s.states[job.Name]
	if st.running {
		s.mu.Unlock()
		return apperrors.ErrJobRunning
	}
	st.running = true
	s.mu.Unlock()

	start := s.clock.Now()
	s.logger.Debug("job started", "job", job.Name)

	err := s.invoke(ctx, job)
	duration := s.clock.Since(start)

	s.mu.Lock()
	st.running = false
	st.lastRun = start
	st.lastDuration = duration
	st.lastErr = err
	st.runs++
	if err != nil {
		st.failures++
	}
	s.mu.Unlock()

	result := "success"
	if err != nil {
		result = "failure"
		s.logger.Error("job failed",
			"job", job.Name,
			"duration", duration,
			"error", err,
		)
	} else {
		s.logger.Info("job completed",
			"job", job.Name,
			"duration", duration,
		)
	}
	s.metrics.Runs.WithLabelValues(job.Name, result).Inc()
	s.metrics.RunDuration.WithLabelValues(job.Name).Observe(duration.Seconds())

	return err
}

// invoke is the per-run error boundary.
func (s *Scheduler) invoke(ctx context.Context, job Job) (err error) {
	ctx = logging.WithJob(ctx, job.Name)
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			logging.LogPanic(s.logger, p, "job", job.Name)
			err = fmt.Errorf("job %s panicked: %v", job.Name, p)
		}
	}()

	return job.Run(ctx)
}
