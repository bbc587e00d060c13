package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"civic-automation/internal/domain"
)

// recheckInterval is used while a job is disabled so that re-enabling it is
// picked up without a restart.
const recheckInterval = time.Minute

// Sweep is one periodic job. The returned metadata is stored on the execution.
type Sweep interface {
	Run(ctx context.Context) (domain.JobMetadata, error)
}

type SweepFunc func(ctx context.Context) (domain.JobMetadata, error)

func (f SweepFunc) Run(ctx context.Context) (domain.JobMetadata, error) { return f(ctx) }

// Timer is the handle of an armed one-shot timer.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Scheduler struct {
	tracker   Service
	sweeps    map[domain.JobType]Sweep
	logger    *zap.Logger
	now       func() time.Time
	afterFunc AfterFunc

	mu       sync.Mutex
	timers   map[domain.JobType]Timer
	nextFire map[domain.JobType]time.Time
	started  bool
	stopped  bool
	baseCtx  context.Context
	inflight sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = fn }
}

func NewScheduler(tracker Service, sweeps map[domain.JobType]Sweep, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		tracker:   tracker,
		sweeps:    sweeps,
		logger:    logger,
		now:       time.Now,
		afterFunc: realAfterFunc,
		timers:    make(map[domain.JobType]Timer),
		nextFire:  make(map[domain.JobType]time.Time),
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start fails executions orphaned by a previous process and arms one timer per
// registered job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.baseCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	if _, err := s.tracker.RecoverOrphanedExecutions(ctx); err != nil {
		s.logger.Error("scheduler.recover_failed", zap.Error(err))
	}

	for _, jobType := range domain.AllJobTypes {
		if _, ok := s.sweeps[jobType]; ok {
			s.arm(jobType)
		}
	}
	s.logger.Info("scheduler.started", zap.Int("jobs", len(s.sweeps)))
	return nil
}

// Stop disarms every timer and waits for running sweeps or ctx expiry.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for jobType, t := range s.timers {
		t.Stop()
		delete(s.timers, jobType)
		delete(s.nextFire, jobType)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler.stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger starts a run of jobType outside its timer. The execution row is
// created before Trigger returns, so a run already in flight is reported as
// domain.ErrJobAlreadyRunning; the sweep itself continues in the background
// and re-arms the job's timer when it finishes.
func (s *Scheduler) Trigger(ctx context.Context, jobType domain.JobType) (*domain.JobExecution, error) {
	sweep, ok := s.sweeps[jobType]
	if !ok {
		return nil, domain.ErrInvalidJobType
	}
	if !s.enter() {
		return nil, errors.New("scheduler stopped")
	}

	exec, err := s.tracker.StartJobExecution(ctx, jobType, domain.JobMetadata{"trigger": "manual"})
	if err != nil {
		s.inflight.Done()
		return nil, err
	}

	snapshot := *exec
	go func() {
		defer s.inflight.Done()
		// The interval restarts from the manual run's completion.
		defer s.arm(jobType)
		s.run(jobType, sweep, exec)
	}()
	return &snapshot, nil
}

// Reschedule re-reads the job's schedule and re-arms its timer.
func (s *Scheduler) Reschedule(jobType domain.JobType) {
	if _, ok := s.sweeps[jobType]; !ok {
		return
	}
	s.arm(jobType)
}

// NextFire returns when the job's timer fires next.
func (s *Scheduler) NextFire(jobType domain.JobType) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.nextFire[jobType]
	return t, ok
}

// Overview is the tracker's statistics with the armed fire times.
func (s *Scheduler) Overview(ctx context.Context) (*domain.SchedulingOverview, error) {
	overview, err := s.tracker.GetAllJobStatistics(ctx)
	if err != nil {
		return nil, err
	}
	for i := range overview.Jobs {
		job := &overview.Jobs[i]
		if !job.Schedule.Enabled || overview.Paused {
			job.NextRunAt = nil
			continue
		}
		if next, ok := s.NextFire(job.JobType); ok {
			job.NextRunAt = &next
		}
	}
	return overview, nil
}

func (s *Scheduler) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Scheduler) arm(jobType domain.JobType) {
	delay := recheckInterval
	schedule, err := s.tracker.GetJobSchedule(s.baseCtx, jobType)
	switch {
	case err != nil:
		s.logger.Error("scheduler.schedule_load_failed", zap.String("job_type", string(jobType)), zap.Error(err))
	case schedule.Enabled && schedule.Interval() > 0:
		delay = schedule.Interval()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if existing, ok := s.timers[jobType]; ok {
		existing.Stop()
	}
	s.timers[jobType] = s.afterFunc(delay, func() { s.fire(jobType) })
	s.nextFire[jobType] = s.now().Add(delay)
}

func (s *Scheduler) fire(jobType domain.JobType) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, jobType)
	delete(s.nextFire, jobType)
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	// Failures never disable a schedule: the next fire is always armed.
	defer s.arm(jobType)

	s.tick(jobType)
}

func (s *Scheduler) tick(jobType domain.JobType) {
	ctx := s.baseCtx
	log := s.logger.With(zap.String("job_type", string(jobType)))

	paused, err := s.tracker.IsSchedulingPaused(ctx)
	if err != nil {
		log.Error("scheduler.pause_check_failed", zap.Error(err))
		return
	}
	if paused {
		log.Debug("scheduler.skipped_paused")
		return
	}

	schedule, err := s.tracker.GetJobSchedule(ctx, jobType)
	if err != nil {
		log.Error("scheduler.schedule_load_failed", zap.Error(err))
		return
	}
	if !schedule.Enabled {
		return
	}

	exec, err := s.tracker.StartJobExecution(ctx, jobType, domain.JobMetadata{"trigger": "timer"})
	if errors.Is(err, domain.ErrJobAlreadyRunning) {
		log.Info("scheduler.skipped_already_running")
		return
	}
	if err != nil {
		log.Error("scheduler.start_failed", zap.Error(err))
		return
	}

	s.run(jobType, s.sweeps[jobType], exec)
}

func (s *Scheduler) run(jobType domain.JobType, sweep Sweep, exec *domain.JobExecution) {
	ctx := s.baseCtx

	metadata, err := runSafely(ctx, sweep)
	if err != nil {
		if ferr := s.tracker.FailJobExecution(ctx, exec, err); ferr != nil {
			s.logger.Error("scheduler.record_failure_failed", zap.String("job_type", string(jobType)), zap.Error(ferr))
		}
		return
	}

	if cerr := s.tracker.CompleteJobExecution(ctx, exec, metadata); cerr != nil {
		s.logger.Error("scheduler.record_completion_failed", zap.String("job_type", string(jobType)), zap.Error(cerr))
	}

	if jobType == domain.JobEmailBatch {
		if n, err := s.tracker.CleanupOldExecutions(ctx, ExecutionRetention); err != nil {
			s.logger.Warn("scheduler.cleanup_failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("scheduler.cleanup_done", zap.Int64("deleted", n))
		}
	}
}

func runSafely(ctx context.Context, sweep Sweep) (metadata domain.JobMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	return sweep.Run(ctx)
}
