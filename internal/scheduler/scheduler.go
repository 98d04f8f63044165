package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/optiscale/pulse/internal/clock"
	"github.com/optiscale/pulse/internal/metrics"
	"github.com/optiscale/pulse/internal/provider"
)

// JobState is the lifecycle state of one scheduled collection job:
// pending -> running -> {succeeded, failed}, with failed looping back to
// pending until the retry budget is spent.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// Job tracks one collection task through the scheduler.
type Job struct {
	TaskID      string                     `json:"task_id"`
	Provider    string                     `json:"provider"`
	CustomerID  string                     `json:"customer_id"`
	DataTypes   []string                   `json:"data_types"`
	State       JobState                   `json:"state"`
	Attempts    int                        `json:"attempts"`
	LastError   string                     `json:"last_error,omitempty"`
	SubmittedAt time.Time                  `json:"submitted_at"`
	StartedAt   time.Time                  `json:"started_at,omitzero"`
	CompletedAt time.Time                  `json:"completed_at,omitzero"`
	Result      *provider.CollectionResult `json:"result,omitempty"`
}

// Runner executes one collection run. The orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, taskID, providerSlug, customerID string, dataTypes []string) provider.CollectionResult
}

// CustomerSource enumerates the active customers configured for a
// provider. The config-backed credential source implements it.
type CustomerSource interface {
	ActiveCustomers(ctx context.Context, providerSlug string) ([]string, error)
}

// Config holds the scheduling and retry policy. Job-level retry uses a
// fixed delay; exponential backoff belongs to the adapter's own
// per-source fetches, a separate nested policy.
type Config struct {
	Interval    time.Duration
	RetryDelay  time.Duration
	MaxRetries  int
	JobTimeout  time.Duration
	SoftTimeout time.Duration
	Workers     int
	QueueSize   int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 60 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 3
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Minute
	}
	if c.SoftTimeout <= 0 || c.SoftTimeout >= c.JobTimeout {
		c.SoftTimeout = c.JobTimeout * 5 / 6
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Scheduler periodically enumerates (provider, customer) pairs and drives
// them through a bounded worker pool with per-job retry. Jobs are fully
// independent: no ordering is guaranteed across them and they share no
// mutable state beyond the job registry itself.
type Scheduler struct {
	logger    zerolog.Logger
	cfg       Config
	clock     clock.Clock
	runner    Runner
	registry  *provider.Registry
	customers CustomerSource
	pipeline  *metrics.Pipeline

	mu   sync.RWMutex
	jobs map[string]*Job

	queue  chan string
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(logger zerolog.Logger, cfg Config, clk clock.Clock, runner Runner, registry *provider.Registry, customers CustomerSource, pipeline *metrics.Pipeline) *Scheduler {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Scheduler{
		logger:    logger.With().Str("component", "scheduler").Logger(),
		cfg:       cfg,
		clock:     clk,
		runner:    runner,
		registry:  registry,
		customers: customers,
		pipeline:  pipeline,
		jobs:      make(map[string]*Job),
		queue:     make(chan string, cfg.QueueSize),
	}
}

// Start launches the worker pool and the periodic trigger. It returns
// immediately; Stop waits for in-flight jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.wg.Add(1)
	go s.tickLoop(ctx)

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("workers", s.cfg.Workers).
		Msg("scheduler started")
	return nil
}

// Stop cancels the periodic trigger and waits for workers and pending
// retry timers to drain.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	// First enumeration happens immediately; the ticker covers the rest.
	s.enumerate(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enumerate(ctx)
		}
	}
}

// enumerate submits one independent job per (enabled provider, active
// customer) pair. A submission failure is logged and never blocks the
// remaining submissions.
func (s *Scheduler) enumerate(ctx context.Context) {
	for _, meta := range s.registry.Enabled() {
		customers, err := s.customers.ActiveCustomers(ctx, meta.Slug)
		if err != nil {
			s.logger.Error().Err(err).Str("provider", meta.Slug).Msg("failed to enumerate customers")
			continue
		}
		for _, customerID := range customers {
			if _, err := s.Submit(meta.Slug, customerID, meta.DataTypes); err != nil {
				s.logger.Error().Err(err).
					Str("provider", meta.Slug).
					Str("customer_id", customerID).
					Msg("failed to submit collection job")
			}
		}
	}
}

// Submit registers a new pending job and enqueues it. It fails when the
// queue is full rather than blocking the caller.
func (s *Scheduler) Submit(providerSlug, customerID string, dataTypes []string) (Job, error) {
	job := &Job{
		TaskID:      uuid.New().String(),
		Provider:    providerSlug,
		CustomerID:  customerID,
		DataTypes:   append([]string(nil), dataTypes...),
		State:       StatePending,
		SubmittedAt: s.clock.Now(),
	}

	s.mu.Lock()
	s.jobs[job.TaskID] = job
	s.mu.Unlock()

	select {
	case s.queue <- job.TaskID:
	default:
		s.mu.Lock()
		delete(s.jobs, job.TaskID)
		s.mu.Unlock()
		return Job{}, fmt.Errorf("job queue full (%d pending)", s.cfg.QueueSize)
	}
	return job.snapshot(), nil
}

// RunSync executes one collection inline for the synchronous trigger
// path, bypassing the queue and the retry policy.
func (s *Scheduler) RunSync(ctx context.Context, providerSlug, customerID string, dataTypes []string) (Job, provider.CollectionResult) {
	job := &Job{
		TaskID:      uuid.New().String(),
		Provider:    providerSlug,
		CustomerID:  customerID,
		DataTypes:   append([]string(nil), dataTypes...),
		State:       StateRunning,
		SubmittedAt: s.clock.Now(),
		StartedAt:   s.clock.Now(),
		Attempts:    1,
	}
	s.mu.Lock()
	s.jobs[job.TaskID] = job
	s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()
	result := s.runner.Run(runCtx, job.TaskID, providerSlug, customerID, dataTypes)

	s.mu.Lock()
	job.Result = &result
	job.CompletedAt = s.clock.Now()
	job.LastError = result.ErrorMessage
	if result.Success {
		job.State = StateSucceeded
	} else {
		job.State = StateFailed
	}
	snap := job.snapshot()
	s.mu.Unlock()
	return snap, result
}

// Status returns a snapshot of the job with the given task ID.
func (s *Scheduler) Status(taskID string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[taskID]
	if !ok {
		return Job{}, false
	}
	return job.snapshot(), true
}

func (j *Job) snapshot() Job {
	snap := *j
	snap.DataTypes = append([]string(nil), j.DataTypes...)
	if j.Result != nil {
		r := *j.Result
		snap.Result = &r
	}
	return snap
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-s.queue:
			s.execute(ctx, taskID)
		}
	}
}

// execute runs one attempt of a job, retrying failed jobs after a fixed
// delay until the retry budget is spent. Terminal failures keep the last
// error; every attempt was already audited by the orchestrator, so jobs
// are never silently dropped.
func (s *Scheduler) execute(ctx context.Context, taskID string) {
	s.mu.Lock()
	job, ok := s.jobs[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	job.State = StateRunning
	job.StartedAt = s.clock.Now()
	job.Attempts++
	providerSlug, customerID := job.Provider, job.CustomerID
	dataTypes := append([]string(nil), job.DataTypes...)
	attempts := job.Attempts
	s.mu.Unlock()

	if s.pipeline != nil {
		s.pipeline.JobsStarted.WithLabelValues(providerSlug).Inc()
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	soft := time.AfterFunc(s.cfg.SoftTimeout, func() {
		s.logger.Warn().
			Str("task_id", taskID).
			Dur("soft_timeout", s.cfg.SoftTimeout).
			Msg("collection job exceeded soft timeout")
	})
	result := s.runner.Run(runCtx, taskID, providerSlug, customerID, dataTypes)
	soft.Stop()
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	job.Result = &result
	job.LastError = result.ErrorMessage
	job.CompletedAt = s.clock.Now()

	if result.Success {
		job.State = StateSucceeded
		if s.pipeline != nil {
			s.pipeline.JobsSucceeded.WithLabelValues(providerSlug).Inc()
		}
		return
	}

	retriesUsed := attempts - 1
	if retriesUsed < s.cfg.MaxRetries {
		job.State = StatePending
		if s.pipeline != nil {
			s.pipeline.JobRetries.WithLabelValues(providerSlug).Inc()
		}
		s.logger.Warn().
			Str("task_id", taskID).
			Int("attempt", attempts).
			Dur("retry_delay", s.cfg.RetryDelay).
			Str("error", result.ErrorMessage).
			Msg("collection job failed, scheduling retry")
		s.requeueAfter(ctx, taskID, s.cfg.RetryDelay)
		return
	}

	job.State = StateFailed
	if s.pipeline != nil {
		s.pipeline.JobsFailed.WithLabelValues(providerSlug).Inc()
	}
	s.logger.Error().
		Str("task_id", taskID).
		Int("attempts", attempts).
		Str("error", result.ErrorMessage).
		Msg("collection job failed terminally")
}

// requeueAfter re-enqueues a failed job once the retry delay elapses,
// unless the scheduler is shutting down.
func (s *Scheduler) requeueAfter(ctx context.Context, taskID string, delay time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			select {
			case s.queue <- taskID:
			case <-ctx.Done():
			}
		}
	}()
}
