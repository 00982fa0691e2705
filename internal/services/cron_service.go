package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper is the part of the booking service the scheduler drives
type Sweeper interface {
	ExpireStaleCashBookings(ctx context.Context, now time.Time) (int, error)
	MarkNoShows(ctx context.Context, before time.Time) (int, error)
	Today() time.Time
}

// CronSchedule holds the cron specs (with seconds) for the background jobs
type CronSchedule struct {
	CashExpiry string
	NoShows    string
}

// JobRun is the outcome of the latest run of a job
type JobRun struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Affected  int           `json:"affected"`
	Error     string        `json:"error,omitempty"`
}

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule CronSchedule
	logger   *logrus.Logger
	timeout  time.Duration

	mu       sync.Mutex
	entries  map[string]cron.EntryID
	lastRuns map[string]JobRun
}

// Job names
const (
	JobCashExpiry = "cash_expiry"
	JobNoShows    = "no_shows"
)

// NewCronService creates a new CronService
func NewCronService(sweeper Sweeper, schedule CronSchedule, loc *time.Location, logger *logrus.Logger) *CronService {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &CronService{
		cron:     c,
		sweeper:  sweeper,
		schedule: schedule,
		logger:   logger,
		timeout:  time.Minute,
		entries:  make(map[string]cron.EntryID),
		lastRuns: make(map[string]JobRun),
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service")

	// Cron format: second minute hour day month weekday
	id, err := s.cron.AddFunc(s.schedule.CashExpiry, func() { s.run(JobCashExpiry) })
	if err != nil {
		return fmt.Errorf("failed to schedule cash expiry job: %w", err)
	}
	s.entries[JobCashExpiry] = id
	s.logger.WithField("spec", s.schedule.CashExpiry).Info("Scheduled: expire unpaid cash bookings")

	id, err = s.cron.AddFunc(s.schedule.NoShows, func() { s.run(JobNoShows) })
	if err != nil {
		return fmt.Errorf("failed to schedule no-show job: %w", err)
	}
	s.entries[JobNoShows] = id
	s.logger.WithField("spec", s.schedule.NoShows).Info("Scheduled: mark no-shows")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunNow runs a job immediately, outside the schedule
func (s *CronService) RunNow(job string) (JobRun, error) {
	switch job {
	case JobCashExpiry, JobNoShows:
	default:
		return JobRun{}, fmt.Errorf("unknown job %q", job)
	}
	s.logger.WithField("job", job).Info("[MANUAL] Running job now")
	return s.run(job), nil
}

func (s *CronService) run(job string) JobRun {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	run := JobRun{StartedAt: time.Now()}
	var err error
	switch job {
	case JobCashExpiry:
		run.Affected, err = s.sweeper.ExpireStaleCashBookings(ctx, run.StartedAt)
	case JobNoShows:
		run.Affected, err = s.sweeper.MarkNoShows(ctx, s.sweeper.Today())
	}
	run.Duration = time.Since(run.StartedAt)

	log := s.logger.WithFields(logrus.Fields{
		"job":         job,
		"affected":    run.Affected,
		"duration_ms": run.Duration.Milliseconds(),
	})
	if err != nil {
		run.Error = err.Error()
		log.WithError(err).Error("[CRON] Job failed")
	} else if run.Affected > 0 {
		log.Info("[CRON] Job finished")
	} else {
		log.Debug("[CRON] Job finished")
	}

	s.mu.Lock()
	s.lastRuns[job] = run
	s.mu.Unlock()
	return run
}

// JobStatus describes one scheduled job
type JobStatus struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	NextRun time.Time `json:"next_run"`
	LastRun *JobRun   `json:"last_run,omitempty"`
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() []JobStatus {
	specs := map[string]string{
		JobCashExpiry: s.schedule.CashExpiry,
		JobNoShows:    s.schedule.NoShows,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(specs))
	for _, name := range []string{JobCashExpiry, JobNoShows} {
		status := JobStatus{Name: name, Spec: specs[name]}
		if id, ok := s.entries[name]; ok {
			status.NextRun = s.cron.Entry(id).Next
		}
		if run, ok := s.lastRuns[name]; ok {
			r := run
			status.LastRun = &r
		}
		out = append(out, status)
	}
	return out
}
