package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ClaimReaper returns expired inventory leases to the pool.
type ClaimReaper interface {
	ReleaseExpiredClaims(ctx context.Context, now time.Time) (int, error)
}

// Jobs holds the scheduled job bodies.
type Jobs struct {
	reaper  ClaimReaper
	timeout time.Duration
	clock   func() time.Time
}

func NewJobs(reaper ClaimReaper) *Jobs {
	return &Jobs{reaper: reaper, timeout: 30 * time.Second, clock: time.Now}
}

// ReleaseExpiredClaims frees records whose sender died mid-send.
func (j *Jobs) ReleaseExpiredClaims() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.reaper.ReleaseExpiredClaims(ctx, j.clock())
	if err != nil {
		zap.L().Error("Expired claim reaper failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("Released expired claims", zap.Int("count", n))
	}
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron *cron.Cron
	jobs *Jobs
}

func New(jobs *Jobs) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(zap.L()))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return &Scheduler{cron: c, jobs: jobs}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start(reaperSchedule string) error {
	if _, err := s.cron.AddFunc(reaperSchedule, s.jobs.ReleaseExpiredClaims); err != nil {
		return fmt.Errorf("failed to schedule claim reaper %q: %w", reaperSchedule, err)
	}
	zap.L().Info("Scheduled claim reaper", zap.String("schedule", reaperSchedule))

	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler. The returned context is done once
// running jobs complete.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
