// Package jobmanager runs recurring jobs on a gocron scheduler.
package jobmanager

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/envlog/envlog/logging"
)

// The Jobmanager owns a scheduler and the jobs registered on it. A job with a run limit is
// finished once it ran that often; Wait returns when all limited jobs are finished.
type Jobmanager struct {
	scheduler gocron.Scheduler
	logger    logging.Logger

	mu           sync.Mutex
	namesToUUIDs map[string]uuid.UUID
	finished     []chan struct{}
}

// New returns a Jobmanager whose scheduler is already started.
func New(logger logging.Logger, opts ...gocron.SchedulerOption) (*Jobmanager, error) {
	jobLogger := logger.Sublogger("job_manager")
	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	jm := &Jobmanager{
		logger:       jobLogger,
		scheduler:    scheduler,
		namesToUUIDs: make(map[string]uuid.UUID),
	}
	scheduler.Start()
	return jm, nil
}

// Every runs fn right away and then every interval. A run that would start while the previous
// one is still busy is skipped. With a positive limit the job is removed after limit runs.
func (jm *Jobmanager) Every(name string, interval time.Duration, limit int, fn func()) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if _, ok := jm.namesToUUIDs[name]; ok {
		return errors.Errorf("a job named %q already exists", name)
	}

	var finished chan struct{}
	if limit > 0 {
		finished = make(chan struct{})
	}
	runs := atomic.NewInt64(0)
	// a run that panics still counts towards the limit
	task := func() {
		defer func() {
			if n := runs.Inc(); finished != nil && n == int64(limit) {
				close(finished)
			}
		}()
		fn()
	}

	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithEventListeners(
			gocron.BeforeJobRuns(func(_ uuid.UUID, jobName string) {
				jm.logger.Debugw("triggering job", "name", jobName, "run", runs.Load()+1)
			}),
			gocron.AfterJobRunsWithPanic(func(_ uuid.UUID, jobName string, recoverData any) {
				jm.logger.Errorw("job panicked", "name", jobName, "panic", recoverData)
			}),
		),
	}
	if limit > 0 {
		opts = append(opts, gocron.WithLimitedRuns(uint(limit)))
	}

	j, err := jm.scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(task), opts...)
	if err != nil {
		return errors.Wrapf(err, "failed to create job %q", name)
	}
	jm.logger.Infow("created a job", "name", name, "uuid", j.ID().String(), "interval", interval, "limit", limit)
	jm.namesToUUIDs[name] = j.ID()
	if finished != nil {
		jm.finished = append(jm.finished, finished)
	}
	return nil
}

// Wait blocks until every job with a run limit is finished or ctx is done. Without limited jobs it
// only returns when ctx is done.
func (jm *Jobmanager) Wait(ctx context.Context) error {
	jm.mu.Lock()
	finished := append([]chan struct{}(nil), jm.finished...)
	jm.mu.Unlock()

	if len(finished) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, ch := range finished {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Shutdown stops the scheduler, waiting for running jobs to return.
func (jm *Jobmanager) Shutdown() error {
	jm.logger.Info("Shutting down gracefully")
	return jm.scheduler.Shutdown()
}
