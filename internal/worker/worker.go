package worker

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

const defaultTimeout = 5 * time.Second

// Job is a periodic task. Runs never overlap: a tick that arrives while the
// previous run is still going is skipped.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error

	running int32
}

// RunOnce executes the job under its per-run timeout. It reports false when
// another run was already in progress.
func (j *Job) RunOnce(ctx context.Context) (bool, error) {
	if !atomic.CompareAndSwapInt32(&j.running, 0, 1) {
		return false, nil
	}
	defer atomic.StoreInt32(&j.running, 0)

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return true, j.Run(runCtx)
}

// Start blocks until ctx is cancelled.
func Start(ctx context.Context, j *Job) {
	if j.Interval <= 0 {
		log.Printf("%s job disabled: interval=%s", j.Name, j.Interval)
		return
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ran, err := j.RunOnce(ctx)
			if !ran {
				log.Printf("%s job skipped: previous run still active", j.Name)
				continue
			}
			if err != nil {
				log.Printf("%s job error: %v", j.Name, err)
			}
		}
	}
}
