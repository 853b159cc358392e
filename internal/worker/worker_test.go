package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOnceSkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	job := &Job{Name: "slow", Timeout: time.Second, Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}

	done := make(chan struct{})
	go func() {
		_, _ = job.RunOnce(context.Background())
		close(done)
	}()
	<-started

	ran, err := job.RunOnce(context.Background())
	if ran || err != nil {
		t.Fatalf("expected overlapping run to be skipped, ran=%v err=%v", ran, err)
	}
	close(release)
	<-done
}

func TestRunOnceAppliesTimeout(t *testing.T) {
	job := &Job{Name: "deadline", Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	ran, err := job.RunOnce(context.Background())
	if !ran || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, ran=%v err=%v", ran, err)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	var runs int32
	job := &Job{Name: "tick", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Start(ctx, job)
		close(done)
	}()

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&runs) < 2 {
		select {
		case <-deadline:
			t.Fatalf("job did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("start did not return after cancel")
	}
}
