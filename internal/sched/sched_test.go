package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/writeright/writeright/internal/store"
)

func TestSchedulerRunsJobOnInterval(t *testing.T) {
	var runs atomic.Int32
	s := New(Job{
		Name:  "counter",
		Every: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	got := runs.Load()
	if got < 3 {
		t.Fatalf("job ran %d times in 100ms at a 10ms interval", got)
	}
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Fatal("job kept running after Stop")
	}
}

func TestSchedulerNeverOverlapsRuns(t *testing.T) {
	var active, maxActive atomic.Int32
	s := New(Job{
		Name:  "slow",
		Every: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			cur := active.Add(1)
			if cur > maxActive.Load() {
				maxActive.Store(cur)
			}
			time.Sleep(20 * time.Millisecond)
			active.Add(-1)
			return nil
		},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if maxActive.Load() > 1 {
		t.Fatalf("job overlapped itself %d deep", maxActive.Load())
	}
}

func TestSchedulerSurvivesJobErrors(t *testing.T) {
	var runs atomic.Int32
	s := New(Job{
		Name:  "flaky",
		Every: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("transient")
		},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	if runs.Load() < 2 {
		t.Fatalf("job stopped after an error: %d runs", runs.Load())
	}
}

func TestSchedulerRejectsBadJobs(t *testing.T) {
	s := New(Job{Name: "no-run", Every: time.Second})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for a job without a Run func")
	}
	s = New(Job{Name: "no-interval", Run: func(ctx context.Context) error { return nil }})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for a job without an interval")
	}
}

type fakeCleaner struct {
	mu    sync.Mutex
	procs []string
}

func (f *fakeCleaner) CallProc(ctx context.Context, name string, args ...any) ([]store.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procs = append(f.procs, name)
	return []store.Row{{
		"abandoned_count": int64(1), "deleted_count": int64(2),
		"expired_count": int64(3),
	}}, nil
}

func TestCleanupJobsCallTheirProcedures(t *testing.T) {
	cl := &fakeCleaner{}
	ctx := context.Background()

	if err := GameSessionCleanup(cl, time.Hour).Run(ctx); err != nil {
		t.Fatalf("game cleanup: %v", err)
	}
	if err := AuthSessionCleanup(cl, time.Hour).Run(ctx); err != nil {
		t.Fatalf("auth cleanup: %v", err)
	}
	want := []string{"cleanup_game_sessions", "cleanup_auth_sessions"}
	for i, name := range want {
		if cl.procs[i] != name {
			t.Fatalf("proc %d = %q, want %q", i, cl.procs[i], name)
		}
	}
}

type fakeRefresher struct{ calls atomic.Int32 }

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls.Add(1)
	return nil
}

func TestPoolRefreshJob(t *testing.T) {
	r := &fakeRefresher{}
	job := PoolRefresh(r, time.Minute)
	if job.Name != "pool-refresh" || job.Every != time.Minute {
		t.Fatalf("job = %+v", job)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.calls.Load() != 1 {
		t.Fatalf("refresh called %d times, want 1", r.calls.Load())
	}
}
