// Package sched runs the periodic maintenance jobs: expiring stale
// game and auth sessions and keeping the database pool warm. Each job
// runs on its own interval; runs of the same job never overlap, and
// ticks that fall due while a run is still going are dropped.
package sched

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/writeright/writeright/internal/store"
)

// Default intervals for the standard maintenance jobs.
const (
	GameCleanupInterval = 6 * time.Hour
	AuthCleanupInterval = 12 * time.Hour
	PoolRefreshInterval = 10 * time.Minute
)

// Job is one recurring piece of maintenance.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler drives a fixed set of jobs until stopped.
type Scheduler struct {
	jobs   []Job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a scheduler over the given jobs.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Start launches one goroutine per job. Jobs fire first after their
// interval, not immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cancel != nil {
		return fmt.Errorf("sched: already started")
	}
	for _, j := range s.jobs {
		if j.Name == "" || j.Every <= 0 || j.Run == nil {
			return fmt.Errorf("sched: job %q is incomplete", j.Name)
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runLoop(ctx, j)
		}()
	}
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				log.Printf("sched: %s: %v", j.Name, err)
			}
		}
	}
}

// Stop cancels all jobs and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

// Cleaner is the proc-call slice of the store the cleanup jobs use.
type Cleaner interface {
	CallProc(ctx context.Context, name string, args ...any) ([]store.Row, error)
}

// Refresher keeps a connection pool warm.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// GameSessionCleanup abandons stale in-progress game sessions and
// prunes settled ones.
func GameSessionCleanup(st Cleaner, every time.Duration) Job {
	return Job{
		Name:  "game-session-cleanup",
		Every: every,
		Run: func(ctx context.Context) error {
			rows, err := st.CallProc(ctx, "cleanup_game_sessions")
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				log.Printf("sched: game sessions: %d abandoned, %d deleted",
					store.Int64(rows[0], "abandoned_count"), store.Int64(rows[0], "deleted_count"))
			}
			return nil
		},
	}
}

// AuthSessionCleanup deactivates expired login sessions and prunes
// long-dead ones.
func AuthSessionCleanup(st Cleaner, every time.Duration) Job {
	return Job{
		Name:  "auth-session-cleanup",
		Every: every,
		Run: func(ctx context.Context) error {
			rows, err := st.CallProc(ctx, "cleanup_auth_sessions")
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				log.Printf("sched: auth sessions: %d expired, %d deleted",
					store.Int64(rows[0], "expired_count"), store.Int64(rows[0], "deleted_count"))
			}
			return nil
		},
	}
}

// PoolRefresh pings the database so idle pool connections stay
// healthy.
func PoolRefresh(st Refresher, every time.Duration) Job {
	return Job{
		Name:  "pool-refresh",
		Every: every,
		Run:   st.Refresh,
	}
}
