// Package cron runs the pipeline's recurring jobs on fixed schedules.
package cron

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Job is one scheduled task's definition and last-run state.
type Job struct {
	Name       string
	Expr       string
	LastRunAt  time.Time
	LastStatus string
	LastError  string
}

type task struct {
	job     Job
	fn      func(ctx context.Context) error
	running bool
}

// Service schedules registered jobs with a seconds-granularity cron. A
// job still running when its next trigger fires is skipped, never
// overlapped.
type Service struct {
	mu       sync.Mutex
	cron     *rcron.Cron
	tasks    []*task
	entryMap map[string]rcron.EntryID // job name -> cron entry ID
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewService() *Service {
	return &Service{entryMap: make(map[string]rcron.EntryID)}
}

// Add registers a job under a cron expression (seconds field included,
// @every syntax supported). Jobs added after Start are scheduled
// immediately.
func (s *Service) Add(name, expr string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &task{job: Job{Name: name, Expr: expr}, fn: fn}
	s.tasks = append(s.tasks, t)
	if s.cron != nil {
		return s.register(t)
	}
	return nil
}

func (s *Service) register(t *task) error {
	id, err := s.cron.AddFunc(t.job.Expr, func() {
		s.execute(t)
	})
	if err != nil {
		return fmt.Errorf("register job %s (%s): %w", t.job.Name, t.job.Expr, err)
	}
	s.entryMap[t.job.Name] = id
	return nil
}

func (s *Service) execute(t *task) {
	s.mu.Lock()
	if t.running {
		s.mu.Unlock()
		log.Printf("[cron] job %s still running, skipping", t.job.Name)
		return
	}
	t.running = true
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	log.Printf("[cron] executing job %s", t.job.Name)
	err := t.fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	t.running = false
	t.job.LastRunAt = time.Now()
	if err != nil {
		t.job.LastStatus = "error"
		t.job.LastError = err.Error()
		log.Printf("[cron] job %s error: %v", t.job.Name, err)
	} else {
		t.job.LastStatus = "ok"
		t.job.LastError = ""
	}
}

// RunNow triggers a registered job immediately, off-schedule and in the
// background. Returns false for an unknown job name.
func (s *Service) RunNow(name string) bool {
	s.mu.Lock()
	var target *task
	for _, t := range s.tasks {
		if t.job.Name == name {
			target = t
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return false
	}
	go s.execute(target)
	return true
}

// Start schedules every registered job and begins firing them.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.ctx = runCtx
	s.cancel = cancel
	s.cron = rcron.New(rcron.WithSeconds())
	for _, t := range s.tasks {
		if err := s.register(t); err != nil {
			s.mu.Unlock()
			cancel()
			return err
		}
	}
	n := len(s.tasks)
	s.mu.Unlock()

	s.cron.Start()
	log.Printf("[cron] started with %d jobs", n)
	return nil
}

// Stop cancels the job context and waits briefly for running jobs.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	c := s.cron
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[cron] stop timeout waiting for running jobs")
		}
	}
	log.Printf("[cron] stopped")
}

// Jobs returns a snapshot of every job's definition and last-run state.
func (s *Service) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.job)
	}
	return out
}
