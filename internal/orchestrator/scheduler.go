package orchestrator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTick = 30 * time.Second
	lockTTL     = 2 * time.Minute
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	every    time.Duration
	cron     *cronexpr.Expression
	run      JobFunc
	nextRun  time.Time
	failures int
}

// Scheduler fires named recurring jobs from a fixed tick. When a redis
// client is set, a SetNX lock per job keeps multiple processes from
// double-firing the same job.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []*job
	tick   time.Duration
	pool   *Pool
	rdb    *redis.Client
	logger *log.Logger
	now    func() time.Time
	jitter func() time.Duration
}

func NewScheduler(tick time.Duration, pool *Pool, rdb *redis.Client) *Scheduler {
	if tick <= 0 {
		tick = defaultTick
	}
	return &Scheduler{
		tick:   tick,
		pool:   pool,
		rdb:    rdb,
		logger: log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		now:    time.Now,
		jitter: func() time.Duration {
			return time.Duration(250+rand.Int63n(250)) * time.Millisecond
		},
	}
}

// Add registers an interval job. The first run happens on the next tick.
func (s *Scheduler) Add(name string, every time.Duration, run JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, every: every, run: run, nextRun: s.now()})
}

// AddCron registers a job on a 5-field cron expression.
func (s *Scheduler) AddCron(name, spec string, run JobFunc) error {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return fmt.Errorf("cron spec for %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, cron: expr, run: run, nextRun: expr.Next(s.now())})
	return nil
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every due job on the pool. Exported so tests and the worker
// command can drive the scheduler without real time.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	due := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !j.nextRun.After(now) {
			due = append(due, j)
			j.nextRun = s.next(j, now)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.fire(ctx, j)
	}
}

func (s *Scheduler) next(j *job, now time.Time) time.Time {
	if j.cron != nil {
		return j.cron.Next(now)
	}
	every := j.every
	if every <= 0 {
		every = s.tick
	}
	return now.Add(every)
}

func (s *Scheduler) fire(ctx context.Context, j *job) {
	unlock := func(context.Context) {}
	if s.rdb != nil {
		lockKey := "sched:lock:" + j.name
		ok, err := s.rdb.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil {
			s.logger.Printf("job %s lock check failed: %v", j.name, err)
			return
		}
		if !ok {
			return
		}
		unlock = func(ctx context.Context) { s.rdb.Del(ctx, lockKey) }
	}
	submitted := s.pool.Submit(ctx, "job:"+j.name, func(ctx context.Context) {
		defer unlock(ctx)
		time.Sleep(s.jitter())
		if err := j.run(ctx); err != nil {
			s.mu.Lock()
			j.failures++
			n := j.failures
			s.mu.Unlock()
			s.logger.Printf("job %s failed (%d consecutive): %v", j.name, n, err)
			return
		}
		s.mu.Lock()
		j.failures = 0
		s.mu.Unlock()
	})
	if !submitted {
		unlock(ctx)
		s.logger.Printf("job %s still running, skipped", j.name)
	}
}

// Failures returns the consecutive failure count for a job name.
func (s *Scheduler) Failures(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.name == name {
			return j.failures
		}
	}
	return 0
}
