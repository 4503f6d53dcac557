package scheduler

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the body of a recurring task.
type TaskFn func()

// TaskInfo describes a registered task for the admin API.
type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	LastRun  time.Time     `json:"last_run"`
}

// Scheduler runs named recurring tasks (board refresh, generator fetch and
// health checks). Each task has its own goroutine, so one task never runs
// concurrently with itself.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	logger *zap.Logger
	stopCh chan struct{}
	once   sync.Once
}

type task struct {
	name     string
	interval time.Duration
	fn       TaskFn
	cancel   chan struct{}
	kick     chan struct{}
	runs     atomic.Int64
	lastRun  atomic.Int64 // unix ms
}

// New creates an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*task),
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Every registers fn to run every interval under name, replacing any task
// already registered under that name.
func (s *Scheduler) Every(name string, interval time.Duration, fn TaskFn) {
	t := &task{
		name:     name,
		interval: interval,
		fn:       fn,
		cancel:   make(chan struct{}),
		kick:     make(chan struct{}, 1),
	}
	s.mu.Lock()
	if old, ok := s.tasks[name]; ok {
		close(old.cancel)
	}
	s.tasks[name] = t
	s.mu.Unlock()

	go s.loop(t)
	s.logger.Info("scheduler task registered",
		zap.String("name", name),
		zap.Duration("interval", interval))
}

func (s *Scheduler) loop(t *task) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-t.kick:
		case <-t.cancel:
			return
		case <-s.stopCh:
			return
		}
		s.run(t)
	}
}

func (s *Scheduler) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", t.name),
				zap.Any("recover", r))
		}
	}()
	t.runs.Add(1)
	t.lastRun.Store(time.Now().UnixMilli())
	t.fn()
}

// RunNow triggers name outside its schedule and reports whether it exists.
// Triggers that arrive while the task is running collapse into one run.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case t.kick <- struct{}{}:
	default:
	}
	return true
}

// Cancel stops and forgets name. Unknown names are ignored.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		close(t.cancel)
		delete(s.tasks, name)
	}
}

// Stop ends every task. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

// Tasks describes every registered task, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		info := TaskInfo{Name: t.name, Interval: t.interval, Runs: t.runs.Load()}
		if ms := t.lastRun.Load(); ms > 0 {
			info.LastRun = time.UnixMilli(ms)
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b TaskInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
