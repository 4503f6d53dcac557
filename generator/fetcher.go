package generator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/questboard/game/quest"
	"github.com/kasuganosora/questboard/game/world"
	"github.com/kasuganosora/questboard/scheduler"
	"go.uber.org/zap"
)

// ErrInFlight is returned by ForceUpdateClass while a fetch for the same
// class is running.
var ErrInFlight = errors.New("generator: fetch already in flight")

// Pinger is implemented by sources that support a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BoardRefresher tops up the boards of a class after new content lands.
type BoardRefresher interface {
	RefreshClass(ctx context.Context, class string) (int, error)
}

// Fetcher schedules fetches per class. Fetches run on their own
// goroutines; results are applied on the world loop.
type Fetcher struct {
	src     Source
	loop    *world.Loop
	accum   *quest.Accumulator
	boards  BoardRefresher
	classes []string
	timeout time.Duration
	logger  *zap.Logger

	available atomic.Bool
	mu        sync.Mutex
	inflight  map[string]bool
	lastFetch map[string]time.Time
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	sched     *scheduler.Scheduler
}

// FetcherDeps groups the collaborators of a Fetcher. Boards is optional.
type FetcherDeps struct {
	Source      Source
	Loop        *world.Loop
	Accumulator *quest.Accumulator
	Boards      BoardRefresher
}

// NewFetcher creates a Fetcher for classes. Sources without a health check
// are assumed available.
func NewFetcher(deps FetcherDeps, classes []string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	ctx, cancel := context.WithCancel(context.Background())
	f := &Fetcher{
		src:       deps.Source,
		loop:      deps.Loop,
		accum:     deps.Accumulator,
		boards:    deps.Boards,
		timeout:   timeout,
		logger:    logger,
		inflight:  make(map[string]bool),
		lastFetch: make(map[string]time.Time),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, c := range classes {
		f.classes = append(f.classes, quest.NormalizeClass(c))
	}
	if _, ok := deps.Source.(Pinger); !ok {
		f.available.Store(true)
	}
	return f
}

// Classes returns the classes this fetcher pulls for.
func (f *Fetcher) Classes() []string { return f.classes }

// Available reports the result of the last health check.
func (f *Fetcher) Available() bool { return f.available.Load() }

const (
	taskFetch  = "generator.fetch"
	taskHealth = "generator.health"
)

// Schedule registers the periodic fetch and health check tasks. Stop
// cancels them again.
func (f *Fetcher) Schedule(s *scheduler.Scheduler, fetchEvery, healthEvery time.Duration) {
	f.sched = s
	if fetchEvery > 0 {
		s.Every(taskFetch, fetchEvery, f.FetchAll)
	}
	if _, ok := f.src.(Pinger); ok && healthEvery > 0 {
		s.Every(taskHealth, healthEvery, func() { f.CheckHealth(f.ctx) })
	}
}

// CheckHealth pings the source. A source that comes back triggers an
// immediate fetch for every class.
func (f *Fetcher) CheckHealth(ctx context.Context) bool {
	p, ok := f.src.(Pinger)
	if !ok {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := p.Ping(ctx)
	up := err == nil
	if was := f.available.Swap(up); was != up {
		if up {
			f.logger.Info("quest generator available")
			f.FetchAll()
		} else {
			f.logger.Warn("quest generator unavailable", zap.Error(err))
		}
	}
	return up
}

// FetchAll starts a background fetch for every class.
func (f *Fetcher) FetchAll() {
	if !f.available.Load() {
		f.logger.Debug("skipping fetch, generator unavailable")
		return
	}
	for _, class := range f.classes {
		f.Fetch(class)
	}
}

// Fetch starts a background fetch for class unless one is in flight and
// reports whether it started one.
func (f *Fetcher) Fetch(class string) bool {
	class = quest.NormalizeClass(class)
	if !f.claim(class) {
		return false
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.release(class)
		if _, err := f.fetch(f.ctx, class, true); err != nil {
			f.logger.Warn("quest fetch dropped", zap.String("class", class), zap.Error(err))
		}
	}()
	return true
}

// ForceUpdateClass fetches class now and waits until the result has been
// accumulated. It returns the number of quests received.
func (f *Fetcher) ForceUpdateClass(ctx context.Context, class string) (int, error) {
	class = quest.NormalizeClass(class)
	if !f.claim(class) {
		return 0, ErrInFlight
	}
	defer f.release(class)
	return f.fetch(ctx, class, false)
}

// LastFetch returns when class last received content.
func (f *Fetcher) LastFetch(class string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFetch[quest.NormalizeClass(class)]
}

// Stop cancels in-flight fetches and waits for them.
func (f *Fetcher) Stop() {
	if f.sched != nil {
		f.sched.Cancel(taskFetch)
		f.sched.Cancel(taskHealth)
	}
	f.cancel()
	f.wg.Wait()
}

// fetch pulls a batch for class and hands it to the world loop. A queued
// fetch posts the batch without waiting; otherwise fetch waits for the
// accumulation result.
func (f *Fetcher) fetch(ctx context.Context, class string, queued bool) (int, error) {
	fctx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	quests, err := f.src.FetchQuests(fctx, class)
	if err != nil {
		return 0, err
	}
	if len(quests) == 0 {
		return 0, nil
	}
	// The accumulation cache is only mutated on the loop.
	if queued {
		err = f.loop.Post(func() {
			if err := f.accumulate(ctx, class, quests); err != nil {
				f.logger.Warn("quest batch dropped", zap.String("class", class), zap.Error(err))
			}
		})
	} else {
		err = f.loop.Do(ctx, func() error { return f.accumulate(ctx, class, quests) })
	}
	if err != nil {
		return 0, err
	}

	// Loop jobs run in order, so the refresh sees a posted batch.
	if f.boards != nil {
		if _, err := f.boards.RefreshClass(ctx, class); err != nil {
			f.logger.Warn("board refresh after fetch failed", zap.String("class", class), zap.Error(err))
		}
	}
	return len(quests), nil
}

func (f *Fetcher) accumulate(ctx context.Context, class string, quests []quest.Quest) error {
	if err := f.accum.Accumulate(ctx, class, quests); err != nil {
		return err
	}
	f.mu.Lock()
	f.lastFetch[class] = time.Now()
	f.mu.Unlock()
	return nil
}

func (f *Fetcher) claim(class string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inflight[class] {
		return false
	}
	f.inflight[class] = true
	return true
}

func (f *Fetcher) release(class string) {
	f.mu.Lock()
	delete(f.inflight, class)
	f.mu.Unlock()
}
