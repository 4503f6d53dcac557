package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrLoopFull is returned by Post when the job queue is at capacity.
var ErrLoopFull = errors.New("world: loop queue full")

// ErrLoopStopped is returned once the loop has been stopped.
var ErrLoopStopped = errors.New("world: loop stopped")

// DefaultQueueSize is used when NewLoop is given a non-positive size.
const DefaultQueueSize = 1024

// Loop is the authoritative goroutine for board state. Every board
// mutation runs as a job on it, one at a time, in submission order.
type Loop struct {
	jobs    chan func()
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
	started atomic.Bool
	logger  *zap.Logger
}

// NewLoop creates a Loop but does not start it.
func NewLoop(queueSize int, logger *zap.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		jobs:   make(chan func(), queueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run drains the job queue until Stop. Call in a goroutine.
func (l *Loop) Run() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	defer close(l.done)
	for {
		select {
		case fn := <-l.jobs:
			l.run(fn)
		case <-l.stopCh:
			return
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop job panicked", zap.Any("recover", r))
		}
	}()
	fn()
}

// Post enqueues fn without waiting for it.
func (l *Loop) Post(fn func()) error {
	if l.stopped() {
		return ErrLoopStopped
	}
	select {
	case l.jobs <- fn:
		return nil
	default:
		l.logger.Warn("loop queue full, job dropped")
		return ErrLoopFull
	}
}

// Do runs fn on the loop and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	if l.stopped() {
		return ErrLoopStopped
	}
	res := make(chan error, 1)
	job := func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("loop job panicked: %v", r)
			}
			res <- err
		}()
		err = fn()
	}
	select {
	case l.jobs <- job:
	case <-l.stopCh:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-l.stopCh:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the loop to exit and waits for the job in progress.
// Queued jobs are abandoned.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.stopCh) })
	if l.started.Load() {
		<-l.done
	}
}

func (l *Loop) stopped() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

// StopChan is closed when the loop is stopped.
func (l *Loop) StopChan() <-chan struct{} {
	return l.stopCh
}
