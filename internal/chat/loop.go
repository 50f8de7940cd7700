// Package chat is the client-side session core: it owns authentication
// state, room membership, the active room's feed and typing presence, and
// reconciles operator commands with inbound realtime events.
//
// Every piece of state in this package is mutated from a single goroutine,
// the Loop. Blocking work runs elsewhere and resumes on the loop.
package chat

import (
	"context"
	"sync"
	"time"
)

// Timer is a pending callback created by Scheduler.AfterFunc.
type Timer interface {
	Stop() bool
}

// Scheduler runs blocking work and timers for loop-owned components.
type Scheduler interface {
	// Go runs work off the loop. The continuation it returns, if any, is
	// executed on the loop.
	Go(work func(ctx context.Context) func())
	// AfterFunc runs fn on the loop after d.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is a single-goroutine task queue that also implements Scheduler.
type Loop struct {
	tasks  chan func()
	idle   func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoop creates a loop. idle, if non-nil, runs after every task.
func NewLoop(idle func()) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		tasks:  make(chan func(), 256),
		idle:   idle,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run processes tasks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer l.cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
			if l.idle != nil {
				l.idle()
			}
		}
	}
}

// Stop ends Run and waits for outstanding work started by Go.
func (l *Loop) Stop() {
	l.cancel()
	l.wg.Wait()
}

// Post queues fn. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(fn func()) bool {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Go implements Scheduler.
func (l *Loop) Go(work func(ctx context.Context) func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if cont := work(l.ctx); cont != nil {
			l.Post(cont)
		}
	}()
}

// AfterFunc implements Scheduler.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}
