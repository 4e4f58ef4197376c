// internal/editor/eventloop/loop.go
package eventloop

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned when work is enqueued on a loop that has shut down.
var ErrClosed = errors.New("event loop is closed")

// Loop runs queued tasks one at a time, in enqueue order, on a single
// goroutine. Enqueue never blocks the caller: the queue is unbounded, so a
// slow task delays later tasks but never their producers.
type Loop struct {
	logger *zap.Logger

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool

	done chan struct{}
}

// New starts a loop goroutine. Close must be called to release it.
func New(logger *zap.Logger, name string) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		logger: logger.Named(name),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Enqueue schedules fn to run on the loop goroutine.
func (l *Loop) Enqueue(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	select {
	case l.wake <- struct{}{}:
	default:
		// A wake-up is already pending.
	}
	l.mu.Unlock()
	return nil
}

// Sync blocks until every task enqueued before the call has run. It is the
// barrier tests and synchronous callers use; it must not be called from the
// loop goroutine itself.
func (l *Loop) Sync() error {
	reached := make(chan struct{})
	if err := l.Enqueue(func() { close(reached) }); err != nil {
		return err
	}
	select {
	case <-reached:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// Close stops accepting work, discards tasks that have not started, and
// waits for the running task (if any) to finish. Calling it from inside a
// task deadlocks.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	dropped := len(l.queue)
	l.queue = nil
	close(l.wake)
	l.mu.Unlock()

	<-l.done

	if dropped > 0 {
		l.logger.Debug("Dropped pending tasks on close.", zap.Int("count", dropped))
	}
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.runTask(fn)
		}
	}
}

// runTask recovers a panicking task; the loop keeps serving later tasks.
func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Task panicked.", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
		}
	}()
	fn()
}
