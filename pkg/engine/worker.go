package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/devicelab-dev/anchor-runner/pkg/logger"
)

// ErrWorkerClosed is returned for actions submitted after Close.
var ErrWorkerClosed = errors.New("worker closed")

// Action is a queued unit of work against the engine.
type Action func(*Engine) error

type job struct {
	name   string
	action Action
	done   chan error
}

// Worker runs queued actions one at a time on a single goroutine, so an
// action and its After notification finish before the next one starts.
type Worker struct {
	engine *Engine
	queue  chan job

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWorker starts a worker with room for size pending actions.
func NewWorker(e *Engine, size int) *Worker {
	if size <= 0 {
		size = 16
	}
	w := &Worker{engine: e, queue: make(chan job, size)}
	w.wg.Add(1)
	go w.run()
	return w
}

// Submit queues an action. The returned channel receives its result once.
func (w *Worker) Submit(name string, a Action) <-chan error {
	done := make(chan error, 1)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		done <- ErrWorkerClosed
		return done
	}
	w.queue <- job{name: name, action: a, done: done}
	return done
}

// Do queues an action and waits for it.
func (w *Worker) Do(name string, a Action) error {
	return <-w.Submit(name, a)
}

// Close stops accepting actions, runs the ones already queued and waits for
// the worker goroutine to exit.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for j := range w.queue {
		j.done <- w.exec(j)
	}
}

func (w *Worker) exec(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("action %s panicked: %v", j.name, r)
			err = fmt.Errorf("action %s panicked: %v", j.name, r)
		}
	}()
	logger.Debug("worker: %s", j.name)
	return j.action(w.engine)
}
