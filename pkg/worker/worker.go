package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
)

var (
	ErrPreExecute = errors.New("pre-execute job error")
	ErrExecute    = errors.New("execute job error")
	ErrStopped    = errors.New("worker already stopped")
)

// Job holds all information regarding the Job
type Job interface {
	// ID return uint64 unique identifier of the job
	ID() uint64

	// Context to tracks down all Job information that important.
	Context() context.Context

	// PreExecute called before Execute, when error Execute never be called.
	PreExecute() error

	// Execute is the real logic of the Job.
	Execute() error

	// PostExecute always called once, after PreExecute fails or after Execute is done.
	// The error is nil on success, otherwise it matches ErrPreExecute or ErrExecute with errors.Is.
	PostExecute(err error)
}

type Service interface {
	AddJob(job Job) error
	Done()
}

// Worker runs jobs on a fixed number of goroutines. With one goroutine jobs run in the order they were added.
type Worker struct {
	waitGroup *sync.WaitGroup
	jobQueue  chan Job
	queued    int64
	logger    Logger

	stopLock sync.RWMutex
	stopped  bool
}

var _ Service = (*Worker)(nil)

func NewWorker(num, maxJob int, logger Logger) *Worker {
	if num < 1 {
		num = 1
	}

	if maxJob < 1 {
		maxJob = 1
	}

	if logger == nil {
		logger = NoopLogger{}
	}

	w := &Worker{
		waitGroup: &sync.WaitGroup{},
		jobQueue:  make(chan Job, maxJob),
		logger:    logger,
	}

	for i := 0; i < num; i++ {
		go w.worker(i + 1)
	}

	return w
}

func (w *Worker) worker(id int) {
	for job := range w.jobQueue {
		t0 := time.Now()
		w.run(job)

		remaining := atomic.AddInt64(&w.queued, -1)
		w.waitGroup.Done()

		w.logger.Debug(job.Context(),
			fmt.Sprintf("worker %d, job id %d, ongoing queue %d, duration %s",
				id, job.ID(), remaining, time.Since(t0).String(),
			),
		)
	}
}

func (w *Worker) run(job Job) {
	if err := job.PreExecute(); err != nil {
		job.PostExecute(multierr.Append(ErrPreExecute, err))
		return
	}

	if err := job.Execute(); err != nil {
		job.PostExecute(multierr.Append(ErrExecute, err))
		return
	}

	job.PostExecute(nil)
}

// AddJob queues the job, blocking while the queue is full. Nil jobs are ignored.
func (w *Worker) AddJob(job Job) error {
	if job == nil {
		return nil
	}

	w.stopLock.RLock()
	defer w.stopLock.RUnlock()

	if w.stopped {
		return ErrStopped
	}

	w.waitGroup.Add(1)
	atomic.AddInt64(&w.queued, 1)
	w.jobQueue <- job
	return nil
}

// Done waits for every queued job to finish and stops the goroutines. The Worker is unusable afterwards.
func (w *Worker) Done() {
	w.stopLock.Lock()
	if w.stopped {
		w.stopLock.Unlock()
		return
	}

	w.stopped = true
	w.stopLock.Unlock()

	w.waitGroup.Wait()
	close(w.jobQueue)
}
