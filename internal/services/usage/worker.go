package usage

import (
	"context"
	"sync"

	"github.com/matthiasponsi/token-trackr/internal/models"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Worker is an asynchronous usage recording pool, so instrumented
// callers never block on the database.
type Worker struct {
	service  *Service
	tasks    chan RecordTask
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// RecordTask represents a usage recording task
type RecordTask struct {
	Event     models.UsageEvent
	RequestID string
}

// NewWorker creates a new usage recording worker with the specified pool size
func NewWorker(service *Service, poolSize, bufferSize int) *Worker {
	w := &Worker{
		service: service,
		tasks:   make(chan RecordTask, bufferSize),
		stopped: make(chan struct{}),
	}

	for i := 0; i < poolSize; i++ {
		w.wg.Add(1)
		go w.run()
	}

	return w
}

// Submit submits a usage recording task to the worker pool
func (w *Worker) Submit(event models.UsageEvent, requestID string) {
	select {
	case <-w.stopped:
		fiberlog.Warnf("[%s] Worker stopped, cannot submit usage recording task", requestID)
		return
	case w.tasks <- RecordTask{Event: event, RequestID: requestID}:
		// Task submitted successfully
	default:
		// Buffer full, log warning and drop task
		fiberlog.Warnf("[%s] Usage recording buffer full, dropping task", requestID)
	}
}

// run processes tasks from the queue
func (w *Worker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopped:
			return
		case task := <-w.tasks:
			_, err := w.service.RecordUsage(context.Background(), task.Event)
			if err != nil {
				fiberlog.Errorf("[%s] Failed to record usage event: %v", task.RequestID, err)
			}
		}
	}
}

// Stop gracefully stops the worker pool. The tasks channel is left
// open so a concurrent Submit never sends on a closed channel.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopped)
		w.wg.Wait()
	})
}
