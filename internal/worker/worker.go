package worker

import (
	"context"
	"encoding/json"

	"loyalty-attendance-backend/internal/queue"
	"loyalty-attendance-backend/internal/services"

	"github.com/sirupsen/logrus"
)

// Worker consumes scheduled tasks from the delayed queue and hands them to
// the scheduler. It owns no retry logic; the scheduler re-publishes failures
// itself.
type Worker struct {
	client    *queue.Client
	scheduler *services.SchedulerService
	done      chan struct{}
	cancel    context.CancelFunc
}

func New(client *queue.Client, scheduler *services.SchedulerService) *Worker {
	return &Worker{
		client:    client,
		scheduler: scheduler,
		done:      make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	handler := func(body []byte) error {
		var msg services.TaskMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			logrus.WithError(err).WithField("body", string(body)).
				Error("malformed task message dropped")
			return nil
		}

		logrus.WithFields(logrus.Fields{
			"kind":     msg.Kind,
			"event_id": msg.EventID,
			"attempt":  msg.Attempt,
		}).Info("task received")

		return w.scheduler.Handle(msg)
	}

	if err := w.client.Consume(handler); err != nil {
		cancel()
		close(w.done)
		return err
	}

	go func() {
		defer close(w.done)
		<-cctx.Done()
		logrus.Info("task worker stopped")
	}()
	return nil
}

func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
}
