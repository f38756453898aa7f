package services

import (
	"errors"
	"time"

	"loyalty-attendance-backend/internal/models"
	"loyalty-attendance-backend/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Task kinds carried on the delayed queue.
const (
	TaskAutoCheckout     = "auto_checkout"
	TaskDistributePoints = "distribute_points"
)

// TaskMessage is the payload published to the delayed exchange. NotBefore is
// authoritative: delivery timing is best effort, so every handler re-checks it
// and re-enqueues the remaining delay on a premature wake-up.
type TaskMessage struct {
	Kind      string    `json:"kind"`
	EventID   uuid.UUID `json:"event_id"`
	NotBefore time.Time `json:"not_before"`
	Attempt   int       `json:"attempt"`
}

// TaskQueue publishes a task for delivery after the given delay.
type TaskQueue interface {
	PublishDelayed(msg TaskMessage, delay time.Duration) error
}

// SchedulerService drives the post-event pipeline: ending an event schedules a
// delayed auto-checkout at the end of the grace period, which force-completes
// open attendances and then chains a points distribution task. Delivery is
// at-least-once; the event's scheduling flags and the distribution engine's
// own guard make redelivery harmless.
type SchedulerService struct {
	repo     *repositories.Repository
	queue    TaskQueue
	bonus    *BonusService
	notifier Notifier

	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

func NewSchedulerService(repo *repositories.Repository, queue TaskQueue, bonus *BonusService, notifier Notifier, maxAttempts int, backoff time.Duration) *SchedulerService {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = time.Minute
	}
	return &SchedulerService{
		repo:        repo,
		queue:       queue,
		bonus:       bonus,
		notifier:    notifier,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		now:         time.Now,
	}
}

// EndEvent marks the event as ended and schedules the auto-checkout task for
// the end of the grace period. Ending is a one-shot conditional update, so a
// repeated call is a no-op: the first scheduling stands and nothing is
// re-published.
func (s *SchedulerService) EndEvent(eventID uuid.UUID, at time.Time) error {
	event, err := s.loadEvent(eventID)
	if err != nil {
		return err
	}

	ended, err := s.repo.Events.MarkEnded(eventID, at)
	if err != nil {
		return NewDomainError("failed to end event", ErrDatabase, err)
	}
	if !ended {
		logrus.WithField("event_id", eventID).Info("event already ended, nothing to schedule")
		return nil
	}
	event.EndedAt = &at

	if err := s.repo.Events.SetAutoCloseScheduled(eventID, true); err != nil {
		return NewDomainError("failed to flag auto-close", ErrDatabase, err)
	}

	notBefore := event.GracePeriodEnd()
	msg := TaskMessage{Kind: TaskAutoCheckout, EventID: eventID, NotBefore: notBefore}
	if err := s.queue.PublishDelayed(msg, time.Until(notBefore)); err != nil {
		// Roll the flag back so a manual retry can reschedule.
		if resetErr := s.repo.Events.SetAutoCloseScheduled(eventID, false); resetErr != nil {
			logrus.WithError(resetErr).WithField("event_id", eventID).
				Error("failed to reset auto-close flag after publish failure")
		}
		return NewDomainError("failed to schedule auto-checkout", ErrDatabase, err)
	}

	logrus.WithFields(logrus.Fields{
		"event_id":   eventID,
		"not_before": notBefore,
	}).Info("event ended, auto-checkout scheduled")
	return nil
}

// Handle dispatches one delivered task. A nil return means the message is
// done (acked); retries and re-enqueues are explicit publishes, never broker
// redeliveries.
func (s *SchedulerService) Handle(msg TaskMessage) error {
	switch msg.Kind {
	case TaskAutoCheckout:
		return s.handleAutoCheckout(msg)
	case TaskDistributePoints:
		return s.handleDistributePoints(msg)
	default:
		logrus.WithField("kind", msg.Kind).Warn("unknown task kind dropped")
		return nil
	}
}

func (s *SchedulerService) handleAutoCheckout(msg TaskMessage) error {
	requeued, err := s.requeueIfEarly(msg)
	if err != nil {
		return s.retry(msg, err)
	}
	if requeued {
		return nil
	}

	event, err := s.loadEvent(msg.EventID)
	if err != nil {
		if IsKind(err, ErrEventNotFound) {
			logrus.WithField("event_id", msg.EventID).Warn("auto-checkout task for missing event dropped")
			return nil
		}
		return s.retry(msg, err)
	}
	if event.EndedAt == nil {
		// The flag machinery guarantees an ended event here; anything else
		// is corrupt state and retrying will not fix it.
		logrus.WithField("event_id", msg.EventID).Error("auto-checkout task for event that never ended")
		return s.clearAutoClose(msg.EventID)
	}

	closed, err := s.RunAutoCheckout(msg.EventID, s.now())
	if err != nil {
		return s.retry(msg, err)
	}
	if err := s.repo.Events.SetAutoCloseScheduled(msg.EventID, false); err != nil {
		return s.retry(msg, err)
	}

	logrus.WithFields(logrus.Fields{
		"event_id": msg.EventID,
		"closed":   closed,
	}).Info("auto-checkout completed")

	// Chain distribution. Its not_before is now: the grace period already
	// elapsed while this task was waiting.
	if err := s.repo.Events.SetPointsDistributionScheduled(msg.EventID, true); err != nil {
		return s.retry(msg, err)
	}
	next := TaskMessage{Kind: TaskDistributePoints, EventID: msg.EventID, NotBefore: s.now()}
	if err := s.queue.PublishDelayed(next, 0); err != nil {
		if resetErr := s.repo.Events.SetPointsDistributionScheduled(msg.EventID, false); resetErr != nil {
			logrus.WithError(resetErr).WithField("event_id", msg.EventID).
				Error("failed to reset distribution flag after publish failure")
		}
		return s.retry(msg, err)
	}
	return nil
}

func (s *SchedulerService) handleDistributePoints(msg TaskMessage) error {
	requeued, err := s.requeueIfEarly(msg)
	if err != nil {
		return s.retryDistribution(msg, err)
	}
	if requeued {
		return nil
	}

	summary, err := s.bonus.Distribute(msg.EventID, false)
	if err != nil {
		switch KindOf(err) {
		case ErrAlreadyDistributed:
			// Redelivered after a successful run.
			return s.repo.Events.SetPointsDistributionScheduled(msg.EventID, false)
		case ErrEventNotFound:
			logrus.WithField("event_id", msg.EventID).Warn("distribution task for missing event dropped")
			return nil
		}
		return s.retryDistribution(msg, err)
	}
	if err := s.repo.Events.SetPointsDistributionScheduled(msg.EventID, false); err != nil {
		// Points are committed; the retry lands on the already-distributed
		// guard and only re-attempts the flag clear.
		return s.retryDistribution(msg, err)
	}

	if s.notifier != nil {
		s.notifier.Notify("points.distributed", summary)
	}
	return nil
}

// RunAutoCheckout force-completes every still-open attendance for the event.
// Shared by the queue handler and the manual admin endpoint.
func (s *SchedulerService) RunAutoCheckout(eventID uuid.UUID, at time.Time) (int64, error) {
	ledger := NewAttendanceService(s.repo)
	closed, err := ledger.ForceCompleteEvent(eventID, at)
	if err != nil {
		return 0, err
	}
	if s.notifier != nil && closed > 0 {
		s.notifier.Notify("attendance.auto_closed", map[string]interface{}{
			"event_id": eventID,
			"closed":   closed,
		})
	}
	return closed, nil
}

// requeueIfEarly re-publishes a task that woke before its not_before with the
// remaining delay. Returns true when the caller should ack and stop. A task
// must never execute before its not_before, so a failed re-enqueue is an
// error for the caller's retry path, not a license to run early.
func (s *SchedulerService) requeueIfEarly(msg TaskMessage) (bool, error) {
	remaining := msg.NotBefore.Sub(s.now())
	if remaining <= 0 {
		return false, nil
	}
	if err := s.queue.PublishDelayed(msg, remaining); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event_id": msg.EventID,
			"kind":     msg.Kind,
		}).Error("failed to re-enqueue early task")
		return false, err
	}
	logrus.WithFields(logrus.Fields{
		"event_id":  msg.EventID,
		"kind":      msg.Kind,
		"remaining": remaining,
	}).Info("task woke early, re-enqueued")
	return true, nil
}

func (s *SchedulerService) retry(msg TaskMessage, cause error) error {
	return s.scheduleRetry(msg, cause, func() error {
		return s.clearAutoClose(msg.EventID)
	})
}

func (s *SchedulerService) retryDistribution(msg TaskMessage, cause error) error {
	return s.scheduleRetry(msg, cause, func() error {
		return s.repo.Events.SetPointsDistributionScheduled(msg.EventID, false)
	})
}

// scheduleRetry re-publishes with linear backoff until the attempt budget is
// spent, then runs the terminal cleanup so the manual endpoints can take over.
func (s *SchedulerService) scheduleRetry(msg TaskMessage, cause error, terminal func() error) error {
	next := msg
	next.Attempt++

	if next.Attempt >= s.maxAttempts {
		logrus.WithError(cause).WithFields(logrus.Fields{
			"event_id": msg.EventID,
			"kind":     msg.Kind,
			"attempts": next.Attempt,
		}).Error("task failed permanently, resetting scheduling flags")
		if err := terminal(); err != nil {
			logrus.WithError(err).WithField("event_id", msg.EventID).
				Error("terminal cleanup failed")
		}
		return nil
	}

	delay := time.Duration(next.Attempt) * s.backoff
	if err := s.queue.PublishDelayed(next, delay); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event_id": msg.EventID,
			"kind":     msg.Kind,
		}).Error("failed to publish retry")
		return err
	}

	logrus.WithError(cause).WithFields(logrus.Fields{
		"event_id": msg.EventID,
		"kind":     msg.Kind,
		"attempt":  next.Attempt,
		"delay":    delay,
	}).Warn("task failed, retry scheduled")
	return nil
}

func (s *SchedulerService) clearAutoClose(eventID uuid.UUID) error {
	if err := s.repo.Events.SetAutoCloseScheduled(eventID, false); err != nil {
		logrus.WithError(err).WithField("event_id", eventID).
			Error("failed to clear auto-close flag")
		return err
	}
	return nil
}

func (s *SchedulerService) loadEvent(eventID uuid.UUID) (*models.Event, error) {
	event, err := s.repo.Events.GetByID(eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("event not found", ErrEventNotFound, err)
		}
		return nil, NewDomainError("failed to load event", ErrDatabase, err)
	}
	return event, nil
}
