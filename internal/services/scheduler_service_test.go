package services

import (
	"errors"
	"testing"
	"time"

	"loyalty-attendance-backend/internal/models"
)

var errTestPublish = errors.New("broker unavailable")

func newSchedulerFixture(t *testing.T) (*SchedulerService, *memTaskQueue, *memStore, *AttendanceService) {
	t.Helper()
	repo, store := newTestRepo()
	queue := &memTaskQueue{}
	bonus := NewBonusService(repo)
	svc := NewSchedulerService(repo, queue, bonus, &memNotifier{}, 3, time.Minute)
	return svc, queue, store, NewAttendanceService(repo)
}

func TestEndEventSchedulesAutoCheckout(t *testing.T) {
	svc, queue, store, _ := newSchedulerFixture(t)
	campaign := store.addCampaign()
	event := store.addEvent(campaign.ID)

	endedAt := time.Now()
	if err := svc.EndEvent(event.ID, endedAt); err != nil {
		t.Fatalf("EndEvent: %v", err)
	}

	stored := store.events[event.ID]
	if stored.EndedAt == nil || !stored.AutoCloseScheduled {
		t.Fatalf("event not ended/flagged: ended_at=%v scheduled=%v", stored.EndedAt, stored.AutoCloseScheduled)
	}

	if len(queue.published) != 1 {
		t.Fatalf("published tasks = %d, want 1", len(queue.published))
	}
	task := queue.published[0]
	if task.msg.Kind != TaskAutoCheckout || task.msg.EventID != event.ID {
		t.Fatalf("unexpected task: %+v", task.msg)
	}
	wantNotBefore := endedAt.Add(time.Hour)
	if !task.msg.NotBefore.Equal(wantNotBefore) {
		t.Fatalf("not_before = %v, want %v", task.msg.NotBefore, wantNotBefore)
	}
	if task.delay < 59*time.Minute || task.delay > time.Hour {
		t.Fatalf("delay = %v, want about one hour", task.delay)
	}
}

func TestEndEventRepeatIsNoOp(t *testing.T) {
	svc, queue, store, _ := newSchedulerFixture(t)
	campaign := store.addCampaign()
	event := store.addEvent(campaign.ID)

	firstEnd := time.Now()
	if err := svc.EndEvent(event.ID, firstEnd); err != nil {
		t.Fatalf("first EndEvent: %v", err)
	}
	if err := svc.EndEvent(event.ID, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("repeated EndEvent: %v", err)
	}

	// The first ending stands: no second task and no moved timestamp.
	if len(queue.published) != 1 {
		t.Fatalf("published tasks = %d, want 1", len(queue.published))
	}
	if !store.events[event.ID].EndedAt.Equal(firstEnd) {
		t.Fatalf("ended_at moved to %v on repeat", store.events[event.ID].EndedAt)
	}
}

func TestEndEventPublishFailureResetsFlag(t *testing.T) {
	svc, queue, store, _ := newSchedulerFixture(t)
	campaign := store.addCampaign()
	event := store.addEvent(campaign.ID)

	queue.failNext = errTestPublish
	if err := svc.EndEvent(event.ID, time.Now()); err == nil {
		t.Fatal("EndEvent succeeded despite publish failure")
	}
	if store.events[event.ID].AutoCloseScheduled {
		t.Fatal("auto-close flag left set after publish failure")
	}
}

func TestHandleAutoCheckoutRequeuesEarlyWakeup(t *testing.T) {
	svc, queue, store, _ := newSchedulerFixture(t)
	campaign := store.addCampaign()
	event := store.addEvent(campaign.ID)

	notBefore := time.Now().Add(30 * time.Minute)
	msg := TaskMessage{Kind: TaskAutoCheckout, EventID: event.ID, NotBefore: notBefore}
	if err := svc.Handle(msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(queue.published) != 1 {
		t.Fatalf("published tasks = %d, want 1 re-enqueue", len(queue.published))
	}
	re := queue.published[0]
	if re.msg.Kind != TaskAutoCheckout || !re.msg.NotBefore.Equal(notBefore) {
		t.Fatalf("re-enqueued task mutated: %+v", re.msg)
	}
	if re.delay <= 0 || re.delay > 30*time.Minute {
		t.Fatalf("remaining delay = %v", re.delay)
	}
}

func TestHandleEarlyWakeupRequeueFailureDoesNotRunEarly(t *testing.T) {
	svc, queue, store, ledger := newSchedulerFixture(t)
	campaign := store.addCampaign()
	event := store.addEvent(campaign.ID)
	persona := store.addPersona(models.UniverseGeneral)
	mustRegisterAndEnter(t, ledger, event.ID, persona.ID)

	if err := svc.EndEvent(event.ID, time.Now()); err != nil {
		t.Fatalf("EndEvent: %v", err)
	}
	queue.published = nil

	msg := TaskMessage{Kind: TaskAutoCheckout, EventID: event.ID, NotBefore: time.Now().Add(30 * time.Minute)}
	queue.failNext = errTestPublish
	if err := svc.Handle(msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// The task woke before its not_before and could not be re-enqueued; it
	// must go through the retry path, never force-complete attendees early.
	open := store.findAttendee(event.ID, persona.ID)
	if open.Status != models.AttendanceEntered {
		t.Fatalf("attendee mutated by an early task: %s", open.Status)
	}
	if len(queue.published) != 1 {
		t.Fatalf("published tasks = %d, want 1 retry", len(queue.published))
	}
	retry := queue.published[0]
	if retry.msg.Attempt != 1 || retry.delay != time.Minute {
		t.Fatalf("retry attempt=%d delay=%v, want 1/%v", retry.msg.Attempt, retry.delay, time.Minute)
	}
}

func TestHandleAutoCheckoutClosesAndChainsDistribution(t *testing.T) {
	svc, queue, store, ledger := newSchedulerFixture(t)
	campaign := store.addCampaign()
	event := store.addEvent(campaign.ID)
	persona := store.addPersona(models.UniverseGeneral)
	mustRegisterAndEnter(t, ledger, event.ID, persona.ID)

	if err := svc.EndEvent(event.ID, time.Now().Add(-2*time.Hour)); err != nil {
		t.Fatalf("EndEvent: %v", err)
	}
	queue.published = nil

	msg := TaskMessage{Kind: TaskAutoCheckout, EventID: event.ID, NotBefore: time.Now().Add(-time.Minute)}
	if err := svc.Handle(msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	closed := store.findAttendee(event.ID, persona.ID)
	if closed.Status != models.AttendanceCompleted || !closed.SystemClosed {
		t.Fatalf("attendee not auto-closed: %+v", closed)
	}

	if store.events[event.ID].AutoCloseScheduled {
		t.Fatal("auto-close flag not cleared after successful run")
	}
	if !store.events[event.ID].PointsDistributionScheduled {
		t.Fatal("distribution flag not set")
	}
	if len(queue.published) != 1 || queue.published[0].msg.Kind != TaskDistributePoints {
		t.Fatalf("chained task missing: %+v", queue.published)
	}
	if queue.published[0].delay != 0 {
		t.Fatalf("chained task delayed by %v, want immediate", queue.published[0].delay)
	}
}

func TestHandleDistributePointsRuns(t *testing.T) {
	svc, queue, store, ledger := newSchedulerFixture(t)
	campaign := store.addCampaign()
	event := store.addEvent(campaign.ID)
	persona := store.addPersona(models.UniverseGeneral)
	completeAttendee(t, ledger, event.ID, persona.ID, nil)
	endEventNow(store, event)
	store.events[event.ID].PointsDistributionScheduled = true

	msg := TaskMessage{Kind: TaskDistributePoints, EventID: event.ID, NotBefore: time.Now().Add(-time.Second)}
	if err := svc.Handle(msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if !store.events[event.ID].PointsDistributed {
		t.Fatal("distribution did not run")
	}
	if store.events[event.ID].PointsDistributionScheduled {
		t.Fatal("distribution flag not cleared after successful run")
	}
	if store.personas[persona.ID].LoyaltyBalance != 50 {
		t.Fatalf("balance = %d, want 50", store.personas[persona.ID].LoyaltyBalance)
	}

	// Redelivery after success is a clean no-op with no retry publishes.
	queue.published = nil
	if err := svc.Handle(msg); err != nil {
		t.Fatalf("redelivered Handle: %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatalf("redelivery published %d tasks", len(queue.published))
	}
	if store.personas[persona.ID].LoyaltyBalance != 50 {
		t.Fatal("redelivery double-awarded points")
	}
}

func TestHandleDistributePointsRetriesWithBackoff(t *testing.T) {
	svc, queue, store, _ := newSchedulerFixture(t)
	campaign := store.addCampaign()
	event := store.addEvent(campaign.ID)
	// Event never ended: distribution fails and must be retried.

	msg := TaskMessage{Kind: TaskDistributePoints, EventID: event.ID, NotBefore: time.Now().Add(-time.Second)}
	if err := svc.Handle(msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(queue.published) != 1 {
		t.Fatalf("published tasks = %d, want 1 retry", len(queue.published))
	}
	retry := queue.published[0]
	if retry.msg.Attempt != 1 || retry.delay != time.Minute {
		t.Fatalf("retry attempt=%d delay=%v, want 1/%v", retry.msg.Attempt, retry.delay, time.Minute)
	}

	// Second failure backs off linearly.
	queue.published = nil
	if err := svc.Handle(retry.msg); err != nil {
		t.Fatalf("Handle retry: %v", err)
	}
	if queue.published[0].msg.Attempt != 2 || queue.published[0].delay != 2*time.Minute {
		t.Fatalf("second retry = %+v", queue.published[0])
	}

	// Attempt budget exhausted: flag reset, nothing published.
	store.events[event.ID].PointsDistributionScheduled = true
	queue.published = nil
	terminal := TaskMessage{
		Kind:      TaskDistributePoints,
		EventID:   event.ID,
		NotBefore: time.Now().Add(-time.Second),
		Attempt:   2,
	}
	if err := svc.Handle(terminal); err != nil {
		t.Fatalf("terminal Handle: %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatalf("terminal failure still published %d tasks", len(queue.published))
	}
	if store.events[event.ID].PointsDistributionScheduled {
		t.Fatal("distribution flag not reset on terminal failure")
	}
}

func TestHandleUnknownKindDropped(t *testing.T) {
	svc, queue, _, _ := newSchedulerFixture(t)
	if err := svc.Handle(TaskMessage{Kind: "mystery"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatal("unknown kind produced publishes")
	}
}
