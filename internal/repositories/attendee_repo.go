package repositories

import (
	"time"

	"loyalty-attendance-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type attendeeRepo struct {
	db *gorm.DB
}

func NewAttendeeRepository(db *gorm.DB) AttendeeRepository {
	return &attendeeRepo{db: db}
}

// Create relies on the (event_id, persona_id) unique index: a concurrent
// double-registration surfaces as gorm.ErrDuplicatedKey for exactly one caller.
func (r *attendeeRepo) Create(a *models.EventAttendee) error {
	return r.db.Create(a).Error
}

func (r *attendeeRepo) Get(eventID, personaID uuid.UUID) (*models.EventAttendee, error) {
	var attendee models.EventAttendee
	if err := r.db.
		Where("event_id = ? AND persona_id = ?", eventID, personaID).
		First(&attendee).Error; err != nil {
		return nil, err
	}
	return &attendee, nil
}

// MarkEntered is a single conditional UPDATE: of two concurrent entry scans
// exactly one matches the registered-and-not-entered predicate.
func (r *attendeeRepo) MarkEntered(eventID, personaID uuid.UUID, at time.Time) (bool, error) {
	result := r.db.Model(&models.EventAttendee{}).
		Where("event_id = ? AND persona_id = ? AND status = ? AND entered_at IS NULL",
			eventID, personaID, models.AttendanceRegistered).
		Updates(map[string]interface{}{
			"status":     models.AttendanceEntered,
			"entered_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *attendeeRepo) MarkExited(eventID, personaID uuid.UUID, at time.Time, durationMinutes int) (bool, error) {
	result := r.db.Model(&models.EventAttendee{}).
		Where("event_id = ? AND persona_id = ? AND status = ? AND exited_at IS NULL",
			eventID, personaID, models.AttendanceEntered).
		Updates(map[string]interface{}{
			"status":           models.AttendanceCompleted,
			"exited_at":        at,
			"duration_minutes": durationMinutes,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ForceCompleteEntered closes every still-open entered record for the event in
// one statement; individual durations are derived from entered_at in SQL.
func (r *attendeeRepo) ForceCompleteEntered(eventID uuid.UUID, at time.Time, note string) (int64, error) {
	result := r.db.Model(&models.EventAttendee{}).
		Where("event_id = ? AND status = ? AND exited_at IS NULL",
			eventID, models.AttendanceEntered).
		Updates(map[string]interface{}{
			"status":           models.AttendanceCompleted,
			"exited_at":        at,
			"system_closed":    true,
			"notes":            note,
			"duration_minutes": gorm.Expr("GREATEST(CAST(EXTRACT(EPOCH FROM (?::timestamptz - entered_at)) / 60 AS INTEGER), 0)", at),
		})
	return result.RowsAffected, result.Error
}

func (r *attendeeRepo) ListCompletedUnsettled(eventID uuid.UUID) ([]models.EventAttendee, error) {
	var attendees []models.EventAttendee
	if err := r.db.Preload("Persona").
		Where("event_id = ? AND status = ? AND points_settled = ?",
			eventID, models.AttendanceCompleted, false).
		Order("registered_at ASC").
		Find(&attendees).Error; err != nil {
		return nil, err
	}
	return attendees, nil
}

func (r *attendeeRepo) CountCompletedByLeader(eventID, leaderID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.Model(&models.EventAttendee{}).
		Where("event_id = ? AND referring_leader_id = ? AND status = ?",
			eventID, leaderID, models.AttendanceCompleted).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *attendeeRepo) SettlePoints(id uuid.UUID, points int) error {
	return r.db.Model(&models.EventAttendee{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"points_awarded": points,
			"points_settled": true,
		}).Error
}

// ResetPoints clears settlement state for a forced recalculation; timestamps
// and status are preserved.
func (r *attendeeRepo) ResetPoints(eventID uuid.UUID) error {
	return r.db.Model(&models.EventAttendee{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"points_awarded": 0,
			"points_settled": false,
		}).Error
}

func (r *attendeeRepo) ListByEvent(eventID uuid.UUID, offset, limit int) ([]models.EventAttendee, int64, error) {
	var attendees []models.EventAttendee
	var total int64

	if err := r.db.Model(&models.EventAttendee{}).
		Where("event_id = ?", eventID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := r.db.Preload("Persona").
		Where("event_id = ?", eventID).
		Offset(offset).Limit(limit).
		Order("registered_at ASC").
		Find(&attendees).Error; err != nil {
		return nil, 0, err
	}

	return attendees, total, nil
}
