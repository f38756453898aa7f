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

const autoCloseNote = "auto-checked out after grace period"

// AttendanceService enforces the attendance state machine for one
// (event, persona) pair: registered -> entered -> completed. Every transition
// is a single conditional write, so concurrent duplicate scans resolve to
// exactly one success and one recognizable already-done error.
type AttendanceService struct {
	repo *repositories.Repository
}

func NewAttendanceService(repo *repositories.Repository) *AttendanceService {
	return &AttendanceService{repo: repo}
}

// Register creates the attendance record. Leader attribution is fixed here and
// never changed afterwards.
func (s *AttendanceService) Register(eventID, personaID uuid.UUID, referringLeaderID, groupID *uuid.UUID) (*models.EventAttendee, error) {
	attendee := &models.EventAttendee{
		ID:                uuid.New(),
		EventID:           eventID,
		PersonaID:         personaID,
		ReferringLeaderID: referringLeaderID,
		GroupID:           groupID,
		Status:            models.AttendanceRegistered,
		RegisteredAt:      time.Now(),
	}

	if err := s.repo.Attendees.Create(attendee); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, NewDomainError("already registered for this event", ErrAlreadyRegistered, err)
		}
		return nil, NewDomainError("failed to create attendance record", ErrDatabase, err)
	}

	return attendee, nil
}

// Enter moves a registered attendee to entered. With fastTrack the record may
// be created on the spot, registered and entered in one step; this is the only
// path allowed to skip the registration precondition. Leader and group
// attribution only apply when the record is created here.
func (s *AttendanceService) Enter(eventID, personaID uuid.UUID, fastTrack bool, referringLeaderID, groupID *uuid.UUID) (*models.EventAttendee, error) {
	now := time.Now()

	if fastTrack {
		attendee := &models.EventAttendee{
			ID:                uuid.New(),
			EventID:           eventID,
			PersonaID:         personaID,
			ReferringLeaderID: referringLeaderID,
			GroupID:           groupID,
			Status:            models.AttendanceEntered,
			RegisteredAt:      now,
			EnteredAt:         &now,
		}
		err := s.repo.Attendees.Create(attendee)
		if err == nil {
			return attendee, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, NewDomainError("failed to create attendance record", ErrDatabase, err)
		}
		// A record already exists (registered earlier, or a concurrent
		// create won); fall through to the normal transition.
	}

	moved, err := s.repo.Attendees.MarkEntered(eventID, personaID, now)
	if err != nil {
		return nil, NewDomainError("failed to record entry", ErrDatabase, err)
	}
	if !moved {
		return nil, s.explainEnterFailure(eventID, personaID)
	}

	attendee, err := s.repo.Attendees.Get(eventID, personaID)
	if err != nil {
		return nil, NewDomainError("failed to load attendance record", ErrDatabase, err)
	}
	return attendee, nil
}

// Exit moves an entered attendee to completed and records the stay duration.
func (s *AttendanceService) Exit(eventID, personaID uuid.UUID) (*models.EventAttendee, error) {
	attendee, err := s.repo.Attendees.Get(eventID, personaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("cannot check out without checking in first", ErrNotEntered, err)
		}
		return nil, NewDomainError("failed to load attendance record", ErrDatabase, err)
	}

	if attendee.EnteredAt == nil {
		return nil, NewDomainError("cannot check out without checking in first", ErrNotEntered, nil)
	}
	if attendee.ExitedAt != nil {
		return nil, NewDomainError("already checked out", ErrAlreadyExited, nil)
	}

	now := time.Now()
	duration := int(now.Sub(*attendee.EnteredAt).Minutes())
	if duration < 0 {
		duration = 0
	}

	moved, err := s.repo.Attendees.MarkExited(eventID, personaID, now, duration)
	if err != nil {
		return nil, NewDomainError("failed to record exit", ErrDatabase, err)
	}
	if !moved {
		// Lost a race against another exit scan for the same persona.
		return nil, NewDomainError("already checked out", ErrAlreadyExited, nil)
	}

	attendee, err = s.repo.Attendees.Get(eventID, personaID)
	if err != nil {
		return nil, NewDomainError("failed to load attendance record", ErrDatabase, err)
	}
	return attendee, nil
}

// ForceCompleteEvent closes every entered-but-not-exited record for the event
// at the given instant. Already-completed and never-entered records are
// untouched. Used by the grace-period auto-checkout.
func (s *AttendanceService) ForceCompleteEvent(eventID uuid.UUID, at time.Time) (int64, error) {
	closed, err := s.repo.Attendees.ForceCompleteEntered(eventID, at, autoCloseNote)
	if err != nil {
		return 0, NewDomainError("failed to auto-checkout attendees", ErrDatabase, err)
	}
	if closed > 0 {
		logrus.WithFields(logrus.Fields{
			"event_id": eventID,
			"closed":   closed,
		}).Info("auto-checkout closed open attendance records")
	}
	return closed, nil
}

// ManualCheckIn resolves the persona by cedula or phone and checks them in,
// creating the record if they never registered.
func (s *AttendanceService) ManualCheckIn(eventID uuid.UUID, cedula, phone string, referringLeaderID, groupID *uuid.UUID) (*models.EventAttendee, error) {
	persona, err := s.lookupPersona(cedula, phone)
	if err != nil {
		return nil, err
	}
	attendee, err := s.Enter(eventID, persona.ID, true, referringLeaderID, groupID)
	if err != nil {
		return nil, err
	}
	attendee.Persona = *persona
	return attendee, nil
}

func (s *AttendanceService) ManualCheckOut(eventID uuid.UUID, cedula, phone string) (*models.EventAttendee, error) {
	persona, err := s.lookupPersona(cedula, phone)
	if err != nil {
		return nil, err
	}
	attendee, err := s.Exit(eventID, persona.ID)
	if err != nil {
		return nil, err
	}
	attendee.Persona = *persona
	return attendee, nil
}

func (s *AttendanceService) ListByEvent(eventID uuid.UUID, offset, limit int) ([]models.EventAttendee, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	attendees, total, err := s.repo.Attendees.ListByEvent(eventID, offset, limit)
	if err != nil {
		return nil, 0, NewDomainError("failed to list attendees", ErrDatabase, err)
	}
	return attendees, total, nil
}

func (s *AttendanceService) lookupPersona(cedula, phone string) (*models.Persona, error) {
	if cedula == "" && phone == "" {
		return nil, NewDomainError("cedula or phone is required", ErrInvalidInput, nil)
	}
	persona, err := s.repo.Personas.FindByCedulaOrPhone(cedula, phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("persona not found, please register first", ErrPersonaNotFound, err)
		}
		return nil, NewDomainError("failed to look up persona", ErrDatabase, err)
	}
	return persona, nil
}

// explainEnterFailure turns a failed entry transition into the precise client
// error. The record is re-read because the conditional update cannot say which
// predicate failed.
func (s *AttendanceService) explainEnterFailure(eventID, personaID uuid.UUID) error {
	attendee, err := s.repo.Attendees.Get(eventID, personaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewDomainError("not registered for this event", ErrNotRegistered, err)
		}
		return NewDomainError("failed to load attendance record", ErrDatabase, err)
	}
	if attendee.EnteredAt != nil {
		return NewDomainError("already checked in", ErrAlreadyEntered, nil)
	}
	logrus.WithFields(logrus.Fields{
		"event_id":   eventID,
		"persona_id": personaID,
		"status":     attendee.Status,
	}).Error("attendance record in impossible state for entry")
	return NewDomainError("attendance record in unexpected state", ErrIntegrity, nil)
}
