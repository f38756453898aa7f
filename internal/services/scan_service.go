package services

import (
	"errors"
	"fmt"
	"time"

	"loyalty-attendance-backend/internal/models"
	"loyalty-attendance-backend/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Scan actions as presented by the scanner stations.
const (
	ActionRegister = "register"
	ActionEnter    = "enter"
	ActionExit     = "exit"
)

// Notifier is the best-effort outbound webhook boundary. Implementations must
// never block the caller beyond their own bounded timeout and never return
// delivery failures into the scan path.
type Notifier interface {
	Notify(eventType string, payload interface{})
}

type ScanRequest struct {
	Code    string
	EventID uuid.UUID
	Action  string

	// Identity of the person being processed; unused for identity-bound
	// (militant) and leader-guest codes.
	PersonaID *uuid.UUID
	Cedula    string
	Phone     string

	// Leader attribution for registration / first-entry scans.
	ReferringLeaderID *uuid.UUID
	GroupID           *uuid.UUID
}

type ScanResult struct {
	Action    string                `json:"action"`
	QrType    string                `json:"qr_type"`
	Message   string                `json:"message"`
	Attendee  *models.EventAttendee `json:"attendee,omitempty"`
	Leader    *models.Persona       `json:"leader,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// ScanService dispatches an incoming scan to the right attendance transition
// based on the QR type. The ledger mutation and the scan-counter consume
// commit in one transaction; validation failures have no side effects.
type ScanService struct {
	repo     *repositories.Repository
	qrSvc    *QrCodeService
	notifier Notifier
}

func NewScanService(repo *repositories.Repository, qrSvc *QrCodeService, notifier Notifier) *ScanService {
	return &ScanService{repo: repo, qrSvc: qrSvc, notifier: notifier}
}

func (s *ScanService) Route(req ScanRequest) (*ScanResult, error) {
	if req.Action != ActionRegister && req.Action != ActionEnter && req.Action != ActionExit {
		return nil, NewDomainError(fmt.Sprintf("unknown scan action: %s", req.Action), ErrInvalidInput, nil)
	}

	qr, err := s.qrSvc.Validate(req.Code)
	if err != nil {
		return nil, err
	}

	event, err := s.repo.Events.GetByID(req.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("event not found", ErrEventNotFound, err)
		}
		return nil, NewDomainError("failed to load event", ErrDatabase, err)
	}

	if err := s.checkScope(qr, event); err != nil {
		return nil, err
	}

	// Leader-guest codes identify the referring leader; they never mutate
	// attendance and are not consumed.
	if qr.Type == models.QrTypeLeaderGuest {
		return s.leaderResult(qr, event)
	}

	if err := checkTypeAction(qr.Type, req.Action); err != nil {
		return nil, err
	}

	personaID, err := s.resolvePersona(qr, req)
	if err != nil {
		return nil, err
	}

	var attendee *models.EventAttendee
	err = s.repo.WithTx(func(tx *repositories.Repository) error {
		ledger := NewAttendanceService(tx)

		var txErr error
		switch req.Action {
		case ActionRegister:
			attendee, txErr = ledger.Register(event.ID, personaID, req.ReferringLeaderID, req.GroupID)
		case ActionEnter:
			fastTrack := qr.Type == models.QrTypeMilitantFastTrack
			attendee, txErr = ledger.Enter(event.ID, personaID, fastTrack, req.ReferringLeaderID, req.GroupID)
		case ActionExit:
			attendee, txErr = ledger.Exit(event.ID, personaID)
		}
		if txErr != nil {
			return txErr
		}

		// Consume only after the ledger mutation succeeded, inside the same
		// transaction, so a failed handler never inflates the counter.
		return s.qrSvc.Consume(tx, qr.ID)
	})
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		Action:    req.Action,
		QrType:    qr.Type,
		Message:   scanMessage(req.Action, qr.Type),
		Attendee:  attendee,
		Timestamp: time.Now(),
	}

	if s.notifier != nil {
		s.notifier.Notify("attendance."+req.Action, map[string]interface{}{
			"event_id":   event.ID,
			"persona_id": personaID,
			"qr_type":    qr.Type,
			"status":     attendee.Status,
		})
	}

	logrus.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"persona_id": personaID,
		"qr_type":    qr.Type,
		"action":     req.Action,
	}).Info("scan processed")

	return result, nil
}

// checkScope rejects codes presented outside the event or campaign they were
// issued for. The code itself is never mutated on rejection.
func (s *ScanService) checkScope(qr *models.QrCode, event *models.Event) error {
	if qr.EventID != nil && *qr.EventID != event.ID {
		return NewDomainError("QR code does not belong to this event", ErrEventMismatch, nil)
	}
	if qr.EventID == nil && qr.CampaignID != event.CampaignID {
		return NewDomainError("QR code not valid for this campaign", ErrCampaignMismatch, nil)
	}
	return nil
}

func (s *ScanService) leaderResult(qr *models.QrCode, event *models.Event) (*ScanResult, error) {
	if qr.OwnerPersonaID == nil {
		logrus.WithField("qr_id", qr.ID).Error("leader guest code without owner")
		return nil, NewDomainError("leader QR code not linked to a persona", ErrIntegrity, nil)
	}

	leader := qr.OwnerPersona
	if leader == nil {
		loaded, err := s.repo.Personas.GetByID(*qr.OwnerPersonaID)
		if err != nil {
			return nil, NewDomainError("leader not found for QR code", ErrIntegrity, err)
		}
		leader = loaded
	}

	return &ScanResult{
		Action:    ActionEnter,
		QrType:    qr.Type,
		Message:   "leader QR scanned, attribute the guest's registration to this leader",
		Leader:    leader,
		Timestamp: time.Now(),
	}, nil
}

func (s *ScanService) resolvePersona(qr *models.QrCode, req ScanRequest) (uuid.UUID, error) {
	if qr.Type == models.QrTypeMilitantFastTrack {
		if qr.OwnerPersonaID == nil {
			logrus.WithField("qr_id", qr.ID).Error("militant code without owner")
			return uuid.Nil, NewDomainError("militant QR code not linked to a persona", ErrIntegrity, nil)
		}
		return *qr.OwnerPersonaID, nil
	}

	if req.PersonaID != nil {
		return *req.PersonaID, nil
	}
	if req.Cedula == "" && req.Phone == "" {
		return uuid.Nil, NewDomainError("persona identification is required", ErrInvalidInput, nil)
	}

	persona, err := s.repo.Personas.FindByCedulaOrPhone(req.Cedula, req.Phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, NewDomainError("persona not found, please register first", ErrPersonaNotFound, err)
		}
		return uuid.Nil, NewDomainError("failed to look up persona", ErrDatabase, err)
	}
	return persona.ID, nil
}

// checkTypeAction enforces the QR-type / scanner-action compatibility matrix.
// A mismatch is a user error and must not consume the code.
func checkTypeAction(qrType, action string) error {
	ok := false
	switch qrType {
	case models.QrTypeRegistration:
		ok = action == ActionRegister
	case models.QrTypeEntry:
		ok = action == ActionEnter
	case models.QrTypeExit:
		ok = action == ActionExit
	case models.QrTypeMilitantFastTrack:
		ok = action == ActionEnter || action == ActionExit
	}
	if !ok {
		return NewDomainError(
			fmt.Sprintf("a %s code cannot be used for %s", qrType, action),
			ErrWrongCodeForAction, nil,
		)
	}
	return nil
}

func scanMessage(action, qrType string) string {
	suffix := ""
	if qrType == models.QrTypeMilitantFastTrack {
		suffix = " (fast-track)"
	}
	switch action {
	case ActionRegister:
		return "registration recorded" + suffix
	case ActionEnter:
		return "check-in recorded" + suffix
	case ActionExit:
		return "check-out recorded" + suffix
	}
	return "scan processed"
}
