package services

import (
	"errors"
	"fmt"
	"time"

	"loyalty-attendance-backend/internal/config"
	"loyalty-attendance-backend/internal/models"
	"loyalty-attendance-backend/internal/repositories"
	"loyalty-attendance-backend/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// issueRetries bounds collision retries on the unique code index. With 80 bits
// of entropy a single retry is already vanishingly unlikely; exhausting the
// budget is treated as a data-integrity fault.
const issueRetries = 5

var codePrefixes = map[string]string{
	models.QrTypeRegistration:      "QR1",
	models.QrTypeEntry:             "QR2",
	models.QrTypeExit:              "QR3",
	models.QrTypeLeaderGuest:       "QR2L",
	models.QrTypeMilitantFastTrack: "QRM",
}

// QrCodeService owns QR code records: validation, scan counting, issuance and
// regeneration.
type QrCodeService struct {
	repo *repositories.Repository
	cfg  *config.Config
}

func NewQrCodeService(repo *repositories.Repository, cfg *config.Config) *QrCodeService {
	return &QrCodeService{repo: repo, cfg: cfg}
}

// Validate looks the code up and checks activity and expiry. It never mutates
// the record.
func (s *QrCodeService) Validate(code string) (*models.QrCode, error) {
	if code == "" {
		return nil, NewDomainError("QR code is required", ErrInvalidInput, nil)
	}

	qr, err := s.repo.QrCodes.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("QR code not found", ErrQrNotFound, err)
		}
		return nil, NewDomainError("failed to look up QR code", ErrDatabase, err)
	}

	if !qr.Active {
		return nil, NewDomainError("QR code is inactive", ErrQrInactive, nil)
	}
	if qr.ExpiresAt != nil && qr.ExpiresAt.Before(time.Now()) {
		return nil, NewDomainError("QR code has expired", ErrQrExpired, nil)
	}

	return qr, nil
}

// Consume bumps the scan counter. Callers pass their transaction-scoped
// repository so the increment commits together with the handler's side effect.
func (s *QrCodeService) Consume(repo *repositories.Repository, qrID uuid.UUID) error {
	if err := repo.QrCodes.IncrementScanCount(qrID); err != nil {
		return NewDomainError("failed to record scan", ErrDatabase, err)
	}
	return nil
}

// Issue creates a new code of the given type. Pass a nil eventID for
// campaign-wide codes (militant fast-track).
func (s *QrCodeService) Issue(campaignID uuid.UUID, eventID *uuid.UUID, qrType string, ownerPersonaID *uuid.UUID, expiresAt *time.Time) (*models.QrCode, error) {
	prefix, ok := codePrefixes[qrType]
	if !ok {
		return nil, NewDomainError(fmt.Sprintf("unknown QR type: %s", qrType), ErrInvalidInput, nil)
	}
	if qrType == models.QrTypeLeaderGuest && ownerPersonaID == nil {
		return nil, NewDomainError("leader guest codes must be bound to a leader", ErrInvalidInput, nil)
	}
	if qrType == models.QrTypeMilitantFastTrack && eventID != nil {
		return nil, NewDomainError("militant codes are campaign-wide", ErrInvalidInput, nil)
	}

	var lastErr error
	for attempt := 0; attempt < issueRetries; attempt++ {
		code, err := utils.QrCodeString(prefix)
		if err != nil {
			return nil, NewDomainError("failed to generate code", ErrDatabase, err)
		}

		qr := &models.QrCode{
			ID:             uuid.New(),
			CampaignID:     campaignID,
			EventID:        eventID,
			Type:           qrType,
			Code:           code,
			OwnerPersonaID: ownerPersonaID,
			Active:         true,
			ExpiresAt:      expiresAt,
		}

		if err := s.repo.QrCodes.Create(qr); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				lastErr = err
				continue
			}
			return nil, NewDomainError("failed to store QR code", ErrDatabase, err)
		}

		s.renderImage(qr)
		return qr, nil
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"type":        qrType,
	}).Error("QR code collision retry budget exhausted")
	return nil, NewDomainError("could not generate a unique QR code", ErrIntegrity, lastErr)
}

// Regenerate deactivates an existing code and issues a replacement bound to
// the same campaign/event/type/owner, for lost or compromised codes.
func (s *QrCodeService) Regenerate(existingID uuid.UUID) (*models.QrCode, error) {
	old, err := s.repo.QrCodes.GetByID(existingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("QR code not found", ErrQrNotFound, err)
		}
		return nil, NewDomainError("failed to look up QR code", ErrDatabase, err)
	}

	if err := s.repo.QrCodes.Deactivate(old.ID); err != nil {
		return nil, NewDomainError("failed to deactivate old QR code", ErrDatabase, err)
	}

	replacement, err := s.Issue(old.CampaignID, old.EventID, old.Type, old.OwnerPersonaID, old.ExpiresAt)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"old_qr_id": old.ID,
		"new_qr_id": replacement.ID,
		"type":      old.Type,
	}).Info("QR code regenerated")

	return replacement, nil
}

// EventQrSet is the full set of codes issued when an event is created.
type EventQrSet struct {
	Registration *models.QrCode               `json:"registration"`
	Entry        *models.QrCode               `json:"entry"`
	Exit         *models.QrCode               `json:"exit"`
	LeaderCodes  map[uuid.UUID]*models.QrCode `json:"leader_codes"`
}

// IssueEventSet issues the registration, entry and exit codes for an event,
// plus one leader-guest code per leader persona. Codes that already exist are
// reused, so the call is safe to repeat.
func (s *QrCodeService) IssueEventSet(event *models.Event) (*EventQrSet, error) {
	set := &EventQrSet{LeaderCodes: make(map[uuid.UUID]*models.QrCode)}

	for _, qrType := range []string{models.QrTypeRegistration, models.QrTypeEntry, models.QrTypeExit} {
		qr, err := s.findOrIssueEventCode(event, qrType, nil)
		if err != nil {
			return nil, err
		}
		switch qrType {
		case models.QrTypeRegistration:
			set.Registration = qr
		case models.QrTypeEntry:
			set.Entry = qr
		case models.QrTypeExit:
			set.Exit = qr
		}
	}

	leaders, err := s.repo.Personas.ListByUniverse(models.UniverseLeader)
	if err != nil {
		return nil, NewDomainError("failed to list leaders", ErrDatabase, err)
	}
	for i := range leaders {
		leader := leaders[i]
		if !leader.IsLeader {
			continue
		}
		qr, err := s.findOrIssueEventCode(event, models.QrTypeLeaderGuest, &leader.ID)
		if err != nil {
			return nil, err
		}
		set.LeaderCodes[leader.ID] = qr
	}

	logrus.WithFields(logrus.Fields{
		"event_id":     event.ID,
		"leader_codes": len(set.LeaderCodes),
	}).Info("issued event QR set")

	return set, nil
}

func (s *QrCodeService) DeactivateEventCodes(eventID uuid.UUID) (int64, error) {
	count, err := s.repo.QrCodes.DeactivateEventCodes(eventID)
	if err != nil {
		return 0, NewDomainError("failed to deactivate event codes", ErrDatabase, err)
	}
	return count, nil
}

func (s *QrCodeService) findOrIssueEventCode(event *models.Event, qrType string, owner *uuid.UUID) (*models.QrCode, error) {
	existing, err := s.repo.QrCodes.FindEventCode(event.ID, qrType, owner)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewDomainError("failed to look up event code", ErrDatabase, err)
	}
	eventID := event.ID
	return s.Issue(event.CampaignID, &eventID, qrType, owner, nil)
}

// renderImage writes the PNG artifact; failures are logged, never propagated,
// since the record itself is already committed and scannable by string.
func (s *QrCodeService) renderImage(qr *models.QrCode) {
	filename, err := utils.GenerateQRCodeImage(qr.Code, s.cfg.QRDir)
	if err != nil {
		logrus.WithError(err).WithField("qr_id", qr.ID).Warn("failed to render QR image")
		return
	}
	qr.ImagePath = "/qrcodes/" + filename
	if err := s.repo.QrCodes.UpdateImagePath(qr.ID, qr.ImagePath); err != nil {
		logrus.WithError(err).WithField("qr_id", qr.ID).Warn("failed to store QR image path")
	}
}
