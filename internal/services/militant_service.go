package services

import (
	"errors"

	"loyalty-attendance-backend/internal/models"
	"loyalty-attendance-backend/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MilitantIssueSummary reports one batch issuance run.
type MilitantIssueSummary struct {
	CampaignID uuid.UUID       `json:"campaign_id"`
	Issued     int             `json:"issued"`
	Skipped    int             `json:"skipped"`
	Codes      []models.QrCode `json:"codes"`
}

// MilitantService issues and manages campaign-wide fast-track codes for U4
// personas. A militant code is bound to exactly one persona and valid for
// every event in its campaign, so issuance is find-or-create per persona and
// a rerun only fills gaps.
type MilitantService struct {
	repo     *repositories.Repository
	qrSvc    *QrCodeService
	notifier Notifier
}

func NewMilitantService(repo *repositories.Repository, qrSvc *QrCodeService, notifier Notifier) *MilitantService {
	return &MilitantService{repo: repo, qrSvc: qrSvc, notifier: notifier}
}

// IssueForCampaign issues a militant code for every U4 persona that does not
// already hold one in this campaign.
func (s *MilitantService) IssueForCampaign(campaignID uuid.UUID) (*MilitantIssueSummary, error) {
	if _, err := s.repo.Events.GetCampaignByID(campaignID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("campaign not found", ErrCampaignNotFound, err)
		}
		return nil, NewDomainError("failed to load campaign", ErrDatabase, err)
	}

	militants, err := s.repo.Personas.ListByUniverse(models.UniverseMilitant)
	if err != nil {
		return nil, NewDomainError("failed to list militant personas", ErrDatabase, err)
	}

	summary := &MilitantIssueSummary{CampaignID: campaignID}
	for i := range militants {
		persona := &militants[i]

		existing, err := s.repo.QrCodes.FindCampaignCode(campaignID, models.QrTypeMilitantFastTrack, persona.ID)
		if err == nil && existing != nil {
			summary.Skipped++
			continue
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("failed to look up existing militant code", ErrDatabase, err)
		}

		qr, err := s.qrSvc.Issue(campaignID, nil, models.QrTypeMilitantFastTrack, &persona.ID, nil)
		if err != nil {
			return nil, err
		}
		qr.OwnerPersona = persona
		summary.Issued++
		summary.Codes = append(summary.Codes, *qr)
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"issued":      summary.Issued,
		"skipped":     summary.Skipped,
	}).Info("militant codes issued")

	if s.notifier != nil && summary.Issued > 0 {
		s.notifier.Notify("militant.codes_issued", summary)
	}
	return summary, nil
}

// Regenerate revokes a persona's current militant code and issues a fresh one.
func (s *MilitantService) Regenerate(campaignID, personaID uuid.UUID) (*models.QrCode, error) {
	persona, err := s.repo.Personas.GetByID(personaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("persona not found", ErrPersonaNotFound, err)
		}
		return nil, NewDomainError("failed to load persona", ErrDatabase, err)
	}
	if persona.UniverseType != models.UniverseMilitant {
		return nil, NewDomainError("persona is not in the militant universe", ErrInvalidInput, nil)
	}

	existing, err := s.repo.QrCodes.FindCampaignCode(campaignID, models.QrTypeMilitantFastTrack, personaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No current code: regeneration degrades to plain issuance.
			return s.qrSvc.Issue(campaignID, nil, models.QrTypeMilitantFastTrack, &personaID, nil)
		}
		return nil, NewDomainError("failed to look up militant code", ErrDatabase, err)
	}

	return s.qrSvc.Regenerate(existing.ID)
}

func (s *MilitantService) CampaignCodes(campaignID uuid.UUID) ([]models.QrCode, error) {
	codes, err := s.repo.QrCodes.ListCampaignCodes(campaignID, models.QrTypeMilitantFastTrack)
	if err != nil {
		return nil, NewDomainError("failed to list militant codes", ErrDatabase, err)
	}
	return codes, nil
}

// DeactivateCampaign disables every militant code in the campaign in one
// statement. Existing attendance records are untouched.
func (s *MilitantService) DeactivateCampaign(campaignID uuid.UUID) (int64, error) {
	n, err := s.repo.QrCodes.SetCampaignTypeActive(campaignID, models.QrTypeMilitantFastTrack, false)
	if err != nil {
		return 0, NewDomainError("failed to deactivate militant codes", ErrDatabase, err)
	}
	logrus.WithFields(logrus.Fields{"campaign_id": campaignID, "codes": n}).
		Info("militant codes deactivated")
	return n, nil
}

func (s *MilitantService) ReactivateCampaign(campaignID uuid.UUID) (int64, error) {
	n, err := s.repo.QrCodes.SetCampaignTypeActive(campaignID, models.QrTypeMilitantFastTrack, true)
	if err != nil {
		return 0, NewDomainError("failed to reactivate militant codes", ErrDatabase, err)
	}
	logrus.WithFields(logrus.Fields{"campaign_id": campaignID, "codes": n}).
		Info("militant codes reactivated")
	return n, nil
}
