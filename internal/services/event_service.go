package services

import (
	"errors"
	"strings"
	"time"

	"loyalty-attendance-backend/internal/models"
	"loyalty-attendance-backend/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventService manages campaigns and events. Creating an event also issues
// its QR set so scanner stations are usable immediately.
type EventService struct {
	repo         *repositories.Repository
	qrSvc        *QrCodeService
	defaultGrace int
}

func NewEventService(repo *repositories.Repository, qrSvc *QrCodeService, defaultGraceHours int) *EventService {
	if defaultGraceHours <= 0 {
		defaultGraceHours = 1
	}
	return &EventService{repo: repo, qrSvc: qrSvc, defaultGrace: defaultGraceHours}
}

type CreateEventInput struct {
	CampaignID             uuid.UUID
	Detail                 string
	StartsAt               time.Time
	GracePeriodHours       int
	BonusPointsForAttendee int
	BonusPointsForLeader   int
}

type CreatedEvent struct {
	Event   *models.Event `json:"event"`
	QrCodes *EventQrSet   `json:"qr_codes"`
}

func (s *EventService) CreateCampaign(name string) (*models.Campaign, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewDomainError("campaign name is required", ErrInvalidInput, nil)
	}

	campaign := &models.Campaign{Name: name, IsActive: true}
	if err := s.repo.Events.CreateCampaign(campaign); err != nil {
		return nil, NewDomainError("failed to create campaign", ErrDatabase, err)
	}
	return campaign, nil
}

func (s *EventService) GetCampaign(id uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.repo.Events.GetCampaignByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("campaign not found", ErrCampaignNotFound, err)
		}
		return nil, NewDomainError("failed to load campaign", ErrDatabase, err)
	}

	events, err := s.repo.Events.ListByCampaign(id)
	if err != nil {
		return nil, NewDomainError("failed to list campaign events", ErrDatabase, err)
	}
	campaign.Events = events
	return campaign, nil
}

func (s *EventService) CreateEvent(in CreateEventInput) (*CreatedEvent, error) {
	in.Detail = strings.TrimSpace(in.Detail)
	if in.Detail == "" {
		return nil, NewDomainError("event detail is required", ErrInvalidInput, nil)
	}
	if in.GracePeriodHours < 0 || in.BonusPointsForAttendee < 0 || in.BonusPointsForLeader < 0 {
		return nil, NewDomainError("grace period and point amounts must be non-negative", ErrInvalidInput, nil)
	}

	if _, err := s.repo.Events.GetCampaignByID(in.CampaignID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("campaign not found", ErrCampaignNotFound, err)
		}
		return nil, NewDomainError("failed to load campaign", ErrDatabase, err)
	}

	event := &models.Event{
		CampaignID:             in.CampaignID,
		Detail:                 in.Detail,
		StartsAt:               in.StartsAt,
		GracePeriodHours:       in.GracePeriodHours,
		BonusPointsForAttendee: in.BonusPointsForAttendee,
		BonusPointsForLeader:   in.BonusPointsForLeader,
	}
	if event.GracePeriodHours == 0 {
		event.GracePeriodHours = s.defaultGrace
	}
	if err := s.repo.Events.Create(event); err != nil {
		return nil, NewDomainError("failed to create event", ErrDatabase, err)
	}

	set, err := s.qrSvc.IssueEventSet(event)
	if err != nil {
		// The event exists without its codes; the issue endpoint can be
		// retried, so report the partial state instead of rolling back.
		logrus.WithError(err).WithField("event_id", event.ID).
			Error("event created but QR set issuance failed")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"event_id":    event.ID,
		"campaign_id": event.CampaignID,
	}).Info("event created with QR set")

	return &CreatedEvent{Event: event, QrCodes: set}, nil
}

func (s *EventService) GetEvent(id uuid.UUID) (*models.Event, error) {
	event, err := s.repo.Events.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("event not found", ErrEventNotFound, err)
		}
		return nil, NewDomainError("failed to load event", ErrDatabase, err)
	}
	return event, nil
}
