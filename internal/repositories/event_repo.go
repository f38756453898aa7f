package repositories

import (
	"errors"
	"fmt"
	"time"

	"loyalty-attendance-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type eventRepo struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) Create(event *models.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	return r.db.Create(event).Error
}

func (r *eventRepo) GetByID(id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.Where("id = ?", id).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event not found with ID %s: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

// GetByIDForUpdate takes a row lock; only meaningful inside WithTx, where it
// serializes concurrent distribution runs for the same event.
func (r *eventRepo) GetByIDForUpdate(id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event not found with ID %s: %w", id, err)
		}
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	return &event, nil
}

func (r *eventRepo) ListByCampaign(campaignID uuid.UUID) ([]models.Event, error) {
	var events []models.Event
	if err := r.db.Where("campaign_id = ?", campaignID).
		Order("starts_at ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// MarkEnded sets ended_at once; a second call reports false without mutating.
func (r *eventRepo) MarkEnded(id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.Model(&models.Event{}).
		Where("id = ? AND ended_at IS NULL", id).
		Update("ended_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *eventRepo) SetAutoCloseScheduled(id uuid.UUID, scheduled bool) error {
	return r.db.Model(&models.Event{}).
		Where("id = ?", id).
		Update("auto_close_scheduled", scheduled).Error
}

func (r *eventRepo) SetPointsDistributionScheduled(id uuid.UUID, scheduled bool) error {
	return r.db.Model(&models.Event{}).
		Where("id = ?", id).
		Update("points_distribution_scheduled", scheduled).Error
}

func (r *eventRepo) SetPointsDistributed(id uuid.UUID, distributed bool) error {
	return r.db.Model(&models.Event{}).
		Where("id = ?", id).
		Update("points_distributed", distributed).Error
}

func (r *eventRepo) CreateCampaign(campaign *models.Campaign) error {
	if campaign == nil {
		return errors.New("campaign cannot be nil")
	}
	return r.db.Create(campaign).Error
}

func (r *eventRepo) GetCampaignByID(id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.db.Where("id = ?", id).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("campaign not found with ID %s: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}
