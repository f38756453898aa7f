package repositories

import (
	"loyalty-attendance-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type historyRepo struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepo{db: db}
}

func (r *historyRepo) Create(entry *models.BonusPointHistory) error {
	return r.db.Create(entry).Error
}

// DeleteByEvent is only called by the forced-recalculation path.
func (r *historyRepo) DeleteByEvent(eventID uuid.UUID) (int64, error) {
	result := r.db.Where("event_id = ?", eventID).Delete(&models.BonusPointHistory{})
	return result.RowsAffected, result.Error
}

func (r *historyRepo) ListByEvent(eventID uuid.UUID) ([]models.BonusPointHistory, error) {
	var entries []models.BonusPointHistory
	if err := r.db.Preload("Persona").
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
