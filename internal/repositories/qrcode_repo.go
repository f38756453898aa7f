package repositories

import (
	"fmt"

	"loyalty-attendance-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type qrCodeRepo struct {
	db *gorm.DB
}

func NewQrCodeRepository(db *gorm.DB) QrCodeRepository {
	return &qrCodeRepo{db: db}
}

func (r *qrCodeRepo) Create(qr *models.QrCode) error {
	return r.db.Create(qr).Error
}

func (r *qrCodeRepo) GetByID(id uuid.UUID) (*models.QrCode, error) {
	var qr models.QrCode
	if err := r.db.Where("id = ?", id).First(&qr).Error; err != nil {
		return nil, err
	}
	return &qr, nil
}

func (r *qrCodeRepo) GetByCode(code string) (*models.QrCode, error) {
	var qr models.QrCode
	if err := r.db.Preload("OwnerPersona").Where("code = ?", code).First(&qr).Error; err != nil {
		return nil, err
	}
	return &qr, nil
}

// IncrementScanCount is a plain atomic counter bump. It is bookkeeping only
// and never the mechanism that prevents double scans.
func (r *qrCodeRepo) IncrementScanCount(id uuid.UUID) error {
	return r.db.Model(&models.QrCode{}).
		Where("id = ?", id).
		UpdateColumn("scan_count", gorm.Expr("scan_count + 1")).Error
}

func (r *qrCodeRepo) UpdateImagePath(id uuid.UUID, path string) error {
	return r.db.Model(&models.QrCode{}).
		Where("id = ?", id).
		Update("image_path", path).Error
}

func (r *qrCodeRepo) Deactivate(id uuid.UUID) error {
	result := r.db.Model(&models.QrCode{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("qr code not found with ID: %s", id)
	}
	return nil
}

func (r *qrCodeRepo) DeactivateEventCodes(eventID uuid.UUID) (int64, error) {
	result := r.db.Model(&models.QrCode{}).
		Where("event_id = ?", eventID).
		Update("active", false)
	return result.RowsAffected, result.Error
}

func (r *qrCodeRepo) SetCampaignTypeActive(campaignID uuid.UUID, qrType string, active bool) (int64, error) {
	result := r.db.Model(&models.QrCode{}).
		Where("campaign_id = ? AND type = ?", campaignID, qrType).
		Update("active", active)
	return result.RowsAffected, result.Error
}

func (r *qrCodeRepo) FindEventCode(eventID uuid.UUID, qrType string, ownerPersonaID *uuid.UUID) (*models.QrCode, error) {
	query := r.db.Where("event_id = ? AND type = ?", eventID, qrType)
	if ownerPersonaID != nil {
		query = query.Where("owner_persona_id = ?", *ownerPersonaID)
	} else {
		query = query.Where("owner_persona_id IS NULL")
	}

	var qr models.QrCode
	if err := query.First(&qr).Error; err != nil {
		return nil, err
	}
	return &qr, nil
}

// FindCampaignCode looks up a campaign-wide (event_id IS NULL) code for one owner.
func (r *qrCodeRepo) FindCampaignCode(campaignID uuid.UUID, qrType string, ownerPersonaID uuid.UUID) (*models.QrCode, error) {
	var qr models.QrCode
	if err := r.db.
		Where("campaign_id = ? AND type = ? AND owner_persona_id = ? AND event_id IS NULL",
			campaignID, qrType, ownerPersonaID).
		First(&qr).Error; err != nil {
		return nil, err
	}
	return &qr, nil
}

func (r *qrCodeRepo) ListCampaignCodes(campaignID uuid.UUID, qrType string) ([]models.QrCode, error) {
	var codes []models.QrCode
	if err := r.db.Preload("OwnerPersona").
		Where("campaign_id = ? AND type = ? AND event_id IS NULL", campaignID, qrType).
		Order("created_at ASC").
		Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}
