package repositories

import (
	"time"

	"loyalty-attendance-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB

	QrCodes   QrCodeRepository
	Attendees AttendeeRepository
	Events    EventRepository
	Personas  PersonaRepository
	History   HistoryRepository
	Users     UserRepository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:        db,
		QrCodes:   NewQrCodeRepository(db),
		Attendees: NewAttendeeRepository(db),
		Events:    NewEventRepository(db),
		Personas:  NewPersonaRepository(db),
		History:   NewHistoryRepository(db),
		Users:     NewUserRepository(db),
	}
}

// WithTx runs fn against a transaction-scoped Repository. A Repository built
// without a database (mock repos in tests) runs fn directly.
func (r *Repository) WithTx(fn func(*Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

func AutoMigrate(db *gorm.DB) error {
	// Enable UUID extension
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return err
	}

	return db.AutoMigrate(
		&models.User{},
		&models.Campaign{},
		&models.Persona{},
		&models.Event{},
		&models.QrCode{},
		&models.EventAttendee{},
		&models.BonusPointHistory{},
	)
}

// Interface definitions

type QrCodeRepository interface {
	Create(qr *models.QrCode) error
	GetByID(id uuid.UUID) (*models.QrCode, error)
	GetByCode(code string) (*models.QrCode, error)
	IncrementScanCount(id uuid.UUID) error
	UpdateImagePath(id uuid.UUID, path string) error
	Deactivate(id uuid.UUID) error
	DeactivateEventCodes(eventID uuid.UUID) (int64, error)
	SetCampaignTypeActive(campaignID uuid.UUID, qrType string, active bool) (int64, error)
	FindEventCode(eventID uuid.UUID, qrType string, ownerPersonaID *uuid.UUID) (*models.QrCode, error)
	FindCampaignCode(campaignID uuid.UUID, qrType string, ownerPersonaID uuid.UUID) (*models.QrCode, error)
	ListCampaignCodes(campaignID uuid.UUID, qrType string) ([]models.QrCode, error)
}

type AttendeeRepository interface {
	Create(a *models.EventAttendee) error
	Get(eventID, personaID uuid.UUID) (*models.EventAttendee, error)
	MarkEntered(eventID, personaID uuid.UUID, at time.Time) (bool, error)
	MarkExited(eventID, personaID uuid.UUID, at time.Time, durationMinutes int) (bool, error)
	ForceCompleteEntered(eventID uuid.UUID, at time.Time, note string) (int64, error)
	ListCompletedUnsettled(eventID uuid.UUID) ([]models.EventAttendee, error)
	CountCompletedByLeader(eventID, leaderID uuid.UUID) (int64, error)
	SettlePoints(id uuid.UUID, points int) error
	ResetPoints(eventID uuid.UUID) error
	ListByEvent(eventID uuid.UUID, offset, limit int) ([]models.EventAttendee, int64, error)
}

type EventRepository interface {
	Create(event *models.Event) error
	GetByID(id uuid.UUID) (*models.Event, error)
	GetByIDForUpdate(id uuid.UUID) (*models.Event, error)
	ListByCampaign(campaignID uuid.UUID) ([]models.Event, error)
	MarkEnded(id uuid.UUID, at time.Time) (bool, error)
	SetAutoCloseScheduled(id uuid.UUID, scheduled bool) error
	SetPointsDistributionScheduled(id uuid.UUID, scheduled bool) error
	SetPointsDistributed(id uuid.UUID, distributed bool) error

	CreateCampaign(campaign *models.Campaign) error
	GetCampaignByID(id uuid.UUID) (*models.Campaign, error)
}

type PersonaRepository interface {
	Create(persona *models.Persona) error
	GetByID(id uuid.UUID) (*models.Persona, error)
	FindByCedulaOrPhone(cedula, phone string) (*models.Persona, error)
	ListByUniverse(universeType string) ([]models.Persona, error)
	IncrementBalance(id uuid.UUID, delta int) error
}

type HistoryRepository interface {
	Create(entry *models.BonusPointHistory) error
	DeleteByEvent(eventID uuid.UUID) (int64, error)
	ListByEvent(eventID uuid.UUID) ([]models.BonusPointHistory, error)
}

type UserRepository interface {
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	CreateUser(user *models.User) error
}
