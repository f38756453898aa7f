package repositories

import (
	"loyalty-attendance-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type personaRepo struct {
	db *gorm.DB
}

func NewPersonaRepository(db *gorm.DB) PersonaRepository {
	return &personaRepo{db: db}
}

func (r *personaRepo) Create(persona *models.Persona) error {
	return r.db.Create(persona).Error
}

func (r *personaRepo) GetByID(id uuid.UUID) (*models.Persona, error) {
	var persona models.Persona
	if err := r.db.Where("id = ?", id).First(&persona).Error; err != nil {
		return nil, err
	}
	return &persona, nil
}

// FindByCedulaOrPhone prefers the cedula when both are given; phone numbers
// are not unique across personas.
func (r *personaRepo) FindByCedulaOrPhone(cedula, phone string) (*models.Persona, error) {
	var persona models.Persona
	query := r.db
	switch {
	case cedula != "":
		query = query.Where("cedula = ?", cedula)
	case phone != "":
		query = query.Where("phone = ?", phone)
	default:
		return nil, gorm.ErrRecordNotFound
	}
	if err := query.First(&persona).Error; err != nil {
		return nil, err
	}
	return &persona, nil
}

func (r *personaRepo) ListByUniverse(universeType string) ([]models.Persona, error) {
	var personas []models.Persona
	if err := r.db.Where("universe_type = ?", universeType).
		Order("created_at ASC").
		Find(&personas).Error; err != nil {
		return nil, err
	}
	return personas, nil
}

// IncrementBalance is a single atomic UPDATE; the balance is never
// read-modify-written in application memory.
func (r *personaRepo) IncrementBalance(id uuid.UUID, delta int) error {
	result := r.db.Model(&models.Persona{}).
		Where("id = ?", id).
		UpdateColumn("loyalty_balance", gorm.Expr("loyalty_balance + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
