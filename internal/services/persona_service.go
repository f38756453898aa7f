package services

import (
	"errors"
	"strings"

	"loyalty-attendance-backend/internal/models"
	"loyalty-attendance-backend/internal/repositories"
	"loyalty-attendance-backend/internal/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PersonaService is the identity boundary: personas register once by cedula
// and are looked up by cedula or phone at the scanner stations.
type PersonaService struct {
	repo *repositories.Repository
}

func NewPersonaService(repo *repositories.Repository) *PersonaService {
	return &PersonaService{repo: repo}
}

type CreatePersonaInput struct {
	Name         string
	Cedula       string
	Phone        string
	UniverseType string
	IsLeader     bool
}

var validUniverses = map[string]bool{
	models.UniverseGeneral:     true,
	models.UniverseGroupMember: true,
	models.UniverseLeader:      true,
	models.UniverseMilitant:    true,
}

func (s *PersonaService) Create(in CreatePersonaInput) (*models.Persona, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Cedula = strings.TrimSpace(in.Cedula)
	in.Phone = strings.TrimSpace(in.Phone)

	if in.Name == "" || in.Cedula == "" {
		return nil, NewDomainError("name and cedula are required", ErrInvalidInput, nil)
	}
	if in.UniverseType == "" {
		in.UniverseType = models.UniverseGeneral
	}
	if !validUniverses[in.UniverseType] {
		return nil, NewDomainError("unknown universe type", ErrInvalidInput, nil)
	}

	referral, err := utils.RandomCode(8)
	if err != nil {
		return nil, NewDomainError("failed to generate referral code", ErrDatabase, err)
	}

	persona := &models.Persona{
		Name:         in.Name,
		Cedula:       in.Cedula,
		Phone:        in.Phone,
		UniverseType: in.UniverseType,
		IsLeader:     in.IsLeader || in.UniverseType == models.UniverseLeader,
		ReferralCode: referral,
	}

	if err := s.repo.Personas.Create(persona); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, NewDomainError("a persona with this cedula already exists", ErrAlreadyRegistered, err)
		}
		return nil, NewDomainError("failed to create persona", ErrDatabase, err)
	}
	return persona, nil
}

func (s *PersonaService) Lookup(cedula, phone string) (*models.Persona, error) {
	cedula = strings.TrimSpace(cedula)
	phone = strings.TrimSpace(phone)
	if cedula == "" && phone == "" {
		return nil, NewDomainError("cedula or phone is required", ErrInvalidInput, nil)
	}

	persona, err := s.repo.Personas.FindByCedulaOrPhone(cedula, phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("persona not found", ErrPersonaNotFound, err)
		}
		return nil, NewDomainError("failed to look up persona", ErrDatabase, err)
	}
	return persona, nil
}

func (s *PersonaService) Get(id uuid.UUID) (*models.Persona, error) {
	persona, err := s.repo.Personas.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewDomainError("persona not found", ErrPersonaNotFound, err)
		}
		return nil, NewDomainError("failed to load persona", ErrDatabase, err)
	}
	return persona, nil
}
