package handlers

import (
	"loyalty-attendance-backend/internal/middleware"
	"loyalty-attendance-backend/internal/services"
	"loyalty-attendance-backend/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type CreatePersonaRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=120"`
	Cedula       string `json:"cedula" validate:"required,min=5,max=20"`
	Phone        string `json:"phone" validate:"omitempty,min=7,max=20"`
	UniverseType string `json:"universe_type" validate:"omitempty,oneof=U1 U2 U3 U4"`
	IsLeader     bool   `json:"is_leader"`
}

func (h *Handler) CreatePersona(c *fiber.Ctx) error {
	var req CreatePersonaRequest
	if err := middleware.ValidateBody(&req)(c); err != nil {
		return err
	}

	persona, err := h.personaSvc.Create(services.CreatePersonaInput{
		Name:         req.Name,
		Cedula:       req.Cedula,
		Phone:        req.Phone,
		UniverseType: req.UniverseType,
		IsLeader:     req.IsLeader,
	})
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, persona, "Persona registered successfully", fiber.StatusCreated)
}

func (h *Handler) LookupPersona(c *fiber.Ctx) error {
	persona, err := h.personaSvc.Lookup(c.Query("cedula"), c.Query("phone"))
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, persona, "Persona retrieved successfully")
}
