package handlers

import (
	"loyalty-attendance-backend/internal/middleware"
	"loyalty-attendance-backend/internal/services"
	"loyalty-attendance-backend/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ScanRequest struct {
	Code    string `json:"code" validate:"required"`
	EventID string `json:"event_id" validate:"required,uuid"`
	Action  string `json:"action" validate:"required,oneof=register enter exit"`

	PersonaID string `json:"persona_id" validate:"omitempty,uuid"`
	Cedula    string `json:"cedula"`
	Phone     string `json:"phone"`

	LeaderID string `json:"leader_id" validate:"omitempty,uuid"`
	GroupID  string `json:"group_id" validate:"omitempty,uuid"`
}

type ManualAttendanceRequest struct {
	EventID  string `json:"event_id" validate:"required,uuid"`
	Cedula   string `json:"cedula"`
	Phone    string `json:"phone"`
	LeaderID string `json:"leader_id" validate:"omitempty,uuid"`
	GroupID  string `json:"group_id" validate:"omitempty,uuid"`
}

func (h *Handler) Scan(c *fiber.Ctx) error {
	var req ScanRequest
	if err := middleware.ValidateBody(&req)(c); err != nil {
		return err
	}

	eventID, _ := uuid.Parse(req.EventID)
	scanReq := services.ScanRequest{
		Code:              req.Code,
		EventID:           eventID,
		Action:            req.Action,
		Cedula:            req.Cedula,
		Phone:             req.Phone,
		PersonaID:         parseOptionalUUID(req.PersonaID),
		ReferringLeaderID: parseOptionalUUID(req.LeaderID),
		GroupID:           parseOptionalUUID(req.GroupID),
	}

	result, err := h.scanSvc.Route(scanReq)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, result, result.Message)
}

func (h *Handler) ManualCheckIn(c *fiber.Ctx) error {
	var req ManualAttendanceRequest
	if err := middleware.ValidateBody(&req)(c); err != nil {
		return err
	}

	eventID, _ := uuid.Parse(req.EventID)
	attendee, err := h.ledger.ManualCheckIn(eventID, req.Cedula, req.Phone,
		parseOptionalUUID(req.LeaderID), parseOptionalUUID(req.GroupID))
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, attendee, "Check-in recorded")
}

func (h *Handler) ManualCheckOut(c *fiber.Ctx) error {
	var req ManualAttendanceRequest
	if err := middleware.ValidateBody(&req)(c); err != nil {
		return err
	}

	eventID, _ := uuid.Parse(req.EventID)
	attendee, err := h.ledger.ManualCheckOut(eventID, req.Cedula, req.Phone)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, attendee, "Check-out recorded")
}

func (h *Handler) GetQrCode(c *fiber.Ctx) error {
	qr, err := h.qrSvc.Validate(c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, qr, "QR code retrieved successfully")
}

func (h *Handler) RegenerateQrCode(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid QR code ID", fiber.StatusBadRequest)
	}

	qr, err := h.qrSvc.Regenerate(id)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, qr, "QR code regenerated successfully")
}

func parseOptionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
