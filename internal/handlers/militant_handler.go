package handlers

import (
	"loyalty-attendance-backend/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func (h *Handler) GenerateMilitantQrs(c *fiber.Ctx) error {
	campaignID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid campaign ID", fiber.StatusBadRequest)
	}

	summary, err := h.militantSvc.IssueForCampaign(campaignID)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, summary, "Militant QR codes issued", fiber.StatusCreated)
}

func (h *Handler) ListMilitantQrs(c *fiber.Ctx) error {
	campaignID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid campaign ID", fiber.StatusBadRequest)
	}

	codes, err := h.militantSvc.CampaignCodes(campaignID)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, codes, "Militant QR codes retrieved successfully")
}

func (h *Handler) RegenerateMilitantQr(c *fiber.Ctx) error {
	campaignID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid campaign ID", fiber.StatusBadRequest)
	}
	personaID, err := uuid.Parse(c.Params("personaId"))
	if err != nil {
		return utils.Error(c, "Invalid persona ID", fiber.StatusBadRequest)
	}

	qr, err := h.militantSvc.Regenerate(campaignID, personaID)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, qr, "Militant QR code regenerated")
}

func (h *Handler) DeactivateMilitantQrs(c *fiber.Ctx) error {
	campaignID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid campaign ID", fiber.StatusBadRequest)
	}

	n, err := h.militantSvc.DeactivateCampaign(campaignID)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, fiber.Map{"deactivated": n}, "Militant QR codes deactivated")
}

func (h *Handler) ReactivateMilitantQrs(c *fiber.Ctx) error {
	campaignID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid campaign ID", fiber.StatusBadRequest)
	}

	n, err := h.militantSvc.ReactivateCampaign(campaignID)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, fiber.Map{"reactivated": n}, "Militant QR codes reactivated")
}
