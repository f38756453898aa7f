package handlers

import (
	"strconv"
	"time"

	"loyalty-attendance-backend/internal/middleware"
	"loyalty-attendance-backend/internal/services"
	"loyalty-attendance-backend/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CreateCampaignRequest struct {
	Name string `json:"name" validate:"required,min=3,max=120"`
}

type CreateEventRequest struct {
	Detail                 string    `json:"detail" validate:"required,min=3,max=200"`
	StartsAt               time.Time `json:"starts_at" validate:"required"`
	GracePeriodHours       int       `json:"grace_period_hours" validate:"omitempty,min=0,max=72"`
	BonusPointsForAttendee int       `json:"bonus_points_for_attendee" validate:"omitempty,min=0"`
	BonusPointsForLeader   int       `json:"bonus_points_for_leader" validate:"omitempty,min=0"`
}

func (h *Handler) CreateCampaign(c *fiber.Ctx) error {
	var req CreateCampaignRequest
	if err := middleware.ValidateBody(&req)(c); err != nil {
		return err
	}

	campaign, err := h.eventSvc.CreateCampaign(req.Name)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, campaign, "Campaign created successfully", fiber.StatusCreated)
}

func (h *Handler) GetCampaign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid campaign ID", fiber.StatusBadRequest)
	}

	campaign, err := h.eventSvc.GetCampaign(id)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, campaign, "Campaign retrieved successfully")
}

func (h *Handler) CreateEvent(c *fiber.Ctx) error {
	campaignID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid campaign ID", fiber.StatusBadRequest)
	}

	var req CreateEventRequest
	if err := middleware.ValidateBody(&req)(c); err != nil {
		return err
	}

	created, err := h.eventSvc.CreateEvent(services.CreateEventInput{
		CampaignID:             campaignID,
		Detail:                 req.Detail,
		StartsAt:               req.StartsAt,
		GracePeriodHours:       req.GracePeriodHours,
		BonusPointsForAttendee: req.BonusPointsForAttendee,
		BonusPointsForLeader:   req.BonusPointsForLeader,
	})
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, created, "Event created successfully", fiber.StatusCreated)
}

func (h *Handler) GetEvent(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid event ID", fiber.StatusBadRequest)
	}

	event, err := h.eventSvc.GetEvent(id)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, event, "Event retrieved successfully")
}

func (h *Handler) ListAttendees(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid event ID", fiber.StatusBadRequest)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("page_size", "50"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	attendees, total, err := h.ledger.ListByEvent(id, (page-1)*pageSize, pageSize)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, fiber.Map{
		"attendees": attendees,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	}, "Attendees retrieved successfully")
}

// EndEvent closes the event and schedules the auto-checkout at the end of the
// grace period.
func (h *Handler) EndEvent(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid event ID", fiber.StatusBadRequest)
	}

	if err := h.scheduler.EndEvent(id, time.Now()); err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, nil, "Event ended, auto-checkout scheduled")
}

// AutoCloseEvent is the manual fallback for the scheduled auto-checkout run.
func (h *Handler) AutoCloseEvent(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid event ID", fiber.StatusBadRequest)
	}

	closed, err := h.scheduler.RunAutoCheckout(id, time.Now())
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, fiber.Map{"closed": closed}, "Open attendances closed")
}

func (h *Handler) DistributeBonuses(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid event ID", fiber.StatusBadRequest)
	}
	force := c.QueryBool("force", false)

	summary, err := h.bonusSvc.Distribute(id, force)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, summary, "Points distributed successfully")
}

func (h *Handler) LeaderBonusPreview(c *fiber.Ctx) error {
	eventID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.Error(c, "Invalid event ID", fiber.StatusBadRequest)
	}
	leaderID, err := uuid.Parse(c.Params("leaderId"))
	if err != nil {
		return utils.Error(c, "Invalid leader ID", fiber.StatusBadRequest)
	}

	preview, err := h.bonusSvc.LeaderPreview(eventID, leaderID)
	if err != nil {
		return respondError(c, err)
	}

	return utils.Success(c, preview, "Bonus preview calculated")
}
