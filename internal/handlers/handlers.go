package handlers

import (
	"errors"

	"loyalty-attendance-backend/internal/config"
	"loyalty-attendance-backend/internal/middleware"
	"loyalty-attendance-backend/internal/services"
	"loyalty-attendance-backend/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	authSvc     *services.AuthService
	personaSvc  *services.PersonaService
	eventSvc    *services.EventService
	scanSvc     *services.ScanService
	ledger      *services.AttendanceService
	qrSvc       *services.QrCodeService
	bonusSvc    *services.BonusService
	scheduler   *services.SchedulerService
	militantSvc *services.MilitantService
	cfg         *config.Config
}

func NewHandler(
	authSvc *services.AuthService,
	personaSvc *services.PersonaService,
	eventSvc *services.EventService,
	scanSvc *services.ScanService,
	ledger *services.AttendanceService,
	qrSvc *services.QrCodeService,
	bonusSvc *services.BonusService,
	scheduler *services.SchedulerService,
	militantSvc *services.MilitantService,
	cfg *config.Config,
) *Handler {
	return &Handler{
		authSvc:     authSvc,
		personaSvc:  personaSvc,
		eventSvc:    eventSvc,
		scanSvc:     scanSvc,
		ledger:      ledger,
		qrSvc:       qrSvc,
		bonusSvc:    bonusSvc,
		scheduler:   scheduler,
		militantSvc: militantSvc,
		cfg:         cfg,
	}
}

func (h *Handler) RegisterRoutes(router fiber.Router) {
	// Public routes
	auth := router.Group("/auth")
	{
		auth.Post("/login", h.Login)
	}

	// Persona self-registration is public: attendees sign up from their own
	// phones before or at the venue.
	router.Post("/personas", h.CreatePersona)

	// Protected routes (JWT required)
	protected := router.Group("", middleware.JWTMiddleware(h.cfg))
	{
		protected.Get("/profile", h.GetProfile)
		protected.Get("/personas/lookup", h.LookupPersona)

		// Scanner stations (staff or above)
		qr := protected.Group("/qr")
		qr.Use(middleware.StaffOrAbove)
		{
			qr.Post("/scan", h.Scan)
			qr.Post("/manual-checkin", h.ManualCheckIn)
			qr.Post("/manual-checkout", h.ManualCheckOut)
			qr.Get("/:code", h.GetQrCode)
		}

		// Campaign and event management
		organizer := protected.Group("")
		organizer.Use(middleware.OrganizerOrAdmin)
		{
			organizer.Post("/campaigns", h.CreateCampaign)
			organizer.Get("/campaigns/:id", h.GetCampaign)
			organizer.Post("/campaigns/:id/events", h.CreateEvent)
			organizer.Get("/events/:id", h.GetEvent)
			organizer.Get("/events/:id/attendees", h.ListAttendees)
			organizer.Post("/events/:id/end", h.EndEvent)
			organizer.Get("/events/:id/leaders/:leaderId/bonus-preview", h.LeaderBonusPreview)
			organizer.Post("/qrcodes/:id/regenerate", h.RegenerateQrCode)

			organizer.Post("/campaigns/:id/militant-qrs/generate", h.GenerateMilitantQrs)
			organizer.Get("/campaigns/:id/militant-qrs", h.ListMilitantQrs)
			organizer.Post("/campaigns/:id/militant-qrs/:personaId/regenerate", h.RegenerateMilitantQr)
		}

		// Admin only
		admin := protected.Group("")
		admin.Use(middleware.AdminOnly)
		{
			admin.Post("/admin/users", h.CreateUser)
			admin.Post("/events/:id/distribute-bonuses", h.DistributeBonuses)
			admin.Post("/events/:id/auto-close", h.AutoCloseEvent)
			admin.Post("/campaigns/:id/militant-qrs/deactivate", h.DeactivateMilitantQrs)
			admin.Post("/campaigns/:id/militant-qrs/reactivate", h.ReactivateMilitantQrs)
		}
	}
}

// ErrorHandler is Fiber's global fallback for errors that escape a handler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var derr *services.DomainError
	if errors.As(err, &derr) {
		return utils.ErrorWithKind(c, derr.Message, string(derr.Kind), services.HTTPStatus(err))
	}

	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		logrus.WithError(err).Error("unhandled request error")
	}
	return utils.Error(c, message, code)
}

// respondError maps service errors to the response envelope: domain errors
// carry their kind and mapped status, anything else is a 500.
func respondError(c *fiber.Ctx, err error) error {
	var derr *services.DomainError
	if errors.As(err, &derr) {
		return utils.ErrorWithKind(c, derr.Message, string(derr.Kind), services.HTTPStatus(err))
	}
	logrus.WithError(err).Error("unexpected service error")
	return utils.Error(c, "Internal Server Error", fiber.StatusInternalServerError)
}
