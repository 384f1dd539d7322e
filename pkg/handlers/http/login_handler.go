package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

type loginRequest struct {
	AppKey string `json:"app_key"`
}

type loginHandler struct {
	logger   logging.Logger
	sessions *session.Manager
}

func NewLoginHandler(logger logging.Logger, sessions *session.Manager) Handler {
	return &loginHandler{
		logger:   logger,
		sessions: sessions,
	}
}

// Handle exchanges the app key for a session cookie
func (h *loginHandler) Handle(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	s, err := h.sessions.Login(req.AppKey)
	if err != nil {
		h.logger.Warn(c.UserContext(), "Rejected login", map[string]interface{}{"ip": c.IP()})
		return handleError(c, h.logger, "Login failed", err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     session.CookieName,
		Value:    s.ID,
		Expires:  s.ExpiresAt,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"session_id": s.ID,
		"expires_at": s.ExpiresAt.Format(time.RFC3339),
	})
}
