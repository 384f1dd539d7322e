package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

const sessionHeader = "X-Session-ID"

type sessionMiddleware struct {
	logger   logging.Logger
	sessions *session.Manager
}

// NewSessionMiddleware rejects requests without a live session and
// stores the session ID in the request context
func NewSessionMiddleware(logger logging.Logger, sessions *session.Manager) Middleware {
	return &sessionMiddleware{
		logger:   logger,
		sessions: sessions,
	}
}

func (m *sessionMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Cookies(session.CookieName)
		if id == "" {
			id = strings.TrimSpace(c.Get(sessionHeader))
		}

		s, err := m.sessions.Touch(id)
		if err != nil {
			m.logger.Debug(c.UserContext(), "Rejected request without a live session", map[string]interface{}{
				"path": c.Path(),
			})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}

		if m.sessions.Enabled() {
			// sliding expiry
			c.Cookie(&fiber.Cookie{
				Name:     session.CookieName,
				Value:    s.ID,
				Expires:  s.ExpiresAt,
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		c.SetUserContext(session.WithID(c.UserContext(), s.ID))
		return c.Next()
	}
}
