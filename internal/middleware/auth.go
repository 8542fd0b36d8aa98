package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/stagelink/internal/session"
	"github.com/example/stagelink/internal/token"
)

const (
	claimsContextKey = "authClaims"
	tokenContextKey  = "authToken"
)

// Auth attaches verified claims to the request when a valid bearer token is
// present and bumps the session's last-active clock. Requests without a
// usable token proceed anonymously; resolvers decide what needs auth.
func Auth(mgr *session.Manager, log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c.Get("Authorization"))
		if tokenString == "" {
			return c.Next()
		}

		claims, err := mgr.Authenticate(c.UserContext(), tokenString)
		if err != nil {
			log.Warnw("token verification failed", "error", err)
			return c.Next()
		}

		c.Locals(claimsContextKey, claims)
		c.Locals(tokenContextKey, tokenString)

		if err := mgr.UpdateLastActive(c.UserContext(), claims.UserID); err != nil {
			log.Warnw("last-active touch failed", "user_id", claims.UserID, "error", err)
		}
		return c.Next()
	}
}

// CurrentClaims extracts the authenticated claims from the request, if any.
func CurrentClaims(c *fiber.Ctx) (*token.Claims, bool) {
	claims, ok := c.Locals(claimsContextKey).(*token.Claims)
	return claims, ok
}

// CurrentToken returns the raw bearer token attached by Auth.
func CurrentToken(c *fiber.Ctx) string {
	tokenString, _ := c.Locals(tokenContextKey).(string)
	return tokenString
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
