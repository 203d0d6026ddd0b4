package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// BackOfficeAuth guards settlement endpoints. The Authorization header must be
// "Basic <base64>" whose decoded "user:password" carries key as the password.
// An empty key disables the endpoints entirely.
func BackOfficeAuth(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "back office is not configured")
		}

		parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
			return backOfficeDenied(c)
		}

		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[1]))
		if err != nil {
			return backOfficeDenied(c)
		}

		_, password, found := strings.Cut(string(decoded), ":")
		if !found {
			password = string(decoded)
		}
		if subtle.ConstantTimeCompare([]byte(password), []byte(key)) != 1 {
			return backOfficeDenied(c)
		}

		return c.Next()
	}
}

func backOfficeDenied(c *fiber.Ctx) error {
	c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="backoffice"`)
	return fiber.NewError(fiber.StatusUnauthorized, "invalid back office credentials")
}
