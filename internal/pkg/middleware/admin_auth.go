package middleware

import (
	"crypto/subtle"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitrine/storefront/internal/pkg/env"
)

const adminRealm = "Vitrine Admin"

// AdminAuthConfig holds the operator credentials. PasswordHash is a bcrypt hash.
type AdminAuthConfig struct {
	User         string `validate:"required"`
	PasswordHash string `validate:"required,startswith=$2"`
}

// LoadAdminAuthConfig reads ADMIN_USER and ADMIN_PASSWORD_HASH.
func LoadAdminAuthConfig() (*AdminAuthConfig, error) {
	cfg := &AdminAuthConfig{
		User:         env.GetEnv("ADMIN_USER", ""),
		PasswordHash: env.GetEnv("ADMIN_PASSWORD_HASH", ""),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid admin auth config: %w", err)
	}
	return cfg, nil
}

// Authorize checks a username/password pair against the configured credentials.
func (cfg *AdminAuthConfig) Authorize(user, pass string) bool {
	if cfg == nil {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.User)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(pass)) == nil
	return userOK && passOK
}

// RequireAdmin protects operator routes with HTTP basic auth. A nil config
// disables the routes entirely.
func RequireAdmin(cfg *AdminAuthConfig) fiber.Handler {
	if cfg == nil {
		return func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "admin_disabled",
				"message": "admin credentials are not configured",
			})
		}
	}

	return basicauth.New(basicauth.Config{
		Realm:      adminRealm,
		Authorizer: cfg.Authorize,
		Unauthorized: func(c *fiber.Ctx) error {
			log.Warnf("[AdminAuth] Rejected credentials from %s for %s", c.IP(), c.Path())
			c.Set(fiber.HeaderWWWAuthenticate, "basic realm="+adminRealm)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "admin credentials required",
			})
		},
	})
}
