package middleware

import (
	"strconv"
	"strings"

	"github.com/datadrive/doctype-engine/internal/models"
	"github.com/datadrive/doctype-engine/internal/types"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are what the external authentication layer signs into the bearer
// token. The engine only verifies and reads them.
type Claims struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	RoleIDs []uint64 `json:"roleIds"`
	IsAdmin bool     `json:"isAdmin"`
	jwt.RegisteredClaims
}

// Auth validates the bearer token and stores the caller identity in locals.
func Auth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return &types.CustomError{
				Code:    fiber.StatusUnauthorized,
				Message: "missing bearer token",
				Type:    "authentication",
			}
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
			func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
		if err != nil || !token.Valid {
			return &types.CustomError{
				Code:    fiber.StatusUnauthorized,
				Message: "invalid token",
				Type:    "authentication",
			}
		}

		userID, _ := strconv.ParseUint(claims.Subject, 10, 64)
		c.Locals("user", models.AuthUser{
			ID:      userID,
			Name:    claims.Name,
			Email:   claims.Email,
			RoleIDs: claims.RoleIDs,
			IsAdmin: claims.IsAdmin,
		})
		return c.Next()
	}
}

// RequireAdmin allows only admin callers through; must run after Auth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if !user.IsAdmin {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: "administrator access required",
				Type:    "authorization",
			}
		}
		return c.Next()
	}
}

// CurrentUser reads the identity set by Auth; zero value when absent.
func CurrentUser(c *fiber.Ctx) models.AuthUser {
	if u, ok := c.Locals("user").(models.AuthUser); ok {
		return u
	}
	return models.AuthUser{}
}
