package middleware

import (
	"crypto/rsa"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/conversation-service/internal/models"
)

// Locals keys set by Auth for downstream handlers.
const (
	LocalUserID = "user_id"
	LocalRole   = "role"
)

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Validator verifies RS256 access tokens issued by the auth service.
type Validator struct {
	pubKey *rsa.PublicKey
}

func NewValidator(publicKeyPath string) (*Validator, error) {
	pubBytes, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, err
	}
	return &Validator{pubKey: pubKey}, nil
}

func (v *Validator) Validate(tokenStr string) (string, models.Role, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.pubKey, nil
	})
	if err != nil {
		return "", "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", "", errors.New("invalid token")
	}
	role := models.Role(claims.Role)
	switch role {
	case models.RoleStudent, models.RoleCoach, models.RoleAdmin:
	default:
		return "", "", errors.New("unknown role claim")
	}
	return claims.UserID, role, nil
}

// Auth is the fiber middleware guarding the REST surface. On success the
// caller's id and role land in c.Locals.
func (v *Validator) Auth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth"})
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid auth"})
		}
		uid, role, err := v.Validate(parts[1])
		if err != nil {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals(LocalUserID, uid)
		c.Locals(LocalRole, role)
		return c.Next()
	}
}
