package serverutils

import (
	"fmt"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	userIDLocal = "user_id"
	roleLocal   = "role"

	RoleAdmin = "admin"
)

// NewJwtMiddleware verifies HS256 bearer tokens and stores the user_id and
// role claims in request locals. An empty secret falls back to JWT_SECRET.
func NewJwtMiddleware(secret string) fiber.Handler {
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	key := []byte(secret)

	return func(ctx *fiber.Ctx) error {
		tokenStr := bearerToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}

		claims, err := ParseClaims(tokenStr, key)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}

		ctx.Locals(userIDLocal, claims.UserID.String())
		ctx.Locals(roleLocal, claims.Role)
		return ctx.Next()
	}
}

// bearerToken reads the Authorization header, or the token query parameter
// for websocket handshakes where browsers cannot set headers.
func bearerToken(ctx *fiber.Ctx) string {
	authHeader := ctx.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[7:]
	}
	return ctx.Query("token")
}

// Claims are the parts of the token the API reads. Role is empty for
// ordinary users.
type Claims struct {
	UserID uuid.UUID
	Role   string
}

func ParseClaims(tokenStr string, key []byte) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	raw, _ := mc["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id claim: %w", err)
	}
	role, _ := mc["role"].(string)
	return &Claims{UserID: userID, Role: role}, nil
}

// RequireRole rejects requests whose token does not carry role. It must run
// after the JWT middleware.
func RequireRole(role string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if got, _ := ctx.Locals(roleLocal).(string); got != role {
			return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse(fiber.StatusForbidden, "Forbidden"))
		}
		return ctx.Next()
	}
}

// UserID returns the authenticated user set by the JWT middleware.
func UserID(ctx *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := ctx.Locals(userIDLocal).(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "missing user")
	}
	return id, nil
}
