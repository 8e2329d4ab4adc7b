package serverutils

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// UserIdKey is the fiber Locals key holding the caller id ("" for anonymous).
const UserIdKey = "user_id"

var errMissingToken = errors.New("missing token")

// JwtMiddleware rejects requests without a valid bearer token.
func JwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		userId, err := authenticate(ctx, secret)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorBody{Error: "Unauthorized"})
		}
		ctx.Locals(UserIdKey, userId)
		return ctx.Next()
	}
}

// OptionalJwtMiddleware lets anonymous requests through with an empty caller
// id but still rejects a token that is present and invalid.
func OptionalJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		userId, err := authenticate(ctx, secret)
		switch {
		case errors.Is(err, errMissingToken):
			userId = ""
		case err != nil:
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorBody{Error: "Invalid token"})
		}
		ctx.Locals(UserIdKey, userId)
		return ctx.Next()
	}
}

// CallerId reads the id stored by the JWT middlewares.
func CallerId(ctx *fiber.Ctx) string {
	userId, _ := ctx.Locals(UserIdKey).(string)
	return userId
}

// authenticate takes the token from the Authorization header, or from the
// "token" query parameter for browser websocket handshakes.
func authenticate(ctx *fiber.Ctx, secret string) (string, error) {
	tokenStr := ""
	if authHeader := ctx.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		tokenStr = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if tokenStr == "" {
		tokenStr = ctx.Query("token")
	}
	if tokenStr == "" {
		return "", errMissingToken
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	userId, ok := claims["user_id"].(string)
	if !ok || userId == "" {
		return "", errors.New("token missing user_id")
	}
	return userId, nil
}
