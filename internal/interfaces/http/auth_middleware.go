package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/GiacomoGonzales/cobrify-sub003/pkg/jwt"
)

// Locals keys en Fiber.
const (
	LocalSubject = "subject"
	LocalRUC     = "ruc"
)

// ErrorResponse cuerpo de error uniforme de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMiddleware valida el Bearer Token JWT y extrae subject y RUC a c.Locals.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Code: "MISSING_TOKEN", Message: "Authorization header requerido"})
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Code: "INVALID_TOKEN", Message: "formato: Bearer <token>"})
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Code: "MISSING_TOKEN", Message: "token vacío"})
		}
		subject, ruc, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Code: "INVALID_TOKEN", Message: "token inválido o expirado"})
		}
		c.Locals(LocalSubject, subject)
		c.Locals(LocalRUC, ruc)
		return c.Next()
	}
}

// GetRUC devuelve el RUC del contexto (después del middleware de auth).
func GetRUC(c *fiber.Ctx) string {
	v := c.Locals(LocalRUC)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
