// Package http expone la API REST del motor de emisión.
package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/application/emission"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Emission  *emission.Service
	JWTSecret string
	Log       *logger.Logger
}

// Router registra las rutas de la API. Todo el grupo de emisión exige un
// token de servicio.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api/v1", AuthMiddleware(deps.JWTSecret))

	emissionHandler := NewEmissionHandler(deps.Emission, deps.Log)
	api.Post("/emitir/:id", emissionHandler.Emit)
}
