package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/application/emission"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/postgres"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

// EmissionHandler maneja las peticiones HTTP de emisión (protegido).
type EmissionHandler struct {
	svc *emission.Service
	log *logger.Logger
}

func NewEmissionHandler(svc *emission.Service, log *logger.Logger) *EmissionHandler {
	return &EmissionHandler{svc: svc, log: log}
}

// EmitResponse desenlace de la emisión para el llamador. El XML firmado y el
// CDR no viajan en la respuesta: quedan en el almacén de artefactos.
type EmitResponse struct {
	Accepted          bool   `json:"accepted"`
	Observations      bool   `json:"accepted_with_observations,omitempty"`
	Transient         bool   `json:"transient"`
	SignedUndelivered bool   `json:"signed_undelivered,omitempty"`
	Code              string `json:"code,omitempty"`
	Description       string `json:"description,omitempty"`
	Ticket            string `json:"ticket,omitempty"`
	XMLURL            string `json:"xml_url,omitempty"`
	CDRURL            string `json:"cdr_url,omitempty"`
	PDFURL            string `json:"pdf_url,omitempty"`
}

// Emit dispara el ciclo de emisión de un comprobante ya creado.
// POST /api/v1/emitir/:id
func (h *EmissionHandler) Emit(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	h.log.Info().Str("ruc", GetRUC(c)).Str("comprobante", id).Msg("emisión solicitada")

	res, err := h.svc.Emit(c.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrEnvioEnCurso):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Code: "IN_FLIGHT", Message: "ya existe un envío en curso para el comprobante"})
		case errors.Is(err, postgres.ErrDocumentNotFound):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NOT_FOUND", Message: "comprobante no encontrado"})
		case errors.Is(err, postgres.ErrAccountNotFound):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NO_ACCOUNT", Message: "el emisor no tiene configuración de emisión"})
		case entity.KindOf(err) == entity.KindBuild:
			return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Code: "BUILD", Message: err.Error()})
		case entity.KindOf(err) == entity.KindCertificado:
			return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Code: "CERT", Message: err.Error()})
		case entity.KindOf(err) == entity.KindConfig:
			return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Code: "CONFIG", Message: err.Error()})
		default:
			return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Code: "TRANSPORT", Message: err.Error()})
		}
	}

	return c.JSON(EmitResponse{
		Accepted:          res.Accepted,
		Observations:      res.AcceptedWithObservations(),
		Transient:         res.Transient,
		SignedUndelivered: res.SignedUndelivered,
		Code:              res.Code,
		Description:       res.Description,
		Ticket:            res.Ticket,
		XMLURL:            res.XMLURL,
		CDRURL:            res.CDRURL,
		PDFURL:            res.PDFURL,
	})
}
