// Package emission orquesta el ciclo de emisión: reserva del documento,
// elección de transporte, envío y registro del desenlace.
package emission

import (
	"context"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
)

// Transport puerto de salida hacia SUNAT (directo, PSE u OSE). Submit devuelve
// (resultado, nil) para cualquier desenlace clasificable —aceptado, rechazado,
// transitorio, medio-éxito— y (nil, error) solo ante fallos previos al envío
// (construcción, certificado, configuración).
type Transport interface {
	Kind() entity.ProviderKind
	Submit(ctx context.Context, doc *entity.BillingDocument, acc *entity.EmissionAccountConfig) (*entity.EmissionResult, error)
}
