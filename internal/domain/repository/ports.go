// Package repository define los puertos de salida del motor de emisión.
// Las implementaciones concretas viven en internal/infrastructure.
package repository

import (
	"context"
	"time"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
)

// DocumentClaims primitiva atómica de reserva del envío. Claim debe ser un
// read-modify-write único (CAS sobre el estado persistido), no un lock
// consultivo: dos disparos concurrentes legítimos deben resolverse en
// exactamente un ganador.
type DocumentClaims interface {
	// Claim intenta pending -> sending. También gana si el sending existente
	// empezó hace más de staleAfter (intento abandonado). Devuelve false si
	// otro intento sigue vivo.
	Claim(ctx context.Context, documentID string, now time.Time, staleAfter time.Duration) (bool, error)

	// Release registra el desenlace del intento y libera el marcador en vuelo.
	// status debe ser accepted, rejected o pending (retry/revert).
	Release(ctx context.Context, documentID string, status entity.SubmissionStatus) error
}

// AttemptRepository persistencia de los intentos de envío.
type AttemptRepository interface {
	Save(ctx context.Context, attempt *entity.SubmissionAttempt) error
	CountRetries(ctx context.Context, documentID string) (int, error)
}

// DocumentRepository lectura del comprobante ya creado por la capa de autoría.
// El motor nunca crea ni borra comprobantes.
type DocumentRepository interface {
	GetByID(ctx context.Context, id string) (*entity.BillingDocument, error)
}

// AccountConfigRepository configuración de emisión por emisor.
type AccountConfigRepository interface {
	GetByRUC(ctx context.Context, ruc string) (*entity.EmissionAccountConfig, error)
}

// ArtifactStore guarda XML firmado y CDR direccionados por emisor/identidad/nombre.
// Un error al persistir artefactos no degrada una emisión exitosa: se loguea.
type ArtifactStore interface {
	Save(ctx context.Context, ruc, documentID, filename string, data []byte) error
}
