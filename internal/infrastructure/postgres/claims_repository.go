package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/repository"
)

var _ repository.DocumentClaims = (*ClaimsRepo)(nil)

// ClaimsRepo reserva de envío respaldada en la tabla emission_states. La
// exclusión no usa locks consultivos: el UPDATE condicional es el CAS, y el
// número de filas afectadas decide el ganador.
type ClaimsRepo struct {
	q Querier
}

func NewClaimsRepository(q Querier) *ClaimsRepo {
	return &ClaimsRepo{q: q}
}

// Claim intenta pending -> sending. Un sending cuyo started_at quedó más viejo
// que staleAfter se considera un intento muerto y también es reclamable; un
// documento ya accepted o rejected nunca se reclama por esta vía (el reproceso
// de rechazados pasa antes por una transición explícita a pending).
func (r *ClaimsRepo) Claim(ctx context.Context, documentID string, now time.Time, staleAfter time.Duration) (bool, error) {
	// Alta perezosa del marcador: el primer intento sobre un documento crea la
	// fila en pending. ON CONFLICT evita carreras entre dos primeros intentos.
	_, err := r.q.Exec(ctx, `
		INSERT INTO emission_states (document_id, status, updated_at)
		VALUES ($1, 'pending', $2)
		ON CONFLICT (document_id) DO NOTHING`,
		documentID, now)
	if err != nil {
		return false, fmt.Errorf("insertar estado de emisión: %w", err)
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE emission_states
		SET status = 'sending', started_at = $2, updated_at = $2
		WHERE document_id = $1
		  AND (status = 'pending'
		       OR (status = 'sending' AND started_at < $3))`,
		documentID, now, now.Add(-staleAfter))
	if err != nil {
		return false, fmt.Errorf("reservar envío: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release registra el desenlace. Solo transiciona desde sending: si el claim
// ya fue robado por estar stale, el perdedor no pisa el estado del ganador.
func (r *ClaimsRepo) Release(ctx context.Context, documentID string, status entity.SubmissionStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE emission_states
		SET status = $2, updated_at = $3
		WHERE document_id = $1 AND status = 'sending'`,
		documentID, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("liberar reserva: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("el documento %s no estaba en sending", documentID)
	}
	return nil
}
