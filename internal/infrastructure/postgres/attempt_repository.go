package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/repository"
)

var _ repository.AttemptRepository = (*AttemptRepo)(nil)

// AttemptRepo bitácora de intentos de envío (emission_attempts).
type AttemptRepo struct {
	q Querier
}

func NewAttemptRepository(q Querier) *AttemptRepo {
	return &AttemptRepo{q: q}
}

func (r *AttemptRepo) Save(ctx context.Context, attempt *entity.SubmissionAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO emission_attempts
			(id, document_id, status, started_at, finished_at, provider_used,
			 response_code, response_desc, retry_count, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		attempt.ID, attempt.DocumentID, string(attempt.Status),
		attempt.StartedAt, attempt.FinishedAt, string(attempt.ProviderUsed),
		nullIfEmpty(attempt.ResponseCode), nullIfEmpty(attempt.ResponseDesc),
		attempt.RetryCount, nullIfEmpty(attempt.LastError),
	)
	if err != nil {
		// Mismo ID de intento ya registrado: un reintento del Save no debe
		// duplicar ni fallar.
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insertar intento: %w", err)
	}
	return nil
}

// CountRetries cuenta los intentos previos registrados para el documento.
func (r *AttemptRepo) CountRetries(ctx context.Context, documentID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM emission_attempts WHERE document_id = $1`,
		documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("contar intentos: %w", err)
	}
	return n, nil
}
