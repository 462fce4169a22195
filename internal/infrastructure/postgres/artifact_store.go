package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/repository"
)

var _ repository.ArtifactStore = (*ArtifactRepo)(nil)

// ArtifactRepo guarda XML firmado y CDR en emission_artifacts. El upsert por
// (document_id, filename) hace idempotente el reintento: re-guardar el mismo
// artefacto pisa la copia anterior.
type ArtifactRepo struct {
	q Querier
}

func NewArtifactStore(q Querier) *ArtifactRepo {
	return &ArtifactRepo{q: q}
}

func (r *ArtifactRepo) Save(ctx context.Context, ruc, documentID, filename string, data []byte) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO emission_artifacts (id, ruc, document_id, filename, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id, filename)
		DO UPDATE SET content = EXCLUDED.content, created_at = EXCLUDED.created_at`,
		uuid.NewString(), ruc, documentID, filename, data, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("guardar artefacto %s: %w", filename, err)
	}
	return nil
}
