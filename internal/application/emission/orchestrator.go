package emission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/repository"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
	pkgsunat "github.com/GiacomoGonzales/cobrify-sub003/pkg/sunat"
)

// StaleClaimWindow tiempo tras el cual un sending sin desenlace se considera
// abandonado (proceso muerto a mitad de envío) y puede ser reclamado de nuevo.
const StaleClaimWindow = 10 * time.Minute

// Service orquestador de emisión. Una instancia por proceso; seguro para uso
// concurrente porque toda la exclusión vive en el claim persistido.
type Service struct {
	docs       repository.DocumentRepository
	accounts   repository.AccountConfigRepository
	claims     repository.DocumentClaims
	attempts   repository.AttemptRepository
	artifacts  repository.ArtifactStore
	transports map[entity.ProviderKind]Transport
	log        *logger.Logger
}

func NewService(
	docs repository.DocumentRepository,
	accounts repository.AccountConfigRepository,
	claims repository.DocumentClaims,
	attempts repository.AttemptRepository,
	artifacts repository.ArtifactStore,
	transports []Transport,
	log *logger.Logger,
) *Service {
	byKind := make(map[entity.ProviderKind]Transport, len(transports))
	for _, t := range transports {
		byKind[t.Kind()] = t
	}
	return &Service{
		docs:       docs,
		accounts:   accounts,
		claims:     claims,
		attempts:   attempts,
		artifacts:  artifacts,
		transports: byKind,
		log:        log,
	}
}

// Emit ejecuta un ciclo completo de emisión para el documento. Reentrante e
// idempotente: si otro intento está en vuelo devuelve ErrEnvioEnCurso sin
// tocar nada; si el documento ya fue aceptado por SUNAT el transporte lo
// reporta como aceptación idempotente.
func (s *Service) Emit(ctx context.Context, documentID string) (res *entity.EmissionResult, err error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("obtener comprobante %s: %w", documentID, err)
	}
	if !pkgsunat.ValidDocTypes[string(doc.Tipo)] {
		return nil, entity.Errorf(entity.KindBuild, "emitir",
			"tipo de comprobante no soportado: %q", doc.Tipo)
	}
	acc, err := s.accounts.GetByRUC(ctx, doc.Emisor.NumeroDoc)
	if err != nil {
		return nil, fmt.Errorf("configuración de emisión de %s: %w", doc.Emisor.NumeroDoc, err)
	}

	kind, err := Route(acc)
	if err != nil {
		return nil, entity.NewError(entity.KindConfig, "emitir", err)
	}
	transport, ok := s.transports[kind]
	if !ok {
		return nil, entity.Errorf(entity.KindConfig, "emitir", "transporte %s no está montado", kind)
	}

	claimed, err := s.claims.Claim(ctx, documentID, time.Now(), StaleClaimWindow)
	if err != nil {
		return nil, fmt.Errorf("reservar envío de %s: %w", documentID, err)
	}
	if !claimed {
		return nil, entity.ErrEnvioEnCurso
	}

	started := time.Now()

	// Nada entre el claim y el release puede dejar el documento atascado en
	// sending: un pánico del transporte lo devuelve a pending y re-panics.
	defer func() {
		if r := recover(); r != nil {
			s.release(documentID, entity.StatusPending)
			panic(r)
		}
	}()

	res, submitErr := transport.Submit(ctx, doc, acc)
	status := s.classify(res, submitErr)

	s.recordAttempt(ctx, doc, kind, status, started, res, submitErr)
	if res != nil {
		s.saveArtifacts(ctx, doc, acc, res)
	}
	s.release(documentID, status)

	if submitErr != nil {
		return nil, submitErr
	}
	return res, nil
}

// classify traduce el desenlace del transporte al estado persistido.
//
//	aceptado            -> accepted
//	transitorio         -> pending  (elegible para reintento)
//	medio-éxito PSE     -> pending  (el XML firmado queda guardado; el
//	                                 próximo intento reenvía sin re-firmar)
//	rechazo terminal    -> rejected
//	error fatal previo  -> rejected (build/certificado/config no se arreglan
//	                                 reintentando)
//	error de transporte -> pending
func (s *Service) classify(res *entity.EmissionResult, submitErr error) entity.SubmissionStatus {
	if submitErr != nil {
		if entity.IsFatal(submitErr) {
			return entity.StatusRejected
		}
		return entity.StatusPending
	}
	switch {
	case res == nil:
		return entity.StatusPending
	case res.Accepted:
		return entity.StatusAccepted
	case res.Transient, res.SignedUndelivered:
		return entity.StatusPending
	default:
		return entity.StatusRejected
	}
}

func (s *Service) recordAttempt(ctx context.Context, doc *entity.BillingDocument, kind entity.ProviderKind, status entity.SubmissionStatus, started time.Time, res *entity.EmissionResult, submitErr error) {
	retries, err := s.attempts.CountRetries(ctx, doc.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("documento", doc.ID).Msg("no se pudo contar reintentos")
	}
	attempt := &entity.SubmissionAttempt{
		ID:           uuid.NewString(),
		DocumentID:   doc.ID,
		Status:       status,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		ProviderUsed: kind,
		RetryCount:   retries,
	}
	if res != nil {
		attempt.ResponseCode = res.Code
		attempt.ResponseDesc = res.Description
	}
	if submitErr != nil {
		attempt.LastError = submitErr.Error()
	}
	if err := s.attempts.Save(ctx, attempt); err != nil {
		s.log.Error().Err(err).Str("documento", doc.ID).Msg("no se pudo registrar el intento de envío")
	}
}

// saveArtifacts persiste XML firmado y CDR. Un fallo aquí no degrada la
// emisión: el veredicto de SUNAT ya es definitivo, solo se loguea.
func (s *Service) saveArtifacts(ctx context.Context, doc *entity.BillingDocument, acc *entity.EmissionAccountConfig, res *entity.EmissionResult) {
	xmlName, _ := sunat.Filenames(doc)
	if len(res.SignedXML) > 0 {
		if err := s.artifacts.Save(ctx, acc.RUC, doc.ID, xmlName, res.SignedXML); err != nil {
			s.log.Error().Err(err).Str("archivo", xmlName).Msg("no se pudo guardar el XML firmado")
		}
	}
	if len(res.CDR) > 0 {
		name := sunat.CDRFilename(doc)
		if err := s.artifacts.Save(ctx, acc.RUC, doc.ID, name, res.CDR); err != nil {
			s.log.Error().Err(err).Str("archivo", name).Msg("no se pudo guardar el CDR")
		}
	}
}

// release usa un contexto propio: el desenlace debe persistirse aunque el
// contexto de la petición ya esté cancelado.
func (s *Service) release(documentID string, status entity.SubmissionStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.claims.Release(ctx, documentID, status); err != nil {
		s.log.Error().Err(err).Str("documento", documentID).Str("estado", string(status)).
			Msg("no se pudo liberar la reserva de envío")
	}
}
