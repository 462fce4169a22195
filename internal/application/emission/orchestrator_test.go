package emission_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/application/emission"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/memory"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

const testRUC = "20100070970"

func testDoc() *entity.BillingDocument {
	return &entity.BillingDocument{
		ID:           "doc-1",
		Tipo:         entity.DocFactura,
		Serie:        "F001",
		Numero:       123,
		Moneda:       "PEN",
		FechaEmision: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC),
		Emisor: entity.Party{
			TipoDocIdentidad: "6",
			NumeroDoc:        testRUC,
			RazonSocial:      "COMERCIAL ANDINA S.A.C.",
		},
		Lines: []entity.DocumentLine{
			{Descripcion: "ITEM", Cantidad: decimal.NewFromInt(1), PrecioUnitario: decimal.RequireFromString("118.00"), Afectacion: "10"},
		},
	}
}

// stubs de lectura: el orquestador solo consulta, nunca escribe comprobantes.

type stubDocs struct{ doc *entity.BillingDocument }

func (s *stubDocs) GetByID(_ context.Context, id string) (*entity.BillingDocument, error) {
	if s.doc == nil || s.doc.ID != id {
		return nil, errors.New("comprobante no encontrado")
	}
	return s.doc, nil
}

type stubAccounts struct{ acc *entity.EmissionAccountConfig }

func (s *stubAccounts) GetByRUC(_ context.Context, ruc string) (*entity.EmissionAccountConfig, error) {
	if s.acc == nil || s.acc.RUC != ruc {
		return nil, errors.New("cuenta no encontrada")
	}
	return s.acc, nil
}

// fakeTransport transporte programable: cada Submit consume el siguiente
// desenlace de la cola, o repite el último.
type fakeTransport struct {
	kind entity.ProviderKind

	mu       sync.Mutex
	calls    atomic.Int64
	delay    time.Duration
	panicMsg string
	outcomes []outcome
}

type outcome struct {
	res *entity.EmissionResult
	err error
}

func (f *fakeTransport) Kind() entity.ProviderKind { return f.kind }

func (f *fakeTransport) Submit(context.Context, *entity.BillingDocument, *entity.EmissionAccountConfig) (*entity.EmissionResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outcomes) == 0 {
		return &entity.EmissionResult{Accepted: true, Code: "0"}, nil
	}
	o := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	return o.res, o.err
}

type fixture struct {
	svc       *emission.Service
	claims    *memory.Claims
	attempts  *memory.Attempts
	artifacts *memory.Artifacts
	transport *fakeTransport
}

func newFixture(t *testing.T, transport *fakeTransport) *fixture {
	t.Helper()
	claims := memory.NewClaims()
	attempts := memory.NewAttempts()
	artifacts := memory.NewArtifacts()
	acc := &entity.EmissionAccountConfig{
		RUC: testRUC,
		SOL: &entity.SOLCredentials{UsuarioSOL: "MODDATOS", ClaveSOL: "moddatos"},
	}
	svc := emission.NewService(
		&stubDocs{doc: testDoc()},
		&stubAccounts{acc: acc},
		claims,
		attempts,
		artifacts,
		[]emission.Transport{transport},
		logger.Nop(),
	)
	return &fixture{svc: svc, claims: claims, attempts: attempts, artifacts: artifacts, transport: transport}
}

func TestEmit_AceptadoGuardaArtefactosYEstado(t *testing.T) {
	tr := &fakeTransport{kind: entity.ProviderSOL, outcomes: []outcome{{
		res: &entity.EmissionResult{
			Accepted:    true,
			Code:        "0",
			Description: "La Factura F001-00000123 ha sido aceptada",
			SignedXML:   []byte("<Invoice/>"),
			CDR:         []byte("PK-cdr"),
		},
	}}}
	f := newFixture(t, tr)

	res, err := f.svc.Emit(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, res.Accepted)

	assert.Equal(t, entity.StatusAccepted, f.claims.Status("doc-1"))

	xml, ok := f.artifacts.Get("doc-1", "20100070970-01-F001-00000123.xml")
	require.True(t, ok, "el XML firmado debe quedar archivado")
	assert.Equal(t, []byte("<Invoice/>"), xml)
	_, ok = f.artifacts.Get("doc-1", "R-20100070970-01-F001-00000123.xml")
	assert.True(t, ok, "el CDR debe quedar archivado")

	intentos := f.attempts.ByDocument("doc-1")
	require.Len(t, intentos, 1)
	assert.Equal(t, entity.StatusAccepted, intentos[0].Status)
	assert.Equal(t, entity.ProviderSOL, intentos[0].ProviderUsed)
	assert.Equal(t, "0", intentos[0].ResponseCode)
}

func TestEmit_SoloUnGanadorEntreConcurrentes(t *testing.T) {
	tr := &fakeTransport{kind: entity.ProviderSOL, delay: 50 * time.Millisecond}
	f := newFixture(t, tr)

	const n = 16
	var wg sync.WaitGroup
	var enCurso atomic.Int64
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Emit(context.Background(), "doc-1")
			if errors.Is(err, entity.ErrEnvioEnCurso) {
				enCurso.Add(1)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, tr.calls.Load(), "exactamente un disparo debe llegar al transporte")
	assert.EqualValues(t, n-1, enCurso.Load(), "los demás reciben envío-en-curso sin efectos")
	assert.Equal(t, entity.StatusAccepted, f.claims.Status("doc-1"))
}

func TestEmit_TransitorioQuedaPendingYSePuedeReintentar(t *testing.T) {
	tr := &fakeTransport{kind: entity.ProviderSOL, outcomes: []outcome{
		{res: &entity.EmissionResult{Transient: true, Description: "el sistema de recepción no está disponible"}},
		{res: &entity.EmissionResult{Accepted: true, Code: "0"}},
	}}
	f := newFixture(t, tr)

	res, err := f.svc.Emit(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, entity.StatusPending, f.claims.Status("doc-1"))

	// El transitorio no bloquea: el siguiente disparo reclama y termina aceptado
	res, err = f.svc.Emit(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, entity.StatusAccepted, f.claims.Status("doc-1"))

	intentos := f.attempts.ByDocument("doc-1")
	require.Len(t, intentos, 2)
	assert.Equal(t, entity.StatusPending, intentos[0].Status)
	assert.Equal(t, 0, intentos[0].RetryCount)
	assert.Equal(t, entity.StatusAccepted, intentos[1].Status)
	assert.Equal(t, 1, intentos[1].RetryCount)
}

func TestEmit_RechazoTerminalQuedaRejected(t *testing.T) {
	tr := &fakeTransport{kind: entity.ProviderSOL, outcomes: []outcome{{
		res: &entity.EmissionResult{Code: "2335", Description: "ya fue presentado con otros datos", SignedXML: []byte("<Invoice/>")},
	}}}
	f := newFixture(t, tr)

	res, err := f.svc.Emit(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, entity.StatusRejected, f.claims.Status("doc-1"))

	// El XML firmado del rechazo también se conserva (evidencia del intento)
	_, ok := f.artifacts.Get("doc-1", "20100070970-01-F001-00000123.xml")
	assert.True(t, ok)
}

func TestEmit_ErrorFatalQuedaRejected(t *testing.T) {
	tr := &fakeTransport{kind: entity.ProviderSOL, outcomes: []outcome{{
		err: entity.Errorf(entity.KindCertificado, "firmador", "PKCS#12 ilegible"),
	}}}
	f := newFixture(t, tr)

	_, err := f.svc.Emit(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Equal(t, entity.KindCertificado, entity.KindOf(err))
	assert.Equal(t, entity.StatusRejected, f.claims.Status("doc-1"))
}

func TestEmit_ErrorDeTransporteQuedaPending(t *testing.T) {
	tr := &fakeTransport{kind: entity.ProviderSOL, outcomes: []outcome{{
		err: entity.Errorf(entity.KindTransporte, "soap", "connection refused"),
	}}}
	f := newFixture(t, tr)

	_, err := f.svc.Emit(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Equal(t, entity.StatusPending, f.claims.Status("doc-1"))
}

func TestEmit_MedioExitoQuedaPendingConXMLGuardado(t *testing.T) {
	tr := &fakeTransport{kind: entity.ProviderSOL, outcomes: []outcome{{
		res: &entity.EmissionResult{SignedUndelivered: true, SignedXML: []byte("<Invoice-firmado/>")},
	}}}
	f := newFixture(t, tr)

	res, err := f.svc.Emit(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, res.SignedUndelivered)
	assert.Equal(t, entity.StatusPending, f.claims.Status("doc-1"))

	xml, ok := f.artifacts.Get("doc-1", "20100070970-01-F001-00000123.xml")
	require.True(t, ok)
	assert.Equal(t, []byte("<Invoice-firmado/>"), xml)
}

func TestEmit_PanicoDelTransporteRevierteAPending(t *testing.T) {
	tr := &fakeTransport{kind: entity.ProviderSOL, panicMsg: "puntero nulo en el transporte"}
	f := newFixture(t, tr)

	require.PanicsWithValue(t, "puntero nulo en el transporte", func() {
		_, _ = f.svc.Emit(context.Background(), "doc-1")
	})
	assert.Equal(t, entity.StatusPending, f.claims.Status("doc-1"),
		"un pánico a mitad de envío no puede dejar el documento atascado en sending")

	// Tras revertir, un nuevo disparo reclama con normalidad
	tr.panicMsg = ""
	res, err := f.svc.Emit(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestEmit_SendingAbandonadoEsReclamable(t *testing.T) {
	claims := memory.NewClaims()

	// Un proceso murió a mitad de envío hace más que la ventana de abandono
	viejo := time.Now().Add(-emission.StaleClaimWindow - time.Minute)
	ok, err := claims.Claim(context.Background(), "doc-1", viejo, emission.StaleClaimWindow)
	require.NoError(t, err)
	require.True(t, ok)

	// Un sending fresco no es robable
	ok, err = claims.Claim(context.Background(), "doc-1", viejo.Add(time.Minute), emission.StaleClaimWindow)
	require.NoError(t, err)
	assert.False(t, ok)

	// Pasada la ventana sí
	ok, err = claims.Claim(context.Background(), "doc-1", time.Now(), emission.StaleClaimWindow)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEmit_ComprobanteInexistente(t *testing.T) {
	f := newFixture(t, &fakeTransport{kind: entity.ProviderSOL})
	_, err := f.svc.Emit(context.Background(), "no-existe")
	require.Error(t, err)
	assert.EqualValues(t, 0, f.transport.calls.Load())
}

func TestEmit_TipoNoSoportado(t *testing.T) {
	doc := testDoc()
	doc.Tipo = "99"
	tr := &fakeTransport{kind: entity.ProviderSOL}
	claims := memory.NewClaims()
	svc := emission.NewService(
		&stubDocs{doc: doc},
		&stubAccounts{acc: &entity.EmissionAccountConfig{RUC: testRUC, SOL: &entity.SOLCredentials{}}},
		claims,
		memory.NewAttempts(),
		memory.NewArtifacts(),
		[]emission.Transport{tr},
		logger.Nop(),
	)

	_, err := svc.Emit(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Equal(t, entity.KindBuild, entity.KindOf(err))
	assert.EqualValues(t, 0, tr.calls.Load(), "el tipo inválido se corta antes de reservar y enviar")
}

func TestEmit_TransporteNoMontado(t *testing.T) {
	// La cuenta pide PSE pero solo está montado SOL
	claims := memory.NewClaims()
	acc := &entity.EmissionAccountConfig{
		RUC: testRUC,
		PSE: &entity.PSECredentials{ClientID: "cli", ClientSecret: "sec"},
	}
	svc := emission.NewService(
		&stubDocs{doc: testDoc()},
		&stubAccounts{acc: acc},
		claims,
		memory.NewAttempts(),
		memory.NewArtifacts(),
		[]emission.Transport{&fakeTransport{kind: entity.ProviderSOL}},
		logger.Nop(),
	)

	_, err := svc.Emit(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Equal(t, entity.KindConfig, entity.KindOf(err))
	assert.Equal(t, entity.StatusPending, claims.Status("doc-1"), "no debe quedar reserva tomada")
}
