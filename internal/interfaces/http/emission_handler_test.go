package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/application/emission"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/memory"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/postgres"
	httpapi "github.com/GiacomoGonzales/cobrify-sub003/internal/interfaces/http"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/jwt"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

const (
	testSecret = "secreto-de-prueba"
	testRUC    = "20100070970"
)

type stubDocs struct{ doc *entity.BillingDocument }

func (s *stubDocs) GetByID(_ context.Context, id string) (*entity.BillingDocument, error) {
	if s.doc == nil || s.doc.ID != id {
		return nil, postgres.ErrDocumentNotFound
	}
	return s.doc, nil
}

type stubAccounts struct{ acc *entity.EmissionAccountConfig }

func (s *stubAccounts) GetByRUC(_ context.Context, ruc string) (*entity.EmissionAccountConfig, error) {
	if s.acc == nil || s.acc.RUC != ruc {
		return nil, postgres.ErrAccountNotFound
	}
	return s.acc, nil
}

// stubTransport responde siempre el mismo desenlace.
type stubTransport struct{ res *entity.EmissionResult }

func (s *stubTransport) Kind() entity.ProviderKind { return entity.ProviderSOL }

func (s *stubTransport) Submit(context.Context, *entity.BillingDocument, *entity.EmissionAccountConfig) (*entity.EmissionResult, error) {
	return s.res, nil
}

func testApp(res *entity.EmissionResult) *fiber.App {
	doc := &entity.BillingDocument{
		ID:           "doc-1",
		Tipo:         entity.DocFactura,
		Serie:        "F001",
		Numero:       1,
		Moneda:       "PEN",
		FechaEmision: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC),
		Emisor:       entity.Party{TipoDocIdentidad: "6", NumeroDoc: testRUC, RazonSocial: "COMERCIAL ANDINA S.A.C."},
		Lines: []entity.DocumentLine{{
			Descripcion:    "ITEM",
			Cantidad:       decimal.NewFromInt(1),
			PrecioUnitario: decimal.RequireFromString("118.00"),
			Afectacion:     "10",
		}},
	}
	acc := &entity.EmissionAccountConfig{
		RUC: testRUC,
		SOL: &entity.SOLCredentials{UsuarioSOL: "MODDATOS", ClaveSOL: "moddatos"},
	}
	svc := emission.NewService(
		&stubDocs{doc: doc},
		&stubAccounts{acc: acc},
		memory.NewClaims(),
		memory.NewAttempts(),
		memory.NewArtifacts(),
		[]emission.Transport{&stubTransport{res: res}},
		logger.Nop(),
	)

	app := fiber.New()
	httpapi.Router(app, httpapi.RouterDeps{Emission: svc, JWTSecret: testSecret, Log: logger.Nop()})
	return app
}

func serviceToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.Generate(testSecret, "integracion-pruebas", testRUC, "cobrify", 5)
	require.NoError(t, err)
	return token
}

func emitir(t *testing.T, app *fiber.App, id, token string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/emitir/"+id, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp, body
}

func TestEmitir_SinTokenEs401(t *testing.T) {
	app := testApp(&entity.EmissionResult{Accepted: true, Code: "0"})

	resp, body := emitir(t, app, "doc-1", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "MISSING_TOKEN", body["code"])
}

func TestEmitir_TokenInvalidoEs401(t *testing.T) {
	app := testApp(&entity.EmissionResult{Accepted: true, Code: "0"})

	resp, body := emitir(t, app, "doc-1", "no-es-un-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", body["code"])
}

func TestEmitir_AceptadoConObservaciones(t *testing.T) {
	app := testApp(&entity.EmissionResult{
		Accepted:    true,
		Code:        "4332",
		Description: "aceptada con observaciones",
	})

	resp, body := emitir(t, app, "doc-1", serviceToken(t))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, true, body["accepted_with_observations"])
	assert.Equal(t, "4332", body["code"])
}

func TestEmitir_AceptadoLimpioSinObservaciones(t *testing.T) {
	app := testApp(&entity.EmissionResult{Accepted: true, Code: "0"})

	resp, body := emitir(t, app, "doc-1", serviceToken(t))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["accepted"])
	_, conObs := body["accepted_with_observations"]
	assert.False(t, conObs, "el código 0 no lleva la marca de observaciones")
}

func TestEmitir_ComprobanteInexistenteEs404(t *testing.T) {
	app := testApp(&entity.EmissionResult{Accepted: true, Code: "0"})

	resp, body := emitir(t, app, "no-existe", serviceToken(t))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])
}
