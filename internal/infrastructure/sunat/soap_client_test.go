package sunat_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

func testAccountSOL() *entity.EmissionAccountConfig {
	return &entity.EmissionAccountConfig{
		RUC: testRUCEmisor,
		SOL: &entity.SOLCredentials{
			UsuarioSOL: "MODDATOS",
			ClaveSOL:   "moddatos",
		},
	}
}

func faultEnvelope(faultCode, faultString string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<soap-env:Envelope xmlns:soap-env="http://schemas.xmlsoap.org/soap/envelope/">
  <soap-env:Body>
    <soap-env:Fault>
      <faultcode>%s</faultcode>
      <faultstring>%s</faultstring>
    </soap-env:Fault>
  </soap-env:Body>
</soap-env:Envelope>`, faultCode, faultString)
}

func cdrZipB64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("R-20100070970-01-F001-00000123.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(cdrConPrefijo))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func sendBillResponseEnvelope(cdrB64 string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<soap-env:Envelope xmlns:soap-env="http://schemas.xmlsoap.org/soap/envelope/"
  xmlns:br="http://service.sunat.gob.pe">
  <soap-env:Body>
    <br:sendBillResponse>
      <applicationResponse>` + cdrB64 + `</applicationResponse>
    </br:sendBillResponse>
  </soap-env:Body>
</soap-env:Envelope>`
}

func TestSendBill_RespuestaNormalConCDR(t *testing.T) {
	cdrB64 := cdrZipB64(t)
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, sendBillResponseEnvelope(cdrB64))
	}))
	defer srv.Close()

	client := sunat.NewSOAPClientWithURL(srv.URL, logger.Nop())
	res, err := client.SendBill(context.Background(), testAccountSOL(), "20100070970-01-F001-00000123.zip", []byte("zipzip"))
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.Equal(t, "0", res.Code)
	assert.NotEmpty(t, res.CDR, "el CDR crudo viaja en el resultado")

	// WSSE: usuario = RUC + usuario secundario
	assert.Contains(t, gotBody, "<wsse:Username>20100070970MODDATOS</wsse:Username>")
	assert.Contains(t, gotBody, "<wsse:Password>moddatos</wsse:Password>")
	assert.Contains(t, gotBody, "20100070970-01-F001-00000123.zip")
}

func TestSendBill_Fault1033EsAceptacionIdempotente(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, faultEnvelope("soap-env:Client.1033",
			"El comprobante fue registrado previamente con otros datos"))
	}))
	defer srv.Close()

	client := sunat.NewSOAPClientWithURL(srv.URL, logger.Nop())
	res, err := client.SendBill(context.Background(), testAccountSOL(), "x.zip", []byte("zip"))
	require.NoError(t, err)

	// «con otros datos» gana sobre 1033: NUNCA es aceptación
	assert.False(t, res.Accepted)
	assert.False(t, res.Transient)
}

func TestSendBill_FaultYaAceptada(t *testing.T) {
	casos := []struct {
		nombre    string
		faultCode string
		faultMsg  string
	}{
		{"código 1033", "soap-env:Client.1033", "El comprobante ya fue presentado anteriormente"},
		{"texto ha sido aceptada", "soap-env:Client", "La Factura numero F001-00000123 ha sido aceptada"},
	}
	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/xml")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, faultEnvelope(c.faultCode, c.faultMsg))
			}))
			defer srv.Close()

			client := sunat.NewSOAPClientWithURL(srv.URL, logger.Nop())
			res, err := client.SendBill(context.Background(), testAccountSOL(), "x.zip", []byte("zip"))
			require.NoError(t, err)

			assert.True(t, res.Accepted, "reenvío idempotente: un intento anterior ya fue aceptado")
			assert.False(t, res.Transient)
		})
	}
}

func TestSendBill_FaultTransitorio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, faultEnvelope("soap-env:Server.0109",
			"El sistema no puede responder su solicitud. Intente nuevamente"))
	}))
	defer srv.Close()

	client := sunat.NewSOAPClientWithURL(srv.URL, logger.Nop())
	res, err := client.SendBill(context.Background(), testAccountSOL(), "x.zip", []byte("zip"))
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.True(t, res.Transient)
	assert.Equal(t, "0109", res.Code)
}

func TestSendSummary_DevuelveTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(raw), "sendSummary")
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<soap-env:Envelope xmlns:soap-env="http://schemas.xmlsoap.org/soap/envelope/"
  xmlns:br="http://service.sunat.gob.pe">
  <soap-env:Body>
    <br:sendSummaryResponse><ticket>1725465387061</ticket></br:sendSummaryResponse>
  </soap-env:Body>
</soap-env:Envelope>`)
	}))
	defer srv.Close()

	client := sunat.NewSOAPClientWithURL(srv.URL, logger.Nop())
	ticket, faultRes, err := client.SendSummary(context.Background(), testAccountSOL(), "x.zip", []byte("zip"))
	require.NoError(t, err)
	assert.Nil(t, faultRes)
	assert.Equal(t, "1725465387061", ticket)
}

func TestSendSummary_FaultTerminalEsRechazo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, faultEnvelope("soap-env:Client.3002",
			"El numero de RUC del emisor no coincide con el RUC informado"))
	}))
	defer srv.Close()

	client := sunat.NewSOAPClientWithURL(srv.URL, logger.Nop())
	_, faultRes, err := client.SendSummary(context.Background(), testAccountSOL(), "x.zip", []byte("zip"))

	// Un rechazo semántico NO es un error de transporte: llega como veredicto
	// terminal y el documento pasa a rejected en vez de reintentarse por siempre
	require.NoError(t, err)
	require.NotNil(t, faultRes)
	assert.False(t, faultRes.Accepted)
	assert.False(t, faultRes.Transient)
	assert.Equal(t, "3002", faultRes.Code)
}

func TestSendSummary_FaultYaAceptadaEsIdempotente(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, faultEnvelope("soap-env:Client.1033",
			"La comunicacion ha sido aceptada anteriormente"))
	}))
	defer srv.Close()

	client := sunat.NewSOAPClientWithURL(srv.URL, logger.Nop())
	_, faultRes, err := client.SendSummary(context.Background(), testAccountSOL(), "x.zip", []byte("zip"))
	require.NoError(t, err)
	require.NotNil(t, faultRes)
	assert.True(t, faultRes.Accepted, "reenvío de un resumen ya procesado")
}

func TestSendSummary_FaultTransitorioConserva(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, faultEnvelope("soap-env:Server.0109",
			"El sistema no puede responder su solicitud. Intente nuevamente"))
	}))
	defer srv.Close()

	client := sunat.NewSOAPClientWithURL(srv.URL, logger.Nop())
	_, faultRes, err := client.SendSummary(context.Background(), testAccountSOL(), "x.zip", []byte("zip"))
	require.NoError(t, err)
	require.NotNil(t, faultRes)
	assert.False(t, faultRes.Accepted)
	assert.True(t, faultRes.Transient)
}

func TestGetStatus_EnProcesoEsTransitorio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<soap-env:Envelope xmlns:soap-env="http://schemas.xmlsoap.org/soap/envelope/"
  xmlns:br="http://service.sunat.gob.pe">
  <soap-env:Body>
    <br:getStatusResponse>
      <status><statusCode>98</statusCode></status>
    </br:getStatusResponse>
  </soap-env:Body>
</soap-env:Envelope>`)
	}))
	defer srv.Close()

	client := sunat.NewSOAPClientWithURL(srv.URL, logger.Nop())
	res, err := client.GetStatus(context.Background(), testAccountSOL(), "123")
	require.NoError(t, err)
	assert.True(t, res.Transient, "98 = aún en proceso")
	assert.Equal(t, "123", res.Ticket)
}

func TestGetStatusCDR_TipoNoSoportado(t *testing.T) {
	client := sunat.NewSOAPClientWithURL("http://localhost:1", logger.Nop())

	// La boleta, el tipo de mayor volumen, no es consultable por identidad
	_, err := client.GetStatusCDR(context.Background(), testAccountSOL(), entity.DocBoleta, "B001", 1)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no soporta"))

	_, err = client.GetStatusCDR(context.Background(), testAccountSOL(), entity.DocNotaDebito, "FD01", 1)
	require.Error(t, err)
}

func TestSendBill_CaidaDeRedEsTransporte(t *testing.T) {
	client := sunat.NewSOAPClientWithURL("http://127.0.0.1:1", logger.Nop())
	_, err := client.SendBill(context.Background(), testAccountSOL(), "x.zip", []byte("zip"))
	require.Error(t, err)
	assert.Equal(t, entity.KindTransporte, entity.KindOf(err))
	assert.True(t, sunat.IsTransientError(err))
}
