package sunat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
	pkgsunat "github.com/GiacomoGonzales/cobrify-sub003/pkg/sunat"
)

// ── Constantes de entorno ─────────────────────────────────────────────────────

const (
	// AppEnvBeta ambiente de pruebas/homologación de SUNAT.
	AppEnvBeta = "beta"
	// AppEnvProd ambiente de producción.
	AppEnvProd = "prod"

	soapURLBeta = "https://e-beta.sunat.gob.pe/ol-ti-itcpfegem-beta/billService"
	soapURLProd = "https://e-factura.sunat.gob.pe/ol-ti-itcpfegem/billService"

	nsSoapEnv = "http://schemas.xmlsoap.org/soap/envelope/"
	nsService = "http://service.sunat.gob.pe"
	nsWsse    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"

	soapActionSendBill = "urn:sendBill"
)

// ── Cliente SOAP ──────────────────────────────────────────────────────────────

// SOAPClient cliente del WS billService de SUNAT. Usa net/http de la stdlib
// con structs encoding/xml para el envelope; no requiere librerías SOAP.
type SOAPClient struct {
	httpClient *http.Client
	baseURL    string // override para tests; vacío = URL según entorno
	log        *logger.Logger
}

// NewSOAPClient construye el cliente con un timeout generoso (90 s): el WS de
// SUNAT puede tardar bastante bajo carga y un timeout corto convierte envíos
// buenos en reintentos.
func NewSOAPClient(log *logger.Logger) *SOAPClient {
	return &SOAPClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		log:        log,
	}
}

// NewSOAPClientWithURL variante con endpoint fijo (tests / proxies internos).
func NewSOAPClientWithURL(url string, log *logger.Logger) *SOAPClient {
	c := NewSOAPClient(log)
	c.baseURL = url
	return c
}

// NewSOAPClientForEnv cliente según el ambiente global de despliegue. En beta
// todo el tráfico va al endpoint de pruebas aunque la cuenta esté marcada como
// producción (un despliegue de staging con datos copiados nunca debe tocar
// e-factura); en prod el endpoint se decide cuenta por cuenta.
func NewSOAPClientForEnv(env string, log *logger.Logger) (*SOAPClient, error) {
	switch env {
	case AppEnvProd:
		return NewSOAPClient(log), nil
	case AppEnvBeta, "":
		return NewSOAPClientWithURL(soapURLBeta, log), nil
	default:
		return nil, fmt.Errorf("ambiente SUNAT desconocido: %q (se espera %s o %s)", env, AppEnvBeta, AppEnvProd)
	}
}

// ── Estructuras del envelope ─────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName      xml.Name   `xml:"soapenv:Envelope"`
	XmlnsSoapenv string     `xml:"xmlns:soapenv,attr"`
	XmlnsSer     string     `xml:"xmlns:ser,attr"`
	XmlnsWsse    string     `xml:"xmlns:wsse,attr"`
	Header       soapHeader `xml:"soapenv:Header"`
	Body         soapBody   `xml:"soapenv:Body"`
}

type soapHeader struct {
	Security wsseSecurity `xml:"wsse:Security"`
}

type wsseSecurity struct {
	UsernameToken wsseUsernameToken `xml:"wsse:UsernameToken"`
}

type wsseUsernameToken struct {
	Username string `xml:"wsse:Username"`
	Password string `xml:"wsse:Password"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type sendBillBody struct {
	XMLName     xml.Name `xml:"ser:sendBill"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"` // ZIP en Base64
}

type sendSummaryBody struct {
	XMLName     xml.Name `xml:"ser:sendSummary"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"`
}

type getStatusBody struct {
	XMLName xml.Name `xml:"ser:getStatus"`
	Ticket  string   `xml:"ticket"`
}

type getStatusCdrBody struct {
	XMLName           xml.Name `xml:"ser:getStatusCdr"`
	RucComprobante    string   `xml:"rucComprobante"`
	TipoComprobante   string   `xml:"tipoComprobante"`
	SerieComprobante  string   `xml:"serieComprobante"`
	NumeroComprobante string   `xml:"numeroComprobante"`
}

// ── Estructuras de respuesta ─────────────────────────────────────────────────

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	SendBillResponse    *sendBillResponse    `xml:"sendBillResponse"`
	SendSummaryResponse *sendSummaryResponse `xml:"sendSummaryResponse"`
	GetStatusResponse   *getStatusResponse   `xml:"getStatusResponse"`
	StatusCdrResponse   *getStatusCdrResponse `xml:"getStatusCdrResponse"`
	Fault               *soapFault           `xml:"Fault"`
}

type sendBillResponse struct {
	ApplicationResponse string `xml:"applicationResponse"` // ZIP del CDR en Base64
}

type sendSummaryResponse struct {
	Ticket string `xml:"ticket"`
}

type getStatusResponse struct {
	Status soapStatus `xml:"status"`
}

type getStatusCdrResponse struct {
	Status soapStatus `xml:"statusCdr"`
}

type soapStatus struct {
	StatusCode    string `xml:"statusCode"`
	StatusMessage string `xml:"statusMessage"`
	Content       string `xml:"content"` // ZIP del CDR en Base64
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
	Detail      struct {
		Message string `xml:"message"`
	} `xml:"detail"`
}

// ── Operaciones ──────────────────────────────────────────────────────────────

// SendBill envía el ZIP del comprobante firmado y devuelve el veredicto
// parseado del CDR (o del Fault, ya clasificado).
func (c *SOAPClient) SendBill(ctx context.Context, acc *entity.EmissionAccountConfig, zipName string, zipBytes []byte) (*entity.EmissionResult, error) {
	body := &sendBillBody{
		FileName:    zipName,
		ContentFile: base64.StdEncoding.EncodeToString(zipBytes),
	}
	raw, err := c.call(ctx, acc, soapActionSendBill, body)
	if err != nil {
		return nil, err
	}
	env, fault := parseEnvelope(raw)
	if fault != nil {
		return classifyFault(fault), nil
	}
	if env.Body.SendBillResponse == nil || env.Body.SendBillResponse.ApplicationResponse == "" {
		return nil, entity.Errorf(entity.KindTransporte, "soap",
			"respuesta sendBill vacía o inesperada: %s", truncate(raw))
	}
	return c.resultFromCDRContent(env.Body.SendBillResponse.ApplicationResponse)
}

// SendSummary envía una comunicación de baja o un resumen diario; SUNAT los
// procesa en diferido y devuelve un ticket para consultar con GetStatus. Un
// Fault no es un error del cliente: se devuelve clasificado igual que en
// SendBill (rechazo terminal, aceptación idempotente o transitorio), para que
// el veredicto conserve su categoría en vez de degradarse a transporte.
func (c *SOAPClient) SendSummary(ctx context.Context, acc *entity.EmissionAccountConfig, zipName string, zipBytes []byte) (string, *entity.EmissionResult, error) {
	body := &sendSummaryBody{
		FileName:    zipName,
		ContentFile: base64.StdEncoding.EncodeToString(zipBytes),
	}
	raw, err := c.call(ctx, acc, "urn:sendSummary", body)
	if err != nil {
		return "", nil, err
	}
	env, fault := parseEnvelope(raw)
	if fault != nil {
		return "", classifyFault(fault), nil
	}
	if env.Body.SendSummaryResponse == nil || env.Body.SendSummaryResponse.Ticket == "" {
		return "", nil, entity.Errorf(entity.KindTransporte, "soap",
			"respuesta sendSummary sin ticket: %s", truncate(raw))
	}
	return env.Body.SendSummaryResponse.Ticket, nil, nil
}

// GetStatus consulta el estado de un ticket de sendSummary. statusCode 0 y 99
// traen CDR; 98 significa «aún en proceso» y se trata como transitorio.
func (c *SOAPClient) GetStatus(ctx context.Context, acc *entity.EmissionAccountConfig, ticket string) (*entity.EmissionResult, error) {
	raw, err := c.call(ctx, acc, "urn:getStatus", &getStatusBody{Ticket: ticket})
	if err != nil {
		return nil, err
	}
	env, fault := parseEnvelope(raw)
	if fault != nil {
		return classifyFault(fault), nil
	}
	if env.Body.GetStatusResponse == nil {
		return nil, entity.Errorf(entity.KindTransporte, "soap",
			"respuesta getStatus vacía: %s", truncate(raw))
	}
	st := env.Body.GetStatusResponse.Status
	if st.StatusCode == "98" {
		return &entity.EmissionResult{
			Transient:   true,
			Code:        st.StatusCode,
			Description: "el ticket aún está en proceso",
			Ticket:      ticket,
		}, nil
	}
	if st.Content == "" {
		return nil, entity.Errorf(entity.KindTransporte, "soap",
			"getStatus %s sin contenido CDR", st.StatusCode)
	}
	res, err := c.resultFromCDRContent(st.Content)
	if err != nil {
		return nil, err
	}
	res.Ticket = ticket
	return res, nil
}

// getStatusCdrSupported tipos que el WS permite consultar por identidad.
// La boleta (03), el tipo de mayor volumen, no está soportada.
var getStatusCdrSupported = map[entity.DocType]bool{
	entity.DocFactura:     true,
	entity.DocNotaCredito: true,
}

// GetStatusCDR recupera el CDR de un comprobante ya procesado por su identidad
// (operación de solo lectura; se usa para recobrar un CDR perdido por una
// respuesta cortada).
func (c *SOAPClient) GetStatusCDR(ctx context.Context, acc *entity.EmissionAccountConfig, tipo entity.DocType, serie string, numero int64) (*entity.EmissionResult, error) {
	if !getStatusCdrSupported[tipo] {
		return nil, fmt.Errorf("getStatusCdr no soporta el tipo de comprobante %s", tipo)
	}
	body := &getStatusCdrBody{
		RucComprobante:    pkgsunat.NormalizeRUC(acc.RUC),
		TipoComprobante:   string(tipo),
		SerieComprobante:  serie,
		NumeroComprobante: fmt.Sprintf("%d", numero),
	}
	raw, err := c.call(ctx, acc, "urn:getStatusCdr", body)
	if err != nil {
		return nil, err
	}
	env, fault := parseEnvelope(raw)
	if fault != nil {
		return classifyFault(fault), nil
	}
	if env.Body.StatusCdrResponse == nil || env.Body.StatusCdrResponse.Status.Content == "" {
		return nil, entity.Errorf(entity.KindTransporte, "soap",
			"getStatusCdr sin contenido: %s", truncate(raw))
	}
	return c.resultFromCDRContent(env.Body.StatusCdrResponse.Status.Content)
}

// ── Internos ─────────────────────────────────────────────────────────────────

// call arma el envelope con el UsernameToken WSSE (usuario = RUC+usuarioSOL) y
// ejecuta el POST. Los errores de red/HTTP 5xx se devuelven como transporte
// transitorio.
func (c *SOAPClient) call(ctx context.Context, acc *entity.EmissionAccountConfig, action string, body interface{}) ([]byte, error) {
	if acc == nil || acc.SOL == nil {
		return nil, entity.Errorf(entity.KindConfig, "soap", "credenciales SOL no configuradas")
	}
	url := c.baseURL
	if url == "" {
		url = soapURLBeta
		if acc.Production {
			url = soapURLProd
		}
	}

	envelope := soapEnvelope{
		XmlnsSoapenv: nsSoapEnv,
		XmlnsSer:     nsService,
		XmlnsWsse:    nsWsse,
		Header: soapHeader{Security: wsseSecurity{UsernameToken: wsseUsernameToken{
			// SUNAT autentica con RUC concatenado al usuario secundario
			Username: pkgsunat.NormalizeRUC(acc.RUC) + acc.SOL.UsuarioSOL,
			Password: acc.SOL.ClaveSOL,
		}}},
		Body: soapBody{Content: body},
	}

	payload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, entity.Errorf(entity.KindBuild, "soap", "serializar envelope: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, entity.Errorf(entity.KindTransporte, "soap", "crear request: %v", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", action)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeout, DNS, conexión: siempre transitorio, nunca crash
		return nil, entity.Errorf(entity.KindTransporte, "soap", "llamada HTTP fallida: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20)) // máx 4 MB
	if err != nil {
		return nil, entity.Errorf(entity.KindTransporte, "soap", "leer respuesta: %v", err)
	}
	// Un 500 con Fault parseable sigue su curso; cualquier otro 5xx sin cuerpo
	// SOAP es caída de infraestructura.
	if resp.StatusCode >= 500 && !bytes.Contains(raw, []byte("Envelope")) {
		return nil, entity.Errorf(entity.KindTransporte, "soap", "HTTP %d: %s", resp.StatusCode, truncate(raw))
	}
	return raw, nil
}

func parseEnvelope(raw []byte) (*soapResponseEnvelope, *soapFault) {
	var env soapResponseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		// Respuesta no parseable: se modela como fault genérico y el
		// clasificador decide con el texto crudo.
		return nil, &soapFault{FaultCode: "soap:Client", FaultString: string(raw)}
	}
	if env.Body.Fault != nil {
		return nil, env.Body.Fault
	}
	return &env, nil
}

func (c *SOAPClient) resultFromCDRContent(contentB64 string) (*entity.EmissionResult, error) {
	zipBytes, err := base64.StdEncoding.DecodeString(contentB64)
	if err != nil {
		return nil, entity.Errorf(entity.KindTransporte, "soap", "applicationResponse no es Base64: %v", err)
	}
	cdr, err := ParseCDRZip(zipBytes)
	if err != nil {
		return nil, entity.NewError(entity.KindTransporte, "soap", err)
	}
	res := &entity.EmissionResult{
		Accepted:    cdr.Accepted(),
		Code:        cdr.ResponseCode,
		Description: cdr.Description,
		CDR:         cdr.Raw,
	}
	if !res.Accepted {
		res.Transient = IsTransient(cdr.ResponseCode, cdr.Description)
	}
	return res, nil
}

// classifyFault interpreta un SOAP Fault de SUNAT. Reglas:
//
//   - «... con otros datos» es SIEMPRE rechazo, aunque el mensaje también
//     contenga «aceptada» (el documento ya existe con contenido distinto);
//   - «ha sido aceptada» o el código 1033 indican reenvío idempotente: un
//     intento anterior ya fue aceptado aunque este proceso no lo haya visto;
//   - el resto se separa en transitorio/terminal con el catálogo de firmas.
func classifyFault(f *soapFault) *entity.EmissionResult {
	code := extractFaultCode(f.FaultCode)
	msg := strings.TrimSpace(f.FaultString)
	if f.Detail.Message != "" {
		msg = strings.TrimSpace(msg + " " + f.Detail.Message)
	}
	normalized := asciiLower(msg)

	if strings.Contains(normalized, "con otros datos") {
		return &entity.EmissionResult{Accepted: false, Transient: false, Code: code, Description: msg}
	}
	if code == "1033" || strings.Contains(normalized, "ha sido aceptada") ||
		strings.Contains(normalized, "fue aceptada anteriormente") {
		return &entity.EmissionResult{Accepted: true, Code: code, Description: msg}
	}
	return &entity.EmissionResult{
		Accepted:    false,
		Transient:   IsTransient(code, msg),
		Code:        code,
		Description: msg,
	}
}

// extractFaultCode el faultcode llega como "soap-env:Client.1033" o "1033";
// interesa el sufijo numérico.
func extractFaultCode(faultCode string) string {
	s := faultCode
	if i := strings.LastIndexAny(s, ".:"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func truncate(raw []byte) string {
	const max = 512
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
