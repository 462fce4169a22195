// Package pse implementa el transporte vía Proveedor de Servicios Electrónicos:
// el motor construye el UBL, el PSE lo firma con su propio certificado y lo
// entrega a SUNAT.
package pse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

// Client cliente HTTP del PSE. El token bearer se cachea hasta su expiración
// real (claim exp del JWT) menos un margen, compartido entre goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
}

// ── API JSON del PSE ─────────────────────────────────────────────────────────

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type registerRequest struct {
	RUC         string `json:"ruc"`
	RazonSocial string `json:"razon_social"`
	Direccion   string `json:"direccion"`
	Ubigeo      string `json:"ubigeo"`
}

type signRequest struct {
	RUC        string `json:"ruc"`
	TipoDoc    string `json:"tipo_documento"`
	NombreXML  string `json:"nombre_xml"`
	XMLBase64  string `json:"xml_base64"`
	Produccion bool   `json:"produccion"`
}

type signResponse struct {
	XMLFirmado string `json:"xml_firmado_base64"`
	Hash       string `json:"hash"`
	Mensaje    string `json:"mensaje"`
}

type deliverRequest struct {
	RUC        string `json:"ruc"`
	NombreXML  string `json:"nombre_xml"`
	XMLBase64  string `json:"xml_base64"`
	Produccion bool   `json:"produccion"`
}

type deliverResponse struct {
	Aceptado    bool   `json:"aceptado"`
	Codigo      string `json:"codigo"`
	Descripcion string `json:"descripcion"`
	CDRBase64   string `json:"cdr_base64"`
	Ticket      string `json:"ticket"`
}

type errorResponse struct {
	Codigo  string `json:"codigo"`
	Mensaje string `json:"mensaje"`
}

// ── Autenticación ────────────────────────────────────────────────────────────

// Token devuelve un bearer vigente, pidiendo uno nuevo solo cuando el actual
// expiró o está por expirar.
func (c *Client) Token(ctx context.Context, creds *entity.PSECredentials) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	body := tokenRequest{ClientID: creds.ClientID, ClientSecret: creds.ClientSecret, GrantType: "client_credentials"}
	var tr tokenResponse
	if err := c.postJSON(ctx, "", "/api/v1/auth/token", body, &tr); err != nil {
		return "", err
	}
	if tr.AccessToken == "" {
		return "", entity.Errorf(entity.KindConfig, "pse", "el PSE no devolvió access_token")
	}

	c.token = tr.AccessToken
	c.tokenExp = tokenExpiry(tr)
	c.log.Debug().Time("expira", c.tokenExp).Msg("token PSE renovado")
	return c.token, nil
}

// tokenExpiry prefiere la claim exp del propio JWT (sin verificar firma: solo
// interesa la fecha); si el token no es JWT cae a expires_in, y en última
// instancia a 5 minutos.
func tokenExpiry(tr tokenResponse) time.Time {
	const margin = 30 * time.Second
	parser := jwt.NewParser()
	if tok, _, err := parser.ParseUnverified(tr.AccessToken, jwt.MapClaims{}); err == nil {
		if exp, err := tok.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.Add(-margin)
		}
	}
	if tr.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - margin)
	}
	return time.Now().Add(5 * time.Minute)
}

// invalidateToken fuerza renovación en la próxima llamada (tras un 401).
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// ── Operaciones ──────────────────────────────────────────────────────────────

// Register da de alta al emisor en el PSE. Idempotente: un alta repetida
// responde 409 y se ignora.
func (c *Client) Register(ctx context.Context, token string, emisor entity.Party) error {
	body := registerRequest{
		RUC:         emisor.NumeroDoc,
		RazonSocial: emisor.RazonSocial,
		Direccion:   emisor.Direccion,
		Ubigeo:      emisor.Ubigeo,
	}
	err := c.postJSON(ctx, token, "/api/v1/emisores", body, nil)
	if err != nil && strings.Contains(err.Error(), "409") {
		return nil
	}
	return err
}

// Sign envía el XML sin firmar y devuelve el XML firmado por el PSE.
func (c *Client) Sign(ctx context.Context, token string, req signRequest) ([]byte, error) {
	var sr signResponse
	if err := c.postJSON(ctx, token, "/api/v1/comprobantes/firmar", req, &sr); err != nil {
		return nil, err
	}
	signed, err := base64.StdEncoding.DecodeString(sr.XMLFirmado)
	if err != nil {
		return nil, entity.Errorf(entity.KindTransporte, "pse", "xml_firmado_base64 inválido: %v", err)
	}
	if len(signed) == 0 {
		return nil, entity.Errorf(entity.KindTransporte, "pse", "el PSE devolvió un XML firmado vacío: %s", sr.Mensaje)
	}
	return signed, nil
}

// Deliver entrega el XML ya firmado a SUNAT a través del PSE.
func (c *Client) Deliver(ctx context.Context, token string, req deliverRequest) (*deliverResponse, error) {
	var dr deliverResponse
	if err := c.postJSON(ctx, token, "/api/v1/comprobantes/enviar", req, &dr); err != nil {
		return nil, err
	}
	return &dr, nil
}

// ── HTTP ─────────────────────────────────────────────────────────────────────

func (c *Client) postJSON(ctx context.Context, token, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return entity.NewError(entity.KindBuild, "pse", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return entity.NewError(entity.KindTransporte, "pse", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.Errorf(entity.KindTransporte, "pse", "POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return entity.Errorf(entity.KindTransporte, "pse", "leer respuesta de %s: %v", path, err)
	}

	if resp.StatusCode >= 400 {
		var er errorResponse
		_ = json.Unmarshal(raw, &er)
		msg := er.Mensaje
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		kind := entity.KindTransporte
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = entity.KindConfig
		}
		return entity.Errorf(kind, "pse", "HTTP %d en %s [%s]: %s", resp.StatusCode, path, er.Codigo, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return entity.Errorf(entity.KindTransporte, "pse", "respuesta de %s no es JSON: %v", path, err)
	}
	return nil
}

func httpStatusIn(err error, codes ...int) bool {
	if err == nil {
		return false
	}
	for _, code := range codes {
		if strings.Contains(err.Error(), fmt.Sprintf("HTTP %d", code)) {
			return true
		}
	}
	return false
}
