package ose

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

// invoiceResponse respuesta del operador. El veredicto de SUNAT viene embebido
// junto con los enlaces a los artefactos que el operador aloja.
type invoiceResponse struct {
	Aceptada         bool   `json:"aceptada_por_sunat"`
	SunatDescription string `json:"sunat_description"`
	SunatNote        string `json:"sunat_note"`
	SunatResponseCode string `json:"sunat_responsecode"`
	EnlaceXML        string `json:"enlace_del_xml"`
	EnlaceCDR        string `json:"enlace_del_cdr"`
	EnlacePDF        string `json:"enlace_del_pdf"`
	Errors           string `json:"errors"`
}

// Transport emisión vía operador: todo el trabajo UBL ocurre del lado del
// operador; aquí solo se mapea el documento a JSON y se clasifica la respuesta.
type Transport struct {
	defaultBaseURL string
	httpClient     *http.Client
	log            *logger.Logger
}

func NewTransport(defaultBaseURL string, log *logger.Logger) *Transport {
	return &Transport{
		defaultBaseURL: strings.TrimRight(defaultBaseURL, "/"),
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		log:            log,
	}
}

func (t *Transport) Kind() entity.ProviderKind { return entity.ProviderOSE }

func (t *Transport) Submit(ctx context.Context, doc *entity.BillingDocument, acc *entity.EmissionAccountConfig) (*entity.EmissionResult, error) {
	if acc.OSE == nil || acc.OSE.Token == "" {
		return nil, entity.Errorf(entity.KindConfig, "ose", "la cuenta %s no tiene token OSE", acc.RUC)
	}
	switch doc.Tipo {
	case entity.DocFactura, entity.DocBoleta, entity.DocNotaCredito, entity.DocNotaDebito:
	default:
		return nil, entity.Errorf(entity.KindConfig, "ose",
			"el operador no acepta el tipo de comprobante %s", doc.Tipo)
	}

	payload, err := mapDocument(doc)
	if err != nil {
		return nil, err
	}

	raw, err := t.post(ctx, acc, payload)
	if err != nil {
		return nil, err
	}

	var ir invoiceResponse
	if err := json.Unmarshal(raw, &ir); err != nil {
		return nil, entity.Errorf(entity.KindTransporte, "ose", "respuesta no es JSON: %v", err)
	}
	if ir.Errors != "" {
		return &entity.EmissionResult{
			Description: ir.Errors,
			Transient:   sunat.IsTransient("", ir.Errors),
		}, nil
	}

	desc := ir.SunatDescription
	if desc == "" {
		desc = ir.SunatNote
	}
	res := &entity.EmissionResult{
		Accepted:    ir.Aceptada,
		Code:        ir.SunatResponseCode,
		Description: desc,
		XMLURL:      ir.EnlaceXML,
		CDRURL:      ir.EnlaceCDR,
		PDFURL:      ir.EnlacePDF,
	}
	// Algunos rechazos del operador llegan con texto de «ya registrado»:
	// también son aceptación idempotente.
	if !res.Accepted && strings.Contains(strings.ToLower(desc), "ya se encuentra registrado") {
		res.Accepted = true
	}
	if !res.Accepted {
		res.Transient = sunat.IsTransient(res.Code, desc)
	}
	return res, nil
}

func (t *Transport) post(ctx context.Context, acc *entity.EmissionAccountConfig, payload *invoicePayload) ([]byte, error) {
	base := acc.OSE.BaseURL
	if base == "" {
		base = t.defaultBaseURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, entity.NewError(entity.KindBuild, "ose", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/api/documents", bytes.NewReader(body))
	if err != nil {
		return nil, entity.NewError(entity.KindTransporte, "ose", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token token=\""+acc.OSE.Token+"\"")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, entity.Errorf(entity.KindTransporte, "ose", "POST /api/documents: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, entity.Errorf(entity.KindTransporte, "ose", "leer respuesta: %v", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, entity.Errorf(entity.KindConfig, "ose", "HTTP %d: token rechazado por el operador", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 512 {
			msg = msg[:512] + "..."
		}
		return nil, entity.Errorf(entity.KindTransporte, "ose", "HTTP %d: %s", resp.StatusCode, msg)
	}
	return raw, nil
}
