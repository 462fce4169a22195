package pse

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

// Transport emisión delegada: el motor construye el UBL, el PSE firma y
// entrega. Implementa el puerto Transport de la capa de aplicación.
type Transport struct {
	builder        *sunat.XMLBuilderService
	defaultBaseURL string
	log            *logger.Logger

	mu      sync.Mutex
	clients map[string]*Client // por base URL: el cache de token es por PSE
}

func NewTransport(builder *sunat.XMLBuilderService, defaultBaseURL string, log *logger.Logger) *Transport {
	return &Transport{
		builder:        builder,
		defaultBaseURL: defaultBaseURL,
		log:            log,
		clients:        make(map[string]*Client),
	}
}

func (t *Transport) clientFor(creds *entity.PSECredentials) *Client {
	base := creds.BaseURL
	if base == "" {
		base = t.defaultBaseURL
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[base]
	if !ok {
		c = NewClient(base, t.log)
		t.clients[base] = c
	}
	return c
}

func (t *Transport) Kind() entity.ProviderKind { return entity.ProviderPSE }

// Submit construye el XML, lo firma vía PSE y lo entrega. Si la firma terminó
// bien pero la entrega falló de forma terminal, devuelve medio-éxito: el XML
// firmado es un artefacto legal que debe conservarse para reenviarlo sin
// volver a firmar.
func (t *Transport) Submit(ctx context.Context, doc *entity.BillingDocument, acc *entity.EmissionAccountConfig) (*entity.EmissionResult, error) {
	if acc.PSE == nil {
		return nil, entity.Errorf(entity.KindConfig, "pse", "la cuenta %s no tiene credenciales PSE", acc.RUC)
	}
	client := t.clientFor(acc.PSE)

	xmlBytes, err := t.builder.Build(doc)
	if err != nil {
		return nil, err
	}

	xmlName, _ := sunat.Filenames(doc)
	signed, err := t.sign(ctx, client, doc, acc, xmlName, xmlBytes)
	if err != nil {
		return nil, err
	}

	res, err := t.deliver(ctx, client, acc, xmlName, signed)
	if err != nil {
		if entity.KindOf(err) == entity.KindTransporte && sunat.IsTransientError(err) {
			return &entity.EmissionResult{Transient: true, Description: err.Error(), SignedXML: signed}, nil
		}
		// Firma OK, entrega irrecuperable: medio-éxito.
		t.log.Warn().Str("documento", doc.SeriesNumber()).Err(err).
			Msg("el PSE firmó pero no pudo entregar a SUNAT")
		return &entity.EmissionResult{
			SignedUndelivered: true,
			Description:       err.Error(),
			SignedXML:         signed,
		}, nil
	}
	res.SignedXML = signed
	return res, nil
}

// sign toma su token del cache del cliente (no uno capturado antes): si aquí
// se renueva tras un 401, la entrega posterior ya encuentra el token nuevo.
func (t *Transport) sign(ctx context.Context, client *Client, doc *entity.BillingDocument, acc *entity.EmissionAccountConfig, xmlName string, xmlBytes []byte) ([]byte, error) {
	token, err := client.Token(ctx, acc.PSE)
	if err != nil {
		return nil, err
	}
	req := signRequest{
		RUC:        acc.RUC,
		TipoDoc:    string(doc.Tipo),
		NombreXML:  xmlName,
		XMLBase64:  base64.StdEncoding.EncodeToString(xmlBytes),
		Produccion: acc.Production,
	}
	signed, err := client.Sign(ctx, token, req)
	if err == nil {
		return signed, nil
	}
	// Emisor desconocido para el PSE: alta automática y un único reintento.
	if acc.PSE.AutoRegister && httpStatusIn(err, 404) {
		t.log.Info().Str("ruc", acc.RUC).Msg("emisor no registrado en el PSE; registrando")
		if regErr := client.Register(ctx, token, doc.Emisor); regErr != nil {
			return nil, regErr
		}
		return client.Sign(ctx, token, req)
	}
	// Token vencido entre el cacheo y el uso: renovar y reintentar una vez.
	if httpStatusIn(err, 401) {
		client.invalidateToken()
		token, tokErr := client.Token(ctx, acc.PSE)
		if tokErr != nil {
			return nil, tokErr
		}
		return client.Sign(ctx, token, req)
	}
	return nil, err
}

func (t *Transport) deliver(ctx context.Context, client *Client, acc *entity.EmissionAccountConfig, xmlName string, signed []byte) (*entity.EmissionResult, error) {
	token, err := client.Token(ctx, acc.PSE)
	if err != nil {
		return nil, err
	}
	req := deliverRequest{
		RUC:        acc.RUC,
		NombreXML:  xmlName,
		XMLBase64:  base64.StdEncoding.EncodeToString(signed),
		Produccion: acc.Production,
	}
	dr, err := client.Deliver(ctx, token, req)
	// El token pudo vencer entre la firma y la entrega: renovar y reintentar
	// una vez, igual que en la firma.
	if err != nil && httpStatusIn(err, 401) {
		client.invalidateToken()
		token, err = client.Token(ctx, acc.PSE)
		if err != nil {
			return nil, err
		}
		dr, err = client.Deliver(ctx, token, req)
	}
	if err != nil {
		return nil, err
	}
	res := &entity.EmissionResult{
		Accepted:    dr.Aceptado,
		Code:        dr.Codigo,
		Description: dr.Descripcion,
		Ticket:      dr.Ticket,
	}
	if dr.CDRBase64 != "" {
		if cdr, decErr := base64.StdEncoding.DecodeString(dr.CDRBase64); decErr == nil {
			res.CDR = cdr
		}
	}
	if !res.Accepted {
		res.Transient = sunat.IsTransient(dr.Codigo, dr.Descripcion)
	}
	return res, nil
}
