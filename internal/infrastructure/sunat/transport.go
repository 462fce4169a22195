package sunat

import (
	"context"
	"errors"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat/signer"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

// SOLTransport emisión directa contra el WS de SUNAT: construye el UBL, firma
// con el certificado del emisor, comprime y envía. Implementa el puerto
// Transport de la capa de aplicación.
type SOLTransport struct {
	builder  *XMLBuilderService
	signer   *signer.DigitalSignatureService
	client   *SOAPClient
	defaults *entity.SOLCredentials // credenciales globales (SUNAT_* del entorno); nil = sin fallback
	log      *logger.Logger
}

func NewSOLTransport(builder *XMLBuilderService, sig *signer.DigitalSignatureService, client *SOAPClient, defaults *entity.SOLCredentials, log *logger.Logger) *SOLTransport {
	return &SOLTransport{builder: builder, signer: sig, client: client, defaults: defaults, log: log}
}

func (t *SOLTransport) Kind() entity.ProviderKind { return entity.ProviderSOL }

// Submit construye, firma y envía el documento. El XML firmado siempre viaja
// en el resultado aunque el envío falle, para que el orquestador lo persista.
func (t *SOLTransport) Submit(ctx context.Context, doc *entity.BillingDocument, acc *entity.EmissionAccountConfig) (*entity.EmissionResult, error) {
	if acc.SOL == nil && t.defaults != nil {
		// Cuenta sin credenciales propias: usar las globales del entorno.
		cp := *acc
		cp.SOL = t.defaults
		acc = &cp
	}
	if acc.SOL == nil {
		return nil, entity.Errorf(entity.KindConfig, "sol", "la cuenta %s no tiene credenciales SOL ni hay credenciales globales", acc.RUC)
	}

	signedXML, err := t.buildAndSign(doc, acc)
	if err != nil {
		return nil, err
	}

	xmlName, zipName := Filenames(doc)
	zipBytes, err := CompressXMLToZip(signedXML, xmlName)
	if err != nil {
		return nil, entity.NewError(entity.KindBuild, "sol", err)
	}

	var res *entity.EmissionResult
	switch doc.Tipo {
	case entity.DocResumenDiario, entity.DocBaja:
		res, err = t.submitSummary(ctx, acc, zipName, zipBytes)
	default:
		res, err = t.client.SendBill(ctx, acc, zipName, zipBytes)
		if err != nil && entity.KindOf(err) == entity.KindTransporte {
			// La respuesta pudo perderse después de que SUNAT procesó el
			// envío: un reintento ciego duplicaría. Se intenta recuperar el
			// CDR una sola vez antes de rendirse.
			if rec, recErr := t.recoverCDR(ctx, doc, acc); recErr == nil && rec != nil {
				t.log.Info().Str("documento", doc.SeriesNumber()).Msg("CDR recuperado vía getStatusCdr tras fallo de envío")
				res, err = rec, nil
			}
		}
	}
	if err != nil {
		if entity.KindOf(err) == entity.KindTransporte && !entity.IsFatal(err) {
			return &entity.EmissionResult{
				Transient:   true,
				Description: err.Error(),
				SignedXML:   signedXML,
			}, nil
		}
		return nil, err
	}
	res.SignedXML = signedXML
	return res, nil
}

func (t *SOLTransport) buildAndSign(doc *entity.BillingDocument, acc *entity.EmissionAccountConfig) ([]byte, error) {
	xmlBytes, err := t.builder.Build(doc)
	if err != nil {
		return nil, err
	}
	cert, err := signer.Decode(acc.SOL.CertP12, acc.SOL.CertPassword)
	if err != nil {
		return nil, err
	}
	signedXML, err := t.signer.Sign(xmlBytes, cert)
	if err != nil {
		return nil, err
	}
	return signedXML, nil
}

// submitSummary los resúmenes y bajas se procesan en diferido: se envía, se
// guarda el ticket y se consulta una vez de inmediato por si ya terminó.
func (t *SOLTransport) submitSummary(ctx context.Context, acc *entity.EmissionAccountConfig, zipName string, zipBytes []byte) (*entity.EmissionResult, error) {
	ticket, faultRes, err := t.client.SendSummary(ctx, acc, zipName, zipBytes)
	if err != nil {
		return nil, err
	}
	if faultRes != nil {
		// Fault ya clasificado: un rechazo terminal debe llegar como rechazo,
		// no reciclarse como falla de transporte.
		return faultRes, nil
	}
	res, err := t.client.GetStatus(ctx, acc, ticket)
	if err != nil {
		// El ticket existe; el veredicto se obtendrá en el próximo reintento.
		return &entity.EmissionResult{
			Transient:   true,
			Ticket:      ticket,
			Description: "ticket emitido, veredicto pendiente: " + err.Error(),
		}, nil
	}
	return res, nil
}

func (t *SOLTransport) recoverCDR(ctx context.Context, doc *entity.BillingDocument, acc *entity.EmissionAccountConfig) (*entity.EmissionResult, error) {
	if !getStatusCdrSupported[doc.Tipo] {
		return nil, errors.New("tipo no consultable")
	}
	res, err := t.client.GetStatusCDR(ctx, acc, doc.Tipo, doc.Serie, doc.Numero)
	if err != nil || res == nil || res.Code == "" {
		return nil, errors.New("sin CDR recuperable")
	}
	return res, nil
}
