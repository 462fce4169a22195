package sunat

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	pkgsunat "github.com/GiacomoGonzales/cobrify-sub003/pkg/sunat"
)

// Namespaces oficiales UBL 2.1 y extensiones SUNAT.
const (
	// Namespaces raíz por tipo de documento
	NsInvoice        = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NsCreditNote     = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	NsDebitNote      = "urn:oasis:names:specification:ubl:schema:xsd:DebitNote-2"
	NsDespatchAdvice = "urn:oasis:names:specification:ubl:schema:xsd:DespatchAdvice-2"
	NsVoided         = "urn:sunat:names:specification:ubl:peru:schema:xsd:VoidedDocuments-1"
	NsSummary        = "urn:sunat:names:specification:ubl:peru:schema:xsd:SummaryDocuments-1"
	// Common Aggregate Components
	NsCac = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	// Common Basic Components
	NsCbc = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	// Extension Components (aquí se inyecta la firma)
	NsExt = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	// SUNAT Aggregate Components (bajas y resúmenes)
	NsSac = "urn:sunat:names:specification:ubl:peru:schema:xsd:SunatAggregateComponents-1"
	// XML Digital Signature
	NsDs = "http://www.w3.org/2000/09/xmldsig#"

	// signatureNodeID Id del nodo ds:Signature; debe coincidir con el que
	// inyecta el firmador para que cac:Signature lo referencie.
	signatureNodeID = "SignatureSP"
)

// limaTZ fecha de emisión en el día calendario del emisor, no del servidor.
// Sin la zona explícita un emisor en Lima que factura a las 19:30 del día 31
// quedaría con fecha del día 1 en un servidor UTC.
var limaTZ = func() *time.Location {
	loc, err := time.LoadLocation("America/Lima")
	if err != nil {
		return time.FixedZone("-05", -5*3600)
	}
	return loc
}()

// LimaDate formatea una fecha en el día calendario de Lima (YYYY-MM-DD).
func LimaDate(t time.Time) string { return t.In(limaTZ).Format("2006-01-02") }

func limaTime(t time.Time) string { return t.In(limaTZ).Format("15:04:05") }

// XMLBuilderService construye el XML UBL 2.1 (sin firma) de cada tipo de comprobante.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build despacha al constructor del tipo de documento.
func (s *XMLBuilderService) Build(doc *entity.BillingDocument) ([]byte, error) {
	switch doc.Tipo {
	case entity.DocFactura, entity.DocBoleta:
		return s.buildInvoice(doc)
	case entity.DocNotaCredito, entity.DocNotaDebito:
		return s.buildNote(doc)
	case entity.DocGuiaRemision:
		return s.buildDespatchAdvice(doc)
	case entity.DocBaja:
		return s.buildVoidedDocuments(doc)
	case entity.DocResumenDiario:
		return s.buildSummaryDocuments(doc)
	default:
		return nil, entity.Errorf(entity.KindBuild, "xml-build", "tipo de documento %q no soportado", doc.Tipo)
	}
}

// buildInvoice genera el Invoice UBL 2.1 de factura (01) o boleta (03).
func (s *XMLBuilderService) buildInvoice(doc *entity.BillingDocument) ([]byte, error) {
	totals, err := ComputeTotals(doc)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := rootElement("Invoice", NsInvoice)
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	// ext:UBLExtensions siempre como primer hijo; el firmador inyecta ds:Signature aquí
	writeSignatureExtensionPlaceholder(enc)

	writeCbc(enc, "UBLVersionID", "2.1")
	writeCbc(enc, "CustomizationID", "2.0")
	writeCbc(enc, "ID", doc.SeriesNumber())
	writeCbc(enc, "IssueDate", LimaDate(doc.FechaEmision))
	writeCbc(enc, "IssueTime", limaTime(doc.FechaEmision))
	// listID 0101: venta interna (Catálogo 51)
	writeCbcWithAttr(enc, "InvoiceTypeCode", string(doc.Tipo), "listID", "0101")
	for _, l := range pkgsunat.LeyendasFor(totals.ImporteTotal, doc.Moneda, false) {
		writeCbcWithAttr(enc, "Note", l.Valor, "languageLocaleID", l.Codigo)
	}
	writeCbc(enc, "DocumentCurrencyCode", currencyOf(doc))
	writeCbc(enc, "LineCountNumeric", strconv.Itoa(len(totals.Lines)))

	writeSignatoryReference(enc, doc.Emisor)
	writeSupplierParty(enc, doc.Emisor)
	writeCustomerParty(enc, doc.Receptor)

	if totals.Descuento.IsPositive() {
		// El descuento ya está prorrateado por línea; se informa el total a nivel
		// de documento solo como cargo/descuento global (ChargeIndicator=false).
		writeAllowanceCharge(enc, totals.Descuento, currencyOf(doc))
	}

	writeTaxTotal(enc, totals, currencyOf(doc))
	writeLegalMonetaryTotal(enc, totals, currencyOf(doc))

	for i := range totals.Lines {
		writeDocumentLine(enc, "InvoiceLine", "InvoicedQuantity", i+1, &totals.Lines[i], currencyOf(doc))
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ── helpers compartidos entre tipos de documento ─────────────────────────────

func rootElement(local, ns string) xml.StartElement {
	attrs := []xml.Attr{
		{Name: xml.Name{Local: "xmlns"}, Value: ns},
		{Name: xml.Name{Local: "xmlns:cac"}, Value: NsCac},
		{Name: xml.Name{Local: "xmlns:cbc"}, Value: NsCbc},
		{Name: xml.Name{Local: "xmlns:ds"}, Value: NsDs},
		{Name: xml.Name{Local: "xmlns:ext"}, Value: NsExt},
	}
	if local == "VoidedDocuments" || local == "SummaryDocuments" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "xmlns:sac"}, Value: NsSac})
	}
	return xml.StartElement{Name: xml.Name{Space: ns, Local: local}, Attr: attrs}
}

// writeSignatureExtensionPlaceholder deja un ExtensionContent vacío donde el
// firmador inyectará <ds:Signature>.
func writeSignatureExtensionPlaceholder(enc *xml.Encoder) {
	startExt(enc, "UBLExtensions")
	startExt(enc, "UBLExtension")
	startExt(enc, "ExtensionContent")
	endExt(enc, "ExtensionContent")
	endExt(enc, "UBLExtension")
	endExt(enc, "UBLExtensions")
}

func startExt(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsExt, Local: local}})
}

func endExt(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsExt, Local: local}})
}

func startCac(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: local}})
}

func endCac(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: local}})
}

func writeCbc(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCbc, Local: local}})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCbc, Local: local}})
}

func writeCbcWithAttr(enc *xml.Encoder, local, value, attrLocal, attrValue string) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsCbc, Local: local},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrLocal}, Value: attrValue}},
	})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCbc, Local: local}})
}

func writeCbcAmount(enc *xml.Encoder, local, value, currency string) {
	writeCbcWithAttr(enc, local, value, "currencyID", currency)
}

func writeSac(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsSac, Local: local}})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsSac, Local: local}})
}

func currencyOf(doc *entity.BillingDocument) string {
	if doc.Moneda == "" {
		return pkgsunat.CurrencyPEN
	}
	return doc.Moneda
}

func writeSupplierParty(enc *xml.Encoder, p entity.Party) {
	startCac(enc, "AccountingSupplierParty")
	startCac(enc, "Party")
	writePartyIdentification(enc, p)
	if p.NombreComercial != "" {
		startCac(enc, "PartyName")
		writeCbc(enc, "Name", p.NombreComercial)
		endCac(enc, "PartyName")
	}
	startCac(enc, "PartyLegalEntity")
	writeCbc(enc, "RegistrationName", p.RazonSocial)
	if p.Direccion != "" {
		startCac(enc, "RegistrationAddress")
		if p.Ubigeo != "" {
			writeCbc(enc, "ID", p.Ubigeo)
		}
		startCac(enc, "AddressLine")
		writeCbc(enc, "Line", p.Direccion)
		endCac(enc, "AddressLine")
		endCac(enc, "RegistrationAddress")
	}
	endCac(enc, "PartyLegalEntity")
	endCac(enc, "Party")
	endCac(enc, "AccountingSupplierParty")
}

func writeCustomerParty(enc *xml.Encoder, p entity.Party) {
	startCac(enc, "AccountingCustomerParty")
	startCac(enc, "Party")
	writePartyIdentification(enc, p)
	startCac(enc, "PartyLegalEntity")
	name := p.RazonSocial
	if name == "" {
		name = "CLIENTE VARIOS"
	}
	writeCbc(enc, "RegistrationName", name)
	endCac(enc, "PartyLegalEntity")
	endCac(enc, "Party")
	endCac(enc, "AccountingCustomerParty")
}

// writeSignatoryReference emite el cac:Signature que apunta al nodo ds:Signature
// (mismo Id que inyecta el firmador).
func writeSignatoryReference(enc *xml.Encoder, emisor entity.Party) {
	startCac(enc, "Signature")
	writeCbc(enc, "ID", signatureNodeID)
	startCac(enc, "SignatoryParty")
	startCac(enc, "PartyIdentification")
	writeCbc(enc, "ID", emisor.NumeroDoc)
	endCac(enc, "PartyIdentification")
	startCac(enc, "PartyName")
	writeCbc(enc, "Name", emisor.RazonSocial)
	endCac(enc, "PartyName")
	endCac(enc, "SignatoryParty")
	startCac(enc, "DigitalSignatureAttachment")
	startCac(enc, "ExternalReference")
	writeCbc(enc, "URI", "#"+signatureNodeID)
	endCac(enc, "ExternalReference")
	endCac(enc, "DigitalSignatureAttachment")
	endCac(enc, "Signature")
}

func writePartyIdentification(enc *xml.Encoder, p entity.Party) {
	scheme := p.TipoDocIdentidad
	if scheme == "" {
		scheme = pkgsunat.IdentityTypeSinDoc
	}
	startCac(enc, "PartyIdentification")
	writeCbcWithAttr(enc, "ID", p.NumeroDoc, "schemeID", scheme)
	endCac(enc, "PartyIdentification")
}

func writeAllowanceCharge(enc *xml.Encoder, amount decimal.Decimal, currency string) {
	startCac(enc, "AllowanceCharge")
	writeCbc(enc, "ChargeIndicator", "false")
	writeCbc(enc, "AllowanceChargeReasonCode", "02")
	writeCbcAmount(enc, "Amount", formatDecimal(amount), currency)
	endCac(enc, "AllowanceCharge")
}

// writeTaxTotal emite el TaxTotal de cabecera con un TaxSubtotal por afectación presente.
func writeTaxTotal(enc *xml.Encoder, t *Totals, currency string) {
	startCac(enc, "TaxTotal")
	writeCbcAmount(enc, "TaxAmount", formatDecimal(t.TotalIGV), currency)
	if t.TotalGravado.IsPositive() || t.TotalIGV.IsPositive() {
		writeTaxSubtotal(enc, t.TotalGravado, t.TotalIGV, pkgsunat.AfectacionGravado, currency)
	}
	if t.TotalExonerado.IsPositive() {
		writeTaxSubtotal(enc, t.TotalExonerado, decimal.Zero, pkgsunat.AfectacionExonerado, currency)
	}
	if t.TotalInafecto.IsPositive() {
		writeTaxSubtotal(enc, t.TotalInafecto, decimal.Zero, pkgsunat.AfectacionInafecto, currency)
	}
	endCac(enc, "TaxTotal")
}

func writeTaxSubtotal(enc *xml.Encoder, taxable, tax decimal.Decimal, afectacion, currency string) {
	id, name, category := pkgsunat.TributoFor(afectacion)
	startCac(enc, "TaxSubtotal")
	writeCbcAmount(enc, "TaxableAmount", formatDecimal(taxable), currency)
	writeCbcAmount(enc, "TaxAmount", formatDecimal(tax), currency)
	startCac(enc, "TaxCategory")
	writeCbc(enc, "ID", category)
	startCac(enc, "TaxScheme")
	writeCbc(enc, "ID", id)
	writeCbc(enc, "Name", name)
	writeCbc(enc, "TaxTypeCode", "VAT")
	endCac(enc, "TaxScheme")
	endCac(enc, "TaxCategory")
	endCac(enc, "TaxSubtotal")
}

func writeLegalMonetaryTotal(enc *xml.Encoder, t *Totals, currency string) {
	lineExtension := t.TotalGravado.Add(t.TotalExonerado).Add(t.TotalInafecto)
	startCac(enc, "LegalMonetaryTotal")
	writeCbcAmount(enc, "LineExtensionAmount", formatDecimal(lineExtension), currency)
	writeCbcAmount(enc, "TaxInclusiveAmount", formatDecimal(t.ImporteTotal), currency)
	if t.Descuento.IsPositive() {
		writeCbcAmount(enc, "AllowanceTotalAmount", formatDecimal(t.Descuento), currency)
	}
	writeCbcAmount(enc, "PayableAmount", formatDecimal(t.ImporteTotal), currency)
	endCac(enc, "LegalMonetaryTotal")
}

// writeDocumentLine emite una línea de Invoice/CreditNote/DebitNote. lineElem y
// qtyElem cambian por tipo (InvoiceLine/InvoicedQuantity, CreditNoteLine/CreditedQuantity...).
func writeDocumentLine(enc *xml.Encoder, lineElem, qtyElem string, lineNum int, l *LineAmounts, currency string) {
	startCac(enc, lineElem)
	writeCbc(enc, "ID", strconv.Itoa(lineNum))
	writeCbcWithAttr(enc, qtyElem, l.Cantidad.String(), "unitCode", l.UnitCode)
	writeCbcAmount(enc, "LineExtensionAmount", formatDecimal(l.ValorVenta), currency)

	// Precio de venta unitario (con IGV) como referencia de precio tipo 01
	startCac(enc, "PricingReference")
	startCac(enc, "AlternativeConditionPrice")
	writeCbcAmount(enc, "PriceAmount", formatUnitValue(l.PrecioUnitario), currency)
	writeCbc(enc, "PriceTypeCode", "01")
	endCac(enc, "AlternativeConditionPrice")
	endCac(enc, "PricingReference")

	// Impuesto de la línea
	id, name, category := pkgsunat.TributoFor(l.Afectacion)
	startCac(enc, "TaxTotal")
	writeCbcAmount(enc, "TaxAmount", formatDecimal(l.IGV), currency)
	startCac(enc, "TaxSubtotal")
	writeCbcAmount(enc, "TaxableAmount", formatDecimal(l.ValorVenta), currency)
	writeCbcAmount(enc, "TaxAmount", formatDecimal(l.IGV), currency)
	startCac(enc, "TaxCategory")
	writeCbc(enc, "ID", category)
	if l.Afectacion == pkgsunat.AfectacionGravado {
		writeCbc(enc, "Percent", strconv.Itoa(pkgsunat.IGVRatePercent))
	} else {
		writeCbc(enc, "Percent", "0")
	}
	writeCbc(enc, "TaxExemptionReasonCode", l.Afectacion)
	startCac(enc, "TaxScheme")
	writeCbc(enc, "ID", id)
	writeCbc(enc, "Name", name)
	writeCbc(enc, "TaxTypeCode", "VAT")
	endCac(enc, "TaxScheme")
	endCac(enc, "TaxCategory")
	endCac(enc, "TaxSubtotal")
	endCac(enc, "TaxTotal")

	// cac:Item
	startCac(enc, "Item")
	writeCbc(enc, "Description", l.Descripcion)
	if l.CodigoProducto != "" {
		startCac(enc, "SellersItemIdentification")
		writeCbc(enc, "ID", l.CodigoProducto)
		endCac(enc, "SellersItemIdentification")
	}
	endCac(enc, "Item")

	// cac:Price con el valor unitario sin IGV
	startCac(enc, "Price")
	writeCbcAmount(enc, "PriceAmount", formatUnitValue(l.ValorUnitario), currency)
	endCac(enc, "Price")

	endCac(enc, lineElem)
}
