package sunat

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	pkgsunat "github.com/GiacomoGonzales/cobrify-sub003/pkg/sunat"
)

// buildNote genera el CreditNote (07) o DebitNote (08) UBL 2.1. La referencia
// al documento afectado y el motivo son obligatorios; ComputeTotals ya los validó.
func (s *XMLBuilderService) buildNote(doc *entity.BillingDocument) ([]byte, error) {
	totals, err := ComputeTotals(doc)
	if err != nil {
		return nil, err
	}

	local, ns := "CreditNote", NsCreditNote
	lineElem, qtyElem := "CreditNoteLine", "CreditedQuantity"
	if doc.Tipo == entity.DocNotaDebito {
		local, ns = "DebitNote", NsDebitNote
		lineElem, qtyElem = "DebitNoteLine", "DebitedQuantity"
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := rootElement(local, ns)
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	writeSignatureExtensionPlaceholder(enc)

	writeCbc(enc, "UBLVersionID", "2.1")
	writeCbc(enc, "CustomizationID", "2.0")
	writeCbc(enc, "ID", doc.SeriesNumber())
	writeCbc(enc, "IssueDate", LimaDate(doc.FechaEmision))
	writeCbc(enc, "IssueTime", limaTime(doc.FechaEmision))
	for _, l := range pkgsunat.LeyendasFor(totals.ImporteTotal, doc.Moneda, false) {
		writeCbcWithAttr(enc, "Note", l.Valor, "languageLocaleID", l.Codigo)
	}
	writeCbc(enc, "DocumentCurrencyCode", currencyOf(doc))
	writeCbc(enc, "LineCountNumeric", strconv.Itoa(len(totals.Lines)))

	// Motivo de la nota (Catálogo 09/10) y documento afectado
	ref := doc.DocumentoAfectado
	refID := pkgsunat.FormatSeriesNumber(ref.Serie, ref.Numero)
	startCac(enc, "DiscrepancyResponse")
	writeCbc(enc, "ReferenceID", refID)
	writeCbc(enc, "ResponseCode", doc.MotivoNota)
	writeCbc(enc, "Description", doc.DescripcionMotivo)
	endCac(enc, "DiscrepancyResponse")

	startCac(enc, "BillingReference")
	startCac(enc, "InvoiceDocumentReference")
	writeCbc(enc, "ID", refID)
	writeCbc(enc, "DocumentTypeCode", string(ref.Tipo))
	endCac(enc, "InvoiceDocumentReference")
	endCac(enc, "BillingReference")

	writeSignatoryReference(enc, doc.Emisor)
	writeSupplierParty(enc, doc.Emisor)
	writeCustomerParty(enc, doc.Receptor)

	writeTaxTotal(enc, totals, currencyOf(doc))

	// En notas el total monetario se llama RequestedMonetaryTotal
	lineExtension := totals.TotalGravado.Add(totals.TotalExonerado).Add(totals.TotalInafecto)
	startCac(enc, "RequestedMonetaryTotal")
	writeCbcAmount(enc, "LineExtensionAmount", formatDecimal(lineExtension), currencyOf(doc))
	writeCbcAmount(enc, "TaxInclusiveAmount", formatDecimal(totals.ImporteTotal), currencyOf(doc))
	writeCbcAmount(enc, "PayableAmount", formatDecimal(totals.ImporteTotal), currencyOf(doc))
	endCac(enc, "RequestedMonetaryTotal")

	for i := range totals.Lines {
		writeDocumentLine(enc, lineElem, qtyElem, i+1, &totals.Lines[i], currencyOf(doc))
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
