package sunat

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	pkgsunat "github.com/GiacomoGonzales/cobrify-sub003/pkg/sunat"
)

// buildVoidedDocuments genera la comunicación de baja (RA-YYYYMMDD-N).
// La fecha de referencia es la de emisión de los documentos que se dan de baja.
func (s *XMLBuilderService) buildVoidedDocuments(doc *entity.BillingDocument) ([]byte, error) {
	if err := pkgsunat.ValidateRUC(doc.Emisor.NumeroDoc); err != nil {
		return nil, entity.NewError(entity.KindBuild, "xml-build", err)
	}
	if len(doc.Items) == 0 {
		return nil, entity.Errorf(entity.KindBuild, "xml-build", "comunicación de baja sin documentos")
	}
	for _, it := range doc.Items {
		if it.Motivo == "" {
			return nil, entity.Errorf(entity.KindBuild, "xml-build",
				"baja de %s-%d sin motivo", it.Serie, it.Numero)
		}
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := rootElement("VoidedDocuments", NsVoided)
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	writeSignatureExtensionPlaceholder(enc)

	writeCbc(enc, "UBLVersionID", "2.0")
	writeCbc(enc, "CustomizationID", "1.0")
	writeCbc(enc, "ID", doc.SummaryIdentifier())
	writeCbc(enc, "ReferenceDate", LimaDate(doc.FechaReferencia))
	writeCbc(enc, "IssueDate", LimaDate(doc.FechaEmision))

	writeSignatoryReference(enc, doc.Emisor)
	writeSummarySignatureParty(enc, doc.Emisor)

	for i, it := range doc.Items {
		startSac(enc, "VoidedDocumentsLine")
		writeCbc(enc, "LineID", strconv.Itoa(i+1))
		writeCbc(enc, "DocumentTypeCode", string(it.Tipo))
		writeSac(enc, "DocumentSerialID", it.Serie)
		writeSac(enc, "DocumentNumberID", strconv.FormatInt(it.Numero, 10))
		writeSac(enc, "VoidReasonDescription", it.Motivo)
		endSac(enc, "VoidedDocumentsLine")
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildSummaryDocuments genera el resumen diario de boletas (RC-YYYYMMDD-N).
func (s *XMLBuilderService) buildSummaryDocuments(doc *entity.BillingDocument) ([]byte, error) {
	if err := pkgsunat.ValidateRUC(doc.Emisor.NumeroDoc); err != nil {
		return nil, entity.NewError(entity.KindBuild, "xml-build", err)
	}
	if len(doc.Items) == 0 {
		return nil, entity.Errorf(entity.KindBuild, "xml-build", "resumen diario sin documentos")
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := rootElement("SummaryDocuments", NsSummary)
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	writeSignatureExtensionPlaceholder(enc)

	writeCbc(enc, "UBLVersionID", "2.0")
	writeCbc(enc, "CustomizationID", "1.1")
	writeCbc(enc, "ID", doc.SummaryIdentifier())
	writeCbc(enc, "ReferenceDate", LimaDate(doc.FechaReferencia))
	writeCbc(enc, "IssueDate", LimaDate(doc.FechaEmision))

	writeSignatoryReference(enc, doc.Emisor)
	writeSummarySignatureParty(enc, doc.Emisor)

	for i, it := range doc.Items {
		startSac(enc, "SummaryDocumentsLine")
		writeCbc(enc, "LineID", strconv.Itoa(i+1))
		writeCbc(enc, "DocumentTypeCode", string(it.Tipo))
		// En el resumen cada línea es un documento individual (serie-número)
		writeCbc(enc, "ID", pkgsunat.FormatSeriesNumber(it.Serie, it.Numero))
		// Estado 1 = adicionar, 3 = anular (Catálogo 19); el motivo trae el estado
		estado := it.Motivo
		if estado == "" {
			estado = "1"
		}
		startSac(enc, "Status")
		writeCbc(enc, "ConditionCode", estado)
		endSac(enc, "Status")
		endSac(enc, "SummaryDocumentsLine")
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func startSac(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsSac, Local: local}})
}

func endSac(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsSac, Local: local}})
}

// writeSummarySignatureParty emisor de la comunicación (baja/resumen).
func writeSummarySignatureParty(enc *xml.Encoder, p entity.Party) {
	startCac(enc, "AccountingSupplierParty")
	writeCbcWithAttr(enc, "CustomerAssignedAccountID", p.NumeroDoc, "schemeID", pkgsunat.IdentityTypeRUC)
	startCac(enc, "Party")
	startCac(enc, "PartyLegalEntity")
	writeCbc(enc, "RegistrationName", p.RazonSocial)
	endCac(enc, "PartyLegalEntity")
	endCac(enc, "Party")
	endCac(enc, "AccountingSupplierParty")
}
