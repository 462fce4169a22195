package sunat_test

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat"
)

// parseXML carga el XML generado en un árbol etree para asertar estructura
// sin depender de cómo se serializan prefijos y namespaces.
func parseXML(t *testing.T, xmlBytes []byte) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(xmlBytes))
	return doc
}

// firstByTag primer elemento del árbol cuyo nombre local coincide.
func firstByTag(el *etree.Element, tag string) *etree.Element {
	if el.Tag == tag {
		return el
	}
	for _, ch := range el.ChildElements() {
		if found := firstByTag(ch, tag); found != nil {
			return found
		}
	}
	return nil
}

func textOf(t *testing.T, root *etree.Element, tag string) string {
	t.Helper()
	el := firstByTag(root, tag)
	require.NotNil(t, el, "no se encontró <%s>", tag)
	return el.Text()
}

func TestBuildInvoice_EstructuraUBL(t *testing.T) {
	builder := sunat.NewXMLBuilderService()
	xmlBytes, err := builder.Build(testInvoice())
	require.NoError(t, err)

	doc := parseXML(t, xmlBytes)
	root := doc.Root()
	assert.Equal(t, "Invoice", root.Tag)

	assert.Equal(t, "2.1", textOf(t, root, "UBLVersionID"))
	assert.Equal(t, "2.0", textOf(t, root, "CustomizationID"))
	assert.Equal(t, "F001-00000123", textOf(t, root, "ID"))
	assert.Equal(t, "2026-08-15", textOf(t, root, "IssueDate"))

	typeCode := firstByTag(root, "InvoiceTypeCode")
	require.NotNil(t, typeCode)
	assert.Equal(t, "01", typeCode.Text())
	assert.Equal(t, "0101", typeCode.SelectAttrValue("listID", ""))

	// Leyenda 1000: monto en letras
	note := firstByTag(root, "Note")
	require.NotNil(t, note)
	assert.Equal(t, "1000", note.SelectAttrValue("languageLocaleID", ""))
	assert.Equal(t, "VEINTITRES CON 60/100 SOLES", note.Text())

	// Totales de cabecera cuadran con el vector 2 × 11.80
	taxTotal := firstByTag(root, "TaxTotal")
	require.NotNil(t, taxTotal)
	assert.Equal(t, "3.60", textOf(t, taxTotal, "TaxAmount"))
	monetary := firstByTag(root, "LegalMonetaryTotal")
	require.NotNil(t, monetary)
	assert.Equal(t, "23.60", textOf(t, monetary, "PayableAmount"))

	// El placeholder de firma debe existir y estar vacío
	extContent := firstByTag(root, "ExtensionContent")
	require.NotNil(t, extContent, "falta ext:ExtensionContent para la firma")
	assert.Empty(t, extContent.ChildElements())

	// cac:Signature referencia al nodo ds:Signature que inyecta el firmador
	sigRef := firstByTag(root, "Signature")
	require.NotNil(t, sigRef, "falta cac:Signature")
	assert.Equal(t, "SignatureSP", textOf(t, sigRef, "ID"))
	assert.Equal(t, "#SignatureSP", textOf(t, sigRef, "URI"))
	partyID := firstByTag(sigRef, "PartyIdentification")
	require.NotNil(t, partyID)
	assert.Equal(t, "20100070970", textOf(t, partyID, "ID"))

	// Catálogo 05: IGV con código de tributo 1000
	taxScheme := firstByTag(taxTotal, "TaxScheme")
	require.NotNil(t, taxScheme)
	assert.Equal(t, "1000", textOf(t, taxScheme, "ID"))
	assert.Equal(t, "IGV", textOf(t, taxScheme, "Name"))
}

func TestBuildInvoice_ReceptorSinNombre(t *testing.T) {
	builder := sunat.NewXMLBuilderService()
	doc := testInvoice()
	doc.Tipo = entity.DocBoleta
	doc.Serie = "B001"
	doc.Receptor = entity.Party{}

	xmlBytes, err := builder.Build(doc)
	require.NoError(t, err)

	tree := parseXML(t, xmlBytes)
	customer := firstByTag(tree.Root(), "AccountingCustomerParty")
	require.NotNil(t, customer)
	assert.Equal(t, "CLIENTE VARIOS", textOf(t, customer, "RegistrationName"))
}

func TestBuildNote_ReferenciaYMotivo(t *testing.T) {
	builder := sunat.NewXMLBuilderService()
	doc := testInvoice()
	doc.Tipo = entity.DocNotaCredito
	doc.Serie = "FC01"
	doc.MotivoNota = "01" // anulación de la operación
	doc.DescripcionMotivo = "ANULACION DE LA OPERACION"
	doc.DocumentoAfectado = &entity.ReferencedDocument{
		Tipo:   entity.DocFactura,
		Serie:  "F001",
		Numero: 100,
	}

	xmlBytes, err := builder.Build(doc)
	require.NoError(t, err)

	tree := parseXML(t, xmlBytes)
	root := tree.Root()
	assert.Equal(t, "CreditNote", root.Tag)

	discrepancy := firstByTag(root, "DiscrepancyResponse")
	require.NotNil(t, discrepancy)
	assert.Equal(t, "01", textOf(t, discrepancy, "ResponseCode"))
	assert.Equal(t, "F001-00000100", textOf(t, discrepancy, "ReferenceID"))

	billingRef := firstByTag(root, "BillingReference")
	require.NotNil(t, billingRef)
	assert.Equal(t, "F001-00000100", textOf(t, billingRef, "ID"))
	assert.Equal(t, "01", textOf(t, billingRef, "DocumentTypeCode"))

	// Las notas usan CreditNoteLine/CreditedQuantity, no InvoiceLine
	assert.NotNil(t, firstByTag(root, "CreditNoteLine"))
	assert.Nil(t, firstByTag(root, "InvoiceLine"))
}

func TestBuildNote_SinReferenciaFallaRapido(t *testing.T) {
	builder := sunat.NewXMLBuilderService()
	doc := testInvoice()
	doc.Tipo = entity.DocNotaCredito
	doc.MotivoNota = "01"
	doc.DocumentoAfectado = nil

	_, err := builder.Build(doc)
	require.Error(t, err)
	assert.Equal(t, entity.KindBuild, entity.KindOf(err))
}

func TestBuildVoidedDocuments_Identificador(t *testing.T) {
	builder := sunat.NewXMLBuilderService()
	doc := testInvoice()
	doc.Tipo = entity.DocBaja
	doc.Correlativo = 1
	doc.FechaReferencia = doc.FechaEmision
	doc.Lines = nil
	doc.Items = []entity.VoidedItem{{
		Tipo:   entity.DocFactura,
		Serie:  "F001",
		Numero: 99,
		Motivo: "ERROR EN DATOS DEL CLIENTE",
	}}

	xmlBytes, err := builder.Build(doc)
	require.NoError(t, err)

	tree := parseXML(t, xmlBytes)
	root := tree.Root()
	assert.Equal(t, "VoidedDocuments", root.Tag)
	assert.Equal(t, "RA-20260815-1", textOf(t, root, "ID"))

	line := firstByTag(root, "VoidedDocumentsLine")
	require.NotNil(t, line)
	assert.Equal(t, "F001", textOf(t, line, "DocumentSerialID"))
	assert.Equal(t, "99", textOf(t, line, "DocumentNumberID"))
	assert.Equal(t, "ERROR EN DATOS DEL CLIENTE", textOf(t, line, "VoidReasonDescription"))
}

func TestBuildDespatch_SinPuntosFalla(t *testing.T) {
	builder := sunat.NewXMLBuilderService()
	doc := testInvoice()
	doc.Tipo = entity.DocGuiaRemision
	doc.Serie = "T001"
	doc.PuntoPartida = "" // obligatorio

	_, err := builder.Build(doc)
	require.Error(t, err)
	assert.Equal(t, entity.KindBuild, entity.KindOf(err))
}
