package sunat

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	pkgsunat "github.com/GiacomoGonzales/cobrify-sub003/pkg/sunat"
)

// buildDespatchAdvice genera la guía de remisión remitente (09). No lleva
// importes: el cuadre es de cantidades y datos de traslado.
func (s *XMLBuilderService) buildDespatchAdvice(doc *entity.BillingDocument) ([]byte, error) {
	if err := pkgsunat.ValidateRUC(doc.Emisor.NumeroDoc); err != nil {
		return nil, entity.NewError(entity.KindBuild, "xml-build", err)
	}
	if len(doc.Lines) == 0 {
		return nil, entity.Errorf(entity.KindBuild, "xml-build", "guía sin líneas de bienes")
	}
	if doc.PuntoPartida == "" || doc.PuntoLlegada == "" {
		return nil, entity.Errorf(entity.KindBuild, "xml-build", "guía sin punto de partida o de llegada")
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := rootElement("DespatchAdvice", NsDespatchAdvice)
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	writeSignatureExtensionPlaceholder(enc)

	writeCbc(enc, "UBLVersionID", "2.1")
	writeCbc(enc, "CustomizationID", "2.0")
	writeCbc(enc, "ID", doc.SeriesNumber())
	writeCbc(enc, "IssueDate", LimaDate(doc.FechaEmision))
	writeCbc(enc, "DespatchAdviceTypeCode", string(entity.DocGuiaRemision))

	writeSignatoryReference(enc, doc.Emisor)
	startCac(enc, "DespatchSupplierParty")
	writeCbcWithAttr(enc, "CustomerAssignedAccountID", doc.Emisor.NumeroDoc, "schemeID", pkgsunat.IdentityTypeRUC)
	startCac(enc, "Party")
	startCac(enc, "PartyLegalEntity")
	writeCbc(enc, "RegistrationName", doc.Emisor.RazonSocial)
	endCac(enc, "PartyLegalEntity")
	endCac(enc, "Party")
	endCac(enc, "DespatchSupplierParty")

	startCac(enc, "DeliveryCustomerParty")
	writeCbcWithAttr(enc, "CustomerAssignedAccountID", doc.Receptor.NumeroDoc, "schemeID", receptorScheme(doc))
	startCac(enc, "Party")
	startCac(enc, "PartyLegalEntity")
	writeCbc(enc, "RegistrationName", doc.Receptor.RazonSocial)
	endCac(enc, "PartyLegalEntity")
	endCac(enc, "Party")
	endCac(enc, "DeliveryCustomerParty")

	// cac:Shipment: motivo de traslado, peso bruto, puntos y vehículo
	startCac(enc, "Shipment")
	writeCbc(enc, "ID", "1")
	motivo := doc.MotivoTraslado
	if motivo == "" {
		motivo = "01" // venta
	}
	writeCbc(enc, "HandlingCode", motivo)
	if doc.PesoBrutoKg.IsPositive() {
		writeCbcWithAttr(enc, "GrossWeightMeasure", doc.PesoBrutoKg.String(), "unitCode", pkgsunat.UnitKGM)
	}
	startCac(enc, "Delivery")
	startCac(enc, "DeliveryAddress")
	writeCbc(enc, "StreetName", doc.PuntoLlegada)
	endCac(enc, "DeliveryAddress")
	endCac(enc, "Delivery")
	startCac(enc, "OriginAddress")
	writeCbc(enc, "StreetName", doc.PuntoPartida)
	endCac(enc, "OriginAddress")
	if doc.PlacaVehiculo != "" {
		startCac(enc, "TransportHandlingUnit")
		startCac(enc, "TransportEquipment")
		writeCbc(enc, "ID", doc.PlacaVehiculo)
		endCac(enc, "TransportEquipment")
		endCac(enc, "TransportHandlingUnit")
	}
	endCac(enc, "Shipment")

	for i, l := range doc.Lines {
		startCac(enc, "DespatchLine")
		writeCbc(enc, "ID", strconv.Itoa(i+1))
		writeCbcWithAttr(enc, "DeliveredQuantity", l.Cantidad.String(), "unitCode", pkgsunat.MapUnitCode(l.Unidad))
		startCac(enc, "OrderLineReference")
		writeCbc(enc, "LineID", strconv.Itoa(i+1))
		endCac(enc, "OrderLineReference")
		startCac(enc, "Item")
		writeCbc(enc, "Description", l.Descripcion)
		if l.CodigoProducto != "" {
			startCac(enc, "SellersItemIdentification")
			writeCbc(enc, "ID", l.CodigoProducto)
			endCac(enc, "SellersItemIdentification")
		}
		endCac(enc, "Item")
		endCac(enc, "DespatchLine")
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func receptorScheme(doc *entity.BillingDocument) string {
	if doc.Receptor.TipoDocIdentidad != "" {
		return doc.Receptor.TipoDocIdentidad
	}
	return pkgsunat.IdentityTypeRUC
}
