// Package entity define el modelo de dominio del motor de emisión electrónica.
package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DocType tipo de comprobante (Catálogo 01 SUNAT más los identificadores de baja y resumen).
type DocType string

const (
	DocFactura       DocType = "01"
	DocBoleta        DocType = "03"
	DocNotaCredito   DocType = "07"
	DocNotaDebito    DocType = "08"
	DocGuiaRemision  DocType = "09"
	DocBaja          DocType = "RA"
	DocResumenDiario DocType = "RC"
)

// IsNote indica si el tipo es una nota (crédito o débito) que exige documento de referencia.
func (t DocType) IsNote() bool {
	return t == DocNotaCredito || t == DocNotaDebito
}

// Party identifica a un participante del comprobante (emisor o receptor).
type Party struct {
	TipoDocIdentidad string // Catálogo 06: 1=DNI, 6=RUC
	NumeroDoc        string // RUC o DNI
	RazonSocial      string
	NombreComercial  string
	Direccion        string
	Ubigeo           string
	Distrito         string
	Provincia        string
	Departamento     string
}

// ReferencedDocument referencia al comprobante afectado por una nota.
type ReferencedDocument struct {
	Tipo   DocType // tipo del documento original (01, 03)
	Serie  string
	Numero int64
}

// DocumentLine línea del comprobante. El precio unitario viene con IGV incluido;
// el motor deriva el valor unitario según la afectación de la línea.
type DocumentLine struct {
	Descripcion    string
	CodigoProducto string
	Unidad         string // texto libre; se mapea al Catálogo 03
	Cantidad       decimal.Decimal
	PrecioUnitario decimal.Decimal // con IGV incluido
	Afectacion     string          // Catálogo 07: 10, 20, 30
}

// VoidedItem ítem de una comunicación de baja o resumen diario.
type VoidedItem struct {
	Tipo   DocType
	Serie  string
	Numero int64
	Motivo string
}

// BillingDocument comprobante inmutable una vez emitido. El motor solo lo lee;
// la identidad serie-número es única por emisor y tipo.
type BillingDocument struct {
	ID        string
	Tipo      DocType
	Serie     string
	Numero    int64
	Emisor    Party
	Receptor  Party
	Moneda    string // PEN, USD
	FechaEmision time.Time
	Lines     []DocumentLine

	// Descuento global; se prorratea por línea al construir el XML/JSON.
	DescuentoGlobal decimal.Decimal

	// Emisor exonerado: fuerza todas las líneas a exoneradas (20) sin importar
	// la afectación configurada por línea.
	EmisorExonerado bool

	// Solo para notas de crédito/débito.
	DocumentoAfectado *ReferencedDocument
	MotivoNota        string // Catálogo 09/10
	DescripcionMotivo string

	// Solo para baja (RA) y resumen diario (RC).
	FechaReferencia time.Time  // fecha de emisión de los documentos comunicados
	Items           []VoidedItem
	Correlativo     int // correlativo del día para el identificador RA/RC-YYYYMMDD-N

	// Solo para guía de remisión.
	MotivoTraslado   string // Catálogo 20 (01=venta, 04=traslado entre establecimientos...)
	PesoBrutoKg      decimal.Decimal
	PuntoPartida     string
	PuntoLlegada     string
	PlacaVehiculo    string
}

// SeriesNumber identidad legible F001-00000123.
func (d *BillingDocument) SeriesNumber() string {
	if d.Tipo == DocBaja || d.Tipo == DocResumenDiario {
		return d.SummaryIdentifier()
	}
	return formatSeriesNumber(d.Serie, d.Numero)
}

// SummaryIdentifier identificador de baja/resumen: RA-20260831-1.
func (d *BillingDocument) SummaryIdentifier() string {
	return string(d.Tipo) + "-" + d.FechaEmision.Format("20060102") + "-" + itoa(d.Correlativo)
}

func formatSeriesNumber(serie string, numero int64) string {
	return fmt.Sprintf("%s-%08d", strings.ToUpper(strings.TrimSpace(serie)), numero)
}

func itoa(n int) string {
	if n <= 0 {
		return "1"
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
