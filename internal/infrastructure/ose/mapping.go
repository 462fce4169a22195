// Package ose implementa el transporte vía Operador de Servicios Electrónicos:
// el motor no arma XML, envía el comprobante como JSON y el operador construye,
// firma y entrega, devolviendo el veredicto y enlaces a los artefactos.
package ose

import (
	"github.com/shopspring/decimal"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat"
	pkgsunat "github.com/GiacomoGonzales/cobrify-sub003/pkg/sunat"
)

// invoicePayload comprobante en el formato JSON del operador. Los montos van
// como string con la misma precisión que el UBL (2 decimales; valor unitario
// hasta 10) para que el operador no re-redondee.
type invoicePayload struct {
	TipoDocumento   string         `json:"tipo_documento"`
	Serie           string         `json:"serie"`
	Numero          int64          `json:"numero"`
	FechaEmision    string         `json:"fecha_emision"` // YYYY-MM-DD, hora de Lima
	Moneda          string         `json:"moneda"`
	EnviarASunat    bool           `json:"enviar_automaticamente_a_sunat"`
	Cliente         clientePayload `json:"cliente"`
	TotalGravada    string         `json:"total_gravada"`
	TotalExonerada  string         `json:"total_exonerada,omitempty"`
	TotalInafecta   string         `json:"total_inafecta,omitempty"`
	TotalIGV        string         `json:"total_igv"`
	TotalDescuento  string         `json:"total_descuento,omitempty"`
	Total           string         `json:"total"`
	PorcentajeIGV   string         `json:"porcentaje_de_igv"`
	Items           []itemPayload  `json:"items"`
	Leyendas        []leyendaJSON  `json:"leyendas,omitempty"`
	DocumentoModifica *refPayload  `json:"documento_que_se_modifica,omitempty"`
	TipoNota        string         `json:"tipo_de_nota,omitempty"`
	MotivoNota      string         `json:"motivo_o_sustento,omitempty"`
}

type clientePayload struct {
	TipoDocumento string `json:"cliente_tipo_de_documento"` // Catálogo 06
	NumeroDoc     string `json:"cliente_numero_de_documento"`
	Denominacion  string `json:"cliente_denominacion"`
	Direccion     string `json:"cliente_direccion,omitempty"`
}

type itemPayload struct {
	UnidadDeMedida      string `json:"unidad_de_medida"`
	Codigo              string `json:"codigo,omitempty"`
	Descripcion         string `json:"descripcion"`
	Cantidad            string `json:"cantidad"`
	ValorUnitario       string `json:"valor_unitario"`
	PrecioUnitario      string `json:"precio_unitario"`
	Descuento           string `json:"descuento,omitempty"`
	Subtotal            string `json:"subtotal"`
	TipoDeIGV           string `json:"tipo_de_igv"` // afectación, Catálogo 07
	IGV                 string `json:"igv"`
	Total               string `json:"total"`
	AnticipoRegularizacion bool `json:"anticipo_regularizacion"`
}

type leyendaJSON struct {
	Codigo string `json:"legend_code"`
	Valor  string `json:"legend_value"`
}

type refPayload struct {
	TipoDocumento string `json:"tipo_documento"`
	Serie         string `json:"serie"`
	Numero        int64  `json:"numero"`
}

// mapDocument convierte el comprobante al JSON del operador aplicando la misma
// inversión de IGV y prorrateo de descuento que el builder XML: ambos caminos
// deben producir montos idénticos para el mismo documento.
func mapDocument(doc *entity.BillingDocument) (*invoicePayload, error) {
	totals, err := sunat.ComputeTotals(doc)
	if err != nil {
		return nil, err
	}

	p := &invoicePayload{
		TipoDocumento:  string(doc.Tipo),
		Serie:          doc.Serie,
		Numero:         doc.Numero,
		FechaEmision:   sunat.LimaDate(doc.FechaEmision),
		Moneda:         doc.Moneda,
		EnviarASunat:   true,
		Cliente:        mapCliente(doc.Receptor),
		TotalGravada:   money(totals.TotalGravado),
		TotalIGV:       money(totals.TotalIGV),
		Total:          money(totals.ImporteTotal),
		PorcentajeIGV:  "18.00",
	}
	if totals.TotalExonerado.IsPositive() {
		p.TotalExonerada = money(totals.TotalExonerado)
	}
	if totals.TotalInafecto.IsPositive() {
		p.TotalInafecta = money(totals.TotalInafecto)
	}
	if totals.Descuento.IsPositive() {
		p.TotalDescuento = money(totals.Descuento)
	}

	for _, ln := range totals.Lines {
		p.Items = append(p.Items, itemPayload{
			UnidadDeMedida: ln.UnitCode,
			Codigo:         ln.CodigoProducto,
			Descripcion:    ln.Descripcion,
			Cantidad:       ln.Cantidad.String(),
			ValorUnitario:  unitValue(ln.ValorUnitario),
			PrecioUnitario: money(ln.PrecioUnitario),
			Descuento:      zeroOmit(ln.Descuento),
			Subtotal:       money(ln.ValorVenta),
			TipoDeIGV:      ln.Afectacion,
			IGV:            money(ln.IGV),
			Total:          money(ln.TotalLinea),
		})
	}

	for _, l := range pkgsunat.LeyendasFor(totals.ImporteTotal, doc.Moneda, false) {
		p.Leyendas = append(p.Leyendas, leyendaJSON{Codigo: l.Codigo, Valor: l.Valor})
	}

	if doc.Tipo.IsNote() {
		p.DocumentoModifica = &refPayload{
			TipoDocumento: string(doc.DocumentoAfectado.Tipo),
			Serie:         doc.DocumentoAfectado.Serie,
			Numero:        doc.DocumentoAfectado.Numero,
		}
		p.TipoNota = doc.MotivoNota
		p.MotivoNota = doc.DescripcionMotivo
	}
	return p, nil
}

func mapCliente(r entity.Party) clientePayload {
	c := clientePayload{
		TipoDocumento: r.TipoDocIdentidad,
		NumeroDoc:     r.NumeroDoc,
		Denominacion:  r.RazonSocial,
		Direccion:     r.Direccion,
	}
	if c.Denominacion == "" {
		c.Denominacion = "CLIENTE VARIOS"
	}
	return c
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func unitValue(d decimal.Decimal) string { return d.Round(10).String() }

func zeroOmit(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return money(d)
}
