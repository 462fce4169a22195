package sunat

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	pkgsunat "github.com/GiacomoGonzales/cobrify-sub003/pkg/sunat"
)

// igvFactor = 1 + 18/100. Los precios unitarios vienen con IGV incluido;
// el valor unitario de una línea gravada se deriva dividiendo por este factor.
var (
	igvRate   = decimal.NewFromInt(pkgsunat.IGVRatePercent).Div(decimal.NewFromInt(100))
	igvFactor = decimal.NewFromInt(1).Add(igvRate)
)

// LineAmounts importes calculados de una línea, ya redondeados a 2 decimales
// donde el esquema lo exige. La suma de líneas cuadra exactamente con la
// cabecera: SUNAT cruza ambas y rechaza cualquier diferencia.
type LineAmounts struct {
	Descripcion    string
	CodigoProducto string
	UnitCode       string // Catálogo 03, ya mapeado
	Cantidad       decimal.Decimal
	Afectacion     string          // afectación efectiva (tras override de emisor exonerado)
	ValorUnitario  decimal.Decimal // sin IGV, sin redondear (el esquema admite hasta 10 decimales)
	PrecioUnitario decimal.Decimal // con IGV
	Descuento      decimal.Decimal // porción del descuento global asignada a la línea
	ValorVenta     decimal.Decimal // base imponible de la línea, con descuento aplicado
	IGV            decimal.Decimal
	TotalLinea     decimal.Decimal // ValorVenta + IGV
}

// Totals importes de cabecera, derivados por suma de líneas.
type Totals struct {
	Lines          []LineAmounts
	TotalGravado   decimal.Decimal
	TotalExonerado decimal.Decimal
	TotalInafecto  decimal.Decimal
	TotalIGV       decimal.Decimal
	Descuento      decimal.Decimal
	ImporteTotal   decimal.Decimal
}

// ComputeTotals calcula los importes de línea y cabecera del comprobante.
//
// Reglas de cuadre:
//   - la base de cada línea se redondea a 2 decimales y el IGV se calcula
//     sobre esa base ya redondeada, de modo que sum(línea) == cabecera al centavo;
//   - el descuento global se prorratea por línea en proporción a su base (la
//     última línea absorbe el residuo de redondeo) en vez de emitirse como un
//     descuento único de documento.
func ComputeTotals(doc *entity.BillingDocument) (*Totals, error) {
	if err := validateForBuild(doc); err != nil {
		return nil, err
	}

	lines := make([]LineAmounts, len(doc.Lines))
	totalBase := decimal.Zero
	for i, l := range doc.Lines {
		afectacion := l.Afectacion
		if doc.EmisorExonerado {
			afectacion = pkgsunat.AfectacionExonerado
		}
		if afectacion == "" {
			afectacion = pkgsunat.AfectacionGravado
		}

		valorUnitario := l.PrecioUnitario
		if afectacion == pkgsunat.AfectacionGravado {
			valorUnitario = l.PrecioUnitario.Div(igvFactor)
		}
		base := valorUnitario.Mul(l.Cantidad).Round(2)

		lines[i] = LineAmounts{
			Descripcion:    l.Descripcion,
			CodigoProducto: l.CodigoProducto,
			UnitCode:       pkgsunat.MapUnitCode(l.Unidad),
			Cantidad:       l.Cantidad,
			Afectacion:     afectacion,
			ValorUnitario:  valorUnitario,
			PrecioUnitario: l.PrecioUnitario,
			ValorVenta:     base,
		}
		totalBase = totalBase.Add(base)
	}

	// Prorrateo del descuento global sobre las bases de línea.
	descuento := doc.DescuentoGlobal.Round(2)
	if descuento.IsPositive() {
		if descuento.GreaterThan(totalBase) {
			return nil, entity.Errorf(entity.KindBuild, "calc",
				"descuento global %s excede el subtotal %s", descuento, totalBase)
		}
		asignado := decimal.Zero
		for i := range lines {
			var share decimal.Decimal
			if i == len(lines)-1 {
				share = descuento.Sub(asignado) // la última línea absorbe el residuo
			} else {
				share = descuento.Mul(lines[i].ValorVenta).Div(totalBase).Round(2)
				asignado = asignado.Add(share)
			}
			lines[i].Descuento = share
			lines[i].ValorVenta = lines[i].ValorVenta.Sub(share)
		}
	}

	t := &Totals{Lines: lines, Descuento: descuento}
	for i := range lines {
		switch lines[i].Afectacion {
		case pkgsunat.AfectacionExonerado:
			t.TotalExonerado = t.TotalExonerado.Add(lines[i].ValorVenta)
		case pkgsunat.AfectacionInafecto:
			t.TotalInafecto = t.TotalInafecto.Add(lines[i].ValorVenta)
		default:
			lines[i].IGV = lines[i].ValorVenta.Mul(igvRate).Round(2)
			t.TotalGravado = t.TotalGravado.Add(lines[i].ValorVenta)
			t.TotalIGV = t.TotalIGV.Add(lines[i].IGV)
		}
		lines[i].TotalLinea = lines[i].ValorVenta.Add(lines[i].IGV)
	}
	t.ImporteTotal = t.TotalGravado.Add(t.TotalExonerado).Add(t.TotalInafecto).Add(t.TotalIGV)
	return t, nil
}

// validateForBuild valida lo mínimo para construir: errores fatales de build,
// nunca reintentables.
func validateForBuild(doc *entity.BillingDocument) error {
	if doc == nil {
		return entity.Errorf(entity.KindBuild, "calc", "documento nulo")
	}
	if err := pkgsunat.ValidateRUC(doc.Emisor.NumeroDoc); err != nil {
		return entity.NewError(entity.KindBuild, "calc", fmt.Errorf("RUC emisor: %w", err))
	}
	if doc.Emisor.RazonSocial == "" {
		return entity.Errorf(entity.KindBuild, "calc", "razón social del emisor es obligatoria")
	}
	if len(doc.Lines) == 0 {
		return entity.Errorf(entity.KindBuild, "calc", "el comprobante no tiene líneas")
	}
	for i, l := range doc.Lines {
		if !l.Cantidad.IsPositive() {
			return entity.Errorf(entity.KindBuild, "calc", "línea %d: cantidad debe ser positiva", i+1)
		}
		if l.PrecioUnitario.IsNegative() {
			return entity.Errorf(entity.KindBuild, "calc", "línea %d: precio unitario negativo", i+1)
		}
	}
	if doc.Tipo.IsNote() {
		if doc.DocumentoAfectado == nil {
			return entity.Errorf(entity.KindBuild, "calc",
				"nota %s sin documento de referencia", doc.SeriesNumber())
		}
		if err := validateNoteReason(doc); err != nil {
			return err
		}
	}
	return nil
}

func validateNoteReason(doc *entity.BillingDocument) error {
	switch doc.Tipo {
	case entity.DocNotaCredito:
		if !pkgsunat.ValidCreditNoteReasonCodes[doc.MotivoNota] {
			return entity.Errorf(entity.KindBuild, "calc",
				"motivo de nota de crédito %q fuera de catálogo", doc.MotivoNota)
		}
	case entity.DocNotaDebito:
		if !pkgsunat.ValidDebitNoteReasonCodes[doc.MotivoNota] {
			return entity.Errorf(entity.KindBuild, "calc",
				"motivo de nota de débito %q fuera de catálogo", doc.MotivoNota)
		}
	}
	return nil
}

func formatDecimal(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// formatUnitValue valor unitario con más precisión (10 decimales como admite el esquema).
func formatUnitValue(d decimal.Decimal) string {
	return d.Round(10).String()
}
