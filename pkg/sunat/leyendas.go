package sunat

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MontoEnLetras genera la leyenda 1000 exigida por SUNAT:
//
//	1,234.50 PEN -> "MIL DOSCIENTOS TREINTA Y CUATRO CON 50/100 SOLES"
//
// Los céntimos van siempre como fracción NN/100, incluso cuando son cero.
func MontoEnLetras(total decimal.Decimal, currency string) string {
	rounded := total.Round(2)
	entero := rounded.IntPart()
	centimos := rounded.Sub(decimal.NewFromInt(entero)).Mul(decimal.NewFromInt(100)).IntPart()
	if centimos < 0 {
		centimos = -centimos
	}
	letras := numeroALetras(entero)
	return fmt.Sprintf("%s CON %02d/100 %s", letras, centimos, CurrencyName(currency))
}

var unidades = []string{
	"CERO", "UNO", "DOS", "TRES", "CUATRO", "CINCO", "SEIS", "SIETE", "OCHO", "NUEVE",
	"DIEZ", "ONCE", "DOCE", "TRECE", "CATORCE", "QUINCE", "DIECISEIS", "DIECISIETE",
	"DIECIOCHO", "DIECINUEVE", "VEINTE", "VEINTIUNO", "VEINTIDOS", "VEINTITRES",
	"VEINTICUATRO", "VEINTICINCO", "VEINTISEIS", "VEINTISIETE", "VEINTIOCHO", "VEINTINUEVE",
}

var decenas = []string{
	"", "", "", "TREINTA", "CUARENTA", "CINCUENTA", "SESENTA", "SETENTA", "OCHENTA", "NOVENTA",
}

var centenas = []string{
	"", "CIENTO", "DOSCIENTOS", "TRESCIENTOS", "CUATROCIENTOS", "QUINIENTOS",
	"SEISCIENTOS", "SETECIENTOS", "OCHOCIENTOS", "NOVECIENTOS",
}

// numeroALetras convierte un entero no negativo (hasta miles de millones) a texto en español.
func numeroALetras(n int64) string {
	if n < 0 {
		n = -n
	}
	if n < 30 {
		return unidades[n]
	}
	if n < 100 {
		d, u := n/10, n%10
		if u == 0 {
			return decenas[d]
		}
		return decenas[d] + " Y " + unidades[u]
	}
	if n == 100 {
		return "CIEN"
	}
	if n < 1000 {
		c, resto := n/100, n%100
		if resto == 0 {
			return centenas[c]
		}
		return centenas[c] + " " + numeroALetras(resto)
	}
	if n < 1_000_000 {
		miles, resto := n/1000, n%1000
		var prefix string
		if miles == 1 {
			prefix = "MIL"
		} else {
			prefix = numeroALetras(miles) + " MIL"
		}
		if resto == 0 {
			return prefix
		}
		return prefix + " " + numeroALetras(resto)
	}
	millones, resto := n/1_000_000, n%1_000_000
	var prefix string
	if millones == 1 {
		prefix = "UN MILLON"
	} else {
		prefix = numeroALetras(millones) + " MILLONES"
	}
	if resto == 0 {
		return prefix
	}
	return prefix + " " + numeroALetras(resto)
}

// Leyenda par código/valor tal como se emite en el XML y en el JSON del OSE.
type Leyenda struct {
	Codigo string
	Valor  string
}

// LeyendasFor arma las leyendas estándar de un comprobante.
func LeyendasFor(total decimal.Decimal, currency string, gratuita bool) []Leyenda {
	out := []Leyenda{{Codigo: LeyendaMontoEnLetras, Valor: MontoEnLetras(total, currency)}}
	if gratuita {
		out = append(out, Leyenda{Codigo: LeyendaTransferenciaGratuita, Valor: strings.ToUpper("Transferencia gratuita")})
	}
	return out
}
