// Package sunat contiene los catálogos y validaciones alineados a los Anexos
// de la Resolución de Comprobantes de Pago Electrónicos SUNAT (Perú).
package sunat

import "strings"

// =============================================================================
// Catálogo 01 - Tipo de documento (comprobante)
// =============================================================================

const (
	DocTypeFactura       = "01" // Factura
	DocTypeBoleta        = "03" // Boleta de venta
	DocTypeNotaCredito   = "07" // Nota de crédito
	DocTypeNotaDebito    = "08" // Nota de débito
	DocTypeGuiaRemision  = "09" // Guía de remisión remitente
	DocTypeBaja          = "RA" // Comunicación de baja
	DocTypeResumenDiario = "RC" // Resumen diario de boletas
)

// ValidDocTypes tipos de comprobante que el motor sabe emitir.
var ValidDocTypes = map[string]bool{
	DocTypeFactura: true, DocTypeBoleta: true, DocTypeNotaCredito: true,
	DocTypeNotaDebito: true, DocTypeGuiaRemision: true,
	DocTypeBaja: true, DocTypeResumenDiario: true,
}

// =============================================================================
// Catálogo 06 - Tipo de documento de identidad
// =============================================================================

const (
	IdentityTypeDNI       = "1" // DNI
	IdentityTypeRUC       = "6" // RUC - obligatorio para facturas
	IdentityTypeSinDoc    = "0" // Sin documento (boletas menores)
	IdentityTypePasaporte = "7" // Pasaporte
)

// =============================================================================
// Catálogo 07 - Afectación del IGV por línea
// =============================================================================

const (
	AfectacionGravado   = "10" // Gravado - operación onerosa
	AfectacionExonerado = "20" // Exonerado - operación onerosa
	AfectacionInafecto  = "30" // Inafecto - operación onerosa
)

// Códigos de tributo (Catálogo 05) y categorías que exige el esquema UBL.
const (
	TributoIGV       = "1000" // IGV - categoría S
	TributoExonerado = "9997" // EXO - categoría E
	TributoInafecto  = "9998" // INA - categoría O

	TaxSchemeIGV = "IGV"
	TaxSchemeEXO = "EXONERADO"
	TaxSchemeINA = "INAFECTO"
)

// TributoFor devuelve código, nombre y categoría de tributo para una afectación.
func TributoFor(afectacion string) (id, name, category string) {
	switch afectacion {
	case AfectacionExonerado:
		return TributoExonerado, TaxSchemeEXO, "E"
	case AfectacionInafecto:
		return TributoInafecto, TaxSchemeINA, "O"
	default:
		return TributoIGV, TaxSchemeIGV, "S"
	}
}

// =============================================================================
// Catálogo 09 - Motivos de nota de crédito
// =============================================================================

const (
	NCAnulacionOperacion   = "01" // Anulación de la operación
	NCAnulacionErrorRUC    = "02" // Anulación por error en el RUC
	NCCorreccionDescripcion = "03" // Corrección por error en la descripción
	NCDescuentoGlobal      = "04" // Descuento global
	NCDevolucionTotal      = "06" // Devolución total
	NCDevolucionParcial    = "07" // Devolución por ítem
)

// ValidCreditNoteReasonCodes motivos admitidos para nota de crédito.
var ValidCreditNoteReasonCodes = map[string]bool{
	NCAnulacionOperacion: true, NCAnulacionErrorRUC: true,
	NCCorreccionDescripcion: true, NCDescuentoGlobal: true,
	NCDevolucionTotal: true, NCDevolucionParcial: true,
	"05": true, "08": true, "09": true, "10": true, "11": true, "12": true, "13": true,
}

// =============================================================================
// Catálogo 10 - Motivos de nota de débito
// =============================================================================

const (
	NDInteresPorMora  = "01" // Intereses por mora
	NDAumentoEnValor  = "02" // Aumento en el valor
	NDPenalidades     = "03" // Penalidades / otros conceptos
)

// ValidDebitNoteReasonCodes motivos admitidos para nota de débito.
var ValidDebitNoteReasonCodes = map[string]bool{
	NDInteresPorMora: true, NDAumentoEnValor: true, NDPenalidades: true,
}

// =============================================================================
// Catálogo 03 - Unidades de medida (UN/ECE rec 20, subconjunto de uso común)
// =============================================================================

const (
	UnitNIU = "NIU" // Unidad (bienes)
	UnitZZ  = "ZZ"  // Unidad (servicios)
	UnitKGM = "KGM" // Kilogramo
	UnitGRM = "GRM" // Gramo
	UnitLTR = "LTR" // Litro
	UnitMTR = "MTR" // Metro
	UnitMTK = "MTK" // Metro cuadrado
	UnitMTQ = "MTQ" // Metro cúbico
	UnitBX  = "BX"  // Caja
	UnitPK  = "PK"  // Paquete
	UnitDZN = "DZN" // Docena
	UnitHUR = "HUR" // Hora
	UnitDAY = "DAY" // Día
	UnitGLL = "GLL" // Galón
)

// unitAliases mapea texto libre de unidad (como lo escribe el usuario) al
// código del catálogo. Las claves se comparan en minúsculas y sin espacios.
var unitAliases = map[string]string{
	"unidad": UnitNIU, "unidades": UnitNIU, "und": UnitNIU, "uni": UnitNIU,
	"u": UnitNIU, "niu": UnitNIU, "pieza": UnitNIU, "pza": UnitNIU,
	"servicio": UnitZZ, "serv": UnitZZ, "zz": UnitZZ,
	"kilogramo": UnitKGM, "kilo": UnitKGM, "kg": UnitKGM, "kgm": UnitKGM,
	"gramo": UnitGRM, "g": UnitGRM, "gr": UnitGRM,
	"litro": UnitLTR, "lt": UnitLTR, "l": UnitLTR, "ltr": UnitLTR,
	"metro": UnitMTR, "m": UnitMTR, "mt": UnitMTR, "mtr": UnitMTR,
	"m2": UnitMTK, "metrocuadrado": UnitMTK, "mtk": UnitMTK,
	"m3": UnitMTQ, "metrocubico": UnitMTQ, "mtq": UnitMTQ,
	"caja": UnitBX, "cja": UnitBX, "bx": UnitBX,
	"paquete": UnitPK, "paq": UnitPK, "pk": UnitPK,
	"docena": UnitDZN, "doc": UnitDZN, "dzn": UnitDZN,
	"hora": UnitHUR, "hr": UnitHUR, "hur": UnitHUR,
	"dia": UnitDAY, "día": UnitDAY, "day": UnitDAY,
	"galon": UnitGLL, "galón": UnitGLL, "gl": UnitGLL, "gll": UnitGLL,
}

// validUnitCodes códigos que ya vienen normalizados y se aceptan tal cual.
var validUnitCodes = map[string]bool{
	UnitNIU: true, UnitZZ: true, UnitKGM: true, UnitGRM: true, UnitLTR: true,
	UnitMTR: true, UnitMTK: true, UnitMTQ: true, UnitBX: true, UnitPK: true,
	UnitDZN: true, UnitHUR: true, UnitDAY: true, UnitGLL: true,
}

// MapUnitCode convierte texto libre de unidad al código del Catálogo 03.
// Una unidad desconocida cae al genérico NIU en vez de abortar el build.
func MapUnitCode(free string) string {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(free), " ", ""))
	if s == "" {
		return UnitNIU
	}
	if code, ok := unitAliases[s]; ok {
		return code
	}
	upper := strings.ToUpper(s)
	if validUnitCodes[upper] {
		return upper
	}
	return UnitNIU
}

// =============================================================================
// Catálogo 52 - Leyendas
// =============================================================================

const (
	LeyendaMontoEnLetras       = "1000" // Monto en letras
	LeyendaTransferenciaGratuita = "2000" // Transferencia gratuita
)

// =============================================================================
// Monedas y tasas
// =============================================================================

const (
	CurrencyPEN = "PEN"
	CurrencyUSD = "USD"

	// IGVRatePercent tasa vigente del IGV (18%).
	IGVRatePercent = 18
)

// CurrencyName nombre de la moneda para la leyenda de monto en letras.
func CurrencyName(code string) string {
	switch strings.ToUpper(code) {
	case CurrencyUSD:
		return "DÓLARES AMERICANOS"
	case CurrencyPEN, "":
		return "SOLES"
	default:
		return strings.ToUpper(code)
	}
}
