package sunat

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Clasificador de fallas transitorias. La lista es deliberadamente un catálogo
// de datos y no condicionales dispersos: se revisa, se testea y se amplía sin
// tocar el flujo de control.

// transientRule firma conocida de caída/saturación del lado de SUNAT o de la red.
type transientRule struct {
	Substring string // se compara en minúsculas y sin tildes
	Note      string
}

// transientCatalog firmas que indican «vuelva a intentar», no un rechazo del
// contenido del documento.
var transientCatalog = []transientRule{
	// Códigos de excepción del WS de SUNAT (rango 01xx = problemas del sistema)
	{"0109", "el sistema de recepcion no esta disponible"},
	{"0130", "no se pudo procesar, intente mas tarde"},
	{"0131", "no se pudo grabar el archivo"},
	{"0132", "no se pudo grabar la respuesta"},
	{"0133", "error en el procesamiento batch"},
	{"0137", "servicio de autenticacion no disponible"},
	{"1089", "sistema en mantenimiento"},
	// Mensajes en texto libre del fault
	{"el sistema no puede responder", ""},
	{"intente nuevamente", ""},
	{"intentelo mas tarde", ""},
	{"vuelva a intentar", ""},
	{"en mantenimiento", ""},
	{"service unavailable", ""},
	{"gateway timeout", ""},
	{"internal server error", ""},
	// Fallas de red del cliente
	{"etimedout", ""},
	{"econnreset", ""},
	{"econnrefused", ""},
	{"context deadline exceeded", ""},
	{"client.timeout", ""},
	{"connection reset", ""},
	{"connection refused", ""},
	{"i/o timeout", ""},
	{"tls handshake timeout", ""},
	{"unexpected eof", ""},
	{"no such host", ""},
	// HTTP 5xx embebido en el mensaje
	{"http 500", ""}, {"http 502", ""}, {"http 503", ""}, {"http 504", ""},
	{"status 500", ""}, {"status 502", ""}, {"status 503", ""}, {"status 504", ""},
}

// asciiLower minúsculas sin marcas diacríticas, para que «Inténtelo más tarde»
// y «intentelo mas tarde» casen con la misma regla.
var diacriticsRemover = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func asciiLower(s string) string {
	out, _, err := transform.String(diacriticsRemover, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// IsTransient decide si un código/descripción corresponde a una falla de
// infraestructura (reintentar) en vez de un rechazo semántico (terminal).
// Es el único punto de decisión entre pending(retry) y rejected.
func IsTransient(code, description string) bool {
	normalized := asciiLower(code + " " + description)
	for _, rule := range transientCatalog {
		if strings.Contains(normalized, rule.Substring) {
			return true
		}
	}
	return false
}

// IsTransientError variante para errores de transporte crudos (net/http).
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	return IsTransient("", err.Error())
}
