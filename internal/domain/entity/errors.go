package entity

import (
	"errors"
	"fmt"
)

// ErrorKind clase de error de la taxonomía de emisión. Determina si el caller
// puede reintentar y qué debe corregirse.
type ErrorKind string

const (
	// KindBuild documento malformado o incompleto; fatal, nunca se reintenta.
	KindBuild ErrorKind = "build"
	// KindCertificado certificado ilegible, contraseña inválida o sin llave; fatal.
	KindCertificado ErrorKind = "certificado"
	// KindTransporte falla de red/infraestructura; transitoria, se reintenta.
	KindTransporte ErrorKind = "transporte"
	// KindConfig configuración de cuenta inválida (sin credenciales activas); fatal.
	KindConfig ErrorKind = "config"
)

// EmissionError error tipado del motor. Kind permite al caller distinguir
// «certificado malo» de «documento malo» sin inspeccionar mensajes.
type EmissionError struct {
	Kind ErrorKind
	Op   string // paso en el que ocurrió: xml-build, firma, soap, pse-token...
	Err  error
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("emision [%s/%s]: %v", e.Kind, e.Op, e.Err)
}

func (e *EmissionError) Unwrap() error { return e.Err }

// NewError construye un EmissionError.
func NewError(kind ErrorKind, op string, err error) *EmissionError {
	return &EmissionError{Kind: kind, Op: op, Err: err}
}

// Errorf variante con formato.
func Errorf(kind ErrorKind, op, format string, args ...any) *EmissionError {
	return &EmissionError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf devuelve la clase del error, o KindTransporte si no está tipado
// (un error desconocido de red se trata como transitorio, no como crash).
func KindOf(err error) ErrorKind {
	var ee *EmissionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindTransporte
}

// IsFatal indica que el error no debe reintentarse.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k == KindBuild || k == KindCertificado || k == KindConfig
}

// ErrEnvioEnCurso otro intento ya está en sending para el mismo documento.
var ErrEnvioEnCurso = errors.New("emision: ya existe un envío en curso para el documento")
