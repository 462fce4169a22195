package sunat_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat"
)

func TestIsTransient_CodigosYTextos(t *testing.T) {
	transitorios := []struct {
		code string
		desc string
	}{
		{"0109", "El sistema no puede responder su solicitud"},
		{"0130", "El sistema no puede responder su solicitud. Intente nuevamente o comuniquese con su Administrador"},
		{"0131", "No se pudo grabar el archivo en el directorio"},
		{"0132", "El servicio de autenticacion no esta disponible"},
		{"0133", "El servicio de validacion no esta disponible"},
		{"0137", "Se ha producido un error en el Sistema"},
		{"1089", "El numero de ticket no existe"},
		{"", "ETIMEDOUT: connection timed out"},
		{"", "503 Service Unavailable"},
		{"", "el servidor respondió HTTP 502 Bad Gateway"},
		{"", "unexpected EOF"},
		{"", "dial tcp: i/o timeout"},
		{"", "connection refused"},
		// Con tildes: la normalización debe neutralizar los diacríticos
		{"", "Intente nuevamente o comuníquese con su Administrador"},
	}
	for _, c := range transitorios {
		assert.True(t, sunat.IsTransient(c.code, c.desc), "[%s] %q debe ser transitorio", c.code, c.desc)
	}
}

func TestIsTransient_RechazosTerminales(t *testing.T) {
	terminales := []struct {
		code string
		desc string
	}{
		{"2335", "El documento electronico ingresado ha sido alterado"},
		{"3001", "El RUC del emisor no existe"},
		{"2017", "El contribuyente no esta autorizado a emitir"},
		{"0100", "El sistema no acepta el tipo de comprobante"}, // 0100 no está en el catálogo
		{"", "La Factura numero F001-123 fue rechazada"},
	}
	for _, c := range terminales {
		assert.False(t, sunat.IsTransient(c.code, c.desc), "[%s] %q debe ser terminal", c.code, c.desc)
	}
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, sunat.IsTransientError(errors.New("Post \"https://e-beta.sunat.gob.pe\": dial tcp: i/o timeout")))
	assert.False(t, sunat.IsTransientError(errors.New("documento alterado")))
	assert.False(t, sunat.IsTransientError(nil))
}
