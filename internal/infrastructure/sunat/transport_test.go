package sunat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/infrastructure/sunat/signer"
	"github.com/GiacomoGonzales/cobrify-sub003/pkg/logger"
)

func newSOLTransport(defaults *entity.SOLCredentials) *sunat.SOLTransport {
	return sunat.NewSOLTransport(
		sunat.NewXMLBuilderService(),
		signer.NewDigitalSignatureService(),
		sunat.NewSOAPClientWithURL("http://127.0.0.1:1", logger.Nop()),
		defaults,
		logger.Nop(),
	)
}

func TestSubmitSOL_SinCredencialesNiGlobales(t *testing.T) {
	transport := newSOLTransport(nil)
	_, err := transport.Submit(context.Background(), testInvoice(), &entity.EmissionAccountConfig{RUC: testRUCEmisor})
	require.Error(t, err)
	assert.Equal(t, entity.KindConfig, entity.KindOf(err))
}

func TestSubmitSOL_CredencialesGlobalesComoRespaldo(t *testing.T) {
	// La cuenta no trae credenciales propias: deben usarse las globales. El
	// contenedor inválido hace que el intento muera en la firma (certificado),
	// no en la validación de configuración.
	defaults := &entity.SOLCredentials{
		UsuarioSOL:   "MODDATOS",
		ClaveSOL:     "moddatos",
		CertP12:      []byte("no es un contenedor PKCS#12"),
		CertPassword: "clave",
	}
	transport := newSOLTransport(defaults)
	_, err := transport.Submit(context.Background(), testInvoice(), &entity.EmissionAccountConfig{RUC: testRUCEmisor})
	require.Error(t, err)
	assert.Equal(t, entity.KindCertificado, entity.KindOf(err))
}

func TestNewSOAPClientForEnv(t *testing.T) {
	for _, env := range []string{sunat.AppEnvBeta, sunat.AppEnvProd, ""} {
		_, err := sunat.NewSOAPClientForEnv(env, logger.Nop())
		assert.NoError(t, err, "ambiente %q", env)
	}
	_, err := sunat.NewSOAPClientForEnv("staging", logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiente SUNAT desconocido")
}
