// Carga del certificado del emisor desde un contenedor PKCS#12 (.p12/.pfx).

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
)

// Decode decodifica un contenedor PKCS#12 en memoria. El certificado nunca se
// persiste decodificado: se decodifica en cada operación de firma.
//
// Los tres modos de falla son fatales y distinguibles por mensaje: contenedor
// ilegible, contraseña incorrecta y contenedor sin llave privada RSA.
func Decode(p12 []byte, password string) (tls.Certificate, error) {
	if len(p12) == 0 {
		return tls.Certificate{}, entity.Errorf(entity.KindCertificado, "p12-decode", "contenedor PKCS#12 vacío")
	}
	priv, cert, err := pkcs12.Decode(p12, password)
	if err != nil {
		if strings.Contains(err.Error(), "incorrect") {
			return tls.Certificate{}, entity.Errorf(entity.KindCertificado, "p12-decode", "contraseña del certificado incorrecta")
		}
		return tls.Certificate{}, entity.Errorf(entity.KindCertificado, "p12-decode", "certificado no parseable: %v", err)
	}
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok || rsaKey == nil {
		return tls.Certificate{}, entity.Errorf(entity.KindCertificado, "p12-decode", "el contenedor no incluye llave privada RSA")
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  rsaKey,
		Leaf:        cert,
	}, nil
}

// LoadFromP12File lee el contenedor desde disco y lo valida decodificándolo.
// Devuelve los bytes crudos: las credenciales de cuenta guardan el contenedor
// tal cual y la decodificación se repite en cada firma.
func LoadFromP12File(path, password string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, entity.Errorf(entity.KindCertificado, "p12-load", "leer %s: %v", path, err)
	}
	if _, err := Decode(data, password); err != nil {
		return nil, err
	}
	return data, nil
}

// leafCertificate devuelve el certificado X.509 hoja de un tls.Certificate.
func leafCertificate(cert tls.Certificate) (*x509.Certificate, error) {
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}
	if len(cert.Certificate) == 0 {
		return nil, entity.Errorf(entity.KindCertificado, "cert", "certificado sin cadena X.509")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, entity.Errorf(entity.KindCertificado, "cert", "parsear certificado: %v", err)
	}
	return leaf, nil
}
