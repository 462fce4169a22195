// Servicio de firma digital XMLDSig para comprobantes electrónicos SUNAT.
// Inyecta <ds:Signature> dentro del ext:ExtensionContent que el builder deja vacío.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
)

// Namespaces y algoritmos XMLDSig.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"

	// SignatureID identificador del nodo de firma que referencia cac:Signature.
	SignatureID = "SignatureSP"
)

// DigitalSignatureService firma y verifica el XML del comprobante. La firma es
// enveloped con Reference URI="" (documento completo), C14N inclusivo, digest
// SHA-256 y RSA-SHA256. No hace ninguna llamada externa.
type DigitalSignatureService struct{}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Sign firma el XML (sin mutar contenido de negocio) e inyecta ds:Signature en
// el ext:ExtensionContent vacío que dejó el builder.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, entity.Errorf(entity.KindBuild, "firma", "XML vacío")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, entity.Errorf(entity.KindCertificado, "firma", "el certificado debe incluir llave privada RSA")
	}
	leaf, err := leafCertificate(cert)
	if err != nil {
		return nil, err
	}

	// 1) Digest del documento completo sin firma (C14N inclusivo)
	canonicalDoc, err := canonicalizeXML(xmlBytes)
	if err != nil {
		return nil, entity.Errorf(entity.KindBuild, "firma", "canonicalizar documento: %v", err)
	}
	docDigest := sha256.Sum256(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 2) SignedInfo (Reference URI="" + transformada enveloped)
	signedInfoXML := buildSignedInfo(docDigestB64)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		return nil, entity.Errorf(entity.KindBuild, "firma", "canonicalizar SignedInfo: %v", err)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, entity.Errorf(entity.KindCertificado, "firma", "firmar SignedInfo: %v", err)
	}

	// 3) Nodo ds:Signature completo
	signatureXML := buildSignatureXML(
		signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(leaf.Raw),
	)

	// 4) Inyección en ext:ExtensionContent
	return injectSignature(xmlBytes, signatureXML)
}

// Verify reverifica la firma embebida contra el certificado embebido: digest
// del documento (sin el nodo de firma) y RSA sobre el SignedInfo canónico.
// Cualquier byte alterado del cuerpo firmado invalida la verificación.
func (s *DigitalSignatureService) Verify(signedXML []byte) error {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return fmt.Errorf("verificar: parsear XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("verificar: documento sin raíz")
	}
	sig := findFirstByLocal(root, "Signature")
	if sig == nil {
		return fmt.Errorf("verificar: el documento no contiene ds:Signature")
	}

	digestB64 := textOfPath(sig, "SignedInfo", "Reference", "DigestValue")
	sigValueB64 := textOfPath(sig, "SignatureValue")
	certB64 := textOfPath(sig, "KeyInfo", "X509Data", "X509Certificate")
	if digestB64 == "" || sigValueB64 == "" || certB64 == "" {
		return fmt.Errorf("verificar: firma incompleta (DigestValue/SignatureValue/X509Certificate)")
	}

	certDER, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certB64))
	if err != nil {
		return fmt.Errorf("verificar: certificado embebido ilegible: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("verificar: parsear certificado embebido: %w", err)
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("verificar: el certificado embebido no es RSA")
	}

	// 1) Digest del documento sin el nodo de firma (transformada enveloped)
	parent := sig.Parent()
	idx := sig.Index()
	parent.RemoveChildAt(idx)
	var docBuf bytes.Buffer
	if _, err := doc.WriteTo(&docBuf); err != nil {
		return fmt.Errorf("verificar: serializar documento: %w", err)
	}
	canonicalDoc, err := canonicalizeXML(docBuf.Bytes())
	if err != nil {
		return fmt.Errorf("verificar: canonicalizar documento: %w", err)
	}
	gotDigest := sha256.Sum256(canonicalDoc)
	wantDigest, err := base64.StdEncoding.DecodeString(strings.TrimSpace(digestB64))
	if err != nil {
		return fmt.Errorf("verificar: DigestValue ilegible: %w", err)
	}
	if !bytes.Equal(gotDigest[:], wantDigest) {
		return fmt.Errorf("verificar: el digest del documento no coincide (contenido alterado)")
	}

	// 2) Firma RSA sobre el SignedInfo canónico
	signedInfo := findFirstByLocal(sig, "SignedInfo")
	if signedInfo == nil {
		return fmt.Errorf("verificar: sin SignedInfo")
	}
	siDoc := etree.NewDocument()
	siDoc.SetRoot(signedInfo.Copy())
	var siBuf bytes.Buffer
	if _, err := siDoc.WriteTo(&siBuf); err != nil {
		return fmt.Errorf("verificar: serializar SignedInfo: %w", err)
	}
	canonicalSignedInfo, err := canonicalizeXML(siBuf.Bytes())
	if err != nil {
		return fmt.Errorf("verificar: canonicalizar SignedInfo: %w", err)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signature, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigValueB64))
	if err != nil {
		return fmt.Errorf("verificar: SignatureValue ilegible: %w", err)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, signHash[:], signature); err != nil {
		return fmt.Errorf("verificar: firma RSA inválida: %w", err)
	}
	return nil
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NamespaceDS + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference URI="">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func buildSignatureXML(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NamespaceDS + `" Id="` + SignatureID + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

// injectSignature localiza el primer ext:ExtensionContent vacío y cuelga el
// nodo ds:Signature, sin tocar ningún otro nodo del documento.
func injectSignature(xmlBytes []byte, signatureXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, entity.Errorf(entity.KindBuild, "firma", "parsear XML: %v", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, entity.Errorf(entity.KindBuild, "firma", "documento sin raíz")
	}

	extContent := findFirstByLocal(root, "ExtensionContent")
	if extContent == nil {
		return nil, entity.Errorf(entity.KindBuild, "firma", "no se encontró ext:ExtensionContent para la firma")
	}

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, entity.Errorf(entity.KindBuild, "firma", "parsear nodo Signature: %v", err)
	}
	if sigRoot := sigDoc.Root(); sigRoot != nil {
		extContent.AddChild(sigRoot)
	}

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		return nil, entity.Errorf(entity.KindBuild, "firma", "serializar XML firmado: %v", err)
	}
	return out.Bytes(), nil
}

// findFirstByLocal DFS por nombre local de tag, ignorando prefijos.
func findFirstByLocal(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if stripPrefix(child.Tag) == local {
			return child
		}
		if found := findFirstByLocal(child, local); found != nil {
			return found
		}
	}
	return nil
}

func textOfPath(el *etree.Element, path ...string) string {
	current := el
	for _, name := range path {
		var next *etree.Element
		for _, child := range current.ChildElements() {
			if stripPrefix(child.Tag) == name {
				next = child
				break
			}
		}
		if next == nil {
			return ""
		}
		current = next
	}
	return strings.TrimSpace(current.Text())
}

func stripPrefix(tag string) string {
	if i := strings.Index(tag, ":"); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
