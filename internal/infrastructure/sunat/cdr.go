package sunat

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// CDR constancia de recepción de SUNAT, ya decodificada y normalizada.
type CDR struct {
	ResponseCode string
	Description  string
	DocumentID   string // serie-número del comprobante al que responde
	Raw          []byte // XML del ApplicationResponse tal como llegó
}

// Accepted código "0" aceptación limpia; "4xxx" aceptado con observaciones.
func (c *CDR) Accepted() bool {
	if c.ResponseCode == "0" {
		return true
	}
	return len(c.ResponseCode) == 4 && c.ResponseCode[0] == '4'
}

// ParseCDRZip descomprime el ZIP de respuesta y parsea el ApplicationResponse.
func ParseCDRZip(zipBytes []byte) (*CDR, error) {
	xmlBytes, err := ExtractFirstXML(zipBytes)
	if err != nil {
		return nil, err
	}
	return ParseCDR(xmlBytes)
}

// cdrCodePaths rutas de búsqueda del código de respuesta, en orden de
// preferencia. Los prefijos de namespace ya fueron descartados: el lookup es
// por nombre local, porque SUNAT y los OSE emiten el mismo documento con
// prefijos distintos (cbc:, ns2:, sin prefijo).
var cdrCodePaths = [][]string{
	{"DocumentResponse", "Response", "ResponseCode"},
	{"Response", "ResponseCode"},
	{"ResponseCode"},
}

var cdrDescriptionPaths = [][]string{
	{"DocumentResponse", "Response", "Description"},
	{"Response", "Description"},
	{"Description"},
}

var cdrDocumentIDPaths = [][]string{
	{"DocumentResponse", "DocumentReference", "ID"},
	{"DocumentReference", "ID"},
}

// ParseCDR extrae código, descripción e identidad del documento del
// ApplicationResponse, tolerando cualquier convención de prefijos.
func ParseCDR(xmlBytes []byte) (*CDR, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("cdr: parsear ApplicationResponse: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("cdr: documento sin raíz")
	}

	cdr := &CDR{Raw: xmlBytes}
	cdr.ResponseCode = strings.TrimSpace(findByLocalPath(root, cdrCodePaths))
	cdr.Description = strings.TrimSpace(findByLocalPath(root, cdrDescriptionPaths))
	cdr.DocumentID = strings.TrimSpace(findByLocalPath(root, cdrDocumentIDPaths))

	if cdr.ResponseCode == "" {
		return nil, fmt.Errorf("cdr: sin ResponseCode en el ApplicationResponse")
	}
	return cdr, nil
}

// findByLocalPath prueba cada ruta de fallback, navegando por nombre local
// (sin prefijo) desde la raíz.
func findByLocalPath(root *etree.Element, paths [][]string) string {
	for _, path := range paths {
		if el := descendByLocal(root, path); el != nil {
			return el.Text()
		}
	}
	return ""
}

func descendByLocal(el *etree.Element, path []string) *etree.Element {
	current := el
	for _, name := range path {
		var next *etree.Element
		for _, child := range current.ChildElements() {
			if localName(child) == name {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		current = next
	}
	return current
}

// localName descarta el prefijo de namespace del tag ("cbc:ResponseCode" -> "ResponseCode").
func localName(el *etree.Element) string {
	if i := strings.Index(el.Tag, ":"); i >= 0 {
		return el.Tag[i+1:]
	}
	return el.Tag
}
