package sunat

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	pkgsunat "github.com/GiacomoGonzales/cobrify-sub003/pkg/sunat"
)

// CompressXMLToZip empaqueta el XML firmado en un ZIP en memoria. SUNAT exige
// un ZIP con un único archivo cuyo nombre coincida con el del ZIP.
func CompressXMLToZip(xmlBytes []byte, xmlFilename string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(xmlFilename)
	if err != nil {
		return nil, fmt.Errorf("zip: crear entrada %s: %w", xmlFilename, err)
	}
	if _, err := fw.Write(xmlBytes); err != nil {
		return nil, fmt.Errorf("zip: escribir XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractFirstXML abre un ZIP en memoria (el CDR viene así) y devuelve el
// contenido del primer .xml que encuentre. SUNAT a veces incluye una carpeta
// dummy/ vacía; se ignora todo lo que no sea .xml.
func ExtractFirstXML(zipBytes []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("zip: abrir CDR: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("zip: abrir entrada %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zip: leer entrada %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("zip: el archivo no contiene ningún XML")
}

// Filenames genera los nombres de archivo que exige SUNAT para el XML y el ZIP:
//
//	{RUC}-{TIPO}-{SERIE}-{NUMERO}  p.ej. 20100070970-01-F001-00000123
//	{RUC}-{RA|RC}-{YYYYMMDD}-{N}   para bajas y resúmenes
func Filenames(doc *entity.BillingDocument) (xmlName, zipName string) {
	ruc := pkgsunat.NormalizeRUC(doc.Emisor.NumeroDoc)
	var base string
	switch doc.Tipo {
	case entity.DocBaja, entity.DocResumenDiario:
		base = ruc + "-" + doc.SummaryIdentifier()
	default:
		base = fmt.Sprintf("%s-%s-%s", ruc, doc.Tipo, doc.SeriesNumber())
	}
	return base + ".xml", base + ".zip"
}

// CDRFilename nombre con el que se persiste el CDR de un comprobante: R-{base}.xml.
func CDRFilename(doc *entity.BillingDocument) string {
	xmlName, _ := Filenames(doc)
	return "R-" + xmlName
}
