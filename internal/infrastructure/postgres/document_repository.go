package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// ErrDocumentNotFound el documento no existe en la capa de autoría.
var ErrDocumentNotFound = errors.New("comprobante no encontrado")

// DocumentRepo lectura de comprobantes. El motor no escribe aquí: la autoría
// de documentos pertenece a otra capa y para la emisión son inmutables.
type DocumentRepo struct {
	q Querier
}

func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.BillingDocument, error) {
	doc := &entity.BillingDocument{}
	var refTipo, refSerie *string
	var refNumero *int64

	err := r.q.QueryRow(ctx, `
		SELECT d.id, d.tipo, d.serie, d.numero, d.moneda, d.fecha_emision,
		       d.descuento_global, d.emisor_exonerado,
		       d.emisor_tipo_doc, d.emisor_numero_doc, d.emisor_razon_social,
		       COALESCE(d.emisor_nombre_comercial, ''), COALESCE(d.emisor_direccion, ''),
		       COALESCE(d.emisor_ubigeo, ''), COALESCE(d.emisor_distrito, ''),
		       COALESCE(d.emisor_provincia, ''), COALESCE(d.emisor_departamento, ''),
		       COALESCE(d.receptor_tipo_doc, ''), COALESCE(d.receptor_numero_doc, ''),
		       COALESCE(d.receptor_razon_social, ''), COALESCE(d.receptor_direccion, ''),
		       d.ref_tipo, d.ref_serie, d.ref_numero,
		       COALESCE(d.motivo_nota, ''), COALESCE(d.descripcion_motivo, ''),
		       COALESCE(d.fecha_referencia, d.fecha_emision), COALESCE(d.correlativo_dia, 0),
		       COALESCE(d.motivo_traslado, ''), COALESCE(d.peso_bruto_kg, 0),
		       COALESCE(d.punto_partida, ''), COALESCE(d.punto_llegada, ''),
		       COALESCE(d.placa_vehiculo, '')
		FROM emission_documents d
		WHERE d.id = $1`, id).Scan(
		&doc.ID, &doc.Tipo, &doc.Serie, &doc.Numero, &doc.Moneda, &doc.FechaEmision,
		&doc.DescuentoGlobal, &doc.EmisorExonerado,
		&doc.Emisor.TipoDocIdentidad, &doc.Emisor.NumeroDoc, &doc.Emisor.RazonSocial,
		&doc.Emisor.NombreComercial, &doc.Emisor.Direccion,
		&doc.Emisor.Ubigeo, &doc.Emisor.Distrito,
		&doc.Emisor.Provincia, &doc.Emisor.Departamento,
		&doc.Receptor.TipoDocIdentidad, &doc.Receptor.NumeroDoc,
		&doc.Receptor.RazonSocial, &doc.Receptor.Direccion,
		&refTipo, &refSerie, &refNumero,
		&doc.MotivoNota, &doc.DescripcionMotivo,
		&doc.FechaReferencia, &doc.Correlativo,
		&doc.MotivoTraslado, &doc.PesoBrutoKg,
		&doc.PuntoPartida, &doc.PuntoLlegada,
		&doc.PlacaVehiculo,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leer comprobante %s: %w", id, err)
	}

	if refTipo != nil && refSerie != nil && refNumero != nil {
		doc.DocumentoAfectado = &entity.ReferencedDocument{
			Tipo:   entity.DocType(*refTipo),
			Serie:  *refSerie,
			Numero: *refNumero,
		}
	}

	if doc.Tipo == entity.DocBaja || doc.Tipo == entity.DocResumenDiario {
		doc.Items, err = r.voidedItems(ctx, id)
	} else {
		doc.Lines, err = r.lines(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) lines(ctx context.Context, documentID string) ([]entity.DocumentLine, error) {
	rows, err := r.q.Query(ctx, `
		SELECT descripcion, COALESCE(codigo_producto, ''), COALESCE(unidad, ''),
		       cantidad, precio_unitario, afectacion
		FROM emission_document_lines
		WHERE document_id = $1
		ORDER BY posicion`, documentID)
	if err != nil {
		return nil, fmt.Errorf("leer líneas: %w", err)
	}
	defer rows.Close()

	var lines []entity.DocumentLine
	for rows.Next() {
		var ln entity.DocumentLine
		if err := rows.Scan(&ln.Descripcion, &ln.CodigoProducto, &ln.Unidad,
			&ln.Cantidad, &ln.PrecioUnitario, &ln.Afectacion); err != nil {
			return nil, fmt.Errorf("scan línea: %w", err)
		}
		lines = append(lines, ln)
	}
	return lines, rows.Err()
}

func (r *DocumentRepo) voidedItems(ctx context.Context, documentID string) ([]entity.VoidedItem, error) {
	rows, err := r.q.Query(ctx, `
		SELECT tipo, serie, numero, COALESCE(motivo, '')
		FROM emission_voided_items
		WHERE document_id = $1
		ORDER BY posicion`, documentID)
	if err != nil {
		return nil, fmt.Errorf("leer ítems de baja/resumen: %w", err)
	}
	defer rows.Close()

	var items []entity.VoidedItem
	for rows.Next() {
		var it entity.VoidedItem
		if err := rows.Scan(&it.Tipo, &it.Serie, &it.Numero, &it.Motivo); err != nil {
			return nil, fmt.Errorf("scan ítem: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
