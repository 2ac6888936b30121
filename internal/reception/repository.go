package reception

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordina-erp/ordina-erp/internal/platform/db"
	"github.com/ordina-erp/ordina-erp/internal/purchase"
)

// RepositoryPort describes the persistence operations used by the Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, key OrderKey) (OrderHeader, []OrderLine, error)
	SupplierOrderPending(ctx context.Context, ref purchase.OrderRef) (float64, error)
}

// TxRepository exposes the operations that must run inside the reception
// transaction. Every write of a reception or finalize request goes through
// one of these; an error anywhere rolls back all of them.
type TxRepository interface {
	UpdateLineReception(ctx context.Context, key OrderKey, orden int, recibidas, pendientes float64, comentario string, fecha time.Time) error
	UpdateOrderState(ctx context.Context, key OrderKey, estado FulfillmentState, parcial bool) error

	FindOpenDeliveryNote(ctx context.Context, key OrderKey, codigoProveedor string) (DeliveryNoteHeader, bool, error)
	NextDeliveryNoteNumber(ctx context.Context, empresa, ejercicio int, serie string) (int, error)
	MaxDeliveryNoteLineOrdinal(ctx context.Context, note NoteKey) (int, error)
	InsertDeliveryNoteHeader(ctx context.Context, header DeliveryNoteHeader, remarks RemarksWrite) error
	AddDeliveryNoteTotals(ctx context.Context, note NoteKey, base, iva, importe float64, lineas int, remarks RemarksWrite) error
	InsertDeliveryNoteLine(ctx context.Context, line DeliveryNoteLine) error

	RecalcCustomerNoteTotals(ctx context.Context, empresa, ejercicio int, serie string, numero int) error
}

// RemarksWrite tells the repository whether and where to write remarks text.
// When the capability reports no column the text is dropped silently.
type RemarksWrite struct {
	Capability RemarksCapability
	Text       string
}

// Repository provides PostgreSQL backed persistence over the ERP schema.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetOrder returns the order header and all its lines, or ErrOrderNotFound.
func (r *Repository) GetOrder(ctx context.Context, key OrderKey) (OrderHeader, []OrderLine, error) {
	var h OrderHeader
	err := r.pool.QueryRow(ctx, `SELECT "CodigoEmpresa", "EjercicioPedido", "SeriePedido", "NumeroPedido",
COALESCE("CodigoCliente",''), COALESCE("FechaPedido",CURRENT_DATE), COALESCE("FechaNecesaria",CURRENT_DATE),
COALESCE("StatusAprobado",0) <> 0, COALESCE("Estado",0), COALESCE("EsParcial",0) <> 0,
COALESCE("BaseImponible",0), COALESCE("TotalIva",0), COALESCE("ImporteLiquido",0),
COALESCE("NumeroLineas",0), COALESCE("ObservacionesPedido",''),
COALESCE("EjercicioAlbaranCliente",0), COALESCE("SerieAlbaranCliente",''), COALESCE("NumeroAlbaranCliente",0)
FROM "CabeceraPedidoCliente"
WHERE "CodigoEmpresa"=$1 AND "EjercicioPedido"=$2 AND "SeriePedido"=$3 AND "NumeroPedido"=$4`,
		key.CodigoEmpresa, key.EjercicioPedido, key.SeriePedido, key.NumeroPedido).
		Scan(&h.CodigoEmpresa, &h.EjercicioPedido, &h.SeriePedido, &h.NumeroPedido,
			&h.CodigoCliente, &h.FechaPedido, &h.FechaNecesaria,
			&h.Aprobado, &h.Estado, &h.EsParcial,
			&h.BaseImponible, &h.TotalIva, &h.ImporteLiquido,
			&h.NumeroLineas, &h.Observaciones,
			&h.EjercicioAlbaranCliente, &h.SerieAlbaranCliente, &h.NumeroAlbaranCliente)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderHeader{}, nil, ErrOrderNotFound
		}
		return OrderHeader{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT "Orden", COALESCE("CodigoArticulo",''), COALESCE("DescripcionArticulo",''),
COALESCE("UnidadesPedidas",0), COALESCE("UnidadesRecibidas",0), COALESCE("UnidadesPendientes",0),
COALESCE("Precio",0), COALESCE("PorcentajeIva",0), COALESCE("CodigoProveedor",''),
COALESCE("ComentarioRecepcion",''), "FechaRecepcion",
COALESCE("EjercicioPedidoProveedor",0), COALESCE("SeriePedidoProveedor",''), COALESCE("NumeroPedidoProveedor",0)
FROM "LineasPedidoCliente"
WHERE "CodigoEmpresa"=$1 AND "EjercicioPedido"=$2 AND "SeriePedido"=$3 AND "NumeroPedido"=$4
ORDER BY "Orden"`,
		key.CodigoEmpresa, key.EjercicioPedido, key.SeriePedido, key.NumeroPedido)
	if err != nil {
		return OrderHeader{}, nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		line := OrderLine{OrderKey: key}
		if err := rows.Scan(&line.Orden, &line.CodigoArticulo, &line.DescripcionArticulo,
			&line.UnidadesPedidas, &line.UnidadesRecibidas, &line.UnidadesPendientes,
			&line.Precio, &line.PorcentajeIva, &line.CodigoProveedor,
			&line.ComentarioRecepcion, &line.FechaRecepcion,
			&line.PedidoProveedor.EjercicioPedido, &line.PedidoProveedor.SeriePedido,
			&line.PedidoProveedor.NumeroPedido); err != nil {
			return OrderHeader{}, nil, err
		}
		line.PedidoProveedor.CodigoEmpresa = key.CodigoEmpresa
		if line.PedidoProveedor.NumeroPedido == 0 {
			line.PedidoProveedor = purchase.OrderRef{}
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return OrderHeader{}, nil, err
	}
	return h, lines, nil
}

// SupplierOrderPending returns the pending-units total of a linked supplier
// purchase order.
func (r *Repository) SupplierOrderPending(ctx context.Context, ref purchase.OrderRef) (float64, error) {
	var pending float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM("UnidadesPendientes"),0) FROM "LineasPedidoProveedor"
WHERE "CodigoEmpresa"=$1 AND "EjercicioPedido"=$2 AND "SeriePedido"=$3 AND "NumeroPedido"=$4`,
		ref.CodigoEmpresa, ref.EjercicioPedido, ref.SeriePedido, ref.NumeroPedido).Scan(&pending)
	return pending, err
}

func (t *txRepo) UpdateLineReception(ctx context.Context, key OrderKey, orden int, recibidas, pendientes float64, comentario string, fecha time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE "LineasPedidoCliente"
SET "UnidadesRecibidas"=$1, "UnidadesPendientes"=$2, "ComentarioRecepcion"=$3, "FechaRecepcion"=$4
WHERE "CodigoEmpresa"=$5 AND "EjercicioPedido"=$6 AND "SeriePedido"=$7 AND "NumeroPedido"=$8 AND "Orden"=$9`,
		recibidas, pendientes, comentario, fecha,
		key.CodigoEmpresa, key.EjercicioPedido, key.SeriePedido, key.NumeroPedido, orden)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: orden %d", ErrUnknownLine, orden)
	}
	return nil
}

func (t *txRepo) UpdateOrderState(ctx context.Context, key OrderKey, estado FulfillmentState, parcial bool) error {
	parcialFlag := 0
	if parcial {
		parcialFlag = -1
	}
	_, err := t.tx.Exec(ctx, `UPDATE "CabeceraPedidoCliente" SET "Estado"=$1, "EsParcial"=$2
WHERE "CodigoEmpresa"=$3 AND "EjercicioPedido"=$4 AND "SeriePedido"=$5 AND "NumeroPedido"=$6`,
		int(estado), parcialFlag,
		key.CodigoEmpresa, key.EjercicioPedido, key.SeriePedido, key.NumeroPedido)
	return err
}

func (t *txRepo) FindOpenDeliveryNote(ctx context.Context, key OrderKey, codigoProveedor string) (DeliveryNoteHeader, bool, error) {
	var h DeliveryNoteHeader
	err := t.tx.QueryRow(ctx, `SELECT "CodigoEmpresa", "EjercicioAlbaran", "SerieAlbaran", "NumeroAlbaran",
COALESCE("CodigoProveedor",''), COALESCE("RazonSocial",''), COALESCE("CifDni",''), COALESCE("Domicilio",''),
COALESCE("CodigoNacion",''), COALESCE("Nacion",''),
"EjercicioPedido", "SeriePedido", "NumeroPedido",
COALESCE("FechaAlbaran",CURRENT_DATE), COALESCE("BaseImponible",0), COALESCE("TotalIva",0),
COALESCE("ImporteLiquido",0), COALESCE("NumeroLineas",0), COALESCE("Facturado",0) <> 0
FROM "CabeceraAlbaranProveedor"
WHERE "CodigoEmpresa"=$1 AND "EjercicioPedido"=$2 AND "SeriePedido"=$3 AND "NumeroPedido"=$4
  AND "CodigoProveedor"=$5 AND COALESCE("Facturado",0) = 0
ORDER BY "NumeroAlbaran" DESC
LIMIT 1`,
		key.CodigoEmpresa, key.EjercicioPedido, key.SeriePedido, key.NumeroPedido, codigoProveedor).
		Scan(&h.CodigoEmpresa, &h.EjercicioAlbaran, &h.SerieAlbaran, &h.NumeroAlbaran,
			&h.CodigoProveedor, &h.RazonSocial, &h.CifDni, &h.Domicilio,
			&h.CodigoNacion, &h.Nacion,
			&h.EjercicioPedido, &h.SeriePedido, &h.NumeroPedido,
			&h.FechaAlbaran, &h.BaseImponible, &h.TotalIva,
			&h.ImporteLiquido, &h.NumeroLineas, &h.Facturado)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeliveryNoteHeader{}, false, nil
		}
		return DeliveryNoteHeader{}, false, err
	}
	return h, true, nil
}

func (t *txRepo) NextDeliveryNoteNumber(ctx context.Context, empresa, ejercicio int, serie string) (int, error) {
	// Monotonic per-counter allocation; gaps are never refilled.
	var next int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX("NumeroAlbaran"),0) + 1 FROM "CabeceraAlbaranProveedor"
WHERE "CodigoEmpresa"=$1 AND "EjercicioAlbaran"=$2 AND "SerieAlbaran"=$3`,
		empresa, ejercicio, serie).Scan(&next)
	return next, err
}

func (t *txRepo) MaxDeliveryNoteLineOrdinal(ctx context.Context, note NoteKey) (int, error) {
	var maxOrden int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX("Orden"),0) FROM "LineasAlbaranProveedor"
WHERE "CodigoEmpresa"=$1 AND "EjercicioAlbaran"=$2 AND "SerieAlbaran"=$3 AND "NumeroAlbaran"=$4`,
		note.CodigoEmpresa, note.EjercicioAlbaran, note.SerieAlbaran, note.NumeroAlbaran).Scan(&maxOrden)
	return maxOrden, err
}

func (t *txRepo) InsertDeliveryNoteHeader(ctx context.Context, h DeliveryNoteHeader, remarks RemarksWrite) error {
	columns := `"CodigoEmpresa", "EjercicioAlbaran", "SerieAlbaran", "NumeroAlbaran",
"CodigoProveedor", "RazonSocial", "CifDni", "Domicilio", "CodigoNacion", "Nacion",
"EjercicioPedido", "SeriePedido", "NumeroPedido",
"FechaAlbaran", "BaseImponible", "TotalIva", "ImporteLiquido", "NumeroLineas", "Facturado"`
	placeholders := `$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,0`
	args := []any{h.CodigoEmpresa, h.EjercicioAlbaran, h.SerieAlbaran, h.NumeroAlbaran,
		h.CodigoProveedor, h.RazonSocial, h.CifDni, h.Domicilio, h.CodigoNacion, h.Nacion,
		h.EjercicioPedido, h.SeriePedido, h.NumeroPedido,
		h.FechaAlbaran, h.BaseImponible, h.TotalIva, h.ImporteLiquido, h.NumeroLineas}

	if remarks.Capability.Present {
		columns += fmt.Sprintf(`, %q`, remarks.Capability.Column)
		placeholders += fmt.Sprintf(", $%d", len(args)+1)
		args = append(args, remarks.Text)
	}

	_, err := t.tx.Exec(ctx,
		`INSERT INTO "CabeceraAlbaranProveedor" (`+columns+`) VALUES (`+placeholders+`)`, args...)
	return err
}

func (t *txRepo) AddDeliveryNoteTotals(ctx context.Context, note NoteKey, base, iva, importe float64, lineas int, remarks RemarksWrite) error {
	set := `"BaseImponible" = COALESCE("BaseImponible",0) + $1,
"TotalIva" = COALESCE("TotalIva",0) + $2,
"ImporteLiquido" = COALESCE("ImporteLiquido",0) + $3,
"NumeroLineas" = COALESCE("NumeroLineas",0) + $4`
	args := []any{base, iva, importe, lineas}

	if remarks.Capability.Present {
		set += fmt.Sprintf(`, %q = $%d`, remarks.Capability.Column, len(args)+1)
		args = append(args, remarks.Text)
	}

	args = append(args, note.CodigoEmpresa, note.EjercicioAlbaran, note.SerieAlbaran, note.NumeroAlbaran)
	n := len(args)
	where := fmt.Sprintf(`"CodigoEmpresa"=$%d AND "EjercicioAlbaran"=$%d AND "SerieAlbaran"=$%d AND "NumeroAlbaran"=$%d`,
		n-3, n-2, n-1, n)

	_, err := t.tx.Exec(ctx, `UPDATE "CabeceraAlbaranProveedor" SET `+set+` WHERE `+where, args...)
	return err
}

func (t *txRepo) InsertDeliveryNoteLine(ctx context.Context, l DeliveryNoteLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO "LineasAlbaranProveedor"
("CodigoEmpresa", "EjercicioAlbaran", "SerieAlbaran", "NumeroAlbaran", "Orden",
"CodigoArticulo", "DescripcionArticulo", "Unidades", "Precio", "PorcentajeIva",
"BaseImponible", "CuotaIva", "ImporteLiquido", "Comentario")
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		l.CodigoEmpresa, l.EjercicioAlbaran, l.SerieAlbaran, l.NumeroAlbaran, l.Orden,
		l.CodigoArticulo, l.DescripcionArticulo, l.Unidades, l.Precio, l.PorcentajeIva,
		l.BaseImponible, l.CuotaIva, l.ImporteLiquido, l.Comentario)
	return err
}

func (t *txRepo) RecalcCustomerNoteTotals(ctx context.Context, empresa, ejercicio int, serie string, numero int) error {
	_, err := t.tx.Exec(ctx, `UPDATE "CabeceraAlbaranCliente" SET
"ImporteLiquido" = (SELECT COALESCE(SUM("Unidades" * "Precio"),0) FROM "LineasAlbaranCliente"
  WHERE "CodigoEmpresa"=$1 AND "EjercicioAlbaran"=$2 AND "SerieAlbaran"=$3 AND "NumeroAlbaran"=$4)
WHERE "CodigoEmpresa"=$1 AND "EjercicioAlbaran"=$2 AND "SerieAlbaran"=$3 AND "NumeroAlbaran"=$4`,
		empresa, ejercicio, serie, numero)
	return err
}
