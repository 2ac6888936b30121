package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordina-erp/ordina-erp/internal/platform/db"
)

// RepositoryPort describes the persistence operations used by the Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CustomerOrderExists(ctx context.Context, empresa, ejercicio int, serie string, numero int) (bool, error)
	GetCustomerLines(ctx context.Context, empresa, ejercicio int, serie string, numero int) ([]CustomerLine, error)
}

// TxRepository exposes the transactional operations of the generator.
type TxRepository interface {
	NextSupplierOrderNumber(ctx context.Context, empresa, ejercicio int, serie string) (int, error)
	InsertSupplierOrder(ctx context.Context, order SupplierOrder) error
	InsertSupplierOrderLine(ctx context.Context, line SupplierOrderLine) error
	LinkCustomerLine(ctx context.Context, empresa, ejercicio int, serie string, numero, orden int, ref OrderRef) error
	MarkOrderReceived(ctx context.Context, ref OrderRef, fecha time.Time) error
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

// CustomerOrderExists reports whether the customer order header exists.
func (r *Repository) CustomerOrderExists(ctx context.Context, empresa, ejercicio int, serie string, numero int) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM "CabeceraPedidoCliente"
WHERE "CodigoEmpresa"=$1 AND "EjercicioPedido"=$2 AND "SeriePedido"=$3 AND "NumeroPedido"=$4`,
		empresa, ejercicio, serie, numero).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetCustomerLines returns the customer order lines with their supplier-order
// link state.
func (r *Repository) GetCustomerLines(ctx context.Context, empresa, ejercicio int, serie string, numero int) ([]CustomerLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT "Orden", COALESCE("CodigoArticulo",''), COALESCE("DescripcionArticulo",''),
COALESCE("UnidadesPedidas",0), COALESCE("Precio",0), COALESCE("PorcentajeIva",0),
COALESCE("CodigoProveedor",''), COALESCE("NumeroPedidoProveedor",0) <> 0
FROM "LineasPedidoCliente"
WHERE "CodigoEmpresa"=$1 AND "EjercicioPedido"=$2 AND "SeriePedido"=$3 AND "NumeroPedido"=$4
ORDER BY "Orden"`, empresa, ejercicio, serie, numero)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []CustomerLine
	for rows.Next() {
		var l CustomerLine
		if err := rows.Scan(&l.Orden, &l.CodigoArticulo, &l.DescripcionArticulo,
			&l.UnidadesPedidas, &l.Precio, &l.PorcentajeIva, &l.CodigoProveedor, &l.Linked); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *txRepo) NextSupplierOrderNumber(ctx context.Context, empresa, ejercicio int, serie string) (int, error) {
	var next int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX("NumeroPedido"),0) + 1 FROM "CabeceraPedidoProveedor"
WHERE "CodigoEmpresa"=$1 AND "EjercicioPedido"=$2 AND "SeriePedido"=$3`,
		empresa, ejercicio, serie).Scan(&next)
	return next, err
}

func (t *txRepo) InsertSupplierOrder(ctx context.Context, o SupplierOrder) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO "CabeceraPedidoProveedor"
("CodigoEmpresa", "EjercicioPedido", "SeriePedido", "NumeroPedido",
"CodigoProveedor", "RazonSocial", "FechaPedido", "Estado", "ImporteLiquido", "NumeroLineas")
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.CodigoEmpresa, o.EjercicioPedido, o.SeriePedido, o.NumeroPedido,
		o.CodigoProveedor, o.RazonSocial, o.FechaPedido, o.Estado, o.ImporteLiquido, o.NumeroLineas)
	return err
}

func (t *txRepo) InsertSupplierOrderLine(ctx context.Context, l SupplierOrderLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO "LineasPedidoProveedor"
("CodigoEmpresa", "EjercicioPedido", "SeriePedido", "NumeroPedido", "Orden",
"CodigoArticulo", "DescripcionArticulo", "UnidadesPedidas", "UnidadesRecibidas", "UnidadesPendientes",
"Precio", "PorcentajeIva")
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		l.CodigoEmpresa, l.EjercicioPedido, l.SeriePedido, l.NumeroPedido, l.Orden,
		l.CodigoArticulo, l.DescripcionArticulo, l.UnidadesPedidas, l.UnidadesRecibidas, l.UnidadesPendientes,
		l.Precio, l.PorcentajeIva)
	return err
}

func (t *txRepo) LinkCustomerLine(ctx context.Context, empresa, ejercicio int, serie string, numero, orden int, ref OrderRef) error {
	_, err := t.tx.Exec(ctx, `UPDATE "LineasPedidoCliente"
SET "EjercicioPedidoProveedor"=$1, "SeriePedidoProveedor"=$2, "NumeroPedidoProveedor"=$3
WHERE "CodigoEmpresa"=$4 AND "EjercicioPedido"=$5 AND "SeriePedido"=$6 AND "NumeroPedido"=$7 AND "Orden"=$8`,
		ref.EjercicioPedido, ref.SeriePedido, ref.NumeroPedido,
		empresa, ejercicio, serie, numero, orden)
	return err
}

func (t *txRepo) MarkOrderReceived(ctx context.Context, ref OrderRef, fecha time.Time) error {
	if _, err := t.tx.Exec(ctx, `UPDATE "LineasPedidoProveedor"
SET "UnidadesRecibidas"="UnidadesPedidas", "UnidadesPendientes"=0, "FechaRecepcion"=$1
WHERE "CodigoEmpresa"=$2 AND "EjercicioPedido"=$3 AND "SeriePedido"=$4 AND "NumeroPedido"=$5`,
		fecha, ref.CodigoEmpresa, ref.EjercicioPedido, ref.SeriePedido, ref.NumeroPedido); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `UPDATE "CabeceraPedidoProveedor" SET "Estado"=2
WHERE "CodigoEmpresa"=$1 AND "EjercicioPedido"=$2 AND "SeriePedido"=$3 AND "NumeroPedido"=$4`,
		ref.CodigoEmpresa, ref.EjercicioPedido, ref.SeriePedido, ref.NumeroPedido)
	return err
}
