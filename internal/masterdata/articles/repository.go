package articles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordina-erp/ordina-erp/internal/shared"
)

// Repository reads article master data from the ERP schema.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the article identified by (codigo, empresa) or shared.ErrNotFound.
func (r *Repository) Get(ctx context.Context, codigoArticulo string, codigoEmpresa int) (Article, error) {
	var a Article
	err := r.pool.QueryRow(ctx, `SELECT "CodigoArticulo", "CodigoEmpresa", COALESCE("DescripcionArticulo",''),
COALESCE("PrecioCompra",0), COALESCE("PorcentajeIva",0), COALESCE("CodigoProveedor",'')
FROM "Articulos" WHERE "CodigoArticulo"=$1 AND "CodigoEmpresa"=$2`, codigoArticulo, codigoEmpresa).
		Scan(&a.CodigoArticulo, &a.CodigoEmpresa, &a.DescripcionArticulo,
			&a.PrecioCompra, &a.PorcentajeIva, &a.CodigoProveedor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Article{}, shared.ErrNotFound
		}
		return Article{}, err
	}
	return a, nil
}
