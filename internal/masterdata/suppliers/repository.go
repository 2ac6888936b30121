package suppliers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordina-erp/ordina-erp/internal/shared"
)

// Repository reads supplier master data from the ERP schema.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const supplierColumns = `"CodigoProveedor", COALESCE("RazonSocial",''), COALESCE("CifDni",''),
COALESCE("Domicilio",''), COALESCE("Municipio",''), COALESCE("CodigoNacion",''), COALESCE("Nacion",''),
COALESCE("Telefono",''), COALESCE("Email",''), COALESCE("CondicionesPago",'')`

// Get returns the supplier identified by codigo or shared.ErrNotFound.
func (r *Repository) Get(ctx context.Context, codigo string) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx,
		`SELECT `+supplierColumns+` FROM "Proveedores" WHERE "CodigoProveedor"=$1`, codigo).
		Scan(&s.CodigoProveedor, &s.RazonSocial, &s.CifDni, &s.Domicilio, &s.Municipio,
			&s.CodigoNacion, &s.Nacion, &s.Telefono, &s.Email, &s.CondicionesPago)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, shared.ErrNotFound
		}
		return Supplier{}, err
	}
	return s, nil
}

// List returns suppliers ordered by code.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+supplierColumns+` FROM "Proveedores" ORDER BY "CodigoProveedor" LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.CodigoProveedor, &s.RazonSocial, &s.CifDni, &s.Domicilio, &s.Municipio,
			&s.CodigoNacion, &s.Nacion, &s.Telefono, &s.Email, &s.CondicionesPago); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
