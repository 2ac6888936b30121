// Package purchase implements the supplier purchase-order creation flow:
// grouping a customer order's lines by supplier and materializing one
// supplier-facing order per group in the ERP schema.
package purchase

import "time"

// OrderRef is the natural key of a supplier purchase order. The zero value
// means "no linked order".
type OrderRef struct {
	CodigoEmpresa   int    `json:"codigoEmpresa"`
	EjercicioPedido int    `json:"ejercicioPedido"`
	SeriePedido     string `json:"seriePedido"`
	NumeroPedido    int    `json:"numeroPedido"`
}

// IsZero reports whether the reference points at no order.
func (r OrderRef) IsZero() bool {
	return r.NumeroPedido == 0
}

// SupplierOrder is a supplier purchase-order header.
type SupplierOrder struct {
	OrderRef
	CodigoProveedor string
	RazonSocial     string
	FechaPedido     time.Time
	Estado          int
	ImporteLiquido  float64
	NumeroLineas    int
}

// SupplierOrderLine is a per-article entry of a supplier purchase order.
type SupplierOrderLine struct {
	OrderRef
	Orden               int
	CodigoArticulo      string
	DescripcionArticulo string
	UnidadesPedidas     float64
	UnidadesRecibidas   float64
	UnidadesPendientes  float64
	Precio              float64
	PorcentajeIva       float64
}

// CustomerLine is the slice of a customer order line the generator needs.
type CustomerLine struct {
	Orden               int
	CodigoArticulo      string
	DescripcionArticulo string
	UnidadesPedidas     float64
	Precio              float64
	PorcentajeIva       float64
	CodigoProveedor     string
	Linked              bool
}
