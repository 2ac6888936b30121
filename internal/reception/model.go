// Package reception implements the order-reception reconciliation engine:
// recording received units per order line, deriving the order fulfillment
// state, and synthesizing supplier delivery notes (albaranes) grouped by
// supplier with VAT-aware totals.
package reception

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ordina-erp/ordina-erp/internal/purchase"
)

// OrderKey is the natural key of a customer order in the ERP schema.
type OrderKey struct {
	CodigoEmpresa   int    `json:"codigoEmpresa"`
	EjercicioPedido int    `json:"ejercicioPedido"`
	SeriePedido     string `json:"seriePedido"`
	NumeroPedido    int    `json:"numeroPedido"`
}

// String renders the key in the route format empresa-ejercicio-serie-numero.
func (k OrderKey) String() string {
	return fmt.Sprintf("%d-%d-%s-%d", k.CodigoEmpresa, k.EjercicioPedido, k.SeriePedido, k.NumeroPedido)
}

// ParseOrderKey parses the empresa-ejercicio-serie-numero route segment.
func ParseOrderKey(raw string) (OrderKey, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 4 {
		return OrderKey{}, fmt.Errorf("%w: %q", ErrInvalidOrderID, raw)
	}
	empresa, err := strconv.Atoi(parts[0])
	if err != nil {
		return OrderKey{}, fmt.Errorf("%w: %q", ErrInvalidOrderID, raw)
	}
	ejercicio, err := strconv.Atoi(parts[1])
	if err != nil {
		return OrderKey{}, fmt.Errorf("%w: %q", ErrInvalidOrderID, raw)
	}
	numero, err := strconv.Atoi(parts[3])
	if err != nil {
		return OrderKey{}, fmt.Errorf("%w: %q", ErrInvalidOrderID, raw)
	}
	if parts[2] == "" {
		return OrderKey{}, fmt.Errorf("%w: %q", ErrInvalidOrderID, raw)
	}
	return OrderKey{CodigoEmpresa: empresa, EjercicioPedido: ejercicio, SeriePedido: parts[2], NumeroPedido: numero}, nil
}

// OrderHeader is the customer order header. Only the reconciliation engine
// mutates it once the order is approved; it is never deleted here.
type OrderHeader struct {
	OrderKey
	CodigoCliente  string
	FechaPedido    time.Time
	FechaNecesaria time.Time
	Aprobado       bool
	Estado         FulfillmentState
	EsParcial      bool
	BaseImponible  float64
	TotalIva       float64
	ImporteLiquido float64
	NumeroLineas   int
	Observaciones  string

	// Optional link to the customer-facing delivery note, whose totals the
	// finalizer recomputes independently.
	EjercicioAlbaranCliente int
	SerieAlbaranCliente     string
	NumeroAlbaranCliente    int
}

// OrderLine is a per-article entry of a customer order.
type OrderLine struct {
	OrderKey
	Orden               int
	CodigoArticulo      string
	DescripcionArticulo string
	UnidadesPedidas     float64
	UnidadesRecibidas   float64
	UnidadesPendientes  float64
	Precio              float64
	PorcentajeIva       float64
	CodigoProveedor     string
	ComentarioRecepcion string
	FechaRecepcion      *time.Time

	// PedidoProveedor links the line to the supplier purchase order created
	// by the sibling purchasing flow; zero value when unlinked.
	PedidoProveedor purchase.OrderRef
}

// DeliveryNoteHeader is a supplier-facing albarán header. Numbering runs per
// (company, fiscal year, series). Once Facturado is set the engine treats the
// note as immutable.
type DeliveryNoteHeader struct {
	CodigoEmpresa    int
	EjercicioAlbaran int
	SerieAlbaran     string
	NumeroAlbaran    int

	CodigoProveedor string
	RazonSocial     string
	CifDni          string
	Domicilio       string
	CodigoNacion    string
	Nacion          string

	EjercicioPedido int
	SeriePedido     string
	NumeroPedido    int

	FechaAlbaran   time.Time
	BaseImponible  float64
	TotalIva       float64
	ImporteLiquido float64
	NumeroLineas   int
	Facturado      bool
}

// NoteKey returns the albarán natural key fields.
func (h DeliveryNoteHeader) NoteKey() NoteKey {
	return NoteKey{
		CodigoEmpresa:    h.CodigoEmpresa,
		EjercicioAlbaran: h.EjercicioAlbaran,
		SerieAlbaran:     h.SerieAlbaran,
		NumeroAlbaran:    h.NumeroAlbaran,
	}
}

// NoteKey is the natural key of a supplier delivery note.
type NoteKey struct {
	CodigoEmpresa    int    `json:"codigoEmpresa"`
	EjercicioAlbaran int    `json:"ejercicioAlbaran"`
	SerieAlbaran     string `json:"serieAlbaran"`
	NumeroAlbaran    int    `json:"numeroAlbaran"`
}

// DeliveryNoteLine mirrors a received order line on an albarán. Ordinals
// continue from the header's current maximum.
type DeliveryNoteLine struct {
	NoteKey
	Orden               int
	CodigoArticulo      string
	DescripcionArticulo string
	Unidades            float64
	Precio              float64
	PorcentajeIva       float64
	BaseImponible       float64
	CuotaIva            float64
	ImporteLiquido      float64
	Comentario          string
}
