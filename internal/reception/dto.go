package reception

import "time"

// ReceivedLineInput is one submitted line of a reception event. The units are
// the amount received in this event, which the engine adds to the line's
// cumulative total.
type ReceivedLineInput struct {
	Orden               int     `json:"orden" validate:"required,min=1"`
	UnidadesRecibidas   float64 `json:"unidadesRecibidas" validate:"min=0"`
	ComentarioRecepcion string  `json:"comentarioRecepcion" validate:"max=200"`
}

// ConfirmRequest is the body of a reception confirmation.
type ConfirmRequest struct {
	Items []ReceivedLineInput `json:"items" validate:"dive"`
}

// Totals aggregates quantities across every line of the order.
type Totals struct {
	Pedido    float64 `json:"pedido"`
	Recibido  float64 `json:"recibido"`
	Pendiente float64 `json:"pendiente"`
}

// Summary counts the delivery notes touched by a reception run.
type Summary struct {
	Nuevos       int `json:"nuevos"`
	Actualizados int `json:"actualizados"`
}

// ConfirmResult is the outcome of a confirmed reception.
type ConfirmResult struct {
	Estado                   FulfillmentState `json:"estado"`
	EstadoTexto              string           `json:"estadoTexto"`
	EsRecepcionParcial       bool             `json:"esRecepcionParcial"`
	Totales                  Totals           `json:"totales"`
	AlbaranesCompraGenerados int              `json:"albaranesCompraGenerados"`
	DetallesAlbaranes        []GeneratedNote  `json:"detallesAlbaranes"`
	Resumen                  Summary          `json:"resumen"`
}

// FinalizeResult is the outcome of a forced order closure.
type FinalizeResult struct {
	Estado                       FulfillmentState `json:"estado"`
	EstadoTexto                  string           `json:"estadoTexto"`
	UnidadesPendientesAnteriores float64          `json:"unidadesPendientesAnteriores"`
	Totales                      Totals           `json:"totales"`
	AlbaranesGenerados           int              `json:"albaranesGenerados"`
	DetallesAlbaranes            []GeneratedNote  `json:"detallesAlbaranes"`
}

// OrderLineView is the read-model projection of one order line.
type OrderLineView struct {
	Orden               int        `json:"orden"`
	CodigoArticulo      string     `json:"codigoArticulo"`
	DescripcionArticulo string     `json:"descripcionArticulo"`
	UnidadesPedidas     float64    `json:"unidadesPedidas"`
	UnidadesRecibidas   float64    `json:"unidadesRecibidas"`
	UnidadesPendientes  float64    `json:"unidadesPendientes"`
	Precio              float64    `json:"precio"`
	PorcentajeIva       float64    `json:"porcentajeIva"`
	CodigoProveedor     string     `json:"codigoProveedor,omitempty"`
	ComentarioRecepcion string     `json:"comentarioRecepcion,omitempty"`
	FechaRecepcion      *time.Time `json:"fechaRecepcion,omitempty"`
}

// OrderView is the read-model projection of a customer order.
type OrderView struct {
	OrderKey
	CodigoCliente  string           `json:"codigoCliente"`
	FechaPedido    time.Time        `json:"fechaPedido"`
	FechaNecesaria time.Time        `json:"fechaNecesaria"`
	Aprobado       bool             `json:"aprobado"`
	Estado         FulfillmentState `json:"estado"`
	EstadoTexto    string           `json:"estadoTexto"`
	EsParcial      bool             `json:"esParcial"`
	Totales        Totals           `json:"totales"`
	ImporteLiquido float64          `json:"importeLiquido"`
	Observaciones  string           `json:"observaciones,omitempty"`
	Lineas         []OrderLineView  `json:"lineas"`
}
