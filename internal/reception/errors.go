package reception

import "errors"

var (
	// ErrOrderNotFound indicates the requested customer order does not exist.
	ErrOrderNotFound = errors.New("pedido no encontrado")
	// ErrInvalidOrderID indicates a malformed order identifier.
	ErrInvalidOrderID = errors.New("identificador de pedido no válido")

	// Validation errors; all fail before any write is made.
	ErrNoItems            = errors.New("la recepción no contiene líneas")
	ErrUnknownLine        = errors.New("la línea indicada no existe en el pedido")
	ErrComentarioRequired = errors.New("comentario de recepción obligatorio cuando las unidades recibidas no coinciden con las pedidas")

	// ErrAlreadyServed indicates the order is already fully served.
	ErrAlreadyServed = errors.New("el pedido ya está servido")
)
