package purchase

import "errors"

var (
	// ErrOrderNotFound indicates the customer order does not exist.
	ErrOrderNotFound = errors.New("pedido de cliente no encontrado")
	// ErrNoLines indicates the customer order has no lines left to order.
	ErrNoLines = errors.New("el pedido no tiene líneas pendientes de pedir a proveedor")
)
