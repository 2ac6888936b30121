package reception

// FulfillmentState is the order lifecycle stage derived from aggregate
// quantities across all lines.
type FulfillmentState int

const (
	// EstadoPreparando means nothing has been received yet.
	EstadoPreparando FulfillmentState = 0
	// EstadoParcial means some, but not all, units have been received.
	EstadoParcial FulfillmentState = 1
	// EstadoServido means every ordered unit has been received.
	EstadoServido FulfillmentState = 2
)

// Texto returns the user-facing Spanish label for the state.
func (s FulfillmentState) Texto() string {
	switch s {
	case EstadoParcial:
		return "Parcial"
	case EstadoServido:
		return "Servido"
	default:
		return "Preparando"
	}
}

// DeriveFulfillmentState computes the order state from the order-wide sums.
// Missing sums count as zero; there are no error conditions.
//
//	received == 0                 -> Preparando
//	pending == 0 && received > 0  -> Servido
//	otherwise                     -> Parcial
func DeriveFulfillmentState(totalOrdered, totalReceived, totalPending float64) FulfillmentState {
	if totalReceived == 0 {
		return EstadoPreparando
	}
	if totalPending == 0 {
		return EstadoServido
	}
	return EstadoParcial
}
