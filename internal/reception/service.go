package reception

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ordina-erp/ordina-erp/internal/purchase"
	"github.com/ordina-erp/ordina-erp/internal/shared"
)

const forcedClosureMarker = " (Cierre forzado)"

// PurchaseCompleter propagates order completion to linked supplier purchase
// orders. Failures here never fail the reception that triggered them.
type PurchaseCompleter interface {
	MarkFullyReceived(ctx context.Context, ref purchase.OrderRef) error
}

// Service coordinates reception confirmations and forced closures. Each
// mutating call holds the per-order lock for its duration and performs all
// writes inside a single transaction.
type Service struct {
	repo       RepositoryPort
	aggregator *Aggregator
	purchases  PurchaseCompleter
	locks      *shared.OrderLocks
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the reception service.
func NewService(repo RepositoryPort, aggregator *Aggregator, purchases PurchaseCompleter, locks *shared.OrderLocks, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		aggregator: aggregator,
		purchases:  purchases,
		locks:      locks,
		logger:     logger,
		now:        time.Now,
	}
}

// GetOrder returns the order read model. Lines that repeat the same
// (orden, article, supplier) triple are collapsed to the first occurrence.
func (s *Service) GetOrder(ctx context.Context, key OrderKey) (OrderView, error) {
	header, lines, err := s.repo.GetOrder(ctx, key)
	if err != nil {
		return OrderView{}, err
	}

	seen := make(map[string]bool, len(lines))
	var views []OrderLineView
	var totals Totals
	for _, line := range lines {
		dedup := fmt.Sprintf("%d|%s|%s", line.Orden, line.CodigoArticulo, line.CodigoProveedor)
		if seen[dedup] {
			continue
		}
		seen[dedup] = true

		totals.Pedido += line.UnidadesPedidas
		totals.Recibido += line.UnidadesRecibidas
		totals.Pendiente += line.UnidadesPendientes
		views = append(views, OrderLineView{
			Orden:               line.Orden,
			CodigoArticulo:      line.CodigoArticulo,
			DescripcionArticulo: line.DescripcionArticulo,
			UnidadesPedidas:     line.UnidadesPedidas,
			UnidadesRecibidas:   line.UnidadesRecibidas,
			UnidadesPendientes:  line.UnidadesPendientes,
			Precio:              line.Precio,
			PorcentajeIva:       line.PorcentajeIva,
			CodigoProveedor:     line.CodigoProveedor,
			ComentarioRecepcion: line.ComentarioRecepcion,
			FechaRecepcion:      line.FechaRecepcion,
		})
	}

	return OrderView{
		OrderKey:       header.OrderKey,
		CodigoCliente:  header.CodigoCliente,
		FechaPedido:    header.FechaPedido,
		FechaNecesaria: header.FechaNecesaria,
		Aprobado:       header.Aprobado,
		Estado:         header.Estado,
		EstadoTexto:    header.Estado.Texto(),
		EsParcial:      header.EsParcial,
		Totales:        totals,
		ImporteLiquido: header.ImporteLiquido,
		Observaciones:  header.Observaciones,
		Lineas:         views,
	}, nil
}

// lineUpdate is one validated, not-yet-written line mutation.
type lineUpdate struct {
	line       OrderLine
	delta      float64
	recibidas  float64
	pendientes float64
	comentario string
}

// Confirm records a reception event: submitted units accumulate onto their
// lines, the order state is re-derived and supplier delivery notes absorb
// the received quantities, all in one transaction.
func (s *Service) Confirm(ctx context.Context, key OrderKey, req ConfirmRequest) (ConfirmResult, error) {
	release := s.locks.Lock(shared.OrderLockKey(key.CodigoEmpresa, key.EjercicioPedido, key.SeriePedido, key.NumeroPedido))
	defer release()

	logger := s.logger.With(
		slog.String("operacion", uuid.NewString()),
		slog.String("pedido", key.String()))

	header, lines, err := s.repo.GetOrder(ctx, key)
	if err != nil {
		return ConfirmResult{}, err
	}
	if err := ValidateConfirmRequest(req); err != nil {
		return ConfirmResult{}, err
	}

	byOrden := make(map[int]OrderLine, len(lines))
	for _, line := range lines {
		if _, ok := byOrden[line.Orden]; !ok {
			byOrden[line.Orden] = line
		}
	}

	// Validate every item before writing anything: a failure anywhere must
	// leave the order untouched.
	updates := make([]lineUpdate, 0, len(req.Items))
	for _, item := range req.Items {
		line, ok := byOrden[item.Orden]
		if !ok {
			return ConfirmResult{}, fmt.Errorf("%w: orden %d", ErrUnknownLine, item.Orden)
		}
		recibidas := line.UnidadesRecibidas + item.UnidadesRecibidas
		if recibidas != line.UnidadesPedidas && item.ComentarioRecepcion == "" {
			return ConfirmResult{}, fmt.Errorf("%w: orden %d", ErrComentarioRequired, item.Orden)
		}
		pendientes := line.UnidadesPedidas - recibidas
		if pendientes < 0 {
			logger.Warn("recepción por encima de lo pedido",
				slog.Int("orden", item.Orden),
				slog.Float64("pedidas", line.UnidadesPedidas),
				slog.Float64("recibidas", recibidas))
		}
		comentario := item.ComentarioRecepcion
		if comentario == "" {
			comentario = line.ComentarioRecepcion
		}
		updates = append(updates, lineUpdate{
			line:       line,
			delta:      item.UnidadesRecibidas,
			recibidas:  recibidas,
			pendientes: pendientes,
			comentario: truncate(comentario, maxCommentLen),
		})
	}

	fecha := s.now()
	items := make([]ReceivedItem, 0, len(updates))
	for _, u := range updates {
		if u.delta <= 0 {
			continue
		}
		items = append(items, ReceivedItem{
			Orden:               u.line.Orden,
			CodigoArticulo:      u.line.CodigoArticulo,
			DescripcionArticulo: u.line.DescripcionArticulo,
			Unidades:            u.delta,
			Precio:              u.line.Precio,
			PorcentajeIva:       u.line.PorcentajeIva,
			CodigoProveedor:     u.line.CodigoProveedor,
			Comentario:          u.comentario,
			PedidoProveedor:     u.line.PedidoProveedor,
		})
	}

	totals, estado := projectedState(lines, updates)

	var notes []GeneratedNote
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		notes = nil
		for _, u := range updates {
			if err := tx.UpdateLineReception(ctx, key, u.line.Orden, u.recibidas, u.pendientes, u.comentario, fecha); err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderState(ctx, key, estado, totals.Pendiente > 0); err != nil {
			return err
		}
		notes, err = s.aggregator.Generate(ctx, tx, header, items, totals.Pendiente > 0)
		return err
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	var nuevos, actualizados int
	for _, note := range notes {
		if note.Nuevo {
			nuevos++
		} else {
			actualizados++
		}
	}
	logger.Info("recepción confirmada",
		slog.String("estado", estado.Texto()),
		slog.Int("lineas", len(updates)),
		slog.Int("albaranesNuevos", nuevos),
		slog.Int("albaranesActualizados", actualizados))

	if estado == EstadoServido {
		s.propagateCompletion(ctx, logger, notes)
	}

	return ConfirmResult{
		Estado:                   estado,
		EstadoTexto:              estado.Texto(),
		EsRecepcionParcial:       totals.Pendiente > 0,
		Totales:                  totals,
		AlbaranesCompraGenerados: len(notes),
		DetallesAlbaranes:        notes,
		Resumen:                  Summary{Nuevos: nuevos, Actualizados: actualizados},
	}, nil
}

// Finalize force-closes an order: every pending unit is marked received with
// the closure marker appended to its comment, the order moves to Servido and
// the outstanding quantities land on supplier delivery notes.
func (s *Service) Finalize(ctx context.Context, key OrderKey) (FinalizeResult, error) {
	release := s.locks.Lock(shared.OrderLockKey(key.CodigoEmpresa, key.EjercicioPedido, key.SeriePedido, key.NumeroPedido))
	defer release()

	logger := s.logger.With(
		slog.String("operacion", uuid.NewString()),
		slog.String("pedido", key.String()))

	header, lines, err := s.repo.GetOrder(ctx, key)
	if err != nil {
		return FinalizeResult{}, err
	}
	if header.Estado == EstadoServido {
		return FinalizeResult{}, ErrAlreadyServed
	}

	fecha := s.now()
	var pendingBefore float64
	var updates []lineUpdate
	var items []ReceivedItem
	for _, line := range lines {
		if line.UnidadesPendientes <= 0 {
			continue
		}
		pendingBefore += line.UnidadesPendientes

		comentario := line.ComentarioRecepcion
		if comentario == "" {
			comentario = defaultLineComment
		}
		comentario = truncate(comentario+forcedClosureMarker, maxCommentLen)

		updates = append(updates, lineUpdate{
			line:       line,
			delta:      line.UnidadesPendientes,
			recibidas:  line.UnidadesPedidas,
			pendientes: 0,
			comentario: comentario,
		})
		items = append(items, ReceivedItem{
			Orden:               line.Orden,
			CodigoArticulo:      line.CodigoArticulo,
			DescripcionArticulo: line.DescripcionArticulo,
			Unidades:            line.UnidadesPendientes,
			Precio:              line.Precio,
			PorcentajeIva:       line.PorcentajeIva,
			CodigoProveedor:     line.CodigoProveedor,
			Comentario:          comentario,
			PedidoProveedor:     line.PedidoProveedor,
		})
	}

	totals, _ := projectedState(lines, updates)

	var notes []GeneratedNote
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		notes = nil
		for _, u := range updates {
			if err := tx.UpdateLineReception(ctx, key, u.line.Orden, u.recibidas, u.pendientes, u.comentario, fecha); err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderState(ctx, key, EstadoServido, false); err != nil {
			return err
		}
		notes, err = s.aggregator.Generate(ctx, tx, header, items, false)
		if err != nil {
			return err
		}
		if header.NumeroAlbaranCliente > 0 {
			return tx.RecalcCustomerNoteTotals(ctx, header.CodigoEmpresa,
				header.EjercicioAlbaranCliente, header.SerieAlbaranCliente, header.NumeroAlbaranCliente)
		}
		return nil
	})
	if err != nil {
		return FinalizeResult{}, err
	}

	logger.Info("pedido cerrado forzosamente",
		slog.Float64("unidadesPendientes", pendingBefore),
		slog.Int("albaranes", len(notes)))

	s.propagateCompletion(ctx, logger, notes)

	return FinalizeResult{
		Estado:                       EstadoServido,
		EstadoTexto:                  EstadoServido.Texto(),
		UnidadesPendientesAnteriores: pendingBefore,
		Totales:                      totals,
		AlbaranesGenerados:           len(notes),
		DetallesAlbaranes:            notes,
	}, nil
}

// projectedState folds the pending updates over the stored lines and derives
// the resulting totals and fulfillment state. Duplicate ordinals collapse to
// their first occurrence, matching the write path.
func projectedState(lines []OrderLine, updates []lineUpdate) (Totals, FulfillmentState) {
	byOrden := make(map[int]lineUpdate, len(updates))
	for _, u := range updates {
		byOrden[u.line.Orden] = u
	}

	seen := make(map[int]bool, len(lines))
	var totals Totals
	for _, line := range lines {
		if seen[line.Orden] {
			continue
		}
		seen[line.Orden] = true

		recibidas, pendientes := line.UnidadesRecibidas, line.UnidadesPendientes
		if u, ok := byOrden[line.Orden]; ok {
			recibidas, pendientes = u.recibidas, u.pendientes
		}
		totals.Pedido += line.UnidadesPedidas
		totals.Recibido += recibidas
		totals.Pendiente += pendientes
	}
	return totals, DeriveFulfillmentState(totals.Pedido, totals.Recibido, totals.Pendiente)
}

// propagateCompletion marks linked supplier purchase orders as received once
// the customer order is fully served. Runs after the primary commit and only
// logs failures.
func (s *Service) propagateCompletion(ctx context.Context, logger *slog.Logger, notes []GeneratedNote) {
	var refs []purchase.OrderRef
	for _, note := range notes {
		for _, ref := range note.PedidosProveedor {
			if !containsRef(refs, ref) {
				refs = append(refs, ref)
			}
		}
	}

	for _, ref := range refs {
		pending, err := s.repo.SupplierOrderPending(ctx, ref)
		if err != nil {
			logger.Warn("consulta de pedido a proveedor fallida",
				slog.Int("numeroPedidoProveedor", ref.NumeroPedido), slog.Any("error", err))
			continue
		}
		if pending == 0 {
			continue
		}
		if err := s.purchases.MarkFullyReceived(ctx, ref); err != nil {
			logger.Warn("propagación al pedido de proveedor fallida",
				slog.Int("numeroPedidoProveedor", ref.NumeroPedido), slog.Any("error", err))
		}
	}
}
