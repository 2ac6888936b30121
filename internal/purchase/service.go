package purchase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/ordina-erp/ordina-erp/internal/masterdata/articles"
	"github.com/ordina-erp/ordina-erp/internal/masterdata/suppliers"
	"github.com/ordina-erp/ordina-erp/internal/shared"
)

// DefaultSupplierCode groups lines that carry no supplier reference.
const DefaultSupplierCode = "DEFAULT"

// ArticleLookup resolves article master data for lines missing supplier or
// price information.
type ArticleLookup interface {
	Get(ctx context.Context, codigoArticulo string, codigoEmpresa int) (articles.Article, error)
}

// SupplierDirectory resolves supplier master data with the documented
// placeholder fallback.
type SupplierDirectory interface {
	GetOrPlaceholder(ctx context.Context, codigo string) (suppliers.Supplier, error)
}

// Service creates supplier purchase orders from customer orders and marks
// them received when the reception engine reports completion.
type Service struct {
	repo      RepositoryPort
	articles  ArticleLookup
	directory SupplierDirectory
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the purchasing service.
func NewService(repo RepositoryPort, lookup ArticleLookup, directory SupplierDirectory, logger *slog.Logger) *Service {
	return &Service{repo: repo, articles: lookup, directory: directory, logger: logger, now: time.Now}
}

// GenerateInput identifies the customer order to expand into supplier orders.
type GenerateInput struct {
	CodigoEmpresa   int
	EjercicioPedido int
	SeriePedido     string
	NumeroPedido    int
}

// GeneratedOrder reports one created supplier order.
type GeneratedOrder struct {
	OrderRef
	CodigoProveedor string  `json:"codigoProveedor"`
	NumeroLineas    int     `json:"numeroLineas"`
	ImporteLiquido  float64 `json:"importeLiquido"`
}

// Generate groups the customer order's unlinked lines by supplier and creates
// one supplier purchase order per group inside a single transaction.
func (s *Service) Generate(ctx context.Context, input GenerateInput) ([]GeneratedOrder, error) {
	exists, err := s.repo.CustomerOrderExists(ctx, input.CodigoEmpresa, input.EjercicioPedido, input.SeriePedido, input.NumeroPedido)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrOrderNotFound
	}

	lines, err := s.repo.GetCustomerLines(ctx, input.CodigoEmpresa, input.EjercicioPedido, input.SeriePedido, input.NumeroPedido)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]CustomerLine)
	for _, line := range lines {
		if line.Linked || line.UnidadesPedidas <= 0 {
			continue
		}
		if line.CodigoProveedor == "" || line.Precio == 0 {
			art, err := s.articles.Get(ctx, line.CodigoArticulo, input.CodigoEmpresa)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return nil, err
			}
			if err == nil {
				if line.CodigoProveedor == "" {
					line.CodigoProveedor = art.CodigoProveedor
				}
				if line.Precio == 0 {
					line.Precio = art.PrecioCompra
				}
				if line.PorcentajeIva == 0 {
					line.PorcentajeIva = art.PorcentajeIva
				}
			}
		}
		code := line.CodigoProveedor
		if code == "" {
			code = DefaultSupplierCode
		}
		groups[code] = append(groups[code], line)
	}
	if len(groups) == 0 {
		return nil, ErrNoLines
	}

	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var created []GeneratedOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = created[:0]
		for _, code := range codes {
			group := groups[code]

			numero, err := tx.NextSupplierOrderNumber(ctx, input.CodigoEmpresa, input.EjercicioPedido, input.SeriePedido)
			if err != nil {
				return err
			}
			ref := OrderRef{
				CodigoEmpresa:   input.CodigoEmpresa,
				EjercicioPedido: input.EjercicioPedido,
				SeriePedido:     input.SeriePedido,
				NumeroPedido:    numero,
			}

			supplier, err := s.directory.GetOrPlaceholder(ctx, code)
			if err != nil {
				return err
			}

			var total float64
			for orden, line := range group {
				total += line.UnidadesPedidas * line.Precio
				if err := tx.InsertSupplierOrderLine(ctx, SupplierOrderLine{
					OrderRef:            ref,
					Orden:               orden + 1,
					CodigoArticulo:      line.CodigoArticulo,
					DescripcionArticulo: line.DescripcionArticulo,
					UnidadesPedidas:     line.UnidadesPedidas,
					UnidadesPendientes:  line.UnidadesPedidas,
					Precio:              line.Precio,
					PorcentajeIva:       line.PorcentajeIva,
				}); err != nil {
					return err
				}
				if err := tx.LinkCustomerLine(ctx, input.CodigoEmpresa, input.EjercicioPedido,
					input.SeriePedido, input.NumeroPedido, line.Orden, ref); err != nil {
					return err
				}
			}

			if err := tx.InsertSupplierOrder(ctx, SupplierOrder{
				OrderRef:        ref,
				CodigoProveedor: code,
				RazonSocial:     supplier.RazonSocial,
				FechaPedido:     s.now(),
				Estado:          0,
				ImporteLiquido:  total,
				NumeroLineas:    len(group),
			}); err != nil {
				return err
			}

			created = append(created, GeneratedOrder{
				OrderRef:        ref,
				CodigoProveedor: code,
				NumeroLineas:    len(group),
				ImporteLiquido:  total,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("supplier orders generated",
		slog.Int("pedido", input.NumeroPedido),
		slog.Int("generados", len(created)))
	return created, nil
}

// MarkFullyReceived marks a supplier purchase order and all its lines as
// completely received. Used by the reception engine's completion propagation.
func (s *Service) MarkFullyReceived(ctx context.Context, ref OrderRef) error {
	if ref.IsZero() {
		return nil
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkOrderReceived(ctx, ref, s.now())
	})
}
