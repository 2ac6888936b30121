package reception

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ordina-erp/ordina-erp/internal/masterdata/suppliers"
	"github.com/ordina-erp/ordina-erp/internal/purchase"
)

const (
	// DefaultSupplierCode groups received items whose line carries no
	// supplier reference.
	DefaultSupplierCode = "DEFAULT"

	maxDescriptionLen  = 100
	maxCommentLen      = 200
	defaultLineComment = "Sin incidencias"
)

// ReceivedItem is one received line contribution to fold into a supplier
// delivery note. Unidades is the amount received in this reception event,
// not the line's cumulative total.
type ReceivedItem struct {
	Orden               int
	CodigoArticulo      string
	DescripcionArticulo string
	Unidades            float64
	Precio              float64
	PorcentajeIva       float64
	CodigoProveedor     string
	Comentario          string
	PedidoProveedor     purchase.OrderRef
}

// TargetKind distinguishes the insert path from the update path of a
// delivery-note lookup, so the branch is exhaustive and typed.
type TargetKind int

const (
	// TargetNew means no open note existed and a header must be inserted.
	TargetNew TargetKind = iota
	// TargetExisting means an open note absorbs the new lines in place.
	TargetExisting
)

type noteTarget struct {
	Kind   TargetKind
	Header DeliveryNoteHeader
}

// GeneratedNoteLine is the per-line breakdown reported for one albarán.
type GeneratedNoteLine struct {
	Orden          int     `json:"orden"`
	CodigoArticulo string  `json:"codigoArticulo"`
	Unidades       float64 `json:"unidades"`
	Precio         float64 `json:"precio"`
	BaseImponible  float64 `json:"baseImponible"`
	CuotaIva       float64 `json:"cuotaIva"`
	ImporteLiquido float64 `json:"importeLiquido"`
}

// GeneratedNote reports the outcome of one supplier group: which albarán
// absorbed the lines, whether it was created by this run, and the group's
// contribution to its totals.
type GeneratedNote struct {
	CodigoProveedor  string              `json:"codigoProveedor"`
	RazonSocial      string              `json:"razonSocial"`
	EjercicioAlbaran int                 `json:"ejercicioAlbaran"`
	SerieAlbaran     string              `json:"serieAlbaran"`
	NumeroAlbaran    int                 `json:"numeroAlbaran"`
	Nuevo            bool                `json:"nuevo"`
	NumeroLineas     int                 `json:"numeroLineas"`
	BaseImponible    float64             `json:"baseImponible"`
	TotalIva         float64             `json:"totalIva"`
	ImporteLiquido   float64             `json:"importeLiquido"`
	Lineas           []GeneratedNoteLine `json:"lineas"`

	// PedidosProveedor carries the distinct supplier purchase orders linked
	// to the group's lines, used for best-effort completion propagation.
	PedidosProveedor []purchase.OrderRef `json:"-"`
}

// SupplierDirectory resolves supplier master data; missing records yield the
// documented placeholder instead of an error.
type SupplierDirectory interface {
	GetOrPlaceholder(ctx context.Context, codigo string) (suppliers.Supplier, error)
}

// Aggregator groups received items by supplier and finds-or-creates one open
// delivery note per (order, supplier) pair, folding quantities and VAT-aware
// totals into it. All writes happen on the caller's transaction; database
// errors propagate so the caller can roll back.
type Aggregator struct {
	directory SupplierDirectory
	prober    SchemaProber
	vat       VatAllocator
	now       func() time.Time
}

// NewAggregator constructs an aggregator.
func NewAggregator(directory SupplierDirectory, prober SchemaProber, vat VatAllocator) *Aggregator {
	return &Aggregator{directory: directory, prober: prober, vat: vat, now: time.Now}
}

// Generate produces or updates supplier delivery notes for the received
// items of one order. parcial controls the remarks wording only.
func (a *Aggregator) Generate(ctx context.Context, tx TxRepository, order OrderHeader, items []ReceivedItem, parcial bool) ([]GeneratedNote, error) {
	if len(items) == 0 {
		return nil, nil
	}

	remarksCap, err := a.prober.RemarksColumn(ctx)
	if err != nil {
		return nil, err
	}
	remarks := RemarksWrite{Capability: remarksCap, Text: remarksText(order.NumeroPedido, parcial)}

	groups := make(map[string][]ReceivedItem)
	for _, item := range items {
		code := item.CodigoProveedor
		if code == "" {
			code = DefaultSupplierCode
		}
		groups[code] = append(groups[code], item)
	}

	// Deterministic processing order so repeated runs allocate numbers the
	// same way. Collators are not safe for concurrent use, hence per call.
	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	collator := collate.New(language.Spanish)
	sort.Slice(codes, func(i, j int) bool {
		return collator.CompareString(codes[i], codes[j]) < 0
	})

	notes := make([]GeneratedNote, 0, len(codes))
	for _, code := range codes {
		note, err := a.generateGroup(ctx, tx, order, code, groups[code], remarks)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func (a *Aggregator) generateGroup(ctx context.Context, tx TxRepository, order OrderHeader, code string, group []ReceivedItem, remarks RemarksWrite) (GeneratedNote, error) {
	target, err := a.resolveTarget(ctx, tx, order, code)
	if err != nil {
		return GeneratedNote{}, err
	}

	startOrdinal := 0
	if target.Kind == TargetExisting {
		startOrdinal, err = tx.MaxDeliveryNoteLineOrdinal(ctx, target.Header.NoteKey())
		if err != nil {
			return GeneratedNote{}, err
		}
	}

	var base, iva, importe float64
	lines := make([]DeliveryNoteLine, 0, len(group))
	breakdown := make([]GeneratedNoteLine, 0, len(group))
	var linkedOrders []purchase.OrderRef

	for i, item := range group {
		bd := a.vat.Allocate(item.Precio, item.Unidades, item.PorcentajeIva)
		base += bd.BaseImponible
		iva += bd.CuotaIva
		importe += bd.ImporteLiquido

		comment := item.Comentario
		if comment == "" {
			comment = defaultLineComment
		}
		ordinal := startOrdinal + i + 1

		lines = append(lines, DeliveryNoteLine{
			NoteKey:             target.Header.NoteKey(),
			Orden:               ordinal,
			CodigoArticulo:      item.CodigoArticulo,
			DescripcionArticulo: truncate(item.DescripcionArticulo, maxDescriptionLen),
			Unidades:            item.Unidades,
			Precio:              item.Precio,
			PorcentajeIva:       item.PorcentajeIva,
			BaseImponible:       bd.BaseImponible,
			CuotaIva:            bd.CuotaIva,
			ImporteLiquido:      bd.ImporteLiquido,
			Comentario:          truncate(comment, maxCommentLen),
		})
		breakdown = append(breakdown, GeneratedNoteLine{
			Orden:          ordinal,
			CodigoArticulo: item.CodigoArticulo,
			Unidades:       item.Unidades,
			Precio:         item.Precio,
			BaseImponible:  bd.BaseImponible,
			CuotaIva:       bd.CuotaIva,
			ImporteLiquido: bd.ImporteLiquido,
		})
		if !item.PedidoProveedor.IsZero() && !containsRef(linkedOrders, item.PedidoProveedor) {
			linkedOrders = append(linkedOrders, item.PedidoProveedor)
		}
	}

	switch target.Kind {
	case TargetNew:
		target.Header.BaseImponible = base
		target.Header.TotalIva = iva
		target.Header.ImporteLiquido = importe
		target.Header.NumeroLineas = len(lines)
		if err := tx.InsertDeliveryNoteHeader(ctx, target.Header, remarks); err != nil {
			return GeneratedNote{}, err
		}
	case TargetExisting:
		if err := tx.AddDeliveryNoteTotals(ctx, target.Header.NoteKey(), base, iva, importe, len(lines), remarks); err != nil {
			return GeneratedNote{}, err
		}
	}

	for _, line := range lines {
		if err := tx.InsertDeliveryNoteLine(ctx, line); err != nil {
			return GeneratedNote{}, err
		}
	}

	return GeneratedNote{
		CodigoProveedor:  code,
		RazonSocial:      target.Header.RazonSocial,
		EjercicioAlbaran: target.Header.EjercicioAlbaran,
		SerieAlbaran:     target.Header.SerieAlbaran,
		NumeroAlbaran:    target.Header.NumeroAlbaran,
		Nuevo:            target.Kind == TargetNew,
		NumeroLineas:     len(lines),
		BaseImponible:    base,
		TotalIva:         iva,
		ImporteLiquido:   importe,
		Lineas:           breakdown,
		PedidosProveedor: linkedOrders,
	}, nil
}

// resolveTarget finds the open (non-invoiced) note for (order, supplier) or
// prepares a new header with the next running number. Invoiced notes are
// never touched; a new reception after invoicing starts a fresh note.
func (a *Aggregator) resolveTarget(ctx context.Context, tx TxRepository, order OrderHeader, code string) (noteTarget, error) {
	header, found, err := tx.FindOpenDeliveryNote(ctx, order.OrderKey, code)
	if err != nil {
		return noteTarget{}, err
	}
	if found {
		return noteTarget{Kind: TargetExisting, Header: header}, nil
	}

	numero, err := tx.NextDeliveryNoteNumber(ctx, order.CodigoEmpresa, order.EjercicioPedido, order.SeriePedido)
	if err != nil {
		return noteTarget{}, err
	}
	supplier, err := a.directory.GetOrPlaceholder(ctx, code)
	if err != nil {
		return noteTarget{}, err
	}

	return noteTarget{Kind: TargetNew, Header: DeliveryNoteHeader{
		CodigoEmpresa:    order.CodigoEmpresa,
		EjercicioAlbaran: order.EjercicioPedido,
		SerieAlbaran:     order.SeriePedido,
		NumeroAlbaran:    numero,
		CodigoProveedor:  code,
		RazonSocial:      supplier.RazonSocial,
		CifDni:           supplier.CifDni,
		Domicilio:        supplier.Domicilio,
		CodigoNacion:     supplier.CodigoNacion,
		Nacion:           supplier.Nacion,
		EjercicioPedido:  order.EjercicioPedido,
		SeriePedido:      order.SeriePedido,
		NumeroPedido:     order.NumeroPedido,
		FechaAlbaran:     a.now(),
	}}, nil
}

// remarksText is recomputed on every run and written whenever the schema
// carries a remarks column.
func remarksText(numeroPedido int, parcial bool) string {
	status := "Completed"
	if parcial {
		status = "Partial"
	}
	return fmt.Sprintf("Automatic delivery note for order %d (%s)", numeroPedido, status)
}

// truncate limits s to limit runes, marking truncation with an ellipsis.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func containsRef(refs []purchase.OrderRef, ref purchase.OrderRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}
