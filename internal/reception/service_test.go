package reception

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ordina-erp/ordina-erp/internal/masterdata/suppliers"
	"github.com/ordina-erp/ordina-erp/internal/purchase"
	"github.com/ordina-erp/ordina-erp/internal/shared"
)

type memoryRepo struct {
	mu          sync.Mutex
	header      OrderHeader
	lines       []OrderLine
	notes       map[NoteKey]DeliveryNoteHeader
	noteLines   map[NoteKey][]DeliveryNoteLine
	noteRemarks map[NoteKey]string
	pending     map[purchase.OrderRef]float64
	recalcs     int

	failOrden int
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(header OrderHeader, lines []OrderLine) *memoryRepo {
	return &memoryRepo{
		header:      header,
		lines:       lines,
		notes:       make(map[NoteKey]DeliveryNoteHeader),
		noteLines:   make(map[NoteKey][]DeliveryNoteLine),
		noteRemarks: make(map[NoteKey]string),
		pending:     make(map[purchase.OrderRef]float64),
	}
}

type repoSnapshot struct {
	header      OrderHeader
	lines       []OrderLine
	notes       map[NoteKey]DeliveryNoteHeader
	noteLines   map[NoteKey][]DeliveryNoteLine
	noteRemarks map[NoteKey]string
	recalcs     int
}

func (r *memoryRepo) snapshot() repoSnapshot {
	s := repoSnapshot{
		header:      r.header,
		lines:       append([]OrderLine(nil), r.lines...),
		notes:       make(map[NoteKey]DeliveryNoteHeader, len(r.notes)),
		noteLines:   make(map[NoteKey][]DeliveryNoteLine, len(r.noteLines)),
		noteRemarks: make(map[NoteKey]string, len(r.noteRemarks)),
		recalcs:     r.recalcs,
	}
	for k, v := range r.notes {
		s.notes[k] = v
	}
	for k, v := range r.noteLines {
		s.noteLines[k] = append([]DeliveryNoteLine(nil), v...)
	}
	for k, v := range r.noteRemarks {
		s.noteRemarks[k] = v
	}
	return s
}

func (r *memoryRepo) restore(s repoSnapshot) {
	r.header = s.header
	r.lines = s.lines
	r.notes = s.notes
	r.noteLines = s.noteLines
	r.noteRemarks = s.noteRemarks
	r.recalcs = s.recalcs
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, key OrderKey) (OrderHeader, []OrderLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.header.OrderKey != key {
		return OrderHeader{}, nil, ErrOrderNotFound
	}
	return r.header, append([]OrderLine(nil), r.lines...), nil
}

func (r *memoryRepo) SupplierOrderPending(ctx context.Context, ref purchase.OrderRef) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[ref], nil
}

func (t *memoryTx) UpdateLineReception(ctx context.Context, key OrderKey, orden int, recibidas, pendientes float64, comentario string, fecha time.Time) error {
	if t.repo.failOrden != 0 && orden == t.repo.failOrden {
		return errors.New("write failed")
	}
	for i := range t.repo.lines {
		if t.repo.lines[i].OrderKey == key && t.repo.lines[i].Orden == orden {
			t.repo.lines[i].UnidadesRecibidas = recibidas
			t.repo.lines[i].UnidadesPendientes = pendientes
			t.repo.lines[i].ComentarioRecepcion = comentario
			f := fecha
			t.repo.lines[i].FechaRecepcion = &f
			return nil
		}
	}
	return ErrUnknownLine
}

func (t *memoryTx) UpdateOrderState(ctx context.Context, key OrderKey, estado FulfillmentState, parcial bool) error {
	t.repo.header.Estado = estado
	t.repo.header.EsParcial = parcial
	return nil
}

func (t *memoryTx) FindOpenDeliveryNote(ctx context.Context, key OrderKey, codigoProveedor string) (DeliveryNoteHeader, bool, error) {
	var found DeliveryNoteHeader
	ok := false
	for _, h := range t.repo.notes {
		if h.CodigoEmpresa == key.CodigoEmpresa && h.EjercicioPedido == key.EjercicioPedido &&
			h.SeriePedido == key.SeriePedido && h.NumeroPedido == key.NumeroPedido &&
			h.CodigoProveedor == codigoProveedor && !h.Facturado {
			if !ok || h.NumeroAlbaran > found.NumeroAlbaran {
				found = h
				ok = true
			}
		}
	}
	return found, ok, nil
}

func (t *memoryTx) NextDeliveryNoteNumber(ctx context.Context, empresa, ejercicio int, serie string) (int, error) {
	next := 1
	for k := range t.repo.notes {
		if k.CodigoEmpresa == empresa && k.EjercicioAlbaran == ejercicio && k.SerieAlbaran == serie && k.NumeroAlbaran >= next {
			next = k.NumeroAlbaran + 1
		}
	}
	return next, nil
}

func (t *memoryTx) MaxDeliveryNoteLineOrdinal(ctx context.Context, note NoteKey) (int, error) {
	maxOrden := 0
	for _, l := range t.repo.noteLines[note] {
		if l.Orden > maxOrden {
			maxOrden = l.Orden
		}
	}
	return maxOrden, nil
}

func (t *memoryTx) InsertDeliveryNoteHeader(ctx context.Context, header DeliveryNoteHeader, remarks RemarksWrite) error {
	t.repo.notes[header.NoteKey()] = header
	if remarks.Capability.Present {
		t.repo.noteRemarks[header.NoteKey()] = remarks.Text
	}
	return nil
}

func (t *memoryTx) AddDeliveryNoteTotals(ctx context.Context, note NoteKey, base, iva, importe float64, lineas int, remarks RemarksWrite) error {
	h := t.repo.notes[note]
	h.BaseImponible += base
	h.TotalIva += iva
	h.ImporteLiquido += importe
	h.NumeroLineas += lineas
	t.repo.notes[note] = h
	if remarks.Capability.Present {
		t.repo.noteRemarks[note] = remarks.Text
	}
	return nil
}

func (t *memoryTx) InsertDeliveryNoteLine(ctx context.Context, line DeliveryNoteLine) error {
	t.repo.noteLines[line.NoteKey] = append(t.repo.noteLines[line.NoteKey], line)
	return nil
}

func (t *memoryTx) RecalcCustomerNoteTotals(ctx context.Context, empresa, ejercicio int, serie string, numero int) error {
	t.repo.recalcs++
	return nil
}

type fakeProber struct {
	cap RemarksCapability
}

func (p fakeProber) RemarksColumn(ctx context.Context) (RemarksCapability, error) {
	return p.cap, nil
}

type fakeDirectory struct {
	known map[string]suppliers.Supplier
}

func (d fakeDirectory) GetOrPlaceholder(ctx context.Context, codigo string) (suppliers.Supplier, error) {
	if s, ok := d.known[codigo]; ok {
		return s, nil
	}
	return suppliers.Placeholder(codigo), nil
}

type fakeCompleter struct {
	mu   sync.Mutex
	refs []purchase.OrderRef
}

func (c *fakeCompleter) MarkFullyReceived(ctx context.Context, ref purchase.OrderRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs = append(c.refs, ref)
	return nil
}

var testKey = OrderKey{CodigoEmpresa: 1, EjercicioPedido: 2024, SeriePedido: "A", NumeroPedido: 100}

func testOrder(lines ...OrderLine) (OrderHeader, []OrderLine) {
	header := OrderHeader{OrderKey: testKey, Aprobado: true}
	for i := range lines {
		lines[i].OrderKey = testKey
	}
	return header, lines
}

func newTestService(repo *memoryRepo, directory fakeDirectory, prober SchemaProber, completer PurchaseCompleter) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := NewAggregator(directory, prober, VatAllocator{DefaultRate: 21})
	agg.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	svc := NewService(repo, agg, completer, shared.NewOrderLocks(), logger)
	svc.now = agg.now
	return svc
}

func TestConfirmFullReception(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "ART1", DescripcionArticulo: "Tornillo", UnidadesPedidas: 10, UnidadesPendientes: 10, Precio: 12.10, PorcentajeIva: 21, CodigoProveedor: "P1"},
		OrderLine{Orden: 2, CodigoArticulo: "ART2", DescripcionArticulo: "Tuerca", UnidadesPedidas: 5, UnidadesPendientes: 5, Precio: 6.05, PorcentajeIva: 21, CodigoProveedor: "P1"},
	)
	repo := newMemoryRepo(header, lines)
	dir := fakeDirectory{known: map[string]suppliers.Supplier{"P1": {CodigoProveedor: "P1", RazonSocial: "Suministros P1"}}}
	svc := newTestService(repo, dir, fakeProber{cap: RemarksCapability{Present: true, Column: "ObservacionesAlbaran"}}, &fakeCompleter{})

	result, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 10},
		{Orden: 2, UnidadesRecibidas: 5},
	}})
	require.NoError(t, err)

	require.Equal(t, EstadoServido, result.Estado)
	require.Equal(t, "Servido", result.EstadoTexto)
	require.False(t, result.EsRecepcionParcial)
	require.Equal(t, Totals{Pedido: 15, Recibido: 15, Pendiente: 0}, result.Totales)
	require.Equal(t, 1, result.AlbaranesCompraGenerados)
	require.Equal(t, Summary{Nuevos: 1, Actualizados: 0}, result.Resumen)

	require.Equal(t, EstadoServido, repo.header.Estado)
	require.False(t, repo.header.EsParcial)

	note := result.DetallesAlbaranes[0]
	require.True(t, note.Nuevo)
	require.Equal(t, "P1", note.CodigoProveedor)
	require.Equal(t, "Suministros P1", note.RazonSocial)
	require.Equal(t, 1, note.NumeroAlbaran)
	require.Len(t, note.Lineas, 2)

	// 10*12.10 + 5*6.05 = 151.25 gross; base and quota must add back exactly.
	require.InDelta(t, 151.25, note.ImporteLiquido, 0.001)
	require.InDelta(t, note.ImporteLiquido, note.BaseImponible+note.TotalIva, 0.0001)

	key := NoteKey{CodigoEmpresa: 1, EjercicioAlbaran: 2024, SerieAlbaran: "A", NumeroAlbaran: 1}
	require.Equal(t, "Automatic delivery note for order 100 (Completed)", repo.noteRemarks[key])
	require.Equal(t, "Sin incidencias", repo.noteLines[key][0].Comentario)

	require.Equal(t, 10.0, repo.lines[0].UnidadesRecibidas)
	require.NotNil(t, repo.lines[0].FechaRecepcion)
}

func TestConfirmDiscrepancyRequiresComment(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "ART1", UnidadesPedidas: 10, UnidadesPendientes: 10, Precio: 1, CodigoProveedor: "P1"},
	)
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	_, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 4},
	}})
	require.ErrorIs(t, err, ErrComentarioRequired)

	// Nothing may change when validation fails.
	require.Equal(t, 0.0, repo.lines[0].UnidadesRecibidas)
	require.Empty(t, repo.notes)
	require.Equal(t, EstadoPreparando, repo.header.Estado)
}

func TestConfirmPartialThenComplete(t *testing.T) {
	poRef := purchase.OrderRef{CodigoEmpresa: 1, EjercicioPedido: 2024, SeriePedido: "A", NumeroPedido: 7}
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "ART1", UnidadesPedidas: 5, UnidadesPendientes: 5, Precio: 10, PorcentajeIva: 21, CodigoProveedor: "P1", PedidoProveedor: poRef},
	)
	repo := newMemoryRepo(header, lines)
	repo.pending[poRef] = 5
	completer := &fakeCompleter{}
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, completer)

	first, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 3, ComentarioRecepcion: "faltan bultos"},
	}})
	require.NoError(t, err)
	require.Equal(t, EstadoParcial, first.Estado)
	require.True(t, first.EsRecepcionParcial)
	require.True(t, repo.header.EsParcial)
	require.Equal(t, 3.0, repo.lines[0].UnidadesRecibidas)
	require.Equal(t, 2.0, repo.lines[0].UnidadesPendientes)
	require.True(t, first.DetallesAlbaranes[0].Nuevo)
	require.Empty(t, completer.refs)

	// The second reception adds exactly its own units and reuses the open
	// albarán, continuing its line ordinals.
	second, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 2},
	}})
	require.NoError(t, err)
	require.Equal(t, EstadoServido, second.Estado)
	require.Equal(t, 5.0, repo.lines[0].UnidadesRecibidas)
	require.Equal(t, 0.0, repo.lines[0].UnidadesPendientes)

	note := second.DetallesAlbaranes[0]
	require.False(t, note.Nuevo)
	require.Equal(t, 1, note.NumeroAlbaran)
	require.Equal(t, 2, note.Lineas[0].Orden)

	key := NoteKey{CodigoEmpresa: 1, EjercicioAlbaran: 2024, SerieAlbaran: "A", NumeroAlbaran: 1}
	require.Equal(t, 2, repo.notes[key].NumeroLineas)
	require.InDelta(t, 50, repo.notes[key].ImporteLiquido, 0.001)

	require.Equal(t, []purchase.OrderRef{poRef}, completer.refs)
}

func TestConfirmGroupsBySupplierInOrder(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "A1", UnidadesPedidas: 1, UnidadesPendientes: 1, Precio: 10, CodigoProveedor: "ZETA"},
		OrderLine{Orden: 2, CodigoArticulo: "A2", UnidadesPedidas: 1, UnidadesPendientes: 1, Precio: 10, CodigoProveedor: "ALFA"},
		OrderLine{Orden: 3, CodigoArticulo: "A3", UnidadesPedidas: 1, UnidadesPendientes: 1, Precio: 10},
	)
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	result, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 1},
		{Orden: 2, UnidadesRecibidas: 1},
		{Orden: 3, UnidadesRecibidas: 1},
	}})
	require.NoError(t, err)
	require.Len(t, result.DetallesAlbaranes, 3)
	require.Equal(t, "ALFA", result.DetallesAlbaranes[0].CodigoProveedor)
	require.Equal(t, "DEFAULT", result.DetallesAlbaranes[1].CodigoProveedor)
	require.Equal(t, "ZETA", result.DetallesAlbaranes[2].CodigoProveedor)

	// Unknown suppliers get the placeholder identity.
	require.Equal(t, "PROVEEDOR GENERICO", result.DetallesAlbaranes[1].RazonSocial)

	// Numbering is sequential within the (empresa, ejercicio, serie) counter.
	require.Equal(t, 1, result.DetallesAlbaranes[0].NumeroAlbaran)
	require.Equal(t, 2, result.DetallesAlbaranes[1].NumeroAlbaran)
	require.Equal(t, 3, result.DetallesAlbaranes[2].NumeroAlbaran)
}

func TestConfirmUnknownLine(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, UnidadesPedidas: 1, UnidadesPendientes: 1},
	)
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	_, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 99, UnidadesRecibidas: 1},
	}})
	require.ErrorIs(t, err, ErrUnknownLine)
	require.Empty(t, repo.notes)
}

func TestConfirmNoItems(t *testing.T) {
	header, lines := testOrder(OrderLine{Orden: 1, UnidadesPedidas: 1, UnidadesPendientes: 1})
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	_, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{})
	require.ErrorIs(t, err, ErrNoItems)
}

func TestConfirmOrderNotFound(t *testing.T) {
	header, lines := testOrder(OrderLine{Orden: 1, UnidadesPedidas: 1, UnidadesPendientes: 1})
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	other := OrderKey{CodigoEmpresa: 1, EjercicioPedido: 2024, SeriePedido: "A", NumeroPedido: 999}
	_, err := svc.Confirm(context.Background(), other, ConfirmRequest{Items: []ReceivedLineInput{{Orden: 1, UnidadesRecibidas: 1}}})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestConfirmRollsBackOnWriteFailure(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "A1", UnidadesPedidas: 2, UnidadesPendientes: 2, Precio: 5, CodigoProveedor: "P1"},
		OrderLine{Orden: 2, CodigoArticulo: "A2", UnidadesPedidas: 2, UnidadesPendientes: 2, Precio: 5, CodigoProveedor: "P1"},
	)
	repo := newMemoryRepo(header, lines)
	repo.failOrden = 2
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	_, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 2},
		{Orden: 2, UnidadesRecibidas: 2},
	}})
	require.Error(t, err)

	require.Equal(t, 0.0, repo.lines[0].UnidadesRecibidas)
	require.Equal(t, EstadoPreparando, repo.header.Estado)
	require.Empty(t, repo.notes)
	require.Empty(t, repo.noteLines)
}

func TestConfirmOverReceipt(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, UnidadesPedidas: 5, UnidadesPendientes: 5, Precio: 1, CodigoProveedor: "P1"},
	)
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	result, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 7, ComentarioRecepcion: "envío duplicado"},
	}})
	require.NoError(t, err)

	// Pending is never clamped: over-receipt leaves a negative balance.
	require.Equal(t, -2.0, repo.lines[0].UnidadesPendientes)
	require.Equal(t, EstadoParcial, result.Estado)
}

func TestConfirmSkipsInvoicedNote(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, UnidadesPedidas: 4, UnidadesPendientes: 2, UnidadesRecibidas: 2, Precio: 10, CodigoProveedor: "P1"},
	)
	repo := newMemoryRepo(header, lines)
	invoiced := DeliveryNoteHeader{
		CodigoEmpresa: 1, EjercicioAlbaran: 2024, SerieAlbaran: "A", NumeroAlbaran: 1,
		CodigoProveedor: "P1",
		EjercicioPedido: 2024, SeriePedido: "A", NumeroPedido: 100,
		Facturado: true,
	}
	repo.notes[invoiced.NoteKey()] = invoiced
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	result, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 2},
	}})
	require.NoError(t, err)

	// The invoiced albarán is immutable; a fresh one takes the next number.
	note := result.DetallesAlbaranes[0]
	require.True(t, note.Nuevo)
	require.Equal(t, 2, note.NumeroAlbaran)
	require.True(t, repo.notes[invoiced.NoteKey()].Facturado)
	require.Empty(t, repo.noteLines[invoiced.NoteKey()])
}

func TestConfirmTruncatesLongTexts(t *testing.T) {
	longDesc := strings.Repeat("x", 150)
	longComment := strings.Repeat("y", 250)
	header, lines := testOrder(
		OrderLine{Orden: 1, DescripcionArticulo: longDesc, UnidadesPedidas: 1, UnidadesPendientes: 1, Precio: 1, CodigoProveedor: "P1"},
	)
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	result, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 1, ComentarioRecepcion: longComment},
	}})
	require.NoError(t, err)

	key := NoteKey{CodigoEmpresa: 1, EjercicioAlbaran: 2024, SerieAlbaran: "A", NumeroAlbaran: result.DetallesAlbaranes[0].NumeroAlbaran}
	line := repo.noteLines[key][0]
	require.Len(t, line.DescripcionArticulo, 100)
	require.True(t, strings.HasSuffix(line.DescripcionArticulo, "..."))
	require.Len(t, line.Comentario, 200)
	require.True(t, strings.HasSuffix(line.Comentario, "..."))
}

func TestConfirmNoRemarksWhenColumnAbsent(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, UnidadesPedidas: 1, UnidadesPendientes: 1, Precio: 1, CodigoProveedor: "P1"},
	)
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{cap: RemarksCapability{}}, &fakeCompleter{})

	_, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
		{Orden: 1, UnidadesRecibidas: 1},
	}})
	require.NoError(t, err)
	require.Empty(t, repo.noteRemarks)
}

func TestConfirmConcurrentReceptions(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, UnidadesPedidas: 10, UnidadesPendientes: 10, Precio: 1, CodigoProveedor: "P1"},
	)
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Confirm(context.Background(), testKey, ConfirmRequest{Items: []ReceivedLineInput{
				{Orden: 1, UnidadesRecibidas: 3, ComentarioRecepcion: "parcial"},
			}})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	// The per-order lock serializes both receptions, so each delta lands.
	require.Equal(t, 6.0, repo.lines[0].UnidadesRecibidas)
	require.Equal(t, 4.0, repo.lines[0].UnidadesPendientes)
}

func TestFinalizeForcesClosure(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "A1", UnidadesPedidas: 10, UnidadesRecibidas: 6, UnidadesPendientes: 4, Precio: 10, PorcentajeIva: 21, CodigoProveedor: "P1", ComentarioRecepcion: "faltaba stock"},
		OrderLine{Orden: 2, CodigoArticulo: "A2", UnidadesPedidas: 3, UnidadesRecibidas: 3, UnidadesPendientes: 0, Precio: 5, CodigoProveedor: "P1"},
	)
	header.Estado = EstadoParcial
	header.EsParcial = true
	header.EjercicioAlbaranCliente = 2024
	header.SerieAlbaranCliente = "A"
	header.NumeroAlbaranCliente = 55

	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	result, err := svc.Finalize(context.Background(), testKey)
	require.NoError(t, err)

	require.Equal(t, EstadoServido, result.Estado)
	require.Equal(t, 4.0, result.UnidadesPendientesAnteriores)
	require.Equal(t, 1, result.AlbaranesGenerados)

	require.Equal(t, EstadoServido, repo.header.Estado)
	require.False(t, repo.header.EsParcial)
	require.Equal(t, 10.0, repo.lines[0].UnidadesRecibidas)
	require.Equal(t, 0.0, repo.lines[0].UnidadesPendientes)
	require.Equal(t, "faltaba stock (Cierre forzado)", repo.lines[0].ComentarioRecepcion)

	// Fully received lines stay untouched.
	require.Empty(t, repo.lines[1].ComentarioRecepcion)

	// Only the outstanding 4 units land on the albarán.
	note := result.DetallesAlbaranes[0]
	require.Len(t, note.Lineas, 1)
	require.Equal(t, 4.0, note.Lineas[0].Unidades)

	// The linked customer delivery note gets its totals recomputed.
	require.Equal(t, 1, repo.recalcs)
}

func TestFinalizeAlreadyServed(t *testing.T) {
	header, lines := testOrder(OrderLine{Orden: 1, UnidadesPedidas: 1, UnidadesRecibidas: 1})
	header.Estado = EstadoServido
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	_, err := svc.Finalize(context.Background(), testKey)
	require.ErrorIs(t, err, ErrAlreadyServed)
}

func TestFinalizeWithoutPendingLines(t *testing.T) {
	header, lines := testOrder(OrderLine{Orden: 1, UnidadesPedidas: 0, UnidadesPendientes: 0})
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	result, err := svc.Finalize(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, EstadoServido, result.Estado)
	require.Zero(t, result.UnidadesPendientesAnteriores)
	require.Zero(t, result.AlbaranesGenerados)
	require.Equal(t, EstadoServido, repo.header.Estado)
}

func TestGetOrderDeduplicatesLines(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "A1", CodigoProveedor: "P1", UnidadesPedidas: 5, UnidadesPendientes: 5},
		OrderLine{Orden: 1, CodigoArticulo: "A1", CodigoProveedor: "P1", UnidadesPedidas: 5, UnidadesPendientes: 5},
		OrderLine{Orden: 2, CodigoArticulo: "A2", CodigoProveedor: "P1", UnidadesPedidas: 3, UnidadesPendientes: 3},
	)
	repo := newMemoryRepo(header, lines)
	svc := newTestService(repo, fakeDirectory{}, fakeProber{}, &fakeCompleter{})

	view, err := svc.GetOrder(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, view.Lineas, 2)
	require.Equal(t, Totals{Pedido: 8, Recibido: 0, Pendiente: 8}, view.Totales)
	require.Equal(t, "Preparando", view.EstadoTexto)
}
