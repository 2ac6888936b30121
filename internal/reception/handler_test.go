package reception

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ordina-erp/ordina-erp/internal/shared"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := NewAggregator(fakeDirectory{}, fakeProber{}, VatAllocator{DefaultRate: 21})
	svc := NewService(repo, agg, &fakeCompleter{}, shared.NewOrderLocks(), logger)

	r := chi.NewRouter()
	NewHandler(logger, svc, true).MountRoutes(r)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandlerGetOrder(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "A1", UnidadesPedidas: 5, UnidadesPendientes: 5, Precio: 10},
	)
	router := newTestRouter(newMemoryRepo(header, lines))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/1-2024-A-100", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	order := body["order"].(map[string]any)
	require.Equal(t, "Preparando", order["estadoTexto"])
	require.Len(t, order["lineas"], 1)
}

func TestHandlerGetOrderNotFound(t *testing.T) {
	header, lines := testOrder(OrderLine{Orden: 1, UnidadesPedidas: 1, UnidadesPendientes: 1})
	router := newTestRouter(newMemoryRepo(header, lines))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/1-2024-A-999", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["success"])
}

func TestHandlerGetOrderBadID(t *testing.T) {
	header, lines := testOrder(OrderLine{Orden: 1, UnidadesPedidas: 1, UnidadesPendientes: 1})
	router := newTestRouter(newMemoryRepo(header, lines))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/not-an-id", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerConfirm(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "A1", UnidadesPedidas: 5, UnidadesPendientes: 5, Precio: 10, PorcentajeIva: 21, CodigoProveedor: "P1"},
	)
	router := newTestRouter(newMemoryRepo(header, lines))

	payload := `{"items":[{"orden":1,"unidadesRecibidas":5}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/1-2024-A-100/confirm", strings.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Servido", body["estadoTexto"])
	require.Equal(t, float64(1), body["albaranesCompraGenerados"])
	require.Equal(t, false, body["esRecepcionParcial"])
}

func TestHandlerConfirmValidationFailure(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, UnidadesPedidas: 5, UnidadesPendientes: 5, Precio: 10},
	)
	router := newTestRouter(newMemoryRepo(header, lines))

	// Discrepancy without a comment; clients read the success flag, not the
	// status class, so the endpoint reports a 500.
	payload := `{"items":[{"orden":1,"unidadesRecibidas":2}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/1-2024-A-100/confirm", strings.NewReader(payload)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["success"])
	require.Contains(t, body["message"], "comentario")
}

func TestHandlerConfirmEmptyItems(t *testing.T) {
	header, lines := testOrder(OrderLine{Orden: 1, UnidadesPedidas: 5, UnidadesPendientes: 5})
	router := newTestRouter(newMemoryRepo(header, lines))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/1-2024-A-100/confirm", strings.NewReader(`{"items":[]}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["success"])
}

func TestHandlerFinalize(t *testing.T) {
	header, lines := testOrder(
		OrderLine{Orden: 1, CodigoArticulo: "A1", UnidadesPedidas: 5, UnidadesRecibidas: 2, UnidadesPendientes: 3, Precio: 10, CodigoProveedor: "P1"},
	)
	header.Estado = EstadoParcial
	router := newTestRouter(newMemoryRepo(header, lines))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/1-2024-A-100/finalize", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Servido", body["estadoTexto"])
	require.Equal(t, float64(3), body["unidadesPendientesAnteriores"])
}

func TestHandlerFinalizeAlreadyServed(t *testing.T) {
	header, lines := testOrder(OrderLine{Orden: 1, UnidadesPedidas: 1, UnidadesRecibidas: 1})
	header.Estado = EstadoServido
	router := newTestRouter(newMemoryRepo(header, lines))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/1-2024-A-100/finalize", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, false, body["success"])
}
