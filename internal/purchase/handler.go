package purchase

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ordina-erp/ordina-erp/internal/platform/httpx"
)

// Handler exposes the supplier-order generation endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
	devMode bool
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, devMode bool) *Handler {
	return &Handler{logger: logger, service: service, devMode: devMode}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/pedidos/{orderId}/generar", h.generate)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	input, ok := parseGenerateInput(chi.URLParam(r, "orderId"))
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "identificador de pedido no válido")
		return
	}

	created, err := h.service.Generate(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			httpx.Fail(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNoLines):
			httpx.Fail(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("generate supplier orders", slog.Any("error", err))
			httpx.RespondError(w, err, h.devMode)
		}
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"pedidosGenerados": len(created),
		"detallesPedidos":  created,
	})
}

// parseGenerateInput parses the empresa-ejercicio-serie-numero route segment.
func parseGenerateInput(raw string) (GenerateInput, bool) {
	parts := strings.Split(raw, "-")
	if len(parts) != 4 || parts[2] == "" {
		return GenerateInput{}, false
	}
	empresa, err1 := strconv.Atoi(parts[0])
	ejercicio, err2 := strconv.Atoi(parts[1])
	numero, err3 := strconv.Atoi(parts[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return GenerateInput{}, false
	}
	return GenerateInput{
		CodigoEmpresa:   empresa,
		EjercicioPedido: ejercicio,
		SeriePedido:     parts[2],
		NumeroPedido:    numero,
	}, true
}
