package reception

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ordina-erp/ordina-erp/internal/platform/httpx"
)

// Handler exposes the reception endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	devMode bool
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, devMode bool) *Handler {
	return &Handler{logger: logger, service: service, devMode: devMode}
}

// MountRoutes registers the reception routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{orderId}", h.getOrder)
	r.Post("/{orderId}/confirm", h.confirm)
	r.Post("/{orderId}/finalize", h.finalize)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	key, err := ParseOrderKey(chi.URLParam(r, "orderId"))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, ErrInvalidOrderID.Error())
		return
	}

	order, err := h.service.GetOrder(r.Context(), key)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			httpx.Fail(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("get order", slog.String("pedido", key.String()), slog.Any("error", err))
		httpx.RespondError(w, err, h.devMode)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   order,
	})
}

// confirm reports every failure, validation included, as an internal error:
// clients of the original endpoint distinguish outcomes by the success flag
// and message, not by 4xx status classes.
func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	key, err := ParseOrderKey(chi.URLParam(r, "orderId"))
	if err != nil {
		httpx.Fail(w, http.StatusInternalServerError, ErrInvalidOrderID.Error())
		return
	}

	var req ConfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusInternalServerError, "cuerpo de la petición no válido")
		return
	}

	result, err := h.service.Confirm(r.Context(), key, req)
	if err != nil {
		h.failConfirm(w, key, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":                  true,
		"message":                  "Recepción confirmada",
		"estado":                   result.Estado,
		"estadoTexto":              result.EstadoTexto,
		"esRecepcionParcial":       result.EsRecepcionParcial,
		"totales":                  result.Totales,
		"albaranesCompraGenerados": result.AlbaranesCompraGenerados,
		"detallesAlbaranes":        result.DetallesAlbaranes,
		"resumen":                  result.Resumen,
	})
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	key, err := ParseOrderKey(chi.URLParam(r, "orderId"))
	if err != nil {
		httpx.Fail(w, http.StatusInternalServerError, ErrInvalidOrderID.Error())
		return
	}

	result, err := h.service.Finalize(r.Context(), key)
	if err != nil {
		h.failConfirm(w, key, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":                      true,
		"message":                      "Pedido cerrado",
		"estado":                       result.Estado,
		"estadoTexto":                  result.EstadoTexto,
		"unidadesPendientesAnteriores": result.UnidadesPendientesAnteriores,
		"totales":                      result.Totales,
		"albaranesGenerados":           result.AlbaranesGenerados,
		"detallesAlbaranes":            result.DetallesAlbaranes,
	})
}

func (h *Handler) failConfirm(w http.ResponseWriter, key OrderKey, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrNoItems),
		errors.Is(err, ErrUnknownLine),
		errors.Is(err, ErrComentarioRequired),
		errors.Is(err, ErrAlreadyServed):
		httpx.Fail(w, http.StatusInternalServerError, err.Error())
	default:
		h.logger.Error("reception request failed",
			slog.String("pedido", key.String()), slog.Any("error", err))
		if h.devMode {
			httpx.Fail(w, http.StatusInternalServerError, err.Error())
			return
		}
		httpx.Fail(w, http.StatusInternalServerError, "error interno al procesar la recepción")
	}
}
