package suppliers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ordina-erp/ordina-erp/internal/platform/httpx"
)

// Handler exposes read-only supplier endpoints.
type Handler struct {
	logger    *slog.Logger
	directory *Directory
	devMode   bool
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, directory *Directory, devMode bool) *Handler {
	return &Handler{logger: logger, directory: directory, devMode: devMode}
}

// MountRoutes registers supplier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{codigo}", h.get)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := h.directory.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		httpx.RespondError(w, err, h.devMode)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "proveedores": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	codigo := chi.URLParam(r, "codigo")

	s, err := h.directory.Get(r.Context(), codigo)
	if err != nil {
		httpx.Fail(w, http.StatusNotFound, "proveedor no encontrado")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "proveedor": s})
}
