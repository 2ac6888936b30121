package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ordina-erp/ordina-erp/internal/masterdata/suppliers"
	"github.com/ordina-erp/ordina-erp/internal/purchase"
	"github.com/ordina-erp/ordina-erp/internal/reception"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ReceptionHandler *reception.Handler
	PurchaseHandler  *purchase.Handler
	SuppliersHandler *suppliers.Handler
}

// NewRouter constructs the chi.Router with Ordina defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/recepciones", params.ReceptionHandler.MountRoutes)
	r.Route("/compras", params.PurchaseHandler.MountRoutes)
	if params.SuppliersHandler != nil {
		r.Route("/masterdata/proveedores", params.SuppliersHandler.MountRoutes)
	}

	return r
}
