package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers blending and rebalancing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolio/blend", h.HandleBlend)

	r.Route("/rebalancing", func(r chi.Router) {
		r.Post("/plan", h.HandlePlan)
		r.Post("/run", h.HandleRun)
		r.Get("/runs", h.HandleGetRuns)
		r.Get("/untradeable", h.HandleGetUntradeable)
		r.Delete("/untradeable/{symbol}", h.HandleClearUntradeable)
	})
}
