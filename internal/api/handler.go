// Package api provides HTTP handlers for the mentor API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/cascade"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/plan"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
)

// Handler serves the plan and progress endpoints.
type Handler struct {
	repo       store.Repository
	resolver   *plan.Resolver
	cascade    *cascade.Cascade
	thresholds []domain.AvatarStageThreshold
}

// NewHandler creates a new Handler. Nil thresholds use the defaults.
func NewHandler(repo store.Repository, resolver *plan.Resolver, cc *cascade.Cascade, thresholds []domain.AvatarStageThreshold) *Handler {
	if len(thresholds) == 0 {
		thresholds = progress.DefaultThresholds()
	}
	return &Handler{
		repo:       repo,
		resolver:   resolver,
		cascade:    cc,
		thresholds: thresholds,
	}
}

// RegisterRoutes registers routes that need a user identity.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/progress", h.GetProgress)
		r.Get("/plan", h.GetPlan)
		r.Post("/goals", h.CreateGoal)
		r.Post("/milestones/{milestoneID}/complete", h.CompleteMilestone)
	})
}

// RegisterPublicRoutes registers routes that work without identity.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/health", h.Health)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
