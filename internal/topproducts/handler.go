package topproducts

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marche-app/marche/internal/platform/httpx"
)

const maxLimit = 100

// Handler exposes the ranking over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   func(http.Handler) http.Handler
}

// NewHandler constructs the handler; guard protects cache eviction.
func NewHandler(logger *slog.Logger, service *Service, guard func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers analytics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/top-products", h.handleTopProducts)
	r.Get("/top-products/cache", h.handleCacheStats)
	r.With(h.guard).Delete("/top-products/cache", h.handleClearCache)
}

func (h *Handler) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxLimit {
			httpx.RespondError(w, fmt.Errorf("%w: limit must be between 1 and %d", httpx.ErrValidation, maxLimit))
			return
		}
		limit = v
	}
	ranking, err := h.service.TopProducts(r.Context(), limit)
	if err != nil {
		h.logger.Error("top products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": ranking})
}

func (h *Handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.CacheStats())
}

func (h *Handler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	h.service.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}
