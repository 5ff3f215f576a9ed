package searchsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/marche-app/marche/internal/catalog"
	"github.com/marche-app/marche/internal/platform/httpx"
)

// Syncer is the service surface exposed over HTTP.
type Syncer interface {
	Enabled() bool
	Available(ctx context.Context) bool
	Notifier() Notifier
	FullResync(ctx context.Context) (FullResyncReport, error)
	FullResyncProducts(ctx context.Context) (ResyncReport, error)
	FullResyncCategories(ctx context.Context) (ResyncReport, error)
}

// Handler exposes search sync maintenance endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Syncer
	guard     func(http.Handler) http.Handler
	record    RecordFunc
	validator *validator.Validate
}

// NewHandler constructs the handler. guard protects mutating endpoints and
// may be nil.
func NewHandler(logger *slog.Logger, service Syncer, guard func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// WithRecorder persists accepted events before they are synced.
func (h *Handler) WithRecorder(record RecordFunc) *Handler {
	h.record = record
	return h
}

// MountRoutes registers search routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(h.guard)
		r.Post("/events", h.handleEvent)
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(5, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			r.Post("/resync", h.handleResync)
			r.Post("/resync/products", h.handleResyncProducts)
			r.Post("/resync/categories", h.handleResyncCategories)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	enabled := h.service.Enabled()
	available := enabled && h.service.Available(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]bool{"enabled": enabled, "available": available})
}

type eventRequest struct {
	Action   Action            `json:"action" validate:"required,oneof=create update delete"`
	Entity   Entity            `json:"entity" validate:"required,oneof=product category"`
	ID       string            `json:"id"`
	Product  *catalog.Product  `json:"product" validate:"omitempty"`
	Category *catalog.Category `json:"category" validate:"omitempty"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	ev := NewEvent(req.Entity, req.Action)
	ev.EntityID = req.ID
	ev.Product = req.Product
	ev.Category = req.Category
	if ev.EntityID == "" {
		ev.EntityID = ev.TargetID()
	}
	if err := ev.Validate(); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if h.record != nil {
		if err := h.record(r.Context(), ev); err != nil {
			h.logger.Error("record catalog event", slog.String("event", ev.ID.String()), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Persist Failed", err.Error())
			return
		}
	}
	if !h.service.Enabled() {
		httpx.JSON(w, http.StatusAccepted, map[string]any{"eventId": ev.ID, "status": "disabled"})
		return
	}
	h.service.Notifier().Notify(r.Context(), ev)
	httpx.JSON(w, http.StatusAccepted, map[string]any{"eventId": ev.ID, "status": "accepted"})
}

func (h *Handler) handleResync(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.FullResync(r.Context())
	if err != nil {
		h.resyncError(w, "all", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleResyncProducts(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.FullResyncProducts(r.Context())
	if err != nil {
		h.resyncError(w, "products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleResyncCategories(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.FullResyncCategories(r.Context())
	if err != nil {
		h.resyncError(w, "categories", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) resyncError(w http.ResponseWriter, collection string, err error) {
	h.logger.Error("search resync failed", slog.String("collection", collection), slog.Any("error", err))
	switch {
	case errors.Is(err, context.Canceled):
		httpx.Problem(w, http.StatusServiceUnavailable, "Resync Cancelled", err.Error())
	case IsUpstreamError(err):
		httpx.Problem(w, http.StatusBadGateway, "Search Index Error", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Resync Failed", err.Error())
	}
}
