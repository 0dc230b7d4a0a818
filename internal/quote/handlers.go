package quote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/quote-engine/internal/catalog"
	"github.com/noah-isme/quote-engine/internal/common"
)

// Quoter is the behaviour the HTTP handler needs from Service.
type Quoter interface {
	Generate(ctx context.Context, req Request) (Quote, error)
	Preview(ctx context.Context, req Request) (Quote, error)
	Get(ctx context.Context, idOrRef string) (Quote, error)
}

// Handler exposes the quote endpoints.
type Handler struct {
	service Quoter
}

// NewHandler constructs a Handler.
func NewHandler(service Quoter) *Handler {
	return &Handler{service: service}
}

// Routes registers the quote endpoints. create wraps the generation route,
// typically with a rate limiter.
func (h *Handler) Routes(r chi.Router, create ...func(http.Handler) http.Handler) {
	r.With(create...).Post("/quotes", h.Create)
	r.Post("/quotes/preview", h.Preview)
	r.Get("/quotes/{id}", h.Get)
}

// Create handles POST /api/v1/quotes.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	h.price(w, r, h.service.Generate, http.StatusCreated)
}

// Preview handles POST /api/v1/quotes/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	h.price(w, r, h.service.Preview, http.StatusOK)
}

// Get handles GET /api/v1/quotes/{id}; the id may also be an external reference.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	q, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

func (h *Handler) price(w http.ResponseWriter, r *http.Request, fn func(context.Context, Request) (Quote, error), status int) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteAppError(w, common.BadRequest("body", "invalid payload", err))
		return
	}
	q, err := fn(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, status, map[string]any{"data": q})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "request validation failed", fieldErrors(err))
	case errors.Is(err, catalog.ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "quote not found", nil)
	case errors.Is(err, ErrPersistence):
		common.JSONError(w, http.StatusServiceUnavailable, "PERSISTENCE_FAILED", "quote could not be saved", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.WriteAppError(w, appErr)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("quote request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		out[ns] = fe.Tag()
	}
	return out
}
