package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/gomarketplace/internal/domain"
	"github.com/utafrali/gomarketplace/internal/store"
	apperrors "github.com/utafrali/gomarketplace/pkg/errors"
	"github.com/utafrali/gomarketplace/pkg/httputil"
	"github.com/utafrali/gomarketplace/pkg/validator"
)

// CartHandler serves the cart API. The store comes from the request context.
type CartHandler struct {
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger}
}

// --- Request / response DTOs ---

// AddItemRequest is the JSON body of POST /api/v1/cart/items.
type AddItemRequest struct {
	ID       string  `json:"id" validate:"required,max=200"`
	Title    string  `json:"title" validate:"max=500"`
	ImageURL string  `json:"image_url" validate:"max=2048"`
	Price    float64 `json:"price" validate:"gte=0"`
}

// CartResponse is the cart as returned by every cart endpoint.
type CartResponse struct {
	Items     []domain.LineItem `json:"items"`
	ItemCount int               `json:"item_count"`
	Total     float64           `json:"total"`
}

func newCartResponse(c domain.Cart) CartResponse {
	return CartResponse{
		Items:     c.Items(),
		ItemCount: c.ItemCount(),
		Total:     c.Total(),
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(s.Cart()))
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	cart, err := s.AddToCart(r.Context(), domain.Product{
		ID:       req.ID,
		Title:    req.Title,
		ImageURL: req.ImageURL,
		Price:    req.Price,
	})
	h.writeCart(w, r, cart, err)
}

// Increment handles POST /api/v1/cart/items/{id}/increment
func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	cart, err := s.Increment(r.Context(), chi.URLParam(r, "id"))
	h.writeCart(w, r, cart, err)
}

// Decrement handles POST /api/v1/cart/items/{id}/decrement
func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	cart, err := s.Decrement(r.Context(), chi.URLParam(r, "id"))
	h.writeCart(w, r, cart, err)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	cart, err := s.Clear(r.Context())
	h.writeCart(w, r, cart, err)
}

// Status handles GET /api/v1/cart/status
func (h *CartHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, s.Status())
}

// Sync handles POST /api/v1/cart/sync
func (h *CartHandler) Sync(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	if err := s.Sync(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, s.Status())
}

// --- helpers ---

func (h *CartHandler) store(w http.ResponseWriter, r *http.Request) (*store.CartStore, bool) {
	s, err := store.FromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, r, apperrors.Internal(err), h.logger)
		return nil, false
	}
	return s, true
}

func (h *CartHandler) writeCart(w http.ResponseWriter, r *http.Request, cart domain.Cart, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart))
}

// writeError reports a failed snapshot write as 503: the in-memory cart has
// changed and GET /status shows it is dirty.
func (h *CartHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrPersist) {
		err = apperrors.ServiceUnavailable("cart changed but could not be saved", err)
	}
	httputil.WriteError(w, r, err, h.logger)
}
