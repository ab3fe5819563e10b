package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noorbazaar/storefront-backend/api/middleware"
	"github.com/noorbazaar/storefront-backend/api/responses"
	"github.com/noorbazaar/storefront-backend/api/validators"
	cartsvc "github.com/noorbazaar/storefront-backend/internal/cart"
	pkgerrors "github.com/noorbazaar/storefront-backend/pkg/errors"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
)

type cartResponse struct {
	Cart    *cartsvc.Cart `json:"cart"`
	Message string        `json:"message,omitempty"`
}

type addToCartRequest struct {
	ProductID       string                 `json:"product_id" validate:"required"`
	Title           string                 `json:"title" validate:"required"`
	UnitPrice       int64                  `json:"unit_price" validate:"min=0"`
	DiscountPercent int                    `json:"discount_percent" validate:"min=0,max=100"`
	Quantity        int                    `json:"quantity"`
	Attributes      []cartAttributePayload `json:"attributes" validate:"dive"`
}

type cartAttributePayload struct {
	AttributeID   string `json:"attribute_id" validate:"required"`
	AttributeName string `json:"attribute_name"`
	ValueID       string `json:"value_id" validate:"required"`
	ValueName     string `json:"value_name"`
	PriceModifier int64  `json:"price_modifier"`
}

func (r addToCartRequest) toInput() cartsvc.AddInput {
	attrs := make([]cartsvc.SelectedAttribute, len(r.Attributes))
	for i, attr := range r.Attributes {
		attrs[i] = cartsvc.SelectedAttribute{
			AttributeID:   attr.AttributeID,
			AttributeName: attr.AttributeName,
			ValueID:       attr.ValueID,
			ValueName:     attr.ValueName,
			PriceModifier: attr.PriceModifier,
		}
	}
	return cartsvc.AddInput{
		ProductID:       r.ProductID,
		Title:           r.Title,
		UnitPrice:       r.UnitPrice,
		DiscountPercent: r.DiscountPercent,
		Quantity:        r.Quantity,
		Attributes:      attrs,
	}
}

// CartAdd handles add-to-cart for the active session.
func CartAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		var payload addToCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.AddToCart(r.Context(), sessionID, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartResponse{Cart: cart, Message: "به سبد خرید اضافه شد"})
	}
}

// CartGet returns the session's current cart with derived totals.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		cart, err := svc.GetCart(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartResponse{Cart: cart})
	}
}

// CartRemove deletes one line by its uniqueness key. Removing an absent key
// succeeds, the response simply reflects the unchanged cart.
func CartRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		cart, err := svc.RemoveFromCart(r.Context(), sessionID, chi.URLParam(r, "key"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartResponse{Cart: cart, Message: "از سبد خرید حذف شد"})
	}
}

// CartIncrease bumps one line's quantity by one.
func CartIncrease(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		cart, err := svc.IncreaseQuantity(r.Context(), sessionID, chi.URLParam(r, "key"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartResponse{Cart: cart})
	}
}

// CartDecrease lowers one line's quantity by one, clamped at one.
func CartDecrease(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		cart, err := svc.DecreaseQuantity(r.Context(), sessionID, chi.URLParam(r, "key"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartResponse{Cart: cart})
	}
}

// CartClear empties the session's cart, used on checkout success too.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := requireSession(w, r, logg)
		if !ok {
			return
		}

		if err := svc.ClearCart(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartResponse{Cart: &cartsvc.Cart{Lines: []cartsvc.Line{}}, Message: "سبد خرید خالی شد"})
	}
}

func requireSession(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session context missing"))
		return "", false
	}
	return sessionID, true
}
