package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shopmesh-io/backend/api/responses"
	"github.com/shopmesh-io/backend/api/validators"
	checkoutsvc "github.com/shopmesh-io/backend/internal/checkout"
	"github.com/shopmesh-io/backend/pkg/logger"
	"github.com/shopmesh-io/backend/pkg/types"
)

type applyCouponRequest struct {
	ShopID uuid.UUID `json:"shop_id" validate:"required"`
	Code   string    `json:"code" validate:"required,min=1,max=64"`
}

type cancelCouponRequest struct {
	ShopID uuid.UUID `json:"shop_id" validate:"required"`
}

type executeCheckoutRequest struct {
	Shipping types.ShippingInfo `json:"shipping" validate:"required"`
	Payment  types.PaymentInfo  `json:"payment" validate:"required"`
}

// CheckoutApplyCoupon applies a discount code to the shop's order in the cart
// and reserves an allocation against the code's budget.
func CheckoutApplyCoupon(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload applyCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.ApplyCoupon(r.Context(), userID, payload.ShopID, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

// CheckoutCancelCoupon removes an applied code and returns its allocation.
func CheckoutCancelCoupon(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.CancelCoupon(r.Context(), userID, payload.ShopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

// CheckoutExecute runs the checkout and returns the created order.
func CheckoutExecute(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload executeCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), userID, payload.Shipping, payload.Payment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
