package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shopmesh-io/backend/api/responses"
	"github.com/shopmesh-io/backend/api/validators"
	discountsvc "github.com/shopmesh-io/backend/internal/discount"
	"github.com/shopmesh-io/backend/pkg/enums"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
)

type createDiscountRequest struct {
	Code           string      `json:"code" validate:"required,min=1,max=64"`
	Name           string      `json:"name" validate:"required,min=1,max=255"`
	Description    string      `json:"description" validate:"max=2000"`
	Type           string      `json:"type" validate:"required,oneof=fixed percentage"`
	Value          int         `json:"value" validate:"required,min=1"`
	StartDate      time.Time   `json:"start_date" validate:"required"`
	EndDate        time.Time   `json:"end_date" validate:"required"`
	MaxUses        *int        `json:"max_uses" validate:"omitempty,min=1"`
	MaxUsesPerUser int         `json:"max_uses_per_user" validate:"required,min=1"`
	MinOrderValue  int         `json:"min_order_value" validate:"min=0"`
	AppliesTo      string      `json:"applies_to" validate:"required,oneof=all specific"`
	ProductIDs     []uuid.UUID `json:"product_ids" validate:"omitempty,dive,required"`
}

// DiscountCreate registers a new code for the merchant's shop.
func DiscountCreate(svc discountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createDiscountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		discountType, err := enums.ParseDiscountType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount type"))
			return
		}
		appliesTo, err := enums.ParseDiscountAppliesTo(payload.AppliesTo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scope"))
			return
		}

		created, err := svc.CreateDiscount(r.Context(), shopID, discountsvc.CreateDiscountInput{
			Code:           payload.Code,
			Name:           payload.Name,
			Description:    payload.Description,
			Type:           discountType,
			Value:          payload.Value,
			StartDate:      payload.StartDate,
			EndDate:        payload.EndDate,
			MaxUses:        payload.MaxUses,
			MaxUsesPerUser: payload.MaxUsesPerUser,
			MinOrderValue:  payload.MinOrderValue,
			AppliesTo:      appliesTo,
			ProductIDs:     payload.ProductIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

type updateDiscountRequest struct {
	Code           *string    `json:"code" validate:"omitempty,min=1,max=64"`
	Name           *string    `json:"name" validate:"omitempty,min=1,max=255"`
	Description    *string    `json:"description" validate:"omitempty,max=2000"`
	Value          *int       `json:"value" validate:"omitempty,min=1"`
	EndDate        *time.Time `json:"end_date"`
	MaxUses        *int       `json:"max_uses" validate:"omitempty,min=1"`
	MaxUsesPerUser *int       `json:"max_uses_per_user" validate:"omitempty,min=1"`
	MinOrderValue  *int       `json:"min_order_value" validate:"omitempty,min=0"`
}

// DiscountUpdate edits a code owned by the merchant's shop. Fields left out of
// the payload keep their current value.
func DiscountUpdate(svc discountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		discountID, err := pathUUID(r, "discountID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateDiscountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.UpdateDiscount(r.Context(), shopID, discountID, discountsvc.UpdateDiscountInput{
			Code:           payload.Code,
			Name:           payload.Name,
			Description:    payload.Description,
			Value:          payload.Value,
			EndDate:        payload.EndDate,
			MaxUses:        payload.MaxUses,
			MaxUsesPerUser: payload.MaxUsesPerUser,
			MinOrderValue:  payload.MinOrderValue,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// DiscountList returns every code owned by the merchant's shop.
func DiscountList(svc discountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListShopDiscounts(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// DiscountProducts returns the live listings a code applies to.
func DiscountProducts(svc discountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		discountID, err := pathUUID(r, "discountID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		products, err := svc.ListProductsForDiscount(r.Context(), shopID, discountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, products)
	}
}

// DiscountDeactivate retires a code without deleting its usage history.
func DiscountDeactivate(svc discountsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		discountID, err := pathUUID(r, "discountID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeactivateDiscount(r.Context(), shopID, discountID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}
