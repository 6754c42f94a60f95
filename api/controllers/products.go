package controllers

import (
	"net/http"

	"github.com/shopmesh-io/backend/api/responses"
	"github.com/shopmesh-io/backend/api/validators"
	catalogsvc "github.com/shopmesh-io/backend/internal/catalog"
	"github.com/shopmesh-io/backend/pkg/enums"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
)

type createProductRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=255"`
	Type          string `json:"type" validate:"required"`
	Price         int    `json:"price" validate:"required,min=0"`
	DiscountPrice int    `json:"discount_price" validate:"min=0"`
	Stock         int    `json:"stock" validate:"min=0"`
	Location      string `json:"location" validate:"max=255"`
	IsPublished   bool   `json:"is_published"`
}

type updateProductRequest struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=255"`
	Type          *string `json:"type"`
	Price         *int    `json:"price" validate:"omitempty,min=0"`
	DiscountPrice *int    `json:"discount_price" validate:"omitempty,min=0"`
}

// ProductCreate registers a listing, seeding its inventory row.
func ProductCreate(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productType, err := enums.ParseProductType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product type"))
			return
		}

		created, err := svc.CreateProduct(r.Context(), shopID, catalogsvc.CreateProductInput{
			Name:          payload.Name,
			Type:          productType,
			Price:         payload.Price,
			DiscountPrice: payload.DiscountPrice,
			Stock:         payload.Stock,
			Location:      payload.Location,
			IsPublished:   payload.IsPublished,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// ProductUpdate applies partial changes to one of the shop's listings.
func ProductUpdate(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := pathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := catalogsvc.UpdateProductInput{
			Name:          payload.Name,
			Price:         payload.Price,
			DiscountPrice: payload.DiscountPrice,
		}
		if payload.Type != nil {
			productType, err := enums.ParseProductType(*payload.Type)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product type"))
				return
			}
			input.Type = &productType
		}

		updated, err := svc.UpdateProduct(r.Context(), shopID, productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// ProductPublish toggles a listing's storefront visibility.
func ProductPublish(svc catalogsvc.Service, logg *logger.Logger, publish bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := pathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if publish {
			err = svc.PublishProduct(r.Context(), shopID, productID)
		} else {
			err = svc.UnpublishProduct(r.Context(), shopID, productID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"is_published": publish})
	}
}

// ProductGet returns one published listing for storefront reads.
func ProductGet(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := pathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.GetPublishedProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// ProductList returns every listing owned by the merchant's shop.
func ProductList(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListShopProducts(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
