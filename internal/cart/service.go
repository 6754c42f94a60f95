package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopmesh-io/backend/internal/discount"
	"github.com/shopmesh-io/backend/pkg/db/models"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
	"github.com/shopmesh-io/backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	GetPublishedProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
}

type discountValidator interface {
	Validate(ctx context.Context, shopID uuid.UUID, code string, userID uuid.UUID, items []discount.EligibleItem) (*discount.ValidationResult, error)
}

// Service exposes the buyer-facing cart operations. Every mutation adjusts
// totals by the delta of the change inside one transaction; the full cart is
// reloaded only to build the response.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, shopID, productID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, shopID, productID uuid.UUID) (*models.Cart, error)
	ApplyCoupon(ctx context.Context, userID, shopID uuid.UUID, code string) (*models.Cart, error)
	RemoveCoupon(ctx context.Context, userID, shopID uuid.UUID) (*models.Cart, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo      *Repository
	tx        txRunner
	products  productLoader
	discounts discountValidator
	logg      *logger.Logger
}

// NewService constructs a cart service instance.
func NewService(repo *Repository, tx txRunner, products productLoader, discounts discountValidator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if discounts == nil {
		return nil, fmt.Errorf("discount validator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, products: products, discounts: discounts, logg: logg}, nil
}

// GetCart returns the user's active cart, creating an empty one on first use.
func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindActiveByUser(ctx, userID)
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
		return s.repo.Create(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// AddItem puts quantity units of a published product into the cart. A repeat
// add of the same product moves the existing line's quantity instead of
// creating a second line.
func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.products.GetPublishedProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	effective := product.EffectivePrice()
	saleDelta := (product.Price - effective) * quantity

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByUser(ctx, userID)
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			cart, err = repo.Create(ctx, userID)
		}
		if err != nil {
			return err
		}

		if err := repo.EnsureOrder(ctx, cart.ID, product.ShopID); err != nil {
			return err
		}

		_, findErr := repo.FindLineItem(ctx, cart.ID, product.ShopID, productID)
		switch typed := pkgerrors.As(findErr); {
		case findErr == nil:
			if err := repo.IncrementLineItemQuantity(ctx, cart.ID, product.ShopID, productID, quantity); err != nil {
				return err
			}
		case typed != nil && typed.Code() == pkgerrors.CodeNotFound:
			item := &models.CartLineItem{
				ID:            uuid.New(),
				CartID:        cart.ID,
				ShopID:        product.ShopID,
				ProductID:     productID,
				Name:          product.Name,
				Price:         product.Price,
				DiscountPrice: product.DiscountPrice,
				Quantity:      quantity,
			}
			if err := repo.InsertLineItem(ctx, item); err != nil {
				return err
			}
		default:
			return findErr
		}

		if err := repo.IncrementOrderSubtotal(ctx, cart.ID, product.ShopID, effective*quantity); err != nil {
			return err
		}
		return repo.ApplyTotalsDelta(ctx, cart.ID, TotalsDelta{
			Subtotal:     product.Price * quantity,
			SaleDiscount: saleDelta,
			ProductCount: quantity,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.FindActiveByUser(ctx, userID)
}

// UpdateItemQuantity sets a line item to an absolute quantity by applying the
// difference. A target of zero or less removes the line.
func (s *service) UpdateItemQuantity(ctx context.Context, userID, shopID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, shopID, productID)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		item, err := repo.FindLineItem(ctx, cart.ID, shopID, productID)
		if err != nil {
			return err
		}

		delta := quantity - item.Quantity
		if delta == 0 {
			return nil
		}

		if err := repo.IncrementLineItemQuantity(ctx, cart.ID, shopID, productID, delta); err != nil {
			return err
		}

		effective := item.EffectivePrice()
		if err := repo.IncrementOrderSubtotal(ctx, cart.ID, shopID, effective*delta); err != nil {
			return err
		}

		voucherDelta, err := s.capCouponToSubtotal(ctx, repo, cart, shopID, effective*delta)
		if err != nil {
			return err
		}

		return repo.ApplyTotalsDelta(ctx, cart.ID, TotalsDelta{
			Subtotal:     item.Price * delta,
			SaleDiscount: (item.Price - effective) * delta,
			Voucher:      voucherDelta,
			ProductCount: delta,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.FindActiveByUser(ctx, userID)
}

// RemoveItem deletes a line item and backs its contribution out of every
// aggregate. When the shop order empties it is dropped, and any coupon on it
// is reversed with it.
func (s *service) RemoveItem(ctx context.Context, userID, shopID, productID uuid.UUID) (*models.Cart, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		item, err := repo.FindLineItem(ctx, cart.ID, shopID, productID)
		if err != nil {
			return err
		}

		if err := repo.DeleteLineItem(ctx, cart.ID, shopID, productID); err != nil {
			return err
		}

		effective := item.EffectivePrice()
		if err := repo.IncrementOrderSubtotal(ctx, cart.ID, shopID, -effective*item.Quantity); err != nil {
			return err
		}

		voucherDelta, err := s.capCouponToSubtotal(ctx, repo, cart, shopID, -effective*item.Quantity)
		if err != nil {
			return err
		}

		if err := repo.DeleteOrderIfEmpty(ctx, cart.ID, shopID); err != nil {
			return err
		}

		return repo.ApplyTotalsDelta(ctx, cart.ID, TotalsDelta{
			Subtotal:     -item.Price * item.Quantity,
			SaleDiscount: -(item.Price - effective) * item.Quantity,
			Voucher:      voucherDelta,
			ProductCount: -item.Quantity,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.FindActiveByUser(ctx, userID)
}

// ApplyCoupon validates a code against the shop's current order and stores it.
// Applying a second code to the same shop order replaces the first; the two
// amounts never stack.
func (s *service) ApplyCoupon(ctx context.Context, userID, shopID uuid.UUID, code string) (*models.Cart, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		order := findOrder(cart, shopID)
		if order == nil || len(order.Products) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "no items from this shop in cart")
		}

		items := make([]discount.EligibleItem, 0, len(order.Products))
		for _, lineItem := range order.Products {
			items = append(items, discount.EligibleItem{
				ProductID: lineItem.ProductID,
				Subtotal:  lineItem.EffectivePrice() * lineItem.Quantity,
			})
		}

		result, err := s.discounts.Validate(ctx, shopID, code, userID, items)
		if err != nil {
			return err
		}

		previous := 0
		if order.Coupon != nil {
			previous = order.Coupon.AppliedAmount
		}

		coupon := &types.AppliedCoupon{
			DiscountID:    result.Discount.ID,
			Type:          result.Discount.Type,
			Value:         result.Discount.Value,
			Code:          result.Discount.Code,
			AppliedAmount: result.Amount,
		}
		if err := repo.SetOrderCoupon(ctx, cart.ID, shopID, coupon); err != nil {
			return err
		}

		return repo.ApplyTotalsDelta(ctx, cart.ID, TotalsDelta{Voucher: result.Amount - previous})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.FindActiveByUser(ctx, userID)
}

// RemoveCoupon clears the coupon from a shop order and reverses its amount.
func (s *service) RemoveCoupon(ctx context.Context, userID, shopID uuid.UUID) (*models.Cart, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		order := findOrder(cart, shopID)
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart order not found")
		}
		if order.Coupon == nil {
			return nil
		}

		if err := repo.SetOrderCoupon(ctx, cart.ID, shopID, nil); err != nil {
			return err
		}
		return repo.ApplyTotalsDelta(ctx, cart.ID, TotalsDelta{Voucher: -order.Coupon.AppliedAmount})
	})
	if err != nil {
		return nil, err
	}

	return s.repo.FindActiveByUser(ctx, userID)
}

// ClearCart drops the user's active cart entirely.
func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		return repo.Delete(ctx, cart.ID)
	})
}

// capCouponToSubtotal shrinks a shop order's coupon when the order's subtotal
// drops below the applied amount, so the cart's voucher total can never
// outweigh the goods it discounts. Returns the voucher delta to fold into the
// caller's totals update.
func (s *service) capCouponToSubtotal(ctx context.Context, repo *Repository, cart *models.Cart, shopID uuid.UUID, subtotalDelta int) (int, error) {
	order := findOrder(cart, shopID)
	if order == nil || order.Coupon == nil {
		return 0, nil
	}

	newSubtotal := order.Subtotal + subtotalDelta
	if newSubtotal < 0 {
		newSubtotal = 0
	}
	if order.Coupon.AppliedAmount <= newSubtotal {
		return 0, nil
	}

	previous := order.Coupon.AppliedAmount
	if newSubtotal == 0 {
		if err := repo.SetOrderCoupon(ctx, cart.ID, shopID, nil); err != nil {
			return 0, err
		}
		return -previous, nil
	}

	capped := *order.Coupon
	capped.AppliedAmount = newSubtotal
	if err := repo.SetOrderCoupon(ctx, cart.ID, shopID, &capped); err != nil {
		return 0, err
	}
	return newSubtotal - previous, nil
}

func findOrder(cart *models.Cart, shopID uuid.UUID) *models.CartOrder {
	for i := range cart.Orders {
		if cart.Orders[i].ShopID == shopID {
			return &cart.Orders[i]
		}
	}
	return nil
}
