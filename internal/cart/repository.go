package cart

import (
	"context"
	"encoding/json"
	stdErrors "errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopmesh-io/backend/pkg/db/models"
	"github.com/shopmesh-io/backend/pkg/enums"
	pkgerrors "github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/types"
)

// TotalsDelta is one atomic adjustment to a cart's running totals. GrandTotal
// moves by Subtotal - SaleDiscount - Voucher, so callers only state the parts.
type TotalsDelta struct {
	Subtotal     int
	SaleDiscount int
	Voucher      int
	ProductCount int
}

// Repository persists carts, their per-shop orders, and line items. Totals and
// quantities only move through guarded increment statements; nothing here
// recomputes an aggregate from its rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindActiveByUser loads the user's active cart with orders and items.
func (r *Repository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Orders.Products").
		First(&cart, "user_id = ? AND state = ?", userID, enums.CartStateActive).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active cart for user")
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindByIDAndUser loads a cart owned by the user, with orders and items.
func (r *Repository) FindByIDAndUser(ctx context.Context, cartID, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Orders.Products").
		First(&cart, "id = ? AND user_id = ?", cartID, userID).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts a fresh active cart for the user.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart := &models.Cart{
		ID:     uuid.New(),
		UserID: userID,
		State:  enums.CartStateActive,
	}
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

// EnsureOrder inserts the per-shop order row if it does not exist yet.
func (r *Repository) EnsureOrder(ctx context.Context, cartID, shopID uuid.UUID) error {
	order := &models.CartOrder{
		ID:     uuid.New(),
		CartID: cartID,
		ShopID: shopID,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cart_id"}, {Name: "shop_id"}},
			DoNothing: true,
		}).
		Create(order).Error
}

// FindLineItem loads one line item by its (cart, shop, product) key.
func (r *Repository) FindLineItem(ctx context.Context, cartID, shopID, productID uuid.UUID) (*models.CartLineItem, error) {
	var item models.CartLineItem
	err := r.db.WithContext(ctx).
		First(&item, "cart_id = ? AND shop_id = ? AND product_id = ?", cartID, shopID, productID).Error
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "line item not found")
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// InsertLineItem adds a new line item row.
func (r *Repository) InsertLineItem(ctx context.Context, item *models.CartLineItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// IncrementLineItemQuantity moves a line item's quantity by delta, addressing
// the row by its (cart, shop, product) key in one conditional statement. Both
// SET expressions read the pre-update row, so previous_quantity records the
// quantity the delta was applied to. The guard refuses deltas that would take
// the quantity to zero or below; removal is an explicit delete.
func (r *Repository) IncrementLineItemQuantity(ctx context.Context, cartID, shopID, productID uuid.UUID, delta int) error {
	result := r.db.WithContext(ctx).
		Model(&models.CartLineItem{}).
		Where("cart_id = ? AND shop_id = ? AND product_id = ? AND quantity + ? > 0",
			cartID, shopID, productID, delta).
		Updates(map[string]any{
			"quantity":          gorm.Expr("quantity + ?", delta),
			"previous_quantity": gorm.Expr("quantity"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "quantity update refused").
			WithDetails(map[string]any{"product_id": productID.String(), "delta": delta})
	}
	return nil
}

// DeleteLineItem removes one line item row.
func (r *Repository) DeleteLineItem(ctx context.Context, cartID, shopID, productID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("cart_id = ? AND shop_id = ? AND product_id = ?", cartID, shopID, productID).
		Delete(&models.CartLineItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "line item not found")
	}
	return nil
}

// DeleteOrderIfEmpty drops the per-shop order only when no line items remain
// for it. The NOT EXISTS guard keeps a concurrent insert from losing its
// parent row.
func (r *Repository) DeleteOrderIfEmpty(ctx context.Context, cartID, shopID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND shop_id = ?", cartID, shopID).
		Where("NOT EXISTS (SELECT 1 FROM cart_line_items WHERE cart_line_items.cart_id = ? AND cart_line_items.shop_id = ?)",
			cartID, shopID).
		Delete(&models.CartOrder{}).Error
}

// IncrementOrderSubtotal moves a shop order's subtotal by delta.
func (r *Repository) IncrementOrderSubtotal(ctx context.Context, cartID, shopID uuid.UUID, delta int) error {
	result := r.db.WithContext(ctx).
		Model(&models.CartOrder{}).
		Where("cart_id = ? AND shop_id = ?", cartID, shopID).
		Update("subtotal", gorm.Expr("subtotal + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart order not found")
	}
	return nil
}

// ApplyTotalsDelta moves the cart's aggregates by the given deltas in one
// statement, keeping grand_total consistent with its parts.
func (r *Repository) ApplyTotalsDelta(ctx context.Context, cartID uuid.UUID, delta TotalsDelta) error {
	grand := delta.Subtotal - delta.SaleDiscount - delta.Voucher
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"order_subtotal": gorm.Expr("order_subtotal + ?", delta.Subtotal),
			"sale_discount":  gorm.Expr("sale_discount + ?", delta.SaleDiscount),
			"voucher_total":  gorm.Expr("voucher_total + ?", delta.Voucher),
			"grand_total":    gorm.Expr("grand_total + ?", grand),
			"product_count":  gorm.Expr("product_count + ?", delta.ProductCount),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return nil
}

// SetOrderCoupon stores or clears the coupon snapshot on a shop order. The
// snapshot is marshalled here because a single-column update does not run the
// model's json serializer.
func (r *Repository) SetOrderCoupon(ctx context.Context, cartID, shopID uuid.UUID, coupon *types.AppliedCoupon) error {
	var value any
	if coupon != nil {
		raw, err := json.Marshal(coupon)
		if err != nil {
			return err
		}
		value = string(raw)
	}
	result := r.db.WithContext(ctx).
		Model(&models.CartOrder{}).
		Where("cart_id = ? AND shop_id = ?", cartID, shopID).
		Update("coupon", value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart order not found")
	}
	return nil
}

// MarkState transitions the cart out of active. The state guard makes the
// transition single-shot under concurrent checkouts.
func (r *Repository) MarkState(ctx context.Context, cartID uuid.UUID, state enums.CartState) error {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND state = ?", cartID, enums.CartStateActive).
		Update("state", state)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "cart already processed")
	}
	return nil
}

// Reactivate returns a completed cart to active so an aborted checkout hands
// the cart back to the user instead of consuming it.
func (r *Repository) Reactivate(ctx context.Context, cartID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND state = ?", cartID, enums.CartStateCompleted).
		Update("state", enums.CartStateActive)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "cart is not awaiting reactivation")
	}
	return nil
}

// Delete removes the cart together with its orders and items.
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("cart_id = ?", cartID).Delete(&models.CartLineItem{}).Error; err != nil {
		return err
	}
	if err := conn.Where("cart_id = ?", cartID).Delete(&models.CartOrder{}).Error; err != nil {
		return err
	}
	return conn.Delete(&models.Cart{}, "id = ?", cartID).Error
}
