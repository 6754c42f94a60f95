package models

import (
	"time"

	"github.com/google/uuid"
)

// CartLineItem is one product entry inside a cart's shop order. ShopID is
// denormalized so quantity updates can address the row by (cart, shop,
// product) in a single conditional statement. PreviousQuantity audits the
// last applied delta.
type CartLineItem struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index:idx_cart_items_cart_shop_product,unique"`
	ShopID           uuid.UUID `gorm:"column:shop_id;type:uuid;not null;index:idx_cart_items_cart_shop_product,unique"`
	ProductID        uuid.UUID `gorm:"column:product_id;type:uuid;not null;index:idx_cart_items_cart_shop_product,unique"`
	Name             string    `gorm:"column:name;not null"`
	Price            int       `gorm:"column:price;not null"`
	DiscountPrice    int       `gorm:"column:discount_price;not null;default:0"`
	Quantity         int       `gorm:"column:quantity;not null"`
	PreviousQuantity int       `gorm:"column:previous_quantity;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectivePrice returns the per-unit price after any line discount.
func (c CartLineItem) EffectivePrice() int {
	if c.DiscountPrice > 0 {
		return c.DiscountPrice
	}
	return c.Price
}
