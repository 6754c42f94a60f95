package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopmesh-io/backend/pkg/types"
)

// CartOrder groups a cart's line items by shop. Subtotal is the sum of
// effective (post line-discount) prices and moves only by deltas.
type CartOrder struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID            `gorm:"column:cart_id;type:uuid;not null;index:idx_cart_orders_cart_shop,unique"`
	ShopID    uuid.UUID            `gorm:"column:shop_id;type:uuid;not null;index:idx_cart_orders_cart_shop,unique"`
	Subtotal  int                  `gorm:"column:subtotal;not null;default:0"`
	Coupon    *types.AppliedCoupon `gorm:"column:coupon;type:jsonb;serializer:json"`
	Products  []CartLineItem       `gorm:"foreignKey:CartID,ShopID;references:CartID,ShopID"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
