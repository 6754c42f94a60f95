package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem freezes a cart line item onto an order.
type OrderLineItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ShopID        uuid.UUID `gorm:"column:shop_id;type:uuid;not null"`
	Name          string    `gorm:"column:name;not null"`
	Price         int       `gorm:"column:price;not null"`
	DiscountPrice int       `gorm:"column:discount_price;not null;default:0"`
	Quantity      int       `gorm:"column:quantity;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
