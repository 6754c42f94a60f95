package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopmesh-io/backend/pkg/enums"
)

// Product is the catalog listing consumed by the cart and discount paths.
// DiscountPrice of zero means no line-level sale is running.
type Product struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ShopID        uuid.UUID         `gorm:"column:shop_id;type:uuid;not null;index"`
	Name          string            `gorm:"column:name;not null"`
	Type          enums.ProductType `gorm:"column:type;not null"`
	Price         int               `gorm:"column:price;not null"`
	DiscountPrice int               `gorm:"column:discount_price;not null;default:0"`
	IsPublished   bool              `gorm:"column:is_published;not null;default:false"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectivePrice returns the unit price after any running sale.
func (p Product) EffectivePrice() int {
	if p.DiscountPrice > 0 {
		return p.DiscountPrice
	}
	return p.Price
}
