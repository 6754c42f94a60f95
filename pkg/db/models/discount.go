package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shopmesh-io/backend/pkg/enums"
)

// Discount is a shop-owned coupon code with usage allocation counters.
// UsedCount + PendingCount never exceeds MaxUses when MaxUses is set; the
// guard lives in the conditional UPDATE that moves the counters, not here.
type Discount struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ShopID         uuid.UUID               `gorm:"column:shop_id;type:uuid;not null;index:idx_discounts_shop_code,unique"`
	Code           string                  `gorm:"column:code;not null;index:idx_discounts_shop_code,unique"`
	Name           string                  `gorm:"column:name;not null"`
	Description    string                  `gorm:"column:description"`
	Type           enums.DiscountType      `gorm:"column:type;not null;default:'fixed'"`
	Value          int                     `gorm:"column:value;not null"`
	StartDate      time.Time               `gorm:"column:start_date;not null"`
	EndDate        time.Time               `gorm:"column:end_date;not null"`
	MaxUses        *int                    `gorm:"column:max_uses"`
	UsedCount      int                     `gorm:"column:used_count;not null;default:0"`
	PendingCount   int                     `gorm:"column:pending_count;not null;default:0"`
	MaxUsesPerUser int                     `gorm:"column:max_uses_per_user;not null;default:1"`
	MinOrderValue  int                     `gorm:"column:min_order_value;not null;default:0"`
	AppliesTo      enums.DiscountAppliesTo `gorm:"column:applies_to;not null"`
	ProductIDs     pq.StringArray          `gorm:"column:product_ids;type:text[]"`
	IsActive       bool                    `gorm:"column:is_active;not null"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// AppliesToProduct reports whether the given product counts toward this
// discount's eligible subtotal.
func (d Discount) AppliesToProduct(productID uuid.UUID) bool {
	if d.AppliesTo == enums.DiscountAppliesToAll {
		return true
	}
	id := productID.String()
	for _, candidate := range d.ProductIDs {
		if candidate == id {
			return true
		}
	}
	return false
}
