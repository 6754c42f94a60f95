package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopmesh-io/backend/pkg/enums"
)

// Cart is the per-user aggregate of shop orders and running totals. Totals
// are maintained by atomic increments, never recomputed from scratch, so the
// invariant GrandTotal == OrderSubtotal - SaleDiscount - VoucherTotal must
// hold after every committed mutation.
type Cart struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	State         enums.CartState `gorm:"column:state;not null;default:'active'"`
	OrderSubtotal int             `gorm:"column:order_subtotal;not null;default:0"`
	SaleDiscount  int             `gorm:"column:sale_discount;not null;default:0"`
	VoucherTotal  int             `gorm:"column:voucher_total;not null;default:0"`
	GrandTotal    int             `gorm:"column:grand_total;not null;default:0"`
	ProductCount  int             `gorm:"column:product_count;not null;default:0"`
	Orders        []CartOrder     `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
