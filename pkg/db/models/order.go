package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopmesh-io/backend/pkg/enums"
	"github.com/shopmesh-io/backend/pkg/types"
)

// Order is the persisted result of a successful checkout.
type Order struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	Checkout       types.CheckoutTotals `gorm:"column:checkout;type:jsonb;serializer:json"`
	Shipping       types.ShippingInfo   `gorm:"column:shipping;type:jsonb;serializer:json"`
	Payment        types.PaymentInfo    `gorm:"column:payment;type:jsonb;serializer:json"`
	TrackingNumber string               `gorm:"column:tracking_number;not null"`
	Status         enums.OrderStatus    `gorm:"column:status;not null;default:'pending'"`
	LineItems      []OrderLineItem      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
