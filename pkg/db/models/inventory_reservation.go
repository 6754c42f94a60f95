package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryReservation is an append-only audit record of a stock decrement.
// Restocked flips exactly once when the reservation is compensated, which
// makes restocking idempotent per reservation rather than per quantity.
type InventoryReservation struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
	Restocked bool      `gorm:"column:restocked;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
