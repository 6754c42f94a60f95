package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks the sellable stock for one product. Stock only moves
// through conditional updates that keep it non-negative.
type InventoryItem struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	ShopID    uuid.UUID `gorm:"column:shop_id;type:uuid;not null"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	Location  string    `gorm:"column:location;not null;default:'unknown'"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
