package models

import (
	"time"

	"github.com/google/uuid"
)

// DiscountUsage is the per-user allocation multiset for a discount code:
// one row per (discount, user) with explicit counters instead of duplicate
// membership entries, so per-user caps are checked against a number rather
// than list length.
type DiscountUsage struct {
	DiscountID   uuid.UUID `gorm:"column:discount_id;type:uuid;not null;primaryKey"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;primaryKey"`
	UsedCount    int       `gorm:"column:used_count;not null;default:0"`
	PendingCount int       `gorm:"column:pending_count;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
