package types

import (
	"github.com/google/uuid"

	"github.com/shopmesh-io/backend/pkg/enums"
)

// AppliedCoupon is the coupon snapshot embedded on a cart's shop order while
// the discount allocation is pending. AppliedAmount is persisted so that
// cancellation can reverse the cart totals exactly.
type AppliedCoupon struct {
	DiscountID    uuid.UUID          `json:"discount_id"`
	Type          enums.DiscountType `json:"type"`
	Value         int                `json:"value"`
	Code          string             `json:"code"`
	AppliedAmount int                `json:"applied_amount"`
}
