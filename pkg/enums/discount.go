package enums

import "fmt"

// DiscountType selects how a discount value is applied to a subtotal.
type DiscountType string

const (
	DiscountTypeFixed      DiscountType = "fixed"
	DiscountTypePercentage DiscountType = "percentage"
)

var validDiscountTypes = []DiscountType{
	DiscountTypeFixed,
	DiscountTypePercentage,
}

// String implements fmt.Stringer.
func (d DiscountType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DiscountType.
func (d DiscountType) IsValid() bool {
	for _, candidate := range validDiscountTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDiscountType converts raw input into a DiscountType.
func ParseDiscountType(value string) (DiscountType, error) {
	for _, candidate := range validDiscountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}

// DiscountAppliesTo scopes which products count toward a discount.
type DiscountAppliesTo string

const (
	DiscountAppliesToAll      DiscountAppliesTo = "all"
	DiscountAppliesToSpecific DiscountAppliesTo = "specific"
)

var validDiscountAppliesTo = []DiscountAppliesTo{
	DiscountAppliesToAll,
	DiscountAppliesToSpecific,
}

// String implements fmt.Stringer.
func (d DiscountAppliesTo) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DiscountAppliesTo.
func (d DiscountAppliesTo) IsValid() bool {
	for _, candidate := range validDiscountAppliesTo {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDiscountAppliesTo converts raw input into a DiscountAppliesTo.
func ParseDiscountAppliesTo(value string) (DiscountAppliesTo, error) {
	for _, candidate := range validDiscountAppliesTo {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount scope %q", value)
}
