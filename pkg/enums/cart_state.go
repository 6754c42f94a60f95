package enums

import "fmt"

// CartState tracks the lifecycle of a user's cart.
type CartState string

const (
	CartStateActive    CartState = "active"
	CartStateCompleted CartState = "completed"
	CartStateAbandoned CartState = "abandoned"
)

var validCartStates = []CartState{
	CartStateActive,
	CartStateCompleted,
	CartStateAbandoned,
}

// String implements fmt.Stringer.
func (c CartState) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartState.
func (c CartState) IsValid() bool {
	for _, candidate := range validCartStates {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCartState converts raw input into a CartState.
func ParseCartState(value string) (CartState, error) {
	for _, candidate := range validCartStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart state %q", value)
}
