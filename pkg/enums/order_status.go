package enums

import "fmt"

// OrderStatus tracks the lifecycle of a storefront order.
type OrderStatus string

const (
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusReturnRequested OrderStatus = "return requested"
	OrderStatusReturned        OrderStatus = "returned"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusReturnRequested,
	OrderStatusReturned,
	OrderStatusCancelled,
}

// orderTransitions lists the statuses reachable from each state.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing:      {OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusShipped:         {OrderStatusDelivered, OrderStatusReturnRequested, OrderStatusCancelled},
	OrderStatusDelivered:       {OrderStatusReturnRequested, OrderStatusReturned, OrderStatusCancelled},
	OrderStatusReturnRequested: {OrderStatusDelivered, OrderStatusReturned, OrderStatusCancelled},
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are accepted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// CanTransitionTo reports whether next is reachable from s. Re-asserting the
// current non-terminal status is allowed so admins can annotate tracking.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return !s.IsTerminal()
	}
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus. Underscored forms
// such as "return_requested" are accepted for query-string friendliness.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	if value == "return_requested" {
		return OrderStatusReturnRequested, nil
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
