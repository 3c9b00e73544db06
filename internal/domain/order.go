package domain

import "time"

// OrderStatus enumerates the closed set of lifecycle states for an order.
type OrderStatus string

const (
	// OrderStatusPlaced is the initial status assigned at creation time.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusProcessing indicates the order has been picked up for fulfilment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal; a delivered order can never be cancelled.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal; stock has been restored.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// NextStatus returns the admin-driven successor status, if any. The lifecycle
// is linear: placed → processing → shipped → delivered.
func (s OrderStatus) NextStatus() (OrderStatus, bool) {
	switch s {
	case OrderStatusPlaced:
		return OrderStatusProcessing, true
	case OrderStatusProcessing:
		return OrderStatusShipped, true
	case OrderStatusShipped:
		return OrderStatusDelivered, true
	default:
		return "", false
	}
}

// Terminal reports whether the status admits no further transition at all.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusProcessing, OrderStatusShipped:
		return true
	default:
		return false
	}
}

// Address captures the shipping destination snapshot stored on an order.
// All fields are required at order creation.
type Address struct {
	Street     string
	City       string
	PostalCode string
	Country    string
}

// OrderLine is the immutable snapshot of a purchased product. Name and unit
// price are captured at creation and never recomputed, even if the catalog
// entry changes later.
type OrderLine struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int64
}

// LineTotal returns the extended price for the line in minor units.
func (l OrderLine) LineTotal() int64 {
	return l.UnitPrice * l.Quantity
}

// OrderTotals is the persisted price breakdown in integer minor units.
type OrderTotals struct {
	Items    int64
	Discount int64
	Tax      int64
	Shipping int64
	Total    int64
}

// StatusChange is one entry of the append-only status history. The last entry
// always matches the order's current status.
type StatusChange struct {
	Status OrderStatus
	At     time.Time
}

// PaymentResult stores the opaque gateway response attached after payment.
type PaymentResult struct {
	IntentID string
	Status   string
	Email    string
}

// Order is the durable record of a placed purchase. It is owned exclusively
// by the order engine once created and is never deleted.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        string
	Lines         []OrderLine
	ShippingAddr  Address
	PaymentMethod string
	PaymentResult *PaymentResult
	Totals        OrderTotals
	CouponCode    *string
	Status        OrderStatus
	StatusHistory []StatusChange
	IsPaid        bool
	PaidAt        *time.Time
	IsDelivered   bool
	DeliveredAt   *time.Time
	CancelledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
