package services

import (
	"context"
	"time"

	domain "github.com/shopnetic/api/internal/domain"
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	OccurredAt     time.Time
}

// Requester identifies the authenticated caller of an order operation.
// Admins see every order; everyone else only their own.
type Requester struct {
	UserID  string
	IsAdmin bool
}

// OrderLineInput is one requested purchase line. Name and price are resolved
// from the catalog, never trusted from the caller.
type OrderLineInput struct {
	ProductID string
	Quantity  int64
}

// PlaceOrderCommand creates a new order for the requester.
type PlaceOrderCommand struct {
	Requester     Requester
	Lines         []OrderLineInput
	ShippingAddr  domain.Address
	PaymentMethod string
	CouponCode    *string
	Tax           int64
	Shipping      int64
}

// GetOrderCommand fetches a single order subject to ownership checks.
type GetOrderCommand struct {
	Requester Requester
	OrderID   string
}

// ListOrdersCommand pages through orders. Status and UserID filters are
// admin-only; regular callers always list their own orders.
type ListOrdersCommand struct {
	Requester Requester
	Status    *domain.OrderStatus
	UserID    string
	Pager     domain.Pagination
}

// CancelOrderCommand cancels an order on behalf of its owner or an admin.
type CancelOrderCommand struct {
	Requester Requester
	OrderID   string
}

// CancelOrderResult reports the cancellation outcome. Replayed reports a
// cancel of an already cancelled order, which is accepted and changes nothing.
type CancelOrderResult struct {
	Order          domain.Order
	Replayed       bool
	RestockedLines []string
	SkippedLines   []string
}

// AdvanceOrderCommand moves an order one step along the fulfilment lifecycle.
// When TargetStatus is set it must match the single legal successor.
type AdvanceOrderCommand struct {
	OrderID      string
	TargetStatus *domain.OrderStatus
}

// OrderService exposes the order lifecycle operations behind the HTTP surface.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (domain.Order, error)
	ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[domain.Order], error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (CancelOrderResult, error)
	AdvanceOrder(ctx context.Context, cmd AdvanceOrderCommand) (domain.Order, error)
}

// CreatePaymentIntentCommand asks the payment gateway for a new intent
// covering the order total.
type CreatePaymentIntentCommand struct {
	Requester    Requester
	OrderID      string
	ReceiptEmail string
}

// PaymentIntent is the gateway handle returned to the client for confirmation.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
}

// RecordPaymentCommand attaches a completed gateway result to the order.
type RecordPaymentCommand struct {
	Requester Requester
	OrderID   string
	IntentID  string
	Status    string
	Email     string
}

// PaymentService bridges orders and the payment gateway.
type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
	RecordPaymentResult(ctx context.Context, cmd RecordPaymentCommand) (domain.Order, error)
}
