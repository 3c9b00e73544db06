package repositories

import (
	"context"
	"time"

	domain "github.com/shopnetic/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderCreateRequest carries the fully priced order the coordinator persists.
// Lines, totals and the applied coupon are computed by the checkout service
// before the transaction starts; the repository only re-verifies stock.
type OrderCreateRequest struct {
	OrderID       string
	OrderNumber   string
	UserID        string
	Lines         []domain.OrderLine
	ShippingAddr  domain.Address
	PaymentMethod string
	Totals        domain.OrderTotals
	CouponCode    *string
	Now           time.Time
}

// OrderStatusUpdateRequest advances an order to its next lifecycle status.
// Expected guards against concurrent transitions: the update aborts with a
// conflict when the stored status no longer matches.
type OrderStatusUpdateRequest struct {
	OrderID  string
	Expected domain.OrderStatus
	Next     domain.OrderStatus
	Now      time.Time
}

// OrderCancelRequest cancels an order and restores stock for its lines.
type OrderCancelRequest struct {
	OrderID string
	Now     time.Time
}

// OrderCancelResult reports the cancelled order plus which lines had their
// stock restored. AlreadyCancelled is set when the cancel was a no-op replay.
type OrderCancelResult struct {
	Order            domain.Order
	RestockedLines   []string
	SkippedLines     []string
	AlreadyCancelled bool
}

// OrderListQuery filters the admin-facing order listing.
type OrderListQuery struct {
	Status *domain.OrderStatus
	UserID string
	Pager  domain.Pagination
}

// OrderRepository persists orders and owns the transactional coupling between
// order inserts and stock mutations.
type OrderRepository interface {
	Create(ctx context.Context, req OrderCreateRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, query OrderListQuery) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, req OrderStatusUpdateRequest) (domain.Order, error)
	Cancel(ctx context.Context, req OrderCancelRequest) (OrderCancelResult, error)
	SetPaymentResult(ctx context.Context, orderID string, result domain.PaymentResult, now time.Time) (domain.Order, error)
}

// CatalogRepository reads product records for pricing and stock checks.
type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (domain.Product, error)
	FindProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// CouponRepository resolves coupon codes to discount rules.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
}

// CounterRepository hands out monotonically increasing sequence values used
// for human readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}
