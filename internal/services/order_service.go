package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopnetic/api/internal/domain"
	"github.com/shopnetic/api/internal/repositories"
)

const (
	orderEventPlaced        = "order.placed"
	orderEventStatusChanged = "order.status.changed"
	orderEventCancelled     = "order.cancelled"
	orderEventPaid          = "order.paid"

	orderIDPrefix      = "ord_"
	orderNumberCounter = "orders"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the requester is neither owner nor admin.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderTerminalState indicates the order admits no further transitions.
	ErrOrderTerminalState = errors.New("order: terminal state")
	// ErrOrderConflict indicates the operation lost a race and may be retried.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrInsufficientStock indicates a line exceeded available stock at commit
	// time. The chain carries the repository error with product and quantity.
	ErrInsufficientStock = errors.New("order: insufficient stock")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Pricing     *PricingEngine
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	pricing  *PricingEngine
	events   OrderEventPublisher
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + strings.ToLower(ulid.Make().String())
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		counters: deps.Counters,
		pricing:  deps.Pricing,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.Requester.UserID)
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: requester user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must contain at least one line", ErrOrderInvalidInput)
	}
	if err := validateAddress(cmd.ShippingAddr); err != nil {
		return domain.Order{}, err
	}
	if strings.TrimSpace(cmd.PaymentMethod) == "" {
		return domain.Order{}, fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}

	priced, err := s.pricing.PriceOrder(ctx, PriceOrderCommand{
		Lines:      cmd.Lines,
		CouponCode: cmd.CouponCode,
		Tax:        cmd.Tax,
		Shipping:   cmd.Shipping,
	})
	if err != nil {
		return domain.Order{}, mapPricingError(err)
	}

	now := s.clock()
	number, err := s.generateOrderNumber(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.orders.Create(ctx, repositories.OrderCreateRequest{
		OrderID:       s.newID(),
		OrderNumber:   number,
		UserID:        userID,
		Lines:         priced.Lines,
		ShippingAddr:  cmd.ShippingAddr,
		PaymentMethod: strings.TrimSpace(cmd.PaymentMethod),
		Totals:        priced.Totals,
		CouponCode:    priced.AppliedCoupon,
		Now:           now,
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPlaced,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(cmd.Requester, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[domain.Order], error) {
	query := repositories.OrderListQuery{
		Status: cmd.Status,
		Pager:  cmd.Pager,
	}
	if cmd.Requester.IsAdmin {
		query.UserID = strings.TrimSpace(cmd.UserID)
	} else {
		requester := strings.TrimSpace(cmd.Requester.UserID)
		if requester == "" {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: requester user id is required", ErrOrderInvalidInput)
		}
		query.UserID = requester
	}

	page, err := s.orders.List(ctx, query)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (CancelOrderResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return CancelOrderResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return CancelOrderResult{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderAccess(cmd.Requester, order); err != nil {
		return CancelOrderResult{}, err
	}

	now := s.clock()
	cancelled, err := s.orders.Cancel(ctx, repositories.OrderCancelRequest{
		OrderID: orderID,
		Now:     now,
	})
	if err != nil {
		return CancelOrderResult{}, s.mapRepositoryError(err)
	}

	result := CancelOrderResult{
		Order:          cancelled.Order,
		Replayed:       cancelled.AlreadyCancelled,
		RestockedLines: cancelled.RestockedLines,
		SkippedLines:   cancelled.SkippedLines,
	}

	if !result.Replayed {
		if len(result.SkippedLines) > 0 {
			s.logger(ctx, "order.cancel.restock.skipped", map[string]any{
				"order":    cancelled.Order.ID,
				"products": result.SkippedLines,
			})
		}
		s.publishEvent(ctx, OrderEvent{
			Type:           orderEventCancelled,
			OrderID:        cancelled.Order.ID,
			OrderNumber:    cancelled.Order.OrderNumber,
			UserID:         cancelled.Order.UserID,
			PreviousStatus: string(order.Status),
			CurrentStatus:  string(domain.OrderStatusCancelled),
			OccurredAt:     now,
		})
	}

	return result, nil
}

func (s *orderService) AdvanceOrder(ctx context.Context, cmd AdvanceOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	next, ok := order.Status.NextStatus()
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderTerminalState, orderID, order.Status)
	}
	if cmd.TargetStatus != nil && *cmd.TargetStatus != next {
		return domain.Order{}, fmt.Errorf("%w: %s cannot move to %s", ErrOrderInvalidState, order.Status, *cmd.TargetStatus)
	}

	now := s.clock()
	updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdateRequest{
		OrderID:  orderID,
		Expected: order.Status,
		Next:     next,
		Now:      now,
	})
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		UserID:         updated.UserID,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(updated.Status),
		OccurredAt:     now,
	})

	return updated, nil
}

func (s *orderService) generateOrderNumber(ctx context.Context) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", fmt.Errorf("order: allocate order number: %w", err)
	}
	return fmt.Sprintf("SN-%06d", seq), nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapOrderRepositoryError(err)
}

// mapOrderRepositoryError translates typed repository errors into the service
// level sentinels the HTTP layer understands. Stock errors keep their typed
// detail in the chain so handlers can report the shortfall.
func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var catErr *repositories.CatalogError
	if errors.As(err, &catErr) {
		switch catErr.Code {
		case repositories.CatalogErrorProductNotFound:
			return fmt.Errorf("%w: %w", ErrPricingProductNotFound, err)
		case repositories.CatalogErrorInsufficientStock:
			return fmt.Errorf("%w: %w", ErrInsufficientStock, err)
		}
	}

	var ordErr *repositories.OrderError
	if errors.As(err, &ordErr) {
		switch ordErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repositories.OrderErrorStatusConflict, repositories.OrderErrorTxConflict:
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repositories.OrderErrorTerminalState:
			return fmt.Errorf("%w: %v", ErrOrderTerminalState, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func mapPricingError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPricingInvalidInput):
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	default:
		return err
	}
}

func authorizeOrderAccess(requester Requester, order domain.Order) error {
	if requester.IsAdmin {
		return nil
	}
	userID := strings.TrimSpace(requester.UserID)
	if userID == "" || userID != order.UserID {
		return fmt.Errorf("%w: order %s", ErrOrderForbidden, order.ID)
	}
	return nil
}

func validateAddress(addr domain.Address) error {
	switch {
	case strings.TrimSpace(addr.Street) == "":
		return fmt.Errorf("%w: shipping street is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.City) == "":
		return fmt.Errorf("%w: shipping city is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.PostalCode) == "":
		return fmt.Errorf("%w: shipping postal code is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.Country) == "":
		return fmt.Errorf("%w: shipping country is required", ErrOrderInvalidInput)
	}
	return nil
}
