package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/shopnetic/api/internal/domain"
	"github.com/shopnetic/api/internal/payments"
	"github.com/shopnetic/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentInvalidState indicates the order cannot accept a payment.
	ErrPaymentInvalidState = errors.New("payment: invalid order state")
	// ErrPaymentAmountTooSmall indicates the order total is below the gateway minimum.
	ErrPaymentAmountTooSmall = errors.New("payment: amount below minimum charge")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders          repositories.OrderRepository
	Provider        payments.Provider
	Events          OrderEventPublisher
	Currency        string
	MinChargeAmount int64
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders    repositories.OrderRepository
	provider  payments.Provider
	events    OrderEventPublisher
	currency  string
	minCharge int64
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("payment service: payment provider is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:    deps.Orders,
		provider:  deps.Provider,
		events:    deps.Events,
		currency:  currency,
		minCharge: deps.MinChargeAmount,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *paymentService) CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentIntent{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return PaymentIntent{}, mapOrderRepositoryError(err)
	}
	if err := authorizeOrderAccess(cmd.Requester, order); err != nil {
		return PaymentIntent{}, err
	}

	if order.Status == domain.OrderStatusCancelled {
		return PaymentIntent{}, fmt.Errorf("%w: order %s is cancelled", ErrPaymentInvalidState, orderID)
	}
	if order.IsPaid {
		return PaymentIntent{}, fmt.Errorf("%w: order %s is already paid", ErrPaymentInvalidState, orderID)
	}
	if order.Totals.Total < s.minCharge {
		return PaymentIntent{}, fmt.Errorf("%w: total %d is below %d", ErrPaymentAmountTooSmall, order.Totals.Total, s.minCharge)
	}

	intent, err := s.provider.CreateIntent(ctx, payments.IntentRequest{
		OrderID:      order.ID,
		Amount:       order.Totals.Total,
		Currency:     s.currency,
		ReceiptEmail: strings.TrimSpace(cmd.ReceiptEmail),
	})
	if err != nil {
		if errors.Is(err, payments.ErrInvalidRequest) {
			return PaymentIntent{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
		}
		return PaymentIntent{}, fmt.Errorf("payment: create intent: %w", err)
	}

	s.logger(ctx, "payment.intent.created", map[string]any{
		"order":  order.ID,
		"intent": intent.ID,
		"amount": intent.Amount,
	})

	return PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
		Amount:       intent.Amount,
		Currency:     intent.Currency,
	}, nil
}

func (s *paymentService) RecordPaymentResult(ctx context.Context, cmd RecordPaymentCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	intentID := strings.TrimSpace(cmd.IntentID)
	if intentID == "" {
		return domain.Order{}, fmt.Errorf("%w: intent id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapOrderRepositoryError(err)
	}
	if err := authorizeOrderAccess(cmd.Requester, order); err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	updated, err := s.orders.SetPaymentResult(ctx, orderID, domain.PaymentResult{
		IntentID: intentID,
		Status:   strings.TrimSpace(cmd.Status),
		Email:    strings.TrimSpace(cmd.Email),
	}, now)
	if err != nil {
		return domain.Order{}, mapOrderRepositoryError(err)
	}

	if s.events != nil {
		if err := s.events.PublishOrderEvent(ctx, OrderEvent{
			Type:          orderEventPaid,
			OrderID:       updated.ID,
			OrderNumber:   updated.OrderNumber,
			UserID:        updated.UserID,
			CurrentStatus: string(updated.Status),
			OccurredAt:    now,
		}); err != nil {
			s.logger(ctx, "order.event.publish.failed", map[string]any{
				"type":  orderEventPaid,
				"order": updated.ID,
				"error": err.Error(),
			})
		}
	}

	return updated, nil
}
