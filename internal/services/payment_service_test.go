package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shopnetic/api/internal/domain"
	"github.com/shopnetic/api/internal/payments"
	"github.com/shopnetic/api/internal/repositories"
)

type stubPaymentProvider struct {
	createFn func(context.Context, payments.IntentRequest) (payments.Intent, error)
	getFn    func(context.Context, string) (payments.Intent, error)
}

func (s *stubPaymentProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return payments.Intent{}, errors.New("not implemented")
}

func (s *stubPaymentProvider) GetIntent(ctx context.Context, intentID string) (payments.Intent, error) {
	if s.getFn != nil {
		return s.getFn(ctx, intentID)
	}
	return payments.Intent{}, errors.New("not implemented")
}

func newTestPaymentService(t *testing.T, orders *stubOrderRepo, provider payments.Provider, publisher OrderEventPublisher) PaymentService {
	t.Helper()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:          orders,
		Provider:        provider,
		Events:          publisher,
		Currency:        "usd",
		MinChargeAmount: 50,
		Clock:           testClock(),
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return svc
}

func payableOrder(id string) domain.Order {
	return domain.Order{
		ID:     id,
		UserID: "user_1",
		Status: domain.OrderStatusPlaced,
		Totals: domain.OrderTotals{Items: 11500, Total: 11500},
	}
}

func TestCreatePaymentIntentChargesOrderTotal(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return payableOrder(orderID), nil
		},
	}
	var captured payments.IntentRequest
	provider := &stubPaymentProvider{
		createFn: func(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
			captured = req
			return payments.Intent{
				ID:           "pi_1",
				ClientSecret: "pi_1_secret",
				Status:       payments.StatusPending,
				Amount:       req.Amount,
				Currency:     req.Currency,
			}, nil
		},
	}
	svc := newTestPaymentService(t, orders, provider, nil)

	intent, err := svc.CreatePaymentIntent(context.Background(), CreatePaymentIntentCommand{
		Requester:    Requester{UserID: "user_1"},
		OrderID:      "ord_1",
		ReceiptEmail: "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if captured.Amount != 11500 || captured.Currency != "USD" {
		t.Errorf("unexpected charge %+v", captured)
	}
	if captured.ReceiptEmail != "buyer@example.com" || captured.OrderID != "ord_1" {
		t.Errorf("request metadata lost: %+v", captured)
	}
	if intent.ID != "pi_1" || intent.ClientSecret != "pi_1_secret" {
		t.Errorf("unexpected intent %+v", intent)
	}
}

func TestCreatePaymentIntentRejectsWrongStates(t *testing.T) {
	cases := map[string]struct {
		order   domain.Order
		wantErr error
	}{
		"cancelled order": {
			order:   domain.Order{ID: "ord_1", UserID: "user_1", Status: domain.OrderStatusCancelled, Totals: domain.OrderTotals{Total: 1000}},
			wantErr: ErrPaymentInvalidState,
		},
		"already paid": {
			order:   domain.Order{ID: "ord_1", UserID: "user_1", Status: domain.OrderStatusProcessing, IsPaid: true, Totals: domain.OrderTotals{Total: 1000}},
			wantErr: ErrPaymentInvalidState,
		},
		"below minimum": {
			order:   domain.Order{ID: "ord_1", UserID: "user_1", Status: domain.OrderStatusPlaced, Totals: domain.OrderTotals{Total: 10}},
			wantErr: ErrPaymentAmountTooSmall,
		},
	}

	for name, tc := range cases {
		orders := &stubOrderRepo{
			findFn: func(context.Context, string) (domain.Order, error) {
				return tc.order, nil
			},
		}
		svc := newTestPaymentService(t, orders, &stubPaymentProvider{}, nil)

		_, err := svc.CreatePaymentIntent(context.Background(), CreatePaymentIntentCommand{
			Requester: Requester{UserID: "user_1"},
			OrderID:   "ord_1",
		})
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: expected %v, got %v", name, tc.wantErr, err)
		}
	}
}

func TestCreatePaymentIntentEnforcesOwnership(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return payableOrder(orderID), nil
		},
	}
	svc := newTestPaymentService(t, orders, &stubPaymentProvider{}, nil)

	_, err := svc.CreatePaymentIntent(context.Background(), CreatePaymentIntentCommand{
		Requester: Requester{UserID: "user_2"},
		OrderID:   "ord_1",
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRecordPaymentResultMarksPaidAndPublishes(t *testing.T) {
	paidAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return payableOrder(orderID), nil
		},
		setPaymentFn: func(_ context.Context, orderID string, result domain.PaymentResult, now time.Time) (domain.Order, error) {
			if result.IntentID != "pi_1" || result.Status != "succeeded" {
				t.Errorf("unexpected payment result %+v", result)
			}
			if !now.Equal(paidAt) {
				t.Errorf("unexpected timestamp %v", now)
			}
			order := payableOrder(orderID)
			order.IsPaid = true
			order.PaidAt = &now
			order.PaymentResult = &result
			return order, nil
		},
	}
	publisher := &recordingPublisher{}
	svc := newTestPaymentService(t, orders, &stubPaymentProvider{}, publisher)

	order, err := svc.RecordPaymentResult(context.Background(), RecordPaymentCommand{
		Requester: Requester{UserID: "user_1"},
		OrderID:   "ord_1",
		IntentID:  "pi_1",
		Status:    "succeeded",
		Email:     "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if !order.IsPaid {
		t.Error("expected paid order")
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != orderEventPaid {
		t.Fatalf("expected order.paid event, got %+v", publisher.events)
	}
}

func TestRecordPaymentResultOnCancelledOrder(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			order := payableOrder(orderID)
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
		setPaymentFn: func(context.Context, string, domain.PaymentResult, time.Time) (domain.Order, error) {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorTerminalState, "cancelled", nil)
		},
	}
	svc := newTestPaymentService(t, orders, &stubPaymentProvider{}, nil)

	_, err := svc.RecordPaymentResult(context.Background(), RecordPaymentCommand{
		Requester: Requester{UserID: "user_1"},
		OrderID:   "ord_1",
		IntentID:  "pi_1",
		Status:    "succeeded",
	})
	if !errors.Is(err, ErrOrderTerminalState) {
		t.Fatalf("expected terminal state, got %v", err)
	}
}
