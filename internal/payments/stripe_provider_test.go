package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type fakeIntentAPI struct {
	newParams *stripe.PaymentIntentParams
	newResult *stripe.PaymentIntent
	newErr    error

	getID     string
	getResult *stripe.PaymentIntent
	getErr    error
}

func (f *fakeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.newParams = params
	return f.newResult, f.newErr
}

func (f *fakeIntentAPI) Get(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.getID = id
	return f.getResult, f.getErr
}

func TestStripeProviderCreateIntent(t *testing.T) {
	api := &fakeIntentAPI{
		newResult: &stripe.PaymentIntent{
			ID:           "pi_123",
			ClientSecret: "pi_123_secret",
			Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
			Amount:       11500,
			Currency:     stripe.CurrencyUSD,
		},
	}
	provider, err := NewStripeProvider(StripeProviderConfig{Intents: api})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		OrderID:      "ord_1",
		Amount:       11500,
		Currency:     "USD",
		ReceiptEmail: "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if intent.ID != "pi_123" || intent.Status != StatusPending {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.Currency != "USD" {
		t.Fatalf("expected USD, got %s", intent.Currency)
	}

	params := api.newParams
	if params == nil {
		t.Fatal("expected params captured")
	}
	if params.Amount == nil || *params.Amount != 11500 {
		t.Fatalf("unexpected amount %+v", params.Amount)
	}
	if params.Currency == nil || *params.Currency != "usd" {
		t.Fatalf("expected lowercase currency, got %+v", params.Currency)
	}
	if params.IdempotencyKey == nil || *params.IdempotencyKey == "" {
		t.Fatal("expected generated idempotency key")
	}
	if params.Metadata["orderId"] != "ord_1" {
		t.Fatalf("expected order metadata, got %v", params.Metadata)
	}
	if params.ReceiptEmail == nil || *params.ReceiptEmail != "buyer@example.com" {
		t.Fatalf("unexpected receipt email %+v", params.ReceiptEmail)
	}
}

func TestStripeProviderCreateIntentRejectsBadInput(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{Intents: &fakeIntentAPI{}})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 0, Currency: "USD"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for zero amount, got %v", err)
	}
	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 100, Currency: "nope"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for bad currency, got %v", err)
	}
}

func TestStripeProviderMapsStripeErrors(t *testing.T) {
	api := &fakeIntentAPI{
		newErr: &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "amount too small"},
	}
	provider, err := NewStripeProvider(StripeProviderConfig{Intents: api})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = provider.CreateIntent(context.Background(), IntentRequest{Amount: 1, Currency: "USD"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request mapping, got %v", err)
	}
}

func TestStripeProviderGetIntent(t *testing.T) {
	api := &fakeIntentAPI{
		getResult: &stripe.PaymentIntent{
			ID:       "pi_9",
			Status:   stripe.PaymentIntentStatusSucceeded,
			Amount:   500,
			Currency: stripe.CurrencyEUR,
		},
	}
	provider, err := NewStripeProvider(StripeProviderConfig{Intents: api})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	intent, err := provider.GetIntent(context.Background(), "pi_9")
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	if api.getID != "pi_9" {
		t.Fatalf("expected lookup by id, got %q", api.getID)
	}
	if intent.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", intent.Status)
	}
}
