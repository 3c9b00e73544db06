package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"golang.org/x/text/currency"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Intents  stripePaymentIntentAPI
}

// StripeProvider implements Provider on top of Stripe payment intents.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	clock   func() time.Time
	logger  StripeLogger
	keyGen  func() string
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents: intents,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		keyGen: func() string { return uuid.NewString() },
	}, nil
}

// CreateIntent opens a payment intent for the order total. Each call carries
// an idempotency key so Stripe deduplicates network level retries.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Intent{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	code, err := normalizeCurrency(req.Currency)
	if err != nil {
		return Intent{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(code),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = p.keyGen()
	}
	params.SetIdempotencyKey(key)

	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	if orderID := strings.TrimSpace(req.OrderID); orderID != "" {
		params.AddMetadata("orderId", orderID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	started := p.clock()
	intent, err := p.intents.New(params)
	if err != nil {
		p.logger(ctx, "stripe.intent.create.failed", map[string]any{
			"order": req.OrderID,
			"error": err.Error(),
		})
		return Intent{}, mapStripeError(err)
	}

	p.logger(ctx, "stripe.intent.created", map[string]any{
		"order":     req.OrderID,
		"intent":    intent.ID,
		"amount":    intent.Amount,
		"elapsedMs": p.clock().Sub(started).Milliseconds(),
	})

	return intentFromStripe(intent), nil
}

// GetIntent fetches the current state of an intent for reconciliation.
func (p *StripeProvider) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Intent{}, fmt.Errorf("%w: intent id is required", ErrInvalidRequest)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := p.intents.Get(intentID, params)
	if err != nil {
		return Intent{}, mapStripeError(err)
	}
	return intentFromStripe(intent), nil
}

func intentFromStripe(intent *stripe.PaymentIntent) Intent {
	if intent == nil {
		return Intent{}
	}
	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       statusFromStripe(intent.Status),
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
	}
}

func statusFromStripe(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

func normalizeCurrency(code string) (string, error) {
	code = strings.TrimSpace(code)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: unknown currency %q", ErrInvalidRequest, code)
	}
	return strings.ToLower(unit.String()), nil
}

func mapStripeError(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return fmt.Errorf("%w: %s", ErrInvalidRequest, stripeErr.Msg)
		}
	}
	return fmt.Errorf("stripe: %w", err)
}
