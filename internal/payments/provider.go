package payments

import (
	"context"
	"errors"
)

// Status enumerates the normalised payment intent states shared across providers.
type Status string

const (
	// StatusPending indicates the intent awaits customer confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the provider reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the provider reports a terminal failure.
	StatusFailed Status = "failed"
)

// ErrInvalidRequest is returned when the provider rejects the request payload.
var ErrInvalidRequest = errors.New("payments: invalid request")

// IntentRequest captures the payload required to open a payment intent.
type IntentRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	ReceiptEmail   string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the provider handle returned to the client for confirmation.
type Intent struct {
	ID           string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
}

// Provider abstracts the payment gateway used at checkout.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetIntent(ctx context.Context, intentID string) (Intent, error)
}
