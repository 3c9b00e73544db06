package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopnetic/api/internal/platform/httpx"
	"github.com/shopnetic/api/internal/services"
)

type createIntentRequest struct {
	OrderID      string `json:"orderId"`
	ReceiptEmail string `json:"receiptEmail"`
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type recordPaymentRequest struct {
	OrderID  string `json:"orderId"`
	IntentID string `json:"intentId"`
	Status   string `json:"status"`
	Email    string `json:"email"`
}

// PaymentHandlers exposes the payment endpoints for authenticated users.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/intent", h.createIntent)
	r.Post("/result", h.recordResult)
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	requester, ok := requesterFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var req createIntentRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	intent, err := h.payments.CreatePaymentIntent(ctx, services.CreatePaymentIntentCommand{
		Requester:    requester,
		OrderID:      strings.TrimSpace(req.OrderID),
		ReceiptEmail: strings.TrimSpace(req.ReceiptEmail),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusCreated, intentResponse{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
	})
}

func (h *PaymentHandlers) recordResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	requester, ok := requesterFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var req recordPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	order, err := h.payments.RecordPaymentResult(ctx, services.RecordPaymentCommand{
		Requester: requester,
		OrderID:   strings.TrimSpace(req.OrderID),
		IntentID:  strings.TrimSpace(req.IntentID),
		Status:    strings.TrimSpace(req.Status),
		Email:     strings.TrimSpace(req.Email),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func decodeBody(r *http.Request, target any) error {
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("request body is required")
	}
	return json.Unmarshal(body, target)
}

func writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
}
