package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopnetic/api/internal/domain"
	"github.com/shopnetic/api/internal/platform/httpx"
	"github.com/shopnetic/api/internal/services"
)

type orderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type addressRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type createOrderRequest struct {
	Lines         []orderLineRequest `json:"lines"`
	ShippingAddr  addressRequest     `json:"shippingAddress"`
	PaymentMethod string             `json:"paymentMethod"`
	CouponCode    *string            `json:"couponCode"`
	Tax           int64              `json:"tax"`
	Shipping      int64              `json:"shipping"`
}

type orderLinePayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int64  `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

type orderTotalsPayload struct {
	Items    int64 `json:"items"`
	Discount int64 `json:"discount"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type statusChangePayload struct {
	Status string `json:"status"`
	At     string `json:"at"`
}

type paymentResultPayload struct {
	IntentID string `json:"intentId"`
	Status   string `json:"status"`
	Email    string `json:"email,omitempty"`
}

type orderPayload struct {
	ID            string                `json:"id"`
	OrderNumber   string                `json:"orderNumber"`
	UserID        string                `json:"userId"`
	Status        string                `json:"status"`
	Lines         []orderLinePayload    `json:"lines"`
	ShippingAddr  addressRequest        `json:"shippingAddress"`
	PaymentMethod string                `json:"paymentMethod"`
	PaymentResult *paymentResultPayload `json:"paymentResult,omitempty"`
	Totals        orderTotalsPayload    `json:"totals"`
	CouponCode    *string               `json:"couponCode,omitempty"`
	StatusHistory []statusChangePayload `json:"statusHistory"`
	IsPaid        bool                  `json:"isPaid"`
	PaidAt        string                `json:"paidAt,omitempty"`
	IsDelivered   bool                  `json:"isDelivered"`
	DeliveredAt   string                `json:"deliveredAt,omitempty"`
	CancelledAt   string                `json:"cancelledAt,omitempty"`
	CreatedAt     string                `json:"createdAt"`
	UpdatedAt     string                `json:"updatedAt"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type cancelOrderResponse struct {
	Order          orderPayload `json:"order"`
	Replayed       bool         `json:"replayed"`
	RestockedLines []string     `json:"restockedLines,omitempty"`
	SkippedLines   []string     `json:"skippedLines,omitempty"`
}

// OrderHandlers exposes the order endpoints for authenticated users.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	requester, ok := requesterFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	lines := make([]services.OrderLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.OrderLineInput{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}

	order, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		Requester: requester,
		Lines:     lines,
		ShippingAddr: domain.Address{
			Street:     strings.TrimSpace(req.ShippingAddr.Street),
			City:       strings.TrimSpace(req.ShippingAddr.City),
			PostalCode: strings.TrimSpace(req.ShippingAddr.PostalCode),
			Country:    strings.TrimSpace(req.ShippingAddr.Country),
		},
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		CouponCode:    req.CouponCode,
		Tax:           req.Tax,
		Shipping:      req.Shipping,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	requester, ok := requesterFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, services.ListOrdersCommand{
		Requester: requester,
		Pager:     pager,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	requester, ok := requesterFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		Requester: requester,
		OrderID:   orderID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	requester, ok := requesterFromContext(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	result, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		Requester: requester,
		OrderID:   orderID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, cancelOrderResponse{
		Order:          buildOrderPayload(result.Order),
		Replayed:       result.Replayed,
		RestockedLines: result.RestockedLines,
		SkippedLines:   result.SkippedLines,
	})
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Lines:       make([]orderLinePayload, 0, len(order.Lines)),
		ShippingAddr: addressRequest{
			Street:     order.ShippingAddr.Street,
			City:       order.ShippingAddr.City,
			PostalCode: order.ShippingAddr.PostalCode,
			Country:    order.ShippingAddr.Country,
		},
		PaymentMethod: order.PaymentMethod,
		Totals: orderTotalsPayload{
			Items:    order.Totals.Items,
			Discount: order.Totals.Discount,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		CouponCode:    order.CouponCode,
		StatusHistory: make([]statusChangePayload, 0, len(order.StatusHistory)),
		IsPaid:        order.IsPaid,
		PaidAt:        formatTimePtr(order.PaidAt),
		IsDelivered:   order.IsDelivered,
		DeliveredAt:   formatTimePtr(order.DeliveredAt),
		CancelledAt:   formatTimePtr(order.CancelledAt),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}

	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal(),
		})
	}
	for _, change := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusChangePayload{
			Status: string(change.Status),
			At:     formatTime(change.At),
		})
	}
	if order.PaymentResult != nil {
		payload.PaymentResult = &paymentResultPayload{
			IntentID: order.PaymentResult.IntentID,
			Status:   order.PaymentResult.Status,
			Email:    order.PaymentResult.Email,
		}
	}
	return payload
}

func buildOrderListResponse(page domain.CursorPage[domain.Order]) orderListResponse {
	response := orderListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		response.Orders = append(response.Orders, buildOrderPayload(order))
	}
	return response
}
