package firestore

import (
	"time"

	domain "github.com/shopnetic/api/internal/domain"
	"github.com/shopnetic/api/internal/repositories"
)

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int64  `firestore:"quantity"`
}

type addressDocument struct {
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type totalsDocument struct {
	Items    int64 `firestore:"items"`
	Discount int64 `firestore:"discount"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type statusChangeDocument struct {
	Status string    `firestore:"status"`
	At     time.Time `firestore:"at"`
}

type paymentResultDocument struct {
	IntentID string `firestore:"intentId"`
	Status   string `firestore:"status"`
	Email    string `firestore:"email"`
}

type orderDocument struct {
	OrderNumber   string                 `firestore:"orderNumber"`
	UserID        string                 `firestore:"userId"`
	Lines         []orderLineDocument    `firestore:"lines"`
	ShippingAddr  addressDocument        `firestore:"shippingAddress"`
	PaymentMethod string                 `firestore:"paymentMethod"`
	PaymentResult *paymentResultDocument `firestore:"paymentResult"`
	Totals        totalsDocument         `firestore:"totals"`
	CouponCode    *string                `firestore:"couponCode"`
	Status        string                 `firestore:"status"`
	StatusHistory []statusChangeDocument `firestore:"statusHistory"`
	IsPaid        bool                   `firestore:"isPaid"`
	PaidAt        *time.Time             `firestore:"paidAt"`
	IsDelivered   bool                   `firestore:"isDelivered"`
	DeliveredAt   *time.Time             `firestore:"deliveredAt"`
	CancelledAt   *time.Time             `firestore:"cancelledAt"`
	CreatedAt     time.Time              `firestore:"createdAt"`
	UpdatedAt     time.Time              `firestore:"updatedAt"`
}

func orderDocumentFromRequest(req repositories.OrderCreateRequest, now time.Time) orderDocument {
	lines := make([]orderLineDocument, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, orderLineDocument{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return orderDocument{
		OrderNumber: req.OrderNumber,
		UserID:      req.UserID,
		Lines:       lines,
		ShippingAddr: addressDocument{
			Street:     req.ShippingAddr.Street,
			City:       req.ShippingAddr.City,
			PostalCode: req.ShippingAddr.PostalCode,
			Country:    req.ShippingAddr.Country,
		},
		PaymentMethod: req.PaymentMethod,
		Totals: totalsDocument{
			Items:    req.Totals.Items,
			Discount: req.Totals.Discount,
			Tax:      req.Totals.Tax,
			Shipping: req.Totals.Shipping,
			Total:    req.Totals.Total,
		},
		CouponCode: req.CouponCode,
		Status:     string(domain.OrderStatusPlaced),
		StatusHistory: []statusChangeDocument{
			{Status: string(domain.OrderStatusPlaced), At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, 0, len(d.Lines))
	for _, line := range d.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	history := make([]domain.StatusChange, 0, len(d.StatusHistory))
	for _, change := range d.StatusHistory {
		history = append(history, domain.StatusChange{
			Status: domain.OrderStatus(change.Status),
			At:     change.At,
		})
	}

	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Lines:       lines,
		ShippingAddr: domain.Address{
			Street:     d.ShippingAddr.Street,
			City:       d.ShippingAddr.City,
			PostalCode: d.ShippingAddr.PostalCode,
			Country:    d.ShippingAddr.Country,
		},
		PaymentMethod: d.PaymentMethod,
		Totals: domain.OrderTotals{
			Items:    d.Totals.Items,
			Discount: d.Totals.Discount,
			Tax:      d.Totals.Tax,
			Shipping: d.Totals.Shipping,
			Total:    d.Totals.Total,
		},
		CouponCode:    d.CouponCode,
		Status:        domain.OrderStatus(d.Status),
		StatusHistory: history,
		IsPaid:        d.IsPaid,
		PaidAt:        d.PaidAt,
		IsDelivered:   d.IsDelivered,
		DeliveredAt:   d.DeliveredAt,
		CancelledAt:   d.CancelledAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.PaymentResult != nil {
		order.PaymentResult = &domain.PaymentResult{
			IntentID: d.PaymentResult.IntentID,
			Status:   d.PaymentResult.Status,
			Email:    d.PaymentResult.Email,
		}
	}
	return order
}

type productDocument struct {
	Name         string    `firestore:"name"`
	UnitPrice    int64     `firestore:"unitPrice"`
	CountInStock int64     `firestore:"countInStock"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         d.Name,
		UnitPrice:    d.UnitPrice,
		CountInStock: d.CountInStock,
		UpdatedAt:    d.UpdatedAt,
	}
}

type couponDocument struct {
	Kind    string `firestore:"kind"`
	Amount  int64  `firestore:"amount"`
	Percent int64  `firestore:"percent"`
	Active  bool   `firestore:"active"`
}

func (d couponDocument) toDomain(code string) domain.Coupon {
	return domain.Coupon{
		Code:    code,
		Kind:    domain.CouponKind(d.Kind),
		Amount:  d.Amount,
		Percent: d.Percent,
		Active:  d.Active,
	}
}
