package firestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	platform "github.com/shopnetic/api/internal/platform/firestore"
	domain "github.com/shopnetic/api/internal/domain"
	"github.com/shopnetic/api/internal/repositories"
)

const (
	ordersCollection   = "orders"
	productsCollection = "products"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderRepository persists orders in Firestore. Order creation and
// cancellation mutate product stock inside the same transaction, so a
// committed order implies the decrement happened exactly once.
type OrderRepository struct {
	provider *platform.Provider
	base     *platform.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore backed order repository.
func NewOrderRepository(provider *platform.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: provider is required")
	}
	return &OrderRepository{
		provider: provider,
		base:     platform.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
	}, nil
}

// Create inserts the order and decrements stock for every line in one
// transaction. All product reads happen before any write; a shortfall on any
// line aborts the whole transaction.
func (r *OrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
	if err := validateCreateRequest(req); err != nil {
		return domain.Order{}, err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.create", err)
	}

	now := req.Now.UTC()
	doc := orderDocumentFromRequest(req, now)
	orderRef := client.Collection(ordersCollection).Doc(req.OrderID)

	required := requiredQuantities(req.Lines)

	err = platform.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		type stockRead struct {
			ref      *firestore.DocumentRef
			doc      productDocument
			quantity int64
		}
		reads := make([]stockRead, 0, len(required))

		for _, entry := range required {
			ref := client.Collection(productsCollection).Doc(entry.productID)
			snap, err := tx.Get(ref)
			if err != nil {
				if isNotFound(err) {
					return repositories.NewProductNotFoundError(entry.productID, err)
				}
				return platform.WrapError("orders.create", err)
			}
			var product productDocument
			if err := snap.DataTo(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", entry.productID, err)
			}
			if product.CountInStock < entry.quantity {
				return repositories.NewInsufficientStockError(entry.productID, product.CountInStock)
			}
			reads = append(reads, stockRead{ref: ref, doc: product, quantity: entry.quantity})
		}

		for _, read := range reads {
			if err := tx.Update(read.ref, []firestore.Update{
				{Path: "countInStock", Value: read.doc.CountInStock - read.quantity},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return platform.WrapError("orders.create", err)
			}
		}

		if err := tx.Create(orderRef, doc); err != nil {
			return platform.WrapError("orders.create", err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.create", err)
	}

	return doc.toDomain(req.OrderID), nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of orders ordered by creation time, newest first.
func (r *OrderRepository) List(ctx context.Context, query repositories.OrderListQuery) (domain.CursorPage[domain.Order], error) {
	pageSize := query.Pager.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	token, err := decodeOrderPageToken(query.Pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(query.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if query.Status != nil {
			q = q.Where("status", "==", string(*query.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if token != nil {
			q = q.StartAfter(token.CreatedAt, token.OrderID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
	}

	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		page.NextPageToken = encodeOrderPageToken(orderPageToken{
			CreatedAt: last.Data.CreatedAt,
			OrderID:   last.ID,
		})
	}
	return page, nil
}

// UpdateStatus advances the order to the next status. The stored status must
// still equal req.Expected when the transaction commits.
func (r *OrderRepository) UpdateStatus(ctx context.Context, req repositories.OrderStatusUpdateRequest) (domain.Order, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.update_status", err)
	}

	now := req.Now.UTC()
	ref := client.Collection(ordersCollection).Doc(orderID)
	var updated orderDocument

	err = platform.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return platform.WrapError("orders.update_status", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if doc.Status != string(req.Expected) {
			return repositories.NewOrderError(
				repositories.OrderErrorStatusConflict,
				fmt.Sprintf("order %s is %s, expected %s", orderID, doc.Status, req.Expected),
				nil,
			)
		}

		doc.Status = string(req.Next)
		doc.StatusHistory = append(doc.StatusHistory, statusChangeDocument{Status: string(req.Next), At: now})
		doc.UpdatedAt = now
		if req.Next == domain.OrderStatusDelivered {
			doc.IsDelivered = true
			doc.DeliveredAt = &now
		}

		if err := tx.Set(ref, doc); err != nil {
			return platform.WrapError("orders.update_status", err)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.update_status", err)
	}
	return updated.toDomain(orderID), nil
}

// Cancel marks the order cancelled and restores stock for its lines. Stock
// restoration is best effort per line: a product deleted since the order was
// placed is skipped, never a reason to fail the cancellation. Cancelling an
// already cancelled order is a no-op replay.
func (r *OrderRepository) Cancel(ctx context.Context, req repositories.OrderCancelRequest) (repositories.OrderCancelResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.OrderCancelResult{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.OrderCancelResult{}, wrapOrderError("orders.cancel", err)
	}

	now := req.Now.UTC()
	ref := client.Collection(ordersCollection).Doc(orderID)
	var result repositories.OrderCancelResult

	err = platform.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.OrderCancelResult{}

		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return platform.WrapError("orders.cancel", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		if doc.Status == string(domain.OrderStatusCancelled) {
			result.Order = doc.toDomain(orderID)
			result.AlreadyCancelled = true
			return nil
		}
		if !domain.OrderStatus(doc.Status).Cancellable() {
			return repositories.NewOrderError(
				repositories.OrderErrorTerminalState,
				fmt.Sprintf("order %s is %s and cannot be cancelled", orderID, doc.Status),
				nil,
			)
		}

		type stockRead struct {
			productID string
			ref       *firestore.DocumentRef
			doc       productDocument
			quantity  int64
		}
		var reads []stockRead
		for _, entry := range requiredQuantitiesFromDocs(doc.Lines) {
			productRef := client.Collection(productsCollection).Doc(entry.productID)
			productSnap, err := tx.Get(productRef)
			if err != nil {
				if isNotFound(err) {
					result.SkippedLines = append(result.SkippedLines, entry.productID)
					continue
				}
				return platform.WrapError("orders.cancel", err)
			}
			var product productDocument
			if err := productSnap.DataTo(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", entry.productID, err)
			}
			reads = append(reads, stockRead{productID: entry.productID, ref: productRef, doc: product, quantity: entry.quantity})
		}

		for _, read := range reads {
			if err := tx.Update(read.ref, []firestore.Update{
				{Path: "countInStock", Value: read.doc.CountInStock + read.quantity},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return platform.WrapError("orders.cancel", err)
			}
			result.RestockedLines = append(result.RestockedLines, read.productID)
		}

		doc.Status = string(domain.OrderStatusCancelled)
		doc.StatusHistory = append(doc.StatusHistory, statusChangeDocument{Status: string(domain.OrderStatusCancelled), At: now})
		doc.CancelledAt = &now
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return platform.WrapError("orders.cancel", err)
		}
		result.Order = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return repositories.OrderCancelResult{}, wrapOrderError("orders.cancel", err)
	}
	return result, nil
}

// SetPaymentResult attaches the gateway result and marks the order paid.
func (r *OrderRepository) SetPaymentResult(ctx context.Context, orderID string, payment domain.PaymentResult, now time.Time) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.set_payment", err)
	}

	at := now.UTC()
	ref := client.Collection(ordersCollection).Doc(orderID)
	var updated orderDocument

	err = platform.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return platform.WrapError("orders.set_payment", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if doc.Status == string(domain.OrderStatusCancelled) {
			return repositories.NewOrderError(
				repositories.OrderErrorTerminalState,
				fmt.Sprintf("order %s is cancelled and cannot be paid", orderID),
				nil,
			)
		}

		doc.IsPaid = true
		doc.PaidAt = &at
		doc.PaymentResult = &paymentResultDocument{
			IntentID: payment.IntentID,
			Status:   payment.Status,
			Email:    payment.Email,
		}
		doc.UpdatedAt = at

		if err := tx.Set(ref, doc); err != nil {
			return platform.WrapError("orders.set_payment", err)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.set_payment", err)
	}
	return updated.toDomain(orderID), nil
}

type quantityEntry struct {
	productID string
	quantity  int64
}

// requiredQuantities folds duplicate product lines into one read per product,
// preserving first-seen order.
func requiredQuantities(lines []domain.OrderLine) []quantityEntry {
	index := make(map[string]int, len(lines))
	entries := make([]quantityEntry, 0, len(lines))
	for _, line := range lines {
		if pos, ok := index[line.ProductID]; ok {
			entries[pos].quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(entries)
		entries = append(entries, quantityEntry{productID: line.ProductID, quantity: line.Quantity})
	}
	return entries
}

func requiredQuantitiesFromDocs(lines []orderLineDocument) []quantityEntry {
	converted := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		converted = append(converted, domain.OrderLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return requiredQuantities(converted)
}

func validateCreateRequest(req repositories.OrderCreateRequest) error {
	if strings.TrimSpace(req.OrderID) == "" {
		return repositories.NewOrderError(repositories.OrderErrorUnknown, "order id is required", nil)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return repositories.NewOrderError(repositories.OrderErrorUnknown, "user id is required", nil)
	}
	if len(req.Lines) == 0 {
		return repositories.NewOrderError(repositories.OrderErrorUnknown, "order has no lines", nil)
	}
	for _, line := range req.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return repositories.NewOrderError(repositories.OrderErrorUnknown, "order line has no product id", nil)
		}
		if line.Quantity <= 0 {
			return repositories.NewOrderError(repositories.OrderErrorUnknown, fmt.Sprintf("order line %s has non-positive quantity", line.ProductID), nil)
		}
	}
	return nil
}

type orderPageToken struct {
	CreatedAt time.Time `json:"createdAt"`
	OrderID   string    `json:"orderId"`
}

func encodeOrderPageToken(token orderPageToken) string {
	raw, err := json.Marshal(token)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeOrderPageToken(value string) (*orderPageToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "invalid page token", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "invalid page token", err)
	}
	if token.OrderID == "" || token.CreatedAt.IsZero() {
		return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "invalid page token", nil)
	}
	return &token, nil
}

// wrapOrderError normalises transaction outcomes into typed repository errors.
// Domain typed errors raised inside the transaction callback pass through.
func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	var catalogErr *repositories.CatalogError
	if errors.As(err, &catalogErr) {
		if catalogErr.Op == "" {
			catalogErr.Op = op
		}
		return catalogErr
	}

	var platformErr *platform.Error
	if errors.As(err, &platformErr) {
		switch {
		case platformErr.IsNotFound():
			return &repositories.OrderError{Op: op, Code: repositories.OrderErrorNotFound, Message: "order not found", Err: err}
		case platformErr.IsConflict():
			return &repositories.OrderError{Op: op, Code: repositories.OrderErrorTxConflict, Message: "transaction aborted under contention", Err: err}
		}
	}
	return &repositories.OrderError{Op: op, Code: repositories.OrderErrorUnknown, Message: err.Error(), Err: err}
}

func isNotFound(err error) bool {
	wrapped := platform.WrapError("", err)
	var platformErr *platform.Error
	if errors.As(wrapped, &platformErr) {
		return platformErr.IsNotFound()
	}
	return false
}
