package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/shopnetic/api/internal/domain"
	"github.com/shopnetic/api/internal/platform/config"
	"github.com/shopnetic/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals bad request data such as missing lines or negative charges.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingProductNotFound is returned when a requested product has no catalog entry.
	ErrPricingProductNotFound = errors.New("pricing: product not found")
	// ErrPricingCouponRejected is returned under the strict coupon policy when
	// the coupon code does not resolve to an active coupon.
	ErrPricingCouponRejected = errors.New("pricing: coupon rejected")
)

// PriceOrderCommand carries the raw purchase request to be priced.
type PriceOrderCommand struct {
	Lines      []OrderLineInput
	CouponCode *string
	Tax        int64
	Shipping   int64
}

// PricingResult is the authoritative price breakdown for an order, with line
// snapshots resolved from the catalog at pricing time.
type PricingResult struct {
	Lines         []domain.OrderLine
	Totals        domain.OrderTotals
	AppliedCoupon *string
}

// PricingEngineDeps bundles collaborators required to construct the engine.
type PricingEngineDeps struct {
	Catalog      repositories.CatalogRepository
	Coupons      repositories.CouponRepository
	CouponPolicy config.CouponPolicy
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// PricingEngine computes order totals in integer minor units. Unit prices come
// from the catalog, never from the caller, and every discount is clamped so
// the total can never go negative.
type PricingEngine struct {
	catalog repositories.CatalogRepository
	coupons repositories.CouponRepository
	policy  config.CouponPolicy
	logger  func(context.Context, string, map[string]any)
}

// NewPricingEngine wires dependencies into a concrete pricing engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing engine: catalog repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("pricing engine: coupon repository is required")
	}

	policy := deps.CouponPolicy
	switch policy {
	case config.CouponPolicyLenient, config.CouponPolicyStrict:
	default:
		policy = config.CouponPolicyLenient
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PricingEngine{
		catalog: deps.Catalog,
		coupons: deps.Coupons,
		policy:  policy,
		logger:  logger,
	}, nil
}

// PriceOrder resolves the catalog snapshot for every line and computes the
// full totals breakdown.
func (e *PricingEngine) PriceOrder(ctx context.Context, cmd PriceOrderCommand) (PricingResult, error) {
	if len(cmd.Lines) == 0 {
		return PricingResult{}, fmt.Errorf("%w: order must contain at least one line", ErrPricingInvalidInput)
	}
	if cmd.Tax < 0 {
		return PricingResult{}, fmt.Errorf("%w: tax must not be negative", ErrPricingInvalidInput)
	}
	if cmd.Shipping < 0 {
		return PricingResult{}, fmt.Errorf("%w: shipping must not be negative", ErrPricingInvalidInput)
	}

	ids := make([]string, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return PricingResult{}, fmt.Errorf("%w: line product id is required", ErrPricingInvalidInput)
		}
		if line.Quantity <= 0 {
			return PricingResult{}, fmt.Errorf("%w: quantity for product %s must be positive", ErrPricingInvalidInput, id)
		}
		ids = append(ids, id)
	}

	products, err := e.catalog.FindProducts(ctx, ids)
	if err != nil {
		return PricingResult{}, fmt.Errorf("pricing: resolve products: %w", err)
	}

	lines := make([]domain.OrderLine, 0, len(cmd.Lines))
	var subtotal int64
	for _, input := range cmd.Lines {
		id := strings.TrimSpace(input.ProductID)
		product, ok := products[id]
		if !ok {
			return PricingResult{}, fmt.Errorf("%w: %s", ErrPricingProductNotFound, id)
		}
		// Stock is re-validated inside the create transaction; failing here
		// avoids pricing carts that cannot commit.
		if product.CountInStock < input.Quantity {
			return PricingResult{}, fmt.Errorf("%w: %w", ErrInsufficientStock, repositories.NewInsufficientStockError(id, product.CountInStock))
		}
		line := domain.OrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.UnitPrice,
			Quantity:  input.Quantity,
		}
		lines = append(lines, line)
		subtotal += line.LineTotal()
	}

	discount, applied, err := e.resolveDiscount(ctx, cmd.CouponCode, subtotal)
	if err != nil {
		return PricingResult{}, err
	}

	total := subtotal - discount + cmd.Tax + cmd.Shipping
	if total < 0 {
		total = 0
	}

	return PricingResult{
		Lines: lines,
		Totals: domain.OrderTotals{
			Items:    subtotal,
			Discount: discount,
			Tax:      cmd.Tax,
			Shipping: cmd.Shipping,
			Total:    total,
		},
		AppliedCoupon: applied,
	}, nil
}

// resolveDiscount looks up the coupon and clamps its discount to the subtotal.
// Under the lenient policy an unresolvable coupon prices as if none was given.
func (e *PricingEngine) resolveDiscount(ctx context.Context, couponCode *string, subtotal int64) (int64, *string, error) {
	if couponCode == nil {
		return 0, nil, nil
	}
	code := strings.ToUpper(strings.TrimSpace(*couponCode))
	if code == "" {
		return 0, nil, nil
	}

	coupon, err := e.coupons.FindByCode(ctx, code)
	if err != nil {
		var catErr *repositories.CatalogError
		if errors.As(err, &catErr) && catErr.Code == repositories.CatalogErrorCouponNotFound {
			return e.rejectCoupon(ctx, code, "unknown")
		}
		return 0, nil, fmt.Errorf("pricing: resolve coupon: %w", err)
	}
	if !coupon.Active {
		return e.rejectCoupon(ctx, code, "inactive")
	}

	discount := coupon.DiscountFor(subtotal)
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, &code, nil
}

func (e *PricingEngine) rejectCoupon(ctx context.Context, code, reason string) (int64, *string, error) {
	if e.policy == config.CouponPolicyStrict {
		return 0, nil, fmt.Errorf("%w: %s coupon %s", ErrPricingCouponRejected, reason, code)
	}
	e.logger(ctx, "pricing.coupon.ignored", map[string]any{
		"coupon": code,
		"reason": reason,
	})
	return 0, nil, nil
}
