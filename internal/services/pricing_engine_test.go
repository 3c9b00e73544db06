package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/shopnetic/api/internal/domain"
	"github.com/shopnetic/api/internal/platform/config"
	"github.com/shopnetic/api/internal/repositories"
)

type stubCatalogRepo struct {
	findFn  func(context.Context, string) (domain.Product, error)
	batchFn func(context.Context, []string) (map[string]domain.Product, error)
}

func (s *stubCatalogRepo) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogRepo) FindProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.batchFn != nil {
		return s.batchFn(ctx, productIDs)
	}
	return map[string]domain.Product{}, nil
}

type stubCouponRepo struct {
	findFn func(context.Context, string) (domain.Coupon, error)
}

func (s *stubCouponRepo) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if s.findFn != nil {
		return s.findFn(ctx, code)
	}
	return domain.Coupon{}, repositories.NewCatalogError(repositories.CatalogErrorCouponNotFound, "coupon not found", nil)
}

func fixedCatalog(products map[string]domain.Product) *stubCatalogRepo {
	return &stubCatalogRepo{
		batchFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			found := make(map[string]domain.Product, len(ids))
			for _, id := range ids {
				if product, ok := products[id]; ok {
					found[id] = product
				}
			}
			return found, nil
		},
	}
}

func fixedCoupons(coupons map[string]domain.Coupon) *stubCouponRepo {
	return &stubCouponRepo{
		findFn: func(_ context.Context, code string) (domain.Coupon, error) {
			if coupon, ok := coupons[code]; ok {
				return coupon, nil
			}
			return domain.Coupon{}, repositories.NewCatalogError(repositories.CatalogErrorCouponNotFound, "coupon not found", nil)
		},
	}
}

func newTestEngine(t *testing.T, policy config.CouponPolicy, products map[string]domain.Product, coupons map[string]domain.Coupon) *PricingEngine {
	t.Helper()
	engine, err := NewPricingEngine(PricingEngineDeps{
		Catalog:      fixedCatalog(products),
		Coupons:      fixedCoupons(coupons),
		CouponPolicy: policy,
	})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}
	return engine
}

var testProducts = map[string]domain.Product{
	"prod_keyboard": {ID: "prod_keyboard", Name: "Keyboard", UnitPrice: 4500, CountInStock: 10},
	"prod_mouse":    {ID: "prod_mouse", Name: "Mouse", UnitPrice: 2500, CountInStock: 4},
}

var testCoupons = map[string]domain.Coupon{
	"FLAT50":    {Code: "FLAT50", Kind: domain.CouponKindFlat, Amount: 5000, Active: true},
	"WELCOME10": {Code: "WELCOME10", Kind: domain.CouponKindPercent, Percent: 10, Active: true},
	"RETIRED":   {Code: "RETIRED", Kind: domain.CouponKindFlat, Amount: 100, Active: false},
}

func TestPriceOrderComputesSubtotal(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyLenient, testProducts, testCoupons)

	result, err := engine.PriceOrder(context.Background(), PriceOrderCommand{
		Lines: []OrderLineInput{
			{ProductID: "prod_keyboard", Quantity: 2},
			{ProductID: "prod_mouse", Quantity: 1},
		},
		Tax:      300,
		Shipping: 500,
	})
	if err != nil {
		t.Fatalf("price order: %v", err)
	}

	if result.Totals.Items != 11500 {
		t.Errorf("expected items 11500, got %d", result.Totals.Items)
	}
	if result.Totals.Discount != 0 {
		t.Errorf("expected no discount, got %d", result.Totals.Discount)
	}
	if result.Totals.Total != 12300 {
		t.Errorf("expected total 12300, got %d", result.Totals.Total)
	}
	if len(result.Lines) != 2 || result.Lines[0].Name != "Keyboard" || result.Lines[0].UnitPrice != 4500 {
		t.Errorf("line snapshot not resolved from catalog: %+v", result.Lines)
	}
	if result.AppliedCoupon != nil {
		t.Errorf("expected no applied coupon, got %v", *result.AppliedCoupon)
	}
}

func TestPriceOrderFlatCoupon(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyLenient, testProducts, testCoupons)
	code := "flat50"

	result, err := engine.PriceOrder(context.Background(), PriceOrderCommand{
		Lines:      []OrderLineInput{{ProductID: "prod_keyboard", Quantity: 2}},
		CouponCode: &code,
	})
	if err != nil {
		t.Fatalf("price order: %v", err)
	}

	if result.Totals.Discount != 5000 {
		t.Errorf("expected flat discount 5000, got %d", result.Totals.Discount)
	}
	if result.Totals.Total != 4000 {
		t.Errorf("expected total 4000, got %d", result.Totals.Total)
	}
	if result.AppliedCoupon == nil || *result.AppliedCoupon != "FLAT50" {
		t.Errorf("expected normalised applied coupon FLAT50, got %v", result.AppliedCoupon)
	}
}

func TestPriceOrderPercentCoupon(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyLenient, testProducts, testCoupons)
	code := "WELCOME10"

	result, err := engine.PriceOrder(context.Background(), PriceOrderCommand{
		Lines:      []OrderLineInput{{ProductID: "prod_keyboard", Quantity: 2}},
		CouponCode: &code,
	})
	if err != nil {
		t.Fatalf("price order: %v", err)
	}

	if result.Totals.Discount != 900 {
		t.Errorf("expected 10%% of 9000 = 900, got %d", result.Totals.Discount)
	}
	if result.Totals.Total != 8100 {
		t.Errorf("expected total 8100, got %d", result.Totals.Total)
	}
}

func TestPriceOrderFlatCouponClampedToSubtotal(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyLenient, testProducts, testCoupons)
	code := "FLAT50"

	result, err := engine.PriceOrder(context.Background(), PriceOrderCommand{
		Lines:      []OrderLineInput{{ProductID: "prod_mouse", Quantity: 1}},
		CouponCode: &code,
	})
	if err != nil {
		t.Fatalf("price order: %v", err)
	}

	if result.Totals.Discount != 2500 {
		t.Errorf("discount must clamp to subtotal, got %d", result.Totals.Discount)
	}
	if result.Totals.Total != 0 {
		t.Errorf("expected total clamped to 0, got %d", result.Totals.Total)
	}
}

func TestPriceOrderUnknownCouponLenient(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyLenient, testProducts, testCoupons)
	code := "NOPE"

	result, err := engine.PriceOrder(context.Background(), PriceOrderCommand{
		Lines:      []OrderLineInput{{ProductID: "prod_mouse", Quantity: 1}},
		CouponCode: &code,
	})
	if err != nil {
		t.Fatalf("lenient policy must not fail: %v", err)
	}
	if result.Totals.Discount != 0 || result.AppliedCoupon != nil {
		t.Errorf("expected coupon ignored, got %+v", result.Totals)
	}
}

func TestPriceOrderUnknownCouponStrict(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyStrict, testProducts, testCoupons)
	code := "NOPE"

	_, err := engine.PriceOrder(context.Background(), PriceOrderCommand{
		Lines:      []OrderLineInput{{ProductID: "prod_mouse", Quantity: 1}},
		CouponCode: &code,
	})
	if !errors.Is(err, ErrPricingCouponRejected) {
		t.Fatalf("expected coupon rejection, got %v", err)
	}
}

func TestPriceOrderInactiveCouponStrict(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyStrict, testProducts, testCoupons)
	code := "RETIRED"

	_, err := engine.PriceOrder(context.Background(), PriceOrderCommand{
		Lines:      []OrderLineInput{{ProductID: "prod_mouse", Quantity: 1}},
		CouponCode: &code,
	})
	if !errors.Is(err, ErrPricingCouponRejected) {
		t.Fatalf("expected inactive coupon rejection, got %v", err)
	}
}

func TestPriceOrderMissingProduct(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyLenient, testProducts, testCoupons)

	_, err := engine.PriceOrder(context.Background(), PriceOrderCommand{
		Lines: []OrderLineInput{{ProductID: "prod_ghost", Quantity: 1}},
	})
	if !errors.Is(err, ErrPricingProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestPriceOrderRejectsStockShortfall(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyLenient, testProducts, testCoupons)

	_, err := engine.PriceOrder(context.Background(), PriceOrderCommand{
		Lines: []OrderLineInput{{ProductID: "prod_mouse", Quantity: 5}},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var catErr *repositories.CatalogError
	if !errors.As(err, &catErr) {
		t.Fatalf("expected catalog error detail, got %v", err)
	}
	if catErr.ProductID != "prod_mouse" || catErr.Available != 4 {
		t.Fatalf("unexpected shortfall detail: %+v", catErr)
	}
}

func TestPriceOrderRejectsBadInput(t *testing.T) {
	engine := newTestEngine(t, config.CouponPolicyLenient, testProducts, testCoupons)

	cases := map[string]PriceOrderCommand{
		"no lines":          {},
		"zero quantity":     {Lines: []OrderLineInput{{ProductID: "prod_mouse", Quantity: 0}}},
		"blank product":     {Lines: []OrderLineInput{{ProductID: "  ", Quantity: 1}}},
		"negative tax":      {Lines: []OrderLineInput{{ProductID: "prod_mouse", Quantity: 1}}, Tax: -1},
		"negative shipping": {Lines: []OrderLineInput{{ProductID: "prod_mouse", Quantity: 1}}, Shipping: -1},
	}
	for name, cmd := range cases {
		if _, err := engine.PriceOrder(context.Background(), cmd); !errors.Is(err, ErrPricingInvalidInput) {
			t.Errorf("%s: expected invalid input, got %v", name, err)
		}
	}
}
