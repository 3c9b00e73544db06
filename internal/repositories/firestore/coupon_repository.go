package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/shopnetic/api/internal/domain"
	platform "github.com/shopnetic/api/internal/platform/firestore"
	"github.com/shopnetic/api/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository resolves coupon codes against the coupons collection.
// Codes are stored upper case; lookups are case insensitive.
type CouponRepository struct {
	base *platform.BaseRepository[couponDocument]
}

// NewCouponRepository constructs a Firestore backed coupon repository.
func NewCouponRepository(provider *platform.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository: provider is required")
	}
	return &CouponRepository{
		base: platform.NewBaseRepository[couponDocument](provider, couponsCollection, nil),
	}, nil
}

// FindByCode fetches the coupon definition for a code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Coupon{}, repositories.NewCatalogError(repositories.CatalogErrorCouponNotFound, "coupon code is required", nil)
	}

	doc, err := r.base.Get(ctx, code)
	if err != nil {
		var platformErr *platform.Error
		if errors.As(err, &platformErr) && platformErr.IsNotFound() {
			return domain.Coupon{}, repositories.NewCatalogError(
				repositories.CatalogErrorCouponNotFound,
				fmt.Sprintf("coupon %s not found", code),
				err,
			)
		}
		return domain.Coupon{}, repositories.NewCatalogError(repositories.CatalogErrorUnknown, err.Error(), err)
	}
	return doc.Data.toDomain(doc.ID), nil
}
