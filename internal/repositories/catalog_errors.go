package repositories

import "fmt"

// CatalogErrorCode enumerates repository error causes for catalog operations.
type CatalogErrorCode string

const (
	// CatalogErrorUnknown represents an unspecified failure.
	CatalogErrorUnknown CatalogErrorCode = "catalog_unknown"
	// CatalogErrorProductNotFound indicates a referenced product does not exist.
	CatalogErrorProductNotFound CatalogErrorCode = "product_not_found"
	// CatalogErrorInsufficientStock indicates the requested quantity exceeds
	// the available stock at transaction time.
	CatalogErrorInsufficientStock CatalogErrorCode = "insufficient_stock"
	// CatalogErrorCouponNotFound indicates the coupon code has no definition.
	CatalogErrorCouponNotFound CatalogErrorCode = "coupon_not_found"
)

// CatalogError wraps catalog and stock failures with machine readable codes.
// ProductID and Available are populated for stock related codes so callers
// can report which line failed and how many units remain.
type CatalogError struct {
	Op        string
	Code      CatalogErrorCode
	Message   string
	ProductID string
	Available int64
	Err       error
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CatalogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCatalogError constructs a typed catalog error.
func NewCatalogError(code CatalogErrorCode, message string, err error) *CatalogError {
	if message == "" {
		message = string(code)
	}
	return &CatalogError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInsufficientStockError reports a stock shortfall for a single product.
func NewInsufficientStockError(productID string, available int64) *CatalogError {
	return &CatalogError{
		Code:      CatalogErrorInsufficientStock,
		Message:   fmt.Sprintf("product %s has %d units in stock", productID, available),
		ProductID: productID,
		Available: available,
	}
}

// NewProductNotFoundError reports a missing catalog entry.
func NewProductNotFoundError(productID string, err error) *CatalogError {
	return &CatalogError{
		Code:      CatalogErrorProductNotFound,
		Message:   fmt.Sprintf("product %s not found", productID),
		ProductID: productID,
		Err:       err,
	}
}
