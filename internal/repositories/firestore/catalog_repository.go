package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/shopnetic/api/internal/domain"
	platform "github.com/shopnetic/api/internal/platform/firestore"
	"github.com/shopnetic/api/internal/repositories"
)

// CatalogRepository reads product documents. The order engine never writes
// products outside the order transactions in OrderRepository.
type CatalogRepository struct {
	provider *platform.Provider
	base     *platform.BaseRepository[productDocument]
}

// NewCatalogRepository constructs a Firestore backed catalog repository.
func NewCatalogRepository(provider *platform.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository: provider is required")
	}
	return &CatalogRepository{
		provider: provider,
		base:     platform.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

// FindProduct fetches a single product by ID.
func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, repositories.NewProductNotFoundError(productID, nil)
	}

	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, wrapCatalogError("products.get", productID, err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindProducts fetches the given products in one round trip. IDs with no
// matching document are simply absent from the result; callers decide whether
// a gap is an error.
func (r *CatalogRepository) FindProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return products, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapCatalogError("products.batch_get", "", err)
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs = append(refs, client.Collection(productsCollection).Doc(id))
	}
	if len(refs) == 0 {
		return products, nil
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, wrapCatalogError("products.batch_get", "", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, wrapCatalogError("products.batch_get", snap.Ref.ID, err)
		}
		products[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return products, nil
}

func wrapCatalogError(op, productID string, err error) error {
	if err == nil {
		return nil
	}

	var catalogErr *repositories.CatalogError
	if errors.As(err, &catalogErr) {
		if catalogErr.Op == "" {
			catalogErr.Op = op
		}
		return catalogErr
	}

	var platformErr *platform.Error
	if errors.As(err, &platformErr) && platformErr.IsNotFound() {
		return &repositories.CatalogError{
			Op:        op,
			Code:      repositories.CatalogErrorProductNotFound,
			Message:   "product not found",
			ProductID: productID,
			Err:       err,
		}
	}
	return &repositories.CatalogError{Op: op, Code: repositories.CatalogErrorUnknown, Message: err.Error(), ProductID: productID, Err: err}
}
