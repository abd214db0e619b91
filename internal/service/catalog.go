package service

import (
	"context"
	"time"

	"carrito-backend/internal/models"
	"carrito-backend/internal/util"

	"go.uber.org/zap"
)

const productCacheTTL = 5 * time.Minute

// ProductReader reads catalog documents from the store.
type ProductReader interface {
	Products(ctx context.Context) ([]models.Product, error)
	ProductByID(ctx context.Context, id string) (*models.Product, error)
}

// ProductCache caches the catalog listing.
type ProductCache interface {
	GetProductList(ctx context.Context, out interface{}) error
	SetProductList(ctx context.Context, products interface{}, ttl time.Duration) error
	InvalidateProducts(ctx context.Context) error
}

// CatalogService serves product reads with a cache-aside listing. A broken
// cache degrades to store reads, it never fails a request.
type CatalogService struct {
	store  ProductReader
	cache  ProductCache
	logger *zap.Logger
}

// NewCatalogService creates a catalog service. cache may be nil.
func NewCatalogService(store ProductReader, cache ProductCache) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ListProducts returns the catalog, cached.
func (cs *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	if cs.cache != nil {
		var cached []models.Product
		err := cs.cache.GetProductList(ctx, &cached)
		if err == nil {
			util.ProductCacheHitsTotal.WithLabelValues("hit").Inc()
			return cached, nil
		}
		util.ProductCacheHitsTotal.WithLabelValues("miss").Inc()
	}

	products, err := cs.store.Products(ctx)
	if err != nil {
		return nil, err
	}

	if cs.cache != nil {
		if err := cs.cache.SetProductList(ctx, products, productCacheTTL); err != nil {
			cs.logger.Warn("Failed to cache product list", zap.Error(err))
		}
	}
	return products, nil
}

// GetProduct returns a single product, uncached.
func (cs *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	return cs.store.ProductByID(ctx, id)
}
