package main

import (
	"context"

	"go.uber.org/zap"
)

const homeSectionSize = 4

// HomePage é a resposta da vitrine: mais vendidos e mais recentes
type HomePage struct {
	MostPopular []Product `json:"mostPopular"`
	Newest      []Product `json:"newest"`
}

// CatalogUseCase atende as leituras públicas do catálogo
type CatalogUseCase struct {
	repository CatalogRepository
	cache      PageCache
	logger     *zap.Logger
}

// NewCatalogUseCase cria uma nova instância de CatalogUseCase
func NewCatalogUseCase(repository CatalogRepository, cache PageCache, logger *zap.Logger) *CatalogUseCase {
	return &CatalogUseCase{
		repository: repository,
		cache:      cache,
		logger:     logger,
	}
}

func (uc *CatalogUseCase) Home(ctx context.Context) (*HomePage, error) {
	ctx, span := startSpan(ctx, "CatalogUseCase.Home")
	defer span.End()

	page, err := cachedPage(ctx, uc.cache, uc.logger, homePageKey, func() (*HomePage, error) {
		popular, err := uc.repository.ListMostPopularProducts(ctx, homeSectionSize)
		if err != nil {
			return nil, err
		}
		newest, err := uc.repository.ListNewestProducts(ctx, homeSectionSize)
		if err != nil {
			return nil, err
		}
		return &HomePage{MostPopular: nonNil(popular), Newest: nonNil(newest)}, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return page, nil
}

func (uc *CatalogUseCase) ListProducts(ctx context.Context) ([]Product, error) {
	ctx, span := startSpan(ctx, "CatalogUseCase.ListProducts")
	defer span.End()

	products, err := cachedPage(ctx, uc.cache, uc.logger, catalogPageKey, func() ([]Product, error) {
		products, err := uc.repository.ListAvailableProducts(ctx)
		return nonNil(products), err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return products, nil
}

// GetProduct devolve o produto com variações; indisponível conta como inexistente
func (uc *CatalogUseCase) GetProduct(ctx context.Context, productID string) (*Product, error) {
	product, err := uc.repository.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsAvailableForPurchase {
		return nil, ErrProductNotFound
	}

	product.Variations = nonNil(product.Variations)
	return product, nil
}

// nonNil faz listas vazias saírem como [] no JSON
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
