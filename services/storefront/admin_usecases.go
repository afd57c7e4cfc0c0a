package main

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
)

const (
	dashboardWindow   = 30 * 24 * time.Hour
	bestSellersLimit  = 3
	lowStockThreshold = 5
)

// ImageUpload é o arquivo de imagem enviado no formulário
type ImageUpload struct {
	Filename string
	Content  io.Reader
}

// OrderInsights resume a lista de pedidos do admin
type OrderInsights struct {
	TotalRevenueInCents int64 `json:"totalRevenueInCents"`
	OrderCount          int   `json:"orderCount"`
}

type OrdersOverview struct {
	Insights OrderInsights  `json:"insights"`
	Orders   []OrderSummary `json:"orders"`
}

// AdminUseCase reúne as operações do painel administrativo
type AdminUseCase struct {
	catalog CatalogRepository
	orders  OrderRepository
	stock   *StockUseCase
	images  ImageStore
	cache   PageCache
	logger  *zap.Logger
}

// NewAdminUseCase cria uma nova instância de AdminUseCase
func NewAdminUseCase(
	catalog CatalogRepository,
	orders OrderRepository,
	stock *StockUseCase,
	images ImageStore,
	cache PageCache,
	logger *zap.Logger,
) *AdminUseCase {
	return &AdminUseCase{
		catalog: catalog,
		orders:  orders,
		stock:   stock,
		images:  images,
		cache:   cache,
		logger:  logger,
	}
}

// invalidatePages descarta a vitrine e o catálogo em cache após mudanças no produto
func (uc *AdminUseCase) invalidatePages(ctx context.Context) {
	if err := uc.cache.Invalidate(ctx, homePageKey, catalogPageKey); err != nil {
		logWarn(ctx, uc.logger, "⚠️ [CACHE] invalidation failed", zap.Error(err))
	}
}

// CreateProduct grava a imagem e cria o produto com o estoque inicial
func (uc *AdminUseCase) CreateProduct(ctx context.Context, form *ProductForm, image *ImageUpload) (*Product, error) {
	ctx, span := startSpan(ctx, "AdminUseCase.CreateProduct")
	defer span.End()

	if image == nil {
		return nil, FieldErrors{"image": "image is required"}
	}

	// 1. Grava a imagem
	imagePath, err := uc.images.Save(ctx, image.Filename, image.Content)
	if err != nil {
		return nil, err
	}

	// 2. Produto e variações numa transação
	product, err := uc.stock.CreateWithStock(ctx, form.Input(imagePath))
	if err != nil {
		span.RecordError(err)
		uc.images.Remove(ctx, imagePath)
		return nil, err
	}

	uc.invalidatePages(ctx)
	return product, nil
}

// UpdateProduct atualiza os dados e substitui as variações; a imagem só muda se vier uma nova
func (uc *AdminUseCase) UpdateProduct(ctx context.Context, productID string, form *ProductForm, image *ImageUpload) (*Product, error) {
	ctx, span := startSpan(ctx, "AdminUseCase.UpdateProduct")
	defer span.End()

	current, err := uc.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	product := &Product{
		ID:                     productID,
		Name:                   form.Name,
		PriceInCents:           form.PriceInCents,
		Description:            form.Description,
		ImagePath:              current.ImagePath,
		IsAvailableForPurchase: form.IsAvailableForPurchase,
		CreatedAt:              current.CreatedAt,
	}

	if image != nil {
		product.ImagePath, err = uc.images.Save(ctx, image.Filename, image.Content)
		if err != nil {
			return nil, err
		}
	}

	updated, err := uc.stock.UpdateWithStock(ctx, product, form.Variations)
	if err != nil {
		span.RecordError(err)
		if image != nil {
			uc.images.Remove(ctx, product.ImagePath)
		}
		return nil, err
	}

	// a imagem anterior só sai depois que a nova foi gravada no produto
	if image != nil && current.ImagePath != updated.ImagePath {
		uc.images.Remove(ctx, current.ImagePath)
	}

	uc.invalidatePages(ctx)
	return updated, nil
}

func (uc *AdminUseCase) SetAvailability(ctx context.Context, productID string, available bool) error {
	if err := uc.catalog.SetAvailability(ctx, productID, available); err != nil {
		return err
	}

	logInfo(ctx, uc.logger, "✅ [PRODUCT] availability changed",
		zap.String("product_id", productID),
		zap.Bool("available", available),
	)
	uc.invalidatePages(ctx)
	return nil
}

// DeleteProduct remove o produto, suas variações e a imagem
func (uc *AdminUseCase) DeleteProduct(ctx context.Context, productID string) error {
	deleted, err := uc.catalog.DeleteProduct(ctx, productID)
	if err != nil {
		return err
	}

	uc.images.Remove(ctx, deleted.ImagePath)
	logInfo(ctx, uc.logger, "✅ [PRODUCT] deleted", zap.String("product_id", productID))
	uc.invalidatePages(ctx)
	return nil
}

func (uc *AdminUseCase) UpsertVariations(ctx context.Context, productID string, inputs []VariationInput) ([]ProductVariation, error) {
	variations, err := uc.stock.UpsertVariations(ctx, productID, inputs)
	if err != nil {
		return nil, err
	}
	uc.invalidatePages(ctx)
	return nonNil(variations), nil
}

// GetProduct devolve o produto mesmo quando indisponível para compra
func (uc *AdminUseCase) GetProduct(ctx context.Context, productID string) (*Product, error) {
	product, err := uc.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	product.Variations = nonNil(product.Variations)
	return product, nil
}

func (uc *AdminUseCase) ListProducts(ctx context.Context) ([]ProductStats, error) {
	products, err := uc.catalog.ListProductStats(ctx)
	if err != nil {
		return nil, err
	}
	return nonNil(products), nil
}

// ListOrders lista os pedidos com receita total e quantidade
func (uc *AdminUseCase) ListOrders(ctx context.Context) (*OrdersOverview, error) {
	orders, err := uc.orders.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	overview := &OrdersOverview{Orders: nonNil(orders)}
	for _, o := range orders {
		overview.Insights.TotalRevenueInCents += o.TotalPriceInCents
	}
	overview.Insights.OrderCount = len(orders)
	return overview, nil
}

func (uc *AdminUseCase) DeleteOrder(ctx context.Context, orderID string) error {
	if err := uc.orders.DeleteOrder(ctx, orderID); err != nil {
		return err
	}
	logInfo(ctx, uc.logger, "✅ [ORDER] deleted", zap.String("order_id", orderID))
	return nil
}

func (uc *AdminUseCase) ListUsers(ctx context.Context) ([]UserSummary, error) {
	users, err := uc.orders.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return nonNil(users), nil
}

// DeleteUser remove o usuário e, em cascata, os pedidos dele
func (uc *AdminUseCase) DeleteUser(ctx context.Context, userID string) error {
	if err := uc.orders.DeleteUser(ctx, userID); err != nil {
		return err
	}
	logInfo(ctx, uc.logger, "✅ [USER] deleted", zap.String("user_id", userID))
	return nil
}

// Dashboard calcula os indicadores dos últimos 30 dias
func (uc *AdminUseCase) Dashboard(ctx context.Context) (*Dashboard, error) {
	ctx, span := startSpan(ctx, "AdminUseCase.Dashboard")
	defer span.End()

	dashboard, err := uc.orders.GetDashboard(ctx, time.Now().Add(-dashboardWindow), bestSellersLimit, lowStockThreshold)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	dashboard.BestSellers = nonNil(dashboard.BestSellers)
	dashboard.LowStock = nonNil(dashboard.LowStock)
	return dashboard, nil
}
