package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pageKeys = []string{homePageKey, catalogPageKey}

type adminFixture struct {
	catalog *MockCatalogRepository
	orders  *MockOrderRepository
	images  *MockImageStore
	cache   *MockPageCache
	uc      *AdminUseCase
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		catalog: new(MockCatalogRepository),
		orders:  new(MockOrderRepository),
		images:  new(MockImageStore),
		cache:   new(MockPageCache),
	}
	stock := NewStockUseCase(f.catalog, newNoopMetrics(), zap.NewNop())
	f.uc = NewAdminUseCase(f.catalog, f.orders, stock, f.images, f.cache, zap.NewNop())
	return f
}

func testProductForm() *ProductForm {
	return &ProductForm{
		Name:                   "Home Jersey",
		PriceInCents:           12900,
		Description:            "2025 season",
		IsAvailableForPurchase: true,
		Variations:             []VariationInput{{Size: "M", Stock: 3}},
	}
}

func TestAdminUseCase_CreateProduct(t *testing.T) {
	// Arrange
	f := newAdminFixture()
	tx := newMockStockTx()
	upload := &ImageUpload{Filename: "jersey.png", Content: strings.NewReader("png")}

	f.images.On("Save", mock.Anything, "jersey.png", upload.Content).Return("/products/abc-jersey.png", nil)
	f.catalog.On("BeginTx", mock.Anything).Return(tx, nil)
	f.catalog.On("CreateProduct", mock.Anything, tx, mock.MatchedBy(func(p *Product) bool {
		return p.ImagePath == "/products/abc-jersey.png" && p.Name == "Home Jersey"
	})).Return(nil)
	f.catalog.On("InsertVariations", mock.Anything, tx, mock.Anything, []VariationInput{{Size: "M", Stock: 3}}).
		Return([]ProductVariation{{ID: "v1", Size: "M", Stock: 3}}, nil)
	tx.On("Commit").Return(nil)
	f.cache.On("Invalidate", mock.Anything, pageKeys).Return(nil)

	// Act
	product, err := f.uc.CreateProduct(context.Background(), testProductForm(), upload)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "/products/abc-jersey.png", product.ImagePath)
	assert.Len(t, product.Variations, 1)
	f.cache.AssertExpectations(t)
	f.images.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestAdminUseCase_CreateProduct_RemovesImageOnFailure(t *testing.T) {
	f := newAdminFixture()
	tx := newMockStockTx()
	upload := &ImageUpload{Filename: "jersey.png", Content: strings.NewReader("png")}

	f.images.On("Save", mock.Anything, "jersey.png", upload.Content).Return("/products/abc-jersey.png", nil)
	f.images.On("Remove", mock.Anything, "/products/abc-jersey.png").Return()
	f.catalog.On("BeginTx", mock.Anything).Return(tx, nil)
	f.catalog.On("CreateProduct", mock.Anything, tx, mock.Anything).Return(errors.New("insert failed"))

	_, err := f.uc.CreateProduct(context.Background(), testProductForm(), upload)

	require.Error(t, err)
	f.images.AssertCalled(t, "Remove", mock.Anything, "/products/abc-jersey.png")
	f.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestAdminUseCase_CreateProduct_RequiresImage(t *testing.T) {
	f := newAdminFixture()

	_, err := f.uc.CreateProduct(context.Background(), testProductForm(), nil)

	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs, "image")
}

func TestAdminUseCase_UpdateProduct_ReplacesImage(t *testing.T) {
	// Arrange
	f := newAdminFixture()
	tx := newMockStockTx()
	upload := &ImageUpload{Filename: "new.png", Content: strings.NewReader("png")}
	current := &Product{ID: "p1", ImagePath: "/products/old.png", CreatedAt: time.Now()}

	f.catalog.On("GetProduct", mock.Anything, "p1").Return(current, nil)
	f.images.On("Save", mock.Anything, "new.png", upload.Content).Return("/products/new.png", nil)
	f.catalog.On("BeginTx", mock.Anything).Return(tx, nil)
	f.catalog.On("GetProductForUpdate", mock.Anything, tx, "p1").Return(current, nil)
	f.catalog.On("UpdateProduct", mock.Anything, tx, mock.MatchedBy(func(p *Product) bool {
		return p.ImagePath == "/products/new.png"
	})).Return(nil)
	f.catalog.On("DeleteVariations", mock.Anything, tx, "p1").Return(nil)
	f.catalog.On("InsertVariations", mock.Anything, tx, "p1", mock.Anything).
		Return([]ProductVariation{{ID: "v9", Size: "M", Stock: 3}}, nil)
	tx.On("Commit").Return(nil)
	f.images.On("Remove", mock.Anything, "/products/old.png").Return()
	f.cache.On("Invalidate", mock.Anything, pageKeys).Return(nil)

	// Act
	product, err := f.uc.UpdateProduct(context.Background(), "p1", testProductForm(), upload)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "/products/new.png", product.ImagePath)
	f.images.AssertCalled(t, "Remove", mock.Anything, "/products/old.png")
}

func TestAdminUseCase_UpdateProduct_KeepsImage(t *testing.T) {
	f := newAdminFixture()
	tx := newMockStockTx()
	current := &Product{ID: "p1", ImagePath: "/products/old.png"}

	f.catalog.On("GetProduct", mock.Anything, "p1").Return(current, nil)
	f.catalog.On("BeginTx", mock.Anything).Return(tx, nil)
	f.catalog.On("GetProductForUpdate", mock.Anything, tx, "p1").Return(current, nil)
	f.catalog.On("UpdateProduct", mock.Anything, tx, mock.MatchedBy(func(p *Product) bool {
		return p.ImagePath == "/products/old.png"
	})).Return(nil)
	f.catalog.On("DeleteVariations", mock.Anything, tx, "p1").Return(nil)
	f.catalog.On("InsertVariations", mock.Anything, tx, "p1", mock.Anything).Return([]ProductVariation{}, nil)
	tx.On("Commit").Return(nil)
	f.cache.On("Invalidate", mock.Anything, pageKeys).Return(nil)

	_, err := f.uc.UpdateProduct(context.Background(), "p1", testProductForm(), nil)

	require.NoError(t, err)
	f.images.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	f.images.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestAdminUseCase_UpdateProduct_NotFound(t *testing.T) {
	f := newAdminFixture()
	f.catalog.On("GetProduct", mock.Anything, "nope").Return(nil, ErrProductNotFound)

	_, err := f.uc.UpdateProduct(context.Background(), "nope", testProductForm(), nil)

	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestAdminUseCase_DeleteProduct(t *testing.T) {
	f := newAdminFixture()
	f.catalog.On("DeleteProduct", mock.Anything, "p1").Return(&Product{ID: "p1", ImagePath: "/products/a.png"}, nil)
	f.images.On("Remove", mock.Anything, "/products/a.png").Return()
	f.cache.On("Invalidate", mock.Anything, pageKeys).Return(nil)

	err := f.uc.DeleteProduct(context.Background(), "p1")

	require.NoError(t, err)
	f.images.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestAdminUseCase_SetAvailability_CacheFailureIgnored(t *testing.T) {
	f := newAdminFixture()
	f.catalog.On("SetAvailability", mock.Anything, "p1", false).Return(nil)
	f.cache.On("Invalidate", mock.Anything, pageKeys).Return(errors.New("redis down"))

	err := f.uc.SetAvailability(context.Background(), "p1", false)

	assert.NoError(t, err)
}

func TestAdminUseCase_ListOrders(t *testing.T) {
	f := newAdminFixture()
	f.orders.On("ListOrders", mock.Anything).Return([]OrderSummary{
		{Order: Order{ID: "o1", TotalPriceInCents: 1000}, UserEmail: "a@example.com"},
		{Order: Order{ID: "o2", TotalPriceInCents: 2550}, UserEmail: "b@example.com"},
	}, nil)

	overview, err := f.uc.ListOrders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3550), overview.Insights.TotalRevenueInCents)
	assert.Equal(t, 2, overview.Insights.OrderCount)
	assert.Len(t, overview.Orders, 2)
}

func TestAdminUseCase_Dashboard(t *testing.T) {
	f := newAdminFixture()
	f.orders.On("GetDashboard", mock.Anything, mock.MatchedBy(func(since time.Time) bool {
		return time.Since(since) > 29*24*time.Hour && time.Since(since) < 31*24*time.Hour
	}), bestSellersLimit, lowStockThreshold).Return(&Dashboard{
		Sales: SalesSummary{RevenueInCents: 5000, OrderCount: 2, AverageOrderInCents: 2500},
	}, nil)

	dashboard, err := f.uc.Dashboard(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(2500), dashboard.Sales.AverageOrderInCents)
	assert.NotNil(t, dashboard.BestSellers)
	assert.NotNil(t, dashboard.LowStock)
}
