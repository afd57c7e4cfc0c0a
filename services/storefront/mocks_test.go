package main

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockCatalogRepository para testes que não precisam de banco real
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) BeginTx(ctx context.Context) (StockTx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(StockTx), args.Error(1)
}

func (m *MockCatalogRepository) GetProduct(ctx context.Context, productID string) (*Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Product), args.Error(1)
}

func (m *MockCatalogRepository) GetVariations(ctx context.Context, productID string) ([]ProductVariation, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ProductVariation), args.Error(1)
}

func (m *MockCatalogRepository) ListAvailableProducts(ctx context.Context) ([]Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Product), args.Error(1)
}

func (m *MockCatalogRepository) ListNewestProducts(ctx context.Context, limit int) ([]Product, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Product), args.Error(1)
}

func (m *MockCatalogRepository) ListMostPopularProducts(ctx context.Context, limit int) ([]Product, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Product), args.Error(1)
}

func (m *MockCatalogRepository) ListProductStats(ctx context.Context) ([]ProductStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ProductStats), args.Error(1)
}

func (m *MockCatalogRepository) SetAvailability(ctx context.Context, productID string, available bool) error {
	args := m.Called(ctx, productID, available)
	return args.Error(0)
}

func (m *MockCatalogRepository) DeleteProduct(ctx context.Context, productID string) (*Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Product), args.Error(1)
}

func (m *MockCatalogRepository) CreateProduct(ctx context.Context, tx Tx, product *Product) error {
	args := m.Called(ctx, tx, product)
	return args.Error(0)
}

func (m *MockCatalogRepository) UpdateProduct(ctx context.Context, tx Tx, product *Product) error {
	args := m.Called(ctx, tx, product)
	return args.Error(0)
}

func (m *MockCatalogRepository) GetProductForUpdate(ctx context.Context, tx Tx, productID string) (*Product, error) {
	args := m.Called(ctx, tx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Product), args.Error(1)
}

func (m *MockCatalogRepository) InsertVariations(ctx context.Context, tx Tx, productID string, inputs []VariationInput) ([]ProductVariation, error) {
	args := m.Called(ctx, tx, productID, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ProductVariation), args.Error(1)
}

func (m *MockCatalogRepository) UpsertVariations(ctx context.Context, tx Tx, productID string, inputs []VariationInput) error {
	args := m.Called(ctx, tx, productID, inputs)
	return args.Error(0)
}

func (m *MockCatalogRepository) DeleteVariations(ctx context.Context, tx Tx, productID string) error {
	args := m.Called(ctx, tx, productID)
	return args.Error(0)
}

// MockStockTx simula uma transação com operações de estoque
type MockStockTx struct {
	mock.Mock
}

func (m *MockStockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStockTx) LockVariation(ctx context.Context, productID string, filter VariationOption) (*ProductVariation, error) {
	args := m.Called(ctx, productID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProductVariation), args.Error(1)
}

func (m *MockStockTx) SetVariationStock(ctx context.Context, variationID string, stock int) error {
	args := m.Called(ctx, variationID, stock)
	return args.Error(0)
}

// newMockStockTx cria uma transação que aceita rollback a qualquer momento
func newMockStockTx() *MockStockTx {
	tx := new(MockStockTx)
	tx.On("Rollback").Return(nil).Maybe()
	return tx
}

// MockPaymentGateway simula o processador de pagamento
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) ConstructEvent(payload []byte, signature string) (*PaymentEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentEvent), args.Error(1)
}

func (m *MockPaymentGateway) GetCheckoutLineItems(ctx context.Context, sessionID string) ([]PurchasedLine, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PurchasedLine), args.Error(1)
}

// MockOrderRepository simula as consultas de pedidos e usuários
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) GetOrderHistory(ctx context.Context, email string) (*OrderHistory, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*OrderHistory), args.Error(1)
}

func (m *MockOrderRepository) ListOrders(ctx context.Context) ([]OrderSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]OrderSummary), args.Error(1)
}

func (m *MockOrderRepository) DeleteOrder(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockOrderRepository) ListUsers(ctx context.Context) ([]UserSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]UserSummary), args.Error(1)
}

func (m *MockOrderRepository) DeleteUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockOrderRepository) GetDashboard(ctx context.Context, since time.Time, bestSellers, lowStockThreshold int) (*Dashboard, error) {
	args := m.Called(ctx, since, bestSellers, lowStockThreshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Dashboard), args.Error(1)
}

// MockMailer registra os emails enviados
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, email Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// MockImageStore simula o armazenamento de imagens
type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Save(ctx context.Context, filename string, content io.Reader) (string, error) {
	args := m.Called(ctx, filename, content)
	return args.String(0), args.Error(1)
}

func (m *MockImageStore) Remove(ctx context.Context, imagePath string) {
	m.Called(ctx, imagePath)
}

// MockPageCache simula o cache das páginas públicas
type MockPageCache struct {
	mock.Mock
}

func (m *MockPageCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *MockPageCache) SetJSON(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockPageCache) Invalidate(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}
