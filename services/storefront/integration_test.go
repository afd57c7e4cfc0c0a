//go:build integration

package main

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type StorefrontIntegrationSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	pool        *pgxpool.Pool
	sqlDB       *sql.DB

	catalog CatalogRepository
	orders  OrderRepository
	outbox  OutboxRepository
	stock   *StockUseCase
}

func TestStorefrontIntegration(t *testing.T) {
	suite.Run(t, new(StorefrontIntegrationSuite))
}

func (s *StorefrontIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	logger := zap.NewNop()

	var err error
	s.pgContainer, err = postgres.Run(
		s.ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("storefront_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.Require().NoError(runMigrations(connStr, logger))

	s.pool, err = pgxpool.New(s.ctx, connStr)
	s.Require().NoError(err)

	s.sqlDB, err = sql.Open("postgres", connStr)
	s.Require().NoError(err)
	dtmcli.SetCurrentDBType(dtmcli.DBTypePostgres)

	s.catalog = NewCatalogRepository(s.pool)
	s.orders = NewOrderRepository(s.pool)
	s.outbox = NewOutboxRepository(s.pool)
	s.stock = NewStockUseCase(s.catalog, newNoopMetrics(), logger)
}

func (s *StorefrontIntegrationSuite) TearDownSuite() {
	if s.sqlDB != nil {
		_ = s.sqlDB.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.T().Fatalf("failed to terminate postgres container: %v", err)
		}
	}
}

func (s *StorefrontIntegrationSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE products, users, outbox_events, dtm_barrier.barrier CASCADE`)
	s.Require().NoError(err)
}

func (s *StorefrontIntegrationSuite) createProduct(variations ...VariationInput) *Product {
	product, err := s.stock.CreateWithStock(s.ctx, NewProductInput{
		Name:                   "Home Jersey",
		PriceInCents:           12900,
		ImagePath:              "/products/jersey.png",
		Description:            "2025 season",
		IsAvailableForPurchase: true,
		Variations:             variations,
	})
	s.Require().NoError(err)
	return product
}

func (s *StorefrontIntegrationSuite) TestCreateWithStock_RejectsDuplicatePair() {
	_, err := s.stock.CreateWithStock(s.ctx, NewProductInput{
		Name:         "Cap",
		PriceInCents: 1000,
		Variations:   []VariationInput{{Color: "Red", Stock: 1}, {Color: "Red", Stock: 2}},
	})

	s.ErrorIs(err, ErrDuplicateVariation)
}

func (s *StorefrontIntegrationSuite) TestReplaceAllVariations_ReadYieldsNewSet() {
	product := s.createProduct(VariationInput{Size: "S", Stock: 1}, VariationInput{Size: "M", Stock: 2})

	replacement := []VariationInput{
		{Size: "L", Color: "Red", Stock: 4},
		{Size: "XL", Stock: 0},
	}
	_, err := s.stock.ReplaceAllVariations(s.ctx, product.ID, replacement)
	s.Require().NoError(err)

	variations, err := s.stock.GetVariations(s.ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Len(variations, 2)
	s.Equal("L", variations[0].Size)
	s.Equal("Red", variations[0].Color)
	s.Equal(4, variations[0].Stock)
	s.Equal("XL", variations[1].Size)
	s.Equal(0, variations[1].Stock)
}

func (s *StorefrontIntegrationSuite) TestUpsertVariations() {
	product := s.createProduct(VariationInput{Size: "M", Stock: 2})

	variations, err := s.stock.UpsertVariations(s.ctx, product.ID, []VariationInput{
		{Size: "M", Stock: 9},
		{Size: "L", Stock: 1},
	})

	s.Require().NoError(err)
	s.Len(variations, 2)
	for _, v := range variations {
		if v.Size == "M" {
			s.Equal(9, v.Stock)
		}
	}

	_, err = s.stock.UpsertVariations(s.ctx, uuid.New().String(), []VariationInput{{Size: "M", Stock: 1}})
	s.ErrorIs(err, ErrProductNotFound)
}

func (s *StorefrontIntegrationSuite) TestDecrementStock_ClampsAtZero() {
	product := s.createProduct(VariationInput{Size: "M", Color: "Blue", Stock: 2})

	v, err := s.stock.DecrementStock(s.ctx, product.ID, NewVariationOption("", "Blue"), 5)
	s.Require().NoError(err)
	s.Equal(0, v.Stock)

	_, err = s.stock.DecrementStock(s.ctx, product.ID, NewVariationOption("XS", ""), 1)
	s.ErrorIs(err, ErrVariationNotFound)
}

func (s *StorefrontIntegrationSuite) TestWebhookFulfillment_EndToEnd() {
	// Arrange
	product := s.createProduct(VariationInput{Size: "M", Stock: 5})

	gateway := new(MockPaymentGateway)
	mailer := new(MockMailer)
	logger := zap.NewNop()
	metrics := newNoopMetrics()
	notifier := NewNotifierUseCase(s.orders, mailer, metrics, logger, "http://shop.local")
	uc := NewWebhookUseCase(gateway, NewFulfillmentStore(s.sqlDB), s.stock, notifier, metrics, logger, "storefront.orders")

	gateway.On("ConstructEvent", mock.Anything, mock.Anything).Return(&PaymentEvent{
		ID:   "evt_1",
		Type: eventCheckoutSessionCompleted,
		Session: &CheckoutSessionInfo{
			ID:              "cs_it_1",
			CustomerEmail:   "buyer@example.com",
			AmountTotal:     25800,
			ShippingAddress: "Jalan 1\nKuala Lumpur",
		},
	}, nil)
	gateway.On("GetCheckoutLineItems", mock.Anything, "cs_it_1").Return([]PurchasedLine{
		{ProductID: product.ID, ProductName: product.Name, Option: NewVariationOption("M", ""), Quantity: 2, UnitAmount: 12900},
	}, nil)
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	// Act
	first, err := uc.HandleEvent(s.ctx, []byte("{}"), "sig")
	s.Require().NoError(err)
	second, err := uc.HandleEvent(s.ctx, []byte("{}"), "sig")
	s.Require().NoError(err)

	// Assert
	s.False(first.Replayed)
	s.True(second.Replayed)

	history, err := s.orders.GetOrderHistory(s.ctx, "buyer@example.com")
	s.Require().NoError(err)
	s.Require().Len(history.Orders, 1)
	s.Equal(int64(25800), history.Orders[0].TotalPriceInCents)
	s.Require().Len(history.Orders[0].Items, 1)
	s.Equal("/products/jersey.png", history.Orders[0].Items[0].ProductImage)

	variations, err := s.stock.GetVariations(s.ctx, product.ID)
	s.Require().NoError(err)
	s.Equal(3, variations[0].Stock)

	tx, err := s.outbox.BeginTx(s.ctx)
	s.Require().NoError(err)
	defer tx.Rollback()
	events, err := s.outbox.GetUnpublishedEvents(s.ctx, tx, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(orderPaidEventType, events[0].EventType)
	s.Equal(history.Orders[0].ID, events[0].AggregateID)

	mailer.AssertNumberOfCalls(s.T(), "Send", 1)
}

func (s *StorefrontIntegrationSuite) TestDeleteProduct_KeepsOrderItems() {
	product := s.createProduct(VariationInput{Size: "M", Stock: 5})

	_, err := NewFulfillmentStore(s.sqlDB).RecordCheckout(s.ctx, "cs_it_2", func(tx FulfillmentTx) error {
		user, err := tx.FindOrCreateUser(s.ctx, "keep@example.com")
		if err != nil {
			return err
		}
		return tx.CreateOrder(s.ctx, NewOrder(uuid.New().String(), user.ID, "cs_it_2", 12900, "", []OrderItem{
			{ProductID: product.ID, ProductName: product.Name, Size: "M", Quantity: 1, PriceAtOrder: 12900},
		}))
	})
	s.Require().NoError(err)

	_, err = s.catalog.DeleteProduct(s.ctx, product.ID)
	s.Require().NoError(err)

	history, err := s.orders.GetOrderHistory(s.ctx, "keep@example.com")
	s.Require().NoError(err)
	s.Require().Len(history.Orders, 1)
	s.Equal("Home Jersey", history.Orders[0].Items[0].ProductName)
	s.Empty(history.Orders[0].Items[0].ProductID)
}

func (s *StorefrontIntegrationSuite) TestDashboard() {
	product := s.createProduct(VariationInput{Size: "M", Stock: 2}, VariationInput{Size: "L", Stock: 40})

	_, err := NewFulfillmentStore(s.sqlDB).RecordCheckout(s.ctx, "cs_it_3", func(tx FulfillmentTx) error {
		user, err := tx.FindOrCreateUser(s.ctx, "dash@example.com")
		if err != nil {
			return err
		}
		return tx.CreateOrder(s.ctx, NewOrder(uuid.New().String(), user.ID, "cs_it_3", 25800, "", []OrderItem{
			{ProductID: product.ID, ProductName: product.Name, Size: "M", Quantity: 2, PriceAtOrder: 12900},
		}))
	})
	s.Require().NoError(err)

	dashboard, err := s.orders.GetDashboard(s.ctx, time.Now().Add(-dashboardWindow), bestSellersLimit, lowStockThreshold)

	s.Require().NoError(err)
	s.Equal(int64(25800), dashboard.Sales.RevenueInCents)
	s.Equal(1, dashboard.Sales.OrderCount)
	s.Equal(1, dashboard.Users.Total)
	s.Require().Len(dashboard.BestSellers, 1)
	s.Equal(2, dashboard.BestSellers[0].QuantitySold)
	s.Require().Len(dashboard.LowStock, 1)
	s.Equal("M", dashboard.LowStock[0].Size)
}
