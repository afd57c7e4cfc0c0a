package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// OrderRepository define a interface para consultas de pedidos e usuários
type OrderRepository interface {
	// GetOrderHistory busca o usuário pelo email com pedidos e itens
	GetOrderHistory(ctx context.Context, email string) (*OrderHistory, error)

	ListOrders(ctx context.Context) ([]OrderSummary, error)
	DeleteOrder(ctx context.Context, orderID string) error

	ListUsers(ctx context.Context) ([]UserSummary, error)
	DeleteUser(ctx context.Context, userID string) error

	// GetDashboard agrega vendas e usuários desde `since`
	GetDashboard(ctx context.Context, since time.Time, bestSellers, lowStockThreshold int) (*Dashboard, error)
}

// PostgresOrderRepository implementa OrderRepository usando PostgreSQL
type PostgresOrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository cria uma nova instância de PostgresOrderRepository
func NewOrderRepository(db *pgxpool.Pool) OrderRepository {
	return &PostgresOrderRepository{
		db: db,
	}
}

func (r *PostgresOrderRepository) GetOrderHistory(ctx context.Context, email string) (*OrderHistory, error) {
	ctx, span := startSpan(ctx, "OrderRepository.GetOrderHistory")
	defer span.End()

	var history OrderHistory
	err := r.db.QueryRow(ctx, `
		SELECT id, email, created_at FROM users WHERE email = $1
	`, email).Scan(&history.User.ID, &history.User.Email, &history.User.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, checkout_session_id, total_price_in_cents, shipping_address, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, history.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.CheckoutSessionID, &o.TotalPriceInCents, &o.ShippingAddress, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning order: %w", err)
		}
		history.Orders = append(history.Orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachItems(ctx, history.Orders, func(i int) *Order { return &history.Orders[i] }); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("orders", len(history.Orders)))
	return &history, nil
}

// attachItems carrega os itens dos pedidos numa única consulta.
// O produto pode ter sido removido: nesse caso a imagem vem vazia.
func (r *PostgresOrderRepository) attachItems(ctx context.Context, orders []Order, at func(int) *Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
	}

	rows, err := r.db.Query(ctx, `
		SELECT oi.id, oi.order_id, COALESCE(oi.product_id, ''), oi.product_name,
		       oi.size, oi.color, oi.quantity, oi.price_at_order, COALESCE(p.image_path, '')
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.product_name, oi.id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Size,
			&item.Color,
			&item.Quantity,
			&item.PriceAtOrder,
			&item.ProductImage,
		); err != nil {
			return fmt.Errorf("error scanning order item: %w", err)
		}
		order := at(index[item.OrderID])
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

// ListOrders lista todos os pedidos com itens e email do comprador
func (r *PostgresOrderRepository) ListOrders(ctx context.Context) ([]OrderSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT o.id, o.user_id, o.checkout_session_id, o.total_price_in_cents,
		       o.shipping_address, o.created_at, u.email
		FROM orders o
		JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	summaries := make([]OrderSummary, 0)
	for rows.Next() {
		var s OrderSummary
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.CheckoutSessionID,
			&s.TotalPriceInCents,
			&s.ShippingAddress,
			&s.CreatedAt,
			&s.UserEmail,
		); err != nil {
			return nil, fmt.Errorf("error scanning order: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orders := make([]Order, len(summaries))
	for i := range summaries {
		orders[i] = summaries[i].Order
	}
	if err := r.attachItems(ctx, orders, func(i int) *Order { return &summaries[i].Order }); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *PostgresOrderRepository) DeleteOrder(ctx context.Context, orderID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListUsers lista os usuários com quantidade de pedidos e total gasto
func (r *PostgresOrderRepository) ListUsers(ctx context.Context) ([]UserSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT u.id, u.email, u.created_at,
		       COUNT(o.id), COALESCE(SUM(o.total_price_in_cents), 0)
		FROM users u
		LEFT JOIN orders o ON o.user_id = u.id
		GROUP BY u.id
		ORDER BY u.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]UserSummary, 0)
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Email, &u.CreatedAt, &u.OrderCount, &u.TotalSpentInCents); err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// DeleteUser remove o usuário e, em cascata, seus pedidos
func (r *PostgresOrderRepository) DeleteUser(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresOrderRepository) GetDashboard(ctx context.Context, since time.Time, bestSellers, lowStockThreshold int) (*Dashboard, error) {
	ctx, span := startSpan(ctx, "OrderRepository.GetDashboard")
	defer span.End()

	var d Dashboard

	// 1. Vendas do período
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_price_in_cents), 0), COALESCE(AVG(total_price_in_cents), 0)::BIGINT, COUNT(*)
		FROM orders
		WHERE created_at >= $1
	`, since).Scan(&d.Sales.RevenueInCents, &d.Sales.AverageOrderInCents, &d.Sales.OrderCount)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}

	// 2. Usuários totais e novos
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE created_at >= $1)
		FROM users
	`, since).Scan(&d.Users.Total, &d.Users.New)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	// 3. Mais vendidos por quantidade
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name, p.image_path, SUM(oi.quantity) AS sold
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		GROUP BY p.id
		ORDER BY sold DESC, p.name
		LIMIT $1
	`, bestSellers)
	if err != nil {
		return nil, fmt.Errorf("failed to query best sellers: %w", err)
	}
	d.BestSellers, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (BestSeller, error) {
		var b BestSeller
		err := row.Scan(&b.ProductID, &b.Name, &b.ImagePath, &b.QuantitySold)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning best sellers: %w", err)
	}

	// 4. Variações com estoque baixo
	rows, err = r.db.Query(ctx, `
		SELECT p.id, p.name, v.size, v.color, v.stock
		FROM product_variations v
		JOIN products p ON p.id = v.product_id
		WHERE v.stock <= $1
		ORDER BY v.stock, p.name
	`, lowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock: %w", err)
	}
	d.LowStock, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (LowStockVariation, error) {
		var l LowStockVariation
		err := row.Scan(&l.ProductID, &l.ProductName, &l.Size, &l.Color, &l.Stock)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning low stock: %w", err)
	}

	return &d, nil
}
