package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// A barreira do webhook usa gid = id da sessão de checkout
	webhookTransType = "msg"
	webhookBranchID  = "01"
	webhookBarrierOp = "action"

	uniqueViolation = "23505"
)

var errCheckoutAlreadyRecorded = errors.New("checkout session already recorded")

// FulfillmentStore executa o registro de um checkout concluído de forma idempotente
type FulfillmentStore interface {
	// RecordCheckout roda fn numa única transação protegida pela barreira da sessão.
	// applied é false quando a sessão já havia sido processada e fn não rodou.
	RecordCheckout(ctx context.Context, sessionID string, fn func(tx FulfillmentTx) error) (applied bool, err error)
}

// FulfillmentTx reúne as escritas feitas ao registrar um pedido
type FulfillmentTx interface {
	VariationStore
	FindOrCreateUser(ctx context.Context, email string) (*User, error)
	CreateOrder(ctx context.Context, order *Order) error
	SaveOutboxEvent(ctx context.Context, event *OutboxEvent) error
}

// SQLFulfillmentStore implementa FulfillmentStore com database/sql e a barreira do DTM
type SQLFulfillmentStore struct {
	db *sql.DB
}

// NewFulfillmentStore cria uma nova instância de SQLFulfillmentStore
func NewFulfillmentStore(db *sql.DB) FulfillmentStore {
	return &SQLFulfillmentStore{db: db}
}

func (s *SQLFulfillmentStore) RecordCheckout(ctx context.Context, sessionID string, fn func(tx FulfillmentTx) error) (bool, error) {
	ctx, span := startSpan(ctx, "FulfillmentStore.RecordCheckout", attribute.String("checkout_session_id", sessionID))
	defer span.End()

	barrier, err := dtmcli.BarrierFrom(webhookTransType, sessionID, webhookBranchID, webhookBarrierOp)
	if err != nil {
		return false, fmt.Errorf("failed to build barrier: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Call faz commit/rollback da transação e só executa a função na primeira entrega
	applied := false
	err = barrier.Call(tx, func(tx *sql.Tx) error {
		applied = true
		return fn(&sqlFulfillmentTx{tx: tx})
	})
	if errors.Is(err, errCheckoutAlreadyRecorded) {
		span.SetAttributes(attribute.Bool("replay", true))
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	span.SetAttributes(attribute.Bool("replay", !applied))
	return applied, nil
}

// sqlFulfillmentTx implementa FulfillmentTx sobre *sql.Tx
type sqlFulfillmentTx struct {
	tx *sql.Tx
}

func (t *sqlFulfillmentTx) LockVariation(ctx context.Context, productID string, filter VariationOption) (*ProductVariation, error) {
	clause, args, err := variationFilter(filter)
	if err != nil {
		return nil, err
	}

	var v ProductVariation
	err = t.tx.QueryRowContext(ctx, fmt.Sprintf(lockVariationQuery, clause), append([]any{productID}, args...)...).
		Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVariationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock variation: %w", err)
	}

	return &v, nil
}

func (t *sqlFulfillmentTx) SetVariationStock(ctx context.Context, variationID string, stock int) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE product_variations SET stock = $1 WHERE id = $2`, stock, variationID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return nil
}

// FindOrCreateUser retorna o usuário do email, criando-o se necessário
func (t *sqlFulfillmentTx) FindOrCreateUser(ctx context.Context, email string) (*User, error) {
	var u User
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO users (id, email)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, created_at
	`, uuid.New().String(), email).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &u, nil
}

// CreateOrder insere o pedido e seus itens
func (t *sqlFulfillmentTx) CreateOrder(ctx context.Context, order *Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, checkout_session_id, total_price_in_cents, shipping_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		order.ID,
		order.UserID,
		order.CheckoutSessionID,
		order.TotalPriceInCents,
		order.ShippingAddress,
		order.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return errCheckoutAlreadyRecorded
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, product_name, size, color, quantity, price_at_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare order items: %w", err)
	}
	defer stmt.Close()

	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		productID := sql.NullString{String: item.ProductID, Valid: item.ProductID != ""}

		if _, err := stmt.ExecContext(ctx,
			item.ID,
			order.ID,
			productID,
			item.ProductName,
			item.Size,
			item.Color,
			item.Quantity,
			item.PriceAtOrder,
		); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

// SaveOutboxEvent grava o evento na mesma transação do pedido
func (t *sqlFulfillmentTx) SaveOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, topic, payload)
		VALUES ($1, $2, $3, $4, $5)
	`,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Topic,
		string(event.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}
