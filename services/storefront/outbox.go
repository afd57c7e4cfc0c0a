package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	orderAggregate     = "order"
	orderPaidEventType = "order.paid"
	maxOutboxAttempts  = 10
)

// OutboxEvent é uma mensagem gravada junto com o pedido e publicada depois no Kafka
type OutboxEvent struct {
	ID            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Topic         string          `db:"topic"`
	Payload       json.RawMessage `db:"payload"`
	CreatedAt     time.Time       `db:"created_at"`
	Attempts      int             `db:"attempts"`
}

// OrderPaidEvent é o payload publicado quando um checkout vira pedido
type OrderPaidEvent struct {
	OrderID           string          `json:"orderId"`
	CheckoutSessionID string          `json:"checkoutSessionId"`
	Email             string          `json:"email"`
	TotalPriceInCents int64           `json:"totalPriceInCents"`
	Items             []OrderPaidItem `json:"items"`
	PaidAt            time.Time       `json:"paidAt"`
}

type OrderPaidItem struct {
	ProductID    string `json:"productId"`
	Size         string `json:"size,omitempty"`
	Color        string `json:"color,omitempty"`
	Quantity     int    `json:"quantity"`
	PriceAtOrder int64  `json:"priceAtOrder"`
}

// NewOrderPaidEvent monta o evento de outbox de um pedido recém criado
func NewOrderPaidEvent(order *Order, email, topic string) (*OutboxEvent, error) {
	payload := OrderPaidEvent{
		OrderID:           order.ID,
		CheckoutSessionID: order.CheckoutSessionID,
		Email:             email,
		TotalPriceInCents: order.TotalPriceInCents,
		Items:             make([]OrderPaidItem, 0, len(order.Items)),
		PaidAt:            order.CreatedAt,
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, OrderPaidItem{
			ProductID:    item.ProductID,
			Size:         item.Size,
			Color:        item.Color,
			Quantity:     item.Quantity,
			PriceAtOrder: item.PriceAtOrder,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order event: %w", err)
	}

	return &OutboxEvent{
		AggregateType: orderAggregate,
		AggregateID:   order.ID,
		EventType:     orderPaidEventType,
		Topic:         topic,
		Payload:       data,
	}, nil
}

// OutboxRepository define a interface de leitura e marcação dos eventos pendentes
type OutboxRepository interface {
	BeginTx(ctx context.Context) (Tx, error)
	GetUnpublishedEvents(ctx context.Context, tx Tx, batchSize int) ([]*OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx Tx, eventID int64, errMsg string) error
}

// PostgresOutboxRepository implementa OutboxRepository usando PostgreSQL
type PostgresOutboxRepository struct {
	db *pgxpool.Pool
}

func NewOutboxRepository(db *pgxpool.Pool) OutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

func (r *PostgresOutboxRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

// GetUnpublishedEvents trava um lote de eventos pendentes (FOR UPDATE SKIP LOCKED)
func (r *PostgresOutboxRepository) GetUnpublishedEvents(ctx context.Context, tx Tx, batchSize int) ([]*OutboxEvent, error) {
	pgTx := tx.(*PostgresTx).tx

	rows, err := pgTx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, topic, payload, created_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL AND attempts < $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, maxOutboxAttempts, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(
			&e.ID,
			&e.AggregateType,
			&e.AggregateID,
			&e.EventType,
			&e.Topic,
			&e.Payload,
			&e.CreatedAt,
			&e.Attempts,
		); err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}

func (r *PostgresOutboxRepository) MarkEventPublished(ctx context.Context, tx Tx, eventID int64) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = NOW(), last_error = NULL
		WHERE id = $1
	`, eventID)
	return err
}

func (r *PostgresOutboxRepository) MarkEventFailed(ctx context.Context, tx Tx, eventID int64, errMsg string) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = NULL,
		    last_error = $1,
		    attempts = attempts + 1
		WHERE id = $2
	`, errMsg, eventID)
	return err
}

// Producer publica mensagens num tópico
type Producer interface {
	ProduceMessage(ctx context.Context, topic, key string, message any) error
	Close() error
}

type kafkaProducer struct {
	syncProducer sarama.SyncProducer
	logger       *zap.Logger
}

// NewKafkaProducer cria um producer síncrono com confirmação de todas as réplicas
func NewKafkaProducer(brokers []string, logger *zap.Logger) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}

	return newKafkaProducer(p, logger), nil
}

func newKafkaProducer(p sarama.SyncProducer, logger *zap.Logger) Producer {
	return &kafkaProducer{syncProducer: p, logger: logger}
}

func (p *kafkaProducer) ProduceMessage(ctx context.Context, topic, key string, message any) error {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		return err
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(jsonMsg),
		Headers: headers,
	}

	partition, offset, err := p.syncProducer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}

	logDebug(ctx, p.logger, "✅ [KAFKA] message sent",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.syncProducer.Close()
}

// OutboxPublisher publica periodicamente os eventos pendentes do outbox
type OutboxPublisher struct {
	repo      OutboxRepository
	producer  Producer
	logger    *zap.Logger
	batchSize int
	interval  time.Duration
}

func NewOutboxPublisher(repo OutboxRepository, producer Producer, cfg KafkaConfig, logger *zap.Logger) *OutboxPublisher {
	return &OutboxPublisher{
		repo:      repo,
		producer:  producer,
		logger:    logger,
		batchSize: cfg.BatchSize,
		interval:  cfg.Interval,
	}
}

// Start roda até o contexto ser cancelado
func (p *OutboxPublisher) Start(ctx context.Context) {
	logInfo(ctx, p.logger, "🚀 [OUTBOX] publisher started", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logInfo(ctx, p.logger, "🛑 [OUTBOX] publisher stopping")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				logError(ctx, p.logger, "❌ [OUTBOX] batch failed", zap.Error(err))
			}
		}
	}
}

func (p *OutboxPublisher) processBatch(ctx context.Context) error {
	ctx, span := startSpan(ctx, "OutboxPublisher.processBatch")
	defer span.End()

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logError(ctx, p.logger, "❌ [OUTBOX] rollback failed", zap.Error(err))
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("outbox.batch", len(events)))

	for _, event := range events {
		var payload map[string]any
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			logError(ctx, p.logger, "❌ [OUTBOX] invalid payload", zap.Int64("id", event.ID), zap.Error(err))
			_ = p.repo.MarkEventFailed(ctx, tx, event.ID, err.Error())
			continue
		}
		payload["eventId"] = event.ID
		payload["eventType"] = event.EventType

		if err := p.producer.ProduceMessage(ctx, event.Topic, event.AggregateID, payload); err != nil {
			logWarn(ctx, p.logger, "⚠️ [OUTBOX] publish failed",
				zap.Int64("id", event.ID),
				zap.Int("attempts", event.Attempts+1),
				zap.Error(err),
			)
			if dbErr := p.repo.MarkEventFailed(ctx, tx, event.ID, err.Error()); dbErr != nil {
				return dbErr
			}
			continue
		}

		if err := p.repo.MarkEventPublished(ctx, tx, event.ID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
