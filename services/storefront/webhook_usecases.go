package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FulfillmentStage marca até onde o processamento de um checkout avançou
type FulfillmentStage string

const (
	StageReceived      FulfillmentStage = "received"
	StageVerified      FulfillmentStage = "verified"
	StageUserResolved  FulfillmentStage = "user-resolved"
	StageOrderRecorded FulfillmentStage = "order-recorded"
	StageStockAdjusted FulfillmentStage = "stock-adjusted"
	StageNotified      FulfillmentStage = "notified"
	StageAcknowledged  FulfillmentStage = "acknowledged"
)

// WebhookResult descreve o que foi feito com um evento
type WebhookResult struct {
	EventType string
	Stage     FulfillmentStage
	OrderID   string
	Ignored   bool
	Replayed  bool
}

// PurchaseNotifier envia a confirmação de compra
type PurchaseNotifier interface {
	SendPurchaseConfirmation(ctx context.Context, email string, order *Order) error
}

// WebhookUseCase transforma um checkout concluído em pedido, baixa de estoque e email
type WebhookUseCase struct {
	gateway     PaymentGateway
	store       FulfillmentStore
	stock       *StockUseCase
	notifier    PurchaseNotifier
	metrics     *StoreMetrics
	logger      *zap.Logger
	ordersTopic string
}

// NewWebhookUseCase cria uma nova instância de WebhookUseCase
func NewWebhookUseCase(
	gateway PaymentGateway,
	store FulfillmentStore,
	stock *StockUseCase,
	notifier PurchaseNotifier,
	metrics *StoreMetrics,
	logger *zap.Logger,
	ordersTopic string,
) *WebhookUseCase {
	return &WebhookUseCase{
		gateway:     gateway,
		store:       store,
		stock:       stock,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		ordersTopic: ordersTopic,
	}
}

func (uc *WebhookUseCase) advance(ctx context.Context, result *WebhookResult, stage FulfillmentStage) {
	result.Stage = stage
	trace.SpanFromContext(ctx).AddEvent(string(stage))
	logDebug(ctx, uc.logger, "➡️ [WEBHOOK] stage", zap.String("stage", string(stage)), zap.String("order_id", result.OrderID))
}

// HandleEvent processa um evento assinado do processador de pagamento
func (uc *WebhookUseCase) HandleEvent(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := startSpan(ctx, "WebhookUseCase.HandleEvent")
	defer span.End()

	result := &WebhookResult{}
	uc.advance(ctx, result, StageReceived)

	// 1. Valida a assinatura
	event, err := uc.gateway.ConstructEvent(payload, signature)
	if err != nil {
		uc.metrics.webhookEvent(ctx, "unknown", "invalid")
		logWarn(ctx, uc.logger, "⚠️ [WEBHOOK] rejected event", zap.Error(err))
		return result, err
	}
	result.EventType = event.Type
	span.SetAttributes(attribute.String("event.type", event.Type), attribute.String("event.id", event.ID))
	uc.advance(ctx, result, StageVerified)

	// 2. Só checkout concluído gera pedido
	if event.Type != eventCheckoutSessionCompleted {
		result.Ignored = true
		uc.metrics.webhookEvent(ctx, event.Type, "ignored")
		uc.advance(ctx, result, StageAcknowledged)
		return result, nil
	}

	session := event.Session
	if session == nil || session.CustomerEmail == "" {
		uc.metrics.webhookEvent(ctx, event.Type, "missing_email")
		logWarn(ctx, uc.logger, "⚠️ [WEBHOOK] missing customer email")
		return result, ErrMissingEmail
	}
	span.SetAttributes(attribute.String("checkout_session_id", session.ID))

	// 3. Busca os itens da sessão antes de abrir a transação: sem itens nada é gravado, nem o usuário
	lines, err := uc.gateway.GetCheckoutLineItems(ctx, session.ID)
	if err != nil {
		span.RecordError(err)
		uc.metrics.webhookEvent(ctx, event.Type, "error")
		return result, err
	}
	if len(lines) == 0 {
		uc.metrics.webhookEvent(ctx, event.Type, "no_line_items")
		logWarn(ctx, uc.logger, "⚠️ [WEBHOOK] no line items", zap.String("checkout_session_id", session.ID))
		return result, ErrNoLineItems
	}

	// 4. Registra usuário, pedido, estoque e outbox numa única transação
	var order *Order
	applied, err := uc.store.RecordCheckout(ctx, session.ID, func(tx FulfillmentTx) error {
		var txErr error
		order, txErr = uc.recordOrder(ctx, tx, session, lines, result)
		return txErr
	})
	if err != nil {
		span.RecordError(err)
		uc.metrics.webhookEvent(ctx, event.Type, "error")
		logError(ctx, uc.logger, "❌ [WEBHOOK] failed to record order",
			zap.String("checkout_session_id", session.ID),
			zap.Error(err),
		)
		return result, err
	}

	if !applied {
		result.Replayed = true
		result.OrderID = ""
		uc.metrics.webhookEvent(ctx, event.Type, "replayed")
		logInfo(ctx, uc.logger, "ℹ️ [IDEMPOTENCY] checkout already recorded", zap.String("checkout_session_id", session.ID))
		uc.advance(ctx, result, StageAcknowledged)
		return result, nil
	}

	uc.metrics.ordersCreated.Add(ctx, 1)
	logInfo(ctx, uc.logger, "✅ [ORDER] recorded",
		zap.String("order_id", order.ID),
		zap.String("checkout_session_id", session.ID),
		zap.Int("items", len(order.Items)),
	)

	// 5. Confirmação por email; o pedido já está gravado
	if err := uc.notifier.SendPurchaseConfirmation(ctx, session.CustomerEmail, order); err != nil {
		logError(ctx, uc.logger, "❌ [WEBHOOK] confirmation email failed", zap.String("order_id", order.ID), zap.Error(err))
	} else {
		uc.advance(ctx, result, StageNotified)
	}

	uc.metrics.webhookEvent(ctx, event.Type, "processed")
	uc.advance(ctx, result, StageAcknowledged)
	return result, nil
}

func (uc *WebhookUseCase) recordOrder(ctx context.Context, tx FulfillmentTx, session *CheckoutSessionInfo, lines []PurchasedLine, result *WebhookResult) (*Order, error) {
	user, err := tx.FindOrCreateUser(ctx, session.CustomerEmail)
	if err != nil {
		return nil, err
	}
	uc.advance(ctx, result, StageUserResolved)

	items := make([]OrderItem, 0, len(lines))
	for _, line := range lines {
		size, color := line.Option.Labels()
		items = append(items, OrderItem{
			ID:           uuid.New().String(),
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			Size:         size,
			Color:        color,
			Quantity:     line.Quantity,
			PriceAtOrder: line.UnitAmount,
		})
	}

	order := NewOrder(uuid.New().String(), user.ID, session.ID, session.AmountTotal, session.ShippingAddress, items)
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	result.OrderID = order.ID
	uc.advance(ctx, result, StageOrderRecorded)

	if sum := order.ItemsTotal(); sum != order.TotalPriceInCents {
		logWarn(ctx, uc.logger, "⚠️ [ORDER] total differs from item sum",
			zap.String("order_id", order.ID),
			zap.Int64("total", order.TotalPriceInCents),
			zap.Int64("items_total", sum),
		)
	}

	for _, line := range lines {
		if line.ProductID == "" {
			logWarn(ctx, uc.logger, "⚠️ [STOCK] missing productId in metadata, skipping stock update",
				zap.String("product_name", line.ProductName))
			continue
		}

		_, err := uc.stock.DecrementStockWith(ctx, tx, line.ProductID, line.Option, line.Quantity)
		if isStockRuleError(err) {
			logWarn(ctx, uc.logger, "⚠️ [STOCK] skipping stock update",
				zap.String("product_id", line.ProductID),
				zap.String("variation", line.Option.String()),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decrease stock for %s: %w", line.ProductID, err)
		}
	}
	uc.advance(ctx, result, StageStockAdjusted)

	event, err := NewOrderPaidEvent(order, session.CustomerEmail, uc.ordersTopic)
	if err != nil {
		return nil, err
	}
	if err := tx.SaveOutboxEvent(ctx, event); err != nil {
		return nil, err
	}

	return order, nil
}

// isStockRuleError separa falhas de regra (item ignorado) de falhas de infraestrutura
func isStockRuleError(err error) bool {
	return errors.Is(err, ErrInvalidFilter) ||
		errors.Is(err, ErrVariationNotFound) ||
		errors.Is(err, ErrInvalidQuantity)
}
