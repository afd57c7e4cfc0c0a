package main

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// NotifierUseCase envia os emails de histórico e de confirmação de compra
type NotifierUseCase struct {
	orders    OrderRepository
	mailer    Mailer
	metrics   *StoreMetrics
	logger    *zap.Logger
	publicURL string
}

// NewNotifierUseCase cria uma nova instância de NotifierUseCase
func NewNotifierUseCase(
	orders OrderRepository,
	mailer Mailer,
	metrics *StoreMetrics,
	logger *zap.Logger,
	publicURL string,
) *NotifierUseCase {
	return &NotifierUseCase{
		orders:    orders,
		mailer:    mailer,
		metrics:   metrics,
		logger:    logger,
		publicURL: publicURL,
	}
}

// SendOrderHistory envia ao cliente todos os pedidos feitos com o email
func (uc *NotifierUseCase) SendOrderHistory(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingEmail
	}

	ctx, span := startSpan(ctx, "NotifierUseCase.SendOrderHistory")
	defer span.End()

	// 1. Carrega usuário, pedidos e itens
	history, err := uc.orders.GetOrderHistory(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return ErrNoOrdersFound
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	if len(history.Orders) == 0 {
		return ErrNoOrdersFound
	}

	span.SetAttributes(attribute.Int("orders", len(history.Orders)))

	// 2. Renderiza e envia
	html, err := renderOrderHistory(history, uc.publicURL)
	if err != nil {
		return err
	}

	if err := uc.mailer.Send(ctx, Email{To: email, Subject: orderHistorySubject, HTML: html}); err != nil {
		span.RecordError(err)
		return err
	}

	uc.metrics.emailsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "order_history")))
	logInfo(ctx, uc.logger, "✅ [ORDER HISTORY] sent", zap.Int("orders", len(history.Orders)))
	return nil
}

// SendPurchaseConfirmation envia o resumo de um pedido recém pago
func (uc *NotifierUseCase) SendPurchaseConfirmation(ctx context.Context, email string, order *Order) error {
	html, err := renderPurchaseConfirmation(order, uc.publicURL)
	if err != nil {
		return err
	}

	if err := uc.mailer.Send(ctx, Email{To: email, Subject: purchaseConfirmationSubject, HTML: html}); err != nil {
		return err
	}

	uc.metrics.emailsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "purchase_confirmation")))
	return nil
}
