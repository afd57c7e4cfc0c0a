package main

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CartProduct é o produto como o carrinho o envia
type CartProduct struct {
	ID           string `json:"id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	PriceInCents int64  `json:"priceInCents" binding:"required,gt=0"`
}

// CartItem é uma linha do carrinho
type CartItem struct {
	Item     CartProduct `json:"item"`
	Size     string      `json:"size"`
	Color    string      `json:"color"`
	Quantity int         `json:"quantity" binding:"required,gt=0"`
}

// CheckoutRequest representa a requisição de checkout
type CheckoutRequest struct {
	CartItems []CartItem `json:"cartItems" binding:"required,min=1,dive"`
	Email     string     `json:"email" binding:"required,email"`
}

// CheckoutUseCase abre sessões de pagamento a partir do carrinho
type CheckoutUseCase struct {
	gateway PaymentGateway
	logger  *zap.Logger
}

// NewCheckoutUseCase cria uma nova instância de CheckoutUseCase
func NewCheckoutUseCase(gateway PaymentGateway, logger *zap.Logger) *CheckoutUseCase {
	return &CheckoutUseCase{
		gateway: gateway,
		logger:  logger,
	}
}

// CreateSession retorna a URL da sessão hospedada de pagamento
func (uc *CheckoutUseCase) CreateSession(ctx context.Context, req CheckoutRequest) (string, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return "", ErrMissingEmail
	}
	if len(req.CartItems) == 0 {
		return "", ErrNoLineItems
	}

	ctx, span := startSpan(ctx, "CheckoutUseCase.CreateSession", attribute.Int("cart.lines", len(req.CartItems)))
	defer span.End()

	lines := make([]CheckoutLine, 0, len(req.CartItems))
	for _, ci := range req.CartItems {
		if ci.Quantity <= 0 {
			return "", ErrInvalidQuantity
		}
		if ci.Item.PriceInCents <= 0 {
			return "", ErrInvalidPrice
		}
		lines = append(lines, CheckoutLine{
			ProductID:  ci.Item.ID,
			Name:       ci.Item.Name,
			UnitAmount: ci.Item.PriceInCents,
			Quantity:   ci.Quantity,
			Option:     NewVariationOption(ci.Size, ci.Color),
		})
	}

	url, err := uc.gateway.CreateCheckoutSession(ctx, CheckoutSessionRequest{Email: email, Lines: lines})
	if err != nil {
		span.RecordError(err)
		logError(ctx, uc.logger, "❌ [CHECKOUT] session creation failed", zap.Error(err))
		return "", err
	}

	logInfo(ctx, uc.logger, "✅ [CHECKOUT] session created", zap.Int("lines", len(lines)))
	return url, nil
}
