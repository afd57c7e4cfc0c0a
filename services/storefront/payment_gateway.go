package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const eventCheckoutSessionCompleted = "checkout.session.completed"

// CheckoutLine é uma linha do carrinho enviada ao processador de pagamento
type CheckoutLine struct {
	ProductID  string
	Name       string
	UnitAmount int64
	Quantity   int
	Option     VariationOption
}

// CheckoutSessionRequest agrupa os dados para abrir uma sessão de checkout
type CheckoutSessionRequest struct {
	Email string
	Lines []CheckoutLine
}

// PaymentEvent é o evento do webhook já validado
type PaymentEvent struct {
	ID      string
	Type    string
	Session *CheckoutSessionInfo
}

// CheckoutSessionInfo traz os campos da sessão usados no registro do pedido
type CheckoutSessionInfo struct {
	ID              string
	CustomerEmail   string
	AmountTotal     int64
	ShippingAddress string
}

// PurchasedLine é um item de linha da sessão concluída
type PurchasedLine struct {
	ProductID   string
	ProductName string
	Option      VariationOption
	Quantity    int
	UnitAmount  int64
}

// PaymentGateway define as operações usadas com o processador de pagamento
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error)
	ConstructEvent(payload []byte, signature string) (*PaymentEvent, error)
	GetCheckoutLineItems(ctx context.Context, sessionID string) ([]PurchasedLine, error)
}

// StripeGateway implementa PaymentGateway com a API do Stripe
type StripeGateway struct {
	api       *client.API
	cfg       StripeConfig
	publicURL string

	// um circuito por fluxo
	checkoutBreaker *gobreaker.CircuitBreaker
	sessionsBreaker *gobreaker.CircuitBreaker
}

// NewStripeGateway cria o gateway; backends nil usa os endpoints padrão do Stripe
func NewStripeGateway(cfg StripeConfig, publicURL string, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	if backends == nil {
		backends = stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			LeveledLogger: newStripeLogger(logger),
		})
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &StripeGateway{
		api:             api,
		cfg:             cfg,
		publicURL:       strings.TrimRight(publicURL, "/"),
		checkoutBreaker: newBreaker("stripe-checkout"),
		sessionsBreaker: newBreaker("stripe-sessions"),
	}
}

// stripeLogger encaminha os logs do SDK do Stripe para o zap
type stripeLogger struct {
	logger *zap.SugaredLogger
}

func newStripeLogger(logger *zap.Logger) stripe.LeveledLoggerInterface {
	return &stripeLogger{logger: logger.Named("stripe").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *stripeLogger) Debugf(format string, v ...interface{}) { l.logger.Debugf(format, v...) }
func (l *stripeLogger) Infof(format string, v ...interface{}) { l.logger.Infof(format, v...) }
func (l *stripeLogger) Warnf(format string, v ...interface{}) { l.logger.Warnf(format, v...) }
func (l *stripeLogger) Errorf(format string, v ...interface{}) { l.logger.Errorf(format, v...) }

// CreateCheckoutSession abre a sessão de pagamento e retorna a URL hospedada
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(req.Email),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{g.cfg.ShippingCountry}),
		},
		SuccessURL: stripe.String(g.publicURL + "/payment_success"),
		CancelURL:  stripe.String(g.publicURL + "/cart"),
	}
	params.Context = ctx

	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.cfg.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:     stripe.String(line.Name),
					Metadata: lineMetadata(line.ProductID, line.Option),
				},
				UnitAmount: stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
	}

	session, err := executeWithBreaker(g.checkoutBreaker, func() (*stripe.CheckoutSession, error) {
		return g.api.CheckoutSessions.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	return session.URL, nil
}

// lineMetadata grava productId e só os rótulos presentes da variação
func lineMetadata(productID string, opt VariationOption) map[string]string {
	metadata := map[string]string{"productId": productID}

	switch opt.Kind() {
	case OptionSizeAndColor:
		metadata["size"], _ = opt.Size()
		metadata["color"], _ = opt.Color()
	case OptionSizeOnly:
		metadata["size"], _ = opt.Size()
	case OptionColorOnly:
		metadata["color"], _ = opt.Color()
	case OptionNone:
	}

	return metadata
}

type sessionAddress struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type sessionPayload struct {
	ID              string `json:"id"`
	CustomerEmail   string `json:"customer_email"`
	AmountTotal     int64  `json:"amount_total"`
	ShippingDetails *struct {
		Address *sessionAddress `json:"address"`
	} `json:"shipping_details"`
}

// ConstructEvent valida a assinatura e decodifica o evento
func (g *StripeGateway) ConstructEvent(payload []byte, signature string) (*PaymentEvent, error) {
	if err := webhook.ValidatePayload(payload, signature, g.cfg.WebhookSecret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	result := &PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if result.Type != eventCheckoutSessionCompleted || event.Data == nil {
		return result, nil
	}

	var session sessionPayload
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	info := &CheckoutSessionInfo{
		ID:            session.ID,
		CustomerEmail: session.CustomerEmail,
		AmountTotal:   session.AmountTotal,
	}
	if session.ShippingDetails != nil {
		info.ShippingAddress = flattenAddress(session.ShippingDetails.Address)
	}
	result.Session = info

	return result, nil
}

// flattenAddress junta as partes presentes do endereço, uma por linha
func flattenAddress(addr *sessionAddress) string {
	if addr == nil {
		return ""
	}

	parts := make([]string, 0, 5)
	for _, part := range []string{addr.Line1, addr.City, addr.State, addr.PostalCode, addr.Country} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n")
}

// GetCheckoutLineItems lista todos os itens da sessão, página a página, com price.product expandido
func (g *StripeGateway) GetCheckoutLineItems(ctx context.Context, sessionID string) ([]PurchasedLine, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.AddExpand("data.price.product")

	lines, err := executeWithBreaker(g.sessionsBreaker, func() ([]PurchasedLine, error) {
		var lines []PurchasedLine
		iter := g.api.CheckoutSessions.ListLineItems(params)
		for iter.Next() {
			lines = append(lines, purchasedLine(iter.LineItem()))
		}
		return lines, iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout line items: %w", err)
	}

	return lines, nil
}

func purchasedLine(li *stripe.LineItem) PurchasedLine {
	line := PurchasedLine{Quantity: int(li.Quantity)}
	if li.Price != nil {
		line.UnitAmount = li.Price.UnitAmount
		if product := li.Price.Product; product != nil {
			line.ProductID = product.Metadata["productId"]
			line.ProductName = product.Name
			line.Option = NewVariationOption(product.Metadata["size"], product.Metadata["color"])
		}
	}
	if line.ProductName == "" {
		line.ProductName = li.Description
	}
	return line
}
