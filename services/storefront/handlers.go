package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxWebhookPayload = 512 << 10

// CheckoutService abre sessões de pagamento
type CheckoutService interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (string, error)
}

// PaymentEventService processa os eventos assinados do processador de pagamento
type PaymentEventService interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
}

// OrderHistorySender envia o histórico de pedidos por email
type OrderHistorySender interface {
	SendOrderHistory(ctx context.Context, email string) error
}

// CatalogService atende as páginas públicas do catálogo
type CatalogService interface {
	Home(ctx context.Context) (*HomePage, error)
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

// StoreHandler contém os handlers HTTP da loja
type StoreHandler struct {
	checkout CheckoutService
	webhooks PaymentEventService
	notifier OrderHistorySender
	catalog  CatalogService
	chat     ChatClient
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewStoreHandler cria uma nova instância de StoreHandler
func NewStoreHandler(
	checkout CheckoutService,
	webhooks PaymentEventService,
	notifier OrderHistorySender,
	catalog CatalogService,
	chat ChatClient,
	tracer trace.Tracer,
	logger *zap.Logger,
) *StoreHandler {
	return &StoreHandler{
		checkout: checkout,
		webhooks: webhooks,
		notifier: notifier,
		catalog:  catalog,
		chat:     chat,
		tracer:   tracer,
		logger:   logger,
	}
}

// RegisterRoutes registra as rotas públicas da loja
func (h *StoreHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.OPTIONS("/checkout", h.CheckoutPreflight)
	api.POST("/checkout", h.Checkout)
	api.POST("/webhooks", h.Webhook)
	api.POST("/send-email", h.SendOrderHistory)
	api.POST("/chat", h.Chat)

	api.GET("/home", h.Home)
	api.GET("/products", h.ListProducts)
	api.GET("/products/:id", h.GetProduct)
}

// statusFromError traduz os erros de domínio em status HTTP
func statusFromError(err error) int {
	var fieldErrs FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrVariationNotFound),
		errors.Is(err, ErrNoOrdersFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrNegativeStock),
		errors.Is(err, ErrDuplicateVariation),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrMissingEmail),
		errors.Is(err, ErrNoLineItems),
		errors.Is(err, ErrInvalidImage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError escreve o erro no formato da API; erros internos não vazam detalhes
func respondError(c *gin.Context, err error) {
	status := statusFromError(err)

	var fieldErrs FieldErrors
	if errors.As(err, &fieldErrs) {
		c.JSON(status, gin.H{"errors": fieldErrs})
		return
	}
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func setCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func (h *StoreHandler) CheckoutPreflight(c *gin.Context) {
	setCORSHeaders(c)
	c.JSON(http.StatusOK, gin.H{})
}

// Checkout abre a sessão hospedada de pagamento para o carrinho
func (h *StoreHandler) Checkout(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "checkout")
	defer span.End()

	setCORSHeaders(c)

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	span.SetAttributes(attribute.Int("cart.lines", len(req.CartItems)))

	sessionURL, err := h.checkout.CreateSession(ctx, req)
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionUrl": sessionURL})
}

// Webhook recebe os eventos do processador de pagamento.
// 400 para eventos que nunca vão dar certo, 500 para o processador reenviar.
func (h *StoreHandler) Webhook(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "payment_webhook")
	defer span.End()

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookPayload))
	if err != nil {
		span.RecordError(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logWarn(ctx, h.logger, "⚠️ [WEBHOOK] payload too large", zap.Int64("limit", tooLarge.Limit))
			c.String(http.StatusRequestEntityTooLarge, "Payload Too Large")
			return
		}
		c.String(http.StatusBadRequest, "Bad Request: unreadable body")
		return
	}

	result, err := h.webhooks.HandleEvent(ctx, payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		span.RecordError(err)
		status := statusFromError(err)
		if status == http.StatusInternalServerError {
			c.String(status, "Webhook processing failed")
			return
		}
		c.String(status, "Bad Request: "+err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("event.type", result.EventType),
		attribute.String("order_id", result.OrderID),
		attribute.Bool("replayed", result.Replayed),
	)

	if result.Ignored || result.Replayed {
		c.String(http.StatusOK, "Event received")
		return
	}
	c.String(http.StatusOK, "Order created")
}

type sendEmailRequest struct {
	Email string `json:"email"`
}

// SendOrderHistory envia o histórico de pedidos para o email informado
func (h *StoreHandler) SendOrderHistory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "send_order_history")
	defer span.End()

	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	err := h.notifier.SendOrderHistory(ctx, req.Email)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Email sent successfully"})
	case errors.Is(err, ErrNoOrdersFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No orders found for this email"})
	default:
		span.RecordError(err)
		logError(ctx, h.logger, "❌ [ORDER HISTORY] failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send email"})
	}
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

// Chat repassa a mensagem ao assistente
func (h *StoreHandler) Chat(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "chat")
	defer span.End()

	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	reply, err := h.chat.Ask(ctx, req.Message)
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get response"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (h *StoreHandler) Home(c *gin.Context) {
	page, err := h.catalog.Home(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *StoreHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *StoreHandler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// HealthCheck verifica a saúde do serviço
func (h *StoreHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "storefront-service",
	})
}
