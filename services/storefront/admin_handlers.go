package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AdminService define as operações do painel administrativo usadas pelos handlers
type AdminService interface {
	CreateProduct(ctx context.Context, form *ProductForm, image *ImageUpload) (*Product, error)
	UpdateProduct(ctx context.Context, productID string, form *ProductForm, image *ImageUpload) (*Product, error)
	SetAvailability(ctx context.Context, productID string, available bool) error
	DeleteProduct(ctx context.Context, productID string) error
	UpsertVariations(ctx context.Context, productID string, inputs []VariationInput) ([]ProductVariation, error)
	GetProduct(ctx context.Context, productID string) (*Product, error)
	ListProducts(ctx context.Context) ([]ProductStats, error)
	ListOrders(ctx context.Context) (*OrdersOverview, error)
	DeleteOrder(ctx context.Context, orderID string) error
	ListUsers(ctx context.Context) ([]UserSummary, error)
	DeleteUser(ctx context.Context, userID string) error
	Dashboard(ctx context.Context) (*Dashboard, error)
}

// AdminHandler contém os handlers HTTP do painel
type AdminHandler struct {
	admin       AdminService
	tracer      trace.Tracer
	logger      *zap.Logger
	maxUploadMB int64
}

// NewAdminHandler cria uma nova instância de AdminHandler
func NewAdminHandler(admin AdminService, tracer trace.Tracer, logger *zap.Logger, maxUploadMB int64) *AdminHandler {
	return &AdminHandler{
		admin:       admin,
		tracer:      tracer,
		logger:      logger,
		maxUploadMB: maxUploadMB,
	}
}

func (h *AdminHandler) RegisterRoutes(r gin.IRouter) {
	admin := r.Group("/admin/api")

	admin.GET("/dashboard", h.Dashboard)

	admin.GET("/products", h.ListProducts)
	admin.POST("/products", h.CreateProduct)
	admin.GET("/products/:id", h.GetProduct)
	admin.PUT("/products/:id", h.UpdateProduct)
	admin.DELETE("/products/:id", h.DeleteProduct)
	admin.PATCH("/products/:id/availability", h.SetAvailability)
	admin.PATCH("/products/:id/variations", h.UpsertVariations)

	admin.GET("/orders", h.ListOrders)
	admin.DELETE("/orders/:id", h.DeleteOrder)

	admin.GET("/users", h.ListUsers)
	admin.DELETE("/users/:id", h.DeleteUser)
}

// readProductForm decodifica o multipart e abre a imagem, se houver
func (h *AdminHandler) readProductForm(c *gin.Context, imageRequired bool) (*ProductForm, *ImageUpload, func(), error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadMB<<20)

	multipartForm, err := c.MultipartForm()
	if err != nil {
		logWarn(c.Request.Context(), h.logger, "⚠️ [ADMIN] invalid multipart form", zap.Error(err))
		return nil, nil, nil, FieldErrors{"form": fmt.Sprintf("invalid multipart form: %v", err)}
	}

	form, err := DecodeProductForm(multipartForm, imageRequired)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() { _ = multipartForm.RemoveAll() }
	if form.Image == nil {
		return form, nil, cleanup, nil
	}

	file, err := form.Image.Open()
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to open image: %w", err)
	}

	return form, &ImageUpload{Filename: form.Image.Filename, Content: file}, func() {
		_ = file.Close()
		cleanup()
	}, nil
}

// CreateProduct cria um produto a partir do formulário multipart
func (h *AdminHandler) CreateProduct(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.create_product")
	defer span.End()

	form, image, cleanup, err := h.readProductForm(c, true)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cleanup()

	product, err := h.admin.CreateProduct(ctx, form, image)
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}

	span.SetAttributes(attribute.String("product_id", product.ID))
	c.JSON(http.StatusCreated, product)
}

// UpdateProduct edita o produto e substitui o conjunto de variações
func (h *AdminHandler) UpdateProduct(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.update_product")
	defer span.End()

	productID := c.Param("id")
	span.SetAttributes(attribute.String("product_id", productID))

	form, image, cleanup, err := h.readProductForm(c, false)
	if err != nil {
		respondError(c, err)
		return
	}
	defer cleanup()

	product, err := h.admin.UpdateProduct(ctx, productID, form, image)
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

type availabilityRequest struct {
	IsAvailableForPurchase *bool `json:"isAvailableForPurchase" binding:"required"`
}

func (h *AdminHandler) SetAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "isAvailableForPurchase is required"})
		return
	}

	if err := h.admin.SetAvailability(c.Request.Context(), c.Param("id"), *req.IsAvailableForPurchase); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) DeleteProduct(c *gin.Context) {
	if err := h.admin.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type upsertVariationsRequest struct {
	Variations []VariationInput `json:"variations" binding:"required" validate:"dive"`
}

// UpsertVariations sobrescreve o estoque das variações informadas
func (h *AdminHandler) UpsertVariations(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.upsert_variations")
	defer span.End()

	var req upsertVariationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := formValidator.Struct(req); err != nil {
		respondError(c, validationFieldErrors(err))
		return
	}

	variations, err := h.admin.UpsertVariations(ctx, c.Param("id"), req.Variations)
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variations": variations})
}

func (h *AdminHandler) GetProduct(c *gin.Context) {
	product, err := h.admin.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *AdminHandler) ListProducts(c *gin.Context) {
	products, err := h.admin.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *AdminHandler) ListOrders(c *gin.Context) {
	overview, err := h.admin.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *AdminHandler) DeleteOrder(c *gin.Context) {
	if err := h.admin.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.admin.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.admin.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Dashboard devolve os indicadores dos últimos 30 dias
func (h *AdminHandler) Dashboard(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "admin.dashboard")
	defer span.End()

	dashboard, err := h.admin.Dashboard(ctx)
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
