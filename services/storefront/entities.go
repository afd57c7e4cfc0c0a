package main

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Erros de domínio
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrVariationNotFound  = errors.New("variation not found")
	ErrInvalidFilter      = errors.New("invalid filter: size or color is required")
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrInvalidPrice       = errors.New("price must be a positive integer")
	ErrNegativeStock      = errors.New("stock must not be negative")
	ErrDuplicateVariation = errors.New("duplicate variation for size and color")
	ErrNoOrdersFound      = errors.New("no orders found for this email")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMissingEmail       = errors.New("missing customer email")
	ErrNoLineItems        = errors.New("no line items")
	ErrInvalidImage       = errors.New("file is not an image")
	ErrEmailDelivery      = errors.New("failed to send email")
	ErrChatUnavailable    = errors.New("chat service unavailable")
)

// OptionKind identifica quais rótulos uma variação carrega
type OptionKind int

const (
	OptionNone OptionKind = iota
	OptionSizeOnly
	OptionColorOnly
	OptionSizeAndColor
)

func (k OptionKind) String() string {
	switch k {
	case OptionNone:
		return "none"
	case OptionSizeOnly:
		return "size"
	case OptionColorOnly:
		return "color"
	case OptionSizeAndColor:
		return "size_and_color"
	default:
		return fmt.Sprintf("OptionKind(%d)", int(k))
	}
}

// VariationOption representa a combinação tamanho/cor de uma variação.
// Rótulos ausentes são guardados como string vazia.
type VariationOption struct {
	kind  OptionKind
	size  string
	color string
}

// NewVariationOption cria uma VariationOption a partir de rótulos opcionais
func NewVariationOption(size, color string) VariationOption {
	size = strings.TrimSpace(size)
	color = strings.TrimSpace(color)

	switch {
	case size != "" && color != "":
		return VariationOption{kind: OptionSizeAndColor, size: size, color: color}
	case size != "":
		return VariationOption{kind: OptionSizeOnly, size: size}
	case color != "":
		return VariationOption{kind: OptionColorOnly, color: color}
	default:
		return VariationOption{kind: OptionNone}
	}
}

func (o VariationOption) Kind() OptionKind { return o.kind }

// Size retorna o tamanho e se ele está presente
func (o VariationOption) Size() (string, bool) {
	switch o.kind {
	case OptionSizeOnly, OptionSizeAndColor:
		return o.size, true
	case OptionColorOnly, OptionNone:
		return "", false
	default:
		return "", false
	}
}

// Color retorna a cor e se ela está presente
func (o VariationOption) Color() (string, bool) {
	switch o.kind {
	case OptionColorOnly, OptionSizeAndColor:
		return o.color, true
	case OptionSizeOnly, OptionNone:
		return "", false
	default:
		return "", false
	}
}

// Labels retorna os rótulos na forma persistida (vazio = ausente)
func (o VariationOption) Labels() (size, color string) {
	return o.size, o.color
}

func (o VariationOption) String() string {
	switch o.kind {
	case OptionSizeAndColor:
		return o.size + "/" + o.color
	case OptionSizeOnly:
		return o.size
	case OptionColorOnly:
		return o.color
	case OptionNone:
		return "-"
	default:
		return "?"
	}
}

// Product representa um produto do catálogo
type Product struct {
	ID                     string             `json:"id" db:"id"`
	Name                   string             `json:"name" db:"name"`
	PriceInCents           int64              `json:"priceInCents" db:"price_in_cents"`
	Description            string             `json:"description" db:"description"`
	ImagePath              string             `json:"imagePath" db:"image_path"`
	IsAvailableForPurchase bool               `json:"isAvailableForPurchase" db:"is_available_for_purchase"`
	CreatedAt              time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time          `json:"updatedAt" db:"updated_at"`
	Variations             []ProductVariation `json:"variations,omitempty"`
}

// ProductStats é a linha da tabela de produtos do admin
type ProductStats struct {
	Product
	OrderCount   int `json:"orderCount"`
	QuantitySold int `json:"quantitySold"`
}

// ProductVariation representa o estoque de uma combinação tamanho/cor
type ProductVariation struct {
	ID        string `json:"id" db:"id"`
	ProductID string `json:"productId" db:"product_id"`
	Size      string `json:"size,omitempty" db:"size"`
	Color     string `json:"color,omitempty" db:"color"`
	Stock     int    `json:"stock" db:"stock"`
}

func (v ProductVariation) Option() VariationOption {
	return NewVariationOption(v.Size, v.Color)
}

// Decrement aplica uma baixa de estoque sem deixar o saldo negativo.
// Retorna quanto faltou para atender a quantidade pedida.
func (v *ProductVariation) Decrement(amount int) (shortfall int) {
	if amount >= v.Stock {
		shortfall = amount - v.Stock
		v.Stock = 0
		return shortfall
	}
	v.Stock -= amount
	return 0
}

// VariationInput é a forma de entrada de uma variação (admin e reconciliação)
type VariationInput struct {
	Size  string `json:"size"`
	Color string `json:"color"`
	Stock int    `json:"stock" validate:"gte=0"`
}

func (in VariationInput) Option() VariationOption {
	return NewVariationOption(in.Size, in.Color)
}

// validateVariationInputs garante estoque não negativo e unicidade por (tamanho, cor)
func validateVariationInputs(inputs []VariationInput) error {
	seen := make(map[VariationOption]struct{}, len(inputs))
	for _, in := range inputs {
		if in.Stock < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeStock, in.Option())
		}
		opt := in.Option()
		if _, ok := seen[opt]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateVariation, opt)
		}
		seen[opt] = struct{}{}
	}
	return nil
}

// NewProductInput agrupa os dados para criar um produto com estoque inicial
type NewProductInput struct {
	Name                   string
	PriceInCents           int64
	ImagePath              string
	Description            string
	IsAvailableForPurchase bool
	Variations             []VariationInput
}

// NewProduct cria uma nova instância de Product
func NewProduct(id string, in NewProductInput) *Product {
	now := time.Now()
	return &Product{
		ID:                     id,
		Name:                   in.Name,
		PriceInCents:           in.PriceInCents,
		Description:            in.Description,
		ImagePath:              in.ImagePath,
		IsAvailableForPurchase: in.IsAvailableForPurchase,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// User representa um cliente identificado pelo email
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Order representa um pedido pago
type Order struct {
	ID                string      `json:"id" db:"id"`
	UserID            string      `json:"userId" db:"user_id"`
	CheckoutSessionID string      `json:"checkoutSessionId" db:"checkout_session_id"`
	TotalPriceInCents int64       `json:"totalPriceInCents" db:"total_price_in_cents"`
	ShippingAddress   string      `json:"shippingAddress" db:"shipping_address"`
	CreatedAt         time.Time   `json:"createdAt" db:"created_at"`
	Items             []OrderItem `json:"orderItems"`
}

// NewOrder cria uma nova instância de Order
func NewOrder(id, userID, sessionID string, total int64, shippingAddress string, items []OrderItem) *Order {
	for i := range items {
		items[i].OrderID = id
	}
	return &Order{
		ID:                id,
		UserID:            userID,
		CheckoutSessionID: sessionID,
		TotalPriceInCents: total,
		ShippingAddress:   shippingAddress,
		CreatedAt:         time.Now(),
		Items:             items,
	}
}

// ItemsTotal soma quantidade x preço de todos os itens
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Quantity) * item.PriceAtOrder
	}
	return total
}

// OrderItem guarda os dados do produto no momento da compra
type OrderItem struct {
	ID           string `json:"id" db:"id"`
	OrderID      string `json:"orderId" db:"order_id"`
	ProductID    string `json:"productId" db:"product_id"`
	ProductName  string `json:"productName" db:"product_name"`
	Size         string `json:"size,omitempty" db:"size"`
	Color        string `json:"color,omitempty" db:"color"`
	Quantity     int    `json:"quantity" db:"quantity"`
	PriceAtOrder int64  `json:"priceAtOrder" db:"price_at_order"`
	ProductImage string `json:"productImage,omitempty"`
}

func (i OrderItem) Option() VariationOption {
	return NewVariationOption(i.Size, i.Color)
}

// OrderHistory agrupa um usuário e seus pedidos
type OrderHistory struct {
	User   User
	Orders []Order
}

// FormatCents formata um valor em centavos com duas casas decimais
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// OrderSummary é o pedido com o email do comprador, usado na listagem do admin
type OrderSummary struct {
	Order
	UserEmail string `json:"userEmail"`
}

// UserSummary é o usuário com o total de pedidos e o valor gasto
type UserSummary struct {
	User
	OrderCount        int   `json:"orderCount"`
	TotalSpentInCents int64 `json:"totalSpentInCents"`
}

// SalesSummary resume as vendas de um período
type SalesSummary struct {
	RevenueInCents      int64 `json:"revenueInCents"`
	AverageOrderInCents int64 `json:"averageOrderInCents"`
	OrderCount          int   `json:"orderCount"`
}

type UserCounts struct {
	Total int `json:"total"`
	New   int `json:"new"`
}

type BestSeller struct {
	ProductID    string `json:"productId"`
	Name         string `json:"name"`
	ImagePath    string `json:"imagePath"`
	QuantitySold int    `json:"quantitySold"`
}

type LowStockVariation struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
	Stock       int    `json:"stock"`
}

// Dashboard agrega os indicadores do painel do admin
type Dashboard struct {
	Sales       SalesSummary        `json:"sales"`
	Users       UserCounts          `json:"users"`
	BestSellers []BestSeller        `json:"bestSellers"`
	LowStock    []LowStockVariation `json:"lowStock"`
}
