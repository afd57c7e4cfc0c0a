package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// CatalogRepository define a interface para operações de banco de dados do catálogo
type CatalogRepository interface {
	BeginTx(ctx context.Context) (StockTx, error)

	GetProduct(ctx context.Context, productID string) (*Product, error)
	GetVariations(ctx context.Context, productID string) ([]ProductVariation, error)
	ListAvailableProducts(ctx context.Context) ([]Product, error)
	ListNewestProducts(ctx context.Context, limit int) ([]Product, error)
	ListMostPopularProducts(ctx context.Context, limit int) ([]Product, error)
	ListProductStats(ctx context.Context) ([]ProductStats, error)
	SetAvailability(ctx context.Context, productID string, available bool) error
	DeleteProduct(ctx context.Context, productID string) (*Product, error)

	// Operações que participam de uma transação aberta
	CreateProduct(ctx context.Context, tx Tx, product *Product) error
	UpdateProduct(ctx context.Context, tx Tx, product *Product) error
	GetProductForUpdate(ctx context.Context, tx Tx, productID string) (*Product, error)
	InsertVariations(ctx context.Context, tx Tx, productID string, inputs []VariationInput) ([]ProductVariation, error)
	UpsertVariations(ctx context.Context, tx Tx, productID string, inputs []VariationInput) error
	DeleteVariations(ctx context.Context, tx Tx, productID string) error
}

// Tx interface para transações
type Tx interface {
	Commit() error
	Rollback() error
}

// VariationStore expõe a baixa de estoque sobre uma transação já aberta.
// Implementada tanto pela transação pgx quanto pela transação database/sql do webhook.
type VariationStore interface {
	LockVariation(ctx context.Context, productID string, filter VariationOption) (*ProductVariation, error)
	SetVariationStock(ctx context.Context, variationID string, stock int) error
}

// StockTx é uma transação capaz de travar e atualizar variações
type StockTx interface {
	Tx
	VariationStore
}

const productColumns = `id, name, price_in_cents, description, image_path, is_available_for_purchase, created_at, updated_at`

const lockVariationQuery = `
	SELECT id, product_id, size, color, stock
	FROM product_variations
	WHERE product_id = $1%s
	ORDER BY id
	LIMIT 1
	FOR UPDATE
`

// variationFilter monta o trecho WHERE da busca de variação: rótulos presentes
// precisam casar, rótulos ausentes não restringem.
func variationFilter(filter VariationOption) (string, []any, error) {
	switch filter.Kind() {
	case OptionSizeOnly:
		size, _ := filter.Size()
		return " AND size = $2", []any{size}, nil
	case OptionColorOnly:
		color, _ := filter.Color()
		return " AND color = $2", []any{color}, nil
	case OptionSizeAndColor:
		size, _ := filter.Size()
		color, _ := filter.Color()
		return " AND size = $2 AND color = $3", []any{size, color}, nil
	case OptionNone:
		return "", nil, ErrInvalidFilter
	default:
		return "", nil, ErrInvalidFilter
	}
}

// PostgresCatalogRepository implementa CatalogRepository usando PostgreSQL
type PostgresCatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository cria uma nova instância de PostgresCatalogRepository
func NewCatalogRepository(db *pgxpool.Pool) CatalogRepository {
	return &PostgresCatalogRepository{
		db: db,
	}
}

// PostgresTx implementa StockTx sobre uma transação pgx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// LockVariation obtém a primeira variação que casa com o filtro com lock pessimista (FOR UPDATE)
func (t *PostgresTx) LockVariation(ctx context.Context, productID string, filter VariationOption) (*ProductVariation, error) {
	clause, args, err := variationFilter(filter)
	if err != nil {
		return nil, err
	}

	var v ProductVariation
	err = t.tx.QueryRow(ctx, fmt.Sprintf(lockVariationQuery, clause), append([]any{productID}, args...)...).
		Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVariationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock variation: %w", err)
	}

	return &v, nil
}

func (t *PostgresTx) SetVariationStock(ctx context.Context, variationID string, stock int) error {
	_, err := t.tx.Exec(ctx, `UPDATE product_variations SET stock = $1 WHERE id = $2`, stock, variationID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return nil
}

// BeginTx inicia uma nova transação
func (r *PostgresCatalogRepository) BeginTx(ctx context.Context) (StockTx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.PriceInCents,
		&p.Description,
		&p.ImagePath,
		&p.IsAvailableForPurchase,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// GetProduct busca um produto e suas variações
func (r *PostgresCatalogRepository) GetProduct(ctx context.Context, productID string) (*Product, error) {
	ctx, span := startSpan(ctx, "CatalogRepository.GetProduct", attribute.String("product_id", productID))
	defer span.End()

	product, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	product.Variations, err = r.GetVariations(ctx, productID)
	if err != nil {
		return nil, err
	}

	return product, nil
}

// GetVariations lista as variações de um produto
func (r *PostgresCatalogRepository) GetVariations(ctx context.Context, productID string) ([]ProductVariation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, size, color, stock
		FROM product_variations
		WHERE product_id = $1
		ORDER BY size, color
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variations: %w", err)
	}
	defer rows.Close()

	variations := make([]ProductVariation, 0)
	for rows.Next() {
		var v ProductVariation
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.Stock); err != nil {
			return nil, fmt.Errorf("error scanning variation: %w", err)
		}
		variations = append(variations, v)
	}

	return variations, rows.Err()
}

// ListAvailableProducts lista os produtos disponíveis ordenados pelo nome
func (r *PostgresCatalogRepository) ListAvailableProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_available_for_purchase = TRUE
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return collectProducts(rows)
}

func (r *PostgresCatalogRepository) ListNewestProducts(ctx context.Context, limit int) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_available_for_purchase = TRUE
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list newest products: %w", err)
	}
	return collectProducts(rows)
}

// ListMostPopularProducts ordena os produtos disponíveis pela quantidade de itens de pedido
func (r *PostgresCatalogRepository) ListMostPopularProducts(ctx context.Context, limit int) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name, p.price_in_cents, p.description, p.image_path,
		       p.is_available_for_purchase, p.created_at, p.updated_at
		FROM products p
		LEFT JOIN order_items oi ON oi.product_id = p.id
		WHERE p.is_available_for_purchase = TRUE
		GROUP BY p.id
		ORDER BY COUNT(oi.id) DESC, p.name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list popular products: %w", err)
	}
	return collectProducts(rows)
}

// ListProductStats monta a tabela de produtos do admin com pedidos e quantidade vendida
func (r *PostgresCatalogRepository) ListProductStats(ctx context.Context) ([]ProductStats, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name, p.price_in_cents, p.description, p.image_path,
		       p.is_available_for_purchase, p.created_at, p.updated_at,
		       COUNT(DISTINCT oi.order_id), COALESCE(SUM(oi.quantity), 0)
		FROM products p
		LEFT JOIN order_items oi ON oi.product_id = p.id
		GROUP BY p.id
		ORDER BY p.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list product stats: %w", err)
	}
	defer rows.Close()

	stats := make([]ProductStats, 0)
	for rows.Next() {
		var s ProductStats
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.PriceInCents,
			&s.Description,
			&s.ImagePath,
			&s.IsAvailableForPurchase,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.OrderCount,
			&s.QuantitySold,
		); err != nil {
			return nil, fmt.Errorf("error scanning product stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

func (r *PostgresCatalogRepository) SetAvailability(ctx context.Context, productID string, available bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products
		SET is_available_for_purchase = $1, updated_at = NOW()
		WHERE id = $2
	`, available, productID)
	if err != nil {
		return fmt.Errorf("failed to update availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct remove o produto (variações em cascata) e retorna a linha removida
func (r *PostgresCatalogRepository) DeleteProduct(ctx context.Context, productID string) (*Product, error) {
	product, err := scanProduct(r.db.QueryRow(ctx, `DELETE FROM products WHERE id = $1 RETURNING `+productColumns, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete product: %w", err)
	}
	return product, nil
}

// CreateProduct insere o produto dentro da transação
func (r *PostgresCatalogRepository) CreateProduct(ctx context.Context, tx Tx, product *Product) error {
	pgTx := tx.(*PostgresTx).tx

	_, err := pgTx.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		product.ID,
		product.Name,
		product.PriceInCents,
		product.Description,
		product.ImagePath,
		product.IsAvailableForPurchase,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (r *PostgresCatalogRepository) UpdateProduct(ctx context.Context, tx Tx, product *Product) error {
	pgTx := tx.(*PostgresTx).tx

	tag, err := pgTx.Exec(ctx, `
		UPDATE products
		SET name = $1,
		    price_in_cents = $2,
		    description = $3,
		    image_path = $4,
		    is_available_for_purchase = $5,
		    updated_at = NOW()
		WHERE id = $6
	`,
		product.Name,
		product.PriceInCents,
		product.Description,
		product.ImagePath,
		product.IsAvailableForPurchase,
		product.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetProductForUpdate obtém o produto com lock pessimista (FOR UPDATE)
func (r *PostgresCatalogRepository) GetProductForUpdate(ctx context.Context, tx Tx, productID string) (*Product, error) {
	pgTx := tx.(*PostgresTx).tx

	product, err := scanProduct(pgTx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product with lock: %w", err)
	}
	return product, nil
}

// InsertVariations grava o conjunto de variações com COPY
func (r *PostgresCatalogRepository) InsertVariations(ctx context.Context, tx Tx, productID string, inputs []VariationInput) ([]ProductVariation, error) {
	pgTx := tx.(*PostgresTx).tx

	variations := make([]ProductVariation, 0, len(inputs))
	rows := make([][]any, 0, len(inputs))
	for _, in := range inputs {
		size, color := in.Option().Labels()
		v := ProductVariation{
			ID:        uuid.New().String(),
			ProductID: productID,
			Size:      size,
			Color:     color,
			Stock:     in.Stock,
		}
		variations = append(variations, v)
		rows = append(rows, []any{v.ID, v.ProductID, v.Size, v.Color, v.Stock})
	}

	if len(rows) == 0 {
		return variations, nil
	}

	_, err := pgTx.CopyFrom(
		ctx,
		pgx.Identifier{"product_variations"},
		[]string{"id", "product_id", "size", "color", "stock"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to copy variations: %w", err)
	}

	return variations, nil
}

// UpsertVariations sobrescreve o estoque de cada (tamanho, cor) ou cria a variação
func (r *PostgresCatalogRepository) UpsertVariations(ctx context.Context, tx Tx, productID string, inputs []VariationInput) error {
	pgTx := tx.(*PostgresTx).tx

	batch := &pgx.Batch{}
	for _, in := range inputs {
		size, color := in.Option().Labels()
		batch.Queue(`
			INSERT INTO product_variations (id, product_id, size, color, stock)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (product_id, size, color) DO UPDATE SET stock = EXCLUDED.stock
		`, uuid.New().String(), productID, size, color, in.Stock)
	}

	results := pgTx.SendBatch(ctx, batch)
	for range inputs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("failed to upsert variation: %w", err)
		}
	}

	return results.Close()
}

func (r *PostgresCatalogRepository) DeleteVariations(ctx context.Context, tx Tx, productID string) error {
	pgTx := tx.(*PostgresTx).tx

	if _, err := pgTx.Exec(ctx, `DELETE FROM product_variations WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("failed to delete variations: %w", err)
	}
	return nil
}
