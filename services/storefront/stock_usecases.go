package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// StockUseCase contém a lógica de negócio do estoque de variações
type StockUseCase struct {
	repository CatalogRepository
	metrics    *StoreMetrics
	logger     *zap.Logger
}

// NewStockUseCase cria uma nova instância de StockUseCase
func NewStockUseCase(
	repository CatalogRepository,
	metrics *StoreMetrics,
	logger *zap.Logger,
) *StockUseCase {
	return &StockUseCase{
		repository: repository,
		metrics:    metrics,
		logger:     logger,
	}
}

// CreateWithStock cria o produto e o estoque inicial numa única transação
func (uc *StockUseCase) CreateWithStock(ctx context.Context, in NewProductInput) (*Product, error) {
	if in.PriceInCents <= 0 {
		return nil, ErrInvalidPrice
	}
	if err := validateVariationInputs(in.Variations); err != nil {
		return nil, err
	}

	// 1. Inicia a transação
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 2. Cria o produto
	product := NewProduct(uuid.New().String(), in)
	if err := uc.repository.CreateProduct(ctx, tx, product); err != nil {
		return nil, err
	}

	// 3. Cria as variações
	product.Variations, err = uc.repository.InsertVariations(ctx, tx, product.ID, in.Variations)
	if err != nil {
		return nil, err
	}

	// 4. Commit da transação
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit product: %w", err)
	}

	logInfo(ctx, uc.logger, "✅ [PRODUCT] created",
		zap.String("product_id", product.ID),
		zap.Int("variations", len(product.Variations)),
	)
	return product, nil
}

// UpdateWithStock atualiza o produto e substitui todas as variações na mesma transação
func (uc *StockUseCase) UpdateWithStock(ctx context.Context, product *Product, inputs []VariationInput) (*Product, error) {
	if product.PriceInCents <= 0 {
		return nil, ErrInvalidPrice
	}
	if err := validateVariationInputs(inputs); err != nil {
		return nil, err
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := uc.repository.GetProductForUpdate(ctx, tx, product.ID); err != nil {
		return nil, err
	}

	if err := uc.repository.UpdateProduct(ctx, tx, product); err != nil {
		return nil, err
	}

	product.Variations, err = uc.replaceVariations(ctx, tx, product.ID, inputs)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit product: %w", err)
	}

	logInfo(ctx, uc.logger, "✅ [PRODUCT] updated", zap.String("product_id", product.ID))
	return product, nil
}

// UpsertVariations sobrescreve o estoque das variações informadas ou as cria
func (uc *StockUseCase) UpsertVariations(ctx context.Context, productID string, inputs []VariationInput) ([]ProductVariation, error) {
	if err := validateVariationInputs(inputs); err != nil {
		return nil, err
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := uc.repository.GetProductForUpdate(ctx, tx, productID); err != nil {
		return nil, err
	}

	if err := uc.repository.UpsertVariations(ctx, tx, productID, inputs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit variations: %w", err)
	}

	logInfo(ctx, uc.logger, "✅ [STOCK] variations upserted",
		zap.String("product_id", productID),
		zap.Int("count", len(inputs)),
	)
	return uc.repository.GetVariations(ctx, productID)
}

// ReplaceAllVariations troca o conjunto completo de variações do produto
func (uc *StockUseCase) ReplaceAllVariations(ctx context.Context, productID string, inputs []VariationInput) ([]ProductVariation, error) {
	if err := validateVariationInputs(inputs); err != nil {
		return nil, err
	}

	// 1. Inicia a transação
	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 2. Lock no produto para serializar substituições concorrentes
	if _, err := uc.repository.GetProductForUpdate(ctx, tx, productID); err != nil {
		return nil, err
	}

	// 3. Remove e recria as variações
	variations, err := uc.replaceVariations(ctx, tx, productID, inputs)
	if err != nil {
		return nil, err
	}

	// 4. Commit da transação
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit variations: %w", err)
	}

	logInfo(ctx, uc.logger, "✅ [STOCK] variations replaced",
		zap.String("product_id", productID),
		zap.Int("count", len(variations)),
	)
	return variations, nil
}

func (uc *StockUseCase) replaceVariations(ctx context.Context, tx Tx, productID string, inputs []VariationInput) ([]ProductVariation, error) {
	if err := uc.repository.DeleteVariations(ctx, tx, productID); err != nil {
		return nil, err
	}
	return uc.repository.InsertVariations(ctx, tx, productID, inputs)
}

// DecrementStock dá baixa no estoque da variação que casa com o filtro em transação própria
func (uc *StockUseCase) DecrementStock(ctx context.Context, productID string, filter VariationOption, amount int) (*ProductVariation, error) {
	if err := checkDecrement(filter, amount); err != nil {
		return nil, err
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	variation, err := uc.DecrementStockWith(ctx, tx, productID, filter, amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit decrement: %w", err)
	}

	return variation, nil
}

// DecrementStockWith aplica a baixa numa transação do chamador.
// O saldo nunca fica negativo: a falta é registrada na métrica de oversell.
func (uc *StockUseCase) DecrementStockWith(ctx context.Context, store VariationStore, productID string, filter VariationOption, amount int) (*ProductVariation, error) {
	if err := checkDecrement(filter, amount); err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "StockUseCase.DecrementStock",
		attribute.String("product_id", productID),
		attribute.String("variation", filter.String()),
		attribute.Int("amount", amount),
	)
	defer span.End()

	// 1. Obtém a variação com LOCK PESSIMISTA (SELECT FOR UPDATE)
	variation, err := store.LockVariation(ctx, productID, filter)
	if err != nil {
		if !errors.Is(err, ErrVariationNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}

	// 2. Regra de Negócio: baixa limitada a zero
	shortfall := variation.Decrement(amount)
	if shortfall > 0 {
		uc.metrics.stockOversell.Add(ctx, int64(shortfall), metric.WithAttributes(attribute.String("product_id", productID)))
		logWarn(ctx, uc.logger, "⚠️ [STOCK] oversell clamped at zero",
			zap.String("product_id", productID),
			zap.String("variation_id", variation.ID),
			zap.Int("requested", amount),
			zap.Int("shortfall", shortfall),
		)
	}

	// 3. Persiste o novo saldo
	if err := store.SetVariationStock(ctx, variation.ID, variation.Stock); err != nil {
		span.RecordError(err)
		return nil, err
	}

	uc.metrics.stockDecrements.Add(ctx, 1)
	logInfo(ctx, uc.logger, "✅ [DECREASE] stock updated",
		zap.String("product_id", productID),
		zap.String("variation_id", variation.ID),
		zap.Int("stock", variation.Stock),
	)
	return variation, nil
}

func (uc *StockUseCase) GetVariations(ctx context.Context, productID string) ([]ProductVariation, error) {
	return uc.repository.GetVariations(ctx, productID)
}

func checkDecrement(filter VariationOption, amount int) error {
	if filter.Kind() == OptionNone {
		return ErrInvalidFilter
	}
	if amount <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
