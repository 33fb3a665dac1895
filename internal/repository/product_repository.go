package repository

import (
	"context"
	"fmt"

	"merocart/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// productRepository implements the ProductRepository interface using PostgreSQL.
type productRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) ProductRepository {
	return &productRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "product").Logger(),
	}
}

// GetByIDs retrieves multiple products by their IDs.
func (r *productRepository) GetByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}

	query := `
		SELECT id, name, price, category, stock_quantity, created_at
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("id_count", len(ids)).Msg("failed to query products")
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.StockQuantity, &p.CreatedAt); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan product row")
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// ReserveStock decrements stock for every line within the transaction. Each
// UPDATE only succeeds when enough stock remains, so two concurrent
// checkouts can never both take the last unit: the row is locked for the
// duration of the statement and the predicate re-evaluated under the lock.
func (r *productRepository) ReserveStock(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $1
		WHERE id = $2 AND stock_quantity >= $1
	`

	for _, item := range items {
		tag, err := tx.Exec(ctx, query, item.Quantity, item.ProductID)
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("failed to reserve stock")
			return fmt.Errorf("failed to reserve stock for %s: %w", item.ProductID, err)
		}

		if tag.RowsAffected() == 0 {
			r.logger.Warn().
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("insufficient stock")
			return model.ErrInsufficientStock
		}
	}

	r.logger.Debug().Int("line_count", len(items)).Msg("stock reserved")

	return nil
}

// RestoreStock increments stock for every line within the transaction.
func (r *productRepository) RestoreStock(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $1
		WHERE id = $2
	`

	for _, item := range items {
		if _, err := tx.Exec(ctx, query, item.Quantity, item.ProductID); err != nil {
			r.logger.Error().
				Err(err).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("failed to restore stock")
			return fmt.Errorf("failed to restore stock for %s: %w", item.ProductID, err)
		}
	}

	r.logger.Debug().Int("line_count", len(items)).Msg("stock restored")

	return nil
}
