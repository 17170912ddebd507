package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/hakim/go-commerce/internal/database"
	"github.com/hakim/go-commerce/internal/models"
)

const productColumns = `id, name, price, stock, COALESCE(description, ''), COALESCE(image_path, ''), created_at, updated_at, version`

// ProductStore is the catalog repository. Stock is only ever decremented
// through an order completion; the store itself performs no underflow
// checks outside DecrementStock's conditional update.
type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.Stock,
		&product.Description,
		&product.ImagePath,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *ProductStore) Create(ctx context.Context, name string, price decimal.Decimal, stock int, description, imagePath string) (*models.Product, error) {
	query := `
		INSERT INTO products (name, price, stock, description, image_path, created_at, updated_at, version)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(s.db.QueryRowContext(ctx, query, name, price, stock, description, imagePath))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func (s *ProductStore) Get(ctx context.Context, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetOneByName expects exactly one product with the given name.
// Returns ErrProductNotFound for zero matches and ErrMultipleResults for
// more than one.
func (s *ProductStore) GetOneByName(ctx context.Context, name string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE name = $1 LIMIT 2`

	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("get product by name: %w", err)
	}
	defer rows.Close()

	var matches []*models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		matches = append(matches, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, database.ErrProductNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, database.ErrMultipleResults
	}
}

// Exists is the boolean existence check. It never reports a missing row as
// an error.
func (s *ProductStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("product exists: %w", err)
	}
	return exists, nil
}

func (s *ProductStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// List returns products ordered by price descending, the catalog's
// display order.
func (s *ProductStore) List(ctx context.Context, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY price DESC, id
		LIMIT $1 OFFSET $2`

	products, err := s.queryProducts(ctx, query, pageSize, offset)
	if err != nil {
		return nil, err
	}

	return NewOffsetPage(products, total, page, pageSize), nil
}

// SearchByName is a case-insensitive substring search.
func (s *ProductStore) SearchByName(ctx context.Context, term string) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY price DESC, id`

	return s.queryProducts(ctx, query, term)
}

func (s *ProductStore) FilterByPrice(ctx context.Context, price decimal.Decimal) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE price = $1 ORDER BY id`
	return s.queryProducts(ctx, query, price)
}

func (s *ProductStore) FilterByPriceAbove(ctx context.Context, price decimal.Decimal) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE price > $1 ORDER BY price DESC, id`
	return s.queryProducts(ctx, query, price)
}

func (s *ProductStore) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// SetStockOptimistic replaces a product's stock using the version column,
// for manual stock corrections outside the fulfillment path.
func (s *ProductStore) SetStockOptimistic(ctx context.Context, id int64, newStock, version int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET stock = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		newStock, id, version)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOptimisticLockFailed
	}

	return nil
}

// LockProduct takes a row lock on the product without waiting, returning
// ErrLockTimeout if another transaction holds it.
func LockProduct(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE NOWAIT`

	product, err := scanProduct(tx.QueryRowContext(ctx, query, productID))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "55P03" {
			return nil, database.ErrLockTimeout
		}
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product (nowait): %w", err)
	}

	return product, nil
}

// DecrementStock subtracts quantity from the product's stock inside tx.
// The conditional update both serializes concurrent decrements (the row
// lock) and rejects any write that would take stock below zero.
func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}
