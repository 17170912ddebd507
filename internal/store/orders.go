package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hakim/go-commerce/internal/database"
	"github.com/hakim/go-commerce/internal/metrics"
	"github.com/hakim/go-commerce/internal/models"
)

const (
	orderColumns = `id, customer_id, date_ordered, complete, transaction_id`
	lineColumns  = `id, product_id, order_id, quantity, total, date_added`
)

// OrderStore is the order aggregate repository. Completion is the only
// operation that touches product stock, and it does so inside a single
// retried transaction so the flag flip and the decrements commit or roll
// back as one unit.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.DateOrdered,
		&order.Complete,
		&order.TransactionID,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func scanLine(row interface{ Scan(...any) error }) (*models.OrderLine, error) {
	line := &models.OrderLine{}
	err := row.Scan(
		&line.ID,
		&line.ProductID,
		&line.OrderID,
		&line.Quantity,
		&line.Total,
		&line.DateAdded,
	)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// Create opens a new, empty, incomplete order. customerID may be nil for
// guest checkouts.
func (s *OrderStore) Create(ctx context.Context, customerID *int64) (*models.Order, error) {
	query := `
		INSERT INTO orders (customer_id, date_ordered, complete)
		VALUES ($1, NOW(), FALSE)
		RETURNING ` + orderColumns

	order, err := scanOrder(s.db.QueryRowContext(ctx, query, customerID))
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func (s *OrderStore) Get(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	lines, err := s.linesForOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return order, nil
}

func (s *OrderStore) linesForOrder(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	query := `
		SELECT ` + lineColumns + `
		FROM order_details
		WHERE order_id = $1
		ORDER BY date_added, id`

	rows, err := s.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, *line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// AddLine attaches a product to an order with the given quantity and
// persists total = price * quantity alongside it. A second line for the
// same (product, order) pair fails with ErrDuplicateOrderLine. Quantity
// zero is a valid line with total zero.
func (s *OrderStore) AddLine(ctx context.Context, orderID, productID int64, quantity int) (*models.OrderLine, error) {
	var line *models.OrderLine

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var orderExists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&orderExists)
		if err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !orderExists {
			return database.ErrOrderNotFound
		}

		var price decimal.Decimal
		err = tx.QueryRowContext(ctx,
			`SELECT price FROM products WHERE id = $1`, productID).Scan(&price)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("get product price: %w", err)
		}

		total := models.LineTotal(&price, quantity)

		query := `
			INSERT INTO order_details (product_id, order_id, quantity, total, date_added)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING ` + lineColumns

		line, err = scanLine(tx.QueryRowContext(ctx, query, productID, orderID, quantity, total))
		if err != nil {
			if database.IsUniqueViolation(err) {
				return database.ErrDuplicateOrderLine
			}
			return fmt.Errorf("create order line: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return line, nil
}

// UpdateLineQuantity sets a new quantity and recomputes the persisted
// total in the same statement. A line whose product has been deleted keeps
// working: its price coalesces to zero, so the total degrades to zero
// instead of erroring.
func (s *OrderStore) UpdateLineQuantity(ctx context.Context, lineID int64, quantity int) (*models.OrderLine, error) {
	query := `
		UPDATE order_details
		SET quantity = $2,
		    total = COALESCE((SELECT price FROM products WHERE products.id = order_details.product_id), 0) * $2
		WHERE id = $1
		RETURNING ` + lineColumns

	line, err := scanLine(s.db.QueryRowContext(ctx, query, lineID, quantity))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderLineNotFound
		}
		return nil, fmt.Errorf("update order line: %w", err)
	}

	return line, nil
}

func (s *OrderStore) GetLine(ctx context.Context, lineID int64) (*models.OrderLine, error) {
	query := `SELECT ` + lineColumns + ` FROM order_details WHERE id = $1`

	line, err := scanLine(s.db.QueryRowContext(ctx, query, lineID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderLineNotFound
		}
		return nil, fmt.Errorf("get order line: %w", err)
	}

	return line, nil
}

// Total sums the persisted line totals for the order. The order header has
// no stored grand total; this query is the only way to get one.
func (s *OrderStore) Total(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return decimal.Zero, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return decimal.Zero, database.ErrOrderNotFound
	}

	var total decimal.Decimal
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0) FROM order_details WHERE order_id = $1`,
		orderID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("order total: %w", err)
	}

	return total, nil
}

// Complete marks the order complete and decrements stock for its lines,
// all inside one transaction.
//
// The conditional UPDATE on the complete flag is what makes the transition
// idempotent: only the caller that actually flips false->true runs the
// decrements. Re-completing an already-complete order is a no-op, not an
// error. Lines whose product is gone or whose quantity is zero are skipped.
// If any line would take stock below zero the whole transaction rolls back,
// including the flag flip, and ErrInsufficientStock is returned.
func (s *OrderStore) Complete(ctx context.Context, orderID int64, transactionID *string) (*models.Order, error) {
	var completedNow bool
	var unitsDecremented int

	err := database.WithRetry(ctx, s.db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		completedNow = false
		unitsDecremented = 0

		result, err := tx.ExecContext(ctx,
			`UPDATE orders
			 SET complete = TRUE,
			     transaction_id = COALESCE($2, transaction_id)
			 WHERE id = $1
			   AND complete = FALSE`,
			orderID, transactionID)
		if err != nil {
			return fmt.Errorf("mark order complete: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			// Either the order does not exist or it was already
			// complete. The latter must not decrement again.
			var complete bool
			err := tx.QueryRowContext(ctx,
				`SELECT complete FROM orders WHERE id = $1`, orderID).Scan(&complete)
			if err != nil {
				if err == sql.ErrNoRows {
					return database.ErrOrderNotFound
				}
				return fmt.Errorf("get order: %w", err)
			}
			return nil
		}
		completedNow = true

		rows, err := tx.QueryContext(ctx,
			`SELECT product_id, quantity
			 FROM order_details
			 WHERE order_id = $1
			   AND product_id IS NOT NULL
			   AND quantity > 0
			 ORDER BY product_id`,
			orderID)
		if err != nil {
			return fmt.Errorf("get order lines: %w", err)
		}
		defer rows.Close()

		type decrement struct {
			productID int64
			quantity  int
		}
		var decrements []decrement
		for rows.Next() {
			var d decrement
			if err := rows.Scan(&d.productID, &d.quantity); err != nil {
				return fmt.Errorf("scan order line: %w", err)
			}
			decrements = append(decrements, d)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		for _, d := range decrements {
			if err := DecrementStock(ctx, tx, d.productID, d.quantity); err != nil {
				return err
			}
			unitsDecremented += d.quantity
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrInsufficientStock) {
			metrics.StockUnderflowsTotal.Inc()
		}
		return nil, err
	}

	if completedNow {
		metrics.OrdersCompletedTotal.Inc()
		metrics.StockUnitsDecrementedTotal.Add(float64(unitsDecremented))
	}

	return s.Get(ctx, orderID)
}

// ListByCustomer pages through a customer's orders newest-first using a
// keyset cursor.
func (s *OrderStore) ListByCustomer(ctx context.Context, customerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		  AND (date_ordered, id) < ($2, $3)
		ORDER BY date_ordered DESC, id DESC
		LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, customerID, cursorData.DateOrdered, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			DateOrdered: last.DateOrdered,
			ID:          last.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
