package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hakim/go-commerce/internal/models"
)

// ReportStore runs the read-only aggregate queries the dashboards and
// printout scripts consume. Nothing here mutates state.
type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Summary is the standard dashboard block: every aggregate the old
// reporting scripts printed, in one struct.
type Summary struct {
	TotalOrders         int64           `json:"total_orders"`
	CompletedOrders     int64           `json:"completed_orders"`
	TotalSales          decimal.Decimal `json:"total_sales"`
	AverageProductPrice decimal.Decimal `json:"average_product_price"`
	MaxProductPrice     decimal.Decimal `json:"max_product_price"`
	TotalStock          int64           `json:"total_stock"`
	DistinctCustomers   int64           `json:"distinct_customers"`
	TotalUnitsOrdered   int64           `json:"total_units_ordered"`
	AvgQuantityPerLine  float64         `json:"avg_quantity_per_line"`
}

// MostExpensiveLine is the "most expensive line item" lookup result.
// When several lines tie on product price the pick is arbitrary.
type MostExpensiveLine struct {
	Line         models.OrderLine `json:"line"`
	ProductName  string           `json:"product_name"`
	ProductPrice decimal.Decimal  `json:"product_price"`
}

func (s *ReportStore) countQuery(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *ReportStore) TotalOrders(ctx context.Context) (int64, error) {
	n, err := s.countQuery(ctx, `SELECT COUNT(*) FROM orders`)
	if err != nil {
		return 0, fmt.Errorf("total orders: %w", err)
	}
	return n, nil
}

func (s *ReportStore) CompletedOrders(ctx context.Context) (int64, error) {
	n, err := s.countQuery(ctx, `SELECT COUNT(*) FROM orders WHERE complete = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("completed orders: %w", err)
	}
	return n, nil
}

// TotalSales sums the persisted line totals across all orders.
func (s *ReportStore) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0) FROM order_details`).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("total sales: %w", err)
	}
	return total, nil
}

func (s *ReportStore) AverageProductPrice(ctx context.Context) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(price), 0) FROM products`).Scan(&avg)
	if err != nil {
		return decimal.Zero, fmt.Errorf("average product price: %w", err)
	}
	return avg, nil
}

func (s *ReportStore) MaxProductPrice(ctx context.Context) (decimal.Decimal, error) {
	var max decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(price), 0) FROM products`).Scan(&max)
	if err != nil {
		return decimal.Zero, fmt.Errorf("max product price: %w", err)
	}
	return max, nil
}

func (s *ReportStore) TotalStock(ctx context.Context) (int64, error) {
	n, err := s.countQuery(ctx, `SELECT COALESCE(SUM(stock), 0) FROM products`)
	if err != nil {
		return 0, fmt.Errorf("total stock: %w", err)
	}
	return n, nil
}

// DistinctCustomers counts customers that have placed at least one order.
func (s *ReportStore) DistinctCustomers(ctx context.Context) (int64, error) {
	n, err := s.countQuery(ctx,
		`SELECT COUNT(DISTINCT customer_id) FROM orders WHERE customer_id IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("distinct customers: %w", err)
	}
	return n, nil
}

func (s *ReportStore) TotalUnitsOrdered(ctx context.Context) (int64, error) {
	n, err := s.countQuery(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM order_details`)
	if err != nil {
		return 0, fmt.Errorf("total units ordered: %w", err)
	}
	return n, nil
}

func (s *ReportStore) AvgQuantityPerLine(ctx context.Context) (float64, error) {
	var avg float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(quantity), 0) FROM order_details`).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("avg quantity per line: %w", err)
	}
	return avg, nil
}

// MostExpensive returns the line item whose product carries the highest
// price, or (nil, nil) when no line has a live product reference.
func (s *ReportStore) MostExpensive(ctx context.Context) (*MostExpensiveLine, error) {
	query := `
		SELECT od.id, od.product_id, od.order_id, od.quantity, od.total, od.date_added,
		       p.name, p.price
		FROM order_details od
		JOIN products p ON p.id = od.product_id
		ORDER BY p.price DESC
		LIMIT 1`

	result := &MostExpensiveLine{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&result.Line.ID,
		&result.Line.ProductID,
		&result.Line.OrderID,
		&result.Line.Quantity,
		&result.Line.Total,
		&result.Line.DateAdded,
		&result.ProductName,
		&result.ProductPrice,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("most expensive line: %w", err)
	}

	return result, nil
}

// OrdersSince counts orders placed after the given instant.
func (s *ReportStore) OrdersSince(ctx context.Context, since time.Time) (int64, error) {
	n, err := s.countQuery(ctx,
		`SELECT COUNT(*) FROM orders WHERE date_ordered > $1`, since)
	if err != nil {
		return 0, fmt.Errorf("orders since: %w", err)
	}
	return n, nil
}

// FrequentCustomers lists customer ids with more than minOrders orders.
func (s *ReportStore) FrequentCustomers(ctx context.Context, minOrders int) ([]int64, error) {
	query := `
		SELECT customer_id
		FROM orders
		WHERE customer_id IS NOT NULL
		GROUP BY customer_id
		HAVING COUNT(*) > $1
		ORDER BY customer_id`

	rows, err := s.db.QueryContext(ctx, query, minOrders)
	if err != nil {
		return nil, fmt.Errorf("frequent customers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan customer id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// BuildSummary runs the summary aggregates concurrently; they are
// independent read-only queries, so each gets its own connection from the
// pool.
func (s *ReportStore) BuildSummary(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		summary.TotalOrders, err = s.TotalOrders(ctx)
		return err
	})
	g.Go(func() (err error) {
		summary.CompletedOrders, err = s.CompletedOrders(ctx)
		return err
	})
	g.Go(func() (err error) {
		summary.TotalSales, err = s.TotalSales(ctx)
		return err
	})
	g.Go(func() (err error) {
		summary.AverageProductPrice, err = s.AverageProductPrice(ctx)
		return err
	})
	g.Go(func() (err error) {
		summary.MaxProductPrice, err = s.MaxProductPrice(ctx)
		return err
	})
	g.Go(func() (err error) {
		summary.TotalStock, err = s.TotalStock(ctx)
		return err
	})
	g.Go(func() (err error) {
		summary.DistinctCustomers, err = s.DistinctCustomers(ctx)
		return err
	})
	g.Go(func() (err error) {
		summary.TotalUnitsOrdered, err = s.TotalUnitsOrdered(ctx)
		return err
	})
	g.Go(func() (err error) {
		summary.AvgQuantityPerLine, err = s.AvgQuantityPerLine(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summary, nil
}
