package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the login identity a Customer is linked to. Deleting an
// account cascades to its customer row.
type Account struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Customer struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Description string          `json:"description,omitempty"`
	ImagePath   string          `json:"image_path,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

// Order is the purchase header. CustomerID is nil when the customer was
// deleted after the order was placed. Complete flips to true exactly once;
// the stock decrement happens on that transition.
type Order struct {
	ID            int64       `json:"id"`
	CustomerID    *int64      `json:"customer_id,omitempty"`
	DateOrdered   time.Time   `json:"date_ordered"`
	Complete      bool        `json:"complete"`
	TransactionID *string     `json:"transaction_id,omitempty"`
	Lines         []OrderLine `json:"lines,omitempty"`
}

// OrderLine keeps a persisted Total so reporting never has to join back to
// products; it is recomputed from price * quantity on every write. ProductID
// and OrderID are nullable because deleting either side only nulls the
// reference.
type OrderLine struct {
	ID        int64           `json:"id"`
	ProductID *int64          `json:"product_id,omitempty"`
	OrderID   *int64          `json:"order_id,omitempty"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	DateAdded time.Time       `json:"date_added"`
}

// LoggingRecord is one row per handled HTTP request. StatusCode is nil
// until the response has been written.
type LoggingRecord struct {
	ID         int64     `json:"id"`
	CustomerID *int64    `json:"customer_id,omitempty"`
	LoggedAt   time.Time `json:"logged_at"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode *int      `json:"status_code,omitempty"`
}

// LineTotal computes price * quantity, degrading to zero when the product
// reference is gone or the quantity is zero. A dangling line is worth
// nothing, not an error.
func LineTotal(price *decimal.Decimal, quantity int) decimal.Decimal {
	if price == nil || quantity <= 0 {
		return decimal.Zero
	}
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
