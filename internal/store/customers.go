package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hakim/go-commerce/internal/database"
	"github.com/hakim/go-commerce/internal/models"
)

// CustomerStore manages accounts and the customers linked to them.
// The account->customer cascade lives in the schema; deleting an account
// removes its customer row in the same statement.
type CustomerStore struct {
	db *sql.DB
}

func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

func (s *CustomerStore) CreateAccount(ctx context.Context, username, email string) (*models.Account, error) {
	account := &models.Account{}

	query := `
		INSERT INTO accounts (username, email, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, username, email, created_at`

	err := s.db.QueryRowContext(ctx, query, username, email).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	return account, nil
}

func (s *CustomerStore) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	account := &models.Account{}

	query := `SELECT id, username, email, created_at FROM accounts WHERE id = $1`

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return account, nil
}

// DeleteAccount removes the account; the linked customer goes with it via
// ON DELETE CASCADE.
func (s *CustomerStore) DeleteAccount(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrAccountNotFound
	}

	return nil
}

func (s *CustomerStore) CreateCustomer(ctx context.Context, accountID int64, name, email string) (*models.Customer, error) {
	customer := &models.Customer{}

	query := `
		INSERT INTO customers (account_id, name, email, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, account_id, name, email, created_at`

	err := s.db.QueryRowContext(ctx, query, accountID, name, email).Scan(
		&customer.ID,
		&customer.AccountID,
		&customer.Name,
		&customer.Email,
		&customer.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	return customer, nil
}

func (s *CustomerStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	return s.getCustomer(ctx, `WHERE id = $1`, id)
}

func (s *CustomerStore) GetCustomerByAccount(ctx context.Context, accountID int64) (*models.Customer, error) {
	return s.getCustomer(ctx, `WHERE account_id = $1`, accountID)
}

func (s *CustomerStore) getCustomer(ctx context.Context, where string, arg any) (*models.Customer, error) {
	customer := &models.Customer{}

	query := `SELECT id, account_id, name, email, created_at FROM customers ` + where

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&customer.ID,
		&customer.AccountID,
		&customer.Name,
		&customer.Email,
		&customer.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return customer, nil
}

// DeleteCustomer removes only the customer; existing orders keep their
// rows with customer_id nulled by the schema.
func (s *CustomerStore) DeleteCustomer(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCustomerNotFound
	}

	return nil
}

func (s *CustomerStore) ListCustomers(ctx context.Context, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count customers: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, account_id, name, email, created_at
		FROM customers
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var customer models.Customer
		err := rows.Scan(
			&customer.ID,
			&customer.AccountID,
			&customer.Name,
			&customer.Email,
			&customer.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(customers, total, page, pageSize), nil
}
