package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hakim/go-commerce/internal/models"
)

// LogStore persists one row per handled HTTP request. The middleware
// creates the row before dispatch and patches the status code in after.
type LogStore struct {
	db *sql.DB
}

func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

func (s *LogStore) CreateRecord(ctx context.Context, customerID *int64, method, path string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO logging_records (customer_id, logged_at, method, path, status_code)
		 VALUES ($1, NOW(), $2, $3, NULL)
		 RETURNING id`,
		customerID, method, path).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create logging record: %w", err)
	}
	return id, nil
}

func (s *LogStore) SetStatus(ctx context.Context, id int64, statusCode int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE logging_records SET status_code = $2 WHERE id = $1`,
		id, statusCode)
	if err != nil {
		return fmt.Errorf("set logging record status: %w", err)
	}
	return nil
}

// Recent returns the newest records, for the admin log view.
func (s *LogStore) Recent(ctx context.Context, limit int) ([]models.LoggingRecord, error) {
	query := `
		SELECT id, customer_id, logged_at, method, COALESCE(path, ''), status_code
		FROM logging_records
		ORDER BY logged_at DESC, id DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list logging records: %w", err)
	}
	defer rows.Close()

	var records []models.LoggingRecord
	for rows.Next() {
		var record models.LoggingRecord
		err := rows.Scan(
			&record.ID,
			&record.CustomerID,
			&record.LoggedAt,
			&record.Method,
			&record.Path,
			&record.StatusCode,
		)
		if err != nil {
			return nil, fmt.Errorf("scan logging record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}
