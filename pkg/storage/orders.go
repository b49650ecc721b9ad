package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OrderRecord is the durable view of a placed (or attempted) order.
type OrderRecord struct {
	OrderID   string
	ProductID string
	AccountID string
	Status    string
	Price     float64
	Quantity  int
	Metadata  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsertOrder records a new order.
func (s *Store) InsertOrder(rec *OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowRFC3339()
	_, err := s.db.Exec(
		`INSERT INTO orders (order_id, product_id, account_id, status, price, quantity, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID, rec.ProductID, rec.AccountID, rec.Status, rec.Price, rec.Quantity, rec.Metadata, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", rec.OrderID, err)
	}
	return nil
}

// GetOrder returns the record for an order-id, or nil when absent.
func (s *Store) GetOrder(orderID string) (*OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT order_id, product_id, account_id, status, price, quantity, metadata, created_at, updated_at
		 FROM orders WHERE order_id = ?`, orderID)
	return scanOrder(row)
}

// UpdateOrderStatus changes an order's status.
func (s *Store) UpdateOrderStatus(orderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE orders SET status = ?, updated_at = ? WHERE order_id = ?`,
		status, nowRFC3339(), orderID)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("order %s not found", orderID)
	}
	return nil
}

// DeleteOrder removes an order record. Missing records are not an error.
func (s *Store) DeleteOrder(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM orders WHERE order_id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", orderID, err)
	}
	return nil
}

// ListOrdersByAccount returns all orders placed by an account.
func (s *Store) ListOrdersByAccount(accountID string) ([]*OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT order_id, product_id, account_id, status, price, quantity, metadata, created_at, updated_at
		 FROM orders WHERE account_id = ? ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanOrder(row rowScanner) (*OrderRecord, error) {
	var (
		rec      OrderRecord
		metadata sql.NullString
		created  string
		updated  string
	)
	err := row.Scan(&rec.OrderID, &rec.ProductID, &rec.AccountID, &rec.Status, &rec.Price, &rec.Quantity, &metadata, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rec.Metadata = metadata.String
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}
