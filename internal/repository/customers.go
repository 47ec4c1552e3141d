package repository

import (
	"context"
)

// CustomerExists сообщает, есть ли клиент с указанным идентификатором в справочнике.
func (r *PostgresRepository) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`,
		customerID,
	).Scan(&exists)
	if err != nil {
		return false, classify("check customer", err)
	}
	return exists, nil
}
