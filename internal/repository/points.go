package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/shoeclean-loyalty/internal/model"
)

const accountColumns = `customer_id, current_balance, total_earned, total_redeemed, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.CustomerPointsAccount, error) {
	var a model.CustomerPointsAccount
	if err := row.Scan(&a.CustomerID, &a.CurrentBalance, &a.TotalEarned, &a.TotalRedeemed, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount возвращает бонусный счёт клиента.
func (r *PostgresRepository) GetAccount(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM customer_points WHERE customer_id = $1`,
		customerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, classify("get account", err)
	}
	return a, nil
}

// EnsureAccount возвращает счёт клиента, создавая пустой при первом обращении. Существующий счёт не изменяется.
func (r *PostgresRepository) EnsureAccount(ctx context.Context, customerID string) (*model.CustomerPointsAccount, error) {
	if err := ensureAccount(ctx, r.pool, customerID); err != nil {
		return nil, err
	}
	return r.GetAccount(ctx, customerID)
}

func ensureAccount(ctx context.Context, q querier, customerID string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO customer_points (customer_id) VALUES ($1) ON CONFLICT (customer_id) DO NOTHING`,
		customerID,
	)
	if err != nil {
		return classify("ensure account", err)
	}
	return nil
}

// applyDelta изменяет баланс одним условным UPDATE: строка обновляется, только если баланс не станет отрицательным.
func applyDelta(ctx context.Context, q querier, customerID string, delta int64) (*model.CustomerPointsAccount, error) {
	if err := ensureAccount(ctx, q, customerID); err != nil {
		return nil, err
	}

	a, err := scanAccount(q.QueryRow(ctx,
		`UPDATE customer_points
		 SET current_balance = current_balance + $2,
		     total_earned = total_earned + GREATEST($2, 0),
		     total_redeemed = total_redeemed + GREATEST(-$2, 0),
		     updated_at = NOW()
		 WHERE customer_id = $1 AND current_balance + $2 >= 0
		 RETURNING `+accountColumns,
		customerID, delta,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientBalance
		}
		return nil, classify("update balance", err)
	}
	return a, nil
}

// ApplyDelta атомарно изменяет баланс клиента на delta баллов.
func (r *PostgresRepository) ApplyDelta(ctx context.Context, customerID string, delta int64) (*model.CustomerPointsAccount, error) {
	var account *model.CustomerPointsAccount
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		a, err := applyDelta(ctx, tx, customerID, delta)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// RedeemPoints списывает баллы клиента в счёт заказа и в той же транзакции запоминает, сколько списано
// по этому заказу. Повторное списание по заказу суммируется, заказ другого клиента даёт ErrInvoiceCustomerMismatch.
func (r *PostgresRepository) RedeemPoints(ctx context.Context, invoiceID, customerID string, points int64) (*model.CustomerPointsAccount, error) {
	if points <= 0 {
		return nil, fmt.Errorf("redeem points: non-positive amount %d", points)
	}

	var account *model.CustomerPointsAccount
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		a, err := applyDelta(ctx, tx, customerID, -points)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO order_redemptions (order_invoice_id, customer_id, points_redeemed)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (order_invoice_id) DO UPDATE SET
			     points_redeemed = order_redemptions.points_redeemed + EXCLUDED.points_redeemed,
			     updated_at = NOW()
			 WHERE order_redemptions.customer_id = EXCLUDED.customer_id`,
			invoiceID, customerID, points,
		)
		if err != nil {
			return classify("record order redemption", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInvoiceCustomerMismatch
		}

		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ReturnRedeemedPoints возвращает клиенту баллы, списанные по заказу, но не больше, чем списано и ещё не возвращено.
// Возвращает счёт и фактически возвращённые баллы. Заказ без списаний даёт ErrNothingRedeemed,
// полностью возвращённый заказ ErrAlreadyRolledBack.
func (r *PostgresRepository) ReturnRedeemedPoints(ctx context.Context, invoiceID, customerID string, points int64) (*model.CustomerPointsAccount, int64, error) {
	var (
		account  *model.CustomerPointsAccount
		returned int64
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var redeemed, alreadyReturned int64
		err := tx.QueryRow(ctx,
			`SELECT points_redeemed, points_returned
			 FROM order_redemptions
			 WHERE order_invoice_id = $1 AND customer_id = $2
			 FOR UPDATE`,
			invoiceID, customerID,
		).Scan(&redeemed, &alreadyReturned)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNothingRedeemed
			}
			return classify("select order redemption", err)
		}

		amount := min(points, redeemed-alreadyReturned)
		if amount <= 0 {
			return ErrAlreadyRolledBack
		}

		if _, err := tx.Exec(ctx,
			`UPDATE order_redemptions
			 SET points_returned = points_returned + $2, updated_at = NOW()
			 WHERE order_invoice_id = $1`,
			invoiceID, amount,
		); err != nil {
			return classify("update order redemption", err)
		}

		a, err := applyDelta(ctx, tx, customerID, amount)
		if err != nil {
			return err
		}
		account = a
		returned = amount
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return account, returned, nil
}

// InsertTransaction добавляет запись в журнал операций с баллами.
func (r *PostgresRepository) InsertTransaction(ctx context.Context, t model.PointsTransaction) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO points_transactions
		     (id, customer_id, transaction_type, points_change, balance_after, reference_type, reference_id, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.CustomerID, string(t.TransactionType), t.PointsChange, t.BalanceAfter,
		string(t.ReferenceType), t.ReferenceID, t.Description, t.CreatedAt,
	)
	if err != nil {
		return classify("insert points transaction", err)
	}
	return nil
}

// ListTransactions возвращает журнал операций клиента, начиная с последних.
func (r *PostgresRepository) ListTransactions(ctx context.Context, customerID string, limit, offset int) ([]model.PointsTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_id, transaction_type, points_change, balance_after, reference_type, reference_id, description, created_at
		 FROM points_transactions
		 WHERE customer_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		customerID, limit, offset,
	)
	if err != nil {
		return nil, classify("select points transactions", err)
	}
	defer rows.Close()

	var res []model.PointsTransaction
	for rows.Next() {
		var (
			t       model.PointsTransaction
			txType  string
			refType string
		)
		if err := rows.Scan(&t.ID, &t.CustomerID, &txType, &t.PointsChange, &t.BalanceAfter, &refType, &t.ReferenceID, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan points transaction: %w", err)
		}
		t.TransactionType = model.TransactionType(txType)
		t.ReferenceType = model.ReferenceType(refType)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
