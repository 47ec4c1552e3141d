// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSettingsNotFound возвращается, если настройки реферальной программы ещё не сохранены.
var (
	ErrSettingsNotFound = errors.New("referral settings not found")
	// ErrAccountNotFound возвращается, если у клиента нет бонусного счёта.
	ErrAccountNotFound = errors.New("points account not found")
	// ErrUsageExists возвращается, если код уже использован этим клиентом.
	ErrUsageExists = errors.New("referral code already used by customer")
	// ErrInsufficientBalance возвращается, если изменение баланса сделало бы его отрицательным.
	ErrInsufficientBalance = errors.New("insufficient points balance")
	// ErrAlreadyRolledBack возвращается, если все списанные по заказу баллы уже возвращены.
	ErrAlreadyRolledBack = errors.New("order referral changes already rolled back")
	// ErrNothingRedeemed возвращается при откате заказа, по которому клиент баллы не списывал.
	ErrNothingRedeemed = errors.New("no points redeemed for order")
	// ErrInvoiceCustomerMismatch возвращается, если по заказу уже списывал баллы другой клиент.
	ErrInvoiceCustomerMismatch = errors.New("order belongs to another customer")
)

// Tables перечисляет таблицы, без которых подсистема баллов не работает.
var Tables = []string{
	"customers",
	"referral_settings",
	"customer_points",
	"points_transactions",
	"referral_usage",
	"order_redemptions",
}

// SchemaError сообщает об отсутствующих объектах схемы БД.
type SchemaError struct {
	Tables []string
	Err    error
}

func (e *SchemaError) Error() string {
	if len(e.Tables) == 0 {
		return fmt.Sprintf("database schema is missing objects: %v", e.Err)
	}
	return "database schema is missing tables: " + strings.Join(e.Tables, ", ")
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IsSchemaMissing сообщает, вызвана ли ошибка отсутствием таблицы.
func IsSchemaMissing(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	retryDelays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и при необходимости применяет миграции.
func NewPostgresRepository(dsn string, migrate bool) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:        pool,
		retryDelays: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 1 * time.Second},
	}

	if migrate {
		if err := r.runMigrations(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// CheckSchema проверяет наличие всех таблиц подсистемы и возвращает *SchemaError со списком отсутствующих.
func (r *PostgresRepository) CheckSchema(ctx context.Context) error {
	var missing []string
	for _, table := range Tables {
		var exists bool
		err := r.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		return &SchemaError{Tables: missing}
	}
	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.retryDelays) {
			break
		}

		timer := time.NewTimer(r.retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// classify оборачивает ошибку PostgreSQL: отсутствующая таблица превращается в *SchemaError.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return &SchemaError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
