// Package postgres implements storage.Store on PostgreSQL. Checkout
// atomicity comes from one transaction per unit of work with
// SELECT ... FOR UPDATE on the contended product rows, so two concurrent
// checkouts on the same product serialize on the row lock instead of both
// reading sufficient stock.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/greengrove/plantshop/internal/domain/cart"
	"github.com/greengrove/plantshop/internal/domain/catalog"
	"github.com/greengrove/plantshop/internal/domain/order"
	"github.com/greengrove/plantshop/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

func NewStore(cred *Credentials) (*Store, error) {
	conn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host, cred.Port, cred.User, cred.Password, cred.DBName)

	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection; used by integration tests.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RunMigrations(migrationsDirPath string) error {
	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Carts() cart.Repository       { return &cartRepo{q: s.db} }
func (s *Store) Orders() order.Repository     { return &orderRepo{q: s.db} }
func (s *Store) Products() catalog.Repository { return &productRepo{q: s.db} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("postgres: rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Carts() cart.Repository       { return &cartRepo{q: t.tx} }
func (t *sqlTx) Orders() order.Repository     { return &orderRepo{q: t.tx} }
func (t *sqlTx) Products() catalog.Repository { return &productRepo{q: t.tx} }

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
